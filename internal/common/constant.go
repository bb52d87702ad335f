package common

// AccessTokenHeaderName is the HTTP header carrying the bearer access token.
const AccessTokenHeaderName = "Authorization"

// IdentitySecretHeaderName carries the shared secret of the trusted identity
// provider proxy on external-login calls.
const IdentitySecretHeaderName = "X-Identity-Secret"

// LastSyncTimeKey is the metadata key under which the sync client keeps its watermark.
const LastSyncTimeKey = "last_sync_time"
