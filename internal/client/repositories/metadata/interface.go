package metadata

import (
	"context"

	"github.com/mapster/mapster/internal/common"
)

// Keys used by the sync client.
const (
	KeyLastSyncTime = common.LastSyncTimeKey
	KeyCurrentUser  = "current_user"
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
)

// Repository is a small key/value store. Get returns (nil, nil) for absent keys.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) (map[string][]byte, error)
	Clear(ctx context.Context) error
}
