package models

import "time"

// RefreshToken is an opaque token that can be exchanged for a new token pair.
type RefreshToken struct {
	UserID  string
	Token   string
	Expires time.Time
}
