// Package common defines shared constants and sentinel errors used across
// server and client layers of Mapster. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound       = errors.New("not found")
	ErrDuplicateName    = errors.New("duplicate itinerary name")
	ErrUserExists       = errors.New("user already exists")
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrPermission is returned when a record exists but belongs to another
	// user. The HTTP layer reports it exactly like ErrorNotFound.
	ErrPermission = errors.New("permission denied")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Input errors.
	ErrFilterParse      = errors.New("malformed search filters")
	ErrInvalidWatermark = errors.New("invalid sync timestamp")
	ErrInvalidInput     = errors.New("invalid input")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")

	// Token lifecycle errors.
	ErrTokenExpired        = errors.New("token expired")
	ErrRefreshTokenExpired = errors.New("refresh token expired")
)
