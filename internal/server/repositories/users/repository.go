// Package users declares the account repository contract and its
// PostgreSQL implementation.
package users

import (
	"context"

	"github.com/mapster/mapster/internal/server/models"
)

type Repository interface {
	// Create inserts a new account; common.ErrUserExists when the username is taken.
	Create(ctx context.Context, user *models.User) error
	// CreateIfAbsent inserts the account unless the username exists and
	// reports whether a row was created.
	CreateIfAbsent(ctx context.Context, user *models.User) (bool, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}
