package auth

import (
	"errors"
	"fmt"

	"github.com/mapster/mapster/internal/common"
	"golang.org/x/crypto/bcrypt"
)

func HashPassword(password string) ([]byte, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	return h, nil
}

// CheckPassword returns common.ErrorUnauthorized on mismatch.
func CheckPassword(hash []byte, password string) error {
	err := bcrypt.CompareHashAndPassword(hash, []byte(password))
	if err == nil {
		return nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return common.ErrorUnauthorized
	}
	return fmt.Errorf("%w: %v", common.ErrorUnauthorized, err)
}

// UnusableHash hashes a random secret nobody knows. Accounts created through
// the identity provider get one, so local login on them always fails.
func UnusableHash() ([]byte, error) {
	secret, err := common.MakeRandHexString(32)
	if err != nil {
		return nil, err
	}
	return HashPassword(secret)
}
