package models

import "time"

// User is an account. ID is the username.
type User struct {
	ID           string
	Name         string
	PasswordHash []byte
	CreatedAt    time.Time
}
