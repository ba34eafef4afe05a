package models

import (
	"time"

	"github.com/google/uuid"
)

// User is an account on the remote record store. Records are isolated per
// user; the local store belongs to exactly one user (or a guest).
type User struct {
	// ID is the unique identifier for the user (UUID format).
	ID string

	// Email is the login name (unique).
	Email string

	DisplayName string

	// PasswordHash is the bcrypt hash of the password.
	PasswordHash string

	// CreatedAt and UpdatedAt are Unix timestamps.
	CreatedAt int64
	UpdatedAt int64
}

// NewUser creates a user with a fresh ID and timestamps.
func NewUser(email, displayName, passwordHash string) *User {
	now := time.Now().Unix()
	return &User{
		ID:           uuid.New().String(),
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// RemoteRecord is a detached copy of a local record held by the remote
// record store. Fields is the JSON object of the record's fields. A deleted
// record keeps only its updatedAt field, the time of deletion.
type RemoteRecord struct {
	UserID    string
	Type      string
	Name      string
	Fields    []byte
	UpdatedAt int64 // Unix milliseconds
	SavedAt   int64 // Unix milliseconds
	Deleted   bool
}
