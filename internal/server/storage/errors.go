package storage

import "errors"

// Common storage errors
var (
	// ErrUserNotFound indicates that user was not found in storage
	ErrUserNotFound = errors.New("user not found")

	// ErrEmailTaken indicates that a user with this email already exists
	ErrEmailTaken = errors.New("email already registered")

	// ErrAPIKeyConflict indicates that the generated api key collides with an existing one
	ErrAPIKeyConflict = errors.New("api key already in use")
)
