// Package service provides the business logic of the botfarm service.
package service

import "errors"

// Common service errors.
var (
	// User errors
	ErrUserNotFound      = errors.New("user not found")
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrInvalidEmail      = errors.New("invalid email format")
	ErrInvalidPassword   = errors.New("invalid password: must not be empty")
	ErrInvalidProjectID  = errors.New("invalid project id")

	// General errors
	ErrEncryptionFailed = errors.New("encryption failed")
	ErrDecryptionFailed = errors.New("decryption failed")
	ErrInternalError    = errors.New("internal server error")
)
