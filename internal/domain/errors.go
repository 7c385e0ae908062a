// Package domain contains the core business entities for the botfarm service.
package domain

import "errors"

// Domain errors - these represent business rule violations.
// They are distinct from infrastructure errors (database, network, etc.).
var (
	// ErrUserNotFound indicates the requested user does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrUserAlreadyExists indicates a user with the same id exists.
	ErrUserAlreadyExists = errors.New("user already exists")

	// ErrInvalidEnv indicates the env value is not one of prod, preprod, stage.
	ErrInvalidEnv = errors.New("invalid env")

	// ErrInvalidDomain indicates the domain value is not one of canary, regular.
	ErrInvalidDomain = errors.New("invalid domain")
)
