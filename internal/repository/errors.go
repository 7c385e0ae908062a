package repository

import "errors"

// Repository errors
var (
	// ErrStoreUnavailable indicates a connection could not be obtained from the pool
	// or a transaction could not be started.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrUnknownDriver indicates no backend is registered for the configured driver.
	ErrUnknownDriver = errors.New("unknown database driver")
)
