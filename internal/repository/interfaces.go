// Package repository defines data access interfaces for the botfarm service.
// These interfaces abstract database operations, allowing for different implementations
// (PostgreSQL, SQLite, in-memory for testing) while keeping the service layer clean.
package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/prn-tf/botfarm/internal/domain"
)

// =============================================================================
// User Repository
// =============================================================================

// UserRepository defines the interface for farm user data access.
// Every method runs inside its own transactional or read-only scope.
type UserRepository interface {
	// Create inserts a new user with all fields as given and returns the persisted row.
	Create(ctx context.Context, user *domain.User) (*domain.User, error)

	// GetByID retrieves a user by ID.
	// Returns domain.ErrUserNotFound if no row matches.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)

	// List returns every user, oldest first.
	List(ctx context.Context) ([]*domain.User, error)

	// AcquireLock takes the user's lock flag under a row-level exclusive lock.
	// If the user is already locked the row is returned unchanged with alreadyLocked=true.
	// Returns domain.ErrUserNotFound if no row matches.
	AcquireLock(ctx context.Context, id uuid.UUID) (user *domain.User, alreadyLocked bool, err error)

	// ReleaseLock clears the user's lock flag under a row-level exclusive lock.
	// If the user is already unlocked the row is returned unchanged with alreadyUnlocked=true.
	// Returns domain.ErrUserNotFound if no row matches.
	ReleaseLock(ctx context.Context, id uuid.UUID) (user *domain.User, alreadyUnlocked bool, err error)
}
