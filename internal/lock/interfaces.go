// Package lock provides distributed and local locking for background jobs.
// For single-node deployments, memory-based locks are used.
// For distributed deployments, Redis-based locks can be used.
//
// These locks guard jobs such as the user export. They are unrelated to
// the per-user locktime, which lives in the database.
package lock

import (
	"context"
	"errors"
	"time"
)

// ErrNotHeld indicates a release was attempted for a lock this locker does not hold.
var ErrNotHeld = errors.New("lock not held")

// Locker defines the interface for distributed/local locking.
type Locker interface {
	// Acquire attempts to acquire a lock.
	// Returns true if the lock was acquired, false if it's held elsewhere.
	// The lock will automatically expire after the specified TTL.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Release releases a lock previously acquired by this locker.
	// Returns ErrNotHeld if the lock expired or belongs to someone else.
	Release(ctx context.Context, key string) error
}

// Keys provides lock key generation for common scenarios.
var Keys = lockKeys{}

type lockKeys struct{}

// Export returns the lock key for user snapshot exports.
func (lockKeys) Export() string {
	return "lock:job:export"
}
