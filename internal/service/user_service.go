// Package service provides the business logic of the botfarm service.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/prn-tf/botfarm/internal/domain"
	"github.com/prn-tf/botfarm/internal/metrics"
	"github.com/prn-tf/botfarm/internal/repository"
)

// PasswordCipher seals account passwords at rest.
// crypto.Encryptor satisfies it.
type PasswordCipher interface {
	EncryptString(plaintext string) (string, error)
	DecryptString(encoded string) (string, error)
}

// UserService implements the user lock protocol.
type UserService struct {
	userRepo repository.UserRepository
	cache    repository.Cache
	cacheTTL time.Duration
	cipher   PasswordCipher
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// UserServiceOption configures optional UserService collaborators.
type UserServiceOption func(*UserService)

// WithCache enables the read-through user cache used by GetUser.
func WithCache(cache repository.Cache, ttl time.Duration) UserServiceOption {
	return func(s *UserService) {
		s.cache = cache
		s.cacheTTL = ttl
	}
}

// WithPasswordCipher enables at-rest password sealing.
func WithPasswordCipher(c PasswordCipher) UserServiceOption {
	return func(s *UserService) {
		s.cipher = c
	}
}

// WithMetrics records operation outcomes on m.
func WithMetrics(m *metrics.Metrics) UserServiceOption {
	return func(s *UserService) {
		s.metrics = m
	}
}

// NewUserService creates a new UserService.
func NewUserService(userRepo repository.UserRepository, logger zerolog.Logger, opts ...UserServiceOption) *UserService {
	s := &UserService{
		userRepo: userRepo,
		logger:   logger.With().Str("service", "user").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateUserInput contains the data needed to create a new user.
// A nil ID is replaced with a generated one.
type CreateUserInput struct {
	ID        uuid.UUID
	Login     string
	Password  string
	ProjectID uuid.UUID
	Env       domain.Env
	Domain    domain.Domain
}

// LockOperationResult is the outcome of AcquireLock.
type LockOperationResult struct {
	User          *domain.User
	AlreadyLocked bool
}

// UnlockOperationResult is the outcome of ReleaseLock.
type UnlockOperationResult struct {
	User            *domain.User
	AlreadyUnlocked bool
}

// CreateUser stores a new unlocked user stamped with the current time.
func (s *UserService) CreateUser(ctx context.Context, input CreateUserInput) (*domain.User, error) {
	if err := s.validateCreateInput(input); err != nil {
		return nil, err
	}

	user := domain.NewUser(input.ID, input.Login, input.Password, input.ProjectID, input.Env, input.Domain)

	stored := user.Clone()
	if s.cipher != nil {
		sealed, err := s.cipher.EncryptString(user.Password)
		if err != nil {
			s.logger.Error().Err(err).Msg("failed to seal password")
			return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
		}
		stored.Password = sealed
	}

	created, err := s.userRepo.Create(ctx, stored)
	if err != nil {
		if errors.Is(err, domain.ErrUserAlreadyExists) {
			return nil, fmt.Errorf("%w: id %s", ErrUserAlreadyExists, user.ID)
		}
		s.logger.Error().Err(err).Str("user_id", user.ID.String()).Msg("failed to create user")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.invalidate(ctx, created.ID)
	s.metrics.RecordUserCreated()

	s.logger.Info().
		Str("user_id", created.ID.String()).
		Str("login", created.Login).
		Str("project_id", created.ProjectID.String()).
		Str("env", string(created.Env)).
		Str("domain", string(created.Domain)).
		Msg("user created")

	return s.open(created)
}

// ListUsers returns every user, oldest first. The result is never nil.
func (s *UserService) ListUsers(ctx context.Context) ([]*domain.User, error) {
	users, err := s.userRepo.List(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list users")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	out := make([]*domain.User, 0, len(users))
	for _, u := range users {
		opened, err := s.open(u)
		if err != nil {
			return nil, err
		}
		out = append(out, opened)
	}
	return out, nil
}

// GetUser returns a single user, served from the cache when one is configured.
func (s *UserService) GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	if user, ok := s.cached(ctx, id); ok {
		return s.open(user)
	}

	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		s.logger.Error().Err(err).Str("user_id", id.String()).Msg("failed to get user")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.store(ctx, user)
	return s.open(user)
}

// AcquireLock marks the user as taken. Locking an already locked user is
// not an error: the row is returned unchanged with AlreadyLocked set.
func (s *UserService) AcquireLock(ctx context.Context, id uuid.UUID) (*LockOperationResult, error) {
	user, alreadyLocked, err := s.userRepo.AcquireLock(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			s.metrics.RecordLockOperation(metrics.OpAcquire, metrics.OutcomeNotFound)
			return nil, ErrUserNotFound
		}
		s.metrics.RecordLockOperation(metrics.OpAcquire, metrics.OutcomeError)
		s.logger.Error().Err(err).Str("user_id", id.String()).Msg("failed to acquire lock")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	if alreadyLocked {
		s.metrics.RecordLockOperation(metrics.OpAcquire, metrics.OutcomeAlreadyLocked)
		s.logger.Debug().
			Str("user_id", id.String()).
			Int64("locktime", user.Locktime).
			Msg("user already locked")
	} else {
		s.invalidate(ctx, id)
		s.metrics.RecordLockOperation(metrics.OpAcquire, metrics.OutcomeAcquired)
		s.logger.Info().
			Str("user_id", id.String()).
			Int64("locktime", user.Locktime).
			Msg("user locked")
	}

	opened, err := s.open(user)
	if err != nil {
		return nil, err
	}
	return &LockOperationResult{User: opened, AlreadyLocked: alreadyLocked}, nil
}

// ReleaseLock marks the user as free. Releasing an unlocked user is not an
// error: the row is returned unchanged with AlreadyUnlocked set.
func (s *UserService) ReleaseLock(ctx context.Context, id uuid.UUID) (*UnlockOperationResult, error) {
	user, alreadyUnlocked, err := s.userRepo.ReleaseLock(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			s.metrics.RecordLockOperation(metrics.OpRelease, metrics.OutcomeNotFound)
			return nil, ErrUserNotFound
		}
		s.metrics.RecordLockOperation(metrics.OpRelease, metrics.OutcomeError)
		s.logger.Error().Err(err).Str("user_id", id.String()).Msg("failed to release lock")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	if alreadyUnlocked {
		s.metrics.RecordLockOperation(metrics.OpRelease, metrics.OutcomeAlreadyUnlocked)
		s.logger.Debug().Str("user_id", id.String()).Msg("user already unlocked")
	} else {
		s.invalidate(ctx, id)
		s.metrics.RecordLockOperation(metrics.OpRelease, metrics.OutcomeReleased)
		s.logger.Info().Str("user_id", id.String()).Msg("user unlocked")
	}

	opened, err := s.open(user)
	if err != nil {
		return nil, err
	}
	return &UnlockOperationResult{User: opened, AlreadyUnlocked: alreadyUnlocked}, nil
}

// =============================================================================
// Helper Methods
// =============================================================================

func (s *UserService) validateCreateInput(input CreateUserInput) error {
	if _, err := mail.ParseAddress(input.Login); err != nil {
		return ErrInvalidEmail
	}
	if input.Password == "" {
		return ErrInvalidPassword
	}
	if input.ProjectID == uuid.Nil {
		return ErrInvalidProjectID
	}
	if !input.Env.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidEnv, input.Env)
	}
	if !input.Domain.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidDomain, input.Domain)
	}
	return nil
}

// open returns a copy of a stored user with its password unsealed.
func (s *UserService) open(stored *domain.User) (*domain.User, error) {
	user := stored.Clone()
	if s.cipher == nil {
		return user, nil
	}

	plain, err := s.cipher.DecryptString(stored.Password)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", stored.ID.String()).Msg("failed to unseal password")
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	user.Password = plain
	return user, nil
}

// cached looks the user up in the cache. Cache failures count as misses.
func (s *UserService) cached(ctx context.Context, id uuid.UUID) (*domain.User, bool) {
	if s.cache == nil {
		return nil, false
	}

	data, err := s.cache.Get(ctx, repository.CacheKey{}.User(id))
	if err != nil {
		if !errors.Is(err, repository.ErrCacheMiss) {
			s.logger.Warn().Err(err).Str("user_id", id.String()).Msg("cache read failed")
		}
		s.metrics.RecordCacheLookup(false)
		return nil, false
	}

	var user domain.User
	if err := json.Unmarshal(data, &user); err != nil {
		s.logger.Warn().Err(err).Str("user_id", id.String()).Msg("discarding malformed cache entry")
		s.invalidate(ctx, id)
		s.metrics.RecordCacheLookup(false)
		return nil, false
	}

	s.metrics.RecordCacheLookup(true)
	return &user, true
}

// store writes the stored form of user to the cache.
func (s *UserService) store(ctx context.Context, user *domain.User) {
	if s.cache == nil {
		return
	}

	data, err := json.Marshal(user)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to encode cache entry")
		return
	}

	if err := s.cache.Set(ctx, repository.CacheKey{}.User(user.ID), data, s.cacheTTL); err != nil {
		s.logger.Warn().Err(err).Str("user_id", user.ID.String()).Msg("cache write failed")
	}
}

func (s *UserService) invalidate(ctx context.Context, id uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, repository.CacheKey{}.User(id)); err != nil {
		s.logger.Warn().Err(err).Str("user_id", id.String()).Msg("cache invalidation failed")
	}
}
