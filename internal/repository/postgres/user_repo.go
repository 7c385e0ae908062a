package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/prn-tf/botfarm/internal/domain"
	"github.com/prn-tf/botfarm/internal/repository"
)

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

const userColumns = `id, created_at, login, password, project_id, env, domain, locktime`

// userRepository implements repository.UserRepository for PostgreSQL.
type userRepository struct {
	db *DB
}

// NewUserRepository creates a new PostgreSQL user repository.
func NewUserRepository(db *DB) repository.UserRepository {
	return &userRepository{db: db}
}

// Create inserts a new user.
func (r *userRepository) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + userColumns

	var created *domain.User
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		u, err := scanUser(tx.QueryRow(ctx, query,
			user.ID,
			user.CreatedAt,
			user.Login,
			user.Password,
			user.ProjectID,
			string(user.Env),
			string(user.Domain),
			user.Locktime,
		))
		if err != nil {
			return err
		}
		created = u
		return nil
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: id %s", domain.ErrUserAlreadyExists, user.ID)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return created, nil
}

// GetByID retrieves a user by ID.
func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	var user *domain.User
	err := r.db.WithReadOnly(ctx, func(tx pgx.Tx) error {
		u, err := scanUser(tx.QueryRow(ctx, query, id))
		if err != nil {
			return err
		}
		user = u
		return nil
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by ID: %w", err)
	}

	return user, nil
}

// List returns all users ordered by creation time.
func (r *userRepository) List(ctx context.Context) ([]*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at, id`

	users := make([]*domain.User, 0)
	err := r.db.WithReadOnly(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			u, err := scanUser(rows)
			if err != nil {
				return err
			}
			users = append(users, u)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	return users, nil
}

// AcquireLock sets locktime to the database clock if the row is unlocked.
// The row stays exclusively locked from the SELECT until commit, so
// concurrent callers serialize and exactly one of them observes locktime = 0.
func (r *userRepository) AcquireLock(ctx context.Context, id uuid.UUID) (*domain.User, bool, error) {
	var (
		user          *domain.User
		alreadyLocked bool
	)

	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		current, err := scanUser(tx.QueryRow(ctx,
			`SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}

		if current.IsLocked() {
			user, alreadyLocked = current, true
			return nil
		}

		updated, err := scanUser(tx.QueryRow(ctx, `
			UPDATE users
			SET locktime = GREATEST(EXTRACT(EPOCH FROM clock_timestamp())::BIGINT, 1)
			WHERE id = $1
			RETURNING `+userColumns, id))
		if err != nil {
			return err
		}
		user = updated
		return nil
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, domain.ErrUserNotFound
		}
		return nil, false, fmt.Errorf("failed to acquire lock: %w", err)
	}

	return user, alreadyLocked, nil
}

// ReleaseLock resets locktime to 0 if the row is locked.
func (r *userRepository) ReleaseLock(ctx context.Context, id uuid.UUID) (*domain.User, bool, error) {
	var (
		user            *domain.User
		alreadyUnlocked bool
	)

	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		current, err := scanUser(tx.QueryRow(ctx,
			`SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}

		if !current.IsLocked() {
			user, alreadyUnlocked = current, true
			return nil
		}

		updated, err := scanUser(tx.QueryRow(ctx,
			`UPDATE users SET locktime = 0 WHERE id = $1 RETURNING `+userColumns, id))
		if err != nil {
			return err
		}
		user = updated
		return nil
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, domain.ErrUserNotFound
		}
		return nil, false, fmt.Errorf("failed to release lock: %w", err)
	}

	return user, alreadyUnlocked, nil
}

// scanUser reads one users row in userColumns order.
func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		u        domain.User
		env, dom string
	)
	if err := row.Scan(
		&u.ID,
		&u.CreatedAt,
		&u.Login,
		&u.Password,
		&u.ProjectID,
		&env,
		&dom,
		&u.Locktime,
	); err != nil {
		return nil, err
	}
	u.Env = domain.Env(env)
	u.Domain = domain.Domain(dom)
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}

// isUniqueViolation checks if an error is a unique constraint violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
