package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/prn-tf/botfarm/internal/domain"
	"github.com/prn-tf/botfarm/internal/repository"
)

const userColumns = `id, created_at, login, password, project_id, env, domain, locktime`

// timeLayout is fixed width so created_at text sorts chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// userRepository implements repository.UserRepository for SQLite.
type userRepository struct {
	db  *DB
	now func() time.Time
}

// NewUserRepository creates a new SQLite user repository.
func NewUserRepository(db *DB) repository.UserRepository {
	return &userRepository{db: db, now: time.Now}
}

// Create inserts a new user.
func (r *userRepository) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING ` + userColumns

	var created *domain.User
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		u, err := scanUser(tx.QueryRowContext(ctx, query,
			user.ID.String(),
			user.CreatedAt.UTC().Format(timeLayout),
			user.Login,
			user.Password,
			user.ProjectID.String(),
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
	var user *domain.User
	err := r.db.WithReadOnly(ctx, func(tx *sql.Tx) error {
		u, err := r.get(ctx, tx, id)
		if err != nil {
			return err
		}
		user = u
		return nil
	})
	if err != nil {
		if isNoRows(err) {
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
	err := r.db.WithReadOnly(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, query)
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

// AcquireLock sets locktime to the current Unix time if the row is unlocked.
// The transaction holds the database write lock from BEGIN, and the UPDATE
// only matches an unlocked row, so at most one caller wins.
func (r *userRepository) AcquireLock(ctx context.Context, id uuid.UUID) (*domain.User, bool, error) {
	locktime := r.now().Unix()
	if locktime < 1 {
		locktime = 1
	}

	user, changed, err := r.compareAndSet(ctx, id,
		`UPDATE users SET locktime = ? WHERE id = ? AND locktime = 0`, locktime)
	if err != nil {
		if isNoRows(err) {
			return nil, false, domain.ErrUserNotFound
		}
		return nil, false, fmt.Errorf("failed to acquire lock: %w", err)
	}

	return user, !changed, nil
}

// ReleaseLock resets locktime to 0 if the row is locked.
func (r *userRepository) ReleaseLock(ctx context.Context, id uuid.UUID) (*domain.User, bool, error) {
	user, changed, err := r.compareAndSet(ctx, id,
		`UPDATE users SET locktime = ? WHERE id = ? AND locktime <> 0`, int64(0))
	if err != nil {
		if isNoRows(err) {
			return nil, false, domain.ErrUserNotFound
		}
		return nil, false, fmt.Errorf("failed to release lock: %w", err)
	}

	return user, !changed, nil
}

// compareAndSet runs a conditional locktime update and returns the row as it
// stands afterwards, reporting whether the update matched.
func (r *userRepository) compareAndSet(ctx context.Context, id uuid.UUID, update string, locktime int64) (*domain.User, bool, error) {
	var (
		user    *domain.User
		changed bool
	)

	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, update, locktime, id.String())
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		changed = n == 1

		u, err := r.get(ctx, tx, id)
		if err != nil {
			return err
		}
		user = u
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	return user, changed, nil
}

func (r *userRepository) get(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.User, error) {
	return scanUser(tx.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id.String()))
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanUser reads one users row in userColumns order.
func scanUser(row rowScanner) (*domain.User, error) {
	var (
		u                   domain.User
		id, projectID       string
		createdAt, env, dom string
	)
	if err := row.Scan(
		&id,
		&createdAt,
		&u.Login,
		&u.Password,
		&projectID,
		&env,
		&dom,
		&u.Locktime,
	); err != nil {
		return nil, err
	}

	var err error
	if u.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("malformed id %q: %w", id, err)
	}
	if u.ProjectID, err = uuid.Parse(projectID); err != nil {
		return nil, fmt.Errorf("malformed project_id %q: %w", projectID, err)
	}
	if u.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("malformed created_at %q: %w", createdAt, err)
	}
	u.Env = domain.Env(env)
	u.Domain = domain.Domain(dom)

	return &u, nil
}
