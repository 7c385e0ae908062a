// Package domain contains the core business entities for the botfarm service.
// These are plain Go structs describing farm user accounts and their lock state.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Env is the deployment environment a farm user belongs to.
type Env string

// Supported environments.
const (
	EnvProd    Env = "prod"
	EnvPreprod Env = "preprod"
	EnvStage   Env = "stage"
)

// Valid reports whether e is one of the supported environments.
func (e Env) Valid() bool {
	switch e {
	case EnvProd, EnvPreprod, EnvStage:
		return true
	}
	return false
}

// Domain is the traffic domain a farm user is used for.
type Domain string

// Supported domains.
const (
	DomainCanary  Domain = "canary"
	DomainRegular Domain = "regular"
)

// Valid reports whether d is one of the supported domains.
func (d Domain) Valid() bool {
	switch d {
	case DomainCanary, DomainRegular:
		return true
	}
	return false
}

// User represents a bot farm account.
//
// Locktime is the only lock signal: zero means the account is free, any positive
// value is the Unix time (seconds) at which the account was taken.
type User struct {
	// ID is the unique, immutable identifier of the account.
	ID uuid.UUID `json:"id"`

	// CreatedAt is set once when the account is created.
	CreatedAt time.Time `json:"created_at"`

	// Login is the account email address.
	Login string `json:"login"`

	// Password is stored and returned as supplied by the caller.
	Password string `json:"password"`

	// ProjectID groups accounts under a project.
	ProjectID uuid.UUID `json:"project_id"`

	Env    Env    `json:"env"`
	Domain Domain `json:"domain"`

	// Locktime is 0 when unlocked, otherwise the Unix time the lock was acquired.
	Locktime int64 `json:"locktime"`
}

// NewUser creates a new unlocked User stamped with the current time.
// A zero id is replaced with a freshly generated one.
func NewUser(id uuid.UUID, login, password string, projectID uuid.UUID, env Env, dom Domain) *User {
	if id == uuid.Nil {
		id = uuid.New()
	}
	return &User{
		ID:        id,
		CreatedAt: time.Now().UTC(),
		Login:     login,
		Password:  password,
		ProjectID: projectID,
		Env:       env,
		Domain:    dom,
		Locktime:  0,
	}
}

// IsLocked returns true if the account is currently taken.
func (u *User) IsLocked() bool {
	return u.Locktime != 0
}

// Clone returns a shallow copy of the user.
func (u *User) Clone() *User {
	c := *u
	return &c
}
