// Package handler provides the HTTP surface of the botfarm service.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/prn-tf/botfarm/internal/domain"
	"github.com/prn-tf/botfarm/internal/service"
)

// UserHandler handles the /user endpoints.
type UserHandler struct {
	userService *service.UserService
	validate    *validator.Validate
	maxBodySize int64
	debug       bool
	logger      zerolog.Logger
}

// UserHandlerConfig contains configuration for the user handler.
type UserHandlerConfig struct {
	UserService *service.UserService
	MaxBodySize int64
	Debug       bool
	Logger      zerolog.Logger
}

// NewUserHandler creates a new user handler.
func NewUserHandler(cfg UserHandlerConfig) *UserHandler {
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = 1 << 20
	}
	return &UserHandler{
		userService: cfg.UserService,
		validate:    newValidator(),
		maxBodySize: cfg.MaxBodySize,
		debug:       cfg.Debug,
		logger:      cfg.Logger.With().Str("handler", "user").Logger(),
	}
}

// newValidator reports field errors under their JSON names. The anyuuid tag
// accepts every form uuid.Parse does, including upper case.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("anyuuid", func(fl validator.FieldLevel) bool {
		_, err := uuid.Parse(fl.Field().String())
		return err == nil
	})
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// =============================================================================
// Request / Response Types
// =============================================================================

// CreateUserRequest is the body of POST /user/create_user.
// Fields the server owns (created_at, locktime) are ignored if sent.
type CreateUserRequest struct {
	ID        string `json:"id" validate:"omitempty,anyuuid"`
	Login     string `json:"login" validate:"required,email"`
	Password  string `json:"password" validate:"required"`
	ProjectID string `json:"project_id" validate:"required,anyuuid"`
	Env       string `json:"env" validate:"required,oneof=prod preprod stage"`
	Domain    string `json:"domain" validate:"required,oneof=canary regular"`
}

// toInput converts a validated request into service input.
func (req CreateUserRequest) toInput() (service.CreateUserInput, error) {
	input := service.CreateUserInput{
		Login:    req.Login,
		Password: req.Password,
		Env:      domain.Env(req.Env),
		Domain:   domain.Domain(req.Domain),
	}

	var err error
	if input.ProjectID, err = uuid.Parse(req.ProjectID); err != nil {
		return input, fmt.Errorf("invalid project_id: %w", err)
	}
	if req.ID != "" {
		if input.ID, err = uuid.Parse(req.ID); err != nil {
			return input, fmt.Errorf("invalid id: %w", err)
		}
	}
	return input, nil
}

// LockResponse is returned by acquire_lock.
type LockResponse struct {
	Message       string `json:"message"`
	Locktime      int64  `json:"locktime"`
	AlreadyLocked bool   `json:"already_locked"`
}

// UnlockResponse is returned by release_lock.
type UnlockResponse struct {
	Message         string `json:"message"`
	Locktime        int64  `json:"locktime"`
	AlreadyUnlocked bool   `json:"already_unlocked"`
}

// =============================================================================
// Route Registration
// =============================================================================

// RegisterRoutes registers user routes.
func (h *UserHandler) RegisterRoutes(r chi.Router) {
	r.Route("/user", func(r chi.Router) {
		r.Post("/create_user", h.handleCreateUser)
		r.Get("/get_users", h.handleListUsers)
		r.Get("/get_user", h.handleGetUser)
		r.Post("/acquire_lock", h.handleAcquireLock)
		r.Post("/release_lock", h.handleReleaseLock)
	})
}

// =============================================================================
// Handlers
// =============================================================================

func (h *UserHandler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
		return
	}

	if err := h.validate.Struct(req); err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, validationDetail(err))
		return
	}

	input, err := req.toInput()
	if err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
		return
	}

	user, err := h.userService.CreateUser(r.Context(), input)
	if err != nil {
		writeServiceError(w, r, err, h.debug, h.logger)
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

func (h *UserHandler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.userService.ListUsers(r.Context())
	if err != nil {
		writeServiceError(w, r, err, h.debug, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, users)
}

func (h *UserHandler) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := h.userID(w, r)
	if !ok {
		return
	}

	user, err := h.userService.GetUser(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err, h.debug, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) handleAcquireLock(w http.ResponseWriter, r *http.Request) {
	id, ok := h.userID(w, r)
	if !ok {
		return
	}

	result, err := h.userService.AcquireLock(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err, h.debug, h.logger)
		return
	}

	resp := LockResponse{
		Message:       fmt.Sprintf("user %s locked", id),
		Locktime:      result.User.Locktime,
		AlreadyLocked: result.AlreadyLocked,
	}
	if result.AlreadyLocked {
		resp.Message = "user was already locked"
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *UserHandler) handleReleaseLock(w http.ResponseWriter, r *http.Request) {
	id, ok := h.userID(w, r)
	if !ok {
		return
	}

	result, err := h.userService.ReleaseLock(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err, h.debug, h.logger)
		return
	}

	resp := UnlockResponse{
		Message:         fmt.Sprintf("user %s unlocked", result.User.ID),
		Locktime:        result.User.Locktime,
		AlreadyUnlocked: result.AlreadyUnlocked,
	}
	if result.AlreadyUnlocked {
		resp.Message = "user was already unlocked"
	}

	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// Helper Methods
// =============================================================================

// userID parses the user_id query parameter, writing a 422 when it is
// missing or malformed.
func (h *UserHandler) userID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := r.URL.Query().Get("user_id")
	if raw == "" {
		writeError(w, r, http.StatusUnprocessableEntity, []FieldError{{Field: "user_id", Message: "field required"}})
		return uuid.Nil, false
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, []FieldError{{Field: "user_id", Message: "value is not a valid uuid"}})
		return uuid.Nil, false
	}
	return id, true
}

// decode reads a single JSON object from the bounded request body.
func (h *UserHandler) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return errors.New("request body is empty")
		case errors.As(err, &maxErr):
			return fmt.Errorf("request body exceeds %d bytes", maxErr.Limit)
		default:
			return fmt.Errorf("malformed JSON body: %v", err)
		}
	}

	if dec.More() {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}
