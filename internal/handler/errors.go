package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/prn-tf/botfarm/internal/domain"
	"github.com/prn-tf/botfarm/internal/service"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error      string `json:"error"`
	StatusCode int    `json:"status_code"`
	Detail     any    `json:"detail"`
	Path       string `json:"path"`
	Method     string `json:"method"`
}

// FieldError describes one rejected request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

const genericErrorDetail = "An unexpected error occurred"

// writeJSON writes v as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the error envelope for a client-facing error.
func writeError(w http.ResponseWriter, r *http.Request, status int, detail any) {
	title := "HTTP Error"
	if status >= http.StatusInternalServerError {
		title = http.StatusText(status)
	}
	writeJSON(w, status, ErrorResponse{
		Error:      title,
		StatusCode: status,
		Detail:     detail,
		Path:       r.URL.Path,
		Method:     r.Method,
	})
}

// writeInternalError writes a 500 envelope. The underlying error is only
// exposed when debug is enabled.
func writeInternalError(w http.ResponseWriter, r *http.Request, err error, debug bool, logger zerolog.Logger) {
	logger.Error().
		Err(err).
		Str("path", r.URL.Path).
		Str("method", r.Method).
		Str("request_id", RequestIDFromContext(r.Context())).
		Msg("unhandled error")

	detail := genericErrorDetail
	if debug {
		detail = err.Error()
	}
	writeError(w, r, http.StatusInternalServerError, detail)
}

// writeServiceError maps service and domain errors to HTTP status codes.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, debug bool, logger zerolog.Logger) {
	switch {
	case errors.Is(err, service.ErrUserNotFound):
		writeError(w, r, http.StatusNotFound, "User not found")
	case errors.Is(err, service.ErrUserAlreadyExists):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrInvalidEmail),
		errors.Is(err, service.ErrInvalidPassword),
		errors.Is(err, service.ErrInvalidProjectID),
		errors.Is(err, domain.ErrInvalidEnv),
		errors.Is(err, domain.ErrInvalidDomain):
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
	default:
		writeInternalError(w, r, err, debug, logger)
	}
}

// validationDetail converts validator errors into per-field messages.
func validationDetail(err error) any {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}

	fields := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, FieldError{
			Field:   fe.Field(),
			Message: fieldMessage(fe),
		})
	}
	return fields
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "field required"
	case "email":
		return "value is not a valid email address"
	case "uuid", "anyuuid":
		return "value is not a valid uuid"
	case "oneof":
		return "value must be one of: " + fe.Param()
	default:
		return "invalid value"
	}
}
