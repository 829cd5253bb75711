package handler

// Every error response has the same shape:
//
//	{"error": "conflict", "code": "duplicate_interaction", "message": "...", "field": "..."}
//
// "error" is the category, "code" the specific condition when there is one.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/memeboard/internal/apperror"
)

// ErrorResponse is the JSON body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// writeJSON sets headers and status before encoding the body; nothing
// written after the first body byte reaches the client.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps err to a status code and writes it. Anything that is not
// an *apperror.AppError is a 500 with a generic message; the real error is
// logged, never sent.
func writeError(w http.ResponseWriter, logger *slog.Logger, r *http.Request, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "An internal error occurred",
		})
		return
	}

	status, category := statusFor(err)
	writeJSON(w, status, ErrorResponse{
		Error:   category,
		Code:    appErr.Code(),
		Message: appErr.Message,
		Field:   appErr.Field,
	})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict, "conflict"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
