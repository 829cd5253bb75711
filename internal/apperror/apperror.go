// Package apperror defines the errors the service layer hands back to callers.
//
// Every AppError carries a category (Err) that the HTTP layer maps to a status
// code, and optionally a Kind naming the specific condition. errors.Is matches
// both:
//
//	errors.Is(err, apperror.ErrConflict)             // category
//	errors.Is(err, apperror.ErrDuplicateInteraction) // kind
package apperror

import (
	"errors"
	"fmt"
)

// Categories.
var (
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("validation error")
	ErrConflict        = errors.New("conflict")
	ErrUnauthenticated = errors.New("unauthenticated")
)

// Kinds.
var (
	ErrEmptyContent         = errors.New("empty_content")
	ErrInvalidFormat        = errors.New("invalid_format")
	ErrInvalidType          = errors.New("invalid_type")
	ErrDuplicateInteraction = errors.New("duplicate_interaction")
	ErrHandleTaken          = errors.New("handle_taken")
	ErrInvalidCode          = errors.New("invalid_code")
)

type AppError struct {
	Err     error  // category
	Kind    error  // specific condition, may be nil
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match the Kind in addition to the unwrapped category.
func (e *AppError) Is(target error) bool {
	return e.Kind != nil && e.Kind == target
}

// Code is the machine-readable name of the condition: the kind when set,
// otherwise empty.
func (e *AppError) Code() string {
	if e.Kind == nil {
		return ""
	}
	return e.Kind.Error()
}

func NotFound(resource string, id any) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %v", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// EmptyContent rejects a meme whose content is blank after trimming.
func EmptyContent() *AppError {
	return &AppError{
		Err:     ErrValidation,
		Kind:    ErrEmptyContent,
		Message: "content must not be empty",
		Field:   "content",
	}
}

// InvalidFormat rejects a handle that does not satisfy the handle format rule.
func InvalidFormat(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Kind:    ErrInvalidFormat,
		Message: message,
		Field:   field,
	}
}

// InvalidType rejects an interaction type outside the fixed set.
func InvalidType(got string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Kind:    ErrInvalidType,
		Message: fmt.Sprintf("unknown interaction type %q", got),
		Field:   "type",
	}
}

// DuplicateInteraction reports that the (meme, user, type) triple is already recorded.
func DuplicateInteraction(memeID int64, typ string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Kind:    ErrDuplicateInteraction,
		Message: fmt.Sprintf("you already recorded %s on meme %d", typ, memeID),
	}
}

// HandleTaken reports that another user already owns the handle.
func HandleTaken(handle string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Kind:    ErrHandleTaken,
		Message: fmt.Sprintf("handle %q is already taken", handle),
		Field:   "handle",
	}
}

// Unauthenticated is returned when an operation needs a signed-in user.
func Unauthenticated() *AppError {
	return &AppError{
		Err:     ErrUnauthenticated,
		Message: "valid authentication required",
	}
}

// InvalidCode is returned when the identity provider rejects a login code.
func InvalidCode() *AppError {
	return &AppError{
		Err:     ErrUnauthenticated,
		Kind:    ErrInvalidCode,
		Message: "the code is invalid or has expired",
		Field:   "code",
	}
}
