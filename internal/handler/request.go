package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/sakif/memeboard/internal/apperror"
)

// maxBodyBytes caps request bodies; the largest legitimate one is a meme.
const maxBodyBytes = 64 << 10

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	// Report JSON field names instead of Go field names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
}

// decodeJSON reads one JSON object into dst and runs its validate tags.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return apperror.ValidationFailed("", "request body is too large")
		case errors.Is(err, io.EOF):
			return apperror.ValidationFailed("", "request body is required")
		default:
			return apperror.ValidationFailed("", "request body is not valid JSON")
		}
	}

	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return apperror.ValidationFailed(fe.Field(), validationMessage(fe))
		}
		return fmt.Errorf("handler: validating request: %w", err)
	}
	return nil
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return "a valid email address is required"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "numeric":
		return fe.Field() + " must contain only digits"
	default:
		return fe.Field() + " is invalid"
	}
}

// idParam parses the {id} URL parameter.
func idParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperror.ValidationFailed("id", "id must be a positive integer")
	}
	return id, nil
}
