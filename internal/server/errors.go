package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/jonathan/hirebot/internal/schemas"
	"github.com/jonathan/hirebot/internal/store"
)

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// ErrNotFound indicates the requested record does not exist
type ErrNotFound struct {
	What string
	ID   string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.What, e.ID)
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var (
		invalid   *ErrValidation
		notFound  *ErrNotFound
		schemaErr *schemas.ValidationError
		fieldsErr validator.ValidationErrors
		storeErr  *store.Error
	)
	switch {
	case errors.As(err, &invalid), errors.As(err, &schemaErr), errors.As(err, &fieldsErr):
		return http.StatusBadRequest
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &storeErr) && storeErr.Cause == nil:
		// store rejected the input before touching the backend
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
