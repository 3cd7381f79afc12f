package service

import (
	"errors"
	"strings"

	"github.com/iudanet/finauth/internal/rbac"
	"github.com/iudanet/finauth/internal/server/storage"
)

// Domain errors. Handlers map them to HTTP statuses with errors.Is.
var (
	ErrValidation             = errors.New("validation error")
	ErrEmailTaken             = storage.ErrEmailTaken
	ErrUserNotFound           = storage.ErrUserNotFound
	ErrInvalidCredentials     = errors.New("incorrect email or password")
	ErrInvalidToken           = errors.New("invalid token")
	ErrInvalidAPIKey          = errors.New("invalid api key")
	ErrInactiveUser           = errors.New("inactive user")
	ErrWrongPassword          = errors.New("current password is incorrect")
	ErrInsufficientPermission = errors.New("insufficient permissions")
	ErrInvalidRole            = rbac.ErrInvalidRole
	ErrSelfDeactivation       = errors.New("cannot deactivate your own account")
)

// FieldError describes one invalid input field.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError collects every invalid field of a request.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Details(), "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Add appends a field error.
func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// Details returns "field: message" strings in insertion order.
func (e *ValidationError) Details() []string {
	out := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		out = append(out, f.Field+": "+f.Message)
	}
	return out
}

// OrNil returns e if any field failed, nil otherwise.
func (e *ValidationError) OrNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}
