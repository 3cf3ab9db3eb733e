package apperr

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by stores when a row is missing or soft-deleted.
var ErrNotFound = errors.New("not found")

// ValidationError rejects malformed input before anything is persisted.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NotFoundError names the entity that could not be resolved.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// MalformedMessageError marks a message body that is not a JSON object.
type MalformedMessageError struct {
	Err error
}

func (e *MalformedMessageError) Error() string {
	return fmt.Sprintf("malformed message: %v", e.Err)
}

func (e *MalformedMessageError) Unwrap() error { return e.Err }

// HandlerError wraps any failure raised inside an event handler.
type HandlerError struct {
	EventType string
	Err       error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handle %s: %v", e.EventType, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

func Validation(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

func NotFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// IsNotFound reports whether err is a NotFoundError or wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
