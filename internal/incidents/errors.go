package incidents

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bissquit/incident-bot/internal/domain"
)

// Registry errors.
var (
	ErrIncidentNotFound  = errors.New("incident not found")
	ErrIncidentExists    = errors.New("incident already exists")
	ErrInvalidFieldValue = errors.New("invalid field value")
)

// Error kinds. Typed errors below match these with errors.Is.
var (
	ErrValidation   = errors.New("validation failed")
	ErrPrecondition = errors.New("precondition failed")
	ErrAdapter      = errors.New("external call failed")
	ErrStorage      = errors.New("storage failure")
)

// ValidationError reports bad input rejected before any state change.
type ValidationError struct {
	Field     string
	Message   string
	MaxLength int
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func validationf(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// PreconditionError reports a transition refused because of incident state.
type PreconditionError struct {
	MissingRoles []domain.RoleName
}

func (e *PreconditionError) Error() string {
	names := make([]string, 0, len(e.MissingRoles))
	for _, r := range e.MissingRoles {
		names = append(names, string(r))
	}
	return "cannot resolve incident: required roles unclaimed: " + strings.Join(names, ", ")
}

func (e *PreconditionError) Is(target error) bool {
	return target == ErrPrecondition
}

// AdapterError wraps a failed call to the chat platform or an external service.
type AdapterError struct {
	Op  string
	Err error
}

func (e *AdapterError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *AdapterError) Unwrap() error { return e.Err }

func (e *AdapterError) Is(target error) bool {
	return target == ErrAdapter
}

// StorageError wraps a failed registry read or write.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

// storageErr keeps ErrIncidentNotFound visible as is and wraps everything else.
func storageErr(op string, err error) error {
	if errors.Is(err, ErrIncidentNotFound) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
