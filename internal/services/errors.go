package services

import (
	"errors"
	"fmt"
)

// ErrNotFound marks lookups of missing playbooks, triggers, templates and
// channels. Handlers map it to 404.
var ErrNotFound = errors.New("not found")

// ValidationError rejects a malformed request before any record is created.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}

func validationErrorf(format string, args ...interface{}) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// UnknownActionError is returned when a step names an action type outside the
// closed set.
type UnknownActionError struct {
	ActionType string
}

func (e *UnknownActionError) Error() string {
	return fmt.Sprintf("unknown action type: %s", e.ActionType)
}

// IsValidation reports whether err should be answered with 400.
func IsValidation(err error) bool {
	var ve *ValidationError
	var ua *UnknownActionError
	return errors.As(err, &ve) || errors.As(err, &ua)
}
