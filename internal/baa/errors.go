package baa

import (
	"errors"
	"fmt"

	"github.com/sevarahealth/sevara/internal/models"
)

// ErrNotFound is returned when the referenced organization or agreement
// does not exist.
var ErrNotFound = errors.New("not found")

// ValidationError reports missing or malformed caller input. It is always
// recoverable by correcting the input and retrying; nothing is written
// before validation passes.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// InvalidTransitionError reports a state machine guard failure. Current
// carries the agreement's actual status so the caller can refresh its view.
type InvalidTransitionError struct {
	Attempted string
	Current   models.AgreementStatus
	Reason    string
}

func (e *InvalidTransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("cannot %s an agreement in status %q: %s", e.Attempted, e.Current, e.Reason)
	}
	return fmt.Sprintf("cannot %s an agreement in status %q", e.Attempted, e.Current)
}

// IsInvalidTransition reports whether err is an InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var te *InvalidTransitionError
	return errors.As(err, &te)
}

// DependencyError reports a collaborator failure, currently only from the
// document service. It never corrupts lifecycle state: an executed status
// is authoritative whether or not the rendered document is available.
type DependencyError struct {
	Op  string
	Err error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("document service %s failed: %v", e.Op, e.Err)
}

func (e *DependencyError) Unwrap() error { return e.Err }

// IsDependency reports whether err is a DependencyError.
func IsDependency(err error) bool {
	var de *DependencyError
	return errors.As(err, &de)
}
