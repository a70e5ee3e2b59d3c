package dispatch

import (
	"errors"
	"fmt"
)

// Validation reasons reported to callers. Recoverable locally: the caller
// reports the specific fix to the user and never retries automatically.
const (
	ReasonOdometerRegression = "odometer-regression"
	ReasonInvalidTransition  = "invalid-transition"
	ReasonNotYourDuty        = "not-your-duty"
	ReasonDriverUnavailable  = "driver-unavailable"
	ReasonMissingField       = "missing-field"
	ReasonAlreadyCompleted   = "already-completed"
	ReasonInvalidPairing     = "invalid-state-pairing"
)

// ErrForbidden rejects an operation the session's role may not perform.
var ErrForbidden = errors.New("forbidden")

// ValidationError means caller-supplied data violates a business invariant.
type ValidationError struct {
	Reason  string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed (%s): %s", e.Reason, e.Message)
}

func validationErr(reason, format string, args ...any) error {
	return &ValidationError{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a ValidationError, optionally with the
// given reason.
func IsValidation(err error, reason string) bool {
	var ve *ValidationError
	if !errors.As(err, &ve) {
		return false
	}
	return reason == "" || ve.Reason == reason
}

// SyncError wraps an underlying store or network failure. Surfaced to the
// user as a generic failure with a retry affordance; the core does not retry.
type SyncError struct {
	Op  string
	Err error
}

func (e *SyncError) Error() string { return fmt.Sprintf("sync failed during %s: %v", e.Op, e.Err) }
func (e *SyncError) Unwrap() error { return e.Err }

func syncErr(op string, err error) error {
	return &SyncError{Op: op, Err: err}
}
