package domain

import (
	"errors"
	"fmt"
	"strings"

	"rallyup/backend/internal/store"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrMalformedData    = errors.New("malformed data")
	ErrPermissionDenied = errors.New("permission denied")
	ErrCapacityExceeded = errors.New("capacity exceeded")
	ErrWriteFailure     = errors.New("write failure")
	ErrBadRequest       = errors.New("bad request")
	ErrPartialFailure   = errors.New("partial failure")
)

func IsErrNotFound(err error) bool         { return errors.Is(err, ErrNotFound) }
func IsErrMalformedData(err error) bool    { return errors.Is(err, ErrMalformedData) }
func IsErrPermissionDenied(err error) bool { return errors.Is(err, ErrPermissionDenied) }
func IsErrCapacityExceeded(err error) bool { return errors.Is(err, ErrCapacityExceeded) }
func IsErrWriteFailure(err error) bool     { return errors.Is(err, ErrWriteFailure) }
func IsErrBadRequest(err error) bool       { return errors.Is(err, ErrBadRequest) }
func IsErrPartialFailure(err error) bool   { return errors.Is(err, ErrPartialFailure) }

// IsKnown reports whether err belongs to the taxonomy above.
func IsKnown(err error) bool {
	for _, k := range []error{ErrNotFound, ErrMalformedData, ErrPermissionDenied,
		ErrCapacityExceeded, ErrWriteFailure, ErrBadRequest, ErrPartialFailure} {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}

// PartialFailure reports a multi-step operation that applied some writes and
// failed on a later one. Applied writes are left in place.
type PartialFailure struct {
	Op        string
	Completed []string
	Failed    string
	Err       error
}

func (e *PartialFailure) Error() string {
	return fmt.Sprintf("%s: partial failure at %q after [%s]: %v",
		e.Op, e.Failed, strings.Join(e.Completed, ", "), e.Err)
}

func (e *PartialFailure) Unwrap() []error {
	return []error{ErrPartialFailure, e.Err}
}

// AsPartialFailure extracts a *PartialFailure from err.
func AsPartialFailure(err error) (*PartialFailure, bool) {
	var pf *PartialFailure
	ok := errors.As(err, &pf)
	return pf, ok
}

// WriteErr wraps a store write error. NotFound keeps its own kind.
func WriteErr(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	msg := fmt.Sprintf(format, args...)
	if store.IsErrNotFound(err) {
		return fmt.Errorf("%w: %s", ErrNotFound, msg)
	}
	return fmt.Errorf("%w: %s: %w", ErrWriteFailure, msg, err)
}

// ReadErr wraps a store read error.
func ReadErr(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	msg := fmt.Sprintf(format, args...)
	if store.IsErrNotFound(err) {
		return fmt.Errorf("%w: %s", ErrNotFound, msg)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Kind is a refinement of one of the taxonomy errors carrying its own
// user-visible text, e.g. "host cannot leave" under ErrPermissionDenied.
type Kind struct {
	text    string
	display string
	parent  error
}

func NewKind(parent error, text, display string) *Kind {
	return &Kind{text: text, display: display, parent: parent}
}

func (k *Kind) Error() string   { return k.text }
func (k *Kind) Unwrap() error   { return k.parent }
func (k *Kind) Display() string { return k.display }

// Message returns the user-visible text for an error's kind.
func Message(err error) string {
	var k *Kind
	switch {
	case err == nil:
		return ""
	case IsErrPartialFailure(err):
		return "Some changes were saved but the operation did not finish. Please try again."
	case errors.As(err, &k):
		return k.display
	case IsErrCapacityExceeded(err):
		return "This session is already full."
	case IsErrPermissionDenied(err):
		return "You don't have permission to do that."
	case IsErrMalformedData(err):
		return "This record is incomplete or corrupted and cannot be shown."
	case IsErrNotFound(err):
		return "We couldn't find what you were looking for."
	case IsErrBadRequest(err):
		return "Some of the information provided is invalid."
	case IsErrWriteFailure(err):
		return "We couldn't save your changes. Check your connection and try again."
	default:
		return "Something went wrong. Please try again."
	}
}
