package service

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies why a booking operation was rejected.  Callers
// branch on the kind: contention is worth retrying with backoff,
// unavailability is not, and a duplicate in flight means "wait and poll".
type ErrorKind string

const (
	KindDuplicateInFlight ErrorKind = "DUPLICATE_IN_FLIGHT"
	KindSeatsContended    ErrorKind = "SEATS_CONTENDED"
	KindSeatsUnavailable  ErrorKind = "SEATS_UNAVAILABLE"
	KindTransactionFailed ErrorKind = "TRANSACTION_FAILED"
	KindNotFound          ErrorKind = "NOT_FOUND"
	KindForbidden         ErrorKind = "FORBIDDEN"
	KindAlreadyFinal      ErrorKind = "ALREADY_FINAL"
	KindInvalidInput      ErrorKind = "INVALID_INPUT"
)

// BookingError is the error type returned by BookingService.  SeatIDs is
// set for SEATS_UNAVAILABLE and lists the offending seats.
type BookingError struct {
	Kind    ErrorKind
	SeatIDs []uint64
	Detail  string
	Err     error
}

func (e *BookingError) Error() string {
	var b strings.Builder
	b.WriteString(strings.ToLower(strings.ReplaceAll(string(e.Kind), "_", " ")))
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if len(e.SeatIDs) > 0 {
		fmt.Fprintf(&b, " (seats %v)", e.SeatIDs)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *BookingError) Unwrap() error { return e.Err }

// Is matches any BookingError of the same kind, so errors.Is(err,
// ErrSeatsUnavailable) works regardless of detail.
func (e *BookingError) Is(target error) bool {
	t, ok := target.(*BookingError)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrDuplicateInFlight = &BookingError{Kind: KindDuplicateInFlight}
	ErrSeatsContended    = &BookingError{Kind: KindSeatsContended}
	ErrSeatsUnavailable  = &BookingError{Kind: KindSeatsUnavailable}
	ErrTransactionFailed = &BookingError{Kind: KindTransactionFailed}
	ErrNotFound          = &BookingError{Kind: KindNotFound}
	ErrForbidden         = &BookingError{Kind: KindForbidden}
	ErrAlreadyFinal      = &BookingError{Kind: KindAlreadyFinal}
	ErrInvalidInput      = &BookingError{Kind: KindInvalidInput}
)

func newError(kind ErrorKind, detail string, err error) *BookingError {
	return &BookingError{Kind: kind, Detail: detail, Err: err}
}

func unavailable(seatIDs []uint64, detail string) *BookingError {
	return &BookingError{Kind: KindSeatsUnavailable, SeatIDs: seatIDs, Detail: detail}
}

func invalid(format string, args ...interface{}) *BookingError {
	return &BookingError{Kind: KindInvalidInput, Detail: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first BookingError in err's chain, or
// KindTransactionFailed for any other non-nil error.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var be *BookingError
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindTransactionFailed
}
