package fault

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Kind is the closed set of machine-checkable error categories returned by
// the bidding and lifecycle services. Callers branch on Kind, never on
// message text.
type Kind string

const (
	// KindValidation covers malformed or out-of-bounds input.
	KindValidation Kind = "VALIDATION"
	// KindState covers operations illegal for the current auction or bid status.
	KindState Kind = "STATE"
	// KindNotFound covers missing auctions, items, bids, or accounts.
	KindNotFound Kind = "NOT_FOUND"
	// KindAuthorization covers ownership violations, including self-bidding.
	KindAuthorization Kind = "AUTHORIZATION"
	// KindConflict covers lost races; the caller may retry with fresh state.
	KindConflict Kind = "CONFLICT"
)

// Error carries a Kind alongside a human-readable message and optional cause.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Msg + ": " + e.Cause.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a kinded error with a fixed message.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// Errorf builds a kinded error with a formatted message. A trailing %w verb
// captures the cause for errors.Is/As chains.
func Errorf(kind Kind, format string, args ...any) error {
	wrapped := fmt.Errorf(format, args...)
	return &Error{Kind: kind, Msg: wrapped.Error(), Cause: errors.Unwrap(wrapped)}
}

// KindOf extracts the Kind from err's chain, or "" if err is not kinded.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// Is reports whether err carries the given kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// FromPg maps PostgreSQL error codes onto the taxonomy: unique-index hits on
// the single-active-bid backstop and lock-order aborts both mean the caller
// lost a race and may retry. Other errors pass through untouched.
func FromPg(err error, msg string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation, pgSerializationFailure, pgDeadlockDetected:
			return &Error{Kind: KindConflict, Msg: msg, Cause: err}
		}
	}
	return err
}
