// Package apperr defines the stable, inspectable error kinds surfaced by the
// notification core. The REST layer maps kinds to HTTP status families; inside
// the core they decide rollback vs. pass-through.
package apperr

import (
	"fmt"

	"github.com/pkg/errors"
)

type Kind int

const (
	KindUnknown Kind = iota
	// KindStore is an underlying data-access failure (connectivity,
	// constraint violation), wrapped with the failed operation's context.
	KindStore
	// KindTransaction is a failure to begin, commit or roll back.
	KindTransaction
	// KindConfigNotFound, KindConfigInvalid and KindConfigConflict are the
	// configuration-error variants. They are never retried.
	KindConfigNotFound
	KindConfigInvalid
	KindConfigConflict
	// KindArchival is a failure during the multi-step archival run.
	KindArchival
	// KindDelivery is a publish or subscribe failure in the delivery broker.
	KindDelivery
)

func (k Kind) String() string {
	switch k {
	case KindStore:
		return "store"
	case KindTransaction:
		return "transaction"
	case KindConfigNotFound:
		return "config-not-found"
	case KindConfigInvalid:
		return "config-invalid"
	case KindConfigConflict:
		return "config-conflict"
	case KindArchival:
		return "archival"
	case KindDelivery:
		return "delivery"
	}
	return "unknown"
}

// Error carries a kind, a message and the preserved cause.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// KindOf returns the kind of err, or KindUnknown if err carries none.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Store wraps a data-access failure with the operation that hit it.
func Store(op string, cause error) error {
	return &Error{Kind: KindStore, Msg: op, Cause: errors.WithStack(cause)}
}

// Transaction wraps a begin/commit/rollback failure.
func Transaction(op string, cause error) error {
	return &Error{Kind: KindTransaction, Msg: op, Cause: errors.WithStack(cause)}
}

// ConfigNotFound marks a missing configuration document or entry.
func ConfigNotFound(msg string) error {
	return &Error{Kind: KindConfigNotFound, Msg: msg}
}

// ConfigInvalid marks a malformed document or a validation failure.
func ConfigInvalid(msg string, cause error) error {
	return &Error{Kind: KindConfigInvalid, Msg: msg, Cause: cause}
}

// ConfigInvalidf is ConfigInvalid with formatting and no cause.
func ConfigInvalidf(format string, args ...interface{}) error {
	return &Error{Kind: KindConfigInvalid, Msg: fmt.Sprintf(format, args...)}
}

// ConfigConflict marks a duplicate config or a concurrent-update version
// mismatch; the stored list is left unchanged.
func ConfigConflict(msg string) error {
	return &Error{Kind: KindConfigConflict, Msg: msg}
}

// Delivery wraps a publish or subscribe failure of the delivery broker.
func Delivery(op string, cause error) error {
	return &Error{Kind: KindDelivery, Msg: op, Cause: errors.WithStack(cause)}
}

// Archival wraps a failure of the archival run with the tenant and the step at
// which it occurred.
func Archival(tenantID int, step string, cause error) error {
	return &Error{
		Kind:  KindArchival,
		Msg:   fmt.Sprintf("tenant %d: %s", tenantID, step),
		Cause: errors.WithStack(cause),
	}
}
