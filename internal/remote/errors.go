package remote

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a remote-store failure. The classification decides the
// recovery path: Transient failures are retried and may be queued,
// Permanent failures surface to the caller, Cancelled halts the
// surrounding operation tree without counting as a failure.
type Kind string

const (
	// KindCancelled indicates the operation's context was cancelled.
	KindCancelled Kind = "CANCELLED"

	// KindTransient indicates a likely-temporary failure: transport
	// error, unreachable host, or a remote status >= 500.
	KindTransient Kind = "TRANSIENT"

	// KindPermanent indicates a failure retrying cannot fix: validation
	// errors and other non-auth 4xx statuses.
	KindPermanent Kind = "PERMANENT"

	// KindUnauthenticated indicates no resolvable session (401/403).
	KindUnauthenticated Kind = "UNAUTHENTICATED"
)

// Error is the classified failure returned by every remote call.
//
// Internal code branches on Kind via the IsX helpers - never on status
// codes or error strings.
type Error struct {
	Kind   Kind
	Op     string // "select", "upsert", "delete", "rpc", "upload"
	Table  string
	Status int // HTTP status if the remote answered, 0 otherwise
	Err    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: remote %s %s: status %d: %v", e.Kind, e.Op, e.Table, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: remote %s %s: %v", e.Kind, e.Op, e.Table, e.Err)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsCancelled returns true if the error is a cancellation.
// Uses errors.As to handle wrapped errors.
func IsCancelled(err error) bool {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind == KindCancelled
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// IsTransient returns true if the error is retry-eligible.
func IsTransient(err error) bool {
	var re *Error
	return errors.As(err, &re) && re.Kind == KindTransient
}

// IsPermanent returns true if the error cannot be fixed by retrying.
func IsPermanent(err error) bool {
	var re *Error
	return errors.As(err, &re) && re.Kind == KindPermanent
}

// IsUnauthenticated returns true if the remote rejected the session.
func IsUnauthenticated(err error) bool {
	var re *Error
	return errors.As(err, &re) && re.Kind == KindUnauthenticated
}

// Classify wraps err with the Kind derived from the call outcome.
// ctx errors win over everything: a request torn down by cancellation
// must never be mistaken for a network failure. Shared with the asset
// store adapter, which maps storage statuses through the same taxonomy.
func Classify(ctx context.Context, op, table string, status int, err error) *Error {
	kind := KindTransient
	switch {
	case ctx.Err() != nil, errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		kind = KindCancelled
	case status == 401 || status == 403:
		kind = KindUnauthenticated
	case status >= 500:
		kind = KindTransient
	case status >= 400:
		kind = KindPermanent
	}
	return &Error{Kind: kind, Op: op, Table: table, Status: status, Err: err}
}
