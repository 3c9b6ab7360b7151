package store

import (
	"errors"
	"fmt"
)

// UnavailableError reports that the durable store could not serve a
// request (missing file permissions, corrupted database, full disk).
//
// Callers must treat it as "no durable fallback available", not as a
// fatal condition: the data layer keeps working memory-only.
type UnavailableError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *UnavailableError) Error() string {
	return fmt.Sprintf("durable store unavailable: %s: %v", e.Op, e.Err)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// IsUnavailable returns true if the error is a durable-store availability
// failure. Uses errors.As to handle wrapped errors.
func IsUnavailable(err error) bool {
	var ue *UnavailableError
	return errors.As(err, &ue)
}

func unavailable(op string, err error) error {
	return &UnavailableError{Op: op, Err: err}
}
