package remote

import (
	"errors"
	"fmt"
)

// ErrUnavailable is returned when the availability gate is closed. No
// network I/O is attempted.
var ErrUnavailable = errors.New("remote sync unavailable")

// ErrMissingField is returned when a fetched record lacks a required field.
var ErrMissingField = errors.New("missing required field")

// TransportError tags a failed remote call with the operation that failed.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("remote %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
