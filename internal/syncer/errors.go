package syncer

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

var (
	// ErrAlreadyInProgress rejects a request made while a cycle is running.
	ErrAlreadyInProgress = errors.New("sync already in progress")
	// ErrThrottled rejects an automatic request made too soon after the
	// previous attempt.
	ErrThrottled = errors.New("sync attempted too recently")
)

// PartialFailure reports a batch in which some records failed.
type PartialFailure struct {
	Succeeded int
	Failed    int
	Err       error
}

func (e *PartialFailure) Error() string {
	return fmt.Sprintf("%d of %d records failed: %v", e.Failed, e.Succeeded+e.Failed, e.Err)
}

// Unwrap exposes the individual record errors.
func (e *PartialFailure) Unwrap() []error {
	return multierr.Errors(e.Err)
}
