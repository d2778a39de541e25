package pipeline

import (
	"errors"
	"fmt"
)

var ErrStreamTerminated = errors.New("settlement stream terminated")

// StreamTerminationError ends Run. Err is the cause reported by the source.
type StreamTerminationError struct {
	Err error
}

func (e *StreamTerminationError) Error() string {
	return fmt.Sprintf("%v: %v", ErrStreamTerminated, e.Err)
}

func (e *StreamTerminationError) Unwrap() []error { return []error{ErrStreamTerminated, e.Err} }

var errSourceClosed = errors.New("source closed without error")
