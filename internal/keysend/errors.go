package keysend

import (
	"errors"
	"fmt"
)

var (
	ErrDecode    = errors.New("keysend message decode failed")
	ErrTimestamp = errors.New("keysend resolve time not representable")
)

// DecodeError reports a message record that is not valid UTF-8.
type DecodeError struct {
	Len int
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%v: %d bytes are not valid utf-8", ErrDecode, e.Len)
}

func (e *DecodeError) Unwrap() error { return ErrDecode }

// TimestampError reports a resolve time that cannot be rendered as RFC3339.
type TimestampError struct {
	Unix int64
	Err  error
}

func (e *TimestampError) Error() string {
	return fmt.Sprintf("%v: %d: %v", ErrTimestamp, e.Unix, e.Err)
}

func (e *TimestampError) Unwrap() []error { return []error{ErrTimestamp, e.Err} }
