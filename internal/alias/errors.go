package alias

import (
	"errors"
	"fmt"
)

var ErrAliasLookup = errors.New("alias lookup failed")

// LookupError describes a failed directory query for one pubkey.
type LookupError struct {
	Pubkey string
	// Status is the HTTP status code, 0 when no response was received.
	Status int
	Err    error
}

func (e *LookupError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%v: %s: http %d: %v", ErrAliasLookup, e.Pubkey, e.Status, e.Err)
	}
	return fmt.Sprintf("%v: %s: %v", ErrAliasLookup, e.Pubkey, e.Err)
}

func (e *LookupError) Unwrap() []error { return []error{ErrAliasLookup, e.Err} }
