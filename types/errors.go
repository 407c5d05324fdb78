package types

import (
	"errors"
	"fmt"
)

// ErrStoreUnavailable marks a backing store failure. It is fatal for the
// current batch or item; callers must not retry silently past it.
var ErrStoreUnavailable = errors.New("store unavailable")

// StoreUnavailable wraps err so that errors.Is(err, ErrStoreUnavailable)
// holds while the underlying cause stays inspectable.
func StoreUnavailable(store string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, store, err)
}

// ValidationError describes a malformed CandidateItem. Items failing
// validation are dropped and logged, never persisted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid item: %s %s", e.Field, e.Reason)
}

// ExternalCallError describes a failed call to an external provider
// (search, extraction, language model). Timeout distinguishes deadline
// expiry from other transport failures.
type ExternalCallError struct {
	Provider string
	Timeout  bool
	Err      error
}

func (e *ExternalCallError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s call timed out: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("%s call failed: %v", e.Provider, e.Err)
}

func (e *ExternalCallError) Unwrap() error { return e.Err }

// IsTimeout reports whether err is an external call that hit its deadline.
func IsTimeout(err error) bool {
	var ce *ExternalCallError
	return errors.As(err, &ce) && ce.Timeout
}
