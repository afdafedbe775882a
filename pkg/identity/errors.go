package identity

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidFragment means neither an email nor a phone number was supplied.
	ErrInvalidFragment = errors.New("fragment must contain an email or a phone number")

	// ErrInconsistentCluster means the matched contacts lead to no primary.
	ErrInconsistentCluster = errors.New("matched contacts do not resolve to a primary contact")

	// ErrLockUnavailable means the per-value locks could not be taken before the wait ran out.
	ErrLockUnavailable = errors.New("contact lock unavailable")
)

// StoreError wraps a failure returned by the contact store.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("contact store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func storeError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// IsStoreError reports whether err came from the contact store.
func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}
