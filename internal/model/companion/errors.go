package companion

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by single-record lookups that matched nothing.
	ErrNotFound = errors.New("companion not found")
	// ErrNoRecord marks an insert that succeeded but returned no usable row.
	ErrNoRecord = errors.New("store returned no record")
	// ErrInvalidFields wraps validation failures of caller supplied fields.
	ErrInvalidFields = errors.New("invalid companion fields")
)

// StoreError reports a failed or malformed query against the record store.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// WrapStore tags err as a StoreError for op. ErrNotFound and errors that
// already carry a StoreError pass through untouched.
func WrapStore(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) {
		return err
	}
	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// CreationError reports that a companion could not be persisted.
type CreationError struct {
	Err error
}

func (e *CreationError) Error() string {
	return fmt.Sprintf("failed to create companion: %v", e.Err)
}

func (e *CreationError) Unwrap() error {
	return e.Err
}
