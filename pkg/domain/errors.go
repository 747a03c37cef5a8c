package domain

import (
	"errors"
	"fmt"
)

// DataIntegrityError reports records that cannot produce trustworthy
// frequencies: missing or negative counts, duplicate ids, zero totals.
type DataIntegrityError struct {
	Sample string
	Field  string
	Reason string
}

func (e *DataIntegrityError) Error() string {
	if e.Sample == "" {
		return fmt.Sprintf("data integrity: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("data integrity: sample %s: %s: %s", e.Sample, e.Field, e.Reason)
}

// FilterError reports a malformed FilterSpec.
type FilterError struct {
	Attribute Attribute
	Reason    string
}

func (e *FilterError) Error() string {
	return fmt.Sprintf("invalid filter on %q: %s", string(e.Attribute), e.Reason)
}

// ErrStoreUnavailable matches any StoreUnavailableError via errors.Is.
var ErrStoreUnavailable = errors.New("record store unavailable")

// StoreUnavailableError wraps a failure to reach the record store backend.
type StoreUnavailableError struct {
	Driver string
	Err    error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("%s store unavailable: %v", e.Driver, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrStoreUnavailable) succeed.
func (e *StoreUnavailableError) Is(target error) bool { return target == ErrStoreUnavailable }
