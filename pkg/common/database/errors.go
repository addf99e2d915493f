package database

import (
	"errors"
	"fmt"
)

// ErrStoreUnavailable marks failures talking to a backing store. Callers on
// request paths surface it immediately and never retry.
var ErrStoreUnavailable = errors.New("store unavailable")

// Unavailable wraps err so that errors.Is(err, ErrStoreUnavailable) holds.
func Unavailable(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
