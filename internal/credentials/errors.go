package credentials

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by a Backend when no record exists for a user.
	ErrNotFound = errors.New("credential record not found")

	// ErrNoPending means the user has no pending authorization.
	ErrNoPending = errors.New("no pending authorization")

	// ErrStateMismatch means the presented state does not match the pending one.
	ErrStateMismatch = errors.New("authorization state mismatch")

	// errCorrupt marks a record that cannot be decoded or decrypted.
	errCorrupt = errors.New("corrupt credential record")
)

// StorageError wraps a backend failure other than a missing record.
type StorageError struct {
	Op     string
	UserID int64
	Err    error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("credential storage %s for user %d: %v", e.Op, e.UserID, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
