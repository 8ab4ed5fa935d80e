package authflow

import "fmt"

// StateMismatchError means a callback could not be correlated with a
// pending authorization: none exists, or its state differs.
type StateMismatchError struct {
	UserID int64
}

func (e *StateMismatchError) Error() string {
	return fmt.Sprintf("authorization state mismatch for user %d", e.UserID)
}
