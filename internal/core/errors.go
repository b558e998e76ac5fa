package core

import (
	"errors"
	"fmt"
)

// ErrDimensionMismatch is returned when two embedding vectors of different
// lengths are compared. The embedding dimensionality is fixed per deployment.
var ErrDimensionMismatch = errors.New("embedding vectors have different dimensions")

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrSourceNotFound       = errors.New("knowledge source not found")
)

// unrecoverableError marks a failure that must not be retried by the job
// layer, e.g. a referenced row that no longer exists.
type unrecoverableError struct {
	err error
}

func (e *unrecoverableError) Error() string {
	return fmt.Sprintf("unrecoverable: %v", e.err)
}

func (e *unrecoverableError) Unwrap() error {
	return e.err
}

// Unrecoverable wraps err so the job layer fails it terminally instead of
// scheduling a retry.
func Unrecoverable(err error) error {
	if err == nil {
		return nil
	}
	return &unrecoverableError{err: err}
}

func IsUnrecoverable(err error) bool {
	var ue *unrecoverableError
	return errors.As(err, &ue)
}
