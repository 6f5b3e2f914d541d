package forms

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a form or record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadySubmitted is returned when a fill session that already
	// produced a response is submitted again.
	ErrAlreadySubmitted = errors.New("response already submitted")

	// ErrInactive is returned when a deactivated form is opened for filling.
	ErrInactive = errors.New("form is not accepting responses")
)

// ValidationError reports input the actor has to correct. Problems holds
// the individual findings; Error only gives the aggregate message.
type ValidationError struct {
	Message  string
	Problems []string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Detail joins the message and the individual problems.
func (e *ValidationError) Detail() string {
	if len(e.Problems) == 0 {
		return e.Message
	}
	return e.Message + ": " + strings.Join(e.Problems, "; ")
}

func invalid(msg string, problems ...string) *ValidationError {
	return &ValidationError{Message: msg, Problems: problems}
}

// IndexError is returned when a field position is out of range.
type IndexError struct {
	Index int
	Len   int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("field index %d out of range [0,%d)", e.Index, e.Len)
}

// StorageError wraps a failure of the backing store.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsValidation reports whether err is, or wraps, a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsStorage reports whether err is, or wraps, a *StorageError.
func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
