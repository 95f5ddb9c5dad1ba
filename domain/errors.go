package domain

import "errors"

// ErrNotFound is returned when a task or board record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConcurrencyConflict indicates that the underlying storage rejected a
// conditional write because a newer version of the record is persisted.
var ErrConcurrencyConflict = errors.New("concurrency conflict")

// ValidationError blocks a submission before anything is persisted.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// PersistenceError wraps a backend failure of a write or read. Message is the
// text shown to the user; Err keeps the cause for logs.
type PersistenceError struct {
	Op      string
	Message string
	Err     error
}

func (e *PersistenceError) Error() string {
	if e.Err == nil {
		return e.Op + ": " + e.Message
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Persistence wraps err as a PersistenceError unless it is nil or already
// one.
func Persistence(op, message string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Message: message, Err: err}
}
