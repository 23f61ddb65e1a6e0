package elicitation

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound means the record is absent or was reaped by its storage TTL.
	ErrNotFound = errors.New("elicitation not found or has expired")
	// ErrExpired means the response arrived after the deadline.
	ErrExpired = errors.New("elicitation has expired, please try again")
	// ErrDuplicate means a record with the same id already exists.
	ErrDuplicate = errors.New("elicitation already exists")
	// ErrDeclined means the user answered no to a confirmation.
	ErrDeclined = errors.New("confirmation declined by user")
)

// InvalidStateError is returned when a response targets a record that is no
// longer pending.
type InvalidStateError struct {
	ID     string
	Status Status
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("elicitation %s is %s, cannot process", e.ID, e.Status)
}

// ValidationError lists the fields that failed schema validation.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid input: " + strings.Join(e.Problems, "; ")
}

// ResumeError carries the downstream failure message. The record is left in
// the failed state and is never retried automatically.
type ResumeError struct {
	ID      string
	Message string
	Payload map[string]any
}

func (e *ResumeError) Error() string {
	return fmt.Sprintf("resume of elicitation %s failed: %s", e.ID, e.Message)
}
