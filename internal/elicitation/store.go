package elicitation

import (
	"context"
	"time"
)

// Store persists elicitation records. Implementations must make each method
// atomic per key; CompareAndSwapStatus in particular must be a single
// conditional write so concurrent handlers in different processes cannot
// both claim the same record.
type Store interface {
	// Save writes a new record and never overwrites one; an existing id
	// yields ErrDuplicate. ttl bounds how long the backend keeps it even if
	// nobody cleans it up.
	Save(ctx context.Context, st State, ttl time.Duration) error
	// Get returns ErrNotFound (wrapped or not) when the record is absent.
	Get(ctx context.Context, id string) (State, error)
	// UpdateStatus sets status unconditionally. It returns false if the record
	// does not exist. It does not check transition legality.
	UpdateStatus(ctx context.Context, id string, status Status) (bool, error)
	// CompareAndSwapStatus sets status to to only if it currently equals from.
	CompareAndSwapStatus(ctx context.Context, id string, from, to Status) (bool, error)
	Delete(ctx context.Context, id string) (bool, error)
	// FindExpired returns pending records whose deadline is before now.
	FindExpired(ctx context.Context, now time.Time) ([]string, error)
}

// Queue keeps the per-session order of outstanding elicitations.
type Queue interface {
	// Enqueue appends id and refreshes the session queue's TTL.
	Enqueue(ctx context.Context, sessionID, id string) error
	// Peek returns the oldest entry without removing it.
	Peek(ctx context.Context, sessionID string) (string, bool, error)
	// Remove drops every occurrence of id. Absent ids return false, nil.
	Remove(ctx context.Context, sessionID, id string) (bool, error)
	Len(ctx context.Context, sessionID string) (int, error)
}

// Reaper is implemented by backends without native key expiry. The sweeper
// calls it after each cycle.
type Reaper interface {
	Reap(ctx context.Context, now time.Time) (int, error)
}

// ResumeRequest is handed to the collaborator that completes the suspended
// operation.
type ResumeRequest struct {
	ElicitationID      string         `json:"elicitation_id"`
	ToolCallID         string         `json:"tool_call_id"`
	Endpoint           string         `json:"endpoint"`
	UserID             string         `json:"user_id"`
	RequiresCode       bool           `json:"requires_code"`
	UserInput          map[string]any `json:"user_input"`
	SuspendedArguments map[string]any `json:"suspended_arguments"`
	// Arguments is SuspendedArguments overlaid with UserInput.
	Arguments      map[string]any `json:"arguments"`
	BiometricToken string         `json:"biometric_token,omitempty"`
}

// ResumeOutcome is what the collaborator reports back. Payload is relayed to
// the user unmodified.
type ResumeOutcome struct {
	Success bool
	Payload map[string]any
	Error   string
}

// Resumer completes a suspended operation once the user has confirmed it.
// A returned error is treated the same as an unsuccessful outcome.
type Resumer interface {
	Resume(ctx context.Context, req ResumeRequest) (ResumeOutcome, error)
}

// Notifier is told about lifecycle events the user-facing layer may want to
// relay, such as an elicitation expiring in the background.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// EventKind tells notifiers what an Event carries.
type EventKind string

const (
	// EventStatusChanged reports a transition made outside a user response.
	EventStatusChanged EventKind = "status_changed"
	// EventCodeIssued delivers a one-time code to the user's room.
	EventCodeIssued EventKind = "code_issued"
)

// Event describes a status change or an out-of-band message for the user.
type Event struct {
	Kind          EventKind
	ElicitationID string
	SessionID     string
	RoomName      string
	Status        Status
	Message       string
	// Code is set on EventCodeIssued only.
	Code string
}
