package elicitation

import "fmt"

// Status is the lifecycle state of an elicitation.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusExpired    Status = "expired"
	StatusCancelled  Status = "cancelled"
)

// transitions lists every legal forward move. Terminal states have no entry.
var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusExpired, StatusCancelled},
	StatusProcessing: {StatusCompleted, StatusFailed},
}

// CanTransition reports whether a record may move from one status to another.
// It is the only place the state machine is encoded; the handler, the sweeper
// and cancellation all consult it before touching the store.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// ParseStatus converts a stored string back to a Status.
func ParseStatus(v string) (Status, error) {
	s := Status(v)
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusExpired, StatusCancelled:
		return s, nil
	}
	return "", fmt.Errorf("unknown elicitation status %q", v)
}
