package api

import (
	"context"
	"log/slog"

	"github.com/kalambet/stepup/internal/elicitation"
)

// LogNotifier reports lifecycle events to the log so the voice layer's log
// shipper can relay them to the room.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a notifier writing to logger, or slog.Default().
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, e elicitation.Event) {
	attrs := []any{
		"kind", string(e.Kind),
		"elicitation_id", e.ElicitationID,
		"session_id", e.SessionID,
		"room_name", e.RoomName,
		"status", string(e.Status),
		"message", e.Message,
	}
	if e.Kind == elicitation.EventCodeIssued {
		attrs = append(attrs, "code", e.Code)
	}
	n.logger.InfoContext(ctx, "elicitation event", attrs...)
}
