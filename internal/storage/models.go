package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/kalambet/stepup/internal/elicitation"
)

// record is the flattened form of an elicitation.State shared by both
// backends. Nested values travel as JSON text.
type record struct {
	ID                 string
	ToolCallID         string
	Endpoint           string
	UserID             string
	SessionID          string
	RoomName           string
	Status             string
	SchemaJSON         string
	SuspendedArguments string
	CreatedAt          string
	ExpiresAt          string
}

func toRecord(st elicitation.State) (record, error) {
	schema, err := json.Marshal(st.Schema)
	if err != nil {
		return record{}, fmt.Errorf("encoding schema: %w", err)
	}
	args := st.SuspendedArguments
	if args == nil {
		args = map[string]any{}
	}
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return record{}, fmt.Errorf("encoding suspended arguments: %w", err)
	}
	return record{
		ID:                 st.ID,
		ToolCallID:         st.ToolCallID,
		Endpoint:           st.Endpoint,
		UserID:             st.UserID,
		SessionID:          st.SessionID,
		RoomName:           st.RoomName,
		Status:             string(st.Status),
		SchemaJSON:         string(schema),
		SuspendedArguments: string(argsJSON),
		CreatedAt:          st.CreatedAt.UTC().Format(time.RFC3339Nano),
		ExpiresAt:          st.ExpiresAt.UTC().Format(time.RFC3339Nano),
	}, nil
}

func (r record) state() (elicitation.State, error) {
	status, err := elicitation.ParseStatus(r.Status)
	if err != nil {
		return elicitation.State{}, err
	}
	st := elicitation.State{
		ID:         r.ID,
		ToolCallID: r.ToolCallID,
		Endpoint:   r.Endpoint,
		UserID:     r.UserID,
		SessionID:  r.SessionID,
		RoomName:   r.RoomName,
		Status:     status,
	}
	if err := json.Unmarshal([]byte(r.SchemaJSON), &st.Schema); err != nil {
		return elicitation.State{}, fmt.Errorf("decoding schema: %w", err)
	}
	if r.SuspendedArguments != "" {
		if err := json.Unmarshal([]byte(r.SuspendedArguments), &st.SuspendedArguments); err != nil {
			return elicitation.State{}, fmt.Errorf("decoding suspended arguments: %w", err)
		}
	}
	if st.CreatedAt, err = time.Parse(time.RFC3339Nano, r.CreatedAt); err != nil {
		return elicitation.State{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if st.ExpiresAt, err = time.Parse(time.RFC3339Nano, r.ExpiresAt); err != nil {
		return elicitation.State{}, fmt.Errorf("parsing expires_at: %w", err)
	}
	return st, nil
}

// fields returns the record as a Redis hash.
func (r record) fields() map[string]any {
	return map[string]any{
		"elicitation_id":           r.ID,
		"tool_call_id":             r.ToolCallID,
		"mcp_endpoint":             r.Endpoint,
		"user_id":                  r.UserID,
		"session_id":               r.SessionID,
		"room_name":                r.RoomName,
		"status":                   r.Status,
		"schema":                   r.SchemaJSON,
		"suspended_tool_arguments": r.SuspendedArguments,
		"created_at":               r.CreatedAt,
		"expires_at":               r.ExpiresAt,
	}
}

func recordFromHash(h map[string]string) record {
	return record{
		ID:                 h["elicitation_id"],
		ToolCallID:         h["tool_call_id"],
		Endpoint:           h["mcp_endpoint"],
		UserID:             h["user_id"],
		SessionID:          h["session_id"],
		RoomName:           h["room_name"],
		Status:             h["status"],
		SchemaJSON:         h["schema"],
		SuspendedArguments: h["suspended_tool_arguments"],
		CreatedAt:          h["created_at"],
		ExpiresAt:          h["expires_at"],
	}
}
