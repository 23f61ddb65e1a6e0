package elicitation

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/kalambet/stepup/internal/metrics"
)

// Handler applies a user's response to a pending elicitation and resumes the
// suspended operation. Resumption happens at most once per elicitation: the
// pending -> processing claim is a conditional write in the store.
type Handler struct {
	manager *Manager
	resumer Resumer
	logger  *slog.Logger
}

// NewHandler creates a Handler that resumes operations through r.
func NewHandler(m *Manager, r Resumer) *Handler {
	return &Handler{manager: m, resumer: r, logger: m.logger}
}

// HandleResponse validates resp against the stored record and, if it is still
// pending and fresh, runs the resume operation. Failed resumes are terminal;
// the caller has to start a new elicitation.
func (h *Handler) HandleResponse(ctx context.Context, resp Response) (Result, error) {
	id := resp.ElicitationID
	st, found, err := h.manager.Get(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if !found {
		h.logger.Warn("response for unknown elicitation", "elicitation_id", id)
		return Result{}, ErrNotFound
	}
	if st.Status != StatusPending {
		h.logger.Warn("response for non-pending elicitation", "elicitation_id", id, "status", string(st.Status))
		return Result{}, &InvalidStateError{ID: id, Status: st.Status}
	}
	if st.Expired(h.manager.clock.Now()) {
		ok, err := h.manager.expire(ctx, st)
		if err != nil {
			h.logger.Error("failed to mark elicitation expired", "elicitation_id", id, "error", err)
		} else if !ok {
			return Result{}, h.manager.currentStateError(ctx, id)
		}
		return Result{ElicitationID: id, Status: StatusExpired}, ErrExpired
	}

	if st.Schema.Declined(resp.UserInput) {
		if err := h.manager.Cancel(ctx, id, "Declined by user"); err != nil {
			return Result{}, err
		}
		return Result{ElicitationID: id, Status: StatusCancelled}, ErrDeclined
	}
	if err := st.Schema.ValidateInput(resp.UserInput); err != nil {
		return Result{}, err
	}
	if resp.BiometricToken == "" && st.Schema.BiometricRequired(resp.Platform) {
		return Result{}, &ValidationError{Problems: []string{"biometric verification is required on " + resp.Platform}}
	}

	ok, err := h.manager.swap(ctx, id, StatusPending, StatusProcessing)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return Result{}, h.manager.currentStateError(ctx, id)
	}

	args := maps.Clone(st.SuspendedArguments)
	if args == nil {
		args = map[string]any{}
	}
	maps.Copy(args, resp.UserInput)

	req := ResumeRequest{
		ElicitationID:      id,
		ToolCallID:         st.ToolCallID,
		Endpoint:           st.Endpoint,
		UserID:             st.UserID,
		RequiresCode:       st.Schema.RequiresCode,
		UserInput:          resp.UserInput,
		SuspendedArguments: st.SuspendedArguments,
		Arguments:          args,
		BiometricToken:     resp.BiometricToken,
	}

	h.logger.Info("resuming suspended operation", "elicitation_id", id, "endpoint", st.Endpoint)
	start := time.Now()
	outcome, err := h.resumer.Resume(ctx, req)
	if err != nil {
		outcome = ResumeOutcome{Success: false, Error: err.Error()}
	}
	metrics.RecordResume(st.Endpoint, outcome.Success, time.Since(start))

	// The operation has run; record its outcome even if the caller went away.
	ctx = context.WithoutCancel(ctx)
	if !outcome.Success {
		if _, err := h.manager.swap(ctx, id, StatusProcessing, StatusFailed); err != nil {
			h.logger.Error("failed to mark elicitation failed", "elicitation_id", id, "error", err)
		}
		h.logger.Warn("resume operation failed", "elicitation_id", id, "error", outcome.Error)
		return Result{ElicitationID: id, Status: StatusFailed, Payload: outcome.Payload},
			&ResumeError{ID: id, Message: outcome.Error, Payload: outcome.Payload}
	}

	res := Result{ElicitationID: id, Status: StatusCompleted, Payload: outcome.Payload}
	if _, err := h.manager.swap(ctx, id, StatusProcessing, StatusCompleted); err != nil {
		return res, fmt.Errorf("operation resumed but completion was not recorded: %w", err)
	}
	h.manager.dequeue(ctx, st)
	h.logger.Info("elicitation completed", "elicitation_id", id)
	return res, nil
}
