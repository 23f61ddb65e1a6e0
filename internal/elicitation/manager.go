// Package elicitation suspends tool calls that need out-of-band user
// confirmation and drives them through a small forward-only state machine.
package elicitation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/stepup/internal/metrics"
)

const (
	defaultTimeout   = DefaultTimeoutSeconds * time.Second
	defaultTTLBuffer = 60 * time.Second
)

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Options tunes a Manager. Zero values select defaults.
type Options struct {
	DefaultTimeout time.Duration
	// SupervisorTimeout replaces the schema timeout of supervisor approvals
	// when the caller does not pass one.
	SupervisorTimeout time.Duration
	// TTLBuffer is added to the timeout to form the storage TTL.
	TTLBuffer time.Duration
	Clock     Clock
	Logger    *slog.Logger
	Notifier  Notifier
}

// Manager owns creation, lookup and non-response transitions of elicitations.
// Build one at startup and pass it to whoever needs it.
type Manager struct {
	store             Store
	queue             Queue
	clock             Clock
	defaultTimeout    time.Duration
	supervisorTimeout time.Duration
	ttlBuffer         time.Duration
	logger            *slog.Logger
	notifier          Notifier
}

// NewManager creates a Manager over the given store and queue.
func NewManager(store Store, queue Queue, opts Options) *Manager {
	m := &Manager{
		store:             store,
		queue:             queue,
		clock:             opts.Clock,
		defaultTimeout:    opts.DefaultTimeout,
		supervisorTimeout: opts.SupervisorTimeout,
		ttlBuffer:         opts.TTLBuffer,
		logger:            opts.Logger,
		notifier:          opts.Notifier,
	}
	if m.clock == nil {
		m.clock = realClock{}
	}
	if m.defaultTimeout <= 0 {
		m.defaultTimeout = defaultTimeout
	}
	if m.ttlBuffer <= 0 {
		m.ttlBuffer = defaultTTLBuffer
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

// CreateParams carries everything needed to suspend a tool call.
type CreateParams struct {
	ToolCallID         string
	Endpoint           string
	UserID             string
	SessionID          string
	RoomName           string
	Schema             Schema
	SuspendedArguments map[string]any
	// Timeout overrides the schema's timeout when positive.
	Timeout time.Duration
}

// Create persists a pending elicitation and appends it to the session queue.
// The identifier comes from the schema and must be a UUID.
func (m *Manager) Create(ctx context.Context, p CreateParams) (State, error) {
	if _, err := uuid.Parse(p.Schema.ID); err != nil {
		return State{}, fmt.Errorf("elicitation id %q is not a UUID: %w", p.Schema.ID, err)
	}
	if !p.Schema.Type.Valid() {
		return State{}, fmt.Errorf("unknown elicitation type %q", p.Schema.Type)
	}
	if p.SessionID == "" {
		return State{}, errors.New("session id is required")
	}
	if p.Endpoint == "" {
		return State{}, errors.New("resume endpoint is required")
	}

	timeout := p.Timeout
	if timeout <= 0 && p.Schema.Type == TypeSupervisorApproval {
		timeout = m.supervisorTimeout
	}
	if timeout <= 0 && p.Schema.TimeoutSeconds > 0 {
		timeout = time.Duration(p.Schema.TimeoutSeconds) * time.Second
	}
	if timeout <= 0 {
		timeout = m.defaultTimeout
	}

	schema := p.Schema
	schema.TimeoutSeconds = int(timeout / time.Second)

	now := m.clock.Now().UTC()
	st := State{
		ID:                 schema.ID,
		ToolCallID:         p.ToolCallID,
		Endpoint:           p.Endpoint,
		UserID:             p.UserID,
		SessionID:          p.SessionID,
		RoomName:           p.RoomName,
		Status:             StatusPending,
		Schema:             schema,
		CreatedAt:          now,
		ExpiresAt:          now.Add(timeout),
		SuspendedArguments: maps.Clone(p.SuspendedArguments),
	}
	if st.SuspendedArguments == nil {
		st.SuspendedArguments = map[string]any{}
	}

	if err := m.store.Save(ctx, st, timeout+m.ttlBuffer); err != nil {
		return State{}, fmt.Errorf("storing elicitation %s: %w", st.ID, err)
	}
	if err := m.queue.Enqueue(ctx, st.SessionID, st.ID); err != nil {
		if _, delErr := m.store.Delete(ctx, st.ID); delErr != nil {
			m.logger.Error("failed to roll back elicitation", "elicitation_id", st.ID, "error", delErr)
		}
		return State{}, fmt.Errorf("queueing elicitation %s: %w", st.ID, err)
	}

	metrics.RecordCreated(string(schema.Type))
	m.logger.Info("elicitation created",
		"elicitation_id", st.ID,
		"session_id", st.SessionID,
		"type", string(schema.Type),
		"expires_at", st.ExpiresAt.Format(time.RFC3339),
	)
	return st, nil
}

// Get returns the record and true, or false when it does not exist.
func (m *Manager) Get(ctx context.Context, id string) (State, bool, error) {
	st, err := m.store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return State{}, false, nil
	}
	if err != nil {
		return State{}, false, fmt.Errorf("loading elicitation %s: %w", id, err)
	}
	return st, true, nil
}

// Next returns the oldest outstanding elicitation for a session. Queue entries
// whose records are gone or already terminal are pruned on the way.
func (m *Manager) Next(ctx context.Context, sessionID string) (State, bool, error) {
	n, err := m.queue.Len(ctx, sessionID)
	if err != nil {
		return State{}, false, fmt.Errorf("reading queue length: %w", err)
	}
	for range n {
		id, ok, err := m.queue.Peek(ctx, sessionID)
		if err != nil {
			return State{}, false, fmt.Errorf("peeking queue: %w", err)
		}
		if !ok {
			break
		}
		st, found, err := m.Get(ctx, id)
		if err != nil {
			return State{}, false, err
		}
		if found && !st.Status.Terminal() {
			return st, true, nil
		}
		if _, err := m.queue.Remove(ctx, sessionID, id); err != nil {
			return State{}, false, fmt.Errorf("pruning queue: %w", err)
		}
	}
	return State{}, false, nil
}

// QueueLength reports how many elicitations are queued for a session.
func (m *Manager) QueueLength(ctx context.Context, sessionID string) (int, error) {
	return m.queue.Len(ctx, sessionID)
}

// FindExpired lists pending elicitations whose deadline has passed.
func (m *Manager) FindExpired(ctx context.Context) ([]string, error) {
	return m.store.FindExpired(ctx, m.clock.Now().UTC())
}

// Expire moves a pending elicitation to expired and dequeues it. It returns
// false if the record is missing or no longer pending.
func (m *Manager) Expire(ctx context.Context, id string) (bool, error) {
	st, found, err := m.Get(ctx, id)
	if err != nil || !found {
		return false, err
	}
	return m.expire(ctx, st)
}

func (m *Manager) expire(ctx context.Context, st State) (bool, error) {
	ok, err := m.swap(ctx, st.ID, StatusPending, StatusExpired)
	if err != nil || !ok {
		return false, err
	}
	m.dequeue(ctx, st)
	m.notify(ctx, st, StatusExpired, "Elicitation has expired. Please try again.")
	m.logger.Info("elicitation expired", "elicitation_id", st.ID, "session_id", st.SessionID)
	return true, nil
}

// Cancel moves a pending elicitation to cancelled. A record whose resume is
// already in flight cannot be cancelled.
func (m *Manager) Cancel(ctx context.Context, id, reason string) error {
	st, found, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}
	if !CanTransition(st.Status, StatusCancelled) {
		return &InvalidStateError{ID: id, Status: st.Status}
	}
	ok, err := m.swap(ctx, id, st.Status, StatusCancelled)
	if err != nil {
		return err
	}
	if !ok {
		return m.currentStateError(ctx, id)
	}
	if reason == "" {
		reason = "Cancelled by system"
	}
	m.dequeue(ctx, st)
	m.notify(ctx, st, StatusCancelled, reason)
	m.logger.Info("elicitation cancelled", "elicitation_id", id, "reason", reason)
	return nil
}

// Delete removes a record and its queue entry.
func (m *Manager) Delete(ctx context.Context, id string) (bool, error) {
	st, found, err := m.Get(ctx, id)
	if err != nil || !found {
		return false, err
	}
	m.dequeue(ctx, st)
	ok, err := m.store.Delete(ctx, id)
	if err != nil {
		return false, fmt.Errorf("deleting elicitation %s: %w", id, err)
	}
	return ok, nil
}

// swap performs a checked, atomic status change.
func (m *Manager) swap(ctx context.Context, id string, from, to Status) (bool, error) {
	if !CanTransition(from, to) {
		return false, fmt.Errorf("illegal transition %s -> %s for elicitation %s", from, to, id)
	}
	ok, err := m.store.CompareAndSwapStatus(ctx, id, from, to)
	if err != nil {
		return false, fmt.Errorf("updating elicitation %s to %s: %w", id, to, err)
	}
	if ok {
		metrics.RecordTransition(string(to))
	}
	return ok, nil
}

func (m *Manager) currentStateError(ctx context.Context, id string) error {
	st, found, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}
	return &InvalidStateError{ID: id, Status: st.Status}
}

func (m *Manager) dequeue(ctx context.Context, st State) {
	if _, err := m.queue.Remove(ctx, st.SessionID, st.ID); err != nil {
		m.logger.Warn("failed to remove elicitation from queue",
			"elicitation_id", st.ID, "session_id", st.SessionID, "error", err)
	}
}

func (m *Manager) notify(ctx context.Context, st State, status Status, msg string) {
	if m.notifier == nil {
		return
	}
	m.notifier.Notify(ctx, Event{
		Kind:          EventStatusChanged,
		ElicitationID: st.ID,
		SessionID:     st.SessionID,
		RoomName:      st.RoomName,
		Status:        status,
		Message:       msg,
	})
}
