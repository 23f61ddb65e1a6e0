package elicitation

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// memStore is an in-memory Store, Queue and Reaper. Its CompareAndSwapStatus
// holds the mutex across read and write like a conditional UPDATE would.
type memStore struct {
	mu         sync.Mutex
	states     map[string]State
	ttls       map[string]time.Duration
	queues     map[string][]string
	enqueueErr error
	findErr    error
	reaps      int
	// beforeSwap runs ahead of every CompareAndSwapStatus, outside the lock.
	beforeSwap func(id string, to Status)
}

func newMemStore() *memStore {
	return &memStore{
		states: map[string]State{},
		ttls:   map[string]time.Duration{},
		queues: map[string][]string{},
	}
}

func (s *memStore) Save(_ context.Context, st State, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.states[st.ID]; ok {
		return ErrDuplicate
	}
	s.states[st.ID] = st
	s.ttls[st.ID] = ttl
	return nil
}

func (s *memStore) Get(_ context.Context, id string) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[id]
	if !ok {
		return State{}, ErrNotFound
	}
	return st, nil
}

func (s *memStore) UpdateStatus(_ context.Context, id string, status Status) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[id]
	if !ok {
		return false, nil
	}
	st.Status = status
	s.states[id] = st
	return true, nil
}

func (s *memStore) CompareAndSwapStatus(ctx context.Context, id string, from, to Status) (bool, error) {
	if s.beforeSwap != nil {
		s.beforeSwap(id, to)
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[id]
	if !ok || st.Status != from {
		return false, nil
	}
	st.Status = to
	s.states[id] = st
	return true, nil
}

func (s *memStore) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.states[id]
	delete(s.states, id)
	return ok, nil
}

func (s *memStore) FindExpired(_ context.Context, now time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	var ids []string
	for id, st := range s.states {
		if st.Status == StatusPending && st.Expired(now) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (s *memStore) Reap(context.Context, time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reaps++
	return 0, nil
}

func (s *memStore) Enqueue(_ context.Context, sessionID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enqueueErr != nil {
		return s.enqueueErr
	}
	s.queues[sessionID] = append(s.queues[sessionID], id)
	return nil
}

func (s *memStore) Peek(_ context.Context, sessionID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.queues[sessionID]
	if len(q) == 0 {
		return "", false, nil
	}
	return q[0], true, nil
}

func (s *memStore) Remove(ctx context.Context, sessionID, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.queues[sessionID]
	kept := slices.DeleteFunc(slices.Clone(q), func(v string) bool { return v == id })
	s.queues[sessionID] = kept
	return len(kept) != len(q), nil
}

func (s *memStore) Len(_ context.Context, sessionID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queues[sessionID]), nil
}

func (s *memStore) queued(sessionID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.queues[sessionID])
}

func (s *memStore) status(id string) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[id].Status
}

// fakeResumer records every request. If gate is non-nil each call blocks on
// it before returning; during is invoked after that.
type fakeResumer struct {
	mu       sync.Mutex
	requests []ResumeRequest
	outcome  ResumeOutcome
	err      error
	gate     chan struct{}
	during   func()
}

func (r *fakeResumer) Resume(_ context.Context, req ResumeRequest) (ResumeOutcome, error) {
	r.mu.Lock()
	r.requests = append(r.requests, req)
	r.mu.Unlock()
	if r.gate != nil {
		<-r.gate
	}
	if r.during != nil {
		r.during()
	}
	return r.outcome, r.err
}

func (r *fakeResumer) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.requests)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *recordingNotifier) Notify(_ context.Context, e Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

var errBoom = errors.New("boom")
