package banking

import (
	"context"
	"fmt"
	"sync"

	"github.com/kalambet/stepup/internal/elicitation"
)

// ResumeFunc completes one kind of suspended operation.
type ResumeFunc func(ctx context.Context, req elicitation.ResumeRequest) (elicitation.ResumeOutcome, error)

// Resumer dispatches resume requests to in-process operations by endpoint
// name.
type Resumer struct {
	mu  sync.RWMutex
	ops map[string]ResumeFunc
}

// NewResumer creates an empty registry.
func NewResumer() *Resumer {
	return &Resumer{ops: map[string]ResumeFunc{}}
}

// Register binds fn to endpoint, replacing any earlier binding.
func (r *Resumer) Register(endpoint string, fn ResumeFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops[endpoint] = fn
}

// Resume implements elicitation.Resumer.
func (r *Resumer) Resume(ctx context.Context, req elicitation.ResumeRequest) (elicitation.ResumeOutcome, error) {
	r.mu.RLock()
	fn, ok := r.ops[req.Endpoint]
	r.mu.RUnlock()
	if !ok {
		return elicitation.ResumeOutcome{}, fmt.Errorf("no resume operation registered for %q", req.Endpoint)
	}
	return fn(ctx, req)
}

var _ elicitation.Resumer = (*Resumer)(nil)
