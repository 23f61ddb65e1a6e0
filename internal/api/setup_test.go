package api

import (
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/kalambet/stepup/internal/auth"
	"github.com/kalambet/stepup/internal/banking"
	"github.com/kalambet/stepup/internal/elicitation"
	"github.com/kalambet/stepup/internal/storage"
)

const testSecret = "test-secret-12345"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	deps  Deps
	clock *testClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	clock := &testClock{now: time.Now().UTC()}
	logger := slog.New(slog.DiscardHandler)
	m := elicitation.NewManager(store, store, elicitation.Options{
		Clock:    clock,
		Logger:   logger,
		Notifier: NewLogNotifier(logger),
	})
	ledger := banking.NewLedger()
	payments := banking.NewPayments(m, ledger, banking.NewOTPIssuer("123456"))
	resumer := banking.NewResumer()
	payments.Register(resumer)

	v, err := auth.NewVerifier(testSecret, "")
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}

	return &testEnv{
		deps: Deps{
			Manager:  m,
			Handler:  elicitation.NewHandler(m, resumer),
			Payments: payments,
			Ledger:   ledger,
			Verifier: v,
		},
		clock: clock,
	}
}

func (e *testEnv) token(t *testing.T, userID string, scopes ...string) string {
	t.Helper()
	tok, err := e.deps.Verifier.Issue(userID, scopes, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return tok
}

// initiate starts a payment for userID and returns the elicitation.
func (e *testEnv) initiate(t *testing.T, userID string, amount float64) elicitation.State {
	t.Helper()
	st, err := e.deps.Payments.Initiate(t.Context(), banking.PaymentRequest{
		UserID:      userID,
		SessionID:   "sess-" + userID,
		FromAccount: "savings",
		ToAccount:   "Acme Utilities",
		Amount:      amount,
	})
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	return st
}
