package elicitation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweeperRunOnce_ExpiresOnlyStale(t *testing.T) {
	env := newTestEnv(t)
	stale1 := env.create(t, "sess-1", otpSchema(), 60*time.Second)
	stale2 := env.create(t, "sess-2", confirmSchema(), 60*time.Second)
	fresh := env.create(t, "sess-1", otpSchema(), 600*time.Second)

	env.clock.Advance(120 * time.Second)

	sw := NewSweeper(env.manager, time.Second)
	n, err := sw.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Equal(t, StatusExpired, env.store.status(stale1.ID))
	assert.Equal(t, StatusExpired, env.store.status(stale2.ID))
	assert.Equal(t, StatusPending, env.store.status(fresh.ID))
	assert.Equal(t, []string{fresh.ID}, env.store.queued("sess-1"))
	assert.Empty(t, env.store.queued("sess-2"))
	assert.Len(t, env.notifier.events, 2)
	assert.Equal(t, 1, env.store.reaps)
}

func TestSweeperRunOnce_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, "sess-1", otpSchema(), 60*time.Second)
	env.clock.Advance(61 * time.Second)

	sw := NewSweeper(env.manager, time.Second)
	n, err := sw.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = sw.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSweeperRunOnce_SkipsClaimedRecords(t *testing.T) {
	env := newTestEnv(t)
	st := env.create(t, "sess-1", otpSchema(), 60*time.Second)
	env.clock.Advance(61 * time.Second)
	_, _ = env.store.UpdateStatus(context.Background(), st.ID, StatusProcessing)

	n, err := NewSweeper(env.manager, time.Second).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, StatusProcessing, env.store.status(st.ID))
}

func TestSweeperRunOnce_ListFailure(t *testing.T) {
	env := newTestEnv(t)
	env.store.findErr = errBoom

	_, err := NewSweeper(env.manager, time.Second).RunOnce(context.Background())
	assert.ErrorIs(t, err, errBoom)
}

func TestSweeperRun_StopsOnCancel(t *testing.T) {
	env := newTestEnv(t)
	sw := NewSweeper(env.manager, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sw.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		env.store.mu.Lock()
		defer env.store.mu.Unlock()
		return env.store.reaps >= 2
	}, time.Second, 5*time.Millisecond, "sweeper should cycle repeatedly")

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestNewSweeper_DefaultInterval(t *testing.T) {
	env := newTestEnv(t)
	assert.Equal(t, 30*time.Second, NewSweeper(env.manager, 0).interval)
}
