package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMonitorRunsRegisteredTasks(t *testing.T) {
	m := NewMonitor(zap.NewNop())

	var runs atomic.Int64
	m.Register(Task{
		Name:     "counter",
		Interval: 5 * time.Millisecond,
		Critical: true,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	})

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	deadline := time.After(time.Second)
	for runs.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("task did not run, got %d", runs.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
	assert.True(t, m.Healthy())
}

func TestMonitorIsolatesPanics(t *testing.T) {
	m := NewMonitor(zap.NewNop())

	var healthyRuns atomic.Int64
	m.Register(Task{
		Name:     "panicky",
		Interval: 5 * time.Millisecond,
		Critical: true,
		Run: func(ctx context.Context) error {
			panic("boom")
		},
	})
	m.Register(Task{
		Name:     "steady",
		Interval: 5 * time.Millisecond,
		Critical: true,
		Run: func(ctx context.Context) error {
			healthyRuns.Add(1)
			return nil
		},
	})

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	deadline := time.After(time.Second)
	for healthyRuns.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("steady task starved by panicking sibling")
		case <-time.After(5 * time.Millisecond):
		}
	}

	assert.True(t, m.Healthy(), "a panicking task is still alive")
	for _, st := range m.Status() {
		if st.Name == "panicky" {
			assert.NotZero(t, st.Failures)
			assert.Contains(t, st.LastErr, "panic")
		}
	}
}

func TestMonitorCountsFailures(t *testing.T) {
	m := NewMonitor(zap.NewNop())

	var runs atomic.Int64
	m.Register(Task{
		Name:     "flaky",
		Interval: 5 * time.Millisecond,
		Run: func(ctx context.Context) error {
			if runs.Add(1)%2 == 0 {
				return errors.New("transient")
			}
			return nil
		},
	})

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	deadline := time.After(time.Second)
	for runs.Load() < 4 {
		select {
		case <-deadline:
			t.Fatalf("task did not run enough")
		case <-time.After(5 * time.Millisecond):
		}
	}

	st := m.Status()
	require.Len(t, st, 1)
	assert.NotZero(t, st[0].Failures)
	assert.Greater(t, st[0].Runs, st[0].Failures)
}

func TestMonitorStartStop(t *testing.T) {
	m := NewMonitor(zap.NewNop())
	m.Register(Task{
		Name:     "noop",
		Interval: time.Hour,
		Critical: true,
		Run:      func(ctx context.Context) error { return nil },
	})

	assert.False(t, m.Healthy(), "not healthy before start")
	require.NoError(t, m.Start(context.Background()))
	assert.Error(t, m.Start(context.Background()), "double start rejected")

	deadline := time.After(time.Second)
	for !m.Healthy() {
		select {
		case <-deadline:
			t.Fatalf("monitor did not become healthy")
		case <-time.After(5 * time.Millisecond):
		}
	}

	m.Stop()
	assert.False(t, m.Healthy())

	// Stop is idempotent.
	m.Stop()
}

func TestMonitorStopsOnContextCancel(t *testing.T) {
	m := NewMonitor(zap.NewNop())
	m.Register(Task{
		Name:     "noop",
		Interval: time.Hour,
		Critical: true,
		Run:      func(ctx context.Context) error { return nil },
	})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, m.Start(ctx))
	cancel()

	deadline := time.After(time.Second)
	for m.Healthy() {
		select {
		case <-deadline:
			t.Fatalf("task loops did not exit on context cancel")
		case <-time.After(5 * time.Millisecond):
		}
	}
}
