package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task is one independently scheduled background job. Critical tasks count
// toward aggregate health.
type Task struct {
	Name     string
	Interval time.Duration
	Critical bool
	Run      func(ctx context.Context) error
}

type TaskStatus struct {
	Name     string
	Interval time.Duration
	Critical bool
	Running  bool
	Runs     uint64
	Failures uint64
	LastRun  time.Time
	LastErr  string
}

type taskState struct {
	Task

	mu       sync.Mutex
	running  bool
	runs     uint64
	failures uint64
	lastRun  time.Time
	lastErr  error
}

// Monitor drives the periodic engine tasks on independent tickers. A failure
// or panic in one task is caught, counted and logged without stopping the
// others.
type Monitor struct {
	log   *zap.Logger
	tasks []*taskState

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

func NewMonitor(log *zap.Logger) *Monitor {
	return &Monitor{log: log}
}

// Register adds a task. Must be called before Start.
func (m *Monitor) Register(t Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks = append(m.tasks, &taskState{Task: t})
}

func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return fmt.Errorf("monitor already started")
	}
	m.started = true
	m.stopCh = make(chan struct{})

	for _, ts := range m.tasks {
		m.wg.Add(1)
		go m.loop(ctx, ts)
	}
	m.log.Info("system monitor started", zap.Int("tasks", len(m.tasks)))
	return nil
}

func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	close(m.stopCh)
	m.mu.Unlock()

	m.wg.Wait()
	m.log.Info("system monitor stopped")
}

func (m *Monitor) loop(ctx context.Context, ts *taskState) {
	defer m.wg.Done()

	ts.mu.Lock()
	ts.running = true
	ts.mu.Unlock()
	defer func() {
		ts.mu.Lock()
		ts.running = false
		ts.mu.Unlock()
	}()

	ticker := time.NewTicker(ts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.runOnce(ctx, ts)
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (m *Monitor) runOnce(ctx context.Context, ts *taskState) {
	defer func() {
		if r := recover(); r != nil {
			ts.mu.Lock()
			ts.failures++
			ts.lastErr = fmt.Errorf("panic: %v", r)
			ts.mu.Unlock()
			m.log.Error("task panicked",
				zap.String("task", ts.Name),
				zap.Any("panic", r))
		}
	}()

	err := ts.Run(ctx)

	ts.mu.Lock()
	ts.runs++
	ts.lastRun = time.Now()
	ts.lastErr = err
	if err != nil {
		ts.failures++
	}
	ts.mu.Unlock()

	if err != nil {
		m.log.Warn("task failed",
			zap.String("task", ts.Name),
			zap.Error(err))
	}
}

// Healthy reports whether the monitor is started and every critical task
// loop is alive.
func (m *Monitor) Healthy() bool {
	m.mu.Lock()
	started := m.started
	tasks := m.tasks
	m.mu.Unlock()
	if !started {
		return false
	}
	for _, ts := range tasks {
		if !ts.Critical {
			continue
		}
		ts.mu.Lock()
		running := ts.running
		ts.mu.Unlock()
		if !running {
			return false
		}
	}
	return true
}

// Status snapshots every task's counters.
func (m *Monitor) Status() []TaskStatus {
	m.mu.Lock()
	tasks := m.tasks
	m.mu.Unlock()

	out := make([]TaskStatus, 0, len(tasks))
	for _, ts := range tasks {
		ts.mu.Lock()
		st := TaskStatus{
			Name:     ts.Name,
			Interval: ts.Interval,
			Critical: ts.Critical,
			Running:  ts.running,
			Runs:     ts.runs,
			Failures: ts.failures,
			LastRun:  ts.lastRun,
		}
		if ts.lastErr != nil {
			st.LastErr = ts.lastErr.Error()
		}
		ts.mu.Unlock()
		out = append(out, st)
	}
	return out
}

// LogStatus is itself registered as a periodic task to surface health.
func (m *Monitor) LogStatus(ctx context.Context) error {
	for _, st := range m.Status() {
		m.log.Info("task status",
			zap.String("task", st.Name),
			zap.Bool("running", st.Running),
			zap.Uint64("runs", st.Runs),
			zap.Uint64("failures", st.Failures),
			zap.Time("last_run", st.LastRun),
			zap.String("last_err", st.LastErr))
	}
	m.log.Info("system health", zap.Bool("healthy", m.Healthy()))
	return nil
}
