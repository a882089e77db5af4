package core

// run_limiter.go serializes ETL runs.
//
// A run reads the whole batch into memory and appends to the destination
// table, so runs triggered from HTTP and the directory watcher share one
// weighted semaphore with one unit per run. A run that cannot get a unit
// within maxWait fails with ErrRunBusy. WaitForDrain takes every unit,
// which queues behind the active runs and ahead of any later ones.

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// DefaultMaxConcurrentRuns is the default number of simultaneous runs.
const DefaultMaxConcurrentRuns = 1

// DefaultRunWait is how long to wait for a slot before rejecting.
const DefaultRunWait = 30 * time.Second

// ActiveRun describes a run holding a slot.
type ActiveRun struct {
	RunID     string    `json:"run_id"`
	Input     string    `json:"input"`
	StartedAt time.Time `json:"started_at"`
}

// RunLimiter bounds the number of ETL runs executing at once and tracks
// which runs hold a slot.
type RunLimiter struct {
	sem     *semaphore.Weighted
	slots   int64
	maxWait time.Duration

	mu   sync.Mutex
	runs map[string]ActiveRun
}

// NewRunLimiter creates a limiter that allows at most maxConcurrent runs.
func NewRunLimiter(maxConcurrent int, maxWait time.Duration) *RunLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentRuns
	}
	if maxWait <= 0 {
		maxWait = DefaultRunWait
	}

	return &RunLimiter{
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		slots:   int64(maxConcurrent),
		maxWait: maxWait,
		runs:    make(map[string]ActiveRun),
	}
}

// Acquire waits for a slot for run. It returns ErrRunBusy when the wait
// times out and the context error when ctx ends first. On success the
// returned release func frees the slot; calling it more than once is a
// no-op.
func (l *RunLimiter) Acquire(ctx context.Context, run ActiveRun) (release func(), err error) {
	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	if err := l.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrRunBusy
		}
		return nil, err
	}

	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	l.mu.Lock()
	l.runs[run.RunID] = run
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.runs, run.RunID)
			l.mu.Unlock()
			l.sem.Release(1)
		})
	}, nil
}

// ActiveCount returns the number of runs in progress.
func (l *RunLimiter) ActiveCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.runs)
}

// WaitForDrain blocks until every active run has released its slot or ctx
// ends. Runs that ask for a slot while it waits queue behind it.
func (l *RunLimiter) WaitForDrain(ctx context.Context) error {
	if err := l.sem.Acquire(ctx, l.slots); err != nil {
		return err
	}
	l.sem.Release(l.slots)
	return nil
}

// RunLimiterStatus is a snapshot of the limiter.
type RunLimiterStatus struct {
	Active        int         `json:"active"`
	Available     int         `json:"available"`
	MaxConcurrent int         `json:"max_concurrent"`
	Runs          []ActiveRun `json:"runs,omitempty"`
}

// Status returns the active runs, oldest first.
func (l *RunLimiter) Status() RunLimiterStatus {
	l.mu.Lock()
	runs := make([]ActiveRun, 0, len(l.runs))
	for _, r := range l.runs {
		runs = append(runs, r)
	}
	l.mu.Unlock()

	slices.SortFunc(runs, func(a, b ActiveRun) int {
		if c := a.StartedAt.Compare(b.StartedAt); c != 0 {
			return c
		}
		return strings.Compare(a.RunID, b.RunID)
	})

	return RunLimiterStatus{
		Active:        len(runs),
		Available:     int(l.slots) - len(runs),
		MaxConcurrent: int(l.slots),
		Runs:          runs,
	}
}
