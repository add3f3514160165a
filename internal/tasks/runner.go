// Package tasks runs cancellable background jobs keyed by request id.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"dindin/internal/cache"
	applog "dindin/internal/log"
)

var (
	ErrClosed   = errors.New("task runner closed")
	ErrNotFound = errors.New("task not found")
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Finished reports whether the status is terminal.
func (s Status) Finished() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Snapshot is a point-in-time copy of a task.
type Snapshot struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	UserID      string    `json:"user_id"`
	Status      Status    `json:"status"`
	Result      any       `json:"result,omitempty"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	StartedAt   time.Time `json:"started_at,omitzero"`
	CompletedAt time.Time `json:"completed_at,omitzero"`
}

// Func is the work a task performs. It must honour ctx cancellation. A nil
// error marks the task completed even when ctx was cancelled meanwhile.
type Func func(ctx context.Context) (any, error)

type task struct {
	snap   Snapshot
	cancel context.CancelFunc
	done   chan struct{}
}

// Runner executes at most workers tasks at a time. Finished snapshots are
// kept in an LRU cache so callers can poll for results.
type Runner struct {
	sem      *semaphore.Weighted
	timeout  time.Duration
	finished *cache.LRUCache[Snapshot]

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup

	mu     sync.Mutex
	active map[string]*task
	closed bool
}

func NewRunner(workers int, timeout time.Duration, finished *cache.LRUCache[Snapshot]) *Runner {
	if workers < 1 {
		workers = 1
	}
	if finished == nil {
		finished = cache.NewLRUCache[Snapshot](1000, time.Hour)
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Runner{
		sem:      semaphore.NewWeighted(int64(workers)),
		timeout:  timeout,
		finished: finished,
		baseCtx:  ctx,
		stop:     stop,
		active:   make(map[string]*task),
	}
}

// Submit queues fn and returns its request id immediately.
func (r *Runner) Submit(userID, kind string, fn Func) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return "", ErrClosed
	}

	id := uuid.NewString()
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if r.timeout > 0 {
		ctx, cancel = context.WithTimeout(r.baseCtx, r.timeout)
	} else {
		ctx, cancel = context.WithCancel(r.baseCtx)
	}
	t := &task{
		snap:   Snapshot{ID: id, Kind: kind, UserID: userID, Status: StatusPending, CreatedAt: time.Now()},
		cancel: cancel,
		done:   make(chan struct{}),
	}
	r.active[id] = t
	r.wg.Add(1)
	go r.run(ctx, t, fn)

	slog.Debug("Task submitted", applog.FieldComponent, applog.ComponentTasks, applog.FieldTaskID, id,
		"kind", kind, applog.FieldUserID, userID)
	return id, nil
}

func (r *Runner) run(ctx context.Context, t *task, fn Func) {
	defer r.wg.Done()
	defer t.cancel()

	if err := r.sem.Acquire(ctx, 1); err != nil {
		r.finish(t, nil, err)
		return
	}
	defer r.sem.Release(1)

	r.mu.Lock()
	t.snap.Status = StatusRunning
	t.snap.StartedAt = time.Now()
	r.mu.Unlock()

	result, err := func() (result any, err error) {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("task panicked: %v", p)
			}
		}()
		return fn(ctx)
	}()
	r.finish(t, result, err)
}

func (r *Runner) finish(t *task, result any, err error) {
	r.mu.Lock()
	t.snap.CompletedAt = time.Now()
	switch {
	case errors.Is(err, context.Canceled):
		t.snap.Status = StatusCancelled
	case err != nil:
		t.snap.Status = StatusFailed
		t.snap.Error = err.Error()
	default:
		t.snap.Status = StatusCompleted
		t.snap.Result = result
	}
	snap := t.snap
	delete(r.active, snap.ID)
	r.finished.Set(snap.ID, snap)
	r.mu.Unlock()
	close(t.done)

	slog.Info("Task finished", applog.FieldComponent, applog.ComponentTasks, applog.FieldTaskID, snap.ID, "kind", snap.Kind,
		"status", snap.Status, applog.FieldDuration, snap.CompletedAt.Sub(snap.CreatedAt).Milliseconds())
}

// Status returns the latest snapshot of a task.
func (r *Runner) Status(id string) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.active[id]; ok {
		return t.snap, true
	}
	return r.finished.Get(id)
}

// Cancel stops a pending or running task. It reports false when the task is
// unknown or already finished.
func (r *Runner) Cancel(id string) bool {
	r.mu.Lock()
	t, ok := r.active[id]
	r.mu.Unlock()
	if !ok {
		return false
	}
	t.cancel()
	return true
}

// Wait blocks until the task finishes or ctx is done.
func (r *Runner) Wait(ctx context.Context, id string) (Snapshot, error) {
	r.mu.Lock()
	t, ok := r.active[id]
	r.mu.Unlock()
	if !ok {
		if snap, ok := r.finished.Get(id); ok {
			return snap, nil
		}
		return Snapshot{}, ErrNotFound
	}
	select {
	case <-t.done:
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
	if snap, ok := r.finished.Get(id); ok {
		return snap, nil
	}
	return Snapshot{}, ErrNotFound
}

// Close rejects new tasks, cancels running ones and waits for them to
// return or for ctx to expire.
func (r *Runner) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.stop()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for tasks: %w", ctx.Err())
	}
}
