package tasks

import (
	"context"
	"errors"
	"testing"
	"time"
)

func waitFor(t *testing.T, r *Runner, id string) Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	snap, err := r.Wait(ctx, id)
	if err != nil {
		t.Fatalf("Wait(%s): %v", id, err)
	}
	return snap
}

func TestRunnerOutcomes(t *testing.T) {
	r := NewRunner(2, time.Second, nil)
	defer r.Close(context.Background())

	tests := []struct {
		name   string
		fn     Func
		status Status
	}{
		{"completed", func(context.Context) (any, error) { return 42, nil }, StatusCompleted},
		{"failed", func(context.Context) (any, error) { return nil, errors.New("boom") }, StatusFailed},
		{"panic", func(context.Context) (any, error) { panic("bad") }, StatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := r.Submit("u1", "test", tt.fn)
			if err != nil {
				t.Fatal(err)
			}
			snap := waitFor(t, r, id)
			if snap.Status != tt.status {
				t.Fatalf("status = %s, want %s (%s)", snap.Status, tt.status, snap.Error)
			}
			if snap.UserID != "u1" || snap.Kind != "test" {
				t.Fatalf("unexpected snapshot %+v", snap)
			}
			if got, ok := r.Status(id); !ok || got.Status != tt.status {
				t.Fatal("finished snapshot should stay queryable")
			}
		})
	}
}

func TestRunnerCancel(t *testing.T) {
	r := NewRunner(1, 0, nil)
	defer r.Close(context.Background())

	started := make(chan struct{})
	id, _ := r.Submit("u1", "slow", func(ctx context.Context) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	<-started
	if snap, _ := r.Status(id); snap.Status != StatusRunning {
		t.Fatalf("expected running, got %s", snap.Status)
	}
	if !r.Cancel(id) {
		t.Fatal("Cancel should report true for a running task")
	}
	if snap := waitFor(t, r, id); snap.Status != StatusCancelled {
		t.Fatalf("expected cancelled, got %s", snap.Status)
	}
	if r.Cancel(id) {
		t.Fatal("Cancel of a finished task should report false")
	}
	if r.Cancel("missing") {
		t.Fatal("Cancel of an unknown task should report false")
	}
}

func TestRunnerKeepsResultReturnedAfterCancel(t *testing.T) {
	r := NewRunner(1, 0, nil)
	defer r.Close(context.Background())

	started := make(chan struct{})
	id, _ := r.Submit("u1", "commit", func(ctx context.Context) (any, error) {
		close(started)
		<-ctx.Done()
		return "committed", nil
	})
	<-started
	r.Cancel(id)
	snap := waitFor(t, r, id)
	if snap.Status != StatusCompleted || snap.Result != "committed" {
		t.Fatalf("work finished without error must be reported as completed, got %+v", snap)
	}
}

func TestRunnerConcurrencyBound(t *testing.T) {
	r := NewRunner(1, 0, nil)
	defer r.Close(context.Background())

	release := make(chan struct{})
	first, _ := r.Submit("u1", "block", func(ctx context.Context) (any, error) {
		<-release
		return "first", nil
	})
	second, _ := r.Submit("u1", "queued", func(ctx context.Context) (any, error) { return "second", nil })

	time.Sleep(20 * time.Millisecond)
	if snap, _ := r.Status(second); snap.Status != StatusPending {
		t.Fatalf("second task should wait for the slot, got %s", snap.Status)
	}

	// A pending task can be cancelled before it ever runs.
	r.Cancel(second)
	if snap := waitFor(t, r, second); snap.Status != StatusCancelled || !snap.StartedAt.IsZero() {
		t.Fatalf("unexpected %+v", snap)
	}
	close(release)
	if snap := waitFor(t, r, first); snap.Result != "first" {
		t.Fatalf("unexpected %+v", snap)
	}
}

func TestRunnerTimeout(t *testing.T) {
	r := NewRunner(1, 10*time.Millisecond, nil)
	defer r.Close(context.Background())

	id, _ := r.Submit("u1", "slow", func(ctx context.Context) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	if snap := waitFor(t, r, id); snap.Status != StatusFailed {
		t.Fatalf("deadline should fail the task, got %s", snap.Status)
	}
}

func TestRunnerClose(t *testing.T) {
	r := NewRunner(1, 0, nil)
	id, _ := r.Submit("u1", "slow", func(ctx context.Context) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	if err := r.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	if snap, _ := r.Status(id); snap.Status != StatusCancelled {
		t.Fatalf("Close should cancel running tasks, got %s", snap.Status)
	}
	if _, err := r.Submit("u1", "late", func(context.Context) (any, error) { return nil, nil }); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if _, err := r.Wait(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
