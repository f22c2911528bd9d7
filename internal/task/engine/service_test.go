package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	logx "remindbot/pkg/logx"
)

func startEngine(t *testing.T, cfg Config) *Service {
	t.Helper()
	s := New(cfg, logx.Nop(), nil)
	s.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Stop(ctx)
	})
	return s
}

func TestEnqueueRunsTask(t *testing.T) {
	t.Parallel()

	s := startEngine(t, Config{Workers: 2})
	done := make(chan struct{})
	if err := s.Enqueue(Task{Name: "hello", Run: func(ctx context.Context) error {
		close(done)
		return nil
	}}); err != nil {
		t.Fatalf("Enqueue err = %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("task did not run")
	}
}

func TestEnqueueBeforeStart(t *testing.T) {
	t.Parallel()

	s := New(Config{}, logx.Nop(), nil)
	err := s.Enqueue(Task{Name: "x", Run: func(context.Context) error { return nil }})
	if !errors.Is(err, ErrStopped) {
		t.Fatalf("Enqueue err = %v, want ErrStopped", err)
	}
}

func TestEnqueueRejectsInvalidTask(t *testing.T) {
	t.Parallel()

	s := startEngine(t, Config{})
	if err := s.Enqueue(Task{Name: "x"}); !errors.Is(err, ErrInvalidTask) {
		t.Fatalf("nil Run err = %v, want ErrInvalidTask", err)
	}
	if err := s.Enqueue(Task{Name: "  ", Run: func(context.Context) error { return nil }}); !errors.Is(err, ErrInvalidTask) {
		t.Fatalf("blank Name err = %v, want ErrInvalidTask", err)
	}
}

func TestSkipIfRunningRefusesSecondCopy(t *testing.T) {
	t.Parallel()

	s := startEngine(t, Config{Workers: 2})
	release := make(chan struct{})
	started := make(chan struct{})
	var runs int32
	run := func(ctx context.Context) error {
		if atomic.AddInt32(&runs, 1) == 1 {
			close(started)
		}
		<-release
		return nil
	}

	if err := s.Enqueue(Task{Name: "job", Run: run, SkipIfRunning: true}); err != nil {
		t.Fatalf("first Enqueue err = %v", err)
	}
	<-started
	if err := s.Enqueue(Task{Name: "job", Run: run, SkipIfRunning: true}); !errors.Is(err, ErrOverlapSkip) {
		t.Fatalf("second Enqueue err = %v, want ErrOverlapSkip", err)
	}
	close(release)

	deadline := time.Now().Add(2 * time.Second)
	for {
		err := s.Enqueue(Task{Name: "job", Run: func(context.Context) error { return nil }, SkipIfRunning: true})
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("name never released: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestLateTaskIsNotRun(t *testing.T) {
	t.Parallel()

	s := startEngine(t, Config{Workers: 1})
	var ran int32
	gotLate := make(chan time.Duration, 1)
	err := s.Enqueue(Task{
		Name:      "late",
		DueAt:     time.Now().Add(-time.Second),
		Tolerance: 10 * time.Millisecond,
		Run: func(context.Context) error {
			atomic.StoreInt32(&ran, 1)
			return nil
		},
		OnLate: func(late time.Duration) { gotLate <- late },
	})
	if err != nil {
		t.Fatalf("Enqueue err = %v", err)
	}

	select {
	case late := <-gotLate:
		if late < time.Second {
			t.Fatalf("late = %v, want >= 1s", late)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("OnLate not called")
	}
	if atomic.LoadInt32(&ran) != 0 {
		t.Fatalf("late task ran")
	}
	if snap := s.Snapshot(); snap.Misfired != 1 {
		t.Fatalf("Misfired = %d, want 1", snap.Misfired)
	}
}

func TestTaskWithinToleranceRuns(t *testing.T) {
	t.Parallel()

	s := startEngine(t, Config{Workers: 1})
	done := make(chan struct{})
	err := s.Enqueue(Task{
		Name:      "ontime",
		DueAt:     time.Now().Add(-50 * time.Millisecond),
		Tolerance: 10 * time.Second,
		Run: func(context.Context) error {
			close(done)
			return nil
		},
		OnLate: func(time.Duration) { t.Errorf("OnLate called for on-time task") },
	})
	if err != nil {
		t.Fatalf("Enqueue err = %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("task did not run")
	}
}

func TestTimeoutAndPanicBecomeFailures(t *testing.T) {
	t.Parallel()

	s := startEngine(t, Config{Workers: 2})
	_ = s.Enqueue(Task{Name: "slow", Timeout: 20 * time.Millisecond, Run: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	_ = s.Enqueue(Task{Name: "boom", Run: func(context.Context) error { panic("boom") }})

	deadline := time.Now().Add(2 * time.Second)
	for s.Snapshot().Failed < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("Failed = %d, want 2", s.Snapshot().Failed)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if h := s.Snapshot().History; len(h) != 2 {
		t.Fatalf("history len = %d, want 2", len(h))
	}
}

func TestQueueFull(t *testing.T) {
	t.Parallel()

	s := startEngine(t, Config{Workers: 1, QueueSize: 1})
	block := make(chan struct{})
	defer close(block)
	started := make(chan struct{})
	_ = s.Enqueue(Task{Name: "a", Run: func(context.Context) error {
		close(started)
		<-block
		return nil
	}})
	<-started
	_ = s.Enqueue(Task{Name: "b", Run: func(context.Context) error { return nil }})
	err := s.Enqueue(Task{Name: "c", Run: func(context.Context) error { return nil }})
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("Enqueue err = %v, want ErrQueueFull", err)
	}
}
