package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	logx "remindbot/pkg/logx"
)

func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}, queue chan queuedTask) {
	for {
		// a closed stopCh wins over queued work
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case qt := <-queue:
			atomic.AddInt32(&s.inFlight, 1)
			s.execOne(ctx, qt)
			atomic.AddInt32(&s.inFlight, -1)
		}
	}
}

func (s *Service) execOne(ctx context.Context, qt queuedTask) {
	t := qt.task
	if qt.tracked {
		defer s.release(t.Name)
	}

	start := time.Now()
	queueDelay := max(start.Sub(qt.enqueuedAt), 0)

	if !t.DueAt.IsZero() {
		if late := start.Sub(t.DueAt); late > t.Tolerance {
			s.onLate(t, start, queueDelay, late)
			return
		}
	}

	s.publish("task.started", TaskEvent{ID: t.ID, Name: t.Name, Started: start, QueueDelay: queueDelay})

	runCtx, cancel := context.WithTimeout(ctx, qt.timeout)
	err := runRecover(runCtx, t, s.log)
	cancel()

	dur := time.Since(start)
	item := HistoryItem{ID: t.ID, Name: t.Name, Started: start, QueueDelay: queueDelay, Duration: dur}
	ev := TaskEvent{ID: t.ID, Name: t.Name, Started: start, QueueDelay: queueDelay, Duration: dur}
	if err != nil {
		atomic.AddUint64(&s.failed, 1)
		item.Error = err.Error()
		ev.Error = item.Error
		s.log.Warn("task.failed", logx.String("task", t.Name), logx.Err(err), logx.Duration("queue_delay", queueDelay), logx.Duration("dur", dur))
		s.publish("task.failed", ev)
	} else {
		atomic.AddUint64(&s.completed, 1)
		s.log.Debug("task.completed", logx.String("task", t.Name), logx.Duration("queue_delay", queueDelay), logx.Duration("dur", dur))
		s.publish("task.finished", ev)
	}
	s.record(item)
}

func (s *Service) onLate(t Task, start time.Time, queueDelay, late time.Duration) {
	atomic.AddUint64(&s.misfired, 1)
	s.log.Warn("task.misfired",
		logx.String("task", t.Name),
		logx.Time("due_at", t.DueAt),
		logx.Duration("late", late),
		logx.Duration("tolerance", t.Tolerance),
	)
	s.publish("task.misfired", TaskEvent{ID: t.ID, Name: t.Name, Started: start, QueueDelay: queueDelay, Error: "misfire"})
	s.record(HistoryItem{ID: t.ID, Name: t.Name, Started: start, QueueDelay: queueDelay, Error: "misfire"})

	if t.OnLate == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("task.onlate.panic", logx.String("task", t.Name), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
		}
	}()
	t.OnLate(late)
}

// runRecover turns a panicking task into an error so one bad task cannot
// take a worker down.
func runRecover(ctx context.Context, t Task, log logx.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			log.Error("task.panic", logx.String("task", t.Name), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
		}
	}()
	return t.Run(ctx)
}
