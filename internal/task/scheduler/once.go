package scheduler

import (
	"context"
	"strings"
	"time"

	"remindbot/internal/eventbus"
	"remindbot/internal/task/engine"
	logx "remindbot/pkg/logx"
)

// ScheduleOnce arms a one-shot job. Scheduling an id that is already
// pending supersedes the earlier fire time; only the latest one fires.
// A fireAt in the past fires immediately and is then subject to the
// misfire tolerance.
func (s *Service) ScheduleOnce(jobID string, fireAt time.Time, opt OnceOptions) error {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return ErrInvalidJobID
	}
	if fireAt.IsZero() {
		return ErrInvalidTime
	}

	s.tmu.Lock()
	defer s.tmu.Unlock()

	replaced := false
	if prev, ok := s.once[jobID]; ok {
		if prev.timer != nil {
			prev.timer.Stop()
		}
		replaced = true
	}
	s.verSeq++
	d := &onceDef{fireAt: fireAt, opt: opt, ver: s.verSeq}
	s.once[jobID] = d
	if s.running {
		s.armLocked(jobID, d)
	}

	s.log.Debug("once scheduled", logx.String("job_id", jobID), logx.Time("fire_at", fireAt), logx.Bool("replaced", replaced))
	return nil
}

// Cancel removes a pending one-shot job. It reports whether one existed.
func (s *Service) Cancel(jobID string) bool {
	s.tmu.Lock()
	defer s.tmu.Unlock()
	d, ok := s.once[jobID]
	if !ok {
		return false
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	delete(s.once, jobID)
	return true
}

// Pending reports whether a one-shot job is armed and has not fired yet.
func (s *Service) Pending(jobID string) bool {
	s.tmu.Lock()
	defer s.tmu.Unlock()
	_, ok := s.once[jobID]
	return ok
}

// armLocked starts the runtime timer for d. Call with s.tmu held.
func (s *Service) armLocked(jobID string, d *onceDef) {
	if d.timer != nil {
		d.timer.Stop()
	}
	ver := d.ver
	d.timer = time.AfterFunc(max(time.Until(d.fireAt), 0), func() { s.fire(jobID, ver) })
}

func (s *Service) fire(jobID string, ver uint64) {
	s.tmu.Lock()
	d, ok := s.once[jobID]
	if !ok || d.ver != ver {
		// cancelled or superseded after the timer went off
		s.tmu.Unlock()
		return
	}
	delete(s.once, jobID)
	s.tmu.Unlock()

	s.mu.Lock()
	h, onFault := s.handler, s.onFault
	tol := s.tolerance(d.opt.Tolerance)
	s.mu.Unlock()

	due := Due{JobID: jobID, FireAt: d.fireAt, Payload: d.opt.Payload}
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: "scheduler.due", Data: due})
	}
	if h == nil {
		s.fault(onFault, due, ErrNoHandler)
		return
	}
	if s.engine == nil {
		s.fault(onFault, due, engine.ErrStopped)
		return
	}

	err := s.engine.Enqueue(engine.Task{
		Name:          jobID,
		Timeout:       d.opt.Timeout,
		DueAt:         d.fireAt,
		Tolerance:     tol,
		SkipIfRunning: true,
		Run:           func(ctx context.Context) error { return h(ctx, due) },
		OnLate: func(late time.Duration) {
			s.fault(onFault, due, &MisfireError{Late: late, Tolerance: tol})
		},
	})
	if err != nil {
		s.reportEnqueueError(jobID, err)
		s.fault(onFault, due, err)
	}
}

func (s *Service) fault(f FaultHandler, d Due, err error) {
	if f == nil {
		s.log.Error("once job lost: no fault handler", logx.String("job_id", d.JobID), logx.Err(err))
		return
	}
	f(d, err)
}
