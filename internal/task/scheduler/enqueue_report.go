package scheduler

import (
	"errors"
	"sync/atomic"
	"time"

	"remindbot/internal/task/engine"
	logx "remindbot/pkg/logx"
)

const enqueueWarnThrottle = 5 * time.Second

func (s *Service) reportEnqueueError(name string, err error) {
	// a recurring job still running from its last tick is normal
	if errors.Is(err, engine.ErrOverlapSkip) {
		s.log.Debug("schedule trigger skipped", logx.String("schedule", name), logx.Err(err))
		return
	}
	atomic.AddUint64(&s.enqueueFails, 1)

	now := time.Now()
	s.enqMu.Lock()
	last := s.lastEnqWarn[name]
	if !last.IsZero() && now.Sub(last) < enqueueWarnThrottle {
		s.enqMu.Unlock()
		return
	}
	s.lastEnqWarn[name] = now
	if len(s.lastEnqWarn) > 1024 {
		for k, v := range s.lastEnqWarn {
			if now.Sub(v) >= enqueueWarnThrottle {
				delete(s.lastEnqWarn, k)
			}
		}
	}
	s.enqMu.Unlock()

	s.log.Warn("schedule failed to enqueue task", logx.String("schedule", name), logx.Err(err))
}
