package scheduler

import (
	"time"

	logx "biteiq/pkg/logx"
)

const enqueueWarnThrottle = 5 * time.Second

// reportEnqueueError warns at most once per throttle window per schedule.
func (s *Service) reportEnqueueError(name string, err error) {
	if err == nil {
		return
	}
	now := time.Now()
	s.enqMu.Lock()
	last := s.lastEnqWarn[name]
	if !last.IsZero() && now.Sub(last) < enqueueWarnThrottle {
		s.enqMu.Unlock()
		return
	}
	s.lastEnqWarn[name] = now
	s.enqMu.Unlock()

	s.log.Warn("schedule failed to enqueue job", logx.String("schedule", name), logx.Err(err))
}
