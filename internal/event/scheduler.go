// Package event runs delayed fire-and-forget jobs, such as removing a
// warning some seconds after it was posted.
package event

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngmod/internal/infra"
)

// Scheduler owns the lifetime of delayed jobs. Jobs still waiting when the
// scheduler stops are dropped without running.
type Scheduler struct {
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	pending atomic.Int64
	logger  *log.Entry

	mu      sync.Mutex
	stopped bool
}

func NewScheduler() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		ctx:    ctx,
		cancel: cancel,
		logger: log.WithField("object", "Scheduler"),
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	_ = ctx
	return nil
}

// Stop cancels waiting jobs and waits for running ones until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.cancel()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// After runs job once delay has elapsed. The job receives a context that is
// cancelled when the scheduler stops.
func (s *Scheduler) After(delay time.Duration, name string, job func(ctx context.Context)) {
	if job == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		s.logger.WithField("job", name).Debug("scheduler stopped, job dropped")
		return
	}

	s.wg.Add(1)
	s.pending.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.pending.Add(-1)
		defer infra.Recover(name)

		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-s.ctx.Done():
			s.logger.WithField("job", name).Trace("job cancelled")
			return
		case <-timer.C:
		}
		job(s.ctx)
	}()
}

// Pending returns the number of jobs waiting or running.
func (s *Scheduler) Pending() int {
	return int(s.pending.Load())
}
