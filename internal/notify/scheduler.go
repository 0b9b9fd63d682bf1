package notify

import (
	"context"
	"time"

	"github.com/ShedrackAmodu/school-comm-service/pkg/log"
)

// Scheduler periodically delivers notifications whose scheduled time
// has arrived. Deployments with an external trigger disable it and
// call Deliver directly.
type Scheduler struct {
	svc      Service
	interval time.Duration
	quit     chan struct{}
	doneCh   chan struct{}
}

// NewScheduler creates a scheduler around the notification service.
func NewScheduler(svc Service, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Scheduler{
		svc:      svc,
		interval: interval,
		quit:     make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the scheduler in a background goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	go s.run(ctx)
}

// Stop signals the scheduler to stop and returns immediately.
// Call Done() to wait for it to exit.
func (s *Scheduler) Stop() {
	close(s.quit)
}

// Done returns a channel that is closed when the scheduler has fully stopped.
func (s *Scheduler) Done() <-chan struct{} {
	return s.doneCh
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.quit:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	l := log.L()

	delivered, err := s.svc.DeliverDue(ctx, time.Now().UTC())
	if err != nil {
		l.Error().Err(err).Msg("scheduler: failed to deliver due notifications")
		return
	}
	if delivered > 0 {
		l.Info().Int("count", delivered).Msg("scheduler: delivered scheduled notifications")
	}
}
