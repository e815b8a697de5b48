package syncutil

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Scheduler runs a callable on a fixed interval on a background goroutine,
// sleeping the interval between runs. The first run happens one interval
// after Start. A non-positive interval disables scheduling entirely: Start
// does nothing.
//
// The scheduler only adds the periodic drive; the wrapped callable can still
// be invoked directly at any time.
type Scheduler struct {
	name     string
	interval time.Duration
	fn       func() error
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler creates a scheduler that will run fn every interval once
// started. Errors returned by fn are logged and do not stop the loop.
func NewScheduler(name string, interval time.Duration, fn func() error) *Scheduler {
	return &Scheduler{
		name:     name,
		interval: interval,
		fn:       fn,
		logger:   slog.Default().With("scheduler", name),
	}
}

// Start launches the background loop. Starting an already-running scheduler
// is a no-op, as is starting one with a non-positive interval.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.interval <= 0 || s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
}

// Stop cancels the loop and waits for it to exit. Stopping a scheduler that
// is not running is a no-op. After Stop returns, Start may be called again.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.fn(); err != nil {
				s.logger.Warn("scheduled run failed", "error", err)
			}
		}
	}
}
