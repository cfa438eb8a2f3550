package scheduler

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job is a maintenance task body. Jobs must be safe to run repeatedly;
// the scheduler gives no ordering guarantee between different jobs.
type Job func()

// Scheduler runs named maintenance jobs, either on a fixed interval or
// once after a delay. Registering a name twice replaces the earlier job.
type Scheduler struct {
	mu       sync.Mutex
	periodic map[string]*periodicJob
	delayed  map[string]*time.Timer
	logger   *zap.Logger
	done     chan struct{}
}

type periodicJob struct {
	ticker *time.Ticker
	cancel chan struct{}
}

// New creates an empty Scheduler.
func New(logger *zap.Logger) *Scheduler {
	return &Scheduler{
		periodic: make(map[string]*periodicJob),
		delayed:  make(map[string]*time.Timer),
		done:     make(chan struct{}),
		logger:   logger,
	}
}

// AddTicker registers a job to run every interval until removed or the
// scheduler stops. A panicking job is logged and skipped for that tick.
func (s *Scheduler) AddTicker(name string, interval time.Duration, job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.periodic[name]; ok {
		close(prev.cancel)
		delete(s.periodic, name)
	}

	pj := &periodicJob{
		ticker: time.NewTicker(interval),
		cancel: make(chan struct{}),
	}
	s.periodic[name] = pj

	go func() {
		for {
			select {
			case <-pj.ticker.C:
				s.runGuarded(name, job)
			case <-pj.cancel:
				pj.ticker.Stop()
				return
			case <-s.done:
				pj.ticker.Stop()
				return
			}
		}
	}()
	s.logger.Info("maintenance job scheduled",
		zap.String("job", name), zap.Duration("interval", interval))
}

// AddDelay runs the job once after delay, then forgets it.
func (s *Scheduler) AddDelay(name string, delay time.Duration, job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.delayed[name]; ok {
		prev.Stop()
	}
	s.delayed[name] = time.AfterFunc(delay, func() {
		defer func() {
			s.mu.Lock()
			delete(s.delayed, name)
			s.mu.Unlock()
		}()
		s.runGuarded(name, job)
	})
}

// Remove cancels the named job, periodic or delayed.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pj, ok := s.periodic[name]; ok {
		close(pj.cancel)
		delete(s.periodic, name)
	}
	if timer, ok := s.delayed[name]; ok {
		timer.Stop()
		delete(s.delayed, name)
	}
}

// Stop shuts down every periodic job. Idempotent.
func (s *Scheduler) Stop() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

// ListTickers returns the names of the registered periodic jobs.
func (s *Scheduler) ListTickers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.periodic))
	for name := range s.periodic {
		names = append(names, name)
	}
	return names
}

func (s *Scheduler) runGuarded(name string, job Job) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("maintenance job panicked",
				zap.String("job", name), zap.Any("recover", r))
		}
	}()
	job()
}
