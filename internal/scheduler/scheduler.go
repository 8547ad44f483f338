// Package scheduler runs the engine's two periodic maintenance tasks —
// decay+prune and consolidation — on independent timers with an initial
// delay and cooperative shutdown, following the teacher's goroutine+channel
// concurrency idiom rather than an external cron dependency (none of the
// example repos in the retrieval pack import one).
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/coeus-memory/coeus/internal/logging"
)

var log = logging.GetLogger("scheduler")

// Task is a maintenance operation the scheduler runs periodically. It
// receives a context cancelled when the scheduler is stopping.
type Task func(ctx context.Context)

// Config controls one periodic task's cadence.
type Config struct {
	Enabled      bool
	Interval     time.Duration
	InitialDelay time.Duration
}

// Scheduler runs named periodic tasks until Stop is called.
type Scheduler struct {
	shutdownTimeout time.Duration

	done chan struct{}
	wg   sync.WaitGroup

	mu      sync.Mutex
	started bool
}

// New constructs a Scheduler whose Stop waits up to shutdownTimeout for
// in-flight tasks to settle.
func New(shutdownTimeout time.Duration) *Scheduler {
	return &Scheduler{
		shutdownTimeout: shutdownTimeout,
		done:            make(chan struct{}),
	}
}

// Register starts a goroutine running task every cfg.Interval, first firing
// after cfg.InitialDelay. A no-op if cfg.Enabled is false. Must be called
// before Stop.
func (s *Scheduler) Register(name string, cfg Config, task Task) {
	if !cfg.Enabled {
		log.Info("task disabled, not scheduling", "task", name)
		return
	}

	s.mu.Lock()
	s.started = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(name, cfg, task)
}

func (s *Scheduler) run(name string, cfg Config, task Task) {
	defer s.wg.Done()

	timer := time.NewTimer(cfg.InitialDelay)
	defer timer.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-timer.C:
			s.runOnce(name, task)
			timer.Reset(cfg.Interval)
		}
	}
}

func (s *Scheduler) runOnce(name string, task Task) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Watch for shutdown mid-task so task's ctx is cancelled promptly,
	// without blocking this goroutine's own done-channel select loop.
	stopWatch := make(chan struct{})
	defer close(stopWatch)
	go func() {
		select {
		case <-s.done:
			cancel()
		case <-stopWatch:
		}
	}()

	defer func() {
		if r := recover(); r != nil {
			log.Error("task panicked, continuing to next interval", "task", name, "panic", r)
		}
	}()

	log.Debug("running task", "task", name)
	task(ctx)
}

// Stop signals every registered task to stop and waits up to the configured
// shutdown timeout for them to settle.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		return nil
	}

	close(s.done)

	waitDone := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(waitDone)
	}()

	timeout := s.shutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	select {
	case <-waitDone:
		return nil
	case <-time.After(timeout):
		return context.DeadlineExceeded
	case <-ctx.Done():
		return ctx.Err()
	}
}
