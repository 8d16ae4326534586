package maintenance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/yndnr/rsvpguard/internal/telemetry/metric"
)

// DefaultTimeout bounds a single task run when Task.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// ErrStarted is returned by Add after Start.
var ErrStarted = errors.New("maintenance: scheduler already started")

// Task is one periodic job.
type Task struct {
	Name     string
	Interval time.Duration
	Timeout  time.Duration
	// Immediate runs the task once at Start instead of waiting a full
	// interval.
	Immediate bool
	Run       func(ctx context.Context) error
}

// Scheduler runs registered tasks until Stop.
type Scheduler struct {
	logger  *slog.Logger
	metrics *metric.Registry

	mu      sync.Mutex
	tasks   []Task
	started bool

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

// WithMetrics sets the metrics registry.
func WithMetrics(m *metric.Registry) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// NewScheduler creates an idle scheduler.
func NewScheduler(opts ...Option) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		logger: slog.Default(),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Add registers t. Tasks must be added before Start.
func (s *Scheduler) Add(t Task) error {
	switch {
	case t.Name == "":
		return errors.New("maintenance: task name is required")
	case t.Run == nil:
		return fmt.Errorf("maintenance: task %s has no Run func", t.Name)
	case t.Interval <= 0:
		return fmt.Errorf("maintenance: task %s interval must be positive, got %s", t.Name, t.Interval)
	}
	if t.Timeout <= 0 {
		t.Timeout = DefaultTimeout
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrStarted
	}
	s.tasks = append(s.tasks, t)
	return nil
}

// Tasks returns the names of the registered tasks.
func (s *Scheduler) Tasks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.tasks))
	for i, t := range s.tasks {
		names[i] = t.Name
	}
	return names
}

// Start launches one goroutine per task. Later calls do nothing.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	for _, t := range s.tasks {
		s.wg.Add(1)
		go s.loop(t)
	}
	s.logger.Info("maintenance scheduler started", "tasks", len(s.tasks))
}

// Stop cancels running tasks and waits for every loop to exit.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.stopOnce.Do(s.cancel)

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

func (s *Scheduler) loop(t Task) {
	defer s.wg.Done()

	if t.Immediate {
		s.runOnce(t)
	}

	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runOnce(t)
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) runOnce(t Task) {
	ctx, cancel := context.WithTimeout(s.ctx, t.Timeout)
	defer cancel()

	start := time.Now()
	err := safeRun(ctx, t.Run)
	s.metrics.ObserveMaintenance(t.Name, err)
	if err != nil {
		if s.ctx.Err() != nil {
			return
		}
		s.logger.Error("maintenance task failed", "task", t.Name, "error", err)
		return
	}
	s.logger.Debug("maintenance task done", "task", t.Name, "took", time.Since(start))
}

func safeRun(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("maintenance: task panicked: %v", r)
		}
	}()
	return fn(ctx)
}
