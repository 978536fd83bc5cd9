package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/obsguard/obsguard/pkg/logging"
)

// Task is one named periodic maintenance job. Tasks must be idempotent;
// the scheduler may also run them on demand.
type Task func(ctx context.Context)

type scheduledTask struct {
	name     string
	interval time.Duration
	run      Task
}

// Scheduler owns the background maintenance timers. All registered tasks
// start together and are cancelled together on Stop, replacing scattered
// per-component timers with a single registry of named jobs.
type Scheduler struct {
	mutex   sync.Mutex
	tasks   map[string]*scheduledTask
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	logger  *logging.Logger
}

// NewScheduler creates a stopped scheduler
func NewScheduler() *Scheduler {
	return &Scheduler{
		tasks:  make(map[string]*scheduledTask),
		logger: logging.GetLogger(),
	}
}

// Register adds a named periodic task. Registering while running is an
// error; the task set is fixed at Start.
func (s *Scheduler) Register(name string, interval time.Duration, task Task) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is running, cannot register task %q", name)
	}
	if interval <= 0 {
		return fmt.Errorf("task %q interval must be positive, got %v", name, interval)
	}
	if _, exists := s.tasks[name]; exists {
		return fmt.Errorf("task %q is already registered", name)
	}

	s.tasks[name] = &scheduledTask{name: name, interval: interval, run: task}
	return nil
}

// Start launches the timer loop for every registered task
func (s *Scheduler) Start() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.running {
		return
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.running = true

	for _, task := range s.tasks {
		s.wg.Add(1)
		go s.loop(task)
	}

	s.logger.Info("Scheduler started", "tasks", len(s.tasks))
}

func (s *Scheduler) loop(task *scheduledTask) {
	defer s.wg.Done()

	ticker := time.NewTicker(task.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.invoke(s.ctx, task)
		}
	}
}

// invoke runs a task, containing any panic so one broken maintenance job
// cannot take down the others
func (s *Scheduler) invoke(ctx context.Context, task *scheduledTask) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.LogPanic(r, fmt.Sprintf("Scheduled task %q panicked", task.name))
		}
	}()

	task.run(ctx)
}

// RunNow runs a registered task synchronously, independent of its timer.
// Tests drive maintenance deterministically through this instead of
// waiting on real time.
func (s *Scheduler) RunNow(name string) error {
	s.mutex.Lock()
	task, ok := s.tasks[name]
	s.mutex.Unlock()

	if !ok {
		return fmt.Errorf("no task registered with name %q", name)
	}

	s.invoke(context.Background(), task)
	return nil
}

// Stop cancels all task timers and waits for in-flight runs to finish
func (s *Scheduler) Stop() {
	s.mutex.Lock()
	if !s.running {
		s.mutex.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mutex.Unlock()

	cancel()
	s.wg.Wait()

	s.logger.Info("Scheduler stopped")
}
