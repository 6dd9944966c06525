// Package scheduler runs named tasks on a fixed period and never lets two
// runs of the same name overlap.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/JGeek00/crowdsec-monitor-api/internal/logger"
)

// Task is the unit of work run on every tick.
type Task func(ctx context.Context) error

type entry struct {
	id       cron.EntryID
	interval time.Duration
}

// Scheduler owns one cron loop shared by every registered task. Ticks fire
// on a strict period; a tick that arrives while the previous run of the same
// task is still in flight is skipped.
type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	log    *logrus.Entry

	mu      sync.Mutex
	entries map[string]entry
	running map[string]*atomic.Bool
	tasks   map[string]Task
	closed  bool
	wg      sync.WaitGroup
}

// New creates a started scheduler.
func New() *Scheduler {
	log := logger.Component("scheduler")
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron: cron.New(
			cron.WithLogger(cron.PrintfLogger(log)),
			cron.WithChain(cron.Recover(cron.PrintfLogger(log))),
		),
		ctx:     ctx,
		cancel:  cancel,
		log:     log,
		entries: make(map[string]entry),
		running: make(map[string]*atomic.Bool),
		tasks:   make(map[string]Task),
	}
	s.cron.Start()
	return s
}

// Schedule registers task under name to run every intervalSeconds. An
// existing task with the same name is replaced. With runImmediately the
// first run starts right away instead of after one interval.
func (s *Scheduler) Schedule(name string, task Task, intervalSeconds int, runImmediately bool) error {
	if intervalSeconds < 1 {
		return fmt.Errorf("schedule %s: interval must be at least one second, got %d", name, intervalSeconds)
	}
	interval := time.Duration(intervalSeconds) * time.Second

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("schedule %s: scheduler is shut down", name)
	}
	if old, ok := s.entries[name]; ok {
		s.cron.Remove(old.id)
		s.log.WithField("task", name).Info("Replacing scheduled task")
	}
	if _, ok := s.running[name]; !ok {
		s.running[name] = &atomic.Bool{}
	}
	s.tasks[name] = task
	id := s.cron.Schedule(cron.Every(interval), cron.FuncJob(func() { s.trigger(name) }))
	s.entries[name] = entry{id: id, interval: interval}
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{"task": name, "interval": interval.String()}).Info("Task scheduled")

	if runImmediately {
		go s.trigger(name)
	}
	return nil
}

// trigger runs the named task once unless a previous run is still active.
func (s *Scheduler) trigger(name string) {
	s.mu.Lock()
	task, ok := s.tasks[name]
	guard := s.running[name]
	if !ok || s.closed {
		s.mu.Unlock()
		return
	}
	if !guard.CompareAndSwap(false, true) {
		s.mu.Unlock()
		s.log.WithField("task", name).Warn("Previous run still in progress, skipping this tick")
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	defer s.wg.Done()
	defer guard.Store(false)
	defer func() {
		if r := recover(); r != nil {
			s.log.WithField("task", name).Errorf("Task panicked: %v", r)
		}
	}()

	start := time.Now()
	if err := task(s.ctx); err != nil {
		s.log.WithError(err).WithField("task", name).Error("Task failed")
		return
	}
	s.log.WithFields(logrus.Fields{
		"task":        name,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("Task finished")
}

// StopTask cancels the timer of name. Unknown names are ignored. A run in
// flight is allowed to finish.
func (s *Scheduler) StopTask(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked(name)
}

func (s *Scheduler) stopLocked(name string) {
	e, ok := s.entries[name]
	if !ok {
		return
	}
	s.cron.Remove(e.id)
	delete(s.entries, name)
	delete(s.tasks, name)
	s.log.WithField("task", name).Info("Task stopped")
}

// StopAll cancels every timer.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name := range s.entries {
		s.stopLocked(name)
	}
}

// IsActive reports whether name has a timer.
func (s *Scheduler) IsActive(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[name]
	return ok
}

// IsRunning reports whether a run of name is in flight.
func (s *Scheduler) IsRunning(name string) bool {
	s.mu.Lock()
	guard, ok := s.running[name]
	s.mu.Unlock()
	return ok && guard.Load()
}

// Shutdown stops every timer and waits for in-flight runs until ctx is
// done. Runs are not interrupted; their context is only cancelled if the
// wait times out.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.StopAll()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	cronDone := s.cron.Stop()
	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		return fmt.Errorf("scheduler shutdown: %w", ctx.Err())
	}
}
