// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// Package sched runs named recurring background tasks. It replaces the
// platform task scheduler with an explicit interface: handlers register
// under a task identifier, requests carry an earliest-begin time plus
// network/power requirements, and each execution runs under a wall-clock
// budget whose expiry cancels the handler's context.
package sched

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DailySyncTask is the identifier of the recurring daily sync.
const DailySyncTask = "qolsync.daily-sync"

// DefaultRunHour is the local hour of the daily window (04:00).
const DefaultRunHour = 4

// DefaultBudget bounds one background execution.
const DefaultBudget = 5 * time.Minute

// TaskFunc is a registered task handler. The context carries the execution
// budget deadline; handlers must stop work and leave state consistent when
// it expires.
type TaskFunc func(ctx context.Context) error

// TaskRequest describes one pending execution of a named task.
type TaskRequest struct {
	TaskID          string
	EarliestBeginAt time.Time
	RequiresNetwork bool
	RequiresPower   bool
}

// Config tunes the scheduler.
type Config struct {
	RunHour int           // local hour of the daily window
	Budget  time.Duration // per-execution wall-clock ceiling

	// Online reports current network connectivity. Tasks with
	// RequiresNetwork are skipped (and rescheduled) while offline. Nil
	// means always online.
	Online func() bool

	Logger *slog.Logger
}

// Scheduler arms one pending request at a time and runs its handler when
// the earliest-begin time arrives.
type Scheduler struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	handlers map[string]TaskFunc
	pending  *TaskRequest
	wake     chan struct{}
}

// New creates a Scheduler with defaults filled in.
func New(cfg Config) *Scheduler {
	if cfg.RunHour == 0 {
		cfg.RunHour = DefaultRunHour
	}
	if cfg.Budget == 0 {
		cfg.Budget = DefaultBudget
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Scheduler{
		cfg:      cfg,
		logger:   cfg.Logger,
		handlers: make(map[string]TaskFunc),
		wake:     make(chan struct{}, 1),
	}
}

// RegisterHandler binds fn to a task identifier. Submitting a request for
// an unregistered identifier fails.
func (s *Scheduler) RegisterHandler(taskID string, fn TaskFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[taskID] = fn
}

// Submit arms a task request, replacing any pending one for the loop to
// pick up.
func (s *Scheduler) Submit(req TaskRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.handlers[req.TaskID]; !ok {
		return fmt.Errorf("no handler registered for task %q", req.TaskID)
	}
	s.pending = &req
	select {
	case s.wake <- struct{}{}:
	default:
	}
	return nil
}

// ScheduleNext arms the next daily sync occurrence: today at the configured
// hour if that is still in the future, else tomorrow.
func (s *Scheduler) ScheduleNext() error {
	return s.ScheduleNextFrom(time.Now())
}

// ScheduleNextFrom is ScheduleNext with an explicit current time.
func (s *Scheduler) ScheduleNextFrom(now time.Time) error {
	next := NextRunAfter(now, s.cfg.RunHour)
	err := s.Submit(TaskRequest{
		TaskID:          DailySyncTask,
		EarliestBeginAt: next,
		RequiresNetwork: true,
		RequiresPower:   false,
	})
	if err != nil {
		return err
	}
	s.logger.Info("scheduled next sync", "at", next)
	return nil
}

// NextRunAfter computes the next daily occurrence of runHour (local time)
// strictly after now.
func NextRunAfter(now time.Time, runHour int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), runHour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Run executes pending requests until ctx is cancelled. The next occurrence
// is re-armed before the handler runs, so a crash mid-task never leaves the
// system unscheduled.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		req := s.takePending()
		if req == nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-s.wake:
			}
			continue
		}

		if err := s.waitUntil(ctx, req.EarliestBeginAt); err != nil {
			return err
		}

		if req.RequiresNetwork && s.cfg.Online != nil && !s.cfg.Online() {
			s.logger.Warn("skipping task, network unavailable", "task", req.TaskID)
			if req.TaskID == DailySyncTask {
				_ = s.ScheduleNext()
			}
			continue
		}

		// Re-arm before running: a forced kill during the task must not
		// leave the schedule empty.
		if req.TaskID == DailySyncTask {
			_ = s.ScheduleNext()
		}

		s.runTask(ctx, req)
	}
}

func (s *Scheduler) takePending() *TaskRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	req := s.pending
	s.pending = nil
	return req
}

func (s *Scheduler) waitUntil(ctx context.Context, t time.Time) error {
	d := time.Until(t)
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) runTask(ctx context.Context, req *TaskRequest) {
	s.mu.Lock()
	fn := s.handlers[req.TaskID]
	s.mu.Unlock()
	if fn == nil {
		s.logger.Warn("no handler for task", "task", req.TaskID)
		return
	}

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.Budget)
	defer cancel()

	s.logger.Info("running task", "task", req.TaskID, "budget", s.cfg.Budget)
	if err := fn(runCtx); err != nil {
		// Background failures are logged only; the next scheduled run is
		// the retry.
		s.logger.Error("task failed", "task", req.TaskID, "error", err)
		return
	}
	s.logger.Info("task completed", "task", req.TaskID)
}
