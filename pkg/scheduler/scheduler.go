// Package scheduler runs periodic maintenance tasks on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Task is a named periodic function. Each run gets a context bounded by Timeout.
type Task struct {
	Name    string
	Spec    string
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// Scheduler wraps robfig/cron with zap logging and overlap protection.
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger
}

// New builds a scheduler. Runs of the same task never overlap.
func New(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	cl := cronLogger{logger: logger.Named("cron")}
	return &Scheduler{
		cron:   cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		logger: logger,
	}
}

// Register adds a task. The spec accepts standard five-field expressions and descriptors
// such as "@every 1h".
func (s *Scheduler) Register(ctx context.Context, task Task) error {
	if task.Run == nil {
		return fmt.Errorf("task %s has no run function", task.Name)
	}
	_, err := s.cron.AddFunc(task.Spec, func() {
		runCtx := ctx
		if task.Timeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(ctx, task.Timeout)
			defer cancel()
		}
		start := time.Now()
		if err := task.Run(runCtx); err != nil {
			s.logger.Warn("scheduled task failed", zap.String("task", task.Name), zap.Error(err))
			return
		}
		s.logger.Debug("scheduled task finished", zap.String("task", task.Name), zap.Duration("took", time.Since(start)))
	})
	if err != nil {
		return fmt.Errorf("register task %s: %w", task.Name, err)
	}
	return nil
}

// Start begins dispatching registered tasks.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", zap.Int("tasks", len(s.cron.Entries())))
}

// Stop halts dispatch and waits for running tasks until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out")
	}
}

type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
