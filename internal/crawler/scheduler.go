package crawler

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// RunnerFactory builds an independent pipeline (session, pager, processor,
// fetcher) for one task. Sessions are never shared between tasks.
type RunnerFactory interface {
	NewRunner(task CourtTask) (TaskRunner, error)
}

// Scheduler runs CourtTasks on a bounded worker pool. Tasks are fully
// independent; a failing task never cancels its siblings.
type Scheduler struct {
	factory RunnerFactory
	workers int
	logger  *zap.Logger

	completed atomic.Int64
	failed    atomic.Int64
}

// NewScheduler constructs a Scheduler.
func NewScheduler(factory RunnerFactory, workers int, logger *zap.Logger) *Scheduler {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		factory: factory,
		workers: workers,
		logger:  logger,
	}
}

// Run executes all tasks and blocks until every worker has finished.
// The returned counts report completed and failed tasks.
func (s *Scheduler) Run(ctx context.Context, tasks []CourtTask) (int, int) {
	total := len(tasks)
	s.logger.Info("starting crawl", zap.Int("tasks", total), zap.Int("workers", s.workers))

	g := new(errgroup.Group)
	g.SetLimit(s.workers)
	for _, task := range tasks {
		task := task
		g.Go(func() error {
			s.runTask(ctx, task, total)
			return nil
		})
	}
	_ = g.Wait()

	completed := int(s.completed.Load())
	failed := int(s.failed.Load())
	s.logger.Info("crawl finished",
		zap.Int("completed", completed),
		zap.Int("failed", failed),
		zap.Int("total", total),
	)
	return completed, failed
}

func (s *Scheduler) runTask(ctx context.Context, task CourtTask, total int) {
	defer func() {
		if r := recover(); r != nil {
			s.failed.Add(1)
			TotalTasksFailed.Inc()
			s.logger.Error("task panicked",
				zap.String("task", task.String()),
				zap.Any("panic", r),
			)
		}
	}()

	runner, err := s.factory.NewRunner(task)
	if err != nil {
		s.failed.Add(1)
		TotalTasksFailed.Inc()
		s.logger.Error("build task pipeline", zap.String("task", task.String()), zap.Error(err))
		return
	}

	if err := runner.Run(ctx, task); err != nil {
		s.failed.Add(1)
		TotalTasksFailed.Inc()
		s.logger.Error("task failed", zap.String("task", task.String()), zap.Error(err))
		return
	}

	done := s.completed.Add(1)
	TotalTasksCompleted.Inc()
	s.logger.Info("task completed",
		zap.String("task", task.String()),
		zap.Int64("completed", done),
		zap.Int("total", total),
	)
}
