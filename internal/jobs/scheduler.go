// Package jobs runs the bot's periodic maintenance on a gocron scheduler.
package jobs

import (
	"context"
	"fmt"
	"time"

	"crypto-exchange-bot/internal/logger"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// Scheduler owns the gocron scheduler and the context handed to every task.
// Shutdown cancels that context so in-flight tasks stop early.
type Scheduler struct {
	sched  gocron.Scheduler
	ctx    context.Context
	cancel context.CancelFunc
}

func NewScheduler() (*Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{sched: sched, ctx: ctx, cancel: cancel}, nil
}

// Every registers task to run at the given interval. A run that overlaps the
// previous one is skipped.
func (s *Scheduler) Every(name string, interval time.Duration, task func(ctx context.Context) error) error {
	_, err := s.sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			start := time.Now()
			if err := task(s.ctx); err != nil {
				logger.Log.Warn("job failed", zap.String("job", name), zap.Error(err))
				return
			}
			logger.Log.Debug("job finished", zap.String("job", name), zap.Duration("took", time.Since(start)))
		}),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule %s: %w", name, err)
	}
	logger.Log.Info("job scheduled", zap.String("job", name), zap.Duration("interval", interval))
	return nil
}

func (s *Scheduler) Start() {
	s.sched.Start()
}

// Shutdown waits for running tasks after cancelling their context
func (s *Scheduler) Shutdown() error {
	s.cancel()
	return s.sched.Shutdown()
}
