package reconcile

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type Scheduler struct {
	cron     *cron.Cron
	auditor  *Auditor
	schedule string
	logger   *zap.Logger
}

func NewScheduler(auditor *Auditor, schedule string, logger *zap.Logger) *Scheduler {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger), cron.Recover(cron.DiscardLogger)))
	return &Scheduler{cron: c, auditor: auditor, schedule: schedule, logger: logger}
}

// Start registers the reconciliation job and starts the cron loop.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.auditor.RunAndLog); err != nil {
		s.logger.Error("failed to schedule reconciliation job", zap.String("schedule", s.schedule), zap.Error(err))
		return err
	}
	s.logger.Info("scheduled reconciliation job", zap.String("schedule", s.schedule))
	s.cron.Start()
	return nil
}

// Stop halts scheduling; the returned context is done once a running pass finishes.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
