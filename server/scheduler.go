package server

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Scheduler periodically resyncs every active integration.
type Scheduler struct {
	svc          *Service
	integrations IntegrationStore
	interval     time.Duration
	logger       *slog.Logger
}

func NewScheduler(svc *Service, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{svc: svc, integrations: svc.integrations, interval: interval, logger: logger}
}

// Start ticks until ctx is done. It returns immediately when the interval is not positive.
func (s *Scheduler) Start(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce launches a run for each active integration not already running and
// returns how many were started.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	integrations, err := s.integrations.ListIntegrations(ctx, true)
	if err != nil {
		s.logger.Error("failed to list integrations", "error", err)
		return 0
	}
	started := 0
	for _, integration := range integrations {
		err := s.svc.launch(ctx, integration)
		switch {
		case err == nil:
			started++
		case errors.Is(err, ErrSyncInProgress):
			s.logger.Debug("skipping integration with run in progress", "user_id", integration.UserID.String())
		default:
			s.logger.Error("failed to start scheduled synchronization", "user_id", integration.UserID.String(), "error", err)
		}
	}
	if started > 0 {
		s.logger.Info("scheduled synchronizations started", "count", started)
	}
	return started
}
