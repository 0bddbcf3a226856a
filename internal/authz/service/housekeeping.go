package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/authz/internal/authz/actor"
)

// HousekeepingService periodically fires persisted alarms that are due, so
// codes whose in-process timer was lost to a restart are still collected.
type HousekeepingService struct {
	Actors   *actor.Registry
	Logger   *slog.Logger
	Interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a new housekeeping service with the given interval.
// If interval is 0 or negative, defaults to 1 hour.
func NewHousekeepingService(actors *actor.Registry, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = 1 * time.Hour
	}

	return &HousekeepingService{
		Actors:   actors,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background worker. Call Stop to shut it down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop blocks until an in-progress sweep has finished.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	// Catch up on alarms missed while the process was down.
	s.sweep()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopCh:
			return
		}
	}
}

func (s *HousekeepingService) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.Interval)
	defer cancel()

	fired, err := s.Actors.FireDue(ctx)
	if err != nil {
		s.Logger.Error("failed to fire due alarms", "error", err, "fired", fired)
		return
	}
	s.Logger.Debug("housekeeping sweep completed", "fired", fired)
}
