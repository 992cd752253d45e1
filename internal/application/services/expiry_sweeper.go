package services

import (
	"context"
	"time"

	"github.com/zatekoja/medlogistics/backend/internal/infrastructure/observability"
)

// Expirer expires overdue reservations
type Expirer interface {
	ExpireDue(ctx context.Context) (int, error)
}

// ExpirySweeper periodically expires reservations that were never checked in
type ExpirySweeper struct {
	expirer  Expirer
	interval time.Duration
}

// NewExpirySweeper creates a sweeper that runs every interval
func NewExpirySweeper(expirer Expirer, interval time.Duration) *ExpirySweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &ExpirySweeper{expirer: expirer, interval: interval}
}

// SweepOnce runs a single expiry pass
func (s *ExpirySweeper) SweepOnce(ctx context.Context) int {
	logger := observability.ComponentLogger(ctx, "expiry_sweeper")
	expired, err := s.expirer.ExpireDue(ctx)
	if err != nil {
		logger.Error().Err(err).Int("expired", expired).Msg("expiry sweep finished with errors")
		return expired
	}
	if expired > 0 {
		logger.Info().Int("expired", expired).Msg("expired overdue reservations")
	}
	return expired
}

// Run sweeps immediately and then on every tick until ctx is done
func (s *ExpirySweeper) Run(ctx context.Context) {
	logger := observability.ComponentLogger(ctx, "expiry_sweeper")
	logger.Info().Dur("interval", s.interval).Msg("starting expiry sweeper")

	s.SweepOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("stopping expiry sweeper")
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}
