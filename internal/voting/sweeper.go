package voting

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

var errMissingSweepService = errors.New("sweeper: voting service required")

// SweeperConfig configures the optional periodic expiry sweep.
type SweeperConfig struct {
	Service  *Service
	Interval time.Duration
	Logger   *zap.Logger
}

// Sweeper periodically removes expired poll groups. Expiry on access still applies without it.
type Sweeper struct {
	service  *Service
	interval time.Duration
	logger   *zap.Logger
}

// NewSweeper constructs a Sweeper. A non-positive interval yields a sweeper whose Run returns immediately.
func NewSweeper(cfg SweeperConfig) (*Sweeper, error) {
	if cfg.Service == nil {
		return nil, errMissingSweepService
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Sweeper{
		service:  cfg.Service,
		interval: cfg.Interval,
		logger:   logger,
	}, nil
}

// Enabled reports whether Run will sweep at all.
func (s *Sweeper) Enabled() bool {
	return s != nil && s.interval > 0
}

// Run sweeps on every tick until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	if !s.Enabled() {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("expiry sweeper started", zap.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("expiry sweeper stopped")
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	removed, err := s.service.SweepExpired(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		s.logger.Warn("expiry sweep failed", zap.Error(err), zap.Int("removed", removed))
		return
	}
	if removed > 0 {
		s.logger.Info("expiry sweep removed groups", zap.Int("removed", removed))
	}
}
