package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"tornwatch/internal/catalog"
	"tornwatch/internal/fairvalue"
	"tornwatch/internal/monitor"
	"tornwatch/internal/scheduler"
)

// sweepEvery spaces cache sweeps; a sweep per housekeeping tick would be
// wasted churn on the store.
const sweepEvery = 30 * time.Second

// Service 驱动后台循环：监控轮询与缓存清理。
type Service struct {
	scheduler *scheduler.Scheduler
	monitor   *monitor.Monitor
	fair      *fairvalue.Cache
	catalog   *catalog.Cache
	logger    zerolog.Logger

	lastSweep time.Time
}

// New constructs the background service.
func New(sched *scheduler.Scheduler, mon *monitor.Monitor, fair *fairvalue.Cache, cat *catalog.Cache, logger zerolog.Logger) *Service {
	return &Service{
		scheduler: sched,
		monitor:   mon,
		fair:      fair,
		catalog:   cat,
		logger:    logger.With().Str("component", "service").Logger(),
	}
}

// Run begins the housekeeping loop. The catalog is warmed up front so the
// first poll does not pay the directory fetch.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}

	if s.catalog != nil {
		if _, err := s.catalog.Get(ctx, false); err != nil {
			s.logger.Warn().Err(err).Msg("catalog warmup failed, continuing")
		}
	}

	return s.scheduler.Run(ctx, s.tick)
}

func (s *Service) tick(ctx context.Context, now time.Time) error {
	if s.monitor != nil {
		s.monitor.Tick(ctx)
	}
	if s.fair != nil && now.Sub(s.lastSweep) >= sweepEvery {
		s.fair.Sweep(ctx)
		s.lastSweep = now
	}
	return nil
}
