// services/scheduler.go
package services

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// RerankScheduler periodically re-runs the ranker over periods touched since its last pass,
// so concurrent triggers from different users always converge on the same order.
type RerankScheduler struct {
	engine   *Engine
	interval time.Duration
	logger   *zap.Logger

	sched gocron.Scheduler
	mu    sync.Mutex
	since time.Time
}

func NewRerankScheduler(engine *Engine, interval time.Duration, logger *zap.Logger) *RerankScheduler {
	return &RerankScheduler{
		engine:   engine,
		interval: interval,
		logger:   logger.Named("rerank_scheduler"),
	}
}

func (s *RerankScheduler) Start(ctx context.Context) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	_, err = sched.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() { s.RunOnce(ctx) }),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return err
	}
	s.sched = sched
	sched.Start()
	s.logger.Info("rerank scheduler started", zap.Duration("interval", s.interval))
	return nil
}

func (s *RerankScheduler) Stop() {
	if s.sched == nil {
		return
	}
	if err := s.sched.Shutdown(); err != nil {
		s.logger.Warn("rerank scheduler shutdown", zap.Error(err))
	}
}

// RunOnce reranks every period whose scores changed since the previous pass.
// The first pass covers all periods.
func (s *RerankScheduler) RunOnce(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	started := time.Now()
	periods, err := s.engine.ActivePeriods(ctx, s.since)
	if err != nil {
		s.logger.Error("list active periods", zap.Error(err))
		return
	}
	failed := 0
	for _, p := range periods {
		n, err := s.engine.RerankPeriod(ctx, p)
		if err != nil {
			failed++
			s.logger.Error("rerank failed", zap.String("period", p), zap.Error(err))
			continue
		}
		s.logger.Debug("period reranked", zap.String("period", p), zap.Int("rows", n))
	}
	if failed == 0 {
		// Overlap by one interval so rows committed during this pass are picked up next time.
		s.since = started.Add(-s.interval)
	}
	if len(periods) > 0 {
		s.logger.Info("rerank pass done", zap.Int("periods", len(periods)), zap.Int("failed", failed))
	}
}
