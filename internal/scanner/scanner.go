// Package scanner drives the periodic odds scan: fetch, detect, persist,
// notify, expire. One cycle runs at a time; ticks that land while a cycle is
// still in flight are dropped.
package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/arbflow/arbflow/internal/arb"
	"github.com/arbflow/arbflow/internal/domain"
	"github.com/arbflow/arbflow/internal/notify"
)

// Config controls scan timing.
type Config struct {
	// Warmup delays the first scan after startup.
	Warmup time.Duration

	// Interval between scan cycles.
	Interval time.Duration

	// Concurrency bounds the per-game detect+save fan-out.
	Concurrency int
}

// Defaults returns the standard scan timing.
func Defaults() Config {
	return Config{
		Warmup:      5 * time.Second,
		Interval:    60 * time.Second,
		Concurrency: 8,
	}
}

// OddsFetcher pulls the current odds snapshot across all configured sports.
type OddsFetcher interface {
	FetchAllSports(ctx context.Context) []domain.GameOdds
}

// Scanner runs the scan loop.
type Scanner struct {
	cfg      Config
	fetcher  OddsFetcher
	detector *arb.Detector
	store    domain.OpportunityStore
	cache    domain.OpportunityCache // optional
	notifier domain.OpportunityNotifier
	alerts   *notify.Notifier // optional
	logger   *slog.Logger

	scanning atomic.Bool
}

// New creates a Scanner. cache and alerts may be nil.
func New(
	cfg Config,
	fetcher OddsFetcher,
	detector *arb.Detector,
	store domain.OpportunityStore,
	cache domain.OpportunityCache,
	notifier domain.OpportunityNotifier,
	alerts *notify.Notifier,
	logger *slog.Logger,
) *Scanner {
	if cfg.Interval <= 0 {
		cfg.Interval = 60 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	return &Scanner{
		cfg:      cfg,
		fetcher:  fetcher,
		detector: detector,
		store:    store,
		cache:    cache,
		notifier: notifier,
		alerts:   alerts,
		logger:   logger.With(slog.String("component", "scanner")),
	}
}

// Scanning reports whether a cycle is currently in flight.
func (s *Scanner) Scanning() bool {
	return s.scanning.Load()
}

// Run blocks until the context is cancelled. The first cycle fires after the
// warmup delay, then every Interval. A tick arriving mid-cycle is skipped.
func (s *Scanner) Run(ctx context.Context) error {
	s.logger.Info("scanner: starting",
		slog.Duration("warmup", s.cfg.Warmup),
		slog.Duration("interval", s.cfg.Interval),
	)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.cfg.Warmup):
	}
	s.RunCycle(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if s.scanning.Load() {
				s.logger.Warn("scanner: previous cycle still running, skipping tick")
				continue
			}
			s.RunCycle(ctx)
		}
	}
}

// RunCycle executes one full scan cycle. Failures are logged, never
// propagated; one bad cycle must not take the loop down.
func (s *Scanner) RunCycle(ctx context.Context) {
	if !s.scanning.CompareAndSwap(false, true) {
		return
	}
	defer s.scanning.Store(false)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scanner: cycle panicked", slog.Any("panic", r))
			s.alertScanFailure(ctx, fmt.Sprintf("cycle panic: %v", r))
		}
	}()

	start := time.Now()
	games := s.fetcher.FetchAllSports(ctx)
	if ctx.Err() != nil {
		return
	}

	var saved, duplicates, belowThreshold int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, game := range games {
		g.Go(func() error {
			n, d, b := s.processGame(gctx, game)
			atomic.AddInt64(&saved, n)
			atomic.AddInt64(&duplicates, d)
			atomic.AddInt64(&belowThreshold, b)
			return nil
		})
	}
	g.Wait()

	if saved > 0 {
		s.invalidateCache(ctx)
	}

	s.expireOpportunities(ctx)

	s.logger.Info("scanner: cycle complete",
		slog.Int("games", len(games)),
		slog.Int64("saved", saved),
		slog.Int64("duplicates", duplicates),
		slog.Int64("below_threshold", belowThreshold),
		slog.Duration("duration", time.Since(start)),
	)
}

// processGame detects and persists opportunities for one game. Returns
// counts of saved, duplicate and below-threshold results.
func (s *Scanner) processGame(ctx context.Context, game domain.GameOdds) (saved, duplicates, belowThreshold int64) {
	for _, opp := range s.detector.Detect(game) {
		result, err := s.store.Save(ctx, opp)
		if err != nil {
			s.logger.Error("scanner: save failed",
				slog.String("event", opp.EventName),
				slog.String("error", err.Error()),
			)
			continue
		}

		switch result.Status {
		case domain.SaveStatusSaved:
			saved++
			s.announce(ctx, opp)
		case domain.SaveStatusDuplicate:
			duplicates++
		case domain.SaveStatusBelowThreshold:
			belowThreshold++
		}
	}
	return saved, duplicates, belowThreshold
}

// announce pushes a persisted opportunity to websocket clients and the
// operator alert channels.
func (s *Scanner) announce(ctx context.Context, opp domain.Opportunity) {
	s.logger.Info("scanner: opportunity detected",
		slog.String("id", opp.ID),
		slog.String("event", opp.EventName),
		slog.String("market", opp.MarketType),
		slog.Float64("roi", opp.ROI),
	)

	if s.notifier != nil {
		s.notifier.NotifyNewOpportunity(opp)
	}
	if s.alerts != nil {
		if err := s.alerts.AlertOpportunity(ctx, opp); err != nil {
			s.logger.Warn("scanner: alert failed", slog.String("error", err.Error()))
		}
	}
}

// alertScanFailure pushes a scan-failure notice to the operator channels.
func (s *Scanner) alertScanFailure(ctx context.Context, detail string) {
	if s.alerts == nil {
		return
	}
	if err := s.alerts.Notify(ctx, notify.EventScanFailed, "Scan cycle failed", detail); err != nil {
		s.logger.Warn("scanner: failure alert not delivered", slog.String("error", err.Error()))
	}
}

// expireOpportunities sweeps opportunities past their expiry and tells
// connected clients about each one.
func (s *Scanner) expireOpportunities(ctx context.Context) {
	ids, err := s.store.DeactivateExpired(ctx)
	if err != nil {
		s.logger.Error("scanner: expiry sweep failed", slog.String("error", err.Error()))
		return
	}
	if len(ids) == 0 {
		return
	}

	s.logger.Info("scanner: deactivated expired opportunities", slog.Int("count", len(ids)))

	if s.notifier != nil {
		for _, id := range ids {
			s.notifier.NotifyOpportunityExpired(id)
		}
	}
	s.invalidateCache(ctx)
}

func (s *Scanner) invalidateCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn("scanner: cache invalidation failed", slog.String("error", err.Error()))
	}
}
