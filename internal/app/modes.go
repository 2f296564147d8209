package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/arbflow/arbflow/internal/arb"
	"github.com/arbflow/arbflow/internal/domain"
	"github.com/arbflow/arbflow/internal/scanner"
	"github.com/arbflow/arbflow/internal/server"
	"github.com/arbflow/arbflow/internal/server/handler"
	"github.com/arbflow/arbflow/internal/server/ws"
)

// archiveSweepInterval is how often the archival job looks for rows to move
// to cold storage.
const archiveSweepInterval = time.Hour

// ScanMode runs the scan loop without the API server. Detected opportunities
// still reach the operator alert channels; there are no websocket clients to
// notify.
func (a *App) ScanMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting scan mode")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.newScanner(deps, nil).Run(ctx)
	})
	a.startArchiver(ctx, g, deps)

	return g.Wait()
}

// ServerMode runs the API server and realtime hub without scanning. Useful
// when a separate scan-mode process owns the provider quota.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)

	hub := ws.NewHub(deps.Verifier, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})
	a.startHTTPServer(ctx, g, deps, hub)
	a.startArchiver(ctx, g, deps)

	return g.Wait()
}

// FullMode runs the scanner and the API server in one process, sharing the
// realtime hub so scan results stream straight out to connected clients.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	hub := ws.NewHub(deps.Verifier, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	g.Go(func() error {
		return a.newScanner(deps, hub).Run(ctx)
	})

	a.startHTTPServer(ctx, g, deps, hub)
	a.startArchiver(ctx, g, deps)

	return g.Wait()
}

// newScanner assembles the scan loop from wired dependencies. notifier may
// be nil when no hub is running.
func (a *App) newScanner(deps *Dependencies, notifier domain.OpportunityNotifier) *scanner.Scanner {
	return scanner.New(
		scanner.Config{
			Warmup:      a.cfg.Scan.Warmup.Duration,
			Interval:    a.cfg.Scan.Interval.Duration,
			Concurrency: a.cfg.Scan.Concurrency,
		},
		deps.Fetcher,
		arb.NewDetector(),
		deps.Store,
		deps.Cache,
		notifier,
		deps.Alerts,
		a.logger,
	)
}

// startHTTPServer registers routes and runs the server until the context is
// cancelled, then shuts it down gracefully.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, hub *ws.Hub) {
	if !a.cfg.Server.Enabled {
		a.logger.InfoContext(ctx, "http server disabled")
		return
	}

	srv := server.NewServer(
		server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
			RateLimit:   a.cfg.Server.RateLimit,
			RateWindow:  a.cfg.Server.RateWindow.Duration,
		},
		server.Handlers{
			Health:        handler.NewHealthHandler(a.logger),
			Opportunities: handler.NewOpportunityHandler(deps.Store, deps.Cache, a.logger),
		},
		hub,
		deps.Verifier,
		deps.RateLimiter,
		a.logger,
	)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// startArchiver periodically moves long-deactivated opportunities to object
// storage. No-op when archival is not configured.
func (a *App) startArchiver(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Archiver == nil || a.cfg.Scan.ArchiveAfter.Duration <= 0 {
		return
	}

	retention := a.cfg.Scan.ArchiveAfter.Duration
	g.Go(func() error {
		if days, err := deps.Archiver.ArchivedDays(ctx); err != nil {
			a.logger.WarnContext(ctx, "archive inventory unavailable",
				slog.String("error", err.Error()),
			)
		} else {
			a.logger.InfoContext(ctx, "archive inventory",
				slog.Int("days", len(days)),
			)
		}

		ticker := time.NewTicker(archiveSweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				cutoff := time.Now().UTC().Add(-retention)
				count, err := deps.Archiver.ArchiveOpportunities(ctx, cutoff)
				if err != nil {
					a.logger.ErrorContext(ctx, "archive sweep failed",
						slog.String("error", err.Error()),
					)
					continue
				}
				if count > 0 {
					a.logger.InfoContext(ctx, "archive sweep complete",
						slog.Int64("archived", count),
					)
				}
			}
		}
	})
}
