package oddsapi

import (
	"context"
	"log/slog"
	"time"

	"github.com/arbflow/arbflow/internal/domain"
)

// OddsSource is the slice of the client the fetcher needs; tests substitute a
// fake.
type OddsSource interface {
	GetOdds(ctx context.Context, sportKey string) ([]APIGame, error)
}

// Fetcher pulls odds snapshots for a fixed list of sports, one sport at a
// time, pausing between calls to respect the provider's quota.
type Fetcher struct {
	source OddsSource
	sports []string
	pace   time.Duration
	logger *slog.Logger
}

// NewFetcher creates a Fetcher over the given sport keys. pace is the delay
// inserted between consecutive per-sport calls.
func NewFetcher(source OddsSource, sports []string, pace time.Duration, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		source: source,
		sports: sports,
		pace:   pace,
		logger: logger.With(slog.String("component", "odds_fetcher")),
	}
}

// FetchAllSports fetches one snapshot per configured sport sequentially. A
// failing sport contributes nothing and is logged; it never aborts the
// remaining sports. Cancellation of ctx stops the loop between sports.
func (f *Fetcher) FetchAllSports(ctx context.Context) []domain.GameOdds {
	var all []domain.GameOdds

	for i, sport := range f.sports {
		if ctx.Err() != nil {
			return all
		}

		games, err := f.source.GetOdds(ctx, sport)
		if err != nil {
			f.logger.WarnContext(ctx, "sport fetch failed, skipping",
				slog.String("sport", sport),
				slog.String("error", err.Error()),
			)
		} else {
			for j := range games {
				all = append(all, games[j].ToDomain())
			}
			f.logger.DebugContext(ctx, "sport fetched",
				slog.String("sport", sport),
				slog.Int("games", len(games)),
			)
		}

		// Pace between calls, not after the last one.
		if i < len(f.sports)-1 && f.pace > 0 {
			select {
			case <-ctx.Done():
				return all
			case <-time.After(f.pace):
			}
		}
	}

	return all
}
