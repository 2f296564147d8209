package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/arbflow/arbflow/internal/auth"
	s3blob "github.com/arbflow/arbflow/internal/blob/s3"
	"github.com/arbflow/arbflow/internal/cache/redis"
	"github.com/arbflow/arbflow/internal/config"
	"github.com/arbflow/arbflow/internal/domain"
	"github.com/arbflow/arbflow/internal/notify"
	"github.com/arbflow/arbflow/internal/provider/oddsapi"
	"github.com/arbflow/arbflow/internal/store/postgres"
)

// Dependencies bundles every dependency the application modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Store domain.OpportunityStore

	// Cache and RateLimiter are nil when Redis is disabled.
	Cache       domain.OpportunityCache
	RateLimiter domain.RateLimiter

	// Fetcher is nil for server mode.
	Fetcher *oddsapi.Fetcher

	// Archiver is nil when S3 is disabled.
	Archiver *s3blob.Archiver

	Verifier auth.TokenVerifier
	Alerts   *notify.Notifier
}

// needsFetcher returns true for modes that scan the odds provider.
func needsFetcher(mode string) bool {
	switch strings.ToLower(mode) {
	case "scan", "full":
		return true
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them with a cleanup function to be called on
// shutdown.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	deps.Store = postgres.NewOpportunityStore(pgClient.Pool(), cfg.Scan.MinROI)

	// --- Redis (optional) ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Cache = redis.NewOpportunityCache(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
	}

	// --- Odds provider ---
	if needsFetcher(cfg.Mode) {
		client := oddsapi.NewClient(oddsapi.ClientConfig{
			BaseURL: cfg.Provider.BaseURL,
			APIKey:  cfg.Provider.APIKey,
			Regions: cfg.Provider.Regions,
			Markets: cfg.Provider.Markets,
			Timeout: cfg.Provider.Timeout.Duration,
		}, logger)
		deps.Fetcher = oddsapi.NewFetcher(client, cfg.Scan.Sports, cfg.Scan.Pace.Duration, logger)
	}

	// --- S3 archival (optional) ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}

		deps.Archiver = s3blob.NewArchiver(
			deps.Store,
			s3blob.NewWriter(s3Client),
			s3blob.NewReader(s3Client),
			logger,
		)
	}

	// --- Auth ---
	deps.Verifier = auth.NewHMACVerifier(cfg.Auth.Secret)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Alerts = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
