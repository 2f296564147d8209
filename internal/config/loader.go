package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ARBFLOW_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ARBFLOW_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Provider ──
	setStr(&cfg.Provider.BaseURL, "ARBFLOW_PROVIDER_BASE_URL")
	setStr(&cfg.Provider.APIKey, "ARBFLOW_PROVIDER_API_KEY")
	setStr(&cfg.Provider.APIKey, "ODDS_API_KEY") // compatibility alias
	setStr(&cfg.Provider.Regions, "ARBFLOW_PROVIDER_REGIONS")
	setStr(&cfg.Provider.Markets, "ARBFLOW_PROVIDER_MARKETS")
	setDuration(&cfg.Provider.Timeout, "ARBFLOW_PROVIDER_TIMEOUT")

	// ── Scan ──
	setStringSlice(&cfg.Scan.Sports, "ARBFLOW_SCAN_SPORTS")
	setDuration(&cfg.Scan.Interval, "ARBFLOW_SCAN_INTERVAL")
	setDuration(&cfg.Scan.Warmup, "ARBFLOW_SCAN_WARMUP")
	setDuration(&cfg.Scan.Pace, "ARBFLOW_SCAN_PACE")
	setInt(&cfg.Scan.Concurrency, "ARBFLOW_SCAN_CONCURRENCY")
	setFloat64(&cfg.Scan.MinROI, "ARBFLOW_SCAN_MIN_ROI")
	setDuration(&cfg.Scan.ArchiveAfter, "ARBFLOW_SCAN_ARCHIVE_AFTER")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "ARBFLOW_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "ARBFLOW_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ARBFLOW_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ARBFLOW_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ARBFLOW_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ARBFLOW_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ARBFLOW_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "ARBFLOW_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "ARBFLOW_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "ARBFLOW_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "ARBFLOW_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "ARBFLOW_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ARBFLOW_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ARBFLOW_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ARBFLOW_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ARBFLOW_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ARBFLOW_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "ARBFLOW_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "ARBFLOW_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ARBFLOW_S3_REGION")
	setStr(&cfg.S3.Bucket, "ARBFLOW_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "ARBFLOW_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ARBFLOW_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "ARBFLOW_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "ARBFLOW_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "ARBFLOW_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "ARBFLOW_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "ARBFLOW_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimit, "ARBFLOW_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "ARBFLOW_SERVER_RATE_WINDOW")

	// ── Auth ──
	setStr(&cfg.Auth.Secret, "ARBFLOW_AUTH_SECRET")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "ARBFLOW_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ARBFLOW_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "ARBFLOW_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "ARBFLOW_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "ARBFLOW_MODE")
	setStr(&cfg.LogLevel, "ARBFLOW_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
