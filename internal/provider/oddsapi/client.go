// Package oddsapi implements the odds-provider client and the sequential
// multi-sport fetcher. The provider speaks The Odds API v4 shape: per-sport
// odds snapshots with a bookmaker list, each bookmaker carrying markets with
// priced outcomes in American notation.
package oddsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// ClientConfig holds provider connection parameters.
type ClientConfig struct {
	// BaseURL is the API root, e.g. "https://api.the-odds-api.com/v4".
	BaseURL string
	APIKey  string
	// Regions and Markets are passed through as provider query params.
	Regions string
	Markets string
	Timeout time.Duration
}

// Client is the REST client for the odds provider.
type Client struct {
	baseURL    string
	apiKey     string
	regions    string
	markets    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a provider client with a bounded request timeout.
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		regions: cfg.Regions,
		markets: cfg.Markets,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.With(slog.String("component", "oddsapi")),
	}
}

// GetOdds fetches the current odds snapshot for one sport. Prices are
// requested in American format. Rate-limit quota headers are logged, not
// enforced.
func (c *Client) GetOdds(ctx context.Context, sportKey string) ([]APIGame, error) {
	params := url.Values{}
	params.Set("apiKey", c.apiKey)
	params.Set("regions", c.regions)
	params.Set("markets", c.markets)
	params.Set("oddsFormat", "american")

	endpoint := fmt.Sprintf("%s/sports/%s/odds?%s", c.baseURL, url.PathEscape(sportKey), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("oddsapi: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("oddsapi: get odds %s: %w", sportKey, err)
	}
	defer resp.Body.Close()

	c.logQuota(ctx, sportKey, resp.Header)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("oddsapi: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("oddsapi: get odds %s: status %d: %s", sportKey, resp.StatusCode, truncate(body, 256))
	}

	var games []APIGame
	if err := json.Unmarshal(body, &games); err != nil {
		return nil, fmt.Errorf("oddsapi: decode odds %s: %w", sportKey, err)
	}

	return games, nil
}

// logQuota surfaces the provider's request-quota headers so operators can
// watch consumption.
func (c *Client) logQuota(ctx context.Context, sportKey string, h http.Header) {
	remaining := h.Get("X-Requests-Remaining")
	used := h.Get("X-Requests-Used")
	if remaining == "" && used == "" {
		return
	}
	c.logger.InfoContext(ctx, "odds api quota",
		slog.String("sport", sportKey),
		slog.String("requests_remaining", remaining),
		slog.String("requests_used", used),
	)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
