// Package notify delivers operator alerts for detected arbitrage
// opportunities. Alerts fan out to all configured senders (Telegram,
// Discord) and can be filtered by event type.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/arbflow/arbflow/internal/domain"
)

// Event types emitted by the scanner.
const (
	EventOpportunityDetected = "opportunity_detected"
	EventScanFailed          = "scan_failed"
)

// Sender is a single notification channel.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name identifies the channel, e.g. "telegram".
	Name() string
}

// Notifier dispatches alerts to one or more Senders, filtered by event type.
// An empty event list allows everything.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier delivering to the given senders.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// AlertOpportunity formats and sends an alert for a freshly detected
// opportunity.
func (n *Notifier) AlertOpportunity(ctx context.Context, opp domain.Opportunity) error {
	title := fmt.Sprintf("Arbitrage: %.2f%% ROI on %s", opp.ROI, opp.EventName)
	message := formatOpportunity(opp)
	return n.Notify(ctx, EventOpportunityDetected, title, message)
}

// formatOpportunity renders a two-leg opportunity as a plain-text summary.
func formatOpportunity(opp domain.Opportunity) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s | %s\n", opp.Sport, opp.MarketType)
	for _, leg := range opp.Legs {
		fmt.Fprintf(&b, "%s: %s @ %+.0f (%.3f)\n", leg.Bookmaker, leg.Outcome, leg.Odds, leg.DecimalOdds)
	}
	fmt.Fprintf(&b, "Profit per $1000: $%.2f\n", opp.ProfitPer1000)
	fmt.Fprintf(&b, "Expires: %s", opp.ExpiresAt.Format("15:04:05 MST"))
	return b.String()
}

// Notify sends to all senders if the event type passes the filter.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out",
			slog.String("event", event),
		)
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// dispatch delivers to every sender, collecting failures so one broken
// channel does not block the others.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

// postJSON posts a JSON payload and treats any non-2xx status as an error.
func postJSON(ctx context.Context, client *http.Client, name, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: marshal payload: %w", name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: create request: %w", name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: send request: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s: unexpected status %d: %s", name, resp.StatusCode, string(respBody))
	}
	return nil
}
