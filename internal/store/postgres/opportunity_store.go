package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arbflow/arbflow/internal/domain"
)

// pgUniqueViolation is the PostgreSQL error code for a unique constraint
// violation.
const pgUniqueViolation = "23505"

// OpportunityStore implements domain.OpportunityStore using PostgreSQL.
type OpportunityStore struct {
	pool *pgxpool.Pool
	// minROI filters market noise: opportunities below this percentage are
	// rejected before any write.
	minROI float64
}

// NewOpportunityStore creates an OpportunityStore over the given pool with
// the configured minimum ROI threshold.
func NewOpportunityStore(pool *pgxpool.Pool, minROI float64) *OpportunityStore {
	return &OpportunityStore{pool: pool, minROI: minROI}
}

// Save persists an opportunity. Below-threshold ROI and duplicate natural
// keys are reported through the tagged SaveResult, never as errors; repeated
// detection of a standing opportunity across scan cycles is a silent no-op.
func (s *OpportunityStore) Save(ctx context.Context, opp domain.Opportunity) (domain.SaveResult, error) {
	if opp.ROI < s.minROI {
		return domain.SaveResult{Status: domain.SaveStatusBelowThreshold}, nil
	}

	const query = `
		INSERT INTO opportunities (
			id, sport, league, event_name, home_team, away_team, market_type,
			book1_name, book1_outcome, book1_odds, book1_decimal_odds,
			book2_name, book2_outcome, book2_odds, book2_decimal_odds,
			roi, profit_per_1000, implied_probability_total,
			commence_time, detected_at, expires_at, is_active
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11,
			$12, $13, $14, $15,
			$16, $17, $18,
			$19, $20, $21, TRUE
		)
		RETURNING id`

	var id string
	err := s.pool.QueryRow(ctx, query,
		opp.ID, opp.Sport, opp.League, opp.EventName, opp.HomeTeam, opp.AwayTeam, opp.MarketType,
		opp.Legs[0].Bookmaker, opp.Legs[0].Outcome, opp.Legs[0].Odds, opp.Legs[0].DecimalOdds,
		opp.Legs[1].Bookmaker, opp.Legs[1].Outcome, opp.Legs[1].Odds, opp.Legs[1].DecimalOdds,
		opp.ROI, opp.ProfitPer1000, opp.ImpliedProbTotal,
		opp.CommenceTime, opp.DetectedAt, opp.ExpiresAt,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return domain.SaveResult{Status: domain.SaveStatusDuplicate}, nil
		}
		return domain.SaveResult{}, fmt.Errorf("postgres: save opportunity: %w", err)
	}

	return domain.SaveResult{Status: domain.SaveStatusSaved, ID: id}, nil
}

// DeactivateExpired flips active=false on every still-active expired row and
// returns the affected IDs. Running it twice in a row affects zero rows the
// second time.
func (s *OpportunityStore) DeactivateExpired(ctx context.Context) ([]string, error) {
	const query = `
		UPDATE opportunities
		SET is_active = FALSE
		WHERE expires_at < NOW() AND is_active = TRUE
		RETURNING id`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: deactivate expired: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres: scan deactivated id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: deactivate expired rows: %w", err)
	}
	return ids, nil
}

const opportunityCols = `id, sport, league, event_name, home_team, away_team, market_type,
	book1_name, book1_outcome, book1_odds, book1_decimal_odds,
	book2_name, book2_outcome, book2_odds, book2_decimal_odds,
	roi, profit_per_1000, implied_probability_total,
	commence_time, detected_at, expires_at, is_active, view_count, save_count`

// scanOpportunity scans a full opportunity row.
func scanOpportunity(row pgx.Row) (domain.Opportunity, error) {
	var o domain.Opportunity
	err := row.Scan(
		&o.ID, &o.Sport, &o.League, &o.EventName, &o.HomeTeam, &o.AwayTeam, &o.MarketType,
		&o.Legs[0].Bookmaker, &o.Legs[0].Outcome, &o.Legs[0].Odds, &o.Legs[0].DecimalOdds,
		&o.Legs[1].Bookmaker, &o.Legs[1].Outcome, &o.Legs[1].Odds, &o.Legs[1].DecimalOdds,
		&o.ROI, &o.ProfitPer1000, &o.ImpliedProbTotal,
		&o.CommenceTime, &o.DetectedAt, &o.ExpiresAt, &o.Active, &o.ViewCount, &o.SaveCount,
	)
	if err != nil {
		return domain.Opportunity{}, err
	}
	return o, nil
}

// ListActive returns active, unexpired opportunities ordered by ROI, then
// recency.
func (s *OpportunityStore) ListActive(ctx context.Context, filter domain.OpportunityFilter) ([]domain.Opportunity, error) {
	query := `SELECT ` + opportunityCols + ` FROM opportunities WHERE is_active = TRUE AND expires_at > NOW()`
	args := []any{}
	argIdx := 1

	if filter.Sport != "" {
		query += fmt.Sprintf(" AND sport = $%d", argIdx)
		args = append(args, filter.Sport)
		argIdx++
	}
	if filter.MinROI > 0 {
		query += fmt.Sprintf(" AND roi >= $%d", argIdx)
		args = append(args, filter.MinROI)
		argIdx++
	}

	query += " ORDER BY roi DESC, detected_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, filter.Limit)
		argIdx++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active opportunities: %w", err)
	}
	defer rows.Close()

	return collectOpportunities(rows)
}

// GetByID retrieves a single opportunity.
func (s *OpportunityStore) GetByID(ctx context.Context, id string) (domain.Opportunity, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+opportunityCols+` FROM opportunities WHERE id = $1`, id)
	o, err := scanOpportunity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Opportunity{}, domain.ErrNotFound
		}
		return domain.Opportunity{}, fmt.Errorf("postgres: get opportunity %s: %w", id, err)
	}
	return o, nil
}

// IncrementViewCount bumps the view counter for the read API.
func (s *OpportunityStore) IncrementViewCount(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE opportunities SET view_count = view_count + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: increment view count %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SaveForUser bookmarks an opportunity for a user, updating the note on
// repeat saves, and bumps the save counter on first save.
func (s *OpportunityStore) SaveForUser(ctx context.Context, userID, oppID, notes string) error {
	// xmax = 0 distinguishes a fresh insert from a conflict update.
	var inserted bool
	err := s.pool.QueryRow(ctx, `
		INSERT INTO saved_opportunities (user_id, opportunity_id, notes)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, opportunity_id) DO UPDATE SET notes = EXCLUDED.notes
		RETURNING (xmax = 0)`,
		userID, oppID, notes,
	).Scan(&inserted)
	if err != nil {
		return fmt.Errorf("postgres: save opportunity %s for user %s: %w", oppID, userID, err)
	}

	if inserted {
		if _, err := s.pool.Exec(ctx,
			`UPDATE opportunities SET save_count = save_count + 1 WHERE id = $1`, oppID); err != nil {
			return fmt.Errorf("postgres: increment save count %s: %w", oppID, err)
		}
	}
	return nil
}

// ListSavedByUser returns the user's bookmarked opportunities, newest first.
func (s *OpportunityStore) ListSavedByUser(ctx context.Context, userID string) ([]domain.SavedOpportunity, error) {
	query := `
		SELECT ` + qualify("o", opportunityCols) + `, so.notes, so.saved_at
		FROM opportunities o
		JOIN saved_opportunities so ON o.id = so.opportunity_id
		WHERE so.user_id = $1
		ORDER BY so.saved_at DESC`

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list saved opportunities: %w", err)
	}
	defer rows.Close()

	var saved []domain.SavedOpportunity
	for rows.Next() {
		var so domain.SavedOpportunity
		o := &so.Opportunity
		if err := rows.Scan(
			&o.ID, &o.Sport, &o.League, &o.EventName, &o.HomeTeam, &o.AwayTeam, &o.MarketType,
			&o.Legs[0].Bookmaker, &o.Legs[0].Outcome, &o.Legs[0].Odds, &o.Legs[0].DecimalOdds,
			&o.Legs[1].Bookmaker, &o.Legs[1].Outcome, &o.Legs[1].Odds, &o.Legs[1].DecimalOdds,
			&o.ROI, &o.ProfitPer1000, &o.ImpliedProbTotal,
			&o.CommenceTime, &o.DetectedAt, &o.ExpiresAt, &o.Active, &o.ViewCount, &o.SaveCount,
			&so.Notes, &so.SavedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan saved opportunity: %w", err)
		}
		saved = append(saved, so)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list saved opportunities rows: %w", err)
	}
	return saved, nil
}

// ListDeactivatedBefore returns inactive opportunities that expired before
// cutoff, oldest first, for cold-storage archival.
func (s *OpportunityStore) ListDeactivatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Opportunity, error) {
	query := `SELECT ` + opportunityCols + `
		FROM opportunities
		WHERE is_active = FALSE AND expires_at < $1
		ORDER BY expires_at ASC`
	args := []any{cutoff}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list deactivated opportunities: %w", err)
	}
	defer rows.Close()

	return collectOpportunities(rows)
}

// collectOpportunities drains rows into a slice.
func collectOpportunities(rows pgx.Rows) ([]domain.Opportunity, error) {
	var opps []domain.Opportunity
	for rows.Next() {
		o, err := scanOpportunity(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan opportunity: %w", err)
		}
		opps = append(opps, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: opportunity rows: %w", err)
	}
	return opps, nil
}

// qualify prefixes every column in a comma-separated list with a table alias.
func qualify(alias, cols string) string {
	parts := strings.Split(cols, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

// Compile-time interface check.
var _ domain.OpportunityStore = (*OpportunityStore)(nil)
