package domain

import (
	"context"
	"time"
)

// OpportunityFilter narrows list queries from the read API.
type OpportunityFilter struct {
	Sport  string
	MinROI float64
	Limit  int
	Offset int
}

// OpportunityStore persists detected opportunities with duplicate suppression
// and time-based deactivation.
type OpportunityStore interface {
	// Save inserts the opportunity unless its ROI is below the configured
	// minimum or an identical active row already exists. Both outcomes are
	// reported through the SaveResult, not as errors.
	Save(ctx context.Context, opp Opportunity) (SaveResult, error)

	// DeactivateExpired flips active=false on every still-active row whose
	// expiry has passed and returns the deactivated IDs. Safe to run on any
	// interval.
	DeactivateExpired(ctx context.Context) ([]string, error)

	ListActive(ctx context.Context, filter OpportunityFilter) ([]Opportunity, error)
	GetByID(ctx context.Context, id string) (Opportunity, error)
	IncrementViewCount(ctx context.Context, id string) error

	// SaveForUser bookmarks an opportunity for a user, upserting the note.
	SaveForUser(ctx context.Context, userID, oppID, notes string) error
	ListSavedByUser(ctx context.Context, userID string) ([]SavedOpportunity, error)

	// ListDeactivatedBefore returns inactive rows whose expiry passed before
	// cutoff, for cold-storage archival.
	ListDeactivatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]Opportunity, error)
}

// OpportunityCache is a read-path cache for the active opportunity list.
type OpportunityCache interface {
	GetActive(ctx context.Context, key string) ([]Opportunity, error)
	SetActive(ctx context.Context, key string, opps []Opportunity) error
	Invalidate(ctx context.Context) error
}

// OpportunityNotifier receives newly persisted opportunities and expiry
// events. Implemented by the realtime hub.
type OpportunityNotifier interface {
	NotifyNewOpportunity(opp Opportunity)
	NotifyOpportunityExpired(id string)
}
