package domain

import "time"

// Leg is one side of a two-way arbitrage: the bookmaker offering the best
// price for that outcome, the outcome label (name plus point when present),
// and the price in both American and decimal notation.
type Leg struct {
	Bookmaker   string  `json:"bookmaker"`
	Outcome     string  `json:"outcome"`
	Odds        float64 `json:"odds"`
	DecimalOdds float64 `json:"decimalOdds"`
}

// Opportunity is a detected cross-bookmaker arbitrage on a two-way market.
// The defining invariant is ImpliedProbTotal < 1.0; ROI and ProfitPer1000 are
// derived from it.
type Opportunity struct {
	ID         string `json:"id"`
	Sport      string `json:"sport"`
	League     string `json:"league"`
	EventName  string `json:"eventName"`
	HomeTeam   string `json:"homeTeam"`
	AwayTeam   string `json:"awayTeam"`
	MarketType string `json:"marketType"`

	Legs [2]Leg `json:"legs"`

	ROI              float64 `json:"roi"`
	ProfitPer1000    float64 `json:"profitPer1000"`
	ImpliedProbTotal float64 `json:"impliedProbabilityTotal"`

	CommenceTime time.Time `json:"commenceTime"`
	DetectedAt   time.Time `json:"detectedAt"`
	ExpiresAt    time.Time `json:"expiresAt"`

	Active    bool `json:"active"`
	ViewCount int  `json:"viewCount"`
	SaveCount int  `json:"saveCount"`
}

// SavedOpportunity is an opportunity a user bookmarked, with their note.
type SavedOpportunity struct {
	Opportunity
	Notes   string    `json:"notes"`
	SavedAt time.Time `json:"savedAt"`
}

// SaveStatus reports how the store handled a Save call.
type SaveStatus int

const (
	// SaveStatusSaved means a new row was inserted.
	SaveStatusSaved SaveStatus = iota
	// SaveStatusDuplicate means an identical active opportunity already
	// exists; the call was a no-op.
	SaveStatusDuplicate
	// SaveStatusBelowThreshold means the ROI did not meet the configured
	// minimum; nothing was written.
	SaveStatusBelowThreshold
)

// String returns a short label for logging.
func (s SaveStatus) String() string {
	switch s {
	case SaveStatusSaved:
		return "saved"
	case SaveStatusDuplicate:
		return "duplicate"
	case SaveStatusBelowThreshold:
		return "below_threshold"
	default:
		return "unknown"
	}
}

// SaveResult is the tagged outcome of OpportunityStore.Save. ID is set only
// when Status is SaveStatusSaved.
type SaveResult struct {
	Status SaveStatus
	ID     string
}
