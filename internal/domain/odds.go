// Package domain defines the core types shared across the odds scanner:
// provider odds snapshots, detected arbitrage opportunities, and the store
// interfaces the rest of the system is wired against.
package domain

import "time"

// Outcome is a single priced outcome within a bookmaker market. Price is in
// American odds notation. Point carries the spread/total line when the market
// has one; it is nil for moneyline outcomes.
type Outcome struct {
	Name  string
	Price float64
	Point *float64
}

// Market is one market type (e.g. "h2h", "spreads", "totals") as quoted by a
// single bookmaker.
type Market struct {
	Key      string
	Outcomes []Outcome
}

// Bookmaker is one bookmaker's full quote set for a game.
type Bookmaker struct {
	Key     string
	Title   string
	Markets []Market
}

// GameOdds is a point-in-time odds snapshot for one game across every
// bookmaker the provider returned. It is ephemeral: produced by the fetcher,
// consumed by the detector, never persisted.
type GameOdds struct {
	SportKey     string
	SportTitle   string
	HomeTeam     string
	AwayTeam     string
	CommenceTime time.Time
	Bookmakers   []Bookmaker
}

// FindMarket returns the bookmaker's market with the given key, or nil.
func (b *Bookmaker) FindMarket(key string) *Market {
	for i := range b.Markets {
		if b.Markets[i].Key == key {
			return &b.Markets[i]
		}
	}
	return nil
}
