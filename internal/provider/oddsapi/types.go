package oddsapi

import (
	"time"

	"github.com/arbflow/arbflow/internal/domain"
)

// APIOutcome is one priced outcome in the provider response.
type APIOutcome struct {
	Name  string   `json:"name"`
	Price float64  `json:"price"`
	Point *float64 `json:"point,omitempty"`
}

// APIMarket is one market as quoted by a bookmaker.
type APIMarket struct {
	Key        string       `json:"key"`
	LastUpdate time.Time    `json:"last_update"`
	Outcomes   []APIOutcome `json:"outcomes"`
}

// APIBookmaker is one bookmaker's quote set within a game.
type APIBookmaker struct {
	Key        string      `json:"key"`
	Title      string      `json:"title"`
	LastUpdate time.Time   `json:"last_update"`
	Markets    []APIMarket `json:"markets"`
}

// APIGame is one game in the provider's odds response.
type APIGame struct {
	ID           string         `json:"id"`
	SportKey     string         `json:"sport_key"`
	SportTitle   string         `json:"sport_title"`
	CommenceTime time.Time      `json:"commence_time"`
	HomeTeam     string         `json:"home_team"`
	AwayTeam     string         `json:"away_team"`
	Bookmakers   []APIBookmaker `json:"bookmakers"`
}

// ToDomain normalizes the provider shape into a domain.GameOdds. Prices pass
// through untouched; the fetcher performs no odds interpretation.
func (g *APIGame) ToDomain() domain.GameOdds {
	bookmakers := make([]domain.Bookmaker, 0, len(g.Bookmakers))
	for _, b := range g.Bookmakers {
		markets := make([]domain.Market, 0, len(b.Markets))
		for _, m := range b.Markets {
			outcomes := make([]domain.Outcome, 0, len(m.Outcomes))
			for _, o := range m.Outcomes {
				outcomes = append(outcomes, domain.Outcome{
					Name:  o.Name,
					Price: o.Price,
					Point: o.Point,
				})
			}
			markets = append(markets, domain.Market{Key: m.Key, Outcomes: outcomes})
		}
		bookmakers = append(bookmakers, domain.Bookmaker{
			Key:     b.Key,
			Title:   b.Title,
			Markets: markets,
		})
	}

	return domain.GameOdds{
		SportKey:     g.SportKey,
		SportTitle:   g.SportTitle,
		HomeTeam:     g.HomeTeam,
		AwayTeam:     g.AwayTeam,
		CommenceTime: g.CommenceTime,
		Bookmakers:   bookmakers,
	}
}
