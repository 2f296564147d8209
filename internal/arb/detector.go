package arb

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/arbflow/arbflow/internal/domain"
)

// expiryWindow models odds volatility: an opportunity is considered stale
// this long after detection. It is not a hard guarantee the odds hold.
const expiryWindow = 10 * time.Minute

// Detector evaluates a single game's odds snapshot for two-way arbitrage.
// It is pure and deterministic: no I/O, no shared state, safe for concurrent
// use across games.
type Detector struct {
	now func() time.Time
}

// NewDetector creates a Detector using the real clock.
func NewDetector() *Detector {
	return &Detector{now: time.Now}
}

// NewDetectorWithClock creates a Detector with an injectable clock for tests.
func NewDetectorWithClock(now func() time.Time) *Detector {
	return &Detector{now: now}
}

// bestQuote tracks the single best price seen for one outcome name and which
// bookmaker offered it. Ties keep the first bookmaker encountered in input
// order.
type bestQuote struct {
	name  string
	price float64
	book  string
	point *float64
	found bool
}

// Detect returns every qualifying arbitrage opportunity on the game, possibly
// none. A game needs at least two bookmakers; the first bookmaker's market
// list is the reference set of market types considered, and only markets with
// exactly two outcomes are evaluated.
func (d *Detector) Detect(game domain.GameOdds) []domain.Opportunity {
	if len(game.Bookmakers) < 2 {
		return nil
	}

	var opps []domain.Opportunity
	detectedAt := d.now().UTC()

	for _, refMarket := range game.Bookmakers[0].Markets {
		if len(refMarket.Outcomes) != 2 {
			continue
		}

		best := [2]bestQuote{}
		for i, o := range refMarket.Outcomes {
			best[i] = bestQuote{name: o.Name, price: math.Inf(-1), point: o.Point}
		}

		for _, book := range game.Bookmakers {
			market := book.FindMarket(refMarket.Key)
			if market == nil {
				continue
			}
			for _, o := range market.Outcomes {
				for i := range best {
					if best[i].name == o.Name && o.Price > best[i].price {
						best[i].price = o.Price
						best[i].book = book.Key
						best[i].found = true
					}
				}
			}
		}

		if !best[0].found || !best[1].found {
			continue
		}

		var legs [2]domain.Leg
		totalImplied := 0.0
		for i := range best {
			decimal := AmericanToDecimal(best[i].price)
			totalImplied += ImpliedProbability(decimal)
			legs[i] = domain.Leg{
				Bookmaker:   best[i].book,
				Outcome:     legLabel(best[i].name, best[i].point),
				Odds:        best[i].price,
				DecimalOdds: decimal,
			}
		}

		if totalImplied >= 1 {
			continue
		}

		opps = append(opps, domain.Opportunity{
			ID:               uuid.NewString(),
			Sport:            game.SportTitle,
			League:           game.SportKey,
			EventName:        game.HomeTeam + " vs " + game.AwayTeam,
			HomeTeam:         game.HomeTeam,
			AwayTeam:         game.AwayTeam,
			MarketType:       refMarket.Key,
			Legs:             legs,
			ROI:              (1/totalImplied - 1) * 100,
			ProfitPer1000:    1000/totalImplied - 1000,
			ImpliedProbTotal: totalImplied,
			CommenceTime:     game.CommenceTime,
			DetectedAt:       detectedAt,
			ExpiresAt:        detectedAt.Add(expiryWindow),
			Active:           true,
		})
	}

	return opps
}

// legLabel renders an outcome label, appending the point for spread/total
// lines ("Team X -3.5").
func legLabel(name string, point *float64) string {
	if point == nil {
		return name
	}
	return fmt.Sprintf("%s %g", name, *point)
}
