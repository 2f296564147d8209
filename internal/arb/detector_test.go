package arb

import (
	"math"
	"testing"
	"time"

	"github.com/arbflow/arbflow/internal/domain"
)

var fixedNow = time.Date(2025, 11, 3, 18, 0, 0, 0, time.UTC)

func newTestDetector() *Detector {
	return NewDetectorWithClock(func() time.Time { return fixedNow })
}

// twoWayGame builds a game where bookA quotes Team X and bookB quotes Team Y,
// both on the same h2h market.
func twoWayGame(priceA, priceB float64) domain.GameOdds {
	return domain.GameOdds{
		SportKey:     "basketball_nba",
		SportTitle:   "NBA",
		HomeTeam:     "Team X",
		AwayTeam:     "Team Y",
		CommenceTime: fixedNow.Add(2 * time.Hour),
		Bookmakers: []domain.Bookmaker{
			{
				Key: "bookA",
				Markets: []domain.Market{{
					Key: "h2h",
					Outcomes: []domain.Outcome{
						{Name: "Team X", Price: priceA},
						{Name: "Team Y", Price: -500},
					},
				}},
			},
			{
				Key: "bookB",
				Markets: []domain.Market{{
					Key: "h2h",
					Outcomes: []domain.Outcome{
						{Name: "Team X", Price: -500},
						{Name: "Team Y", Price: priceB},
					},
				}},
			},
		},
	}
}

func TestDetectFlagsArbitrage(t *testing.T) {
	// +120/+120 across books: total implied = 2/2.2 ≈ 0.909 < 1.
	opps := newTestDetector().Detect(twoWayGame(120, 120))
	if len(opps) != 1 {
		t.Fatalf("expected 1 opportunity, got %d", len(opps))
	}

	opp := opps[0]
	if opp.Legs[0].Bookmaker != "bookA" || opp.Legs[1].Bookmaker != "bookB" {
		t.Errorf("unexpected legs: %+v", opp.Legs)
	}
	wantImplied := 1/2.2 + 1/2.2
	if math.Abs(opp.ImpliedProbTotal-wantImplied) > 1e-9 {
		t.Errorf("implied total = %v, want %v", opp.ImpliedProbTotal, wantImplied)
	}
	wantROI := (1/wantImplied - 1) * 100
	if math.Abs(opp.ROI-wantROI) > 1e-9 {
		t.Errorf("roi = %v, want %v", opp.ROI, wantROI)
	}
	if math.Abs(opp.ROI-10.0) > 0.005 {
		t.Errorf("roi = %v, want ≈10.0", opp.ROI)
	}
	wantProfit := 1000/wantImplied - 1000
	if math.Abs(opp.ProfitPer1000-wantProfit) > 1e-9 {
		t.Errorf("profitPer1000 = %v, want %v", opp.ProfitPer1000, wantProfit)
	}
	if !opp.ExpiresAt.Equal(fixedNow.Add(10 * time.Minute)) {
		t.Errorf("expiresAt = %v, want detection+10m", opp.ExpiresAt)
	}
	if !opp.Active {
		t.Error("opportunity should start active")
	}
}

func TestDetectNoArbitrageWhenImpliedAtLeastOne(t *testing.T) {
	// -110/-110 is the standard vigged market: implied sum > 1.
	if opps := newTestDetector().Detect(twoWayGame(-110, -110)); len(opps) != 0 {
		t.Fatalf("expected no opportunities, got %d", len(opps))
	}
}

func TestDetectRequiresTwoBookmakers(t *testing.T) {
	game := twoWayGame(500, 500)
	game.Bookmakers = game.Bookmakers[:1]
	if opps := newTestDetector().Detect(game); len(opps) != 0 {
		t.Fatalf("single bookmaker must yield nothing, got %d", len(opps))
	}
}

func TestDetectIgnoresThreeWayMarkets(t *testing.T) {
	game := twoWayGame(120, 120)
	for i := range game.Bookmakers {
		game.Bookmakers[i].Markets[0].Outcomes = append(
			game.Bookmakers[i].Markets[0].Outcomes,
			domain.Outcome{Name: "Draw", Price: 900},
		)
	}
	if opps := newTestDetector().Detect(game); len(opps) != 0 {
		t.Fatalf("three-outcome market must be ignored, got %d", len(opps))
	}
}

func TestDetectSkipsMarketWithUnresolvedOutcome(t *testing.T) {
	game := twoWayGame(120, 120)
	// Drop "Team Y" from every bookmaker: its best price never resolves.
	for i := range game.Bookmakers {
		game.Bookmakers[i].Markets[0].Outcomes = []domain.Outcome{
			{Name: "Team X", Price: 120},
		}
	}
	// Keep the two-outcome reference shape on book 0.
	game.Bookmakers[0].Markets[0].Outcomes = []domain.Outcome{
		{Name: "Team X", Price: 120},
		{Name: "Team Y", Price: 120},
	}
	if opps := newTestDetector().Detect(game); len(opps) != 0 {
		t.Fatalf("unresolved outcome must skip the market, got %d", len(opps))
	}
}

func TestDetectTieBreakKeepsFirstBookmaker(t *testing.T) {
	// Both books quote identical prices; first encountered wins.
	game := twoWayGame(130, 130)
	game.Bookmakers[1].Markets[0].Outcomes = []domain.Outcome{
		{Name: "Team X", Price: 130},
		{Name: "Team Y", Price: 130},
	}
	game.Bookmakers[0].Markets[0].Outcomes = []domain.Outcome{
		{Name: "Team X", Price: 130},
		{Name: "Team Y", Price: 130},
	}

	opps := newTestDetector().Detect(game)
	if len(opps) != 1 {
		t.Fatalf("expected 1 opportunity, got %d", len(opps))
	}
	for _, leg := range opps[0].Legs {
		if leg.Bookmaker != "bookA" {
			t.Errorf("tie must keep first bookmaker, got %q", leg.Bookmaker)
		}
	}
}

func TestDetectPointAppearsInOutcomeLabel(t *testing.T) {
	point := -3.5
	game := twoWayGame(120, 120)
	for i := range game.Bookmakers {
		game.Bookmakers[i].Markets[0].Key = "spreads"
	}
	game.Bookmakers[0].Markets[0].Outcomes[0].Point = &point

	opps := newTestDetector().Detect(game)
	if len(opps) != 1 {
		t.Fatalf("expected 1 opportunity, got %d", len(opps))
	}
	if got := opps[0].Legs[0].Outcome; got != "Team X -3.5" {
		t.Errorf("leg outcome label = %q, want %q", got, "Team X -3.5")
	}
}

func TestDetectReferenceMarketPolicy(t *testing.T) {
	// A market only the second bookmaker offers is never evaluated.
	game := twoWayGame(120, 120)
	game.Bookmakers[1].Markets = append(game.Bookmakers[1].Markets, domain.Market{
		Key: "totals",
		Outcomes: []domain.Outcome{
			{Name: "Over", Price: 400},
			{Name: "Under", Price: 400},
		},
	})

	opps := newTestDetector().Detect(game)
	for _, opp := range opps {
		if opp.MarketType == "totals" {
			t.Error("market absent from first bookmaker must not be evaluated")
		}
	}
}
