package service

import (
	"testing"

	"github.com/haywardj/lotline/internal/domain"
)

// TestInventoryTermMonotonic verifies two otherwise-identical candidates
// differing only in warehouse inventory score strictly in inventory order.
func TestInventoryTermMonotonic(t *testing.T) {
	base := domain.Candidate{
		ProductID:      "p-1",
		Category:       "home",
		WholesaleCents: 1200,
		ListingCount:   50,
		HasVideo:       true,
	}

	shallow := base
	shallow.InventoryNum = 10
	deep := base
	deep.InventoryNum = 100

	seen := map[string]int{}
	lowScore := ScoreCandidate(shallow, seen)
	highScore := ScoreCandidate(deep, seen)

	if highScore <= lowScore {
		t.Fatalf("inventory 100 scored %f, inventory 10 scored %f; want strictly higher", highScore, lowScore)
	}
}

func TestPriceSweetSpot(t *testing.T) {
	cases := []struct {
		name  string
		cents int64
		want  float64
	}{
		{"low edge", 300, 1},
		{"middle", 1200, 1},
		{"high edge", 2500, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := priceBandTerm(tc.cents); got != tc.want {
				t.Fatalf("priceBandTerm(%d) = %f, want %f", tc.cents, got, tc.want)
			}
		})
	}

	// Decay outside the band, on both sides.
	if priceBandTerm(100) >= 1 {
		t.Fatal("below-band price did not decay")
	}
	if priceBandTerm(5000) >= priceBandTerm(2600) {
		t.Fatal("decay is not monotone above the band")
	}
	if priceBandTerm(50) >= priceBandTerm(200) {
		t.Fatal("decay is not monotone below the band")
	}
}

func TestDiversityBonusFavorsUnderrepresented(t *testing.T) {
	seen := map[string]int{"toys": 8, "home": 1}
	total := 9

	if diversityTerm(seen["toys"], total) >= diversityTerm(seen["home"], total) {
		t.Fatal("over-represented category earned at least as much diversity bonus")
	}
	// First candidate ever gets the full bonus.
	if diversityTerm(0, 0) != 1 {
		t.Fatalf("empty-run diversity = %f, want 1", diversityTerm(0, 0))
	}
}

func TestScoreBounds(t *testing.T) {
	maxed := domain.Candidate{
		WholesaleCents: 1000,
		ListingCount:   100000,
		InventoryNum:   1000000,
		HasVideo:       true,
	}
	score := ScoreCandidate(maxed, map[string]int{})
	if score < 0 || score > 100 {
		t.Fatalf("score = %f, want within [0,100]", score)
	}

	zero := domain.Candidate{}
	if s := ScoreCandidate(zero, map[string]int{}); s < 0 || s > 100 {
		t.Fatalf("zero candidate score = %f out of bounds", s)
	}
}

func TestDeepScoreComposite(t *testing.T) {
	e := domain.EnrichedCandidate{
		Candidate: domain.Candidate{Score: 80},
		// 3x markup on a light item with cheap freight and full media.
		VariantCostCents: 1000,
		FreightCents:     200,
		ImageCount:       5,
		MarkupRatio:      3.0,
		ReserveCents:     3000,
	}
	score := ScoreEnriched(e)
	if score <= 0 || score > 100 {
		t.Fatalf("score = %f, want in (0,100]", score)
	}

	// Degrading only the freight must not raise the score.
	worse := e
	worse.FreightCents = 900
	if ScoreEnriched(worse) > score {
		t.Fatal("more expensive freight raised the composite score")
	}

	// A higher phase-1 score must not lower the composite.
	better := e
	better.Score = 95
	if ScoreEnriched(better) < score {
		t.Fatal("higher phase-1 score lowered the composite")
	}
}
