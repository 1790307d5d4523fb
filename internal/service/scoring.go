package service

import (
	"math"

	"github.com/haywardj/lotline/internal/domain"
)

// Phase-1 signal weights. They sum to 100 so each signal contributes its
// weight in points at full strength.
const (
	weightPopularity = 30.0
	weightPriceBand  = 25.0
	weightInventory  = 20.0
	weightMedia      = 15.0
	weightDiversity  = 10.0
)

// Wholesale sweet spot in cents. Scores peak inside the band and decay
// outside it.
const (
	sweetSpotLowCents  = 300
	sweetSpotHighCents = 2500
)

// Phase-2 composite weights.
const (
	deepWeightPhase1   = 0.40
	deepWeightMarkup   = 0.25
	deepWeightShipping = 0.15
	deepWeightImages   = 0.10
	deepWeightMargin   = 0.10
)

// ScoreCandidate computes the phase-1 wide-search score for one candidate on
// a 0-100 scale. categorySeen maps category name to how many candidates have
// already been accepted in it; under-represented categories earn a diversity
// bonus.
// Parameters:
//   - c: the candidate to score.
//   - categorySeen: running per-category counts for the current run.
// Returns:
//   - float64: score in [0, 100].
func ScoreCandidate(c domain.Candidate, categorySeen map[string]int) float64 {
	score := weightPopularity * popularityTerm(c.ListingCount)
	score += weightPriceBand * priceBandTerm(c.WholesaleCents)
	score += weightInventory * inventoryTerm(c.InventoryNum)
	if c.HasVideo {
		score += weightMedia
	}
	score += weightDiversity * diversityTerm(categorySeen[c.Category], totalSeen(categorySeen))

	if score > 100 {
		score = 100
	}
	return score
}

// popularityTerm saturates at 200 listings: beyond that, more listings tell
// us nothing new about demand.
func popularityTerm(listings int) float64 {
	if listings <= 0 {
		return 0
	}
	t := float64(listings) / 200.0
	if t > 1 {
		t = 1
	}
	return t
}

// priceBandTerm rewards the wholesale sweet spot and decays exponentially
// outside it: cheap enough to absorb auction variance, dear enough to carry
// shipping.
func priceBandTerm(wholesaleCents int64) float64 {
	if wholesaleCents >= sweetSpotLowCents && wholesaleCents <= sweetSpotHighCents {
		return 1
	}
	var distance float64
	if wholesaleCents < sweetSpotLowCents {
		distance = float64(sweetSpotLowCents - wholesaleCents)
	} else {
		distance = float64(wholesaleCents - sweetSpotHighCents)
	}
	// Halves roughly every $5 outside the band.
	return math.Exp(-distance / 700.0)
}

// inventoryTerm is strictly increasing in inventory so deeper stock always
// scores higher, with logarithmic damping past the first few hundred units.
func inventoryTerm(inventory int) float64 {
	if inventory <= 0 {
		return 0
	}
	return math.Log1p(float64(inventory)) / math.Log1p(10000)
}

// diversityTerm rewards categories that hold a below-average share of the
// candidates seen so far.
func diversityTerm(categoryCount, total int) float64 {
	if total == 0 {
		return 1
	}
	share := float64(categoryCount) / float64(total)
	bonus := 1 - share*4
	if bonus < 0 {
		return 0
	}
	return bonus
}

func totalSeen(categorySeen map[string]int) int {
	total := 0
	for _, n := range categorySeen {
		total += n
	}
	return total
}

// ScoreEnriched computes the phase-2 composite score for one deep-evaluated
// candidate on a 0-100 scale.
// Parameters:
//   - e: the candidate after variant selection, freight, and pricing.
// Returns:
//   - float64: score in [0, 100].
func ScoreEnriched(e domain.EnrichedCandidate) float64 {
	score := deepWeightPhase1 * e.Score
	score += deepWeightMarkup * markupTerm(e.MarkupRatio) * 100
	score += deepWeightShipping * shippingTerm(e.FreightCents, e.VariantCostCents) * 100
	score += deepWeightImages * imageTerm(e.ImageCount) * 100
	score += deepWeightMargin * marginTerm(e) * 100

	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return score
}

// markupTerm saturates at a 4x markup ratio.
func markupTerm(ratio float64) float64 {
	if ratio <= 1 {
		return 0
	}
	t := (ratio - 1) / 3.0
	if t > 1 {
		t = 1
	}
	return t
}

// shippingTerm rewards freight that is small relative to the item cost.
// Freight equal to the item cost scores zero.
func shippingTerm(freightCents, costCents int64) float64 {
	if costCents <= 0 {
		return 0
	}
	ratio := float64(freightCents) / float64(costCents)
	if ratio >= 1 {
		return 0
	}
	return 1 - ratio
}

// imageTerm saturates at five images, the most the listing template shows.
func imageTerm(count int) float64 {
	if count <= 0 {
		return 0
	}
	t := float64(count) / 5.0
	if t > 1 {
		t = 1
	}
	return t
}

// marginTerm scores expected margin after total landed cost against the
// reserve, saturating at 50% margin.
func marginTerm(e domain.EnrichedCandidate) float64 {
	totalCost := e.VariantCostCents + e.FreightCents
	if e.ReserveCents <= 0 || totalCost <= 0 {
		return 0
	}
	margin := float64(e.ReserveCents-totalCost) / float64(e.ReserveCents)
	if margin <= 0 {
		return 0
	}
	t := margin / 0.5
	if t > 1 {
		t = 1
	}
	return t
}
