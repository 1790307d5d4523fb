package service

import (
	"github.com/shopspring/decimal"
)

// Payment-processor fee schedule (percentage plus fixed per-charge cents)
// and the buffer applied to supplier cost to absorb price drift between
// sourcing and fulfillment.
var (
	processorFeeRate   = decimal.NewFromFloat(0.029)
	processorFeeCents  = decimal.NewFromInt(30)
	costFluctuationPct = decimal.NewFromFloat(0.05)
)

// startingBidFraction of the reserve gives bidders room to discover the
// price without risking a below-cost close (the reserve still protects us).
var startingBidFraction = decimal.NewFromFloat(0.40)

// pennyOffsets staggers the cents digit of starting bids so sibling lots in
// one auction never share a round price.
var pennyOffsets = []int64{97, 93, 89, 87, 83, 79, 77, 73, 71, 67}

// Pricing is the computed auction pricing for one candidate.
type Pricing struct {
	StartingBidCents int64
	ReserveCents     int64
}

// PriceCandidate computes the reserve and starting bid for one enriched
// candidate. The reserve is the smallest winning bid that still yields
// non-negative profit after the processor fee, the buyer premium credited to
// us, and a supplier cost-fluctuation buffer; breaking even at reserve is
// the guaranteed floor, not the target.
// Parameters:
//   - wholesaleCents: supplier variant cost.
//   - freightCents: cheapest freight for the variant.
//   - buyerPremiumRate: premium fraction added to the winning bid.
//   - lotIndex: position of the lot in its auction, used to stagger cents.
// Returns:
//   - Pricing: starting bid and reserve, both in cents.
func PriceCandidate(wholesaleCents, freightCents int64, buyerPremiumRate float64, lotIndex int) Pricing {
	cost := decimal.NewFromInt(wholesaleCents + freightCents)
	bufferedCost := cost.Mul(decimal.NewFromInt(1).Add(costFluctuationPct))

	// The buyer pays bid*(1+premium); the processor takes rate% of that
	// plus a fixed fee. Solve net(bid) >= bufferedCost for bid:
	//   bid*(1+premium)*(1-rate) - fixed >= bufferedCost
	premiumFactor := decimal.NewFromInt(1).Add(decimal.NewFromFloat(buyerPremiumRate))
	netFactor := premiumFactor.Mul(decimal.NewFromInt(1).Sub(processorFeeRate))
	reserve := bufferedCost.Add(processorFeeCents).Div(netFactor).Ceil()

	starting := reserve.Mul(startingBidFraction).Floor()

	return Pricing{
		StartingBidCents: staggerCents(starting.IntPart(), lotIndex),
		ReserveCents:     reserve.IntPart(),
	}
}

// staggerCents replaces the cents digits of an amount with a non-round value
// chosen by lot index. Amounts under one dollar are left alone so the bid
// never rounds down to zero.
func staggerCents(cents int64, lotIndex int) int64 {
	if cents < 100 {
		return cents
	}
	offset := pennyOffsets[lotIndex%len(pennyOffsets)]
	return (cents/100)*100 + offset
}

// ProfitAtReserve computes the profit in cents if a lot closes exactly at
// its reserve. Used by pre-flight dry runs to demonstrate the non-negative
// floor.
func ProfitAtReserve(p Pricing, wholesaleCents, freightCents int64, buyerPremiumRate float64) int64 {
	bid := decimal.NewFromInt(p.ReserveCents)
	premiumFactor := decimal.NewFromInt(1).Add(decimal.NewFromFloat(buyerPremiumRate))
	gross := bid.Mul(premiumFactor)
	net := gross.Mul(decimal.NewFromInt(1).Sub(processorFeeRate)).Sub(processorFeeCents)
	cost := decimal.NewFromInt(wholesaleCents + freightCents)
	return net.Sub(cost).Round(0).IntPart()
}
