package service

import (
	"context"
	"time"

	"github.com/haywardj/lotline/internal/domain"
)

// FinancialSummary is one scan over all lots. Revenue counts lots that
// reached PAID or later; cost and profit sum only the rows where fulfillment
// has recorded them.
type FinancialSummary struct {
	RevenueCents     int64                      `json:"revenue_cents"`
	CostCents        int64                      `json:"cost_cents"`
	ProfitCents      int64                      `json:"profit_cents"`
	ProfitMarginPct  float64                    `json:"profit_margin_pct"`
	RefundCount      int                        `json:"refund_count"`
	RefundCents      int64                      `json:"refund_cents"`
	DeliveredCount   int                        `json:"delivered_count"`
	TotalLots        int                        `json:"total_lots"`
	LotsCreatedToday int64                      `json:"lots_created_today"`
	StatusCounts     map[domain.LotStatus]int   `json:"status_counts"`
}

// paidOrLater is the set of statuses at or past payment collection.
var paidOrLater = map[domain.LotStatus]bool{
	domain.LotStatusPaid:      true,
	domain.LotStatusCJOrdered: true,
	domain.LotStatusCJPaid:    true,
	domain.LotStatusShipped:   true,
	domain.LotStatusDelivered: true,
}

// FinanceService derives revenue/cost/profit/margin and status buckets from
// the lot table. It feeds both the operator dashboard and the margin-floor
// circuit breaker.
type FinanceService struct {
	lots    LotStore
	nowFunc func() time.Time
}

// NewFinanceService creates a finance aggregator.
// Parameters:
//   - lots: lot store to scan.
// Returns:
//   - *FinanceService: initialized service.
func NewFinanceService(lots LotStore) *FinanceService {
	return &FinanceService{lots: lots, nowFunc: time.Now}
}

// SetClock overrides the clock. Test hook.
func (s *FinanceService) SetClock(now func() time.Time) {
	s.nowFunc = now
}

// Summary scans every lot once and derives the financial summary.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - *FinancialSummary: aggregated figures; ProfitMarginPct is 0 when there
//     is no revenue.
//   - error: non-nil if the lot scan fails.
func (s *FinanceService) Summary(ctx context.Context) (*FinancialSummary, error) {
	lots, err := s.lots.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	summary := &FinancialSummary{
		StatusCounts: make(map[domain.LotStatus]int),
		TotalLots:    len(lots),
	}

	for _, lot := range lots {
		summary.StatusCounts[lot.Status]++

		if paidOrLater[lot.Status] {
			summary.RevenueCents += lot.WinningBidCents
		}
		if lot.TotalCostCents > 0 {
			summary.CostCents += lot.TotalCostCents
		}
		if lot.ProfitCents != 0 {
			summary.ProfitCents += lot.ProfitCents
		}

		switch lot.Status {
		case domain.LotStatusCancelled:
			summary.RefundCount++
			summary.RefundCents += lot.WinningBidCents
		case domain.LotStatusDelivered:
			summary.DeliveredCount++
		}
	}

	if summary.RevenueCents > 0 {
		summary.ProfitMarginPct = float64(summary.ProfitCents) / float64(summary.RevenueCents) * 100
	}

	now := s.nowFunc().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	created, err := s.lots.CountCreatedSince(ctx, midnight)
	if err != nil {
		return nil, err
	}
	summary.LotsCreatedToday = created

	return summary, nil
}
