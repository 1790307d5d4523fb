package service

import (
	"context"
	"testing"
	"time"

	"github.com/haywardj/lotline/internal/domain"
)

func TestSummaryEmptyLotSet(t *testing.T) {
	svc := NewFinanceService(newMemLotStore())

	summary, err := svc.Summary(context.Background())
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.ProfitMarginPct != 0 {
		t.Fatalf("margin = %f over empty lot set, want 0", summary.ProfitMarginPct)
	}
	if summary.TotalLots != 0 || summary.RevenueCents != 0 {
		t.Fatalf("summary = %+v, want all zeros", summary)
	}
}

func TestSummaryFixture(t *testing.T) {
	lots := newMemLotStore(
		// Published, no revenue yet.
		&domain.Lot{ID: "a", Status: domain.LotStatusPublished, WinningBidCents: 0},
		// Closed but unpaid: winning bid recorded, no revenue yet.
		&domain.Lot{ID: "b", Status: domain.LotStatusAuctionClosed, WinningBidCents: 2000},
		// Paid, fulfillment pending.
		&domain.Lot{ID: "c", Status: domain.LotStatusPaid, WinningBidCents: 3000},
		// Delivered at a profit.
		&domain.Lot{ID: "d", Status: domain.LotStatusDelivered, WinningBidCents: 5000, TotalCostCents: 3000, ProfitCents: 2000},
		// Shipped at a small loss.
		&domain.Lot{ID: "e", Status: domain.LotStatusShipped, WinningBidCents: 1000, TotalCostCents: 1200, ProfitCents: -200},
		// Cancelled and refunded.
		&domain.Lot{ID: "f", Status: domain.LotStatusCancelled, WinningBidCents: 1500},
		// Reserve not met, never sold.
		&domain.Lot{ID: "g", Status: domain.LotStatusReserveNotMet},
	)
	svc := NewFinanceService(lots)

	summary, err := svc.Summary(context.Background())
	if err != nil {
		t.Fatalf("summary: %v", err)
	}

	// Revenue counts c, d, e only (PAID or later).
	if summary.RevenueCents != 9000 {
		t.Fatalf("revenue = %d, want 9000", summary.RevenueCents)
	}
	if summary.CostCents != 4200 {
		t.Fatalf("cost = %d, want 4200", summary.CostCents)
	}
	if summary.ProfitCents != 1800 {
		t.Fatalf("profit = %d, want 1800", summary.ProfitCents)
	}
	wantMargin := float64(1800) / float64(9000) * 100
	if summary.ProfitMarginPct != wantMargin {
		t.Fatalf("margin = %f, want %f", summary.ProfitMarginPct, wantMargin)
	}
	if summary.RefundCount != 1 || summary.RefundCents != 1500 {
		t.Fatalf("refunds = %d/%d, want 1/1500", summary.RefundCount, summary.RefundCents)
	}
	if summary.DeliveredCount != 1 {
		t.Fatalf("delivered = %d, want 1", summary.DeliveredCount)
	}
	if summary.TotalLots != 7 {
		t.Fatalf("total = %d, want 7", summary.TotalLots)
	}
	if summary.StatusCounts[domain.LotStatusPaid] != 1 || summary.StatusCounts[domain.LotStatusCancelled] != 1 {
		t.Fatalf("status counts = %v", summary.StatusCounts)
	}
}

func TestSummaryCountsLotsCreatedToday(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	lots := newMemLotStore(
		&domain.Lot{ID: "today-1", Status: domain.LotStatusListed, CreatedAt: now.Add(-time.Hour)},
		&domain.Lot{ID: "today-2", Status: domain.LotStatusPublished, CreatedAt: now.Add(-8 * time.Hour)},
		&domain.Lot{ID: "yesterday", Status: domain.LotStatusDelivered, CreatedAt: now.Add(-10 * time.Hour)},
	)
	svc := NewFinanceService(lots)
	svc.SetClock(func() time.Time { return now })

	summary, err := svc.Summary(context.Background())
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	// 09:00 UTC: the 8h-old lot (01:00) counts, the 10h-old one (23:00
	// yesterday) does not.
	if summary.LotsCreatedToday != 2 {
		t.Fatalf("lots created today = %d, want 2", summary.LotsCreatedToday)
	}
}
