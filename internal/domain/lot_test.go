package domain

import (
	"errors"
	"testing"
)

// allowed mirrors the lifecycle graph for the exhaustive check below. Kept as
// a separate literal so a table edit must be made twice to go unnoticed.
var allowed = map[LotStatus][]LotStatus{
	LotStatusSourced:       {LotStatusListed},
	LotStatusListed:        {LotStatusPublished, LotStatusCancelled},
	LotStatusPublished:     {LotStatusAuctionClosed, LotStatusReserveNotMet, LotStatusCancelled},
	LotStatusAuctionClosed: {LotStatusPaid, LotStatusPaymentFailed, LotStatusReserveNotMet},
	LotStatusPaid:          {LotStatusCJOrdered, LotStatusOutOfStock, LotStatusPriceChanged, LotStatusCancelled},
	LotStatusCJOrdered:     {LotStatusCJPaid, LotStatusOutOfStock, LotStatusPriceChanged, LotStatusCancelled},
	LotStatusCJPaid:        {LotStatusShipped, LotStatusCancelled},
	LotStatusShipped:       {LotStatusDelivered},
	LotStatusPaymentFailed: {LotStatusCancelled},
	LotStatusOutOfStock:    {LotStatusCancelled},
	LotStatusPriceChanged:  {LotStatusCancelled},
}

func TestValidateTransition_Exhaustive(t *testing.T) {
	statuses := AllLotStatuses()
	if len(statuses) != 14 {
		t.Fatalf("expected 14 statuses, got %d", len(statuses))
	}

	for _, from := range statuses {
		for _, to := range statuses {
			want := false
			for _, next := range allowed[from] {
				if next == to {
					want = true
					break
				}
			}
			if got := ValidateTransition(from, to); got != want {
				t.Errorf("ValidateTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestValidateTransition_TerminalStates(t *testing.T) {
	for _, s := range []LotStatus{LotStatusDelivered, LotStatusReserveNotMet, LotStatusCancelled} {
		if !IsTerminal(s) {
			t.Errorf("expected %s to be terminal", s)
		}
		for _, to := range AllLotStatuses() {
			if ValidateTransition(s, to) {
				t.Errorf("terminal status %s allows transition to %s", s, to)
			}
		}
	}
}

func TestValidateTransition_SkipsListing(t *testing.T) {
	// A sourced lot must be listed before it can be published.
	if ValidateTransition(LotStatusSourced, LotStatusPublished) {
		t.Error("SOURCED -> PUBLISHED should be rejected")
	}
	if !ValidateTransition(LotStatusSourced, LotStatusListed) {
		t.Error("SOURCED -> LISTED should be allowed")
	}
}

func TestLotSetStatus(t *testing.T) {
	lot := &Lot{ID: "lot-1", Status: LotStatusSourced}

	if err := lot.SetStatus(LotStatusListed); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lot.Status != LotStatusListed {
		t.Errorf("expected status LISTED, got %s", lot.Status)
	}

	err := lot.SetStatus(LotStatusPaid)
	if err == nil {
		t.Fatal("expected error for LISTED -> PAID")
	}
	var invalid *InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected *InvalidTransitionError, got %T", err)
	}
	if invalid.From != LotStatusListed || invalid.To != LotStatusPaid {
		t.Errorf("unexpected error fields: %+v", invalid)
	}
	if lot.Status != LotStatusListed {
		t.Errorf("status mutated on rejected transition: %s", lot.Status)
	}
}
