package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/haywardj/lotline/internal/domain"
	"github.com/haywardj/lotline/internal/platform/marketplace"
	"github.com/haywardj/lotline/internal/platform/payments"
	"github.com/haywardj/lotline/internal/platform/supplier"
)

func newTestPipeline(lots *memLotStore, market *fakeMarket, sup *fakeSupplier, pay *fakePayments, alerter Alerter) *PipelineService {
	if alerter == nil {
		alerter = NopAlerter{}
	}
	svc := NewPipelineService(lots, market, sup, pay, alerter, newTestEngine(newMemBreakerStore(), lots), &PipelineConfig{
		BuyerPremiumRate: 0.10,
	})
	svc.SetClock(time.Now, func(time.Duration) {})
	return svc
}

func TestPollClosedAuctions(t *testing.T) {
	lots := newMemLotStore(
		&domain.Lot{ID: "lot-won", ItemID: "item-won", Status: domain.LotStatusPublished},
		&domain.Lot{ID: "lot-nobids", ItemID: "item-nobids", Status: domain.LotStatusPublished},
		&domain.Lot{ID: "lot-reserve", ItemID: "item-reserve", Status: domain.LotStatusPublished},
		&domain.Lot{ID: "lot-done", ItemID: "item-done", Status: domain.LotStatusPaid},
	)
	market := newFakeMarket()
	market.closedSales = []marketplace.ClosedSale{{ID: "sale-1"}}
	market.saleItems["sale-1"] = []marketplace.SaleItem{
		{ID: "item-won", SaleID: "sale-1", Title: "Garden Lamp", BidCount: 4, HighBidCents: 2000, ReserveMet: true, WinnerID: "buyer-9"},
		{ID: "item-nobids", SaleID: "sale-1", BidCount: 0},
		{ID: "item-reserve", SaleID: "sale-1", BidCount: 2, HighBidCents: 500, ReserveMet: false},
		{ID: "item-done", SaleID: "sale-1", BidCount: 1, HighBidCents: 900, ReserveMet: true, WinnerID: "buyer-2"},
		{ID: "item-foreign", SaleID: "sale-1", BidCount: 1, HighBidCents: 100, ReserveMet: true},
	}
	pay := newFakePayments()
	svc := newTestPipeline(lots, market, newFakeSupplier(), pay, nil)

	stats, err := svc.PollClosedAuctions(context.Background())
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if stats.Won != 1 || stats.NoSale != 2 {
		t.Fatalf("stats = %+v, want 1 won and 2 no-sale", stats)
	}
	// item-done (already PAID) and item-foreign (not ours) are skipped.
	if stats.Skipped != 2 {
		t.Fatalf("skipped = %d, want 2", stats.Skipped)
	}

	won, _ := lots.GetByID(context.Background(), "lot-won")
	if won.Status != domain.LotStatusAuctionClosed {
		t.Fatalf("winner status = %s, want AUCTION_CLOSED", won.Status)
	}
	if won.WinnerID != "buyer-9" || won.WinningBidCents != 2000 {
		t.Fatalf("winner fields = %s/%d", won.WinnerID, won.WinningBidCents)
	}
	if won.MarketOrderID == "" || won.InvoiceID == "" {
		t.Fatalf("order/invoice ids not recorded: %+v", won)
	}

	for _, id := range []string{"lot-nobids", "lot-reserve"} {
		lot, _ := lots.GetByID(context.Background(), id)
		if lot.Status != domain.LotStatusReserveNotMet {
			t.Fatalf("%s status = %s, want RESERVE_NOT_MET", id, lot.Status)
		}
	}

	// The order and invoice both carry bid plus 10% buyer premium.
	if len(market.createdOrders) != 1 || market.createdOrders[0].AmountCents != 2200 {
		t.Fatalf("orders = %+v, want one at 2200", market.createdOrders)
	}
	if len(pay.created) != 1 || pay.created[0].AmountCents != 2200 {
		t.Fatalf("invoices = %+v, want one at 2200", pay.created)
	}

	// Idempotency: a second poll changes nothing.
	stats, err = svc.PollClosedAuctions(context.Background())
	if err != nil {
		t.Fatalf("second poll: %v", err)
	}
	if stats.Won != 0 || len(market.createdOrders) != 1 {
		t.Fatalf("second poll created work: %+v orders=%d", stats, len(market.createdOrders))
	}
}

func TestPollRollsBackOrderWhenInvoiceFails(t *testing.T) {
	lots := newMemLotStore(
		&domain.Lot{ID: "lot-1", ItemID: "item-1", Status: domain.LotStatusPublished},
	)
	market := newFakeMarket()
	market.closedSales = []marketplace.ClosedSale{{ID: "sale-1"}}
	market.saleItems["sale-1"] = []marketplace.SaleItem{
		{ID: "item-1", BidCount: 1, HighBidCents: 1000, ReserveMet: true, WinnerID: "b"},
	}
	pay := newFakePayments()
	pay.createErr = fmt.Errorf("stripe is down")
	svc := newTestPipeline(lots, market, newFakeSupplier(), pay, nil)

	stats, err := svc.PollClosedAuctions(context.Background())
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(stats.Errors) != 1 {
		t.Fatalf("errors = %v, want 1", stats.Errors)
	}
	if len(market.cancelledOrders) != 1 {
		t.Fatalf("cancelled orders = %v, want the rolled-back order", market.cancelledOrders)
	}
}

func TestMarkInvoicePaid(t *testing.T) {
	lots := newMemLotStore(
		&domain.Lot{ID: "lot-1", InvoiceID: "inv-1", Status: domain.LotStatusAuctionClosed},
	)
	svc := newTestPipeline(lots, newFakeMarket(), newFakeSupplier(), newFakePayments(), nil)

	if err := svc.MarkInvoicePaid(context.Background(), "inv-1"); err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	lot, _ := lots.GetByID(context.Background(), "lot-1")
	if lot.Status != domain.LotStatusPaid {
		t.Fatalf("status = %s, want PAID", lot.Status)
	}

	if err := svc.MarkInvoicePaid(context.Background(), "inv-unknown"); err == nil {
		t.Fatal("unknown invoice accepted")
	}
}

func TestRetryFulfillments(t *testing.T) {
	lots := newMemLotStore(
		&domain.Lot{ID: "lot-1", SupplierVariantID: "v-1", MarketOrderID: "order-1",
			Status:          domain.LotStatusPaid,
			WinningBidCents: 5000, WholesaleCents: 1500, ShippingCents: 500},
	)
	market := newFakeMarket()
	market.shipping["order-1"] = &marketplace.OrderShipping{
		RecipientName: "Dana Whitfield",
		Address:       "14 Harbor Row, Portsmouth",
	}
	sup := newFakeSupplier()
	svc := newTestPipeline(lots, market, sup, newFakePayments(), nil)

	stats, err := svc.RetryFulfillments(context.Background())
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if stats.Ordered != 1 || stats.Failed != 0 {
		t.Fatalf("stats = %+v, want one ordered", stats)
	}

	lot, _ := lots.GetByID(context.Background(), "lot-1")
	if lot.Status != domain.LotStatusCJPaid {
		t.Fatalf("status = %s, want CJ_PAID", lot.Status)
	}
	if lot.TotalCostCents != 2000 || lot.ProfitCents != 3000 {
		t.Fatalf("cost/profit = %d/%d, want 2000/3000", lot.TotalCostCents, lot.ProfitCents)
	}
	if len(sup.createdOrders) != 1 || sup.createdOrders[0].ClientOrderID != "lot-1" {
		t.Fatalf("supplier orders = %+v, want idempotency key lot-1", sup.createdOrders)
	}
	// The supplier order ships to the winner, not to us.
	if sup.createdOrders[0].RecipientName != "Dana Whitfield" || sup.createdOrders[0].ShippingAddress != "14 Harbor Row, Portsmouth" {
		t.Fatalf("order shipping = %q/%q, want the winner's details",
			sup.createdOrders[0].RecipientName, sup.createdOrders[0].ShippingAddress)
	}
}

// TestFulfillmentRequiresShippingAddress keeps the lot at PAID for a later
// retry when the winner's shipping details cannot be fetched.
func TestFulfillmentRequiresShippingAddress(t *testing.T) {
	lots := newMemLotStore(
		&domain.Lot{ID: "lot-1", SupplierVariantID: "v-1", MarketOrderID: "order-gone",
			Status: domain.LotStatusPaid},
	)
	sup := newFakeSupplier()
	svc := newTestPipeline(lots, newFakeMarket(), sup, newFakePayments(), nil)

	stats, err := svc.RetryFulfillments(context.Background())
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if stats.Failed != 1 {
		t.Fatalf("stats = %+v, want one failure", stats)
	}
	if len(sup.createdOrders) != 0 {
		t.Fatalf("supplier orders = %+v, want none without an address", sup.createdOrders)
	}
	lot, _ := lots.GetByID(context.Background(), "lot-1")
	if lot.Status != domain.LotStatusPaid {
		t.Fatalf("status = %s, want PAID", lot.Status)
	}
	if lot.ErrorMessage == "" {
		t.Fatal("shipping error not recorded")
	}
}

// TestFulfillmentRecordsSpend checks the daily spending cap accumulates the
// supplier cost of every order placed, and trips once spend crosses the cap.
func TestFulfillmentRecordsSpend(t *testing.T) {
	lots := newMemLotStore(
		&domain.Lot{ID: "lot-1", SupplierVariantID: "v-1", MarketOrderID: "order-1",
			Status:          domain.LotStatusPaid,
			WinningBidCents: 60000, WholesaleCents: 29000, ShippingCents: 1000},
	)
	market := newFakeMarket()
	market.shipping["order-1"] = &marketplace.OrderShipping{RecipientName: "B", Address: "1 Elm St"}
	store := newMemBreakerStore()
	engine := newTestEngine(store, lots)
	svc := NewPipelineService(lots, market, newFakeSupplier(), newFakePayments(), NopAlerter{}, engine, &PipelineConfig{
		BuyerPremiumRate: 0.10,
	})
	svc.SetClock(time.Now, func(time.Duration) {})

	if _, err := svc.RetryFulfillments(context.Background()); err != nil {
		t.Fatalf("retry: %v", err)
	}

	state, err := engine.GetState(context.Background(), domain.BreakerDailySpend)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if state.Counter != 30000 {
		t.Fatalf("spend counter = %d, want 30000", state.Counter)
	}
	if state.Tripped {
		t.Fatal("breaker tripped below the cap")
	}

	// A second order pushes cumulative spend past the 50000 cap.
	lot2 := &domain.Lot{ID: "lot-2", SupplierVariantID: "v-1", MarketOrderID: "order-2",
		Status:          domain.LotStatusPaid,
		WinningBidCents: 60000, WholesaleCents: 24000, ShippingCents: 1000}
	if err := lots.Create(context.Background(), lot2); err != nil {
		t.Fatalf("seed lot-2: %v", err)
	}
	market.shipping["order-2"] = &marketplace.OrderShipping{RecipientName: "C", Address: "2 Elm St"}

	if _, err := svc.RetryFulfillments(context.Background()); err != nil {
		t.Fatalf("second retry: %v", err)
	}
	state, err = engine.GetState(context.Background(), domain.BreakerDailySpend)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if state.Counter != 55000 {
		t.Fatalf("spend counter = %d, want 55000", state.Counter)
	}
	if !state.Tripped {
		t.Fatal("breaker not tripped at 55000 of a 50000 cap")
	}
}

func TestFulfillmentFailureStatuses(t *testing.T) {
	cases := []struct {
		name     string
		orderErr error
		want     domain.LotStatus
	}{
		{"out of stock", fmt.Errorf("%w: variant gone", supplier.ErrOutOfStock), domain.LotStatusOutOfStock},
		{"price changed", fmt.Errorf("%w: repriced", supplier.ErrPriceChanged), domain.LotStatusPriceChanged},
		{"transient", fmt.Errorf("gateway timeout"), domain.LotStatusPaid},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			lots := newMemLotStore(
				&domain.Lot{ID: "lot-1", SupplierVariantID: "v-1", MarketOrderID: "order-1",
					Status: domain.LotStatusPaid},
			)
			market := newFakeMarket()
			market.shipping["order-1"] = &marketplace.OrderShipping{RecipientName: "B", Address: "1 Elm St"}
			sup := newFakeSupplier()
			sup.createOrderErr = tc.orderErr
			svc := newTestPipeline(lots, market, sup, newFakePayments(), nil)

			stats, err := svc.RetryFulfillments(context.Background())
			if err != nil {
				t.Fatalf("retry: %v", err)
			}
			if stats.Failed != 1 {
				t.Fatalf("stats = %+v, want one failure", stats)
			}
			lot, _ := lots.GetByID(context.Background(), "lot-1")
			if lot.Status != tc.want {
				t.Fatalf("status = %s, want %s", lot.Status, tc.want)
			}
			if lot.ErrorMessage == "" {
				t.Fatal("error message not recorded")
			}
		})
	}
}

// TestRefundBatchIsolation covers the five-lot batch where the third refund
// throws: every lot still gets an outcome, and only the third is failed.
func TestRefundBatchIsolation(t *testing.T) {
	var seed []*domain.Lot
	for i := 1; i <= 5; i++ {
		seed = append(seed, &domain.Lot{
			ID:            fmt.Sprintf("lot-%d", i),
			InvoiceID:     fmt.Sprintf("inv-%d", i),
			MarketOrderID: fmt.Sprintf("order-%d", i),
			WinnerID:      fmt.Sprintf("buyer-%d", i),
			Status:        domain.LotStatusOutOfStock,
		})
	}
	lots := newMemLotStore(seed...)
	pay := newFakePayments()
	for i := 1; i <= 5; i++ {
		pay.statuses[fmt.Sprintf("inv-%d", i)] = payments.InvoiceStatusPaid
	}
	pay.refundErrFor = "inv-3"
	market := newFakeMarket()
	alerter := &recordingAlerter{}
	svc := newTestPipeline(lots, market, newFakeSupplier(), pay, alerter)

	outcomes, err := svc.ProcessRefunds(context.Background())
	if err != nil {
		t.Fatalf("process refunds: %v", err)
	}
	if len(outcomes) != 5 {
		t.Fatalf("outcomes = %d, want 5", len(outcomes))
	}

	failed := 0
	for _, o := range outcomes {
		if o.LotID == "lot-3" {
			if o.Refunded || o.Error == "" {
				t.Fatalf("lot-3 outcome = %+v, want failed", o)
			}
			failed++
			continue
		}
		if !o.Refunded {
			t.Fatalf("outcome %+v, want refunded", o)
		}
	}
	if failed != 1 {
		t.Fatal("lot-3 missing from outcomes")
	}

	// The four successes are cancelled; lot-3 keeps its status with the
	// error recorded for a human.
	for i := 1; i <= 5; i++ {
		lot, _ := lots.GetByID(context.Background(), fmt.Sprintf("lot-%d", i))
		if i == 3 {
			if lot.Status != domain.LotStatusOutOfStock {
				t.Fatalf("lot-3 status = %s, want unchanged", lot.Status)
			}
			if lot.ErrorMessage == "" {
				t.Fatal("lot-3 refund error not recorded")
			}
			continue
		}
		if lot.Status != domain.LotStatusCancelled {
			t.Fatalf("lot-%d status = %s, want CANCELLED", i, lot.Status)
		}
	}

	if len(alerter.criticals) != 1 {
		t.Fatalf("critical alerts = %v, want exactly one for the failed refund", alerter.criticals)
	}
	if len(market.cancelledOrders) != 4 {
		t.Fatalf("cancelled orders = %d, want 4", len(market.cancelledOrders))
	}
	if len(market.notified) != 4 {
		t.Fatalf("winner notifications = %d, want 4", len(market.notified))
	}
}

func TestRefundVoidsUnpaidInvoice(t *testing.T) {
	lots := newMemLotStore(&domain.Lot{
		ID: "lot-1", InvoiceID: "inv-1", Status: domain.LotStatusPriceChanged,
	})
	pay := newFakePayments()
	pay.statuses["inv-1"] = payments.InvoiceStatusOpen
	svc := newTestPipeline(lots, newFakeMarket(), newFakeSupplier(), pay, nil)

	if _, err := svc.ProcessRefunds(context.Background()); err != nil {
		t.Fatalf("process refunds: %v", err)
	}
	if len(pay.refunded) != 0 {
		t.Fatalf("refunded = %v, open invoice must be voided not refunded", pay.refunded)
	}
	if len(pay.voided) != 1 {
		t.Fatalf("voided = %v, want inv-1", pay.voided)
	}
}

// TestStuckAuctionClosedRepollsOnce is the 31-simulated-minutes scenario: a
// stale AUCTION_CLOSED lot triggers exactly one re-poll.
func TestStuckAuctionClosedRepollsOnce(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	lots := newMemLotStore(&domain.Lot{
		ID:        "lot-1",
		ItemID:    "item-1",
		Status:    domain.LotStatusAuctionClosed,
		UpdatedAt: now.Add(-31 * time.Minute),
	})
	market := newFakeMarket()
	alerter := &recordingAlerter{}
	svc := newTestPipeline(lots, market, newFakeSupplier(), newFakePayments(), alerter)
	svc.SetClock(func() time.Time { return now }, func(time.Duration) {})

	stats, err := svc.HandleStuckLots(context.Background())
	if err != nil {
		t.Fatalf("handle stuck: %v", err)
	}
	if !stats.Repolled {
		t.Fatal("stale AUCTION_CLOSED did not trigger a re-poll")
	}
	if market.listClosedCalls != 1 {
		t.Fatalf("re-poll ran %d times, want exactly once", market.listClosedCalls)
	}
	// 31 minutes is stale but not critical.
	if len(alerter.criticals) != 0 {
		t.Fatalf("criticals = %v, want none under 4h", alerter.criticals)
	}
}

func TestStuckLotCriticalAfterFourHours(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	lots := newMemLotStore(&domain.Lot{
		ID:        "lot-old",
		Status:    domain.LotStatusPaid,
		UpdatedAt: now.Add(-5 * time.Hour),
	})
	alerter := &recordingAlerter{}
	svc := newTestPipeline(lots, newFakeMarket(), newFakeSupplier(), newFakePayments(), alerter)
	svc.SetClock(func() time.Time { return now }, func(time.Duration) {})

	stats, err := svc.HandleStuckLots(context.Background())
	if err != nil {
		t.Fatalf("handle stuck: %v", err)
	}
	if len(stats.CriticalLots) != 1 || stats.CriticalLots[0] != "lot-old" {
		t.Fatalf("critical lots = %v, want [lot-old]", stats.CriticalLots)
	}
	if len(alerter.criticals) != 1 {
		t.Fatalf("critical alerts = %v, want one", alerter.criticals)
	}
}

func TestStuckOrderedReconcilesWithSupplier(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	lots := newMemLotStore(&domain.Lot{
		ID:              "lot-1",
		SupplierOrderID: "cj-order-7",
		Status:          domain.LotStatusCJOrdered,
		UpdatedAt:       now.Add(-3 * time.Hour),
	})
	sup := newFakeSupplier()
	sup.orders["cj-order-7"] = "SHIPPED"
	svc := newTestPipeline(lots, newFakeMarket(), sup, newFakePayments(), nil)
	svc.SetClock(func() time.Time { return now }, func(time.Duration) {})

	stats, err := svc.HandleStuckLots(context.Background())
	if err != nil {
		t.Fatalf("handle stuck: %v", err)
	}
	if stats.OrdersAdvanced != 1 {
		t.Fatalf("advanced = %d, want 1", stats.OrdersAdvanced)
	}
	lot, _ := lots.GetByID(context.Background(), "lot-1")
	if lot.Status != domain.LotStatusShipped {
		t.Fatalf("status = %s, want SHIPPED via CJ_PAID", lot.Status)
	}
}
