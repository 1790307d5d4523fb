package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/haywardj/lotline/internal/domain"
	"github.com/haywardj/lotline/internal/logger"
	"github.com/haywardj/lotline/internal/platform/marketplace"
	"github.com/haywardj/lotline/internal/platform/payments"
	"github.com/haywardj/lotline/internal/platform/supplier"
)

// Stuck-lot age thresholds. A lot past criticalAge raises a human alert no
// matter what automatic remediation did.
const (
	stuckAuctionClosedAge = 30 * time.Minute
	stuckPaidAge          = 30 * time.Minute
	stuckOrderedAge       = 2 * time.Hour
	criticalAge           = 4 * time.Hour
)

// PipelineService runs the idempotent fulfillment operations. Every batch
// catches per-item failures and keeps going; partial success is the expected
// outcome.
type PipelineService struct {
	lots     LotStore
	market   marketplace.API
	supplier supplier.API
	payments payments.API
	alerter  Alerter
	breakers *BreakerEngine

	buyerPremiumRate float64
	callDelay        time.Duration
	nowFunc          func() time.Time
	sleep            func(time.Duration)
}

// PipelineConfig holds pipeline tuning knobs.
type PipelineConfig struct {
	BuyerPremiumRate float64
	CallDelay        time.Duration
}

// NewPipelineService creates the pipeline operations service.
// Parameters:
//   - lots: lot persistence.
//   - market: marketplace collaborator.
//   - sup: supplier collaborator.
//   - pay: payment-processor collaborator.
//   - alerter: best-effort alert sink.
//   - breakers: spend accounting for the daily spending cap.
//   - cfg: buyer premium and external-call pacing.
// Returns:
//   - *PipelineService: initialized service.
func NewPipelineService(lots LotStore, market marketplace.API, sup supplier.API, pay payments.API, alerter Alerter, breakers *BreakerEngine, cfg *PipelineConfig) *PipelineService {
	return &PipelineService{
		lots:             lots,
		market:           market,
		supplier:         sup,
		payments:         pay,
		alerter:          alerter,
		breakers:         breakers,
		buyerPremiumRate: cfg.BuyerPremiumRate,
		callDelay:        cfg.CallDelay,
		nowFunc:          time.Now,
		sleep:            time.Sleep,
	}
}

// SetClock overrides the service's clock and sleep. Test hook.
func (s *PipelineService) SetClock(now func() time.Time, sleep func(time.Duration)) {
	s.nowFunc = now
	s.sleep = sleep
}

func (s *PipelineService) pace() {
	if s.callDelay > 0 {
		s.sleep(s.callDelay)
	}
}

// PollStats summarizes one poll-closed-auctions run.
type PollStats struct {
	SalesSeen     int      `json:"sales_seen"`
	ItemsSeen     int      `json:"items_seen"`
	NoSale        int      `json:"no_sale"`
	Won           int      `json:"won"`
	Skipped       int      `json:"skipped"`
	Errors        []string `json:"errors,omitempty"`
}

// PollClosedAuctions fetches all closed sales, partitions their items into
// no-sale and won, transitions the lots, and creates the buyer order plus
// payment invoice for each winner. Idempotent: items whose lot already left
// PUBLISHED are skipped.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - *PollStats: per-run counters, including per-item errors.
//   - error: non-nil only if the closed-sales listing itself fails.
func (s *PipelineService) PollClosedAuctions(ctx context.Context) (*PollStats, error) {
	stats := &PollStats{}

	sales, err := s.market.ListClosedSales(ctx)
	if err != nil {
		return nil, fmt.Errorf("list closed sales: %w", err)
	}
	stats.SalesSeen = len(sales)

	for _, sale := range sales {
		for page := 1; ; page++ {
			items, hasMore, err := s.market.ListSaleItems(ctx, sale.ID, page)
			if err != nil {
				stats.Errors = append(stats.Errors, fmt.Sprintf("sale %s page %d: %v", sale.ID, page, err))
				break
			}
			for _, item := range items {
				stats.ItemsSeen++
				if err := s.processClosedItem(ctx, item, stats); err != nil {
					stats.Errors = append(stats.Errors, fmt.Sprintf("item %s: %v", item.ID, err))
				}
			}
			if !hasMore {
				break
			}
			s.pace()
		}
	}

	logger.With(logger.Fields{
		logger.FieldCount: stats.Won,
	}).Info(ctx, "closed-auction poll complete: items=%d no_sale=%d won=%d skipped=%d errors=%d",
		stats.ItemsSeen, stats.NoSale, stats.Won, stats.Skipped, len(stats.Errors))
	return stats, nil
}

func (s *PipelineService) processClosedItem(ctx context.Context, item marketplace.SaleItem, stats *PollStats) error {
	ours, err := s.lots.ExistsByItemID(ctx, item.ID)
	if err != nil {
		return err
	}
	if !ours {
		// Items we never listed are not ours to track.
		stats.Skipped++
		return nil
	}
	lot, err := s.lots.GetByItemID(ctx, item.ID)
	if err != nil {
		return err
	}
	if lot.Status != domain.LotStatusPublished {
		// Already processed on a previous poll.
		stats.Skipped++
		return nil
	}

	if item.BidCount == 0 || !item.ReserveMet {
		stats.NoSale++
		return s.lots.UpdateStatus(ctx, lot.ID, domain.LotStatusReserveNotMet, nil)
	}

	if err := s.lots.UpdateStatus(ctx, lot.ID, domain.LotStatusAuctionClosed, map[string]interface{}{
		"winner_id":         item.WinnerID,
		"winning_bid_cents": item.HighBidCents,
	}); err != nil {
		return err
	}
	stats.Won++

	return s.createOrderAndInvoice(ctx, lot.ID, item)
}

// createOrderAndInvoice creates the marketplace order and the payment invoice
// for a won item, recording both identifiers on the lot in one write.
func (s *PipelineService) createOrderAndInvoice(ctx context.Context, lotID string, item marketplace.SaleItem) error {
	premium := int64(float64(item.HighBidCents) * s.buyerPremiumRate)
	amount := item.HighBidCents + premium

	orderID, err := s.market.CreateOrder(ctx, marketplace.CreateOrderParams{
		ItemID:      item.ID,
		WinnerID:    item.WinnerID,
		AmountCents: amount,
	})
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}

	invoiceID, err := s.payments.CreateInvoice(ctx, payments.InvoiceParams{
		CustomerEmail: item.WinnerID,
		Description:   fmt.Sprintf("Winning bid for %s (incl. buyer premium)", item.Title),
		AmountCents:   amount,
	})
	if err != nil {
		// The order exists but the invoice does not; cancel the order so the
		// pair stays atomic from the buyer's point of view, then surface the
		// failure for the next poll to retry.
		if cancelErr := s.market.CancelOrder(ctx, orderID); cancelErr != nil {
			logger.CtxError(ctx, "rollback cancel of order %s failed: %v", orderID, cancelErr)
		}
		return fmt.Errorf("create invoice: %w", err)
	}

	lot, err := s.lots.GetByID(ctx, lotID)
	if err != nil {
		return err
	}
	lot.MarketOrderID = orderID
	lot.InvoiceID = invoiceID
	return s.lots.Save(ctx, lot)
}

// MarkInvoicePaid transitions the lot behind an invoice to PAID. Driven by
// the payment processor's invoice.paid webhook.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - invoiceID: payment-processor invoice identifier.
// Returns:
//   - error: non-nil if the lot is unknown or the transition is invalid.
func (s *PipelineService) MarkInvoicePaid(ctx context.Context, invoiceID string) error {
	lot, err := s.lots.GetByInvoiceID(ctx, invoiceID)
	if err != nil {
		return fmt.Errorf("invoice %s: no matching lot: %w", invoiceID, err)
	}
	return s.lots.UpdateStatus(ctx, lot.ID, domain.LotStatusPaid, nil)
}

// FulfillStats summarizes one retry-fulfillments run.
type FulfillStats struct {
	Attempted int      `json:"attempted"`
	Ordered   int      `json:"ordered"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

// RetryFulfillments re-attempts supplier-order creation for every lot in
// PAID. Safe to re-run: lots leave PAID on success.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - *FulfillStats: per-run counters.
//   - error: non-nil only if the lot listing fails.
func (s *PipelineService) RetryFulfillments(ctx context.Context) (*FulfillStats, error) {
	stats := &FulfillStats{}

	lots, err := s.lots.ListByStatus(ctx, domain.LotStatusPaid)
	if err != nil {
		return nil, err
	}

	for i := range lots {
		lot := &lots[i]
		stats.Attempted++
		if err := s.fulfillLot(ctx, lot); err != nil {
			stats.Failed++
			stats.Errors = append(stats.Errors, fmt.Sprintf("lot %s: %v", lot.ID, err))
		} else {
			stats.Ordered++
		}
		s.pace()
	}

	return stats, nil
}

// fulfillLot places and pays the supplier order for one PAID lot. The
// winner's shipping details come from the marketplace order; without them the
// lot stays in PAID for a later retry.
func (s *PipelineService) fulfillLot(ctx context.Context, lot *domain.Lot) error {
	ctx = logger.SetLotID(ctx, lot.ID)

	shipping, err := s.winnerShipping(ctx, lot)
	if err != nil {
		lot.ErrorMessage = err.Error()
		if serr := s.lots.Save(ctx, lot); serr != nil {
			logger.CtxError(ctx, "failed to record shipping error: %v", serr)
		}
		return err
	}

	orderID, err := s.supplier.CreateOrder(ctx, supplier.OrderParams{
		VariantID:       lot.SupplierVariantID,
		Quantity:        1,
		RecipientName:   shipping.RecipientName,
		ShippingAddress: shipping.Address,
		ClientOrderID:   lot.ID,
	})
	if err != nil {
		switch {
		case errors.Is(err, supplier.ErrOutOfStock):
			if uerr := s.lots.UpdateStatus(ctx, lot.ID, domain.LotStatusOutOfStock, map[string]interface{}{
				"error_message": err.Error(),
			}); uerr != nil {
				return uerr
			}
			return err
		case errors.Is(err, supplier.ErrPriceChanged):
			if uerr := s.lots.UpdateStatus(ctx, lot.ID, domain.LotStatusPriceChanged, map[string]interface{}{
				"error_message": err.Error(),
			}); uerr != nil {
				return uerr
			}
			return err
		}
		// Transient failure: stay in PAID, record the error, retry later.
		lot.ErrorMessage = err.Error()
		if serr := s.lots.Save(ctx, lot); serr != nil {
			logger.CtxError(ctx, "failed to record fulfillment error: %v", serr)
		}
		return err
	}

	totalCost := lot.WholesaleCents + lot.ShippingCents
	if err := s.lots.UpdateStatus(ctx, lot.ID, domain.LotStatusCJOrdered, map[string]interface{}{
		"supplier_order_id": orderID,
		"total_cost_cents":  totalCost,
		"profit_cents":      lot.WinningBidCents - totalCost,
		"error_message":     "",
	}); err != nil {
		return err
	}
	// The supplier order now exists; that money is committed whether or not
	// the payment call below lands on this pass.
	s.breakers.RecordSpend(ctx, totalCost)

	if err := s.supplier.PayOrder(ctx, orderID); err != nil {
		// The order exists but is unpaid; stuck-lot recovery will advance it
		// once the supplier-side status settles.
		return fmt.Errorf("pay order %s: %w", orderID, err)
	}
	return s.lots.UpdateStatus(ctx, lot.ID, domain.LotStatusCJPaid, nil)
}

// winnerShipping resolves the recipient details for a lot's marketplace
// order. A dropship order without a recipient cannot be delivered, so a
// missing order or missing address is an error, not a default.
func (s *PipelineService) winnerShipping(ctx context.Context, lot *domain.Lot) (*marketplace.OrderShipping, error) {
	if lot.MarketOrderID == "" {
		return nil, fmt.Errorf("lot %s has no marketplace order to ship against", lot.ID)
	}
	shipping, err := s.market.GetOrderShipping(ctx, lot.MarketOrderID)
	if err != nil {
		return nil, fmt.Errorf("fetch shipping for order %s: %w", lot.MarketOrderID, err)
	}
	if shipping.Address == "" {
		return nil, fmt.Errorf("order %s has no shipping address on file", lot.MarketOrderID)
	}
	return shipping, nil
}

// RefundOutcome records what happened to one lot in a refund batch.
type RefundOutcome struct {
	LotID    string `json:"lot_id"`
	Refunded bool   `json:"refunded"`
	Error    string `json:"error,omitempty"`
}

// ProcessRefunds refunds every lot stranded by a fulfillment failure:
// CJ_OUT_OF_STOCK, CJ_PRICE_CHANGED, and PAID lots carrying an error
// message. Per-lot failures never block the batch; a failed refund is
// recorded on the lot and raises a critical alert because money movement
// failures require a human decision.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - []RefundOutcome: one entry per attempted lot.
//   - error: non-nil only if the lot listing fails.
func (s *PipelineService) ProcessRefunds(ctx context.Context) ([]RefundOutcome, error) {
	candidates, err := s.lots.ListByStatus(ctx, domain.LotStatusOutOfStock, domain.LotStatusPriceChanged)
	if err != nil {
		return nil, err
	}
	paid, err := s.lots.ListByStatus(ctx, domain.LotStatusPaid)
	if err != nil {
		return nil, err
	}
	for _, lot := range paid {
		if lot.ErrorMessage != "" {
			candidates = append(candidates, lot)
		}
	}

	outcomes := make([]RefundOutcome, 0, len(candidates))
	for i := range candidates {
		lot := &candidates[i]
		outcome := RefundOutcome{LotID: lot.ID}
		if err := s.refundLot(ctx, lot); err != nil {
			outcome.Error = err.Error()
		} else {
			outcome.Refunded = true
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

// refundLot refunds or voids the invoice, cancels the marketplace order,
// cancels the lot, and best-effort notifies the buyer.
func (s *PipelineService) refundLot(ctx context.Context, lot *domain.Lot) error {
	ctx = logger.SetLotID(ctx, lot.ID)

	if lot.InvoiceID != "" {
		status, err := s.payments.GetInvoiceStatus(ctx, lot.InvoiceID)
		if err != nil {
			status = payments.InvoiceStatusPaid // assume the worse case: money moved
		}
		if status == payments.InvoiceStatusPaid {
			if err := s.payments.RefundInvoice(ctx, lot.InvoiceID); err != nil {
				lot.ErrorMessage = "refund failed: " + err.Error()
				if serr := s.lots.Save(ctx, lot); serr != nil {
					logger.CtxError(ctx, "failed to record refund error: %v", serr)
				}
				s.alerter.Critical(ctx, "refund failed", fmt.Sprintf("lot %s invoice %s: %v", lot.ID, lot.InvoiceID, err))
				return err
			}
		} else {
			if err := s.payments.VoidInvoice(ctx, lot.InvoiceID); err != nil {
				logger.CtxWarn(ctx, "void invoice %s failed: %v", lot.InvoiceID, err)
			}
		}
	}

	if lot.MarketOrderID != "" {
		if err := s.market.CancelOrder(ctx, lot.MarketOrderID); err != nil {
			logger.CtxWarn(ctx, "cancel order %s failed: %v", lot.MarketOrderID, err)
		}
	}

	if err := s.lots.UpdateStatus(ctx, lot.ID, domain.LotStatusCancelled, nil); err != nil {
		return err
	}

	// Buyer notification runs strictly after the authoritative state write
	// and never fails the refund.
	if lot.WinnerID != "" {
		if err := s.market.NotifyWinner(ctx, lot.WinnerID,
			fmt.Sprintf("Your order for %q was cancelled and refunded in full. We apologize for the inconvenience.", lot.ProductName)); err != nil {
			logger.CtxWarn(ctx, "winner notification failed: %v", err)
		}
	}
	return nil
}

// StuckStats summarizes one stuck-lot sweep.
type StuckStats struct {
	Repolled       bool     `json:"repolled"`
	RetriedPaid    bool     `json:"retried_paid"`
	OrdersAdvanced int      `json:"orders_advanced"`
	CriticalLots   []string `json:"critical_lots,omitempty"`
	Errors         []string `json:"errors,omitempty"`
}

// HandleStuckLots detects lots that sat in a non-terminal status past their
// expected window and remediates: stale AUCTION_CLOSED re-polls, stale PAID
// re-fulfills, stale CJ_ORDERED reconciles against the supplier's own order
// status. Anything older than four hours raises a critical alert regardless,
// because it likely needs a human.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - *StuckStats: what remediation ran.
//   - error: non-nil only if a lot listing fails.
func (s *PipelineService) HandleStuckLots(ctx context.Context) (*StuckStats, error) {
	stats := &StuckStats{}
	now := s.nowFunc()

	stuckClosed, err := s.lots.ListStuck(ctx, domain.LotStatusAuctionClosed, now.Add(-stuckAuctionClosedAge))
	if err != nil {
		return nil, err
	}
	if len(stuckClosed) > 0 {
		stats.Repolled = true
		if _, err := s.PollClosedAuctions(ctx); err != nil {
			stats.Errors = append(stats.Errors, "re-poll: "+err.Error())
		}
	}

	stuckPaid, err := s.lots.ListStuck(ctx, domain.LotStatusPaid, now.Add(-stuckPaidAge))
	if err != nil {
		return nil, err
	}
	if len(stuckPaid) > 0 {
		stats.RetriedPaid = true
		if _, err := s.RetryFulfillments(ctx); err != nil {
			stats.Errors = append(stats.Errors, "retry fulfillments: "+err.Error())
		}
	}

	stuckOrdered, err := s.lots.ListStuck(ctx, domain.LotStatusCJOrdered, now.Add(-stuckOrderedAge))
	if err != nil {
		return nil, err
	}
	for i := range stuckOrdered {
		lot := &stuckOrdered[i]
		if err := s.reconcileSupplierOrder(ctx, lot); err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("lot %s: %v", lot.ID, err))
		} else {
			stats.OrdersAdvanced++
		}
		s.pace()
	}

	// The four-hour check runs over every watched status regardless of what
	// remediation just did.
	for _, status := range []domain.LotStatus{domain.LotStatusAuctionClosed, domain.LotStatusPaid, domain.LotStatusCJOrdered} {
		old, err := s.lots.ListStuck(ctx, status, now.Add(-criticalAge))
		if err != nil {
			return nil, err
		}
		for _, lot := range old {
			stats.CriticalLots = append(stats.CriticalLots, lot.ID)
			s.alerter.Critical(ctx, "lot stuck past 4h",
				fmt.Sprintf("lot %s has been in %s since %s", lot.ID, lot.Status, lot.UpdatedAt.Format(time.RFC3339)))
		}
	}

	return stats, nil
}

// reconcileSupplierOrder queries the supplier for a stale order and advances
// the lot to match the supplier-side state.
func (s *PipelineService) reconcileSupplierOrder(ctx context.Context, lot *domain.Lot) error {
	status, err := s.supplier.GetOrderStatus(ctx, lot.SupplierOrderID)
	if err != nil {
		return err
	}

	updates := map[string]interface{}{"supplier_order_status": status}
	switch status {
	case "PAID", "PROCESSING":
		return s.lots.UpdateStatus(ctx, lot.ID, domain.LotStatusCJPaid, updates)
	case "SHIPPED", "DELIVERING":
		// The supplier moved past payment while we were not looking; walk the
		// lifecycle rather than jumping it.
		if err := s.lots.UpdateStatus(ctx, lot.ID, domain.LotStatusCJPaid, updates); err != nil {
			return err
		}
		return s.lots.UpdateStatus(ctx, lot.ID, domain.LotStatusShipped, nil)
	case "CANCELLED", "CLOSED":
		return s.lots.UpdateStatus(ctx, lot.ID, domain.LotStatusCancelled, updates)
	default:
		// Still pending on the supplier side; nothing to advance.
		lot.SupplierOrderStat = status
		return s.lots.Save(ctx, lot)
	}
}
