package domain

import (
	"fmt"
	"time"
)

// LotStatus represents where a lot sits in the auction/fulfillment lifecycle.
// The value set is closed; every status write must pass ValidateTransition.
type LotStatus string

const (
	LotStatusSourced       LotStatus = "SOURCED"
	LotStatusListed        LotStatus = "LISTED"
	LotStatusPublished     LotStatus = "PUBLISHED"
	LotStatusAuctionClosed LotStatus = "AUCTION_CLOSED"
	LotStatusPaid          LotStatus = "PAID"
	LotStatusCJOrdered     LotStatus = "CJ_ORDERED"
	LotStatusCJPaid        LotStatus = "CJ_PAID"
	LotStatusShipped       LotStatus = "SHIPPED"
	LotStatusDelivered     LotStatus = "DELIVERED"
	LotStatusReserveNotMet LotStatus = "RESERVE_NOT_MET"
	LotStatusPaymentFailed LotStatus = "PAYMENT_FAILED"
	LotStatusOutOfStock    LotStatus = "CJ_OUT_OF_STOCK"
	LotStatusPriceChanged  LotStatus = "CJ_PRICE_CHANGED"
	LotStatusCancelled     LotStatus = "CANCELLED"
)

// lotTransitions is the complete lifecycle graph. Terminal statuses map to an
// empty set. Failure branches all funnel into CANCELLED.
var lotTransitions = map[LotStatus][]LotStatus{
	LotStatusSourced:       {LotStatusListed},
	LotStatusListed:        {LotStatusPublished, LotStatusCancelled},
	LotStatusPublished:     {LotStatusAuctionClosed, LotStatusReserveNotMet, LotStatusCancelled},
	LotStatusAuctionClosed: {LotStatusPaid, LotStatusPaymentFailed, LotStatusReserveNotMet},
	LotStatusPaid:          {LotStatusCJOrdered, LotStatusOutOfStock, LotStatusPriceChanged, LotStatusCancelled},
	LotStatusCJOrdered:     {LotStatusCJPaid, LotStatusOutOfStock, LotStatusPriceChanged, LotStatusCancelled},
	LotStatusCJPaid:        {LotStatusShipped, LotStatusCancelled},
	LotStatusShipped:       {LotStatusDelivered},
	LotStatusDelivered:     {},
	LotStatusReserveNotMet: {},
	LotStatusPaymentFailed: {LotStatusCancelled},
	LotStatusOutOfStock:    {LotStatusCancelled},
	LotStatusPriceChanged:  {LotStatusCancelled},
	LotStatusCancelled:     {},
}

// AllLotStatuses returns every status in the lifecycle graph.
// Parameters: none.
// Returns:
//   - []LotStatus: all known statuses.
func AllLotStatuses() []LotStatus {
	statuses := make([]LotStatus, 0, len(lotTransitions))
	for s := range lotTransitions {
		statuses = append(statuses, s)
	}
	return statuses
}

// ValidateTransition reports whether a lot may move from one status to another.
// Parameters:
//   - from: current lot status.
//   - to: proposed next status.
// Returns:
//   - bool: true only if the transition is in the lifecycle graph.
func ValidateTransition(from, to LotStatus) bool {
	for _, next := range lotTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// InvalidTransitionError is returned when a status write fails validation.
type InvalidTransitionError struct {
	LotID string
	From  LotStatus
	To    LotStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid lot transition %s -> %s (lot %s)", e.From, e.To, e.LotID)
}

// Known reports whether s is one of the defined lifecycle statuses.
func (s LotStatus) Known() bool {
	_, ok := lotTransitions[s]
	return ok
}

// IsTerminal reports whether a status has no outgoing transitions.
func IsTerminal(s LotStatus) bool {
	return len(lotTransitions[s]) == 0
}

// Lot represents one unit of inventory tracked end-to-end: sourced from the
// supplier, auctioned on the marketplace, paid through the payment processor,
// and fulfilled back through the supplier. Rows are never deleted; terminal
// statuses retain the row for audit.
type Lot struct {
	ID                string    `gorm:"type:text;primaryKey" json:"id"`
	SupplierProductID string    `gorm:"type:text;not null;index:idx_lots_supplier" json:"supplier_product_id"`
	SupplierVariantID string    `gorm:"type:text" json:"supplier_variant_id"`
	ProductName       string    `gorm:"type:text;not null" json:"product_name"`
	WholesaleCents    int64     `json:"wholesale_cents"`
	ShippingCents     int64     `json:"shipping_cents"`
	StartingBidCents  int64     `json:"starting_bid_cents"`
	ReserveCents      int64     `json:"reserve_cents"`
	SaleID            string    `gorm:"type:text;index:idx_lots_sale" json:"sale_id,omitempty"`
	ItemID            string    `gorm:"type:text;uniqueIndex:idx_lots_item" json:"item_id,omitempty"`
	WinnerID          string    `gorm:"type:text" json:"winner_id,omitempty"`
	WinningBidCents   int64     `json:"winning_bid_cents"`
	MarketOrderID     string    `gorm:"type:text" json:"market_order_id,omitempty"`
	InvoiceID         string    `gorm:"type:text;index:idx_lots_invoice" json:"invoice_id,omitempty"`
	SupplierOrderID   string    `gorm:"type:text" json:"supplier_order_id,omitempty"`
	SupplierOrderStat string    `gorm:"column:supplier_order_status;type:text" json:"supplier_order_status,omitempty"`
	Carrier           string    `gorm:"type:text" json:"carrier,omitempty"`
	TrackingNumber    string    `gorm:"type:text" json:"tracking_number,omitempty"`
	TotalCostCents    int64     `json:"total_cost_cents"`
	ProfitCents       int64     `json:"profit_cents"`
	Status            LotStatus `gorm:"type:text;index:idx_lots_status;default:SOURCED" json:"status"`
	ErrorMessage      string    `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// TableName returns the database table name for Lot.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (Lot) TableName() string {
	return "lots"
}

// SetStatus validates and applies a status change in memory. Callers persist
// the lot afterwards; this is the single choke point for status writes.
// Parameters:
//   - to: proposed next status.
// Returns:
//   - error: *InvalidTransitionError if the lifecycle graph disallows the move.
func (l *Lot) SetStatus(to LotStatus) error {
	if !ValidateTransition(l.Status, to) {
		return &InvalidTransitionError{LotID: l.ID, From: l.Status, To: to}
	}
	l.Status = to
	return nil
}
