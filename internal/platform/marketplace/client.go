// Package marketplace wraps the auction host's HTTP API. The pipeline only
// consumes the narrow API interface; everything else here is transport detail.
package marketplace

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// ClosedSale is one auction sale that has finished.
type ClosedSale struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	ClosedAt time.Time `json:"closed_at"`
}

// SaleItem is one item within a sale, with its closing bid state.
type SaleItem struct {
	ID           string `json:"id"`
	SaleID       string `json:"sale_id"`
	Title        string `json:"title"`
	BidCount     int    `json:"bid_count"`
	HighBidCents int64  `json:"high_bid_cents"`
	ReserveCents int64  `json:"reserve_cents"`
	ReserveMet   bool   `json:"reserve_met"`
	WinnerID     string `json:"winner_id"`
}

// CreateSaleParams describes a new timed auction.
type CreateSaleParams struct {
	Title    string    `json:"title"`
	OpensAt  time.Time `json:"opens_at"`
	ClosesAt time.Time `json:"closes_at"`
}

// CreateItemParams describes a new lot listing within a sale.
type CreateItemParams struct {
	Title            string `json:"title"`
	Description      string `json:"description"`
	StartingBidCents int64  `json:"starting_bid_cents"`
	ReserveCents     int64  `json:"reserve_cents"`
}

// CreateOrderParams describes a buyer order for a won item.
type CreateOrderParams struct {
	ItemID   string `json:"item_id"`
	WinnerID string `json:"winner_id"`
	// AmountCents is the winning bid plus buyer premium.
	AmountCents int64 `json:"amount_cents"`
}

// OrderShipping is the recipient detail the winner supplied at registration,
// attached to their order once it exists.
type OrderShipping struct {
	RecipientName string `json:"recipient_name"`
	Address       string `json:"address"`
}

// API is the contract the pipeline depends on. Implemented by Client and by
// test fakes.
type API interface {
	ListClosedSales(ctx context.Context) ([]ClosedSale, error)
	ListSaleItems(ctx context.Context, saleID string, page int) (items []SaleItem, hasMore bool, err error)
	CreateSale(ctx context.Context, params CreateSaleParams) (string, error)
	AttachShippingPolicy(ctx context.Context, saleID string) error
	CreateItem(ctx context.Context, saleID string, params CreateItemParams) (string, error)
	UploadItemImage(ctx context.Context, itemID, imageURL string) error
	PublishSale(ctx context.Context, saleID string) error
	CreateOrder(ctx context.Context, params CreateOrderParams) (string, error)
	CancelOrder(ctx context.Context, orderID string) error
	GetOrderShipping(ctx context.Context, orderID string) (*OrderShipping, error)
	NotifyWinner(ctx context.Context, winnerID, message string) error
}

// Client is the resty-backed implementation of API.
type Client struct {
	client  *resty.Client
	baseURL string
}

// Config holds marketplace client configuration.
type Config struct {
	BaseURL string
	APIKey  string
}

// NewClient creates a marketplace API client.
// Parameters:
//   - cfg: base URL and API key.
// Returns:
//   - *Client: initialized client.
func NewClient(cfg *Config) *Client {
	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")
	client.SetTimeout(30 * time.Second)

	return &Client{
		client:  client,
		baseURL: cfg.BaseURL,
	}
}

type apiError struct {
	Message string `json:"message"`
}

// do runs one request and normalizes non-2xx responses into errors.
func (c *Client) do(ctx context.Context, method, path string, body, result interface{}) error {
	req := c.client.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}
	if result != nil {
		req.SetResult(result)
	}
	var apiErr apiError
	req.SetError(&apiErr)

	resp, err := req.Execute(method, c.baseURL+path)
	if err != nil {
		return fmt.Errorf("marketplace %s %s: %w", method, path, err)
	}
	if resp.IsError() {
		msg := apiErr.Message
		if msg == "" {
			msg = resp.Status()
		}
		return fmt.Errorf("marketplace %s %s: %s", method, path, msg)
	}
	return nil
}

// ListClosedSales fetches all sales that have closed.
func (c *Client) ListClosedSales(ctx context.Context) ([]ClosedSale, error) {
	var out struct {
		Sales []ClosedSale `json:"sales"`
	}
	if err := c.do(ctx, resty.MethodGet, "/sales?state=closed", nil, &out); err != nil {
		return nil, err
	}
	return out.Sales, nil
}

// ListSaleItems fetches one page of a sale's items.
func (c *Client) ListSaleItems(ctx context.Context, saleID string, page int) ([]SaleItem, bool, error) {
	var out struct {
		Items   []SaleItem `json:"items"`
		HasMore bool       `json:"has_more"`
	}
	path := fmt.Sprintf("/sales/%s/items?page=%d", saleID, page)
	if err := c.do(ctx, resty.MethodGet, path, nil, &out); err != nil {
		return nil, false, err
	}
	return out.Items, out.HasMore, nil
}

// CreateSale creates a new timed auction and returns its ID.
func (c *Client) CreateSale(ctx context.Context, params CreateSaleParams) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, resty.MethodPost, "/sales", params, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// AttachShippingPolicy attaches a "must have shipping address" registration
// policy to a sale.
func (c *Client) AttachShippingPolicy(ctx context.Context, saleID string) error {
	body := map[string]interface{}{
		"type":     "registration",
		"requires": []string{"shipping_address"},
	}
	return c.do(ctx, resty.MethodPost, fmt.Sprintf("/sales/%s/policies", saleID), body, nil)
}

// CreateItem creates one item in a sale and returns its ID.
func (c *Client) CreateItem(ctx context.Context, saleID string, params CreateItemParams) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, resty.MethodPost, fmt.Sprintf("/sales/%s/items", saleID), params, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// UploadItemImage attaches one image to an item by URL.
func (c *Client) UploadItemImage(ctx context.Context, itemID, imageURL string) error {
	body := map[string]string{"url": imageURL}
	return c.do(ctx, resty.MethodPost, fmt.Sprintf("/items/%s/images", itemID), body, nil)
}

// PublishSale makes a sale publicly visible.
func (c *Client) PublishSale(ctx context.Context, saleID string) error {
	return c.do(ctx, resty.MethodPost, fmt.Sprintf("/sales/%s/publish", saleID), nil, nil)
}

// CreateOrder creates the buyer-facing order for a won item.
func (c *Client) CreateOrder(ctx context.Context, params CreateOrderParams) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, resty.MethodPost, "/orders", params, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// CancelOrder cancels a marketplace order.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	return c.do(ctx, resty.MethodPost, fmt.Sprintf("/orders/%s/cancel", orderID), nil, nil)
}

// GetOrderShipping fetches the winner's shipping details for an order.
func (c *Client) GetOrderShipping(ctx context.Context, orderID string) (*OrderShipping, error) {
	var out OrderShipping
	if err := c.do(ctx, resty.MethodGet, fmt.Sprintf("/orders/%s/shipping", orderID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// NotifyWinner sends a message to an auction winner.
func (c *Client) NotifyWinner(ctx context.Context, winnerID, message string) error {
	body := map[string]string{"user_id": winnerID, "message": message}
	return c.do(ctx, resty.MethodPost, "/notifications", body, nil)
}
