// Package payments wraps the payment processor's HTTP API (Stripe-style
// form-encoded endpoints). Invoice webhooks are handled upstream; this client
// only covers the calls the fulfillment pipeline makes itself.
package payments

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

// Invoice statuses the pipeline cares about.
const (
	InvoiceStatusOpen = "open"
	InvoiceStatusPaid = "paid"
)

// InvoiceParams describes a new invoice for an auction winner.
type InvoiceParams struct {
	CustomerEmail string
	Description   string
	AmountCents   int64
}

// API is the contract the pipeline depends on. Implemented by Client and by
// test fakes.
type API interface {
	CreateInvoice(ctx context.Context, params InvoiceParams) (string, error)
	GetInvoiceStatus(ctx context.Context, invoiceID string) (string, error)
	RefundInvoice(ctx context.Context, invoiceID string) error
	VoidInvoice(ctx context.Context, invoiceID string) error
}

// Client is the resty-backed implementation of API.
type Client struct {
	client  *resty.Client
	baseURL string
}

// Config holds payment-processor client configuration.
type Config struct {
	BaseURL   string
	SecretKey string
}

// NewClient creates a payments API client.
// Parameters:
//   - cfg: base URL and secret key.
// Returns:
//   - *Client: initialized client.
func NewClient(cfg *Config) *Client {
	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.SecretKey)
	client.SetHeader("Content-Type", "application/x-www-form-urlencoded")
	client.SetTimeout(30 * time.Second)

	return &Client{
		client:  client,
		baseURL: cfg.BaseURL,
	}
}

type stripeError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) post(ctx context.Context, path string, form map[string]string, result interface{}) error {
	req := c.client.R().SetContext(ctx).SetFormData(form)
	if result != nil {
		req.SetResult(result)
	}
	var apiErr stripeError
	req.SetError(&apiErr)

	resp, err := req.Post(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("payments POST %s: %w", path, err)
	}
	if resp.IsError() {
		msg := apiErr.Error.Message
		if msg == "" {
			msg = resp.Status()
		}
		return fmt.Errorf("payments POST %s: %s", path, msg)
	}
	return nil
}

// CreateInvoice creates and finalizes an invoice, returning its ID.
func (c *Client) CreateInvoice(ctx context.Context, params InvoiceParams) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	err := c.post(ctx, "/invoices", map[string]string{
		"customer_email": params.CustomerEmail,
		"description":    params.Description,
		"amount":         strconv.FormatInt(params.AmountCents, 10),
		"currency":       "usd",
		"auto_advance":   "true",
	}, &out)
	if err != nil {
		return "", err
	}
	return out.ID, nil
}

// GetInvoiceStatus fetches the current status of an invoice.
func (c *Client) GetInvoiceStatus(ctx context.Context, invoiceID string) (string, error) {
	var out struct {
		Status string `json:"status"`
	}
	resp, err := c.client.R().SetContext(ctx).SetResult(&out).Get(c.baseURL + "/invoices/" + invoiceID)
	if err != nil {
		return "", fmt.Errorf("payments GET invoice: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("payments GET invoice: %s", resp.Status())
	}
	return out.Status, nil
}

// RefundInvoice refunds a paid invoice in full.
func (c *Client) RefundInvoice(ctx context.Context, invoiceID string) error {
	return c.post(ctx, "/refunds", map[string]string{"invoice": invoiceID}, nil)
}

// VoidInvoice voids an invoice that was never paid.
func (c *Client) VoidInvoice(ctx context.Context, invoiceID string) error {
	return c.post(ctx, "/invoices/"+invoiceID+"/void", nil, nil)
}
