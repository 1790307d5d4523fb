// Package supplier wraps the dropship supplier's HTTP API. The upstream is
// rate-limited to roughly one request per second; callers are expected to
// pace themselves (the sourcing pipeline and pipeline operations do).
package supplier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Sentinel errors the fulfillment pipeline branches on. The client maps
// upstream failure codes onto these; test fakes return them directly.
var (
	ErrOutOfStock   = errors.New("supplier: variant out of stock")
	ErrPriceChanged = errors.New("supplier: price changed since sourcing")
)

// Sort orders accepted by SearchProducts.
const (
	SortBestMatch  = "bestMatch"
	SortSellPrice  = "sellPrice"
)

// Product is one catalog search hit.
type Product struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	Category           string `json:"category"`
	SellPriceCents     int64  `json:"sell_price_cents"`
	ListedNum          int    `json:"listed_num"`
	WarehouseInventory int    `json:"warehouse_inventory_num"`
	HasVideo           bool   `json:"has_video"`
}

// Variant is one purchasable variant of a product.
type Variant struct {
	ID           string  `json:"id"`
	PriceCents   int64   `json:"price_cents"`
	WeightGrams  float64 `json:"weight_grams"`
	InventoryNum int     `json:"inventory_num"`
}

// ProductDetail is the full product record behind a search hit.
type ProductDetail struct {
	Product
	Variants  []Variant `json:"variants"`
	ImageURLs []string  `json:"image_urls"`
}

// OrderParams describes a fulfillment order.
type OrderParams struct {
	VariantID       string `json:"variant_id"`
	Quantity        int    `json:"quantity"`
	RecipientName   string `json:"recipient_name"`
	ShippingAddress string `json:"shipping_address"`
	// ClientOrderID makes order creation idempotent on the supplier side.
	ClientOrderID string `json:"client_order_id"`
}

// API is the contract the pipeline depends on. Implemented by Client and by
// test fakes. GetAccountSettings returns the raw payload because the upstream
// schema for quota data is unstable; parsing is the caller's problem.
type API interface {
	SearchProducts(ctx context.Context, keyword, sort string, page, pageSize int) ([]Product, error)
	GetProductDetail(ctx context.Context, productID string) (*ProductDetail, error)
	GetVariantInventory(ctx context.Context, variantID string) (int, error)
	CalculateFreight(ctx context.Context, variantID, countryCode string) (int64, error)
	CreateOrder(ctx context.Context, params OrderParams) (string, error)
	PayOrder(ctx context.Context, orderID string) error
	GetOrderStatus(ctx context.Context, orderID string) (string, error)
	GetAccountSettings(ctx context.Context) (json.RawMessage, error)
	GetBalance(ctx context.Context) (int64, error)
}

// Client is the resty-backed implementation of API. The access token is
// long-lived and cached on disk so process restarts do not burn the
// token-issue quota.
type Client struct {
	client    *resty.Client
	baseURL   string
	email     string
	apiKey    string
	tokenPath string
}

// Config holds supplier client configuration.
type Config struct {
	BaseURL   string
	Email     string
	APIKey    string
	TokenPath string
}

// NewClient creates a supplier API client.
// Parameters:
//   - cfg: base URL, credentials, and token cache path.
// Returns:
//   - *Client: initialized client.
func NewClient(cfg *Config) *Client {
	client := resty.New()
	client.SetHeader("Content-Type", "application/json")
	client.SetTimeout(45 * time.Second)

	c := &Client{
		client:    client,
		baseURL:   cfg.BaseURL,
		email:     cfg.Email,
		apiKey:    cfg.APIKey,
		tokenPath: cfg.TokenPath,
	}
	if tok := c.loadCachedToken(); tok != "" {
		client.SetHeader("CJ-Access-Token", tok)
	}
	return c
}

type cachedToken struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (c *Client) loadCachedToken() string {
	if c.tokenPath == "" {
		return ""
	}
	data, err := os.ReadFile(c.tokenPath)
	if err != nil {
		return ""
	}
	var tok cachedToken
	if err := json.Unmarshal(data, &tok); err != nil {
		return ""
	}
	if time.Now().After(tok.ExpiresAt) {
		return ""
	}
	return tok.AccessToken
}

func (c *Client) saveToken(token string, expiresAt time.Time) {
	if c.tokenPath == "" {
		return
	}
	data, err := json.Marshal(cachedToken{AccessToken: token, ExpiresAt: expiresAt})
	if err != nil {
		return
	}
	// Best effort; a failed write just means re-auth next start.
	_ = os.WriteFile(c.tokenPath, data, 0600)
}

// Authenticate obtains and caches a fresh access token.
func (c *Client) Authenticate(ctx context.Context) error {
	var out struct {
		Data struct {
			AccessToken string `json:"accessToken"`
			ExpiryDate  string `json:"accessTokenExpiryDate"`
		} `json:"data"`
	}
	err := c.do(ctx, resty.MethodPost, "/authentication/getAccessToken", map[string]string{
		"email":    c.email,
		"password": c.apiKey,
	}, &out)
	if err != nil {
		return err
	}
	expires := time.Now().Add(14 * 24 * time.Hour)
	if t, perr := time.Parse(time.RFC3339, out.Data.ExpiryDate); perr == nil {
		expires = t
	}
	c.client.SetHeader("CJ-Access-Token", out.Data.AccessToken)
	c.saveToken(out.Data.AccessToken, expires)
	return nil
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) do(ctx context.Context, method, path string, body, result interface{}) error {
	req := c.client.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}
	if result != nil {
		req.SetResult(result)
	}
	resp, err := req.Execute(method, c.baseURL+path)
	if err != nil {
		return fmt.Errorf("supplier %s %s: %w", method, path, err)
	}
	if resp.IsError() {
		return fmt.Errorf("supplier %s %s: %s", method, path, resp.Status())
	}
	return nil
}

// doData runs a request and unwraps the supplier's {code,message,data} envelope.
func (c *Client) doData(ctx context.Context, method, path string, body interface{}) (json.RawMessage, error) {
	var env envelope
	if err := c.do(ctx, method, path, body, &env); err != nil {
		return nil, err
	}
	if env.Code != 200 {
		return nil, fmt.Errorf("supplier %s %s: code %d: %s", method, path, env.Code, env.Message)
	}
	return env.Data, nil
}

// SearchProducts runs one catalog search page.
func (c *Client) SearchProducts(ctx context.Context, keyword, sort string, page, pageSize int) ([]Product, error) {
	path := fmt.Sprintf("/product/list?keyword=%s&sort=%s&pageNum=%d&pageSize=%d", keyword, sort, page, pageSize)
	data, err := c.doData(ctx, resty.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		List []Product `json:"list"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("supplier search decode: %w", err)
	}
	return out.List, nil
}

// GetProductDetail fetches the full product record.
func (c *Client) GetProductDetail(ctx context.Context, productID string) (*ProductDetail, error) {
	data, err := c.doData(ctx, resty.MethodGet, "/product/query?pid="+productID, nil)
	if err != nil {
		return nil, err
	}
	var detail ProductDetail
	if err := json.Unmarshal(data, &detail); err != nil {
		return nil, fmt.Errorf("supplier detail decode: %w", err)
	}
	return &detail, nil
}

// GetVariantInventory fetches live inventory for one variant.
func (c *Client) GetVariantInventory(ctx context.Context, variantID string) (int, error) {
	data, err := c.doData(ctx, resty.MethodGet, "/product/stock/queryByVid?vid="+variantID, nil)
	if err != nil {
		return 0, err
	}
	var out struct {
		InventoryNum int `json:"inventory_num"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return 0, fmt.Errorf("supplier inventory decode: %w", err)
	}
	return out.InventoryNum, nil
}

// CalculateFreight returns the cheapest freight option in cents.
func (c *Client) CalculateFreight(ctx context.Context, variantID, countryCode string) (int64, error) {
	body := map[string]interface{}{"vid": variantID, "countryCode": countryCode, "quantity": 1}
	data, err := c.doData(ctx, resty.MethodPost, "/logistic/freightCalculate", body)
	if err != nil {
		return 0, err
	}
	var options []struct {
		PriceCents int64 `json:"price_cents"`
	}
	if err := json.Unmarshal(data, &options); err != nil {
		return 0, fmt.Errorf("supplier freight decode: %w", err)
	}
	if len(options) == 0 {
		return 0, fmt.Errorf("supplier freight: no options for variant %s", variantID)
	}
	cheapest := options[0].PriceCents
	for _, opt := range options[1:] {
		if opt.PriceCents < cheapest {
			cheapest = opt.PriceCents
		}
	}
	return cheapest, nil
}

// CreateOrder creates a fulfillment order and returns the supplier order ID.
func (c *Client) CreateOrder(ctx context.Context, params OrderParams) (string, error) {
	data, err := c.doData(ctx, resty.MethodPost, "/shopping/order/createOrder", params)
	if err != nil {
		msg := strings.ToLower(err.Error())
		switch {
		case strings.Contains(msg, "out of stock") || strings.Contains(msg, "insufficient inventory"):
			return "", fmt.Errorf("%w: %v", ErrOutOfStock, err)
		case strings.Contains(msg, "price"):
			return "", fmt.Errorf("%w: %v", ErrPriceChanged, err)
		}
		return "", err
	}
	var out struct {
		OrderID string `json:"orderId"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("supplier order decode: %w", err)
	}
	return out.OrderID, nil
}

// PayOrder pays a pending order from the account balance.
func (c *Client) PayOrder(ctx context.Context, orderID string) error {
	_, err := c.doData(ctx, resty.MethodPost, "/shopping/pay/payBalance", map[string]string{"orderId": orderID})
	return err
}

// GetOrderStatus fetches the supplier-side state of one order.
func (c *Client) GetOrderStatus(ctx context.Context, orderID string) (string, error) {
	data, err := c.doData(ctx, resty.MethodGet, "/shopping/order/getOrderDetail?orderId="+orderID, nil)
	if err != nil {
		return "", err
	}
	var out struct {
		OrderStatus string `json:"orderStatus"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("supplier order status decode: %w", err)
	}
	return out.OrderStatus, nil
}

// GetAccountSettings fetches raw account settings, including API quota data.
func (c *Client) GetAccountSettings(ctx context.Context) (json.RawMessage, error) {
	return c.doData(ctx, resty.MethodGet, "/setting/get", nil)
}

// GetBalance fetches the account balance in cents.
func (c *Client) GetBalance(ctx context.Context) (int64, error) {
	data, err := c.doData(ctx, resty.MethodGet, "/account/balance", nil)
	if err != nil {
		return 0, err
	}
	var out struct {
		AmountCents int64 `json:"amount_cents"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return 0, fmt.Errorf("supplier balance decode: %w", err)
	}
	return out.AmountCents, nil
}
