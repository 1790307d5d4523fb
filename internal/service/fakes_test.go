package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/haywardj/lotline/internal/domain"
	"github.com/haywardj/lotline/internal/platform/marketplace"
	"github.com/haywardj/lotline/internal/platform/payments"
	"github.com/haywardj/lotline/internal/platform/supplier"
)

// In-memory fakes shared across the service tests.

type memLotStore struct {
	mu   sync.Mutex
	lots map[string]*domain.Lot
}

func newMemLotStore(lots ...*domain.Lot) *memLotStore {
	s := &memLotStore{lots: make(map[string]*domain.Lot)}
	for _, lot := range lots {
		cp := *lot
		s.lots[lot.ID] = &cp
	}
	return s
}

func (s *memLotStore) Create(_ context.Context, lot *domain.Lot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.lots[lot.ID]; exists {
		return fmt.Errorf("lot %s already exists", lot.ID)
	}
	cp := *lot
	s.lots[lot.ID] = &cp
	return nil
}

func (s *memLotStore) Save(_ context.Context, lot *domain.Lot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *lot
	s.lots[lot.ID] = &cp
	return nil
}

func (s *memLotStore) GetByID(_ context.Context, id string) (*domain.Lot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lot, ok := s.lots[id]
	if !ok {
		return nil, fmt.Errorf("lot %s not found", id)
	}
	cp := *lot
	return &cp, nil
}

func (s *memLotStore) GetByItemID(_ context.Context, itemID string) (*domain.Lot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, lot := range s.lots {
		if lot.ItemID == itemID {
			cp := *lot
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("no lot for item %s", itemID)
}

func (s *memLotStore) GetByInvoiceID(_ context.Context, invoiceID string) (*domain.Lot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, lot := range s.lots {
		if lot.InvoiceID == invoiceID {
			cp := *lot
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("no lot for invoice %s", invoiceID)
}

func (s *memLotStore) UpdateStatus(_ context.Context, id string, to domain.LotStatus, updates map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lot, ok := s.lots[id]
	if !ok {
		return fmt.Errorf("lot %s not found", id)
	}
	if !domain.ValidateTransition(lot.Status, to) {
		return &domain.InvalidTransitionError{LotID: id, From: lot.Status, To: to}
	}
	applyLotUpdates(lot, updates)
	lot.Status = to
	lot.UpdatedAt = time.Now()
	return nil
}

// applyLotUpdates mirrors the column map the gorm repository accepts.
func applyLotUpdates(lot *domain.Lot, updates map[string]interface{}) {
	for col, val := range updates {
		switch col {
		case "winner_id":
			lot.WinnerID = val.(string)
		case "winning_bid_cents":
			lot.WinningBidCents = val.(int64)
		case "supplier_order_id":
			lot.SupplierOrderID = val.(string)
		case "supplier_order_status":
			lot.SupplierOrderStat = val.(string)
		case "total_cost_cents":
			lot.TotalCostCents = val.(int64)
		case "profit_cents":
			lot.ProfitCents = val.(int64)
		case "error_message":
			lot.ErrorMessage = val.(string)
		}
	}
}

func (s *memLotStore) ListByStatus(_ context.Context, statuses ...domain.LotStatus) ([]domain.Lot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Lot
	for _, lot := range s.lots {
		for _, st := range statuses {
			if lot.Status == st {
				out = append(out, *lot)
				break
			}
		}
	}
	return out, nil
}

func (s *memLotStore) ListAll(_ context.Context) ([]domain.Lot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Lot, 0, len(s.lots))
	for _, lot := range s.lots {
		out = append(out, *lot)
	}
	return out, nil
}

func (s *memLotStore) List(_ context.Context, status domain.LotStatus, limit, offset int) ([]domain.Lot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Lot
	for _, lot := range s.lots {
		if status == "" || lot.Status == status {
			out = append(out, *lot)
		}
	}
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memLotStore) CountCreatedSince(_ context.Context, since time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, lot := range s.lots {
		if !lot.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (s *memLotStore) ListStuck(_ context.Context, status domain.LotStatus, cutoff time.Time) ([]domain.Lot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Lot
	for _, lot := range s.lots {
		if lot.Status == status && lot.UpdatedAt.Before(cutoff) {
			out = append(out, *lot)
		}
	}
	return out, nil
}

func (s *memLotStore) ExistsByItemID(_ context.Context, itemID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, lot := range s.lots {
		if lot.ItemID == itemID {
			return true, nil
		}
	}
	return false, nil
}

type memBreakerStore struct {
	mu     sync.Mutex
	states map[domain.BreakerName]*domain.BreakerState
	// failAll simulates an unreadable store.
	failAll bool
}

func newMemBreakerStore() *memBreakerStore {
	return &memBreakerStore{states: make(map[domain.BreakerName]*domain.BreakerState)}
}

func (s *memBreakerStore) GetOrCreate(_ context.Context, name domain.BreakerName) (*domain.BreakerState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return nil, fmt.Errorf("store unavailable")
	}
	state, ok := s.states[name]
	if !ok {
		// Zero LastReset so the engine stamps it with its own clock on the
		// first read.
		state = &domain.BreakerState{Name: name}
		s.states[name] = state
	}
	cp := *state
	return &cp, nil
}

func (s *memBreakerStore) Save(_ context.Context, state *domain.BreakerState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return fmt.Errorf("store unavailable")
	}
	cp := *state
	s.states[state.Name] = &cp
	return nil
}

func (s *memBreakerStore) ListAll(_ context.Context) ([]domain.BreakerState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.BreakerState, 0, len(s.states))
	for _, state := range s.states {
		out = append(out, *state)
	}
	return out, nil
}

type memLedger struct {
	mu      sync.Mutex
	entries []domain.DecisionEntry
	failAll bool
}

func (l *memLedger) Append(_ context.Context, entry *domain.DecisionEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failAll {
		return fmt.Errorf("ledger unavailable")
	}
	l.entries = append(l.entries, *entry)
	return nil
}

type memRunStore struct {
	mu   sync.Mutex
	runs map[string]*domain.SourcingRun
}

func newMemRunStore() *memRunStore {
	return &memRunStore{runs: make(map[string]*domain.SourcingRun)}
}

func (s *memRunStore) Create(_ context.Context, run *domain.SourcingRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run.CreatedAt = time.Now()
	cp := cloneRun(run)
	s.runs[run.ID] = cp
	return nil
}

func (s *memRunStore) Save(_ context.Context, run *domain.SourcingRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := cloneRun(run)
	s.runs[run.ID] = cp
	return nil
}

func (s *memRunStore) GetByID(_ context.Context, id string) (*domain.SourcingRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("run %s not found", id)
	}
	return cloneRun(run), nil
}

func (s *memRunStore) Latest(_ context.Context) (*domain.SourcingRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *domain.SourcingRun
	for _, run := range s.runs {
		if latest == nil || run.CreatedAt.After(latest.CreatedAt) {
			latest = run
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("no runs")
	}
	return cloneRun(latest), nil
}

// cloneRun round-trips through JSON so saved checkpoints are fully detached
// from the caller's slices, the way a real database row would be.
func cloneRun(run *domain.SourcingRun) *domain.SourcingRun {
	b, _ := json.Marshal(run)
	var cp domain.SourcingRun
	_ = json.Unmarshal(b, &cp)
	cp.CreatedAt = run.CreatedAt
	return &cp
}

type memKeywordStore struct {
	keywords []domain.SourcingKeyword
	marked   []string
}

func (s *memKeywordStore) NextForRotation(_ context.Context, limit int) ([]domain.SourcingKeyword, error) {
	if limit > len(s.keywords) {
		limit = len(s.keywords)
	}
	return append([]domain.SourcingKeyword(nil), s.keywords[:limit]...), nil
}

func (s *memKeywordStore) MarkSourced(_ context.Context, id string, _ int) error {
	s.marked = append(s.marked, id)
	return nil
}

// fakeMarket records calls; error hooks let tests fail specific operations.
type fakeMarket struct {
	mu sync.Mutex

	closedSales []marketplace.ClosedSale
	saleItems   map[string][]marketplace.SaleItem
	shipping    map[string]*marketplace.OrderShipping

	listClosedCalls int
	createdOrders   []marketplace.CreateOrderParams
	cancelledOrders []string
	notified        []string
	createdSales    []string
	createdItems    int
	published       []string

	createOrderErr  error
	createItemErr   error
	createItemFails int
}

func newFakeMarket() *fakeMarket {
	return &fakeMarket{
		saleItems: make(map[string][]marketplace.SaleItem),
		shipping:  make(map[string]*marketplace.OrderShipping),
	}
}

func (m *fakeMarket) ListClosedSales(context.Context) ([]marketplace.ClosedSale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listClosedCalls++
	return m.closedSales, nil
}

func (m *fakeMarket) ListSaleItems(_ context.Context, saleID string, page int) ([]marketplace.SaleItem, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if page > 1 {
		return nil, false, nil
	}
	return m.saleItems[saleID], false, nil
}

func (m *fakeMarket) CreateSale(_ context.Context, params marketplace.CreateSaleParams) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := fmt.Sprintf("sale-%d", len(m.createdSales)+1)
	m.createdSales = append(m.createdSales, id)
	return id, nil
}

func (m *fakeMarket) AttachShippingPolicy(context.Context, string) error { return nil }

func (m *fakeMarket) CreateItem(_ context.Context, saleID string, params marketplace.CreateItemParams) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createItemErr != nil && m.createItemFails > 0 {
		m.createItemFails--
		return "", m.createItemErr
	}
	m.createdItems++
	return fmt.Sprintf("item-%d", m.createdItems), nil
}

func (m *fakeMarket) UploadItemImage(context.Context, string, string) error { return nil }

func (m *fakeMarket) PublishSale(_ context.Context, saleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, saleID)
	return nil
}

func (m *fakeMarket) CreateOrder(_ context.Context, params marketplace.CreateOrderParams) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createOrderErr != nil {
		return "", m.createOrderErr
	}
	m.createdOrders = append(m.createdOrders, params)
	return fmt.Sprintf("order-%d", len(m.createdOrders)), nil
}

func (m *fakeMarket) CancelOrder(_ context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelledOrders = append(m.cancelledOrders, orderID)
	return nil
}

func (m *fakeMarket) GetOrderShipping(_ context.Context, orderID string) (*marketplace.OrderShipping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.shipping[orderID]
	if !ok {
		return nil, fmt.Errorf("order %s not found", orderID)
	}
	return s, nil
}

func (m *fakeMarket) NotifyWinner(_ context.Context, winnerID, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notified = append(m.notified, winnerID)
	return nil
}

// fakeSupplier serves a canned catalog; per-method error hooks.
type fakeSupplier struct {
	mu sync.Mutex

	products  map[string][]supplier.Product // keyword -> page 1 hits
	details   map[string]*supplier.ProductDetail
	inventory map[string]int
	freight   map[string]int64
	orders    map[string]string // supplier order id -> status
	settings  json.RawMessage

	createdOrders  []supplier.OrderParams
	paidOrders     []string
	searchCalls    int
	createOrderErr error
	searchErr      error
	searchErrAfter int
}

func newFakeSupplier() *fakeSupplier {
	return &fakeSupplier{
		products:  make(map[string][]supplier.Product),
		details:   make(map[string]*supplier.ProductDetail),
		inventory: make(map[string]int),
		freight:   make(map[string]int64),
		orders:    make(map[string]string),
	}
}

func (f *fakeSupplier) SearchProducts(_ context.Context, keyword, _ string, page, _ int) ([]supplier.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchCalls++
	if f.searchErr != nil && f.searchCalls > f.searchErrAfter {
		return nil, f.searchErr
	}
	if page > 1 {
		return nil, nil
	}
	return f.products[keyword], nil
}

func (f *fakeSupplier) GetProductDetail(_ context.Context, productID string) (*supplier.ProductDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.details[productID]
	if !ok {
		return nil, fmt.Errorf("product %s not found", productID)
	}
	return d, nil
}

func (f *fakeSupplier) GetVariantInventory(_ context.Context, variantID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inventory[variantID], nil
}

func (f *fakeSupplier) CalculateFreight(_ context.Context, variantID, _ string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.freight[variantID], nil
}

func (f *fakeSupplier) CreateOrder(_ context.Context, params supplier.OrderParams) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createOrderErr != nil {
		return "", f.createOrderErr
	}
	f.createdOrders = append(f.createdOrders, params)
	id := fmt.Sprintf("cj-order-%d", len(f.createdOrders))
	f.orders[id] = "CREATED"
	return id, nil
}

func (f *fakeSupplier) PayOrder(_ context.Context, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paidOrders = append(f.paidOrders, orderID)
	f.orders[orderID] = "PAID"
	return nil
}

func (f *fakeSupplier) GetOrderStatus(_ context.Context, orderID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status, ok := f.orders[orderID]
	if !ok {
		return "", fmt.Errorf("order %s not found", orderID)
	}
	return status, nil
}

func (f *fakeSupplier) GetAccountSettings(context.Context) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settings, nil
}

func (f *fakeSupplier) GetBalance(context.Context) (int64, error) { return 100000, nil }

// fakePayments records invoice operations; refundErrFor fails one invoice.
type fakePayments struct {
	mu sync.Mutex

	statuses     map[string]string
	created      []payments.InvoiceParams
	refunded     []string
	voided       []string
	refundErrFor string
	createErr    error
}

func newFakePayments() *fakePayments {
	return &fakePayments{statuses: make(map[string]string)}
}

func (p *fakePayments) CreateInvoice(_ context.Context, params payments.InvoiceParams) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.createErr != nil {
		return "", p.createErr
	}
	p.created = append(p.created, params)
	id := fmt.Sprintf("inv-%d", len(p.created))
	p.statuses[id] = payments.InvoiceStatusOpen
	return id, nil
}

func (p *fakePayments) GetInvoiceStatus(_ context.Context, invoiceID string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	status, ok := p.statuses[invoiceID]
	if !ok {
		return "", fmt.Errorf("invoice %s not found", invoiceID)
	}
	return status, nil
}

func (p *fakePayments) RefundInvoice(_ context.Context, invoiceID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if invoiceID == p.refundErrFor {
		return fmt.Errorf("refund declined for %s", invoiceID)
	}
	p.refunded = append(p.refunded, invoiceID)
	return nil
}

func (p *fakePayments) VoidInvoice(_ context.Context, invoiceID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.voided = append(p.voided, invoiceID)
	return nil
}

// recordingAlerter captures alerts for assertions.
type recordingAlerter struct {
	mu        sync.Mutex
	criticals []string
	warns     []string
}

func (a *recordingAlerter) Critical(_ context.Context, title, _ string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.criticals = append(a.criticals, title)
}

func (a *recordingAlerter) Warn(_ context.Context, title, _ string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.warns = append(a.warns, title)
}
