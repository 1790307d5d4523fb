package service

import (
	"context"
	"time"

	"github.com/haywardj/lotline/internal/domain"
)

// Store interfaces consumed by the services. The gorm repositories in
// internal/repository satisfy them; tests use in-memory fakes.

// LotStore persists lots.
type LotStore interface {
	Create(ctx context.Context, lot *domain.Lot) error
	Save(ctx context.Context, lot *domain.Lot) error
	GetByID(ctx context.Context, id string) (*domain.Lot, error)
	GetByItemID(ctx context.Context, itemID string) (*domain.Lot, error)
	GetByInvoiceID(ctx context.Context, invoiceID string) (*domain.Lot, error)
	UpdateStatus(ctx context.Context, id string, to domain.LotStatus, updates map[string]interface{}) error
	ListByStatus(ctx context.Context, statuses ...domain.LotStatus) ([]domain.Lot, error)
	ListAll(ctx context.Context) ([]domain.Lot, error)
	List(ctx context.Context, status domain.LotStatus, limit, offset int) ([]domain.Lot, error)
	ListStuck(ctx context.Context, status domain.LotStatus, cutoff time.Time) ([]domain.Lot, error)
	ExistsByItemID(ctx context.Context, itemID string) (bool, error)
	CountCreatedSince(ctx context.Context, since time.Time) (int64, error)
}

// BreakerStore persists circuit-breaker rows.
type BreakerStore interface {
	GetOrCreate(ctx context.Context, name domain.BreakerName) (*domain.BreakerState, error)
	Save(ctx context.Context, state *domain.BreakerState) error
	ListAll(ctx context.Context) ([]domain.BreakerState, error)
}

// LedgerStore appends decision-ledger entries.
type LedgerStore interface {
	Append(ctx context.Context, entry *domain.DecisionEntry) error
}

// RunStore persists smart-sourcing run state.
type RunStore interface {
	Create(ctx context.Context, run *domain.SourcingRun) error
	Save(ctx context.Context, run *domain.SourcingRun) error
	GetByID(ctx context.Context, id string) (*domain.SourcingRun, error)
	Latest(ctx context.Context) (*domain.SourcingRun, error)
}

// KeywordStore reads and stamps the sourcing-keyword rotation.
type KeywordStore interface {
	NextForRotation(ctx context.Context, limit int) ([]domain.SourcingKeyword, error)
	MarkSourced(ctx context.Context, id string, lotsCreated int) error
}
