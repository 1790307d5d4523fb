package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/haywardj/lotline/internal/domain"
	"gorm.io/gorm"
)

// LotRepository handles lot data operations. Status writes go through
// UpdateStatus, which revalidates the transition against the stored row so a
// stale in-memory lot cannot smuggle in an illegal move.
type LotRepository struct {
	db *gorm.DB
}

// NewLotRepository creates a new LotRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *LotRepository: repository instance bound to db.
func NewLotRepository(db *gorm.DB) *LotRepository {
	return &LotRepository{db: db}
}

// Create inserts a new lot record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - lot: lot record to persist.
// Returns:
//   - error: non-nil if the insert fails.
func (r *LotRepository) Create(ctx context.Context, lot *domain.Lot) error {
	return r.db.WithContext(ctx).Create(lot).Error
}

// Save persists non-status field changes on an existing lot.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - lot: lot record with updated fields.
// Returns:
//   - error: non-nil if the update fails.
func (r *LotRepository) Save(ctx context.Context, lot *domain.Lot) error {
	return r.db.WithContext(ctx).Save(lot).Error
}

// GetByID retrieves a lot by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: lot ID.
// Returns:
//   - *domain.Lot: lot record if found.
//   - error: non-nil if lookup fails.
func (r *LotRepository) GetByID(ctx context.Context, id string) (*domain.Lot, error) {
	var lot domain.Lot
	if err := r.db.WithContext(ctx).First(&lot, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &lot, nil
}

// GetByItemID retrieves a lot by its marketplace item ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - itemID: marketplace item identifier.
// Returns:
//   - *domain.Lot: lot record if found.
//   - error: non-nil if lookup fails.
func (r *LotRepository) GetByItemID(ctx context.Context, itemID string) (*domain.Lot, error) {
	var lot domain.Lot
	if err := r.db.WithContext(ctx).First(&lot, "item_id = ?", itemID).Error; err != nil {
		return nil, err
	}
	return &lot, nil
}

// GetByInvoiceID retrieves a lot by its payment-invoice ID. Used by the
// invoice-paid webhook path.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - invoiceID: payment-processor invoice identifier.
// Returns:
//   - *domain.Lot: lot record if found.
//   - error: non-nil if lookup fails.
func (r *LotRepository) GetByInvoiceID(ctx context.Context, invoiceID string) (*domain.Lot, error) {
	var lot domain.Lot
	if err := r.db.WithContext(ctx).First(&lot, "invoice_id = ?", invoiceID).Error; err != nil {
		return nil, err
	}
	return &lot, nil
}

// UpdateStatus transitions a lot to a new status, validating against the
// stored status inside a transaction. Extra fields (winner, order ids, error
// message) are applied in the same write.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: lot ID.
//   - to: target status.
//   - updates: additional column updates applied with the status change; may be nil.
// Returns:
//   - error: *domain.InvalidTransitionError if the lifecycle graph disallows
//     the move, otherwise any database error.
func (r *LotRepository) UpdateStatus(ctx context.Context, id string, to domain.LotStatus, updates map[string]interface{}) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var lot domain.Lot
		if err := tx.First(&lot, "id = ?", id).Error; err != nil {
			return err
		}
		if !domain.ValidateTransition(lot.Status, to) {
			return &domain.InvalidTransitionError{LotID: id, From: lot.Status, To: to}
		}
		if updates == nil {
			updates = map[string]interface{}{}
		}
		updates["status"] = to
		updates["updated_at"] = time.Now().UTC()
		return tx.Model(&domain.Lot{}).Where("id = ?", id).Updates(updates).Error
	})
}

// ListByStatus retrieves lots in any of the given statuses.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - statuses: statuses to filter by.
// Returns:
//   - []domain.Lot: matching lot records, oldest update first.
//   - error: non-nil if the query fails.
func (r *LotRepository) ListByStatus(ctx context.Context, statuses ...domain.LotStatus) ([]domain.Lot, error) {
	var lots []domain.Lot
	if err := r.db.WithContext(ctx).
		Where("status IN ?", statuses).
		Order("updated_at ASC").
		Find(&lots).Error; err != nil {
		return nil, err
	}
	return lots, nil
}

// ListAll retrieves every lot. Used by the financial aggregator, which scans
// the full table once per summary.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - []domain.Lot: all lot records.
//   - error: non-nil if the query fails.
func (r *LotRepository) ListAll(ctx context.Context) ([]domain.Lot, error) {
	var lots []domain.Lot
	if err := r.db.WithContext(ctx).Find(&lots).Error; err != nil {
		return nil, err
	}
	return lots, nil
}

// List retrieves lots with optional status filter and pagination.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - status: status to filter by; empty means all.
//   - limit: maximum number of records to return.
//   - offset: number of records to skip.
// Returns:
//   - []domain.Lot: matching lot records.
//   - error: non-nil if the query fails.
func (r *LotRepository) List(ctx context.Context, status domain.LotStatus, limit, offset int) ([]domain.Lot, error) {
	var lots []domain.Lot
	query := r.db.WithContext(ctx)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if err := query.
		Limit(limit).
		Offset(offset).
		Order("created_at DESC").
		Find(&lots).Error; err != nil {
		return nil, err
	}
	return lots, nil
}

// ListStuck retrieves lots of one status whose last update predates the cutoff.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - status: status to filter by.
//   - cutoff: lots updated before this time are considered stuck.
// Returns:
//   - []domain.Lot: matching lot records.
//   - error: non-nil if the query fails.
func (r *LotRepository) ListStuck(ctx context.Context, status domain.LotStatus, cutoff time.Time) ([]domain.Lot, error) {
	var lots []domain.Lot
	if err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", status, cutoff).
		Find(&lots).Error; err != nil {
		return nil, err
	}
	return lots, nil
}

// ExistsByItemID checks whether a marketplace item is already recorded locally.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - itemID: marketplace item identifier.
// Returns:
//   - bool: true if a lot references the item.
//   - error: non-nil if the lookup fails.
func (r *LotRepository) ExistsByItemID(ctx context.Context, itemID string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Lot{}).Where("item_id = ?", itemID).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// CountCreatedSince counts lots created at or after the given time.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - since: inclusive lower bound on created_at.
// Returns:
//   - int64: number of matching records.
//   - error: non-nil if the query fails.
func (r *LotRepository) CountCreatedSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Lot{}).Where("created_at >= ?", since).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count lots: %w", err)
	}
	return count, nil
}
