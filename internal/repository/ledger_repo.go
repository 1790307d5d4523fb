package repository

import (
	"context"

	"github.com/haywardj/lotline/internal/domain"
	"gorm.io/gorm"
)

// LedgerRepository appends decision-ledger entries. Entries are immutable;
// there is no update path.
type LedgerRepository struct {
	db *gorm.DB
}

// NewLedgerRepository creates a new LedgerRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *LedgerRepository: repository instance bound to db.
func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Append writes one ledger entry.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - entry: ledger entry to persist.
// Returns:
//   - error: non-nil if the insert fails.
func (r *LedgerRepository) Append(ctx context.Context, entry *domain.DecisionEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// ListRecent retrieves the most recent entries, newest first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - limit: maximum number of entries to return.
//   - offset: number of entries to skip.
// Returns:
//   - []domain.DecisionEntry: matching entries.
//   - error: non-nil if the query fails.
func (r *LedgerRepository) ListRecent(ctx context.Context, limit, offset int) ([]domain.DecisionEntry, error) {
	var entries []domain.DecisionEntry
	if err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// ListByCorrelation retrieves all entries for one correlation ID, oldest first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - correlationID: correlation identifier to filter by.
// Returns:
//   - []domain.DecisionEntry: matching entries.
//   - error: non-nil if the query fails.
func (r *LedgerRepository) ListByCorrelation(ctx context.Context, correlationID string) ([]domain.DecisionEntry, error) {
	var entries []domain.DecisionEntry
	if err := r.db.WithContext(ctx).
		Where("correlation_id = ?", correlationID).
		Order("created_at ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
