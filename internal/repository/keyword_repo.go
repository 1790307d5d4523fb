package repository

import (
	"context"
	"time"

	"github.com/haywardj/lotline/internal/domain"
	"gorm.io/gorm"
)

// KeywordRepository handles the sourcing-keyword rotation table.
type KeywordRepository struct {
	db *gorm.DB
}

// NewKeywordRepository creates a new KeywordRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *KeywordRepository: repository instance bound to db.
func NewKeywordRepository(db *gorm.DB) *KeywordRepository {
	return &KeywordRepository{db: db}
}

// Create inserts a new keyword entry.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - kw: keyword entry to persist.
// Returns:
//   - error: non-nil if the insert fails.
func (r *KeywordRepository) Create(ctx context.Context, kw *domain.SourcingKeyword) error {
	return r.db.WithContext(ctx).Create(kw).Error
}

// NextForRotation selects up to limit active keywords, oldest-sourced first
// with priority as tiebreak. Never-sourced keywords sort first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - limit: maximum number of keywords to return.
// Returns:
//   - []domain.SourcingKeyword: keywords in rotation order.
//   - error: non-nil if the query fails.
func (r *KeywordRepository) NextForRotation(ctx context.Context, limit int) ([]domain.SourcingKeyword, error) {
	var kws []domain.SourcingKeyword
	if err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Order("last_sourced_at ASC NULLS FIRST").
		Order("priority DESC").
		Limit(limit).
		Find(&kws).Error; err != nil {
		return nil, err
	}
	return kws, nil
}

// MarkSourced stamps a keyword as just used and bumps its run counters.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: keyword ID.
//   - lotsCreated: number of lots the run produced for this keyword.
// Returns:
//   - error: non-nil if the update fails.
func (r *KeywordRepository) MarkSourced(ctx context.Context, id string, lotsCreated int) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Model(&domain.SourcingKeyword{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_sourced_at": now,
			"run_count":       gorm.Expr("run_count + 1"),
			"lot_count":       gorm.Expr("lot_count + ?", lotsCreated),
		}).Error
}

// ListAll retrieves every keyword entry.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - []domain.SourcingKeyword: all keyword entries.
//   - error: non-nil if the query fails.
func (r *KeywordRepository) ListAll(ctx context.Context) ([]domain.SourcingKeyword, error) {
	var kws []domain.SourcingKeyword
	if err := r.db.WithContext(ctx).Order("priority DESC").Find(&kws).Error; err != nil {
		return nil, err
	}
	return kws, nil
}
