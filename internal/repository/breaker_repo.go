package repository

import (
	"context"
	"time"

	"github.com/haywardj/lotline/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BreakerRepository handles circuit-breaker state rows. Reset/trip semantics
// live in the service layer; this type only persists rows.
type BreakerRepository struct {
	db *gorm.DB
}

// NewBreakerRepository creates a new BreakerRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *BreakerRepository: repository instance bound to db.
func NewBreakerRepository(db *gorm.DB) *BreakerRepository {
	return &BreakerRepository{db: db}
}

// GetOrCreate fetches a breaker row, lazily inserting a zeroed one.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - name: breaker name.
// Returns:
//   - *domain.BreakerState: existing or freshly created row.
//   - error: non-nil if the lookup or insert fails.
func (r *BreakerRepository) GetOrCreate(ctx context.Context, name domain.BreakerName) (*domain.BreakerState, error) {
	state := domain.BreakerState{Name: name, LastReset: time.Now().UTC()}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(&state).Error; err != nil {
		return nil, err
	}
	var out domain.BreakerState
	if err := r.db.WithContext(ctx).First(&out, "name = ?", name).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

// Save persists a breaker row.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - state: breaker row to persist.
// Returns:
//   - error: non-nil if the update fails.
func (r *BreakerRepository) Save(ctx context.Context, state *domain.BreakerState) error {
	return r.db.WithContext(ctx).Save(state).Error
}

// ListAll retrieves every breaker row.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - []domain.BreakerState: all breaker rows.
//   - error: non-nil if the query fails.
func (r *BreakerRepository) ListAll(ctx context.Context) ([]domain.BreakerState, error) {
	var states []domain.BreakerState
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&states).Error; err != nil {
		return nil, err
	}
	return states, nil
}
