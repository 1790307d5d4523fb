package repository

import (
	"context"

	"github.com/haywardj/lotline/internal/domain"
	"gorm.io/gorm"
)

// RunRepository persists smart-sourcing run state. The sourcing pipeline
// writes the whole row at every checkpoint; --resume reads it back in full.
type RunRepository struct {
	db *gorm.DB
}

// NewRunRepository creates a new RunRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *RunRepository: repository instance bound to db.
func NewRunRepository(db *gorm.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create inserts a new run row.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - run: run state to persist.
// Returns:
//   - error: non-nil if the insert fails.
func (r *RunRepository) Create(ctx context.Context, run *domain.SourcingRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

// Save checkpoints the full run state.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - run: run state to persist.
// Returns:
//   - error: non-nil if the update fails.
func (r *RunRepository) Save(ctx context.Context, run *domain.SourcingRun) error {
	return r.db.WithContext(ctx).Save(run).Error
}

// GetByID retrieves a run by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: run ID.
// Returns:
//   - *domain.SourcingRun: run state if found.
//   - error: non-nil if lookup fails.
func (r *RunRepository) GetByID(ctx context.Context, id string) (*domain.SourcingRun, error) {
	var run domain.SourcingRun
	if err := r.db.WithContext(ctx).First(&run, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

// Latest retrieves the most recently started run, completed or not. Used by
// --resume when no run ID is given.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - *domain.SourcingRun: most recent run state.
//   - error: non-nil if lookup fails.
func (r *RunRepository) Latest(ctx context.Context) (*domain.SourcingRun, error) {
	var run domain.SourcingRun
	if err := r.db.WithContext(ctx).Order("started_at DESC").First(&run).Error; err != nil {
		return nil, err
	}
	return &run, nil
}
