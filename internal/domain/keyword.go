package domain

import "time"

// SourcingKeyword is one rotation entry for the sourcing pipelines. Selection
// is oldest-sourced-first with priority as tiebreak, active entries only.
type SourcingKeyword struct {
	ID            string     `gorm:"type:text;primaryKey" json:"id"`
	Keyword       string     `gorm:"type:text;not null;uniqueIndex:idx_keywords_keyword" json:"keyword"`
	MaxCostCents  int64      `json:"max_cost_cents"`
	MaxQuantity   int        `json:"max_quantity"`
	Priority      int        `gorm:"default:0;index:idx_keywords_priority" json:"priority"`
	Active        bool       `gorm:"default:true;index:idx_keywords_active" json:"active"`
	LastSourcedAt *time.Time `json:"last_sourced_at,omitempty"`
	RunCount      int64      `gorm:"default:0" json:"run_count"`
	LotCount      int64      `gorm:"default:0" json:"lot_count"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TableName returns the database table name for SourcingKeyword.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (SourcingKeyword) TableName() string {
	return "sourcing_keywords"
}
