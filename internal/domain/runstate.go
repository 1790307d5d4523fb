package domain

import "time"

// Candidate is one phase-1 sourcing candidate with its wide-search score.
type Candidate struct {
	ProductID      string  `json:"product_id"`
	ProductName    string  `json:"product_name"`
	Category       string  `json:"category"`
	Keyword        string  `json:"keyword"`
	WholesaleCents int64   `json:"wholesale_cents"`
	ListingCount   int     `json:"listing_count"`
	InventoryNum   int     `json:"inventory_num"`
	HasVideo       bool    `json:"has_video"`
	Score          float64 `json:"score"`
}

// EnrichedCandidate is one phase-2 candidate after deep evaluation: variant
// selection, freight, pricing, and the phase-2 composite score.
type EnrichedCandidate struct {
	Candidate
	VariantID        string  `json:"variant_id"`
	VariantCostCents int64   `json:"variant_cost_cents"`
	WeightGrams      float64 `json:"weight_grams"`
	FreightCents     int64   `json:"freight_cents"`
	ImageCount       int     `json:"image_count"`
	ImageURLs        []string `json:"image_urls,omitempty"`
	MarkupRatio      float64 `json:"markup_ratio"`
	StartingBidCents int64   `json:"starting_bid_cents"`
	ReserveCents     int64   `json:"reserve_cents"`
	DeepScore        float64 `json:"deep_score"`
}

// SourcingRun is the durable state of one smart-sourcing run. It is persisted
// after every bounded unit of work (each keyword in phase 1, every ten
// products in phase 2) so a crash loses at most that unit; --resume reloads
// the whole row. Never mutated after phase 3 completes.
type SourcingRun struct {
	ID                string                          `gorm:"type:text;primaryKey" json:"id"`
	StartedAt         time.Time                       `json:"started_at"`
	BuyerPremiumRate  float64                         `json:"buyer_premium_rate"`
	Phase1Done        bool                            `gorm:"default:false" json:"phase1_done"`
	Phase2Done        bool                            `gorm:"default:false" json:"phase2_done"`
	Phase3Done        bool                            `gorm:"default:false" json:"phase3_done"`
	Candidates        JSONColumn[[]Candidate]         `gorm:"type:text" json:"candidates"`
	Enriched          JSONColumn[[]EnrichedCandidate] `gorm:"type:text" json:"enriched"`
	ProcessedKeywords StringArray                     `gorm:"type:text" json:"processed_keywords"`
	ProcessedProducts StringArray                     `gorm:"type:text" json:"processed_products"`
	CreatedSaleIDs    StringArray                     `gorm:"type:text" json:"created_sale_ids"`
	ErrorLog          StringArray                     `gorm:"type:text" json:"error_log"`
	CompletedAt       *time.Time                      `json:"completed_at,omitempty"`
	CreatedAt         time.Time                       `json:"created_at"`
	UpdatedAt         time.Time                       `json:"updated_at"`
}

// TableName returns the database table name for SourcingRun.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (SourcingRun) TableName() string {
	return "sourcing_runs"
}

// HasProcessedKeyword reports whether a keyword was already completed in phase 1.
func (r *SourcingRun) HasProcessedKeyword(keyword string) bool {
	for _, k := range r.ProcessedKeywords {
		if k == keyword {
			return true
		}
	}
	return false
}

// HasProcessedProduct reports whether a product was already evaluated in phase 2.
func (r *SourcingRun) HasProcessedProduct(productID string) bool {
	for _, id := range r.ProcessedProducts {
		if id == productID {
			return true
		}
	}
	return false
}
