package domain

import "time"

// BreakerName identifies one circuit breaker row.
type BreakerName string

const (
	BreakerDailySpend          BreakerName = "daily_spending_cap"
	BreakerDailyLotCreation    BreakerName = "daily_lot_creation_cap"
	BreakerMarginFloor         BreakerName = "margin_floor"
	BreakerConsecutiveFailures BreakerName = "consecutive_failures"
	BreakerOrdersPerHour       BreakerName = "orders_per_hour"
	BreakerRefundsPerDay       BreakerName = "refunds_per_day"
	BreakerKillSwitch          BreakerName = "kill_switch"
)

// AllBreakerNames returns every breaker the engine manages.
func AllBreakerNames() []BreakerName {
	return []BreakerName{
		BreakerDailySpend,
		BreakerDailyLotCreation,
		BreakerMarginFloor,
		BreakerConsecutiveFailures,
		BreakerOrdersPerHour,
		BreakerRefundsPerDay,
		BreakerKillSwitch,
	}
}

// BreakerState is one persistent circuit-breaker row. Counters for every
// breaker except the kill switch reset to zero on the first read after UTC
// midnight following LastReset. Tripped is a one-way flag until an explicit
// or daily reset.
type BreakerState struct {
	Name        BreakerName `gorm:"type:text;primaryKey" json:"name"`
	Counter     int64       `gorm:"default:0" json:"counter"`
	Tripped     bool        `gorm:"default:false" json:"tripped"`
	LastReset   time.Time   `json:"last_reset"`
	LastTripped *time.Time  `json:"last_tripped,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// TableName returns the database table name for BreakerState.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (BreakerState) TableName() string {
	return "circuit_breakers"
}
