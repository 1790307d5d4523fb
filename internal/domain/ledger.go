package domain

import "time"

// MaxLedgerResultLen bounds how much of a tool result is retained per entry.
const MaxLedgerResultLen = 4096

// DecisionEntry is one append-only audit record of an agent turn or operator
// tool call. Immutable once written; ledger writes are always best-effort and
// never block the action they record.
type DecisionEntry struct {
	ID            string    `gorm:"type:text;primaryKey" json:"id"`
	CorrelationID string    `gorm:"type:text;index:idx_ledger_correlation" json:"correlation_id"`
	AgentID       string    `gorm:"type:text;index:idx_ledger_agent" json:"agent_id"`
	TurnNumber    int       `json:"turn_number"`
	ToolName      string    `gorm:"type:text;index:idx_ledger_tool" json:"tool_name"`
	ToolArgs      string    `gorm:"type:text" json:"tool_args,omitempty"`
	ToolResult    string    `gorm:"type:text" json:"tool_result,omitempty"`
	Reasoning     string    `gorm:"type:text" json:"reasoning,omitempty"`
	ShadowMode    bool      `gorm:"default:false" json:"shadow_mode"`
	BlockedBy     string    `gorm:"type:text" json:"blocked_by,omitempty"`
	DurationMs    int64     `json:"duration_ms"`
	Trigger       string    `gorm:"type:text" json:"trigger,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// TableName returns the database table name for DecisionEntry.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (DecisionEntry) TableName() string {
	return "decision_ledger"
}

// TruncateResult bounds a tool result string for ledger storage.
func TruncateResult(s string) string {
	if len(s) <= MaxLedgerResultLen {
		return s
	}
	return s[:MaxLedgerResultLen] + "...(truncated)"
}
