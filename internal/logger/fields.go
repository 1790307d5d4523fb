package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// ============================================
// Standard Tracing Fields (Context level)
// These fields are propagated through the call chain
// ============================================

const (
	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"

	// FieldRunID is the smart-sourcing run ID
	FieldRunID = "run_id"

	// FieldLotID is the lot being operated on
	FieldLotID = "lot_id"

	// FieldCorrelationID ties a dispatched action to its ledger entry
	FieldCorrelationID = "correlation_id"

	// FieldComponent is the component/module name
	FieldComponent = "component"

	// FieldTool is the dispatched action name
	FieldTool = "tool"
)

// ============================================
// Standard Metric Fields (Entry level)
// These fields are used for aggregation and alerting
// ============================================

const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field
	FieldCount = "count"

	// FieldSize is the data size in bytes
	FieldSize = "size"

	// FieldStatus is the operation status
	FieldStatus = "status"
)
