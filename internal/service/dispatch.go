package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/haywardj/lotline/internal/domain"
	"github.com/haywardj/lotline/internal/logger"
)

// ActionCategory groups actions for breaker checks and post-execution
// increments.
type ActionCategory string

const (
	CategoryQuery    ActionCategory = "query"
	CategoryOrder    ActionCategory = "order"
	CategorySourcing ActionCategory = "sourcing"
	CategoryRefund   ActionCategory = "refund"
	CategoryOps      ActionCategory = "ops"
)

// ResultStatus tags every dispatch outcome. The dispatcher never returns an
// error to its caller; all failure paths resolve to one of these.
type ResultStatus string

const (
	StatusSuccess   ResultStatus = "success"
	StatusSimulated ResultStatus = "simulated"
	StatusBlocked   ResultStatus = "blocked"
	StatusError     ResultStatus = "error"
)

// ArgSpec declares one argument of an action. Type is one of "string",
// "number", "bool".
type ArgSpec struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
}

// Handler executes one action.
type Handler func(ctx context.Context, args map[string]interface{}) (interface{}, error)

// Action is one entry in the catalogue: a name, its classification, its
// argument schema, and its handler.
type Action struct {
	Name       string
	SideEffect bool
	Category   ActionCategory
	Args       []ArgSpec
	Handler    Handler
}

// DispatchRequest is one tool invocation from an operator or agent loop.
type DispatchRequest struct {
	Tool          string                 `json:"tool"`
	Args          map[string]interface{} `json:"args"`
	Shadow        bool                   `json:"shadow"`
	AgentID       string                 `json:"agent_id"`
	CorrelationID string                 `json:"correlation_id"`
	TurnNumber    int                    `json:"turn_number"`
	Reasoning     string                 `json:"reasoning"`
	Trigger       string                 `json:"trigger"`
}

// DispatchResult is the structured outcome of one invocation.
type DispatchResult struct {
	Status     ResultStatus `json:"status"`
	Data       interface{}  `json:"data,omitempty"`
	Error      string       `json:"error,omitempty"`
	BlockedBy  string       `json:"blocked_by,omitempty"`
	Reason     string       `json:"reason,omitempty"`
	Shadow     bool         `json:"shadow"`
	DurationMs int64        `json:"duration_ms"`
}

// Dispatcher is the safety boundary between callers (human or agent) and lot
// state. Every externally triggered action flows through Dispatch.
type Dispatcher struct {
	actions  map[string]Action
	breakers *BreakerEngine
	ledger   LedgerStore
	shadow   bool
	nowFunc  func() time.Time
}

// NewDispatcher creates a dispatcher with an empty catalogue.
// Parameters:
//   - breakers: breaker engine gating side effects.
//   - ledger: decision-ledger sink; writes are best-effort.
//   - shadowDefault: process-wide shadow mode from configuration.
// Returns:
//   - *Dispatcher: initialized dispatcher.
func NewDispatcher(breakers *BreakerEngine, ledger LedgerStore, shadowDefault bool) *Dispatcher {
	return &Dispatcher{
		actions:  make(map[string]Action),
		breakers: breakers,
		ledger:   ledger,
		shadow:   shadowDefault,
		nowFunc:  time.Now,
	}
}

// Register adds one action to the catalogue. Duplicate names are a
// programming error and panic at startup.
func (d *Dispatcher) Register(action Action) {
	if _, exists := d.actions[action.Name]; exists {
		panic("duplicate action registration: " + action.Name)
	}
	d.actions[action.Name] = action
}

// Actions lists the catalogue for discovery endpoints.
func (d *Dispatcher) Actions() []Action {
	out := make([]Action, 0, len(d.actions))
	for _, a := range d.actions {
		out = append(out, a)
	}
	return out
}

// validateArgs checks the request arguments against the action's schema.
func validateArgs(action Action, args map[string]interface{}) error {
	for _, spec := range action.Args {
		val, present := args[spec.Name]
		if !present {
			if spec.Required {
				return fmt.Errorf("missing required argument %q", spec.Name)
			}
			continue
		}
		switch spec.Type {
		case "string":
			if _, ok := val.(string); !ok {
				return fmt.Errorf("argument %q must be a string", spec.Name)
			}
		case "number":
			switch val.(type) {
			case float64, int, int64:
			default:
				return fmt.Errorf("argument %q must be a number", spec.Name)
			}
		case "bool":
			if _, ok := val.(bool); !ok {
				return fmt.Errorf("argument %q must be a boolean", spec.Name)
			}
		}
	}
	return nil
}

// Dispatch runs one action end to end: unknown-name rejection, shadow gate,
// breaker gate, argument validation, execution, post-execution breaker
// accounting, and ledger append. It never panics or returns an error; every
// outcome is a tagged DispatchResult.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - req: the invocation.
// Returns:
//   - *DispatchResult: tagged outcome with timing metadata.
func (d *Dispatcher) Dispatch(ctx context.Context, req *DispatchRequest) (result *DispatchResult) {
	start := d.nowFunc()
	if req.CorrelationID == "" {
		req.CorrelationID = uuid.New().String()
	}
	ctx = logger.WithFields(ctx, logger.Fields{
		logger.FieldTool:          req.Tool,
		logger.FieldCorrelationID: req.CorrelationID,
	})

	defer func() {
		if r := recover(); r != nil {
			d.breakers.RecordFailure(ctx)
			result = &DispatchResult{
				Status:     StatusError,
				Error:      fmt.Sprintf("panic in handler: %v", r),
				DurationMs: d.nowFunc().Sub(start).Milliseconds(),
			}
			logger.CtxError(ctx, "handler panicked: %v", r)
		}
		d.appendLedger(ctx, req, result)
	}()

	action, known := d.actions[req.Tool]
	if !known {
		return &DispatchResult{
			Status:     StatusError,
			Error:      fmt.Sprintf("unknown action %q", req.Tool),
			DurationMs: d.nowFunc().Sub(start).Milliseconds(),
		}
	}

	shadow := d.shadow || req.Shadow || d.breakers.KillSwitchActive(ctx)
	if shadow && action.SideEffect {
		// Simulated success lets an agent rehearse a full session against
		// live read data with zero external effect.
		logger.CtxInfo(ctx, "shadow mode: simulating %s", req.Tool)
		return &DispatchResult{
			Status: StatusSimulated,
			Shadow: true,
			Data: map[string]interface{}{
				"simulated": true,
				"tool":      req.Tool,
			},
			DurationMs: d.nowFunc().Sub(start).Milliseconds(),
		}
	}

	if action.SideEffect {
		blocked, err := d.breakers.Check(ctx, action.Category, true)
		if err != nil {
			return &DispatchResult{
				Status:     StatusError,
				Error:      "breaker check failed: " + err.Error(),
				DurationMs: d.nowFunc().Sub(start).Milliseconds(),
			}
		}
		if blocked != nil {
			logger.CtxWarn(ctx, "action blocked by %s: %s", blocked.Breaker, blocked.Reason)
			return &DispatchResult{
				Status:     StatusBlocked,
				BlockedBy:  string(blocked.Breaker),
				Reason:     blocked.Reason,
				DurationMs: d.nowFunc().Sub(start).Milliseconds(),
			}
		}
	}

	if err := validateArgs(action, req.Args); err != nil {
		return &DispatchResult{
			Status:     StatusError,
			Error:      err.Error(),
			DurationMs: d.nowFunc().Sub(start).Milliseconds(),
		}
	}

	data, err := action.Handler(ctx, req.Args)
	if err != nil {
		if action.SideEffect {
			d.breakers.RecordFailure(ctx)
		}
		return &DispatchResult{
			Status:     StatusError,
			Error:      err.Error(),
			DurationMs: d.nowFunc().Sub(start).Milliseconds(),
		}
	}

	if action.SideEffect {
		if err := d.breakers.ResetConsecutiveFailures(ctx); err != nil {
			logger.CtxError(ctx, "failed to reset consecutive failures: %v", err)
		}
		d.postExecutionIncrements(ctx, action)
	}

	return &DispatchResult{
		Status:     StatusSuccess,
		Data:       data,
		DurationMs: d.nowFunc().Sub(start).Milliseconds(),
	}
}

// postExecutionIncrements applies the per-category counters after a
// successful side effect. Spend and lot creation are not counted here: those
// counters track cents spent and lots created, amounts only the pipeline
// knows, so the services record them at the point of spend/creation.
func (d *Dispatcher) postExecutionIncrements(ctx context.Context, action Action) {
	cfg := d.breakers.Thresholds()
	var err error
	switch action.Category {
	case CategoryOrder:
		_, err = d.breakers.Increment(ctx, domain.BreakerOrdersPerHour, 1, cfg.MaxOrdersPerHour)
	case CategoryRefund:
		_, err = d.breakers.Increment(ctx, domain.BreakerRefundsPerDay, 1, cfg.MaxRefundsPerDay)
	}
	if err != nil {
		logger.CtxError(ctx, "post-execution breaker increment failed: %v", err)
	}
}

// appendLedger records the dispatch in the decision ledger. Best-effort: a
// failed append is logged and swallowed.
func (d *Dispatcher) appendLedger(ctx context.Context, req *DispatchRequest, result *DispatchResult) {
	if d.ledger == nil || result == nil {
		return
	}
	argsJSON, _ := json.Marshal(req.Args)
	resultJSON, _ := json.Marshal(result)
	entry := &domain.DecisionEntry{
		ID:            uuid.New().String(),
		CorrelationID: req.CorrelationID,
		AgentID:       req.AgentID,
		TurnNumber:    req.TurnNumber,
		ToolName:      req.Tool,
		ToolArgs:      string(argsJSON),
		ToolResult:    domain.TruncateResult(string(resultJSON)),
		Reasoning:     req.Reasoning,
		ShadowMode:    result.Shadow,
		BlockedBy:     result.BlockedBy,
		DurationMs:    result.DurationMs,
		Trigger:       req.Trigger,
		CreatedAt:     d.nowFunc().UTC(),
	}
	if err := d.ledger.Append(ctx, entry); err != nil {
		logger.CtxWarn(ctx, "ledger append failed: %v", err)
	}
}
