package service

import (
	"context"
	"time"

	"github.com/haywardj/lotline/internal/config"
	"github.com/haywardj/lotline/internal/domain"
	"github.com/haywardj/lotline/internal/logger"
)

// financialCacheTTL bounds how stale the margin-floor check may run.
const financialCacheTTL = 5 * time.Minute

// Blocked describes why a side-effecting action was refused. It is a normal
// outcome, not an error: the dispatcher turns it into a tagged result.
type Blocked struct {
	Breaker domain.BreakerName `json:"breaker"`
	Reason  string             `json:"reason"`
}

// BreakerEngine owns the seven circuit breakers. Every counter except the
// kill switch auto-resets at UTC midnight (the orders-per-hour counter also
// resets on the hour); trips are one-way until a reset.
type BreakerEngine struct {
	store   BreakerStore
	finance *FinanceService
	cfg     config.BreakersConfig
	summary *TTLCache[*FinancialSummary]
	nowFunc func() time.Time
}

// NewBreakerEngine creates the breaker engine.
// Parameters:
//   - store: breaker row persistence.
//   - finance: aggregator backing the margin-floor check.
//   - cfg: numeric thresholds.
// Returns:
//   - *BreakerEngine: initialized engine.
func NewBreakerEngine(store BreakerStore, finance *FinanceService, cfg config.BreakersConfig) *BreakerEngine {
	return &BreakerEngine{
		store:   store,
		finance: finance,
		cfg:     cfg,
		summary: NewTTLCache[*FinancialSummary](financialCacheTTL),
		nowFunc: time.Now,
	}
}

// SetClock overrides the engine's clock. Test hook.
func (e *BreakerEngine) SetClock(now func() time.Time) {
	e.nowFunc = now
	e.summary.SetClock(now)
}

// SummaryCache exposes the financial-summary cache so callers can force a
// fresh read after large financial events.
func (e *BreakerEngine) SummaryCache() *TTLCache[*FinancialSummary] {
	return e.summary
}

// resetWindowStart returns the instant at which the breaker's current
// counting window began.
func (e *BreakerEngine) resetWindowStart(name domain.BreakerName) time.Time {
	now := e.nowFunc().UTC()
	if name == domain.BreakerOrdersPerHour {
		return now.Truncate(time.Hour)
	}
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// GetState fetches a breaker row, lazily creating it and applying the
// auto-reset. The kill switch never auto-resets.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - name: breaker name.
// Returns:
//   - *domain.BreakerState: current row after any reset.
//   - error: non-nil if persistence fails.
func (e *BreakerEngine) GetState(ctx context.Context, name domain.BreakerName) (*domain.BreakerState, error) {
	state, err := e.store.GetOrCreate(ctx, name)
	if err != nil {
		return nil, err
	}
	if name == domain.BreakerKillSwitch {
		return state, nil
	}
	windowStart := e.resetWindowStart(name)
	if state.LastReset.Before(windowStart) {
		state.Counter = 0
		state.Tripped = false
		state.LastReset = e.nowFunc().UTC()
		if err := e.store.Save(ctx, state); err != nil {
			return nil, err
		}
		logger.CtxInfo(ctx, "breaker %s auto-reset for new window", name)
	}
	return state, nil
}

// Increment adds to a breaker's counter and trips it the first time the
// counter reaches the threshold. Tripping is one-way until a reset.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - name: breaker name.
//   - amount: value to add; spending breakers add cents, count breakers add 1.
//   - threshold: trip threshold from configuration.
// Returns:
//   - *domain.BreakerState: row after the increment.
//   - error: non-nil if persistence fails.
func (e *BreakerEngine) Increment(ctx context.Context, name domain.BreakerName, amount, threshold int64) (*domain.BreakerState, error) {
	state, err := e.GetState(ctx, name)
	if err != nil {
		return nil, err
	}
	state.Counter += amount
	if !state.Tripped && state.Counter >= threshold {
		state.Tripped = true
		now := e.nowFunc().UTC()
		state.LastTripped = &now
		logger.CtxWarn(ctx, "breaker %s tripped: counter %d >= threshold %d", name, state.Counter, threshold)
	}
	if err := e.store.Save(ctx, state); err != nil {
		return nil, err
	}
	return state, nil
}

// Trip forces a breaker open regardless of its counter.
func (e *BreakerEngine) Trip(ctx context.Context, name domain.BreakerName) error {
	state, err := e.GetState(ctx, name)
	if err != nil {
		return err
	}
	if !state.Tripped {
		state.Tripped = true
		now := e.nowFunc().UTC()
		state.LastTripped = &now
		logger.CtxWarn(ctx, "breaker %s manually tripped", name)
	}
	return e.store.Save(ctx, state)
}

// Reset zeroes a breaker and clears its tripped flag. This and the window
// auto-reset are the only paths that close a tripped breaker.
func (e *BreakerEngine) Reset(ctx context.Context, name domain.BreakerName) error {
	state, err := e.store.GetOrCreate(ctx, name)
	if err != nil {
		return err
	}
	state.Counter = 0
	state.Tripped = false
	state.LastReset = e.nowFunc().UTC()
	return e.store.Save(ctx, state)
}

// ResetConsecutiveFailures zeroes only the consecutive-failure breaker. Called
// after every successful tool execution.
func (e *BreakerEngine) ResetConsecutiveFailures(ctx context.Context) error {
	return e.Reset(ctx, domain.BreakerConsecutiveFailures)
}

// RecordFailure bumps the consecutive-failure breaker. Called on any
// tool-level error or panic.
func (e *BreakerEngine) RecordFailure(ctx context.Context) {
	if _, err := e.Increment(ctx, domain.BreakerConsecutiveFailures, 1, e.cfg.MaxConsecutiveFailures); err != nil {
		logger.CtxError(ctx, "failed to record tool failure: %v", err)
	}
}

// RecordSpend adds committed supplier spend, in cents, to the daily spending
// cap. Accounting never fails the order that already exists: errors are
// logged only.
func (e *BreakerEngine) RecordSpend(ctx context.Context, cents int64) {
	if cents <= 0 {
		return
	}
	if _, err := e.Increment(ctx, domain.BreakerDailySpend, cents, e.cfg.DailySpendCapCents); err != nil {
		logger.CtxError(ctx, "failed to record spend of %d cents: %v", cents, err)
	}
}

// RecordLotCreated bumps the daily lot-creation counter by one. Called once
// per lot the sourcing pipeline actually creates, so the cap counts lots, not
// sourcing runs.
func (e *BreakerEngine) RecordLotCreated(ctx context.Context) {
	if _, err := e.Increment(ctx, domain.BreakerDailyLotCreation, 1, e.cfg.DailyLotCreationCap); err != nil {
		logger.CtxError(ctx, "failed to record lot creation: %v", err)
	}
}

// KillSwitchActive reports whether the global kill switch is tripped.
func (e *BreakerEngine) KillSwitchActive(ctx context.Context) bool {
	state, err := e.GetState(ctx, domain.BreakerKillSwitch)
	if err != nil {
		// Fail safe: an unreadable kill switch behaves as active.
		logger.CtxError(ctx, "kill switch read failed, treating as active: %v", err)
		return true
	}
	return state.Tripped
}

// cachedSummary returns the financial summary, at most financialCacheTTL old.
func (e *BreakerEngine) cachedSummary(ctx context.Context) (*FinancialSummary, error) {
	if cached, ok := e.summary.Get(); ok {
		return cached, nil
	}
	fresh, err := e.finance.Summary(ctx)
	if err != nil {
		return nil, err
	}
	e.summary.Set(fresh)
	return fresh, nil
}

// Check is the entry gate for side-effecting actions. Read-only actions are
// never blocked. The returned *Blocked is nil when the action may proceed.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - category: the action's breaker category.
//   - sideEffect: whether the action mutates external state.
// Returns:
//   - *Blocked: non-nil if a breaker refuses the action.
//   - error: non-nil only on persistence failure.
func (e *BreakerEngine) Check(ctx context.Context, category ActionCategory, sideEffect bool) (*Blocked, error) {
	if !sideEffect {
		return nil, nil
	}

	// A run of consecutive failures halts all side effects: one bad class of
	// error must not cascade across many calls.
	failures, err := e.GetState(ctx, domain.BreakerConsecutiveFailures)
	if err != nil {
		return nil, err
	}
	if failures.Tripped {
		return &Blocked{
			Breaker: domain.BreakerConsecutiveFailures,
			Reason:  "too many consecutive tool failures",
		}, nil
	}

	switch category {
	case CategoryOrder:
		if b, err := e.checkTripped(ctx, domain.BreakerDailySpend, "daily spending cap reached"); b != nil || err != nil {
			return b, err
		}
		if b, err := e.checkTripped(ctx, domain.BreakerOrdersPerHour, "hourly order cap reached"); b != nil || err != nil {
			return b, err
		}
	case CategorySourcing:
		if b, err := e.checkTripped(ctx, domain.BreakerDailySpend, "daily spending cap reached"); b != nil || err != nil {
			return b, err
		}
		if b, err := e.checkTripped(ctx, domain.BreakerDailyLotCreation, "daily lot creation cap reached"); b != nil || err != nil {
			return b, err
		}
	case CategoryRefund:
		if b, err := e.checkTripped(ctx, domain.BreakerRefundsPerDay, "daily refund cap reached"); b != nil || err != nil {
			return b, err
		}
	}

	// The margin floor is re-checked on every side effect, against a summary
	// at most five minutes old.
	summary, err := e.cachedSummary(ctx)
	if err != nil {
		return nil, err
	}
	margin, merr := e.GetState(ctx, domain.BreakerMarginFloor)
	if merr != nil {
		return nil, merr
	}
	if summary.RevenueCents > 0 && summary.ProfitMarginPct < e.cfg.MarginFloorPct && !margin.Tripped {
		if err := e.Trip(ctx, domain.BreakerMarginFloor); err != nil {
			return nil, err
		}
		margin.Tripped = true
	}
	if margin.Tripped {
		return &Blocked{
			Breaker: domain.BreakerMarginFloor,
			Reason:  "profit margin below floor",
		}, nil
	}

	return nil, nil
}

func (e *BreakerEngine) checkTripped(ctx context.Context, name domain.BreakerName, reason string) (*Blocked, error) {
	state, err := e.GetState(ctx, name)
	if err != nil {
		return nil, err
	}
	if state.Tripped {
		return &Blocked{Breaker: name, Reason: reason}, nil
	}
	return nil, nil
}

// Thresholds exposes the configured thresholds for post-execution increments.
func (e *BreakerEngine) Thresholds() config.BreakersConfig {
	return e.cfg
}
