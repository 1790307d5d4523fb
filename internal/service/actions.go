package service

import (
	"context"
	"fmt"

	"github.com/haywardj/lotline/internal/domain"
	"github.com/haywardj/lotline/internal/platform/supplier"
)

// ActionDeps bundles everything the action catalogue delegates to.
type ActionDeps struct {
	Lots     LotStore
	Breakers *BreakerEngine
	Finance  *FinanceService
	Pipeline *PipelineService
	Sourcing *SourcingService
	Quota    *QuotaService
	Supplier supplier.API
}

// RegisterActions installs the full action catalogue on a dispatcher. This
// is the only surface through which operators and agents touch lot state.
func RegisterActions(d *Dispatcher, deps ActionDeps) {
	// Read-only queries.
	d.Register(Action{
		Name:     "get_dashboard",
		Category: CategoryQuery,
		Handler: func(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
			return deps.Finance.Summary(ctx)
		},
	})
	d.Register(Action{
		Name:     "get_lot",
		Category: CategoryQuery,
		Args: []ArgSpec{
			{Name: "lot_id", Type: "string", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			return deps.Lots.GetByID(ctx, args["lot_id"].(string))
		},
	})
	d.Register(Action{
		Name:     "list_lots",
		Category: CategoryQuery,
		Args: []ArgSpec{
			{Name: "status", Type: "string", Required: false},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			if raw, ok := args["status"]; ok {
				status := domain.LotStatus(raw.(string))
				if !status.Known() {
					return nil, fmt.Errorf("unknown lot status %q", status)
				}
				return deps.Lots.ListByStatus(ctx, status)
			}
			return deps.Lots.ListAll(ctx)
		},
	})
	d.Register(Action{
		Name:     "get_breakers",
		Category: CategoryQuery,
		Handler: func(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
			names := domain.AllBreakerNames()
			states := make([]*domain.BreakerState, 0, len(names))
			for _, name := range names {
				state, err := deps.Breakers.GetState(ctx, name)
				if err != nil {
					return nil, err
				}
				states = append(states, state)
			}
			return states, nil
		},
	})
	d.Register(Action{
		Name:     "get_quota_status",
		Category: CategoryQuery,
		Handler: func(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
			return deps.Quota.Check(ctx)
		},
	})
	d.Register(Action{
		Name:     "search_products",
		Category: CategoryQuery,
		Args: []ArgSpec{
			{Name: "keyword", Type: "string", Required: true},
			{Name: "page", Type: "number", Required: false},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			page := 1
			if raw, ok := args["page"]; ok {
				page = int(raw.(float64))
			}
			return deps.Supplier.SearchProducts(ctx, args["keyword"].(string), supplier.SortBestMatch, page, 40)
		},
	})

	// Side-effecting commands.
	d.Register(Action{
		Name:       "poll_closed_auctions",
		SideEffect: true,
		Category:   CategoryOrder,
		Handler: func(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
			return deps.Pipeline.PollClosedAuctions(ctx)
		},
	})
	d.Register(Action{
		Name:       "retry_fulfillments",
		SideEffect: true,
		Category:   CategoryOrder,
		Handler: func(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
			return deps.Pipeline.RetryFulfillments(ctx)
		},
	})
	d.Register(Action{
		Name:       "process_refunds",
		SideEffect: true,
		Category:   CategoryRefund,
		Handler: func(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
			return deps.Pipeline.ProcessRefunds(ctx)
		},
	})
	d.Register(Action{
		Name:       "handle_stuck_lots",
		SideEffect: true,
		Category:   CategoryOps,
		Handler: func(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
			return deps.Pipeline.HandleStuckLots(ctx)
		},
	})
	d.Register(Action{
		Name:       "source_products",
		SideEffect: true,
		Category:   CategorySourcing,
		Args: []ArgSpec{
			{Name: "resume", Type: "bool", Required: false},
			{Name: "dry_run", Type: "bool", Required: false},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			opts := SourcingOptions{}
			if v, ok := args["resume"].(bool); ok {
				opts.Resume = v
			}
			if v, ok := args["dry_run"].(bool); ok {
				opts.DryRun = v
			}
			run, plans, err := deps.Sourcing.Run(ctx, opts)
			if err != nil {
				return nil, err
			}
			return map[string]interface{}{"run": run, "auctions": plans}, nil
		},
	})
	d.Register(Action{
		Name:       "refund_lot",
		SideEffect: true,
		Category:   CategoryRefund,
		Args: []ArgSpec{
			{Name: "lot_id", Type: "string", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			lot, err := deps.Lots.GetByID(ctx, args["lot_id"].(string))
			if err != nil {
				return nil, err
			}
			if err := deps.Pipeline.refundLot(ctx, lot); err != nil {
				return nil, err
			}
			return deps.Lots.GetByID(ctx, lot.ID)
		},
	})
}
