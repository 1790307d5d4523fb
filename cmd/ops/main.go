// Command ops runs one pipeline operation from the command line, through the
// same dispatcher (and therefore the same breaker and shadow gates) as the
// HTTP action surface.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/haywardj/lotline/internal/config"
	"github.com/haywardj/lotline/internal/logger"
	"github.com/haywardj/lotline/internal/platform/marketplace"
	"github.com/haywardj/lotline/internal/platform/payments"
	"github.com/haywardj/lotline/internal/platform/supplier"
	"github.com/haywardj/lotline/internal/repository"
	"github.com/haywardj/lotline/internal/service"
)

var opToTool = map[string]string{
	"poll":    "poll_closed_auctions",
	"fulfill": "retry_fulfillments",
	"refunds": "process_refunds",
	"stuck":   "handle_stuck_lots",
	"quota":   "get_quota_status",
}

func main() {
	op := flag.String("op", "", "operation to run: poll | fulfill | refunds | stuck | quota")
	shadow := flag.Bool("shadow", false, "simulate side effects instead of executing them")
	flag.Parse()

	tool, ok := opToTool[*op]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown operation %q\n", *op)
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.SetDefaultLogger(logger.NewDefault())
	defer logger.Sync()

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		logger.Fatal("Failed to initialize database: %v", err)
	}

	lotRepo := repository.NewLotRepository(db)
	breakerRepo := repository.NewBreakerRepository(db)
	keywordRepo := repository.NewKeywordRepository(db)
	runRepo := repository.NewRunRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)

	marketClient := marketplace.NewClient(&marketplace.Config{
		BaseURL: cfg.Marketplace.BaseURL,
		APIKey:  cfg.Marketplace.APIKey,
	})
	supplierClient := supplier.NewClient(&supplier.Config{
		BaseURL:   cfg.Supplier.BaseURL,
		Email:     cfg.Supplier.Email,
		APIKey:    cfg.Supplier.APIKey,
		TokenPath: cfg.Supplier.TokenPath,
	})
	paymentsClient := payments.NewClient(&payments.Config{
		BaseURL:   cfg.Payments.BaseURL,
		SecretKey: cfg.Payments.SecretKey,
	})

	ctx := context.Background()
	if err := supplierClient.Authenticate(ctx); err != nil {
		logger.Fatal("Failed to authenticate with supplier: %v", err)
	}

	var alerter service.Alerter = service.NopAlerter{}
	if cfg.Alerts.Enabled && cfg.Alerts.WebhookURL != "" {
		alerter = service.NewWebhookAlerter(cfg.Alerts.WebhookURL)
	}

	financeService := service.NewFinanceService(lotRepo)
	breakerEngine := service.NewBreakerEngine(breakerRepo, financeService, cfg.Breakers)
	pipelineService := service.NewPipelineService(lotRepo, marketClient, supplierClient, paymentsClient, alerter, breakerEngine, &service.PipelineConfig{
		BuyerPremiumRate: cfg.Marketplace.BuyerPremiumRate,
		CallDelay:        cfg.Supplier.CallDelay,
	})
	sourcingService := service.NewSourcingService(runRepo, keywordRepo, lotRepo, supplierClient, marketClient, breakerEngine, service.SourcingConfig{
		Auctions:         cfg.Sourcing.Auctions,
		ItemsPerAuction:  cfg.Sourcing.ItemsPerAuction,
		TopCandidates:    cfg.Sourcing.TopCandidates,
		KeywordBatch:     cfg.Sourcing.KeywordBatch,
		PagesPerSearch:   cfg.Sourcing.PagesPerSearch,
		CallDelay:        cfg.Sourcing.CallDelay,
		BackoffAfter:     cfg.Sourcing.BackoffAfter,
		RequestRate:      cfg.Supplier.RequestRate,
		BuyerPremiumRate: cfg.Marketplace.BuyerPremiumRate,
	})
	quotaService := service.NewQuotaService(supplierClient, alerter)

	dispatcher := service.NewDispatcher(breakerEngine, ledgerRepo, cfg.Breakers.ShadowMode)
	service.RegisterActions(dispatcher, service.ActionDeps{
		Lots:     lotRepo,
		Breakers: breakerEngine,
		Finance:  financeService,
		Pipeline: pipelineService,
		Sourcing: sourcingService,
		Quota:    quotaService,
		Supplier: supplierClient,
	})

	result := dispatcher.Dispatch(ctx, &service.DispatchRequest{
		Tool:    tool,
		Shadow:  *shadow,
		Trigger: "cli",
	})

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		logger.Fatal("Failed to encode result: %v", err)
	}
	fmt.Println(string(out))

	if result.Status == service.StatusError {
		os.Exit(1)
	}
}
