// Command sourcing runs the smart-sourcing pipeline. --resume continues the
// latest unfinished run from its last checkpoint; --dry-run produces the
// full distribution and scoring analytics without creating anything on the
// marketplace.
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
	"github.com/haywardj/lotline/internal/platform/supplier"
	"github.com/haywardj/lotline/internal/repository"
	"github.com/haywardj/lotline/internal/service"
)

func main() {
	resume := flag.Bool("resume", false, "resume the latest unfinished run")
	dryRun := flag.Bool("dry-run", false, "plan auctions without creating them")
	flag.Parse()

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
	keywordRepo := repository.NewKeywordRepository(db)
	runRepo := repository.NewRunRepository(db)
	breakerRepo := repository.NewBreakerRepository(db)

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

	ctx := context.Background()
	if err := supplierClient.Authenticate(ctx); err != nil {
		logger.Fatal("Failed to authenticate with supplier: %v", err)
	}

	financeService := service.NewFinanceService(lotRepo)
	breakerEngine := service.NewBreakerEngine(breakerRepo, financeService, cfg.Breakers)
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

	run, plans, err := sourcingService.Run(ctx, service.SourcingOptions{
		Resume: *resume,
		DryRun: *dryRun,
	})
	if err != nil {
		if run != nil {
			logger.Error("Run %s failed (resume with --resume): %v", run.ID, err)
		}
		logger.Fatal("Sourcing run failed: %v", err)
	}

	summary := map[string]interface{}{
		"run_id":      run.ID,
		"candidates":  len(run.Candidates.Data),
		"enriched":    len(run.Enriched.Data),
		"auctions":    plans,
		"dry_run":     *dryRun,
		"error_count": len(run.ErrorLog),
	}
	out, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		logger.Fatal("Failed to encode summary: %v", err)
	}
	fmt.Println(string(out))
}
