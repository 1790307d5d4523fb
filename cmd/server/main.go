package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/haywardj/lotline/internal/api"
	"github.com/haywardj/lotline/internal/config"
	"github.com/haywardj/lotline/internal/logger"
	"github.com/haywardj/lotline/internal/platform/marketplace"
	"github.com/haywardj/lotline/internal/platform/payments"
	"github.com/haywardj/lotline/internal/platform/supplier"
	"github.com/haywardj/lotline/internal/repository"
	"github.com/haywardj/lotline/internal/service"
)

func main() {
	// Load configuration
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger.SetDefaultLogger(logger.NewDefault())
	defer logger.Sync()

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		logger.Fatal("Failed to initialize database: %v", err)
	}

	// Initialize repositories
	lotRepo := repository.NewLotRepository(db)
	breakerRepo := repository.NewBreakerRepository(db)
	keywordRepo := repository.NewKeywordRepository(db)
	runRepo := repository.NewRunRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)

	// Initialize external platform clients
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

	// Initialize alerting
	var alerter service.Alerter = service.NopAlerter{}
	if cfg.Alerts.Enabled && cfg.Alerts.WebhookURL != "" {
		alerter = service.NewWebhookAlerter(cfg.Alerts.WebhookURL)
	}

	// Initialize services
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

	// Initialize dispatcher with the full action catalogue
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

	if cfg.Breakers.ShadowMode {
		logger.Warn("Shadow mode is ON: side-effecting actions will be simulated")
	}

	// Setup router
	router := api.SetupRouter(api.Deps{
		Lots:       lotRepo,
		Finance:    financeService,
		Breakers:   breakerEngine,
		Dispatcher: dispatcher,
		Pipeline:   pipelineService,
		Ledger:     ledgerRepo,
	}, &cfg.Server, logger.NewDefault())

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Starting server on port %d (mode=%s)", cfg.Server.Port, cfg.Server.Mode)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}
