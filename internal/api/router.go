package api

import (
	"github.com/gin-gonic/gin"

	"github.com/haywardj/lotline/internal/api/handler"
	"github.com/haywardj/lotline/internal/api/middleware"
	"github.com/haywardj/lotline/internal/config"
	"github.com/haywardj/lotline/internal/logger"
	"github.com/haywardj/lotline/internal/repository"
	"github.com/haywardj/lotline/internal/service"
)

// Deps bundles everything the router wires into handlers.
type Deps struct {
	Lots       service.LotStore
	Finance    *service.FinanceService
	Breakers   *service.BreakerEngine
	Dispatcher *service.Dispatcher
	Pipeline   *service.PipelineService
	Ledger     *repository.LedgerRepository
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(deps Deps, cfg *config.ServerConfig, log *logger.Logger) *gin.Engine {
	// Set Gin mode
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:  cfg.CORS.AllowedOrigins,
		AllowAllOrigins: cfg.CORS.AllowAllOrigins,
	}))

	// Create handlers
	healthHandler := handler.NewHealthHandler()
	actionHandler := handler.NewActionHandler(deps.Dispatcher)
	lotHandler := handler.NewLotHandler(deps.Lots, deps.Finance)
	breakerHandler := handler.NewBreakerHandler(deps.Breakers)
	ledgerHandler := handler.NewLedgerHandler(deps.Ledger)
	webhookHandler := handler.NewWebhookHandler(deps.Pipeline)

	// Health check
	r.GET("/health", healthHandler.Health)

	// Payment-processor webhooks
	r.POST("/webhooks/payments", webhookHandler.HandlePayment)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// Actions (the dispatcher surface)
		v1.POST("/actions", actionHandler.Dispatch)
		v1.GET("/actions", actionHandler.Catalogue)

		// Dashboard
		v1.GET("/dashboard", lotHandler.Dashboard)

		// Lots
		v1.GET("/lots", lotHandler.ListLots)
		v1.GET("/lots/:id", lotHandler.GetLot)

		// Circuit breakers
		v1.GET("/breakers", breakerHandler.ListBreakers)
		v1.POST("/breakers/:name/reset", breakerHandler.ResetBreaker)

		// Decision ledger
		v1.GET("/ledger", ledgerHandler.ListEntries)
	}

	return r
}
