package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/haywardj/lotline/internal/domain"
	"github.com/haywardj/lotline/internal/service"
)

// LotHandler handles lot query endpoints.
type LotHandler struct {
	lots    service.LotStore
	finance *service.FinanceService
}

// NewLotHandler creates a new lot handler.
// Parameters:
//   - lots: lot store.
//   - finance: financial aggregator for the dashboard endpoint.
// Returns:
//   - *LotHandler: initialized handler.
func NewLotHandler(lots service.LotStore, finance *service.FinanceService) *LotHandler {
	return &LotHandler{lots: lots, finance: finance}
}

// ListLots handles GET /api/v1/lots with an optional ?status= filter and
// limit/offset pagination.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *LotHandler) ListLots(c *gin.Context) {
	status := c.Query("status")
	if status != "" && !domain.LotStatus(status).Known() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Unknown lot status: " + status,
		})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit < 1 || limit > 500 {
		limit = 100
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	lots, err := h.lots.List(c.Request.Context(), domain.LotStatus(status), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list lots: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"lots":   lots,
		"count":  len(lots),
		"limit":  limit,
		"offset": offset,
	})
}

// GetLot handles GET /api/v1/lots/:id.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *LotHandler) GetLot(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Lot ID is required",
		})
		return
	}

	lot, err := h.lots.GetByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Lot not found",
		})
		return
	}

	c.JSON(http.StatusOK, lot)
}

// Dashboard handles GET /api/v1/dashboard.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *LotHandler) Dashboard(c *gin.Context) {
	summary, err := h.finance.Summary(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to build summary: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, summary)
}
