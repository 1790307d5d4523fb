package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/haywardj/lotline/internal/repository"
)

// LedgerHandler handles decision-ledger query endpoints.
type LedgerHandler struct {
	ledger *repository.LedgerRepository
}

// NewLedgerHandler creates a new ledger handler.
// Parameters:
//   - ledger: ledger repository.
// Returns:
//   - *LedgerHandler: initialized handler.
func NewLedgerHandler(ledger *repository.LedgerRepository) *LedgerHandler {
	return &LedgerHandler{ledger: ledger}
}

// ListEntries handles GET /api/v1/ledger. Supports ?correlation_id= for one
// dispatch chain, otherwise pages newest-first.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *LedgerHandler) ListEntries(c *gin.Context) {
	if correlationID := c.Query("correlation_id"); correlationID != "" {
		entries, err := h.ledger.ListByCorrelation(c.Request.Context(), correlationID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to list ledger entries: " + err.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{"entries": entries, "total": len(entries)})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	entries, err := h.ledger.ListRecent(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list ledger entries: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries, "total": len(entries)})
}
