package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/haywardj/lotline/internal/domain"
	"github.com/haywardj/lotline/internal/service"
)

// BreakerHandler handles circuit-breaker endpoints.
type BreakerHandler struct {
	breakers *service.BreakerEngine
}

// NewBreakerHandler creates a new breaker handler.
// Parameters:
//   - breakers: breaker engine.
// Returns:
//   - *BreakerHandler: initialized handler.
func NewBreakerHandler(breakers *service.BreakerEngine) *BreakerHandler {
	return &BreakerHandler{breakers: breakers}
}

// ListBreakers handles GET /api/v1/breakers.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *BreakerHandler) ListBreakers(c *gin.Context) {
	names := domain.AllBreakerNames()
	states := make([]*domain.BreakerState, 0, len(names))
	for _, name := range names {
		state, err := h.breakers.GetState(c.Request.Context(), name)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to read breaker " + string(name) + ": " + err.Error(),
			})
			return
		}
		states = append(states, state)
	}

	c.JSON(http.StatusOK, gin.H{
		"breakers":   states,
		"thresholds": h.breakers.Thresholds(),
	})
}

// ResetBreaker handles POST /api/v1/breakers/:name/reset. This is the only
// way to clear a tripped kill switch.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *BreakerHandler) ResetBreaker(c *gin.Context) {
	name := domain.BreakerName(c.Param("name"))

	known := false
	for _, n := range domain.AllBreakerNames() {
		if n == name {
			known = true
			break
		}
	}
	if !known {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Unknown breaker: " + string(name),
		})
		return
	}

	if err := h.breakers.Reset(c.Request.Context(), name); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to reset breaker: " + err.Error(),
		})
		return
	}

	state, err := h.breakers.GetState(c.Request.Context(), name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to read breaker after reset: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, state)
}
