package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/haywardj/lotline/internal/logger"
	"github.com/haywardj/lotline/internal/service"
)

// WebhookHandler receives payment-processor webhooks. invoice.paid drives
// the PAID transition and thereby the whole fulfillment side of the
// pipeline.
type WebhookHandler struct {
	pipeline *service.PipelineService
}

// NewWebhookHandler creates a new webhook handler.
// Parameters:
//   - pipeline: pipeline service receiving the paid event.
// Returns:
//   - *WebhookHandler: initialized handler.
func NewWebhookHandler(pipeline *service.PipelineService) *WebhookHandler {
	return &WebhookHandler{pipeline: pipeline}
}

type webhookEvent struct {
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID string `json:"id"`
		} `json:"object"`
	} `json:"data"`
}

// HandlePayment handles POST /webhooks/payments. Events other than
// invoice.paid are acknowledged and ignored; the processor retries on
// anything but a 2xx, so unknown invoices return 200 too once logged.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *WebhookHandler) HandlePayment(c *gin.Context) {
	var event webhookEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid webhook payload: " + err.Error(),
		})
		return
	}

	ctx := c.Request.Context()
	if event.Type != "invoice.paid" {
		c.JSON(http.StatusOK, gin.H{"received": true, "handled": false})
		return
	}

	if err := h.pipeline.MarkInvoicePaid(ctx, event.Data.Object.ID); err != nil {
		logger.CtxWarn(ctx, "invoice.paid for %s not applied: %v", event.Data.Object.ID, err)
		c.JSON(http.StatusOK, gin.H{"received": true, "handled": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true, "handled": true})
}
