package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/haywardj/lotline/internal/service"
)

// ActionHandler exposes the tool dispatcher over HTTP.
type ActionHandler struct {
	dispatcher *service.Dispatcher
}

// NewActionHandler creates a new action handler.
// Parameters:
//   - dispatcher: the tool dispatcher.
// Returns:
//   - *ActionHandler: initialized handler.
func NewActionHandler(dispatcher *service.Dispatcher) *ActionHandler {
	return &ActionHandler{dispatcher: dispatcher}
}

// Dispatch handles POST /api/v1/actions. The response is always a structured
// dispatch result; a blocked or errored action is still HTTP 200 because the
// dispatcher handled it.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *ActionHandler) Dispatch(c *gin.Context) {
	var req service.DispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body: " + err.Error(),
		})
		return
	}
	if req.Tool == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "tool is required",
		})
		return
	}

	result := h.dispatcher.Dispatch(c.Request.Context(), &req)
	c.JSON(http.StatusOK, result)
}

// Catalogue handles GET /api/v1/actions: the action names and schemas
// available to callers.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *ActionHandler) Catalogue(c *gin.Context) {
	actions := h.dispatcher.Actions()
	out := make([]gin.H, 0, len(actions))
	for _, a := range actions {
		out = append(out, gin.H{
			"name":        a.Name,
			"side_effect": a.SideEffect,
			"category":    a.Category,
			"args":        a.Args,
		})
	}
	c.JSON(http.StatusOK, gin.H{"actions": out})
}
