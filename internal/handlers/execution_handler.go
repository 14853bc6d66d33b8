package handlers

import (
	"net/http"
	"strconv"

	"soarify/internal/services"

	"github.com/gin-gonic/gin"
)

// ExecutionHandler exposes execution requests and history. The POST endpoint
// returns the PENDING record immediately; the engine runs asynchronously.
type ExecutionHandler struct {
	executions *services.ExecutionService
	triggers   *services.TriggerService
}

func NewExecutionHandler(executions *services.ExecutionService, triggers *services.TriggerService) *ExecutionHandler {
	return &ExecutionHandler{executions: executions, triggers: triggers}
}

func (h *ExecutionHandler) RequestExecution(c *gin.Context) {
	var req services.ExecutionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}
	execution, err := h.executions.Execute(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err, "Failed to start execution")
		return
	}
	c.JSON(http.StatusCreated, execution)
}

func (h *ExecutionHandler) ListExecutions(c *gin.Context) {
	var playbookID uint
	if raw := c.Query("playbook_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid playbook_id", Message: err.Error()})
			return
		}
		playbookID = uint(id)
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	executions, err := h.executions.ListExecutions(c.Request.Context(), playbookID, c.Query("status"), limit)
	if err != nil {
		respondError(c, err, "Failed to list executions")
		return
	}
	c.JSON(http.StatusOK, executions)
}

func (h *ExecutionHandler) GetExecution(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid id", Message: err.Error()})
		return
	}
	execution, err := h.executions.GetExecution(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "Failed to get execution")
		return
	}
	c.JSON(http.StatusOK, execution)
}

// HandleEvent offers an inbound security event to the trigger matcher and
// returns the executions it started, highest priority first.
func (h *ExecutionHandler) HandleEvent(c *gin.Context) {
	var evt services.SecurityEvent
	if err := c.ShouldBindJSON(&evt); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid event", Message: err.Error()})
		return
	}
	executions, err := h.triggers.HandleEvent(c.Request.Context(), &evt)
	if err != nil {
		respondError(c, err, "Failed to handle event")
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"matched":    len(executions),
		"executions": executions,
	})
}

// RegisterExecutionRoutes wires execution and event endpoints.
func RegisterExecutionRoutes(r *gin.RouterGroup, handler *ExecutionHandler) {
	executions := r.Group("/executions")
	{
		executions.POST("", handler.RequestExecution)
		executions.GET("", handler.ListExecutions)
		executions.GET(":id", handler.GetExecution)
	}
	r.POST("/events", handler.HandleEvent)
}
