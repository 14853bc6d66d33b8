package handlers

import (
	"net/http"

	"soarify/internal/services"

	"github.com/gin-gonic/gin"
)

// TriggerHandler manages workflow triggers.
type TriggerHandler struct {
	service *services.TriggerService
}

func NewTriggerHandler(service *services.TriggerService) *TriggerHandler {
	return &TriggerHandler{service: service}
}

func (h *TriggerHandler) CreateTrigger(c *gin.Context) {
	var req services.TriggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}
	trigger, err := h.service.CreateTrigger(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err, "Failed to create trigger")
		return
	}
	c.JSON(http.StatusCreated, trigger)
}

func (h *TriggerHandler) ListTriggers(c *gin.Context) {
	var enabled *bool
	if raw, ok := c.GetQuery("enabled"); ok {
		v := raw == "true"
		enabled = &v
	}
	triggers, err := h.service.ListTriggers(c.Request.Context(), enabled)
	if err != nil {
		respondError(c, err, "Failed to list triggers")
		return
	}
	c.JSON(http.StatusOK, triggers)
}

func (h *TriggerHandler) UpdateTrigger(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid id", Message: err.Error()})
		return
	}
	var req services.TriggerUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}
	trigger, err := h.service.UpdateTrigger(c.Request.Context(), id, &req)
	if err != nil {
		respondError(c, err, "Failed to update trigger")
		return
	}
	c.JSON(http.StatusOK, trigger)
}

func (h *TriggerHandler) DeleteTrigger(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid id", Message: err.Error()})
		return
	}
	if err := h.service.DeleteTrigger(c.Request.Context(), id); err != nil {
		respondError(c, err, "Failed to delete trigger")
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "Trigger deleted successfully"})
}

// RegisterTriggerRoutes wires trigger CRUD under /triggers.
func RegisterTriggerRoutes(r *gin.RouterGroup, handler *TriggerHandler) {
	triggers := r.Group("/triggers")
	{
		triggers.POST("", handler.CreateTrigger)
		triggers.GET("", handler.ListTriggers)
		triggers.PATCH(":id", handler.UpdateTrigger)
		triggers.DELETE(":id", handler.DeleteTrigger)
	}
}
