package handlers

import (
	"net/http"
	"strconv"

	"soarify/internal/services"

	"github.com/gin-gonic/gin"
)

// PlaybookHandler exposes playbook CRUD.
type PlaybookHandler struct {
	service *services.PlaybookService
}

func NewPlaybookHandler(service *services.PlaybookService) *PlaybookHandler {
	return &PlaybookHandler{service: service}
}

func (h *PlaybookHandler) CreatePlaybook(c *gin.Context) {
	var req services.PlaybookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	playbook, err := h.service.CreatePlaybook(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err, "Failed to create playbook")
		return
	}
	c.JSON(http.StatusCreated, playbook)
}

func (h *PlaybookHandler) ListPlaybooks(c *gin.Context) {
	var active *bool
	if raw, ok := c.GetQuery("is_active"); ok {
		v := raw == "true"
		active = &v
	}
	playbooks, err := h.service.ListPlaybooks(c.Request.Context(), c.Query("category"), active)
	if err != nil {
		respondError(c, err, "Failed to list playbooks")
		return
	}
	c.JSON(http.StatusOK, playbooks)
}

func (h *PlaybookHandler) GetPlaybook(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid id", Message: err.Error()})
		return
	}
	playbook, err := h.service.GetPlaybook(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "Failed to get playbook")
		return
	}
	c.JSON(http.StatusOK, playbook)
}

func (h *PlaybookHandler) UpdatePlaybook(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid id", Message: err.Error()})
		return
	}
	var req services.PlaybookUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}
	playbook, err := h.service.UpdatePlaybook(c.Request.Context(), id, &req)
	if err != nil {
		respondError(c, err, "Failed to update playbook")
		return
	}
	c.JSON(http.StatusOK, playbook)
}

func (h *PlaybookHandler) DeletePlaybook(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid id", Message: err.Error()})
		return
	}
	if err := h.service.DeletePlaybook(c.Request.Context(), id); err != nil {
		respondError(c, err, "Failed to delete playbook")
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "Playbook deleted successfully"})
}

func parseID(c *gin.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}

// RegisterPlaybookRoutes wires playbook CRUD under /playbooks.
func RegisterPlaybookRoutes(r *gin.RouterGroup, handler *PlaybookHandler) {
	playbooks := r.Group("/playbooks")
	{
		playbooks.POST("", handler.CreatePlaybook)
		playbooks.GET("", handler.ListPlaybooks)
		playbooks.GET(":id", handler.GetPlaybook)
		playbooks.PATCH(":id", handler.UpdatePlaybook)
		playbooks.DELETE(":id", handler.DeletePlaybook)
	}
}
