package handlers

import (
	"net/http"

	"soarify/internal/services"

	"github.com/gin-gonic/gin"
)

// LibraryHandler serves the shared playbook template library.
type LibraryHandler struct {
	service *services.LibraryService
}

func NewLibraryHandler(service *services.LibraryService) *LibraryHandler {
	return &LibraryHandler{service: service}
}

func (h *LibraryHandler) CreateTemplate(c *gin.Context) {
	var req services.PlaybookTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}
	template, err := h.service.CreateTemplate(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err, "Failed to create template")
		return
	}
	c.JSON(http.StatusCreated, template)
}

func (h *LibraryHandler) ListTemplates(c *gin.Context) {
	templates, err := h.service.ListTemplates(c.Request.Context(), c.Query("category"), c.Query("search"), c.Query("sort_by"))
	if err != nil {
		respondError(c, err, "Failed to list templates")
		return
	}
	c.JSON(http.StatusOK, templates)
}

func (h *LibraryHandler) InstallTemplate(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid id", Message: err.Error()})
		return
	}
	var req services.InstallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}
	playbook, err := h.service.InstallTemplate(c.Request.Context(), id, &req)
	if err != nil {
		respondError(c, err, "Failed to install template")
		return
	}
	c.JSON(http.StatusCreated, playbook)
}

// RegisterLibraryRoutes wires the playbook library under /library.
func RegisterLibraryRoutes(r *gin.RouterGroup, handler *LibraryHandler) {
	library := r.Group("/library")
	{
		library.POST("/templates", handler.CreateTemplate)
		library.GET("/templates", handler.ListTemplates)
		library.POST("/templates/:id/install", handler.InstallTemplate)
	}
}
