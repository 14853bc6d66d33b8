package handlers

import (
	"net/http"
	"strconv"

	"soarify/internal/services"

	"github.com/gin-gonic/gin"
)

// NotificationHandler exposes notification dispatch, delivery history,
// channel management and notification templates.
type NotificationHandler struct {
	notifications *services.NotificationService
	channels      *services.ChannelService
}

func NewNotificationHandler(notifications *services.NotificationService, channels *services.ChannelService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications, channels: channels}
}

func (h *NotificationHandler) SendNotification(c *gin.Context) {
	var req services.SendNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}
	notification, err := h.notifications.Send(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err, "Failed to send notification")
		return
	}
	c.JSON(http.StatusCreated, notification)
}

func (h *NotificationHandler) ListHistory(c *gin.Context) {
	status := c.Query("status")
	var channelID uint
	if raw := c.Query("channel_id"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid channel_id", Message: err.Error()})
			return
		}
		channelID = uint(v)
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid limit", Message: err.Error()})
			return
		}
		limit = v
	}
	notifications, err := h.notifications.ListHistory(c.Request.Context(), status, channelID, limit)
	if err != nil {
		respondError(c, err, "Failed to list notifications")
		return
	}
	c.JSON(http.StatusOK, notifications)
}

func (h *NotificationHandler) CreateChannel(c *gin.Context) {
	var req services.ChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}
	channel, err := h.channels.CreateChannel(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err, "Failed to create channel")
		return
	}
	c.JSON(http.StatusCreated, channel)
}

func (h *NotificationHandler) ListChannels(c *gin.Context) {
	channels, err := h.channels.ListChannels(c.Request.Context())
	if err != nil {
		respondError(c, err, "Failed to list channels")
		return
	}
	c.JSON(http.StatusOK, channels)
}

func (h *NotificationHandler) UpdateChannel(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid id", Message: err.Error()})
		return
	}
	var req services.ChannelUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}
	channel, err := h.channels.UpdateChannel(c.Request.Context(), id, &req)
	if err != nil {
		respondError(c, err, "Failed to update channel")
		return
	}
	c.JSON(http.StatusOK, channel)
}

func (h *NotificationHandler) DeleteChannel(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid id", Message: err.Error()})
		return
	}
	if err := h.channels.DeleteChannel(c.Request.Context(), id); err != nil {
		respondError(c, err, "Failed to delete channel")
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "Channel deleted successfully"})
}

func (h *NotificationHandler) CreateTemplate(c *gin.Context) {
	var req services.NotificationTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}
	template, err := h.channels.CreateTemplate(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err, "Failed to create template")
		return
	}
	c.JSON(http.StatusCreated, template)
}

func (h *NotificationHandler) ListTemplates(c *gin.Context) {
	templates, err := h.channels.ListTemplates(c.Request.Context(), c.Query("type"), c.Query("channel_type"))
	if err != nil {
		respondError(c, err, "Failed to list templates")
		return
	}
	c.JSON(http.StatusOK, templates)
}

// RegisterNotificationRoutes wires notification dispatch, channels and
// templates under /notifications.
func RegisterNotificationRoutes(r *gin.RouterGroup, handler *NotificationHandler) {
	notifications := r.Group("/notifications")
	{
		notifications.POST("", handler.SendNotification)
		notifications.GET("", handler.ListHistory)
		notifications.POST("/channels", handler.CreateChannel)
		notifications.GET("/channels", handler.ListChannels)
		notifications.PATCH("/channels/:id", handler.UpdateChannel)
		notifications.DELETE("/channels/:id", handler.DeleteChannel)
		notifications.POST("/templates", handler.CreateTemplate)
		notifications.GET("/templates", handler.ListTemplates)
	}
}
