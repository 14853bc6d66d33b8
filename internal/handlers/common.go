package handlers

import (
	"errors"
	"net/http"

	"soarify/internal/services"

	"github.com/gin-gonic/gin"
)

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code,omitempty"`
}

// SuccessResponse is the uniform success body for mutations without payload.
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// respondError maps service error taxonomy onto HTTP status codes.
func respondError(c *gin.Context, err error, title string) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrNotFound):
		status = http.StatusNotFound
	case services.IsValidation(err):
		status = http.StatusBadRequest
	}
	c.JSON(status, ErrorResponse{Error: title, Message: err.Error()})
}
