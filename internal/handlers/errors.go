package handlers

import (
	"github.com/gin-gonic/gin"
)

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Slug    string `json:"slug,omitempty"`
}

func sendError(c *gin.Context, code int, errCode, message, slug string) {
	c.AbortWithStatusJSON(code, ErrorResponse{
		Error:   errCode,
		Code:    code,
		Message: message,
		Slug:    slug,
	})
}
