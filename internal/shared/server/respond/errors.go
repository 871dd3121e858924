package respond

import (
	"github.com/gin-gonic/gin"

	"rd-prediction-backend/internal/shared/telemetry"
)

// FieldError describes a validation failure on a single input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ErrorResponse is the standardized error body.
type ErrorResponse struct {
	Success bool         `json:"success"`
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Errors  []FieldError `json:"errors,omitempty"`
	Data    interface{}  `json:"data,omitempty"`
}

// Error sends a standardized error response and aborts the chain.
func Error(c *gin.Context, status int, code, message string, fields []FieldError) {
	ErrorWithData(c, status, code, message, fields, nil)
}

// ErrorWithData is Error with an attached payload, used when a failed operation still
// produced a resource the client should see.
func ErrorWithData(c *gin.Context, status int, code, message string, fields []FieldError, data interface{}) {
	logFields := map[string]any{
		"status":     status,
		"code":       code,
		"message":    message,
		"path":       c.Request.URL.Path,
		"method":     c.Request.Method,
		"request_id": c.GetString("requestId"),
	}
	if userID := c.GetString("userId"); userID != "" {
		logFields["user_id"] = userID
	}
	if status >= 500 {
		telemetry.Error("http.error", logFields)
	} else {
		telemetry.Warn("http.error", logFields)
	}

	c.AbortWithStatusJSON(status, ErrorResponse{
		Success: false,
		Code:    code,
		Message: message,
		Errors:  fields,
		Data:    data,
	})
}
