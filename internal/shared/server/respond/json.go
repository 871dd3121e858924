package respond

import (
	"github.com/gin-gonic/gin"
)

// Envelope is the success body shared by every route.
type Envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// JSON writes a JSON response with the given status.
func JSON(c *gin.Context, status int, payload interface{}) {
	c.JSON(status, payload)
}

// Data wraps payload in a success envelope.
func Data(c *gin.Context, status int, payload interface{}) {
	JSON(c, status, Envelope{Success: true, Data: payload})
}

// Message writes a success envelope carrying only a message.
func Message(c *gin.Context, status int, message string) {
	JSON(c, status, Envelope{Success: true, Message: message})
}
