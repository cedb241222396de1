package response

import (
	"github.com/gin-gonic/gin"
)

// Body is the envelope every JSON endpoint answers with.
type Body struct {
	Success bool   `json:"success"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// OK writes a 2xx success envelope.
func OK(c *gin.Context, status int, message string, data any) {
	if message == "" {
		message = Message(CodeSuccess)
	}
	c.JSON(status, Body{Success: true, Code: CodeSuccess, Message: message, Data: data})
}

// Fail writes an error envelope and aborts the handler chain.
func Fail(c *gin.Context, status, code int, message string) {
	if message == "" {
		message = Message(code)
	}
	c.AbortWithStatusJSON(status, Body{Success: false, Code: code, Message: message})
}
