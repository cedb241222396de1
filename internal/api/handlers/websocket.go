package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type WSHandler struct {
	handler http.Handler
}

// NewWSHandler wraps the connection lifecycle handler for gin.
func NewWSHandler(handler http.Handler) *WSHandler {
	return &WSHandler{handler: handler}
}

// HandleWebSocket authenticates the handshake from the Authorization header
// or token query parameter and upgrades the connection.
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	h.handler.ServeHTTP(c.Writer, c.Request)
}
