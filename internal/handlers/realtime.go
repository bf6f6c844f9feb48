package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/playcohq/playco/internal/gateway"
)

// Realtime upgrades the request to a websocket served by the hub. The socket
// is anonymous until the client identifies with a channel token, so no auth
// middleware guards this route.
func Realtime(hub *gateway.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		hub.Serve(c.Writer, c.Request)
	}
}
