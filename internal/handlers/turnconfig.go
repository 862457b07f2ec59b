package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// GetTURNConfig returns the ICE server list for the embedded TURN server.
// The TURN server speaks STUN too, so both URLs point at the same port.
func (h *Handlers) GetTURNConfig(c *gin.Context) {
	host := c.Request.Host
	if idx := strings.Index(host, ":"); idx != -1 {
		host = host[:idx]
	}

	creds := h.turn.Credentials()
	stunURL := fmt.Sprintf("stun:%s:%d", host, h.config.TURNPort)
	turnURL := fmt.Sprintf("turn:%s:%d", host, h.config.TURNPort)

	c.JSON(http.StatusOK, gin.H{
		"iceServers": []gin.H{
			{"urls": stunURL},
			{
				"urls":       turnURL,
				"username":   creds.Username,
				"credential": creds.Password,
			},
		},
	})
}
