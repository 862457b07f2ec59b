package handlers

import (
	"github.com/gin-gonic/gin"
)

// HandleWebSocket upgrades the connection and hands it to the signaling
// relay. The upgrade must happen before gin writes anything; on failure we
// just return because the response is already committed.
func (h *Handlers) HandleWebSocket(c *gin.Context) {
	conn, err := h.wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "ip", c.ClientIP(), "error", err)
		return
	}

	h.logger.Debug("ws connected", "ip", c.ClientIP())
	h.hub.ServeConn(conn)
}
