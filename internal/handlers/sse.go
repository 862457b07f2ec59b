package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const sseHeartbeatPeriod = 30 * time.Second

// StreamEvents is the admin push stream. It emits meeting_request events
// for each published meeting request and a ping heartbeat so the consumer
// can tell a dead connection from plain silence.
func (h *Handlers) StreamEvents(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	sub := h.notifier.Subscribe()
	defer sub.Close()

	h.logger.Debug("admin stream connected", "agent_id", c.GetString("agent_id"))

	c.SSEvent("ping", "connected")
	flusher.Flush()

	ticker := time.NewTicker(sseHeartbeatPeriod)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-sub.C:
			if !ok {
				return
			}
			c.SSEvent("meeting_request", event)
			flusher.Flush()
		case <-ticker.C:
			c.SSEvent("ping", "keep-alive")
			flusher.Flush()
		case <-c.Request.Context().Done():
			return
		}
	}
}
