package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/vericall/vericall/internal/models"
	"github.com/vericall/vericall/internal/notify"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type pushSubscribeKeys struct {
	P256DH string `json:"p256dh" binding:"required"`
	Auth   string `json:"auth" binding:"required"`
}

type pushSubscribeRequest struct {
	Endpoint string            `json:"endpoint" binding:"required"`
	Keys     pushSubscribeKeys `json:"keys" binding:"required"`
}

func (h *Handlers) GetVAPIDPublicKey(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"publicKey": h.config.VAPIDKeys.PublicKey})
}

func (h *Handlers) SubscribePush(c *gin.Context) {
	agentID := c.GetString("agent_id")

	var req pushSubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// One subscription per agent: replace whatever was stored before.
	if err := h.db.Where("agent_id = ?", agentID).Delete(&models.PushSubscription{}).Error; err != nil {
		h.logger.Warn("failed to delete old push subscriptions", "agent_id", agentID, "error", err)
	}

	subscription := models.PushSubscription{
		AgentID:  agentID,
		Endpoint: req.Endpoint,
		P256DH:   req.Keys.P256DH,
		Auth:     req.Keys.Auth,
	}
	if err := h.db.Create(&subscription).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create subscription"})
		return
	}

	c.JSON(http.StatusCreated, subscription)
}

func (h *Handlers) UnsubscribePush(c *gin.Context) {
	agentID := c.GetString("agent_id")

	var req struct {
		Endpoint string `json:"endpoint" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result := h.db.Where("agent_id = ? AND endpoint = ?", agentID, req.Endpoint).Delete(&models.PushSubscription{})
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "subscription not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "unsubscribed"})
}

// sendMeetingRequestPush delivers the meeting request to every stored agent
// subscription. Best effort: failures are logged, dead endpoints removed.
func (h *Handlers) sendMeetingRequestPush(event notify.Event) {
	var subscriptions []models.PushSubscription
	if err := h.db.Find(&subscriptions).Error; err != nil {
		h.logger.Warn("failed to load push subscriptions", "error", err)
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	payload, err := json.Marshal(gin.H{
		"title": "New verification call request",
		"body":  "A customer is waiting in the meeting room",
		"data":  event,
	})
	if err != nil {
		return
	}

	for _, sub := range subscriptions {
		resp, err := webpush.SendNotification(payload, &webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys: webpush.Keys{
				P256dh: sub.P256DH,
				Auth:   sub.Auth,
			},
		}, &webpush.Options{
			Subscriber:      h.config.VAPIDKeys.Subject,
			VAPIDPublicKey:  h.config.VAPIDKeys.PublicKey,
			VAPIDPrivateKey: h.config.VAPIDKeys.PrivateKey,
			TTL:             60,
		})
		if err != nil {
			h.logger.Warn("push send failed", "agent_id", sub.AgentID, "error", err)
			continue
		}
		if resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound {
			h.removeDeadSubscription(sub)
		}
		resp.Body.Close()
	}
}

func (h *Handlers) removeDeadSubscription(sub models.PushSubscription) {
	if err := h.db.Delete(&sub).Error; err != nil && err != gorm.ErrRecordNotFound {
		h.logger.Warn("failed to remove dead push subscription", "agent_id", sub.AgentID, "error", err)
	}
}
