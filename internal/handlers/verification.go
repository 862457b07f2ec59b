package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/vericall/vericall/internal/models"
	"github.com/vericall/vericall/internal/notify"
	"github.com/vericall/vericall/internal/session"

	"github.com/gin-gonic/gin"
)

type submitProfileRequest struct {
	FullName    string `json:"full_name" binding:"required"`
	Email       string `json:"email" binding:"required,email"`
	Phone       string `json:"phone"`
	DateOfBirth string `json:"date_of_birth"`
	NationalID  string `json:"national_id"`
}

// SubmitProfile records a customer's identity data ahead of scheduling.
func (h *Handlers) SubmitProfile(c *gin.Context) {
	var req submitProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var dob *time.Time
	if req.DateOfBirth != "" {
		parsed, err := time.Parse("2006-01-02", req.DateOfBirth)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date format"})
			return
		}
		dob = &parsed
	}

	customer := models.Customer{
		FullName:    req.FullName,
		Email:       req.Email,
		Phone:       req.Phone,
		DateOfBirth: dob,
		NationalID:  req.NationalID,
		Status:      models.VerificationProfileSubmitted,
	}
	if err := h.db.Create(&customer).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save profile"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":     "profile submitted",
		"customer_id": customer.ID,
	})
}

type scheduleRequest struct {
	CustomerID  string `json:"customer_id" binding:"required"`
	ScheduledAt string `json:"scheduled_at" binding:"required"` // RFC3339
}

// ScheduleMeeting creates a pending session and returns the single-use
// meeting link.
func (h *Handlers) ScheduleMeeting(c *gin.Context) {
	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input"})
		return
	}

	scheduledAt, err := time.Parse(time.RFC3339, req.ScheduledAt)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid datetime format"})
		return
	}

	sess, err := h.sessions.Schedule(req.CustomerID, scheduledAt)
	if err != nil {
		if errors.Is(err, session.ErrCustomerNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "customer not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to schedule"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":      "meeting scheduled",
		"meeting_id":   sess.MeetingID,
		"meeting_link": fmt.Sprintf("%s/meeting/%s", h.config.PublicURL, sess.MeetingID),
	})
}

// GetMeeting is the waiting-room lookup. Ended or unknown meeting IDs
// report not found so stale links cannot be reused.
func (h *Handlers) GetMeeting(c *gin.Context) {
	meetingID := c.Param("meeting_id")

	sess, err := h.sessions.Get(meetingID)
	if err != nil {
		h.writeSessionError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"meeting_id":   sess.MeetingID,
		"status":       sess.Status,
		"scheduled_at": sess.ScheduledAt,
		"national_id":  sess.Customer.NationalID,
		"customer": gin.H{
			"name":  sess.Customer.FullName,
			"email": sess.Customer.Email,
		},
	})
}

// NotifyAdmin moves the session pending -> notified and announces the
// meeting request to every connected agent.
func (h *Handlers) NotifyAdmin(c *gin.Context) {
	meetingID := c.Param("meeting_id")

	sess, err := h.sessions.Notify(meetingID)
	if err != nil {
		h.writeSessionError(c, err)
		return
	}

	event := notify.Event{
		MeetingID:    sess.MeetingID,
		CustomerName: sess.Customer.FullName,
		NationalID:   sess.Customer.NationalID,
	}
	h.notifier.Publish(event)
	go h.sendMeetingRequestPush(event)

	c.JSON(http.StatusOK, gin.H{"message": "admin notified"})
}

// StartMeeting moves the session notified -> ongoing on behalf of the
// authenticated agent and tells the waiting customer to enter the call.
func (h *Handlers) StartMeeting(c *gin.Context) {
	meetingID := c.Param("meeting_id")
	agentID := c.GetString("agent_id")

	if err := h.hub.StartMeeting(meetingID, agentID); err != nil {
		h.writeSessionError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "meeting started"})
}

// EndMeeting explicitly ends a session and tears its room down.
func (h *Handlers) EndMeeting(c *gin.Context) {
	meetingID := c.Param("meeting_id")

	h.sessions.End(meetingID)
	h.hub.CloseRoom(meetingID)

	c.JSON(http.StatusOK, gin.H{"message": "meeting ended"})
}

func (h *Handlers) writeSessionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "meeting not found"})
	case errors.Is(err, session.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": "invalid or expired meeting link"})
	case errors.Is(err, session.ErrNotJoinable):
		c.JSON(http.StatusForbidden, gin.H{"error": "meeting not available"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
