package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SessionStatus is the lifecycle state of a meeting session.
// Keep values stable because they are part of the public API.
type SessionStatus string

const (
	SessionPending  SessionStatus = "pending"
	SessionNotified SessionStatus = "notified"
	SessionOngoing  SessionStatus = "ongoing"
	SessionEnded    SessionStatus = "ended"
)

// Rank orders statuses along the only legal direction of travel.
// Transitions may never decrease the rank.
func (s SessionStatus) Rank() int {
	switch s {
	case SessionPending:
		return 0
	case SessionNotified:
		return 1
	case SessionOngoing:
		return 2
	case SessionEnded:
		return 3
	default:
		return -1
	}
}

// MeetingSession is the business-level record of one scheduled verification
// call. The meeting ID doubles as the signaling room ID while the session
// is notified or ongoing.
type MeetingSession struct {
	ID         string   `gorm:"type:varchar(36);primaryKey" json:"id"`
	CustomerID string   `gorm:"type:varchar(36);not null;index" json:"customer_id"`
	Customer   Customer `gorm:"foreignKey:CustomerID;constraint:OnDelete:CASCADE" json:"-"`

	MeetingID   string        `gorm:"type:varchar(64);uniqueIndex;not null" json:"meeting_id"`
	ScheduledAt time.Time     `json:"scheduled_at"`
	Status      SessionStatus `gorm:"type:varchar(16);default:'pending'" json:"status"`

	// AgentID is set when an agent starts the meeting.
	AgentID *string `gorm:"type:varchar(36);index" json:"agent_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (m *MeetingSession) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}
