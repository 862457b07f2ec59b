package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// VerificationStatus tracks a customer's progress through identity verification.
type VerificationStatus string

const (
	VerificationProfileSubmitted VerificationStatus = "profile_submitted"
	VerificationScheduled        VerificationStatus = "scheduled"
	VerificationVerified         VerificationStatus = "verified"
	VerificationRejected         VerificationStatus = "rejected"
)

// Customer is a remote applicant going through identity verification.
// Customers never log in; they are identified by the meeting link alone.
type Customer struct {
	ID       string `gorm:"type:varchar(36);primaryKey" json:"id"`
	FullName string `gorm:"type:varchar(200);not null" json:"full_name"`
	Email    string `gorm:"type:varchar(255)" json:"email"`
	Phone    string `gorm:"type:varchar(40)" json:"phone,omitempty"`

	DateOfBirth   *time.Time `json:"date_of_birth,omitempty"`
	NationalID    string     `gorm:"type:varchar(64)" json:"national_id,omitempty"`
	IDDocumentURL string     `gorm:"type:text" json:"id_document_url,omitempty"`
	SelfieURL     string     `gorm:"type:text" json:"selfie_url,omitempty"`

	Status VerificationStatus `gorm:"type:varchar(32);default:'profile_submitted'" json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *Customer) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}
