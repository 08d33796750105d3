package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type EmailSendStatus string

const (
	EmailPending EmailSendStatus = "pending"
	EmailSending EmailSendStatus = "sending"
	EmailSent    EmailSendStatus = "sent"
	EmailFailed  EmailSendStatus = "failed"
)

// EmailSend is one bulletin delivery to one subscriber.
type EmailSend struct {
	ID           uint            `json:"id" gorm:"primaryKey"`
	BulletinID   uint            `json:"bulletin_id" gorm:"not null;uniqueIndex:idx_send_bulletin_subscriber"`
	SubscriberID uint            `json:"subscriber_id" gorm:"not null;uniqueIndex:idx_send_bulletin_subscriber"`
	TrackingID   string          `json:"tracking_id" gorm:"size:36;uniqueIndex;not null"`
	Status       EmailSendStatus `json:"status" gorm:"size:20;index;not null;default:'pending'"`
	Error        string          `json:"error" gorm:"type:text"`
	SentAt       *time.Time      `json:"sent_at"`
	OpenedAt     *time.Time      `json:"opened_at"`
	OpenCount    int             `json:"open_count" gorm:"default:0"`
	ClickCount   int             `json:"click_count" gorm:"default:0"`
	CreatedAt    time.Time       `json:"created_at"`

	Bulletin   Bulletin   `json:"-" gorm:"foreignKey:BulletinID;constraint:OnDelete:CASCADE"`
	Subscriber Subscriber `json:"subscriber,omitempty" gorm:"foreignKey:SubscriberID;constraint:OnDelete:CASCADE"`
}

func (e *EmailSend) BeforeCreate(tx *gorm.DB) error {
	if e.TrackingID == "" {
		e.TrackingID = uuid.NewString()
	}
	return nil
}

type EmailClick struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	EmailSendID uint      `json:"email_send_id" gorm:"not null;index"`
	URL         string    `json:"url" gorm:"type:text;not null"`
	IP          string    `json:"ip" gorm:"size:64"`
	UserAgent   string    `json:"user_agent" gorm:"size:255"`
	ClickedAt   time.Time `json:"clicked_at" gorm:"autoCreateTime"`

	EmailSend EmailSend `json:"-" gorm:"foreignKey:EmailSendID;constraint:OnDelete:CASCADE"`
}
