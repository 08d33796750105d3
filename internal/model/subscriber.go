package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SubscriberStatus string

const (
	SubscriberActive       SubscriberStatus = "active"
	SubscriberUnsubscribed SubscriberStatus = "unsubscribed"
	SubscriberBounced      SubscriberStatus = "bounced"
)

func (s SubscriberStatus) Valid() bool {
	return s == SubscriberActive || s == SubscriberUnsubscribed || s == SubscriberBounced
}

const (
	SubscriberSourceForm   = "form"
	SubscriberSourceImport = "import"
	SubscriberSourceAdmin  = "admin"
)

type Subscriber struct {
	ID               uint             `json:"id" gorm:"primaryKey"`
	Email            string           `json:"email" gorm:"uniqueIndex;not null"`
	Name             string           `json:"name" gorm:"size:255"`
	Status           SubscriberStatus `json:"status" gorm:"size:20;index;not null;default:'active'"`
	UnsubscribeToken string           `json:"-" gorm:"size:36;uniqueIndex;not null"`
	Source           string           `json:"source" gorm:"size:20"`
	SubscribedAt     time.Time        `json:"subscribed_at" gorm:"autoCreateTime"`
	UnsubscribedAt   *time.Time       `json:"unsubscribed_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

func (s *Subscriber) BeforeCreate(tx *gorm.DB) error {
	s.Email = NormalizeEmail(s.Email)
	if s.UnsubscribeToken == "" {
		s.UnsubscribeToken = uuid.NewString()
	}
	if s.Status == "" {
		s.Status = SubscriberActive
	}
	return nil
}
