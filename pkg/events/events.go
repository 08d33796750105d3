// Package events publishes bulletin lifecycle changes on NATS.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"ottoseguridad_backend/pkg/logger"
)

const (
	SubjectBulletinStatus = "bulletins.status"
	SubjectVideoStatus    = "bulletins.video"
	SubjectNewsletterSent = "newsletter.sent"
)

// BulletinEvent is the payload of every bulletin subject.
type BulletinEvent struct {
	BulletinID uint      `json:"bulletin_id"`
	Date       string    `json:"date"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	At         time.Time `json:"at"`
}

type NewsletterEvent struct {
	BulletinID uint      `json:"bulletin_id"`
	Sent       int       `json:"sent"`
	Failed     int       `json:"failed"`
	Skipped    int       `json:"skipped"`
	At         time.Time `json:"at"`
}

// Publisher sends JSON events.
type Publisher interface {
	Publish(subject string, v interface{}) error
}

type conn interface {
	Publish(subj string, data []byte) error
}

// NATSPublisher publishes on a NATS connection. The zero value drops events.
type NATSPublisher struct {
	nc conn
}

var Default Publisher = &NATSPublisher{}

// Connect dials url. An empty url returns a publisher that drops events.
func Connect(url string) (*NATSPublisher, func(), error) {
	if url == "" {
		return &NATSPublisher{}, func() {}, nil
	}
	nc, err := nats.Connect(url,
		nats.Name("ottoseguridad"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to NATS: %w", err)
	}
	logger.Log.Info("connected to NATS", "url", nc.ConnectedUrl())
	return &NATSPublisher{nc: nc}, func() { nc.Drain() }, nil
}

func (p *NATSPublisher) Publish(subject string, v interface{}) error {
	if p == nil || p.nc == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", subject, err)
	}
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}
