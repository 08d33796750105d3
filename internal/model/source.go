package model

import (
	"time"

	"gorm.io/gorm"
)

const (
	SourceStatusOK     = "ok"
	SourceStatusFailed = "failed"
)

// Source is a news website the scraper visits.
type Source struct {
	gorm.Model
	Name                string     `json:"name" gorm:"not null"`
	URL                 string     `json:"url" gorm:"uniqueIndex;not null"`
	Active              bool       `json:"active" gorm:"not null;default:true"`
	MaxArticles         int        `json:"max_articles" gorm:"not null;default:15"`
	LastScrapedAt       *time.Time `json:"last_scraped_at"`
	LastStatus          string     `json:"last_status" gorm:"size:20"`
	LastError           string     `json:"last_error" gorm:"type:text"`
	ConsecutiveFailures int        `json:"consecutive_failures" gorm:"default:0"`
}

// RecordResult stores the outcome of a scrape on the row. The caller persists it.
func (s *Source) RecordResult(at time.Time, err error) {
	s.LastScrapedAt = &at
	if err != nil {
		s.LastStatus = SourceStatusFailed
		s.LastError = err.Error()
		s.ConsecutiveFailures++
		return
	}
	s.LastStatus = SourceStatusOK
	s.LastError = ""
	s.ConsecutiveFailures = 0
}
