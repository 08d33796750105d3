package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type BulletinStatus string

const (
	BulletinDraft       BulletinStatus = "draft"
	BulletinScraping    BulletinStatus = "scraping"
	BulletinScraped     BulletinStatus = "scraped"
	BulletinClassifying BulletinStatus = "classifying"
	BulletinClassified  BulletinStatus = "classified"
	BulletinSummarizing BulletinStatus = "summarizing"
	BulletinReady       BulletinStatus = "ready"
	BulletinPublished   BulletinStatus = "published"
	BulletinFailed      BulletinStatus = "failed"
)

type VideoStatus string

const (
	VideoNone       VideoStatus = "none"
	VideoPending    VideoStatus = "pending"
	VideoProcessing VideoStatus = "processing"
	VideoCompleted  VideoStatus = "completed"
	VideoFailed     VideoStatus = "failed"
)

const DateLayout = "2006-01-02"

var ErrInvalidTransition = errors.New("invalid bulletin status transition")

// Article is a single scraped news item.
type Article struct {
	Title       string     `json:"title"`
	URL         string     `json:"url"`
	Content     string     `json:"content"`
	ImageURL    string     `json:"image_url,omitempty"`
	SourceID    uint       `json:"source_id"`
	SourceName  string     `json:"source_name"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

type ClassifiedArticle struct {
	Article
	Category  string `json:"category"`
	Relevance int    `json:"relevance"`
}

type ErrorEntry struct {
	Stage   string    `json:"stage"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

type Bulletin struct {
	gorm.Model
	Date            string         `json:"date" gorm:"size:10;uniqueIndex;not null"`
	Title           string         `json:"title"`
	Status          BulletinStatus `json:"status" gorm:"size:20;index;not null;default:'draft'"`
	RawNews         datatypes.JSON `json:"raw_news"`
	ClassifiedNews  datatypes.JSON `json:"classified_news"`
	Summaries       datatypes.JSON `json:"summaries"`
	HeadlineSummary string         `json:"headline_summary" gorm:"type:text"`
	TotalNews       int            `json:"total_news"`
	VideoStatus     VideoStatus    `json:"video_status" gorm:"size:20;not null;default:'none'"`
	VideoURL        string         `json:"video_url"`
	AudioURL        string         `json:"audio_url"`
	VideoScript     string         `json:"video_script" gorm:"type:text"`
	ErrorLog        datatypes.JSON `json:"error_log"`
	PublishedAt     *time.Time     `json:"published_at"`
	EmailSentAt     *time.Time     `json:"email_sent_at"`
	CreatedByID     *uint          `json:"created_by_id"`
}

func (b *Bulletin) Articles() ([]Article, error) {
	var out []Article
	if err := decodeJSON(b.RawNews, &out); err != nil {
		return nil, fmt.Errorf("decode raw news: %w", err)
	}
	return out, nil
}

func (b *Bulletin) SetArticles(articles []Article) error {
	raw, err := json.Marshal(articles)
	if err != nil {
		return err
	}
	b.RawNews = raw
	b.TotalNews = len(articles)
	return nil
}

func (b *Bulletin) Classified() ([]ClassifiedArticle, error) {
	var out []ClassifiedArticle
	if err := decodeJSON(b.ClassifiedNews, &out); err != nil {
		return nil, fmt.Errorf("decode classified news: %w", err)
	}
	return out, nil
}

func (b *Bulletin) SetClassified(items []ClassifiedArticle) error {
	raw, err := json.Marshal(items)
	if err != nil {
		return err
	}
	b.ClassifiedNews = raw
	return nil
}

func (b *Bulletin) SummaryMap() (map[string]string, error) {
	out := map[string]string{}
	if err := decodeJSON(b.Summaries, &out); err != nil {
		return nil, fmt.Errorf("decode summaries: %w", err)
	}
	return out, nil
}

func (b *Bulletin) SetSummaries(summaries map[string]string) error {
	raw, err := json.Marshal(summaries)
	if err != nil {
		return err
	}
	b.Summaries = raw
	return nil
}

func (b *Bulletin) Errors() []ErrorEntry {
	var out []ErrorEntry
	_ = decodeJSON(b.ErrorLog, &out)
	return out
}

// AppendError adds an entry to the error log. The caller persists the row.
func (b *Bulletin) AppendError(stage string, err error) {
	entries := append(b.Errors(), ErrorEntry{Stage: stage, Message: err.Error(), At: time.Now().UTC()})
	raw, _ := json.Marshal(entries)
	b.ErrorLog = raw
}

// ParsedDate returns the bulletin day in UTC.
func (b *Bulletin) ParsedDate() (time.Time, error) {
	return time.Parse(DateLayout, b.Date)
}

// CanStart reports whether a pipeline stage may run from the current status.
func (b *Bulletin) CanStart(stage BulletinStatus) error {
	ok := false
	switch stage {
	case BulletinScraping:
		ok = b.Status == BulletinDraft || b.Status == BulletinScraped || b.Status == BulletinFailed
	case BulletinClassifying:
		ok = b.TotalNews > 0 && b.Status != BulletinPublished && !b.Status.InProgress()
	case BulletinSummarizing:
		ok = hasItems(b.ClassifiedNews) && b.Status != BulletinPublished && !b.Status.InProgress()
	case BulletinPublished:
		ok = b.Status == BulletinReady
	}
	if !ok {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, b.Status, stage)
	}
	return nil
}

func (b *Bulletin) CanGenerateVideo() error {
	if b.Status != BulletinReady && b.Status != BulletinPublished {
		return fmt.Errorf("%w: video needs a ready bulletin, got %s", ErrInvalidTransition, b.Status)
	}
	if b.VideoStatus == VideoPending || b.VideoStatus == VideoProcessing {
		return fmt.Errorf("%w: video already %s", ErrInvalidTransition, b.VideoStatus)
	}
	return nil
}

func (s BulletinStatus) InProgress() bool {
	return s == BulletinScraping || s == BulletinClassifying || s == BulletinSummarizing
}

func hasItems(raw datatypes.JSON) bool {
	var items []json.RawMessage
	if err := decodeJSON(raw, &items); err != nil {
		return false
	}
	return len(items) > 0
}

func decodeJSON(raw datatypes.JSON, v interface{}) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, v)
}
