// Package pipeline turns scraped news into a publishable bulletin:
// scrape, classify, summarize, publish, and the narrated video job.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"ottoseguridad_backend/internal/model"
	"ottoseguridad_backend/pkg/ai"
	"ottoseguridad_backend/pkg/cache"
	"ottoseguridad_backend/pkg/events"
	"ottoseguridad_backend/pkg/logger"
	"ottoseguridad_backend/pkg/newsletter"
	"ottoseguridad_backend/pkg/scraper"
	"ottoseguridad_backend/pkg/storage"
	"ottoseguridad_backend/pkg/video"
)

var (
	ErrBusy       = errors.New("a job is already running for this bulletin")
	ErrNoArticles = errors.New("no articles to process")
	ErrNoSources  = errors.New("no active sources configured")
)

// Dispatcher sends a published bulletin to subscribers.
type Dispatcher interface {
	Dispatch(ctx context.Context, bulletinID uint) (newsletter.Result, error)
}

type Options struct {
	ScrapeConcurrency int
	Filter            scraper.Filter
	VideoPollInterval time.Duration
	VideoTimeout      time.Duration
	JobTimeout        time.Duration
}

type Pipeline struct {
	db         *gorm.DB
	scraper    scraper.Scraper
	ai         ai.Service
	renderer   video.Renderer
	store      storage.Store
	dispatcher Dispatcher
	cache      *cache.Service
	events     events.Publisher
	opts       Options
	now        func() time.Time

	mu      sync.Mutex
	running map[uint]Step
	wg      sync.WaitGroup
	base    context.Context
	cancel  context.CancelFunc
}

type Deps struct {
	DB         *gorm.DB
	Scraper    scraper.Scraper
	AI         ai.Service
	Renderer   video.Renderer
	Store      storage.Store
	Dispatcher Dispatcher
	Cache      *cache.Service
	Events     events.Publisher
}

func New(deps Deps, opts Options) *Pipeline {
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 30 * time.Minute
	}
	if opts.VideoTimeout <= 0 {
		opts.VideoTimeout = 20 * time.Minute
	}
	if deps.Events == nil {
		deps.Events = &events.NATSPublisher{}
	}
	if deps.Store == nil {
		deps.Store = storage.Default
	}
	base, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		db:         deps.DB,
		scraper:    deps.Scraper,
		ai:         deps.AI,
		renderer:   deps.Renderer,
		store:      deps.Store,
		dispatcher: deps.Dispatcher,
		cache:      deps.Cache,
		events:     deps.Events,
		opts:       opts,
		now:        time.Now,
		running:    make(map[uint]Step),
		base:       base,
		cancel:     cancel,
	}
}

var Default *Pipeline

func (p *Pipeline) load(id uint) (*model.Bulletin, error) {
	var b model.Bulletin
	if err := p.db.First(&b, id).Error; err != nil {
		return nil, fmt.Errorf("load bulletin %d: %w", id, err)
	}
	return &b, nil
}

// setStatus persists the status column and announces it.
func (p *Pipeline) setStatus(b *model.Bulletin, status model.BulletinStatus) error {
	if err := p.db.Model(b).Update("status", status).Error; err != nil {
		return fmt.Errorf("set status %s: %w", status, err)
	}
	b.Status = status
	p.announce(b, "")
	return nil
}

// save persists the whole row after a step completes.
func (p *Pipeline) save(b *model.Bulletin) error {
	if err := p.db.Save(b).Error; err != nil {
		return fmt.Errorf("save bulletin %d: %w", b.ID, err)
	}
	p.announce(b, "")
	return nil
}

// fail marks the bulletin failed and appends cause to its error log. The
// original error is returned wrapped with the stage.
func (p *Pipeline) fail(b *model.Bulletin, stage string, cause error) error {
	b.Status = model.BulletinFailed
	b.AppendError(stage, cause)
	if err := p.db.Model(b).Select("status", "error_log").Updates(b).Error; err != nil {
		logger.Log.Error("failed to record pipeline failure", "bulletin", b.ID, "stage", stage, "err", err)
	}
	logger.Log.Error("pipeline stage failed", "bulletin", b.Date, "stage", stage, "err", cause)
	p.announce(b, cause.Error())
	return fmt.Errorf("%s: %w", stage, cause)
}

func (p *Pipeline) announce(b *model.Bulletin, errMsg string) {
	if p.cache != nil {
		p.cache.InvalidateBulletin(context.Background(), b.Date)
	}
	if err := p.events.Publish(events.SubjectBulletinStatus, events.BulletinEvent{
		BulletinID: b.ID,
		Date:       b.Date,
		Status:     string(b.Status),
		Error:      errMsg,
		At:         p.now().UTC(),
	}); err != nil {
		logger.Log.Warn("bulletin event not published", "bulletin", b.ID, "err", err)
	}
}

func (p *Pipeline) activeCategories() ([]model.Category, error) {
	var categories []model.Category
	if err := p.db.Where("active = ?", true).Order("sort_order, name").Find(&categories).Error; err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}
	return categories, nil
}
