package pipeline

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"ottoseguridad_backend/internal/model"
	"ottoseguridad_backend/pkg/ai"
	"ottoseguridad_backend/pkg/email"
	"ottoseguridad_backend/pkg/logger"
	"ottoseguridad_backend/pkg/newsletter"
	"ottoseguridad_backend/pkg/scraper"
)

const summarizeConcurrency = 3

// Scrape fetches every active source, filters the articles and stores them
// as the bulletin's raw news. Downstream results are cleared.
func (p *Pipeline) Scrape(ctx context.Context, id uint) error {
	b, err := p.load(id)
	if err != nil {
		return err
	}
	if err := b.CanStart(model.BulletinScraping); err != nil {
		return err
	}
	if err := p.setStatus(b, model.BulletinScraping); err != nil {
		return err
	}

	var sources []model.Source
	if err := p.db.Where("active = ?", true).Order("id").Find(&sources).Error; err != nil {
		return p.fail(b, "scrape", err)
	}
	if len(sources) == 0 {
		return p.fail(b, "scrape", ErrNoSources)
	}

	results, err := scraper.ScrapeAll(ctx, p.scraper, sources, p.opts.ScrapeConcurrency)
	if ctx.Err() != nil {
		return p.fail(b, "scrape", ctx.Err())
	}

	var all []model.Article
	limits := make(map[uint]int, len(sources))
	now := p.now()
	for _, r := range results {
		src := r.Source
		limits[src.ID] = src.MaxArticles
		src.RecordResult(now, r.Err)
		if saveErr := p.db.Model(&src).Select("last_scraped_at", "last_status", "last_error", "consecutive_failures").Updates(&src).Error; saveErr != nil {
			logger.Log.Warn("failed to record source result", "source", src.Name, "err", saveErr)
		}
		if r.Err != nil {
			logger.Log.Warn("source scrape failed", "source", src.Name, "err", r.Err)
			b.AppendError("scrape", fmt.Errorf("%s: %w", src.Name, r.Err))
			continue
		}
		all = append(all, r.Articles...)
	}
	if err != nil {
		return p.fail(b, "scrape", err)
	}

	articles := p.opts.Filter.Apply(all, limits)
	logger.Log.Info("scrape finished", "bulletin", b.Date, "sources", len(sources), "found", len(all), "kept", len(articles))
	if len(articles) == 0 {
		return p.fail(b, "scrape", ErrNoArticles)
	}

	if err := b.SetArticles(articles); err != nil {
		return p.fail(b, "scrape", err)
	}
	b.ClassifiedNews = nil
	b.Summaries = nil
	b.HeadlineSummary = ""
	b.Status = model.BulletinScraped
	return p.save(b)
}

// Classify asks the model to categorize the raw news.
func (p *Pipeline) Classify(ctx context.Context, id uint) error {
	b, err := p.load(id)
	if err != nil {
		return err
	}
	if err := b.CanStart(model.BulletinClassifying); err != nil {
		return err
	}
	if err := p.setStatus(b, model.BulletinClassifying); err != nil {
		return err
	}

	articles, err := b.Articles()
	if err != nil {
		return p.fail(b, "classify", err)
	}
	categories, err := p.activeCategories()
	if err != nil {
		return p.fail(b, "classify", err)
	}

	classified, err := p.ai.Classify(ctx, articles, categories)
	if err != nil {
		return p.fail(b, "classify", err)
	}
	if len(classified) == 0 {
		return p.fail(b, "classify", ErrNoArticles)
	}
	logger.Log.Info("classification finished", "bulletin", b.Date, "articles", len(articles), "kept", len(classified))

	if err := b.SetClassified(classified); err != nil {
		return p.fail(b, "classify", err)
	}
	b.Summaries = nil
	b.HeadlineSummary = ""
	b.Status = model.BulletinClassified
	return p.save(b)
}

// Summarize writes one summary per category with articles, then the overall
// headline. The bulletin ends ready for publication.
func (p *Pipeline) Summarize(ctx context.Context, id uint) error {
	b, err := p.load(id)
	if err != nil {
		return err
	}
	if err := b.CanStart(model.BulletinSummarizing); err != nil {
		return err
	}
	if err := p.setStatus(b, model.BulletinSummarizing); err != nil {
		return err
	}

	categories, err := p.activeCategories()
	if err != nil {
		return p.fail(b, "summarize", err)
	}
	data, err := newBulletinData(b, categories)
	if err != nil {
		return p.fail(b, "summarize", err)
	}

	summaries := make(map[string]string, len(data.Sections))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(summarizeConcurrency)
	for _, section := range data.Sections {
		if len(section.Articles) == 0 {
			continue
		}
		g.Go(func() error {
			text, err := p.ai.Summarize(gctx, sectionCategory(section), section.Articles)
			if err != nil {
				return fmt.Errorf("category %s: %w", section.Slug, err)
			}
			mu.Lock()
			summaries[section.Slug] = text
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return p.fail(b, "summarize", err)
	}

	headline, err := p.ai.Headline(ctx, Sections(data.Sections, summaries))
	if err != nil {
		return p.fail(b, "summarize", err)
	}

	if err := b.SetSummaries(summaries); err != nil {
		return p.fail(b, "summarize", err)
	}
	b.HeadlineSummary = headline
	if b.Title == "" {
		b.Title = email.DefaultBulletinTitle(b.Date)
	}
	b.Status = model.BulletinReady
	logger.Log.Info("bulletin ready", "bulletin", b.Date, "sections", len(summaries))
	return p.save(b)
}

// Publish makes a ready bulletin public. With send set the newsletter goes
// out right after. It fails with ErrBusy while a job runs on the bulletin.
func (p *Pipeline) Publish(ctx context.Context, id uint, send bool) (*newsletter.Result, error) {
	if err := p.publish(id); err != nil {
		return nil, err
	}

	if !send || p.dispatcher == nil {
		return nil, nil
	}
	res, err := p.dispatcher.Dispatch(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("send newsletter: %w", err)
	}
	return &res, nil
}

func (p *Pipeline) publish(id uint) error {
	if err := p.acquire(id, StepPublish); err != nil {
		return err
	}
	defer p.release(id)

	b, err := p.load(id)
	if err != nil {
		return err
	}
	if err := b.CanStart(model.BulletinPublished); err != nil {
		return err
	}

	now := p.now()
	b.Status = model.BulletinPublished
	b.PublishedAt = &now
	if err := p.db.Model(b).Select("status", "published_at").Updates(b).Error; err != nil {
		return fmt.Errorf("publish bulletin %d: %w", id, err)
	}
	p.announce(b, "")
	logger.Log.Info("bulletin published", "bulletin", b.Date)
	return nil
}

// Run executes scrape, classify and summarize in order, stopping at the
// first failure.
func (p *Pipeline) Run(ctx context.Context, id uint) error {
	for _, step := range []func(context.Context, uint) error{p.Scrape, p.Classify, p.Summarize} {
		if err := step(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// Sections pairs categories with their summaries in display order.
func Sections(sections []email.BulletinSection, summaries map[string]string) []ai.CategorySummary {
	out := make([]ai.CategorySummary, 0, len(sections))
	for _, s := range sections {
		text := summaries[s.Slug]
		if text == "" {
			text = s.Summary
		}
		if text == "" {
			continue
		}
		out = append(out, ai.CategorySummary{Category: sectionCategory(s), Summary: text, Count: len(s.Articles)})
	}
	return out
}

func newBulletinData(b *model.Bulletin, categories []model.Category) (email.BulletinEmailData, error) {
	return email.NewBulletinData(b, categories, "")
}

func sectionCategory(s email.BulletinSection) model.Category {
	return model.Category{Name: s.Name, Slug: s.Slug, Color: s.Color}
}

// PreviewSource scrapes a single source and applies the article filter. The
// source's last status is updated; no bulletin is touched.
func (p *Pipeline) PreviewSource(ctx context.Context, src *model.Source) ([]model.Article, error) {
	articles, err := p.scraper.Scrape(ctx, *src)
	src.RecordResult(p.now(), err)
	if saveErr := p.db.Model(src).Select("last_scraped_at", "last_status", "last_error", "consecutive_failures").Updates(src).Error; saveErr != nil {
		logger.Log.Warn("failed to record source result", "source", src.Name, "err", saveErr)
	}
	if err != nil {
		return nil, err
	}
	return p.opts.Filter.Apply(articles, map[uint]int{src.ID: src.MaxArticles}), nil
}
