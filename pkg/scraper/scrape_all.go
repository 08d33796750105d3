package scraper

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"ottoseguridad_backend/internal/model"
)

var ErrAllSourcesFailed = errors.New("every source failed to scrape")

// Result is the outcome for one source.
type Result struct {
	Source   model.Source
	Articles []model.Article
	Err      error
}

// ScrapeAll scrapes sources with at most concurrency requests in flight.
// Per-source failures are reported in the results; the error is non-nil only
// when the context ends or no source succeeded.
func ScrapeAll(ctx context.Context, s Scraper, sources []model.Source, concurrency int) ([]Result, error) {
	if concurrency <= 0 {
		concurrency = 4
	}
	results := make([]Result, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, src := range sources {
		g.Go(func() error {
			articles, err := s.Scrape(gctx, src)
			results[i] = Result{Source: src, Articles: articles, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return results, err
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	if len(sources) > 0 && failed == len(sources) {
		return results, fmt.Errorf("%w (%d sources)", ErrAllSourcesFailed, failed)
	}
	return results, nil
}
