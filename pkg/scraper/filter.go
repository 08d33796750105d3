package scraper

import (
	"strings"
	"time"

	"ottoseguridad_backend/internal/model"
)

// Filter drops articles that should not reach the classifier.
type Filter struct {
	MinContentLength int
	RecencyHours     int
	Now              func() time.Time
}

// Apply keeps articles in input order. maxPerSource caps articles per source
// id; zero or negative means unlimited.
func (f Filter) Apply(articles []model.Article, maxPerSource map[uint]int) []model.Article {
	now := time.Now()
	if f.Now != nil {
		now = f.Now()
	}
	var cutoff time.Time
	if f.RecencyHours > 0 {
		cutoff = now.Add(-time.Duration(f.RecencyHours) * time.Hour)
	}

	seen := make(map[string]struct{}, len(articles))
	perSource := make(map[uint]int)
	out := make([]model.Article, 0, len(articles))

	for _, a := range articles {
		if strings.TrimSpace(a.Title) == "" || strings.TrimSpace(a.URL) == "" {
			continue
		}
		if len([]rune(strings.TrimSpace(a.Content))) < f.MinContentLength {
			continue
		}
		if a.PublishedAt != nil {
			// undated articles pass; listings rarely carry dates
			if !cutoff.IsZero() && a.PublishedAt.Before(cutoff) {
				continue
			}
			if a.PublishedAt.After(now.Add(time.Hour)) {
				continue
			}
		}

		key := CanonicalURL(a.URL)
		if _, dup := seen[key]; dup {
			continue
		}
		if limit := maxPerSource[a.SourceID]; limit > 0 && perSource[a.SourceID] >= limit {
			continue
		}

		seen[key] = struct{}{}
		perSource[a.SourceID]++
		out = append(out, a)
	}

	return out
}
