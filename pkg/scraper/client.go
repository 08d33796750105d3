// Package scraper fetches article listings from news sites through a remote
// scraping API and filters them into bulletin input.
package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"ottoseguridad_backend/internal/model"
	"ottoseguridad_backend/pkg/config"
)

var ErrNotConfigured = errors.New("scraper API key is not configured")

// Scraper returns the articles currently listed on a source.
type Scraper interface {
	Scrape(ctx context.Context, source model.Source) ([]model.Article, error)
}

// Client talks to a Firecrawl-compatible /v1/scrape endpoint using its
// structured extraction mode.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewClient(cfg config.ScraperConfig) *Client {
	rps := cfg.RequestsPerSec
	if rps <= 0 {
		rps = 1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.APIURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
	}
}

type scrapeRequest struct {
	URL             string        `json:"url"`
	Formats         []string      `json:"formats"`
	OnlyMainContent bool          `json:"onlyMainContent"`
	Extract         extractParams `json:"extract"`
}

type extractParams struct {
	Prompt string          `json:"prompt"`
	Schema json.RawMessage `json:"schema"`
}

type scrapeResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Data    struct {
		Extract struct {
			Articles []extractedArticle `json:"articles"`
		} `json:"extract"`
	} `json:"data"`
}

type extractedArticle struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Content     string `json:"content"`
	ImageURL    string `json:"image_url"`
	PublishedAt string `json:"published_at"`
}

const extractPrompt = `Extrae las noticias publicadas en esta portada. Para cada noticia devuelve
el titular, el enlace absoluto, un extracto del contenido de al menos dos frases, la imagen principal
si existe y la fecha de publicación en formato ISO 8601 si aparece.`

var articleSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "articles": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "title": {"type": "string"},
          "url": {"type": "string"},
          "content": {"type": "string"},
          "image_url": {"type": "string"},
          "published_at": {"type": "string"}
        },
        "required": ["title", "url"]
      }
    }
  },
  "required": ["articles"]
}`)

func (c *Client) Scrape(ctx context.Context, source model.Source) ([]model.Article, error) {
	if c.apiKey == "" {
		return nil, ErrNotConfigured
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(scrapeRequest{
		URL:             source.URL,
		Formats:         []string{"extract"},
		OnlyMainContent: true,
		Extract:         extractParams{Prompt: extractPrompt, Schema: articleSchema},
	})
	if err != nil {
		return nil, fmt.Errorf("error marshaling scrape request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/scrape", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error calling scraper: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("error reading scraper response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("scraper API error: status %d: %s", resp.StatusCode, snippet(body))
	}

	var out scrapeResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("error decoding scraper response: %w", err)
	}
	if !out.Success {
		return nil, fmt.Errorf("scraper API error: %s", out.Error)
	}

	articles := make([]model.Article, 0, len(out.Data.Extract.Articles))
	for _, a := range out.Data.Extract.Articles {
		articles = append(articles, model.Article{
			Title:       strings.TrimSpace(a.Title),
			URL:         resolveURL(source.URL, strings.TrimSpace(a.URL)),
			Content:     strings.TrimSpace(a.Content),
			ImageURL:    strings.TrimSpace(a.ImageURL),
			SourceID:    source.ID,
			SourceName:  source.Name,
			PublishedAt: parseDate(a.PublishedAt),
		})
	}
	return articles, nil
}

func snippet(b []byte) string {
	const max = 300
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
