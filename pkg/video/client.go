// Package video drives a remote render service that turns a bulletin
// narration into an mp4.
package video

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

	"ottoseguridad_backend/pkg/config"
)

var (
	ErrNotConfigured = errors.New("video render URL is not configured")
	ErrRenderFailed  = errors.New("video render failed")
)

const (
	StatusQueued     = "queued"
	StatusRendering  = "rendering"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	defaultPollEvery = 5 * time.Second
)

// Scene is one category segment of the video.
type Scene struct {
	Title    string `json:"title"`
	Text     string `json:"text"`
	Color    string `json:"color,omitempty"`
	Count    int    `json:"count"`
	ImageURL string `json:"image_url,omitempty"`
}

type RenderInput struct {
	Date     string  `json:"date"`
	Title    string  `json:"title"`
	Headline string  `json:"headline"`
	AudioURL string  `json:"audio_url"`
	Script   string  `json:"script"`
	Scenes   []Scene `json:"scenes"`
}

// Job is the render service view of a submitted render.
type Job struct {
	ID       string  `json:"id"`
	Status   string  `json:"status"`
	URL      string  `json:"url"`
	Error    string  `json:"error"`
	Progress float64 `json:"progress"`
}

// Renderer submits renders and waits for them.
type Renderer interface {
	Render(ctx context.Context, in RenderInput) (string, error)
	Wait(ctx context.Context, jobID string, interval time.Duration) (string, error)
}

type Client struct {
	baseURL     string
	apiKey      string
	composition string
	httpClient  *http.Client
}

func NewClient(cfg config.VideoConfig) (*Client, error) {
	if cfg.RenderURL == "" {
		return nil, ErrNotConfigured
	}
	return &Client{
		baseURL:     strings.TrimRight(cfg.RenderURL, "/"),
		apiKey:      cfg.APIKey,
		composition: cfg.Composition,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type renderRequest struct {
	Composition string      `json:"composition"`
	Props       RenderInput `json:"props"`
}

// Render submits a render and returns its job id.
func (c *Client) Render(ctx context.Context, in RenderInput) (string, error) {
	body, err := json.Marshal(renderRequest{Composition: c.composition, Props: in})
	if err != nil {
		return "", err
	}

	var job Job
	if err := c.do(ctx, http.MethodPost, "/renders", bytes.NewReader(body), &job); err != nil {
		return "", fmt.Errorf("submit render: %w", err)
	}
	if job.ID == "" {
		return "", fmt.Errorf("submit render: response has no job id")
	}
	return job.ID, nil
}

func (c *Client) Status(ctx context.Context, jobID string) (*Job, error) {
	var job Job
	if err := c.do(ctx, http.MethodGet, "/renders/"+jobID, nil, &job); err != nil {
		return nil, fmt.Errorf("render status: %w", err)
	}
	return &job, nil
}

// Wait polls the job until it completes, fails, or ctx ends.
func (c *Client) Wait(ctx context.Context, jobID string, interval time.Duration) (string, error) {
	if interval <= 0 {
		interval = defaultPollEvery
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		job, err := c.Status(ctx, jobID)
		if err != nil {
			return "", err
		}
		switch job.Status {
		case StatusCompleted:
			if job.URL == "" {
				return "", fmt.Errorf("%w: job %s completed without url", ErrRenderFailed, jobID)
			}
			return job.URL, nil
		case StatusFailed:
			return "", fmt.Errorf("%w: %s", ErrRenderFailed, job.Error)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("render service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return json.Unmarshal(raw, out)
}
