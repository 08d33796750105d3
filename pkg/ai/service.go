// Package ai classifies, summarizes and narrates bulletin news through a
// language model backend.
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"ottoseguridad_backend/internal/model"
)

// maxSpeechChars is the TTS endpoint input limit.
const maxSpeechChars = 4096

var ErrEmptyResponse = errors.New("model returned an empty response")

// CategorySummary is one section of the bulletin in display order.
type CategorySummary struct {
	Category model.Category
	Summary  string
	Count    int
}

// Service is what the pipeline needs from the AI layer.
type Service interface {
	Classify(ctx context.Context, articles []model.Article, categories []model.Category) ([]model.ClassifiedArticle, error)
	Summarize(ctx context.Context, category model.Category, articles []model.ClassifiedArticle) (string, error)
	Headline(ctx context.Context, sections []CategorySummary) (string, error)
	Script(ctx context.Context, date string, headline string, sections []CategorySummary) (string, error)
	Speak(ctx context.Context, text string) ([]byte, error)
}

type Client struct {
	backend   Backend
	batchSize int
}

func NewClient(backend Backend, batchSize int) *Client {
	if batchSize <= 0 {
		batchSize = 20
	}
	return &Client{backend: backend, batchSize: batchSize}
}

const classifySystem = `Eres un analista de seguridad ciudadana en Ecuador. Clasificas noticias
en categorías y puntúas su relevancia para un boletín diario de seguridad (0 = no trata de
seguridad, 10 = imprescindible). Respondes solo con JSON válido.`

type classifyResponse struct {
	Items []struct {
		Index     int    `json:"index"`
		Category  string `json:"category"`
		Relevance int    `json:"relevance"`
	} `json:"items"`
}

// Classify assigns a category slug and relevance to each article. Articles the
// model scores 0 are dropped; unknown or missing slugs fall back to "otros".
func (c *Client) Classify(ctx context.Context, articles []model.Article, categories []model.Category) ([]model.ClassifiedArticle, error) {
	known := make(map[string]bool, len(categories))
	var catList strings.Builder
	for _, cat := range categories {
		known[cat.Slug] = true
		fmt.Fprintf(&catList, "- %s: %s. %s\n", cat.Slug, cat.Name, cat.Description)
	}
	fmt.Fprintf(&catList, "- %s: cualquier otra noticia de seguridad\n", model.FallbackCategory)

	out := make([]model.ClassifiedArticle, 0, len(articles))
	for start := 0; start < len(articles); start += c.batchSize {
		end := min(start+c.batchSize, len(articles))
		batch := articles[start:end]

		var prompt strings.Builder
		prompt.WriteString("Categorías disponibles:\n")
		prompt.WriteString(catList.String())
		prompt.WriteString("\nNoticias:\n")
		for i, a := range batch {
			fmt.Fprintf(&prompt, "[%d] %s (%s)\n%s\n\n", i, a.Title, a.SourceName, truncate(a.Content, 500))
		}
		prompt.WriteString(`Devuelve {"items":[{"index":<n>,"category":"<slug>","relevance":<0-10>}]} con un elemento por noticia.`)

		raw, err := c.backend.Complete(ctx, classifySystem, prompt.String())
		if err != nil {
			return nil, fmt.Errorf("classify batch %d-%d: %w", start, end, err)
		}

		var resp classifyResponse
		if err := decodeJSON(raw, &resp); err != nil {
			return nil, fmt.Errorf("classify batch %d-%d: %w", start, end, err)
		}

		assigned := make(map[int]model.ClassifiedArticle, len(batch))
		for _, item := range resp.Items {
			if item.Index < 0 || item.Index >= len(batch) {
				continue
			}
			slug := strings.ToLower(strings.TrimSpace(item.Category))
			if !known[slug] {
				slug = model.FallbackCategory
			}
			assigned[item.Index] = model.ClassifiedArticle{
				Article:   batch[item.Index],
				Category:  slug,
				Relevance: clamp(item.Relevance, 0, 10),
			}
		}

		for i, a := range batch {
			ca, ok := assigned[i]
			if !ok {
				ca = model.ClassifiedArticle{Article: a, Category: model.FallbackCategory, Relevance: 1}
			}
			if ca.Relevance == 0 {
				continue
			}
			out = append(out, ca)
		}
	}

	return out, nil
}

const summarizeSystem = `Eres editor de un boletín diario de seguridad para Ecuador. Escribes en
español neutro, con tono informativo y sin sensacionalismo. No inventas datos: solo usas lo que
aparece en las noticias. Respondes en texto plano, sin Markdown.`

// Summarize writes one paragraph covering the category's articles.
func (c *Client) Summarize(ctx context.Context, category model.Category, articles []model.ClassifiedArticle) (string, error) {
	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Categoría: %s\n\nNoticias:\n", category.Name)
	for _, a := range articles {
		fmt.Fprintf(&prompt, "- %s (%s, relevancia %d)\n  %s\n", a.Title, a.SourceName, a.Relevance, truncate(a.Content, 600))
	}
	prompt.WriteString("\nResume estas noticias en un párrafo de 3 a 5 oraciones, destacando lugares y hechos concretos.")

	text, err := c.backend.Complete(ctx, summarizeSystem, prompt.String())
	if err != nil {
		return "", fmt.Errorf("summarize %s: %w", category.Slug, err)
	}
	if text == "" {
		return "", fmt.Errorf("summarize %s: %w", category.Slug, ErrEmptyResponse)
	}
	return text, nil
}

// Headline condenses the section summaries into two sentences.
func (c *Client) Headline(ctx context.Context, sections []CategorySummary) (string, error) {
	var prompt strings.Builder
	for _, s := range sections {
		fmt.Fprintf(&prompt, "%s (%d noticias): %s\n\n", s.Category.Name, s.Count, s.Summary)
	}
	prompt.WriteString("Escribe un resumen general del día en máximo dos oraciones.")

	text, err := c.backend.Complete(ctx, summarizeSystem, prompt.String())
	if err != nil {
		return "", fmt.Errorf("headline: %w", err)
	}
	if text == "" {
		return "", fmt.Errorf("headline: %w", ErrEmptyResponse)
	}
	return text, nil
}

// Script writes the narration for the bulletin video, about two minutes long.
func (c *Client) Script(ctx context.Context, date string, headline string, sections []CategorySummary) (string, error) {
	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Fecha: %s\nResumen general: %s\n\n", date, headline)
	for _, s := range sections {
		fmt.Fprintf(&prompt, "%s: %s\n\n", s.Category.Name, s.Summary)
	}
	prompt.WriteString(`Escribe el guion de un video de unos dos minutos (máximo 300 palabras) para leer en voz
alta. Empieza con "Este es el boletín de seguridad de OttoSeguridad" y la fecha, recorre cada
categoría y termina invitando a suscribirse al boletín. Solo el texto a leer.`)

	text, err := c.backend.Complete(ctx, summarizeSystem, prompt.String())
	if err != nil {
		return "", fmt.Errorf("script: %w", err)
	}
	if text == "" {
		return "", fmt.Errorf("script: %w", ErrEmptyResponse)
	}
	return text, nil
}

// Speak renders text to mp3, cutting at the last sentence that fits the TTS limit.
func (c *Client) Speak(ctx context.Context, text string) ([]byte, error) {
	return c.backend.Speak(ctx, fitSentences(text, maxSpeechChars))
}

// decodeJSON accepts bare JSON, fenced ```json blocks, or JSON surrounded by prose.
func decodeJSON(raw string, v interface{}) error {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ErrEmptyResponse
	}
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	if err := json.Unmarshal([]byte(s), v); err == nil {
		return nil
	}

	first, last := strings.Index(s, "{"), strings.LastIndex(s, "}")
	if first < 0 || last <= first {
		return fmt.Errorf("no JSON object in model response")
	}
	if err := json.Unmarshal([]byte(s[first:last+1]), v); err != nil {
		return fmt.Errorf("invalid JSON in model response: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n]) + "…"
}

func fitSentences(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := s[:limit]
	if i := strings.LastIndexAny(cut, ".!?"); i > 0 {
		return cut[:i+1]
	}
	return strings.ToValidUTF8(cut, "")
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
