// Package email renders and delivers bulletin, welcome and stats emails.
package email

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"sort"
	"strings"
	texttemplate "text/template"
	"time"

	"gorm.io/gorm"

	"ottoseguridad_backend/internal/model"
	"ottoseguridad_backend/pkg/config"
	"ottoseguridad_backend/pkg/logger"
)

type EmailService struct {
	transport Transport
	from      string
	appURL    string
	tracking  TrackingURLs
	templates *template.Template
	db        *gorm.DB
}

// BulletinSection is one category block of the bulletin email and web page.
type BulletinSection struct {
	Slug     string
	Name     string
	Color    string
	Summary  string
	Articles []model.ClassifiedArticle
}

type BulletinEmailData struct {
	Title          string
	Date           string
	Headline       string
	TotalNews      int
	Sections       []BulletinSection
	WebURL         string
	VideoURL       string
	UnsubscribeURL string
}

type WelcomeEmailData struct {
	Name           string
	SiteURL        string
	UnsubscribeURL string
}

type DailyStatsData struct {
	Date              string
	BulletinTitle     string
	Sent              int64
	Failed            int64
	Opened            int64
	Clicks            int64
	NewSubscribers    int64
	ActiveSubscribers int64
}

func NewEmailService(transport Transport, from, appURL string, db *gorm.DB) (*EmailService, error) {
	if transport == nil {
		return nil, ErrNotConfigured
	}

	templates, err := loadTemplates()
	if err != nil {
		return nil, fmt.Errorf("error loading email templates: %w", err)
	}

	appURL = strings.TrimRight(appURL, "/")
	return &EmailService{
		transport: transport,
		from:      from,
		appURL:    appURL,
		tracking:  TrackingURLs{BaseURL: appURL},
		templates: templates,
		db:        db,
	}, nil
}

func (s *EmailService) AppURL() string {
	return s.appURL
}

func (s *EmailService) UnsubscribeURL(token string) string {
	return s.appURL + "/api/subscribers/unsubscribe/" + token
}

func (s *EmailService) BulletinURL(date string) string {
	return s.appURL + "/bulletin/" + date
}

// Render executes the named template. An active Template row with the same
// name replaces the embedded body and subject.
func (s *EmailService) Render(name string, data interface{}) (subject, body string, err error) {
	subjectSrc := defaultSubjects[name]
	var buf bytes.Buffer

	override, err := s.override(name)
	if err != nil {
		return "", "", err
	}
	if override != nil {
		tpl, err := template.New(name).Funcs(funcs).Parse(override.HTML)
		if err != nil {
			return "", "", fmt.Errorf("parse template %q: %w", name, err)
		}
		if err := tpl.Execute(&buf, data); err != nil {
			return "", "", fmt.Errorf("template execution error: %w", err)
		}
		if override.Subject != "" {
			subjectSrc = override.Subject
		}
	} else if err := s.templates.ExecuteTemplate(&buf, name+".html", data); err != nil {
		return "", "", fmt.Errorf("template execution error: %w", err)
	}

	subject, err = renderSubject(subjectSrc, data)
	if err != nil {
		return "", "", err
	}
	return subject, buf.String(), nil
}

func (s *EmailService) override(name string) (*model.Template, error) {
	if s.db == nil {
		return nil, nil
	}
	var tpl model.Template
	err := s.db.Where("name = ? AND active = ?", name, true).First(&tpl).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load template %q: %w", name, err)
	}
	return &tpl, nil
}

func renderSubject(src string, data interface{}) (string, error) {
	tpl, err := texttemplate.New("subject").Parse(src)
	if err != nil {
		return "", fmt.Errorf("parse subject: %w", err)
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render subject: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// ValidateTemplate checks that an override parses before it is stored.
func ValidateTemplate(subject, body string) error {
	if _, err := template.New("body").Funcs(funcs).Parse(body); err != nil {
		return fmt.Errorf("html: %w", err)
	}
	if _, err := texttemplate.New("subject").Parse(subject); err != nil {
		return fmt.Errorf("subject: %w", err)
	}
	return nil
}

func (s *EmailService) send(ctx context.Context, to, subject, body string, headers map[string]string) error {
	err := s.transport.Send(ctx, Message{
		From:    s.from,
		To:      to,
		Subject: subject,
		HTML:    body,
		Headers: headers,
	})
	if err != nil {
		logger.Log.Error("email send failed", "to", to, "subject", subject, "err", err)
		return err
	}
	logger.Log.Debug("email sent", "to", to, "subject", subject)
	return nil
}

// SendBulletin delivers the bulletin to one recipient. With a tracking id the
// links are routed through the click endpoint and an open pixel is added.
func (s *EmailService) SendBulletin(ctx context.Context, to string, data BulletinEmailData, trackingID string) error {
	subject, body, err := s.Render(TemplateBulletin, data)
	if err != nil {
		return err
	}
	if trackingID != "" {
		body, err = InjectTracking(body, s.tracking, trackingID, s.appURL+"/api/subscribers/unsubscribe/")
		if err != nil {
			return err
		}
	}

	var headers map[string]string
	if data.UnsubscribeURL != "" {
		headers = map[string]string{"List-Unsubscribe": "<" + data.UnsubscribeURL + ">"}
	}
	return s.send(ctx, to, subject, body, headers)
}

func (s *EmailService) SendWelcomeEmail(ctx context.Context, sub *model.Subscriber) error {
	data := WelcomeEmailData{
		Name:           sub.Name,
		SiteURL:        s.appURL,
		UnsubscribeURL: s.UnsubscribeURL(sub.UnsubscribeToken),
	}
	subject, body, err := s.Render(TemplateWelcome, data)
	if err != nil {
		return err
	}
	return s.send(ctx, sub.Email, subject, body, nil)
}

func (s *EmailService) SendDailyStats(ctx context.Context, to string, data DailyStatsData) error {
	subject, body, err := s.Render(TemplateDailyStats, data)
	if err != nil {
		return err
	}
	return s.send(ctx, to, subject, body, nil)
}

// NewBulletinData groups classified articles into sections following the
// category order. Articles in unknown categories land in the fallback
// section, and sections without articles or summary are left out.
func NewBulletinData(b *model.Bulletin, categories []model.Category, appURL string) (BulletinEmailData, error) {
	classified, err := b.Classified()
	if err != nil {
		return BulletinEmailData{}, err
	}
	summaries, err := b.SummaryMap()
	if err != nil {
		return BulletinEmailData{}, err
	}

	byCategory := make(map[string][]model.ClassifiedArticle)
	known := make(map[string]bool, len(categories))
	for _, c := range categories {
		known[c.Slug] = true
	}
	for _, a := range classified {
		slug := a.Category
		if !known[slug] {
			slug = model.FallbackCategory
		}
		byCategory[slug] = append(byCategory[slug], a)
	}

	ordered := categories
	if !known[model.FallbackCategory] {
		ordered = append(append([]model.Category{}, categories...), model.Category{Name: "Otros", Slug: model.FallbackCategory})
	}

	var sections []BulletinSection
	for _, c := range ordered {
		articles := byCategory[c.Slug]
		if len(articles) == 0 && summaries[c.Slug] == "" {
			continue
		}
		sort.SliceStable(articles, func(i, j int) bool { return articles[i].Relevance > articles[j].Relevance })
		sections = append(sections, BulletinSection{
			Slug:     c.Slug,
			Name:     c.Name,
			Color:    c.Color,
			Summary:  summaries[c.Slug],
			Articles: articles,
		})
	}

	title := b.Title
	if title == "" {
		title = DefaultBulletinTitle(b.Date)
	}
	appURL = strings.TrimRight(appURL, "/")
	return BulletinEmailData{
		Title:     title,
		Date:      b.Date,
		Headline:  b.HeadlineSummary,
		TotalNews: len(classified),
		Sections:  sections,
		WebURL:    appURL + "/bulletin/" + b.Date,
		VideoURL:  b.VideoURL,
	}, nil
}

var spanishMonths = [...]string{"enero", "febrero", "marzo", "abril", "mayo", "junio", "julio",
	"agosto", "septiembre", "octubre", "noviembre", "diciembre"}

// DefaultBulletinTitle formats a YYYY-MM-DD date as "Boletín de seguridad del 5 de marzo de 2025".
func DefaultBulletinTitle(date string) string {
	t, err := time.Parse(model.DateLayout, date)
	if err != nil {
		return "Boletín de seguridad " + date
	}
	return fmt.Sprintf("Boletín de seguridad del %d de %s de %d", t.Day(), spanishMonths[t.Month()-1], t.Year())
}

var GlobalEmailService *EmailService

// InitEmailService builds the transport for cfg.Provider and installs the
// global service.
func InitEmailService(cfg config.EmailConfig, appURL string, db *gorm.DB) error {
	transport, err := NewTransport(cfg)
	if err != nil {
		return err
	}
	service, err := NewEmailService(transport, cfg.From, appURL, db)
	if err != nil {
		return err
	}
	GlobalEmailService = service
	return nil
}
