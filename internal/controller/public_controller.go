package controller

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"ottoseguridad_backend/internal/model"
	"ottoseguridad_backend/pkg/cache"
	"ottoseguridad_backend/pkg/database"
	"ottoseguridad_backend/pkg/email"
)

// PublicArticle is the subset of an article exposed to readers.
type PublicArticle struct {
	Title       string     `json:"title"`
	URL         string     `json:"url"`
	SourceName  string     `json:"source_name"`
	ImageURL    string     `json:"image_url,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

type PublicSection struct {
	Slug     string          `json:"slug"`
	Name     string          `json:"name"`
	Color    string          `json:"color"`
	Summary  string          `json:"summary"`
	Articles []PublicArticle `json:"articles"`
}

type PublicBulletin struct {
	Date        string          `json:"date"`
	Title       string          `json:"title"`
	Headline    string          `json:"headline"`
	TotalNews   int             `json:"total_news"`
	VideoURL    string          `json:"video_url,omitempty"`
	WebURL      string          `json:"web_url"`
	PublishedAt *time.Time      `json:"published_at"`
	Sections    []PublicSection `json:"sections"`
}

type PublicBulletinSummary struct {
	Date            string     `json:"date"`
	Title           string     `json:"title"`
	HeadlineSummary string     `json:"headline"`
	TotalNews       int        `json:"total_news"`
	VideoURL        string     `json:"video_url,omitempty"`
	PublishedAt     *time.Time `json:"published_at"`
}

type publicPage struct {
	Data  []PublicBulletinSummary `json:"data"`
	Total int64                   `json:"total"`
	Page  int                     `json:"page"`
	Limit int                     `json:"limit"`
	Pages int64                   `json:"pages"`
}

func publicAppURL() string {
	if email.GlobalEmailService != nil {
		return email.GlobalEmailService.AppURL()
	}
	return ""
}

// bulletinData loads a published bulletin for the given date and groups its
// articles into sections.
func bulletinData(date string) (*model.Bulletin, email.BulletinEmailData, error) {
	db := database.GetDB()
	q := db.Where("status = ?", model.BulletinPublished)
	if date == "" {
		q = q.Order("date DESC")
	} else {
		q = q.Where("date = ?", date)
	}

	var b model.Bulletin
	if err := q.First(&b).Error; err != nil {
		return nil, email.BulletinEmailData{}, err
	}
	var categories []model.Category
	if err := db.Where("active = ?", true).Order("sort_order, name").Find(&categories).Error; err != nil {
		return nil, email.BulletinEmailData{}, err
	}
	data, err := email.NewBulletinData(&b, categories, publicAppURL())
	if err != nil {
		return nil, email.BulletinEmailData{}, err
	}
	return &b, data, nil
}

func toPublic(b *model.Bulletin, data email.BulletinEmailData) PublicBulletin {
	out := PublicBulletin{
		Date:        data.Date,
		Title:       data.Title,
		Headline:    data.Headline,
		TotalNews:   data.TotalNews,
		VideoURL:    data.VideoURL,
		WebURL:      data.WebURL,
		PublishedAt: b.PublishedAt,
		Sections:    make([]PublicSection, 0, len(data.Sections)),
	}
	for _, s := range data.Sections {
		section := PublicSection{Slug: s.Slug, Name: s.Name, Color: s.Color, Summary: s.Summary}
		for _, a := range s.Articles {
			section.Articles = append(section.Articles, PublicArticle{
				Title:       a.Title,
				URL:         a.URL,
				SourceName:  a.SourceName,
				ImageURL:    a.ImageURL,
				PublishedAt: a.PublishedAt,
			})
		}
		out.Sections = append(out.Sections, section)
	}
	return out
}

func ListPublicBulletins(c *fiber.Ctx) error {
	p := pagination(c)
	key := cache.ListKey(p.Page, p.Limit)

	var out publicPage
	if cache.Default.GetJSON(c.UserContext(), key, &out) {
		return c.JSON(out)
	}

	q := database.GetDB().Model(&model.Bulletin{}).Where("status = ?", model.BulletinPublished)
	if err := q.Count(&out.Total).Error; err != nil {
		return respondError(c, err, "Could not fetch bulletins")
	}
	out.Data = []PublicBulletinSummary{}
	if err := q.Select("date", "title", "headline_summary", "total_news", "video_url", "published_at").
		Order("date DESC").Limit(p.Limit).Offset(p.Offset).
		Scan(&out.Data).Error; err != nil {
		return respondError(c, err, "Could not fetch bulletins")
	}
	out.Page, out.Limit = p.Page, p.Limit
	out.Pages = (out.Total + int64(p.Limit) - 1) / int64(p.Limit)

	cache.Default.SetJSON(c.UserContext(), key, out)
	return c.JSON(out)
}

func GetLatestBulletin(c *fiber.Ctx) error {
	return servePublicBulletin(c, "", cache.KeyLatest)
}

func GetPublicBulletin(c *fiber.Ctx) error {
	date := c.Params("date")
	if _, err := time.Parse(model.DateLayout, date); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid date, expected YYYY-MM-DD"})
	}
	return servePublicBulletin(c, date, cache.BulletinKey(date))
}

func servePublicBulletin(c *fiber.Ctx, date, key string) error {
	var out PublicBulletin
	if cache.Default.GetJSON(c.UserContext(), key, &out) {
		return c.JSON(out)
	}

	b, data, err := bulletinData(date)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Bulletin not found"})
		}
		return respondError(c, err, "Could not fetch bulletin")
	}

	out = toPublic(b, data)
	cache.Default.SetJSON(c.UserContext(), key, out)
	return c.JSON(out)
}

// BulletinPage renders the public web version of a published bulletin.
func BulletinPage(c *fiber.Ctx) error {
	date := c.Params("date")

	_, data, err := bulletinData(date)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.Status(fiber.StatusNotFound)
			return renderView(c, "not_found.html", fiber.Map{"Date": date})
		}
		return respondError(c, err, "Could not render bulletin")
	}

	c.Set(fiber.HeaderCacheControl, "public, max-age=300")
	return renderView(c, "bulletin.html", data)
}

func Health(c *fiber.Ctx) error {
	code, status, dbStatus := fiber.StatusOK, "ok", "ok"
	sqlDB, err := database.GetDB().DB()
	if err == nil {
		err = sqlDB.PingContext(c.UserContext())
	}
	if err != nil {
		code, status, dbStatus = fiber.StatusServiceUnavailable, "degraded", "unavailable"
	}

	return c.Status(code).JSON(fiber.Map{
		"status":   status,
		"database": dbStatus,
		"cache":    cache.Default.Enabled(),
		"time":     time.Now().UTC(),
	})
}
