package controller

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"ottoseguridad_backend/internal/model"
	"ottoseguridad_backend/pkg/database"
	"ottoseguridad_backend/pkg/newsletter"
)

const dashboardDays = 7

// DashboardStats is the summary shown on the dashboard home.
type DashboardStats struct {
	TotalBulletins     int64                 `json:"total_bulletins"`
	PublishedBulletins int64                 `json:"published_bulletins"`
	TotalSubscribers   int64                 `json:"total_subscribers"`
	ActiveSubscribers  int64                 `json:"active_subscribers"`
	NewSubscribers     int64                 `json:"new_subscribers"`
	LatestBulletin     *LatestBulletin       `json:"latest_bulletin"`
	DailyStats         []DailyStat           `json:"daily_stats"`
	FailingSources     []FailingSource       `json:"failing_sources"`
	CategoryStats      []CategoryArticleStat `json:"category_stats"`
}

type LatestBulletin struct {
	ID          uint                 `json:"id"`
	Date        string               `json:"date"`
	Title       string               `json:"title"`
	Status      model.BulletinStatus `json:"status"`
	TotalNews   int                  `json:"total_news"`
	VideoStatus model.VideoStatus    `json:"video_status"`
	Emails      newsletter.SendStats `json:"emails"`
}

type DailyStat struct {
	Date           string `json:"date"`
	NewSubscribers int64  `json:"new_subscribers"`
	EmailsSent     int64  `json:"emails_sent"`
	Opens          int64  `json:"opens"`
	Clicks         int64  `json:"clicks"`
}

type FailingSource struct {
	ID                  uint   `json:"id"`
	Name                string `json:"name"`
	LastError           string `json:"last_error"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
}

type CategoryArticleStat struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

func GetDashboardStats(c *fiber.Ctx) error {
	db := database.GetDB()
	now := time.Now().In(bulletinLocation)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, bulletinLocation)
	since := today.AddDate(0, 0, -(dashboardDays - 1))

	var stats DashboardStats
	db.Model(&model.Bulletin{}).Count(&stats.TotalBulletins)
	db.Model(&model.Bulletin{}).Where("status = ?", model.BulletinPublished).Count(&stats.PublishedBulletins)
	db.Model(&model.Subscriber{}).Count(&stats.TotalSubscribers)
	db.Model(&model.Subscriber{}).Where("status = ?", model.SubscriberActive).Count(&stats.ActiveSubscribers)
	db.Model(&model.Subscriber{}).Where("subscribed_at >= ?", since.UTC()).Count(&stats.NewSubscribers)

	var latest model.Bulletin
	err := db.Select("id", "date", "title", "status", "total_news", "video_status", "classified_news").
		Order("date DESC").First(&latest).Error
	switch {
	case err == nil:
		emails, err := newsletter.BulletinStats(db, latest.ID)
		if err != nil {
			return respondError(c, err, "Could not fetch stats")
		}
		stats.LatestBulletin = &LatestBulletin{
			ID:          latest.ID,
			Date:        latest.Date,
			Title:       latest.Title,
			Status:      latest.Status,
			TotalNews:   latest.TotalNews,
			VideoStatus: latest.VideoStatus,
			Emails:      emails,
		}
		stats.CategoryStats = categoryCounts(&latest)
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return respondError(c, err, "Could not fetch stats")
	}

	for i := 0; i < dashboardDays; i++ {
		from := since.AddDate(0, 0, i)
		to := from.AddDate(0, 0, 1)
		stat := DailyStat{Date: from.Format(model.DateLayout)}

		db.Model(&model.Subscriber{}).
			Where("subscribed_at >= ? AND subscribed_at < ?", from.UTC(), to.UTC()).
			Count(&stat.NewSubscribers)
		db.Model(&model.EmailSend{}).
			Where("status = ? AND sent_at >= ? AND sent_at < ?", model.EmailSent, from.UTC(), to.UTC()).
			Count(&stat.EmailsSent)
		db.Model(&model.EmailSend{}).
			Where("opened_at >= ? AND opened_at < ?", from.UTC(), to.UTC()).
			Count(&stat.Opens)
		db.Model(&model.EmailClick{}).
			Where("clicked_at >= ? AND clicked_at < ?", from.UTC(), to.UTC()).
			Count(&stat.Clicks)

		stats.DailyStats = append(stats.DailyStats, stat)
	}

	var failing []model.Source
	db.Where("consecutive_failures > 0").Order("consecutive_failures DESC").Find(&failing)
	stats.FailingSources = make([]FailingSource, 0, len(failing))
	for _, s := range failing {
		stats.FailingSources = append(stats.FailingSources, FailingSource{
			ID:                  s.ID,
			Name:                s.Name,
			LastError:           s.LastError,
			ConsecutiveFailures: s.ConsecutiveFailures,
		})
	}

	return c.JSON(stats)
}

func categoryCounts(b *model.Bulletin) []CategoryArticleStat {
	classified, err := b.Classified()
	if err != nil {
		return nil
	}
	counts := map[string]int{}
	var order []string
	for _, a := range classified {
		if counts[a.Category] == 0 {
			order = append(order, a.Category)
		}
		counts[a.Category]++
	}
	out := make([]CategoryArticleStat, 0, len(order))
	for _, slug := range order {
		out = append(out, CategoryArticleStat{Category: slug, Count: counts[slug]})
	}
	return out
}
