package newsletter

import (
	"time"

	"gorm.io/gorm"

	"ottoseguridad_backend/internal/model"
	"ottoseguridad_backend/pkg/email"
)

// SendStats summarizes the deliveries of one bulletin.
type SendStats struct {
	Total     int64   `json:"total"`
	Sent      int64   `json:"sent"`
	Failed    int64   `json:"failed"`
	Pending   int64   `json:"pending"`
	Opened    int64   `json:"opened"`
	Clicks    int64   `json:"clicks"`
	OpenRate  float64 `json:"open_rate"`
	ClickRate float64 `json:"click_rate"`
}

func BulletinStats(db *gorm.DB, bulletinID uint) (SendStats, error) {
	var s SendStats
	q := func() *gorm.DB { return db.Model(&model.EmailSend{}).Where("bulletin_id = ?", bulletinID) }

	if err := q().Count(&s.Total).Error; err != nil {
		return s, err
	}
	if err := q().Where("status = ?", model.EmailSent).Count(&s.Sent).Error; err != nil {
		return s, err
	}
	if err := q().Where("status = ?", model.EmailFailed).Count(&s.Failed).Error; err != nil {
		return s, err
	}
	s.Pending = s.Total - s.Sent - s.Failed
	if err := q().Where("opened_at IS NOT NULL").Count(&s.Opened).Error; err != nil {
		return s, err
	}
	if err := q().Select("COALESCE(SUM(click_count), 0)").Scan(&s.Clicks).Error; err != nil {
		return s, err
	}
	if s.Sent > 0 {
		s.OpenRate = float64(s.Opened) / float64(s.Sent)
		var clickedSends int64
		if err := q().Where("click_count > 0").Count(&clickedSends).Error; err != nil {
			return s, err
		}
		s.ClickRate = float64(clickedSends) / float64(s.Sent)
	}
	return s, nil
}

// DailyReport gathers the admin stats email for the day starting at from.
func DailyReport(db *gorm.DB, from time.Time) (email.DailyStatsData, error) {
	to := from.AddDate(0, 0, 1)
	data := email.DailyStatsData{Date: from.Format(model.DateLayout)}

	var bulletin model.Bulletin
	if err := db.Where("date = ? AND status = ?", data.Date, model.BulletinPublished).Limit(1).Find(&bulletin).Error; err != nil {
		return data, err
	}
	data.BulletinTitle = bulletin.Title

	sends := func() *gorm.DB {
		return db.Model(&model.EmailSend{}).Where("sent_at >= ? AND sent_at < ?", from, to)
	}
	if err := sends().Where("status = ?", model.EmailSent).Count(&data.Sent).Error; err != nil {
		return data, err
	}
	if err := db.Model(&model.EmailSend{}).
		Where("status = ? AND created_at >= ? AND created_at < ?", model.EmailFailed, from, to).
		Count(&data.Failed).Error; err != nil {
		return data, err
	}
	if err := db.Model(&model.EmailSend{}).Where("opened_at >= ? AND opened_at < ?", from, to).Count(&data.Opened).Error; err != nil {
		return data, err
	}
	if err := db.Model(&model.EmailClick{}).Where("clicked_at >= ? AND clicked_at < ?", from, to).Count(&data.Clicks).Error; err != nil {
		return data, err
	}
	if err := db.Model(&model.Subscriber{}).Where("subscribed_at >= ? AND subscribed_at < ?", from, to).Count(&data.NewSubscribers).Error; err != nil {
		return data, err
	}
	if err := db.Model(&model.Subscriber{}).Where("status = ?", model.SubscriberActive).Count(&data.ActiveSubscribers).Error; err != nil {
		return data, err
	}
	return data, nil
}
