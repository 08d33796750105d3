package newsletter

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"ottoseguridad_backend/internal/model"
)

// RecordOpen counts an open for the tracking id. Unknown ids are ignored.
func RecordOpen(db *gorm.DB, trackingID string, at time.Time) error {
	res := db.Model(&model.EmailSend{}).
		Where("tracking_id = ?", trackingID).
		Updates(map[string]interface{}{
			"open_count": gorm.Expr("open_count + 1"),
			"opened_at":  gorm.Expr("COALESCE(opened_at, ?)", at),
		})
	return res.Error
}

// RecordClick stores a click and counts it on the send. A click implies an
// open, so opened_at is filled when missing.
func RecordClick(db *gorm.DB, trackingID, url, ip, userAgent string, at time.Time) error {
	var send model.EmailSend
	err := db.Select("id").Where("tracking_id = ?", trackingID).First(&send).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&model.EmailClick{
			EmailSendID: send.ID,
			URL:         url,
			IP:          ip,
			UserAgent:   truncate(userAgent, 255),
			ClickedAt:   at,
		}).Error; err != nil {
			return err
		}
		return tx.Model(&model.EmailSend{}).Where("id = ?", send.ID).Updates(map[string]interface{}{
			"click_count": gorm.Expr("click_count + 1"),
			"opened_at":   gorm.Expr("COALESCE(opened_at, ?)", at),
		}).Error
	})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
