// Package newsletter delivers published bulletins to subscribers and keeps
// per-recipient send and tracking records.
package newsletter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"ottoseguridad_backend/internal/model"
	"ottoseguridad_backend/pkg/email"
	"ottoseguridad_backend/pkg/events"
	"ottoseguridad_backend/pkg/logger"
)

var ErrNotPublished = fmt.Errorf("%w: bulletin is not published", model.ErrInvalidTransition)

// Mailer is the part of the email service used for bulletin delivery.
type Mailer interface {
	SendBulletin(ctx context.Context, to string, data email.BulletinEmailData, trackingID string) error
	UnsubscribeURL(token string) string
	AppURL() string
}

type Result struct {
	Total   int `json:"total"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

type Dispatcher struct {
	db          *gorm.DB
	mailer      Mailer
	events      events.Publisher
	concurrency int
	now         func() time.Time
}

func NewDispatcher(db *gorm.DB, mailer Mailer, pub events.Publisher, concurrency int) *Dispatcher {
	if concurrency <= 0 {
		concurrency = 4
	}
	if pub == nil {
		pub = &events.NATSPublisher{}
	}
	return &Dispatcher{db: db, mailer: mailer, events: pub, concurrency: concurrency, now: time.Now}
}

// Dispatch sends a published bulletin to every active subscriber that has not
// received it yet. Failed sends are retried on the next call.
func (d *Dispatcher) Dispatch(ctx context.Context, bulletinID uint) (Result, error) {
	var res Result

	bulletin, data, err := d.load(bulletinID)
	if err != nil {
		return res, err
	}
	if bulletin.Status != model.BulletinPublished {
		return res, ErrNotPublished
	}

	var subscribers []model.Subscriber
	if err := d.db.Where("status = ?", model.SubscriberActive).Order("id").Find(&subscribers).Error; err != nil {
		return res, fmt.Errorf("load subscribers: %w", err)
	}
	res.Total = len(subscribers)

	var existing []model.EmailSend
	if err := d.db.Where("bulletin_id = ?", bulletinID).Find(&existing).Error; err != nil {
		return res, fmt.Errorf("load sends: %w", err)
	}
	sends := make(map[uint]model.EmailSend, len(existing))
	for _, s := range existing {
		sends[s.SubscriberID] = s
	}

	type job struct {
		send       model.EmailSend
		subscriber model.Subscriber
	}
	var jobs []job
	for _, sub := range subscribers {
		send, ok := sends[sub.ID]
		if ok && send.Status == model.EmailSent {
			res.Skipped++
			continue
		}
		if !ok {
			send, err = d.ensureSend(bulletinID, sub.ID)
			if err != nil {
				return res, err
			}
		}
		claimed, err := d.claim(send.ID)
		if err != nil {
			return res, err
		}
		if !claimed {
			// sent already or owned by another dispatch
			res.Skipped++
			continue
		}
		jobs = append(jobs, job{send: send, subscriber: sub})
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for _, j := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			msg := data
			msg.UnsubscribeURL = d.mailer.UnsubscribeURL(j.subscriber.UnsubscribeToken)

			sendErr := d.mailer.SendBulletin(gctx, j.subscriber.Email, msg, j.send.TrackingID)
			if err := d.record(j.send.ID, sendErr); err != nil {
				logger.Log.Error("failed to record email send", "send_id", j.send.ID, "err", err)
			}

			mu.Lock()
			if sendErr != nil {
				res.Failed++
			} else {
				res.Sent++
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}

	if res.Sent > 0 {
		now := d.now()
		if err := d.db.Model(&model.Bulletin{}).Where("id = ?", bulletinID).Update("email_sent_at", now).Error; err != nil {
			return res, fmt.Errorf("mark bulletin sent: %w", err)
		}
	}

	logger.Log.Info("newsletter dispatched", "bulletin", bulletin.Date,
		"total", res.Total, "sent", res.Sent, "failed", res.Failed, "skipped", res.Skipped)
	if err := d.events.Publish(events.SubjectNewsletterSent, events.NewsletterEvent{
		BulletinID: bulletinID,
		Sent:       res.Sent,
		Failed:     res.Failed,
		Skipped:    res.Skipped,
		At:         d.now().UTC(),
	}); err != nil {
		logger.Log.Warn("newsletter event not published", "err", err)
	}
	return res, nil
}

// ensureSend returns the send row for a subscriber, creating it when missing.
func (d *Dispatcher) ensureSend(bulletinID, subscriberID uint) (model.EmailSend, error) {
	send := model.EmailSend{BulletinID: bulletinID, SubscriberID: subscriberID, Status: model.EmailPending}
	err := d.db.Create(&send).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		send = model.EmailSend{}
		err = d.db.Where("bulletin_id = ? AND subscriber_id = ?", bulletinID, subscriberID).First(&send).Error
	}
	if err != nil {
		return send, fmt.Errorf("create send for subscriber %d: %w", subscriberID, err)
	}
	return send, nil
}

// claim moves a pending or failed send to sending. Only the caller whose
// update matched the row may deliver it.
func (d *Dispatcher) claim(sendID uint) (bool, error) {
	res := d.db.Model(&model.EmailSend{}).
		Where("id = ? AND status IN ?", sendID, []model.EmailSendStatus{model.EmailPending, model.EmailFailed}).
		Update("status", model.EmailSending)
	if res.Error != nil {
		return false, fmt.Errorf("claim send %d: %w", sendID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// ReleaseStale marks sends left in the sending state by a stopped process as
// failed so the next dispatch retries them.
func (d *Dispatcher) ReleaseStale() (int64, error) {
	res := d.db.Model(&model.EmailSend{}).
		Where("status = ?", model.EmailSending).
		Updates(map[string]interface{}{"status": model.EmailFailed, "error": "interrupted"})
	return res.RowsAffected, res.Error
}

func (d *Dispatcher) record(sendID uint, sendErr error) error {
	updates := map[string]interface{}{}
	if sendErr != nil {
		updates["status"] = model.EmailFailed
		updates["error"] = sendErr.Error()
	} else {
		updates["status"] = model.EmailSent
		updates["error"] = ""
		updates["sent_at"] = d.now()
	}
	return d.db.Model(&model.EmailSend{}).Where("id = ?", sendID).Updates(updates).Error
}

// SendTest delivers the bulletin to a single address without tracking or
// send records. Any bulletin with classified news can be previewed.
func (d *Dispatcher) SendTest(ctx context.Context, bulletinID uint, to string) error {
	bulletin, data, err := d.load(bulletinID)
	if err != nil {
		return err
	}
	if bulletin.Status != model.BulletinReady && bulletin.Status != model.BulletinPublished {
		return fmt.Errorf("%w: test send needs a ready bulletin, got %s", model.ErrInvalidTransition, bulletin.Status)
	}
	return d.mailer.SendBulletin(ctx, to, data, "")
}

func (d *Dispatcher) load(bulletinID uint) (*model.Bulletin, email.BulletinEmailData, error) {
	var bulletin model.Bulletin
	if err := d.db.First(&bulletin, bulletinID).Error; err != nil {
		return nil, email.BulletinEmailData{}, fmt.Errorf("load bulletin %d: %w", bulletinID, err)
	}
	var categories []model.Category
	if err := d.db.Where("active = ?", true).Order("sort_order, name").Find(&categories).Error; err != nil {
		return nil, email.BulletinEmailData{}, fmt.Errorf("load categories: %w", err)
	}
	data, err := email.NewBulletinData(&bulletin, categories, d.mailer.AppURL())
	if err != nil {
		return nil, email.BulletinEmailData{}, err
	}
	return &bulletin, data, nil
}
