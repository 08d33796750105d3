package controller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"ottoseguridad_backend/internal/middleware"
	"ottoseguridad_backend/internal/model"
	"ottoseguridad_backend/pkg/cache"
	"ottoseguridad_backend/pkg/database"
	"ottoseguridad_backend/pkg/logger"
	"ottoseguridad_backend/pkg/newsletter"
	"ottoseguridad_backend/pkg/pipeline"
)

// NewsletterSender delivers bulletins by email.
type NewsletterSender interface {
	Dispatch(ctx context.Context, bulletinID uint) (newsletter.Result, error)
	SendTest(ctx context.Context, bulletinID uint, to string) error
}

var (
	newsletterSender NewsletterSender
	sendTimeout      = time.Hour
	bulletinLocation = time.UTC

	sendingMu sync.Mutex
	sending   = map[uint]bool{}
)

// InitBulletinController sets the newsletter sender and the time zone used
// to pick "today" for new bulletins.
func InitBulletinController(sender NewsletterSender, loc *time.Location, timeout time.Duration) {
	newsletterSender = sender
	if loc != nil {
		bulletinLocation = loc
	}
	if timeout > 0 {
		sendTimeout = timeout
	}
}

type BulletinCreateInput struct {
	Date  string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Title string `json:"title" validate:"max=255"`
}

type BulletinUpdateInput struct {
	Title           *string           `json:"title" validate:"omitempty,max=255"`
	HeadlineSummary *string           `json:"headline_summary"`
	Summaries       map[string]string `json:"summaries"`
}

type PublishInput struct {
	SendEmail bool `json:"send_email"`
}

type SendTestInput struct {
	Email string `json:"email" validate:"required,email"`
}

// bulletinListColumns leaves out the article payloads.
var bulletinListColumns = []string{
	"id", "created_at", "updated_at", "date", "title", "status", "total_news",
	"video_status", "video_url", "published_at", "email_sent_at", "created_by_id",
}

func ListBulletins(c *fiber.Ctx) error {
	p := pagination(c)
	q := database.GetDB().Model(&model.Bulletin{})
	if status := c.Query("status"); status != "" {
		q = q.Where("status = ?", status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return respondError(c, err, "Could not fetch bulletins")
	}

	var bulletins []model.Bulletin
	if err := q.Select(bulletinListColumns).Order("date DESC").Limit(p.Limit).Offset(p.Offset).Find(&bulletins).Error; err != nil {
		return respondError(c, err, "Could not fetch bulletins")
	}

	return c.JSON(paginated(bulletins, total, p))
}

// CreateBulletin opens a draft for the given date, today by default.
func CreateBulletin(c *fiber.Ctx) error {
	input := new(BulletinCreateInput)
	if len(c.Body()) > 0 {
		if err := parseBody(c, input); err != nil {
			return respondError(c, err, "Invalid input")
		}
	}
	if input.Date == "" {
		input.Date = time.Now().In(bulletinLocation).Format(model.DateLayout)
	}

	db := database.GetDB()
	var count int64
	db.Unscoped().Model(&model.Bulletin{}).Where("date = ?", input.Date).Count(&count)
	if count > 0 {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "A bulletin for this date already exists",
		})
	}

	uid := middleware.Claims(c).UserID
	bulletin := model.Bulletin{
		Date:        input.Date,
		Title:       input.Title,
		Status:      model.BulletinDraft,
		VideoStatus: model.VideoNone,
		CreatedByID: &uid,
	}
	if err := db.Create(&bulletin).Error; err != nil {
		return respondError(c, err, "Could not create bulletin")
	}

	return c.Status(fiber.StatusCreated).JSON(bulletin)
}

func GetBulletin(c *fiber.Ctx) error {
	bulletin, err := findBulletin(c)
	if err != nil {
		return respondError(c, err, "Could not fetch bulletin")
	}

	step, running := runningStep(bulletin.ID)
	return c.JSON(fiber.Map{
		"bulletin": bulletin,
		"errors":   bulletin.Errors(),
		"running":  running,
		"step":     step,
	})
}

// UpdateBulletin lets editors fix the title, headline and category
// summaries. Summaries replace the stored map when given.
func UpdateBulletin(c *fiber.Ctx) error {
	bulletin, err := findBulletin(c)
	if err != nil {
		return respondError(c, err, "Could not fetch bulletin")
	}
	if _, running := runningStep(bulletin.ID); running {
		return respondError(c, pipeline.ErrBusy, "")
	}

	input := new(BulletinUpdateInput)
	if err := parseBody(c, input); err != nil {
		return respondError(c, err, "Invalid input")
	}

	columns := []string{}
	if input.Title != nil {
		bulletin.Title = *input.Title
		columns = append(columns, "title")
	}
	if input.HeadlineSummary != nil {
		bulletin.HeadlineSummary = *input.HeadlineSummary
		columns = append(columns, "headline_summary")
	}
	if input.Summaries != nil {
		if err := bulletin.SetSummaries(input.Summaries); err != nil {
			return respondError(c, err, "Could not update bulletin")
		}
		columns = append(columns, "summaries")
	}
	if len(columns) > 0 {
		if err := database.GetDB().Model(bulletin).Select(columns).Updates(bulletin).Error; err != nil {
			return respondError(c, err, "Could not update bulletin")
		}
		cache.Default.InvalidateBulletin(c.UserContext(), bulletin.Date)
	}

	return c.JSON(bulletin)
}

// DeleteBulletin removes the bulletin together with its send records.
func DeleteBulletin(c *fiber.Ctx) error {
	bulletin, err := findBulletin(c)
	if err != nil {
		return respondError(c, err, "Could not fetch bulletin")
	}
	if _, running := runningStep(bulletin.ID); running || isSending(bulletin.ID) {
		return respondError(c, pipeline.ErrBusy, "")
	}

	err = database.GetDB().Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("email_send_id IN (?)",
			tx.Model(&model.EmailSend{}).Select("id").Where("bulletin_id = ?", bulletin.ID),
		).Delete(&model.EmailClick{}).Error; err != nil {
			return err
		}
		if err := tx.Where("bulletin_id = ?", bulletin.ID).Delete(&model.EmailSend{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Delete(bulletin).Error
	})
	if err != nil {
		return respondError(c, err, "Could not delete bulletin")
	}
	cache.Default.InvalidateBulletin(c.UserContext(), bulletin.Date)

	return c.JSON(fiber.Map{"message": "Bulletin deleted"})
}

// GetBulletinStatus is polled by the dashboard while a job runs.
func GetBulletinStatus(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return respondError(c, err, "Invalid ID")
	}

	var bulletin model.Bulletin
	if err := database.GetDB().
		Select("id", "date", "status", "video_status", "video_url", "total_news", "error_log", "published_at", "email_sent_at").
		First(&bulletin, id).Error; err != nil {
		return respondError(c, err, "Could not fetch bulletin")
	}

	step, running := runningStep(id)
	return c.JSON(fiber.Map{
		"id":            bulletin.ID,
		"date":          bulletin.Date,
		"status":        bulletin.Status,
		"video_status":  bulletin.VideoStatus,
		"video_url":     bulletin.VideoURL,
		"total_news":    bulletin.TotalNews,
		"errors":        bulletin.Errors(),
		"published_at":  bulletin.PublishedAt,
		"email_sent_at": bulletin.EmailSentAt,
		"running":       running,
		"step":          step,
		"sending":       isSending(id),
	})
}

// StartStep returns a handler that queues a pipeline job for the bulletin.
func StartStep(step pipeline.Step) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseID(c)
		if err != nil {
			return respondError(c, err, "Invalid ID")
		}
		if err := pipeline.Default.Start(id, step); err != nil {
			return respondError(c, err, "Could not start job")
		}

		logger.Log.Info("pipeline job queued", "bulletin", id, "step", step, "user", middleware.Claims(c).UserID)
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"message": "Job started",
			"step":    step,
		})
	}
}

// PublishBulletin makes a ready bulletin public and optionally starts the
// newsletter send in the background.
func PublishBulletin(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return respondError(c, err, "Invalid ID")
	}
	input := new(PublishInput)
	if len(c.Body()) > 0 {
		if err := parseBody(c, input); err != nil {
			return respondError(c, err, "Invalid input")
		}
	}
	if _, err := pipeline.Default.Publish(c.UserContext(), id, false); err != nil {
		return respondError(c, err, "Could not publish bulletin")
	}

	sendStarted := false
	if input.SendEmail {
		sendStarted = startSend(id) == nil
	}

	var bulletin model.Bulletin
	if err := database.GetDB().Select(bulletinListColumns).First(&bulletin, id).Error; err != nil {
		return respondError(c, err, "Could not fetch bulletin")
	}
	return c.JSON(fiber.Map{
		"message":      "Bulletin published",
		"bulletin":     bulletin,
		"send_started": sendStarted,
	})
}

// SendBulletin emails a published bulletin to every active subscriber that
// has not received it yet.
func SendBulletin(c *fiber.Ctx) error {
	bulletin, err := findBulletin(c)
	if err != nil {
		return respondError(c, err, "Could not fetch bulletin")
	}
	if bulletin.Status != model.BulletinPublished {
		return respondError(c, newsletter.ErrNotPublished, "")
	}
	if err := startSend(bulletin.ID); err != nil {
		return respondError(c, err, "Could not start send")
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"message": "Newsletter send started",
	})
}

func SendTestBulletin(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return respondError(c, err, "Invalid ID")
	}
	input := new(SendTestInput)
	if err := parseBody(c, input); err != nil {
		return respondError(c, err, "Invalid input")
	}
	if newsletterSender == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "Email is not configured"})
	}

	if err := newsletterSender.SendTest(c.UserContext(), id, input.Email); err != nil {
		return respondError(c, err, "Could not send test email")
	}
	return c.JSON(fiber.Map{"message": "Test email sent to " + input.Email})
}

// GetBulletinEmails returns delivery stats and a page of send records.
func GetBulletinEmails(c *fiber.Ctx) error {
	bulletin, err := findBulletin(c)
	if err != nil {
		return respondError(c, err, "Could not fetch bulletin")
	}

	db := database.GetDB()
	stats, err := newsletter.BulletinStats(db, bulletin.ID)
	if err != nil {
		return respondError(c, err, "Could not fetch send stats")
	}

	p := pagination(c)
	q := db.Model(&model.EmailSend{}).Where("bulletin_id = ?", bulletin.ID)
	if status := c.Query("status"); status != "" {
		q = q.Where("status = ?", status)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return respondError(c, err, "Could not fetch sends")
	}
	var sends []model.EmailSend
	if err := q.Preload("Subscriber").Order("id ASC").Limit(p.Limit).Offset(p.Offset).Find(&sends).Error; err != nil {
		return respondError(c, err, "Could not fetch sends")
	}

	return c.JSON(fiber.Map{
		"stats":   stats,
		"sending": isSending(bulletin.ID),
		"sends":   paginated(sends, total, p),
	})
}

func findBulletin(c *fiber.Ctx) (*model.Bulletin, error) {
	id, err := parseID(c)
	if err != nil {
		return nil, err
	}
	var bulletin model.Bulletin
	if err := database.GetDB().First(&bulletin, id).Error; err != nil {
		return nil, err
	}
	return &bulletin, nil
}

func runningStep(id uint) (pipeline.Step, bool) {
	if pipeline.Default == nil {
		return "", false
	}
	return pipeline.Default.Running(id)
}

var errSendInProgress = errors.New("a newsletter send is already running for this bulletin")

func isSending(id uint) bool {
	sendingMu.Lock()
	defer sendingMu.Unlock()
	return sending[id]
}

// startSend runs Dispatch in the background. One send per bulletin at a time.
func startSend(id uint) error {
	if newsletterSender == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "Email is not configured")
	}

	sendingMu.Lock()
	if sending[id] {
		sendingMu.Unlock()
		return fiber.NewError(fiber.StatusConflict, errSendInProgress.Error())
	}
	sending[id] = true
	sendingMu.Unlock()

	goBackground(func() {
		defer func() {
			sendingMu.Lock()
			delete(sending, id)
			sendingMu.Unlock()
		}()

		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()

		res, err := newsletterSender.Dispatch(ctx, id)
		if err != nil {
			logger.Log.Error("newsletter send failed", "bulletin", id, "err", err)
			return
		}
		logger.Log.Info("newsletter send finished", "bulletin", id, "sent", res.Sent, "failed", res.Failed, "skipped", res.Skipped)
	})
	return nil
}
