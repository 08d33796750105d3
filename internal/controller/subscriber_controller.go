package controller

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"ottoseguridad_backend/internal/model"
	"ottoseguridad_backend/pkg/database"
	"ottoseguridad_backend/pkg/email"
	"ottoseguridad_backend/pkg/logger"
	"ottoseguridad_backend/pkg/subscriberscsv"
)

const welcomeEmailTimeout = 30 * time.Second

type NewsletterSubscriptionInput struct {
	Name  string `json:"name" validate:"max=255"`
	Email string `json:"email" validate:"required,email"`
}

type SubscriberInput struct {
	Email  string `json:"email" validate:"required,email"`
	Name   string `json:"name" validate:"max=255"`
	Status string `json:"status" validate:"omitempty,oneof=active unsubscribed bounced"`
}

type SubscriberUpdateInput struct {
	Name   *string `json:"name" validate:"omitempty,max=255"`
	Status *string `json:"status" validate:"omitempty,oneof=active unsubscribed bounced"`
}

// PublicSubscribe signs an address up from the website form. A previously
// unsubscribed address is reactivated.
func PublicSubscribe(c *fiber.Ctx) error {
	var input NewsletterSubscriptionInput
	if err := parseBody(c, &input); err != nil {
		return respondError(c, err, "Invalid input format")
	}

	db := database.GetDB()
	var subscriber model.Subscriber
	err := db.Where("email = ?", model.NormalizeEmail(input.Email)).First(&subscriber).Error
	switch {
	case err == nil && subscriber.Status == model.SubscriberActive:
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "This email is already subscribed",
		})
	case err == nil:
		updates := map[string]interface{}{
			"status":          model.SubscriberActive,
			"unsubscribed_at": nil,
		}
		if input.Name != "" {
			updates["name"] = input.Name
		}
		if err := db.Model(&subscriber).Updates(updates).Error; err != nil {
			return respondError(c, err, "Could not complete subscription")
		}
		subscriber.Status = model.SubscriberActive
		subscriber.UnsubscribedAt = nil
		sendWelcome(subscriber)
		return c.JSON(fiber.Map{
			"message": "Subscription reactivated",
		})
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return respondError(c, err, "Could not complete subscription")
	}

	subscriber = model.Subscriber{
		Email:  input.Email,
		Name:   input.Name,
		Source: model.SubscriberSourceForm,
	}
	if err := db.Create(&subscriber).Error; err != nil {
		return respondError(c, err, "Could not complete subscription")
	}
	sendWelcome(subscriber)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Successfully subscribed to newsletter",
	})
}

func sendWelcome(sub model.Subscriber) {
	if email.GlobalEmailService == nil {
		return
	}
	goBackground(func() {
		ctx, cancel := context.WithTimeout(context.Background(), welcomeEmailTimeout)
		defer cancel()
		if err := email.GlobalEmailService.SendWelcomeEmail(ctx, &sub); err != nil {
			logger.Log.Warn("welcome email failed", "subscriber", sub.ID, "err", err)
		}
	})
}

// Unsubscribe handles the link in every newsletter. Browsers get a small
// confirmation page, API clients get JSON.
func Unsubscribe(c *fiber.Ctx) error {
	token := c.Params("token")

	db := database.GetDB()
	var subscriber model.Subscriber
	if err := db.Where("unsubscribe_token = ?", token).First(&subscriber).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Unknown unsubscribe link",
			})
		}
		return respondError(c, err, "Could not unsubscribe")
	}

	if subscriber.Status != model.SubscriberUnsubscribed {
		now := time.Now()
		if err := db.Model(&subscriber).Updates(map[string]interface{}{
			"status":          model.SubscriberUnsubscribed,
			"unsubscribed_at": now,
		}).Error; err != nil {
			return respondError(c, err, "Could not unsubscribe")
		}
	}

	if c.Accepts(fiber.MIMEApplicationJSON, fiber.MIMETextHTML) == fiber.MIMETextHTML {
		return renderView(c, "unsubscribed.html", fiber.Map{"Email": subscriber.Email})
	}
	return c.JSON(fiber.Map{"message": "You have been unsubscribed"})
}

// ListSubscribers supports ?status=, ?search= and pagination.
func ListSubscribers(c *fiber.Ctx) error {
	p := pagination(c)
	q := database.GetDB().Model(&model.Subscriber{})

	if status := c.Query("status"); status != "" {
		if !model.SubscriberStatus(status).Valid() {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid status"})
		}
		q = q.Where("status = ?", status)
	}
	if search := strings.TrimSpace(c.Query("search")); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		q = q.Where("LOWER(email) LIKE ? OR LOWER(name) LIKE ?", like, like)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return respondError(c, err, "Could not fetch subscribers")
	}

	var subscribers []model.Subscriber
	if err := q.Order("subscribed_at DESC, id DESC").Limit(p.Limit).Offset(p.Offset).Find(&subscribers).Error; err != nil {
		return respondError(c, err, "Could not fetch subscribers")
	}

	return c.JSON(paginated(subscribers, total, p))
}

func CreateSubscriber(c *fiber.Ctx) error {
	input := new(SubscriberInput)
	if err := parseBody(c, input); err != nil {
		return respondError(c, err, "Invalid input")
	}

	db := database.GetDB()
	var count int64
	db.Model(&model.Subscriber{}).Where("email = ?", model.NormalizeEmail(input.Email)).Count(&count)
	if count > 0 {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Subscriber already exists",
		})
	}

	subscriber := model.Subscriber{
		Email:  input.Email,
		Name:   input.Name,
		Status: model.SubscriberStatus(input.Status),
		Source: model.SubscriberSourceAdmin,
	}
	if subscriber.Status == model.SubscriberUnsubscribed {
		now := time.Now()
		subscriber.UnsubscribedAt = &now
	}
	if err := db.Create(&subscriber).Error; err != nil {
		return respondError(c, err, "Could not create subscriber")
	}

	return c.Status(fiber.StatusCreated).JSON(subscriber)
}

func UpdateSubscriber(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return respondError(c, err, "Invalid ID")
	}
	input := new(SubscriberUpdateInput)
	if err := parseBody(c, input); err != nil {
		return respondError(c, err, "Invalid input")
	}

	db := database.GetDB()
	var subscriber model.Subscriber
	if err := db.First(&subscriber, id).Error; err != nil {
		return respondError(c, err, "Could not fetch subscriber")
	}

	updates := map[string]interface{}{}
	if input.Name != nil {
		updates["name"] = *input.Name
	}
	if input.Status != nil && model.SubscriberStatus(*input.Status) != subscriber.Status {
		updates["status"] = *input.Status
		if model.SubscriberStatus(*input.Status) == model.SubscriberActive {
			updates["unsubscribed_at"] = nil
		} else {
			updates["unsubscribed_at"] = time.Now()
		}
	}
	if len(updates) > 0 {
		if err := db.Model(&subscriber).Updates(updates).Error; err != nil {
			return respondError(c, err, "Could not update subscriber")
		}
	}
	if err := db.First(&subscriber, id).Error; err != nil {
		return respondError(c, err, "Could not fetch subscriber")
	}

	return c.JSON(subscriber)
}

func DeleteSubscriber(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return respondError(c, err, "Invalid ID")
	}

	res := database.GetDB().Delete(&model.Subscriber{}, id)
	if res.Error != nil {
		return respondError(c, res.Error, "Could not delete subscriber")
	}
	if res.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Subscriber not found"})
	}

	return c.JSON(fiber.Map{"message": "Subscriber deleted"})
}

// ImportSubscribers reads a CSV upload in the "file" form field.
func ImportSubscribers(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "No file uploaded",
		})
	}

	f, err := file.Open()
	if err != nil {
		return respondError(c, err, "Could not read file")
	}
	defer f.Close()

	result, err := subscriberscsv.Import(database.GetDB(), f)
	if err != nil {
		if errors.Is(err, subscriberscsv.ErrTooManyRows) {
			return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{"error": err.Error()})
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":  "Invalid CSV file",
				"detail": err.Error(),
				"result": result,
			})
		}
		return respondError(c, err, "Could not import subscribers")
	}

	logger.Log.Info("subscribers imported", "imported", result.Imported, "skipped", result.Skipped, "invalid", result.Invalid)
	return c.JSON(result)
}

func ExportSubscribers(c *fiber.Ctx) error {
	status := model.SubscriberStatus(c.Query("status"))
	if status != "" && !status.Valid() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid status"})
	}

	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="subscribers-%s.csv"`, time.Now().Format(model.DateLayout)))

	if err := subscriberscsv.Export(database.GetDB(), c.Response().BodyWriter(), status); err != nil {
		c.Response().ResetBody()
		c.Set(fiber.HeaderContentDisposition, "")
		return respondError(c, err, "Could not export subscribers")
	}
	return nil
}
