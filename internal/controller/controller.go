package controller

import (
	"errors"
	"strconv"
	"sync"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"ottoseguridad_backend/internal/model"
	"ottoseguridad_backend/pkg/ai"
	"ottoseguridad_backend/pkg/email"
	"ottoseguridad_backend/pkg/logger"
	"ottoseguridad_backend/pkg/pipeline"
	"ottoseguridad_backend/pkg/scraper"
	"ottoseguridad_backend/pkg/storage"
	"ottoseguridad_backend/pkg/utils/validation"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// background tracks goroutines started by handlers, e.g. newsletter sends.
var background sync.WaitGroup

// WaitBackground blocks until handler-started goroutines finish.
func WaitBackground() {
	background.Wait()
}

func goBackground(fn func()) {
	background.Add(1)
	go func() {
		defer background.Done()
		fn()
	}()
}

func parseID(c *fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil || id == 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "Invalid ID")
	}
	return uint(id), nil
}

type page struct {
	Page   int
	Limit  int
	Offset int
}

func pagination(c *fiber.Ctx) page {
	p := c.QueryInt("page", 1)
	if p < 1 {
		p = 1
	}
	limit := c.QueryInt("limit", defaultPageSize)
	if limit < 1 || limit > maxPageSize {
		limit = defaultPageSize
	}
	return page{Page: p, Limit: limit, Offset: (p - 1) * limit}
}

func paginated(items interface{}, total int64, p page) fiber.Map {
	pages := (total + int64(p.Limit) - 1) / int64(p.Limit)
	return fiber.Map{
		"data":  items,
		"total": total,
		"page":  p.Page,
		"limit": p.Limit,
		"pages": pages,
	}
}

// parseBody decodes the request body into v and runs its validate tags.
func parseBody(c *fiber.Ctx, v interface{}) error {
	if err := c.BodyParser(v); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid input")
	}
	return validation.Struct(v)
}

// respondError maps domain errors to a status and a JSON error body.
// Unexpected errors are logged and reported with fallback.
func respondError(c *fiber.Ctx, err error, fallback string) error {
	var (
		fe    *fiber.Error
		verrs validation.Errors
	)
	switch {
	case errors.As(err, &fe):
		return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
	case errors.As(err, &verrs):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":  "Validation failed",
			"fields": verrs,
		})
	case errors.Is(err, gorm.ErrRecordNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Not found"})
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Already exists"})
	case errors.Is(err, pipeline.ErrBusy), errors.Is(err, model.ErrInvalidTransition):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, pipeline.ErrNoArticles), errors.Is(err, pipeline.ErrNoSources):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, pipeline.ErrVideoNotConfigured),
		errors.Is(err, storage.ErrNotConfigured),
		errors.Is(err, email.ErrNotConfigured),
		errors.Is(err, scraper.ErrNotConfigured),
		errors.Is(err, ai.ErrNotConfigured):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
	}

	logger.Log.Error(fallback, "method", c.Method(), "path", c.Path(), "err", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": fallback})
}

// ErrorHandler renders errors that escape the handlers.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}
	if code >= fiber.StatusInternalServerError {
		logger.Log.Error("unhandled error", "path", c.Path(), "err", err)
		return c.Status(code).JSON(fiber.Map{"error": "Internal server error"})
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
