package controller

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"ottoseguridad_backend/internal/model"
	"ottoseguridad_backend/pkg/database"
	"ottoseguridad_backend/pkg/pipeline"
)

const sourcePreviewTimeout = 2 * time.Minute

type SourceInput struct {
	Name        string `json:"name" validate:"required,max=255"`
	URL         string `json:"url" validate:"required,http_url"`
	MaxArticles int    `json:"max_articles" validate:"omitempty,min=1,max=100"`
	Active      *bool  `json:"active"`
}

func ListSources(c *fiber.Ctx) error {
	var sources []model.Source
	if err := database.GetDB().Order("name ASC").Find(&sources).Error; err != nil {
		return respondError(c, err, "Could not fetch sources")
	}
	return c.JSON(fiber.Map{"sources": sources})
}

func CreateSource(c *fiber.Ctx) error {
	input := new(SourceInput)
	if err := parseBody(c, input); err != nil {
		return respondError(c, err, "Invalid input")
	}

	db := database.GetDB()
	var count int64
	db.Model(&model.Source{}).Where("url = ?", input.URL).Count(&count)
	if count > 0 {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "A source with this URL already exists",
		})
	}

	source := model.Source{Name: input.Name, URL: input.URL, MaxArticles: input.MaxArticles, Active: true}
	if source.MaxArticles == 0 {
		source.MaxArticles = 15
	}
	if err := db.Create(&source).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "A source with this URL already exists",
			})
		}
		return respondError(c, err, "Could not create source")
	}
	if input.Active != nil && !*input.Active {
		if err := db.Model(&source).Update("active", false).Error; err != nil {
			return respondError(c, err, "Could not create source")
		}
		source.Active = false
	}

	return c.Status(fiber.StatusCreated).JSON(source)
}

func UpdateSource(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return respondError(c, err, "Invalid ID")
	}
	input := new(SourceInput)
	if err := parseBody(c, input); err != nil {
		return respondError(c, err, "Invalid input")
	}

	db := database.GetDB()
	var source model.Source
	if err := db.First(&source, id).Error; err != nil {
		return respondError(c, err, "Could not fetch source")
	}

	source.Name = input.Name
	source.URL = input.URL
	if input.MaxArticles > 0 {
		source.MaxArticles = input.MaxArticles
	}
	if input.Active != nil {
		source.Active = *input.Active
	}
	if err := db.Save(&source).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "A source with this URL already exists",
			})
		}
		return respondError(c, err, "Could not update source")
	}

	return c.JSON(source)
}

func DeleteSource(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return respondError(c, err, "Invalid ID")
	}

	res := database.GetDB().Unscoped().Delete(&model.Source{}, id)
	if res.Error != nil {
		return respondError(c, res.Error, "Could not delete source")
	}
	if res.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Source not found"})
	}

	return c.JSON(fiber.Map{"message": "Source deleted"})
}

// TestSource scrapes one source without touching any bulletin and returns
// the articles that would pass the filter.
func TestSource(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return respondError(c, err, "Invalid ID")
	}

	var source model.Source
	if err := database.GetDB().First(&source, id).Error; err != nil {
		return respondError(c, err, "Could not fetch source")
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), sourcePreviewTimeout)
	defer cancel()

	articles, err := pipeline.Default.PreviewSource(ctx, &source)
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error":  "Scrape failed",
			"detail": err.Error(),
			"source": source,
		})
	}

	return c.JSON(fiber.Map{
		"source":   source,
		"articles": articles,
		"count":    len(articles),
	})
}
