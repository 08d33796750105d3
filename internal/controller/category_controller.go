package controller

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"ottoseguridad_backend/internal/model"
	"ottoseguridad_backend/pkg/database"
)

type CategoryInput struct {
	Name        string `json:"name" validate:"required,max=100"`
	Slug        string `json:"slug" validate:"max=100"`
	Description string `json:"description"`
	Color       string `json:"color" validate:"omitempty,hexcolor"`
	SortOrder   int    `json:"sort_order"`
	Active      *bool  `json:"active"`
}

func ListCategories(c *fiber.Ctx) error {
	q := database.GetDB().Order("sort_order ASC, id ASC")
	if c.Query("active") == "true" {
		q = q.Where("active = ?", true)
	}

	var categories []model.Category
	if err := q.Find(&categories).Error; err != nil {
		return respondError(c, err, "Could not fetch categories")
	}
	return c.JSON(fiber.Map{"categories": categories})
}

func CreateCategory(c *fiber.Ctx) error {
	input := new(CategoryInput)
	if err := parseBody(c, input); err != nil {
		return respondError(c, err, "Invalid input")
	}

	category := model.Category{
		Name:        input.Name,
		Slug:        input.Slug,
		Description: input.Description,
		Color:       input.Color,
		SortOrder:   input.SortOrder,
		Active:      true,
	}
	db := database.GetDB()
	if err := db.Create(&category).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "A category with this slug already exists",
			})
		}
		return respondError(c, err, "Could not create category")
	}
	// zero values are skipped on insert
	if input.Active != nil && !*input.Active {
		if err := db.Model(&category).Update("active", false).Error; err != nil {
			return respondError(c, err, "Could not create category")
		}
		category.Active = false
	}

	return c.Status(fiber.StatusCreated).JSON(category)
}

func UpdateCategory(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return respondError(c, err, "Invalid ID")
	}
	input := new(CategoryInput)
	if err := parseBody(c, input); err != nil {
		return respondError(c, err, "Invalid input")
	}

	db := database.GetDB()
	var category model.Category
	if err := db.First(&category, id).Error; err != nil {
		return respondError(c, err, "Could not fetch category")
	}

	category.Name = input.Name
	if input.Slug != "" {
		category.Slug = input.Slug
	}
	category.Description = input.Description
	category.Color = input.Color
	category.SortOrder = input.SortOrder
	if input.Active != nil {
		category.Active = *input.Active
	}
	if err := db.Save(&category).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "A category with this slug already exists",
			})
		}
		return respondError(c, err, "Could not update category")
	}

	return c.JSON(category)
}

// DeleteCategory removes a category. The fallback category cannot be
// deleted because the classifier relies on it.
func DeleteCategory(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return respondError(c, err, "Invalid ID")
	}

	db := database.GetDB()
	var category model.Category
	if err := db.First(&category, id).Error; err != nil {
		return respondError(c, err, "Could not fetch category")
	}
	if category.Slug == model.FallbackCategory {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "The fallback category cannot be deleted",
		})
	}
	if err := db.Unscoped().Delete(&category).Error; err != nil {
		return respondError(c, err, "Could not delete category")
	}

	return c.JSON(fiber.Map{"message": "Category deleted"})
}
