package controller

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"ottoseguridad_backend/internal/model"
	"ottoseguridad_backend/pkg/database"
	"ottoseguridad_backend/pkg/email"
)

type TemplateInput struct {
	Subject string `json:"subject" validate:"required,max=255"`
	HTML    string `json:"html" validate:"required"`
	Active  *bool  `json:"active"`
}

// TemplateView is a template as the dashboard sees it: the stored override
// or the built-in default.
type TemplateView struct {
	Name       string `json:"name"`
	Subject    string `json:"subject"`
	HTML       string `json:"html"`
	Active     bool   `json:"active"`
	Overridden bool   `json:"overridden"`
}

func knownTemplate(name string) bool {
	for _, n := range email.DefaultTemplateNames() {
		if n == name {
			return true
		}
	}
	return false
}

func templateView(name string, stored *model.Template) TemplateView {
	if stored != nil {
		return TemplateView{Name: name, Subject: stored.Subject, HTML: stored.HTML, Active: stored.Active, Overridden: true}
	}
	subject, body, _ := email.DefaultTemplate(name)
	return TemplateView{Name: name, Subject: subject, HTML: body, Active: true}
}

func ListTemplates(c *fiber.Ctx) error {
	var stored []model.Template
	if err := database.GetDB().Find(&stored).Error; err != nil {
		return respondError(c, err, "Could not fetch templates")
	}
	byName := make(map[string]*model.Template, len(stored))
	for i := range stored {
		byName[stored[i].Name] = &stored[i]
	}

	views := make([]TemplateView, 0, len(email.DefaultTemplateNames()))
	for _, name := range email.DefaultTemplateNames() {
		views = append(views, templateView(name, byName[name]))
	}
	return c.JSON(fiber.Map{"templates": views})
}

func GetTemplate(c *fiber.Ctx) error {
	name := c.Params("name")
	if !knownTemplate(name) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Template not found"})
	}

	var stored model.Template
	err := database.GetDB().Where("name = ?", name).First(&stored).Error
	switch {
	case err == nil:
		return c.JSON(templateView(name, &stored))
	case errors.Is(err, gorm.ErrRecordNotFound):
		return c.JSON(templateView(name, nil))
	default:
		return respondError(c, err, "Could not fetch template")
	}
}

// UpsertTemplate stores an override after checking it parses.
func UpsertTemplate(c *fiber.Ctx) error {
	name := c.Params("name")
	if !knownTemplate(name) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Template not found"})
	}
	input := new(TemplateInput)
	if err := parseBody(c, input); err != nil {
		return respondError(c, err, "Invalid input")
	}
	if err := email.ValidateTemplate(input.Subject, input.HTML); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":  "Template does not parse",
			"detail": err.Error(),
		})
	}

	active := true
	if input.Active != nil {
		active = *input.Active
	}

	db := database.GetDB()
	var stored model.Template
	err := db.Where("name = ?", name).First(&stored).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		stored = model.Template{Name: name, Subject: input.Subject, HTML: input.HTML, Active: true}
		if err := db.Create(&stored).Error; err != nil {
			return respondError(c, err, "Could not save template")
		}
	case err != nil:
		return respondError(c, err, "Could not fetch template")
	default:
		stored.Subject = input.Subject
		stored.HTML = input.HTML
		if err := db.Save(&stored).Error; err != nil {
			return respondError(c, err, "Could not save template")
		}
	}
	if stored.Active != active {
		if err := db.Model(&stored).Update("active", active).Error; err != nil {
			return respondError(c, err, "Could not save template")
		}
		stored.Active = active
	}

	return c.JSON(templateView(name, &stored))
}

// DeleteTemplate drops the override so the built-in template is used again.
func DeleteTemplate(c *fiber.Ctx) error {
	name := c.Params("name")
	res := database.GetDB().Unscoped().Where("name = ?", name).Delete(&model.Template{})
	if res.Error != nil {
		return respondError(c, res.Error, "Could not delete template")
	}
	if res.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Template not found"})
	}
	return c.JSON(fiber.Map{"message": "Template reset to default"})
}
