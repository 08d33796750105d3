// Package seed inserts the rows a fresh installation needs.
package seed

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"ottoseguridad_backend/internal/model"
	"ottoseguridad_backend/pkg/config"
	"ottoseguridad_backend/pkg/email"
	"ottoseguridad_backend/pkg/logger"
)

var DefaultCategories = []model.Category{
	{Name: "Homicidios", Slug: "homicidios", Color: "#b91c1c", SortOrder: 1,
		Description: "Asesinatos, sicariatos y muertes violentas"},
	{Name: "Robos", Slug: "robos", Color: "#c2410c", SortOrder: 2,
		Description: "Robos, asaltos, hurtos y secuestros express"},
	{Name: "Narcotráfico", Slug: "narcotrafico", Color: "#7c3aed", SortOrder: 3,
		Description: "Tráfico de drogas, decomisos y operativos antinarcóticos"},
	{Name: "Crimen organizado", Slug: "crimen-organizado", Color: "#1d4ed8", SortOrder: 4,
		Description: "Bandas, extorsiones, cárceles y grupos armados"},
	{Name: "Operativos policiales", Slug: "operativos", Color: "#0f766e", SortOrder: 5,
		Description: "Capturas, allanamientos y acciones de la Policía y las Fuerzas Armadas"},
	{Name: "Seguridad vial", Slug: "seguridad-vial", Color: "#ca8a04", SortOrder: 6,
		Description: "Accidentes de tránsito y controles en carreteras"},
	{Name: "Otros", Slug: model.FallbackCategory, Color: "#6b7280", SortOrder: 99,
		Description: "Otras noticias de seguridad"},
}

var DefaultSources = []model.Source{
	{Name: "El Universo", URL: "https://www.eluniverso.com/noticias/seguridad/", MaxArticles: 15},
	{Name: "El Comercio", URL: "https://www.elcomercio.com/actualidad/seguridad/", MaxArticles: 15},
	{Name: "Primicias", URL: "https://www.primicias.ec/seguridad/", MaxArticles: 15},
	{Name: "Expreso", URL: "https://www.expreso.ec/actualidad/sucesos", MaxArticles: 10},
	{Name: "Extra", URL: "https://www.extra.ec/noticia/cronica", MaxArticles: 10},
}

// Run seeds the admin user, categories, sources and email templates. Rows
// that already exist are left alone.
func Run(db *gorm.DB, cfg config.SeedConfig) error {
	if err := SeedAdmin(db, cfg); err != nil {
		return err
	}
	SeedCategories(db)
	SeedSources(db)
	SeedTemplates(db)
	return nil
}

// SeedAdmin creates the first admin when no admin exists. Without
// ADMIN_PASSWORD the step is skipped.
func SeedAdmin(db *gorm.DB, cfg config.SeedConfig) error {
	var count int64
	if err := db.Model(&model.User{}).Where("role = ?", model.RoleAdmin).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	if cfg.AdminPassword == "" {
		logger.Log.Warn("no admin user and ADMIN_PASSWORD is empty, skipping admin seed")
		return nil
	}
	if len(cfg.AdminPassword) < 8 {
		return errors.New("ADMIN_PASSWORD must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	return db.Transaction(func(tx *gorm.DB) error {
		user := &model.User{Email: cfg.AdminEmail, Name: cfg.AdminName, Role: model.RoleAdmin, Active: true}
		if err := tx.Create(user).Error; err != nil {
			return fmt.Errorf("create admin: %w", err)
		}
		account := &model.Account{UserID: user.ID, ProviderID: model.ProviderCredential, Password: string(hash)}
		if err := tx.Create(account).Error; err != nil {
			return fmt.Errorf("create admin account: %w", err)
		}
		logger.Log.Info("admin user seeded", "email", user.Email)
		return nil
	})
}

func SeedCategories(db *gorm.DB) {
	for _, c := range DefaultCategories {
		c.Active = true
		if err := db.Where(model.Category{Slug: c.Slug}).FirstOrCreate(&c).Error; err != nil {
			logger.Log.Error("error creating category", "slug", c.Slug, "err", err)
		}
	}
	logger.Log.Info("categories seeded", "count", len(DefaultCategories))
}

func SeedSources(db *gorm.DB) {
	for _, s := range DefaultSources {
		s.Active = true
		if err := db.Where(model.Source{URL: s.URL}).FirstOrCreate(&s).Error; err != nil {
			logger.Log.Error("error creating source", "url", s.URL, "err", err)
		}
	}
	logger.Log.Info("sources seeded", "count", len(DefaultSources))
}

// SeedTemplates stores the embedded templates as editable rows.
func SeedTemplates(db *gorm.DB) {
	for _, name := range email.DefaultTemplateNames() {
		subject, body, ok := email.DefaultTemplate(name)
		if !ok {
			continue
		}
		tpl := model.Template{Name: name, Subject: subject, HTML: body, Active: true}
		if err := db.Where(model.Template{Name: name}).FirstOrCreate(&tpl).Error; err != nil {
			logger.Log.Error("error creating template", "name", name, "err", err)
		}
	}
}
