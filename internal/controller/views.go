package controller

import (
	"bytes"
	"embed"
	"html/template"
	"sync"

	"github.com/gofiber/fiber/v2"

	"ottoseguridad_backend/pkg/email"
)

//go:embed views/*.html
var viewFS embed.FS

var (
	viewsOnce sync.Once
	views     *template.Template
	viewsErr  error
)

func loadViews() (*template.Template, error) {
	viewsOnce.Do(func() {
		views, viewsErr = template.New("").Funcs(template.FuncMap{
			"title": email.Title,
		}).ParseFS(viewFS, "views/*.html")
	})
	return views, viewsErr
}

func renderView(c *fiber.Ctx, name string, data interface{}) error {
	tpl, err := loadViews()
	if err != nil {
		return respondError(c, err, "Could not render page")
	}
	var buf bytes.Buffer
	if err := tpl.ExecuteTemplate(&buf, name, data); err != nil {
		return respondError(c, err, "Could not render page")
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.Send(buf.Bytes())
}
