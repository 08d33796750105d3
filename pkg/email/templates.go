package email

import (
	"embed"
	"html/template"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	TemplateBulletin   = "bulletin"
	TemplateWelcome    = "welcome"
	TemplateDailyStats = "daily_stats"
)

// defaultSubjects are used when no Template row overrides the name.
var defaultSubjects = map[string]string{
	TemplateBulletin:   "Boletín de seguridad {{.Date}}",
	TemplateWelcome:    "Bienvenido al boletín de OttoSeguridad",
	TemplateDailyStats: "Estadísticas del boletín {{.Date}}",
}

// Title capitalizes each word using Spanish casing rules. Casers keep state,
// so one is built per call.
func Title(s string) string {
	return cases.Title(language.Spanish).String(strings.ToLower(s))
}

var funcs = template.FuncMap{
	"title": Title,
	"add":   func(a, b int) int { return a + b },
}

func loadTemplates() (*template.Template, error) {
	return template.New("").Funcs(funcs).ParseFS(templateFS, "templates/*.html")
}

func DefaultTemplateNames() []string {
	return []string{TemplateBulletin, TemplateWelcome, TemplateDailyStats}
}

// DefaultTemplate returns the embedded subject and body for name.
func DefaultTemplate(name string) (subject, body string, ok bool) {
	raw, err := templateFS.ReadFile("templates/" + name + ".html")
	if err != nil {
		return "", "", false
	}
	return defaultSubjects[name], string(raw), true
}
