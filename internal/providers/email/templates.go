package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"sync"
)

//go:embed templates/*.html
var templateFS embed.FS

var (
	templatesOnce sync.Once
	templates     *template.Template
	templatesErr  error
)

var defaultSubjects = map[string]string{
	"commission_earned": "You earned a commission",
	"payout_approved":   "Your payout was approved",
	"payout_paid":       "Your payout is on its way",
	"affiliate_invited": "You're invited to join our affiliate program",
}

// Render executes the named embedded template and resolves the subject from
// data["subject"] or the template default.
func Render(name string, data map[string]any) (string, string, error) {
	templatesOnce.Do(func() {
		templates, templatesErr = template.ParseFS(templateFS, "templates/*.html")
	})
	if templatesErr != nil {
		return "", "", templatesErr
	}

	tmpl := templates.Lookup(name + ".html")
	if tmpl == nil {
		return "", "", fmt.Errorf("template %q not found", name)
	}

	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		return "", "", fmt.Errorf("execute template %s: %w", name, err)
	}

	subject := defaultSubjects[name]
	if value, ok := data["subject"].(string); ok && value != "" {
		subject = value
	}
	if subject == "" {
		subject = "Affiliate program update"
	}
	return subject, body.String(), nil
}
