package mail

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"time"

	"github.com/AnthoniusHendriyanto/identity-service/internal/auth/domain"
)

//go:embed templates/*.html
var templateFS embed.FS

// ErrUnknownTemplate is returned for template ids the worker cannot render.
var ErrUnknownTemplate = errors.New("unknown mail template")

type mailTemplate struct {
	subject string
	body    *template.Template
}

// Renderer turns an OTP event into a subject and an HTML body.
type Renderer struct {
	templates map[string]mailTemplate
}

func NewRenderer() (*Renderer, error) {
	specs := map[string]struct{ subject, file string }{
		domain.TemplateRegistrationOTP: {"Verify your email", "templates/otp_registration.html"},
		domain.TemplateRequestedOTP:    {"Your verification code", "templates/otp_request.html"},
	}

	r := &Renderer{templates: make(map[string]mailTemplate, len(specs))}
	for id, spec := range specs {
		tmpl, err := template.ParseFS(templateFS, spec.file)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", id, err)
		}
		r.templates[id] = mailTemplate{subject: spec.subject, body: tmpl}
	}
	return r, nil
}

func (r *Renderer) Render(templateID, code string, expiresAt time.Time) (subject, body string, err error) {
	t, ok := r.templates[templateID]
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrUnknownTemplate, templateID)
	}

	var buf bytes.Buffer
	err = t.body.Execute(&buf, map[string]string{
		"Code":      code,
		"ExpiresAt": expiresAt.UTC().Format("15:04 MST, 2 Jan 2006"),
	})
	if err != nil {
		return "", "", err
	}
	return t.subject, buf.String(), nil
}
