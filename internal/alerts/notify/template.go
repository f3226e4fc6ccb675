package notify

import (
	"bytes"
	"errors"
	"text/template"

	alerts "plantwatch/internal/alerts/domain"
)

const DefaultTemplate = `[Plant alert]
Page: {{.Page}} {{.Element}}
Cause: {{.Cause}}
Time: {{.Time}}`

// TemplateData provides fields for rendering notification content.
type TemplateData struct {
	ID      string
	Cause   string
	Page    string
	Element string
	Time    string
}

func templateData(record alerts.Record) TemplateData {
	return TemplateData{
		ID:      record.ID,
		Cause:   record.Cause,
		Page:    record.Page,
		Element: record.Element,
		Time:    record.At.Format("02/01/06 03:04:05 PM"),
	}
}

// Template renders notification content.
type Template struct {
	tpl *template.Template
}

// NewTemplate parses a notification template, falling back to DefaultTemplate.
func NewTemplate(tpl string) (*Template, error) {
	if tpl == "" {
		tpl = DefaultTemplate
	}
	parsed, err := template.New("alert-notification").Parse(tpl)
	if err != nil {
		return nil, err
	}
	return &Template{tpl: parsed}, nil
}

// Render applies the template to a record.
func (t *Template) Render(record alerts.Record) (string, error) {
	if t == nil || t.tpl == nil {
		return "", errors.New("alert template: nil")
	}
	var buf bytes.Buffer
	if err := t.tpl.Execute(&buf, templateData(record)); err != nil {
		return "", err
	}
	return buf.String(), nil
}
