package notify

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"github.com/stemsi/exstem-proctoring/internal/model"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var (
	subjectTmpl = texttemplate.Must(texttemplate.ParseFS(templateFS, "templates/escalation.subject.tmpl"))
	textTmpl    = texttemplate.Must(texttemplate.ParseFS(templateFS, "templates/escalation.txt.tmpl"))
	htmlTmpl    = htmltemplate.Must(htmltemplate.ParseFS(templateFS, "templates/escalation.html.tmpl"))
)

// emailData is the view model shared by the escalation templates.
type emailData struct {
	RecipientName string
	ExamTitle     string
	StudentName   string
	StudentID     int
	SessionID     string
	WarningCount  int
	Alert         AlertSummary
	SessionURL    string
}

func renderEscalation(d emailData, to model.Recipient) (Message, error) {
	d.RecipientName = to.Name

	var subject, text, html bytes.Buffer
	if err := subjectTmpl.Execute(&subject, d); err != nil {
		return Message{}, fmt.Errorf("render subject: %w", err)
	}
	if err := textTmpl.Execute(&text, d); err != nil {
		return Message{}, fmt.Errorf("render text body: %w", err)
	}
	if err := htmlTmpl.Execute(&html, d); err != nil {
		return Message{}, fmt.Errorf("render html body: %w", err)
	}
	return Message{
		ToName:  to.Name,
		ToEmail: to.Email,
		Subject: strings.TrimSpace(subject.String()),
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}
