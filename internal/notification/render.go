package notification

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"MediMind/internal/domain"
)

// Message is a rendered reminder ready for any transport.
type Message struct {
	Subject string
	Text    string
	HTML    string
}

type view struct {
	Medicine string
	Dosage   string
	Time     string
}

var titleCaser = cases.Title(language.English)

var textBody = texttemplate.Must(texttemplate.New("text").Parse(`Hello,

This is your medication reminder from MediMind.

Medicine: {{.Medicine}}
Dosage: {{.Dosage}}
Time: {{.Time}}

Please take your medication as prescribed.

---
MediMind - AI-Powered Prescription Management`))

var htmlBody = htmltemplate.Must(htmltemplate.New("html").Parse(`<!DOCTYPE html>
<html>
<head>
<style>
  body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
  .container { max-width: 600px; margin: 0 auto; padding: 20px; }
  .header { background: #667eea; color: white; padding: 30px; text-align: center; border-radius: 10px 10px 0 0; }
  .content { background: #f9f9f9; padding: 30px; border-radius: 0 0 10px 10px; }
  .medicine-card { background: white; padding: 20px; border-left: 4px solid #667eea; margin: 20px 0; border-radius: 5px; }
  .label { font-weight: bold; color: #667eea; }
  .footer { text-align: center; margin-top: 30px; color: #888; font-size: 12px; }
</style>
</head>
<body>
<div class="container">
  <div class="header"><h1>Medication Reminder</h1></div>
  <div class="content">
    <p>Hello,</p>
    <p>This is your medication reminder from <strong>MediMind</strong>.</p>
    <div class="medicine-card">
      <div><span class="label">Medicine:</span> {{.Medicine}}</div>
      <div><span class="label">Dosage:</span> {{.Dosage}}</div>
      <div><span class="label">Time:</span> {{.Time}}</div>
    </div>
    <p>Please take your medication as prescribed.</p>
    <div class="footer">
      <p>MediMind - AI-Powered Prescription Management</p>
      <p>This is an automated reminder. Please do not reply to this email.</p>
    </div>
  </div>
</div>
</body>
</html>`))

// Render builds the subject and both bodies for a reminder. Values are HTML
// escaped in the HTML body.
func Render(r domain.Reminder) (Message, error) {
	v := view{
		Medicine: r.MedicineName,
		Dosage:   r.Dosage,
		Time:     titleCaser.String(r.Period.String()),
	}

	var text bytes.Buffer
	if err := textBody.Execute(&text, v); err != nil {
		return Message{}, fmt.Errorf("render text body: %w", err)
	}
	var html bytes.Buffer
	if err := htmlBody.Execute(&html, v); err != nil {
		return Message{}, fmt.Errorf("render html body: %w", err)
	}

	return Message{
		Subject: "MediMind Reminder: " + strings.TrimSpace(r.MedicineName),
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}
