package mail

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"net/url"
	"strings"
	texttemplate "text/template"
)

// Kind selects a notification template.
type Kind string

const (
	KindTicketCreated Kind = "ticket_created"
	KindStatusChanged Kind = "status_changed"
	KindAdminReply    Kind = "admin_reply"
)

// TicketData feeds the notification templates.
type TicketData struct {
	PublicTicketID string
	Title          string
	StudentName    string
	Status         string
	Message        string
	ViewURL        string
}

type template struct {
	subject string
	text    *texttemplate.Template
	html    *htmltemplate.Template
}

const textBody = `Hello {{.StudentName}},

{{.Message}}

Ticket: {{.PublicTicketID}}
Title: {{.Title}}
Status: {{.Status}}

View your ticket: {{.ViewURL}}
`

const htmlBody = `<p>Hello {{.StudentName}},</p>
<p>{{.Message}}</p>
<p><strong>Ticket:</strong> {{.PublicTicketID}}<br>
<strong>Title:</strong> {{.Title}}<br>
<strong>Status:</strong> {{.Status}}</p>
<p><a href="{{.ViewURL}}">View your ticket</a></p>
`

var templates = map[Kind]template{
	KindTicketCreated: newTemplate("Ticket submitted: %s"),
	KindStatusChanged: newTemplate("Ticket update: %s"),
	KindAdminReply:    newTemplate("Reply on ticket: %s"),
}

func newTemplate(subject string) template {
	return template{
		subject: subject,
		text:    texttemplate.Must(texttemplate.New("text").Parse(textBody)),
		html:    htmltemplate.Must(htmltemplate.New("html").Parse(htmlBody)),
	}
}

// Render builds the message for kind addressed to recipient.
func Render(kind Kind, recipient string, data TicketData) (Message, error) {
	tpl, ok := templates[kind]
	if !ok {
		return Message{}, fmt.Errorf("unknown mail template %q", kind)
	}

	var text, html bytes.Buffer
	if err := tpl.text.Execute(&text, data); err != nil {
		return Message{}, fmt.Errorf("render text: %w", err)
	}
	if err := tpl.html.Execute(&html, data); err != nil {
		return Message{}, fmt.Errorf("render html: %w", err)
	}
	return Message{
		To:      recipient,
		Subject: fmt.Sprintf(tpl.subject, data.PublicTicketID),
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}

// ViewURL is the student's capability link for a ticket.
func ViewURL(baseURL, publicTicketID, viewToken string) string {
	return fmt.Sprintf("%s/ticket/%s?token=%s",
		strings.TrimRight(baseURL, "/"),
		url.PathEscape(publicTicketID),
		url.QueryEscape(viewToken))
}
