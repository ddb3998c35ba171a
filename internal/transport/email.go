package transport

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"
)

// Publisher puts a JSON job on a queue.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, message interface{}) error
}

// EmailJob is the payload a mail worker consumes from the email queue.
type EmailJob struct {
	NotificationID string    `json:"notification_id"`
	To             string    `json:"to"`
	From           string    `json:"from"`
	Subject        string    `json:"subject"`
	Text           string    `json:"text"`
	HTML           string    `json:"html"`
	QueuedAt       time.Time `json:"queued_at"`
}

// EmailSender queues email jobs on RabbitMQ.
type EmailSender struct {
	publisher  Publisher
	routingKey string
	from       string
}

func NewEmailSender(publisher Publisher, routingKey, from string) *EmailSender {
	return &EmailSender{publisher: publisher, routingKey: routingKey, from: from}
}

// renderHTML turns a plain text body into simple paragraphs.
func renderHTML(subject, body string) string {
	var b strings.Builder
	b.WriteString("<div style=\"font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;\">")
	b.WriteString("<h2 style=\"color: #2c3e50;\">" + html.EscapeString(subject) + "</h2>")
	for _, line := range strings.Split(body, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		b.WriteString("<p>" + html.EscapeString(line) + "</p>")
	}
	b.WriteString("</div>")
	return b.String()
}

func (s *EmailSender) Send(ctx context.Context, address string, msg Message) error {
	if address == "" {
		return ErrNoAddress
	}
	job := EmailJob{
		NotificationID: msg.NotificationID,
		To:             address,
		From:           s.from,
		Subject:        msg.Subject,
		Text:           msg.Body,
		HTML:           renderHTML(msg.Subject, msg.Body),
		QueuedAt:       time.Now().UTC(),
	}
	if err := s.publisher.Publish(ctx, s.routingKey, job); err != nil {
		return fmt.Errorf("queue email to %s: %w", address, err)
	}
	return nil
}
