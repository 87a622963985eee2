// Package delivery sends the finished daily reports to their
// recipient. A channel is one transport; the dispatcher adds durable
// redelivery on top of whichever channel is configured.
package delivery

import "context"

// Message is one outbound report delivery: a short summary body with
// the detailed report carried as an attachment.
type Message struct {
	Recipient      string `json:"recipient"`
	Body           string `json:"body"`
	AttachmentName string `json:"attachment_name,omitempty"`
	Attachment     string `json:"attachment,omitempty"`
}

// Channel delivers one message to its recipient.
type Channel interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}
