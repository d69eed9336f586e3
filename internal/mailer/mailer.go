// Package mailer sends generated outreach emails over SMTP and walks the
// ready-to-send lead queue in paced batches.
package mailer

import (
	"context"

	"github.com/webasthetic/leadflow/internal/model"
)

// Message is one outbound email.
type Message struct {
	To       string
	Subject  string
	TextBody string
	HTMLBody string
}

// Transport delivers a single message. Implementations decide the wire
// protocol; the dispatcher only cares whether delivery succeeded.
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

// Archiver receives a copy of every successfully sent message. A nil
// archiver disables archiving.
type Archiver interface {
	Archive(ctx context.Context, lead model.Lead, msg Message) error
}
