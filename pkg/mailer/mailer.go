// Package mailer delivers transactional email.
package mailer

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Attachment is a file sent alongside an email body.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Sender delivers a single HTML email and returns the provider message id.
type Sender interface {
	Send(ctx context.Context, to, subject, htmlBody string, attachments ...Attachment) (string, error)
}

// LogSender writes messages to the log instead of delivering them. It is used
// when email delivery is disabled.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender constructs a LogSender.
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

// Send implements Sender.
func (s *LogSender) Send(_ context.Context, to, subject, htmlBody string, attachments ...Attachment) (string, error) {
	id := "log-" + uuid.NewString()
	s.logger.Info("email delivery disabled, message logged",
		zap.String("message_id", id),
		zap.String("to", to),
		zap.String("subject", subject),
		zap.Int("body_bytes", len(htmlBody)),
		zap.Int("attachments", len(attachments)),
	)
	return id, nil
}
