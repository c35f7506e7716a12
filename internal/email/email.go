// Package email validates and dispatches bulk mailings to filtered
// recipient sets.
package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/smtp"
	"strconv"
	"sync"

	"github.com/jhillyerd/enmime"

	"github.com/cryptadb/crypta/internal/config"
	"github.com/cryptadb/crypta/internal/query"
)

// Attachment is an optional file included with a dispatch. Content is
// loaded by the caller; the dispatcher never touches the filesystem.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Request is one validated dispatch.
type Request struct {
	Subject    string
	Body       string
	Recipients []string
	Attachment *Attachment
}

// Validate enforces the send preconditions: a subject, a body, and at
// least one recipient class. Callers check this before the confirmation
// prompt, so a user is never asked to confirm an unsendable mailing.
func Validate(subject, body string, classes query.RecipientClasses) error {
	if subject == "" {
		return errors.New("subject is required")
	}
	if body == "" {
		return errors.New("body is required")
	}
	if !classes.Any() {
		return errors.New("select at least one recipient type")
	}
	return nil
}

// Sender dispatches a mailing and reports how many recipients it reached.
type Sender interface {
	Send(ctx context.Context, req Request) (int, error)
}

// SMTPSender delivers through the configured SMTP relay. Recipients go on
// BCC so members of a mailing never see each other's addresses.
type SMTPSender struct {
	cfg    config.EmailConfig
	logger *slog.Logger
}

// NewSMTPSender creates a sender from the email configuration.
func NewSMTPSender(cfg config.EmailConfig, logger *slog.Logger) (*SMTPSender, error) {
	if cfg.SMTPHost == "" {
		return nil, errors.New("smtp_host is not configured")
	}
	if cfg.From == "" {
		return nil, errors.New("from address is not configured")
	}
	return &SMTPSender{cfg: cfg, logger: logger}, nil
}

// Send builds the MIME message and hands it to the relay.
func (s *SMTPSender) Send(ctx context.Context, req Request) (int, error) {
	if len(req.Recipients) == 0 {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	builder := enmime.Builder().
		From("", s.cfg.From).
		To("", s.cfg.From).
		Subject(req.Subject).
		Text([]byte(req.Body))
	for _, addr := range req.Recipients {
		builder = builder.BCC("", addr)
	}
	if a := req.Attachment; a != nil {
		ct := a.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		builder = builder.AddAttachment(a.Content, ct, a.Filename)
	}

	addr := s.cfg.SMTPHost + ":" + strconv.Itoa(s.cfg.SMTPPort)
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.SMTPHost)
	}
	if err := builder.Send(enmime.NewSMTP(addr, auth)); err != nil {
		return 0, fmt.Errorf("smtp send: %w", err)
	}

	s.logger.Info("mailing dispatched",
		"subject", req.Subject, "recipients", len(req.Recipients))
	return len(req.Recipients), nil
}

// Outbox is a Sender that records dispatches instead of delivering them.
// It backs tests and the --dry-run flag.
type Outbox struct {
	mu   sync.Mutex
	sent []Request
}

// Send records the request.
func (o *Outbox) Send(ctx context.Context, req Request) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, req)
	return len(req.Recipients), nil
}

// Sent returns the recorded dispatches.
func (o *Outbox) Sent() []Request {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Request, len(o.sent))
	copy(out, o.sent)
	return out
}
