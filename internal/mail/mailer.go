// Package mail sends HTML email with attachments over SMTP.
package mail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jordan-wright/email"
)

// ErrNotConfigured is returned by Send when no SMTP host or sender is set.
var ErrNotConfigured = errors.New("mail: smtp not configured")

// Attachment is an in-memory file attached to a message.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Receipt identifies a message accepted by the SMTP server.
type Receipt struct {
	MessageID string    `json:"message_id"`
	To        string    `json:"to"`
	SentAt    time.Time `json:"sent_at"`
}

// Config holds SMTP settings.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

// Mailer wraps SMTP configuration for sending invoices.
type Mailer struct {
	cfg  Config
	addr string
	// send is e.Send outside tests.
	send func(e *email.Email, addr string, a smtp.Auth) error
}

func NewMailer(cfg Config) *Mailer {
	return &Mailer{
		cfg:  cfg,
		addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		send: func(e *email.Email, addr string, a smtp.Auth) error { return e.Send(addr, a) },
	}
}

// Send delivers one message. The call blocks until the server accepts or
// rejects it.
func (m *Mailer) Send(ctx context.Context, to, subject, html string, attachments ...Attachment) (Receipt, error) {
	if m.cfg.Host == "" || m.cfg.From == "" {
		return Receipt{}, ErrNotConfigured
	}
	to = strings.TrimSpace(to)
	if to == "" {
		return Receipt{}, errors.New("mail: recipient is required")
	}
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}

	e := email.NewEmail()
	e.From = m.cfg.From
	e.To = []string{to}
	e.Subject = subject
	e.HTML = []byte(html)

	id := fmt.Sprintf("<%s@%s>", uuid.NewString(), m.cfg.Host)
	e.Headers.Set("Message-Id", id)

	for _, a := range attachments {
		if _, err := e.Attach(bytes.NewReader(a.Data), a.Filename, a.ContentType); err != nil {
			return Receipt{}, fmt.Errorf("mail: attach %s: %w", a.Filename, err)
		}
	}

	var auth smtp.Auth
	if m.cfg.User != "" {
		auth = smtp.PlainAuth("", m.cfg.User, m.cfg.Password, m.cfg.Host)
	}
	if err := m.send(e, m.addr, auth); err != nil {
		return Receipt{}, fmt.Errorf("mail: send to %s: %w", to, err)
	}
	return Receipt{MessageID: id, To: to, SentAt: time.Now().UTC()}, nil
}
