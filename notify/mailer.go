/*
Package notify delivers settlement reports by email.

PURPOSE:
  Sends an HTML pivot body with the export file attached. The send is
  synchronous; a failure is terminal for that action and is never retried.

ERRORS:
  - settlement.ErrInvalidRecipient: caller error, nothing was dialed
  - *settlement.TransportError: dial, auth or SMTP rejection

SEE ALSO:
  - export/html.go: Renders the body
*/
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/mail"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/warp/partner-settlement/settlement"
)

// ErrNotConfigured is wrapped in a TransportError when no SMTP host is set.
var ErrNotConfigured = errors.New("smtp host not configured")

// Config holds outbound SMTP settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Attachment is one file attached to a message.
type Attachment struct {
	Name string
	Data []byte
}

// Message is one outbound report.
type Message struct {
	To         []string
	Subject    string
	HTML       string
	Attachment *Attachment
}

// Dialer sends fully built messages. *gomail.Dialer satisfies it.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// Mailer builds gomail messages and hands them to a Dialer.
type Mailer struct {
	dialer Dialer
	from   string
	logger *zap.Logger
}

// New returns a Mailer dialing cfg.Host. With an empty host every send
// fails with ErrNotConfigured.
func New(cfg Config, logger *zap.Logger) *Mailer {
	var d Dialer
	if cfg.Host != "" {
		d = gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	}
	return NewWithDialer(d, cfg.From, logger)
}

// NewWithDialer returns a Mailer using d.
func NewWithDialer(d Dialer, from string, logger *zap.Logger) *Mailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mailer{dialer: d, from: from, logger: logger}
}

// Configured reports whether the mailer can dial.
func (m *Mailer) Configured() bool {
	return m.dialer != nil
}

// Send delivers msg.
func (m *Mailer) Send(ctx context.Context, msg Message) error {
	to, err := recipients(msg.To)
	if err != nil {
		return err
	}
	if m.dialer == nil {
		return &settlement.TransportError{Op: "dial", Err: ErrNotConfigured}
	}
	if err := ctx.Err(); err != nil {
		return &settlement.TransportError{Op: "dial", Err: err}
	}

	gm := m.build(to, msg)
	if err := m.dialer.DialAndSend(gm); err != nil {
		m.logger.Warn("report email failed", zap.Strings("to", to), zap.Error(err))
		return &settlement.TransportError{Op: "send", Err: err}
	}

	m.logger.Info("report email sent", zap.Strings("to", to), zap.String("subject", msg.Subject))
	return nil
}

func (m *Mailer) build(to []string, msg Message) *gomail.Message {
	gm := gomail.NewMessage()
	gm.SetHeader("From", m.from)
	gm.SetHeader("To", to...)
	gm.SetHeader("Subject", msg.Subject)
	gm.SetBody("text/html", msg.HTML)
	if a := msg.Attachment; a != nil {
		data := a.Data
		gm.Attach(a.Name, gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := w.Write(data)
			return err
		}))
	}
	return gm
}

// recipients validates and normalizes addresses. Comma-separated entries
// are split so a single form field can carry several recipients.
func recipients(raw []string) ([]string, error) {
	var out []string
	for _, r := range raw {
		for _, part := range strings.Split(r, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			addr, err := mail.ParseAddress(part)
			if err != nil {
				return nil, fmt.Errorf("%q: %w", part, settlement.ErrInvalidRecipient)
			}
			out = append(out, addr.Address)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no recipient: %w", settlement.ErrInvalidRecipient)
	}
	return out, nil
}
