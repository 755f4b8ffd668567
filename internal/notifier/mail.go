package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/amishk599/jobwatch/internal/model"
	"github.com/amishk599/jobwatch/internal/retry"
)

// Ensure both mailers implement model.Mailer.
var (
	_ model.Mailer = (*SMTPMailer)(nil)
	_ model.Mailer = (*LogMailer)(nil)
)

// SMTPConfig holds the relay settings for SMTPMailer.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Timeout  time.Duration
}

// SMTPMailer sends HTML email through an SMTP relay using STARTTLS.
type SMTPMailer struct {
	cfg SMTPConfig
}

// NewSMTPMailer returns a mailer for the given relay.
func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

// Send dials the relay and delivers one message. Each call opens its own
// connection so concurrent drain workers never share a session. Bad
// addresses and client settings are permanent errors.
func (m *SMTPMailer) Send(ctx context.Context, msg model.MailMessage) error {
	out := mail.NewMsg()
	if err := out.From(msg.From); err != nil {
		return retry.Permanent(fmt.Errorf("set from address: %w", err))
	}
	if err := out.To(msg.To); err != nil {
		return retry.Permanent(fmt.Errorf("set to address: %w", err))
	}
	out.Subject(msg.Subject)
	out.SetBodyString(mail.TypeTextHTML, msg.HTML)

	opts := []mail.Option{
		mail.WithTLSPortPolicy(mail.TLSMandatory),
		mail.WithPort(m.cfg.Port),
	}
	if m.cfg.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(m.cfg.Timeout))
	}
	if m.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.cfg.Username),
			mail.WithPassword(m.cfg.Password),
		)
	}

	client, err := mail.NewClient(m.cfg.Host, opts...)
	if err != nil {
		return retry.Permanent(fmt.Errorf("create smtp client: %w", err))
	}
	if err := client.DialAndSendWithContext(ctx, out); err != nil {
		return &model.TransportError{Transport: "mail", Err: err}
	}
	return nil
}

// LogMailer writes messages to the logger instead of sending them. It is
// used when no relay is configured and in dry runs.
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer returns a mailer that logs each message via slog.
func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

// Send logs the envelope and subject. It never fails.
func (m *LogMailer) Send(_ context.Context, msg model.MailMessage) error {
	m.logger.Info("email", "to", msg.To, "from", msg.From, "subject", msg.Subject, "bytes", len(msg.HTML))
	return nil
}
