package mailer

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/wneessen/go-mail"

	"github.com/webasthetic/leadflow/internal/resilience"
)

// SMTPConfig holds SMTP transport settings.
type SMTPConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
	From     string `yaml:"from" mapstructure:"from"`
	FromName string `yaml:"from_name" mapstructure:"from_name"`
}

// SMTPTransport implements Transport over implicit-TLS SMTP.
type SMTPTransport struct {
	cfg    SMTPConfig
	client *mail.Client
}

// NewSMTPTransport creates an SMTP transport. The connection is dialed per
// send; go-mail handles reconnects.
func NewSMTPTransport(cfg SMTPConfig) (*SMTPTransport, error) {
	if cfg.Port == 0 {
		cfg.Port = 465
	}
	client, err := mail.NewClient(cfg.Host,
		mail.WithPort(cfg.Port),
		mail.WithSSL(),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.Username),
		mail.WithPassword(cfg.Password),
	)
	if err != nil {
		return nil, eris.Wrap(err, "mailer: create smtp client")
	}
	return &SMTPTransport{cfg: cfg, client: client}, nil
}

func (t *SMTPTransport) Send(ctx context.Context, msg Message) error {
	m := mail.NewMsg()
	if err := m.FromFormat(t.cfg.FromName, t.cfg.From); err != nil {
		return resilience.NewPermanentError(eris.Wrap(err, "mailer: from address"))
	}
	if err := m.To(msg.To); err != nil {
		return eris.Wrapf(err, "mailer: to address %s", msg.To)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.TextBody)
	if msg.HTMLBody != "" {
		m.AddAlternativeString(mail.TypeTextHTML, msg.HTMLBody)
	}

	if err := t.client.DialAndSendWithContext(ctx, m); err != nil {
		return classifySendErr(err)
	}
	return nil
}

// classifySendErr separates credential failures, which will hit every
// message in the batch, from per-message delivery problems.
func classifySendErr(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "535") ||
		strings.Contains(msg, "authentication failed") ||
		strings.Contains(msg, "auth") && strings.Contains(msg, "invalid") {
		return resilience.NewPermanentError(eris.Wrap(err, "mailer: smtp auth"))
	}
	return eris.Wrap(err, "mailer: send")
}
