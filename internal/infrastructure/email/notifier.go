package email

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"MediMind/internal/config"
	"MediMind/internal/domain"
	"MediMind/internal/notification"
)

// Dialer delivers prepared messages. *gomail.Dialer satisfies it.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// Notifier sends reminders over SMTP with STARTTLS as multipart text+HTML mail.
type Notifier struct {
	cfg    config.EmailConfig
	dialer Dialer
	logger *zap.Logger
}

var _ notification.Channel = (*Notifier)(nil)

// NewNotifier builds an SMTP notifier. A nil dialer uses gomail's default.
func NewNotifier(cfg config.EmailConfig, dialer Dialer, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dialer == nil {
		dialer = gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password)
	}
	return &Notifier{cfg: cfg, dialer: dialer, logger: logger.With(zap.String("component", "email"))}
}

// Name implements notification.Channel.
func (n *Notifier) Name() string { return "email" }

// SendReminder renders and mails one reminder. A disabled notifier reports
// ErrNotifierDisabled without dialing.
func (n *Notifier) SendReminder(ctx context.Context, reminder domain.Reminder) error {
	msg, err := notification.Render(reminder)
	if err != nil {
		return err
	}
	if !n.cfg.Enabled {
		n.logger.Info("email disabled, reminder not sent",
			zap.String("to", reminder.Recipient),
			zap.String("subject", msg.Subject),
		)
		return notification.ErrNotifierDisabled
	}
	if n.cfg.User == "" || n.cfg.Password == "" {
		return fmt.Errorf("email credentials are not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	from := n.cfg.From
	if from == "" {
		from = n.cfg.User
	}

	m := gomail.NewMessage()
	m.SetHeader("From", from)
	m.SetHeader("To", reminder.Recipient)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Text)
	m.AddAlternative("text/html", msg.HTML)

	if err := n.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send email to %s: %w", reminder.Recipient, err)
	}
	n.logger.Info("email sent", zap.String("to", reminder.Recipient), zap.String("subject", msg.Subject))
	return nil
}
