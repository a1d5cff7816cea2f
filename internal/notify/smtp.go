package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/config"
	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/logger"
	"github.com/PSA-Corporate-Learning-Branch/psaelmsync/internal/model"
)

// Mailer sends through a plain SMTP relay. Government mail infrastructure
// here is an internal relay; anonymous submission is used when no
// username is configured.
type Mailer struct {
	cfg  config.NotifyConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
	log  zerolog.Logger
}

func NewMailer(cfg config.NotifyConfig) *Mailer {
	return &Mailer{
		cfg:  cfg,
		send: smtp.SendMail,
		log:  logger.For("notify"),
	}
}

func (m *Mailer) NotifyAdmins(ctx context.Context, subject, body string) error {
	if len(m.cfg.AdminEmails) == 0 {
		m.log.Warn().Str("subject", subject).Msg("No admin addresses configured, dropping alert")
		return nil
	}
	return m.sendMail(ctx, m.cfg.AdminEmails, subject, body)
}

// SendWelcome mails a newly created learner their first-login pointer.
// Failures are logged but never fail the enrolment that triggered them.
func (m *Mailer) SendWelcome(ctx context.Context, learner *model.Learner, course *model.Course) error {
	if !m.cfg.SendWelcome {
		return nil
	}

	subject := "Your PSA Learning System account"
	body := fmt.Sprintf(
		"Hello %s,\n\n"+
			"An account has been created for you and you have been enrolled in %s.\n"+
			"Sign in at %s to get started.\n",
		learner.FirstName, course.FullName, m.cfg.SiteShortURL)

	if err := m.sendMail(ctx, []string{learner.Email}, subject, body); err != nil {
		m.log.Error().Err(err).Str("email", learner.Email).Msg("Failed to send welcome email")
		return err
	}
	return nil
}

func (m *Mailer) sendMail(ctx context.Context, to []string, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", m.cfg.SMTP.Host, m.cfg.SMTP.Port)

	var auth smtp.Auth
	if m.cfg.SMTP.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.SMTP.Username, m.cfg.SMTP.Password, m.cfg.SMTP.Host)
	}

	msg := strings.Join([]string{
		"From: " + m.cfg.FromAddress,
		"To: " + strings.Join(to, ", "),
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=UTF-8",
		"",
		body,
	}, "\r\n")

	if err := m.send(addr, auth, m.cfg.FromAddress, to, []byte(msg)); err != nil {
		return fmt.Errorf("smtp send failed: %w", err)
	}

	m.log.Debug().Strs("to", to).Str("subject", subject).Msg("Mail sent")
	return nil
}
