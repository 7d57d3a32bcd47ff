// Package notify sends the claims engine's outbound customer email: draft
// reminders and the draft-discard notice. There is no third-party mail
// client in the dependency set this module draws from, so this wraps the
// standard library's net/smtp directly rather than reaching for an
// unrelated ecosystem package.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/flightclaims/claims-engine/internal/platform/config"
	"github.com/flightclaims/claims-engine/internal/platform/logging"
)

// Mailer sends plain-text email over SMTP with optional AUTH, matching
// whatever mail relay the deployment's SMTPConfig points at.
type Mailer struct {
	cfg    config.SMTPConfig
	logger *logging.Logger
}

func NewMailer(cfg config.SMTPConfig, logger *logging.Logger) *Mailer {
	return &Mailer{cfg: cfg, logger: logger}
}

// Send delivers a single plain-text message. A zero-value SMTPConfig (no
// host configured) is treated as "mail disabled" and logs instead of
// dialing, so a local/test deployment without a relay configured doesn't
// hard-fail the task pipeline.
func (m *Mailer) Send(ctx context.Context, to, subject, body string) error {
	if strings.TrimSpace(m.cfg.Host) == "" {
		if m.logger != nil {
			m.logger.WithContext(ctx).WithField("to", to).WithField("subject", subject).Info("smtp not configured, dropping notification")
		}
		return nil
	}

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", m.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "Date: %s\r\n\r\n", time.Now().UTC().Format(time.RFC1123Z))
	msg.WriteString(body)

	if err := smtp.SendMail(addr, auth, m.cfg.From, []string{to}, msg.Bytes()); err != nil {
		return fmt.Errorf("notify: send mail: %w", err)
	}
	return nil
}
