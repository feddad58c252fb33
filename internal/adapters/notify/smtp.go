package notify

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"

	"fleetops/internal/core/domain"
	"fleetops/internal/platform/errors"
	"fleetops/internal/platform/logx"
)

// SMTPConfig configures the mail sink.
type SMTPConfig struct {
	// Host SMTP server host
	Host string

	// Port SMTP server port. Default: "25".
	Port string

	// From sender address
	From string

	// To recipient addresses
	To []string

	// User and Password enable PLAIN auth when both are set. The relay in
	// the ops network accepts unauthenticated mail, so they default empty.
	User     string
	Password string
}

// SMTP mails a plain-text summary of the report. Operators read these from
// cron, so the body is the table format, not JSON.
type SMTP struct {
	config SMTPConfig
	logger logx.Logger

	// send is swappable for tests.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTP creates a mail sink.
func NewSMTP(config SMTPConfig, logger logx.Logger) (*SMTP, error) {
	if config.Host == "" || config.From == "" || len(config.To) == 0 {
		return nil, errors.Wrap(errors.ErrInvalidInput, "smtp notifier needs host, from and at least one recipient")
	}
	if config.Port == "" {
		config.Port = "25"
	}
	if logger == nil {
		logger = logx.New()
	}
	return &SMTP{
		config: config,
		logger: logger.With("component", "smtp-notifier"),
		send:   smtp.SendMail,
	}, nil
}

// Name implements ports.Notifier.
func (s *SMTP) Name() string { return "smtp" }

// Notify implements ports.Notifier.
func (s *SMTP) Notify(ctx context.Context, report domain.BatchReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if s.config.User != "" && s.config.Password != "" {
		auth = smtp.PlainAuth("", s.config.User, s.config.Password, s.config.Host)
	}

	msg := s.buildMessage(report)
	addr := net.JoinHostPort(s.config.Host, s.config.Port)
	if err := s.send(addr, auth, s.config.From, s.config.To, msg); err != nil {
		return errors.Wrapf(errors.ErrConnectionFailed, "smtp send: %v", err)
	}

	s.logger.Debug("report mailed", "recipients", len(s.config.To), "batch", report.ID)
	return nil
}

// buildMessage renders the mail with headers and a plain-text body.
func (s *SMTP) buildMessage(report domain.BatchReport) []byte {
	subject := fmt.Sprintf("[fleetops] %s: %d/%d ok", report.Operation, report.Succeeded, report.Total)

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.config.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(s.config.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")

	fmt.Fprintf(&b, "Operation: %s\r\nBatch:     %s\r\nTargets:   %d (ok=%d failed=%d)\r\nDuration:  %s\r\n\r\n",
		report.Operation, report.ID, report.Total, report.Succeeded, report.Failed, report.Duration)

	for _, r := range report.Results {
		state := "ok"
		if !r.Success {
			state = string(r.ErrorKind)
		}
		if r.Status.State != "" && r.Status.State != domain.StateUnknown {
			state = r.Status.String()
		}
		fmt.Fprintf(&b, "%-24s %-24s %s\r\n", r.TargetName, state, r.Message)
	}

	return []byte(b.String())
}

// Close implements ports.Notifier.
func (s *SMTP) Close() error { return nil }
