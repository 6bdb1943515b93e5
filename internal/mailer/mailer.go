// Package mailer delivers one-time codes to users.
package mailer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

// Mailer sends codes produced by the otp store. ttl is only used in the
// message text.
type Mailer interface {
	SendVerificationCode(ctx context.Context, to, code string, ttl time.Duration) error
	SendPasswordResetCode(ctx context.Context, to, code string, ttl time.Duration) error
}

// Sender is satisfied by *gomail.Dialer.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

type SMTPMailer struct {
	sender Sender
	from   string
	logger *zap.SugaredLogger
}

func NewSMTPMailer(host string, port int, user, password, from string, logger *zap.SugaredLogger) *SMTPMailer {
	return NewSMTPMailerWithSender(gomail.NewDialer(host, port, user, password), from, logger)
}

func NewSMTPMailerWithSender(sender Sender, from string, logger *zap.SugaredLogger) *SMTPMailer {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &SMTPMailer{sender: sender, from: from, logger: logger}
}

func (s *SMTPMailer) SendVerificationCode(ctx context.Context, to, code string, ttl time.Duration) error {
	m := buildMessage(s.from, to, verificationTemplate, code, ttl)
	if err := s.send(ctx, m); err != nil {
		return fmt.Errorf("send verification email: %w", err)
	}
	s.logger.Infow("verification code sent", "to", to)
	return nil
}

func (s *SMTPMailer) SendPasswordResetCode(ctx context.Context, to, code string, ttl time.Duration) error {
	m := buildMessage(s.from, to, resetTemplate, code, ttl)
	if err := s.send(ctx, m); err != nil {
		return fmt.Errorf("send password reset email: %w", err)
	}
	s.logger.Infow("password reset code sent", "to", to)
	return nil
}

// send gives up early when ctx is already done; gomail itself has no
// cancellation hook once dialing starts.
func (s *SMTPMailer) send(ctx context.Context, m *gomail.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.sender.DialAndSend(m)
}

type template struct {
	subject string
	heading string
	intro   string
	ignore  string
}

var (
	verificationTemplate = template{
		subject: "Your UIGISC Verification Code",
		heading: "Verify your email",
		intro:   "Your verification code is:",
		ignore:  "If you didn't request this code, please ignore this email.",
	}
	resetTemplate = template{
		subject: "Reset Your UIGISC Password",
		heading: "Reset your password",
		intro:   "Your password reset code is:",
		ignore:  "If you didn't request this password reset, please ignore this email.",
	}
)

func buildMessage(from, to string, t template, code string, ttl time.Duration) *gomail.Message {
	minutes := int(ttl.Round(time.Minute) / time.Minute)

	m := gomail.NewMessage()
	m.SetHeader("From", from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", t.subject)

	m.SetBody("text/plain", fmt.Sprintf(
		"%s\n\n%s %s\n\nThis code will expire in %d minutes.\n\n%s\n\n- The UIGISC Team\n",
		t.subject, t.intro, code, minutes, t.ignore,
	))
	m.AddAlternative("text/html", fmt.Sprintf(`
		<h2>%s</h2>
		<p>%s</p>
		<p style="font-size: 32px; letter-spacing: 8px;"><strong>%s</strong></p>
		<p>This code will expire in %d minutes.</p>
		<p>%s</p>
		<p>The UIGISC Team</p>
	`, t.heading, t.intro, code, minutes, t.ignore))
	return m
}

// LogMailer writes a line per issued code instead of sending mail. The code
// itself is only logged when ShowCode is set, which main enables in
// development.
type LogMailer struct {
	logger   *zap.SugaredLogger
	ShowCode bool
}

func NewLogMailer(logger *zap.SugaredLogger, showCode bool) *LogMailer {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &LogMailer{logger: logger, ShowCode: showCode}
}

func (l *LogMailer) SendVerificationCode(_ context.Context, to, code string, ttl time.Duration) error {
	l.log("verification code issued", to, code, ttl)
	return nil
}

func (l *LogMailer) SendPasswordResetCode(_ context.Context, to, code string, ttl time.Duration) error {
	l.log("password reset code issued", to, code, ttl)
	return nil
}

func (l *LogMailer) log(msg, to, code string, ttl time.Duration) {
	kv := []any{"to", to, "ttl", ttl.String()}
	if l.ShowCode {
		kv = append(kv, "code", code)
	}
	l.logger.Warnw(msg+" (smtp not configured)", kv...)
}
