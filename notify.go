package authgate

import (
	"fmt"
	"log/slog"
	"net/smtp"
)

// ConsoleSender is a development NotificationSender that logs codes instead
// of sending mail.
type ConsoleSender struct{}

func (c *ConsoleSender) SendVerificationCode(to, code string) error {
	slog.Info("verification email", "to", to, "subject", "Verify Your Account", "code", code)
	return nil
}

// SMTPSender delivers verification codes over SMTP. Transport configuration
// (host auth, TLS) lives with the caller; this only owns the message.
type SMTPSender struct {
	Addr string // host:port
	From string
	Auth smtp.Auth
}

func (s *SMTPSender) SendVerificationCode(to, code string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: Verify Your Account\r\n\r\n"+
		"Your verification code is: %s\r\n\r\nThis code will expire in 10 minutes.\r\n",
		s.From, to, code)
	if err := smtp.SendMail(s.Addr, s.Auth, s.From, []string{to}, []byte(msg)); err != nil {
		return &UpstreamError{Dependency: "email", Err: err}
	}
	return nil
}
