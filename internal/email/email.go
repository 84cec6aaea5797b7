package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

// Sender delivers one HTML email.
type Sender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	// From is the envelope sender and From header mailbox.
	From string
	// FromName is an optional display name for the From header.
	FromName string
}

type SMTPSender struct {
	config Config
	dialer net.Dialer
}

func NewSMTPSender(config Config) *SMTPSender {
	return &SMTPSender{
		config: config,
		dialer: net.Dialer{Timeout: 30 * time.Second},
	}
}

func (s *SMTPSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	to = sanitizeHeader(strings.TrimSpace(to))
	if to == "" {
		return fmt.Errorf("recipient is empty")
	}

	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))

	conn, err := s.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial smtp: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, s.config.Host)
	if err != nil {
		_ = conn.Close()

		return fmt.Errorf("create smtp client: %w", err)
	}
	defer func() { _ = c.Close() }()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err = c.StartTLS(&tls.Config{ServerName: s.config.Host}); err != nil {
			return fmt.Errorf("start tls: %w", err)
		}
	}

	if s.config.Username != "" && s.config.Password != "" {
		auth := smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
		if err = c.Auth(auth); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}

	if err = c.Mail(s.config.From); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}

	if err = c.Rcpt(to); err != nil {
		return fmt.Errorf("rcpt to: %w", err)
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}

	if _, err = w.Write(s.message(to, subject, htmlBody)); err != nil {
		return fmt.Errorf("write: %w", err)
	}

	if err = w.Close(); err != nil {
		return fmt.Errorf("close: %w", err)
	}

	return c.Quit()
}

func (s *SMTPSender) message(to, subject, htmlBody string) []byte {
	fromHeader := s.config.From
	if name := strings.TrimSpace(s.config.FromName); name != "" {
		fromHeader = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", name), s.config.From)
	}

	lines := []string{
		"From: " + sanitizeHeader(fromHeader),
		"To: " + to,
		"Subject: " + mime.QEncoding.Encode("utf-8", sanitizeHeader(subject)),
		"MIME-Version: 1.0",
		"Content-Type: text/html; charset=UTF-8",
		"",
		htmlBody,
	}

	return []byte(strings.Join(lines, "\r\n"))
}

func sanitizeHeader(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", "")
	return s
}
