// Package smtp provides outbound email for Warden. Server settings come from
// the environment (see config.SMTPConfig). Bodies are HTML rendered from templ
// components in email.go.
package smtp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/mail"
	gosmtp "net/smtp"
	"strings"
	"time"

	"github.com/keyxmakerx/warden/internal/config"
)

// dialTimeout bounds the TCP and TLS handshake with the mail server.
const dialTimeout = 10 * time.Second

// ErrNotConfigured is returned by SendMail when no SMTP host is set.
var ErrNotConfigured = errors.New("smtp is not configured")

// MailService is the interface other plugins use to send email.
// This is the cross-plugin contract -- auth uses it for welcome and
// recovery PIN emails.
type MailService interface {
	SendMail(ctx context.Context, to []string, subject, htmlBody string) error
	IsConfigured(ctx context.Context) bool

	// TestConnection verifies SMTP connectivity with the current settings.
	TestConnection(ctx context.Context) error
}

// smtpService implements MailService over net/smtp.
type smtpService struct {
	cfg config.SMTPConfig
	now func() time.Time
}

// NewMailService creates a mail service from SMTP settings.
func NewMailService(cfg config.SMTPConfig) MailService {
	return &smtpService{
		cfg: cfg,
		now: time.Now,
	}
}

// IsConfigured returns true if an SMTP host is configured.
func (s *smtpService) IsConfigured(_ context.Context) bool {
	return s.cfg.Enabled()
}

// SendMail sends an HTML email. It reports ErrNotConfigured when SMTP is
// disabled so callers can decide whether a missing mail is fatal.
func (s *smtpService) SendMail(ctx context.Context, to []string, subject, htmlBody string) error {
	if !s.cfg.Enabled() {
		slog.Warn("smtp not configured, email not sent",
			slog.String("subject", subject),
			slog.Int("recipients", len(to)),
		)
		return ErrNotConfigured
	}

	from := mail.Address{Name: s.cfg.FromName, Address: s.cfg.FromAddress}
	msg := buildMessage(from, to, subject, htmlBody, s.now())
	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprintf("%d", s.cfg.Port))

	// Send based on encryption mode.
	var err error
	switch s.cfg.Encryption {
	case "ssl":
		err = s.sendSSL(ctx, addr, from.Address, to, msg)
	case "none":
		err = s.sendPlain(ctx, addr, from.Address, to, msg)
	default: // "starttls"
		err = s.sendStartTLS(ctx, addr, from.Address, to, msg)
	}
	if err != nil {
		return fmt.Errorf("sending mail via %s: %w", addr, err)
	}
	return nil
}

// buildMessage renders an RFC 5322 message with an HTML body.
func buildMessage(from mail.Address, to []string, subject, htmlBody string, now time.Time) string {
	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("From: %s\r\n", from.String()))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(to, ", ")))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject)))
	msg.WriteString(fmt.Sprintf("Date: %s\r\n", now.UTC().Format(time.RFC1123Z)))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(htmlBody)
	return msg.String()
}

// dial opens a plain TCP connection honoring ctx and dialTimeout.
func (s *smtpService) dial(ctx context.Context, addr string) (net.Conn, error) {
	d := &net.Dialer{Timeout: dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	return conn, nil
}

// sendStartTLS sends email using STARTTLS (port 587 typical).
func (s *smtpService) sendStartTLS(ctx context.Context, addr, from string, to []string, msg string) error {
	conn, err := s.dial(ctx, addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	client, err := gosmtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		return fmt.Errorf("creating smtp client: %w", err)
	}
	defer client.Close()

	tlsConfig := &tls.Config{ServerName: s.cfg.Host, MinVersion: tls.VersionTLS12}
	if err := client.StartTLS(tlsConfig); err != nil {
		return fmt.Errorf("starting TLS: %w", err)
	}

	if err := s.authenticate(client); err != nil {
		return err
	}
	return sendMessage(client, from, to, msg)
}

// sendSSL sends email using implicit SSL/TLS (port 465 typical).
func (s *smtpService) sendSSL(ctx context.Context, addr, from string, to []string, msg string) error {
	raw, err := s.dial(ctx, addr)
	if err != nil {
		return err
	}
	conn := tls.Client(raw, &tls.Config{ServerName: s.cfg.Host, MinVersion: tls.VersionTLS12})
	defer conn.Close()
	if err := conn.HandshakeContext(ctx); err != nil {
		return fmt.Errorf("TLS handshake with %s: %w", addr, err)
	}

	client, err := gosmtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		return fmt.Errorf("creating smtp client: %w", err)
	}
	defer client.Close()

	if err := s.authenticate(client); err != nil {
		return err
	}
	return sendMessage(client, from, to, msg)
}

// sendPlain sends email without encryption.
func (s *smtpService) sendPlain(ctx context.Context, addr, from string, to []string, msg string) error {
	conn, err := s.dial(ctx, addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	client, err := gosmtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		return fmt.Errorf("creating smtp client: %w", err)
	}
	defer client.Close()

	if err := s.authenticate(client); err != nil {
		return err
	}
	return sendMessage(client, from, to, msg)
}

func (s *smtpService) authenticate(client *gosmtp.Client) error {
	if s.cfg.Username == "" {
		return nil
	}
	auth := gosmtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("authenticating: %w", err)
	}
	return nil
}

// sendMessage handles MAIL FROM, RCPT TO, DATA for an existing SMTP client.
func sendMessage(client *gosmtp.Client, from string, to []string, msg string) error {
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	for _, recipient := range to {
		if err := client.Rcpt(recipient); err != nil {
			return fmt.Errorf("RCPT TO %s: %w", recipient, err)
		}
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	if _, err := w.Write([]byte(msg)); err != nil {
		return fmt.Errorf("writing message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing data: %w", err)
	}
	return client.Quit()
}

// TestConnection verifies SMTP connectivity by establishing a connection
// and performing the EHLO handshake and, if configured, authentication.
func (s *smtpService) TestConnection(ctx context.Context) error {
	if !s.cfg.Enabled() {
		return ErrNotConfigured
	}
	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprintf("%d", s.cfg.Port))

	var conn net.Conn
	raw, err := s.dial(ctx, addr)
	if err != nil {
		return err
	}
	conn = raw
	if s.cfg.Encryption == "ssl" {
		tc := tls.Client(raw, &tls.Config{ServerName: s.cfg.Host, MinVersion: tls.VersionTLS12})
		if err := tc.HandshakeContext(ctx); err != nil {
			raw.Close()
			return fmt.Errorf("TLS handshake with %s: %w", addr, err)
		}
		conn = tc
	}
	defer conn.Close()

	client, err := gosmtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		return fmt.Errorf("SMTP handshake failed: %w", err)
	}
	defer client.Close()

	if s.cfg.Encryption == "starttls" {
		tlsConfig := &tls.Config{ServerName: s.cfg.Host, MinVersion: tls.VersionTLS12}
		if err := client.StartTLS(tlsConfig); err != nil {
			return fmt.Errorf("STARTTLS failed: %w", err)
		}
	}
	if err := s.authenticate(client); err != nil {
		return err
	}
	return client.Quit()
}
