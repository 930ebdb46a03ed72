package notify

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

// EmailConfig holds SMTP-over-TLS settings.
type EmailConfig struct {
	Host     string
	Port     int
	Sender   string
	Password string
	Receiver string

	// TLSConfig overrides the default TLS settings (tests).
	TLSConfig *tls.Config
}

// EmailNotifier sends plain-text mail over implicit TLS (SMTPS, port 465).
type EmailNotifier struct {
	cfg EmailConfig
	now func() time.Time
}

// NewEmailNotifier validates cfg and creates the notifier.
func NewEmailNotifier(cfg EmailConfig) (*EmailNotifier, error) {
	if cfg.Host == "" || cfg.Sender == "" || cfg.Receiver == "" {
		return nil, fmt.Errorf("%w: email host, sender and receiver are required", ErrNotConfigured)
	}
	if cfg.Port == 0 {
		cfg.Port = 465
	}
	return &EmailNotifier{cfg: cfg, now: time.Now}, nil
}

// Send dials the server, authenticates and delivers one message.
func (e *EmailNotifier) Send(ctx context.Context, subject, body string) error {
	addr := net.JoinHostPort(e.cfg.Host, strconv.Itoa(e.cfg.Port))
	tlsCfg := e.cfg.TLSConfig
	if tlsCfg == nil {
		tlsCfg = &tls.Config{ServerName: e.cfg.Host, MinVersion: tls.VersionTLS12}
	}

	dialer := &tls.Dialer{Config: tlsCfg}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("smtp dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, e.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if e.cfg.Password != "" {
		if ok, _ := client.Extension("AUTH"); ok {
			auth := smtp.PlainAuth("", e.cfg.Sender, e.cfg.Password, e.cfg.Host)
			if err := client.Auth(auth); err != nil {
				return fmt.Errorf("smtp auth: %w", err)
			}
		}
	}

	if err := client.Mail(e.cfg.Sender); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := client.Rcpt(e.cfg.Receiver); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(e.message(subject, body)); err != nil {
		w.Close()
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp data close: %w", err)
	}

	return client.Quit()
}

// message builds the RFC 5322 message with CRLF line endings.
func (e *EmailNotifier) message(subject, body string) []byte {
	var sb strings.Builder
	sb.WriteString("From: " + e.cfg.Sender + "\r\n")
	sb.WriteString("To: " + e.cfg.Receiver + "\r\n")
	sb.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", subject) + "\r\n")
	sb.WriteString("Date: " + e.now().Format(time.RFC1123Z) + "\r\n")
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	sb.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(strings.ReplaceAll(strings.ReplaceAll(body, "\r\n", "\n"), "\n", "\r\n"))
	return []byte(sb.String())
}

var _ Notifier = (*EmailNotifier)(nil)
