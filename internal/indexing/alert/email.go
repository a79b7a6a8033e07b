package alert

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

// EmailConfig points at an SMTP relay. Username may be empty for relays
// that accept unauthenticated mail.
type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

type sendMailFunc func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error

// EmailAlerter mails alerts to the operators.
type EmailAlerter struct {
	cfg      EmailConfig
	sendMail sendMailFunc
}

// NewEmailAlerter creates an alerter sending through cfg.Host.
func NewEmailAlerter(cfg EmailConfig) *EmailAlerter {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &EmailAlerter{cfg: cfg, sendMail: smtp.SendMail}
}

// Send mails the alert. net/smtp has no context support, so ctx only bounds
// how long Send waits; the SMTP exchange finishes in the background.
func (e *EmailAlerter) Send(ctx context.Context, alert Alert) error {
	var auth smtp.Auth
	if e.cfg.Username != "" {
		auth = smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, e.cfg.Host)
	}
	addr := net.JoinHostPort(e.cfg.Host, strconv.Itoa(e.cfg.Port))
	msg := e.message(alert)

	done := make(chan error, 1)
	go func() {
		done <- e.sendMail(addr, auth, e.cfg.From, e.cfg.To, msg)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send email alert: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("send email alert: %w", ctx.Err())
	}
}

func (e *EmailAlerter) message(alert Alert) []byte {
	ts := alert.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", e.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(e.cfg.To, ", "))
	fmt.Fprintf(&b, "Subject: [%s] %s\r\n", alert.Class, alert.Title)
	fmt.Fprintf(&b, "Date: %s\r\n", ts.Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")

	b.WriteString(alert.Message)
	b.WriteString("\r\n")
	if len(alert.Fields) > 0 {
		b.WriteString("\r\n")
		for _, k := range sortedFields(alert.Fields) {
			fmt.Fprintf(&b, "%s: %s\r\n", k, alert.Fields[k])
		}
	}
	return b.Bytes()
}
