package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/resend/resend-go/v2"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"ottoseguridad_backend/pkg/config"
)

var ErrNotConfigured = errors.New("email transport is not configured")

// Message is a rendered email ready for delivery.
type Message struct {
	From    string
	To      string
	Subject string
	HTML    string
	Headers map[string]string
}

// Transport delivers a single message.
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

// NewTransport builds the transport selected by EMAIL_PROVIDER.
func NewTransport(cfg config.EmailConfig) (Transport, error) {
	switch cfg.Provider {
	case "resend":
		if cfg.ResendAPIKey == "" {
			return nil, fmt.Errorf("%w: RESEND_API_KEY is empty", ErrNotConfigured)
		}
		return &ResendTransport{client: resend.NewClient(cfg.ResendAPIKey)}, nil
	case "sendgrid":
		if cfg.SendGridKey == "" {
			return nil, fmt.Errorf("%w: SENDGRID_API_KEY is empty", ErrNotConfigured)
		}
		return &SendGridTransport{client: sendgrid.NewSendClient(cfg.SendGridKey)}, nil
	case "smtp":
		if cfg.SMTPHost == "" {
			return nil, fmt.Errorf("%w: SMTP_HOST is empty", ErrNotConfigured)
		}
		return &SMTPTransport{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			User:     cfg.SMTPUser,
			Password: cfg.SMTPPassword,
		}, nil
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.Provider)
	}
}

type ResendTransport struct {
	client *resend.Client
}

func (t *ResendTransport) Send(ctx context.Context, msg Message) error {
	params := &resend.SendEmailRequest{
		From:    msg.From,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTML,
		Headers: msg.Headers,
	}
	if _, err := t.client.Emails.SendWithContext(ctx, params); err != nil {
		return fmt.Errorf("resend: %w", err)
	}
	return nil
}

type SendGridTransport struct {
	client *sendgrid.Client
}

func (t *SendGridTransport) Send(ctx context.Context, msg Message) error {
	from, err := mail.ParseAddress(msg.From)
	if err != nil {
		return fmt.Errorf("sendgrid: bad from address: %w", err)
	}
	message := sgmail.NewSingleEmail(
		sgmail.NewEmail(from.Name, from.Address),
		msg.Subject,
		sgmail.NewEmail("", msg.To),
		"",
		msg.HTML,
	)
	for k, v := range msg.Headers {
		message.SetHeader(k, v)
	}

	resp, err := t.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid returned %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}

const smtpTimeout = 30 * time.Second

// SMTPTransport sends through a relay with PLAIN auth.
type SMTPTransport struct {
	Host     string
	Port     int
	User     string
	Password string
	// Timeout bounds a whole delivery when ctx has no earlier deadline.
	Timeout time.Duration
}

func (t *SMTPTransport) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	from, err := mail.ParseAddress(msg.From)
	if err != nil {
		return fmt.Errorf("smtp: bad from address: %w", err)
	}

	timeout := t.Timeout
	if timeout <= 0 {
		timeout = smtpTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	addr := net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("smtp: dial %s: %w", addr, err)
	}
	defer conn.Close()

	deadline, _ := ctx.Deadline()
	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("smtp: %w", err)
	}
	// unblock reads and writes when ctx is cancelled early
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()

	if err := t.deliver(conn, from.Address, msg); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("smtp: %w", ctxErr)
		}
		return fmt.Errorf("smtp: %w", err)
	}
	return nil
}

func (t *SMTPTransport) deliver(conn net.Conn, from string, msg Message) error {
	c, err := smtp.NewClient(conn, t.Host)
	if err != nil {
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: t.Host}); err != nil {
			return err
		}
	}
	if t.User != "" {
		if err := c.Auth(smtp.PlainAuth("", t.User, t.Password, t.Host)); err != nil {
			return err
		}
	}
	if err := c.Mail(from); err != nil {
		return err
	}
	if err := c.Rcpt(msg.To); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(buildMIME(msg)); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

func buildMIME(msg Message) []byte {
	var b strings.Builder
	b.WriteString("From: " + msg.From + "\r\n")
	b.WriteString("To: " + msg.To + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", msg.Subject) + "\r\n")
	b.WriteString("Date: " + time.Now().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n")
	for k, v := range msg.Headers {
		b.WriteString(k + ": " + v + "\r\n")
	}
	b.WriteString("\r\n")
	b.WriteString(msg.HTML)
	return []byte(b.String())
}
