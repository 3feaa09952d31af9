package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"
)

// SMTPSender delivers messages over SMTP with STARTTLS when offered.
// The whole exchange is bounded by the context deadline.
type SMTPSender struct {
	host     string
	port     string
	user     string
	password string
	from     string
}

func NewSMTPSender(host, port, user, password, from string) *SMTPSender {
	return &SMTPSender{
		host:     host,
		port:     port,
		user:     user,
		password: password,
		from:     from,
	}
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(s.host, s.port))
	if err != nil {
		return fmt.Errorf("dial smtp: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return fmt.Errorf("set deadline: %w", err)
		}
	}

	// Unblock the exchange if ctx is cancelled without a deadline.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	c, err := smtp.NewClient(conn, s.host)
	if err != nil {
		return s.wrap(ctx, "smtp handshake", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: s.host}); err != nil {
			return s.wrap(ctx, "starttls", err)
		}
	}

	if s.user != "" {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(smtp.PlainAuth("", s.user, s.password, s.host)); err != nil {
				return s.wrap(ctx, "smtp auth", err)
			}
		}
	}

	if err := c.Mail(s.from); err != nil {
		return s.wrap(ctx, "mail from", err)
	}
	if err := c.Rcpt(msg.To); err != nil {
		return s.wrap(ctx, "rcpt to", err)
	}

	w, err := c.Data()
	if err != nil {
		return s.wrap(ctx, "data", err)
	}
	if _, err := w.Write(s.build(msg)); err != nil {
		return s.wrap(ctx, "write body", err)
	}
	if err := w.Close(); err != nil {
		return s.wrap(ctx, "close body", err)
	}

	return c.Quit()
}

func (s *SMTPSender) build(msg Message) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.from)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.HTML)
	b.WriteString("\r\n")
	return []byte(b.String())
}

// wrap prefers the context error so callers can tell a timeout from a refusal.
func (s *SMTPSender) wrap(ctx context.Context, step string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", step, ctxErr)
	}
	// the connection deadline can fire just before the context timer does
	if deadline, ok := ctx.Deadline(); ok && !time.Now().Before(deadline) {
		return fmt.Errorf("%s: %w", step, context.DeadlineExceeded)
	}
	return fmt.Errorf("%s: %w", step, err)
}
