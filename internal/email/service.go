package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/redmonkez12/go-otp-auth/internal/logging"
	"github.com/redmonkez12/go-otp-auth/templates"
)

// Message is a rendered email ready for delivery.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Sender delivers a message. Implementations must honour ctx cancellation.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// OTPEmail holds what goes into a verification code email.
type OTPEmail struct {
	To        string
	FirstName string
	Code      string
	TTL       time.Duration
}

type Service struct {
	sender      Sender
	appName     string
	frontendURL string
	otpTmpl     *template.Template
	resetTmpl   *template.Template
	now         func() time.Time
}

func NewService(sender Sender, appName, frontendURL string) (*Service, error) {
	otpTmpl, err := parseTemplate("otp.html")
	if err != nil {
		return nil, err
	}
	resetTmpl, err := parseTemplate("password_reset.html")
	if err != nil {
		return nil, err
	}

	return &Service{
		sender:      sender,
		appName:     appName,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		otpTmpl:     otpTmpl,
		resetTmpl:   resetTmpl,
		now:         time.Now,
	}, nil
}

func parseTemplate(name string) (*template.Template, error) {
	t, err := template.ParseFS(templates.EmailFS, "email/layout.html", "email/"+name)
	if err != nil {
		return nil, fmt.Errorf("parse template %s: %w", name, err)
	}
	return t, nil
}

// SendOTP delivers a verification code.
func (s *Service) SendOTP(ctx context.Context, m OTPEmail) error {
	logger := logging.GetLoggerFromContext(ctx)

	greeting := m.FirstName
	if greeting == "" {
		greeting = "there"
	}

	body, err := s.render(s.otpTmpl, map[string]any{
		"Greeting":  greeting,
		"Code":      m.Code,
		"ExpiresIn": humanDuration(m.TTL),
	})
	if err != nil {
		logger.Error("failed to render email template", "error", err)
		return err
	}

	msg := Message{
		To:      m.To,
		Subject: fmt.Sprintf("Your %s Verification Code", s.appName),
		HTML:    body,
	}
	if err := s.sender.Send(ctx, msg); err != nil {
		logger.Error("failed to send verification code", "email", m.To, "error", err)
		return fmt.Errorf("send email: %w", err)
	}

	logger.Info("verification code sent", "email", m.To)
	return nil
}

// SendPasswordReset delivers a password reset link built from token.
func (s *Service) SendPasswordReset(ctx context.Context, to, token string, ttl time.Duration) error {
	logger := logging.GetLoggerFromContext(ctx)

	resetLink := fmt.Sprintf("%s/reset-password?token=%s", s.frontendURL, token)

	body, err := s.render(s.resetTmpl, map[string]any{
		"ResetLink": resetLink,
		"ExpiresIn": humanDuration(ttl),
	})
	if err != nil {
		logger.Error("failed to render password reset email template", "error", err)
		return err
	}

	msg := Message{
		To:      to,
		Subject: "Reset your password",
		HTML:    body,
	}
	if err := s.sender.Send(ctx, msg); err != nil {
		logger.Error("failed to send password reset email", "email", to, "error", err)
		return fmt.Errorf("send email: %w", err)
	}

	logger.Info("password reset email sent", "email", to)
	return nil
}

func (s *Service) render(t *template.Template, data map[string]any) (string, error) {
	data["AppName"] = s.appName
	data["Year"] = s.now().Year()

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}
	return buf.String(), nil
}

// humanDuration renders whole minutes and hours the way people write them.
func humanDuration(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	case d >= time.Minute && d%time.Minute == 0:
		return plural(int(d/time.Minute), "minute")
	default:
		return d.String()
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
