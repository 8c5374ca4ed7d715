package mail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"github.com/mindsetalert/backoffice/internal/pkg/env"
)

var ErrNotConfigured = errors.New("SMTP not configured")

// DownloadMail carries what the customer needs to fetch the installer.
type DownloadMail struct {
	To          string
	LicenseKey  string
	DownloadURL string
}

// Mailer delivers transactional email.
type Mailer interface {
	SendDownloadLink(ctx context.Context, m DownloadMail) error
}

type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Sender   string
}

func SMTPConfigFromEnv() SMTPConfig {
	return SMTPConfig{
		Host:     env.GetEnv("SMTP_HOST", ""),
		Port:     env.GetEnv("SMTP_PORT", "587"),
		Username: env.GetEnv("SMTP_USERNAME", ""),
		Password: env.GetEnv("SMTP_PASSWORD", ""),
		Sender:   env.GetEnv("SMTP_SENDER", ""),
	}
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPMailer sends emails via SMTP
type SMTPMailer struct {
	config SMTPConfig
	send   sendFunc
}

func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	if cfg.Sender == "" {
		cfg.Sender = "Mindset <no-reply@localhost>"
	}
	return &SMTPMailer{config: cfg, send: smtp.SendMail}
}

func (m *SMTPMailer) SendDownloadLink(ctx context.Context, dm DownloadMail) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.config.Host == "" {
		return ErrNotConfigured
	}
	to := strings.TrimSpace(dm.To)
	if to == "" || strings.ContainsAny(to, "\r\n") {
		return fmt.Errorf("invalid recipient %q", dm.To)
	}

	body, err := renderDownloadMail(dm)
	if err != nil {
		return err
	}

	var auth smtp.Auth
	if m.config.Username != "" && m.config.Password != "" {
		auth = smtp.PlainAuth("", m.config.Username, m.config.Password, m.config.Host)
	}
	addr := fmt.Sprintf("%s:%s", m.config.Host, m.config.Port)

	msg := []byte(
		fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n", m.config.Sender, to, downloadSubject) +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/html; charset=UTF-8\r\n\r\n" +
			body,
	)

	if err := m.send(addr, auth, senderAddress(m.config.Sender), []string{to}, msg); err != nil {
		log.Errorf("[Mail] SMTP send to %s failed: %v", to, err)
		return err
	}
	log.Infof("[Mail] download link sent to %s via %s", to, addr)
	return nil
}

// senderAddress extracts the bare address from "Name <addr>".
func senderAddress(sender string) string {
	if i := strings.LastIndex(sender, "<"); i >= 0 {
		if j := strings.LastIndex(sender, ">"); j > i {
			return sender[i+1 : j]
		}
	}
	return sender
}

const downloadSubject = "Your Mindset - Alert Strategy download"

var downloadTemplate = template.Must(template.New("download").Parse(`<div style="font-family:system-ui,Segoe UI,Roboto,Arial,sans-serif;line-height:1.5;color:#111">
  <h2>Thank you for your purchase</h2>
  <p>Your license is active.{{if .LicenseKey}} License key: <strong>{{.LicenseKey}}</strong>{{end}}</p>
  <p>Download the program with the link below (valid for 6 months):</p>
  <p><a href="{{.DownloadURL}}" style="background:#F59E0B;color:#111;padding:10px 14px;border-radius:8px;text-decoration:none;font-weight:600">Download Mindset - Alert Strategy</a></p>
  <p>If the button does not work, use this direct link:<br/><a href="{{.DownloadURL}}">{{.DownloadURL}}</a></p>
  <hr/>
  <p style="font-size:12px;color:#666">This link expires automatically. You can generate a new one from your account.</p>
</div>
`))

func renderDownloadMail(dm DownloadMail) (string, error) {
	var buf bytes.Buffer
	if err := downloadTemplate.Execute(&buf, dm); err != nil {
		return "", fmt.Errorf("render download mail: %w", err)
	}
	return buf.String(), nil
}
