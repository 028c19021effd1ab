// Package email provides email sending capabilities via SMTP.
package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"html/template"
	"mime"
	"net"
	"net/smtp"
	"os"
	"strings"
	"time"
)

const appName = "Telloom"

// ErrNotConfigured is returned when SMTP settings are missing.
var ErrNotConfigured = errors.New("email not configured")

// Config holds SMTP configuration
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
	// Timeout bounds a single send. Zero means five seconds.
	Timeout time.Duration
}

type sendFunc func(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Service provides email sending
type Service struct {
	config  Config
	server  string
	auth    smtp.Auth
	timeout time.Duration
	send    sendFunc
}

// NewService creates a new email service
func NewService(config Config) *Service {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Service{
		config:  config,
		server:  config.Host + ":" + config.Port,
		auth:    smtp.PlainAuth("", config.Username, config.Password, config.Host),
		timeout: timeout,
		send:    sendSMTP,
	}
}

// IsConfigured returns true if email is configured
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

// SendHTMLEmail sends a multipart HTML email. The whole exchange, dial
// included, is bounded by the configured timeout and ctx.
func (s *Service) SendHTMLEmail(ctx context.Context, to []string, subject, htmlBody string) error {
	if !s.IsConfigured() {
		return ErrNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	msg := s.buildMessage(to, subject, htmlBody)
	if err := s.send(ctx, s.server, s.auth, s.config.From, to, msg); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("send email: %w", ctxErr)
		}
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return fmt.Errorf("send email: %w", context.DeadlineExceeded)
		}
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

// sendSMTP is smtp.SendMail over a connection that is closed once ctx ends.
func sendSMTP(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	host, _, _ := net.SplitHostPort(addr)
	client, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return err
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: host}); err != nil {
			return err
		}
	}
	if a != nil {
		if ok, _ := client.Extension("AUTH"); ok {
			if err := client.Auth(a); err != nil {
				return err
			}
		}
	}
	if err := client.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}

var headerBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

// headerValue keeps a value on one header line.
func headerValue(value string) string {
	return strings.TrimSpace(headerBreaks.Replace(value))
}

func (s *Service) buildMessage(to []string, subject, htmlBody string) []byte {
	from := headerValue(s.config.From)
	if name := headerValue(s.config.FromName); name != "" {
		from = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", name), from)
	}
	recipients := make([]string, len(to))
	for i, addr := range to {
		recipients[i] = headerValue(addr)
	}

	boundary := "boundary-telloom"

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(recipients, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", headerValue(subject)))
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "Please view this email in an HTML-capable email client.\r\n")
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", htmlBody)
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)
	return msg.Bytes()
}

type InvitationData struct {
	AppName     string
	SharerName  string
	InviterName string
	Role        string
	AcceptURL   string
}

type FollowRequestData struct {
	AppName        string
	SharerName     string
	RequestorName  string
	RequestorEmail string
	ReviewURL      string
}

type FollowApprovedData struct {
	AppName       string
	RequestorName string
	SharerName    string
	ViewURL       string
}

// SendInvitationEmail invites someone to connect with a sharer.
func (s *Service) SendInvitationEmail(ctx context.Context, to string, data InvitationData) error {
	data.AppName = appName
	html, err := renderTemplate(invitationEmailTemplate, data)
	if err != nil {
		return fmt.Errorf("render invitation template: %w", err)
	}
	subject := fmt.Sprintf("%s invited you to %s", data.InviterName, appName)
	return s.SendHTMLEmail(ctx, []string{to}, subject, html)
}

// SendFollowRequestEmail tells a sharer someone asked to follow them.
func (s *Service) SendFollowRequestEmail(ctx context.Context, to string, data FollowRequestData) error {
	data.AppName = appName
	html, err := renderTemplate(followRequestEmailTemplate, data)
	if err != nil {
		return fmt.Errorf("render follow request template: %w", err)
	}
	subject := fmt.Sprintf("%s wants to follow your stories", data.RequestorName)
	return s.SendHTMLEmail(ctx, []string{to}, subject, html)
}

// SendFollowApprovedEmail tells a requestor their follow request was approved.
func (s *Service) SendFollowApprovedEmail(ctx context.Context, to string, data FollowApprovedData) error {
	data.AppName = appName
	html, err := renderTemplate(followApprovedEmailTemplate, data)
	if err != nil {
		return fmt.Errorf("render follow approved template: %w", err)
	}
	subject := fmt.Sprintf("%s approved your follow request", data.SharerName)
	return s.SendHTMLEmail(ctx, []string{to}, subject, html)
}

var templates = map[string]*template.Template{}

func renderTemplate(name string, data any) (string, error) {
	t, ok := templates[name]
	if !ok {
		return "", fmt.Errorf("unknown template %q", name)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func init() {
	for name, body := range map[string]string{
		invitationEmailTemplate:     invitationEmailBody,
		followRequestEmailTemplate:  followRequestEmailBody,
		followApprovedEmailTemplate: followApprovedEmailBody,
	} {
		templates[name] = template.Must(template.New(name).Parse(emailLayout + body))
	}
}

const (
	invitationEmailTemplate     = "invitation"
	followRequestEmailTemplate  = "follow_request"
	followApprovedEmailTemplate = "follow_approved"
)

const emailLayout = `{{define "style"}}
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #8b5a2b; padding-bottom: 10px; margin-bottom: 20px; }
        .button { display: inline-block; padding: 12px 24px; background: #8b5a2b; color: white; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
        .link { word-break: break-all; color: #8b5a2b; }
{{end}}`

const invitationEmailBody = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>You're invited to {{.AppName}}</title>
    <style>{{template "style"}}</style>
</head>
<body>
    <div class="header">
        <h1>{{.AppName}}</h1>
    </div>

    <h2>{{.InviterName}} invited you</h2>

    <p>{{.InviterName}} would like you to join {{.SharerName}} on {{.AppName}} as {{if eq .Role "EXECUTOR"}}an executor, helping look after their stories{{else}}a listener, with access to their recorded stories{{end}}.</p>

    <p>
        <a href="{{.AcceptURL}}" class="button">View Invitation</a>
    </p>

    <p>Or copy and paste this link into your browser:</p>
    <p class="link">{{.AcceptURL}}</p>

    <div class="footer">
        <p>If you weren't expecting this invitation, you can safely ignore this email.</p>
    </div>
</body>
</html>`

const followRequestEmailBody = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>New follow request on {{.AppName}}</title>
    <style>{{template "style"}}</style>
</head>
<body>
    <div class="header">
        <h1>{{.AppName}}</h1>
    </div>

    <h2>Hi {{.SharerName}},</h2>

    <p>{{.RequestorName}} ({{.RequestorEmail}}) asked to follow your stories.</p>

    <p>
        <a href="{{.ReviewURL}}" class="button">Review Request</a>
    </p>

    <div class="footer">
        <p>Only people you approve can see your stories.</p>
    </div>
</body>
</html>`

const followApprovedEmailBody = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Follow request approved</title>
    <style>{{template "style"}}</style>
</head>
<body>
    <div class="header">
        <h1>{{.AppName}}</h1>
    </div>

    <h2>Hi {{.RequestorName}},</h2>

    <p>{{.SharerName}} approved your follow request. Their stories are now available to you.</p>

    <p>
        <a href="{{.ViewURL}}" class="button">Start Listening</a>
    </p>
</body>
</html>`
