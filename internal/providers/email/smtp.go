package email

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func (c Config) addr() string {
	port := c.Port
	if port == 0 {
		port = 587
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

func (c Config) auth() smtp.Auth {
	if c.Username == "" {
		return nil
	}
	return smtp.PlainAuth("", c.Username, c.Password, c.Host)
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPSender delivers through one relay. Each Send opens its own connection.
type SMTPSender struct {
	cfg  Config
	send sendFunc
	now  func() time.Time
}

func NewSMTP(cfg Config) *SMTPSender {
	return &SMTPSender{cfg: cfg, send: smtp.SendMail, now: time.Now}
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	to := recipients(msg.To)
	if len(to) == 0 {
		return ErrNoRecipients
	}
	tmpl := templates.Lookup(msg.Template + ".html")
	if tmpl == nil {
		return fmt.Errorf("%w: %s", ErrUnknownTemplate, msg.Template)
	}
	var body bytes.Buffer
	if err := tmpl.Execute(&body, msg.Data); err != nil {
		return fmt.Errorf("email: render %s: %w", msg.Template, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	raw := s.envelope(to, msg.Subject, body.Bytes())
	if err := s.send(s.cfg.addr(), s.cfg.auth(), s.cfg.From, to, raw); err != nil {
		return fmt.Errorf("email: send via %s: %w", s.cfg.Host, err)
	}
	return nil
}

// envelope writes the RFC 5322 headers the relay expects. The subject is
// Q-encoded since donor and orphanage names are not ASCII-only.
func (s *SMTPSender) envelope(to []string, subject string, html []byte) []byte {
	var b bytes.Buffer
	header := func(k, v string) { fmt.Fprintf(&b, "%s: %s\r\n", k, v) }
	header("From", s.cfg.From)
	header("To", strings.Join(to, ", "))
	header("Subject", mime.QEncoding.Encode("utf-8", subject))
	header("Date", s.now().UTC().Format(time.RFC1123Z))
	header("Message-ID", "<"+uuid.NewString()+"@"+s.cfg.Host+">")
	header("MIME-Version", "1.0")
	header("Content-Type", `text/html; charset="UTF-8"`)
	b.WriteString("\r\n")
	b.Write(html)
	return b.Bytes()
}

func recipients(to []string) []string {
	out := make([]string, 0, len(to))
	for _, addr := range to {
		if addr = strings.TrimSpace(addr); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}
