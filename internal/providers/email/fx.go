package email

import (
	"strings"

	"github.com/smallbiznis/donara/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("providers.email",
	fx.Provide(NewFromConfig),
)

// NewFromConfig returns nil when no SMTP host is configured, which turns the
// email channel off.
func NewFromConfig(cfg config.Config) Sender {
	host := strings.TrimSpace(cfg.Email.SMTPHost)
	if host == "" {
		return nil
	}
	return NewSMTP(Config{
		Host:     host,
		Port:     cfg.Email.SMTPPort,
		Username: cfg.Email.SMTPUsername,
		Password: cfg.Email.SMTPPassword,
		From:     cfg.Email.SMTPFrom,
	})
}
