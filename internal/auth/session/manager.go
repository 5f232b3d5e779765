// Package session carries admin session tokens in an HTTP-only cookie scoped
// to the admin surface.
package session

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/donara/internal/clock"
	"github.com/smallbiznis/donara/internal/config"
)

const (
	DefaultCookieName = "_sid"
	cookiePath        = "/admin"
)

type Manager struct {
	cookieName string
	secure     bool
	clock      clock.Clock
}

func NewManager(cfg config.Config) *Manager {
	return NewManagerWithClock(cfg, clock.SystemClock{})
}

func NewManagerWithClock(cfg config.Config, c clock.Clock) *Manager {
	name := strings.TrimSpace(cfg.Admin.SessionCookie)
	if name == "" {
		name = DefaultCookieName
	}
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Manager{
		cookieName: name,
		secure:     cfg.AuthCookieSecure,
		clock:      c,
	}
}

func (m *Manager) CookieName() string {
	return m.cookieName
}

// ReadToken returns the raw session token, or false when the cookie is absent or blank.
func (m *Manager) ReadToken(c *gin.Context) (string, bool) {
	token, err := c.Cookie(m.cookieName)
	if err != nil {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// Set writes the token with a max age matching the stored session expiry.
func (m *Manager) Set(c *gin.Context, token string, expiresAt time.Time) {
	maxAge := int(expiresAt.Sub(m.clock.Now()) / time.Second)
	if maxAge <= 0 {
		m.Clear(c)
		return
	}
	m.write(c, token, maxAge)
}

func (m *Manager) Clear(c *gin.Context) {
	m.write(c, "", -1)
}

func (m *Manager) write(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(m.cookieName, value, maxAge, cookiePath, "", m.secure, true)
}
