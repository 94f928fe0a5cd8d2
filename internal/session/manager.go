// Package session manages the auth cookies: the session token cookie and
// the custody cookie holding the operator's proof during impersonation.
// Both are HttpOnly; page scripts never see either value.
package session

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/teamauth/internal/config"
)

const (
	DefaultCookieName = "_sid"
	CustodyCookieName = "_imp_custody"
)

// Manager manages auth session cookies.
type Manager struct {
	cookieName string
	secure     bool
}

func NewManager(cfg config.Config) *Manager {
	return &Manager{
		cookieName: DefaultCookieName,
		secure:     cfg.AuthCookieSecure,
	}
}

func (m *Manager) CookieName() string {
	return m.cookieName
}

func (m *Manager) ReadToken(c *gin.Context) (string, bool) {
	token, err := c.Cookie(m.cookieName)
	if err != nil {
		return "", false
	}
	if strings.TrimSpace(token) == "" {
		return "", false
	}
	return token, true
}

func (m *Manager) Set(c *gin.Context, value string, expiresAt time.Time) {
	maxAge := int(time.Until(expiresAt).Seconds())
	if maxAge < 0 {
		maxAge = 0
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(m.cookieName, value, maxAge, "/", "", m.secure, true)
}

func (m *Manager) Clear(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(m.cookieName, "", -1, "/", "", m.secure, true)
}

// CustodyManager manages the custody token cookie. Strict same-site: the
// custody proof must never ride along on cross-site navigation.
type CustodyManager struct {
	secure bool
	ttl    time.Duration
}

func NewCustodyManager(cfg config.Config) *CustodyManager {
	return &CustodyManager{
		secure: cfg.AuthCookieSecure,
		ttl:    cfg.ImpersonationTTL,
	}
}

func (m *CustodyManager) ReadToken(c *gin.Context) (string, bool) {
	token, err := c.Cookie(CustodyCookieName)
	if err != nil {
		return "", false
	}
	if strings.TrimSpace(token) == "" {
		return "", false
	}
	return token, true
}

func (m *CustodyManager) Set(c *gin.Context, value string) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(CustodyCookieName, value, int(m.ttl.Seconds()), "/", "", m.secure, true)
}

func (m *CustodyManager) Clear(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(CustodyCookieName, "", -1, "/", "", m.secure, true)
}
