package sessioncache

import (
	"context"
	"sync"
	"time"

	"github.com/smallbiznis/teamauth/internal/clock"
	"github.com/smallbiznis/teamauth/internal/identity/domain"
	"github.com/smallbiznis/teamauth/internal/identity/event"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// freshness is how long a cached session lookup is trusted before the
// provider is consulted again.
const freshness = 30 * time.Second

type entry struct {
	session   *domain.Session
	fetchedAt time.Time
}

// Cache memoizes session lookups keyed by the raw session token.
// Concurrent lookups for the same token while no fresh entry exists are
// coalesced into a single provider call. Provider failures resolve to a
// nil session rather than an error so callers treat the requester as
// signed out.
type Cache struct {
	log      *zap.Logger
	provider domain.Provider
	clk      clock.Clock

	mu      sync.RWMutex
	entries map[string]entry
	group   singleflight.Group
}

func New(log *zap.Logger, provider domain.Provider, clk clock.Clock) *Cache {
	return &Cache{
		log:      log.Named("sessioncache"),
		provider: provider,
		clk:      clk,
		entries:  make(map[string]entry),
	}
}

// Get returns the session for token, serving from cache when the entry is
// younger than the freshness window. force bypasses the cache but still
// coalesces with any in-flight fetch for the same token.
func (c *Cache) Get(ctx context.Context, token string, force bool) *domain.Session {
	if token == "" {
		return nil
	}

	if !force {
		c.mu.RLock()
		e, ok := c.entries[token]
		c.mu.RUnlock()
		if ok && c.clk.Now().Sub(e.fetchedAt) < freshness {
			return e.session
		}
	}

	v, _, _ := c.group.Do(token, func() (interface{}, error) {
		session, err := c.provider.CurrentSession(ctx, token)
		if err != nil {
			c.log.Warn("session lookup failed", zap.Error(err))
			session = nil
		}
		c.store(token, session)
		return session, nil
	})

	session, _ := v.(*domain.Session)
	return session
}

// Invalidate drops the cached entry for token. The next Get consults the
// provider.
func (c *Cache) Invalidate(token string) {
	c.mu.Lock()
	delete(c.entries, token)
	c.mu.Unlock()
}

// ApplyEvent updates the cache directly from an identity event, avoiding a
// round trip to the provider on sign-in, sign-out and token refresh.
func (c *Cache) ApplyEvent(e event.Event) {
	if e.Session == nil || e.Session.RawToken == "" {
		return
	}
	switch e.Type {
	case event.SignedIn, event.TokenRefreshed:
		c.store(e.Session.RawToken, e.Session)
	case event.SignedOut:
		c.Invalidate(e.Session.RawToken)
	}
}

// store caches a live session. Failed lookups are not cached so the map
// only ever holds tokens that resolved to a session; arbitrary junk
// tokens cannot grow it.
func (c *Cache) store(token string, session *domain.Session) {
	c.mu.Lock()
	if session == nil {
		delete(c.entries, token)
	} else {
		c.entries[token] = entry{session: session, fetchedAt: c.clk.Now()}
	}
	c.mu.Unlock()
}
