// Package event is the in-process notification channel for identity changes.
// The session cache and auth state aggregator subscribe so they stay
// consistent without polling the provider.
package event

import (
	"sync"

	"github.com/smallbiznis/teamauth/internal/identity/domain"
)

type Type string

const (
	SignedIn       Type = "signed_in"
	SignedOut      Type = "signed_out"
	TokenRefreshed Type = "token_refreshed"
)

// Event describes an identity change. Session always carries the raw
// token so subscribers keyed by token can update their entries; for
// SignedOut it is the session that was just revoked.
type Event struct {
	Type    Type
	Session *domain.Session
}

// Hub fans identity events out to subscribers. Subscriptions are process
// lifetime; delivery is synchronous and in registration order.
type Hub struct {
	mu   sync.RWMutex
	subs []func(Event)
}

func NewHub() *Hub {
	return &Hub{}
}

func (h *Hub) Subscribe(fn func(Event)) {
	if fn == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs = append(h.subs, fn)
}

func (h *Hub) Publish(e Event) {
	h.mu.RLock()
	subs := make([]func(Event), len(h.subs))
	copy(subs, h.subs)
	h.mu.RUnlock()

	for _, fn := range subs {
		fn(e)
	}
}
