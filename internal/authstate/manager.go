package authstate

import (
	"context"
	"sync"

	identitydomain "github.com/smallbiznis/teamauth/internal/identity/domain"
	"github.com/smallbiznis/teamauth/internal/identity/event"
	profiledomain "github.com/smallbiznis/teamauth/internal/profile/domain"
	"github.com/smallbiznis/teamauth/internal/sessioncache"
	teamdomain "github.com/smallbiznis/teamauth/internal/team/domain"
	"go.uber.org/zap"
)

// Manager hands out one Store per session token and routes identity
// events to the store they concern.
type Manager struct {
	log      *zap.Logger
	sessions *sessioncache.Cache
	identity identitydomain.Provider
	profiles profiledomain.Service
	teams    teamdomain.Service

	mu     sync.Mutex
	stores map[string]*Store
}

func NewManager(
	log *zap.Logger,
	sessions *sessioncache.Cache,
	identity identitydomain.Provider,
	profiles profiledomain.Service,
	teams teamdomain.Service,
) *Manager {
	return &Manager{
		log:      log.Named("authstate"),
		sessions: sessions,
		identity: identity,
		profiles: profiles,
		teams:    teams,
		stores:   make(map[string]*Store),
	}
}

// For returns the store for token, creating it on first use.
func (m *Manager) For(token string) *Store {
	m.mu.Lock()
	defer m.mu.Unlock()
	if store, ok := m.stores[token]; ok {
		return store
	}
	store := newStore(m.log, token, m.sessions, m.identity, m.profiles, m.teams)
	m.stores[token] = store
	return store
}

// Resolve initializes the store for token and returns its snapshot. An
// empty token resolves to unauthenticated without creating a store, and
// a store that resolves unauthenticated is dropped again so unknown
// tokens never accumulate.
func (m *Manager) Resolve(ctx context.Context, token string) AuthState {
	if token == "" {
		return AuthState{Status: StatusUnauthenticated}
	}
	store := m.For(token)
	store.Init(ctx)
	state := store.Snapshot()
	if state.Status == StatusUnauthenticated {
		m.Forget(token, store)
	}
	return state
}

// Forget removes the store for token, but only if it is still the one
// the caller resolved; a concurrent sign-in may have replaced it.
func (m *Manager) Forget(token string, store *Store) {
	m.mu.Lock()
	if m.stores[token] == store {
		delete(m.stores, token)
	}
	m.mu.Unlock()
}

// ApplyEvent reacts to identity events. Sign-out drops the token's store
// after marking it signed out; sign-in and refresh force a reload so the
// next read observes the new session.
func (m *Manager) ApplyEvent(ctx context.Context, e event.Event) {
	if e.Session == nil || e.Session.RawToken == "" {
		return
	}

	m.mu.Lock()
	store, ok := m.stores[e.Session.RawToken]
	if e.Type == event.SignedOut {
		delete(m.stores, e.Session.RawToken)
	}
	m.mu.Unlock()

	if !ok {
		return
	}
	switch e.Type {
	case event.SignedOut:
		store.markSignedOut()
	case event.SignedIn:
		store.Refresh(ctx)
	case event.TokenRefreshed:
		// Published from inside a session lookup; a full Refresh here
		// would re-enter the in-flight cache fetch for the same token.
		// Only the session changed, so swap it in directly.
		store.applySessionRefresh(e.Session)
	}
}
