package authstate

import (
	"context"
	"errors"
	"sync"

	identitydomain "github.com/smallbiznis/teamauth/internal/identity/domain"
	profiledomain "github.com/smallbiznis/teamauth/internal/profile/domain"
	"github.com/smallbiznis/teamauth/internal/sessioncache"
	teamdomain "github.com/smallbiznis/teamauth/internal/team/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Store aggregates the auth state for a single session token. It is safe
// for concurrent use: loads build a complete snapshot off to the side and
// swap it in atomically, and the ready channel closes exactly once after
// the first load so waiters are woken without polling.
type Store struct {
	log      *zap.Logger
	token    string
	sessions *sessioncache.Cache
	identity identitydomain.Provider
	profiles profiledomain.Service
	teams    teamdomain.Service

	mu    sync.RWMutex
	state AuthState

	initOnce  sync.Once
	readyOnce sync.Once
	ready     chan struct{}
}

func newStore(
	log *zap.Logger,
	token string,
	sessions *sessioncache.Cache,
	identity identitydomain.Provider,
	profiles profiledomain.Service,
	teams teamdomain.Service,
) *Store {
	return &Store{
		log:      log,
		token:    token,
		sessions: sessions,
		identity: identity,
		profiles: profiles,
		teams:    teams,
		state:    AuthState{Status: StatusLoading},
		ready:    make(chan struct{}),
	}
}

// Init performs the first load. It is idempotent: concurrent and repeated
// calls trigger exactly one load, and every call returns once that load
// has completed.
func (s *Store) Init(ctx context.Context) {
	s.initOnce.Do(func() {
		s.load(ctx, false)
	})
	s.Wait(ctx)
}

// Refresh forces a reload, bypassing the session cache freshness window.
func (s *Store) Refresh(ctx context.Context) AuthState {
	s.load(ctx, true)
	return s.Snapshot()
}

// Wait blocks until the first load has completed or ctx is done. It
// reports whether the store became ready.
func (s *Store) Wait(ctx context.Context) bool {
	select {
	case <-s.ready:
		return true
	case <-ctx.Done():
		return false
	}
}

// Snapshot returns the current state by value.
func (s *Store) Snapshot() AuthState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// applySessionRefresh swaps a renewed session into an authenticated
// snapshot without reloading user, profile or membership; none of those
// change on a token refresh.
func (s *Store) applySessionRefresh(session *identitydomain.Session) {
	s.mu.Lock()
	if s.state.Status == StatusAuthenticated && s.state.Session != nil && s.state.Session.ID == session.ID {
		s.state.Session = session
		s.state.Generation++
	}
	s.mu.Unlock()
}

// markSignedOut replaces the state with an unauthenticated snapshot
// without consulting any backend. Used when a sign-out event arrives.
func (s *Store) markSignedOut() {
	s.swap(AuthState{Status: StatusUnauthenticated})
	s.readyOnce.Do(func() { close(s.ready) })
}

// load builds a complete snapshot and swaps it in. Failures resolve to a
// definite state, never back to loading, so no caller can block forever
// on a store that already ran a load.
func (s *Store) load(ctx context.Context, force bool) {
	defer s.readyOnce.Do(func() { close(s.ready) })

	session := s.sessions.Get(ctx, s.token, force)
	if session == nil {
		s.swap(AuthState{Status: StatusUnauthenticated})
		return
	}

	next := AuthState{Status: StatusAuthenticated, Session: session}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		user, err := s.identity.GetUser(gctx, session.UserID)
		if err != nil {
			return err
		}
		next.User = user

		profile, err := s.profiles.GetByUser(gctx, session.UserID)
		if err != nil {
			s.log.Warn("profile fetch failed", zap.Error(err))
			return nil
		}
		next.Profile = profile
		return nil
	})
	g.Go(func() error {
		membership, err := s.teams.MembershipForUser(gctx, session.UserID)
		if err != nil {
			if !errors.Is(err, teamdomain.ErrNotMember) {
				s.log.Warn("membership fetch failed", zap.Error(err))
			}
			return nil
		}
		next.Membership = membership

		members, err := s.teams.ListMembers(gctx, membership.TeamID)
		if err != nil {
			s.log.Warn("member list fetch failed", zap.Error(err))
			return nil
		}
		next.Members = members
		return nil
	})

	if err := g.Wait(); err != nil {
		// The user row is gone or unreadable. Treat the requester as
		// signed out rather than publishing a half-populated snapshot.
		s.log.Warn("auth state load failed", zap.Error(err))
		s.swap(AuthState{Status: StatusUnauthenticated})
		return
	}

	s.swap(next)
}

func (s *Store) swap(next AuthState) {
	s.mu.Lock()
	next.Generation = s.state.Generation + 1
	s.state = next
	s.mu.Unlock()
}
