package authstate

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/teamauth/internal/clock"
	identitydomain "github.com/smallbiznis/teamauth/internal/identity/domain"
	"github.com/smallbiznis/teamauth/internal/identity/event"
	identityrepo "github.com/smallbiznis/teamauth/internal/identity/repository"
	identityservice "github.com/smallbiznis/teamauth/internal/identity/service"
	profiledomain "github.com/smallbiznis/teamauth/internal/profile/domain"
	profilerepo "github.com/smallbiznis/teamauth/internal/profile/repository"
	profileservice "github.com/smallbiznis/teamauth/internal/profile/service"
	"github.com/smallbiznis/teamauth/internal/role"
	"github.com/smallbiznis/teamauth/internal/sessioncache"
	teamdomain "github.com/smallbiznis/teamauth/internal/team/domain"
	teamrepo "github.com/smallbiznis/teamauth/internal/team/repository"
	teamservice "github.com/smallbiznis/teamauth/internal/team/service"
	"github.com/smallbiznis/teamauth/pkg/db"
	"go.uber.org/zap"
)

type fixture struct {
	manager  *Manager
	identity identitydomain.Provider
	teams    teamdomain.Service
	hub      *event.Hub
	clk      *clock.FakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dbConn, err := db.NewTest()
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	err = dbConn.AutoMigrate(
		&identitydomain.User{},
		&identitydomain.IdentitySession{},
		&identitydomain.ExchangeToken{},
		&profiledomain.Profile{},
		&teamdomain.Team{},
		&teamdomain.TeamMember{},
		&teamdomain.TeamInvite{},
	)
	if err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("failed to create snowflake node: %v", err)
	}
	clk := clock.NewFakeClock(time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC))
	log := zap.NewNop()
	hub := event.NewHub()

	users, sessions, exchanges := identityrepo.New(dbConn)
	identity := identityservice.New(log, users, sessions, exchanges, hub, clk, node)
	profiles := profileservice.New(log, profilerepo.New(dbConn), identity, node)
	teams := teamservice.New(log, dbConn, teamrepo.New(dbConn), identity, clk, node)

	cache := sessioncache.New(log, identity, clk)
	hub.Subscribe(cache.ApplyEvent)

	manager := NewManager(log, cache, identity, profiles, teams)
	hub.Subscribe(func(e event.Event) {
		manager.ApplyEvent(context.Background(), e)
	})

	return &fixture{manager: manager, identity: identity, teams: teams, hub: hub, clk: clk}
}

func (f *fixture) signIn(t *testing.T, email string) (*identitydomain.User, string) {
	t.Helper()
	user, err := f.identity.CreateUser(context.Background(), identitydomain.CreateUserRequest{
		Email:    email,
		Password: "strong-password",
	})
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	result, err := f.identity.Login(context.Background(), identitydomain.LoginRequest{
		Email:    email,
		Password: "strong-password",
	})
	if err != nil {
		t.Fatalf("failed to login: %v", err)
	}
	return user, result.Session.RawToken
}

func TestResolveAuthenticatedWithoutTeam(t *testing.T) {
	f := newFixture(t)
	user, token := f.signIn(t, "alice@example.com")

	state := f.manager.Resolve(context.Background(), token)
	if state.Status != StatusAuthenticated {
		t.Fatalf("expected authenticated, got %s", state.Status)
	}
	if state.User == nil || state.User.ID != user.ID {
		t.Fatal("expected user in snapshot")
	}
	if state.Profile == nil {
		t.Fatal("expected profile in snapshot")
	}
	if state.HasTeam() {
		t.Fatal("expected no team membership")
	}
}

func TestResolveAuthenticatedWithTeam(t *testing.T) {
	f := newFixture(t)
	user, token := f.signIn(t, "bob@example.com")

	if _, err := f.teams.Create(context.Background(), user.ID, teamdomain.CreateTeamRequest{Name: "Acme"}); err != nil {
		t.Fatalf("failed to create team: %v", err)
	}

	state := f.manager.Resolve(context.Background(), token)
	if !state.HasTeam() {
		t.Fatal("expected team membership")
	}
	if state.Membership.Role != role.Owner {
		t.Fatalf("expected owner role, got %s", state.Membership.Role)
	}
	if len(state.Members) != 1 || state.Members[0].UserID != user.ID {
		t.Fatalf("expected the creator as sole member, got %+v", state.Members)
	}
}

func TestResolveUnknownTokenIsUnauthenticatedNotLoading(t *testing.T) {
	f := newFixture(t)

	state := f.manager.Resolve(context.Background(), "no-such-token")
	if state.Status != StatusUnauthenticated {
		t.Fatalf("expected unauthenticated, got %s", state.Status)
	}
	if state.Status == StatusLoading {
		t.Fatal("store must never settle on loading")
	}
}

func TestUnknownTokensDoNotAccumulateStores(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 32; i++ {
		state := f.manager.Resolve(context.Background(), fmt.Sprintf("junk-%d", i))
		if state.Status != StatusUnauthenticated {
			t.Fatalf("expected unauthenticated, got %s", state.Status)
		}
	}

	f.manager.mu.Lock()
	n := len(f.manager.stores)
	f.manager.mu.Unlock()
	if n != 0 {
		t.Fatalf("expected no retained stores for unknown tokens, found %d", n)
	}
}

func TestKnownTokenKeepsItsStore(t *testing.T) {
	f := newFixture(t)
	_, token := f.signIn(t, "erin@example.com")

	store := f.manager.For(token)
	if got := f.manager.Resolve(context.Background(), token); got.Status != StatusAuthenticated {
		t.Fatalf("expected authenticated, got %s", got.Status)
	}

	f.manager.mu.Lock()
	kept := f.manager.stores[token]
	f.manager.mu.Unlock()
	if kept != store {
		t.Fatal("expected the authenticated store to survive resolution")
	}
}

func TestInitIsIdempotentUnderConcurrency(t *testing.T) {
	f := newFixture(t)
	_, token := f.signIn(t, "carol@example.com")

	store := f.manager.For(token)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store.Init(context.Background())
		}()
	}
	wg.Wait()

	state := store.Snapshot()
	if state.Generation != 1 {
		t.Fatalf("expected exactly one load, got generation %d", state.Generation)
	}
	if state.Status != StatusAuthenticated {
		t.Fatalf("expected authenticated, got %s", state.Status)
	}
}

func TestRefreshPicksUpRoleChange(t *testing.T) {
	f := newFixture(t)
	owner, ownerToken := f.signIn(t, "owner@example.com")
	joiner, joinerToken := f.signIn(t, "joiner@example.com")

	team, err := f.teams.Create(context.Background(), owner.ID, teamdomain.CreateTeamRequest{Name: "Acme"})
	if err != nil {
		t.Fatalf("failed to create team: %v", err)
	}
	invite, err := f.teams.Invite(context.Background(), team.ID, teamdomain.InviteRequest{
		Email: "joiner@example.com",
		Role:  role.Member,
	})
	if err != nil {
		t.Fatalf("failed to invite: %v", err)
	}
	if _, err := f.teams.AcceptInvite(context.Background(), joiner.ID, invite.Code); err != nil {
		t.Fatalf("failed to accept invite: %v", err)
	}

	before := f.manager.Resolve(context.Background(), joinerToken)
	if before.Membership.Role != role.Member {
		t.Fatalf("expected member, got %s", before.Membership.Role)
	}

	if _, err := f.teams.UpdateMemberRole(context.Background(), team.ID, joiner.ID, role.Admin); err != nil {
		t.Fatalf("failed to update role: %v", err)
	}

	after := f.manager.For(joinerToken).Refresh(context.Background())
	if after.Membership.Role != role.Admin {
		t.Fatalf("expected admin after refresh, got %s", after.Membership.Role)
	}
	if after.Generation <= before.Generation {
		t.Fatalf("expected generation to advance, got %d -> %d", before.Generation, after.Generation)
	}

	_ = ownerToken
}

func TestTokenRefreshEventUpdatesSnapshot(t *testing.T) {
	f := newFixture(t)
	_, token := f.signIn(t, "frank@example.com")

	before := f.manager.Resolve(context.Background(), token)
	if before.Status != StatusAuthenticated {
		t.Fatalf("expected authenticated, got %s", before.Status)
	}

	// Deep into the session lifetime the next lookup renews the expiry
	// and publishes a refresh the snapshot must pick up.
	f.clk.Advance(6*24*time.Hour + 13*time.Hour)
	if _, err := f.identity.CurrentSession(context.Background(), token); err != nil {
		t.Fatalf("expected valid session, got %v", err)
	}

	after := f.manager.For(token).Snapshot()
	if after.Session == nil || !after.Session.ExpiresAt.After(before.Session.ExpiresAt) {
		t.Fatal("expected snapshot to carry the renewed expiry")
	}
	if after.Generation <= before.Generation {
		t.Fatalf("expected generation to advance, got %d -> %d", before.Generation, after.Generation)
	}
}

func TestSignOutEventMarksUnauthenticated(t *testing.T) {
	f := newFixture(t)
	_, token := f.signIn(t, "dave@example.com")

	state := f.manager.Resolve(context.Background(), token)
	if state.Status != StatusAuthenticated {
		t.Fatalf("expected authenticated, got %s", state.Status)
	}

	store := f.manager.For(token)
	if err := f.identity.Logout(context.Background(), token); err != nil {
		t.Fatalf("failed to logout: %v", err)
	}

	if got := store.Snapshot(); got.Status != StatusUnauthenticated {
		t.Fatalf("expected unauthenticated after sign-out event, got %s", got.Status)
	}
}
