package guard

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/teamauth/internal/audit/domain"
	auditrepo "github.com/smallbiznis/teamauth/internal/audit/repository"
	auditservice "github.com/smallbiznis/teamauth/internal/audit/service"
	"github.com/smallbiznis/teamauth/internal/authstate"
	"github.com/smallbiznis/teamauth/internal/clock"
	"github.com/smallbiznis/teamauth/internal/config"
	identitydomain "github.com/smallbiznis/teamauth/internal/identity/domain"
	"github.com/smallbiznis/teamauth/internal/identity/event"
	identityrepo "github.com/smallbiznis/teamauth/internal/identity/repository"
	identityservice "github.com/smallbiznis/teamauth/internal/identity/service"
	impersonationdomain "github.com/smallbiznis/teamauth/internal/impersonation/domain"
	impersonationrepo "github.com/smallbiznis/teamauth/internal/impersonation/repository"
	impersonationservice "github.com/smallbiznis/teamauth/internal/impersonation/service"
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
	"gorm.io/gorm"
)

type fixture struct {
	pipeline *Pipeline
	identity identitydomain.Provider
	teams    teamdomain.Service
	imp      impersonationdomain.Service
	db       *gorm.DB
	clk      *clock.FakeClock
	cfg      config.Config
	routes   config.Routes
}

func testConfig() config.Config {
	return config.Config{
		LoginPage:        "/signin",
		DashboardPage:    "/dashboard",
		TeamPage:         "/onboarding/team",
		CustodySecret:    "unit-test-custody-secret-32-bytes",
		ImpersonationTTL: 30 * time.Minute,
	}
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
		&impersonationdomain.ImpersonationSession{},
		&auditdomain.AuditLog{},
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
	cfg := testConfig()

	users, sessions, exchanges := identityrepo.New(dbConn)
	identity := identityservice.New(log, users, sessions, exchanges, hub, clk, node)
	profiles := profileservice.New(log, profilerepo.New(dbConn), identity, node)
	teams := teamservice.New(log, dbConn, teamrepo.New(dbConn), identity, clk, node)

	cache := sessioncache.New(log, identity, clk)
	hub.Subscribe(cache.ApplyEvent)
	manager := authstate.NewManager(log, cache, identity, profiles, teams)
	hub.Subscribe(func(e event.Event) {
		manager.ApplyEvent(context.Background(), e)
	})

	audit := auditservice.NewService(auditservice.Params{
		DB:    dbConn,
		Log:   log,
		GenID: node,
		Repo:  auditrepo.Provide(),
		Clock: clk,
	})
	imp := impersonationservice.New(impersonationservice.Params{
		Log:      log,
		Config:   cfg,
		Repo:     impersonationrepo.New(dbConn),
		Identity: identity,
		Audit:    audit,
		Clock:    clk,
		GenID:    node,
	})

	routes, err := config.LoadRoutes(cfg)
	if err != nil {
		t.Fatalf("failed to load routes: %v", err)
	}

	pipeline := New(Params{
		Log:           log,
		Config:        cfg,
		Routes:        routes,
		Auth:          manager,
		Impersonation: imp,
	})

	return &fixture{
		pipeline: pipeline,
		identity: identity,
		teams:    teams,
		imp:      imp,
		db:       dbConn,
		clk:      clk,
		cfg:      cfg,
		routes:   routes,
	}
}

func (f *fixture) signIn(t *testing.T, email, systemRole string) (*identitydomain.User, string) {
	t.Helper()
	user, err := f.identity.CreateUser(context.Background(), identitydomain.CreateUserRequest{
		Email:    email,
		Password: "strong-password",
	})
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	if systemRole != "" {
		user.SystemRole = systemRole
		if err := f.db.Save(user).Error; err != nil {
			t.Fatalf("failed to grant system role: %v", err)
		}
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

func (f *fixture) joinTeam(t *testing.T, owner, joiner *identitydomain.User, r role.Role) *teamdomain.Team {
	t.Helper()
	team, err := f.teams.Create(context.Background(), owner.ID, teamdomain.CreateTeamRequest{Name: "Acme " + owner.ID.String()})
	if err != nil {
		t.Fatalf("failed to create team: %v", err)
	}
	if joiner == nil {
		return team
	}
	invite, err := f.teams.Invite(context.Background(), team.ID, teamdomain.InviteRequest{Email: joiner.Email, Role: r})
	if err != nil {
		t.Fatalf("failed to invite: %v", err)
	}
	if _, err := f.teams.AcceptInvite(context.Background(), joiner.ID, invite.Code); err != nil {
		t.Fatalf("failed to accept invite: %v", err)
	}
	return team
}

func (f *fixture) resolve(token, path, query string) Decision {
	return f.pipeline.Resolve(context.Background(), token, Navigation{Path: path, RawQuery: query})
}

func TestPublicRouteBypassesAuth(t *testing.T) {
	f := newFixture(t)

	for _, path := range []string{"/", "/forgot-password", "/accept-invite/abc123"} {
		if got := f.resolve("", path, ""); !got.Allow {
			t.Fatalf("expected %s to be public, got redirect to %s", path, got.RedirectTo)
		}
	}
}

func TestUnauthenticatedProtectedRouteRedirectsToLogin(t *testing.T) {
	f := newFixture(t)

	got := f.resolve("", "/dashboard", "tab=settings")
	if got.Allow {
		t.Fatal("expected redirect")
	}
	want := "/signin?redirect=%2Fdashboard%3Ftab%3Dsettings"
	if got.RedirectTo != want {
		t.Fatalf("expected %s, got %s", want, got.RedirectTo)
	}
}

func TestMemberDeniedAdminSection(t *testing.T) {
	f := newFixture(t)
	owner, _ := f.signIn(t, "owner@example.com", "")
	member, memberToken := f.signIn(t, "member@example.com", "")
	f.joinTeam(t, owner, member, role.Member)

	got := f.resolve(memberToken, "/admin", "")
	if got.Allow {
		t.Fatal("expected redirect")
	}
	if got.RedirectTo != "/dashboard?error=insufficient_permissions" {
		t.Fatalf("unexpected redirect %s", got.RedirectTo)
	}
	if got.Stage != "role" {
		t.Fatalf("expected role stage, got %s", got.Stage)
	}
}

func TestAdminAllowedAdminSection(t *testing.T) {
	f := newFixture(t)
	owner, _ := f.signIn(t, "owner@example.com", "")
	admin, adminToken := f.signIn(t, "admin@example.com", "")
	f.joinTeam(t, owner, admin, role.Admin)

	if got := f.resolve(adminToken, "/admin", ""); !got.Allow {
		t.Fatalf("expected allow, got redirect to %s", got.RedirectTo)
	}
	// The impersonation console demands super_admin exactly.
	if got := f.resolve(adminToken, "/admin/impersonate", ""); got.Allow {
		t.Fatal("expected super_admin requirement to deny admin")
	}
}

func TestAuthenticatedWithoutTeamIsMisconfigured(t *testing.T) {
	f := newFixture(t)
	_, token := f.signIn(t, "solo@example.com", "")

	got := f.resolve(token, "/dashboard", "")
	if got.Allow {
		t.Fatal("expected redirect")
	}
	if got.RedirectTo != "/signin?error=account_misconfigured" {
		t.Fatalf("unexpected redirect %s", got.RedirectTo)
	}
}

func TestSuperAdminWithoutTeamAllowed(t *testing.T) {
	f := newFixture(t)
	_, token := f.signIn(t, "op@example.com", string(role.SuperAdmin))

	if got := f.resolve(token, "/admin/impersonate", ""); !got.Allow {
		t.Fatalf("expected allow, got redirect to %s", got.RedirectTo)
	}
}

func TestReverseRedirectForSignedInUser(t *testing.T) {
	f := newFixture(t)
	owner, token := f.signIn(t, "owner@example.com", "")
	f.joinTeam(t, owner, nil, "")

	got := f.resolve(token, "/signin", "")
	if got.Allow || got.RedirectTo != "/dashboard" {
		t.Fatalf("expected /dashboard, got allow=%v %s", got.Allow, got.RedirectTo)
	}

	got = f.resolve(token, "/signin", "redirect=%2Fsettings%2Fprofile")
	if got.RedirectTo != "/settings/profile" {
		t.Fatalf("expected safe redirect honored, got %s", got.RedirectTo)
	}

	for _, unsafe := range []string{"redirect=https%3A%2F%2Fevil.example", "redirect=%2F%2Fevil.example"} {
		got = f.resolve(token, "/signin", unsafe)
		if got.RedirectTo != "/dashboard" {
			t.Fatalf("expected unsafe redirect ignored, got %s", got.RedirectTo)
		}
	}
}

func TestReverseRedirectWithoutTeamGoesToTeamPage(t *testing.T) {
	f := newFixture(t)
	_, token := f.signIn(t, "solo@example.com", "")

	got := f.resolve(token, "/signin", "")
	if got.RedirectTo != "/onboarding/team" {
		t.Fatalf("expected team page, got %s", got.RedirectTo)
	}
}

func TestSignedOutSessionIsDeniedImmediately(t *testing.T) {
	f := newFixture(t)
	owner, token := f.signIn(t, "owner@example.com", "")
	f.joinTeam(t, owner, nil, "")

	if got := f.resolve(token, "/dashboard", ""); !got.Allow {
		t.Fatalf("expected dashboard allowed while signed in, got %s", got.RedirectTo)
	}

	if err := f.identity.Logout(context.Background(), token); err != nil {
		t.Fatalf("failed to logout: %v", err)
	}

	// The sign-out event must invalidate the cached state; the stale
	// snapshot from the previous navigation cannot keep the door open.
	got := f.resolve(token, "/dashboard", "")
	if got.Allow {
		t.Fatal("expected revoked session to be denied")
	}
	if got.Stage != "auth" {
		t.Fatalf("expected auth stage, got %s", got.Stage)
	}
}

func TestImpersonationBlocksAdminAndDangerousPaths(t *testing.T) {
	f := newFixture(t)
	operator, _ := f.signIn(t, "op@example.com", string(role.SuperAdmin))
	owner, _ := f.signIn(t, "owner@example.com", "")
	target, _ := f.signIn(t, "target@example.com", "")
	f.joinTeam(t, owner, target, role.Admin)

	result, err := f.imp.Start(context.Background(), impersonationdomain.StartRequest{
		ActorUserID:  operator.ID,
		ActorRole:    role.SuperAdmin,
		TargetUserID: target.ID,
		Reason:       "Debugging a permissions report from this user",
	})
	if err != nil {
		t.Fatalf("failed to start impersonation: %v", err)
	}
	token := result.Session.RawToken

	// Ordinary pages work as the target.
	if got := f.resolve(token, "/dashboard", ""); !got.Allow {
		t.Fatalf("expected dashboard allowed, got %s", got.RedirectTo)
	}

	// Admin sections are blocked even though the target's role (admin)
	// would normally pass stage 4.
	got := f.resolve(token, "/admin", "")
	if got.Allow || got.RedirectTo != "/dashboard?error=admin_blocked_during_impersonation" {
		t.Fatalf("expected admin block, got allow=%v %s", got.Allow, got.RedirectTo)
	}

	got = f.resolve(token, "/settings/security", "")
	if got.Allow || got.RedirectTo != "/dashboard?error=dangerous_operations_blocked_during_impersonation" {
		t.Fatalf("expected dangerous block, got allow=%v %s", got.Allow, got.RedirectTo)
	}

	// The stop action stays reachable.
	if got := f.resolve(token, "/admin/impersonate/stop", ""); !got.Allow {
		t.Fatalf("expected stop path allowed, got %s", got.RedirectTo)
	}
}

func TestExpiredImpersonationCountsAsStopped(t *testing.T) {
	f := newFixture(t)
	operator, _ := f.signIn(t, "op@example.com", string(role.SuperAdmin))
	owner, _ := f.signIn(t, "owner@example.com", "")
	target, _ := f.signIn(t, "target@example.com", "")
	f.joinTeam(t, owner, target, role.Admin)

	result, err := f.imp.Start(context.Background(), impersonationdomain.StartRequest{
		ActorUserID:  operator.ID,
		ActorRole:    role.SuperAdmin,
		TargetUserID: target.ID,
		Reason:       "Debugging a permissions report from this user",
	})
	if err != nil {
		t.Fatalf("failed to start impersonation: %v", err)
	}
	token := result.Session.RawToken

	f.clk.Advance(31 * time.Minute)

	if got := f.resolve(token, "/settings/security", ""); !got.Allow {
		t.Fatalf("expected expired impersonation to lift restrictions, got %s", got.RedirectTo)
	}
}

func TestPublicByDefaultMode(t *testing.T) {
	f := newFixture(t)
	f.routes.Mode = config.PublicByDefault
	pipeline := New(Params{
		Log:           zap.NewNop(),
		Config:        f.cfg,
		Routes:        f.routes,
		Auth:          f.pipeline.auth,
		Impersonation: f.imp,
	})

	// Unlisted routes are public.
	if got := pipeline.Resolve(context.Background(), "", Navigation{Path: "/pricing"}); !got.Allow {
		t.Fatalf("expected unlisted route public, got %s", got.RedirectTo)
	}
	// Listed protected routes still demand auth.
	got := pipeline.Resolve(context.Background(), "", Navigation{Path: "/dashboard/reports"})
	if got.Allow {
		t.Fatal("expected protected route to redirect")
	}
}
