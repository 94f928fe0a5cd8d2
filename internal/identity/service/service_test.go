package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/teamauth/internal/clock"
	"github.com/smallbiznis/teamauth/internal/identity/domain"
	"github.com/smallbiznis/teamauth/internal/identity/event"
	"github.com/smallbiznis/teamauth/internal/identity/repository"
	"github.com/smallbiznis/teamauth/pkg/db"
	"go.uber.org/zap"
)

func newTestProvider(t *testing.T) (domain.Provider, *clock.FakeClock, *event.Hub) {
	t.Helper()

	dbConn, err := db.NewTest()
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := dbConn.AutoMigrate(&domain.User{}, &domain.IdentitySession{}, &domain.ExchangeToken{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	repo, sessions, exchanges := repository.New(dbConn)
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("failed to create snowflake node: %v", err)
	}

	clk := clock.NewFakeClock(time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC))
	hub := event.NewHub()
	return New(zap.NewNop(), repo, sessions, exchanges, hub, clk, node), clk, hub
}

func TestLoginWrongPassword(t *testing.T) {
	svc, _, _ := newTestProvider(t)

	_, err := svc.CreateUser(context.Background(), domain.CreateUserRequest{
		Email:    "alice@example.com",
		Password: "correct-password",
	})
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}

	_, err = svc.Login(context.Background(), domain.LoginRequest{
		Email:    "alice@example.com",
		Password: "wrong-password",
	})
	if err != domain.ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginPublishesSignedIn(t *testing.T) {
	svc, _, hub := newTestProvider(t)

	var got []event.Event
	hub.Subscribe(func(e event.Event) {
		got = append(got, e)
	})

	_, err := svc.CreateUser(context.Background(), domain.CreateUserRequest{
		Email:    "bob@example.com",
		Password: "strong-password",
	})
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}

	result, err := svc.Login(context.Background(), domain.LoginRequest{
		Email:    "bob@example.com",
		Password: "strong-password",
	})
	if err != nil {
		t.Fatalf("failed to login: %v", err)
	}
	if result.Session.RawToken == "" {
		t.Fatal("expected raw session token")
	}
	if len(got) != 1 || got[0].Type != event.SignedIn {
		t.Fatalf("expected one signed_in event, got %v", got)
	}
}

func TestCurrentSessionExpiry(t *testing.T) {
	svc, clk, _ := newTestProvider(t)

	_, err := svc.CreateUser(context.Background(), domain.CreateUserRequest{
		Email:    "carol@example.com",
		Password: "strong-password",
	})
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	result, err := svc.Login(context.Background(), domain.LoginRequest{
		Email:    "carol@example.com",
		Password: "strong-password",
	})
	if err != nil {
		t.Fatalf("failed to login: %v", err)
	}

	if _, err := svc.CurrentSession(context.Background(), result.Session.RawToken); err != nil {
		t.Fatalf("expected valid session, got %v", err)
	}

	clk.Advance(8 * 24 * time.Hour)
	if _, err := svc.CurrentSession(context.Background(), result.Session.RawToken); err != domain.ErrSessionExpired {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
}

func TestLogoutPublishesRevokedSession(t *testing.T) {
	svc, _, hub := newTestProvider(t)

	_, err := svc.CreateUser(context.Background(), domain.CreateUserRequest{
		Email:    "dave@example.com",
		Password: "strong-password",
	})
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	result, err := svc.Login(context.Background(), domain.LoginRequest{
		Email:    "dave@example.com",
		Password: "strong-password",
	})
	if err != nil {
		t.Fatalf("failed to login: %v", err)
	}

	var got []event.Event
	hub.Subscribe(func(e event.Event) {
		got = append(got, e)
	})

	if err := svc.Logout(context.Background(), result.Session.RawToken); err != nil {
		t.Fatalf("failed to logout: %v", err)
	}

	if len(got) != 1 || got[0].Type != event.SignedOut {
		t.Fatalf("expected one signed_out event, got %v", got)
	}
	// Subscribers key their entries by the raw token, so a sign-out
	// without the session cannot invalidate anything.
	if got[0].Session == nil {
		t.Fatal("expected signed_out event to carry the revoked session")
	}
	if got[0].Session.RawToken != result.Session.RawToken {
		t.Fatal("expected signed_out event to carry the raw token")
	}
	if got[0].Session.UserID != result.Session.UserID {
		t.Fatalf("expected user %s on event, got %s", result.Session.UserID, got[0].Session.UserID)
	}
}

func TestCurrentSessionSlidingRenewal(t *testing.T) {
	svc, clk, hub := newTestProvider(t)

	_, err := svc.CreateUser(context.Background(), domain.CreateUserRequest{
		Email:    "erin@example.com",
		Password: "strong-password",
	})
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	result, err := svc.Login(context.Background(), domain.LoginRequest{
		Email:    "erin@example.com",
		Password: "strong-password",
	})
	if err != nil {
		t.Fatalf("failed to login: %v", err)
	}

	var got []event.Event
	hub.Subscribe(func(e event.Event) {
		got = append(got, e)
	})

	// Plenty of lifetime left: no renewal.
	clk.Advance(24 * time.Hour)
	if _, err := svc.CurrentSession(context.Background(), result.Session.RawToken); err != nil {
		t.Fatalf("expected valid session, got %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no refresh outside the renewal window, got %v", got)
	}

	// Inside the renewal window the expiry slides forward a full TTL.
	clk.Advance(5*24*time.Hour + 12*time.Hour)
	session, err := svc.CurrentSession(context.Background(), result.Session.RawToken)
	if err != nil {
		t.Fatalf("expected valid session, got %v", err)
	}
	if want := clk.Now().Add(7 * 24 * time.Hour); !session.ExpiresAt.Equal(want) {
		t.Fatalf("expected expiry extended to %s, got %s", want, session.ExpiresAt)
	}
	if len(got) != 1 || got[0].Type != event.TokenRefreshed {
		t.Fatalf("expected one token_refreshed event, got %v", got)
	}
	if got[0].Session == nil || got[0].Session.RawToken != result.Session.RawToken {
		t.Fatal("expected refresh event keyed by the raw token")
	}

	// The session outlives its original expiry because it was renewed.
	clk.Advance(2 * 24 * time.Hour)
	if _, err := svc.CurrentSession(context.Background(), result.Session.RawToken); err != nil {
		t.Fatalf("expected renewed session to stay valid, got %v", err)
	}
}

func TestExchangeTokenSingleUse(t *testing.T) {
	svc, _, _ := newTestProvider(t)

	user, err := svc.CreateUser(context.Background(), domain.CreateUserRequest{
		Email:    "dave@example.com",
		Password: "strong-password",
	})
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}

	raw, err := svc.GenerateExchangeToken(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("failed to generate exchange token: %v", err)
	}

	result, err := svc.RedeemExchangeToken(context.Background(), raw)
	if err != nil {
		t.Fatalf("failed to redeem: %v", err)
	}
	if result.Session.UserID != user.ID {
		t.Fatalf("expected session for %s, got %s", user.ID, result.Session.UserID)
	}

	if _, err := svc.RedeemExchangeToken(context.Background(), raw); err != domain.ErrExchangeTokenInvalid {
		t.Fatalf("expected ErrExchangeTokenInvalid on second redeem, got %v", err)
	}
}

func TestExchangeTokenExpires(t *testing.T) {
	svc, clk, _ := newTestProvider(t)

	user, err := svc.CreateUser(context.Background(), domain.CreateUserRequest{
		Email:    "erin@example.com",
		Password: "strong-password",
	})
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}

	raw, err := svc.GenerateExchangeToken(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("failed to generate exchange token: %v", err)
	}

	clk.Advance(2 * time.Minute)
	if _, err := svc.RedeemExchangeToken(context.Background(), raw); err != domain.ErrExchangeTokenInvalid {
		t.Fatalf("expected ErrExchangeTokenInvalid after expiry, got %v", err)
	}
}
