package custody

import (
	"strings"
	"testing"
	"time"
)

var secret = []byte("test-secret-at-least-32-bytes-long!!")

func fixedNow() time.Time {
	return time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
}

func TestMintVerifyRoundTrip(t *testing.T) {
	raw, err := Mint(secret, Claims{
		AdminEmail: "op@example.com",
		AdminID:    "42",
		SessionID:  "1001",
	}, fixedNow(), 30*time.Minute)
	if err != nil {
		t.Fatalf("failed to mint: %v", err)
	}

	claims, err := Verify(secret, raw, fixedNow)
	if err != nil {
		t.Fatalf("failed to verify: %v", err)
	}
	if claims.AdminID != "42" || claims.SessionID != "1001" || claims.AdminEmail != "op@example.com" {
		t.Fatalf("claims round trip mismatch: %+v", claims)
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	raw, err := Mint(secret, Claims{AdminID: "42", SessionID: "1001"}, fixedNow(), 30*time.Minute)
	if err != nil {
		t.Fatalf("failed to mint: %v", err)
	}

	later := func() time.Time { return fixedNow().Add(31 * time.Minute) }
	if _, err := Verify(secret, raw, later); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken after expiry, got %v", err)
	}
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	raw, err := Mint(secret, Claims{AdminID: "42", SessionID: "1001"}, fixedNow(), 30*time.Minute)
	if err != nil {
		t.Fatalf("failed to mint: %v", err)
	}

	parts := strings.Split(raw, ".")
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))
	if _, err := Verify(secret, tampered, fixedNow); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken for tampered signature, got %v", err)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	raw, err := Mint(secret, Claims{AdminID: "42", SessionID: "1001"}, fixedNow(), 30*time.Minute)
	if err != nil {
		t.Fatalf("failed to mint: %v", err)
	}

	if _, err := Verify([]byte("another-secret-entirely-32-bytes!"), raw, fixedNow); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken for wrong secret, got %v", err)
	}
}

func TestEmptySecretRefused(t *testing.T) {
	if _, err := Mint(nil, Claims{AdminID: "42", SessionID: "1001"}, fixedNow(), 30*time.Minute); err != ErrNoSecret {
		t.Fatalf("expected ErrNoSecret on mint, got %v", err)
	}

	raw, err := Mint(secret, Claims{AdminID: "42", SessionID: "1001"}, fixedNow(), 30*time.Minute)
	if err != nil {
		t.Fatalf("failed to mint: %v", err)
	}
	if _, err := Verify(nil, raw, fixedNow); err != ErrNoSecret {
		t.Fatalf("expected ErrNoSecret on verify, got %v", err)
	}
}
