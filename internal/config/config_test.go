package config

import "testing"

func TestLoadRequiresCustodySecret(t *testing.T) {
	t.Setenv("CUSTODY_SECRET", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected startup to fail when CUSTODY_SECRET is unset")
	}

	t.Setenv("CUSTODY_SECRET", "unit-test-custody-secret-32-bytes")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.CustodySecret != "unit-test-custody-secret-32-bytes" {
		t.Fatalf("unexpected custody secret %q", cfg.CustodySecret)
	}
}
