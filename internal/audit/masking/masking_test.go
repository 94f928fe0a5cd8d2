package masking

import "testing"

func TestMaskSecretKeepsSuffix(t *testing.T) {
	got := MaskSecret("sk_live_abcdef123456")
	want := "sk_live_****3456"
	if got != want {
		t.Fatalf("MaskSecret = %q, want %q", got, want)
	}
}

func TestMaskSecretShortValue(t *testing.T) {
	if got := MaskSecret("abc"); got != "****" {
		t.Fatalf("MaskSecret = %q, want ****", got)
	}
	if got := MaskSecret("  "); got != "" {
		t.Fatalf("MaskSecret = %q, want empty", got)
	}
}

func TestMaskMetadataRedactsSensitiveKeys(t *testing.T) {
	masked := MaskMetadata(map[string]any{
		"reason":        "support ticket #123",
		"session_token": "tok_abcdef123456",
		"nested": map[string]any{
			"custody_secret": "secret_value_9876",
			"count":          3,
		},
	})

	if masked["reason"] != "support ticket #123" {
		t.Fatalf("reason must pass through, got %v", masked["reason"])
	}
	if masked["session_token"] == "tok_abcdef123456" {
		t.Fatal("session_token must be redacted")
	}
	nested, ok := masked["nested"].(map[string]any)
	if !ok {
		t.Fatalf("nested map lost: %v", masked["nested"])
	}
	if nested["custody_secret"] == "secret_value_9876" {
		t.Fatal("nested secret must be redacted")
	}
	if nested["count"] != 3 {
		t.Fatalf("non-string values must pass through, got %v", nested["count"])
	}
}
