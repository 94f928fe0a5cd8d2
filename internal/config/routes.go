package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// ProtectionMode selects how the guard pipeline decides whether a route is
// protected when no explicit rule matches.
type ProtectionMode string

const (
	// ProtectByDefault treats every route as protected unless listed public.
	ProtectByDefault ProtectionMode = "protect_by_default"
	// PublicByDefault treats every route as public unless listed protected.
	PublicByDefault ProtectionMode = "public_by_default"
)

// ParseProtectionMode validates a raw mode string.
func ParseProtectionMode(raw string) (ProtectionMode, error) {
	switch ProtectionMode(strings.ToLower(strings.TrimSpace(raw))) {
	case ProtectByDefault:
		return ProtectByDefault, nil
	case PublicByDefault:
		return PublicByDefault, nil
	default:
		return "", fmt.Errorf("unknown protection mode %q", raw)
	}
}

// RoleRule declares the minimum role required under a path prefix.
type RoleRule struct {
	Prefix string `mapstructure:"prefix"`
	Role   string `mapstructure:"role"`
	Strict bool   `mapstructure:"strict"`
}

// Routes is the typed route-protection policy consumed by the guard pipeline.
type Routes struct {
	Mode ProtectionMode `mapstructure:"mode"`

	// PublicRoutes short-circuit every guard stage. Entries ending in "/*"
	// match by prefix, everything else matches exactly.
	PublicRoutes []string `mapstructure:"public_routes"`

	// ProtectedRoutes are only consulted in public-by-default mode.
	ProtectedRoutes []string `mapstructure:"protected_routes"`

	// AuthPages are login/signup pages subject to the reverse redirect.
	AuthPages []string `mapstructure:"auth_pages"`

	RoleRules []RoleRule `mapstructure:"role_rules"`

	// AdminPrefixes are denied outright while impersonating.
	AdminPrefixes []string `mapstructure:"admin_prefixes"`

	// DangerousPrefixes cover ownership transfer, billing and credential
	// settings, denied while impersonating regardless of role.
	DangerousPrefixes []string `mapstructure:"dangerous_prefixes"`

	StopImpersonationPath string `mapstructure:"stop_impersonation_path"`

	// RoleFallback receives redirects on insufficient role.
	RoleFallback string `mapstructure:"role_fallback"`
}

// LoadRoutes reads the route policy from an optional YAML file with env
// overrides (TEAMAUTH_ROUTES_* keys) on top of built-in defaults.
func LoadRoutes(cfg Config) (Routes, error) {
	v := viper.New()
	v.SetDefault("mode", string(ProtectByDefault))
	v.SetDefault("public_routes", []string{
		"/",
		"/signin",
		"/signup",
		"/forgot-password",
		"/reset-password",
		"/auth/confirm",
		"/auth/callback",
		"/accept-invite/*",
	})
	v.SetDefault("protected_routes", []string{
		"/dashboard/*",
		"/admin/*",
		"/settings/*",
	})
	v.SetDefault("auth_pages", []string{"/signin", "/signup"})
	v.SetDefault("role_rules", []map[string]any{
		{"prefix": "/admin", "role": "admin"},
		{"prefix": "/admin/impersonate", "role": "super_admin"},
	})
	v.SetDefault("admin_prefixes", []string{"/admin"})
	v.SetDefault("dangerous_prefixes", []string{
		"/settings/security",
		"/settings/billing",
		"/team/transfer-ownership",
		"/team/delete",
	})
	v.SetDefault("stop_impersonation_path", "/admin/impersonate/stop")
	v.SetDefault("role_fallback", cfg.DashboardPage)

	v.SetEnvPrefix("TEAMAUTH_ROUTES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfg.RoutesFile != "" {
		v.SetConfigFile(cfg.RoutesFile)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Routes{}, fmt.Errorf("read routes config: %w", err)
			}
		}
	}

	var routes Routes
	if err := v.Unmarshal(&routes); err != nil {
		return Routes{}, fmt.Errorf("parse routes config: %w", err)
	}

	mode, err := ParseProtectionMode(string(routes.Mode))
	if err != nil {
		return Routes{}, err
	}
	routes.Mode = mode

	if strings.TrimSpace(routes.StopImpersonationPath) == "" {
		return Routes{}, fmt.Errorf("stop_impersonation_path is required")
	}

	return routes, nil
}
