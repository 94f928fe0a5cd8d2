package guard

import (
	"sort"
	"strings"

	"github.com/smallbiznis/teamauth/internal/config"
	"github.com/smallbiznis/teamauth/internal/role"
)

// Matcher is a compiled route set. Patterns ending in "/*" match by
// prefix, everything else exactly; exact matches always win over prefix
// matches and longer prefixes win over shorter ones.
type Matcher struct {
	exact    map[string]struct{}
	prefixes []string
}

func compileMatcher(patterns []string) *Matcher {
	m := &Matcher{exact: make(map[string]struct{})}
	for _, raw := range patterns {
		pattern := strings.TrimSpace(raw)
		if pattern == "" {
			continue
		}
		if strings.HasSuffix(pattern, "/*") {
			m.prefixes = append(m.prefixes, strings.TrimSuffix(pattern, "*"))
			continue
		}
		m.exact[pattern] = struct{}{}
	}
	sort.Slice(m.prefixes, func(i, j int) bool {
		return len(m.prefixes[i]) > len(m.prefixes[j])
	})
	return m
}

func (m *Matcher) Matches(path string) bool {
	if _, ok := m.exact[path]; ok {
		return true
	}
	for _, prefix := range m.prefixes {
		if strings.HasPrefix(path, prefix) || path == strings.TrimSuffix(prefix, "/") {
			return true
		}
	}
	return false
}

// roleRule is a compiled minimum-role requirement for a path prefix.
type roleRule struct {
	prefix string
	role   role.Role
	strict bool
}

// compileRoleRules validates and orders the configured rules, longest
// prefix first so the most specific requirement wins.
func compileRoleRules(rules []config.RoleRule) []roleRule {
	compiled := make([]roleRule, 0, len(rules))
	for _, raw := range rules {
		prefix := strings.TrimSpace(raw.Prefix)
		required, ok := role.Parse(raw.Role)
		if prefix == "" || !ok {
			continue
		}
		compiled = append(compiled, roleRule{prefix: prefix, role: required, strict: raw.Strict})
	}
	sort.Slice(compiled, func(i, j int) bool {
		return len(compiled[i].prefix) > len(compiled[j].prefix)
	})
	return compiled
}

// match returns the most specific rule covering path, if any.
func matchRoleRule(rules []roleRule, path string) (roleRule, bool) {
	for _, rule := range rules {
		if path == rule.prefix || strings.HasPrefix(path, rule.prefix+"/") {
			return rule, true
		}
	}
	return roleRule{}, false
}

// prefixMatch reports whether path falls under any of the given prefixes.
func prefixMatch(prefixes []string, path string) bool {
	for _, raw := range prefixes {
		prefix := strings.TrimSpace(raw)
		if prefix == "" {
			continue
		}
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}
