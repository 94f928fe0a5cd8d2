// Package teamcontext resolves the active team for a request.
package teamcontext

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
)

// TeamContextKey is the request context key for the active team ID.
type TeamContextKey struct{}

// WithTeamID stores the team ID in the context.
func WithTeamID(ctx context.Context, teamID snowflake.ID) context.Context {
	return context.WithValue(ctx, TeamContextKey{}, teamID)
}

// TeamIDFromContext returns the team ID from context, if set.
func TeamIDFromContext(ctx context.Context) (snowflake.ID, bool) {
	if ctx == nil {
		return 0, false
	}

	switch typed := ctx.Value(TeamContextKey{}).(type) {
	case snowflake.ID:
		return typed, true
	case int64:
		return snowflake.ID(typed), true
	case string:
		parsed, err := snowflake.ParseString(strings.TrimSpace(typed))
		if err == nil {
			return parsed, true
		}
	}
	return 0, false
}
