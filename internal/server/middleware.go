package server

import (
	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/teamauth/internal/audit/domain"
	auditcontext "github.com/smallbiznis/teamauth/internal/auditcontext"
	"github.com/smallbiznis/teamauth/internal/authstate"
	identitydomain "github.com/smallbiznis/teamauth/internal/identity/domain"
	"github.com/smallbiznis/teamauth/internal/role"
	teamdomain "github.com/smallbiznis/teamauth/internal/team/domain"
	teamcontext "github.com/smallbiznis/teamauth/internal/teamcontext"
)

const (
	contextSessionKey    = "auth_session"
	contextTokenKey      = "auth_token"
	contextMembershipKey = "team_membership"
)

// AuthRequired verifies the session cookie against the identity provider
// and stamps the request context with the acting user.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := s.sessions.ReadToken(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		sess, err := s.identitySvc.CurrentSession(c.Request.Context(), token)
		if err != nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := auditcontext.WithActor(c.Request.Context(), string(auditdomain.ActorTypeUser), sess.UserID.String())
		c.Request = c.Request.WithContext(ctx)

		c.Set(contextSessionKey, sess)
		c.Set(contextTokenKey, token)
		c.Next()
	}
}

// TeamContext resolves the caller's team membership and injects the team
// ID for downstream handlers and audit entries. Callers without a team
// get a 404; the team API has nothing for them.
func (s *Server) TeamContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := s.currentSession(c)
		if sess == nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		membership, err := s.teamSvc.MembershipForUser(c.Request.Context(), sess.UserID)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Request = c.Request.WithContext(teamcontext.WithTeamID(c.Request.Context(), membership.TeamID))
		c.Set(contextMembershipKey, membership)
		c.Next()
	}
}

// RequireRole gates a route on the caller's effective role, resolved from
// the aggregated auth state so an operator-granted system role counts.
func (s *Server) RequireRole(minimum role.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		state := s.currentState(c)
		if !state.SignedIn() {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if !state.Role().Satisfies(minimum, false) {
			AbortWithError(c, ErrForbidden)
			return
		}
		c.Next()
	}
}

func (s *Server) currentSession(c *gin.Context) *identitydomain.Session {
	value, ok := c.Get(contextSessionKey)
	if !ok {
		return nil
	}
	sess, _ := value.(*identitydomain.Session)
	return sess
}

func (s *Server) currentToken(c *gin.Context) string {
	value, ok := c.Get(contextTokenKey)
	if !ok {
		return ""
	}
	token, _ := value.(string)
	return token
}

func (s *Server) currentMembership(c *gin.Context) *teamdomain.Membership {
	value, ok := c.Get(contextMembershipKey)
	if !ok {
		return nil
	}
	membership, _ := value.(*teamdomain.Membership)
	return membership
}

func (s *Server) currentState(c *gin.Context) authstate.AuthState {
	return s.auth.Resolve(c.Request.Context(), s.currentToken(c))
}
