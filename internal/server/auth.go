package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/teamauth/internal/audit/domain"
	identitydomain "github.com/smallbiznis/teamauth/internal/identity/domain"
)

type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) Signup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	email := strings.TrimSpace(req.Email)
	if email == "" {
		AbortWithError(c, newValidationError("email", "invalid_email", "email is required"))
		return
	}
	if len(req.Password) < 8 {
		AbortWithError(c, newValidationError("password", "password_too_short", "password must be at least 8 characters"))
		return
	}

	user, err := s.identitySvc.CreateUser(c.Request.Context(), identitydomain.CreateUserRequest{
		Email:    email,
		Password: req.Password,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.identitySvc.Login(c.Request.Context(), identitydomain.LoginRequest{
		Email:     email,
		Password:  req.Password,
		UserAgent: c.Request.UserAgent(),
		IPAddress: c.ClientIP(),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.sessions.Set(c, result.Session.RawToken, result.ExpiresAt)

	userID := user.ID.String()
	_ = s.auditSvc.AuditLog(c.Request.Context(), nil, string(auditdomain.ActorTypeUser), &userID, "user.signup", "user", &userID, map[string]any{
		"email": email,
	})

	c.JSON(http.StatusOK, gin.H{
		"session": result.Session,
		"user":    user,
	})
}

func (s *Server) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	email := strings.TrimSpace(req.Email)
	result, err := s.identitySvc.Login(c.Request.Context(), identitydomain.LoginRequest{
		Email:     email,
		Password:  req.Password,
		UserAgent: c.Request.UserAgent(),
		IPAddress: c.ClientIP(),
	})
	if err != nil {
		_ = s.auditSvc.AuditLog(c.Request.Context(), nil, string(auditdomain.ActorTypeUser), nil, "user.login_failed", "user", nil, map[string]any{
			"email": email,
		})
		AbortWithError(c, err)
		return
	}

	s.sessions.Set(c, result.Session.RawToken, result.ExpiresAt)

	userID := result.User.ID.String()
	_ = s.auditSvc.AuditLog(c.Request.Context(), nil, string(auditdomain.ActorTypeUser), &userID, "user.login", "user", &userID, map[string]any{
		"email": email,
	})

	c.JSON(http.StatusOK, gin.H{
		"session": result.Session,
		"user":    result.User,
	})
}

func (s *Server) Logout(c *gin.Context) {
	token, ok := s.sessions.ReadToken(c)
	if ok {
		if err := s.identitySvc.Logout(c.Request.Context(), token); err != nil {
			AbortWithError(c, err)
			return
		}
	}

	// Any lingering custody proof dies with the session.
	s.sessions.Clear(c)
	s.custody.Clear(c)

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Me returns the aggregated auth state for the caller's session, the same
// snapshot the guard pipeline decides on.
func (s *Server) Me(c *gin.Context) {
	token, _ := s.sessions.ReadToken(c)
	state := s.auth.Resolve(c.Request.Context(), token)
	if !state.SignedIn() {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var impersonation any
	if active, err := s.impersonationSvc.ActiveFor(c.Request.Context(), state.User.ID); err == nil && active != nil {
		impersonation = gin.H{
			"session_id":    active.ID.String(),
			"admin_user_id": active.AdminUserID.String(),
			"expires_at":    active.ExpiresAt,
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"session":       state.Session,
		"user":          state.User,
		"profile":       state.Profile,
		"membership":    state.Membership,
		"role":          state.Role(),
		"impersonation": impersonation,
	})
}
