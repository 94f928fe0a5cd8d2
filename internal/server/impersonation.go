package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	impersonationdomain "github.com/smallbiznis/teamauth/internal/impersonation/domain"
)

type StartImpersonationRequest struct {
	TargetUserID string `json:"target_user_id"`
	Reason       string `json:"reason"`
}

type StopImpersonationRequest struct {
	SessionID string `json:"session_id"`
}

// StartImpersonation switches the caller's session to the target user.
// The caller keeps a custody token proving who they really are; stopping
// requires presenting it back.
func (s *Server) StartImpersonation(c *gin.Context) {
	sess := s.currentSession(c)
	if sess == nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req StartImpersonationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	var targetID snowflake.ID
	if raw := strings.TrimSpace(req.TargetUserID); raw != "" {
		parsed, err := snowflake.ParseString(raw)
		if err != nil {
			AbortWithError(c, newValidationError("target_user_id", "invalid_target", "target_user_id must be a valid user id"))
			return
		}
		targetID = parsed
	}

	state := s.currentState(c)
	result, err := s.impersonationSvc.Start(c.Request.Context(), impersonationdomain.StartRequest{
		ActorUserID:  sess.UserID,
		ActorRole:    state.Role(),
		TargetUserID: targetID,
		Reason:       req.Reason,
	})
	if err != nil {
		if s.obsMetrics != nil {
			s.obsMetrics.RecordImpersonationStart(c.Request.Context(), "denied")
		}
		AbortWithError(c, err)
		return
	}

	// The browser now navigates as the target. The custody cookie is the
	// only way back to the operator's own session.
	s.sessions.Set(c, result.Session.RawToken, result.Session.ExpiresAt)
	s.custody.Set(c, result.CustodyToken)

	if s.obsMetrics != nil {
		s.obsMetrics.RecordImpersonationStart(c.Request.Context(), "started")
	}

	c.JSON(http.StatusOK, gin.H{
		"impersonation": gin.H{
			"session_id":  result.Record.ID.String(),
			"target_user": result.TargetUser,
			"expires_at":  result.ExpiresAt,
		},
		"session":       result.Session,
		"original_user": result.OriginalUser,
	})
}

// StopImpersonation verifies the custody token and restores the original
// operator session.
func (s *Server) StopImpersonation(c *gin.Context) {
	sess := s.currentSession(c)
	if sess == nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req StopImpersonationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	var sessionID snowflake.ID
	if raw := strings.TrimSpace(req.SessionID); raw != "" {
		parsed, err := snowflake.ParseString(raw)
		if err != nil {
			AbortWithError(c, impersonationdomain.ErrSessionIDRequired)
			return
		}
		sessionID = parsed
	}

	custodyToken, _ := s.custody.ReadToken(c)

	result, err := s.impersonationSvc.Stop(c.Request.Context(), impersonationdomain.StopRequest{
		SessionID:     sessionID,
		CurrentUserID: sess.UserID,
		CustodyToken:  custodyToken,
	})
	if err != nil {
		if s.obsMetrics != nil {
			s.obsMetrics.RecordImpersonationStop(c.Request.Context(), "denied")
		}
		AbortWithError(c, err)
		return
	}

	s.sessions.Set(c, result.Session.RawToken, result.Session.ExpiresAt)
	s.custody.Clear(c)

	if s.obsMetrics != nil {
		s.obsMetrics.RecordImpersonationStop(c.Request.Context(), "stopped")
	}

	c.JSON(http.StatusOK, gin.H{
		"session": result.Session,
	})
}
