package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/teamauth/internal/audit/domain"
	"github.com/smallbiznis/teamauth/internal/role"
	teamdomain "github.com/smallbiznis/teamauth/internal/team/domain"
)

type UpdateMemberRoleRequest struct {
	Role string `json:"role"`
}

type TransferOwnershipRequest struct {
	ToUserID string `json:"to_user_id"`
}

type AcceptInviteRequest struct {
	Code string `json:"code"`
}

func (s *Server) CreateTeam(c *gin.Context) {
	sess := s.currentSession(c)
	if sess == nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req teamdomain.CreateTeamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	team, err := s.teamSvc.Create(c.Request.Context(), sess.UserID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	teamID := team.ID
	actorID := sess.UserID.String()
	targetID := team.ID.String()
	_ = s.auditSvc.AuditLog(c.Request.Context(), &teamID, string(auditdomain.ActorTypeUser), &actorID, "team.created", "team", &targetID, map[string]any{
		"name": team.Name,
		"slug": team.Slug,
	})

	c.JSON(http.StatusOK, team)
}

func (s *Server) GetTeam(c *gin.Context) {
	membership := s.currentMembership(c)
	if membership == nil {
		AbortWithError(c, teamdomain.ErrNotMember)
		return
	}

	team, err := s.teamSvc.Get(c.Request.Context(), membership.TeamID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"team":       team,
		"membership": membership,
	})
}

func (s *Server) ListTeamMembers(c *gin.Context) {
	membership := s.currentMembership(c)
	if membership == nil {
		AbortWithError(c, teamdomain.ErrNotMember)
		return
	}

	members, err := s.teamSvc.ListMembers(c.Request.Context(), membership.TeamID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"members": members})
}

func (s *Server) UpdateMemberRole(c *gin.Context) {
	membership := s.currentMembership(c)
	if membership == nil {
		AbortWithError(c, teamdomain.ErrNotMember)
		return
	}

	userID, err := snowflake.ParseString(c.Param("userId"))
	if err != nil {
		AbortWithError(c, newValidationError("user_id", "invalid_user_id", "user id must be a valid id"))
		return
	}

	var req UpdateMemberRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	newRole, ok := role.Parse(strings.TrimSpace(req.Role))
	if !ok {
		AbortWithError(c, teamdomain.ErrRoleNotAssignable)
		return
	}

	member, err := s.teamSvc.UpdateMemberRole(c.Request.Context(), membership.TeamID, userID, newRole)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	teamID := membership.TeamID
	targetID := userID.String()
	_ = s.auditSvc.AuditLog(c.Request.Context(), &teamID, string(auditdomain.ActorTypeUser), nil, "team.member_role_changed", "user", &targetID, map[string]any{
		"role": string(newRole),
	})

	c.JSON(http.StatusOK, member)
}

func (s *Server) RemoveMember(c *gin.Context) {
	membership := s.currentMembership(c)
	if membership == nil {
		AbortWithError(c, teamdomain.ErrNotMember)
		return
	}

	userID, err := snowflake.ParseString(c.Param("userId"))
	if err != nil {
		AbortWithError(c, newValidationError("user_id", "invalid_user_id", "user id must be a valid id"))
		return
	}

	if err := s.teamSvc.RemoveMember(c.Request.Context(), membership.TeamID, userID); err != nil {
		AbortWithError(c, err)
		return
	}

	teamID := membership.TeamID
	targetID := userID.String()
	_ = s.auditSvc.AuditLog(c.Request.Context(), &teamID, string(auditdomain.ActorTypeUser), nil, "team.member_removed", "user", &targetID, nil)

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) TransferOwnership(c *gin.Context) {
	membership := s.currentMembership(c)
	if membership == nil {
		AbortWithError(c, teamdomain.ErrNotMember)
		return
	}

	var req TransferOwnershipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	toUserID, err := snowflake.ParseString(strings.TrimSpace(req.ToUserID))
	if err != nil {
		AbortWithError(c, newValidationError("to_user_id", "invalid_user_id", "to_user_id must be a valid id"))
		return
	}

	if err := s.teamSvc.TransferOwnership(c.Request.Context(), membership.TeamID, membership.UserID, toUserID); err != nil {
		AbortWithError(c, err)
		return
	}

	teamID := membership.TeamID
	actorID := membership.UserID.String()
	targetID := toUserID.String()
	_ = s.auditSvc.AuditLog(c.Request.Context(), &teamID, string(auditdomain.ActorTypeUser), &actorID, "team.ownership_transferred", "user", &targetID, nil)

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) ListInvites(c *gin.Context) {
	membership := s.currentMembership(c)
	if membership == nil {
		AbortWithError(c, teamdomain.ErrNotMember)
		return
	}

	invites, err := s.teamSvc.ListInvites(c.Request.Context(), membership.TeamID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"invites": invites})
}

func (s *Server) InviteMember(c *gin.Context) {
	membership := s.currentMembership(c)
	if membership == nil {
		AbortWithError(c, teamdomain.ErrNotMember)
		return
	}

	var req teamdomain.InviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	invite, err := s.teamSvc.Invite(c.Request.Context(), membership.TeamID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	teamID := membership.TeamID
	targetID := invite.ID.String()
	_ = s.auditSvc.AuditLog(c.Request.Context(), &teamID, string(auditdomain.ActorTypeUser), nil, "team.invite_sent", "invite", &targetID, map[string]any{
		"email": invite.Email,
		"role":  string(invite.Role),
	})

	c.JSON(http.StatusOK, invite)
}

func (s *Server) RevokeInvite(c *gin.Context) {
	membership := s.currentMembership(c)
	if membership == nil {
		AbortWithError(c, teamdomain.ErrNotMember)
		return
	}

	inviteID, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("invite_id", "invalid_invite_id", "invite id must be a valid id"))
		return
	}

	if err := s.teamSvc.RevokeInvite(c.Request.Context(), membership.TeamID, inviteID); err != nil {
		AbortWithError(c, err)
		return
	}

	teamID := membership.TeamID
	targetID := inviteID.String()
	_ = s.auditSvc.AuditLog(c.Request.Context(), &teamID, string(auditdomain.ActorTypeUser), nil, "team.invite_revoked", "invite", &targetID, nil)

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) AcceptInvite(c *gin.Context) {
	sess := s.currentSession(c)
	if sess == nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req AcceptInviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	code := strings.TrimSpace(req.Code)
	if code == "" {
		AbortWithError(c, newValidationError("code", "invalid_code", "invite code is required"))
		return
	}

	membership, err := s.teamSvc.AcceptInvite(c.Request.Context(), sess.UserID, code)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	teamID := membership.TeamID
	actorID := sess.UserID.String()
	_ = s.auditSvc.AuditLog(c.Request.Context(), &teamID, string(auditdomain.ActorTypeUser), &actorID, "team.invite_accepted", "user", &actorID, nil)

	c.JSON(http.StatusOK, membership)
}
