package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	profiledomain "github.com/smallbiznis/teamauth/internal/profile/domain"
)

func (s *Server) GetProfile(c *gin.Context) {
	sess := s.currentSession(c)
	if sess == nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	profile, err := s.profileSvc.GetByUser(c.Request.Context(), sess.UserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, profile)
}

func (s *Server) UpdateProfile(c *gin.Context) {
	sess := s.currentSession(c)
	if sess == nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req profiledomain.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	profile, err := s.profileSvc.Update(c.Request.Context(), sess.UserID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, profile)
}
