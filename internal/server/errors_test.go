package server

import (
	"errors"
	"net/http"
	"testing"

	identitydomain "github.com/smallbiznis/teamauth/internal/identity/domain"
	impersonationdomain "github.com/smallbiznis/teamauth/internal/impersonation/domain"
	teamdomain "github.com/smallbiznis/teamauth/internal/team/domain"
	"github.com/stretchr/testify/assert"
)

func TestMapErrorStatusCodes(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"invalid credentials", identitydomain.ErrInvalidCredentials, http.StatusUnauthorized},
		{"expired session", identitydomain.ErrSessionExpired, http.StatusUnauthorized},
		{"not super admin", impersonationdomain.ErrNotAuthorized, http.StatusForbidden},
		{"peer target", impersonationdomain.ErrTargetIsSuperAdmin, http.StatusForbidden},
		{"self impersonation", impersonationdomain.ErrSelfImpersonation, http.StatusForbidden},
		{"missing target", impersonationdomain.ErrTargetRequired, http.StatusBadRequest},
		{"short reason", impersonationdomain.ErrReasonTooShort, http.StatusBadRequest},
		{"missing session id", impersonationdomain.ErrSessionIDRequired, http.StatusBadRequest},
		{"missing custody", impersonationdomain.ErrCustodyRequired, http.StatusBadRequest},
		{"bad custody", impersonationdomain.ErrCustodyInvalid, http.StatusBadRequest},
		{"unknown target", impersonationdomain.ErrTargetNotFound, http.StatusNotFound},
		{"unknown session", impersonationdomain.ErrSessionNotFound, http.StatusNotFound},
		{"restore failed", impersonationdomain.ErrRestoreFailed, http.StatusInternalServerError},
		{"already impersonating", impersonationdomain.ErrAlreadyActive, http.StatusConflict},
		{"rate limited", impersonationdomain.ErrRateLimited, http.StatusTooManyRequests},
		{"last owner", teamdomain.ErrLastOwner, http.StatusConflict},
		{"not a member", teamdomain.ErrNotMember, http.StatusNotFound},
		{"role not assignable", teamdomain.ErrRoleNotAssignable, http.StatusBadRequest},
		{"unknown error", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, payload := mapError(tc.err)
			assert.Equal(t, tc.status, status)
			assert.NotEmpty(t, payload.Type)
		})
	}
}

func TestMapErrorWrappedSentinel(t *testing.T) {
	wrapped := errors.Join(errors.New("context"), impersonationdomain.ErrCustodyInvalid)
	status, payload := mapError(wrapped)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "validation_error", payload.Type)
}
