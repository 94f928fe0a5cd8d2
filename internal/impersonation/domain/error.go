package domain

import "errors"

var (
	ErrNotAuthorized      = errors.New("impersonation requires the super_admin role")
	ErrTargetIsSuperAdmin = errors.New("super_admin accounts cannot be impersonated")
	ErrSelfImpersonation  = errors.New("cannot impersonate yourself")
	ErrTargetRequired     = errors.New("target user id is required")
	ErrReasonTooShort     = errors.New("reason must be at least 10 characters")
	ErrTargetNotFound     = errors.New("target user not found")
	ErrSessionNotFound    = errors.New("no matching active impersonation session")
	ErrSessionIDRequired  = errors.New("impersonation session id is required")
	ErrAlreadyActive      = errors.New("operator already has an active impersonation session")
	ErrCustodyRequired    = errors.New("custody token is required")
	ErrCustodyInvalid     = errors.New("custody token verification failed")
	ErrRestoreFailed      = errors.New("failed to restore the operator session")
	ErrRateLimited        = errors.New("too many impersonation attempts")
	ErrCustodyUnsigned    = errors.New("impersonation is disabled: custody signing secret is not configured")
)
