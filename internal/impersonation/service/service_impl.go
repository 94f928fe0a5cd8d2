package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/teamauth/internal/audit/domain"
	"github.com/smallbiznis/teamauth/internal/clock"
	"github.com/smallbiznis/teamauth/internal/config"
	identitydomain "github.com/smallbiznis/teamauth/internal/identity/domain"
	"github.com/smallbiznis/teamauth/internal/impersonation/custody"
	"github.com/smallbiznis/teamauth/internal/impersonation/domain"
	"github.com/smallbiznis/teamauth/internal/ratelimit"
	"github.com/smallbiznis/teamauth/internal/role"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const minReasonLength = 10

type Params struct {
	fx.In

	Log      *zap.Logger
	Config   config.Config
	Repo     domain.Repository
	Identity identitydomain.Provider
	Audit    auditdomain.Service
	Limiter  *ratelimit.ImpersonationLimiter `optional:"true"`
	Clock    clock.Clock
	GenID    *snowflake.Node
}

type Service struct {
	log      *zap.Logger
	repo     domain.Repository
	identity identitydomain.Provider
	audit    auditdomain.Service
	limiter  *ratelimit.ImpersonationLimiter
	clk      clock.Clock
	genID    *snowflake.Node
	secret   []byte
	ttl      time.Duration
}

func New(p Params) domain.Service {
	return &Service{
		log:      p.Log.Named("impersonation.service"),
		repo:     p.Repo,
		identity: p.Identity,
		audit:    p.Audit,
		limiter:  p.Limiter,
		clk:      p.Clock,
		genID:    p.GenID,
		secret:   []byte(p.Config.CustodySecret),
		ttl:      p.Config.ImpersonationTTL,
	}
}

func (s *Service) Start(ctx context.Context, req domain.StartRequest) (*domain.StartResult, error) {
	// Refuse before touching any state. Without a signing secret the
	// custody token could be forged by the impersonated user.
	if len(s.secret) == 0 {
		return nil, domain.ErrCustodyUnsigned
	}
	if !req.ActorRole.Satisfies(role.SuperAdmin, true) {
		return nil, domain.ErrNotAuthorized
	}
	if req.TargetUserID == 0 {
		return nil, domain.ErrTargetRequired
	}
	if len(strings.TrimSpace(req.Reason)) < minReasonLength {
		return nil, domain.ErrReasonTooShort
	}
	if req.TargetUserID == req.ActorUserID {
		return nil, domain.ErrSelfImpersonation
	}

	allowed, err := s.limiter.AllowStart(ctx, req.ActorUserID.String())
	if err != nil {
		s.log.Warn("impersonation rate limiter unavailable", zap.Error(err))
	} else if !allowed {
		return nil, domain.ErrRateLimited
	}

	target, err := s.identity.GetUser(ctx, req.TargetUserID)
	if err != nil {
		if errors.Is(err, identitydomain.ErrUserNotFound) {
			return nil, domain.ErrTargetNotFound
		}
		return nil, err
	}
	if role.Role(target.SystemRole) == role.SuperAdmin {
		return nil, domain.ErrTargetIsSuperAdmin
	}

	operator, err := s.identity.GetUser(ctx, req.ActorUserID)
	if err != nil {
		return nil, err
	}

	now := s.clk.Now()
	record := &domain.ImpersonationSession{
		ID:           s.genID.Generate(),
		AdminUserID:  operator.ID,
		TargetUserID: target.ID,
		Reason:       strings.TrimSpace(req.Reason),
		StartedAt:    now,
		ExpiresAt:    now.Add(s.ttl),
		CreatedAt:    now,
	}
	if err := s.repo.Create(ctx, record); err != nil {
		return nil, err
	}

	locked, err := s.limiter.TryLockOperator(ctx, operator.ID.String(), record.ID.String())
	if err != nil {
		s.log.Warn("operator lock unavailable", zap.Error(err))
	} else if !locked {
		s.closeOrphan(ctx, record, operator, domain.ErrAlreadyActive)
		return nil, domain.ErrAlreadyActive
	}

	// The session switch is a mint-and-redeem of a single-use exchange
	// token so only the identity provider ever sees raw credentials.
	exchangeToken, err := s.identity.GenerateExchangeToken(ctx, target.ID)
	if err != nil {
		s.closeOrphan(ctx, record, operator, err)
		return nil, fmt.Errorf("mint exchange token: %w", err)
	}
	login, err := s.identity.RedeemExchangeToken(ctx, exchangeToken)
	if err != nil {
		s.closeOrphan(ctx, record, operator, err)
		return nil, fmt.Errorf("redeem exchange token: %w", err)
	}

	custodyToken, err := custody.Mint(s.secret, custody.Claims{
		AdminEmail: operator.Email,
		AdminID:    operator.ID.String(),
		SessionID:  record.ID.String(),
	}, now, s.ttl)
	if err != nil {
		s.closeOrphan(ctx, record, operator, err)
		return nil, fmt.Errorf("mint custody token: %w", err)
	}

	s.auditEvent(ctx, operator, "impersonation.start", record, map[string]any{
		"target_email": target.Email,
		"reason":       record.Reason,
		"expires_at":   record.ExpiresAt.Format(time.RFC3339),
	})
	s.log.Info("impersonation started",
		zap.String("impersonation.session_id", record.ID.String()),
		zap.String("admin_user_id", operator.ID.String()),
		zap.String("target_user_id", target.ID.String()),
	)

	return &domain.StartResult{
		Record:       record,
		Session:      login.Session,
		CustodyToken: custodyToken,
		ExpiresAt:    record.ExpiresAt,
		OriginalUser: operator,
		TargetUser:   target,
	}, nil
}

func (s *Service) Stop(ctx context.Context, req domain.StopRequest) (*domain.StopResult, error) {
	if req.SessionID == 0 {
		return nil, domain.ErrSessionIDRequired
	}
	if strings.TrimSpace(req.CustodyToken) == "" {
		return nil, domain.ErrCustodyRequired
	}

	claims, err := custody.Verify(s.secret, req.CustodyToken, s.clk.Now)
	if err != nil {
		return nil, domain.ErrCustodyInvalid
	}
	if claims.SessionID != req.SessionID.String() {
		return nil, domain.ErrCustodyInvalid
	}

	record, err := s.repo.FindByID(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	now := s.clk.Now()
	if record.TargetUserID != req.CurrentUserID || !record.Active(now) {
		return nil, domain.ErrSessionNotFound
	}
	if claims.AdminID != record.AdminUserID.String() {
		return nil, domain.ErrCustodyInvalid
	}

	if err := s.repo.Close(ctx, record.ID, now); err != nil {
		return nil, err
	}
	if err := s.limiter.ReleaseOperator(ctx, record.AdminUserID.String(), record.ID.String()); err != nil {
		s.log.Warn("failed to release operator lock", zap.Error(err))
	}

	operator, err := s.identity.GetUser(ctx, record.AdminUserID)
	if err != nil {
		return nil, domain.ErrRestoreFailed
	}
	exchangeToken, err := s.identity.GenerateExchangeToken(ctx, operator.ID)
	if err != nil {
		return nil, domain.ErrRestoreFailed
	}
	login, err := s.identity.RedeemExchangeToken(ctx, exchangeToken)
	if err != nil {
		return nil, domain.ErrRestoreFailed
	}

	s.auditEvent(ctx, operator, "impersonation.stop", record, map[string]any{
		"duration_seconds": int(now.Sub(record.StartedAt).Seconds()),
	})
	s.log.Info("impersonation stopped",
		zap.String("impersonation.session_id", record.ID.String()),
		zap.String("admin_user_id", operator.ID.String()),
	)

	return &domain.StopResult{Session: login.Session}, nil
}

func (s *Service) ActiveFor(ctx context.Context, userID snowflake.ID) (*domain.ImpersonationSession, error) {
	record, err := s.repo.FindActiveForTarget(ctx, userID, s.clk.Now())
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

// closeOrphan ends an audit row whose identity exchange never completed,
// so the row can never look like a live impersonation.
func (s *Service) closeOrphan(ctx context.Context, record *domain.ImpersonationSession, operator *identitydomain.User, cause error) {
	if err := s.repo.Close(ctx, record.ID, s.clk.Now()); err != nil {
		s.log.Error("failed to close orphaned impersonation row",
			zap.String("impersonation.session_id", record.ID.String()),
			zap.Error(err),
		)
	}
	if err := s.limiter.ReleaseOperator(ctx, record.AdminUserID.String(), record.ID.String()); err != nil {
		s.log.Warn("failed to release operator lock", zap.Error(err))
	}
	s.auditEvent(ctx, operator, "impersonation.start_failed", record, map[string]any{
		"error": cause.Error(),
	})
}

func (s *Service) auditEvent(ctx context.Context, operator *identitydomain.User, action string, record *domain.ImpersonationSession, metadata map[string]any) {
	actorID := operator.ID.String()
	targetID := record.TargetUserID.String()
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["impersonation_session_id"] = record.ID.String()

	err := s.audit.AuditLog(ctx, nil, string(auditdomain.ActorTypeOperator), &actorID, action, "user", &targetID, metadata)
	if err != nil {
		s.log.Warn("failed to record audit event", zap.String("action", action), zap.Error(err))
	}
}
