package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/teamauth/internal/clock"
	"github.com/smallbiznis/teamauth/internal/identity/domain"
	"github.com/smallbiznis/teamauth/internal/identity/event"
	"go.uber.org/zap"
	"golang.org/x/crypto/argon2"
)

const (
	argonTime    uint32 = 1
	argonMemory  uint32 = 64 * 1024
	argonThreads uint8  = 4
	argonKeyLen  uint32 = 32
	argonSaltLen        = 16

	sessionTokenBytes = 32
	sessionTTL        = 7 * 24 * time.Hour
	// Sessions seen with less than this much lifetime left are renewed
	// for a full TTL on the next CurrentSession call.
	sessionRenewalWindow = 24 * time.Hour

	exchangeTokenBytes = 32
	exchangeTokenTTL   = 60 * time.Second

	minPasswordLength = 8
)

type Service struct {
	log       *zap.Logger
	repo      domain.Repository
	sessions  domain.SessionRepository
	exchanges domain.ExchangeTokenRepository
	hub       *event.Hub
	clk       clock.Clock
	genID     *snowflake.Node
}

func New(
	log *zap.Logger,
	repo domain.Repository,
	sessions domain.SessionRepository,
	exchanges domain.ExchangeTokenRepository,
	hub *event.Hub,
	clk clock.Clock,
	genID *snowflake.Node,
) domain.Provider {
	return &Service{
		log:       log.Named("identity.service"),
		repo:      repo,
		sessions:  sessions,
		exchanges: exchanges,
		hub:       hub,
		clk:       clk,
		genID:     genID,
	}
}

func (s *Service) CreateUser(ctx context.Context, req domain.CreateUserRequest) (*domain.User, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, domain.ErrInvalidCredentials
	}
	if len(strings.TrimSpace(req.Password)) < minPasswordLength {
		return nil, domain.ErrInvalidCredentials
	}

	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		return nil, domain.ErrUserExists
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, err
	}

	hashed, err := hashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	metadata := map[string]any{}
	for key, value := range req.Metadata {
		if key == "" {
			continue
		}
		metadata[key] = value
	}

	user := &domain.User{
		ID:           s.genID.Generate(),
		Email:        email,
		PasswordHash: &hashed,
		Metadata:     metadata,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Service) GetUser(ctx context.Context, id snowflake.ID) (*domain.User, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *Service) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	normalized, err := normalizeEmail(email)
	if err != nil {
		return nil, domain.ErrUserNotFound
	}
	return s.repo.FindByEmail(ctx, normalized)
}

func (s *Service) Login(ctx context.Context, req domain.LoginRequest) (*domain.LoginResult, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, domain.ErrInvalidCredentials
	}
	if strings.TrimSpace(req.Password) == "" {
		return nil, domain.ErrInvalidCredentials
	}

	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}
	if user.PasswordHash == nil || !verifyPassword(req.Password, *user.PasswordHash) {
		return nil, domain.ErrInvalidCredentials
	}

	result, err := s.mintSession(ctx, user, strings.TrimSpace(req.UserAgent), strings.TrimSpace(req.IPAddress))
	if err != nil {
		return nil, err
	}

	s.hub.Publish(event.Event{Type: event.SignedIn, Session: result.Session})
	return result, nil
}

func (s *Service) Logout(ctx context.Context, rawToken string) error {
	token := strings.TrimSpace(rawToken)
	if token == "" {
		return domain.ErrInvalidSession
	}

	session, err := s.sessions.GetSessionByTokenHash(ctx, hashToken(token))
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return domain.ErrInvalidSession
		}
		return err
	}

	if err := s.sessions.RevokeSession(ctx, session.ID, s.clk.Now()); err != nil {
		return err
	}

	s.hub.Publish(event.Event{Type: event.SignedOut, Session: &domain.Session{
		ID:        session.ID,
		UserID:    session.UserID,
		RawToken:  token,
		ExpiresAt: session.ExpiresAt,
	}})
	return nil
}

func (s *Service) CurrentSession(ctx context.Context, rawToken string) (*domain.Session, error) {
	token := strings.TrimSpace(rawToken)
	if token == "" {
		return nil, domain.ErrInvalidSession
	}

	session, err := s.sessions.GetSessionByTokenHash(ctx, hashToken(token))
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil, domain.ErrInvalidSession
		}
		return nil, err
	}

	now := s.clk.Now()
	if session.RevokedAt != nil {
		return nil, domain.ErrSessionRevoked
	}
	if now.After(session.ExpiresAt) {
		return nil, domain.ErrSessionExpired
	}

	if err := s.sessions.UpdateLastSeen(ctx, session.ID, now); err != nil {
		s.log.Warn("failed to update session last seen", zap.Error(err))
	}

	expiresAt := session.ExpiresAt
	if expiresAt.Sub(now) < sessionRenewalWindow {
		renewed := now.Add(sessionTTL)
		if err := s.sessions.ExtendSession(ctx, session.ID, renewed); err != nil {
			s.log.Warn("failed to extend session", zap.Error(err))
		} else {
			expiresAt = renewed
			s.hub.Publish(event.Event{Type: event.TokenRefreshed, Session: &domain.Session{
				ID:        session.ID,
				UserID:    session.UserID,
				RawToken:  token,
				ExpiresAt: renewed,
			}})
		}
	}

	return &domain.Session{
		ID:        session.ID,
		UserID:    session.UserID,
		ExpiresAt: expiresAt,
	}, nil
}

func (s *Service) GenerateExchangeToken(ctx context.Context, userID snowflake.ID) (string, error) {
	if _, err := s.repo.FindByID(ctx, userID); err != nil {
		return "", err
	}

	raw, err := newOpaqueToken(exchangeTokenBytes)
	if err != nil {
		return "", err
	}

	now := s.clk.Now()
	token := &domain.ExchangeToken{
		ID:        s.genID.Generate(),
		UserID:    userID,
		TokenHash: hashToken(raw),
		ExpiresAt: now.Add(exchangeTokenTTL),
		CreatedAt: now,
	}
	if err := s.exchanges.CreateToken(ctx, token); err != nil {
		return "", err
	}
	return raw, nil
}

func (s *Service) RedeemExchangeToken(ctx context.Context, rawToken string) (*domain.LoginResult, error) {
	raw := strings.TrimSpace(rawToken)
	if raw == "" {
		return nil, domain.ErrExchangeTokenInvalid
	}

	token, err := s.exchanges.ConsumeToken(ctx, hashToken(raw), s.clk.Now())
	if err != nil {
		return nil, err
	}

	user, err := s.repo.FindByID(ctx, token.UserID)
	if err != nil {
		return nil, err
	}

	result, err := s.mintSession(ctx, user, "", "")
	if err != nil {
		return nil, err
	}

	s.hub.Publish(event.Event{Type: event.SignedIn, Session: result.Session})
	return result, nil
}

func (s *Service) mintSession(ctx context.Context, user *domain.User, userAgent, ipAddress string) (*domain.LoginResult, error) {
	rawToken, err := newOpaqueToken(sessionTokenBytes)
	if err != nil {
		return nil, err
	}

	now := s.clk.Now()
	session := &domain.IdentitySession{
		ID:               s.genID.Generate(),
		UserID:           user.ID,
		SessionTokenHash: hashToken(rawToken),
		UserAgent:        userAgent,
		IPAddress:        ipAddress,
		ExpiresAt:        now.Add(sessionTTL),
		CreatedAt:        now,
		LastSeenAt:       now,
	}
	if err := s.sessions.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	return &domain.LoginResult{
		Session: &domain.Session{
			ID:        session.ID,
			UserID:    user.ID,
			RawToken:  rawToken,
			ExpiresAt: session.ExpiresAt,
		},
		User:      user,
		ExpiresAt: session.ExpiresAt,
	}, nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", fmt.Errorf("empty email")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return "", err
	}
	return email, nil
}

func newOpaqueToken(size int) (string, error) {
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func hashPassword(password string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	key := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return fmt.Sprintf("$argon2id$v=19$m=%d,t=%d,p=%d$%s$%s",
		argonMemory,
		argonTime,
		argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

func verifyPassword(password, encoded string) bool {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false
	}

	var memory uint32
	var iterations uint32
	var parallelism uint8
	for _, param := range strings.Split(parts[3], ",") {
		kv := strings.SplitN(param, "=", 2)
		if len(kv) != 2 {
			return false
		}
		value, err := strconv.ParseUint(kv[1], 10, 32)
		if err != nil {
			return false
		}
		switch kv[0] {
		case "m":
			memory = uint32(value)
		case "t":
			iterations = uint32(value)
		case "p":
			parallelism = uint8(value)
		}
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false
	}

	key := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, uint32(len(expected)))
	return subtle.ConstantTimeCompare(key, expected) == 1
}
