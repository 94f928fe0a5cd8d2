package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/teamauth/internal/config"
)

const (
	keyImpersonationStart = "impersonation:start:%s"
	keyImpersonationLock  = "impersonation:active:%s"
)

// ImpersonationLimiter throttles impersonation starts per operator and
// holds a short-lived lock so one operator cannot hold two overlapping
// impersonation sessions through this instance. A nil limiter (no redis
// configured) allows everything.
type ImpersonationLimiter struct {
	enabled bool

	bucket *TokenBucket
	locker *Locker

	rate    float64
	burst   int
	lockTTL time.Duration
}

func NewImpersonationLimiter(cfg config.Config) (*ImpersonationLimiter, error) {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
	})

	return &ImpersonationLimiter{
		enabled: true,
		bucket:  NewTokenBucket(client),
		locker:  NewLocker(client),
		rate:    float64(5) / 60, // 5 starts per minute per operator
		burst:   5,
		lockTTL: cfg.ImpersonationTTL,
	}, nil
}

func (l *ImpersonationLimiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *ImpersonationLimiter) AllowStart(ctx context.Context, adminUserID string) (bool, error) {
	if !l.Enabled() {
		return true, nil
	}
	res, err := l.bucket.Allow(ctx, fmt.Sprintf(keyImpersonationStart, strings.TrimSpace(adminUserID)), l.rate, l.burst)
	if err != nil {
		return false, err
	}
	return res.Allowed, nil
}

// TryLockOperator marks the operator as having an active impersonation,
// keyed by operator and guarded by the impersonation session id so the
// stop handler can release it.
func (l *ImpersonationLimiter) TryLockOperator(ctx context.Context, adminUserID, sessionID string) (bool, error) {
	if !l.Enabled() {
		return true, nil
	}
	key := fmt.Sprintf(keyImpersonationLock, strings.TrimSpace(adminUserID))
	return l.locker.TryLock(ctx, key, sessionID, l.lockTTL)
}

func (l *ImpersonationLimiter) ReleaseOperator(ctx context.Context, adminUserID, sessionID string) error {
	if !l.Enabled() {
		return nil
	}
	key := fmt.Sprintf(keyImpersonationLock, strings.TrimSpace(adminUserID))
	return l.locker.Release(ctx, key, sessionID)
}
