package sessioncache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/teamauth/internal/clock"
	"github.com/smallbiznis/teamauth/internal/identity/domain"
	"github.com/smallbiznis/teamauth/internal/identity/event"
	"go.uber.org/zap"
)

type countingProvider struct {
	domain.Provider

	calls   int64
	delay   time.Duration
	session *domain.Session
	err     error
}

func (p *countingProvider) CurrentSession(ctx context.Context, token string) (*domain.Session, error) {
	atomic.AddInt64(&p.calls, 1)
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	return p.session, p.err
}

func newSession(token string) *domain.Session {
	return &domain.Session{
		ID:       snowflake.ID(101),
		UserID:   snowflake.ID(7),
		RawToken: token,
	}
}

func TestGetServesFreshEntryWithoutRefetch(t *testing.T) {
	clk := clock.NewFakeClock(time.Now())
	provider := &countingProvider{session: newSession("tok")}
	cache := New(zap.NewNop(), provider, clk)

	for i := 0; i < 5; i++ {
		if got := cache.Get(context.Background(), "tok", false); got == nil {
			t.Fatal("expected session")
		}
	}
	if n := atomic.LoadInt64(&provider.calls); n != 1 {
		t.Fatalf("expected 1 provider call, got %d", n)
	}

	clk.Advance(29 * time.Second)
	cache.Get(context.Background(), "tok", false)
	if n := atomic.LoadInt64(&provider.calls); n != 1 {
		t.Fatalf("expected entry to stay fresh under 30s, got %d calls", n)
	}

	clk.Advance(2 * time.Second)
	cache.Get(context.Background(), "tok", false)
	if n := atomic.LoadInt64(&provider.calls); n != 2 {
		t.Fatalf("expected refetch after freshness window, got %d calls", n)
	}
}

func TestGetCoalescesConcurrentLookups(t *testing.T) {
	clk := clock.NewFakeClock(time.Now())
	provider := &countingProvider{session: newSession("tok"), delay: 50 * time.Millisecond}
	cache := New(zap.NewNop(), provider, clk)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if got := cache.Get(context.Background(), "tok", false); got == nil {
				t.Error("expected session")
			}
		}()
	}
	wg.Wait()

	if n := atomic.LoadInt64(&provider.calls); n != 1 {
		t.Fatalf("expected concurrent lookups to coalesce into 1 call, got %d", n)
	}
}

func TestGetForceBypassesCache(t *testing.T) {
	clk := clock.NewFakeClock(time.Now())
	provider := &countingProvider{session: newSession("tok")}
	cache := New(zap.NewNop(), provider, clk)

	cache.Get(context.Background(), "tok", false)
	cache.Get(context.Background(), "tok", true)
	if n := atomic.LoadInt64(&provider.calls); n != 2 {
		t.Fatalf("expected force to bypass cache, got %d calls", n)
	}
}

func TestGetProviderErrorResolvesNil(t *testing.T) {
	clk := clock.NewFakeClock(time.Now())
	provider := &countingProvider{err: errors.New("backend down")}
	cache := New(zap.NewNop(), provider, clk)

	if got := cache.Get(context.Background(), "tok", false); got != nil {
		t.Fatalf("expected nil session on provider error, got %v", got)
	}
}

func TestInvalidateForcesRefetch(t *testing.T) {
	clk := clock.NewFakeClock(time.Now())
	provider := &countingProvider{session: newSession("tok")}
	cache := New(zap.NewNop(), provider, clk)

	cache.Get(context.Background(), "tok", false)
	cache.Invalidate("tok")
	cache.Get(context.Background(), "tok", false)
	if n := atomic.LoadInt64(&provider.calls); n != 2 {
		t.Fatalf("expected refetch after invalidate, got %d calls", n)
	}
}

func TestFailedLookupsAreNotRetained(t *testing.T) {
	clk := clock.NewFakeClock(time.Now())
	provider := &countingProvider{err: errors.New("unknown token")}
	cache := New(zap.NewNop(), provider, clk)

	for i := 0; i < 32; i++ {
		if got := cache.Get(context.Background(), fmt.Sprintf("junk-%d", i), false); got != nil {
			t.Fatalf("expected nil session, got %v", got)
		}
	}

	cache.mu.RLock()
	n := len(cache.entries)
	cache.mu.RUnlock()
	if n != 0 {
		t.Fatalf("expected no entries for tokens that resolved to nothing, found %d", n)
	}
}

func TestApplyEventWritesWithoutProvider(t *testing.T) {
	clk := clock.NewFakeClock(time.Now())
	provider := &countingProvider{session: newSession("tok")}
	cache := New(zap.NewNop(), provider, clk)

	cache.ApplyEvent(event.Event{Type: event.SignedIn, Session: newSession("tok")})
	if got := cache.Get(context.Background(), "tok", false); got == nil {
		t.Fatal("expected session written by event")
	}
	if n := atomic.LoadInt64(&provider.calls); n != 0 {
		t.Fatalf("expected no provider calls, got %d", n)
	}

	cache.ApplyEvent(event.Event{Type: event.SignedOut, Session: newSession("tok")})
	cache.Get(context.Background(), "tok", false)
	if n := atomic.LoadInt64(&provider.calls); n != 1 {
		t.Fatalf("expected refetch after sign-out event, got %d calls", n)
	}
}
