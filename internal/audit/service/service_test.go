package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/teamauth/internal/audit/domain"
	auditrepo "github.com/smallbiznis/teamauth/internal/audit/repository"
	"github.com/smallbiznis/teamauth/internal/clock"
	"github.com/smallbiznis/teamauth/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (auditdomain.Service, *gorm.DB, *clock.FakeClock) {
	t.Helper()

	dbConn, err := db.NewTest()
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := dbConn.AutoMigrate(&auditdomain.AuditLog{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("failed to create snowflake node: %v", err)
	}
	clk := clock.NewFakeClock(time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC))

	svc := NewService(Params{
		DB:    dbConn,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  auditrepo.Provide(),
		Clock: clk,
	})
	return svc, dbConn, clk
}

func TestAuditLogStampsInjectedClock(t *testing.T) {
	svc, dbConn, clk := newTestService(t)
	clk.Advance(90 * time.Minute)

	actorID := "42"
	err := svc.AuditLog(context.Background(), nil, string(auditdomain.ActorTypeUser), &actorID, "user.login", "user", &actorID, nil)
	if err != nil {
		t.Fatalf("failed to write audit log: %v", err)
	}

	var entry auditdomain.AuditLog
	if err := dbConn.First(&entry).Error; err != nil {
		t.Fatalf("failed to read audit row: %v", err)
	}
	if !entry.CreatedAt.Equal(clk.Now().UTC()) {
		t.Fatalf("expected created_at %s, got %s", clk.Now().UTC(), entry.CreatedAt)
	}
}

func TestAuditLogRequiresAction(t *testing.T) {
	svc, _, _ := newTestService(t)

	err := svc.AuditLog(context.Background(), nil, string(auditdomain.ActorTypeSystem), nil, "  ", "user", nil, nil)
	if err != auditdomain.ErrInvalidAction {
		t.Fatalf("expected ErrInvalidAction, got %v", err)
	}
}
