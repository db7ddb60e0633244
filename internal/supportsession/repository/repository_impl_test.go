package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	sessiondomain "github.com/saasfoundry/tenantops/internal/supportsession/domain"
	"github.com/saasfoundry/tenantops/pkg/db"
	"gorm.io/gorm"
)

func setupRepo(t *testing.T) (sessiondomain.Repository, *gorm.DB, *snowflake.Node) {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := gdb.AutoMigrate(&sessiondomain.Session{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	node, err := snowflake.NewNode(3)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return Provide(), gdb, node
}

func newSession(node *snowflake.Node, sessionID string, state sessiondomain.SessionState, now time.Time) sessiondomain.Session {
	return sessiondomain.Session{
		ID:         node.Generate(),
		SessionID:  sessionID,
		UserID:     7,
		UserLogin:  "support@tenant.example",
		MasterUID:  42,
		StartTime:  now,
		ExpiryTime: now.Add(sessiondomain.SessionDuration),
		State:      state,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// The lookup-then-insert in the service races under concurrent creates,
// so the table itself must refuse a second active row per session id.
func TestInsertRejectsSecondActiveSession(t *testing.T) {
	repo, gdb, node := setupRepo(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	ctx := context.Background()

	first := newSession(node, "sess-1", sessiondomain.SessionStateActive, now)
	if err := repo.Insert(ctx, gdb, &first); err != nil {
		t.Fatalf("first insert: %v", err)
	}

	second := newSession(node, "sess-1", sessiondomain.SessionStateActive, now)
	err := repo.Insert(ctx, gdb, &second)
	if err == nil {
		t.Fatal("expected second active insert to fail")
	}
	if !db.IsDuplicateKeyErr(err) {
		t.Fatalf("expected duplicate key error, got %v", err)
	}
}

func TestInsertAllowsSessionIDReuseAfterTerminalState(t *testing.T) {
	repo, gdb, node := setupRepo(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	ctx := context.Background()

	ended := newSession(node, "sess-1", sessiondomain.SessionStateEnded, now)
	endTime := now.Add(10 * time.Minute)
	ended.EndTime = &endTime
	if err := repo.Insert(ctx, gdb, &ended); err != nil {
		t.Fatalf("insert ended: %v", err)
	}
	expired := newSession(node, "sess-1", sessiondomain.SessionStateExpired, now)
	if err := repo.Insert(ctx, gdb, &expired); err != nil {
		t.Fatalf("insert expired: %v", err)
	}

	active := newSession(node, "sess-1", sessiondomain.SessionStateActive, now)
	if err := repo.Insert(ctx, gdb, &active); err != nil {
		t.Fatalf("insert active after terminal rows: %v", err)
	}

	found, err := repo.FindActiveBySessionID(ctx, gdb, "sess-1")
	if err != nil {
		t.Fatalf("find active: %v", err)
	}
	if found == nil || found.ID != active.ID {
		t.Fatalf("expected the active row, got %+v", found)
	}
}
