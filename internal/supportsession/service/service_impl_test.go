package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/saasfoundry/tenantops/internal/clock"
	sessiondomain "github.com/saasfoundry/tenantops/internal/supportsession/domain"
	sessionrepo "github.com/saasfoundry/tenantops/internal/supportsession/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type recordingNotifier struct {
	calls atomic.Int64
	fail  bool
	last  sessiondomain.Session
}

func (n *recordingNotifier) NotifySessionEnded(ctx context.Context, session sessiondomain.Session) error {
	n.calls.Add(1)
	n.last = session
	if n.fail {
		return sessiondomain.ErrCallbackFailed
	}
	return nil
}

func setupService(t *testing.T, fake *clock.FakeClock, n sessiondomain.Notifier) (*Service, *gorm.DB) {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := gdb.AutoMigrate(&sessiondomain.Session{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}

	svc := NewService(Params{
		DB:       gdb,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    fake,
		Repo:     sessionrepo.Provide(),
		Notifier: n,
	})
	return svc.(*Service), gdb
}

func mustCreate(t *testing.T, svc *Service, sessionID string, callbackURL *string) sessiondomain.Session {
	t.Helper()
	session, err := svc.Create(context.Background(), sessiondomain.CreateSessionRequest{
		UserID:      7,
		UserLogin:   "support@tenant.example",
		MasterUID:   42,
		SessionID:   sessionID,
		CallbackURL: callbackURL,
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return session
}

func TestCreateStampsFixedExpiry(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	svc, _ := setupService(t, fake, &recordingNotifier{})

	session := mustCreate(t, svc, "sess-1", nil)

	if got, want := session.ExpiryTime, session.StartTime.Add(sessiondomain.SessionDuration); !got.Equal(want) {
		t.Fatalf("expiry = %v, want %v", got, want)
	}
	if session.State != sessiondomain.SessionStateActive {
		t.Fatalf("state = %s", session.State)
	}

	// The clock moving must not move the stored expiry.
	fake.Advance(30 * time.Minute)
	result, err := svc.CheckValid(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !result.Valid {
		t.Fatalf("expected valid, got reason %q", result.Reason)
	}
	if !result.Session.ExpiryTime.Equal(session.ExpiryTime) {
		t.Fatal("expiry_time mutated after creation")
	}
}

func TestCreateRejectsDuplicateActiveSessionID(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	svc, _ := setupService(t, fake, &recordingNotifier{})

	mustCreate(t, svc, "sess-1", nil)

	_, err := svc.Create(context.Background(), sessiondomain.CreateSessionRequest{
		UserID:    8,
		MasterUID: 42,
		SessionID: "sess-1",
	})
	if !errors.Is(err, sessiondomain.ErrDuplicateSession) {
		t.Fatalf("expected ErrDuplicateSession, got %v", err)
	}
}

func TestCreateAllowsReuseAfterTerminal(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	svc, _ := setupService(t, fake, &recordingNotifier{})

	mustCreate(t, svc, "sess-1", nil)
	if _, err := svc.End(context.Background(), "sess-1", sessiondomain.SessionStateEnded); err != nil {
		t.Fatalf("end: %v", err)
	}

	mustCreate(t, svc, "sess-1", nil)
}

func TestCheckValidNotFound(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	svc, _ := setupService(t, fake, &recordingNotifier{})

	result, err := svc.CheckValid(context.Background(), "missing")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if result.Valid || result.Reason != sessiondomain.CheckReasonNotFound {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestCheckValidExpiresOnRead(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	n := &recordingNotifier{}
	svc, gdb := setupService(t, fake, n)

	mustCreate(t, svc, "sess-1", nil)
	fake.Advance(sessiondomain.SessionDuration + time.Minute)

	result, err := svc.CheckValid(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if result.Valid || result.Reason != sessiondomain.CheckReasonExpired {
		t.Fatalf("unexpected result %+v", result)
	}

	var stored sessiondomain.Session
	if err := gdb.Where("session_id = ?", "sess-1").First(&stored).Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	if stored.State != sessiondomain.SessionStateExpired {
		t.Fatalf("expected stored state expired, got %s", stored.State)
	}
	if stored.EndTime == nil {
		t.Fatal("expected end_time set")
	}
}

func TestEndSendsCallbackExactlyOnce(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	n := &recordingNotifier{}
	svc, gdb := setupService(t, fake, n)

	callbackURL := "http://master.example/callback"
	mustCreate(t, svc, "sess-1", &callbackURL)
	fake.Advance(20 * time.Minute)

	ended, err := svc.End(context.Background(), "sess-1", sessiondomain.SessionStateEnded)
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if !ended {
		t.Fatal("expected transition")
	}

	// Second end is a benign no-op and must not re-notify.
	ended, err = svc.End(context.Background(), "sess-1", sessiondomain.SessionStateEnded)
	if err != nil {
		t.Fatalf("second end: %v", err)
	}
	if ended {
		t.Fatal("expected no-op on terminal session")
	}
	if got := n.calls.Load(); got != 1 {
		t.Fatalf("expected 1 callback, got %d", got)
	}
	if n.last.DurationMinutes(fake.Now()) != 20 {
		t.Fatalf("unexpected duration %d", n.last.DurationMinutes(fake.Now()))
	}

	var stored sessiondomain.Session
	if err := gdb.Where("session_id = ?", "sess-1").First(&stored).Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	if !stored.CallbackSent {
		t.Fatal("expected callback_sent true")
	}
}

func TestEndLeavesCallbackFlagUnsetOnDeliveryFailure(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	n := &recordingNotifier{fail: true}
	svc, gdb := setupService(t, fake, n)

	callbackURL := "http://master.example/callback"
	mustCreate(t, svc, "sess-1", &callbackURL)

	if _, err := svc.End(context.Background(), "sess-1", sessiondomain.SessionStateEnded); err != nil {
		t.Fatalf("end: %v", err)
	}

	var stored sessiondomain.Session
	if err := gdb.Where("session_id = ?", "sess-1").First(&stored).Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	if stored.CallbackSent {
		t.Fatal("callback_sent must stay false after failed delivery")
	}
	if stored.State != sessiondomain.SessionStateEnded {
		t.Fatalf("state transition must stick regardless: %s", stored.State)
	}
}

func TestEndRejectsUnknownReason(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	svc, _ := setupService(t, fake, &recordingNotifier{})

	_, err := svc.End(context.Background(), "sess-1", sessiondomain.SessionStateActive)
	if !errors.Is(err, sessiondomain.ErrInvalidReason) {
		t.Fatalf("expected ErrInvalidReason, got %v", err)
	}
}

func TestSweepExpiredEndsOnlyOverdueActives(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	n := &recordingNotifier{}
	svc, gdb := setupService(t, fake, n)

	mustCreate(t, svc, "overdue-1", nil)
	mustCreate(t, svc, "overdue-2", nil)
	if _, err := svc.End(context.Background(), "overdue-2", sessiondomain.SessionStateEnded); err != nil {
		t.Fatalf("end: %v", err)
	}

	fake.Advance(30 * time.Minute)
	mustCreate(t, svc, "fresh", nil)

	fake.Advance(sessiondomain.SessionDuration - 20*time.Minute)

	count, err := svc.SweepExpired(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 expiry, got %d", count)
	}

	var states []string
	if err := gdb.Model(&sessiondomain.Session{}).
		Order("session_id").
		Pluck("state", &states).Error; err != nil {
		t.Fatalf("load states: %v", err)
	}
	// fresh, overdue-1, overdue-2
	want := []string{"active", "expired", "ended"}
	for i := range want {
		if states[i] != want[i] {
			t.Fatalf("states = %v, want %v", states, want)
		}
	}
}

func TestSweepExpiredIsIdempotent(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	svc, _ := setupService(t, fake, &recordingNotifier{})

	mustCreate(t, svc, "sess-1", nil)
	fake.Advance(sessiondomain.SessionDuration + time.Minute)

	if count, err := svc.SweepExpired(context.Background()); err != nil || count != 1 {
		t.Fatalf("first sweep: count=%d err=%v", count, err)
	}
	if count, err := svc.SweepExpired(context.Background()); err != nil || count != 0 {
		t.Fatalf("second sweep: count=%d err=%v", count, err)
	}
}
