package scheduler

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/saasfoundry/tenantops/internal/clock"
	recurringdomain "github.com/saasfoundry/tenantops/internal/recurring/domain"
	"github.com/saasfoundry/tenantops/internal/secretstore"
	sessiondomain "github.com/saasfoundry/tenantops/internal/supportsession/domain"
	"go.uber.org/zap"
)

type fakeSessionSvc struct {
	sessiondomain.Service
	sweeps int
	err    error
}

func (f *fakeSessionSvc) SweepExpired(ctx context.Context) (int, error) {
	f.sweeps++
	return 2, f.err
}

type fakeRecurringSvc struct {
	recurringdomain.Service
	sweeps int
	err    error
}

func (f *fakeRecurringSvc) ProcessDue(ctx context.Context) ([]recurringdomain.Attempt, error) {
	f.sweeps++
	if f.err != nil {
		return nil, f.err
	}
	return []recurringdomain.Attempt{{
		ScheduleReference: "REC-1",
		Status:            recurringdomain.PaymentStatusSuccess,
	}}, nil
}

func newTestScheduler(t *testing.T, sessions *fakeSessionSvc, recurring *fakeRecurringSvc, cfg Config) *Scheduler {
	t.Helper()
	sched, err := New(Params{
		Log:          zap.NewNop(),
		Clock:        clock.NewFakeClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)),
		SessionSvc:   sessions,
		RecurringSvc: recurring,
		SecretStore:  secretstore.New(zap.NewNop()),
		Config:       cfg,
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	return sched
}

func TestNewRequiresDependencies(t *testing.T) {
	if _, err := New(Params{Log: zap.NewNop()}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestRunOnceRunsAllJobs(t *testing.T) {
	sessions := &fakeSessionSvc{}
	recurring := &fakeRecurringSvc{}
	sched := newTestScheduler(t, sessions, recurring, Config{})

	if err := sched.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if sessions.sweeps != 1 || recurring.sweeps != 1 {
		t.Fatalf("sweeps = %d/%d", sessions.sweeps, recurring.sweeps)
	}
}

func TestRunOnceHonorsEnabledJobs(t *testing.T) {
	sessions := &fakeSessionSvc{}
	recurring := &fakeRecurringSvc{}
	sched := newTestScheduler(t, sessions, recurring, Config{
		EnabledJobs: []string{"expire_sessions"},
	})

	if err := sched.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if sessions.sweeps != 1 {
		t.Fatalf("session sweeps = %d", sessions.sweeps)
	}
	if recurring.sweeps != 0 {
		t.Fatalf("recurring job ran while disabled")
	}
}

func TestRunOnceAggregatesJobErrors(t *testing.T) {
	sessions := &fakeSessionSvc{err: errors.New("session sweep broke")}
	recurring := &fakeRecurringSvc{}
	sched := newTestScheduler(t, sessions, recurring, Config{})

	err := sched.RunOnce(context.Background())
	if err == nil {
		t.Fatal("expected aggregated error")
	}
	if !strings.Contains(err.Error(), "expire_sessions") {
		t.Fatalf("error missing job name: %v", err)
	}
	// A broken job never stops the others.
	if recurring.sweeps != 1 {
		t.Fatal("later job skipped after failure")
	}
}

func TestRunJobTreatsDeadlineAsSoftTimeout(t *testing.T) {
	sessions := &fakeSessionSvc{err: context.DeadlineExceeded}
	recurring := &fakeRecurringSvc{}
	sched := newTestScheduler(t, sessions, recurring, Config{})

	if err := sched.RunOnce(context.Background()); err != nil {
		t.Fatalf("deadline should be soft, got %v", err)
	}
}
