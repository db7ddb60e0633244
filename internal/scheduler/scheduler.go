package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/saasfoundry/tenantops/internal/clock"
	obsmetrics "github.com/saasfoundry/tenantops/internal/observability/metrics"
	recurringdomain "github.com/saasfoundry/tenantops/internal/recurring/domain"
	"github.com/saasfoundry/tenantops/internal/secretstore"
	sessiondomain "github.com/saasfoundry/tenantops/internal/supportsession/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("scheduler requires logger, clock and services")

type Params struct {
	fx.In

	Log          *zap.Logger
	Clock        clock.Clock
	SessionSvc   sessiondomain.Service
	RecurringSvc recurringdomain.Service
	SecretStore  *secretstore.Store `optional:"true"`
	Config       Config             `optional:"true"`
}

type Scheduler struct {
	log          *zap.Logger
	cfg          Config
	clock        clock.Clock
	sessionSvc   sessiondomain.Service
	recurringSvc recurringdomain.Service
	secretStore  *secretstore.Store
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.SessionSvc == nil || p.RecurringSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:          p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:          p.Config.withDefaults(),
		clock:        p.Clock,
		sessionSvc:   p.SessionSvc,
		recurringSvc: p.RecurringSvc,
		secretStore:  p.SecretStore,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	log := s.log.With(zap.String("job", name))
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, time.Since(start))
	if err == nil {
		return nil
	}

	// Deadline is a soft timeout: the next tick picks the work back up.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		schedMetrics.IncJobTimeout(name)
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	schedMetrics.IncJobError(name, err)
	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name    string
		Enabled bool
		Run     func(context.Context) error
	}{
		{"expire_sessions", s.isJobEnabled("expire_sessions"), func(ctx context.Context) error {
			return s.runJob(ctx, "expire_sessions", s.cfg.JobTimeout, s.ExpireSessionsJob)
		}},
		{"process_recurring", s.isJobEnabled("process_recurring"), func(ctx context.Context) error {
			return s.runJob(ctx, "process_recurring", s.cfg.JobTimeout, s.ProcessRecurringJob)
		}},
		{"sweep_secrets", s.isJobEnabled("sweep_secrets"), func(ctx context.Context) error {
			return s.runJob(ctx, "sweep_secrets", s.cfg.JobTimeout, s.SweepSecretsJob)
		}},
	}

	for _, job := range jobs {
		if job.Enabled {
			err = errors.Join(err, job.Run(parent))
		}
	}

	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		runLag := time.Since(nextRun)
		if runLag > 0 {
			schedMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

func (s *Scheduler) ExpireSessionsJob(ctx context.Context) error {
	count, err := s.sessionSvc.SweepExpired(ctx)
	if count > 0 {
		obsmetrics.Scheduler().AddBatchProcessed("expire_sessions", "support_sessions", count)
		s.log.Info("expired support sessions", zap.Int("count", count))
	}
	return err
}

func (s *Scheduler) ProcessRecurringJob(ctx context.Context) error {
	attempts, err := s.recurringSvc.ProcessDue(ctx)
	if len(attempts) > 0 {
		obsmetrics.Scheduler().AddBatchProcessed("process_recurring", "recurring_schedules", len(attempts))
		s.log.Info("processed recurring schedules", zap.Int("attempts", len(attempts)))
	}
	return err
}

func (s *Scheduler) SweepSecretsJob(ctx context.Context) error {
	if s.secretStore == nil {
		return nil
	}
	if count := s.secretStore.Sweep(s.clock.Now()); count > 0 {
		obsmetrics.Scheduler().AddBatchProcessed("sweep_secrets", "secrets", count)
		s.log.Info("swept expired secrets", zap.Int("count", count))
	}
	return nil
}
