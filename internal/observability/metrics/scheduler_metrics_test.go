package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestClassifyJobError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"deadline", context.DeadlineExceeded, SchedulerJobReasonDeadlineExceeded},
		{"canceled", context.Canceled, SchedulerJobReasonDeadlineExceeded},
		{"unknown", errors.New("boom"), SchedulerJobReasonUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := classifyJobError(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestJobCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := newSchedulerMetrics(registry, Config{
		ServiceName: "tenantops",
		Environment: "test",
	})

	metrics.IncJobRun("expire_sessions")
	metrics.IncJobRun("expire_sessions")
	metrics.AddBatchProcessed("expire_sessions", "support_sessions", 3)
	metrics.ObserveJobDuration("expire_sessions", 42*time.Millisecond)
	metrics.IncWebhookEvent("powertranz", "success")

	if got := testutil.ToFloat64(metrics.jobRuns.WithLabelValues("expire_sessions")); got != 2 {
		t.Fatalf("expected 2 runs, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.batchProcessed.WithLabelValues("expire_sessions", "support_sessions")); got != 3 {
		t.Fatalf("expected processed count 3, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.webhookEvents.WithLabelValues("powertranz", "success")); got != 1 {
		t.Fatalf("expected 1 webhook event, got %v", got)
	}
}
