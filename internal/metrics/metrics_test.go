package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestExecutorGaugesAreRegisteredUnderVixNamespace(t *testing.T) {
	ExecutorPending.Set(3)
	if got := testutil.ToFloat64(ExecutorPending); got != 3 {
		t.Errorf("ExecutorPending = %v, want 3", got)
	}
	ExecutorPending.Set(0)
}

func TestRouterStatusCounterVecIncrementsByLabel(t *testing.T) {
	RouterStatus.WithLabelValues("200").Inc()
	RouterStatus.WithLabelValues("200").Inc()
	RouterStatus.WithLabelValues("404").Inc()

	if got := testutil.ToFloat64(RouterStatus.WithLabelValues("200")); got != 2 {
		t.Errorf("responses_total{status=200} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(RouterStatus.WithLabelValues("404")); got != 1 {
		t.Errorf("responses_total{status=404} = %v, want 1", got)
	}
}

func TestSessionGaugeTracksOpenConnections(t *testing.T) {
	SessionConnections.Inc()
	SessionConnections.Inc()
	SessionConnections.Dec()
	if got := testutil.ToFloat64(SessionConnections); got != 1 {
		t.Errorf("SessionConnections = %v, want 1", got)
	}
	SessionConnections.Dec()
}

func TestCollectorNamesCarryVixNamespace(t *testing.T) {
	name := ExecutorTasksCompleted.Desc().String()
	if !strings.Contains(name, "vix_executor_tasks_completed_total") {
		t.Errorf("descriptor %q does not mention the expected fully-qualified metric name", name)
	}
}
