package perf

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/meridian-books/meridian-books/internal/observability"
	"github.com/meridian-books/meridian-books/jobs"
)

// Simulates a day of scheduled job runs and checks the exported counters
// stay within the error budget the JobFailures alert is tuned for.
func TestJobCountersStayWithinErrorBudget(t *testing.T) {
	metrics := observability.NewMetrics()

	for i := 0; i < 58; i++ {
		metrics.ObserveJob(jobs.TaskBalancesRefresh, "ok")
	}
	metrics.ObserveJob(jobs.TaskBalancesRefresh, "skipped")
	metrics.ObserveJob(jobs.TaskBalancesRefresh, "error")
	for i := 0; i < 24; i++ {
		metrics.ObserveJob(jobs.TaskGLIntegrity, "ok")
	}

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()

	for _, line := range []string{
		`meridian_jobs_total{outcome="ok",task="balances:refresh"} 58`,
		`meridian_jobs_total{outcome="error",task="balances:refresh"} 1`,
		`meridian_jobs_total{outcome="ok",task="gl:integrity"} 24`,
	} {
		if !strings.Contains(body, line) {
			t.Fatalf("expected exposition to contain %q\ngot:\n%s", line, body)
		}
	}

	errors, total := 1.0, 84.0
	if ratio := errors / total; ratio > 0.05 {
		t.Fatalf("job error ratio %.3f exceeds 5%% budget", ratio)
	}
}
