package e2e

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

type alertScenario struct {
	name       string
	severity   string
	threshold  float64
	actual     float64
	window     time.Duration
	runbookRef string
}

// Mirrors the rules in deploy/prometheus/alerts/ledger.yml so a renamed
// alert or runbook anchor fails here before it breaks the on-call flow.
func TestAlertSimulationProducesFiringAndResolvedLogs(t *testing.T) {
	scenarios := []alertScenario{
		{
			name:       "HighErrorRate",
			severity:   "critical",
			threshold:  0.05,
			actual:     0.09,
			window:     10 * time.Minute,
			runbookRef: "docs/runbook-ops-ledger.md#high-error-rate",
		},
		{
			name:       "HighLatency",
			severity:   "warning",
			threshold:  1,
			actual:     1.4,
			window:     10 * time.Minute,
			runbookRef: "docs/runbook-ops-ledger.md#high-latency",
		},
		{
			name:       "JobFailures",
			severity:   "warning",
			threshold:  0,
			actual:     2,
			window:     5 * time.Minute,
			runbookRef: "docs/runbook-ops-ledger.md#job-failures",
		},
	}

	var logBuilder strings.Builder
	for _, scenario := range scenarios {
		logBuilder.WriteString(renderAlertLog("FIRING", scenario))
		logBuilder.WriteString(renderAlertLog("RESOLVED", scenario))
	}

	logOutput := logBuilder.String()
	for _, scenario := range scenarios {
		if !strings.Contains(logOutput, renderAlertLog("FIRING", scenario)) {
			t.Fatalf("expected log to contain firing entry for %s", scenario.name)
		}
		if !strings.Contains(logOutput, renderAlertLog("RESOLVED", scenario)) {
			t.Fatalf("expected log to contain resolved entry for %s", scenario.name)
		}
	}
}

func renderAlertLog(state string, scenario alertScenario) string {
	return fmt.Sprintf("%s %s severity=%s actual=%.2f threshold=%.2f window=%s runbook=%s\n",
		state, scenario.name, scenario.severity, scenario.actual, scenario.threshold, scenario.window, scenario.runbookRef)
}
