package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistry_RecordAttempt_IncrementsCounterAndHistogram(t *testing.T) {
	r := New()
	r.RecordAttempt(true, 1.5)
	r.RecordAttempt(false, 0.5)

	body := scrape(t, r)
	require.Contains(t, body, `pipelinerunner_attempts_total{outcome="success"} 1`)
	require.Contains(t, body, `pipelinerunner_attempts_total{outcome="failure"} 1`)
	require.Contains(t, body, "pipelinerunner_attempt_duration_seconds")
}

func TestRegistry_RecordPipeline_DefaultsEmptyMatchSourceToNone(t *testing.T) {
	r := New()
	r.RecordPipeline("")
	r.RecordPipeline("programmatic-flow")

	body := scrape(t, r)
	require.Contains(t, body, `pipelinerunner_pipelines_total{match_source="none"} 1`)
	require.Contains(t, body, `pipelinerunner_pipelines_total{match_source="programmatic-flow"} 1`)
}

func TestRegistry_RecordBackgroundTask(t *testing.T) {
	r := New()
	r.RecordBackgroundTask(true)

	body := scrape(t, r)
	require.Contains(t, body, `pipelinerunner_background_tasks_total{outcome="success"} 1`)
}

func TestRegistry_IndependentInstancesDoNotShareState(t *testing.T) {
	r1 := New()
	r2 := New()
	r1.RecordPipeline("ai-flow")

	body2 := scrape(t, r2)
	require.NotContains(t, body2, `pipelinerunner_pipelines_total{match_source="ai-flow"} 1`)
}

func scrape(t *testing.T, r *Registry) string {
	t.Helper()
	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)
	return rec.Body.String()
}
