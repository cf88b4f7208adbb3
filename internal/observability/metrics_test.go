package observability

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.ObserveAPI("GET", "/x", "200", time.Millisecond)
	m.ObserveTurn("submit", "next_step", time.Second)
	m.ObserveRating(4)
	m.IncFallback("rating")
	m.IncPromptLogWrite("postgres", "ok")
	m.ObserveLLMRequest("gpt", "responses", "200", time.Second, 10, 5)
	m.StreamOpened()
	m.StreamClosed()
	if err := m.WritePrometheus(&bytes.Buffer{}); err != nil {
		t.Fatalf("WritePrometheus on nil: %v", err)
	}

	rec := httptest.NewRecorder()
	m.WriteHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("nil metrics should answer 503, got %d", rec.Code)
	}
}

func TestWritePrometheusExposition(t *testing.T) {
	m := newMetrics()
	m.ObserveAPI("POST", "/api/journey-attempts/:id/chat", "200", 120*time.Millisecond)
	m.ObserveAPI("POST", "/api/journey-attempts/:id/chat", "500", time.Second)
	m.ObserveTurn("submit", "retry_step", 2*time.Second)
	m.ObserveRating(2)
	m.IncFallback("rating")
	m.IncPromptLogWrite("dynamodb", "ok")
	m.ObserveLLMRequest("gpt-4o-mini", "responses", "200", time.Second, 100, 20)

	var buf bytes.Buffer
	if err := m.WritePrometheus(&buf); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		`jt_api_requests_total{method="POST",route="/api/journey-attempts/:id/chat",status="200"} 1.000000`,
		`jt_api_requests_error_total 1.000000`,
		`jt_journey_turns_total{kind="submit",outcome="retry_step"} 1.000000`,
		`jt_journey_step_rating_bucket{le="2"} 1`,
		`jt_journey_step_rating_bucket{le="1"} 0`,
		`jt_ai_fallback_total{kind="rating"} 1.000000`,
		`jt_prompt_log_writes_total{backend="dynamodb",status="ok"} 1.000000`,
		`jt_llm_tokens_total{model="gpt-4o-mini",direction="input"} 100.000000`,
		"# TYPE jt_sse_streams_open gauge",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("exposition missing %q\n%s", want, out)
		}
	}
}

func TestLabelHelpers(t *testing.T) {
	if got := labelString([]string{"a", "b"}, []string{"x\"y"}); got != `{a="x\"y",b="unknown"}` {
		t.Fatalf("labelString = %s", got)
	}
	if got := withLe("", "0.5"); got != `{le="0.5"}` {
		t.Fatalf("withLe empty = %s", got)
	}
	if got := withLe(`{a="1"}`, "+Inf"); got != `{a="1",le="+Inf"}` {
		t.Fatalf("withLe labels = %s", got)
	}
	if !isServerErrorStatus("503") || isServerErrorStatus("404") || isServerErrorStatus("5xx") {
		t.Fatalf("isServerErrorStatus misclassified")
	}
}
