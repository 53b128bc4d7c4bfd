package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCounter(t *testing.T) {
	r := New()
	c := r.Counter("plans_total", "Plans generated")
	c.Inc()
	c.Add(4)
	if c.Value() != 5 {
		t.Fatalf("expected 5, got %d", c.Value())
	}
	if r.Counter("plans_total", "") != c {
		t.Fatal("same name should return same counter")
	}
}

func TestGauge(t *testing.T) {
	g := New().Gauge("breaker_state", "")
	g.Set(2)
	g.Inc()
	g.Dec()
	g.Dec()
	if g.Value() != 1 {
		t.Fatalf("expected 1, got %d", g.Value())
	}
}

func TestHistogram(t *testing.T) {
	r := New()
	h := r.Histogram("llm_seconds", "", []float64{1, 0.1, 10})
	h.Observe(0.0625)
	h.Observe(0.5)
	h.Observe(50)

	out := r.Render()
	for _, want := range []string{
		`llm_seconds_bucket{le="0.1"} 1`,
		`llm_seconds_bucket{le="1"} 2`,
		`llm_seconds_bucket{le="10"} 2`,
		`llm_seconds_bucket{le="+Inf"} 3`,
		`llm_seconds_sum 50.5625`,
		`llm_seconds_count 3`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestHistogramSince(t *testing.T) {
	r := New()
	h := r.Histogram("x_seconds", "", nil)
	h.Since(time.Now().Add(-time.Millisecond))
	if !strings.Contains(r.Render(), "x_seconds_count 1") {
		t.Fatal("expected one observation")
	}
}

func TestWithLabels(t *testing.T) {
	if got := WithLabels("foo", "route", "/v1/basicChat", "code", "200"); got != `foo{route="/v1/basicChat",code="200"}` {
		t.Errorf("got %s", got)
	}
	if got := WithLabels("foo", "odd"); got != "foo" {
		t.Errorf("odd pairs should be ignored, got %s", got)
	}
}

func TestRenderLabelledFamilies(t *testing.T) {
	r := New()
	r.Counter(WithLabels("requests_total", "status", "error"), "Requests by status").Add(2)
	r.Counter(WithLabels("requests_total", "status", "success"), "").Inc()
	r.Histogram(WithLabels("stage_seconds", "stage", "search"), "Stage latency", []float64{1}).Observe(0.5)

	out := r.Render()
	for _, want := range []string{
		"# HELP requests_total Requests by status",
		"# TYPE requests_total counter",
		`requests_total{status="error"} 2`,
		`requests_total{status="success"} 1`,
		"# TYPE stage_seconds histogram",
		`stage_seconds_bucket{le="1",stage="search"} 1`,
		`stage_seconds_count{stage="search"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
	if strings.Count(out, "# TYPE requests_total") != 1 {
		t.Error("family header rendered more than once")
	}
}

func TestHandler(t *testing.T) {
	r := New()
	r.Counter("hits_total", "").Inc()

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain") {
		t.Errorf("content type = %s", rec.Header().Get("Content-Type"))
	}
	if !strings.Contains(rec.Body.String(), "hits_total 1") {
		t.Errorf("body = %s", rec.Body.String())
	}
}
