package rag

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/pansea/tripplanner/engine/domain"
	"github.com/pansea/tripplanner/engine/semantic"
	"github.com/pansea/tripplanner/pkg/metrics"
	"github.com/pansea/tripplanner/pkg/resilience"
)

// --- Mocks ---

type mockEmbedder struct {
	err   error
	calls int
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func (m *mockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := m.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

type mockSearcher struct {
	mu    sync.Mutex
	recs  []semantic.Record
	err   error
	calls int
	last  semantic.SearchParams
}

func (m *mockSearcher) Search(_ context.Context, p semantic.SearchParams) ([]semantic.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.last = p
	return m.recs, m.err
}

type mockLLM struct {
	reply  func(prompt string) (string, error)
	prompt string
}

func (m *mockLLM) Generate(_ context.Context, prompt string) (string, error) {
	m.prompt = prompt
	return m.reply(prompt)
}

func (m *mockLLM) Chat(_ context.Context, message string) string {
	return "echo: " + message
}

func echoExample(req domain.TripRequest) *mockLLM {
	return &mockLLM{reply: func(string) (string, error) { return ExampleJSON(req.Normalize()), nil }}
}

func chiangMai() domain.TripRequest {
	return domain.TripRequest{StartPlace: "Bangkok", Destination: "Chiang Mai", Duration: 3, GroupSize: 2}
}

// --- Tests ---

func TestGeneratePlan_EndToEnd(t *testing.T) {
	req := chiangMai()
	search := &mockSearcher{}
	svc := New(&mockEmbedder{}, search, echoExample(req), DefaultOptions(), nil, nil)

	resp, err := svc.GeneratePlan(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.RetrievedData == nil || len(resp.RetrievedData) != 0 {
		t.Errorf("retrieved_data = %#v", resp.RetrievedData)
	}
	if resp.TripPlan.Title != PlanTitle(req) || resp.TripPlan.Title != "3-day travel trip to Chiang Mai" {
		t.Errorf("title = %q", resp.TripPlan.Title)
	}
	if resp.TripPlan.Budget.Total == nil || *resp.TripPlan.Budget.Total != 3300 {
		t.Errorf("budget = %+v", resp.TripPlan.Budget)
	}
	if len(resp.TripPlan.Timeline) != 2 || len(resp.TripPlan.Spots) != 1 {
		t.Errorf("timeline/spots = %d/%d", len(resp.TripPlan.Timeline), len(resp.TripPlan.Spots))
	}
	if resp.Meta["status"] != StatusSuccess || resp.Meta["results_count"] != 0 || resp.Meta["group_size"] != 2 {
		t.Errorf("meta = %v", resp.Meta)
	}
	if resp.Meta["query_text"] != "Trip from Bangkok to Chiang Mai for 3 days" {
		t.Errorf("query_text = %v", resp.Meta["query_text"])
	}
	if resp.Preparation == nil || len(resp.Preparation.Items) != 3 {
		t.Errorf("preparation = %+v", resp.Preparation)
	}

	p := search.last
	if p.Collection != "TripPlanData" || p.Limit != 1 || !p.WithPayload || len(p.Vector) != 3 {
		t.Errorf("search params = %+v", p)
	}
	if p.Timeout != DefaultOptions().SearchTimeout {
		t.Errorf("timeout = %v", p.Timeout)
	}
}

func TestGeneratePlan_ContextFromHits(t *testing.T) {
	req := chiangMai()
	search := &mockSearcher{recs: []semantic.Record{
		{ID: "42", Score: 0.87, Payload: map[string]any{"name": "Northern loop", "country": "Thailand"}},
		{ID: "43", Score: 0.5, Payload: map[string]any{"name": "beyond top-k"}},
	}}
	llm := echoExample(req)
	svc := New(&mockEmbedder{}, search, llm, DefaultOptions(), nil, nil)

	resp, err := svc.GeneratePlan(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(llm.prompt, "Context: \nNorthern loop\nCountry: Thailand\n\n") {
		t.Errorf("prompt context wrong:\n%s", llm.prompt)
	}
	if strings.Contains(llm.prompt, "beyond top-k") {
		t.Error("records past TopK leaked into the prompt")
	}
	if len(resp.RetrievedData) != 1 || resp.RetrievedData[0] != (domain.RetrievedItem{PlaceID: "42", PlaceName: "Northern loop", Score: 0.87}) {
		t.Errorf("retrieved = %+v", resp.RetrievedData)
	}
	if resp.Meta["results_count"] != 1 {
		t.Errorf("results_count = %v", resp.Meta["results_count"])
	}
}

func TestGeneratePlan_SearchFailureDegrades(t *testing.T) {
	req := chiangMai()
	llm := echoExample(req)
	svc := New(&mockEmbedder{}, &mockSearcher{err: errors.New("qdrant down")}, llm, DefaultOptions(), nil, nil)

	resp, err := svc.GeneratePlan(context.Background(), req)
	if err != nil {
		t.Fatalf("search failure must not fail the request: %v", err)
	}
	if resp.Meta["status"] != StatusSuccess || len(resp.RetrievedData) != 0 {
		t.Errorf("meta = %v", resp.Meta)
	}
	if !strings.Contains(llm.prompt, "Context: \n\n") {
		t.Error("expected empty context in prompt")
	}
}

func TestGeneratePlan_EmbedFailureSkipsSearch(t *testing.T) {
	req := chiangMai()
	search := &mockSearcher{}
	svc := New(&mockEmbedder{err: errors.New("model offline")}, search, echoExample(req), DefaultOptions(), nil, nil)

	if _, err := svc.GeneratePlan(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	if search.calls != 0 {
		t.Errorf("search called %d times after embed failure", search.calls)
	}
}

func TestGeneratePlan_LLMErrorIsFatal(t *testing.T) {
	cause := errors.New("connection reset")
	llm := &mockLLM{reply: func(string) (string, error) { return "", cause }}
	svc := New(&mockEmbedder{}, &mockSearcher{}, llm, DefaultOptions(), nil, nil)

	resp, err := svc.GeneratePlan(context.Background(), chiangMai())
	if resp != nil {
		t.Error("expected nil response")
	}
	if !errors.Is(err, ErrGeneration) || !errors.Is(err, cause) {
		t.Errorf("err = %v", err)
	}
}

func TestGeneratePlan_UnparseableOutput(t *testing.T) {
	llm := &mockLLM{reply: func(string) (string, error) { return "I think you should visit Doi Suthep.", nil }}
	reg := metrics.New()
	svc := New(&mockEmbedder{}, &mockSearcher{}, llm, DefaultOptions(), reg, nil)

	resp, err := svc.GeneratePlan(context.Background(), chiangMai())
	if err != nil {
		t.Fatal(err)
	}
	if resp.Meta["status"] != StatusError || resp.TripPlan.Title != ErrorTitle {
		t.Errorf("meta = %v", resp.Meta)
	}
	if !strings.Contains(reg.Render(), `tripplanner_plans_total{status="error"} 1`) {
		t.Errorf("metrics:\n%s", reg.Render())
	}
}

func TestGeneratePlan_BreakerOpens(t *testing.T) {
	req := chiangMai()
	search := &mockSearcher{err: errors.New("timeout")}
	opts := DefaultOptions()
	opts.Breaker = resilience.BreakerOpts{FailThreshold: 2}
	reg := metrics.New()
	svc := New(&mockEmbedder{}, search, echoExample(req), opts, reg, nil)

	for i := 0; i < 4; i++ {
		if _, err := svc.GeneratePlan(context.Background(), req); err != nil {
			t.Fatal(err)
		}
	}
	if search.calls != 2 {
		t.Errorf("search calls = %d, want 2 before the breaker opened", search.calls)
	}
	out := reg.Render()
	for _, want := range []string{
		`tripplanner_retrieval_degraded_total{stage="search"} 4`,
		"tripplanner_search_breaker_state 1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics missing %q:\n%s", want, out)
		}
	}
}

func TestBasicChat(t *testing.T) {
	svc := New(&mockEmbedder{}, &mockSearcher{}, &mockLLM{}, Options{}, nil, nil)
	if got := svc.BasicChat(context.Background(), "hi"); got != "echo: hi" {
		t.Errorf("BasicChat() = %q", got)
	}
}
