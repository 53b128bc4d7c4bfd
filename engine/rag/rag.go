// Package rag orchestrates trip-plan generation: it turns a request into a
// retrieval query, embeds it, searches prior trips, assembles the context
// into a prompt, calls the LLM and reconciles whatever comes back into a
// well-formed PlanResponse.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pansea/tripplanner/engine/domain"
	"github.com/pansea/tripplanner/engine/embed"
	"github.com/pansea/tripplanner/engine/semantic"
	"github.com/pansea/tripplanner/pkg/fn"
	"github.com/pansea/tripplanner/pkg/metrics"
	"github.com/pansea/tripplanner/pkg/resilience"
)

// ErrGeneration wraps LLM transport failures. Unlike bad model output these
// abort the request.
var ErrGeneration = errors.New("rag: generation failed")

// Searcher abstracts vector search; semantic.Client and semantic.GRPCStore
// both satisfy it.
type Searcher interface {
	Search(ctx context.Context, p semantic.SearchParams) ([]semantic.Record, error)
}

// Generator abstracts the LLM gateway.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Chat(ctx context.Context, message string) string
}

// Options configures the pipeline.
type Options struct {
	Collection    string
	TopK          int
	SearchTimeout time.Duration
	Breaker       resilience.BreakerOpts
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		Collection:    "TripPlanData",
		TopK:          1,
		SearchTimeout: 30 * time.Second,
		Breaker:       resilience.DefaultBreakerOpts,
	}
}

// Service is the trip-plan pipeline. It holds no per-request state and is
// safe for concurrent use.
type Service struct {
	embedder embed.Embedder
	search   Searcher
	llm      Generator
	breaker  *resilience.Breaker
	opts     Options
	logger   *slog.Logger
	tracer   trace.Tracer

	mRequests  func(status string) *metrics.Counter
	mDegraded  func(stage string) *metrics.Counter
	mStageDur  func(stage string) *metrics.Histogram
	mRetrieved *metrics.Histogram
}

// New wires a Service. reg may be nil, in which case a private registry is
// used.
func New(e embed.Embedder, s Searcher, g Generator, opts Options, reg *metrics.Registry, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if reg == nil {
		reg = metrics.New()
	}
	d := DefaultOptions()
	if opts.Collection == "" {
		opts.Collection = d.Collection
	}
	if opts.TopK <= 0 {
		opts.TopK = d.TopK
	}
	if opts.SearchTimeout <= 0 {
		opts.SearchTimeout = d.SearchTimeout
	}

	breakerState := reg.Gauge("tripplanner_search_breaker_state", "Vector search breaker: 0 closed, 1 open, 2 half-open")
	bo := opts.Breaker
	bo.OnStateChange = func(from, to resilience.State) {
		breakerState.Set(int64(to))
		logger.Warn("rag: search breaker state change", "from", from.String(), "to", to.String())
	}

	return &Service{
		embedder: e,
		search:   s,
		llm:      g,
		breaker:  resilience.NewBreaker(bo),
		opts:     opts,
		logger:   logger,
		tracer:   otel.Tracer("github.com/pansea/tripplanner/engine/rag"),
		mRequests: func(status string) *metrics.Counter {
			return reg.Counter(metrics.WithLabels("tripplanner_plans_total", "status", status), "Plans generated by reconciliation status")
		},
		mDegraded: func(stage string) *metrics.Counter {
			return reg.Counter(metrics.WithLabels("tripplanner_retrieval_degraded_total", "stage", stage), "Requests that fell back to empty context")
		},
		mStageDur: func(stage string) *metrics.Histogram {
			return reg.Histogram(metrics.WithLabels("tripplanner_stage_duration_seconds", "stage", stage), "Per-stage pipeline latency", metrics.DefaultBuckets)
		},
		mRetrieved: reg.Histogram("tripplanner_retrieved_records", "Records retrieved per request", []float64{0, 1, 2, 5, 10, 25}),
	}
}

// GeneratePlan runs the full pipeline. Retrieval problems degrade to an
// empty context; only an LLM failure returns an error.
func (s *Service) GeneratePlan(ctx context.Context, req domain.TripRequest) (*domain.PlanResponse, error) {
	req = req.Normalize()
	ctx, span := s.tracer.Start(ctx, "rag.GeneratePlan", trace.WithAttributes(
		attribute.String("trip.destination", req.Destination),
		attribute.Int("trip.duration", req.Duration),
	))
	defer span.End()

	query := BuildQuery(req)
	s.logger.Info("rag: generate plan", "query", query, "collection", s.opts.Collection)

	recs := s.retrieve(ctx, query)
	s.mRetrieved.Observe(float64(len(recs)))
	span.SetAttributes(attribute.Int("rag.results", len(recs)))

	prompt := BuildPrompt(req, AssembleContext(recs))

	start := time.Now()
	raw, err := s.llm.Generate(ctx, prompt)
	s.mStageDur("generate").Since(start)
	if err != nil {
		s.mRequests("failed").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")
		return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
	}

	resp := Reconcile(raw, ReconcileInput{
		Request:   req,
		QueryText: query,
		Retrieved: RetrievedItems(recs),
	})
	status, _ := resp.Meta["status"].(string)
	s.mRequests(status).Inc()
	if status == StatusError {
		s.logger.Warn("rag: model output not parseable, returning degraded plan",
			"err", resp.Meta["error"], "raw_len", len(raw))
	}
	span.SetAttributes(attribute.String("rag.status", status))
	return &resp, nil
}

// retrieve embeds and searches. Failures are logged and yield no records.
func (s *Service) retrieve(ctx context.Context, query string) []semantic.Record {
	ctx, span := s.tracer.Start(ctx, "rag.retrieve")
	defer span.End()

	start := time.Now()
	vec, err := s.embedder.Embed(ctx, query)
	s.mStageDur("embed").Since(start)
	if err != nil {
		s.mDegraded("embed").Inc()
		span.RecordError(err)
		s.logger.Warn("rag: embed failed, continuing without context", "err", err)
		return nil
	}

	start = time.Now()
	res := resilience.CallResult(s.breaker, ctx, func(ctx context.Context) fn.Result[[]semantic.Record] {
		return fn.FromPair(s.search.Search(ctx, semantic.SearchParams{
			Collection:  s.opts.Collection,
			Vector:      vec,
			Limit:       s.opts.TopK,
			WithPayload: true,
			Timeout:     s.opts.SearchTimeout,
		}))
	})
	s.mStageDur("search").Since(start)

	recs, err := res.Unwrap()
	if err != nil {
		s.mDegraded("search").Inc()
		span.RecordError(err)
		s.logger.Warn("rag: search failed, continuing without context", "err", err)
		return nil
	}
	if len(recs) > s.opts.TopK {
		recs = recs[:s.opts.TopK]
	}
	return recs
}

// BasicChat forwards a free-form message. It never fails; errors come back
// as the reply text.
func (s *Service) BasicChat(ctx context.Context, message string) string {
	ctx, span := s.tracer.Start(ctx, "rag.BasicChat")
	defer span.End()
	return s.llm.Chat(ctx, message)
}
