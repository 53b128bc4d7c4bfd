package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/pansea/tripplanner/engine/domain"
	"github.com/pansea/tripplanner/engine/events"
	"github.com/pansea/tripplanner/engine/ingest"
	"github.com/pansea/tripplanner/pkg/fn"
	"github.com/pansea/tripplanner/pkg/metrics"
	"github.com/pansea/tripplanner/pkg/mid"
)

const (
	serviceName = "PAN-SEA Travel Planning API"
	version     = "1.0.0"

	// MaxRetries and RetryDelay drive the outer retry of plan generation.
	MaxRetries = 3
	RetryDelay = 2 * time.Second

	maxBodyBytes = 1 << 20
	// maxSearchLimit caps the limit a client may ask of /searchSimilar.
	maxSearchLimit = 50
)

// planner is the part of rag.Service the handlers use.
type planner interface {
	GeneratePlan(ctx context.Context, req domain.TripRequest) (*domain.PlanResponse, error)
	BasicChat(ctx context.Context, message string) string
}

// linkStore is the part of ingest.Importer the handlers use.
type linkStore interface {
	InsertFromYouTube(ctx context.Context, videoID string, metadata map[string]any) (ingest.Link, error)
	SearchSimilar(ctx context.Context, query string, limit int) ([]ingest.SimilarResult, error)
}

type server struct {
	planner planner
	links   linkStore
	events  events.Publisher
	metrics *metrics.Registry
	retry   fn.RetryOpts
	logger  *slog.Logger
	now     func() time.Time
}

func newServer(p planner, l linkStore, pub events.Publisher, reg *metrics.Registry, logger *slog.Logger) *server {
	if pub == nil {
		pub = events.Noop{}
	}
	if reg == nil {
		reg = metrics.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &server{
		planner: p,
		links:   l,
		events:  pub,
		metrics: reg,
		retry:   fn.FixedRetry(MaxRetries, RetryDelay),
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// routes registers every endpoint at the root and under /v1.
func (s *server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /v1", s.handleV1)
	mux.Handle("GET /metrics", s.metrics.Handler())

	for _, prefix := range []string{"", "/v1"} {
		mux.HandleFunc("GET "+prefix+"/health", s.handleHealth)
		mux.HandleFunc("POST "+prefix+"/generateTripPlan", s.handleGeneratePlan)
		mux.HandleFunc("POST "+prefix+"/addLink", s.handleAddLink)
		mux.HandleFunc("POST "+prefix+"/addYoutubeLink", s.handleAddLink)
		mux.HandleFunc("POST "+prefix+"/searchSimilar", s.handleSearchSimilar)
		mux.HandleFunc("POST "+prefix+"/basicChat", s.handleBasicChat)
	}
	return mux
}

// --- Status ---

func (s *server) timestamp() string {
	return s.now().Format("2006-01-02T15:04:05.000000")
}

func (s *server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message":   serviceName + " is running",
		"status":    "healthy",
		"timestamp": s.timestamp(),
	})
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": s.timestamp(),
		"service":   serviceName,
	})
}

func (s *server) handleV1(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": s.timestamp(),
		"service":   "SealionAI Travel Planning Service",
		"version":   version,
		"checks":    map[string]any{},
	})
}

// --- Trip plans ---

func (s *server) handleGeneratePlan(w http.ResponseWriter, r *http.Request) {
	var req domain.TripRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", "request body is not a valid trip request", err.Error())
		return
	}
	req = req.Normalize()
	if err := domain.ValidateTripRequest(req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", "trip request failed validation", err.Error())
		return
	}

	ctx := r.Context()
	opts := s.retry
	opts.OnRetry = func(attempt int, err error) {
		s.logger.Warn("generate plan attempt failed", "attempt", attempt, "max", MaxRetries, "err", err)
	}
	lastAttempt := 0
	res := fn.Retry(ctx, opts, func(ctx context.Context, attempt int) fn.Result[*domain.PlanResponse] {
		lastAttempt = attempt
		s.logger.Info("generating trip plan", "attempt", attempt, "max", MaxRetries)
		return fn.FromPair(s.planner.GeneratePlan(ctx, req))
	})

	resp, err := res.Unwrap()
	if err != nil {
		s.metrics.Counter(metrics.WithLabels("tripplanner_http_plan_failures_total", "reason", "exhausted"), "Plan requests that exhausted every attempt").Inc()
		s.logger.Error("all plan attempts failed", "attempts", lastAttempt, "err", err)
		writeError(w, http.StatusGatewayTimeout, "Request timeout",
			fmt.Sprintf("Failed to generate trip plan after %d attempts", MaxRetries),
			"The service is experiencing high load. Please try again later.")
		return
	}

	if resp.Meta == nil {
		resp.Meta = map[string]any{}
	}
	resp.Meta["timestamp"] = s.timestamp()
	resp.Meta["attempt"] = lastAttempt

	status, _ := resp.Meta["status"].(string)
	if err := s.events.PlanGenerated(ctx, events.PlanGenerated{
		Destination:  req.Destination,
		StartPlace:   req.StartPlace,
		Duration:     req.Duration,
		Status:       status,
		ResultsCount: len(resp.RetrievedData),
		Attempt:      lastAttempt,
		TraceID:      mid.TraceID(ctx),
	}); err != nil {
		s.logger.Warn("publish plan event", "err", err)
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- Links and search ---

// linkRequest carries a video id or URL. The search endpoint reuses it, with
// video_id holding the query text.
type linkRequest struct {
	VideoID string `json:"video_id"`
	Query   string `json:"query,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

type linkResponse struct {
	Message  string `json:"message"`
	VideoURL string `json:"video_url"`
}

func (s *server) handleAddLink(w http.ResponseWriter, r *http.Request) {
	var req linkRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", "body must be {\"video_id\": ...}", err.Error())
		return
	}

	link, err := s.links.InsertFromYouTube(r.Context(), req.VideoID, nil)
	switch {
	case errors.Is(err, domain.ErrInvalidVideoID):
		writeError(w, http.StatusBadRequest, "Invalid video ID", "video_id must be a YouTube id or URL", err.Error())
		return
	case err != nil:
		s.logger.Error("add youtube link", "err", err, "video_id", req.VideoID)
		writeError(w, http.StatusInternalServerError, "Internal server error", "Failed to add YouTube link", err.Error())
		return
	}

	if err := s.events.LinkAdded(r.Context(), events.LinkAdded{
		VideoID:  link.VideoID,
		VideoURL: link.VideoURL,
		PointID:  link.PointID,
	}); err != nil {
		s.logger.Warn("publish link event", "err", err)
	}
	writeJSON(w, http.StatusOK, linkResponse{Message: "add successfully", VideoURL: link.VideoURL})
}

func (s *server) handleSearchSimilar(w http.ResponseWriter, r *http.Request) {
	var req linkRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", "body must be {\"video_id\": ...} or {\"query\": ...}", err.Error())
		return
	}
	query := req.Query
	if query == "" {
		query = req.VideoID
	}

	limit := min(req.Limit, maxSearchLimit)
	results, err := s.links.SearchSimilar(r.Context(), query, limit)
	switch {
	case errors.Is(err, domain.ErrEmptyQuery):
		writeError(w, http.StatusBadRequest, "Invalid request", "query must not be empty", err.Error())
		return
	case err != nil:
		s.logger.Error("search similar", "err", err)
		writeError(w, http.StatusInternalServerError, "Search failed", "Unable to search similar content", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// --- Chat ---

type chatRequest struct {
	Message string `json:"message"`
}

func (s *server) handleBasicChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", "body must be {\"message\": ...}", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.planner.BasicChat(r.Context(), req.Message))
}

// --- Helpers ---

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details string `json:"details"`
}

func writeError(w http.ResponseWriter, code int, title, message, details string) {
	writeJSON(w, code, errorBody{Error: title, Message: message, Details: details})
}
