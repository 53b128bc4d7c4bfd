// Package ingest writes trip records and free text into the vector store and
// answers similarity queries over them.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pansea/tripplanner/engine/domain"
	"github.com/pansea/tripplanner/engine/embed"
	"github.com/pansea/tripplanner/engine/scraper"
	"github.com/pansea/tripplanner/engine/semantic"
)

const (
	// DefaultCollection holds free text and video transcripts.
	DefaultCollection = "demo_bge_m3"
	// DefaultVectorSize matches BAAI/bge-m3.
	DefaultVectorSize = 1024
	// EmbedBatchSize is the max texts per embedding request.
	EmbedBatchSize = 100
	// SourceYouTube tags transcript payloads.
	SourceYouTube = "youtube"

	warmupQuery = "I want to go to Chiang Mai"
)

// TranscriptSource returns the full transcript text of a video.
type TranscriptSource interface {
	FullText(ctx context.Context, videoID string) (string, error)
}

// Options configures an Importer.
type Options struct {
	Collection    string
	VectorSize    int
	Distance      semantic.Distance
	SearchTimeout time.Duration
}

// DefaultOptions returns the import defaults.
func DefaultOptions() Options {
	return Options{
		Collection:    DefaultCollection,
		VectorSize:    DefaultVectorSize,
		Distance:      semantic.Cosine,
		SearchTimeout: 15 * time.Second,
	}
}

// Importer embeds text and stores it as points.
type Importer struct {
	store       semantic.Store
	embedder    embed.Embedder
	transcripts TranscriptSource
	opts        Options
	logger      *slog.Logger
	newID       func() string
}

// New builds an Importer. transcripts may be nil when video import is not
// needed.
func New(store semantic.Store, embedder embed.Embedder, transcripts TranscriptSource, opts Options, logger *slog.Logger) *Importer {
	d := DefaultOptions()
	if opts.Collection == "" {
		opts.Collection = d.Collection
	}
	if opts.VectorSize <= 0 {
		opts.VectorSize = d.VectorSize
	}
	if opts.Distance == "" {
		opts.Distance = d.Distance
	}
	if opts.SearchTimeout <= 0 {
		opts.SearchTimeout = d.SearchTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{
		store:       store,
		embedder:    embedder,
		transcripts: transcripts,
		opts:        opts,
		logger:      logger,
		newID:       func() string { return uuid.NewString() },
	}
}

// Collection is the default target collection.
func (im *Importer) Collection() string { return im.opts.Collection }

// EnsureCollection creates the default collection if it is missing.
func (im *Importer) EnsureCollection(ctx context.Context) error {
	if err := im.store.EnsureCollection(ctx, im.opts.Collection, im.opts.VectorSize, im.opts.Distance); err != nil {
		return fmt.Errorf("ingest: ensure %s: %w", im.opts.Collection, err)
	}
	return nil
}

// InsertText embeds text and stores it with metadata merged over
// {"text": text}. An empty id gets a random UUID.
func (im *Importer) InsertText(ctx context.Context, text string, metadata map[string]any, id string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", domain.NewValidationError("text", text, domain.ErrInvalidRequest)
	}
	if id == "" {
		id = im.newID()
	}
	vec, err := im.embedder.Embed(ctx, text)
	if err != nil {
		return "", fmt.Errorf("ingest: embed: %w", err)
	}
	p := semantic.Point{ID: id, Vector: vec, Payload: textPayload(text, metadata)}
	if err := im.store.Upsert(ctx, im.opts.Collection, []semantic.Point{p}); err != nil {
		return "", fmt.Errorf("ingest: %w", err)
	}
	im.logger.Info("ingest: inserted text", "point_id", id, "collection", im.opts.Collection)
	return id, nil
}

// InsertTexts embeds texts in batches and stores them. metadata[i], when
// present, is merged into the payload of texts[i].
func (im *Importer) InsertTexts(ctx context.Context, texts []string, metadata []map[string]any) ([]string, error) {
	ids := make([]string, 0, len(texts))
	for start := 0; start < len(texts); start += EmbedBatchSize {
		end := min(start+EmbedBatchSize, len(texts))
		batch := texts[start:end]

		vecs, err := im.embedder.EmbedBatch(ctx, batch)
		if err != nil {
			return ids, fmt.Errorf("ingest: embed batch at %d: %w", start, err)
		}
		if len(vecs) != len(batch) {
			return ids, fmt.Errorf("ingest: embed batch at %d: got %d vectors for %d texts", start, len(vecs), len(batch))
		}

		points := make([]semantic.Point, len(batch))
		batchIDs := make([]string, len(batch))
		for i, text := range batch {
			var meta map[string]any
			if start+i < len(metadata) {
				meta = metadata[start+i]
			}
			batchIDs[i] = im.newID()
			points[i] = semantic.Point{ID: batchIDs[i], Vector: vecs[i], Payload: textPayload(text, meta)}
		}
		if err := im.store.Upsert(ctx, im.opts.Collection, points); err != nil {
			return ids, fmt.Errorf("ingest: %w", err)
		}
		ids = append(ids, batchIDs...)
	}
	im.logger.Info("ingest: inserted texts", "count", len(ids), "collection", im.opts.Collection)
	return ids, nil
}

// InsertTrip validates rec, makes sure collection exists, and stores rec
// embedded on its plan details.
func (im *Importer) InsertTrip(ctx context.Context, collection string, rec domain.TripRecord) (string, error) {
	if err := domain.ValidateRecord(rec); err != nil {
		return "", err
	}
	if collection == "" {
		collection = im.opts.Collection
	}
	if err := im.store.EnsureCollection(ctx, collection, im.opts.VectorSize, im.opts.Distance); err != nil {
		return "", fmt.Errorf("ingest: ensure %s: %w", collection, err)
	}
	vec, err := im.embedder.Embed(ctx, rec.PlanDetails)
	if err != nil {
		return "", fmt.Errorf("ingest: embed: %w", err)
	}
	id := im.newID()
	p := semantic.Point{ID: id, Vector: vec, Payload: rec.Payload()}
	if err := im.store.Upsert(ctx, collection, []semantic.Point{p}); err != nil {
		return "", fmt.Errorf("ingest: %w", err)
	}
	im.logger.Info("ingest: inserted trip", "point_id", id, "collection", collection, "name", rec.Name)
	return id, nil
}

// InsertFromYouTube stores the transcript of a video. videoID may be a bare
// id or any YouTube URL.
func (im *Importer) InsertFromYouTube(ctx context.Context, videoID string, metadata map[string]any) (Link, error) {
	id, err := scraper.ParseVideoID(videoID)
	if err != nil {
		return Link{}, err
	}
	if im.transcripts == nil {
		return Link{}, fmt.Errorf("ingest: no transcript source configured")
	}
	text, err := im.transcripts.FullText(ctx, id)
	if err != nil {
		return Link{}, fmt.Errorf("ingest: transcript %s: %w", id, err)
	}

	meta := map[string]any{"source": SourceYouTube, "video_id": id}
	for k, v := range metadata {
		meta[k] = v
	}
	pointID, err := im.InsertText(ctx, text, meta, "")
	if err != nil {
		return Link{}, err
	}
	return Link{VideoID: id, VideoURL: scraper.CanonicalURL(id), PointID: pointID}, nil
}

// SearchSimilar returns the closest stored texts. Embedding or store failures
// are logged and yield an empty list; only an empty query is an error.
func (im *Importer) SearchSimilar(ctx context.Context, query string, limit int) ([]SimilarResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, domain.NewValidationError("query", query, domain.ErrEmptyQuery)
	}
	if limit <= 0 {
		limit = 1
	}
	out := []SimilarResult{}

	vec, err := im.embedder.Embed(ctx, query)
	if err != nil {
		im.logger.Warn("ingest: search embed failed", "err", err)
		return out, nil
	}
	recs, err := im.store.Search(ctx, semantic.SearchParams{
		Collection:  im.opts.Collection,
		Vector:      vec,
		Limit:       limit,
		WithPayload: true,
		Timeout:     im.opts.SearchTimeout,
	})
	if err != nil {
		im.logger.Warn("ingest: search failed, returning no results", "err", err, "collection", im.opts.Collection)
		return out, nil
	}

	for _, r := range recs {
		text, _ := r.Payload["text"].(string)
		meta := make(map[string]any, len(r.Payload))
		for k, v := range r.Payload {
			if k != "text" {
				meta[k] = v
			}
		}
		out = append(out, SimilarResult{ID: r.ID, Score: r.Score, Text: text, Metadata: meta})
	}
	return out, nil
}

// Warmup runs one throwaway search so the first user request does not pay
// for cold caches. Errors are logged only.
func (im *Importer) Warmup(ctx context.Context) {
	start := time.Now()
	vec, err := im.embedder.Embed(ctx, warmupQuery)
	if err == nil {
		_, err = im.store.Search(ctx, semantic.SearchParams{
			Collection: im.opts.Collection,
			Vector:     vec,
			Limit:      1,
			Timeout:    10 * time.Second,
		})
	}
	if err != nil {
		im.logger.Warn("ingest: warmup finished with error", "err", err, "duration", time.Since(start))
		return
	}
	im.logger.Info("ingest: warmup done", "duration", time.Since(start))
}

func textPayload(text string, metadata map[string]any) map[string]any {
	p := make(map[string]any, len(metadata)+1)
	p["text"] = text
	for k, v := range metadata {
		p[k] = v
	}
	return p
}
