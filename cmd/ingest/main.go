// Command ingest loads prior trip records into the vector store, either from
// a JSON file or from NATS.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"

	"github.com/pansea/tripplanner/engine/domain"
	"github.com/pansea/tripplanner/engine/embed"
	"github.com/pansea/tripplanner/engine/events"
	"github.com/pansea/tripplanner/engine/ingest"
	"github.com/pansea/tripplanner/engine/semantic"
	"github.com/pansea/tripplanner/pkg/fn"
	"github.com/pansea/tripplanner/pkg/natsutil"
	"github.com/pansea/tripplanner/pkg/ollama"
)

func main() {
	_ = godotenv.Load()

	var (
		file       = flag.String("file", "", "JSON file with one trip record or an array of them")
		collection = flag.String("collection", envOr("TRIP_COLLECTION", "TripPlanData"), "target collection")
		qdrantURL  = flag.String("qdrant", envOr("QDRANT_HOST", "http://localhost:6333"), "Qdrant REST URL")
		apiKey     = flag.String("qdrant-key", os.Getenv("QDRANT_API_KEY"), "Qdrant API key")
		provider   = flag.String("embed", envOr("EMBED_PROVIDER", "openai"), "embedding provider: openai or ollama")
		workers    = flag.Int("workers", 4, "concurrent inserts")
		natsURL    = flag.String("nats", os.Getenv("NATS_URL"), "NATS URL for -watch and -publish")
		watch      = flag.Bool("watch", false, "consume records from NATS until interrupted")
		publish    = flag.Bool("publish", false, "publish the records in -file to NATS instead of inserting them")
	)
	flag.Parse()

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, log, options{
		file: *file, collection: *collection, qdrantURL: *qdrantURL, apiKey: *apiKey,
		provider: *provider, workers: *workers, natsURL: *natsURL, watch: *watch, publish: *publish,
	}); err != nil {
		log.Error("ingest failed", "err", err)
		os.Exit(1)
	}
}

type options struct {
	file, collection, qdrantURL, apiKey, provider, natsURL string
	workers                                                int
	watch, publish                                         bool
}

func run(ctx context.Context, log *slog.Logger, o options) error {
	if o.publish {
		recs, err := loadRecords(o.file)
		if err != nil {
			return err
		}
		return publishRecords(ctx, o.natsURL, recs, log)
	}

	store, err := semantic.NewClient(semantic.Options{URL: o.qdrantURL, APIKey: o.apiKey, Logger: log})
	if err != nil {
		return err
	}
	embedder, err := newEmbedder(o.provider)
	if err != nil {
		return err
	}
	im := ingest.New(store, embedder, nil, ingest.Options{Collection: o.collection}, log)

	if o.watch {
		return watchNATS(ctx, o.natsURL, im, o.collection, log)
	}

	recs, err := loadRecords(o.file)
	if err != nil {
		return err
	}
	ids, errs := importAll(ctx, im, o.collection, recs, o.workers)
	for _, e := range errs {
		log.Error("record failed", "err", e)
	}
	log.Info("import finished", "collection", o.collection, "inserted", len(ids), "failed", len(errs))
	if len(errs) > 0 {
		return fmt.Errorf("%d of %d records failed", len(errs), len(recs))
	}
	return nil
}

func newEmbedder(provider string) (embed.Embedder, error) {
	switch provider {
	case "ollama":
		return embed.Normalized(ollama.NewEmbedClient(envOr("OLLAMA_URL", "http://localhost:11434"), envOr("EMBED_MODEL", ollama.DefaultModel))), nil
	case "openai", "":
		return embed.Normalized(embed.NewOpenAI(embed.OpenAIOptions{
			APIKey:  os.Getenv("EMBED_API_KEY"),
			BaseURL: os.Getenv("EMBED_BASE_URL"),
			Model:   os.Getenv("EMBED_MODEL"),
		})), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", provider)
	}
}

// loadRecords reads a single record or an array of records.
func loadRecords(path string) ([]domain.TripRecord, error) {
	if path == "" {
		return nil, errors.New("-file is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var recs []domain.TripRecord
		if err := json.Unmarshal(data, &recs); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		return recs, nil
	}
	var rec domain.TripRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return []domain.TripRecord{rec}, nil
}

// tripInserter is the part of ingest.Importer used for bulk loads.
type tripInserter interface {
	InsertTrip(ctx context.Context, collection string, rec domain.TripRecord) (string, error)
}

// importAll inserts recs with bounded concurrency. Point ids and errors come
// back in input order.
func importAll(ctx context.Context, im tripInserter, collection string, recs []domain.TripRecord, workers int) ([]string, []error) {
	results := fn.ParMapResult(recs, workers, func(rec domain.TripRecord) fn.Result[string] {
		id, err := im.InsertTrip(ctx, collection, rec)
		if err != nil {
			return fn.Err[string](fmt.Errorf("%q: %w", rec.Name, err))
		}
		return fn.Ok(id)
	})
	return fn.Partition(results)
}

func publishRecords(ctx context.Context, url string, recs []domain.TripRecord, log *slog.Logger) error {
	if url == "" {
		return errors.New("-nats is required with -publish")
	}
	nc, err := nats.Connect(url, nats.Name("tripplanner-ingest-publisher"))
	if err != nil {
		return err
	}
	defer nc.Close()
	for _, rec := range recs {
		if err := natsutil.Publish(ctx, nc, events.SubjectIngestTrip, rec); err != nil {
			return err
		}
	}
	if err := nc.Flush(); err != nil {
		return err
	}
	log.Info("published records", "count", len(recs), "subject", events.SubjectIngestTrip)
	return nil
}

func watchNATS(ctx context.Context, url string, im *ingest.Importer, collection string, log *slog.Logger) error {
	if url == "" {
		return errors.New("-nats is required with -watch")
	}
	nc, err := nats.Connect(url, nats.Name("tripplanner-ingest"))
	if err != nil {
		return err
	}
	defer nc.Drain()

	sub, err := ingest.StartConsumer(nc, im, collection, log)
	if err != nil {
		return err
	}
	log.Info("watching for trip records", "subject", events.SubjectIngestTrip, "queue", ingest.QueueGroup)
	<-ctx.Done()
	return sub.Unsubscribe()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
