// Package main implements the trip planner API server.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pansea/tripplanner/engine/embed"
	"github.com/pansea/tripplanner/engine/events"
	"github.com/pansea/tripplanner/engine/ingest"
	"github.com/pansea/tripplanner/engine/llm"
	"github.com/pansea/tripplanner/engine/rag"
	"github.com/pansea/tripplanner/engine/scraper"
	"github.com/pansea/tripplanner/engine/semantic"
	"github.com/pansea/tripplanner/pkg/metrics"
	"github.com/pansea/tripplanner/pkg/mid"
	"github.com/pansea/tripplanner/pkg/ollama"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

// openStore returns the configured Qdrant transport. The closer is nil when
// the transport holds no connection.
func openStore(cfg Config, logger *slog.Logger) (semantic.Store, io.Closer, error) {
	switch cfg.QdrantTransport {
	case "grpc":
		s, err := semantic.DialGRPC(cfg.QdrantGRPCAddr)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case "rest", "":
		c, err := semantic.NewClient(semantic.Options{
			URL:                cfg.QdrantURL,
			APIKey:             cfg.QdrantAPIKey,
			Timeout:            cfg.QdrantTimeout,
			InsecureSkipVerify: cfg.QdrantInsecure,
			Logger:             logger,
		})
		if err != nil {
			return nil, nil, err
		}
		return c, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown QDRANT_TRANSPORT %q", cfg.QdrantTransport)
	}
}

// newEmbedder returns an L2-normalizing embedder for the configured provider.
func newEmbedder(cfg Config) (embed.Embedder, error) {
	switch cfg.EmbedProvider {
	case "ollama":
		model := cfg.EmbedModel
		if model == "" {
			model = ollama.DefaultModel
		}
		return embed.Normalized(ollama.NewEmbedClient(cfg.OllamaURL, model)), nil
	case "openai", "":
		return embed.Normalized(embed.NewOpenAI(embed.OpenAIOptions{
			APIKey:  cfg.EmbedAPIKey,
			BaseURL: cfg.EmbedBaseURL,
			Model:   cfg.EmbedModel,
		})), nil
	default:
		return nil, fmt.Errorf("unknown EMBED_PROVIDER %q", cfg.EmbedProvider)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Vector store ---
	store, closer, err := openStore(cfg, logger)
	if err != nil {
		return fmt.Errorf("qdrant: %w", err)
	}
	if closer != nil {
		defer closer.Close()
	}

	embedder, err := newEmbedder(cfg)
	if err != nil {
		return err
	}

	// --- Events ---
	pub, err := events.Connect(cfg.NATSURL, logger)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer pub.Close()

	reg := metrics.New()

	// --- LLM + RAG ---
	gateway := llm.New(llm.Options{
		APIKey:      cfg.LLMAPIKey,
		BaseURL:     cfg.LLMBaseURL,
		Model:       cfg.LLMModel,
		Timeout:     cfg.LLMTimeout,
		Temperature: cfg.LLMTemperature,
	}, logger)

	ragOpts := rag.DefaultOptions()
	ragOpts.Collection = cfg.TripCollection
	ragSvc := rag.New(embedder, store, gateway, ragOpts, reg, logger)

	// --- Importer ---
	transcripts := scraper.NewTranscriptClient(scraper.TranscriptOptions{Logger: logger})
	importer := ingest.New(store, embedder, transcripts, ingest.Options{
		Collection: cfg.ImportCollection,
		VectorSize: cfg.VectorSize,
	}, logger)
	if err := importer.EnsureCollection(ctx); err != nil {
		logger.Warn("import collection unavailable, continuing", "err", err)
	}
	go importer.Warmup(ctx)

	// --- HTTP server ---
	srv := newServer(ragSvc, importer, pub, reg, logger)
	handler := mid.Chain(srv.routes(),
		mid.Recover(logger),
		mid.RequestID(),
		mid.Logger(logger),
		mid.CORS(cfg.CORSOrigin),
		mid.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
		mid.OTel(cfg.ServiceName),
	)

	httpSrv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
		// Three LLM attempts plus retry delays.
		WriteTimeout: 3*cfg.LLMTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// --- Graceful shutdown ---
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port, "qdrant", cfg.QdrantTransport, "embed", cfg.EmbedProvider)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutCtx)
}
