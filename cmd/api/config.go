package main

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all environment-based configuration.
type Config struct {
	Port string

	QdrantURL       string
	QdrantAPIKey    string
	QdrantTransport string // rest or grpc
	QdrantGRPCAddr  string
	QdrantInsecure  bool
	QdrantTimeout   time.Duration

	TripCollection   string
	ImportCollection string
	VectorSize       int

	LLMAPIKey      string
	LLMBaseURL     string
	LLMModel       string
	LLMTimeout     time.Duration
	// LLMTemperature is nil unless LLM_TEMPERATURE is set.
	LLMTemperature *float32

	EmbedProvider string // openai or ollama
	EmbedModel    string
	EmbedAPIKey   string
	EmbedBaseURL  string
	OllamaURL     string

	NATSURL        string
	CORSOrigin     string
	RateLimitRPS   float64
	RateLimitBurst int
	ServiceName    string
}

// loadConfig reads a .env file when present, then the environment.
func loadConfig() Config {
	_ = godotenv.Load()

	return Config{
		Port: envOr("PORT", "8080"),

		QdrantURL:       envOr("QDRANT_HOST", "http://localhost:6333"),
		QdrantAPIKey:    os.Getenv("QDRANT_API_KEY"),
		QdrantTransport: envOr("QDRANT_TRANSPORT", "rest"),
		QdrantGRPCAddr:  envOr("QDRANT_GRPC_ADDR", "localhost:6334"),
		QdrantInsecure:  envBool("QDRANT_INSECURE", false),
		QdrantTimeout:   envDuration("QDRANT_TIMEOUT", 15*time.Second),

		TripCollection:   envOr("TRIP_COLLECTION", "TripPlanData"),
		ImportCollection: envOr("IMPORT_COLLECTION", "demo_bge_m3"),
		VectorSize:       envInt("VECTOR_SIZE", 1024),

		LLMAPIKey:      os.Getenv("SEALION_API"),
		LLMBaseURL:     envOr("SEALION_BASE_URL", "https://api.sea-lion.ai/v1"),
		LLMModel:       envOr("LLM_MODEL", "aisingapore/Llama-SEA-LION-v3-70B-IT"),
		LLMTimeout:     envDuration("LLM_TIMEOUT", 120*time.Second),
		LLMTemperature: envFloat32Ptr("LLM_TEMPERATURE"),

		EmbedProvider: envOr("EMBED_PROVIDER", "openai"),
		EmbedModel:    os.Getenv("EMBED_MODEL"),
		EmbedAPIKey:   os.Getenv("EMBED_API_KEY"),
		EmbedBaseURL:  os.Getenv("EMBED_BASE_URL"),
		OllamaURL:     envOr("OLLAMA_URL", "http://localhost:11434"),

		NATSURL:        os.Getenv("NATS_URL"),
		CORSOrigin:     envOr("CORS_ORIGIN", "*"),
		RateLimitRPS:   envFloat("RATE_LIMIT_RPS", 0),
		RateLimitBurst: envInt("RATE_LIMIT_BURST", 10),
		ServiceName:    envOr("OTEL_SERVICE_NAME", "tripplanner-api"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if f, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return f
	}
	return fallback
}

func envFloat32Ptr(key string) *float32 {
	f, err := strconv.ParseFloat(os.Getenv(key), 32)
	if err != nil {
		return nil
	}
	v := float32(f)
	return &v
}

func envBool(key string, fallback bool) bool {
	if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return b
	}
	return fallback
}

// envDuration accepts Go durations ("90s") or plain seconds ("90").
func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
