package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Default tuning values. Thresholds are inclusive bounds: a score equal
// to the threshold counts as a duplicate.
const (
	DefaultBatchSize        = 30
	MinBatchSize            = 1
	MaxBatchSize            = 100
	DefaultRecencyWindow    = 4 * time.Hour
	DefaultClusterThreshold = 0.70
	DefaultFuzzyThreshold   = 0.50
	DefaultSemanticLimit    = 0.70
	DefaultRecentTitleLimit = 300
	DefaultSemanticTopK     = 5
)

// Default per-call timeouts for external providers.
const (
	DefaultSearchTimeout  = 30 * time.Second
	DefaultExtractTimeout = 30 * time.Second
	DefaultLLMTimeout     = 60 * time.Second
)

// Config holds all runtime settings, loaded from environment variables
// (with .env support) plus the YAML sources file.
type Config struct {
	// Pipeline tuning
	BatchSize        int
	RecencyWindow    time.Duration
	ClusterThreshold float64
	FuzzyThreshold   float64
	SemanticLimit    float64
	SemanticTopK     int
	RecentTitleLimit int

	// Stores
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SQLitePath    string

	// Vector index
	ChromaHost     string
	ChromaPort     int
	Collection     string
	EmbeddingModel string

	// Language model
	CohereAPIKey string
	CohereModel  string

	// Evidence search provider
	SearchURL    string
	SearchAPIKey string

	// Queue
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string

	// Archive (optional; empty bucket disables uploads)
	S3Bucket string
	S3Region string
	S3Prefix string

	// Timeouts
	SearchTimeout  time.Duration
	ExtractTimeout time.Duration
	LLMTimeout     time.Duration

	// API
	Port string

	// Sources file (feeds + ordered domain trust list)
	SourcesPath string
}

// Load reads configuration from the environment, loading .env first if
// present (non-fatal if missing).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		BatchSize:        envInt("BATCH_SIZE", DefaultBatchSize),
		ClusterThreshold: envFloat("CLUSTER_THRESHOLD", DefaultClusterThreshold),
		FuzzyThreshold:   envFloat("FUZZY_THRESHOLD", DefaultFuzzyThreshold),
		SemanticLimit:    envFloat("SEMANTIC_THRESHOLD", DefaultSemanticLimit),
		SemanticTopK:     envInt("SEMANTIC_TOP_K", DefaultSemanticTopK),
		RecentTitleLimit: envInt("RECENT_TITLE_LIMIT", DefaultRecentTitleLimit),

		RedisAddr:     envOr("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASS"),
		RedisDB:       envInt("REDIS_DB", 0),
		SQLitePath:    envOr("SQLITE_PATH", "newsbrief.db"),

		ChromaHost:     envOr("CHROMA_HOST", "localhost"),
		ChromaPort:     envInt("CHROMA_PORT", 8000),
		Collection:     envOr("CHROMA_COLLECTION", "newsbrief_items"),
		EmbeddingModel: os.Getenv("EMBEDDING_MODEL"),

		CohereAPIKey: os.Getenv("COHERE_API_KEY"),
		CohereModel:  envOr("COHERE_MODEL", "command-r-plus-08-2024"),

		SearchURL:    envOr("SEARCH_API_URL", "https://api.tavily.com/search"),
		SearchAPIKey: os.Getenv("SEARCH_API_KEY"),

		KafkaTopic:   envOr("KAFKA_TOPIC", "newsbrief.pending"),
		KafkaGroupID: envOr("KAFKA_GROUP_ID", "newsbrief-research"),

		S3Bucket: os.Getenv("S3_BUCKET"),
		S3Region: os.Getenv("S3_REGION"),
		S3Prefix: envOr("S3_PREFIX", "research-bundles"),

		SearchTimeout:  envDuration("SEARCH_TIMEOUT", DefaultSearchTimeout),
		ExtractTimeout: envDuration("EXTRACT_TIMEOUT", DefaultExtractTimeout),
		LLMTimeout:     envDuration("LLM_TIMEOUT", DefaultLLMTimeout),

		Port:        envOr("PORT", "8080"),
		SourcesPath: envOr("SOURCES_FILE", "sources.yaml"),
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitCSV(brokers)
	}

	window, err := ParseRecencyWindow(os.Getenv("RECENCY_WINDOW"))
	if err != nil {
		return nil, fmt.Errorf("invalid RECENCY_WINDOW: %w", err)
	}
	cfg.RecencyWindow = window

	if cfg.BatchSize < MinBatchSize || cfg.BatchSize > MaxBatchSize {
		return nil, fmt.Errorf("BATCH_SIZE must be between %d and %d, got %d",
			MinBatchSize, MaxBatchSize, cfg.BatchSize)
	}

	return cfg, nil
}

// ParseRecencyWindow resolves a recency preset ("30m", "1h", "4h") or any
// time.ParseDuration string. Empty input yields the default window.
func ParseRecencyWindow(raw string) (time.Duration, error) {
	switch raw {
	case "":
		return DefaultRecencyWindow, nil
	case "30m":
		return 30 * time.Minute, nil
	case "1h":
		return time.Hour, nil
	case "4h":
		return 4 * time.Hour, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("window must be positive, got %s", raw)
	}
	return d, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
