package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	GinMode     string
	LogLevel    string
	CORSOrigins []string
	MaxFileSize int64

	// Model backend
	OllamaURL            string
	DefaultModel         string
	GenerateTimeout      time.Duration
	ChatPromptSingleShot bool

	// Embeddings configuration
	EmbeddingsProvider string // "ollama" (default), "google"
	EmbeddingsModel    string
	GeminiAPIKey       string
	EmbedConcurrency   int
	EmbedRateLimit     float64 // requests per second, 0 = unlimited
	EmbedRetries       int
	EmbedRetryBase     time.Duration
	EmbedCacheSize     int
	EmbedCacheTTL      time.Duration
	EmbedTimeout       time.Duration

	// Storage layout
	DataDir       string
	BlobStore     string // "fs" (default), "s3"
	S3Endpoint    string
	S3Region      string
	S3Bucket      string
	S3AccessKey   string
	S3SecretKey   string
	IngestTimeout time.Duration

	// Chunking
	ChunkChars   int
	ChunkOverlap int

	// Vector index
	VectorIndex      string // "file" (default), "memory", "qdrant", "mongo"
	QdrantURL        string
	QdrantAPIKey     string
	QdrantCollection string
	MongoURI         string
	DBName           string
	VectorIndexName  string

	// Redis Configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	RateLimitReqs   int
	RateLimitWindow int

	// Async ingestion
	AsyncIngestEnabled bool
	WorkerConcurrency  int

	OTLPEndpoint string
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8000"),
		GinMode:     getEnv("GIN_MODE", "debug"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		CORSOrigins: splitList(getEnv("CORS_ORIGINS", "http://localhost:5173")),
		MaxFileSize: getEnvInt64("MAX_FILE_SIZE", 104857600), // 100MB

		OllamaURL:            strings.TrimRight(getEnv("OLLAMA_URL", "http://localhost:11434"), "/"),
		DefaultModel:         getEnv("DOCLLAMA_DEFAULT_MODEL", "llama3"),
		GenerateTimeout:      getEnvDuration("GENERATE_TIMEOUT", 0),
		ChatPromptSingleShot: getEnvBool("CHAT_PROMPT_SINGLE_SHOT", true),

		// Embeddings
		EmbeddingsProvider: strings.ToLower(getEnv("EMBEDDINGS_PROVIDER", "ollama")),
		GeminiAPIKey:       getEnv("GEMINI_API_KEY", ""),
		EmbedConcurrency:   getEnvInt("EMBED_CONCURRENCY", 4),
		EmbedRateLimit:     getEnvFloat64("EMBED_RATE_LIMIT", 0),
		EmbedRetries:       getEnvInt("EMBED_RETRIES", 0),
		EmbedRetryBase:     getEnvDuration("EMBED_RETRY_BASE", 200*time.Millisecond),
		EmbedCacheSize:     getEnvInt("EMBED_CACHE_SIZE", 1024),
		EmbedCacheTTL:      getEnvDuration("EMBED_CACHE_TTL", 24*time.Hour),
		EmbedTimeout:       getEnvDuration("EMBED_TIMEOUT", 120*time.Second),

		DataDir:       getEnv("DATA_DIR", "./data"),
		BlobStore:     strings.ToLower(getEnv("BLOB_STORE", "fs")),
		S3Endpoint:    getEnv("S3_ENDPOINT", ""),
		S3Region:      getEnv("S3_REGION", "us-east-1"),
		S3Bucket:      getEnv("S3_BUCKET", ""),
		S3AccessKey:   getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:   getEnv("S3_SECRET_KEY", ""),
		IngestTimeout: getEnvDuration("INGEST_TIMEOUT", 10*time.Minute),

		ChunkChars:   getEnvInt("CHUNK_CHARS", 1200),
		ChunkOverlap: getEnvInt("CHUNK_OVERLAP", 200),

		VectorIndex:      strings.ToLower(getEnv("VECTOR_INDEX", "file")),
		QdrantURL:        strings.TrimRight(getEnv("QDRANT_URL", ""), "/"),
		QdrantAPIKey:     getEnv("QDRANT_API_KEY", ""),
		QdrantCollection: getEnv("QDRANT_COLLECTION", "docllama"),
		MongoURI:         getEnv("MONGO_URI", ""),
		DBName:           getEnv("DB_NAME", "docllama"),
		VectorIndexName:  getEnv("MONGODB_VECTOR_INDEX", "chunks_vector"),

		// Redis Configuration
		RedisURL:      getEnv("REDIS_URL", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 0),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),

		AsyncIngestEnabled: getEnvBool("ASYNC_INGEST_ENABLED", false),
		WorkerConcurrency:  getEnvInt("WORKER_CONCURRENCY", 4),

		OTLPEndpoint: getEnv("OTLP_ENDPOINT", ""),
	}

	cfg.EmbeddingsModel = getEnv("EMBEDDINGS_MODEL", DefaultEmbeddingsModel(cfg.EmbeddingsProvider))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DefaultEmbeddingsModel is the model used when EMBEDDINGS_MODEL is unset.
func DefaultEmbeddingsModel(provider string) string {
	if provider == "google" {
		return "text-embedding-004"
	}
	return "nomic-embed-text"
}

// Validate rejects settings the pipeline cannot run with. Nothing is clamped.
func (c *Config) Validate() error {
	if c.ChunkChars <= 0 {
		return fmt.Errorf("CHUNK_CHARS must be positive, got %d", c.ChunkChars)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkChars {
		return fmt.Errorf("CHUNK_OVERLAP must satisfy 0 <= overlap < CHUNK_CHARS (%d), got %d", c.ChunkChars, c.ChunkOverlap)
	}
	if c.EmbedConcurrency <= 0 {
		return fmt.Errorf("EMBED_CONCURRENCY must be positive, got %d", c.EmbedConcurrency)
	}

	switch c.EmbeddingsProvider {
	case "ollama":
	case "google":
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when EMBEDDINGS_PROVIDER=google")
		}
	default:
		return fmt.Errorf("unknown EMBEDDINGS_PROVIDER %q", c.EmbeddingsProvider)
	}

	switch c.VectorIndex {
	case "file", "memory":
	case "qdrant":
		if c.QdrantURL == "" {
			return fmt.Errorf("QDRANT_URL is required when VECTOR_INDEX=qdrant")
		}
	case "mongo":
		if c.MongoURI == "" {
			return fmt.Errorf("MONGO_URI is required when VECTOR_INDEX=mongo")
		}
	default:
		return fmt.Errorf("unknown VECTOR_INDEX %q", c.VectorIndex)
	}

	switch c.BlobStore {
	case "fs":
	case "s3":
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required when BLOB_STORE=s3")
		}
	default:
		return fmt.Errorf("unknown BLOB_STORE %q", c.BlobStore)
	}

	if c.AsyncIngestEnabled {
		if c.RedisURL == "" {
			return fmt.Errorf("ASYNC_INGEST_ENABLED requires REDIS_URL")
		}
		// The worker runs in its own process and must write where the API reads.
		if c.VectorIndex == "file" || c.VectorIndex == "memory" {
			return fmt.Errorf("ASYNC_INGEST_ENABLED requires VECTOR_INDEX=qdrant or mongo, got %q", c.VectorIndex)
		}
	}

	return nil
}

// Directory layout beneath DATA_DIR.
func (c *Config) PDFDir() string   { return filepath.Join(c.DataDir, "pdfs") }
func (c *Config) TextDir() string  { return filepath.Join(c.DataDir, "text") }
func (c *Config) ChunkDir() string { return filepath.Join(c.DataDir, "chunks") }
func (c *Config) IndexDir() string { return filepath.Join(c.DataDir, "index") }

// RedisEnabled reports whether any Redis-backed feature can be used.
func (c *Config) RedisEnabled() bool {
	return c.RedisURL != ""
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
