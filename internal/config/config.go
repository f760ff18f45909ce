// Package config loads the environment-driven configuration shared by all
// pipeline stage executables and the RAG service.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// StoreConfig describes the document/vector store connection.
type StoreConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Database string

	// Index/table names, one per spec.md §6.
	ArticleIndex       string
	ChunkCompleteIndex string
	ChunkSentenceIndex string
	ClusterIndex       string
	DocProjectionIndex string

	// QdrantDSN points at the vector engine (grpc host:port, optional api_key query param).
	QdrantDSN string
}

// DSN renders a libpq-compatible connection string for pgxpool.
func (s StoreConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		s.Username, s.Password, s.Host, s.Port, s.Database)
}

// EmbeddingConfig describes the HTTP embedding endpoint (§6: embedding model id, hf auth).
type EmbeddingConfig struct {
	BaseURL   string
	Path      string
	Model     string
	APIKey    string
	APIHeader string
	HFToken   string
	// Headers carries extra static headers a self-hosted embedding
	// endpoint needs beyond the single APIHeader/APIKey pair; entries here
	// win over the legacy APIHeader/APIKey/HFToken-derived headers.
	Headers    map[string]string
	Dimensions int
	Timeout    int // seconds
}

// LLMProfile is one entry of the JSON blob of LLM model configs keyed by profile (§6).
type LLMProfile struct {
	Provider    string  `json:"provider"` // "anthropic" | "openai"
	Model       string  `json:"model"`
	APIKey      string  `json:"api_key"`
	BaseURL     string  `json:"base_url,omitempty"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

// ExternalServiceConfig configures the NCBI-style article service client (C3).
type ExternalServiceConfig struct {
	BaseURL string
	DB      string
	Timeout time.Duration
}

// Config is the top-level resolved configuration for any stage binary.
type Config struct {
	Store             StoreConfig
	Embedding         EmbeddingConfig
	External          ExternalServiceConfig
	LLMProfiles       map[string]LLMProfile
	DefaultLLMProfile string

	LogLevel    string
	LogDir      string
	ExecLogPath string

	ArtifactDir     string
	ArtifactBackend string // "disk" | "s3"
	S3              S3Config

	RAGListenAddr       string
	RAGMaxContextTokens int // §4.11 max_context
	RAGTopK             int // default top-K chunks for document-specific retrieval
	RAGTopDepth         int // §4.11 D_top: minimum depth for "high-level" clusters
	RAGCacheTTLSeconds  int // answer-cache TTL; 0 or less means a 10-minute TTL

	Redis RedisConfig
	Obs   ObsConfig
}

// ObsConfig configures the optional OpenTelemetry trace/metric exporters
// for the RAG service (empty OTLP disables export).
type ObsConfig struct {
	OTLP           string
	ServiceName    string
	ServiceVersion string
	Environment    string
}

// RedisConfig configures the optional Redis-backed RAG answer cache.
type RedisConfig struct {
	Enabled               bool
	Addr                  string
	Password              string
	DB                    int
	TLSInsecureSkipVerify bool
}

// S3Config configures the optional S3-compatible artifact backend.
type S3Config struct {
	Bucket    string
	Region    string
	Prefix    string
	AccessKey string
	SecretKey string
	Endpoint  string
}

// Load reads configuration from the environment (optionally via a .env file).
// Overload mirrors the teacher's config.Load: local .env values win over any
// already-exported OS environment so repository defaults are deterministic.
func Load() (Config, error) {
	_ = godotenv.Overload()

	cfg := Config{
		Store: StoreConfig{
			Host:               getenv("STORE_HOST", "localhost"),
			Port:               getenvInt("STORE_PORT", 5432),
			Username:           os.Getenv("STORE_USERNAME"),
			Password:           os.Getenv("STORE_PASSWORD"),
			Database:           getenv("STORE_DATABASE", "clusterchat"),
			ArticleIndex:       getenv("ARTICLE_INDEX", "articles"),
			ChunkCompleteIndex: getenv("CHUNK_COMPLETE_INDEX", "chunks_complete"),
			ChunkSentenceIndex: getenv("CHUNK_SENTENCE_INDEX", "chunks_sentence"),
			ClusterIndex:       getenv("CLUSTER_INDEX", "clusters"),
			DocProjectionIndex: getenv("DOCUMENT_PROJECTION_INDEX", "document_projections"),
			QdrantDSN:          getenv("QDRANT_DSN", "http://localhost:6334"),
		},
		Embedding: EmbeddingConfig{
			BaseURL:    getenv("EMBED_BASE_URL", "http://localhost:8081"),
			Path:       getenv("EMBED_PATH", "/v1/embeddings"),
			Model:      getenv("EMBED_MODEL", "pubmedbert-base-embeddings"),
			APIKey:     os.Getenv("EMBED_API_KEY"),
			APIHeader:  getenv("EMBED_API_HEADER", "Authorization"),
			HFToken:    os.Getenv("HUGGINGFACE_TOKEN"),
			Dimensions: getenvInt("EMBED_DIMENSIONS", 768),
			Timeout:    getenvInt("EMBED_TIMEOUT_SECONDS", 30),
		},
		External: ExternalServiceConfig{
			BaseURL: getenv("PUBMED_BASE_URL", "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"),
			DB:      getenv("PUBMED_DB", "pubmed"),
			Timeout: time.Duration(getenvInt("PUBMED_TIMEOUT_SECONDS", 30)) * time.Second,
		},
		DefaultLLMProfile:   getenv("LLM_DEFAULT_PROFILE", "anthropic"),
		LogLevel:            getenv("LOG_LEVEL", "info"),
		LogDir:              getenv("LOG_DIR", "./logs"),
		ExecLogPath:         getenv("EXECUTION_LOG_PATH", "./logs/execution.log"),
		ArtifactDir:         getenv("ARTIFACT_DIR", "./artifacts"),
		ArtifactBackend:     getenv("ARTIFACT_BACKEND", "disk"),
		RAGListenAddr:       getenv("RAG_LISTEN_ADDR", ":8080"),
		RAGMaxContextTokens: getenvInt("RAG_MAX_CONTEXT_TOKENS", 8000),
		RAGTopK:             getenvInt("RAG_TOP_K", 10),
		RAGTopDepth:         getenvInt("RAG_TOP_DEPTH", 2),
		RAGCacheTTLSeconds:  getenvInt("RAG_CACHE_TTL_SECONDS", 600),
		Redis: RedisConfig{
			Enabled:               getenvInt("REDIS_ENABLED", 0) != 0,
			Addr:                  getenv("REDIS_ADDR", "localhost:6379"),
			Password:              os.Getenv("REDIS_PASSWORD"),
			DB:                    getenvInt("REDIS_DB", 0),
			TLSInsecureSkipVerify: getenvInt("REDIS_TLS_INSECURE_SKIP_VERIFY", 0) != 0,
		},
		Obs: ObsConfig{
			OTLP:           os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
			ServiceName:    getenv("OTEL_SERVICE_NAME", "ragserver"),
			ServiceVersion: getenv("OTEL_SERVICE_VERSION", "dev"),
			Environment:    getenv("OTEL_ENVIRONMENT", "development"),
		},
		S3: S3Config{
			Bucket:    os.Getenv("ARTIFACT_S3_BUCKET"),
			Region:    getenv("ARTIFACT_S3_REGION", "us-east-1"),
			Prefix:    os.Getenv("ARTIFACT_S3_PREFIX"),
			AccessKey: os.Getenv("ARTIFACT_S3_ACCESS_KEY"),
			SecretKey: os.Getenv("ARTIFACT_S3_SECRET_KEY"),
			Endpoint:  os.Getenv("ARTIFACT_S3_ENDPOINT"),
		},
	}

	profiles, err := parseLLMProfiles(os.Getenv("LLM_MODEL_CONFIGS"))
	if err != nil {
		return Config{}, fmt.Errorf("parse LLM_MODEL_CONFIGS: %w", err)
	}
	if len(profiles) == 0 {
		// Fall back to single-profile env vars so a bare-bones .env still works.
		profiles = map[string]LLMProfile{
			"anthropic": {
				Provider:    "anthropic",
				Model:       getenv("ANTHROPIC_MODEL", "claude-3-7-sonnet-latest"),
				APIKey:      os.Getenv("ANTHROPIC_API_KEY"),
				Temperature: 0.1,
				MaxTokens:   1024,
			},
			"openai": {
				Provider:    "openai",
				Model:       getenv("OPENAI_MODEL", "gpt-4o-mini"),
				APIKey:      os.Getenv("OPENAI_API_KEY"),
				Temperature: 0.1,
				MaxTokens:   1024,
			},
		}
	}
	cfg.LLMProfiles = profiles

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var missing []string
	if c.Store.Username == "" {
		missing = append(missing, "STORE_USERNAME")
	}
	if c.Store.Password == "" {
		missing = append(missing, "STORE_PASSWORD")
	}
	if c.Embedding.APIKey == "" {
		missing = append(missing, "EMBED_API_KEY")
	}
	if _, ok := c.LLMProfiles[c.DefaultLLMProfile]; !ok {
		missing = append(missing, fmt.Sprintf("LLM profile %q", c.DefaultLLMProfile))
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

func parseLLMProfiles(blob string) (map[string]LLMProfile, error) {
	blob = strings.TrimSpace(blob)
	if blob == "" {
		return nil, nil
	}
	var profiles map[string]LLMProfile
	if err := json.Unmarshal([]byte(blob), &profiles); err != nil {
		return nil, err
	}
	return profiles, nil
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
