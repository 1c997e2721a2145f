// Package config loads runtime configuration: built-in defaults, then an
// optional YAML file, then environment overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration shared by all binaries.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Ollama     OllamaConfig     `yaml:"ollama"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Vector     VectorConfig     `yaml:"vector"`
	Cache      CacheConfig      `yaml:"cache"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Classifier ClassifierConfig `yaml:"classifier"`
	NATS       NATSConfig       `yaml:"nats"`
	History    HistoryConfig    `yaml:"history"`
	Log        LogConfig        `yaml:"log"`
}

type ServerConfig struct {
	Port       string `yaml:"port"`
	CORSOrigin string `yaml:"cors_origin"`
	UploadDir  string `yaml:"upload_dir"`
	// MaxUploadBytes bounds a multipart upload request.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
}

type DatabaseConfig struct {
	// URL is an optional connection target used to connect at startup.
	URL              string        `yaml:"url"`
	MaxOpenConns     int           `yaml:"max_open_conns"`
	StatementTimeout time.Duration `yaml:"statement_timeout"`
}

type OllamaConfig struct {
	URL           string `yaml:"url"`
	EmbedModel    string `yaml:"embed_model"`
	GenerateModel string `yaml:"generate_model"`
}

type EmbeddingConfig struct {
	BatchSize int           `yaml:"batch_size"`
	Timeout   time.Duration `yaml:"timeout"`
	Rate      float64       `yaml:"rate"`
	Burst     int           `yaml:"burst"`
	Attempts  int           `yaml:"attempts"`
}

type GenerationConfig struct {
	Timeout time.Duration `yaml:"timeout"`
	Rate    float64       `yaml:"rate"`
	Burst   int           `yaml:"burst"`
}

type VectorConfig struct {
	// Backend is "memory" or "qdrant".
	Backend    string `yaml:"backend"`
	QdrantAddr string `yaml:"qdrant_addr"`
	Collection string `yaml:"collection"`
	Dims       int    `yaml:"dims"`
}

type CacheConfig struct {
	Capacity int `yaml:"capacity"`
}

type RetrievalConfig struct {
	TopK          int           `yaml:"top_k"`
	SearchTimeout time.Duration `yaml:"search_timeout"`
}

type ClassifierConfig struct {
	DocumentTerms []string `yaml:"document_terms"`
	SQLTerms      []string `yaml:"sql_terms"`
}

type NATSConfig struct {
	URL            string `yaml:"url"`
	RequestSubject string `yaml:"request_subject"`
	StatusSubject  string `yaml:"status_subject"`
}

type HistoryConfig struct {
	// Backend is "memory" or "neo4j".
	Backend   string `yaml:"backend"`
	Capacity  int    `yaml:"capacity"`
	Neo4jURL  string `yaml:"neo4j_url"`
	Neo4jUser string `yaml:"neo4j_user"`
	Neo4jPass string `yaml:"neo4j_pass"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:           "8000",
			CORSOrigin:     "http://localhost:3000",
			UploadDir:      os.TempDir(),
			MaxUploadBytes: 64 << 20,
		},
		Database: DatabaseConfig{
			MaxOpenConns:     10,
			StatementTimeout: 15 * time.Second,
		},
		Ollama: OllamaConfig{
			URL:           "http://localhost:11434",
			EmbedModel:    "all-minilm",
			GenerateModel: "llama3.1",
		},
		Embedding: EmbeddingConfig{
			BatchSize: 32,
			Timeout:   30 * time.Second,
			Burst:     1,
			Attempts:  1,
		},
		Generation: GenerationConfig{
			Timeout: 30 * time.Second,
			Burst:   1,
		},
		Vector: VectorConfig{
			Backend:    "memory",
			QdrantAddr: "localhost:6334",
			Collection: "nlq_documents",
			Dims:       384,
		},
		Cache:     CacheConfig{Capacity: 128},
		Retrieval: RetrievalConfig{TopK: 3, SearchTimeout: 5 * time.Second},
		NATS: NATSConfig{
			RequestSubject: "nlq.ingest.request",
			StatusSubject:  "nlq.ingest.status",
		},
		History: HistoryConfig{
			Backend:   "memory",
			Capacity:  200,
			Neo4jURL:  "neo4j://localhost:7687",
			Neo4jUser: "neo4j",
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty or the file does not exist) and environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c Config) Validate() error {
	switch c.Vector.Backend {
	case "memory", "qdrant":
	default:
		return fmt.Errorf("config: unknown vector backend %q", c.Vector.Backend)
	}
	switch c.History.Backend {
	case "memory", "neo4j":
	default:
		return fmt.Errorf("config: unknown history backend %q", c.History.Backend)
	}
	if c.Embedding.BatchSize <= 0 {
		return fmt.Errorf("config: embedding.batch_size must be positive")
	}
	if c.Cache.Capacity <= 0 {
		return fmt.Errorf("config: cache.capacity must be positive")
	}
	return nil
}

// SlogLevel maps Log.Level to a slog level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func applyEnv(c *Config) {
	c.Server.Port = envOr("PORT", c.Server.Port)
	c.Server.CORSOrigin = envOr("CORS_ORIGIN", c.Server.CORSOrigin)
	c.Server.UploadDir = envOr("UPLOAD_DIR", c.Server.UploadDir)
	c.Database.URL = envOr("DATABASE_URL", c.Database.URL)
	c.Database.StatementTimeout = envDuration("DB_STATEMENT_TIMEOUT", c.Database.StatementTimeout)
	c.Ollama.URL = envOr("OLLAMA_URL", c.Ollama.URL)
	c.Ollama.EmbedModel = envOr("OLLAMA_EMBED_MODEL", c.Ollama.EmbedModel)
	c.Ollama.GenerateModel = envOr("OLLAMA_GENERATE_MODEL", c.Ollama.GenerateModel)
	c.Embedding.BatchSize = envInt("EMBED_BATCH_SIZE", c.Embedding.BatchSize)
	c.Embedding.Timeout = envDuration("EMBED_TIMEOUT", c.Embedding.Timeout)
	c.Generation.Timeout = envDuration("GENERATE_TIMEOUT", c.Generation.Timeout)
	c.Vector.Backend = envOr("VECTOR_BACKEND", c.Vector.Backend)
	c.Vector.QdrantAddr = envOr("QDRANT_URL", c.Vector.QdrantAddr)
	c.Vector.Collection = envOr("QDRANT_COLLECTION", c.Vector.Collection)
	c.Vector.Dims = envInt("VECTOR_DIMS", c.Vector.Dims)
	c.Cache.Capacity = envInt("CACHE_CAPACITY", c.Cache.Capacity)
	c.Retrieval.TopK = envInt("RETRIEVAL_TOP_K", c.Retrieval.TopK)
	c.NATS.URL = envOr("NATS_URL", c.NATS.URL)
	c.History.Backend = envOr("HISTORY_BACKEND", c.History.Backend)
	c.History.Neo4jURL = envOr("NEO4J_URL", c.History.Neo4jURL)
	c.History.Neo4jUser = envOr("NEO4J_USER", c.History.Neo4jUser)
	c.History.Neo4jPass = envOr("NEO4J_PASS", c.History.Neo4jPass)
	c.Log.Level = envOr("LOG_LEVEL", c.Log.Level)
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

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
