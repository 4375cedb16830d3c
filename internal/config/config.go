package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Database  DatabaseConfig  `mapstructure:"database"`
	RAG       RAGConfig       `mapstructure:"rag"`
	Indexer   IndexerConfig   `mapstructure:"indexer"`
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
}

// OpenAIConfig holds settings for the OpenAI-compatible API
type OpenAIConfig struct {
	APIKey         string  `mapstructure:"api_key"`
	BaseURL        string  `mapstructure:"base_url"`
	ChatModel      string  `mapstructure:"chat_model"`
	EmbeddingModel string  `mapstructure:"embedding_model"`
	Temperature    float64 `mapstructure:"temperature"`
	Timeout        int     `mapstructure:"timeout"` // seconds
}

// EmbeddingConfig holds embedding service configuration
type EmbeddingConfig struct {
	Provider   string `mapstructure:"provider"`  // openai
	Dimension  int    `mapstructure:"dimension"` // 0 skips the length check
	BatchSize  int    `mapstructure:"batch_size"`
	MaxRetries int    `mapstructure:"max_retries"`

	// RequestsPerSecond caps provider calls; 0 means unlimited
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

// DatabaseConfig selects the relational store.
// Empty DSN means a local SQLite file, postgres:// URLs use pgx, "memory" keeps
// everything in process.
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RAGConfig holds retrieval defaults
type RAGConfig struct {
	DefaultTopK     int    `mapstructure:"default_top_k"`
	DefaultOwnerKey string `mapstructure:"default_owner_key"`
}

// IndexerConfig holds knowledge ingestion configuration
type IndexerConfig struct {
	ChunkSize    int      `mapstructure:"chunk_size"`
	ChunkOverlap int      `mapstructure:"chunk_overlap"`
	Extensions   []string `mapstructure:"extensions"`
	IgnoreDirs   []string `mapstructure:"ignore_dirs"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host        string   `mapstructure:"host"`
	Port        int      `mapstructure:"port"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		OpenAI: OpenAIConfig{
			BaseURL:        "https://api.openai.com/v1",
			ChatModel:      "gpt-4.1-mini",
			EmbeddingModel: "text-embedding-3-small",
			Temperature:    0.4,
			Timeout:        60,
		},
		Embedding: EmbeddingConfig{
			Provider:   "openai",
			Dimension:  1536,
			BatchSize:  64,
			MaxRetries: 3,
		},
		Database: DatabaseConfig{
			DSN: "",
		},
		RAG: RAGConfig{
			DefaultTopK: 5,
		},
		Indexer: IndexerConfig{
			ChunkSize:    1200,
			ChunkOverlap: 200,
			Extensions:   []string{".txt", ".md"},
			IgnoreDirs:   []string{".git", "node_modules", "vendor", "__pycache__", ".idea", ".vscode"},
		},
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8000,
			CORSOrigins: []string{"*"},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from file and environment
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".yorizo"))
		}
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("YORIZO")
	v.AutomaticEnv()

	// The bare provider variables are accepted as a fallback so existing
	// deployments keep working.
	v.BindEnv("openai.api_key", "YORIZO_OPENAI_API_KEY", "OPENAI_API_KEY")
	v.BindEnv("openai.base_url", "YORIZO_OPENAI_BASE_URL", "OPENAI_BASE_URL")
	v.BindEnv("openai.chat_model", "YORIZO_OPENAI_CHAT_MODEL", "OPENAI_MODEL_CHAT")
	v.BindEnv("openai.embedding_model", "YORIZO_OPENAI_EMBEDDING_MODEL", "OPENAI_MODEL_EMBEDDING")
	v.BindEnv("openai.temperature", "YORIZO_OPENAI_TEMPERATURE")
	v.BindEnv("openai.timeout", "YORIZO_OPENAI_TIMEOUT")
	v.BindEnv("embedding.provider", "YORIZO_EMBEDDING_PROVIDER")
	v.BindEnv("embedding.batch_size", "YORIZO_EMBEDDING_BATCH_SIZE")
	v.BindEnv("embedding.max_retries", "YORIZO_EMBEDDING_MAX_RETRIES")
	v.BindEnv("embedding.requests_per_second", "YORIZO_EMBEDDING_REQUESTS_PER_SECOND")
	v.BindEnv("database.dsn", "YORIZO_DATABASE_DSN", "DATABASE_URL")
	v.BindEnv("rag.default_top_k", "YORIZO_RAG_DEFAULT_TOP_K")
	v.BindEnv("rag.default_owner_key", "YORIZO_RAG_DEFAULT_OWNER_KEY")
	v.BindEnv("server.host", "YORIZO_SERVER_HOST")
	v.BindEnv("server.port", "YORIZO_SERVER_PORT")
	v.BindEnv("log.level", "YORIZO_LOG_LEVEL")
	v.BindEnv("log.format", "YORIZO_LOG_FORMAT")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found, use defaults
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects settings the service cannot run with
func (c *Config) Validate() error {
	if c.Embedding.BatchSize < 1 {
		return fmt.Errorf("embedding.batch_size must be positive, got %d", c.Embedding.BatchSize)
	}
	if c.Embedding.MaxRetries < 1 {
		return fmt.Errorf("embedding.max_retries must be positive, got %d", c.Embedding.MaxRetries)
	}
	if c.Embedding.Dimension < 0 {
		return fmt.Errorf("embedding.dimension must not be negative, got %d", c.Embedding.Dimension)
	}
	if c.Embedding.RequestsPerSecond < 0 {
		return fmt.Errorf("embedding.requests_per_second must not be negative, got %g", c.Embedding.RequestsPerSecond)
	}
	if c.RAG.DefaultTopK < 1 {
		return fmt.Errorf("rag.default_top_k must be positive, got %d", c.RAG.DefaultTopK)
	}
	if c.Indexer.ChunkSize < 1 {
		return fmt.Errorf("indexer.chunk_size must be positive, got %d", c.Indexer.ChunkSize)
	}
	if c.Indexer.ChunkOverlap < 0 || c.Indexer.ChunkOverlap >= c.Indexer.ChunkSize {
		return fmt.Errorf("indexer.chunk_overlap must be in [0, chunk_size), got %d", c.Indexer.ChunkOverlap)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console, got %q", c.Log.Format)
	}
	return nil
}
