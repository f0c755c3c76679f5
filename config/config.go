package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the coaching engine.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Chat      ChatConfig      `mapstructure:"chat"`
	Routine   RoutineConfig   `mapstructure:"routine"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig contains HTTP server and background scheduler settings.
type ServerConfig struct {
	Address    string `mapstructure:"address"`
	IngestCron string `mapstructure:"ingest_cron"`
	SpoolDir   string `mapstructure:"spool_dir"`
}

// LLMConfig configures the completion and embedding provider.
type LLMConfig struct {
	Type                string        `mapstructure:"type"` // openai
	APIKey              string        `mapstructure:"api_key"`
	BaseURL             string        `mapstructure:"base_url"`
	Model               string        `mapstructure:"model"`
	EmbeddingModel      string        `mapstructure:"embedding_model"`
	EmbeddingDimensions int           `mapstructure:"embedding_dimensions"`
	Temperature         float64       `mapstructure:"temperature"`
	MaxTokens           int           `mapstructure:"max_tokens"`
	Timeout             time.Duration `mapstructure:"timeout"`
}

// StorageConfig groups the persistent backends.
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig describes the pgvector-backed summary index.
type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN builds a postgres connection string, preferring an explicit URL.
func (p PostgresConfig) DSN() (string, error) {
	if p.URL != "" {
		return p.URL, nil
	}
	if p.Host == "" || p.DBName == "" {
		return "", fmt.Errorf("postgres not configured (storage.postgres.host/dbname or url)")
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl), nil
}

// RedisConfig describes the optional shared intent-cache layer.
type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// ChatConfig tunes the conversational pipeline.
type ChatConfig struct {
	IntentCacheTTL     time.Duration `mapstructure:"intent_cache_ttl"`
	EmbeddingCacheSize int           `mapstructure:"embedding_cache_size"`
	TopK               int           `mapstructure:"top_k"`
	DefaultCharacter   string        `mapstructure:"default_character"`
}

// RoutineConfig tunes the routine generation engine.
type RoutineConfig struct {
	DefaultDifficulty  string `mapstructure:"default_difficulty"`
	DefaultDurationMin int    `mapstructure:"default_duration_min"`
	MaxNeighbors       int    `mapstructure:"max_neighbors"`
}

// WorkerConfig bounds the pool used for collaborator calls.
type WorkerConfig struct {
	PoolSize    int           `mapstructure:"pool_size"`
	QueueSize   int           `mapstructure:"queue_size"`
	TaskTimeout time.Duration `mapstructure:"task_timeout"`
}

// TelemetryConfig toggles prometheus metrics.
type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoadConfig reads configuration from file and environment (WEARCOACH_*).
func LoadConfig(path string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetDefault("server.address", ":10002")
	viper.SetDefault("server.ingest_cron", "@hourly")
	viper.SetDefault("llm.type", "openai")
	viper.SetDefault("llm.model", "gpt-4o-mini")
	viper.SetDefault("llm.embedding_model", "text-embedding-3-small")
	viper.SetDefault("llm.embedding_dimensions", 1536)
	viper.SetDefault("llm.temperature", 0.3)
	viper.SetDefault("llm.max_tokens", 1500)
	viper.SetDefault("llm.timeout", 30*time.Second)
	viper.SetDefault("storage.redis.timeout", 3*time.Second)
	viper.SetDefault("chat.intent_cache_ttl", 60*time.Second)
	viper.SetDefault("chat.embedding_cache_size", 2048)
	viper.SetDefault("chat.top_k", 3)
	viper.SetDefault("chat.default_character", "healing")
	viper.SetDefault("routine.default_difficulty", "medium")
	viper.SetDefault("routine.default_duration_min", 30)
	viper.SetDefault("routine.max_neighbors", 3)
	viper.SetDefault("worker.pool_size", 4)
	viper.SetDefault("worker.queue_size", 64)
	viper.SetDefault("worker.task_timeout", 45*time.Second)
	viper.SetDefault("telemetry.enabled", true)

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, ".."))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("WEARCOACH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// A config file is optional; defaults plus env vars are enough to run.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && path != "" {
			panic(fmt.Errorf("fatal error config file: %w", err))
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	return &cfg
}
