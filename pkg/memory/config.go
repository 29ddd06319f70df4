package memory

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// Config holds the service options. The first caller provides it once;
// treat it as immutable after New returns.
type Config struct {
	// DBPath is the SQLite database file. Required.
	DBPath string `json:"db_path" mapstructure:"db_path"`

	// EmbeddingHost is the Ollama server, e.g. "http://127.0.0.1:11434".
	// Ignored when Provider is set.
	EmbeddingHost string `json:"embedding_host" mapstructure:"embedding_host"`

	// EmbeddingModel is the model name passed to the provider.
	EmbeddingModel string `json:"embedding_model" mapstructure:"embedding_model"`

	// DenseLimit and SparseLimit cap how many rows each retrieval path
	// fetches before fusion.
	DenseLimit  int `json:"dense_limit" mapstructure:"dense_limit"`
	SparseLimit int `json:"sparse_limit" mapstructure:"sparse_limit"`

	// FuseTopK is the candidate pool kept after fusion; TopN is what Search
	// returns.
	FuseTopK int `json:"fuse_top_k" mapstructure:"fuse_top_k"`
	TopN     int `json:"top_n" mapstructure:"top_n"`

	// CacheSize is the maximum number of cached embeddings. Zero means the
	// default; a negative value disables caching.
	CacheSize int64 `json:"cache_size" mapstructure:"cache_size"`

	// MaintenanceSchedule is an optional cron expression for the expired-row
	// sweep. Empty disables the sweep.
	MaintenanceSchedule string `json:"maintenance_schedule" mapstructure:"maintenance_schedule"`

	// Logger receives structured logs. The zero value logs nowhere useful;
	// callers normally pass their own.
	Logger zerolog.Logger `json:"-" mapstructure:"-"`

	// Provider overrides the embedding provider built from EmbeddingHost.
	// Tests and embedding applications inject their own implementation here.
	Provider Provider `json:"-" mapstructure:"-"`
}

// DefaultConfig returns the option defaults.
func DefaultConfig() Config {
	return Config{
		EmbeddingHost:  "http://127.0.0.1:11434",
		EmbeddingModel: "nomic-embed-text",
		DenseLimit:     80,
		SparseLimit:    80,
		FuseTopK:       30,
		TopN:           12,
		CacheSize:      4096,
	}
}

// applyDefaults fills unset fields from DefaultConfig. DBPath stays empty;
// it has no sensible default.
func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.EmbeddingHost == "" {
		c.EmbeddingHost = def.EmbeddingHost
	}
	if c.EmbeddingModel == "" {
		c.EmbeddingModel = def.EmbeddingModel
	}
	if c.DenseLimit <= 0 {
		c.DenseLimit = def.DenseLimit
	}
	if c.SparseLimit <= 0 {
		c.SparseLimit = def.SparseLimit
	}
	if c.FuseTopK <= 0 {
		c.FuseTopK = def.FuseTopK
	}
	if c.TopN <= 0 {
		c.TopN = def.TopN
	}
	if c.CacheSize == 0 {
		c.CacheSize = def.CacheSize
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return errors.New("db_path is required")
	}
	if c.EmbeddingModel == "" {
		return errors.New("embedding_model is required")
	}
	if c.DenseLimit <= 0 || c.SparseLimit <= 0 {
		return errors.New("retrieval limits must be positive")
	}
	if c.FuseTopK <= 0 || c.TopN <= 0 {
		return errors.New("fuse_top_k and top_n must be positive")
	}
	return nil
}

// LoadConfig reads a JSON config file into a Config, starting from defaults.
// Environment variables with the MNEMO prefix override file values.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetEnvPrefix("MNEMO")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}
