package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Embed   EmbedConfig   `mapstructure:"embed"`
	Vector  VectorConfig  `mapstructure:"vector"`
	Extract ExtractConfig `mapstructure:"extract"`
	Search  SearchConfig  `mapstructure:"search"`
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

// EmbedConfig configures the embedding provider.
type EmbedConfig struct {
	Provider   string `mapstructure:"provider"`
	Model      string `mapstructure:"model"`
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Dimension  int    `mapstructure:"dimension"`
	MaxRetries int    `mapstructure:"max_retries"`
	TimeoutSec int    `mapstructure:"timeout_sec"`

	// RequestsPerMinute caps calls to the embedding API (0 = unlimited).
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
}

// VectorConfig configures the vector store backend.
type VectorConfig struct {
	Backend    string `mapstructure:"backend"` // "qdrant", "pgvector", "memory"
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Collection string `mapstructure:"collection"`
	DSN        string `mapstructure:"dsn"` // pgvector only
}

// ExtractConfig configures frame sampling.
type ExtractConfig struct {
	FrameRate   float64 `mapstructure:"frame_rate"` // target frames per second
	FrameWidth  int     `mapstructure:"frame_width"`
	FrameHeight int     `mapstructure:"frame_height"`
	WorkDir     string  `mapstructure:"work_dir"` // uploads and extracted frames
	Workers     int     `mapstructure:"workers"`  // frame embedding concurrency
}

// SearchConfig configures query-time behavior.
type SearchConfig struct {
	DefaultTopK      int     `mapstructure:"default_top_k"`
	OversampleFactor int     `mapstructure:"oversample_factor"`
	ClusterThreshold float64 `mapstructure:"cluster_threshold"` // seconds; <= 0 disables clustering
}

// ServerConfig configures the HTTP daemon.
type ServerConfig struct {
	Addr       string `mapstructure:"addr"`
	HealthAddr string `mapstructure:"health_addr"`
	TimeoutSec int    `mapstructure:"timeout_sec"` // per-request deadline
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TracingConfig configures OTLP trace export.
type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"` // empty disables tracing
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

// Default returns the configuration used when no config file is present.
func Default() *Config {
	return &Config{
		Embed: EmbedConfig{
			Provider:   "openai",
			Model:      "clip-vit-base-patch32",
			Dimension:  512,
			MaxRetries: 3,
			TimeoutSec: 60,
		},
		Vector: VectorConfig{
			Backend:    "qdrant",
			Host:       "localhost",
			Port:       6334,
			Collection: "semanticvideo",
		},
		Extract: ExtractConfig{
			FrameRate: 1.0,
			WorkDir:   "data",
			Workers:   4,
		},
		Search: SearchConfig{
			DefaultTopK:      10,
			OversampleFactor: 10,
			ClusterThreshold: 0,
		},
		Server: ServerConfig{
			Addr:       ":8080",
			HealthAddr: ":8081",
			TimeoutSec: 120,
		},
		Log: LogConfig{Level: "info", Format: "text"},
		Tracing: TracingConfig{
			Environment: "development",
			SampleRate:  1.0,
		},
	}
}

// Validate checks configuration for issues and returns warnings.
func (c *Config) Validate() []string {
	var warnings []string

	if c.Embed.Provider != "" && c.Embed.Provider != "none" && c.Embed.APIKey == "" && !isLocalURL(c.Embed.BaseURL) {
		warnings = append(warnings, fmt.Sprintf("embed provider '%s' is configured but api_key is empty", c.Embed.Provider))
	}

	if c.Extract.FrameRate <= 0 {
		warnings = append(warnings, fmt.Sprintf("extract frame_rate %.2f is not positive; extraction requests will be rejected", c.Extract.FrameRate))
	}

	if c.Search.OversampleFactor < 1 {
		warnings = append(warnings, fmt.Sprintf("search oversample_factor %d is below 1; video grouping may starve lower-ranked videos", c.Search.OversampleFactor))
	}

	if c.Search.DefaultTopK < 1 {
		warnings = append(warnings, fmt.Sprintf("search default_top_k %d is below 1", c.Search.DefaultTopK))
	}

	switch c.Vector.Backend {
	case "", "qdrant", "pgvector", "memory":
	default:
		warnings = append(warnings, fmt.Sprintf("unknown vector backend '%s' (expected qdrant, pgvector or memory)", c.Vector.Backend))
	}

	if c.Vector.Backend == "pgvector" && c.Vector.DSN == "" {
		warnings = append(warnings, "vector backend 'pgvector' requires a dsn")
	}

	return warnings
}

func isLocalURL(u string) bool {
	return strings.Contains(u, "localhost") || strings.Contains(u, "127.0.0.1")
}

// Load reads configuration from file and environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("SEMANTICVIDEO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	// Validate configuration and print warnings
	if warnings := cfg.Validate(); len(warnings) > 0 {
		for _, warning := range warnings {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
		}
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("embed.provider", d.Embed.Provider)
	v.SetDefault("embed.model", d.Embed.Model)
	v.SetDefault("embed.dimension", d.Embed.Dimension)
	v.SetDefault("embed.max_retries", d.Embed.MaxRetries)
	v.SetDefault("embed.timeout_sec", d.Embed.TimeoutSec)
	v.SetDefault("vector.backend", d.Vector.Backend)
	v.SetDefault("vector.host", d.Vector.Host)
	v.SetDefault("vector.port", d.Vector.Port)
	v.SetDefault("vector.collection", d.Vector.Collection)
	v.SetDefault("extract.frame_rate", d.Extract.FrameRate)
	v.SetDefault("extract.work_dir", d.Extract.WorkDir)
	v.SetDefault("extract.workers", d.Extract.Workers)
	v.SetDefault("search.default_top_k", d.Search.DefaultTopK)
	v.SetDefault("search.oversample_factor", d.Search.OversampleFactor)
	v.SetDefault("search.cluster_threshold", d.Search.ClusterThreshold)
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.health_addr", d.Server.HealthAddr)
	v.SetDefault("server.timeout_sec", d.Server.TimeoutSec)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("tracing.environment", d.Tracing.Environment)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
}
