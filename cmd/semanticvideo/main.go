package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/efebarandurmaz/semanticvideo/internal/config"
	"github.com/efebarandurmaz/semanticvideo/internal/daemon"
	"github.com/efebarandurmaz/semanticvideo/internal/embed"
	"github.com/efebarandurmaz/semanticvideo/internal/embed/openai"
	"github.com/efebarandurmaz/semanticvideo/internal/extract"
	"github.com/efebarandurmaz/semanticvideo/internal/index"
	"github.com/efebarandurmaz/semanticvideo/internal/observability"
	"github.com/efebarandurmaz/semanticvideo/internal/search"
	"github.com/efebarandurmaz/semanticvideo/internal/secrets"
	"github.com/efebarandurmaz/semanticvideo/internal/server"
	"github.com/efebarandurmaz/semanticvideo/internal/vector"
	"github.com/efebarandurmaz/semanticvideo/internal/vector/pgvector"
	"github.com/efebarandurmaz/semanticvideo/internal/vector/qdrant"
)

var version = "0.1.0"

func main() {
	var (
		configPath string
		auditPath  string
	)

	rootCmd := &cobra.Command{
		Use:   "semanticvideo",
		Short: "Semantic search over images and video frames",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/semanticvideo.yaml", "Config file path")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the ingestion and search daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configPath, auditPath)
		},
	}
	serveCmd.Flags().StringVar(&auditPath, "audit", "", "Audit log output (file path, stdout or stderr; empty disables)")

	var (
		indexRate  float64
		searchTopK int
		searchVid  bool
		threshold  float64
	)

	indexCmd := &cobra.Command{
		Use:   "index <path>",
		Short: "Index a video or image file directly, without the daemon",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return indexFile(configPath, args[0], indexRate)
		},
	}
	indexCmd.Flags().Float64Var(&indexRate, "rate", 0, "Frame sampling rate in fps (default from config)")

	searchCmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search indexed content and print results as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(configPath, args[0], searchTopK, searchVid, threshold)
		},
	}
	searchCmd.Flags().IntVar(&searchTopK, "top-k", 0, "Number of results (default from config)")
	searchCmd.Flags().BoolVar(&searchVid, "video", false, "Search videos instead of standalone images")
	searchCmd.Flags().Float64Var(&threshold, "threshold", -1, "Timestamp clustering threshold in seconds")

	providersCmd := &cobra.Command{
		Use:   "providers",
		Short: "List available embedding providers",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Available embedding providers:")
			fmt.Println()
			for name, url := range embed.KnownProviders {
				fmt.Printf("  %-8s %s\n", name, url)
			}
			fmt.Println()
			fmt.Println("Configure in semanticvideo.yaml or via environment:")
			fmt.Println("  SEMANTICVIDEO_EMBED_PROVIDER=jina")
			fmt.Println("  SEMANTICVIDEO_EMBED_API_KEY=jina_...")
			fmt.Println("  SEMANTICVIDEO_EMBED_MODEL=jina-clip-v2")
		},
	}

	rootCmd.AddCommand(serveCmd, indexCmd, searchCmd, providersCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serve(configPath, auditPath string) error {
	cfg := loadConfig(configPath)
	setupLogging(cfg.Log)
	ctx := context.Background()

	// Audit logging
	audit, err := observability.NewAuditLogger(&observability.AuditConfig{
		Enabled:    auditPath != "",
		OutputPath: auditPath,
	})
	if err != nil {
		return fmt.Errorf("audit logger: %w", err)
	}

	// Tracing (no-op when endpoint is empty)
	tp, err := observability.InitTracing(ctx, &observability.TracingConfig{
		ServiceName:    "semanticvideo",
		ServiceVersion: version,
		Environment:    cfg.Tracing.Environment,
		OTLPEndpoint:   cfg.Tracing.Endpoint,
		SampleRate:     cfg.Tracing.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}

	metrics := observability.Metrics()

	provider, err := buildProvider(cfg)
	if err != nil {
		return err
	}

	repo, err := buildRepository(ctx, cfg)
	if err != nil {
		return err
	}

	sampler := extract.NewSampler(
		extract.WithFrameSize(cfg.Extract.FrameWidth, cfg.Extract.FrameHeight),
	)
	indexer := index.New(provider, repo, index.WithWorkers(cfg.Extract.Workers))
	aggregator := search.NewAggregator(provider, repo,
		search.WithOversampleFactor(cfg.Search.OversampleFactor),
	)

	registry := daemon.NewRegistry()
	hub := daemon.NewHub()
	settings := &daemon.Settings{
		FrameRate:        cfg.Extract.FrameRate,
		DefaultTopK:      cfg.Search.DefaultTopK,
		ClusterThreshold: cfg.Search.ClusterThreshold,
	}
	jobs := daemon.NewJobManager(registry, sampler, indexer, hub, cfg.Extract.WorkDir, slog.Default())

	srv := daemon.NewServer(&daemon.Config{
		ListenAddr:     cfg.Server.Addr,
		WorkDir:        cfg.Extract.WorkDir,
		Version:        version,
		RequestTimeout: time.Duration(cfg.Server.TimeoutSec) * time.Second,
	}, daemon.Deps{
		Registry:   registry,
		Jobs:       jobs,
		Sampler:    sampler,
		Indexer:    indexer,
		Aggregator: aggregator,
		Repo:       repo,
		Hub:        hub,
		Settings:   settings,
		Metrics:    metrics,
		Audit:      audit,
	})

	graceful := server.NewGracefulServer(
		&server.HealthConfig{Version: version, Addr: cfg.Server.HealthAddr},
		server.DefaultShutdownConfig(),
	)
	graceful.Health.RegisterCheck("vector-store", server.VectorStoreHealthChecker(cfg.Vector.Backend, func(ctx context.Context) error {
		_, err := repo.Count(ctx, vector.Filter{})
		return err
	}))
	graceful.Health.RegisterCheck("embed-provider", server.EmbedProviderHealthChecker(provider.Name(), nil))
	graceful.Health.RegisterCheck("ffmpeg", server.FFmpegHealthChecker("ffmpeg", "ffprobe"))

	for _, hook := range []server.ShutdownHook{
		server.HTTPServerShutdownHook("daemon-server", srv.Stop),
		server.JobManagerShutdownHook(jobs.Drain),
		server.TracingShutdownHook(tp.Shutdown),
		server.VectorStoreShutdownHook(repo.Close),
		server.AuditLoggerShutdownHook(audit.Close),
	} {
		graceful.RegisterHook(hook.Name, hook.Priority, hook.Fn)
	}

	if err := graceful.Start(cfg.Server.HealthAddr); err != nil {
		return fmt.Errorf("start health server: %w", err)
	}

	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("daemon server exited", "error", err)
			graceful.Shutdown.Shutdown()
		}
	}()

	slog.Info("semanticvideo daemon running",
		"addr", cfg.Server.Addr,
		"health_addr", cfg.Server.HealthAddr,
		"vector_backend", cfg.Vector.Backend,
		"embed_provider", provider.Name(),
	)

	graceful.Wait()
	return nil
}

// indexFile runs the ingestion pipeline once against a local file.
func indexFile(configPath, path string, rate float64) error {
	cfg := loadConfig(configPath)
	setupLogging(cfg.Log)
	ctx := context.Background()

	provider, err := buildProvider(cfg)
	if err != nil {
		return err
	}
	repo, err := buildRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer repo.Close()

	indexer := index.New(provider, repo, index.WithWorkers(cfg.Extract.Workers))

	switch ext := filepath.Ext(path); ext {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp":
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read image: %w", err)
		}
		id, err := indexer.IndexImage(ctx, data, filepath.Base(path), "")
		if err != nil {
			return fmt.Errorf("index image: %w", err)
		}
		fmt.Printf("Indexed image %s as %s\n", path, id)
		return nil

	default:
		if rate <= 0 {
			rate = cfg.Extract.FrameRate
		}
		sampler := extract.NewSampler(
			extract.WithFrameSize(cfg.Extract.FrameWidth, cfg.Extract.FrameHeight),
		)
		videoID := fmt.Sprintf("cli-%d", time.Now().Unix())
		framesDir := filepath.Join(cfg.Extract.WorkDir, "frames", videoID)

		start := time.Now()
		frames, err := sampler.Sample(ctx, path, framesDir, rate)
		if err != nil {
			return fmt.Errorf("extract frames: %w", err)
		}
		fmt.Printf("Extracted %d frames in %v\n", len(frames), time.Since(start).Round(time.Millisecond))

		result, err := indexer.IndexVideo(ctx, videoID, path, frames, rate, func(done, total int) {
			fmt.Printf("\r  Indexing %d/%d", done, total)
		})
		fmt.Println()
		if err != nil {
			return fmt.Errorf("index video: %w", err)
		}
		fmt.Printf("Indexed %d/%d frames of %s as video %s\n",
			result.FramesIndexed, result.FramesExtracted, path, videoID)
		return nil
	}
}

// runSearch runs one query against the configured store and prints JSON.
func runSearch(configPath, query string, topK int, video bool, threshold float64) error {
	cfg := loadConfig(configPath)
	setupLogging(cfg.Log)
	ctx := context.Background()

	provider, err := buildProvider(cfg)
	if err != nil {
		return err
	}
	repo, err := buildRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer repo.Close()

	aggregator := search.NewAggregator(provider, repo,
		search.WithOversampleFactor(cfg.Search.OversampleFactor),
	)

	if topK <= 0 {
		topK = cfg.Search.DefaultTopK
	}

	var out interface{}
	if video {
		if threshold < 0 {
			threshold = cfg.Search.ClusterThreshold
		}
		out, err = aggregator.SearchVideos(ctx, query, topK, threshold)
	} else {
		out, err = aggregator.SearchImages(ctx, query, topK)
	}
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	data, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(data))
	return nil
}

func loadConfig(path string) *config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: config load failed (%v), using defaults\n", err)
		cfg = config.Default()
	}

	// Fill credentials from the secrets manager when the config leaves
	// them empty. The backend comes from SEMANTICVIDEO_SECRETS_PROVIDER
	// (env by default, vault or file when configured).
	if err := secrets.Init(secrets.ConfigFromEnv()); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: secrets backend unavailable (%v), using environment only\n", err)
	}
	ctx := context.Background()
	if cfg.Embed.APIKey == "" {
		cfg.Embed.APIKey = secrets.GetOrDefault(ctx, string(secrets.SecretEmbedAPIKey), "")
	}
	if cfg.Vector.DSN == "" {
		cfg.Vector.DSN = secrets.GetOrDefault(ctx, string(secrets.SecretVectorDSN), "")
	}
	return cfg
}

func setupLogging(cfg config.LogConfig) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = tint.NewHandler(os.Stderr, &tint.Options{Level: level})
	}
	slog.SetDefault(slog.New(handler))
}

// buildProvider constructs the embedding provider from config via the
// factory, wrapped with retry and rate limiting.
func buildProvider(cfg *config.Config) (embed.Provider, error) {
	factory := embed.NewFactory()
	factory.Register("openai", openai.NewFromConfig)
	// All OpenAI-compatible multimodal embedding endpoints
	for _, p := range []struct{ name, url string }{
		{"jina", embed.KnownProviders["jina"]},
		{"ollama", embed.KnownProviders["ollama"]},
		{"custom", ""},
	} {
		p := p
		factory.Register(p.name, func(c embed.ProviderConfig) (embed.Provider, error) {
			if c.BaseURL == "" {
				c.BaseURL = p.url
			}
			return openai.NewFromConfig(c)
		})
	}

	provider, err := factory.Create(embed.ProviderConfig{
		Provider:          cfg.Embed.Provider,
		APIKey:            cfg.Embed.APIKey,
		Model:             cfg.Embed.Model,
		BaseURL:           cfg.Embed.BaseURL,
		Timeout:           time.Duration(cfg.Embed.TimeoutSec) * time.Second,
		MaxRetries:        cfg.Embed.MaxRetries,
		RetryDelay:        time.Second,
		RequestsPerMinute: cfg.Embed.RequestsPerMinute,
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedding provider: %w", err)
	}
	return provider, nil
}

// buildRepository constructs the configured vector store backend.
func buildRepository(ctx context.Context, cfg *config.Config) (vector.Repository, error) {
	switch cfg.Vector.Backend {
	case "qdrant":
		repo, err := qdrant.New(ctx, cfg.Vector.Host, cfg.Vector.Port, cfg.Vector.Collection, cfg.Embed.Dimension)
		if err != nil {
			return nil, fmt.Errorf("connecting to qdrant: %w", err)
		}
		return repo, nil
	case "pgvector":
		repo, err := pgvector.New(ctx, cfg.Vector.DSN, cfg.Embed.Dimension)
		if err != nil {
			return nil, fmt.Errorf("connecting to pgvector: %w", err)
		}
		return repo, nil
	case "memory", "":
		return vector.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown vector backend %q (expected qdrant, pgvector or memory)", cfg.Vector.Backend)
	}
}
