package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/seanblong/docsearch/internal/ai"
	"github.com/seanblong/docsearch/internal/config"
	"github.com/seanblong/docsearch/internal/pipeline"
	"github.com/seanblong/docsearch/internal/scheduler"
	"github.com/seanblong/docsearch/internal/snapshot"
	"github.com/seanblong/docsearch/internal/stage"
	"github.com/seanblong/docsearch/internal/store"
	"github.com/seanblong/docsearch/pkg/models"
	"github.com/spf13/pflag"
)

func main() {
	fs := pflag.NewFlagSet("docsearch-ingestd", pflag.ExitOnError)

	cfg, err := config.Load("", fs)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	fs.Usage = cfg.Usage

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Invalid log level '%s': %v", cfg.LogLevel, err)
	}
	zerolog.SetGlobalLevel(level)
	zlog.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

	provider := strings.ToLower(cfg.Provider)
	zlog.Info().
		Str("provider", provider).
		Str("corpus_root", cfg.CorpusRoot).
		Int("max_files", cfg.Scheduler.MaxFiles).
		Msg("starting docsearch ingestd")

	var clientConfig *ai.ClientConfig
	switch provider {
	case "openai":
		clientConfig = &ai.ClientConfig{
			APIKey:     cfg.APIKey,
			EmbedModel: cfg.EmbedModel,
			Dim:        cfg.Dim,
			ProjectID:  cfg.ProjectID,
			Provider:   ai.ProviderOpenAI,
		}
	case "vertexai", "google":
		clientConfig = &ai.ClientConfig{
			APIKey:     cfg.APIKey,
			EmbedModel: cfg.EmbedModel,
			Dim:        cfg.Dim,
			ProjectID:  cfg.ProjectID,
			Location:   cfg.Location,
			Provider:   ai.ProviderVertexAI,
		}
	case "stub":
		clientConfig = &ai.ClientConfig{
			Dim:      cfg.Dim,
			Provider: ai.ProviderStub,
		}
	default:
		log.Fatalf("unsupported provider: %s", provider)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.New(ctx, cfg.Database)
	if err != nil {
		log.Fatal(err)
	}
	defer st.Close()

	client, err := ai.NewClient(clientConfig)
	if err != nil {
		log.Fatal(err)
	}
	if client.Dim() == 0 {
		log.Fatal("embedding dimension must be set")
	}
	client, err = ai.NewCachedClient(client, cfg.Pipeline.EmbedCacheSize)
	if err != nil {
		log.Fatal(err)
	}

	if err := st.Migrate(ctx, client.Dim()); err != nil {
		log.Fatal(err)
	}

	reg := stage.NewRegistry(stage.Options{
		ChunkSize:    cfg.Pipeline.ChunkSize,
		ChunkOverlap: cfg.Pipeline.ChunkOverlap,
		Client:       client,
		Chunks:       st,
	})

	orch, err := pipeline.New(pipeline.Config{
		Parser:         cfg.Pipeline.Parser,
		Cleaners:       cfg.Pipeline.Cleaners,
		Extractors:     cfg.Pipeline.Extractors,
		Chunker:        cfg.Pipeline.Chunker,
		Embedder:       cfg.Pipeline.Embedder,
		EnableCleaning: cfg.Pipeline.EnableCleaning,
		EnableMetadata: cfg.Pipeline.EnableMetadata,
		MaxParse:       int64(cfg.Scheduler.MaxParse),
		MaxEmbed:       int64(cfg.Scheduler.MaxEmbed),
	}, reg, st)
	if err != nil {
		log.Fatalf("invalid pipeline configuration: %v", err)
	}

	scanner := snapshot.NewScanner(cfg.CorpusRoot)
	build := func(path string) (*models.FileSnapshot, error) {
		return snapshot.Build(cfg.CorpusRoot, path)
	}

	sched, err := scheduler.New(scheduler.Config{
		PollInterval:      cfg.Scheduler.PollInterval,
		ReconcileInterval: cfg.Scheduler.ReconcileInterval,
		StaleClaimAfter:   cfg.Scheduler.StaleClaimAfter,
		MaxFiles:          cfg.Scheduler.MaxFiles,
	}, st, st, scanner, build, orch)
	if err != nil {
		log.Fatal(err)
	}

	if err := sched.Run(ctx); err != nil {
		zlog.Error().Err(err).Msg("scheduler stopped")
		os.Exit(1)
	}
	zlog.Info().Msg("ingestd stopped")
}
