package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/radar/internal/cli"
	"horse.fit/radar/internal/config"
	"horse.fit/radar/internal/db"
	"horse.fit/radar/internal/extractor"
	"horse.fit/radar/internal/logging"
	"horse.fit/radar/internal/pipeline"
	"horse.fit/radar/internal/scoring"
)

func runIngest(args []string) int {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 10*time.Minute, "Command timeout")
	sourceName := fs.String("source", "", "Only ingest the source with this name")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("database connection failed")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	pipe := buildPipeline(pool, cfg, logger)

	var stats []pipeline.SourceStats
	if name := strings.TrimSpace(*sourceName); name != "" {
		stats, err = ingestOneSource(ctx, pipe, pool, name)
	} else {
		stats, err = pipe.IngestAll(ctx)
	}
	if err != nil {
		logger.Error().Err(err).Msg("ingestion failed")
		fmt.Fprintf(os.Stderr, "Ingestion failed: %v\n", err)
		return 1
	}

	failures := 0
	for _, st := range stats {
		fmt.Printf("source=%s processed=%d inserted=%d deduped=%d errors=%d\n",
			st.SourceName, st.Processed, st.Inserted, st.Deduped, len(st.Errors))
		for _, msg := range st.Errors {
			fmt.Fprintf(os.Stderr, "  %s: %s\n", st.SourceName, msg)
		}
		failures += len(st.Errors)
	}

	if failures > 0 {
		return 1
	}
	return 0
}

func ingestOneSource(ctx context.Context, pipe *pipeline.Pipeline, pool *db.Pool, name string) ([]pipeline.SourceStats, error) {
	sources, err := pool.ListSources(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	for _, src := range sources {
		if src.Name == name {
			return []pipeline.SourceStats{pipe.IngestSource(ctx, src)}, nil
		}
	}
	return nil, fmt.Errorf("source %q not found", name)
}

func buildPipeline(pool *db.Pool, cfg *config.Config, logger zerolog.Logger) *pipeline.Pipeline {
	engine := scoring.NewEngine(scoring.Weights{
		Novelty: cfg.NoveltyWeight,
		Quality: cfg.QualityWeight,
		Recency: cfg.RecencyWeight,
	})
	extract := extractor.New(logger, extractor.Options{MaxTextLen: cfg.ContentMaxLength})
	return pipeline.New(db.NewIngestStore(pool), extract, engine, logger, pipeline.Options{
		MaxItemsPerRun:   cfg.MaxItemsPerRun,
		SimhashThreshold: cfg.SimhashThreshold,
	})
}
