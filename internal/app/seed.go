package app

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/radar/internal/cli"
	"horse.fit/radar/internal/config"
	"horse.fit/radar/internal/connector"
	"horse.fit/radar/internal/db"
	"horse.fit/radar/internal/logging"
)

// defaultSources covers the three connector variants out of the box.
// Seeding is idempotent: existing sources are never touched.
func defaultSources() []db.Source {
	return []db.Source{
		{
			Name:    "hackernews-top",
			Type:    connector.TypeListing,
			Config:  json.RawMessage(`{"endpoint": "topstories", "max": 100}`),
			Enabled: true,
		},
		{
			Name:    "arxiv-cs-ai",
			Type:    connector.TypeQuery,
			Config:  json.RawMessage(`{"search_query": "cat:cs.AI", "max_results": 50}`),
			Enabled: true,
		},
		{
			Name:    "arxiv-cs-lg",
			Type:    connector.TypeQuery,
			Config:  json.RawMessage(`{"search_query": "cat:cs.LG", "max_results": 50}`),
			Enabled: true,
		},
		{
			Name:    "techcrunch",
			Type:    connector.TypeFeed,
			Config:  json.RawMessage(`{"url": "https://techcrunch.com/feed/"}`),
			Enabled: true,
		},
		{
			Name:    "mit-news",
			Type:    connector.TypeFeed,
			Config:  json.RawMessage(`{"url": "https://news.mit.edu/rss/topic/artificial-intelligence2"}`),
			Enabled: true,
		},
	}
}

func runSeed(args []string) int {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 20*time.Second, "Command timeout")

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

	// Reject broken source configs before they reach the database.
	for _, src := range defaultSources() {
		if _, err := connector.New(src.Type, src.Config, logger); err != nil {
			fmt.Fprintf(os.Stderr, "Invalid default source %q: %v\n", src.Name, err)
			return 1
		}
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

	created, err := pool.SeedSources(ctx, defaultSources())
	if err != nil {
		logger.Error().Err(err).Msg("seed sources failed")
		fmt.Fprintf(os.Stderr, "Failed to seed sources: %v\n", err)
		return 1
	}

	fmt.Printf("seeded %d new sources (%d defaults)\n", created, len(defaultSources()))
	return 0
}
