// Package pipeline orchestrates one ingestion cycle: fetch raw items from
// each enabled source, canonicalize and dedup them, score what survives and
// persist it. Each source runs in its own transaction so one broken
// upstream cannot poison the others.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/radar/internal/connector"
	"horse.fit/radar/internal/db"
	"horse.fit/radar/internal/dedup"
	"horse.fit/radar/internal/extractor"
	"horse.fit/radar/internal/langdetect"
	"horse.fit/radar/internal/scoring"
)

// inlineSnippetMinLen is the connector-snippet length above which the page
// fetch is skipped and the snippet itself becomes the working text.
const inlineSnippetMinLen = 100

// DefaultMaxItemsPerRun bounds how many items one source may yield per run.
const DefaultMaxItemsPerRun = 50

// Store is the persistence surface the pipeline runs against.
type Store interface {
	ListEnabledSources(ctx context.Context) ([]db.Source, error)
	Begin(ctx context.Context) (db.IngestTx, error)
}

// Extractor derives clean text and metadata for a URL.
type Extractor interface {
	Extract(ctx context.Context, rawURL string) extractor.Result
}

// Options tunes a pipeline. Zero values fall back to defaults.
type Options struct {
	MaxItemsPerRun   int
	SimhashThreshold int
	DedupWindow      int
}

// SourceStats summarizes one source's run.
type SourceStats struct {
	SourceID   int64    `json:"source_id"`
	SourceName string   `json:"source_name"`
	Processed  int      `json:"processed"`
	Inserted   int      `json:"inserted"`
	Deduped    int      `json:"deduped"`
	Errors     []string `json:"errors,omitempty"`
}

// Pipeline runs ingestion cycles.
type Pipeline struct {
	store     Store
	extract   Extractor
	engine    *scoring.Engine
	logger    zerolog.Logger
	maxItems  int
	threshold int
	window    int

	// Injection points for tests.
	newConnector func(sourceType string, config json.RawMessage, logger zerolog.Logger) (connector.Connector, error)
	now          func() time.Time
}

func New(store Store, extract Extractor, engine *scoring.Engine, logger zerolog.Logger, opts Options) *Pipeline {
	maxItems := opts.MaxItemsPerRun
	if maxItems <= 0 {
		maxItems = DefaultMaxItemsPerRun
	}
	threshold := opts.SimhashThreshold
	if threshold <= 0 {
		threshold = dedup.DefaultThreshold
	}
	window := opts.DedupWindow
	if window <= 0 {
		window = dedup.DefaultWindow
	}

	return &Pipeline{
		store:        store,
		extract:      extract,
		engine:       engine,
		logger:       logger,
		maxItems:     maxItems,
		threshold:    threshold,
		window:       window,
		newConnector: connector.New,
		now:          time.Now,
	}
}

// IngestAll runs every enabled source sequentially and returns per-source
// stats. A failing source contributes an error stat; it never aborts the
// cycle.
func (p *Pipeline) IngestAll(ctx context.Context) ([]SourceStats, error) {
	sources, err := p.store.ListEnabledSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("list enabled sources: %w", err)
	}

	stats := make([]SourceStats, 0, len(sources))
	for _, src := range sources {
		stats = append(stats, p.IngestSource(ctx, src))
	}
	return stats, nil
}

// IngestSource runs one source inside its own transaction. The source's
// cursor only advances when the whole run commits.
func (p *Pipeline) IngestSource(ctx context.Context, src db.Source) SourceStats {
	stats := SourceStats{SourceID: src.ID, SourceName: src.Name}
	logger := p.logger.With().Str("source", src.Name).Logger()

	conn, err := p.newConnector(src.Type, src.Config, logger)
	if err != nil {
		stats.Errors = append(stats.Errors, fmt.Sprintf("configure source: %v", err))
		logger.Error().Err(err).Msg("source configuration rejected")
		return stats
	}

	now := p.now().UTC()

	tx, err := p.store.Begin(ctx)
	if err != nil {
		stats.Errors = append(stats.Errors, fmt.Sprintf("begin transaction: %v", err))
		logger.Error().Err(err).Msg("could not open source transaction")
		return stats
	}

	items, nextCursor, err := conn.Fetch(ctx, src.Cursor, p.maxItems)
	if err != nil {
		_ = tx.Rollback(ctx)
		stats.Errors = append(stats.Errors, fmt.Sprintf("fetch: %v", err))
		logger.Error().Err(err).Msg("source fetch failed")
		return stats
	}

	for _, raw := range items {
		stats.Processed++

		outcome, err := p.processItem(ctx, tx, src, raw, now)
		if err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("item %q: %v", raw.URL, err))
			logger.Warn().Err(err).Str("url", raw.URL).Msg("item skipped")
			continue
		}
		switch outcome {
		case outcomeInserted:
			stats.Inserted++
		case outcomeDeduped:
			stats.Deduped++
		}
	}

	// The connector's cursor is stored verbatim, empty included: an empty
	// next cursor resets the source to a fresh start.
	if err := tx.UpdateSourceCursor(ctx, src.ID, nextCursor, now); err != nil {
		_ = tx.Rollback(ctx)
		stats.Errors = append(stats.Errors, fmt.Sprintf("update cursor: %v", err))
		logger.Error().Err(err).Msg("cursor update failed")
		return stats
	}
	if err := tx.Commit(ctx); err != nil {
		stats.Errors = append(stats.Errors, fmt.Sprintf("commit: %v", err))
		logger.Error().Err(err).Msg("source transaction commit failed")
		return stats
	}

	logger.Info().
		Int("processed", stats.Processed).
		Int("inserted", stats.Inserted).
		Int("deduped", stats.Deduped).
		Int("errors", len(stats.Errors)).
		Str("cursor", nextCursor).
		Msg("source ingested")
	return stats
}

type itemOutcome int

const (
	outcomeInserted itemOutcome = iota
	outcomeDeduped
)

func (p *Pipeline) processItem(ctx context.Context, tx db.IngestTx, src db.Source, raw connector.RawItem, now time.Time) (itemOutcome, error) {
	canonical, err := dedup.CanonicalizeURL(raw.URL)
	if err != nil {
		return 0, fmt.Errorf("canonicalize url: %w", err)
	}

	if _, found, err := tx.ItemIDByCanonicalURL(ctx, canonical); err != nil {
		return 0, fmt.Errorf("check canonical url: %w", err)
	} else if found {
		return outcomeDeduped, nil
	}

	content := p.contentFor(ctx, raw)

	fingerprintBasis := content.Text
	if fingerprintBasis == "" {
		fingerprintBasis = raw.Snippet
	}
	if fingerprintBasis == "" {
		fingerprintBasis = raw.Title
	}
	fingerprint, hasFingerprint := dedup.Fingerprint(fingerprintBasis)

	var duplicateOf *int64
	if hasFingerprint {
		recents, err := tx.RecentOriginalFingerprints(ctx, p.window)
		if err != nil {
			return 0, fmt.Errorf("load dedup window: %w", err)
		}
		for _, existing := range recents {
			if dedup.IsDuplicate(fingerprint, dedup.Unsigned(existing.Simhash), p.threshold) {
				id := existing.ItemID
				duplicateOf = &id
				break
			}
		}
	}

	noveltyWindow, err := tx.RecentFingerprints(ctx, now.AddDate(0, 0, -scoring.NoveltyWindowDays), scoring.NoveltyCompareLimit)
	if err != nil {
		return 0, fmt.Errorf("load novelty window: %w", err)
	}
	comparable := make([]uint64, len(noveltyWindow))
	for i, signed := range noveltyWindow {
		comparable[i] = dedup.Unsigned(signed)
	}

	scores := p.engine.Score(
		fingerprint, hasFingerprint, comparable,
		raw.PublishedAt, now,
		src.Name, raw.Signals, content.Text,
	)

	item := db.Item{
		CanonicalURL:      canonical,
		Title:             raw.Title,
		SourceID:          src.ID,
		PublishedAt:       raw.PublishedAt,
		FetchedAt:         now,
		Snippet:           nilIfEmpty(content.Snippet),
		Summary:           nilIfEmpty(content.Summary),
		Domain:            nilIfEmpty(content.Domain),
		Language:          nilIfEmpty(content.Language),
		ContentHash:       nilIfEmpty(content.ContentHash),
		DuplicateOfItemID: duplicateOf,
		NoveltyScore:      scores.Novelty,
		QualityScore:      scores.Quality,
		FinalScore:        scores.Final,
		RawSignals:        marshalSignals(raw.Signals),
	}
	if hasFingerprint {
		signed := dedup.Signed(fingerprint)
		item.Simhash = &signed
	}

	if err := tx.InsertItem(ctx, &item); err != nil {
		if errors.Is(err, db.ErrDuplicateURL) {
			return outcomeDeduped, nil
		}
		return 0, err
	}

	if duplicateOf != nil {
		return outcomeDeduped, nil
	}
	return outcomeInserted, nil
}

// contentFor decides between the connector-provided snippet and a page
// fetch. A substantial inline snippet avoids hitting the item's URL at all.
func (p *Pipeline) contentFor(ctx context.Context, raw connector.RawItem) extractor.Result {
	if len(raw.Snippet) >= inlineSnippetMinLen {
		return extractor.Result{
			Text:        raw.Snippet,
			Snippet:     extractor.Snippet(raw.Snippet),
			Summary:     extractor.Summary(raw.Snippet),
			Domain:      extractor.DomainOf(raw.URL),
			Language:    langdetect.DetectISO6391(raw.Snippet),
			ContentHash: extractor.HashContent(raw.Snippet),
		}
	}
	return p.extract.Extract(ctx, raw.URL)
}

func marshalSignals(signals map[string]any) json.RawMessage {
	if len(signals) == 0 {
		return nil
	}
	payload, err := json.Marshal(signals)
	if err != nil {
		return nil
	}
	return payload
}

func nilIfEmpty(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
