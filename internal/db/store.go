package db

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrDuplicateURL marks an insert that collided with an existing
// canonical URL. Callers treat it as "already exists", not as a failure.
var ErrDuplicateURL = errors.New("item with this canonical URL already exists")

// ItemFingerprint is the id+fingerprint projection the near-duplicate
// search scans.
type ItemFingerprint struct {
	ItemID  int64
	Simhash int64
}

// IngestTx is the transaction surface the ingestion pipeline works
// through. All reads inside the transaction see the source's own
// uncommitted inserts, which keeps same-source dedup strict.
type IngestTx interface {
	// ItemIDByCanonicalURL reports whether an item with the canonical URL
	// exists.
	ItemIDByCanonicalURL(ctx context.Context, canonicalURL string) (id int64, found bool, err error)
	// RecentOriginalFingerprints returns fingerprints of the most recent
	// items that are not themselves duplicates, newest first.
	RecentOriginalFingerprints(ctx context.Context, limit int) ([]ItemFingerprint, error)
	// RecentFingerprints returns fingerprints of items created since the
	// given time, newest first, for novelty comparison.
	RecentFingerprints(ctx context.Context, since time.Time, limit int) ([]int64, error)
	// InsertItem persists a new item, filling in its id. Returns
	// ErrDuplicateURL when the canonical URL is already taken.
	InsertItem(ctx context.Context, item *Item) error
	// UpdateSourceCursor advances a source's resume token and last-run
	// stamp.
	UpdateSourceCursor(ctx context.Context, sourceID int64, cursor string, lastRunAt time.Time) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// IngestStore gives the pipeline its persistence surface: the enabled
// source list plus per-source transactions.
type IngestStore struct {
	pool *Pool
}

func NewIngestStore(pool *Pool) *IngestStore {
	return &IngestStore{pool: pool}
}

func (s *IngestStore) ListEnabledSources(ctx context.Context) ([]Source, error) {
	return s.pool.ListSources(ctx, true)
}

func (s *IngestStore) Begin(ctx context.Context) (IngestTx, error) {
	tx, err := s.pool.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin ingest transaction: %w", err)
	}
	return &ingestTx{tx: tx}, nil
}

type ingestTx struct {
	tx Tx
}

func (t *ingestTx) ItemIDByCanonicalURL(ctx context.Context, canonicalURL string) (int64, bool, error) {
	const q = `SELECT id FROM radar.items WHERE canonical_url = $1 LIMIT 1`

	var id int64
	err := t.tx.QueryRow(ctx, q, canonicalURL).Scan(&id)
	if IsNoRows(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("query item by canonical url: %w", err)
	}
	return id, true, nil
}

func (t *ingestTx) RecentOriginalFingerprints(ctx context.Context, limit int) ([]ItemFingerprint, error) {
	const q = `
SELECT id, simhash
FROM radar.items
WHERE simhash IS NOT NULL
  AND duplicate_of_item_id IS NULL
ORDER BY created_at DESC, id DESC
LIMIT $1
`

	rows, err := t.tx.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent original fingerprints: %w", err)
	}
	defer rows.Close()

	fingerprints := make([]ItemFingerprint, 0, limit)
	for rows.Next() {
		var fp ItemFingerprint
		if err := rows.Scan(&fp.ItemID, &fp.Simhash); err != nil {
			return nil, fmt.Errorf("scan fingerprint row: %w", err)
		}
		fingerprints = append(fingerprints, fp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fingerprint rows: %w", err)
	}
	return fingerprints, nil
}

func (t *ingestTx) RecentFingerprints(ctx context.Context, since time.Time, limit int) ([]int64, error) {
	const q = `
SELECT simhash
FROM radar.items
WHERE simhash IS NOT NULL
  AND created_at >= $1
ORDER BY created_at DESC, id DESC
LIMIT $2
`

	rows, err := t.tx.Query(ctx, q, since.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("query recent fingerprints: %w", err)
	}
	defer rows.Close()

	fingerprints := make([]int64, 0, limit)
	for rows.Next() {
		var simhash int64
		if err := rows.Scan(&simhash); err != nil {
			return nil, fmt.Errorf("scan simhash row: %w", err)
		}
		fingerprints = append(fingerprints, simhash)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate simhash rows: %w", err)
	}
	return fingerprints, nil
}

func (t *ingestTx) InsertItem(ctx context.Context, item *Item) error {
	const q = `
INSERT INTO radar.items (
	canonical_url, title, source_id, published_at, fetched_at,
	snippet, summary, domain, language, content_hash, simhash,
	duplicate_of_item_id, novelty_score, quality_score, final_score,
	raw_signals, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
ON CONFLICT (canonical_url) DO NOTHING
RETURNING id
`

	now := time.Now().UTC()
	fetchedAt := item.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = now
	}
	createdAt := item.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	err := t.tx.QueryRow(ctx, q,
		item.CanonicalURL,
		item.Title,
		item.SourceID,
		item.PublishedAt,
		fetchedAt,
		item.Snippet,
		item.Summary,
		item.Domain,
		item.Language,
		item.ContentHash,
		item.Simhash,
		item.DuplicateOfItemID,
		item.NoveltyScore,
		item.QualityScore,
		item.FinalScore,
		item.RawSignals,
		createdAt,
	).Scan(&item.ID)
	if IsNoRows(err) {
		// DO NOTHING returned no row: the canonical URL is taken.
		return ErrDuplicateURL
	}
	if err != nil {
		return fmt.Errorf("insert item: %w", err)
	}

	item.FetchedAt = fetchedAt
	item.CreatedAt = createdAt
	return nil
}

func (t *ingestTx) UpdateSourceCursor(ctx context.Context, sourceID int64, cursor string, lastRunAt time.Time) error {
	const q = `UPDATE radar.sources SET cursor = $1, last_run_at = $2 WHERE id = $3`

	affected, err := t.tx.Exec(ctx, q, cursor, lastRunAt.UTC(), sourceID)
	if err != nil {
		return fmt.Errorf("update source cursor: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("source %d not found", sourceID)
	}
	return nil
}

func (t *ingestTx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *ingestTx) Rollback(ctx context.Context) error {
	return t.tx.Rollback(ctx)
}
