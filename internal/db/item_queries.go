package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrItemNotFound is returned when an item id does not exist.
var ErrItemNotFound = errors.New("item not found")

// Feed sort orders.
const (
	FeedSortUnique = "unique"
	FeedSortTop    = "top"
	FeedSortNew    = "new"
)

// FeedOptions filters and paginates the ranked feed.
type FeedOptions struct {
	Sort     string
	Topic    string
	SourceID int64
	Page     int
	PageSize int
}

// FeedItem is the serving projection of one item.
type FeedItem struct {
	ID                int64           `json:"id"`
	CanonicalURL      string          `json:"canonical_url"`
	Title             string          `json:"title"`
	SourceID          int64           `json:"source_id"`
	SourceName        string          `json:"source_name"`
	PublishedAt       *time.Time      `json:"published_at,omitempty"`
	FetchedAt         time.Time       `json:"fetched_at"`
	Snippet           *string         `json:"snippet,omitempty"`
	Summary           *string         `json:"summary,omitempty"`
	Domain            *string         `json:"domain,omitempty"`
	Language          *string         `json:"language,omitempty"`
	DuplicateOfItemID *int64          `json:"duplicate_of_item_id,omitempty"`
	NoveltyScore      float64         `json:"novelty_score"`
	QualityScore      float64         `json:"quality_score"`
	FinalScore        float64         `json:"final_score"`
	RawSignals        json.RawMessage `json:"raw_signals,omitempty"`
}

const feedItemColumns = `
	i.id,
	i.canonical_url,
	i.title,
	i.source_id,
	s.name,
	i.published_at,
	i.fetched_at,
	i.snippet,
	i.summary,
	i.domain,
	i.language,
	i.duplicate_of_item_id,
	i.novelty_score,
	i.quality_score,
	i.final_score,
	i.raw_signals
`

// ListFeed returns the ranked feed page plus the total match count.
// Duplicates are excluded; the read path consumes persisted scores only.
func (p *Pool) ListFeed(ctx context.Context, opts FeedOptions) ([]FeedItem, int64, error) {
	if opts.Page < 1 || opts.PageSize < 1 {
		return nil, 0, fmt.Errorf("page and page size must be >= 1")
	}

	orderBy := ""
	switch opts.Sort {
	case FeedSortUnique:
		orderBy = "i.novelty_score DESC, i.published_at DESC NULLS LAST"
	case FeedSortNew:
		orderBy = "i.published_at DESC NULLS LAST"
	case FeedSortTop, "":
		orderBy = "i.final_score DESC, i.published_at DESC NULLS LAST"
	default:
		return nil, 0, fmt.Errorf("unknown sort %q", opts.Sort)
	}

	const where = `
FROM radar.items i
JOIN radar.sources s ON s.id = i.source_id
WHERE i.duplicate_of_item_id IS NULL
  AND ($1 = 0 OR i.source_id = $1)
  AND ($2 = '' OR i.title ILIKE '%' || $2 || '%'
	OR i.snippet ILIKE '%' || $2 || '%'
	OR i.domain ILIKE '%' || $2 || '%')
`

	var total int64
	if err := p.QueryRow(ctx, `SELECT COUNT(*) `+where, opts.SourceID, opts.Topic).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count feed items: %w", err)
	}

	q := `SELECT ` + feedItemColumns + where +
		` ORDER BY ` + orderBy + ` LIMIT $3 OFFSET $4`

	offset := (opts.Page - 1) * opts.PageSize
	rows, err := p.Query(ctx, q, opts.SourceID, opts.Topic, opts.PageSize, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("query feed items: %w", err)
	}
	defer rows.Close()

	items, err := scanFeedItems(rows, opts.PageSize)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// SearchItems matches the query against title, snippet and summary,
// ordered by final score. Unlike the feed, search includes duplicates.
func (p *Pool) SearchItems(ctx context.Context, query string, page, pageSize int) ([]FeedItem, int64, error) {
	if page < 1 || pageSize < 1 {
		return nil, 0, fmt.Errorf("page and page size must be >= 1")
	}

	const where = `
FROM radar.items i
JOIN radar.sources s ON s.id = i.source_id
WHERE i.title ILIKE '%' || $1 || '%'
   OR i.snippet ILIKE '%' || $1 || '%'
   OR i.summary ILIKE '%' || $1 || '%'
`

	var total int64
	if err := p.QueryRow(ctx, `SELECT COUNT(*) `+where, query).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count search matches: %w", err)
	}

	q := `SELECT ` + feedItemColumns + where +
		` ORDER BY i.final_score DESC, i.published_at DESC NULLS LAST LIMIT $2 OFFSET $3`

	rows, err := p.Query(ctx, q, query, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("query search matches: %w", err)
	}
	defer rows.Close()

	items, err := scanFeedItems(rows, pageSize)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// DuplicateRef points a duplicate at its original.
type DuplicateRef struct {
	ID           int64  `json:"id"`
	Title        string `json:"title"`
	CanonicalURL string `json:"canonical_url"`
}

// ItemDetail is one item plus, when it is a duplicate, its original.
type ItemDetail struct {
	FeedItem
	DuplicateOf *DuplicateRef `json:"duplicate_of,omitempty"`
}

// GetItem loads one item by id, resolving the duplicate back-reference.
func (p *Pool) GetItem(ctx context.Context, id int64) (*ItemDetail, error) {
	q := `SELECT ` + feedItemColumns + `
FROM radar.items i
JOIN radar.sources s ON s.id = i.source_id
WHERE i.id = $1`

	rows, err := p.Query(ctx, q, id)
	if err != nil {
		return nil, fmt.Errorf("query item: %w", err)
	}
	defer rows.Close()

	items, err := scanFeedItems(rows, 1)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrItemNotFound
	}

	detail := &ItemDetail{FeedItem: items[0]}
	if detail.DuplicateOfItemID != nil {
		const origQ = `SELECT id, title, canonical_url FROM radar.items WHERE id = $1`
		var ref DuplicateRef
		err := p.QueryRow(ctx, origQ, *detail.DuplicateOfItemID).Scan(&ref.ID, &ref.Title, &ref.CanonicalURL)
		if err != nil && !IsNoRows(err) {
			return nil, fmt.Errorf("query duplicate original: %w", err)
		}
		if err == nil {
			detail.DuplicateOf = &ref
		}
	}

	return detail, nil
}

// IngestStats summarizes the persisted corpus for the stats endpoint.
type IngestStats struct {
	Sources        int64      `json:"sources"`
	EnabledSources int64      `json:"enabled_sources"`
	Items          int64      `json:"items"`
	Duplicates     int64      `json:"duplicates"`
	ItemsLast24h   int64      `json:"items_last_24h"`
	LastItemAt     *time.Time `json:"last_item_at,omitempty"`
	LastRunAt      *time.Time `json:"last_run_at,omitempty"`
}

func (p *Pool) QueryStats(ctx context.Context) (*IngestStats, error) {
	const q = `
SELECT
	(SELECT COUNT(*) FROM radar.sources),
	(SELECT COUNT(*) FROM radar.sources WHERE enabled),
	(SELECT COUNT(*) FROM radar.items),
	(SELECT COUNT(*) FROM radar.items WHERE duplicate_of_item_id IS NOT NULL),
	(SELECT COUNT(*) FROM radar.items WHERE created_at >= NOW() - INTERVAL '24 hours'),
	(SELECT MAX(created_at) FROM radar.items),
	(SELECT MAX(last_run_at) FROM radar.sources)
`

	var stats IngestStats
	if err := p.QueryRow(ctx, q).Scan(
		&stats.Sources,
		&stats.EnabledSources,
		&stats.Items,
		&stats.Duplicates,
		&stats.ItemsLast24h,
		&stats.LastItemAt,
		&stats.LastRunAt,
	); err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	return &stats, nil
}

func scanFeedItems(rows *Rows, capacity int) ([]FeedItem, error) {
	items := make([]FeedItem, 0, capacity)
	for rows.Next() {
		var item FeedItem
		if err := rows.Scan(
			&item.ID,
			&item.CanonicalURL,
			&item.Title,
			&item.SourceID,
			&item.SourceName,
			&item.PublishedAt,
			&item.FetchedAt,
			&item.Snippet,
			&item.Summary,
			&item.Domain,
			&item.Language,
			&item.DuplicateOfItemID,
			&item.NoveltyScore,
			&item.QualityScore,
			&item.FinalScore,
			&item.RawSignals,
		); err != nil {
			return nil, fmt.Errorf("scan item row: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate item rows: %w", err)
	}
	return items, nil
}
