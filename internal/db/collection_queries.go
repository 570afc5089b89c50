package db

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrCollectionNotFound is returned when a collection id does not exist
// for the requesting token.
var ErrCollectionNotFound = errors.New("collection not found")

// ErrAlreadySaved marks a save that collided with an existing entry in
// the same collection.
var ErrAlreadySaved = errors.New("item already saved to this collection")

// CollectionSummary is one collection plus its item count.
type CollectionSummary struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	ItemCount int64     `json:"item_count"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateCollection creates a collection owned by the given token.
func (p *Pool) CreateCollection(ctx context.Context, userToken, name string) (*CollectionSummary, error) {
	const q = `
INSERT INTO radar.collections (user_token, name, created_at)
VALUES ($1, $2, NOW())
RETURNING id, name, created_at
`

	var summary CollectionSummary
	if err := p.QueryRow(ctx, q, userToken, name).Scan(&summary.ID, &summary.Name, &summary.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert collection: %w", err)
	}
	return &summary, nil
}

// ListCollections returns the token's collections, newest first.
func (p *Pool) ListCollections(ctx context.Context, userToken string) ([]CollectionSummary, error) {
	const q = `
SELECT c.id, c.name, COUNT(si.id), c.created_at
FROM radar.collections c
LEFT JOIN radar.saved_items si ON si.collection_id = c.id
WHERE c.user_token = $1
GROUP BY c.id, c.name, c.created_at
ORDER BY c.created_at DESC, c.id DESC
`

	rows, err := p.Query(ctx, q, userToken)
	if err != nil {
		return nil, fmt.Errorf("query collections: %w", err)
	}
	defer rows.Close()

	collections := make([]CollectionSummary, 0, 4)
	for rows.Next() {
		var summary CollectionSummary
		if err := rows.Scan(&summary.ID, &summary.Name, &summary.ItemCount, &summary.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan collection row: %w", err)
		}
		collections = append(collections, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate collection rows: %w", err)
	}
	return collections, nil
}

// SaveItem adds an item to a token-owned collection. The collection must
// belong to the token and the item must exist.
func (p *Pool) SaveItem(ctx context.Context, userToken string, collectionID, itemID int64, notes *string) error {
	owned, err := p.collectionOwnedBy(ctx, userToken, collectionID)
	if err != nil {
		return err
	}
	if !owned {
		return ErrCollectionNotFound
	}

	var exists bool
	if err := p.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM radar.items WHERE id = $1)`, itemID).Scan(&exists); err != nil {
		return fmt.Errorf("check item exists: %w", err)
	}
	if !exists {
		return ErrItemNotFound
	}

	const q = `
INSERT INTO radar.saved_items (collection_id, item_id, notes, saved_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (collection_id, item_id) DO NOTHING
`

	affected, err := p.Exec(ctx, q, collectionID, itemID, notes)
	if err != nil {
		return fmt.Errorf("insert saved item: %w", err)
	}
	if affected == 0 {
		return ErrAlreadySaved
	}
	return nil
}

// SavedItemEntry is one saved item with its save metadata.
type SavedItemEntry struct {
	FeedItem
	Notes   *string   `json:"notes,omitempty"`
	SavedAt time.Time `json:"saved_at"`
}

// ListSavedItems returns the items saved to a token-owned collection,
// newest save first.
func (p *Pool) ListSavedItems(ctx context.Context, userToken string, collectionID int64) ([]SavedItemEntry, error) {
	owned, err := p.collectionOwnedBy(ctx, userToken, collectionID)
	if err != nil {
		return nil, err
	}
	if !owned {
		return nil, ErrCollectionNotFound
	}

	q := `SELECT ` + feedItemColumns + `,
	si.notes,
	si.saved_at
FROM radar.saved_items si
JOIN radar.items i ON i.id = si.item_id
JOIN radar.sources s ON s.id = i.source_id
WHERE si.collection_id = $1
ORDER BY si.saved_at DESC, si.id DESC`

	rows, err := p.Query(ctx, q, collectionID)
	if err != nil {
		return nil, fmt.Errorf("query saved items: %w", err)
	}
	defer rows.Close()

	entries := make([]SavedItemEntry, 0, 8)
	for rows.Next() {
		var entry SavedItemEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.CanonicalURL,
			&entry.Title,
			&entry.SourceID,
			&entry.SourceName,
			&entry.PublishedAt,
			&entry.FetchedAt,
			&entry.Snippet,
			&entry.Summary,
			&entry.Domain,
			&entry.Language,
			&entry.DuplicateOfItemID,
			&entry.NoveltyScore,
			&entry.QualityScore,
			&entry.FinalScore,
			&entry.RawSignals,
			&entry.Notes,
			&entry.SavedAt,
		); err != nil {
			return nil, fmt.Errorf("scan saved item row: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate saved item rows: %w", err)
	}
	return entries, nil
}

func (p *Pool) collectionOwnedBy(ctx context.Context, userToken string, collectionID int64) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM radar.collections WHERE id = $1 AND user_token = $2)`

	var owned bool
	if err := p.QueryRow(ctx, q, collectionID, userToken).Scan(&owned); err != nil {
		return false, fmt.Errorf("check collection ownership: %w", err)
	}
	return owned, nil
}
