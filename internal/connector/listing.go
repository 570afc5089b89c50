package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const (
	defaultListingBaseURL = "https://hacker-news.firebaseio.com/v0"
	defaultListingMax     = 100

	// listingRequestDelay paces the per-id detail fetches.
	listingRequestDelay = 50 * time.Millisecond
)

var listingConfigSchema = jsonschema.MustCompileString("listing-config.json", `{
	"type": "object",
	"properties": {
		"endpoint": {"type": "string", "minLength": 1},
		"base_url": {"type": "string", "minLength": 1},
		"max": {"type": "integer", "minimum": 1}
	}
}`)

type listingConfig struct {
	Endpoint string `json:"endpoint"`
	BaseURL  string `json:"base_url"`
	Max      int    `json:"max"`
}

// listingEntry is the detail payload of one listed id.
type listingEntry struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	By          string `json:"by"`
	Time        int64  `json:"time"`
	Text        string `json:"text"`
	Score       int    `json:"score"`
	Descendants int    `json:"descendants"`
	Type        string `json:"type"`
	Deleted     bool   `json:"deleted"`
	Dead        bool   `json:"dead"`
}

// listingConnector pages through a server-side ordered id list. The cursor
// is an offset into that list; the list itself is fetched fresh on every
// call, so the offset always addresses the current ordering.
type listingConnector struct {
	cfg    listingConfig
	client *http.Client
	delay  time.Duration
	logger zerolog.Logger
}

func newListingConnector(raw json.RawMessage, logger zerolog.Logger) (*listingConnector, error) {
	var cfg listingConfig
	if err := decodeConfig(listingConfigSchema, raw, &cfg); err != nil {
		return nil, fmt.Errorf("listing connector: %w", err)
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "topstories"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultListingBaseURL
	}
	if cfg.Max <= 0 {
		cfg.Max = defaultListingMax
	}
	return &listingConnector{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		delay:  listingRequestDelay,
		logger: logger,
	}, nil
}

func (c *listingConnector) Name() string {
	return "listing: " + c.cfg.Endpoint
}

func (c *listingConnector) Fetch(ctx context.Context, cursor string, limit int) ([]RawItem, string, error) {
	offset := 0
	if cursor != "" {
		parsed, err := strconv.Atoi(cursor)
		if err != nil {
			return nil, "", fmt.Errorf("listing cursor %q: %w", cursor, err)
		}
		offset = parsed
	}

	ids, err := c.fetchIDs(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("fetch id list %s/%s: %w", c.cfg.BaseURL, c.cfg.Endpoint, err)
	}

	end := offset + limit
	if end > len(ids) {
		end = len(ids)
	}
	if end > c.cfg.Max {
		end = c.cfg.Max
	}
	if offset > end {
		offset = end
	}

	items := make([]RawItem, 0, end-offset)
	for _, id := range ids[offset:end] {
		entry, err := c.fetchEntry(ctx, id)
		if err != nil {
			// One malformed entry must not abort the whole source.
			c.logger.Warn().Err(err).Int64("id", id).Str("endpoint", c.cfg.Endpoint).
				Msg("skipping listing entry")
			continue
		}
		if entry == nil || entry.Deleted || entry.Dead || entry.Type != "story" {
			continue
		}

		itemURL := entry.URL
		if itemURL == "" {
			// Text posts have no external URL; link to the discussion.
			itemURL = fmt.Sprintf("https://news.ycombinator.com/item?id=%d", id)
		}

		var published *time.Time
		if entry.Time > 0 {
			ts := time.Unix(entry.Time, 0).UTC()
			published = &ts
		}

		title := entry.Title
		if title == "" {
			title = "Untitled"
		}

		items = append(items, RawItem{
			Title:       title,
			URL:         itemURL,
			PublishedAt: published,
			Author:      entry.By,
			Source:      c.Name(),
			Snippet:     truncate(entry.Text, feedSnippetMaxLen),
			Signals: map[string]any{
				"id":          id,
				"score":       entry.Score,
				"descendants": entry.Descendants,
				"type":        entry.Type,
			},
		})

		if err := sleepCtx(ctx, c.delay); err != nil {
			return nil, "", err
		}
	}

	// Exhaustion here means either the end of the id list or the configured
	// cap, as opposed to the query variant's short-page signal.
	nextCursor := ""
	if end < len(ids) && end < c.cfg.Max {
		nextCursor = strconv.Itoa(end)
	}

	return items, nextCursor, nil
}

func (c *listingConnector) fetchIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := c.getJSON(ctx, fmt.Sprintf("%s/%s.json", c.cfg.BaseURL, c.cfg.Endpoint), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (c *listingConnector) fetchEntry(ctx context.Context, id int64) (*listingEntry, error) {
	var entry *listingEntry
	if err := c.getJSON(ctx, fmt.Sprintf("%s/item/%d.json", c.cfg.BaseURL, id), &entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (c *listingConnector) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
