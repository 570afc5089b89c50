package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const feedSnippetMaxLen = 500

var feedConfigSchema = jsonschema.MustCompileString("feed-config.json", `{
	"type": "object",
	"properties": {
		"url": {"type": "string", "minLength": 1}
	},
	"required": ["url"]
}`)

type feedConfig struct {
	URL string `json:"url"`
}

// feedConnector reads an RSS or Atom feed. The cursor is the unix timestamp
// of the newest entry seen so far; only entries strictly newer than it are
// returned.
type feedConnector struct {
	cfg    feedConfig
	parser *gofeed.Parser
	logger zerolog.Logger
}

func newFeedConnector(raw json.RawMessage, logger zerolog.Logger) (*feedConnector, error) {
	var cfg feedConfig
	if err := decodeConfig(feedConfigSchema, raw, &cfg); err != nil {
		return nil, fmt.Errorf("feed connector: %w", err)
	}
	return &feedConnector{
		cfg:    cfg,
		parser: gofeed.NewParser(),
		logger: logger,
	}, nil
}

func (c *feedConnector) Name() string {
	return "feed: " + c.cfg.URL
}

func (c *feedConnector) Fetch(ctx context.Context, cursor string, limit int) ([]RawItem, string, error) {
	lastSeen, err := parseUnixCursor(cursor)
	if err != nil {
		return nil, "", fmt.Errorf("feed cursor %q: %w", cursor, err)
	}

	feed, err := c.parser.ParseURLWithContext(c.cfg.URL, ctx)
	if err != nil {
		return nil, "", fmt.Errorf("fetch feed %s: %w", c.cfg.URL, err)
	}

	items := make([]RawItem, 0, limit)
	latest := lastSeen

	for _, entry := range feed.Items {
		if len(items) >= limit {
			break
		}

		published := entryTimestamp(entry)
		if published != nil {
			ts := published.Unix()
			if ts <= lastSeen {
				continue
			}
			if ts > latest {
				latest = ts
			}
		}

		if entry.Link == "" {
			c.logger.Debug().Str("feed", c.cfg.URL).Str("title", entry.Title).
				Msg("skipping feed entry without link")
			continue
		}

		title := entry.Title
		if title == "" {
			title = "Untitled"
		}

		items = append(items, RawItem{
			Title:       title,
			URL:         entry.Link,
			PublishedAt: published,
			Author:      entryAuthor(entry),
			Source:      c.Name(),
			Snippet:     truncate(firstNonEmpty(entry.Description, entry.Content), feedSnippetMaxLen),
			Signals: map[string]any{
				"feed_title": feed.Title,
				"tags":       entry.Categories,
			},
		})
	}

	// No newer entries means a repeated call is a no-op.
	nextCursor := ""
	if latest > lastSeen {
		nextCursor = strconv.FormatInt(latest, 10)
	}

	return items, nextCursor, nil
}

func entryTimestamp(entry *gofeed.Item) *time.Time {
	if entry.PublishedParsed != nil {
		return entry.PublishedParsed
	}
	return entry.UpdatedParsed
}

func entryAuthor(entry *gofeed.Item) string {
	if len(entry.Authors) > 0 && entry.Authors[0] != nil {
		return entry.Authors[0].Name
	}
	if entry.Author != nil {
		return entry.Author.Name
	}
	return ""
}

func parseUnixCursor(cursor string) (int64, error) {
	if cursor == "" {
		return 0, nil
	}
	ts, err := strconv.ParseInt(cursor, 10, 64)
	if err != nil {
		return 0, err
	}
	return ts, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen])
}
