package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const (
	defaultQueryBaseURL    = "http://export.arxiv.org/api/query"
	defaultQueryMaxResults = 100
	querySnippetMaxLen     = 1000

	// queryRequestDelay follows the upstream's ask of several seconds
	// between requests.
	queryRequestDelay = 3 * time.Second
)

var queryConfigSchema = jsonschema.MustCompileString("query-config.json", `{
	"type": "object",
	"properties": {
		"search_query": {"type": "string", "minLength": 1},
		"base_url": {"type": "string", "minLength": 1},
		"max_results": {"type": "integer", "minimum": 1},
		"sort_by": {"type": "string"},
		"sort_order": {"type": "string", "enum": ["ascending", "descending"]}
	},
	"required": ["search_query"]
}`)

type queryConfig struct {
	SearchQuery string `json:"search_query"`
	BaseURL     string `json:"base_url"`
	MaxResults  int    `json:"max_results"`
	SortBy      string `json:"sort_by"`
	SortOrder   string `json:"sort_order"`
}

// queryConnector pages through a search API returning Atom XML. The cursor
// is a numeric start index; a page shorter than requested is the end of the
// result set.
type queryConnector struct {
	cfg    queryConfig
	client *http.Client
	parser *gofeed.Parser
	delay  time.Duration
	logger zerolog.Logger
}

func newQueryConnector(raw json.RawMessage, logger zerolog.Logger) (*queryConnector, error) {
	var cfg queryConfig
	if err := decodeConfig(queryConfigSchema, raw, &cfg); err != nil {
		return nil, fmt.Errorf("query connector: %w", err)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultQueryBaseURL
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = defaultQueryMaxResults
	}
	if cfg.SortBy == "" {
		cfg.SortBy = "submittedDate"
	}
	if cfg.SortOrder == "" {
		cfg.SortOrder = "descending"
	}
	return &queryConnector{
		cfg:    cfg,
		client: &http.Client{Timeout: 15 * time.Second},
		parser: gofeed.NewParser(),
		delay:  queryRequestDelay,
		logger: logger,
	}, nil
}

func (c *queryConnector) Name() string {
	return "query: " + c.cfg.SearchQuery
}

func (c *queryConnector) Fetch(ctx context.Context, cursor string, limit int) ([]RawItem, string, error) {
	start := 0
	if cursor != "" {
		parsed, err := strconv.Atoi(cursor)
		if err != nil {
			return nil, "", fmt.Errorf("query cursor %q: %w", cursor, err)
		}
		start = parsed
	}

	requested := limit
	if requested > c.cfg.MaxResults {
		requested = c.cfg.MaxResults
	}

	params := url.Values{}
	params.Set("search_query", c.cfg.SearchQuery)
	params.Set("start", strconv.Itoa(start))
	params.Set("max_results", strconv.Itoa(requested))
	params.Set("sortBy", c.cfg.SortBy)
	params.Set("sortOrder", c.cfg.SortOrder)

	feed, err := c.fetchPage(ctx, params)
	if err != nil {
		return nil, "", fmt.Errorf("query %s: %w", c.cfg.SearchQuery, err)
	}

	items := make([]RawItem, 0, len(feed.Items))
	for _, entry := range feed.Items {
		if entry.Link == "" {
			c.logger.Warn().Str("query", c.cfg.SearchQuery).Str("title", entry.Title).
				Msg("skipping query entry without id link")
			continue
		}

		title := strings.Join(strings.Fields(entry.Title), " ")
		if title == "" {
			title = "Untitled"
		}

		items = append(items, RawItem{
			Title:       title,
			URL:         entry.Link,
			PublishedAt: entry.PublishedParsed,
			Author:      joinAuthors(entry),
			Source:      c.Name(),
			Snippet:     truncate(strings.Join(strings.Fields(entry.Description), " "), querySnippetMaxLen),
			Signals: map[string]any{
				"categories": entry.Categories,
				"entry_id":   lastPathSegment(entry.Link),
			},
		})
	}

	// Pace requests regardless of outcome; the sleep is part of the
	// contract with the upstream.
	if err := sleepCtx(ctx, c.delay); err != nil {
		return nil, "", err
	}

	// A short page is the exhaustion signal: the next run must not resume
	// from a stale offset.
	nextCursor := ""
	if len(items) == requested && requested > 0 {
		nextCursor = strconv.Itoa(start + len(items))
	}

	return items, nextCursor, nil
}

func (c *queryConnector) fetchPage(ctx context.Context, params url.Values) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	feed, err := c.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse atom payload: %w", err)
	}
	return feed, nil
}

func joinAuthors(entry *gofeed.Item) string {
	names := make([]string, 0, len(entry.Authors))
	for _, author := range entry.Authors {
		if author != nil && author.Name != "" {
			names = append(names, author.Name)
		}
	}
	return strings.Join(names, ", ")
}

func lastPathSegment(link string) string {
	trimmed := strings.TrimRight(link, "/")
	if idx := strings.LastIndex(trimmed, "/"); idx >= 0 {
		return trimmed[idx+1:]
	}
	return trimmed
}
