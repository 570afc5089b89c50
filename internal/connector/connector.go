// Package connector provides a uniform fetch contract over heterogeneous
// upstreams. Three variants exist, selected by a per-source type tag: a
// syndication feed, a paginated listing API and a search-query API. Each
// variant owns its cursor format; the caller treats cursors as opaque.
package connector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const (
	TypeFeed    = "feed"
	TypeListing = "listing"
	TypeQuery   = "query"
)

// ErrUnknownType is returned for a source with an unrecognized type tag.
var ErrUnknownType = errors.New("unknown connector type")

// RawItem is a connector's output before any processing. It exists only
// within one fetch-to-persist cycle and is never stored as-is.
type RawItem struct {
	Title       string
	URL         string
	PublishedAt *time.Time
	Author      string
	Source      string
	Snippet     string
	Signals     map[string]any
}

// Connector fetches a page of items from one upstream. An empty cursor
// means "start from the beginning"; an empty next cursor means the variant
// has nothing to resume from. Per-item upstream failures are logged and
// swallowed; upstream-level failures are returned.
type Connector interface {
	Fetch(ctx context.Context, cursor string, limit int) (items []RawItem, nextCursor string, err error)
	Name() string
}

// New builds the connector for a source's type tag, validating the opaque
// config against the variant's schema. Configuration errors fail fast here,
// before any fetch is attempted.
func New(sourceType string, config json.RawMessage, logger zerolog.Logger) (Connector, error) {
	switch sourceType {
	case TypeFeed:
		return newFeedConnector(config, logger)
	case TypeListing:
		return newListingConnector(config, logger)
	case TypeQuery:
		return newQueryConnector(config, logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, sourceType)
	}
}

// decodeConfig validates raw config against the variant schema, then
// unmarshals it into the variant's typed config struct.
func decodeConfig(schema *jsonschema.Schema, raw json.RawMessage, out any) error {
	if len(raw) == 0 {
		raw = json.RawMessage(`{}`)
	}

	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return fmt.Errorf("parse connector config: %w", err)
	}
	if err := schema.Validate(generic); err != nil {
		return fmt.Errorf("validate connector config: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode connector config: %w", err)
	}
	return nil
}
