package httpapi

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"horse.fit/radar/internal/db"
)

func (s *Server) handleFeed(c echo.Context) error {
	page, err := parsePositiveInt(c.QueryParam("page"), 1, 1, 1_000_000)
	if err != nil {
		return failValidation(c, map[string]string{"page": err.Error()})
	}
	pageSize, err := parsePositiveInt(c.QueryParam("page_size"), defaultPageSize, 1, maxPageSize)
	if err != nil {
		return failValidation(c, map[string]string{"page_size": err.Error()})
	}

	sort := strings.TrimSpace(strings.ToLower(c.QueryParam("sort")))
	switch sort {
	case "", db.FeedSortTop, db.FeedSortNew, db.FeedSortUnique:
	default:
		return failValidation(c, map[string]string{"sort": "must be one of top, new, unique"})
	}

	sourceID := int64(0)
	if raw := strings.TrimSpace(c.QueryParam("source_id")); raw != "" {
		sourceID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || sourceID < 1 {
			return failValidation(c, map[string]string{"source_id": "must be a positive integer"})
		}
	}

	opts := db.FeedOptions{
		Sort:     sort,
		Topic:    strings.TrimSpace(c.QueryParam("topic")),
		SourceID: sourceID,
		Page:     page,
		PageSize: pageSize,
	}

	items, total, err := s.pool.ListFeed(c.Request().Context(), opts)
	if err != nil {
		s.logger.Error().Err(err).Msg("query feed failed")
		return internalError(c, "Failed to load feed")
	}
	return paginated(c, items, page, pageSize, total)
}

func (s *Server) handleSearch(c echo.Context) error {
	query := strings.TrimSpace(c.QueryParam("q"))
	if query == "" {
		return failValidation(c, map[string]string{"q": "is required"})
	}

	page, err := parsePositiveInt(c.QueryParam("page"), 1, 1, 1_000_000)
	if err != nil {
		return failValidation(c, map[string]string{"page": err.Error()})
	}
	pageSize, err := parsePositiveInt(c.QueryParam("page_size"), defaultPageSize, 1, maxPageSize)
	if err != nil {
		return failValidation(c, map[string]string{"page_size": err.Error()})
	}

	items, total, err := s.pool.SearchItems(c.Request().Context(), query, page, pageSize)
	if err != nil {
		s.logger.Error().Err(err).Str("q", query).Msg("search failed")
		return internalError(c, "Failed to search items")
	}
	return paginated(c, items, page, pageSize, total)
}

func (s *Server) handleItem(c echo.Context) error {
	id, err := strconv.ParseInt(strings.TrimSpace(c.Param("id")), 10, 64)
	if err != nil || id < 1 {
		return failValidation(c, map[string]string{"id": "must be a positive integer"})
	}

	detail, err := s.pool.GetItem(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrItemNotFound) {
			return failNotFound(c, "Item not found")
		}
		s.logger.Error().Err(err).Int64("item_id", id).Msg("query item failed")
		return internalError(c, "Failed to load item")
	}

	return success(c, map[string]any{
		"item":        detail,
		"explanation": explainItem(detail),
	})
}

// explainItem phrases the persisted scores for the detail view. No scoring
// happens on the read path.
func explainItem(detail *db.ItemDetail) string {
	if detail.DuplicateOfItemID != nil {
		return "Near-duplicate of previously seen content."
	}
	switch {
	case detail.NoveltyScore >= 0.8:
		return "Highly novel: little overlap with anything seen in the last month."
	case detail.NoveltyScore >= 0.5:
		return "Moderately novel relative to recently ingested content."
	default:
		return "Similar to recently ingested content."
	}
}

func parsePositiveInt(raw string, defaultValue, minValue, maxValue int) (int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("must be an integer")
	}
	if value < minValue || value > maxValue {
		return 0, fmt.Errorf("must be between %d and %d", minValue, maxValue)
	}
	return value, nil
}
