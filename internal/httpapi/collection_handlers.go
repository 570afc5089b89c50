package httpapi

import (
	"errors"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"horse.fit/radar/internal/db"
)

// userTokenHeader identifies an anonymous collection owner. There are no
// accounts; whoever holds the token owns its collections.
const userTokenHeader = "X-User-Token"

const maxCollectionNameLen = 120

func userToken(c echo.Context) string {
	return strings.TrimSpace(c.Request().Header.Get(userTokenHeader))
}

type createCollectionRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleCreateCollection(c echo.Context) error {
	token := userToken(c)
	if token == "" {
		return failUnauthorized(c, "X-User-Token header is required")
	}

	var payload createCollectionRequest
	if err := decodeJSONBody(c, &payload); err != nil {
		return failValidation(c, map[string]string{"body": err.Error()})
	}
	name := strings.TrimSpace(payload.Name)
	if name == "" {
		return failValidation(c, map[string]string{"name": "is required"})
	}
	if len(name) > maxCollectionNameLen {
		return failValidation(c, map[string]string{"name": "is too long"})
	}

	collection, err := s.pool.CreateCollection(c.Request().Context(), token, name)
	if err != nil {
		s.logger.Error().Err(err).Msg("create collection failed")
		return internalError(c, "Failed to create collection")
	}
	return created(c, collection)
}

func (s *Server) handleListCollections(c echo.Context) error {
	token := userToken(c)
	if token == "" {
		return failUnauthorized(c, "X-User-Token header is required")
	}

	collections, err := s.pool.ListCollections(c.Request().Context(), token)
	if err != nil {
		s.logger.Error().Err(err).Msg("list collections failed")
		return internalError(c, "Failed to load collections")
	}
	return success(c, map[string]any{"items": collections})
}

type saveItemRequest struct {
	ItemID int64   `json:"item_id"`
	Notes  *string `json:"notes,omitempty"`
}

func (s *Server) handleSaveItem(c echo.Context) error {
	token := userToken(c)
	if token == "" {
		return failUnauthorized(c, "X-User-Token header is required")
	}

	collectionID, err := strconv.ParseInt(strings.TrimSpace(c.Param("id")), 10, 64)
	if err != nil || collectionID < 1 {
		return failValidation(c, map[string]string{"id": "must be a positive integer"})
	}

	var payload saveItemRequest
	if err := decodeJSONBody(c, &payload); err != nil {
		return failValidation(c, map[string]string{"body": err.Error()})
	}
	if payload.ItemID < 1 {
		return failValidation(c, map[string]string{"item_id": "must be a positive integer"})
	}

	err = s.pool.SaveItem(c.Request().Context(), token, collectionID, payload.ItemID, payload.Notes)
	switch {
	case errors.Is(err, db.ErrCollectionNotFound):
		return failNotFound(c, "Collection not found")
	case errors.Is(err, db.ErrItemNotFound):
		return failNotFound(c, "Item not found")
	case errors.Is(err, db.ErrAlreadySaved):
		return failConflict(c, "Item already saved to this collection")
	case err != nil:
		s.logger.Error().Err(err).Int64("collection_id", collectionID).Msg("save item failed")
		return internalError(c, "Failed to save item")
	}

	return created(c, map[string]any{
		"collection_id": collectionID,
		"item_id":       payload.ItemID,
	})
}

func (s *Server) handleListSavedItems(c echo.Context) error {
	token := userToken(c)
	if token == "" {
		return failUnauthorized(c, "X-User-Token header is required")
	}

	collectionID, err := strconv.ParseInt(strings.TrimSpace(c.Param("id")), 10, 64)
	if err != nil || collectionID < 1 {
		return failValidation(c, map[string]string{"id": "must be a positive integer"})
	}

	entries, err := s.pool.ListSavedItems(c.Request().Context(), token, collectionID)
	if err != nil {
		if errors.Is(err, db.ErrCollectionNotFound) {
			return failNotFound(c, "Collection not found")
		}
		s.logger.Error().Err(err).Int64("collection_id", collectionID).Msg("list saved items failed")
		return internalError(c, "Failed to load saved items")
	}
	return success(c, map[string]any{"items": entries})
}
