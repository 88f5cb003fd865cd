package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// listConversationsHandler handles GET /api/conversations.
func (s *Server) listConversationsHandler(c *echo.Context) error {
	summaries, err := s.store.List(c.Request().Context())
	if err != nil {
		return mapStoreError(err)
	}
	return c.JSON(http.StatusOK, &ConversationListResponse{Conversations: summaries})
}

// createConversationHandler handles POST /api/conversations.
func (s *Server) createConversationHandler(c *echo.Context) error {
	conv, err := s.store.Create(c.Request().Context())
	if err != nil {
		return mapStoreError(err)
	}
	return c.JSON(http.StatusCreated, conv)
}

// getConversationHandler handles GET /api/conversations/:id.
func (s *Server) getConversationHandler(c *echo.Context) error {
	conv, err := s.store.Load(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapStoreError(err)
	}
	return c.JSON(http.StatusOK, conv)
}

// deleteConversationHandler handles DELETE /api/conversations/:id.
func (s *Server) deleteConversationHandler(c *echo.Context) error {
	if err := s.store.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return mapStoreError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
