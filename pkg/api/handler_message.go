package api

import (
	"net/http"
	"strings"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/conclave-labs/conclave/pkg/council"
	"github.com/conclave-labs/conclave/pkg/events"
	"github.com/conclave-labs/conclave/pkg/roles"
)

// postMessageHandler handles POST /api/conversations/:id/messages, the
// non-streaming fallback: the full run executes, then the assistant message
// is returned as one JSON document. The client may synthesize the event
// sequence locally from it.
func (s *Server) postMessageHandler(c *echo.Context) error {
	runReq, httpErr := s.prepareRun(c)
	if httpErr != nil {
		return httpErr
	}

	result, err := s.deliberator.Run(c.Request().Context(), *runReq, events.NewCollector())
	if err != nil {
		return mapBoundaryError(err)
	}
	return c.JSON(http.StatusOK, result.Message)
}

// postMessageStreamHandler handles POST /api/conversations/:id/messages/stream.
// Stage events are pushed as server-sent events while the run executes.
func (s *Server) postMessageStreamHandler(c *echo.Context) error {
	runReq, httpErr := s.prepareRun(c)
	if httpErr != nil {
		return httpErr
	}

	h := c.Response().Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	c.Response().WriteHeader(http.StatusOK)

	sink := events.NewSSESink(c.Response())
	// Boundary errors were already rejected above; a run error here has
	// already been emitted on the stream.
	_, _ = s.deliberator.Run(c.Request().Context(), *runReq, sink)
	return nil
}

// prepareRun validates the request, records the user turn, and builds the
// council run request. All boundary rejections happen here, before any
// stage runs or stream bytes are written.
func (s *Server) prepareRun(c *echo.Context) (*council.RunRequest, *echo.HTTPError) {
	ctx := c.Request().Context()
	conversationID := c.Param("id")

	var req PostMessageRequest
	if err := c.Bind(&req); err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := s.deliberator.ValidatePrompt(req.Content); err != nil {
		return nil, mapBoundaryError(err)
	}

	contractIDs, err := roles.ParseContractStack(strings.Join(req.Contracts, ","))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	hasTitle, err := s.store.HasTitle(ctx, conversationID)
	if err != nil {
		return nil, mapStoreError(err)
	}

	if err := s.store.AppendMessage(ctx, conversationID, &userMessage{
		Role:      "user",
		Content:   req.Content,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		return nil, mapStoreError(err)
	}

	return &council.RunRequest{
		ConversationID: conversationID,
		Prompt:         req.Content,
		ContractIDs:    contractIDs,
		GenerateTitle:  !hasTitle,
	}, nil
}
