package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/conclave-labs/conclave/pkg/council"
	"github.com/conclave-labs/conclave/pkg/store"
)

// mapStoreError maps store-layer errors to HTTP error responses.
func mapStoreError(err error) *echo.HTTPError {
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
	}
	slog.Error("Unexpected store error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}

// mapBoundaryError maps the orchestrator's fatal boundary errors to HTTP
// error responses. These are the only run errors that surface as a status
// code; mid-run failures degrade into the message payload instead.
func mapBoundaryError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, council.ErrPromptTooLarge):
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, council.ErrEmptyPrompt):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, council.ErrMissingAPIKey):
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	slog.Error("Unexpected deliberation error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
