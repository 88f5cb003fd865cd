package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/conclave-labs/conclave/pkg/version"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusUnhealthy = "unhealthy"
)

// indexHandler handles GET /. Identifies the service for probes and humans.
func (s *Server) indexHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, &IndexResponse{
		Service: version.AppName,
		Version: version.Full(),
	})
}

// healthHandler handles GET /health.
// Only the conversation store is checked; the model gateway is external and
// its availability must not flap this endpoint.
func (s *Server) healthHandler(c *echo.Context) error {
	reqCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	resp := &HealthResponse{
		Status:  healthStatusHealthy,
		Version: version.Full(),
		Store:   healthStatusHealthy,
	}
	httpStatus := http.StatusOK

	if _, err := s.store.List(reqCtx); err != nil {
		resp.Status = healthStatusUnhealthy
		resp.Store = err.Error()
		httpStatus = http.StatusServiceUnavailable
	}
	return c.JSON(httpStatus, resp)
}
