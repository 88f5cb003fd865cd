// Package api exposes the conversation and deliberation HTTP surface.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/conclave-labs/conclave/pkg/config"
	"github.com/conclave-labs/conclave/pkg/council"
	"github.com/conclave-labs/conclave/pkg/events"
	"github.com/conclave-labs/conclave/pkg/store"
)

// Deliberator runs one council deliberation for a user message.
// Implemented by council.Orchestrator.
type Deliberator interface {
	ValidatePrompt(prompt string) error
	Run(ctx context.Context, req council.RunRequest, sink events.Sink) (*council.RunResult, error)
}

// Server is the HTTP server for the conversation API.
type Server struct {
	cfg         *config.Config
	store       *store.Store
	deliberator Deliberator
	echo        *echo.Echo
	httpServer  *http.Server
}

// NewServer wires the server and registers its routes.
func NewServer(cfg *config.Config, st *store.Store, deliberator Deliberator) *Server {
	s := &Server{
		cfg:         cfg,
		store:       st,
		deliberator: deliberator,
		echo:        echo.New(),
	}
	s.registerRoutes()
	s.httpServer = &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) registerRoutes() {
	s.echo.Use(securityHeaders())
	s.echo.Use(corsHeaders(s.cfg.CORSAllowOrigins))

	s.echo.GET("/", s.indexHandler)
	s.echo.GET("/health", s.healthHandler)

	s.echo.GET("/api/conversations", s.listConversationsHandler)
	s.echo.POST("/api/conversations", s.createConversationHandler)
	s.echo.GET("/api/conversations/:id", s.getConversationHandler)
	s.echo.DELETE("/api/conversations/:id", s.deleteConversationHandler)
	s.echo.POST("/api/conversations/:id/messages", s.postMessageHandler)
	s.echo.POST("/api/conversations/:id/messages/stream", s.postMessageStreamHandler)
}

// Handler exposes the underlying handler for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves HTTP until Shutdown is called or the listener fails.
func (s *Server) Start() error {
	slog.Info("HTTP server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
