// Package api is the agent's local HTTP surface: definition management,
// run control and artifact streaming, served on loopback only.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/kirinuki/kirinuki-agent/internal/catalog"
	"github.com/kirinuki/kirinuki-agent/internal/pipelines"
)

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

type ServerConfig struct {
	Port int

	// Token guards /api routes when non-empty; /healthz is always open.
	Token string

	Catalog catalog.CatalogService
	Runner  *catalog.Runner

	// Doctor backs /api/doctor; nil disables the endpoint.
	Doctor *pipelines.CachedDoctor

	// RunsDir locates artifacts for runs recorded before an artifact dir
	// was assigned.
	RunsDir string

	Version   string
	Logger    *slog.Logger
	StartTime time.Time
}

func NewServer(cfg ServerConfig) *Server {
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	router := NewRouter(cfg)

	return &Server{
		httpServer: &http.Server{
			Addr:        fmt.Sprintf("127.0.0.1:%d", cfg.Port),
			Handler:     router,
			ReadTimeout: 15 * time.Second,
			// Streaming a long render exceeds any sane write timeout.
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}
