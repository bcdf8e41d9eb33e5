// Package devserver implements the fusion development server.
//
// The server fronts one chunk loader: chunk requests go through the
// loader's single-flight table, load failures reported from outside go
// through its installed error hook, and the current build manifest is
// exposed for inspection.
package devserver

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/lhorie/fusion-cli/internal/logger"
	"github.com/lhorie/fusion-cli/pkg/config"
)

// Server provides the dev server HTTP frontend.
//
// The server supports graceful shutdown with configurable timeout.
type Server struct {
	server       *http.Server
	cfg          config.ServerConfig
	shutdownOnce sync.Once
}

// NewServer creates a new dev server.
//
// The server is created in a stopped state. Call Start() to begin serving
// requests.
//
// Parameters:
//   - cfg: Server configuration (port, timeouts)
//   - handlers: Route handlers bound to a loader and manifest source
//
// Returns a configured but not yet started Server.
func NewServer(cfg config.ServerConfig, handlers *Handlers) *Server {
	router := NewRouter(handlers, cfg.WriteTimeout)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &Server{
		server: server,
		cfg:    cfg,
	}
}

// Start starts the dev server and blocks until the context is cancelled or
// an error occurs.
//
// When the context is cancelled, Start initiates graceful shutdown and
// returns.
//
// Returns:
//   - nil on graceful shutdown
//   - error if the server fails to start or shutdown encounters an error
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		logger.Info("dev server listening", logger.KeyPort, s.cfg.Port)
		logger.Debug("endpoints available",
			"chunks", fmt.Sprintf("http://localhost:%d/chunks/{id}", s.cfg.Port),
			"manifest", fmt.Sprintf("http://localhost:%d/manifest", s.cfg.Port),
			"health", fmt.Sprintf("http://localhost:%d/health", s.cfg.Port),
		)

		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			select {
			case errChan <- err:
			default:
				// Context was cancelled, error is not needed
			}
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("dev server shutdown signal received")
		// Create new context with timeout for graceful shutdown
		// Don't use the cancelled ctx as it would cause immediate shutdown
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout())
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("dev server failed: %w", err)
	}
}

// Stop initiates graceful shutdown of the dev server.
//
// Stop is safe to call multiple times and safe to call concurrently with
// Start().
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		logger.Debug("dev server shutdown initiated")

		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("dev server shutdown error: %w", err)
			logger.Error("dev server shutdown error", logger.KeyError, err)
		} else {
			logger.Info("dev server stopped gracefully")
		}
	})
	return shutdownErr
}

// Port returns the TCP port the server is configured to listen on.
func (s *Server) Port() int {
	return s.cfg.Port
}

func (s *Server) shutdownTimeout() time.Duration {
	if s.cfg.ShutdownTimeout > 0 {
		return s.cfg.ShutdownTimeout
	}
	return 5 * time.Second
}
