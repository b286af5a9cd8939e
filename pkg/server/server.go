// Package server exposes the question pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/lakeglass/lakeglass/pkg/orchestrator"
)

const (
	defaultShutdownTimeout   = 10 * time.Second
	defaultReadHeaderTimeout = 10 * time.Second
)

// Pipeline answers questions and generates overviews. Satisfied by
// *orchestrator.Orchestrator.
type Pipeline interface {
	Answer(ctx context.Context, question string) (*orchestrator.Answer, error)
	Overview(ctx context.Context) (*orchestrator.Overview, error)
}

// TableLister enumerates loaded tables. Satisfied by *store.Store.
type TableLister interface {
	Tables(ctx context.Context) ([]string, error)
}

// Refresher re-ingests the data directory and invalidates cached profiles.
// Wired up in cmd from the store and the profile provider.
type Refresher interface {
	Refresh(ctx context.Context) ([]string, error)
}

// RefresherFunc adapts a function to the Refresher interface.
type RefresherFunc func(ctx context.Context) ([]string, error)

func (f RefresherFunc) Refresh(ctx context.Context) ([]string, error) { return f(ctx) }

type Config struct {
	Logger    *slog.Logger
	Listener  net.Listener
	Pipeline  Pipeline
	Tables    TableLister
	Refresher Refresher

	ShutdownTimeout   time.Duration
	ReadHeaderTimeout time.Duration
	// MaxBodySize caps request bodies; zero means the 1MB default.
	MaxBodySize int64
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Listener == nil {
		return errors.New("listener is required")
	}
	if c.Pipeline == nil {
		return errors.New("pipeline is required")
	}
	if c.Tables == nil {
		return errors.New("table lister is required")
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = defaultShutdownTimeout
	}
	if c.ReadHeaderTimeout == 0 {
		c.ReadHeaderTimeout = defaultReadHeaderTimeout
	}
	if c.MaxBodySize == 0 {
		c.MaxBodySize = 1 << 20
	}
	return nil
}

type Server struct {
	log      *slog.Logger
	cfg      Config
	httpSrv  *http.Server
	listener net.Listener
}

func New(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate server config: %w", err)
	}

	s := &Server{log: cfg.Logger, cfg: cfg, listener: cfg.Listener}

	mux := http.NewServeMux()
	handler := &Handler{log: cfg.Logger, cfg: cfg}
	handler.Register(mux)

	s.httpSrv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
	return s, nil
}

func (s *Server) Run(ctx context.Context) error {
	serveErrCh := make(chan error, 1)

	go func() {
		if err := s.httpSrv.Serve(s.listener); err != nil && err != http.ErrServerClosed {
			s.log.Error("server: http server error", "error", err)
			serveErrCh <- fmt.Errorf("failed to serve HTTP: %w", err)
		}
	}()
	s.log.Info("server: http listening", "address", s.listener.Addr())

	select {
	case <-ctx.Done():
		s.log.Info("server: stopping", "reason", ctx.Err())
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer shutdownCancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shutdown HTTP server: %w", err)
		}
		s.log.Info("server: shutdown complete")
		return nil
	case err := <-serveErrCh:
		return err
	}
}
