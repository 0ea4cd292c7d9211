package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/haukened/navguard/internal/guard/common/log"
)

// Server runs the HTTP handler on a TCP listener.
type Server struct {
	addr    string
	handler http.Handler
	logger  log.Logger

	mu      sync.RWMutex
	srv     *http.Server
	ln      net.Listener
	running bool
}

func NewServer(addr string, handler http.Handler, logger log.Logger) *Server {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Server{addr: addr, handler: handler, logger: logger}
}

// Start binds the listener and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("HTTP server already running")
	}
	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.ln = ln
	s.srv = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		// requests keep ctx's values but not its cancellation, so Stop drains them
		BaseContext: func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	s.running = true

	s.logger.Info(map[string]any{"address": ln.Addr().String()}, "HTTP API started")

	go func(srv *http.Server, ln net.Listener) {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error(map[string]any{"error": err.Error()}, "HTTP API stopped unexpectedly")
		}
	}(s.srv, ln)
	return nil
}

// Stop drains in-flight requests until ctx is done.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false
	err := s.srv.Shutdown(ctx)
	s.logger.Info(map[string]any{"address": s.ln.Addr().String()}, "HTTP API stopped")
	return err
}

// Address returns the bound address while running, else the configured one.
func (s *Server) Address() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.running && s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}
