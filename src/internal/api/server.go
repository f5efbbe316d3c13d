package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/maksimkurb/tunroute/src/internal/log"
)

// Server represents the API server
type Server struct {
	httpServer *http.Server
	listener   net.Listener

	// Request contexts derive from baseCtx so that Stop can end event streams.
	baseCtx    context.Context
	cancelBase context.CancelFunc
}

// NewServer creates a new API server
func NewServer(bindAddr string, handler *Handler) *Server {
	baseCtx, cancel := context.WithCancel(context.Background())
	return &Server{
		httpServer: &http.Server{
			Addr:        bindAddr,
			Handler:     NewRouter(handler),
			ReadTimeout: 15 * time.Second,
			// No WriteTimeout: event streams stay open.
			IdleTimeout: 60 * time.Second,
			BaseContext: func(net.Listener) context.Context { return baseCtx },
		},
		baseCtx:    baseCtx,
		cancelBase: cancel,
	}
}

// Start binds the listener and serves requests in the background. Errors after a
// successful bind are logged.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	s.listener = listener

	log.Infof("[API] Starting server on %s", listener.Addr())
	log.Infof("[API] Example: curl http://%s/api/v1/routes", listener.Addr())

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("[API] Server error: %v", err)
		}
	}()

	return nil
}

// Addr returns the bound address once the server has started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.httpServer.Addr
	}
	return s.listener.Addr().String()
}

// Stop gracefully stops the API server
func (s *Server) Stop(ctx context.Context) error {
	log.Infof("[API] Shutting down server...")
	s.cancelBase()
	return s.httpServer.Shutdown(ctx)
}
