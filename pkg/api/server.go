package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/modelcached/modelcached/internal/logger"
)

// Server is the HTTP API server.
type Server struct {
	config     Config
	httpServer *http.Server

	errChan      chan error
	shutdownOnce sync.Once
}

// NewServer creates an API server around the given handler.
func NewServer(config Config, handler http.Handler) *Server {
	config.ApplyDefaults()

	return &Server{
		config: config,
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", config.Port),
			Handler:      handler,
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
			IdleTimeout:  config.IdleTimeout,
		},
		errChan: make(chan error, 1),
	}
}

// Start begins serving in a goroutine. Fatal listener errors are delivered
// on the channel returned by Errors.
func (s *Server) Start() {
	logger.Info("API server starting", "port", s.config.Port)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.errChan <- fmt.Errorf("API server failed: %w", err)
		}
	}()
}

// Errors returns the channel fatal server errors are delivered on.
func (s *Server) Errors() <-chan error {
	return s.errChan
}

// Stop gracefully shuts down the server, waiting for in-flight requests up
// to the context deadline. Safe to call more than once.
func (s *Server) Stop(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		logger.Info("API server shutting down")
		err = s.httpServer.Shutdown(ctx)
	})
	return err
}
