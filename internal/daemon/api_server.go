package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"dealflow/internal/config"
	"dealflow/internal/logging"
)

type apiServer struct {
	bind            string
	logger          *slog.Logger
	shutdownTimeout time.Duration

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, handler http.Handler, logger *slog.Logger) *apiServer {
	timeout := time.Duration(cfg.API.ShutdownTimeout) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &apiServer{
		bind:            strings.TrimSpace(cfg.API.Bind),
		logger:          logger,
		shutdownTimeout: timeout,
		server: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
		s.logger.Info("api server disabled; no bind address configured")
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		s.shutdown()
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	s.shutdown()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
}

func (s *apiServer) address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.bind
	}
	return s.listener.Addr().String()
}
