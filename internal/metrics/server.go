// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics serves the process metrics over HTTP for prometheus to scrape.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tombee/rerun/internal/log"
)

// Path is the URL path metrics are served on.
const Path = "/metrics"

// Server manages the lifecycle of the metrics HTTP server.
type Server struct {
	addr   string
	logger *slog.Logger
	server *http.Server

	mu   sync.RWMutex
	ln   net.Listener
	done chan struct{}
}

// New creates a metrics server for addr. Nothing listens until Start.
func New(addr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = log.Discard()
	}

	mux := http.NewServeMux()
	mux.Handle(Path, promhttp.Handler())

	return &Server{
		addr:   addr,
		logger: log.WithComponent(logger, "metrics"),
		server: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}
}

// Start binds the listener and serves in the background. A bind failure is
// returned directly so callers can report a bad address before running.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	s.mu.Lock()
	s.ln = ln
	s.done = make(chan struct{})
	s.mu.Unlock()

	s.logger.Info("metrics server starting", slog.String("listen_addr", ln.Addr().String()))

	go func() {
		defer close(s.done)
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Warn("metrics server stopped", log.Error(err))
		}
	}()

	return nil
}

// Shutdown stops the server, waiting for in-flight scrapes up to ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	started := s.ln != nil
	done := s.done
	s.mu.RUnlock()
	if !started {
		return nil
	}

	s.server.SetKeepAlivesEnabled(false)
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Warn("metrics server shutdown error", log.Error(err))
		return err
	}
	<-done

	s.logger.Debug("metrics server stopped")
	return nil
}

// Addr returns the listener address, or empty string if not started.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}
