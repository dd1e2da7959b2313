// Package server wires the HTTP surface together: it owns the stores, the
// queue connection, and the orchestrator, enriches every request context
// with them, and registers the endpoint routes.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/pagevoice/pagevoice/internal/api"
	"github.com/pagevoice/pagevoice/internal/audio"
	"github.com/pagevoice/pagevoice/internal/blobstore"
	"github.com/pagevoice/pagevoice/internal/config"
	"github.com/pagevoice/pagevoice/internal/docstore"
	"github.com/pagevoice/pagevoice/internal/jobs"
	"github.com/pagevoice/pagevoice/internal/ledger"
	"github.com/pagevoice/pagevoice/internal/orchestrator"
	"github.com/pagevoice/pagevoice/internal/server/endpoints"
	"github.com/pagevoice/pagevoice/internal/svcctx"
	"github.com/pagevoice/pagevoice/internal/taskqueue"
)

// Server is the main PageVoice HTTP server.
type Server struct {
	httpServer *http.Server
	configMgr  *config.Manager
	logger     *slog.Logger

	nc       *nats.Conn
	docs     docstore.Store
	services *svcctx.Services

	endpointRegistry *api.Registry

	mu      sync.RWMutex
	running bool
}

// New creates a server from the given config manager.
func New(cm *config.Manager, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		configMgr: cm,
		logger:    logger,
	}

	s.endpointRegistry = api.NewRegistry()
	for _, ep := range endpoints.All() {
		s.endpointRegistry.Register(ep)
	}

	mux := http.NewServeMux()
	s.endpointRegistry.RegisterRoutes(mux, s.requireInit)

	cfg := cm.Get()
	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      s.withServices(mux),
		ReadTimeout:  5 * time.Minute, // uploads
		WriteTimeout: 5 * time.Minute, // merged audio downloads
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Start connects the backing services and serves HTTP. It blocks until the
// context is cancelled or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	cfg := s.configMgr.Get()

	docs, err := docstore.OpenSQLite(cfg.Store.SQLitePath)
	if err != nil {
		s.setNotRunning()
		return fmt.Errorf("open document store: %w", err)
	}
	s.docs = docs

	s.logger.Info("connecting to NATS", "url", cfg.NATS.URL)
	nc, err := nats.Connect(cfg.NATS.URL, nats.Name("pagevoice-server"))
	if err != nil {
		_ = docs.Close()
		s.setNotRunning()
		return fmt.Errorf("connect to NATS: %w", err)
	}
	s.nc = nc

	js, err := nc.JetStream()
	if err != nil {
		_ = s.shutdown()
		return fmt.Errorf("get JetStream context: %w", err)
	}

	blobs, err := blobstore.NewNATSStore(js, cfg.NATS.BlobBucket)
	if err != nil {
		_ = s.shutdown()
		return fmt.Errorf("create blob store: %w", err)
	}

	queue, err := taskqueue.NewNATSQueue(js, s.logger)
	if err != nil {
		_ = s.shutdown()
		return fmt.Errorf("create task queue: %w", err)
	}

	jobStore := jobs.NewStore(docs)
	creditLedger := ledger.New(docs)
	orch := orchestrator.New(jobStore, creditLedger, queue, cfg.Costs,
		orchestrator.WithMaxPagesPerBatch(cfg.Limits.MaxPagesPerBatch),
		orchestrator.WithLogger(s.logger))
	reassembler := audio.NewReassembler(blobs,
		audio.WithFetchConcurrency(cfg.Limits.FetchConcurrency),
		audio.WithMergeTimeout(time.Duration(cfg.Limits.MergeTimeoutSec)*time.Second))

	s.services = &svcctx.Services{
		DocStore:     docs,
		BlobStore:    blobs,
		Queue:        queue,
		Ledger:       creditLedger,
		JobStore:     jobStore,
		Orchestrator: orch,
		Reassembler:  reassembler,
		ConfigMgr:    s.configMgr,
		Logger:       s.logger,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			_ = s.shutdown()
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	return s.shutdown()
}

func (s *Server) shutdown() error {
	s.logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	if s.nc != nil {
		s.nc.Close()
		s.nc = nil
	}
	if s.docs != nil {
		if err := s.docs.Close(); err != nil {
			s.logger.Error("document store close error", "error", err)
		}
		s.docs = nil
	}

	s.setNotRunning()
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) setNotRunning() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Services returns the wired service set, nil before Start.
func (s *Server) Services() *svcctx.Services {
	return s.services
}

// withServices wraps a handler to enrich the request context with services.
func (s *Server) withServices(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if s.services != nil {
			ctx = svcctx.WithServices(ctx, s.services)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireInit is middleware that ensures the server is fully initialized.
func (s *Server) requireInit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.services == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"server not fully initialized"}`))
			return
		}
		next(w, r)
	}
}
