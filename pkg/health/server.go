package health

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/innoq/project-selfservice-operator/pkg/logger"
)

// Server exposes /healthz and /readyz for the operator's Kubernetes
// liveness and readiness probes. Liveness is unconditional once the
// process is up; readiness flips true when main calls SetConfigLoaded,
// after the configuration is loaded and the reconciler has been started.
// It does not wait for the informer cache to sync.
type Server struct {
	server *http.Server
	log    logger.Logger
	port   string
	ready  atomic.Bool
}

// NewServer creates a health server bound to port.
func NewServer(log logger.Logger, port, component string) *Server {
	s := &Server{log: log, port: port}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if !s.ready.Load() {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	s.server = &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start starts the health server in a goroutine.
func (s *Server) Start(ctx context.Context) error {
	s.log.Infof(ctx, "Starting health server on port %s", s.port)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCtx := logger.WithErrorField(ctx, err)
			s.log.Errorf(errCtx, "Health server error")
		}
	}()

	return nil
}

// SetReady marks the operator ready; /readyz starts returning 200.
func (s *Server) SetReady() {
	s.ready.Store(true)
}

// SetConfigLoaded is an alias for SetReady kept for the startup
// sequence's readability: config loading is the last gate before an
// operator instance is considered ready to reconcile.
func (s *Server) SetConfigLoaded() {
	s.SetReady()
}

// SetShuttingDown flips /readyz back to failing once a shutdown signal
// has been received, so a load balancer or the API server stops
// routing admission requests to a process that is about to exit.
func (s *Server) SetShuttingDown(down bool) {
	s.ready.Store(!down)
}

// Shutdown gracefully shuts down the health server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info(ctx, "Shutting down health server...")
	return s.server.Shutdown(ctx)
}
