package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/sync/errgroup"

	"github.com/twinforge/twinforge/pkg/auth"
	"github.com/twinforge/twinforge/pkg/component"
	"github.com/twinforge/twinforge/pkg/config"
	"github.com/twinforge/twinforge/pkg/errdefs"
	"github.com/twinforge/twinforge/pkg/log"
	"github.com/twinforge/twinforge/pkg/metrics"
	"github.com/twinforge/twinforge/pkg/queue"
	"github.com/twinforge/twinforge/pkg/record"
)

// HealthCheck probes one dependency for the readiness endpoint.
type HealthCheck func(ctx context.Context) error

// Server composes the HTTP surface: global health and metrics routes plus
// every component's contributed endpoints under the configured base path.
type Server struct {
	cfg      *config.Config
	provider auth.Provider
	records  record.Store
	router   chi.Router

	httpSrv  *http.Server
	listener net.Listener

	shuttingDown atomic.Bool
	stopOnce     sync.Once
	stopErr      error

	mu     sync.Mutex
	checks map[string]HealthCheck
}

// New builds the server and its global routes. Components are mounted
// afterwards with MountComponent.
func New(cfg *config.Config, provider auth.Provider, records record.Store) *Server {
	s := &Server{
		cfg:      cfg,
		provider: provider,
		records:  records,
		checks:   make(map[string]HealthCheck),
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.metricsMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(s.bodyLimitMiddleware)
	if cfg.EnableCompression {
		r.Use(middleware.Compress(5))
	}
	if cfg.EnableCORS {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}
	r.Use(s.authMiddleware)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, errdefs.Newf(errdefs.KindNotFound, "no route for %s %s", r.Method, r.URL.Path))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, errdefs.Newf(errdefs.KindValidation, "method %s not allowed", r.Method))
	})

	r.Get(s.path("/healthz"), s.handleHealthz)
	r.Get(s.path("/readyz"), s.handleReadyz)
	r.Method(http.MethodGet, s.path("/metrics"), metrics.Handler())

	s.router = r
	return s
}

// path prefixes a route with the configured base path.
func (s *Server) path(p string) string {
	base := strings.TrimSuffix(s.cfg.BasePath, "/")
	return base + p
}

// MountComponent registers a component's endpoints under its endpoint
// prefix. An unsupported method fails the mount, and with it startup.
func (s *Server) MountComponent(cfg component.Configuration, srv component.Servable) error {
	prefix := cfg.Endpoint
	if prefix == "" {
		prefix = "/" + cfg.Name
	}
	prefix = strings.TrimSuffix(prefix, "/")

	for _, spec := range srv.Endpoints() {
		if err := component.ValidateEndpoint(spec); err != nil {
			return errdefs.Wrap(errdefs.KindConfiguration, fmt.Sprintf("component %s", cfg.Name), err)
		}
		route := prefix + spec.Path
		if spec.Path == "/" {
			route = prefix
		}
		s.router.Method(spec.Method, s.path(route), s.wrap(spec.Handler))
		log.Logger.Debug().Str("component", cfg.Name).Str("route", spec.Method+" "+s.path(route)).Msg("endpoint mounted")
	}
	return nil
}

// MountQueueStats exposes the queue depth counters.
func (s *Server) MountQueueStats(q queue.Queue) {
	s.router.Get(s.path("/queues/stats"), func(w http.ResponseWriter, r *http.Request) {
		stats, err := q.Stats(r.Context())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		for name, st := range stats {
			metrics.QueueDepth.WithLabelValues(string(name), "ready").Set(float64(st.Ready))
			metrics.QueueDepth.WithLabelValues(string(name), "delayed").Set(float64(st.Delayed))
		}
		writeJSON(w, http.StatusOK, stats)
	})
}

// AddHealthCheck registers a named readiness probe.
func (s *Server) AddHealthCheck(name string, check HealthCheck) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[name] = check
}

// wrap adapts a component handler to the HTTP surface: its response is
// forwarded verbatim, its error rendered as the structured envelope.
func (s *Server) wrap(h component.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp, err := h(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if resp == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		for k, v := range resp.Headers {
			w.Header().Set(k, v)
		}
		if resp.ContentType != "" {
			w.Header().Set("Content-Type", resp.ContentType)
		}
		status := resp.Status
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
		w.Write(resp.Content)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if s.shuttingDown.Load() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "shutting down"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.shuttingDown.Load() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "shutting down"})
		return
	}

	s.mu.Lock()
	checks := make(map[string]HealthCheck, len(s.checks))
	for name, check := range s.checks {
		checks[name] = check
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var (
		resultsMu sync.Mutex
		results   = make(map[string]string, len(checks))
		healthy   = true
	)
	var g errgroup.Group
	for name, check := range checks {
		g.Go(func() error {
			err := check(ctx)
			resultsMu.Lock()
			defer resultsMu.Unlock()
			if err != nil {
				results[name] = err.Error()
				healthy = false
			} else {
				results[name] = "ok"
			}
			return nil
		})
	}
	g.Wait()

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]interface{}{"healthy": healthy, "checks": results})
}

// Start binds the listener and begins serving. Port 0 binds any free port;
// ActualPort reports the bound one.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", addr, err)
	}
	s.listener = ln
	s.httpSrv = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Logger.Error().Err(err).Msg("http server stopped unexpectedly")
		}
	}()

	log.Logger.Info().Str("addr", ln.Addr().String()).Msg("http server listening")
	return nil
}

// ActualPort returns the port the listener is bound to.
func (s *Server) ActualPort() int {
	if s.listener == nil {
		return 0
	}
	return s.listener.Addr().(*net.TCPAddr).Port
}

// Handler exposes the composed router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Stop marks the server as shutting down and closes the listener. Safe to
// call more than once; later calls return promptly.
func (s *Server) Stop(ctx context.Context) error {
	s.shuttingDown.Store(true)
	s.stopOnce.Do(func() {
		if s.httpSrv != nil {
			s.stopErr = s.httpSrv.Shutdown(ctx)
		}
	})
	return s.stopErr
}
