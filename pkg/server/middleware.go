package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/twinforge/twinforge/pkg/auth"
	"github.com/twinforge/twinforge/pkg/config"
	"github.com/twinforge/twinforge/pkg/errdefs"
	"github.com/twinforge/twinforge/pkg/log"
	"github.com/twinforge/twinforge/pkg/metrics"
	"github.com/twinforge/twinforge/pkg/types"
)

type contextKey int

const requestIDKey contextKey = iota

// RequestIDFrom returns the request id assigned by the middleware.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// requestIDMiddleware honors an incoming x-request-id or assigns a UUID,
// and echoes it on the response.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("x-request-id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("x-request-id", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		metrics.ObserveHTTP(r.Method, route, ww.Status(), time.Since(start))
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger := log.WithRequestID(RequestIDFrom(r.Context()))
				logger.Error().
					Interface("panic", rec).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Msg("handler panicked")
				s.writeError(w, r, errdefs.New(errdefs.KindStorage, "internal server error"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) bodyLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.BodyLimitBytes > 0 && r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, s.cfg.BodyLimitBytes)
		}
		next.ServeHTTP(w, r)
	})
}

// authMiddleware resolves the caller identity, reconciles the user row,
// and attaches the user to the request context. Requests without usable
// credentials proceed anonymously; the ownership gates decide access.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.provider.Mode() == config.AuthNone {
			id, _ := s.provider.ParseRequest(r)
			user := &types.User{ExternalID: id.ID, Roles: id.Roles}
			next.ServeHTTP(w, r.WithContext(auth.ContextWithUser(r.Context(), user)))
			return
		}

		if !s.provider.HasValidAuth(r) {
			next.ServeHTTP(w, r)
			return
		}

		id, err := s.provider.ParseRequest(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		user, err := s.records.ReconcileUser(r.Context(), id.ID, id.Roles)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.ContextWithUser(r.Context(), user)))
	})
}
