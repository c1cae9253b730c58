// Package server exposes the account and moderation endpoints over HTTP.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tunehub/authcore"
	"github.com/tunehub/authcore/identity"
	"github.com/tunehub/authcore/internal/logging"
	"github.com/tunehub/authcore/middleware"
	"github.com/tunehub/authcore/moderation"
)

// Options wires the handlers. Engine and Moderation are required.
type Options struct {
	Engine     *authcore.Engine
	Moderation *moderation.Service
	Logger     *zap.Logger
	// Gatherer backs /metrics; nil leaves the route unmounted.
	Gatherer prometheus.Gatherer
	// TrustProxy honours X-Forwarded-For and X-Real-IP.
	TrustProxy bool
}

type Server struct {
	engine     *authcore.Engine
	moderation *moderation.Service
	logger     *zap.Logger
	gatherer   prometheus.Gatherer
	trustProxy bool
}

func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		engine:     opts.Engine,
		moderation: opts.Moderation,
		logger:     logger.Named("http"),
		gatherer:   opts.Gatherer,
		trustProxy: opts.TrustProxy,
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	if s.trustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(s.accessLog)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.ClientIP)
		r.Use(middleware.Renewal(s.engine, s.logger))

		r.Route("/account", func(r chi.Router) {
			r.Post("/register", s.register)
			r.Post("/login", s.login)
			r.Post("/logout", s.logout)

			r.Group(func(r chi.Router) {
				r.Use(middleware.Guard(s.engine))
				r.Get("/me", s.me)
				r.Get("/sessions", s.listSessions)
				r.Delete("/sessions", s.clearSessions)
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/login", s.adminLogin)

			r.Route("/users/{id}", func(r chi.Router) {
				r.With(middleware.RequireRole(s.engine, identity.RoleAdmin, identity.RoleModerator)).
					Post("/ban", s.ban)
				r.With(middleware.RequireRole(s.engine, identity.RoleAdmin, identity.RoleModerator)).
					Post("/unban", s.unban)
				r.With(middleware.RequireRole(s.engine, identity.RoleAdmin)).
					Post("/promote", s.promote)
			})
		})
	})

	return r
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		logging.WithRequestID(s.logger, chimw.GetReqID(r.Context())).Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
