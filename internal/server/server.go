// Package server wires the catalog, streamer and auth gate into the HTTP API.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"reelshelf/internal/accounts"
	"reelshelf/internal/auth"
	"reelshelf/internal/catalog"
	"reelshelf/internal/progress"
	"reelshelf/internal/stream"
	pkgauth "reelshelf/pkg/auth"
)

type Deps struct {
	Catalog      *catalog.Cache
	AdminCatalog *catalog.Cache
	Streamer     *stream.Streamer
	Auth         *auth.Service
	Accounts     *accounts.Store
	Progress     progress.Store
	Metrics      http.Handler
	Logger       zerolog.Logger
}

type Options struct {
	MediaTimeout   time.Duration
	RequestTimeout time.Duration
	LoginRate      float64
	LoginBurst     int
	MetricsToken   string
}

type Server struct {
	deps   Deps
	opts   Options
	logger zerolog.Logger
	login  *clientLimiter
}

func New(deps Deps, opts Options) *Server {
	if opts.MediaTimeout <= 0 {
		opts.MediaTimeout = 10 * time.Minute
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.LoginRate <= 0 {
		opts.LoginRate = 1
	}
	if opts.LoginBurst <= 0 {
		opts.LoginBurst = 5
	}
	if deps.Accounts == nil {
		deps.Accounts = accounts.Empty()
	}
	if deps.Progress == nil {
		deps.Progress = progress.NewMemoryStore()
	}
	return &Server{
		deps:   deps,
		opts:   opts,
		logger: deps.Logger.With().Str("component", "http").Logger(),
		login:  newClientLimiter(opts.LoginRate, opts.LoginBurst),
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, requestLogger(s.logger), middleware.Recoverer, observe)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.deps.Metrics != nil {
		r.With(pkgauth.TokenMiddleware(s.opts.MetricsToken)).Handle("/metrics", s.deps.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(withTimeout(s.opts.RequestTimeout))
		r.With(s.login.middleware).Post("/api/login", s.handleLogin())

		r.Group(func(r chi.Router) {
			r.Use(s.deps.Auth.RequireAuth)
			r.Post("/api/logout", s.handleLogout())
			r.Get("/api/series", s.handleListSeries(s.deps.Catalog))
			r.Get("/api/series/*", s.handleSeriesDetail())
			r.Get("/api/genres", s.handleGenres())
			r.Get("/api/progress", s.handleGetProgress())
			r.Post("/api/progress", s.handleSaveProgress())
		})

		r.Route("/api/admin", func(r chi.Router) {
			r.Use(s.deps.Auth.RequireRole(auth.RoleAdmin))
			r.Get("/series", s.handleListSeries(s.deps.AdminCatalog))
			r.Post("/rescan", s.handleRescan())
		})
	})

	r.Route("/videos", func(r chi.Router) {
		r.Use(mediaCORS, withTimeout(s.opts.MediaTimeout))
		r.Use(s.deps.Auth.RequireMediaAuth)
		r.Get("/*", s.handleMedia())
		r.Head("/*", s.handleMedia())
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func errorJSON(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
