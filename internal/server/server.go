// Package server exposes the feed, post and authentication endpoints over
// HTTP.
//
// GET /home is served from the Redis page cache when one is configured; every
// post write bumps the cache generation so no stale page outlives a change.
// Login, signup and refresh are rate limited per client IP when a limiter is
// configured. All errors use the {statusCode, message} envelope.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Sternrassler/postfeed/internal/auth"
	"github.com/Sternrassler/postfeed/internal/store"
	"github.com/Sternrassler/postfeed/pkg/cache"
	"github.com/Sternrassler/postfeed/pkg/logging"
	"github.com/Sternrassler/postfeed/pkg/metrics"
	"github.com/Sternrassler/postfeed/pkg/model"
	"github.com/Sternrassler/postfeed/pkg/pagination"
	"github.com/Sternrassler/postfeed/pkg/ratelimit"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// RefreshCookie is the name of the HttpOnly cookie carrying the refresh token.
const RefreshCookie = "refreshToken"

// Store is the persistence the server needs. *store.Store implements it.
type Store interface {
	Ping(ctx context.Context) error

	CreateUser(ctx context.Context, username, email, passwordHash string) (model.User, error)
	UserByID(ctx context.Context, id string) (store.UserRecord, error)
	UserByLogin(ctx context.Context, login string) (store.UserRecord, error)
	SetRefreshTokenID(ctx context.Context, userID, tokenID string) error
	RotateRefreshTokenID(ctx context.Context, userID, oldID, newID string) error

	PublishedPage(ctx context.Context, req pagination.PageRequest) (model.Page, error)
	CountPublished(ctx context.Context) (int, error)
	ListByOwner(ctx context.Context, ownerID string) ([]model.Post, error)
	PostByID(ctx context.Context, id string) (model.Post, error)
	CreatePost(ctx context.Context, ownerID string, in model.PostInput) (model.Post, error)
	UpdatePost(ctx context.Context, callerID, id string, in model.PostInput) (model.Post, error)
	DeletePost(ctx context.Context, callerID, id string) error
	TogglePublish(ctx context.Context, callerID, id string) (model.Post, error)
}

// Config holds the server dependencies and settings.
type Config struct {
	// Store is required.
	Store Store

	// Tokens issues and verifies access and refresh tokens. Required.
	Tokens *auth.Tokens

	// Hasher hashes passwords (default: argon2id with DefaultParams).
	Hasher *auth.Hasher

	// PageCache caches GET /home responses. Optional.
	PageCache *cache.Manager

	// CacheTTL bounds the lifetime of a cached page (default: cache.DefaultTTL).
	CacheTTL time.Duration

	// Limiter rate limits login, signup and refresh. Optional.
	Limiter *ratelimit.Limiter

	// CookieSecure marks the refresh cookie Secure.
	CookieSecure bool
}

// Server handles the HTTP API.
type Server struct {
	store     Store
	tokens    *auth.Tokens
	hasher    *auth.Hasher
	pageCache *cache.Manager
	limiter   *ratelimit.Limiter
	config    Config
	logger    zerolog.Logger
}

// New creates a server.
func New(cfg Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Tokens == nil {
		return nil, errors.New("tokens are required")
	}
	if cfg.Hasher == nil {
		cfg.Hasher = auth.NewHasher(auth.DefaultParams)
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = cache.DefaultTTL
	}

	return &Server{
		store:     cfg.Store,
		tokens:    cfg.Tokens,
		hasher:    cfg.Hasher,
		pageCache: cfg.PageCache,
		limiter:   cfg.Limiter,
		config:    cfg,
		logger:    log.With().Str("component", "server").Logger(),
	}, nil
}

// SetLogger replaces the server logger.
func (s *Server) SetLogger(logger zerolog.Logger) {
	s.logger = logger
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.Middleware(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	requireAuth := auth.Middleware(s.tokens, writeError, s.logger)

	r.With(s.pageCacheMiddleware()).Get("/home", s.handleHome)
	r.Get("/post/{id}", s.handleGetPost)

	r.Route("/auth", func(r chi.Router) {
		r.With(s.rateLimit("signup")).Post("/signup", s.handleSignup)
		r.With(s.rateLimit("login")).Post("/login", s.handleLogin)
		r.With(s.rateLimit("refresh")).Post("/refresh-token", s.handleRefresh)
		r.Post("/logout", s.handleLogout)
		r.With(requireAuth).Get("/current-user", s.handleCurrentUser)
	})

	r.Group(func(r chi.Router) {
		r.Use(requireAuth)
		r.Get("/myposts/{userId}", s.handleMyPosts)
		r.Post("/add-post", s.handleAddPost)
		r.Put("/add-post/{id}/publish", s.handleTogglePublish)
		r.Patch("/post/{id}", s.handleEditPost)
		r.Delete("/post/{id}", s.handleDeletePost)
	})

	return r
}

func (s *Server) pageCacheMiddleware() func(http.Handler) http.Handler {
	if s.pageCache == nil {
		return passthrough
	}
	return cache.Middleware(s.pageCache, s.config.CacheTTL, s.logger)
}

func (s *Server) rateLimit(scope string) func(http.Handler) http.Handler {
	if s.limiter == nil {
		return passthrough
	}
	return s.limiter.Middleware(scope)
}

func passthrough(next http.Handler) http.Handler {
	return next
}

// invalidateFeed drops every cached /home page after a post write.
func (s *Server) invalidateFeed(ctx context.Context) {
	if s.pageCache == nil {
		return
	}
	if _, err := s.pageCache.Invalidate(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Page cache invalidation failed")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Readiness check failed: database")
		writeError(w, http.StatusServiceUnavailable, "Database unavailable")
		return
	}
	if s.pageCache != nil {
		if err := s.pageCache.Ping(ctx); err != nil {
			s.logger.Error().Err(err).Msg("Readiness check failed: redis")
			writeError(w, http.StatusServiceUnavailable, "Redis unavailable")
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
