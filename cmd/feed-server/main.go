// Command feed-server serves the postfeed HTTP API.
//
// Configuration is read from the YAML file named by POSTFEED_CONFIG and
// from environment variables (see internal/config). Redis is optional:
// without REDIS_URL the server runs without page cache and rate limiting.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/postfeed/internal/auth"
	"github.com/Sternrassler/postfeed/internal/config"
	"github.com/Sternrassler/postfeed/internal/server"
	"github.com/Sternrassler/postfeed/internal/store"
	"github.com/Sternrassler/postfeed/pkg/cache"
	"github.com/Sternrassler/postfeed/pkg/logging"
	"github.com/Sternrassler/postfeed/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "feed-server: %v\n", err)
		os.Exit(1)
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = logging.ParseLevel(cfg.Log.Level)
	logCfg.Pretty = cfg.Log.Pretty
	logger := logging.Setup(logCfg).With().Str("component", "feed-server").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Startup failed")
	}
	defer a.close()

	if err := a.run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
}

// app holds the server and the resources it owns.
type app struct {
	httpServer      *http.Server
	store           *store.Store
	redis           *redis.Client
	shutdownTimeout time.Duration
	logger          zerolog.Logger
}

func newApp(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*app, error) {
	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	logger.Info().Str("path", cfg.Database.Path).Msg("Database opened")

	a := &app{store: st, shutdownTimeout: cfg.Server.ShutdownTimeout, logger: logger}

	tokens, err := auth.NewTokens(auth.Config{
		Secret:     []byte(cfg.Auth.Secret),
		AccessTTL:  cfg.Auth.AccessTokenTTL,
		RefreshTTL: cfg.Auth.RefreshTokenTTL,
	})
	if err != nil {
		a.close()
		return nil, err
	}

	srvCfg := server.Config{
		Store:        st,
		Tokens:       tokens,
		CacheTTL:     cfg.Cache.TTL,
		CookieSecure: cfg.Server.CookieSecure,
	}

	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		a.redis = redis.NewClient(opts)
		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		logger.Info().Str("addr", opts.Addr).Msg("Connected to Redis")

		limiter, err := ratelimit.NewLimiter(a.redis, ratelimit.Config{
			Limit:  cfg.RateLimit.Limit,
			Window: cfg.RateLimit.Window,
		}, logging.NewLogger("ratelimit"))
		if err != nil {
			a.close()
			return nil, err
		}
		srvCfg.PageCache = cache.NewManager(a.redis)
		srvCfg.Limiter = limiter
	} else {
		logger.Warn().Msg("REDIS_URL not set - running without page cache and rate limiting")
	}

	srv, err := server.New(srvCfg)
	if err != nil {
		a.close()
		return nil, err
	}

	a.httpServer = &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      srv.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return a, nil
}

// run serves until ctx is cancelled, then shuts down gracefully.
func (a *app) run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info().Str("addr", a.httpServer.Addr).Msg("Starting feed server")
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()
	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (a *app) close() {
	if a.redis != nil {
		a.redis.Close()
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("Closing database failed")
	}
}
