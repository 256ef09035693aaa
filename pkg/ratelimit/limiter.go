package ratelimit

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limiting.
var (
	rateLimitedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "postfeed_auth_rate_limited_total",
		Help: "Total number of requests rejected by the rate limiter by scope",
	}, []string{"scope"})

	rateLimitErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "postfeed_auth_rate_limit_errors_total",
		Help: "Total number of rate limit checks that failed and let the request through",
	})
)

// Config holds limiter configuration.
type Config struct {
	// Limit is the number of requests allowed per window and client.
	Limit int

	// Window is the length of one fixed counting window.
	Window time.Duration
}

// DefaultConfig returns the limits used for the authentication endpoints.
func DefaultConfig() Config {
	return Config{Limit: DefaultLimit, Window: DefaultWindow}
}

// Limiter is a fixed-window request counter backed by Redis.
type Limiter struct {
	redis  *redis.Client
	config Config
	logger zerolog.Logger
	now    func() time.Time
}

// NewLimiter creates a new rate limiter.
func NewLimiter(redisClient *redis.Client, cfg Config, logger zerolog.Logger) (*Limiter, error) {
	if redisClient == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if cfg.Limit <= 0 {
		return nil, fmt.Errorf("limit must be positive (got %d)", cfg.Limit)
	}
	if cfg.Window < time.Second {
		return nil, fmt.Errorf("window must be at least 1s (got %v)", cfg.Window)
	}
	return &Limiter{
		redis:  redisClient,
		config: cfg,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Allow counts one request of client against scope and returns the
// resulting window state. The request must be rejected when the state
// reports Exceeded.
func (l *Limiter) Allow(ctx context.Context, scope, client string) (*WindowState, error) {
	key, resetAt := windowKey(scope, client, l.config.Window, l.now())

	// INCR and EXPIRE in one round trip; the key outlives its window so a
	// late EXPIRE never drops a live counter.
	pipe := l.redis.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, 2*l.config.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("count request: %w", err)
	}

	state := &WindowState{
		Count:   int(incr.Val()),
		Limit:   l.config.Limit,
		ResetAt: resetAt,
	}

	if state.Exceeded() {
		rateLimitedTotal.WithLabelValues(scope).Inc()
		l.logger.Warn().
			Str("scope", scope).
			Str("client", client).
			Int("count", state.Count).
			Dur("reset_in", state.TimeUntilReset()).
			Msg("Rate limit exceeded - rejecting request")
	}

	return state, nil
}

// Middleware rejects requests beyond the limit with 429 and the standard
// error envelope. Clients are identified by remote IP; put chi's RealIP
// middleware in front when running behind a proxy. When Redis is
// unreachable requests are let through.
func (l *Limiter) Middleware(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			state, err := l.Allow(r.Context(), scope, clientIP(r))
			if err != nil {
				rateLimitErrorsTotal.Inc()
				l.logger.Error().Err(err).Str("scope", scope).Msg("Rate limit check failed - allowing request")
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(state.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(state.Remaining()))

			if state.Exceeded() {
				retryAfter := int(state.TimeUntilReset().Seconds()) + 1
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusTooManyRequests)
				fmt.Fprintf(w, `{"statusCode":%d,"message":"Too many requests, try again later"}`, http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
