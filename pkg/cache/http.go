package cache

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Sternrassler/postfeed/pkg/pagination"
	"github.com/rs/zerolog"
)

const (
	// DefaultTTL is used when the middleware is given no TTL
	DefaultTTL = 30 * time.Second

	// HeaderCache reports HIT or MISS on cached endpoints
	HeaderCache = "X-Cache"
)

// KeyForRequest builds the cache key of a page request. Equivalent
// queries (e.g. a missing limit and limit=10) share one key.
func KeyForRequest(r *http.Request, generation int64) CacheKey {
	return CacheKey{
		Endpoint:    r.URL.Path,
		Generation:  generation,
		QueryParams: pagination.FromQuery(r.URL.Query()).Query(),
	}
}

// recorder captures the response written by the wrapped handler.
type recorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (r *recorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *recorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(p)
	return r.ResponseWriter.Write(p)
}

// responseToEntry converts a recorded response into a cache entry.
func responseToEntry(rec *recorder, ttl time.Duration) *CacheEntry {
	return NewEntry(
		append([]byte(nil), rec.body.Bytes()...),
		rec.Header().Get("Content-Type"),
		rec.status,
		ttl,
	)
}

// Middleware serves GET requests from the page cache and stores 200
// responses of the wrapped handler.
func Middleware(m *Manager, ttl time.Duration, logger zerolog.Logger) func(http.Handler) http.Handler {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			gen, err := m.Generation(ctx)
			if err != nil {
				logger.Warn().Err(err).Msg("Page cache unavailable, serving uncached")
				next.ServeHTTP(w, r)
				return
			}
			key := KeyForRequest(r, gen)

			entry, err := m.Get(ctx, key)
			switch {
			case err == nil:
				writeEntry(w, entry)
				return
			case !errors.Is(err, ErrCacheMiss):
				logger.Warn().Err(err).Str("key", key.String()).Msg("Page cache read failed")
			}

			rec := &recorder{ResponseWriter: w}
			rec.Header().Set(HeaderCache, "MISS")
			next.ServeHTTP(rec, r)

			if rec.status != http.StatusOK {
				return
			}
			if err := m.Set(ctx, key, responseToEntry(rec, ttl)); err != nil {
				logger.Warn().Err(err).Str("key", key.String()).Msg("Page cache write failed")
			}
		})
	}
}

func writeEntry(w http.ResponseWriter, entry *CacheEntry) {
	if entry.ContentType != "" {
		w.Header().Set("Content-Type", entry.ContentType)
	}
	w.Header().Set(HeaderCache, "HIT")
	w.Header().Set("Content-Length", strconv.Itoa(len(entry.Data)))
	w.WriteHeader(entry.StatusCode)
	w.Write(entry.Data)
}
