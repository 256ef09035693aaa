// Package cache provides the Redis page cache of the feed server.
//
// Encoded /home pages are stored under a key that embeds a generation
// number. Every post write bumps the generation, which makes all cached
// pages unreachable at once; the stale entries age out through their TTL.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	manager := cache.NewManager(redisClient)
//
//	gen, err := manager.Generation(ctx)
//	key := cache.CacheKey{
//		Endpoint:    "/home",
//		Generation:  gen,
//		QueryParams: url.Values{"page": []string{"1"}, "limit": []string{"10"}},
//	}
//
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// Cache miss - query the store
//	}
//
// # HTTP Middleware
//
//	r.With(cache.Middleware(manager, 30*time.Second, logger)).Get("/home", homeHandler)
//
// Only 200 responses are stored. Redis failures are logged and the request
// falls through to the handler.
//
// # Invalidation
//
//	// After any create, edit, delete or publish toggle
//	manager.Invalidate(ctx)
//
// # Metrics
//
//   - postfeed_page_cache_hits_total
//   - postfeed_page_cache_misses_total
//   - postfeed_page_cache_size_bytes
//   - postfeed_page_cache_invalidations_total
//   - postfeed_page_cache_errors_total{operation}
package cache
