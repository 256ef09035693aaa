package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/postfeed/pkg/cache"
	"github.com/Sternrassler/postfeed/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// setupTestRedis returns a client on a flushed test DB.
// Tests are skipped when no Redis is listening on localhost.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   14, // Separate from the pkg/cache and pkg/ratelimit test DB
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func getHome(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url + "/home?page=1&limit=10")
	if err != nil {
		t.Fatalf("GET /home error = %v", err)
	}
	resp.Body.Close()
	return resp.StatusCode, resp.Header.Get(cache.HeaderCache)
}

func TestHome_PageCache(t *testing.T) {
	rdb := setupTestRedis(t)
	env := newTestEnv(t, func(cfg *Config) {
		cfg.PageCache = cache.NewManager(rdb)
		cfg.CacheTTL = time.Minute
	})
	alice := env.signup(t, "alice")

	// Not-found responses are never cached.
	for i := 0; i < 2; i++ {
		if status, hdr := getHome(t, env.ts.URL); status != http.StatusNotFound || hdr != "MISS" {
			t.Fatalf("GET /home on empty feed = %d %s, want 404 MISS", status, hdr)
		}
	}

	alice.publish(t, "first")

	steps := []struct {
		name    string
		mutate  func()
		wantHdr string
	}{
		{"after publish", nil, "MISS"},
		{"repeat", nil, "HIT"},
		{"after second publish", func() { alice.publish(t, "second") }, "MISS"},
		{"repeat again", nil, "HIT"},
	}
	for _, step := range steps {
		if step.mutate != nil {
			step.mutate()
		}
		status, hdr := getHome(t, env.ts.URL)
		if status != http.StatusOK || hdr != step.wantHdr {
			t.Errorf("%s: GET /home = %d %s, want 200 %s", step.name, status, hdr, step.wantHdr)
		}
	}

	resp, err := http.Get(env.ts.URL + "/ready")
	if err != nil {
		t.Fatalf("GET /ready error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /ready with redis = %d, want 200", resp.StatusCode)
	}
}

func TestAuth_RateLimited(t *testing.T) {
	rdb := setupTestRedis(t)
	limiter, err := ratelimit.NewLimiter(rdb, ratelimit.Config{Limit: 3, Window: time.Minute}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewLimiter() error = %v", err)
	}
	env := newTestEnv(t, func(cfg *Config) { cfg.Limiter = limiter })

	login := func() *http.Response {
		resp, err := http.Post(env.ts.URL+"/auth/login", "application/json",
			strings.NewReader(`{"email":"nobody@example.com","password":"password1"}`))
		if err != nil {
			t.Fatalf("POST /auth/login error = %v", err)
		}
		resp.Body.Close()
		return resp
	}

	for i := 1; i <= 3; i++ {
		if resp := login(); resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("attempt %d = %d, want 401", i, resp.StatusCode)
		}
	}
	resp := login()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("attempt 4 = %d, want 429", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Error("expected Retry-After header on 429")
	}

	// Scopes are counted separately.
	signup, err := http.Post(env.ts.URL+"/auth/signup", "application/json",
		strings.NewReader(fmt.Sprintf(`{"username":"u","email":"u@example.com","password":"%s"}`, "password1")))
	if err != nil {
		t.Fatalf("POST /auth/signup error = %v", err)
	}
	signup.Body.Close()
	if signup.StatusCode != http.StatusCreated {
		t.Errorf("signup after login limit = %d, want 201", signup.StatusCode)
	}
}
