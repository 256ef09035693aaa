package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/postfeed/internal/config"
	"github.com/Sternrassler/postfeed/pkg/cache"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupTestRedis starts a Redis container and returns its URL.
func setupTestRedis(t *testing.T) (string, func()) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	// Skips instead of panicking when no Docker daemon is reachable.
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := redisC.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := redisC.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	cleanup := func() {
		redisC.Terminate(ctx)
	}

	return "redis://" + host + ":" + port.Port() + "/0", cleanup
}

func testConfig(t *testing.T) config.Config {
	cfg := config.Default()
	cfg.Server.Port = "0"
	cfg.Server.ShutdownTimeout = 2 * time.Second
	cfg.Database.Path = filepath.Join(t.TempDir(), "postfeed.db")
	cfg.Auth.Secret = "0123456789abcdef0123456789abcdef"
	return cfg
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}

func TestNewApp_WithoutRedis(t *testing.T) {
	a, err := newApp(context.Background(), testConfig(t), zerolog.Nop())
	if err != nil {
		t.Fatalf("newApp failed: %v", err)
	}
	defer a.close()

	ts := httptest.NewServer(a.httpServer.Handler)
	defer ts.Close()

	resp, body := get(t, ts.URL+"/health")
	if resp.StatusCode != http.StatusOK || body != "OK" {
		t.Errorf("Expected 200 OK from /health, got %d %q", resp.StatusCode, body)
	}

	resp, _ = get(t, ts.URL+"/home")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 on empty feed, got %d", resp.StatusCode)
	}
	if resp.Header.Get(cache.HeaderCache) != "" {
		t.Error("Expected no cache header without Redis")
	}
}

func TestNewApp_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Redis.URL = "not a url"
	if _, err := newApp(context.Background(), cfg, zerolog.Nop()); err == nil {
		t.Error("Expected error for invalid redis url")
	}

	cfg = testConfig(t)
	cfg.Auth.Secret = "short"
	if _, err := newApp(context.Background(), cfg, zerolog.Nop()); err == nil {
		t.Error("Expected error for short secret")
	}
}

func TestRun_GracefulShutdown(t *testing.T) {
	a, err := newApp(context.Background(), testConfig(t), zerolog.Nop())
	if err != nil {
		t.Fatalf("newApp failed: %v", err)
	}
	defer a.close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}

func TestNewApp_WithRedis(t *testing.T) {
	redisURL, cleanup := setupTestRedis(t)
	defer cleanup()

	cfg := testConfig(t)
	cfg.Redis.URL = redisURL
	a, err := newApp(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("newApp failed: %v", err)
	}
	defer a.close()

	ts := httptest.NewServer(a.httpServer.Handler)
	defer ts.Close()

	t.Run("ready", func(t *testing.T) {
		resp, body := get(t, ts.URL+"/ready")
		if resp.StatusCode != http.StatusOK || body != "OK" {
			t.Errorf("Expected 200 OK from /ready, got %d %q", resp.StatusCode, body)
		}
	})

	t.Run("page_cache", func(t *testing.T) {
		resp, _ := get(t, ts.URL+"/home")
		if got := resp.Header.Get(cache.HeaderCache); got != "MISS" {
			t.Errorf("Expected X-Cache MISS, got %q", got)
		}
	})

	t.Run("metrics", func(t *testing.T) {
		resp, body := get(t, ts.URL+"/metrics")
		if resp.StatusCode != http.StatusOK {
			t.Errorf("Expected status 200, got %d", resp.StatusCode)
		}
		if !strings.Contains(body, "# HELP") || !strings.Contains(body, "postfeed_http_requests_total") {
			t.Error("Expected Prometheus output with postfeed_http_requests_total")
		}
	})

	t.Run("not_ready_redis_down", func(t *testing.T) {
		a.redis.Close()
		resp, _ := get(t, ts.URL+"/ready")
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("Expected status 503, got %d", resp.StatusCode)
		}
	})
}
