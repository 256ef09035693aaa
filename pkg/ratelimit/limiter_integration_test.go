//go:build integration

package ratelimit

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container and returns a client
func setupRedis(t *testing.T) (*redis.Client, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: endpoint,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}

	cleanup := func() {
		client.Close()
		redisContainer.Terminate(ctx)
	}

	return client, cleanup
}

func TestLimiter_Integration_ConcurrentRequests(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	limiter, err := NewLimiter(redisClient, Config{Limit: 10, Window: time.Minute}, logger)
	if err != nil {
		t.Fatalf("NewLimiter() error = %v", err)
	}
	now := time.Now().Truncate(time.Minute).Add(time.Second)
	limiter.now = func() time.Time { return now }

	const n = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			state, err := limiter.Allow(context.Background(), "login", "10.0.0.1")
			if err != nil {
				t.Errorf("Allow() error = %v", err)
				return
			}
			if !state.Exceeded() {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 10 {
		t.Errorf("allowed = %d, want exactly 10 of %d", allowed, n)
	}
}

func TestLimiter_Integration_KeyExpires(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	limiter, err := NewLimiter(redisClient, Config{Limit: 1, Window: time.Second}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewLimiter() error = %v", err)
	}

	ctx := context.Background()
	if _, err := limiter.Allow(ctx, "signup", "10.0.0.9"); err != nil {
		t.Fatalf("Allow() error = %v", err)
	}

	keys, err := redisClient.Keys(ctx, RedisKeyPrefix+":signup:*").Result()
	if err != nil {
		t.Fatalf("Keys() error = %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("keys = %v, want one counter", keys)
	}

	ttl, err := redisClient.TTL(ctx, keys[0]).Result()
	if err != nil {
		t.Fatalf("TTL() error = %v", err)
	}
	if ttl <= 0 || ttl > 2*time.Second {
		t.Errorf("TTL = %v, want within (0, 2s]", ttl)
	}
}
