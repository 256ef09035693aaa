package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// setupTestRedis creates a test Redis client for testing.
// Tests are skipped when no Redis is listening on localhost.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use a separate DB for tests
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	// Flush test DB before each test
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func TestNewManager(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()

	manager := NewManager(client)
	if manager == nil {
		t.Fatal("NewManager returned nil")
	}
	if manager.redis != client {
		t.Error("Manager redis client not set correctly")
	}
}

func TestNewManager_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewManager should panic with nil redis client")
		}
	}()
	NewManager(nil)
}

func TestManager_SetAndGet(t *testing.T) {
	manager := NewManager(setupTestRedis(t))
	ctx := context.Background()

	key := CacheKey{Endpoint: "/home"}
	entry := NewEntry([]byte(`{"items":[]}`), "application/json", 200, 5*time.Minute)

	if err := manager.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	retrieved, err := manager.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if string(retrieved.Data) != string(entry.Data) {
		t.Errorf("Data mismatch: got %s, want %s", retrieved.Data, entry.Data)
	}
	if retrieved.ContentType != entry.ContentType {
		t.Errorf("ContentType mismatch: got %s, want %s", retrieved.ContentType, entry.ContentType)
	}
	if retrieved.StatusCode != entry.StatusCode {
		t.Errorf("StatusCode mismatch: got %d, want %d", retrieved.StatusCode, entry.StatusCode)
	}
}

func TestManager_Get_CacheMiss(t *testing.T) {
	manager := NewManager(setupTestRedis(t))

	_, err := manager.Get(context.Background(), CacheKey{Endpoint: "/nonexistent"})
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss, got %v", err)
	}
}

func TestManager_Get_ExpiredEntry(t *testing.T) {
	manager := NewManager(setupTestRedis(t))
	ctx := context.Background()
	key := CacheKey{Endpoint: "/home"}

	entry := &CacheEntry{
		Data:    []byte(`{"items":[]}`),
		Expires: time.Now().Add(-1 * time.Hour), // Already expired
	}

	// Set should not cache expired entries
	if err := manager.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	_, err := manager.Get(ctx, key)
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss for expired entry, got %v", err)
	}
}

func TestManager_Delete(t *testing.T) {
	manager := NewManager(setupTestRedis(t))
	ctx := context.Background()
	key := CacheKey{Endpoint: "/home"}

	if err := manager.Set(ctx, key, NewEntry([]byte(`{}`), "", 200, 5*time.Minute)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, err := manager.Get(ctx, key); err != nil {
		t.Fatalf("Get after Set failed: %v", err)
	}

	if err := manager.Delete(ctx, key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	_, err := manager.Get(ctx, key)
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss after Delete, got %v", err)
	}
}

func TestManager_Invalidate(t *testing.T) {
	manager := NewManager(setupTestRedis(t))
	ctx := context.Background()

	gen, err := manager.Generation(ctx)
	if err != nil {
		t.Fatalf("Generation failed: %v", err)
	}
	if gen != 0 {
		t.Errorf("initial generation = %d, want 0", gen)
	}

	key := CacheKey{Endpoint: "/home", Generation: gen}
	if err := manager.Set(ctx, key, NewEntry([]byte(`{}`), "", 200, 5*time.Minute)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	next, err := manager.Invalidate(ctx)
	if err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	if next != 1 {
		t.Errorf("generation after Invalidate = %d, want 1", next)
	}

	// The page cached under the old generation is no longer addressed.
	key.Generation = next
	if _, err := manager.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss after Invalidate, got %v", err)
	}
}

func TestManager_Set_NilEntry(t *testing.T) {
	manager := NewManager(setupTestRedis(t))

	if err := manager.Set(context.Background(), CacheKey{Endpoint: "/home"}, nil); err == nil {
		t.Error("Set with nil entry should return error")
	}
}
