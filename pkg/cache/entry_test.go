package cache

import (
	"testing"
	"time"
)

func TestCacheEntry_Lifetime(t *testing.T) {
	page := []byte(`{"items":[],"page":1,"limit":10}`)

	tests := []struct {
		name        string
		ttl         time.Duration
		wantExpired bool
		wantMin     time.Duration
		wantMax     time.Duration
	}{
		{"default page ttl", DefaultTTL, false, DefaultTTL - time.Second, DefaultTTL},
		{"five minutes", 5 * time.Minute, false, 5*time.Minute - time.Second, 5 * time.Minute},
		{"already stale", -time.Second, true, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := NewEntry(page, "application/json; charset=utf-8", 200, tt.ttl)

			if got := entry.IsExpired(); got != tt.wantExpired {
				t.Errorf("IsExpired() = %v, want %v", got, tt.wantExpired)
			}
			if got := entry.TTL(); got < tt.wantMin || got > tt.wantMax {
				t.Errorf("TTL() = %v, want between %v and %v", got, tt.wantMin, tt.wantMax)
			}
		})
	}
}

func TestNewEntry(t *testing.T) {
	entry := NewEntry([]byte(`{"items":[]}`), "application/json", 200, time.Minute)

	if entry.StatusCode != 200 || entry.ContentType != "application/json" {
		t.Errorf("entry = %d %q, want 200 application/json", entry.StatusCode, entry.ContentType)
	}
	if string(entry.Data) != `{"items":[]}` {
		t.Errorf("Data = %s", entry.Data)
	}
	if got := entry.Expires.Sub(entry.CachedAt); got != time.Minute {
		t.Errorf("Expires - CachedAt = %v, want 1m", got)
	}
}
