package pagination

import (
	"errors"
	"net/url"
	"testing"
	"time"
)

func TestPageRequest_Normalize(t *testing.T) {
	tests := []struct {
		name     string
		req      PageRequest
		expected PageRequest
	}{
		{
			name:     "defaults for zero values",
			req:      PageRequest{},
			expected: PageRequest{Page: 1, Limit: 10},
		},
		{
			name:     "negative page",
			req:      PageRequest{Page: -3, Limit: 20},
			expected: PageRequest{Page: 1, Limit: 20},
		},
		{
			name:     "limit above max is clamped",
			req:      PageRequest{Page: 2, Limit: 1000},
			expected: PageRequest{Page: 2, Limit: 100},
		},
		{
			name:     "limit at max untouched",
			req:      PageRequest{Page: 4, Limit: 100},
			expected: PageRequest{Page: 4, Limit: 100},
		},
		{
			name:     "cursor preserved",
			req:      PageRequest{Page: 3, Limit: 5, Cursor: "abc"},
			expected: PageRequest{Page: 3, Limit: 5, Cursor: "abc"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.req.Normalize()
			if got != tt.expected {
				t.Errorf("Normalize() = %+v, want %+v", got, tt.expected)
			}
		})
	}
}

func TestPageRequest_Offset(t *testing.T) {
	if got := (PageRequest{Page: 3, Limit: 10}).Offset(); got != 20 {
		t.Errorf("Offset() = %d, want 20", got)
	}
	if got := (PageRequest{Page: 0, Limit: 0}).Offset(); got != 0 {
		t.Errorf("Offset() = %d, want 0", got)
	}
}

func TestFromQuery(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		expected PageRequest
	}{
		{"empty", "", PageRequest{Page: 1, Limit: 10}},
		{"explicit", "page=2&limit=25", PageRequest{Page: 2, Limit: 25}},
		{"malformed numbers", "page=x&limit=y", PageRequest{Page: 1, Limit: 10}},
		{"clamped", "page=0&limit=101", PageRequest{Page: 1, Limit: 100}},
		{"cursor", "cursor=abc&limit=5", PageRequest{Page: 1, Limit: 5, Cursor: "abc"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := url.ParseQuery(tt.query)
			if err != nil {
				t.Fatalf("ParseQuery: %v", err)
			}
			if got := FromQuery(q); got != tt.expected {
				t.Errorf("FromQuery(%q) = %+v, want %+v", tt.query, got, tt.expected)
			}
		})
	}
}

func TestPageRequest_QueryRoundTrip(t *testing.T) {
	req := PageRequest{Page: 7, Limit: 15, Cursor: "xyz"}
	if got := FromQuery(req.Query()); got != req {
		t.Errorf("FromQuery(Query()) = %+v, want %+v", got, req)
	}
}

func TestCursor_Decode(t *testing.T) {
	c := Cursor{CreatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), ID: "post-1"}

	got, err := DecodeCursor(c.Encode())
	if err != nil {
		t.Fatalf("DecodeCursor: %v", err)
	}
	if !got.CreatedAt.Equal(c.CreatedAt) || got.ID != c.ID {
		t.Errorf("DecodeCursor() = %+v, want %+v", got, c)
	}

	for _, bad := range []string{"%%%", "bm90LWpzb24", Cursor{ID: "x"}.Encode()} {
		if _, err := DecodeCursor(bad); !errors.Is(err, ErrInvalidCursor) {
			t.Errorf("DecodeCursor(%q) error = %v, want ErrInvalidCursor", bad, err)
		}
	}
}
