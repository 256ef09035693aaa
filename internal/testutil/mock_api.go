// Package testutil provides testing utilities for the feed client.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/postfeed/pkg/model"
)

// MockResponse defines the behavior for a mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockAPI is a configurable mock feed API server for testing.
//
// By default it serves /home from Items with offset pagination, protects
// /myposts/ and /auth/current-user with bearer tokens in ValidTokens and
// rotates tokens on POST /auth/refresh-token.
type MockAPI struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	items       []model.Item
	validTokens map[string]bool
	tokenSeq    int
	refreshFail bool
	refreshGate chan struct{}

	// Tracking
	RequestCount      int
	RefreshCount      int
	LastRequestHeader http.Header
}

// NewMockAPI creates a new mock API server.
func NewMockAPI() *MockAPI {
	mock := &MockAPI{
		handlers:    make(map[string]func(w http.ResponseWriter, r *http.Request)),
		validTokens: make(map[string]bool),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastRequestHeader = r.Header.Clone()
		mock.mu.Unlock()

		mock.mu.RLock()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.RUnlock()

		if exists {
			handler(w, r)
			return
		}

		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockAPI) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockAPI) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockAPI) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.RefreshCount = 0
	m.LastRequestHeader = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockAPI) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for a path.
func (m *MockAPI) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// SetItems replaces the published items served by /home. Items must be in
// feed order (createdAt desc, id desc).
func (m *MockAPI) SetItems(items []model.Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append([]model.Item(nil), items...)
}

// IssueToken registers and returns a new valid access token.
func (m *MockAPI) IssueToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.issueTokenLocked()
}

func (m *MockAPI) issueTokenLocked() string {
	m.tokenSeq++
	token := fmt.Sprintf("token-%d", m.tokenSeq)
	m.validTokens[token] = true
	return token
}

// ExpireToken makes token invalid so protected requests answer 401.
func (m *MockAPI) ExpireToken(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.validTokens, token)
}

// SetRefreshFailure makes the refresh endpoint answer 401.
func (m *MockAPI) SetRefreshFailure(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshFail = fail
}

// HoldRefresh blocks refresh calls until the returned release func is called.
func (m *MockAPI) HoldRefresh() (release func()) {
	gate := make(chan struct{})
	m.mu.Lock()
	m.refreshGate = gate
	m.mu.Unlock()

	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockAPI) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetRefreshCount returns the number of refresh calls received.
func (m *MockAPI) GetRefreshCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RefreshCount
}

// defaultHandler provides feed-API-like responses.
func (m *MockAPI) defaultHandler(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/home" && r.Method == http.MethodGet:
		m.handleHome(w, r)
	case r.URL.Path == "/auth/refresh-token" && r.Method == http.MethodPost:
		m.handleRefresh(w, r)
	case strings.HasPrefix(r.URL.Path, "/myposts/"), r.URL.Path == "/auth/current-user":
		if !m.authorized(r) {
			WriteError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"items": []model.Post{}})
	default:
		WriteError(w, http.StatusNotFound, "Not found")
	}
}

func (m *MockAPI) handleHome(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}

	m.mu.RLock()
	items := m.items
	m.mu.RUnlock()

	start := (page - 1) * limit
	end := start + limit
	if start > len(items) {
		start = len(items)
	}
	if end > len(items) {
		end = len(items)
	}

	WriteJSON(w, http.StatusOK, model.Page{Items: items[start:end], Page: page, Limit: limit})
}

func (m *MockAPI) handleRefresh(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.RefreshCount++
	gate := m.refreshGate
	m.mu.Unlock()

	if gate != nil {
		<-gate
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.refreshFail {
		WriteError(w, http.StatusUnauthorized, "Refresh token expired")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"accessToken": m.issueTokenLocked()})
}

func (m *MockAPI) authorized(r *http.Request) bool {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.validTokens[token]
}

// WriteJSON writes v as a JSON response.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// WriteError writes the standard error envelope.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]any{"statusCode": status, "message": message})
}

// NewItems builds n feed items in feed order with strictly decreasing
// timestamps, ids "post-001" and up.
func NewItems(n int) []model.Item {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	items := make([]model.Item, n)
	for i := range items {
		items[i] = model.Item{
			ID:        fmt.Sprintf("post-%03d", i+1),
			Title:     fmt.Sprintf("Post %d", i+1),
			Tags:      []string{},
			CreatedAt: base.Add(-time.Duration(i) * time.Minute),
			Owner:     model.Owner{ID: "user-1", Username: "alice", Email: "alice@example.com"},
		}
	}
	return items
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"statusCode": 500, "message": "Internal server error"}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewUnauthorizedResponse creates a 401 response.
func NewUnauthorizedResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusUnauthorized,
		Body:       `{"statusCode": 401, "message": "Unauthorized"}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}
