package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/Sternrassler/postfeed/pkg/model"
	"github.com/rs/zerolog"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "postfeed.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	s.SetLogger(zerolog.Nop())
	t.Cleanup(func() { s.Close() })
	return s
}

// fixedClock returns a clock that advances by step on every call.
func fixedClock(start time.Time, step time.Duration) func() time.Time {
	next := start
	return func() time.Time {
		now := next
		next = next.Add(step)
		return now
	}
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func createUser(t *testing.T, s *Store, name string) model.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), name, name+"@example.com", "hash")
	if err != nil {
		t.Fatalf("CreateUser(%s) error = %v", name, err)
	}
	return u
}

func createPost(t *testing.T, s *Store, ownerID, title string, published bool) model.Post {
	t.Helper()
	p, err := s.CreatePost(context.Background(), ownerID, model.PostInput{
		Title:       strPtr(title),
		Content:     strPtr("Content of " + title),
		Tags:        strPtr("go, feeds"),
		IsPublished: boolPtr(published),
	})
	if err != nil {
		t.Fatalf("CreatePost(%s) error = %v", title, err)
	}
	return p
}

func TestOpen_Validation(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Error("Open(\"\") should fail")
	}

	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) error = %v", err)
	}
	defer s.Close()

	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}

func TestCreateUser(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	u, err := s.CreateUser(ctx, " alice ", "Alice@Example.com", "hash")
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	if u.ID == "" {
		t.Error("CreateUser() returned empty id")
	}
	if u.Username != "alice" || u.Email != "alice@example.com" {
		t.Errorf("CreateUser() = %+v, want trimmed username and lowercased email", u)
	}

	if _, err := s.CreateUser(ctx, "alice", "other@example.com", "hash"); !errors.Is(err, ErrConflict) {
		t.Errorf("duplicate username error = %v, want ErrConflict", err)
	}
	if _, err := s.CreateUser(ctx, "bob", "ALICE@example.com", "hash"); !errors.Is(err, ErrConflict) {
		t.Errorf("duplicate email error = %v, want ErrConflict", err)
	}
	if _, err := s.CreateUser(ctx, "", "x@example.com", "hash"); !errors.Is(err, ErrInvalid) {
		t.Errorf("empty username error = %v, want ErrInvalid", err)
	}
}

func TestUserLookup(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	u := createUser(t, s, "alice")

	tests := []struct {
		name  string
		login string
	}{
		{"by email", "alice@example.com"},
		{"by email any case", "ALICE@example.com"},
		{"by username", "alice"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.UserByLogin(ctx, tt.login)
			if err != nil {
				t.Fatalf("UserByLogin(%q) error = %v", tt.login, err)
			}
			if got.ID != u.ID || got.PasswordHash != "hash" {
				t.Errorf("UserByLogin(%q) = %+v", tt.login, got)
			}
		})
	}

	if _, err := s.UserByLogin(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Errorf("UserByLogin(nobody) error = %v, want ErrNotFound", err)
	}
	if _, err := s.UserByID(ctx, u.ID); err != nil {
		t.Errorf("UserByID() error = %v", err)
	}
}

func TestSetRefreshTokenID(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	u := createUser(t, s, "alice")

	if err := s.SetRefreshTokenID(ctx, u.ID, "jti-1"); err != nil {
		t.Fatalf("SetRefreshTokenID() error = %v", err)
	}
	got, _ := s.UserByID(ctx, u.ID)
	if got.RefreshTokenID != "jti-1" {
		t.Errorf("RefreshTokenID = %q, want jti-1", got.RefreshTokenID)
	}

	if err := s.SetRefreshTokenID(ctx, "missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetRefreshTokenID(missing) error = %v, want ErrNotFound", err)
	}
}

func TestRotateRefreshTokenID(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	u := createUser(t, s, "alice")

	if err := s.SetRefreshTokenID(ctx, u.ID, "jti-1"); err != nil {
		t.Fatalf("SetRefreshTokenID() error = %v", err)
	}

	tests := []struct {
		name    string
		oldID   string
		newID   string
		wantErr error
		wantID  string
	}{
		{"current token", "jti-1", "jti-2", nil, "jti-2"},
		{"already rotated", "jti-1", "jti-3", ErrNotFound, "jti-2"},
		{"empty old id", "", "jti-4", ErrNotFound, "jti-2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.RotateRefreshTokenID(ctx, u.ID, tt.oldID, tt.newID)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("RotateRefreshTokenID() error = %v, want %v", err, tt.wantErr)
			}
			got, _ := s.UserByID(ctx, u.ID)
			if got.RefreshTokenID != tt.wantID {
				t.Errorf("RefreshTokenID = %q, want %q", got.RefreshTokenID, tt.wantID)
			}
		})
	}
}

func TestPostLifecycle(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	alice := createUser(t, s, "alice")
	bob := createUser(t, s, "bob")

	p := createPost(t, s, alice.ID, "  Hello  ", false)
	if p.Title != "Hello" {
		t.Errorf("Title = %q, want Hello", p.Title)
	}
	if len(p.Tags) != 2 || p.Tags[0] != "go" || p.Tags[1] != "feeds" {
		t.Errorf("Tags = %v, want [go feeds]", p.Tags)
	}
	if p.Owner == nil || p.Owner.Username != "alice" {
		t.Errorf("Owner = %+v, want alice", p.Owner)
	}
	if p.IsPublished {
		t.Error("new post should be unpublished")
	}

	// Empty fields keep their value.
	edited, err := s.UpdatePost(ctx, alice.ID, p.ID, model.PostInput{Title: strPtr(""), Content: strPtr("New body")})
	if err != nil {
		t.Fatalf("UpdatePost() error = %v", err)
	}
	if edited.Title != "Hello" || edited.Content != "New body" {
		t.Errorf("UpdatePost() = %q/%q, want Hello/New body", edited.Title, edited.Content)
	}

	if _, err := s.UpdatePost(ctx, bob.ID, p.ID, model.PostInput{Title: strPtr("x")}); !errors.Is(err, ErrForbidden) {
		t.Errorf("UpdatePost by other user error = %v, want ErrForbidden", err)
	}

	toggled, err := s.TogglePublish(ctx, alice.ID, p.ID)
	if err != nil {
		t.Fatalf("TogglePublish() error = %v", err)
	}
	if !toggled.IsPublished {
		t.Error("TogglePublish() should publish")
	}
	toggled, _ = s.TogglePublish(ctx, alice.ID, p.ID)
	if toggled.IsPublished {
		t.Error("second TogglePublish() should unpublish")
	}

	if err := s.DeletePost(ctx, bob.ID, p.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("DeletePost by other user error = %v, want ErrForbidden", err)
	}
	if err := s.DeletePost(ctx, alice.ID, p.ID); err != nil {
		t.Fatalf("DeletePost() error = %v", err)
	}
	if _, err := s.PostByID(ctx, p.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("PostByID after delete error = %v, want ErrNotFound", err)
	}
	if err := s.DeletePost(ctx, alice.ID, p.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeletePost error = %v, want ErrNotFound", err)
	}
}

func TestCreatePost_Validation(t *testing.T) {
	s := setupTestStore(t)
	alice := createUser(t, s, "alice")

	_, err := s.CreatePost(context.Background(), alice.ID, model.PostInput{Title: strPtr("  "), Content: strPtr("x")})
	if !errors.Is(err, ErrInvalid) {
		t.Errorf("CreatePost(blank title) error = %v, want ErrInvalid", err)
	}
	_, err = s.CreatePost(context.Background(), alice.ID, model.PostInput{Title: strPtr("t")})
	if !errors.Is(err, ErrInvalid) {
		t.Errorf("CreatePost(no content) error = %v, want ErrInvalid", err)
	}
}

func TestListByOwner(t *testing.T) {
	s := setupTestStore(t)
	s.now = fixedClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Second)
	alice := createUser(t, s, "alice")
	bob := createUser(t, s, "bob")

	first := createPost(t, s, alice.ID, "first", true)
	second := createPost(t, s, alice.ID, "draft", false)
	createPost(t, s, bob.ID, "bob's", true)

	posts, err := s.ListByOwner(context.Background(), alice.ID)
	if err != nil {
		t.Fatalf("ListByOwner() error = %v", err)
	}
	if len(posts) != 2 {
		t.Fatalf("ListByOwner() returned %d posts, want 2", len(posts))
	}
	if posts[0].ID != second.ID || posts[1].ID != first.ID {
		t.Errorf("ListByOwner() order = [%s %s], want newest first", posts[0].Title, posts[1].Title)
	}

	none, err := s.ListByOwner(context.Background(), "nobody")
	if err != nil || none == nil || len(none) != 0 {
		t.Errorf("ListByOwner(nobody) = %v, %v; want empty non-nil slice", none, err)
	}
}

func TestDeleteUserCascades(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	alice := createUser(t, s, "alice")
	createPost(t, s, alice.ID, "p", true)

	if _, err := s.db.ExecContext(ctx, "DELETE FROM users WHERE id = ?", alice.ID); err != nil {
		t.Fatalf("delete user: %v", err)
	}
	n, _ := s.CountPublished(ctx)
	if n != 0 {
		t.Errorf("CountPublished() after owner delete = %d, want 0", n)
	}
}

func seedPublished(t *testing.T, s *Store, ownerID string, n int) []model.Post {
	t.Helper()
	posts := make([]model.Post, n)
	for i := range posts {
		posts[i] = createPost(t, s, ownerID, fmt.Sprintf("post %02d", i+1), true)
	}
	return posts
}
