package server

import (
	"errors"
	"net/http"

	"github.com/Sternrassler/postfeed/internal/auth"
	"github.com/Sternrassler/postfeed/internal/store"
	"github.com/Sternrassler/postfeed/pkg/model"
	"github.com/Sternrassler/postfeed/pkg/pagination"
	"github.com/go-chi/chi/v5"
)

type itemsResponse[T any] struct {
	Items []T `json:"items"`
}

// handleHome serves one page of published posts. Out-of-range page and limit
// values are clamped. A page past the end is an empty 200; 404 is reserved
// for a feed with no published posts at all.
func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req := pagination.FromQuery(r.URL.Query())

	page, err := s.store.PublishedPage(ctx, req)
	if errors.Is(err, store.ErrInvalid) {
		writeError(w, http.StatusBadRequest, "Invalid cursor")
		return
	}
	if err != nil {
		s.writeStoreError(w, r, err, "")
		return
	}

	if len(page.Items) == 0 {
		n, err := s.store.CountPublished(ctx)
		if err != nil {
			s.writeStoreError(w, r, err, "")
			return
		}
		if n == 0 {
			writeError(w, http.StatusNotFound, "No published posts found")
			return
		}
	}

	writeJSON(w, http.StatusOK, page)
}

// handleMyPosts lists every post of the caller, published or not.
func (s *Server) handleMyPosts(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	if !validID(userID) {
		writeError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}
	if userID != auth.UserID(r.Context()) {
		writeError(w, http.StatusForbidden, "Unauthorized to access the posts of this user")
		return
	}

	posts, err := s.store.ListByOwner(r.Context(), userID)
	if err != nil {
		s.writeStoreError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, itemsResponse[model.Post]{Items: posts})
}
