package server

import (
	"net/http"

	"github.com/Sternrassler/postfeed/internal/auth"
	"github.com/Sternrassler/postfeed/pkg/model"
	"github.com/go-chi/chi/v5"
)

const postNotFound = "Post not found"

// postID returns the {id} URL parameter, answering 400 when it is malformed.
func postID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if !validID(id) {
		writeError(w, http.StatusBadRequest, "Invalid post ID")
		return "", false
	}
	return id, true
}

func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	id, ok := postID(w, r)
	if !ok {
		return
	}
	post, err := s.store.PostByID(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, r, err, postNotFound)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

func (s *Server) handleAddPost(w http.ResponseWriter, r *http.Request) {
	var in model.PostInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	userID := auth.UserID(r.Context())
	post, err := s.store.CreatePost(r.Context(), userID, in)
	if err != nil {
		s.writeStoreError(w, r, err, postNotFound)
		return
	}
	if post.IsPublished {
		s.invalidateFeed(r.Context())
	}

	s.logger.Info().Str("user_id", userID).Str("post_id", post.ID).Msg("Post created")
	writeJSON(w, http.StatusCreated, post)
}

func (s *Server) handleEditPost(w http.ResponseWriter, r *http.Request) {
	id, ok := postID(w, r)
	if !ok {
		return
	}
	var in model.PostInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	post, err := s.store.UpdatePost(r.Context(), auth.UserID(r.Context()), id, in)
	if err != nil {
		s.writeStoreError(w, r, err, postNotFound)
		return
	}
	s.invalidateFeed(r.Context())
	writeJSON(w, http.StatusOK, post)
}

func (s *Server) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	id, ok := postID(w, r)
	if !ok {
		return
	}
	if err := s.store.DeletePost(r.Context(), auth.UserID(r.Context()), id); err != nil {
		s.writeStoreError(w, r, err, postNotFound)
		return
	}
	s.invalidateFeed(r.Context())
	writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) handleTogglePublish(w http.ResponseWriter, r *http.Request) {
	id, ok := postID(w, r)
	if !ok {
		return
	}
	post, err := s.store.TogglePublish(r.Context(), auth.UserID(r.Context()), id)
	if err != nil {
		s.writeStoreError(w, r, err, postNotFound)
		return
	}
	s.invalidateFeed(r.Context())
	writeJSON(w, http.StatusOK, post)
}
