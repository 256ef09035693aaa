package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/Sternrassler/postfeed/internal/store"
	"github.com/Sternrassler/postfeed/pkg/client"
	"github.com/google/uuid"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes the standard error envelope.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, client.ErrorEnvelope{StatusCode: status, Message: message})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// validID reports whether id can name a stored record.
func validID(id string) bool {
	return uuid.Validate(id) == nil
}

// writeStoreError maps store errors to HTTP statuses. Unknown errors are
// logged and answered with 500.
func (s *Server) writeStoreError(w http.ResponseWriter, r *http.Request, err error, notFound string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, notFound)
	case errors.Is(err, store.ErrForbidden):
		writeError(w, http.StatusForbidden, "Not allowed to modify this post")
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, "User with email or username already exists")
	case errors.Is(err, store.ErrInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error().Err(err).Str("endpoint", r.URL.Path).Msg("Store operation failed")
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}
