package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

type contextKey struct{ name string }

var userIDKey = &contextKey{"user_id"}

// ErrorWriter writes an error response with the given status and message.
type ErrorWriter func(w http.ResponseWriter, status int, message string)

// Middleware rejects requests without a valid "Authorization: Bearer" access
// token with 401 and stores the token's user id in the request context.
func Middleware(tokens *Tokens, writeError ErrorWriter, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || raw == "" {
				writeError(w, http.StatusUnauthorized, "Unauthorized request")
				return
			}

			claims, err := tokens.ParseAccess(raw)
			if err != nil {
				logger.Debug().Err(err).Str("endpoint", r.URL.Path).Msg("Access token rejected")
				writeError(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), claims.UserID())))
		})
	}
}

// WithUserID returns a context carrying the authenticated user id.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserID returns the authenticated user id, or "" outside Middleware.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}
