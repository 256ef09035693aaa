package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/Sternrassler/postfeed/internal/auth"
	"github.com/Sternrassler/postfeed/internal/store"
	"github.com/Sternrassler/postfeed/pkg/client"
	"github.com/Sternrassler/postfeed/pkg/model"
)

// MinPasswordLength is the shortest password accepted at signup.
const MinPasswordLength = 6

type accessTokenResponse struct {
	AccessToken string `json:"accessToken"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var in client.SignupRequest
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(in.Username) == "" || !strings.Contains(in.Email, "@") {
		writeError(w, http.StatusBadRequest, "Username and a valid email are required")
		return
	}
	if len(in.Password) < MinPasswordLength {
		writeError(w, http.StatusBadRequest, "Password must be at least 6 characters")
		return
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		s.logger.Error().Err(err).Msg("Password hashing failed")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	user, err := s.store.CreateUser(r.Context(), in.Username, in.Email, hash)
	if err != nil {
		s.writeStoreError(w, r, err, "")
		return
	}

	s.logger.Info().Str("user_id", user.ID).Msg("User signed up")
	writeJSON(w, http.StatusCreated, user)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds client.Credentials
	if err := decodeJSON(w, r, &creds); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	login := creds.Email
	if login == "" {
		login = creds.Username
	}
	if login == "" || creds.Password == "" {
		writeError(w, http.StatusBadRequest, "Email or username and password are required")
		return
	}

	user, err := s.store.UserByLogin(r.Context(), login)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if err != nil {
		s.writeStoreError(w, r, err, "")
		return
	}
	if err := s.hasher.Compare(user.PasswordHash, creds.Password); err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	access, ok := s.issueSession(w, r, user.User, "")
	if !ok {
		return
	}
	s.logger.Info().Str("user_id", user.ID).Msg("User logged in")
	writeJSON(w, http.StatusOK, client.LoginResult{AccessToken: access, User: user.User})
}

// handleRefresh exchanges the refresh cookie for a new access token and
// rotates the refresh token. A token that is not the latest one issued is
// rejected, which also covers tokens revoked by logout.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(RefreshCookie)
	if err != nil || cookie.Value == "" {
		writeError(w, http.StatusUnauthorized, "Refresh token missing")
		return
	}
	claims, err := s.tokens.ParseRefresh(cookie.Value)
	if err != nil {
		s.logger.Debug().Err(err).Msg("Refresh token rejected")
		writeError(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}

	user, err := s.store.UserByID(r.Context(), claims.UserID())
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}
	if err != nil {
		s.writeStoreError(w, r, err, "")
		return
	}
	if user.RefreshTokenID == "" || user.RefreshTokenID != claims.ID {
		s.clearRefreshCookie(w)
		writeError(w, http.StatusUnauthorized, "Refresh token is expired or used")
		return
	}

	access, ok := s.issueSession(w, r, user.User, claims.ID)
	if !ok {
		return
	}
	s.logger.Debug().Str("user_id", user.ID).Msg("Access token refreshed")
	writeJSON(w, http.StatusOK, accessTokenResponse{AccessToken: access})
}

// handleLogout revokes the refresh token named by the cookie, if any, and
// clears the cookie. It always succeeds.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(RefreshCookie); err == nil {
		if claims, err := s.tokens.ParseRefresh(cookie.Value); err == nil {
			if err := s.store.SetRefreshTokenID(r.Context(), claims.UserID(), ""); err != nil && !errors.Is(err, store.ErrNotFound) {
				s.writeStoreError(w, r, err, "")
				return
			}
			s.logger.Info().Str("user_id", claims.UserID()).Msg("User logged out")
		}
	}
	s.clearRefreshCookie(w)
	writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.store.UserByID(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		s.writeStoreError(w, r, err, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, user.User)
}

// issueSession issues an access token and a fresh refresh token, stores the
// refresh token id and sets the cookie. A non-empty prevRefreshID is rotated
// out and must still be the stored one.
func (s *Server) issueSession(w http.ResponseWriter, r *http.Request, user model.User, prevRefreshID string) (string, bool) {
	access, err := s.tokens.IssueAccess(user)
	if err != nil {
		s.logger.Error().Err(err).Msg("Issuing access token failed")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return "", false
	}
	refresh, refreshID, err := s.tokens.IssueRefresh(user.ID)
	if err != nil {
		s.logger.Error().Err(err).Msg("Issuing refresh token failed")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return "", false
	}
	if prevRefreshID == "" {
		err = s.store.SetRefreshTokenID(r.Context(), user.ID, refreshID)
	} else {
		err = s.store.RotateRefreshTokenID(r.Context(), user.ID, prevRefreshID, refreshID)
		if errors.Is(err, store.ErrNotFound) {
			// A concurrent refresh with the same token won.
			s.clearRefreshCookie(w)
			writeError(w, http.StatusUnauthorized, "Refresh token is expired or used")
			return "", false
		}
	}
	if err != nil {
		s.writeStoreError(w, r, err, "User not found")
		return "", false
	}

	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookie,
		Value:    refresh,
		Path:     "/auth",
		MaxAge:   int(s.tokens.RefreshTTL().Seconds()),
		HttpOnly: true,
		Secure:   s.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	return access, true
}

func (s *Server) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookie,
		Value:    "",
		Path:     "/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
