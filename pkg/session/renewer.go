package session

import (
	"io"
	"net/http"

	"github.com/Sternrassler/postfeed/pkg/client"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Renewer attaches the access token to every request and resolves 401
// responses through the session's single-flight refresh.
type Renewer struct {
	next    client.Doer
	session *Session
	logger  zerolog.Logger
}

var _ client.Doer = (*Renewer)(nil)

// NewRenewer wraps next, normally the *client.Client transport.
func NewRenewer(next client.Doer, s *Session) *Renewer {
	return &Renewer{
		next:    next,
		session: s,
		logger:  log.With().Str("component", "session-renewer").Logger(),
	}
}

// SetLogger replaces the renewer logger.
func (r *Renewer) SetLogger(logger zerolog.Logger) {
	r.logger = logger
}

// Do sends req with the current bearer token. On 401 it waits for a fresh
// token and resends req exactly once. A second 401 is returned to the
// caller as is.
//
// Without an active session req is sent anonymously, so public endpoints
// still work; a 401 then fails with ErrNoSession and no refresh.
func (r *Renewer) Do(req *http.Request) (*http.Response, error) {
	token, ok := r.session.Token()
	if !ok {
		return r.doAnonymous(req)
	}

	// Keep an unsent copy in case the first attempt consumes the body.
	replay, cloneErr := client.CloneRequest(req)

	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := r.next.Do(req)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	endpoint := req.URL.Path
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	canReplay := cloneErr == nil && (req.Body == nil || req.Body == http.NoBody || req.GetBody != nil)
	if !canReplay {
		authRetriesTotal.WithLabelValues("not_replayable").Inc()
		return nil, &client.APIError{
			StatusCode: http.StatusUnauthorized,
			Kind:       client.ErrorKindAuth,
			Message:    "access token rejected and request body cannot be replayed",
		}
	}

	r.logger.Debug().Str("endpoint", endpoint).Msg("Access token rejected, renewing")

	fresh, err := r.session.Renew(req.Context(), token)
	if err != nil {
		authRetriesTotal.WithLabelValues("renew_failed").Inc()
		return nil, err
	}

	replay.Header.Set("Authorization", "Bearer "+fresh)
	resp, err = r.next.Do(replay)
	if err != nil {
		authRetriesTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		authRetriesTotal.WithLabelValues("rejected").Inc()
		r.logger.Warn().Str("endpoint", endpoint).Msg("Renewed access token rejected")
		return resp, nil
	}

	authRetriesTotal.WithLabelValues("success").Inc()
	return resp, nil
}

func (r *Renewer) doAnonymous(req *http.Request) (*http.Response, error) {
	req.Header.Del("Authorization")
	resp, err := r.next.Do(req)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	return nil, &client.APIError{
		StatusCode: http.StatusUnauthorized,
		Kind:       client.ErrorKindAuth,
		Message:    "not logged in",
		Err:        ErrNoSession,
	}
}
