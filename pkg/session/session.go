// Package session holds the access credential of the feed client and renews
// it transparently when the server rejects it.
//
// At most one refresh call is outstanding at any time: every request that
// fails with 401 while a refresh is running waits for that refresh and is
// released with its result. A request is resent at most once per refresh.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Sternrassler/postfeed/pkg/client"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for session renewal.
var (
	refreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "postfeed_session_refreshes_total",
		Help: "Total refresh calls by result",
	}, []string{"result"})

	refreshWaitersTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "postfeed_session_refresh_waiters_total",
		Help: "Total requests that joined an in-flight refresh instead of starting one",
	})

	sessionsEndedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "postfeed_session_ended_total",
		Help: "Total sessions destroyed by logout or failed renewal",
	})

	authRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "postfeed_session_auth_retries_total",
		Help: "Total requests resent after a 401 by outcome",
	}, []string{"outcome"})
)

var (
	// ErrNoSession is returned for protected requests made before login.
	ErrNoSession = errors.New("no active session")

	// ErrSessionEnded is returned once the session has been destroyed,
	// either by logout or by a failed refresh.
	ErrSessionEnded = errors.New("session ended")
)

// Refresher exchanges the server-side refresh credential for a new access token.
// *client.AuthAPI implements it.
type Refresher interface {
	Refresh(ctx context.Context) (string, error)
}

// Config holds session configuration.
type Config struct {
	// RefreshTimeout bounds a single refresh call. The refresh is detached
	// from the cancellation of the request that started it.
	RefreshTimeout time.Duration
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{RefreshTimeout: 10 * time.Second}
}

// refreshCall is the shared future every concurrently failing request awaits.
type refreshCall struct {
	done  chan struct{}
	epoch uint64
	token string
	err   error
}

// Session is the process-wide access credential.
type Session struct {
	refresher Refresher
	config    Config
	logger    zerolog.Logger

	mu          sync.Mutex
	accessToken string
	active      bool
	epoch       uint64
	inflight    *refreshCall
	ended       chan struct{}
	hooks       []func(error)
}

// New creates an inactive session. Call Start after login.
func New(refresher Refresher, cfg Config) *Session {
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = DefaultConfig().RefreshTimeout
	}
	return &Session{
		refresher: refresher,
		config:    cfg,
		logger:    log.With().Str("component", "session").Logger(),
		ended:     make(chan struct{}),
	}
}

// SetLogger replaces the session logger.
func (s *Session) SetLogger(logger zerolog.Logger) {
	s.logger = logger
}

// Start begins a session with the token returned by login, replacing any
// previous one.
func (s *Session) Start(accessToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		s.ended = make(chan struct{})
	}
	s.epoch++
	s.accessToken = accessToken
	s.active = true
	s.logger.Debug().Uint64("epoch", s.epoch).Msg("Session started")
}

// Token returns the current access token.
func (s *Session) Token() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accessToken, s.active
}

// Active reports whether a session exists.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// RefreshInFlight reports whether a refresh call is outstanding.
func (s *Session) RefreshInFlight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight != nil
}

// Ended returns a channel closed when the current session is destroyed.
func (s *Session) Ended() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

// OnEnded registers fn to run whenever a session is destroyed. reason is
// nil for an explicit logout.
func (s *Session) OnEnded(fn func(reason error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, fn)
}

// Destroy ends the session. Waiting requests fail with ErrSessionEnded.
func (s *Session) Destroy(reason error) {
	s.mu.Lock()
	hooks, ended := s.destroyLocked()
	s.mu.Unlock()

	if ended {
		s.notifyEnded(hooks, reason)
	}
}

// destroyLocked clears the session and reports whether it was active.
func (s *Session) destroyLocked() ([]func(error), bool) {
	if !s.active {
		return nil, false
	}
	s.active = false
	s.accessToken = ""
	s.epoch++
	close(s.ended)
	sessionsEndedTotal.Inc()
	return append([]func(error){}, s.hooks...), true
}

func (s *Session) notifyEnded(hooks []func(error), reason error) {
	if reason != nil {
		s.logger.Warn().Err(reason).Msg("Session ended")
	} else {
		s.logger.Info().Msg("Session ended")
	}
	for _, fn := range hooks {
		fn(reason)
	}
}

// Renew returns an access token newer than stale.
//
// If the stored token already differs from stale, a refresh completed after
// the failed request was sent and the stored token is returned directly.
// Otherwise the caller joins the in-flight refresh, starting one if none is
// running. A failed refresh destroys the session.
func (s *Session) Renew(ctx context.Context, stale string) (string, error) {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return "", endedError(nil)
	}

	call := s.inflight
	if call == nil {
		if s.accessToken != stale {
			token := s.accessToken
			s.mu.Unlock()
			return token, nil
		}
		call = &refreshCall{done: make(chan struct{}), epoch: s.epoch}
		s.inflight = call
		go s.refresh(context.WithoutCancel(ctx), call)
	} else {
		refreshWaitersTotal.Inc()
	}
	s.mu.Unlock()

	select {
	case <-call.done:
		return call.token, call.err
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %w", client.ErrContextCancelled, ctx.Err())
	}
}

func (s *Session) refresh(parent context.Context, call *refreshCall) {
	ctx, cancel := context.WithTimeout(parent, s.config.RefreshTimeout)
	defer cancel()

	s.logger.Debug().Msg("Refreshing access token")
	token, err := s.refresher.Refresh(ctx)

	s.mu.Lock()
	s.inflight = nil

	var hooks []func(error)
	var ended bool
	switch {
	case err != nil && s.active && s.epoch != call.epoch:
		// The refresh belonged to a replaced session; the new one is live
		refreshesTotal.WithLabelValues("discarded").Inc()
		call.token = s.accessToken
	case err != nil:
		refreshesTotal.WithLabelValues("failure").Inc()
		call.err = endedError(err)
		if s.epoch == call.epoch {
			hooks, ended = s.destroyLocked()
		}
	case !s.active:
		// Logged out while the refresh was running
		refreshesTotal.WithLabelValues("discarded").Inc()
		call.err = endedError(nil)
	case s.epoch != call.epoch:
		// A new login replaced the session; hand out its token
		refreshesTotal.WithLabelValues("discarded").Inc()
		call.token = s.accessToken
	default:
		refreshesTotal.WithLabelValues("success").Inc()
		s.accessToken = token
		call.token = token
	}
	s.mu.Unlock()

	close(call.done)

	if ended {
		s.notifyEnded(hooks, err)
	} else if err == nil {
		s.logger.Debug().Msg("Access token refreshed")
	}
}

// endedError builds the terminal authentication error surfaced to callers.
func endedError(cause error) error {
	err := ErrSessionEnded
	if cause != nil {
		err = fmt.Errorf("%w: %w", ErrSessionEnded, cause)
	}
	return &client.APIError{
		StatusCode: http.StatusUnauthorized,
		Kind:       client.ErrorKindAuth,
		Message:    "session ended, please log in again",
		Err:        err,
	}
}
