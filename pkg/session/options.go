package session

import (
	"log/slog"
	"time"

	"github.com/goliatone/go-formflow/pkg/api"
	"github.com/goliatone/go-formflow/pkg/navigation"
)

// Option customises a Session.
type Option func(*Session)

// WithClient injects the backend client. Defaults to api.NopClient, which
// acknowledges everything locally.
func WithClient(client api.Client) Option {
	return func(s *Session) {
		if client != nil {
			s.client = client
		}
	}
}

// WithLogger injects the logger shared by every component the session owns.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithFlushInterval sets the synchronisation tick interval.
func WithFlushInterval(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.flushInterval = d
		}
	}
}

// WithChannel selects a named entry channel for the starting page.
func WithChannel(channel string) Option {
	return func(s *Session) { s.channel = channel }
}

// WithContinuousMode switches the navigation state to scroll-linked
// one-page rendering.
func WithContinuousMode() Option {
	return func(s *Session) { s.mode = navigation.ModeContinuous }
}

// WithSessionTimeout enables the inactivity watchdog. A session idle longer
// than d expires: terminal, and fatal to further mutation or flushing.
func WithSessionTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithToken resumes a previously issued session token instead of minting a
// fresh one. The host persists the token between visits.
func WithToken(token string) Option {
	return func(s *Session) {
		if token != "" {
			s.token = token
		}
	}
}

// WithClock overrides the time source. Tests use it to drive the
// inactivity watchdog deterministically.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}
