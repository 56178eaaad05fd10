package form

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// SessionsConfig holds configuration for a session registry.
type SessionsConfig struct {
	// Form is the template every new session is created from.
	Form Config

	// IdleTimeout closes sessions not used for this long.
	// Default: 30 minutes
	IdleTimeout time.Duration

	// MaxSessions caps the number of open sessions. When full, the least
	// recently used session is closed to make room only if it has been idle
	// for longer than IdleTimeout.
	// Default: 1000
	MaxSessions int

	// Now returns the current time (optional, defaults to time.Now).
	Now func() time.Time

	Logger zerolog.Logger
}

// ErrTooManySessions is returned by Open when the registry is full of
// sessions that are still in use.
var ErrTooManySessions = errors.New("too many open form sessions")

// Sessions tracks the open form sessions of a multi-client console.
type Sessions struct {
	cfg SessionsConfig
	now func() time.Time

	mu    sync.Mutex
	forms map[string]*sessionEntry
}

type sessionEntry struct {
	form     *Form
	lastSeen time.Time
}

// NewSessions creates an empty session registry.
func NewSessions(cfg SessionsConfig) *Sessions {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 30 * time.Minute
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 1000
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.Form.Logger = cfg.Logger
	return &Sessions{
		cfg:   cfg,
		now:   cfg.Now,
		forms: make(map[string]*sessionEntry),
	}
}

// Open mounts a new form session.
func (s *Sessions) Open() (*Form, error) {
	s.mu.Lock()
	var evicted *Form
	if len(s.forms) >= s.cfg.MaxSessions {
		evicted = s.evictIdleLocked()
		if evicted == nil {
			s.mu.Unlock()
			return nil, ErrTooManySessions
		}
	}
	f := New(s.cfg.Form)
	s.forms[f.ID()] = &sessionEntry{form: f, lastSeen: s.now()}
	s.mu.Unlock()

	if evicted != nil {
		evicted.Close()
		s.cfg.Logger.Info().Str("form_id", evicted.ID()).Msg("form session evicted")
	}
	return f, nil
}

// Get returns the session with id and marks it as used.
func (s *Sessions) Get(id string) (*Form, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.forms[id]
	if !ok {
		return nil, false
	}
	e.lastSeen = s.now()
	return e.form, true
}

// Close unmounts and forgets the session with id.
func (s *Sessions) Close(id string) bool {
	s.mu.Lock()
	e, ok := s.forms[id]
	delete(s.forms, id)
	s.mu.Unlock()

	if ok {
		e.form.Close()
	}
	return ok
}

// Len returns the number of open sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.forms)
}

// Sweep closes sessions idle for longer than the idle timeout and returns
// how many were closed.
func (s *Sessions) Sweep() int {
	cutoff := s.now().Add(-s.cfg.IdleTimeout)

	s.mu.Lock()
	var idle []*Form
	for id, e := range s.forms {
		if e.lastSeen.Before(cutoff) {
			idle = append(idle, e.form)
			delete(s.forms, id)
		}
	}
	s.mu.Unlock()

	for _, f := range idle {
		f.Close()
	}
	return len(idle)
}

// Run sweeps idle sessions every interval until ctx is done, then closes
// every remaining session.
func (s *Sessions) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.CloseAll()
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.cfg.Logger.Debug().Int("closed", n).Msg("idle form sessions closed")
			}
		}
	}
}

// CloseAll unmounts every session.
func (s *Sessions) CloseAll() {
	s.mu.Lock()
	forms := make([]*Form, 0, len(s.forms))
	for _, e := range s.forms {
		forms = append(forms, e.form)
	}
	s.forms = make(map[string]*sessionEntry)
	s.mu.Unlock()

	for _, f := range forms {
		f.Close()
	}
}

// evictIdleLocked removes the least recently used session if it has been
// idle for longer than the idle timeout.
func (s *Sessions) evictIdleLocked() *Form {
	var (
		oldestID string
		oldest   *sessionEntry
	)
	for id, e := range s.forms {
		if oldest == nil || e.lastSeen.Before(oldest.lastSeen) {
			oldestID, oldest = id, e
		}
	}
	if oldest == nil || !oldest.lastSeen.Before(s.now().Add(-s.cfg.IdleTimeout)) {
		return nil
	}
	delete(s.forms, oldestID)
	return oldest.form
}
