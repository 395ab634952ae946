package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/your-org/vtrack/internal/models"
	"github.com/your-org/vtrack/internal/observability"
	"github.com/your-org/vtrack/internal/track"
)

// ReconnectPolicy decides what happens when a client opens a session while
// it already has one.
type ReconnectPolicy int

const (
	// ReconnectRefuse rejects the new connection.
	ReconnectRefuse ReconnectPolicy = iota
	// ReconnectReplace closes the existing session and serves the new one.
	ReconnectReplace
)

// ParseReconnectPolicy maps a config string to a policy, defaulting to
// replace: a camera that reconnects after a network blip should win over its
// own stale session.
func ParseReconnectPolicy(s string) ReconnectPolicy {
	if s == "refuse" {
		return ReconnectRefuse
	}
	return ReconnectReplace
}

// Config tunes session lifecycle handling.
type Config struct {
	// HeartbeatInterval is how often the sweep checks liveness.
	HeartbeatInterval time.Duration
	// HeartbeatTimeout closes a session that has been silent this long.
	HeartbeatTimeout time.Duration
	// ReconnectPolicy selects duplicate-client handling.
	ReconnectPolicy ReconnectPolicy
	// MaxReconnectAttempts bounds how many times a replacing Open waits
	// for the predecessor session to vacate the registry.
	MaxReconnectAttempts int
	// ReconnectBackoff is the delay between those attempts.
	ReconnectBackoff time.Duration
	// InboundBuffer bounds each session's frame queue.
	InboundBuffer int
	// ResultBuffer bounds each session's result queue.
	ResultBuffer int
}

// Manager owns the session registry. It is the only component that creates
// or destroys sessions; everything else holds a *Session it was handed.
type Manager struct {
	cfg      Config
	pipe     Pipeline
	trackCfg track.Config

	mu       sync.Mutex
	sessions map[string]*Session
	now      func() time.Time
}

// NewManager creates a session manager. Run must be started for heartbeat
// sweeping to happen.
func NewManager(cfg Config, pipe Pipeline, trackCfg track.Config) *Manager {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 5 * time.Second
	}
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = 30 * time.Second
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = 3
	}
	if cfg.ReconnectBackoff <= 0 {
		cfg.ReconnectBackoff = 200 * time.Millisecond
	}
	if cfg.InboundBuffer <= 0 {
		cfg.InboundBuffer = 8
	}
	if cfg.ResultBuffer <= 0 {
		cfg.ResultBuffer = 64
	}
	return &Manager{
		cfg:      cfg,
		pipe:     pipe,
		trackCfg: trackCfg,
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// Open creates a session for clientID. An existing session for the same
// client is handled per the reconnect policy: refused, or closed and
// replaced.
func (m *Manager) Open(ctx context.Context, clientID string) (*Session, error) {
	if clientID == "" {
		return nil, errors.New("client id required")
	}

	if err := m.vacate(ctx, clientID); err != nil {
		return nil, err
	}

	s := newSession(ctx, clientID, m.pipe, track.NewTracker(m.trackCfg),
		m.cfg.InboundBuffer, m.cfg.ResultBuffer, m.remove)

	m.mu.Lock()
	if prev := m.sessions[clientID]; prev != nil && prev != s {
		// Lost a race against another Open for the same client.
		m.mu.Unlock()
		s.Close(models.ErrDuplicateSession)
		return nil, models.ErrDuplicateSession
	}
	m.sessions[clientID] = s
	n := len(m.sessions)
	m.mu.Unlock()

	observability.ActiveSessions.Set(float64(n))
	slog.Info("session opened", "client_id", clientID, "active", n)
	return s, nil
}

// vacate resolves an existing session for the client per the reconnect
// policy: refuse outright, or close the predecessor and wait — a bounded
// number of backoff-gated attempts — for it to leave the registry. Two live
// sessions for one client id can never coexist.
func (m *Manager) vacate(ctx context.Context, clientID string) error {
	existing, ok := m.Get(clientID)
	if !ok {
		return nil
	}
	if m.cfg.ReconnectPolicy == ReconnectRefuse {
		return models.ErrDuplicateSession
	}

	slog.Info("replacing session for reconnecting client", "client_id", clientID)
	existing.Close(models.ErrDuplicateSession)

	for attempt := 0; attempt < m.cfg.MaxReconnectAttempts; attempt++ {
		if cur, ok := m.Get(clientID); !ok || cur != existing {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.cfg.ReconnectBackoff):
		}
	}
	if cur, ok := m.Get(clientID); ok && cur == existing {
		return models.ErrDuplicateSession
	}
	return nil
}

// Get returns the live session for clientID, if any.
func (m *Manager) Get(clientID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[clientID]
	return s, ok
}

// Close closes the client's session if one exists. Closing an unknown or
// already-closed client is a no-op.
func (m *Manager) Close(clientID string) {
	if s, ok := m.Get(clientID); ok {
		s.Close(nil)
	}
}

// Sessions snapshots the registry for reporting.
func (m *Manager) Sessions() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Run sweeps for dead sessions until ctx ends, then closes everything.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.closeAll()
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

// sweep closes sessions whose last heartbeat is older than the timeout.
func (m *Manager) sweep() {
	cutoff := m.now().Add(-m.cfg.HeartbeatTimeout)

	m.mu.Lock()
	var expired []*Session
	for _, s := range m.sessions {
		if s.LastHeartbeat().Before(cutoff) {
			expired = append(expired, s)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		observability.SessionTimeouts.Inc()
		slog.Warn("session heartbeat expired", "client_id", s.ClientID())
		s.Close(models.ErrSessionTimeout)
	}
}

func (m *Manager) closeAll() {
	for _, s := range m.Sessions() {
		s.Close(nil)
	}
}

// remove is the session's close hook; it drops the registry entry only if
// it still points at the closing session, so a replacement is never evicted
// by its predecessor's cleanup.
func (m *Manager) remove(s *Session) {
	m.mu.Lock()
	if m.sessions[s.clientID] == s {
		delete(m.sessions, s.clientID)
	}
	n := len(m.sessions)
	m.mu.Unlock()
	observability.ActiveSessions.Set(float64(n))
}
