package interview

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/interview-funnel/internal/domain"
)

// ContextLoader resolves the Session Context for a funnel session.
type ContextLoader interface {
	Load(ctx context.Context, sessionID string) (*domain.SessionContext, error)
}

// Pruner removes stale persisted funnel data.
type Pruner interface {
	CleanupExpired(ctx context.Context, ttl time.Duration) (artifacts int64, transcripts int64, err error)
}

// EvictCallback is called after a session leaves the registry.
type EvictCallback func(sessionID string)

// persistedRetention bounds how long artifacts and transcripts are kept.
const persistedRetention = 7 * 24 * time.Hour

// Registry holds live interview sessions keyed by funnel session id.
type Registry struct {
	loader ContextLoader
	opts   Options

	mu       sync.RWMutex
	sessions map[string]*Session
	onEvict  []EvictCallback
}

// NewRegistry creates an empty registry. opts is applied to every new session.
func NewRegistry(loader ContextLoader, opts Options) *Registry {
	return &Registry{
		loader:   loader,
		opts:     opts.withDefaults(),
		sessions: make(map[string]*Session),
	}
}

// OnEvict registers a callback run whenever a session is removed.
func (r *Registry) OnEvict(cb EvictCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onEvict = append(r.onEvict, cb)
}

// Start returns the live session for sessionID, creating it and running the
// greeting when none exists. Context load errors are returned unchanged and
// no session is created.
func (r *Registry) Start(ctx context.Context, sessionID string) (*Session, error) {
	if s, ok := r.Get(sessionID); ok {
		return s, nil
	}

	sc, err := r.loader.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	s, exists := r.sessions[sessionID]
	if !exists {
		s = NewSession(sc, r.opts)
		r.sessions[sessionID] = s
	}
	n := len(r.sessions)
	r.mu.Unlock()

	if !exists {
		r.opts.Metrics.SetActiveSessions(n)
		r.opts.Logger.Info("interview session registered",
			"session_id", sessionID,
			"company", sc.CompanyName)
	}

	s.Begin(ctx)
	return s, nil
}

// Get returns the live session for sessionID.
func (r *Registry) Get(sessionID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	return s, ok
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Remove drops a session from memory.
func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	_, ok := r.sessions[sessionID]
	delete(r.sessions, sessionID)
	n := len(r.sessions)
	callbacks := append([]EvictCallback(nil), r.onEvict...)
	r.mu.Unlock()

	if !ok {
		return
	}
	r.opts.Metrics.SetActiveSessions(n)
	for _, cb := range callbacks {
		cb(sessionID)
	}
	r.opts.Logger.Info("interview session removed", "session_id", sessionID)
}

// Sweep removes sessions idle since before now-ttl and returns their ids.
// Sessions with an exchange in flight are kept.
func (r *Registry) Sweep(now time.Time, ttl time.Duration) []string {
	r.mu.RLock()
	var expired []string
	for id, s := range r.sessions {
		if s.InFlight() {
			continue
		}
		if now.Sub(s.LastActive()) > ttl {
			expired = append(expired, id)
		}
	}
	r.mu.RUnlock()

	for _, id := range expired {
		r.Remove(id)
	}
	return expired
}

// RunSweeper periodically evicts idle sessions and prunes persisted data
// until ctx is done. pruner may be nil.
func (r *Registry) RunSweeper(ctx context.Context, interval, ttl time.Duration, pruner Pruner) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	slog.Info("session sweeper started", "interval", interval, "ttl", ttl)

	for {
		select {
		case <-ticker.C:
			r.sweepOnce(ctx, ttl, pruner)
		case <-ctx.Done():
			slog.Info("session sweeper shutting down", "reason", ctx.Err())
			return
		}
	}
}

func (r *Registry) sweepOnce(ctx context.Context, ttl time.Duration, pruner Pruner) {
	if evicted := r.Sweep(r.opts.Now(), ttl); len(evicted) > 0 {
		slog.Info("session sweeper evicted idle sessions", "count", len(evicted))
	}

	if pruner == nil {
		return
	}
	artifacts, transcripts, err := pruner.CleanupExpired(ctx, persistedRetention)
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("session sweeper failed to prune persisted data", "error", err)
		}
		return
	}
	if artifacts > 0 || transcripts > 0 {
		slog.Info("session sweeper pruned persisted data",
			"artifacts", artifacts,
			"transcripts", transcripts)
	}
}
