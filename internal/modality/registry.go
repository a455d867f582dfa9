package modality

import (
	"sync"

	"github.com/ashureev/interview-funnel/internal/backend"
)

// Registry holds one Controller per interview session.
type Registry struct {
	transcriber backend.Transcriber
	opts        Options

	mu          sync.Mutex
	controllers map[string]*Controller
}

// NewRegistry creates an empty registry. Every controller shares transcriber and opts.
func NewRegistry(transcriber backend.Transcriber, opts Options) *Registry {
	return &Registry{
		transcriber: transcriber,
		opts:        opts,
		controllers: make(map[string]*Controller),
	}
}

// Get returns the controller for sessionID, creating it bound to submitter.
func (r *Registry) Get(sessionID string, submitter Submitter) *Controller {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.controllers[sessionID]; ok {
		return c
	}
	c := NewController(submitter, r.transcriber, r.opts)
	r.controllers[sessionID] = c
	return c
}

// Peek returns the controller for sessionID without creating one.
func (r *Registry) Peek(sessionID string) (*Controller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.controllers[sessionID]
	return c, ok
}

// Remove discards the controller for sessionID, abandoning any capture.
func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	c, ok := r.controllers[sessionID]
	delete(r.controllers, sessionID)
	r.mu.Unlock()
	if ok {
		c.Cancel()
	}
}
