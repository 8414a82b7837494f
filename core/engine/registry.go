package engine

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hyperterse/queryengine/core/observability"
	"github.com/hyperterse/queryengine/core/shared/errors"
)

// Registry owns every engine created in the process. Handles are arena
// indices: they are assigned in insertion order starting at 0 and never
// reused. Engines are never removed.
type Registry struct {
	mu      sync.RWMutex
	engines []*Engine
}

// NewRegistry returns an empty registry
func NewRegistry() *Registry {
	return &Registry{}
}

// Insert assigns the next handle to e and stores it
func (r *Registry) Insert(e *Engine) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	h := Handle(len(r.engines))
	e.handle = h
	r.engines = append(r.engines, e)
	observability.EngineRegistered()
	return h
}

// Create builds an engine from opts and inserts it
func (r *Registry) Create(opts Options, deps Deps) (Handle, error) {
	e, err := New(opts, deps)
	if err != nil {
		return -1, err
	}
	return r.Insert(e), nil
}

// Get returns the engine registered under h
func (r *Registry) Get(h Handle) (*Engine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if h < 0 || int64(h) >= int64(len(r.engines)) {
		return nil, false
	}
	return r.engines[h], true
}

// Lookup is Get with the boundary's not-found error
func (r *Registry) Lookup(h Handle) (*Engine, error) {
	e, ok := r.Get(h)
	if !ok {
		return nil, errors.EngineNotFound()
	}
	return e, nil
}

// Len returns the number of registered engines
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.engines)
}

// Each calls fn for a snapshot of the registered engines, in handle order
func (r *Registry) Each(fn func(*Engine)) {
	r.mu.RLock()
	snapshot := make([]*Engine, len(r.engines))
	copy(snapshot, r.engines)
	r.mu.RUnlock()

	for _, e := range snapshot {
		fn(e)
	}
}

// DisconnectAll disconnects every connected engine concurrently. It is used
// on shutdown; engines that are not connected are skipped.
func (r *Registry) DisconnectAll(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	r.Each(func(e *Engine) {
		if !e.IsConnected() {
			return
		}
		g.Go(func() error {
			err := e.Disconnect(ctx)
			if errors.IsKind(err, errors.KindNotConnected) {
				return nil
			}
			return err
		})
	})
	return g.Wait()
}
