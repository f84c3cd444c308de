// Package registry holds the Raters the process constructs at startup, one
// per backend, and picks the one used to run inference.
package registry

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Brownie44l1/photo-rater/internal/model"
)

// State is the construction state of one backend.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateFailed  State = "failed"
)

// Entry reports one backend.
type Entry struct {
	State State  `json:"state"`
	Error string `json:"error,omitempty"`
}

// Registry owns one Rater per backend.
type Registry struct {
	cfg       model.Config
	preferred model.Backend

	mu     sync.RWMutex
	raters map[model.Backend]*model.Rater
	status map[model.Backend]Entry
	closed bool

	once   sync.Once
	group  errgroup.Group
	loaded chan struct{}
}

// New returns a registry for cfg. preferred is the backend used by
// Preferred; empty means gpu.
func New(cfg model.Config, preferred model.Backend) *Registry {
	if preferred == "" {
		preferred = model.BackendGPU
	}

	r := &Registry{
		cfg:       cfg,
		preferred: preferred,
		raters:    make(map[model.Backend]*model.Rater),
		status:    make(map[model.Backend]Entry),
		loaded:    make(chan struct{}),
	}
	for _, b := range model.Backends {
		r.status[b] = Entry{State: StateIdle}
	}
	return r
}

// Start begins constructing every backend in the background. A backend that
// fails to construct is logged and stays unavailable.
func (r *Registry) Start() {
	r.once.Do(func() {
		for _, b := range model.Backends {
			b := b // per-iteration copy; go.mod targets go 1.21 loop semantics
			r.setStatus(b, Entry{State: StateLoading})
			pending := model.Open(b, r.cfg)
			r.group.Go(func() error {
				r.record(b, <-pending)
				return nil
			})
		}

		go func() {
			_ = r.group.Wait()
			close(r.loaded)
		}()
	})
}

// Wait blocks until every backend finished constructing.
func (r *Registry) Wait(ctx context.Context) error {
	select {
	case <-r.loaded:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Load is Start followed by Wait.
func (r *Registry) Load(ctx context.Context) error {
	r.Start()
	return r.Wait(ctx)
}

func (r *Registry) record(b model.Backend, res model.OpenResult) {
	if res.Err != nil {
		slog.Error("failed to initialize", "backend", b, "error", res.Err)
		r.setStatus(b, Entry{State: StateFailed, Error: res.Err.Error()})
		return
	}

	r.mu.Lock()
	if r.closed {
		r.status[b] = Entry{State: StateIdle}
		r.mu.Unlock()

		if err := res.Rater.Close(); err != nil {
			slog.Warn("failed to release rater", "backend", b, "error", err)
		}
		return
	}
	r.raters[b] = res.Rater
	r.status[b] = Entry{State: StateReady}
	r.mu.Unlock()
}

func (r *Registry) setStatus(b model.Backend, e Entry) {
	r.mu.Lock()
	r.status[b] = e
	r.mu.Unlock()
}

// Get returns the Rater for b if it is ready.
func (r *Registry) Get(b model.Backend) (*model.Rater, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rater, ok := r.raters[b]
	return rater, ok
}

// Preferred returns the Rater chosen by the fixed preference. It does not
// fall back to another backend.
func (r *Registry) Preferred() (*model.Rater, bool) {
	return r.Get(r.preferred)
}

// PreferredBackend is the backend Preferred returns.
func (r *Registry) PreferredBackend() model.Backend {
	return r.preferred
}

// Status returns a snapshot of every backend.
func (r *Registry) Status() map[model.Backend]Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[model.Backend]Entry, len(r.status))
	for b, e := range r.status {
		out[b] = e
	}
	return out
}

// Close releases every ready Rater. A backend still loading is released
// as soon as it is ready.
func (r *Registry) Close() error {
	r.mu.Lock()
	r.closed = true
	raters := r.raters
	r.raters = make(map[model.Backend]*model.Rater)
	for b := range raters {
		r.status[b] = Entry{State: StateIdle}
	}
	r.mu.Unlock()

	var errs []error
	for _, rater := range raters {
		errs = append(errs, rater.Close())
	}
	return errors.Join(errs...)
}
