package resources

import (
	"sync"

	"github.com/google/uuid"
	"github.com/spaghettifunk/aurora/engine/core"
	"github.com/spaghettifunk/aurora/engine/renderer/gpu"
)

type Resource interface {
	ID() uuid.UUID
	Name() string
}

type releasable interface {
	Resource
	release(dev gpu.Device)
}

// Registry owns every allocated resource until it is released on resize or
// at shutdown. Resources are never released mid frame.
type Registry struct {
	dev     gpu.Device
	mu      sync.Mutex
	entries map[uuid.UUID]releasable
	order   []uuid.UUID
}

func NewRegistry(dev gpu.Device) *Registry {
	return &Registry{
		dev:     dev,
		entries: make(map[uuid.UUID]releasable),
	}
}

func (r *Registry) add(res releasable) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[res.ID()] = res
	r.order = append(r.order, res.ID())
}

// Release destroys the physical resources of res. The caller must have
// waited for the device to go idle.
func (r *Registry) Release(res Resource) {
	if res == nil {
		return
	}
	r.mu.Lock()
	entry, ok := r.entries[res.ID()]
	if ok {
		delete(r.entries, res.ID())
		for i, id := range r.order {
			if id == res.ID() {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}
	r.mu.Unlock()
	if !ok {
		core.LogWarn("release of unregistered resource %s", res.Name())
		return
	}
	entry.release(r.dev)
}

// ReleaseAll destroys every registered resource, newest first.
func (r *Registry) ReleaseAll() {
	r.mu.Lock()
	order := r.order
	entries := r.entries
	r.order = nil
	r.entries = make(map[uuid.UUID]releasable)
	r.mu.Unlock()

	for i := len(order) - 1; i >= 0; i-- {
		entries[order[i]].release(r.dev)
	}
	core.LogDebug("released %d resources", len(order))
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
