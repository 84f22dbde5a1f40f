package soft

import (
	"fmt"
	"sync"

	"github.com/spaghettifunk/aurora/engine/renderer/gpu"
)

type bindingLayout struct {
	entries []gpu.BindingLayoutEntry
}

func (l *bindingLayout) Kinds() []gpu.BindingKind {
	kinds := make([]gpu.BindingKind, len(l.entries))
	for i, e := range l.entries {
		kinds[i] = e.Kind
	}
	return kinds
}

func (l *bindingLayout) entry(binding uint32) (gpu.BindingLayoutEntry, bool) {
	for _, e := range l.entries {
		if e.Binding == binding {
			return e, true
		}
	}
	return gpu.BindingLayoutEntry{}, false
}

type bindingGroup struct {
	mu        sync.Mutex
	layout    *bindingLayout
	resources map[uint32]gpu.BindingResource
}

func (g *bindingGroup) get(binding uint32) (gpu.BindingResource, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.resources[binding]
	return r, ok
}

type bindingPool struct {
	mu        sync.Mutex
	groups    int
	remaining map[gpu.BindingKind]int
}

func (p *bindingPool) Allocate(l gpu.BindingLayout, count int) ([]gpu.BindingGroup, error) {
	layout := l.(*bindingLayout)
	p.mu.Lock()
	defer p.mu.Unlock()

	need := map[gpu.BindingKind]int{}
	for _, e := range layout.entries {
		need[e.Kind] += count
	}
	if p.groups < count {
		return nil, fmt.Errorf("%d groups requested, %d left: %w", count, p.groups, gpu.ErrPoolExhausted)
	}
	for kind, n := range need {
		if p.remaining[kind] < n {
			return nil, fmt.Errorf("%d %s descriptors requested, %d left: %w", n, kind, p.remaining[kind], gpu.ErrPoolExhausted)
		}
	}
	p.groups -= count
	for kind, n := range need {
		p.remaining[kind] -= n
	}

	groups := make([]gpu.BindingGroup, count)
	for i := range groups {
		groups[i] = &bindingGroup{layout: layout, resources: map[uint32]gpu.BindingResource{}}
	}
	return groups, nil
}

func (d *Device) CreateBindingLayout(entries []gpu.BindingLayoutEntry) (gpu.BindingLayout, error) {
	seen := map[uint32]bool{}
	for _, e := range entries {
		if seen[e.Binding] {
			return nil, fmt.Errorf("binding %d declared twice", e.Binding)
		}
		seen[e.Binding] = true
	}
	d.track("binding_layout", 1)
	return &bindingLayout{entries: append([]gpu.BindingLayoutEntry(nil), entries...)}, nil
}

func (d *Device) DestroyBindingLayout(l gpu.BindingLayout) {
	if l != nil {
		d.track("binding_layout", -1)
	}
}

func (d *Device) CreateBindingPool(desc gpu.BindingPoolDesc) (gpu.BindingPool, error) {
	remaining := make(map[gpu.BindingKind]int, len(desc.Capacities))
	for k, v := range desc.Capacities {
		remaining[k] = v
	}
	d.track("binding_pool", 1)
	return &bindingPool{groups: desc.MaxGroups, remaining: remaining}, nil
}

func (d *Device) DestroyBindingPool(p gpu.BindingPool) {
	if p != nil {
		d.track("binding_pool", -1)
	}
}

func (d *Device) WriteBindings(writes []gpu.BindingWrite) {
	for _, w := range writes {
		g := w.Group.(*bindingGroup)
		e, ok := g.layout.entry(w.Binding)
		if !ok {
			d.validate("write to undeclared binding %d", w.Binding)
			continue
		}
		if e.Kind != w.Kind {
			d.validate("binding %d declared %s, written as %s", w.Binding, e.Kind, w.Kind)
		}
		g.mu.Lock()
		g.resources[w.Binding] = w.Resource
		g.mu.Unlock()
	}
}
