// Package binding builds shader visible binding sets with one physical
// instance per frame slot.
package binding

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spaghettifunk/aurora/engine/core"
	"github.com/spaghettifunk/aurora/engine/renderer/gpu"
	"github.com/spaghettifunk/aurora/engine/renderer/resources"
)

// Bindable resources provide what gets written for a given slot.
type Bindable interface {
	resources.Resource
	BindingResource(slot int) gpu.BindingResource
}

type AllocatorConfig struct {
	FrameCount int
	// MaxSets bounds the number of logical sets; each uses FrameCount groups.
	MaxSets int
	// PerKind bounds the descriptors of each kind across all groups.
	PerKind map[gpu.BindingKind]int
}

// Allocator creates binding sets out of a single pool sized at startup.
type Allocator struct {
	dev        gpu.Device
	pool       gpu.BindingPool
	frameCount int
	sets       []*Set
}

func NewAllocator(dev gpu.Device, config AllocatorConfig) (*Allocator, error) {
	if config.FrameCount <= 0 {
		return nil, fmt.Errorf("binding allocator: frame count must be positive")
	}
	caps := make(map[gpu.BindingKind]int, len(config.PerKind))
	for k, v := range config.PerKind {
		caps[k] = v
	}
	pool, err := dev.CreateBindingPool(gpu.BindingPoolDesc{
		MaxGroups:  config.MaxSets * config.FrameCount,
		Capacities: caps,
	})
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	return &Allocator{dev: dev, pool: pool, frameCount: config.FrameCount}, nil
}

func (a *Allocator) FrameCount() int {
	return a.frameCount
}

// Generate creates a set whose binding i has kinds[i] and is visible to the
// given stages. The kind order must match the shader's declared layout.
func (a *Allocator) Generate(name string, visibility gpu.ShaderStage, kinds ...gpu.BindingKind) (*Set, error) {
	entries := make([]gpu.BindingLayoutEntry, len(kinds))
	for i, k := range kinds {
		entries[i] = gpu.BindingLayoutEntry{Binding: uint32(i), Kind: k, Visibility: visibility}
	}
	layout, err := a.dev.CreateBindingLayout(entries)
	if err != nil {
		err = fmt.Errorf("binding set %s: %w", name, err)
		core.LogError(err.Error())
		return nil, err
	}
	groups, err := a.pool.Allocate(layout, a.frameCount)
	if err != nil {
		a.dev.DestroyBindingLayout(layout)
		err = fmt.Errorf("binding set %s: %w", name, err)
		core.LogError(err.Error())
		return nil, err
	}
	written := make([][]bool, a.frameCount)
	for i := range written {
		written[i] = make([]bool, len(kinds))
	}
	s := &Set{
		name:    name,
		dev:     a.dev,
		kinds:   append([]gpu.BindingKind(nil), kinds...),
		layout:  layout,
		groups:  resources.NewPerFrame(groups),
		written: written,
	}
	a.sets = append(a.sets, s)
	return s, nil
}

// Validate checks every set generated so far.
func (a *Allocator) Validate() error {
	var errs []error
	for _, s := range a.sets {
		if err := s.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Destroy releases the pool and every layout. Sets must no longer be in use.
func (a *Allocator) Destroy() {
	for _, s := range a.sets {
		a.dev.DestroyBindingLayout(s.layout)
	}
	a.sets = nil
	a.dev.DestroyBindingPool(a.pool)
}

// Set is a logical binding set: one layout, one group per frame slot.
type Set struct {
	name    string
	dev     gpu.Device
	kinds   []gpu.BindingKind
	layout  gpu.BindingLayout
	groups  resources.PerFrame[gpu.BindingGroup]
	written [][]bool
}

func (s *Set) Name() string                    { return s.name }
func (s *Set) Layout() gpu.BindingLayout       { return s.layout }
func (s *Set) Kinds() []gpu.BindingKind        { return s.kinds }
func (s *Set) Group(slot int) gpu.BindingGroup { return s.groups.Resolve(slot) }

func (s *Set) kind(binding uint32) (gpu.BindingKind, error) {
	if int(binding) >= len(s.kinds) {
		return 0, fmt.Errorf("binding set %s has no binding %d", s.name, binding)
	}
	return s.kinds[binding], nil
}

// Bind writes res into binding of the group for slot only. res resolves
// through the same slot.
func (s *Set) Bind(slot int, binding uint32, res Bindable) error {
	kind, err := s.kind(binding)
	if err != nil {
		return err
	}
	s.dev.WriteBindings([]gpu.BindingWrite{{
		Group:    s.groups.Resolve(slot),
		Binding:  binding,
		Kind:     kind,
		Resource: res.BindingResource(slot),
	}})
	s.written[slot][binding] = true
	return nil
}

// BindEach writes res into binding for every slot, each slot receiving the
// resource's own instance for that slot.
func (s *Set) BindEach(binding uint32, res Bindable) error {
	kind, err := s.kind(binding)
	if err != nil {
		return err
	}
	writes := make([]gpu.BindingWrite, 0, len(s.written))
	for slot := range s.written {
		writes = append(writes, gpu.BindingWrite{
			Group:    s.groups.Resolve(slot),
			Binding:  binding,
			Kind:     kind,
			Resource: res.BindingResource(slot),
		})
		s.written[slot][binding] = true
	}
	s.dev.WriteBindings(writes)
	return nil
}

// Validate reports every (slot, binding) pair that was never written.
func (s *Set) Validate() error {
	var missing []string
	for slot, row := range s.written {
		for binding, ok := range row {
			if !ok {
				missing = append(missing, fmt.Sprintf("slot %d binding %d (%s)", slot, binding, s.kinds[binding]))
			}
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("binding set %s: %w: %s", s.name, core.ErrBindingIncomplete, strings.Join(missing, ", "))
	}
	return nil
}

// Layouts collects the layouts of sets in order, for pipeline creation.
func Layouts(sets ...*Set) []gpu.BindingLayout {
	out := make([]gpu.BindingLayout, len(sets))
	for i, s := range sets {
		out[i] = s.layout
	}
	return out
}

// Groups collects the groups of sets for slot, in order.
func Groups(slot int, sets ...*Set) []gpu.BindingGroup {
	out := make([]gpu.BindingGroup, len(sets))
	for i, s := range sets {
		out[i] = s.groups.Resolve(slot)
	}
	return out
}
