package resources

import "fmt"

// Frame identifies the frame being recorded. Slot is Number mod frames in
// flight; SurfaceIndex is the presentable image acquired for this frame.
type Frame struct {
	Number       uint64
	Slot         int
	SurfaceIndex uint32
}

// PerFrame owns one instance of T per frame slot.
type PerFrame[T any] struct {
	items  []T
	shared bool
}

// NewPerFrame wraps exactly one item per slot.
func NewPerFrame[T any](items []T) PerFrame[T] {
	return PerFrame[T]{items: items}
}

// Shared wraps a single instance that every slot resolves to. Use it for
// read-only data such as static meshes and baked textures.
func Shared[T any](v T) PerFrame[T] {
	return PerFrame[T]{items: []T{v}, shared: true}
}

// BuildPerFrame creates count instances. When one fails, the instances
// already created are handed to release before the error is returned.
func BuildPerFrame[T any](count int, create func(slot int) (T, error), release func(T)) (PerFrame[T], error) {
	if count <= 0 {
		return PerFrame[T]{}, fmt.Errorf("frame count must be positive, got %d", count)
	}
	items := make([]T, 0, count)
	for slot := 0; slot < count; slot++ {
		v, err := create(slot)
		if err != nil {
			for i := len(items) - 1; i >= 0; i-- {
				release(items[i])
			}
			return PerFrame[T]{}, err
		}
		items = append(items, v)
	}
	return NewPerFrame(items), nil
}

// Resolve returns the instance backing slot. An out of range slot is a
// programming error and panics.
func (p PerFrame[T]) Resolve(slot int) T {
	if p.shared {
		return p.items[0]
	}
	if slot < 0 || slot >= len(p.items) {
		panic(fmt.Sprintf("frame slot %d out of range [0,%d)", slot, len(p.items)))
	}
	return p.items[slot]
}

// Len is the number of distinct instances.
func (p PerFrame[T]) Len() int {
	return len(p.items)
}

func (p PerFrame[T]) IsShared() bool {
	return p.shared
}

// Each visits every distinct instance.
func (p PerFrame[T]) Each(fn func(slot int, v T)) {
	for i, v := range p.items {
		fn(i, v)
	}
}
