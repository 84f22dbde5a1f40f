package resources

import (
	"fmt"
	"unsafe"

	"github.com/google/uuid"
	"github.com/spaghettifunk/aurora/engine/core"
	"github.com/spaghettifunk/aurora/engine/math"
	"github.com/spaghettifunk/aurora/engine/renderer/gpu"
)

type BufferResource interface {
	Resource
	Size() uint64
	Buffer(f Frame) gpu.Buffer
}

type Buffer struct {
	id    uuid.UUID
	name  string
	desc  gpu.BufferDesc
	dev   gpu.Device
	slots PerFrame[gpu.Buffer]
}

var _ BufferResource = (*Buffer)(nil)

// AllocateBuffer creates frameCount identical buffers. Nothing is leaked when
// one of the allocations fails.
func AllocateBuffer(dev gpu.Device, reg *Registry, name string, desc gpu.BufferDesc, frameCount int) (*Buffer, error) {
	slots, err := BuildPerFrame(frameCount, func(slot int) (gpu.Buffer, error) {
		d := desc
		d.Label = fmt.Sprintf("%s[%d]", name, slot)
		return dev.CreateBuffer(d)
	}, dev.DestroyBuffer)
	if err != nil {
		err = fmt.Errorf("buffer %s: %w: %w", name, core.ErrAllocationFailed, err)
		core.LogError(err.Error())
		return nil, err
	}
	return register(reg, &Buffer{id: uuid.New(), name: name, desc: desc, dev: dev, slots: slots}), nil
}

// AllocateSharedBuffer creates one buffer every slot resolves to, e.g. static geometry.
func AllocateSharedBuffer(dev gpu.Device, reg *Registry, name string, desc gpu.BufferDesc) (*Buffer, error) {
	desc.Label = name
	buf, err := dev.CreateBuffer(desc)
	if err != nil {
		err = fmt.Errorf("buffer %s: %w: %w", name, core.ErrAllocationFailed, err)
		core.LogError(err.Error())
		return nil, err
	}
	return register(reg, &Buffer{id: uuid.New(), name: name, desc: desc, dev: dev, slots: Shared(buf)}), nil
}

func (b *Buffer) ID() uuid.UUID { return b.id }
func (b *Buffer) Name() string  { return b.name }
func (b *Buffer) Size() uint64  { return b.desc.Size }

// Resolve returns the physical buffer of slot. Panics when slot is out of range.
func (b *Buffer) Resolve(slot int) gpu.Buffer {
	return b.slots.Resolve(slot)
}

func (b *Buffer) Buffer(f Frame) gpu.Buffer {
	return b.slots.Resolve(f.Slot)
}

func (b *Buffer) BindingResource(slot int) gpu.BindingResource {
	return gpu.BindingResource{Buffer: b.slots.Resolve(slot), Range: b.desc.Size}
}

func (b *Buffer) Slots() int {
	return b.slots.Len()
}

// Write uploads host data into the buffer of slot. The slot must not be in flight.
func (b *Buffer) Write(slot int, offset uint64, data []byte) error {
	return b.dev.WriteBuffer(b.slots.Resolve(slot), offset, data)
}

func (b *Buffer) release(dev gpu.Device) {
	b.slots.Each(func(_ int, buf gpu.Buffer) { dev.DestroyBuffer(buf) })
}

const uniformAlignment = 16

// UniformBuffer is a per slot host visible buffer holding one T.
// T must be a plain value type laid out to match the shader block.
type UniformBuffer[T any] struct {
	*Buffer
}

func NewUniformBuffer[T any](dev gpu.Device, reg *Registry, name string, frameCount int) (*UniformBuffer[T], error) {
	var zero T
	size := math.AlignUp(uint64(unsafe.Sizeof(zero)), uniformAlignment)
	if size == 0 {
		return nil, fmt.Errorf("uniform buffer %s: zero sized type", name)
	}
	buf, err := AllocateBuffer(dev, reg, name, gpu.BufferDesc{
		Size:        size,
		Usage:       gpu.BufferUsageUniform,
		HostVisible: true,
	}, frameCount)
	if err != nil {
		return nil, err
	}
	return &UniformBuffer[T]{Buffer: buf}, nil
}

// Update writes v into the buffer of slot. Call it once the slot's fence
// has signaled and before recording the frame.
func (u *UniformBuffer[T]) Update(slot int, v T) error {
	data := unsafe.Slice((*byte)(unsafe.Pointer(&v)), unsafe.Sizeof(v))
	return u.Write(slot, 0, data)
}
