package resources

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/spaghettifunk/aurora/engine/core"
	"github.com/spaghettifunk/aurora/engine/renderer/gpu"
	"github.com/spaghettifunk/aurora/engine/renderer/gpu/soft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPerFrameResolve(t *testing.T) {
	p := NewPerFrame([]string{"a", "b", "c"})
	assert.Equal(t, "b", p.Resolve(1))
	assert.Equal(t, 3, p.Len())
	assert.Panics(t, func() { p.Resolve(3) })
	assert.Panics(t, func() { p.Resolve(-1) })

	s := Shared("static")
	assert.Equal(t, "static", s.Resolve(7))
	assert.True(t, s.IsShared())
}

func TestBuildPerFrameReleasesOnFailure(t *testing.T) {
	boom := errors.New("boom")
	var released []int
	_, err := BuildPerFrame(4, func(slot int) (int, error) {
		if slot == 2 {
			return 0, boom
		}
		return slot, nil
	}, func(v int) { released = append(released, v) })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []int{1, 0}, released)

	_, err = BuildPerFrame(0, func(int) (int, error) { return 0, nil }, func(int) {})
	assert.Error(t, err)
}

func TestAllocateImagePerSlot(t *testing.T) {
	dev := soft.NewDevice(soft.Options{})
	defer dev.Close()
	reg := NewRegistry(dev)

	img, err := AllocateImage(dev, reg, "albedo", gpu.Extent2D(4, 4), gpu.FormatRGBA8Unorm, gpu.UsageColorTarget, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, img.Slots())
	assert.Equal(t, 3, dev.Live("image"))
	assert.Equal(t, 3, dev.Live("view"))

	seen := map[gpu.Image]bool{}
	for slot := 0; slot < 3; slot++ {
		p := img.Physical(Frame{Number: uint64(slot + 3), Slot: slot})
		assert.Equal(t, p, img.Resolve(slot))
		assert.Equal(t, "albedo["+string(rune('0'+slot))+"]", p.Image.Label())
		seen[p.Image] = true
	}
	assert.Len(t, seen, 3)
	assert.Panics(t, func() { img.Resolve(3) })

	reg.Release(img)
	assert.Equal(t, 0, dev.Live("image"))
	assert.Equal(t, 0, dev.Live("view"))
	assert.Equal(t, 0, reg.Len())
}

func TestAllocateImageCleansUpPartialAllocation(t *testing.T) {
	dev := soft.NewDevice(soft.Options{MemoryLimit: 2 * 16 * 16})
	defer dev.Close()
	reg := NewRegistry(dev)

	_, err := AllocateImage(dev, reg, "hdr", gpu.Extent2D(4, 4), gpu.FormatRGBA16Float, gpu.UsageStorage, 3)
	assert.ErrorIs(t, err, core.ErrAllocationFailed)
	assert.ErrorIs(t, err, gpu.ErrOutOfMemory)
	assert.Equal(t, 0, dev.Live("image"))
	assert.Equal(t, 0, dev.Live("view"))
	assert.Equal(t, 0, reg.Len())
}

type camera struct {
	Exposure float32
	Frame    uint32
	_        [2]float32
}

func TestUniformBufferUpdate(t *testing.T) {
	dev := soft.NewDevice(soft.Options{})
	defer dev.Close()
	reg := NewRegistry(dev)

	ub, err := NewUniformBuffer[camera](dev, reg, "camera", 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(16), ub.Size())

	require.NoError(t, ub.Update(1, camera{Exposure: 1.5, Frame: 9}))
	data := dev.ReadBuffer(ub.Resolve(1))
	assert.Equal(t, float32(1.5), math.Float32frombits(binary.LittleEndian.Uint32(data[0:])))
	assert.Equal(t, uint32(9), binary.LittleEndian.Uint32(data[4:]))
	assert.Equal(t, make([]byte, 16), dev.ReadBuffer(ub.Resolve(0)))

	reg.ReleaseAll()
	assert.Equal(t, 0, dev.Live("buffer"))
}

func TestSharedBufferResolvesEverySlot(t *testing.T) {
	dev := soft.NewDevice(soft.Options{})
	defer dev.Close()
	buf, err := AllocateSharedBuffer(dev, nil, "vertices", gpu.BufferDesc{Size: 64, Usage: gpu.BufferUsageVertex})
	require.NoError(t, err)
	assert.Same(t, buf.Resolve(0), buf.Resolve(2))
	assert.Equal(t, uint64(64), buf.BindingResource(1).Range)
}

func TestSurfaceResolvesAcquiredImage(t *testing.T) {
	dev := soft.NewDevice(soft.Options{})
	defer dev.Close()
	sc, err := dev.NewSwapchain(gpu.Extent2D(8, 8), gpu.FormatBGRA8Unorm, 3)
	require.NoError(t, err)
	s := NewSurface(sc)

	p := s.Physical(Frame{Slot: 0, SurfaceIndex: 2})
	assert.Equal(t, sc.Images()[2], p.Image)
	assert.Equal(t, gpu.FormatBGRA8Unorm, s.Format())
}
