package frame

import (
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/spaghettifunk/aurora/engine/core"
	"github.com/spaghettifunk/aurora/engine/renderer/barrier"
	"github.com/spaghettifunk/aurora/engine/renderer/binding"
	"github.com/spaghettifunk/aurora/engine/renderer/gpu"
	"github.com/spaghettifunk/aurora/engine/renderer/gpu/soft"
	"github.com/spaghettifunk/aurora/engine/renderer/pipeline"
	"github.com/spaghettifunk/aurora/engine/renderer/resources"
	"github.com/spaghettifunk/aurora/engine/renderer/tasks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	dev    *soft.Device
	reg    *resources.Registry
	alloc  *binding.Allocator
	lib    *pipeline.Library
	frames int
}

func newFixture(t *testing.T, opts soft.Options, frames int) *fixture {
	t.Helper()
	dev := soft.NewDevice(opts)
	t.Cleanup(dev.Close)
	alloc, err := binding.NewAllocator(dev, binding.AllocatorConfig{
		FrameCount: frames,
		MaxSets:    8,
		PerKind: map[gpu.BindingKind]int{
			gpu.BindingUniformBuffer: 16,
			gpu.BindingStorageBuffer: 16,
			gpu.BindingStorageImage:  16,
			gpu.BindingSampledImage:  16,
		},
	})
	require.NoError(t, err)
	lib, err := pipeline.NewLibrary(dev, pipeline.LibraryConfig{})
	require.NoError(t, err)
	t.Cleanup(lib.Destroy)
	return &fixture{dev: dev, reg: resources.NewRegistry(dev), alloc: alloc, lib: lib, frames: frames}
}

func (fx *fixture) compute(t *testing.T, name string, fn soft.Kernel, sets ...*binding.Set) *pipeline.Pipeline {
	t.Helper()
	fx.dev.RegisterKernel(name+".comp", gpu.ShaderCompute, fn)
	p, err := fx.lib.CreateCompute(pipeline.ComputeDesc{Name: name, Shader: name + ".comp", Sets: sets})
	require.NoError(t, err)
	return p
}

func (fx *fixture) executor(t *testing.T, surface *resources.Surface) *Executor {
	t.Helper()
	e, err := NewExecutor(fx.dev, surface, ExecutorConfig{FramesInFlight: fx.frames, FenceTimeout: 5 * time.Second})
	require.NoError(t, err)
	t.Cleanup(e.Destroy)
	return e
}

func (fx *fixture) storageBuffer(t *testing.T, name string) *resources.Buffer {
	t.Helper()
	b, err := resources.AllocateBuffer(fx.dev, fx.reg, name, gpu.BufferDesc{Size: 16, Usage: gpu.BufferUsageStorage}, fx.frames)
	require.NoError(t, err)
	return b
}

func u32(b []byte) uint32 {
	return binary.LittleEndian.Uint32(b)
}

func TestClearThenComputeEveryFrameSlot(t *testing.T) {
	fx := newFixture(t, soft.Options{}, 3)
	target, err := resources.AllocateImage(fx.dev, fx.reg, "target", gpu.Extent2D(4, 4), gpu.FormatRGBA32Float, gpu.UsageColorTarget|gpu.UsageStorage, 3)
	require.NoError(t, err)

	set, err := fx.alloc.Generate("target", gpu.ShaderCompute, gpu.BindingStorageImage)
	require.NoError(t, err)
	require.NoError(t, set.BindEach(0, target))
	require.NoError(t, fx.alloc.Validate())

	addRed := fx.compute(t, "add_red", func(inv *soft.Invocation) {
		img := inv.Image(0, 0)
		ext := img.Extent()
		for y := 0; y < int(ext.Height); y++ {
			for x := 0; x < int(ext.Width); x++ {
				v := img.Load(x, y)
				v[0] += 0.5
				img.Store(x, y, v)
			}
		}
	}, set)

	list := tasks.NewList("scenario").
		AddBarrier("to color", barrier.Images(barrier.Image(target, barrier.Undefined, barrier.ColorTarget))).
		AddGraphics(&tasks.GraphicsTask{Name: "clear", Colors: []tasks.Attachment{tasks.Clear(target, gpu.ClearColor{0, 0, 1, 1})}}).
		AddBarrier("to compute", barrier.Images(barrier.Image(target, barrier.ColorTarget, barrier.ComputeReadWrite))).
		AddCompute(&tasks.ComputeTask{Name: "add red", Pipeline: addRed, Sets: []*binding.Set{set}, Groups: [3]uint32{1, 1, 1}})

	e := fx.executor(t, nil)
	for i := 0; i < 6; i++ {
		require.NoError(t, e.Execute(list))
	}
	require.NoError(t, fx.dev.WaitIdle())

	for slot := 0; slot < 3; slot++ {
		for _, px := range fx.dev.ReadImage(target.Resolve(slot).Image) {
			assert.Equal(t, soft.Texel{0.5, 0, 1, 1}, px, "slot %d", slot)
		}
	}
	assert.Equal(t, uint64(6), e.FrameNumber())
	assert.Empty(t, fx.dev.Validation())
}

type stamp struct {
	Frame uint32
	_     [3]uint32
}

func TestSlotsOnlyTouchTheirOwnResources(t *testing.T) {
	const frames = 3
	fx := newFixture(t, soft.Options{Latency: time.Millisecond}, frames)
	params, err := resources.NewUniformBuffer[stamp](fx.dev, fx.reg, "params", frames)
	require.NoError(t, err)
	out := fx.storageBuffer(t, "out")

	set, err := fx.alloc.Generate("stamp", gpu.ShaderCompute, gpu.BindingUniformBuffer, gpu.BindingStorageBuffer)
	require.NoError(t, err)
	require.NoError(t, set.BindEach(0, params))
	require.NoError(t, set.BindEach(1, out))
	require.NoError(t, set.Validate())

	p := fx.compute(t, "stamp", func(inv *soft.Invocation) {
		inv.Buffer(0, 1).PutUint32(0, inv.Buffer(0, 0).Uint32(0)+1)
	}, set)
	list := tasks.NewList("stamp").
		AddCompute(&tasks.ComputeTask{Name: "stamp", Pipeline: p, Sets: []*binding.Set{set}, Groups: [3]uint32{1, 1, 1}})

	e := fx.executor(t, nil)
	var slotsSeen []int
	update := func(f resources.Frame) error {
		slotsSeen = append(slotsSeen, f.Slot)
		return params.Update(f.Slot, stamp{Frame: uint32(f.Number)})
	}
	for i := 0; i < 10; i++ {
		require.NoError(t, e.Execute(list, update))
	}
	require.NoError(t, fx.dev.WaitIdle())

	assert.Equal(t, []int{0, 1, 2, 0, 1, 2, 0, 1, 2, 0}, slotsSeen)
	// Last frames per slot were 9, 7 and 8.
	want := []uint32{10, 8, 9}
	for slot := 0; slot < frames; slot++ {
		got := u32(fx.dev.ReadBuffer(out.Resolve(slot)))
		assert.Equal(t, want[slot], got, "slot %d", slot)
		assert.Equal(t, slot, int(got-1)%frames)
	}
}

func producerConsumer(t *testing.T, fx *fixture, withBarrier bool) (*tasks.List, *resources.Buffer) {
	t.Helper()
	src, dst := fx.storageBuffer(t, "src"), fx.storageBuffer(t, "dst")
	set, err := fx.alloc.Generate("copy", gpu.ShaderCompute, gpu.BindingStorageBuffer, gpu.BindingStorageBuffer)
	require.NoError(t, err)
	require.NoError(t, set.BindEach(0, src))
	require.NoError(t, set.BindEach(1, dst))

	produce := fx.compute(t, "produce", func(inv *soft.Invocation) {
		b := inv.Buffer(0, 0)
		for i := 0; i < 4; i++ {
			b.PutUint32(i, 0xC0FFEE00+uint32(i))
		}
	}, set)
	consume := fx.compute(t, "consume", func(inv *soft.Invocation) {
		in, out := inv.Buffer(0, 0), inv.Buffer(0, 1)
		for i := 0; i < 4; i++ {
			out.PutUint32(i, in.Uint32(i))
		}
	}, set)

	list := tasks.NewList("copy").
		AddCompute(&tasks.ComputeTask{Name: "produce", Pipeline: produce, Sets: []*binding.Set{set}, Groups: [3]uint32{1, 1, 1}})
	if withBarrier {
		list.AddBarrier("", barrier.Buffers(barrier.Buffer(src, barrier.ComputeWrite, barrier.ComputeRead)))
	}
	list.AddCompute(&tasks.ComputeTask{Name: "consume", Pipeline: consume, Sets: []*binding.Set{set}, Groups: [3]uint32{1, 1, 1}})
	return list, dst
}

func TestBarrierOrdersProducerBeforeConsumer(t *testing.T) {
	fx := newFixture(t, soft.Options{}, 2)
	list, dst := producerConsumer(t, fx, true)
	e := fx.executor(t, nil)
	require.NoError(t, e.Execute(list))
	require.NoError(t, fx.dev.WaitIdle())

	data := fx.dev.ReadBuffer(dst.Resolve(0))
	for i := 0; i < 4; i++ {
		assert.Equal(t, 0xC0FFEE00+uint32(i), u32(data[i*4:]))
	}
}

func TestMissingBarrierReadsStaleData(t *testing.T) {
	fx := newFixture(t, soft.Options{}, 2)
	list, dst := producerConsumer(t, fx, false)
	e := fx.executor(t, nil)
	require.NoError(t, e.Execute(list))
	require.NoError(t, fx.dev.WaitIdle())

	assert.Equal(t, make([]byte, 16), fx.dev.ReadBuffer(dst.Resolve(0)))
}

func TestReplaysRecordIdenticalCommands(t *testing.T) {
	const frames = 2
	fx := newFixture(t, soft.Options{}, frames)
	list, _ := producerConsumer(t, fx, true)
	e := fx.executor(t, nil)
	for i := 0; i < 3*frames; i++ {
		require.NoError(t, e.Execute(list))
	}
	require.NoError(t, fx.dev.WaitIdle())

	subs := fx.dev.Submissions()
	require.Len(t, subs, 3*frames)
	for i := frames; i < len(subs); i++ {
		assert.Equal(t, subs[i-frames], subs[i], "submission %d", i)
	}
	assert.NotEqual(t, subs[0], subs[1])
}

func TestFrameBlocksOnlyOnItsOwnSlot(t *testing.T) {
	const latency = 60 * time.Millisecond
	fx := newFixture(t, soft.Options{Latency: latency}, 2)
	list := tasks.NewList("empty")
	e := fx.executor(t, nil)

	timed := func() time.Duration {
		start := time.Now()
		require.NoError(t, e.Execute(list))
		return time.Since(start)
	}

	first := timed()
	second := timed()
	third := timed()

	assert.Less(t, first, latency/2)
	assert.Less(t, second, latency/2, "frame 1 must not wait on frame 0")
	assert.GreaterOrEqual(t, third, latency/2, "frame 2 must wait for frame 0")
}

func TestSurfaceOutOfDateIsRecoverable(t *testing.T) {
	fx := newFixture(t, soft.Options{}, 2)
	sc, err := fx.dev.NewSwapchain(gpu.Extent2D(4, 4), gpu.FormatBGRA8Unorm, 2)
	require.NoError(t, err)
	surface := resources.NewSurface(sc)

	list := tasks.NewList("present").
		AddBarrier("", barrier.Images(barrier.Image(surface, barrier.Undefined, barrier.ColorTarget))).
		AddGraphics(&tasks.GraphicsTask{Name: "clear", Colors: []tasks.Attachment{tasks.Clear(surface, gpu.ClearColor{1, 0, 0, 1})}}).
		AddBarrier("", barrier.Images(barrier.Image(surface, barrier.ColorTarget, barrier.Present)))

	e := fx.executor(t, surface)
	assert.Equal(t, 2, e.FrameCount())
	require.NoError(t, e.Execute(list))
	require.NoError(t, e.Execute(list))

	sc.Invalidate()
	err = e.Execute(list)
	require.ErrorIs(t, err, core.ErrSwapchainOutOfDate)
	assert.Equal(t, uint64(2), e.FrameNumber())

	require.NoError(t, fx.dev.WaitIdle())
	assert.Equal(t, []uint32{0, 1}, sc.Presented())

	rebuilt, err := fx.dev.NewSwapchain(gpu.Extent2D(8, 8), gpu.FormatBGRA8Unorm, 3)
	require.NoError(t, err)
	surface.Rebind(rebuilt)
	require.NoError(t, e.Rebuild(surface))
	assert.Equal(t, 3, e.FrameCount())

	for i := 0; i < 3; i++ {
		require.NoError(t, e.Execute(list))
	}
	require.NoError(t, fx.dev.WaitIdle())
	assert.Equal(t, []uint32{0, 1, 2}, rebuilt.Presented())
	assert.Empty(t, fx.dev.Validation())
}

func TestFailedRecordingDoesNotWedgeTheSlot(t *testing.T) {
	fx := newFixture(t, soft.Options{}, 1)
	boom := errors.New("boom")
	fail := true
	list := tasks.NewList("callback").AddCallback("maybe", func(gpu.CommandBuffer, resources.Frame) error {
		if fail {
			return boom
		}
		return nil
	})
	e := fx.executor(t, nil)
	assert.ErrorIs(t, e.Execute(list), boom)

	fail = false
	done := make(chan error, 1)
	go func() { done <- e.Execute(list) }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("frame slot never became available again")
	}
}

func TestDeviceLossIsFatal(t *testing.T) {
	fx := newFixture(t, soft.Options{}, 2)
	e := fx.executor(t, nil)
	require.NoError(t, e.Execute(tasks.NewList("empty")))
	fx.dev.Lose()
	assert.ErrorIs(t, e.Execute(tasks.NewList("empty")), core.ErrDeviceLost)
}
