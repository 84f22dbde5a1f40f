package soft

import (
	"testing"
	"time"

	"github.com/spaghettifunk/aurora/engine/renderer/gpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStorageImage(t *testing.T, d *Device, label string) (gpu.Image, gpu.ImageView) {
	t.Helper()
	img, err := d.CreateImage(gpu.ImageDesc{
		Label:  label,
		Extent: gpu.Extent2D(2, 2),
		Format: gpu.FormatRGBA32Float,
		Usage:  gpu.UsageStorage | gpu.UsageColorTarget,
	})
	require.NoError(t, err)
	v, err := d.CreateImageView(img, gpu.WholeImage(img.Format()))
	require.NoError(t, err)
	return img, v
}

func submitAndWait(t *testing.T, d *Device, cb gpu.CommandBuffer) {
	t.Helper()
	f, err := d.CreateFence(false)
	require.NoError(t, err)
	require.NoError(t, d.Submit(gpu.SubmitInfo{Commands: cb, Fence: f}))
	require.NoError(t, d.WaitFence(f, time.Second))
}

func TestClearBecomesVisibleAfterBarrier(t *testing.T) {
	d := NewDevice(Options{})
	defer d.Close()
	img, v := newStorageImage(t, d, "target")

	cb, err := d.CreateCommandBuffer()
	require.NoError(t, err)
	require.NoError(t, cb.Begin())
	cb.Barrier(gpu.BarrierBatch{Images: []gpu.ImageBarrier{{
		Image: img, SrcStage: gpu.StageTopOfPipe, DstStage: gpu.StageColorAttachmentOutput,
		DstAccess: gpu.AccessColorAttachmentWrite, OldLayout: gpu.LayoutUndefined,
		NewLayout: gpu.LayoutColorAttachment, Range: gpu.WholeImage(img.Format()),
	}}})
	cb.BeginRendering(gpu.RenderingInfo{
		Label:  "clear",
		Extent: img.Extent(),
		Colors: []gpu.Attachment{{View: v, Load: gpu.LoadOpClear, Store: true, Clear: Texel{1, 2, 3, 4}}},
	})
	cb.EndRendering()
	require.NoError(t, cb.End())
	submitAndWait(t, d, cb)

	for _, px := range d.ReadImage(img) {
		assert.Equal(t, Texel{1, 2, 3, 4}, px)
	}
	assert.Equal(t, gpu.LayoutColorAttachment, d.ImageLayout(img))
	assert.Empty(t, d.Validation())
}

func TestLayoutMismatchIsReported(t *testing.T) {
	d := NewDevice(Options{})
	defer d.Close()
	img, _ := newStorageImage(t, d, "target")

	cb, _ := d.CreateCommandBuffer()
	require.NoError(t, cb.Begin())
	cb.Barrier(gpu.BarrierBatch{Images: []gpu.ImageBarrier{{
		Image: img, OldLayout: gpu.LayoutShaderReadOnly, NewLayout: gpu.LayoutGeneral,
	}}})
	require.NoError(t, cb.End())
	submitAndWait(t, d, cb)

	require.Len(t, d.Validation(), 1)
	assert.Contains(t, d.Validation()[0], "declares layout shader_read_only")
}

func TestWritesInvisibleWithoutBarrier(t *testing.T) {
	d := NewDevice(Options{})
	defer d.Close()

	src, err := d.CreateBuffer(gpu.BufferDesc{Label: "src", Size: 4, Usage: gpu.BufferUsageStorage})
	require.NoError(t, err)
	dst, err := d.CreateBuffer(gpu.BufferDesc{Label: "dst", Size: 4, Usage: gpu.BufferUsageStorage})
	require.NoError(t, err)

	d.RegisterKernel("produce", gpu.ShaderCompute, func(inv *Invocation) {
		inv.Buffer(0, 0).PutUint32(0, 42)
	})
	d.RegisterKernel("copy", gpu.ShaderCompute, func(inv *Invocation) {
		inv.Buffer(0, 1).PutUint32(0, inv.Buffer(0, 0).Uint32(0))
	})

	layout, err := d.CreateBindingLayout([]gpu.BindingLayoutEntry{
		{Binding: 0, Kind: gpu.BindingStorageBuffer, Visibility: gpu.ShaderCompute},
		{Binding: 1, Kind: gpu.BindingStorageBuffer, Visibility: gpu.ShaderCompute},
	})
	require.NoError(t, err)
	pool, err := d.CreateBindingPool(gpu.BindingPoolDesc{MaxGroups: 1, Capacities: map[gpu.BindingKind]int{gpu.BindingStorageBuffer: 2}})
	require.NoError(t, err)
	groups, err := pool.Allocate(layout, 1)
	require.NoError(t, err)
	d.WriteBindings([]gpu.BindingWrite{
		{Group: groups[0], Binding: 0, Kind: gpu.BindingStorageBuffer, Resource: gpu.BindingResource{Buffer: src, Range: 4}},
		{Group: groups[0], Binding: 1, Kind: gpu.BindingStorageBuffer, Resource: gpu.BindingResource{Buffer: dst, Range: 4}},
	})

	pipe := func(path string) gpu.Pipeline {
		m, err := d.LoadShader(path, gpu.ShaderCompute)
		require.NoError(t, err)
		p, err := d.CreateComputePipeline(gpu.ComputePipelineDesc{Label: path, Shader: m, Layouts: []gpu.BindingLayout{layout}})
		require.NoError(t, err)
		return p
	}
	produce, cp := pipe("produce"), pipe("copy")

	run := func(withBarrier bool) uint32 {
		cb, _ := d.CreateCommandBuffer()
		require.NoError(t, cb.Begin())
		cb.BindPipeline(produce)
		cb.BindGroups(produce, 0, groups)
		cb.Dispatch(1, 1, 1)
		if withBarrier {
			cb.Barrier(gpu.BarrierBatch{Buffers: []gpu.BufferBarrier{{
				Buffer: src, SrcStage: gpu.StageComputeShader, SrcAccess: gpu.AccessShaderWrite,
				DstStage: gpu.StageComputeShader, DstAccess: gpu.AccessShaderRead, Size: 4,
			}}})
		}
		cb.BindPipeline(cp)
		cb.BindGroups(cp, 0, groups)
		cb.Dispatch(1, 1, 1)
		require.NoError(t, cb.End())
		submitAndWait(t, d, cb)
		out := d.ReadBuffer(dst)
		return uint32(out[0]) | uint32(out[1])<<8 | uint32(out[2])<<16 | uint32(out[3])<<24
	}

	assert.Equal(t, uint32(0), run(false))
	assert.Equal(t, uint32(42), run(true))
}

func TestPoolExhaustion(t *testing.T) {
	d := NewDevice(Options{})
	defer d.Close()
	layout, err := d.CreateBindingLayout([]gpu.BindingLayoutEntry{{Binding: 0, Kind: gpu.BindingUniformBuffer}})
	require.NoError(t, err)
	pool, err := d.CreateBindingPool(gpu.BindingPoolDesc{MaxGroups: 3, Capacities: map[gpu.BindingKind]int{gpu.BindingUniformBuffer: 3}})
	require.NoError(t, err)

	_, err = pool.Allocate(layout, 2)
	require.NoError(t, err)
	_, err = pool.Allocate(layout, 2)
	assert.ErrorIs(t, err, gpu.ErrPoolExhausted)
}

func TestFenceTimeoutAndDeviceLoss(t *testing.T) {
	d := NewDevice(Options{})
	defer d.Close()
	f, _ := d.CreateFence(false)
	assert.ErrorIs(t, d.WaitFence(f, 5*time.Millisecond), gpu.ErrTimeout)

	signaled, _ := d.CreateFence(true)
	assert.NoError(t, d.WaitFence(signaled, time.Millisecond))
	require.NoError(t, d.ResetFence(signaled))
	assert.ErrorIs(t, d.WaitFence(signaled, time.Millisecond), gpu.ErrTimeout)

	d.Lose()
	assert.ErrorIs(t, d.WaitFence(f, time.Millisecond), gpu.ErrDeviceLost)
}

func TestMemoryLimit(t *testing.T) {
	d := NewDevice(Options{MemoryLimit: 2 * 4 * texelBytes})
	defer d.Close()
	_, err := d.CreateImage(gpu.ImageDesc{Label: "a", Extent: gpu.Extent2D(2, 2), Format: gpu.FormatRGBA8Unorm})
	require.NoError(t, err)
	b, err := d.CreateImage(gpu.ImageDesc{Label: "b", Extent: gpu.Extent2D(2, 2), Format: gpu.FormatRGBA8Unorm})
	require.NoError(t, err)
	_, err = d.CreateImage(gpu.ImageDesc{Label: "c", Extent: gpu.Extent2D(2, 2), Format: gpu.FormatRGBA8Unorm})
	assert.ErrorIs(t, err, gpu.ErrOutOfMemory)

	d.DestroyImage(b)
	_, err = d.CreateImage(gpu.ImageDesc{Label: "c", Extent: gpu.Extent2D(2, 2), Format: gpu.FormatRGBA8Unorm})
	assert.NoError(t, err)
	assert.Equal(t, 2, d.Live("image"))
}

func TestSwapchainOutOfDate(t *testing.T) {
	d := NewDevice(Options{})
	defer d.Close()
	sc, err := d.NewSwapchain(gpu.Extent2D(4, 4), gpu.FormatBGRA8Unorm, 2)
	require.NoError(t, err)

	i0, err := sc.Acquire(time.Second, nil)
	require.NoError(t, err)
	i1, err := sc.Acquire(time.Second, nil)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 1}, []uint32{i0, i1})

	sc.Invalidate()
	_, err = sc.Acquire(time.Second, nil)
	assert.ErrorIs(t, err, gpu.ErrOutOfDate)
}
