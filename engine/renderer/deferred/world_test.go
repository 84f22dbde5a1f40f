package deferred

import (
	"testing"
	"time"

	"github.com/spaghettifunk/aurora/engine/renderer/frame"
	"github.com/spaghettifunk/aurora/engine/renderer/gpu"
	"github.com/spaghettifunk/aurora/engine/renderer/gpu/soft"
	"github.com/spaghettifunk/aurora/engine/renderer/pipeline"
	"github.com/spaghettifunk/aurora/engine/renderer/resources"
	"github.com/spaghettifunk/aurora/engine/renderer/tasks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	exposureIndex = 40
	bloomIndex    = 41
)

func each(img *soft.ImageAccess, fn func(x, y int)) {
	ext := img.Extent()
	for y := 0; y < int(ext.Height); y++ {
		for x := 0; x < int(ext.Width); x++ {
			fn(x, y)
		}
	}
}

func registerKernels(dev *soft.Device) {
	dev.RegisterKernel(ShaderSkyBake, gpu.ShaderCompute, func(inv *soft.Invocation) {
		inv.Image(0, 0).Fill(soft.Texel{1, 1, 1, 1})
	})
	dev.RegisterKernel(ShaderGBufferVert, gpu.ShaderVertex, nil)
	dev.RegisterKernel(ShaderGBufferFrag, gpu.ShaderFragment, func(inv *soft.Invocation) {
		inv.Targets[0].Fill(soft.Texel{0.5, 0.25, 0, 1})
		inv.Targets[1].Fill(soft.Texel{0, 0, 1, 0})
	})
	dev.RegisterKernel(ShaderLighting, gpu.ShaderCompute, func(inv *soft.Invocation) {
		exposure := inv.Buffer(0, 0).Float32(exposureIndex)
		albedo, sky, hdr := inv.Image(0, 1), inv.Image(0, 4), inv.Image(0, 5)
		// depth is only checked for a readable layout
		inv.Image(0, 3)
		each(hdr, func(x, y int) {
			a, s := albedo.Load(x, y), sky.Load(0, 0)
			hdr.Store(x, y, soft.Texel{a[0] * s[0] * exposure, a[1] * s[1] * exposure, a[2] * s[2] * exposure, a[3] * s[3] * exposure})
		})
	})
	dev.RegisterKernel(ShaderBloom, gpu.ShaderCompute, func(inv *soft.Invocation) {
		hdr, bloom := inv.Image(0, 0), inv.Image(0, 1)
		each(bloom, func(x, y int) {
			h := hdr.Load(x, y)
			bloom.Store(x, y, soft.Texel{h[0] / 2, h[1] / 2, h[2] / 2, h[3] / 2})
		})
	})
	dev.RegisterKernel(ShaderFullscreen, gpu.ShaderVertex, nil)
	dev.RegisterKernel(ShaderTonemap, gpu.ShaderFragment, func(inv *soft.Invocation) {
		strength := inv.Buffer(0, 0).Float32(bloomIndex)
		hdr, bloom, out := inv.Image(0, 1), inv.Image(0, 2), inv.Targets[0]
		each(out, func(x, y int) {
			h, b := hdr.Load(x, y), bloom.Load(x, y)
			var v soft.Texel
			for i := range v {
				v[i] = min(1, h[i]+b[i]*strength)
			}
			out.Store(x, y, v)
		})
	})
	dev.RegisterKernel(ShaderAntialiasing, gpu.ShaderFragment, func(inv *soft.Invocation) {
		ldr, out := inv.Image(0, 0), inv.Targets[0]
		each(out, func(x, y int) {
			out.Store(x, y, ldr.Load(x, y))
		})
	})
}

type fixture struct {
	dev *soft.Device
	reg *resources.Registry
	lib *pipeline.Library
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dev := soft.NewDevice(soft.Options{})
	t.Cleanup(dev.Close)
	registerKernels(dev)
	lib, err := pipeline.NewLibrary(dev, pipeline.LibraryConfig{Workers: 2})
	require.NoError(t, err)
	t.Cleanup(lib.Destroy)
	require.NoError(t, lib.Preload(Shaders()))
	return &fixture{dev: dev, reg: resources.NewRegistry(dev), lib: lib}
}

func (fx *fixture) world(t *testing.T, surface *resources.Surface, frames int, extent gpu.Extent) *World {
	t.Helper()
	w, err := NewWorld(Context{
		Device:     fx.dev,
		Registry:   fx.reg,
		Pipelines:  fx.lib,
		Surface:    surface,
		FrameCount: frames,
		Extent:     extent,
	})
	require.NoError(t, err)
	t.Cleanup(w.Destroy)
	w.SetCamera(Camera{Exposure: 2, BloomStrength: 1})
	w.AddDrawable(tasks.DrawTask{Count: 3})
	return w
}

func (fx *fixture) executor(t *testing.T, surface *resources.Surface, frames int) *frame.Executor {
	t.Helper()
	e, err := frame.NewExecutor(fx.dev, surface, frame.ExecutorConfig{FramesInFlight: frames, FenceTimeout: 5 * time.Second})
	require.NoError(t, err)
	t.Cleanup(e.Destroy)
	return e
}

func TestHeadlessFrameProducesTonemappedOutput(t *testing.T) {
	fx := newFixture(t)
	w := fx.world(t, nil, 2, gpu.Extent2D(8, 6))
	e := fx.executor(t, nil, 2)

	for i := 0; i < 3; i++ {
		require.NoError(t, e.Execute(w.TaskList(), w.Prepare))
	}
	require.NoError(t, fx.dev.WaitIdle())

	assert.Empty(t, fx.dev.Validation())
	for slot := 0; slot < 2; slot++ {
		for _, texel := range fx.dev.ReadImage(w.LDR().Resolve(slot).Image) {
			assert.Equal(t, soft.Texel{1, 0.75, 0, 1}, texel)
		}
	}
}

func TestSkyIsBakedOnce(t *testing.T) {
	fx := newFixture(t)
	w := fx.world(t, nil, 2, gpu.Extent2D(8, 8))
	e := fx.executor(t, nil, 2)

	for i := 0; i < 4; i++ {
		require.NoError(t, e.Execute(w.TaskList(), w.Prepare))
	}
	require.NoError(t, fx.dev.WaitIdle())

	dispatches := 0
	for _, trace := range fx.dev.Submissions() {
		for _, line := range trace {
			if line == "dispatch 8 8 1" {
				dispatches++
			}
		}
	}
	assert.Equal(t, 1, dispatches)
}

func TestWorldPresentsToSurface(t *testing.T) {
	fx := newFixture(t)
	sc, err := fx.dev.NewSwapchain(gpu.Extent2D(4, 4), gpu.FormatBGRA8Unorm, 3)
	require.NoError(t, err)
	t.Cleanup(sc.Destroy)
	surface := resources.NewSurface(sc)

	e := fx.executor(t, surface, 2)
	require.Equal(t, 3, e.FrameCount())
	w := fx.world(t, surface, e.FrameCount(), sc.Extent())

	for i := 0; i < 3; i++ {
		require.NoError(t, e.Execute(w.TaskList(), w.Prepare))
	}
	require.NoError(t, fx.dev.WaitIdle())

	assert.Empty(t, fx.dev.Validation())
	assert.Equal(t, []uint32{0, 1, 2}, sc.Presented())
	for _, img := range sc.Images() {
		assert.Equal(t, gpu.LayoutPresent, fx.dev.ImageLayout(img))
		assert.Equal(t, soft.Texel{1, 0.75, 0, 1}, fx.dev.ReadImage(img)[0])
	}
	assert.Equal(t, 12, w.TaskList().Len())
}

func TestResizeToSameExtentIsIdempotent(t *testing.T) {
	fx := newFixture(t)
	extent := gpu.Extent2D(8, 8)
	w := fx.world(t, nil, 2, extent)

	stats, describe := w.TaskList().Stats(), w.TaskList().Describe()
	count, views := fx.reg.Len(), fx.dev.Live("view")

	require.NoError(t, w.Resize(extent, nil, 2))
	assert.Equal(t, stats, w.TaskList().Stats())
	assert.Equal(t, describe, w.TaskList().Describe())
	assert.Equal(t, count, fx.reg.Len())
	assert.Equal(t, views, fx.dev.Live("view"))
}

func TestResizeReallocatesTargets(t *testing.T) {
	fx := newFixture(t)
	w := fx.world(t, nil, 2, gpu.Extent2D(8, 8))
	pipelines := fx.dev.Live("pipeline")

	require.NoError(t, w.Resize(gpu.Extent2D(16, 4), nil, 3))
	assert.Equal(t, gpu.Extent2D(16, 4), w.LDR().Extent())
	assert.Equal(t, 3, w.LDR().Slots())
	assert.Equal(t, pipelines, fx.dev.Live("pipeline"))

	e := fx.executor(t, nil, 3)
	for i := 0; i < 3; i++ {
		require.NoError(t, e.Execute(w.TaskList(), w.Prepare))
	}
	require.NoError(t, fx.dev.WaitIdle())
	assert.Empty(t, fx.dev.Validation())
	assert.Equal(t, soft.Texel{1, 0.75, 0, 1}, fx.dev.ReadImage(w.LDR().Resolve(2).Image)[0])
}

func TestEmptyExtentIsRejected(t *testing.T) {
	fx := newFixture(t)
	_, err := NewWorld(Context{Device: fx.dev, Registry: fx.reg, Pipelines: fx.lib, FrameCount: 2})
	assert.Error(t, err)
	assert.Equal(t, 0, fx.reg.Len())
}

func TestResizeRetargetsOnlyTheSurfacePipeline(t *testing.T) {
	fx := newFixture(t)
	extent := gpu.Extent2D(4, 4)
	old, err := fx.dev.NewSwapchain(extent, gpu.FormatRGBA8Unorm, 2)
	require.NoError(t, err)
	surface := resources.NewSurface(old)

	e := fx.executor(t, surface, 2)
	w := fx.world(t, surface, e.FrameCount(), extent)
	require.Equal(t, []gpu.Format{gpu.FormatRGBA8Unorm}, w.pipelines.antialias.ColorFormats())
	gbuffer, tonemap := w.pipelines.gbuffer.Handle(), w.pipelines.tonemap.Handle()

	require.NoError(t, fx.dev.WaitIdle())
	next, err := fx.dev.NewSwapchain(extent, gpu.FormatBGRA8Unorm, 2)
	require.NoError(t, err)
	t.Cleanup(next.Destroy)
	old.Destroy()
	surface.Rebind(next)
	require.NoError(t, e.Rebuild(surface))
	require.NoError(t, w.Resize(next.Extent(), surface, e.FrameCount()))

	assert.Equal(t, []gpu.Format{surface.Format()}, w.pipelines.antialias.ColorFormats())
	assert.Same(t, gbuffer, w.pipelines.gbuffer.Handle())
	assert.Same(t, tonemap, w.pipelines.tonemap.Handle())
	assert.Equal(t, []gpu.Format{AlbedoFormat, NormalFormat}, w.pipelines.gbuffer.ColorFormats())
	assert.Equal(t, []gpu.Format{LDRFormat}, w.pipelines.tonemap.ColorFormats())

	for i := 0; i < 2; i++ {
		require.NoError(t, e.Execute(w.TaskList(), w.Prepare))
	}
	require.NoError(t, fx.dev.WaitIdle())
	assert.Empty(t, fx.dev.Validation())
	assert.Equal(t, []uint32{0, 1}, next.Presented())
}

func TestResizeRecoversFromFailedResize(t *testing.T) {
	fx := newFixture(t)
	w := fx.world(t, nil, 2, gpu.Extent2D(8, 8))

	assert.Error(t, w.Resize(gpu.Extent{}, nil, 2))
	require.NotPanics(t, func() {
		require.NoError(t, w.Resize(gpu.Extent2D(8, 8), nil, 2))
	})

	e := fx.executor(t, nil, 2)
	require.NoError(t, e.Execute(w.TaskList(), w.Prepare))
	require.NoError(t, fx.dev.WaitIdle())
	assert.Empty(t, fx.dev.Validation())
}
