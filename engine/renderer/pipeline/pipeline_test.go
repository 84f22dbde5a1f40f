package pipeline

import (
	"testing"

	"github.com/spaghettifunk/aurora/engine/core"
	"github.com/spaghettifunk/aurora/engine/renderer/binding"
	"github.com/spaghettifunk/aurora/engine/renderer/gpu"
	"github.com/spaghettifunk/aurora/engine/renderer/gpu/soft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLibrary(t *testing.T) (*soft.Device, *Library, *binding.Set) {
	t.Helper()
	dev := soft.NewDevice(soft.Options{})
	t.Cleanup(dev.Close)
	for _, k := range []struct {
		path  string
		stage gpu.ShaderStage
	}{
		{"shaders/fullscreen.vert.spv", gpu.ShaderVertex},
		{"shaders/tonemap.frag.spv", gpu.ShaderFragment},
		{"shaders/lighting.comp.spv", gpu.ShaderCompute},
	} {
		dev.RegisterKernel(k.path, k.stage, func(*soft.Invocation) {})
	}
	lib, err := NewLibrary(dev, LibraryConfig{ShaderDir: "shaders", Workers: 2})
	require.NoError(t, err)
	t.Cleanup(lib.Destroy)

	alloc, err := binding.NewAllocator(dev, binding.AllocatorConfig{
		FrameCount: 2, MaxSets: 1, PerKind: map[gpu.BindingKind]int{gpu.BindingSampledImage: 2},
	})
	require.NoError(t, err)
	set, err := alloc.Generate("inputs", gpu.ShaderAllGraphics|gpu.ShaderCompute, gpu.BindingSampledImage)
	require.NoError(t, err)
	return dev, lib, set
}

func TestCreatePipelines(t *testing.T) {
	dev, lib, set := newLibrary(t)
	require.NoError(t, lib.Preload(map[string]gpu.ShaderStage{
		"fullscreen.vert.spv": gpu.ShaderVertex,
		"tonemap.frag.spv":    gpu.ShaderFragment,
	}))
	assert.Equal(t, 2, dev.Live("shader"))

	g, err := lib.CreateGraphics(GraphicsDesc{
		Name:           "tonemap",
		VertexShader:   "fullscreen.vert.spv",
		FragmentShader: "tonemap.frag.spv",
		ColorFormats:   []gpu.Format{gpu.FormatBGRA8Unorm},
		Sets:           []*binding.Set{set},
	})
	require.NoError(t, err)
	assert.Equal(t, gpu.PipelineGraphics, g.Kind())
	assert.Equal(t, gpu.PipelineGraphics, g.Handle().Kind())
	assert.Equal(t, 2, dev.Live("shader"))

	c, err := lib.CreateCompute(ComputeDesc{Name: "lighting", Shader: "lighting.comp.spv", Sets: []*binding.Set{set}})
	require.NoError(t, err)
	assert.Equal(t, gpu.PipelineCompute, c.Kind())
	assert.Equal(t, []*binding.Set{set}, c.Sets())
	assert.Len(t, lib.Pipelines(), 2)
}

func TestCreateFailsOnMissingShader(t *testing.T) {
	_, lib, _ := newLibrary(t)
	_, err := lib.CreateCompute(ComputeDesc{Name: "bloom", Shader: "bloom.comp.spv"})
	assert.ErrorIs(t, err, core.ErrPipelineCreation)
	assert.ErrorIs(t, err, gpu.ErrShaderCompile)

	_, err = lib.CreateGraphics(GraphicsDesc{
		Name:           "bad",
		VertexShader:   "fullscreen.vert.spv",
		FragmentShader: "tonemap.frag.spv",
		ColorFormats:   []gpu.Format{gpu.FormatD32Float},
	})
	assert.ErrorIs(t, err, gpu.ErrUnsupportedFormat)
	assert.Empty(t, lib.Pipelines())
}

func TestRetargetRebuildsOnlyTheGivenPipeline(t *testing.T) {
	dev, lib, _ := newLibrary(t)
	g, err := lib.CreateGraphics(GraphicsDesc{
		Name:           "present",
		VertexShader:   "fullscreen.vert.spv",
		FragmentShader: "tonemap.frag.spv",
		ColorFormats:   []gpu.Format{gpu.FormatRGBA8Unorm},
	})
	require.NoError(t, err)
	offscreen, err := lib.CreateGraphics(GraphicsDesc{
		Name:           "offscreen",
		VertexShader:   "fullscreen.vert.spv",
		FragmentShader: "tonemap.frag.spv",
		ColorFormats:   []gpu.Format{gpu.FormatRGBA8Unorm},
	})
	require.NoError(t, err)
	before, untouched := g.Handle(), offscreen.Handle()

	changed, err := lib.Retarget(g, gpu.FormatBGRA8Srgb)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.NotSame(t, before, g.Handle())
	assert.Equal(t, []gpu.Format{gpu.FormatBGRA8Srgb}, g.ColorFormats())
	assert.Same(t, untouched, offscreen.Handle())
	assert.Equal(t, []gpu.Format{gpu.FormatRGBA8Unorm}, offscreen.ColorFormats())
	assert.Equal(t, 2, dev.Live("pipeline"))

	changed, err = lib.Retarget(g, gpu.FormatBGRA8Srgb)
	assert.NoError(t, err)
	assert.False(t, changed)
}

func TestRetargetRejectsComputePipelines(t *testing.T) {
	_, lib, _ := newLibrary(t)
	c, err := lib.CreateCompute(ComputeDesc{Name: "lighting", Shader: "lighting.comp.spv"})
	require.NoError(t, err)
	_, err = lib.Retarget(c, gpu.FormatRGBA8Unorm)
	assert.Error(t, err)
}

func TestReloadRebuildsPipelinesUsingChangedShaders(t *testing.T) {
	dev, lib, _ := newLibrary(t)
	c, err := lib.CreateCompute(ComputeDesc{Name: "lighting", Shader: "lighting.comp.spv"})
	require.NoError(t, err)
	g, err := lib.CreateGraphics(GraphicsDesc{
		Name:           "tonemap",
		VertexShader:   "fullscreen.vert.spv",
		FragmentShader: "tonemap.frag.spv",
		ColorFormats:   []gpu.Format{gpu.FormatRGBA8Unorm},
	})
	require.NoError(t, err)
	cBefore, gBefore := c.Handle(), g.Handle()

	n, err := lib.Reload([]string{"lighting.comp.spv"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NotSame(t, cBefore, c.Handle())
	assert.Same(t, gBefore, g.Handle())
	assert.Equal(t, 2, dev.Live("pipeline"))

	lib.Release(c)
	assert.Len(t, lib.Pipelines(), 1)
	assert.Equal(t, 1, dev.Live("pipeline"))
}
