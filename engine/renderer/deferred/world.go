// Package deferred wires the standard deferred frame: sky bake, gbuffer,
// compute lighting, bloom, tonemapping and antialiasing into the surface.
package deferred

import (
	"fmt"

	"github.com/spaghettifunk/aurora/engine/core"
	"github.com/spaghettifunk/aurora/engine/math"
	"github.com/spaghettifunk/aurora/engine/renderer/barrier"
	"github.com/spaghettifunk/aurora/engine/renderer/binding"
	"github.com/spaghettifunk/aurora/engine/renderer/gpu"
	"github.com/spaghettifunk/aurora/engine/renderer/pipeline"
	"github.com/spaghettifunk/aurora/engine/renderer/resources"
	"github.com/spaghettifunk/aurora/engine/renderer/tasks"
)

const (
	AlbedoFormat = gpu.FormatRGBA8Unorm
	NormalFormat = gpu.FormatRGBA16Float
	DepthFormat  = gpu.FormatD32Float
	HDRFormat    = gpu.FormatRGBA16Float
	LDRFormat    = gpu.FormatRGBA8Unorm
	SkyLUTFormat = gpu.FormatRGBA16Float

	skyLUTSize = 64
	groupSize  = 8
)

const (
	ShaderSkyBake      = "sky_bake.comp.spv"
	ShaderGBufferVert  = "gbuffer.vert.spv"
	ShaderGBufferFrag  = "gbuffer.frag.spv"
	ShaderLighting     = "lighting.comp.spv"
	ShaderBloom        = "bloom.comp.spv"
	ShaderFullscreen   = "fullscreen.vert.spv"
	ShaderTonemap      = "tonemap.frag.spv"
	ShaderAntialiasing = "fxaa.frag.spv"
)

// Shaders lists every module the world loads, with its stage.
func Shaders() map[string]gpu.ShaderStage {
	return map[string]gpu.ShaderStage{
		ShaderSkyBake:      gpu.ShaderCompute,
		ShaderGBufferVert:  gpu.ShaderVertex,
		ShaderGBufferFrag:  gpu.ShaderFragment,
		ShaderLighting:     gpu.ShaderCompute,
		ShaderBloom:        gpu.ShaderCompute,
		ShaderFullscreen:   gpu.ShaderVertex,
		ShaderTonemap:      gpu.ShaderFragment,
		ShaderAntialiasing: gpu.ShaderFragment,
	}
}

// Vertex is the layout of scene geometry fed to the gbuffer pass.
type Vertex struct {
	Position [3]float32
	Normal   [3]float32
	UV       [2]float32
}

var VertexLayout = gpu.VertexLayout{
	Stride: 32,
	Attributes: []gpu.VertexAttribute{
		{Location: 0, Format: gpu.FormatRGB32Float, Offset: 0},
		{Location: 1, Format: gpu.FormatRGB32Float, Offset: 12},
		{Location: 2, Format: gpu.FormatRG32Float, Offset: 24},
	},
}

// Camera is the per frame uniform block shared by every pass.
type Camera struct {
	View          [16]float32
	Projection    [16]float32
	Position      [4]float32
	SunDirection  [4]float32
	Exposure      float32
	BloomStrength float32
	Frame         uint32
	_             float32
}

// Context is everything the world renders with. It is passed explicitly
// instead of living in renderer globals.
type Context struct {
	Device    gpu.Device
	Registry  *resources.Registry
	Pipelines *pipeline.Library
	// Surface is nil when rendering headless; LDR is then the final output.
	Surface    *resources.Surface
	FrameCount int
	Extent     gpu.Extent
}

type targets struct {
	albedo *resources.Image
	normal *resources.Image
	depth  *resources.Image
	hdr    *resources.Image
	bloom  *resources.Image
	ldr    *resources.Image
}

func (t targets) all() []*resources.Image {
	return []*resources.Image{t.albedo, t.normal, t.depth, t.hdr, t.bloom, t.ldr}
}

type sets struct {
	sky       *binding.Set
	camera    *binding.Set
	lighting  *binding.Set
	bloom     *binding.Set
	tonemap   *binding.Set
	antialias *binding.Set
}

type pipelines struct {
	sky       *pipeline.Pipeline
	gbuffer   *pipeline.Pipeline
	lighting  *pipeline.Pipeline
	bloom     *pipeline.Pipeline
	tonemap   *pipeline.Pipeline
	antialias *pipeline.Pipeline
}

func (p pipelines) all() []*pipeline.Pipeline {
	return []*pipeline.Pipeline{p.sky, p.gbuffer, p.lighting, p.bloom, p.tonemap, p.antialias}
}

type World struct {
	ctx       Context
	alloc     *binding.Allocator
	camera    *resources.UniformBuffer[Camera]
	skyLUT    *resources.Image
	skyBaked  bool
	targets   targets
	sets      sets
	pipelines pipelines
	drawables []tasks.DrawTask
	list      *tasks.List
	view      Camera

	// surfaceFormat is the color format the antialias pipeline was built for.
	surfaceFormat gpu.Format
}

// NewWorld allocates every resource, binding set and pipeline and builds the
// frame task list.
func NewWorld(ctx Context) (*World, error) {
	w := &World{ctx: ctx}
	if err := w.build(); err != nil {
		w.Destroy()
		return nil, err
	}
	return w, nil
}

func (w *World) build() error {
	if err := w.createStatic(); err != nil {
		return err
	}
	if err := w.createTargets(); err != nil {
		return err
	}
	if err := w.bindTargets(); err != nil {
		return err
	}
	if err := w.alloc.Validate(); err != nil {
		core.LogError(err.Error())
		return err
	}
	w.buildList()
	return nil
}

// createStatic allocates everything that does not depend on the extent.
func (w *World) createStatic() error {
	dev, reg, n := w.ctx.Device, w.ctx.Registry, w.ctx.FrameCount
	alloc, err := binding.NewAllocator(dev, binding.AllocatorConfig{
		FrameCount: n,
		MaxSets:    6,
		PerKind: map[gpu.BindingKind]int{
			gpu.BindingUniformBuffer: 3 * n,
			gpu.BindingSampledImage:  9 * n,
			gpu.BindingStorageImage:  3 * n,
		},
	})
	if err != nil {
		return err
	}
	w.alloc = alloc

	if w.camera, err = resources.NewUniformBuffer[Camera](dev, reg, "camera", n); err != nil {
		return err
	}
	if w.skyLUT, err = resources.AllocateSharedImage(dev, reg, "sky_lut", gpu.Extent2D(skyLUTSize, skyLUTSize), SkyLUTFormat, gpu.UsageStorage|gpu.UsageSampled); err != nil {
		return err
	}
	w.skyBaked = false

	s := &w.sets
	if s.sky, err = alloc.Generate("sky", gpu.ShaderCompute, gpu.BindingStorageImage); err != nil {
		return err
	}
	if s.camera, err = alloc.Generate("camera", gpu.ShaderAllGraphics, gpu.BindingUniformBuffer); err != nil {
		return err
	}
	if s.lighting, err = alloc.Generate("lighting", gpu.ShaderCompute,
		gpu.BindingUniformBuffer, gpu.BindingSampledImage, gpu.BindingSampledImage,
		gpu.BindingSampledImage, gpu.BindingSampledImage, gpu.BindingStorageImage); err != nil {
		return err
	}
	if s.bloom, err = alloc.Generate("bloom", gpu.ShaderCompute, gpu.BindingSampledImage, gpu.BindingStorageImage); err != nil {
		return err
	}
	if s.tonemap, err = alloc.Generate("tonemap", gpu.ShaderFragment,
		gpu.BindingUniformBuffer, gpu.BindingSampledImage, gpu.BindingSampledImage); err != nil {
		return err
	}
	if s.antialias, err = alloc.Generate("antialias", gpu.ShaderFragment, gpu.BindingSampledImage); err != nil {
		return err
	}

	for _, b := range []struct {
		set     *binding.Set
		binding uint32
		res     binding.Bindable
	}{
		{s.sky, 0, w.skyLUT},
		{s.camera, 0, w.camera},
		{s.lighting, 0, w.camera},
		{s.lighting, 4, w.skyLUT},
		{s.tonemap, 0, w.camera},
	} {
		if err := b.set.BindEach(b.binding, b.res); err != nil {
			return err
		}
	}

	return w.createPipelines()
}

func (w *World) outputFormat() gpu.Format {
	if w.ctx.Surface != nil {
		return w.ctx.Surface.Format()
	}
	return LDRFormat
}

func (w *World) createPipelines() error {
	lib, s, p := w.ctx.Pipelines, &w.sets, &w.pipelines
	var err error
	if p.sky, err = lib.CreateCompute(pipeline.ComputeDesc{Name: "sky_bake", Shader: ShaderSkyBake, Sets: []*binding.Set{s.sky}}); err != nil {
		return err
	}
	if p.gbuffer, err = lib.CreateGraphics(pipeline.GraphicsDesc{
		Name:           "gbuffer",
		VertexShader:   ShaderGBufferVert,
		FragmentShader: ShaderGBufferFrag,
		ColorFormats:   []gpu.Format{AlbedoFormat, NormalFormat},
		DepthFormat:    DepthFormat,
		Sets:           []*binding.Set{s.camera},
		VertexLayout:   &VertexLayout,
		DepthTest:      true,
		DepthWrite:     true,
	}); err != nil {
		return err
	}
	if p.lighting, err = lib.CreateCompute(pipeline.ComputeDesc{Name: "lighting", Shader: ShaderLighting, Sets: []*binding.Set{s.lighting}}); err != nil {
		return err
	}
	if p.bloom, err = lib.CreateCompute(pipeline.ComputeDesc{Name: "bloom", Shader: ShaderBloom, Sets: []*binding.Set{s.bloom}}); err != nil {
		return err
	}
	if p.tonemap, err = lib.CreateGraphics(pipeline.GraphicsDesc{
		Name:           "tonemap",
		VertexShader:   ShaderFullscreen,
		FragmentShader: ShaderTonemap,
		ColorFormats:   []gpu.Format{LDRFormat},
		Sets:           []*binding.Set{s.tonemap},
	}); err != nil {
		return err
	}
	w.surfaceFormat = w.outputFormat()
	if p.antialias, err = lib.CreateGraphics(pipeline.GraphicsDesc{
		Name:           "antialias",
		VertexShader:   ShaderFullscreen,
		FragmentShader: ShaderAntialiasing,
		ColorFormats:   []gpu.Format{w.surfaceFormat},
		Sets:           []*binding.Set{s.antialias},
	}); err != nil {
		return err
	}
	return nil
}

// createTargets allocates the extent dependent images.
func (w *World) createTargets() error {
	dev, reg, n, ext := w.ctx.Device, w.ctx.Registry, w.ctx.FrameCount, w.ctx.Extent
	if ext.Width == 0 || ext.Height == 0 {
		return fmt.Errorf("deferred world: empty extent %s", ext)
	}
	for _, target := range []struct {
		dst    **resources.Image
		name   string
		format gpu.Format
		usage  gpu.ImageUsage
	}{
		{&w.targets.albedo, "gbuffer_albedo", AlbedoFormat, gpu.UsageColorTarget | gpu.UsageSampled},
		{&w.targets.normal, "gbuffer_normal", NormalFormat, gpu.UsageColorTarget | gpu.UsageSampled},
		{&w.targets.depth, "gbuffer_depth", DepthFormat, gpu.UsageDepthTarget | gpu.UsageSampled},
		{&w.targets.hdr, "hdr", HDRFormat, gpu.UsageStorage | gpu.UsageSampled},
		{&w.targets.bloom, "bloom", HDRFormat, gpu.UsageStorage | gpu.UsageSampled},
		{&w.targets.ldr, "ldr", LDRFormat, gpu.UsageColorTarget | gpu.UsageSampled},
	} {
		img, err := resources.AllocateImage(dev, reg, target.name, ext, target.format, target.usage, n)
		if err != nil {
			return err
		}
		*target.dst = img
	}
	return nil
}

// bindTargets writes the extent dependent images into every slot of the sets.
func (w *World) bindTargets() error {
	s, t := &w.sets, &w.targets
	for _, b := range []struct {
		set     *binding.Set
		binding uint32
		res     binding.Bindable
	}{
		{s.lighting, 1, t.albedo},
		{s.lighting, 2, t.normal},
		{s.lighting, 3, t.depth},
		{s.lighting, 5, t.hdr},
		{s.bloom, 0, t.hdr},
		{s.bloom, 1, t.bloom},
		{s.tonemap, 1, t.hdr},
		{s.tonemap, 2, t.bloom},
		{s.antialias, 0, t.ldr},
	} {
		if err := b.set.BindEach(b.binding, b.res); err != nil {
			return err
		}
	}
	return nil
}

func (w *World) dispatchGroups() [3]uint32 {
	ext := w.ctx.Extent
	return [3]uint32{math.DivCeil(ext.Width, groupSize), math.DivCeil(ext.Height, groupSize), 1}
}

func (w *World) bakeSky(cb gpu.CommandBuffer, f resources.Frame) error {
	if w.skyBaked {
		return nil
	}
	barrier.Images(barrier.Image(w.skyLUT, barrier.Undefined, barrier.ComputeWrite)).Execute(cb, f, nil)
	h := w.pipelines.sky.Handle()
	cb.BindPipeline(h)
	cb.BindGroups(h, 0, binding.Groups(f.Slot, w.sets.sky))
	cb.Dispatch(skyLUTSize/groupSize, skyLUTSize/groupSize, 1)
	barrier.Images(barrier.Image(w.skyLUT, barrier.ComputeWrite, barrier.ComputeRead)).Execute(cb, f, nil)
	w.skyBaked = true
	core.LogDebug("sky lut baked on frame %d", f.Number)
	return nil
}

func (w *World) buildList() {
	t, s, p := &w.targets, &w.sets, &w.pipelines
	groups := w.dispatchGroups()

	gbuffer := &tasks.GraphicsTask{
		Name: "gbuffer",
		Colors: []tasks.Attachment{
			tasks.Clear(t.albedo, gpu.ClearColor{0, 0, 0, 0}),
			tasks.Clear(t.normal, gpu.ClearColor{0, 0, 0, 0}),
		},
		Depth: tasks.ClearDepth(t.depth, 1),
	}
	for _, d := range w.drawables {
		if d.Pipeline == nil {
			d.Pipeline = p.gbuffer
			d.Sets = append([]*binding.Set{s.camera}, d.Sets...)
		}
		gbuffer.AddDraw(d)
	}

	l := tasks.NewList("deferred").
		AddCallback("sky_bake", w.bakeSky).
		AddBarrier("gbuffer_targets", barrier.Images(
			barrier.Image(t.albedo, barrier.Undefined, barrier.ColorTarget),
			barrier.Image(t.normal, barrier.Undefined, barrier.ColorTarget),
			barrier.Image(t.depth, barrier.Undefined, barrier.DepthTarget),
		)).
		AddGraphics(gbuffer).
		AddBarrier("gbuffer_to_lighting", barrier.Images(
			barrier.Image(t.albedo, barrier.ColorTarget, barrier.ComputeRead),
			barrier.Image(t.normal, barrier.ColorTarget, barrier.ComputeRead),
			barrier.Image(t.depth, barrier.DepthTarget, barrier.DepthComputeRead),
			barrier.Image(t.hdr, barrier.Undefined, barrier.ComputeWrite),
		)).
		AddCompute(&tasks.ComputeTask{Name: "lighting", Pipeline: p.lighting, Sets: []*binding.Set{s.lighting}, Groups: groups}).
		AddBarrier("lighting_to_bloom", barrier.Images(
			barrier.Image(t.hdr, barrier.ComputeWrite, barrier.ComputeRead),
			barrier.Image(t.bloom, barrier.Undefined, barrier.ComputeWrite),
		)).
		AddCompute(&tasks.ComputeTask{Name: "bloom", Pipeline: p.bloom, Sets: []*binding.Set{s.bloom}, Groups: groups}).
		AddBarrier("bloom_to_tonemap", barrier.Images(
			barrier.Image(t.hdr, barrier.ComputeRead, barrier.FragmentRead),
			barrier.Image(t.bloom, barrier.ComputeWrite, barrier.FragmentRead),
			barrier.Image(t.ldr, barrier.Undefined, barrier.ColorTarget),
		)).
		AddGraphics(&tasks.GraphicsTask{
			Name:   "tonemap",
			Colors: []tasks.Attachment{{Target: t.ldr, Load: gpu.LoadOpDontCare}},
			Draws:  []tasks.DrawTask{{Pipeline: p.tonemap, Sets: []*binding.Set{s.tonemap}, Count: 3}},
		})

	if surface := w.ctx.Surface; surface != nil {
		l.AddBarrier("tonemap_to_antialias", barrier.Images(
			barrier.Image(t.ldr, barrier.ColorTarget, barrier.FragmentRead),
			barrier.Image(surface, barrier.Undefined, barrier.ColorTarget),
		)).
			AddGraphics(&tasks.GraphicsTask{
				Name:   "antialias",
				Colors: []tasks.Attachment{{Target: surface, Load: gpu.LoadOpDontCare}},
				Draws:  []tasks.DrawTask{{Pipeline: p.antialias, Sets: []*binding.Set{s.antialias}, Count: 3}},
			}).
			AddBarrier("present", barrier.Images(barrier.Image(surface, barrier.ColorTarget, barrier.Present)))
	} else {
		l.AddBarrier("ldr_readable", barrier.Images(barrier.Image(t.ldr, barrier.ColorTarget, barrier.FragmentRead)))
	}
	w.list = l
}

// TaskList is consumed by the frame executor every frame.
func (w *World) TaskList() *tasks.List { return w.list }

func (w *World) Extent() gpu.Extent { return w.ctx.Extent }

// LDR is the tonemapped image, the final output when rendering headless.
func (w *World) LDR() *resources.Image { return w.targets.ldr }

// AddDrawable appends a draw to the gbuffer pass. A draw without a pipeline
// uses the world's gbuffer pipeline with the camera bound as set 0.
func (w *World) AddDrawable(d tasks.DrawTask) {
	w.drawables = append(w.drawables, d)
	w.buildList()
}

// SetCamera replaces the camera used from the next prepared frame on.
func (w *World) SetCamera(c Camera) {
	w.view = c
}

// Prepare uploads the camera of frame f. Run it as a frame hook.
func (w *World) Prepare(f resources.Frame) error {
	c := w.view
	c.Frame = uint32(f.Number)
	return w.camera.Update(f.Slot, c)
}

// Resize rebuilds everything that depends on the extent, the surface or the
// frame count. The device must be idle.
func (w *World) Resize(extent gpu.Extent, surface *resources.Surface, frameCount int) error {
	w.ctx.Extent = extent
	w.ctx.Surface = surface

	if frameCount != w.ctx.FrameCount {
		w.ctx.FrameCount = frameCount
		w.Destroy()
		if err := w.build(); err != nil {
			return err
		}
		core.LogInfo("deferred world rebuilt for %s with %d frames in flight", extent, frameCount)
		return nil
	}

	for _, img := range w.targets.all() {
		if img != nil {
			w.ctx.Registry.Release(img)
		}
	}
	w.targets = targets{}
	if err := w.createTargets(); err != nil {
		return err
	}
	if err := w.bindTargets(); err != nil {
		return err
	}
	if format := w.outputFormat(); format != w.surfaceFormat {
		if _, err := w.ctx.Pipelines.Retarget(w.pipelines.antialias, format); err != nil {
			return err
		}
		w.surfaceFormat = format
	}
	w.buildList()
	core.LogInfo("deferred world resized to %s", extent)
	return nil
}

// Destroy releases the world's resources, sets and pipelines. The device must be idle.
func (w *World) Destroy() {
	for _, img := range w.targets.all() {
		if img != nil {
			w.ctx.Registry.Release(img)
		}
	}
	if w.skyLUT != nil {
		w.ctx.Registry.Release(w.skyLUT)
	}
	if w.camera != nil {
		w.ctx.Registry.Release(w.camera)
	}
	var ps []*pipeline.Pipeline
	for _, p := range w.pipelines.all() {
		if p != nil {
			ps = append(ps, p)
		}
	}
	w.ctx.Pipelines.Release(ps...)
	if w.alloc != nil {
		w.alloc.Destroy()
	}
	w.targets, w.sets, w.pipelines = targets{}, sets{}, pipelines{}
	w.alloc, w.camera, w.skyLUT, w.list = nil, nil, nil, nil
}
