package soft

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/spaghettifunk/aurora/engine/renderer/gpu"
)

// Kernel stands in for a compiled shader entry point.
type Kernel func(inv *Invocation)

type kernelEntry struct {
	stage gpu.ShaderStage
	fn    Kernel
}

// RegisterKernel makes path loadable as a shader module of the given stage.
// Vertex stages may pass a nil kernel; only fragment and compute kernels run.
func (d *Device) RegisterKernel(path string, stage gpu.ShaderStage, fn Kernel) {
	d.mu.Lock()
	d.kernels[path] = kernelEntry{stage: stage, fn: fn}
	d.mu.Unlock()
}

type shaderModule struct {
	path  string
	stage gpu.ShaderStage
	fn    Kernel
}

func (s *shaderModule) Path() string { return s.path }

func (d *Device) LoadShader(path string, stage gpu.ShaderStage) (gpu.ShaderModule, error) {
	d.mu.Lock()
	k, ok := d.kernels[path]
	d.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("shader %s: %w", path, gpu.ErrShaderCompile)
	}
	if k.stage&stage == 0 {
		return nil, fmt.Errorf("shader %s has no entry point for stage %d: %w", path, stage, gpu.ErrShaderCompile)
	}
	d.track("shader", 1)
	return &shaderModule{path: path, stage: stage, fn: k.fn}, nil
}

func (d *Device) DestroyShader(m gpu.ShaderModule) {
	if m != nil {
		d.track("shader", -1)
	}
}

type pipeline struct {
	kind     gpu.PipelineKind
	label    string
	fragment *shaderModule
	compute  *shaderModule
	layouts  []gpu.BindingLayout
	colors   []gpu.Format
	depth    gpu.Format
}

func (p *pipeline) Kind() gpu.PipelineKind { return p.kind }

func (d *Device) CreateGraphicsPipeline(desc gpu.GraphicsPipelineDesc) (gpu.Pipeline, error) {
	if desc.Vertex == nil || desc.Fragment == nil {
		return nil, fmt.Errorf("pipeline %s: missing shader stage", desc.Label)
	}
	for _, f := range desc.ColorFormats {
		if f == gpu.FormatUndefined || f.IsDepth() {
			return nil, fmt.Errorf("pipeline %s: color target %s: %w", desc.Label, f, gpu.ErrUnsupportedFormat)
		}
	}
	if desc.DepthFormat != gpu.FormatUndefined && !desc.DepthFormat.IsDepth() {
		return nil, fmt.Errorf("pipeline %s: depth target %s: %w", desc.Label, desc.DepthFormat, gpu.ErrUnsupportedFormat)
	}
	d.track("pipeline", 1)
	return &pipeline{
		kind:     gpu.PipelineGraphics,
		label:    desc.Label,
		fragment: desc.Fragment.(*shaderModule),
		layouts:  desc.Layouts,
		colors:   append([]gpu.Format(nil), desc.ColorFormats...),
		depth:    desc.DepthFormat,
	}, nil
}

func (d *Device) CreateComputePipeline(desc gpu.ComputePipelineDesc) (gpu.Pipeline, error) {
	if desc.Shader == nil {
		return nil, fmt.Errorf("pipeline %s: missing compute shader", desc.Label)
	}
	d.track("pipeline", 1)
	return &pipeline{
		kind:    gpu.PipelineCompute,
		label:   desc.Label,
		compute: desc.Shader.(*shaderModule),
		layouts: desc.Layouts,
	}, nil
}

func (d *Device) DestroyPipeline(p gpu.Pipeline) {
	if p != nil {
		d.track("pipeline", -1)
	}
}

// DrawParams are the arguments of the draw that invoked a fragment kernel.
type DrawParams struct {
	Indexed       bool
	Count         uint32
	First         uint32
	VertexOffset  int32
	InstanceCount uint32
}

// Invocation gives a kernel access to its bound resources.
type Invocation struct {
	dev      *Device
	Groups   [3]uint32
	Draw     DrawParams
	Viewport gpu.Viewport
	Targets  []*ImageAccess
	Depth    *ImageAccess
	Vertices []*BufferAccess
	Indices  *BufferAccess
	bound    map[uint32]*bindingGroup
	pipeline *pipeline
}

func (inv *Invocation) resource(set, binding uint32) (gpu.BindingResource, gpu.BindingLayoutEntry, bool) {
	g, ok := inv.bound[set]
	if !ok {
		inv.dev.validate("%s: set %d not bound", inv.pipeline.label, set)
		return gpu.BindingResource{}, gpu.BindingLayoutEntry{}, false
	}
	e, _ := g.layout.entry(binding)
	r, ok := g.get(binding)
	if !ok {
		inv.dev.validate("%s: set %d binding %d never written", inv.pipeline.label, set, binding)
		return gpu.BindingResource{}, e, false
	}
	return r, e, true
}

// Image returns the image bound at (set, binding), or nil.
func (inv *Invocation) Image(set, binding uint32) *ImageAccess {
	r, e, ok := inv.resource(set, binding)
	if !ok || r.View == nil {
		return nil
	}
	img := r.View.(*view).img
	layout := img.layoutNow()
	switch e.Kind {
	case gpu.BindingStorageImage:
		if layout != gpu.LayoutGeneral {
			inv.dev.validate("%s: storage image %s used in layout %s", inv.pipeline.label, img.label, layout)
		}
	case gpu.BindingSampledImage:
		if layout != gpu.LayoutShaderReadOnly && layout != gpu.LayoutGeneral && layout != gpu.LayoutDepthReadOnly {
			inv.dev.validate("%s: sampled image %s used in layout %s", inv.pipeline.label, img.label, layout)
		}
	}
	return &ImageAccess{img: img, access: gpu.AccessShaderWrite}
}

// Buffer returns the buffer bound at (set, binding), or nil.
func (inv *Invocation) Buffer(set, binding uint32) *BufferAccess {
	r, _, ok := inv.resource(set, binding)
	if !ok || r.Buffer == nil {
		return nil
	}
	return &BufferAccess{buf: r.Buffer.(*buffer), offset: r.Offset, access: gpu.AccessShaderWrite}
}

// ImageAccess reads visible texels and writes into the pending copy.
type ImageAccess struct {
	img    *image
	access gpu.Access
}

func (a *ImageAccess) Extent() gpu.Extent { return a.img.extent }
func (a *ImageAccess) Label() string      { return a.img.label }

func (a *ImageAccess) index(x, y int) int {
	return y*int(a.img.extent.Width) + x
}

func (a *ImageAccess) Load(x, y int) Texel {
	a.img.mu.Lock()
	defer a.img.mu.Unlock()
	return a.img.data[a.index(x, y)]
}

func (a *ImageAccess) Store(x, y int, v Texel) {
	a.img.mu.Lock()
	defer a.img.mu.Unlock()
	a.img.write(a.access)[a.index(x, y)] = v
}

// Fill stores v into every texel.
func (a *ImageAccess) Fill(v Texel) {
	a.img.mu.Lock()
	defer a.img.mu.Unlock()
	px := a.img.write(a.access)
	for i := range px {
		px[i] = v
	}
}

// BufferAccess reads visible bytes and writes into the pending copy.
type BufferAccess struct {
	buf    *buffer
	offset uint64
	access gpu.Access
}

func (a *BufferAccess) Bytes() []byte {
	a.buf.mu.Lock()
	defer a.buf.mu.Unlock()
	return append([]byte(nil), a.buf.data[a.offset:]...)
}

func (a *BufferAccess) Float32(i int) float32 {
	a.buf.mu.Lock()
	defer a.buf.mu.Unlock()
	off := a.offset + uint64(i)*4
	return math.Float32frombits(binary.LittleEndian.Uint32(a.buf.data[off:]))
}

func (a *BufferAccess) PutFloat32(i int, v float32) {
	a.buf.mu.Lock()
	defer a.buf.mu.Unlock()
	off := a.offset + uint64(i)*4
	binary.LittleEndian.PutUint32(a.buf.write(a.access)[off:], math.Float32bits(v))
}

func (a *BufferAccess) Uint32(i int) uint32 {
	a.buf.mu.Lock()
	defer a.buf.mu.Unlock()
	return binary.LittleEndian.Uint32(a.buf.data[a.offset+uint64(i)*4:])
}

func (a *BufferAccess) PutUint32(i int, v uint32) {
	a.buf.mu.Lock()
	defer a.buf.mu.Unlock()
	binary.LittleEndian.PutUint32(a.buf.write(a.access)[a.offset+uint64(i)*4:], v)
}
