package soft

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spaghettifunk/aurora/engine/renderer/gpu"
)

type commandBufferState int

const (
	stateReady commandBufferState = iota
	stateRecording
	stateInRendering
	stateEnded
	stateSubmitted
)

func (s commandBufferState) String() string {
	return [...]string{"ready", "recording", "in_rendering", "ended", "submitted"}[s]
}

type execState struct {
	dev      *Device
	pipeline *pipeline
	bound    map[uint32]*bindingGroup
	targets  []*ImageAccess
	depth    *ImageAccess
	viewport gpu.Viewport
	vertices []*BufferAccess
	indices  *BufferAccess
}

type op func(s *execState)

type commandBuffer struct {
	dev   *Device
	mu    sync.Mutex
	state commandBufferState
	ops   []op
	trace []string
}

func (d *Device) CreateCommandBuffer() (gpu.CommandBuffer, error) {
	d.track("command_buffer", 1)
	return &commandBuffer{dev: d}, nil
}

func (d *Device) FreeCommandBuffer(cb gpu.CommandBuffer) {
	if cb != nil {
		d.track("command_buffer", -1)
	}
}

func (c *commandBuffer) complete() {
	c.mu.Lock()
	c.state = stateReady
	c.mu.Unlock()
}

func (c *commandBuffer) current() commandBufferState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *commandBuffer) record(trace string, fn op) {
	c.trace = append(c.trace, trace)
	c.ops = append(c.ops, fn)
}

func (c *commandBuffer) Begin() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateSubmitted {
		return fmt.Errorf("begin: command buffer still in flight")
	}
	c.state = stateRecording
	c.ops = nil
	c.trace = nil
	return nil
}

func (c *commandBuffer) End() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateRecording {
		return fmt.Errorf("end: command buffer is %s", c.state)
	}
	c.state = stateEnded
	return nil
}

func (c *commandBuffer) Barrier(batch gpu.BarrierBatch) {
	parts := make([]string, 0, batch.Len())
	for _, b := range batch.Images {
		parts = append(parts, fmt.Sprintf("%s %s->%s", b.Image.Label(), b.OldLayout, b.NewLayout))
	}
	for _, b := range batch.Buffers {
		parts = append(parts, fmt.Sprintf("%s %s->%s", b.Buffer.Label(), b.SrcAccess, b.DstAccess))
	}
	src, dst := batch.Stages()
	c.record(fmt.Sprintf("barrier %s->%s [%s]", src, dst, strings.Join(parts, ", ")), func(s *execState) {
		for _, b := range batch.Images {
			img := b.Image.(*image)
			img.mu.Lock()
			if b.OldLayout != gpu.LayoutUndefined && b.OldLayout != img.layout {
				s.dev.validate("barrier on %s declares layout %s, image is in %s", img.label, b.OldLayout, img.layout)
			}
			img.flush(b.SrcAccess)
			img.layout = b.NewLayout
			img.mu.Unlock()
		}
		for _, b := range batch.Buffers {
			buf := b.Buffer.(*buffer)
			buf.mu.Lock()
			buf.flush(b.SrcAccess)
			buf.mu.Unlock()
		}
	})
}

func (c *commandBuffer) BeginRendering(info gpu.RenderingInfo) {
	if c.state != stateRecording {
		c.dev.validate("begin rendering %s while %s", info.Label, c.state)
	}
	c.state = stateInRendering
	labels := make([]string, 0, len(info.Colors)+1)
	for _, a := range info.Colors {
		labels = append(labels, a.View.Image().Label())
	}
	if info.Depth != nil {
		labels = append(labels, info.Depth.View.Image().Label())
	}
	c.record(fmt.Sprintf("begin_rendering %s %s [%s]", info.Label, info.Extent, strings.Join(labels, ", ")), func(s *execState) {
		s.targets = s.targets[:0]
		for _, a := range info.Colors {
			img := a.View.(*view).img
			if l := img.layoutNow(); l != gpu.LayoutColorAttachment && l != gpu.LayoutGeneral {
				s.dev.validate("color target %s rendered in layout %s", img.label, l)
			}
			acc := &ImageAccess{img: img, access: gpu.AccessColorAttachmentWrite}
			if a.Load == gpu.LoadOpClear {
				acc.Fill(a.Clear)
			}
			s.targets = append(s.targets, acc)
		}
		s.depth = nil
		if info.Depth != nil {
			img := info.Depth.View.(*view).img
			if l := img.layoutNow(); l != gpu.LayoutDepthAttachment {
				s.dev.validate("depth target %s rendered in layout %s", img.label, l)
			}
			s.depth = &ImageAccess{img: img, access: gpu.AccessDepthStencilWrite}
			if info.Depth.Load == gpu.LoadOpClear {
				s.depth.Fill(Texel{info.Depth.ClearDepth, 0, 0, 0})
			}
		}
	})
}

func (c *commandBuffer) EndRendering() {
	if c.state != stateInRendering {
		c.dev.validate("end rendering outside of rendering")
	}
	c.state = stateRecording
	c.record("end_rendering", func(s *execState) {
		s.targets = nil
		s.depth = nil
	})
}

func (c *commandBuffer) SetViewport(vp gpu.Viewport) {
	c.record(fmt.Sprintf("viewport %gx%g", vp.Width, vp.Height), func(s *execState) {
		s.viewport = vp
	})
}

func (c *commandBuffer) BindPipeline(gp gpu.Pipeline) {
	p := gp.(*pipeline)
	c.record("bind_pipeline "+p.label, func(s *execState) {
		s.pipeline = p
		s.bound = map[uint32]*bindingGroup{}
	})
}

func (c *commandBuffer) BindGroups(gp gpu.Pipeline, first uint32, groups []gpu.BindingGroup) {
	p := gp.(*pipeline)
	c.record(fmt.Sprintf("bind_groups %s first=%d count=%d", p.label, first, len(groups)), func(s *execState) {
		for i, g := range groups {
			s.bound[first+uint32(i)] = g.(*bindingGroup)
		}
	})
}

func (c *commandBuffer) BindVertexBuffers(first uint32, buffers []gpu.Buffer, offsets []uint64) {
	names := make([]string, len(buffers))
	for i, b := range buffers {
		names[i] = b.Label()
	}
	c.record(fmt.Sprintf("bind_vertex_buffers %d [%s]", first, strings.Join(names, ", ")), func(s *execState) {
		s.vertices = make([]*BufferAccess, len(buffers))
		for i, b := range buffers {
			s.vertices[i] = &BufferAccess{buf: b.(*buffer), offset: offsets[i]}
		}
	})
}

func (c *commandBuffer) BindIndexBuffer(b gpu.Buffer, offset uint64, indexType gpu.IndexType) {
	c.record(fmt.Sprintf("bind_index_buffer %s", b.Label()), func(s *execState) {
		s.indices = &BufferAccess{buf: b.(*buffer), offset: offset}
	})
}

func (c *commandBuffer) draw(trace string, params DrawParams) {
	if c.state != stateInRendering {
		c.dev.validate("%s outside of rendering", trace)
	}
	c.record(trace, func(s *execState) {
		if s.pipeline == nil || s.pipeline.kind != gpu.PipelineGraphics {
			s.dev.validate("%s without a graphics pipeline", trace)
			return
		}
		if len(s.pipeline.colors) != len(s.targets) {
			s.dev.validate("%s: pipeline %s expects %d color targets, rendering has %d",
				trace, s.pipeline.label, len(s.pipeline.colors), len(s.targets))
		}
		if fn := s.pipeline.fragment.fn; fn != nil {
			fn(&Invocation{
				dev:      s.dev,
				Draw:     params,
				Viewport: s.viewport,
				Targets:  s.targets,
				Depth:    s.depth,
				Vertices: s.vertices,
				Indices:  s.indices,
				bound:    s.bound,
				pipeline: s.pipeline,
			})
		}
	})
}

func (c *commandBuffer) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	c.draw(fmt.Sprintf("draw %d %d %d", vertexCount, instanceCount, firstVertex), DrawParams{
		Count:         vertexCount,
		First:         firstVertex,
		InstanceCount: instanceCount,
	})
}

func (c *commandBuffer) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	c.draw(fmt.Sprintf("draw_indexed %d %d %d %d", indexCount, instanceCount, firstIndex, vertexOffset), DrawParams{
		Indexed:       true,
		Count:         indexCount,
		First:         firstIndex,
		VertexOffset:  vertexOffset,
		InstanceCount: instanceCount,
	})
}

func (c *commandBuffer) Dispatch(x, y, z uint32) {
	if c.state != stateRecording {
		c.dev.validate("dispatch while %s", c.state)
	}
	c.record(fmt.Sprintf("dispatch %d %d %d", x, y, z), func(s *execState) {
		if s.pipeline == nil || s.pipeline.kind != gpu.PipelineCompute {
			s.dev.validate("dispatch without a compute pipeline")
			return
		}
		if fn := s.pipeline.compute.fn; fn != nil {
			fn(&Invocation{
				dev:      s.dev,
				Groups:   [3]uint32{x, y, z},
				bound:    s.bound,
				pipeline: s.pipeline,
			})
		}
	})
}
