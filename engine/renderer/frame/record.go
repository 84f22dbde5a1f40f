package frame

import (
	"fmt"

	"github.com/spaghettifunk/aurora/engine/renderer/barrier"
	"github.com/spaghettifunk/aurora/engine/renderer/binding"
	"github.com/spaghettifunk/aurora/engine/renderer/gpu"
	"github.com/spaghettifunk/aurora/engine/renderer/resources"
	"github.com/spaghettifunk/aurora/engine/renderer/tasks"
)

// Record walks list in order and records it into cb for frame f.
func Record(cb gpu.CommandBuffer, list *tasks.List, f resources.Frame, tracker *barrier.Tracker) error {
	if err := cb.Begin(); err != nil {
		return fmt.Errorf("record %s: %w", list.Name(), err)
	}
	for _, t := range list.Tasks() {
		switch t := t.(type) {
		case *tasks.GraphicsTask:
			recordGraphics(cb, t, f)
		case *tasks.ComputeTask:
			recordCompute(cb, t, f)
		case *tasks.BarrierTask:
			t.Execute(cb, f, tracker)
		case *tasks.CallbackTask:
			if err := t.Fn(cb, f); err != nil {
				return fmt.Errorf("record %s: callback %s: %w", list.Name(), t.Name, err)
			}
		default:
			return fmt.Errorf("record %s: unknown task %T", list.Name(), t)
		}
	}
	if err := cb.End(); err != nil {
		return fmt.Errorf("record %s: %w", list.Name(), err)
	}
	return nil
}

func attachment(a tasks.Attachment, f resources.Frame) gpu.Attachment {
	return gpu.Attachment{
		View:       a.Target.Physical(f).View,
		Load:       a.Load,
		Store:      true,
		Clear:      a.Clear,
		ClearDepth: a.ClearDepth,
	}
}

func recordGraphics(cb gpu.CommandBuffer, t *tasks.GraphicsTask, f resources.Frame) {
	extent := t.ViewportExtent()
	info := gpu.RenderingInfo{Label: t.Name, Extent: extent}
	for _, a := range t.Colors {
		info.Colors = append(info.Colors, attachment(a, f))
	}
	if t.Depth != nil {
		d := attachment(*t.Depth, f)
		info.Depth = &d
	}

	cb.BeginRendering(info)
	cb.SetViewport(gpu.FullViewport(extent))
	for _, d := range t.Draws {
		handle := d.Pipeline.Handle()
		cb.BindPipeline(handle)
		if len(d.Sets) > 0 {
			cb.BindGroups(handle, 0, binding.Groups(f.Slot, d.Sets...))
		}
		if len(d.VertexBuffers) > 0 {
			bufs := make([]gpu.Buffer, len(d.VertexBuffers))
			offsets := make([]uint64, len(d.VertexBuffers))
			for i, vb := range d.VertexBuffers {
				bufs[i] = vb.Buffer(f)
			}
			cb.BindVertexBuffers(0, bufs, offsets)
		}
		instances := d.InstanceCount
		if instances == 0 {
			instances = 1
		}
		if d.IndexBuffer != nil {
			cb.BindIndexBuffer(d.IndexBuffer.Buffer(f), 0, d.IndexType)
			cb.DrawIndexed(d.Count, instances, d.FirstIndex, d.VertexOffset, 0)
		} else {
			cb.Draw(d.Count, instances, 0, 0)
		}
	}
	cb.EndRendering()
}

func recordCompute(cb gpu.CommandBuffer, t *tasks.ComputeTask, f resources.Frame) {
	handle := t.Pipeline.Handle()
	cb.BindPipeline(handle)
	if len(t.Sets) > 0 {
		cb.BindGroups(handle, 0, binding.Groups(f.Slot, t.Sets...))
	}
	cb.Dispatch(t.Groups[0], t.Groups[1], t.Groups[2])
}
