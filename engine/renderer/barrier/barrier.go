// Package barrier describes pipeline barriers between tasks.
//
// Layouts are tracked by the author of the task list, not inferred: the
// prior state of every barrier must exactly match the state the resource was
// left in by the last operation that touched it. A missing barrier is a data
// race; a redundant one only costs throughput.
package barrier

import (
	"fmt"
	"strings"

	"github.com/spaghettifunk/aurora/engine/renderer/gpu"
	"github.com/spaghettifunk/aurora/engine/renderer/resources"
)

type ImageBarrier struct {
	Image resources.ImageResource
	Prior State
	Next  State
	Range gpu.SubresourceRange
}

type BufferBarrier struct {
	Buffer resources.BufferResource
	Prior  State
	Next   State
	Offset uint64
	// Size zero means the whole buffer.
	Size uint64
}

// Barrier is one element of a task list. Every barrier in it is recorded as
// a single synchronization command.
type Barrier struct {
	Images  []ImageBarrier
	Buffers []BufferBarrier
}

// Image transitions the whole of img.
func Image(img resources.ImageResource, prior, next State) ImageBarrier {
	return ImageBarrier{Image: img, Prior: prior, Next: next, Range: gpu.WholeImage(img.Format())}
}

func Buffer(buf resources.BufferResource, prior, next State) BufferBarrier {
	return BufferBarrier{Buffer: buf, Prior: prior, Next: next}
}

// New groups image and buffer barriers into one list element.
func New(images []ImageBarrier, buffers ...BufferBarrier) Barrier {
	return Barrier{Images: images, Buffers: buffers}
}

func Images(images ...ImageBarrier) Barrier {
	return Barrier{Images: images}
}

func Buffers(buffers ...BufferBarrier) Barrier {
	return Barrier{Buffers: buffers}
}

func (b Barrier) Len() int {
	return len(b.Images) + len(b.Buffers)
}

// Resolve binds every target to its physical resource for frame f.
func (b Barrier) Resolve(f resources.Frame) gpu.BarrierBatch {
	batch := gpu.BarrierBatch{
		Images:  make([]gpu.ImageBarrier, len(b.Images)),
		Buffers: make([]gpu.BufferBarrier, len(b.Buffers)),
	}
	for i, ib := range b.Images {
		batch.Images[i] = gpu.ImageBarrier{
			Image:     ib.Image.Physical(f).Image,
			SrcStage:  ib.Prior.Stage,
			SrcAccess: ib.Prior.Access,
			OldLayout: ib.Prior.Layout,
			DstStage:  ib.Next.Stage,
			DstAccess: ib.Next.Access,
			NewLayout: ib.Next.Layout,
			Range:     ib.Range,
		}
	}
	for i, bb := range b.Buffers {
		size := bb.Size
		if size == 0 {
			size = bb.Buffer.Size() - bb.Offset
		}
		batch.Buffers[i] = gpu.BufferBarrier{
			Buffer:    bb.Buffer.Buffer(f),
			SrcStage:  bb.Prior.Stage,
			SrcAccess: bb.Prior.Access,
			DstStage:  bb.Next.Stage,
			DstAccess: bb.Next.Access,
			Offset:    bb.Offset,
			Size:      size,
		}
	}
	return batch
}

// Execute records the barrier into cb as one synchronization command.
func (b Barrier) Execute(cb gpu.CommandBuffer, f resources.Frame, tracker *Tracker) {
	batch := b.Resolve(f)
	tracker.Observe(b, batch)
	cb.Barrier(batch)
}

// Targets names every resource the barrier transitions, in order.
func (b Barrier) Targets() []string {
	out := make([]string, 0, b.Len())
	for _, ib := range b.Images {
		out = append(out, fmt.Sprintf("%s:%s->%s", ib.Image.Name(), ib.Prior.Layout, ib.Next.Layout))
	}
	for _, bb := range b.Buffers {
		out = append(out, fmt.Sprintf("%s:%s->%s", bb.Buffer.Name(), bb.Prior.Access, bb.Next.Access))
	}
	return out
}

func (b Barrier) String() string {
	return "barrier[" + strings.Join(b.Targets(), ", ") + "]"
}
