// Package tasks holds the ordered list of work recorded every frame.
//
// List order is execution order. Nothing is reordered and no dependency is
// inferred: synchronization between tasks comes only from barrier elements.
package tasks

import (
	"fmt"

	"github.com/spaghettifunk/aurora/engine/renderer/barrier"
	"github.com/spaghettifunk/aurora/engine/renderer/binding"
	"github.com/spaghettifunk/aurora/engine/renderer/gpu"
	"github.com/spaghettifunk/aurora/engine/renderer/pipeline"
	"github.com/spaghettifunk/aurora/engine/renderer/resources"
)

// Task is one element of a List: *GraphicsTask, *ComputeTask, *BarrierTask
// or *CallbackTask.
type Task interface {
	isTask()
	Label() string
}

// DrawTask is one pipeline invocation inside a graphics task. IndexBuffer nil
// means a non indexed draw of Count vertices.
type DrawTask struct {
	Pipeline      *pipeline.Pipeline
	Sets          []*binding.Set
	VertexBuffers []resources.BufferResource
	IndexBuffer   resources.BufferResource
	IndexType     gpu.IndexType
	FirstIndex    uint32
	Count         uint32
	VertexOffset  int32
	InstanceCount uint32
}

// Attachment is a render target of a graphics task and how it is loaded.
type Attachment struct {
	Target     resources.ImageResource
	Load       gpu.LoadOp
	Clear      gpu.ClearColor
	ClearDepth float32
}

func Clear(target resources.ImageResource, color gpu.ClearColor) Attachment {
	return Attachment{Target: target, Load: gpu.LoadOpClear, Clear: color}
}

func ClearDepth(target resources.ImageResource, depth float32) *Attachment {
	return &Attachment{Target: target, Load: gpu.LoadOpClear, ClearDepth: depth}
}

func Load(target resources.ImageResource) Attachment {
	return Attachment{Target: target, Load: gpu.LoadOpLoad}
}

// GraphicsTask renders its draws into the color targets and optional depth
// target. It references the targets; it does not own them.
type GraphicsTask struct {
	Name   string
	Colors []Attachment
	Depth  *Attachment
	// Extent of the viewport; zero means the extent of the first target.
	Extent gpu.Extent
	Draws  []DrawTask
}

func (g *GraphicsTask) isTask()       {}
func (g *GraphicsTask) Label() string { return g.Name }

// AddDraw appends a draw and returns the task for chaining.
func (g *GraphicsTask) AddDraw(d DrawTask) *GraphicsTask {
	g.Draws = append(g.Draws, d)
	return g
}

// ViewportExtent resolves the render area.
func (g *GraphicsTask) ViewportExtent() gpu.Extent {
	if g.Extent.Width != 0 {
		return g.Extent
	}
	if len(g.Colors) > 0 {
		return g.Colors[0].Target.Extent()
	}
	if g.Depth != nil {
		return g.Depth.Target.Extent()
	}
	return gpu.Extent{}
}

type ComputeTask struct {
	Name     string
	Pipeline *pipeline.Pipeline
	Sets     []*binding.Set
	Groups   [3]uint32
}

func (c *ComputeTask) isTask()       {}
func (c *ComputeTask) Label() string { return c.Name }

type BarrierTask struct {
	Name string
	barrier.Barrier
}

func (b *BarrierTask) isTask() {}
func (b *BarrierTask) Label() string {
	if b.Name != "" {
		return b.Name
	}
	return b.Barrier.String()
}

// CallbackFunc records arbitrary commands for frame f. Use it for irregular
// work such as one shot bakes that do not fit the other task kinds.
type CallbackFunc func(cb gpu.CommandBuffer, f resources.Frame) error

type CallbackTask struct {
	Name string
	Fn   CallbackFunc
}

func (c *CallbackTask) isTask()       {}
func (c *CallbackTask) Label() string { return c.Name }

// List is built once while wiring and then consumed every frame unchanged.
type List struct {
	name  string
	tasks []Task
}

func NewList(name string) *List {
	return &List{name: name}
}

func (l *List) Name() string { return l.name }

func (l *List) Tasks() []Task { return l.tasks }

func (l *List) Len() int { return len(l.tasks) }

func (l *List) AddGraphics(g *GraphicsTask) *List {
	l.tasks = append(l.tasks, g)
	return l
}

func (l *List) AddCompute(c *ComputeTask) *List {
	l.tasks = append(l.tasks, c)
	return l
}

// AddBarrier appends b as a single list element.
func (l *List) AddBarrier(name string, b barrier.Barrier) *List {
	l.tasks = append(l.tasks, &BarrierTask{Name: name, Barrier: b})
	return l
}

func (l *List) AddCallback(name string, fn CallbackFunc) *List {
	l.tasks = append(l.tasks, &CallbackTask{Name: name, Fn: fn})
	return l
}

// Stats counts what a list records per frame.
type Stats struct {
	Graphics       int
	Draws          int
	Computes       int
	DispatchGroups uint64
	Barriers       int
	BarrierTargets []string
	Callbacks      int
}

func (l *List) Stats() Stats {
	var s Stats
	for _, t := range l.tasks {
		switch t := t.(type) {
		case *GraphicsTask:
			s.Graphics++
			s.Draws += len(t.Draws)
		case *ComputeTask:
			s.Computes++
			s.DispatchGroups += uint64(t.Groups[0]) * uint64(t.Groups[1]) * uint64(t.Groups[2])
		case *BarrierTask:
			s.Barriers++
			s.BarrierTargets = append(s.BarrierTargets, t.Targets()...)
		case *CallbackTask:
			s.Callbacks++
		}
	}
	return s
}

// Describe returns one line per element, for logging and comparisons.
func (l *List) Describe() []string {
	out := make([]string, len(l.tasks))
	for i, t := range l.tasks {
		switch t := t.(type) {
		case *GraphicsTask:
			out[i] = fmt.Sprintf("graphics %s targets=%d draws=%d extent=%s", t.Name, len(t.Colors), len(t.Draws), t.ViewportExtent())
		case *ComputeTask:
			out[i] = fmt.Sprintf("compute %s groups=%v", t.Name, t.Groups)
		case *BarrierTask:
			out[i] = fmt.Sprintf("barrier %s", t.Barrier)
		case *CallbackTask:
			out[i] = fmt.Sprintf("callback %s", t.Name)
		}
	}
	return out
}
