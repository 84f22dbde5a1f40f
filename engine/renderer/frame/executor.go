// Package frame drives per frame execution of a task list: wait for the
// frame slot, acquire the surface, record, submit and present.
package frame

import (
	"errors"
	"fmt"
	"time"

	"github.com/spaghettifunk/aurora/engine/core"
	"github.com/spaghettifunk/aurora/engine/renderer/barrier"
	"github.com/spaghettifunk/aurora/engine/renderer/gpu"
	"github.com/spaghettifunk/aurora/engine/renderer/resources"
	"github.com/spaghettifunk/aurora/engine/renderer/tasks"
)

type ExecutorConfig struct {
	// FramesInFlight is used when rendering headless. With a surface the
	// number of presentable images decides.
	FramesInFlight int
	// FenceTimeout bounds the wait for a frame slot. Zero waits forever.
	FenceTimeout time.Duration
}

// Hook runs after the slot of f is free and before f is recorded, e.g. to
// update per slot uniform buffers.
type Hook func(f resources.Frame) error

type frameSlot struct {
	commands       gpu.CommandBuffer
	inFlight       gpu.Fence
	imageAvailable gpu.Semaphore
	renderComplete gpu.Semaphore
}

type Executor struct {
	dev         gpu.Device
	surface     *resources.Surface
	config      ExecutorConfig
	slots       resources.PerFrame[*frameSlot]
	frameNumber uint64
	tracker     *barrier.Tracker
	metrics     *core.FrameMetrics
	clock       *core.Clock
}

// NewExecutor creates the per slot synchronization objects. A nil surface
// renders headless: no acquire and no present.
func NewExecutor(dev gpu.Device, surface *resources.Surface, config ExecutorConfig) (*Executor, error) {
	if config.FenceTimeout <= 0 {
		config.FenceTimeout = gpu.WaitForever
	}
	e := &Executor{
		dev:     dev,
		surface: surface,
		config:  config,
		tracker: barrier.NewTracker(),
		metrics: core.NewFrameMetrics(),
		clock:   core.NewClock(),
	}
	if err := e.createSlots(); err != nil {
		return nil, err
	}
	core.LogInfo("frame executor ready with %d frames in flight", e.FrameCount())
	return e, nil
}

func (e *Executor) frameCountWanted() int {
	if e.surface != nil {
		return e.surface.Swapchain().Len()
	}
	return e.config.FramesInFlight
}

func (e *Executor) createSlots() error {
	slots, err := resources.BuildPerFrame(e.frameCountWanted(), func(int) (*frameSlot, error) {
		return e.createSlot()
	}, e.destroySlot)
	if err != nil {
		err = fmt.Errorf("frame slots: %w", err)
		core.LogError(err.Error())
		return err
	}
	e.slots = slots
	return nil
}

func (e *Executor) createSlot() (*frameSlot, error) {
	s := &frameSlot{}
	var err error
	if s.commands, err = e.dev.CreateCommandBuffer(); err != nil {
		return nil, err
	}
	// Signaled so the first frame of every slot does not wait.
	if s.inFlight, err = e.dev.CreateFence(true); err != nil {
		e.destroySlot(s)
		return nil, err
	}
	if s.imageAvailable, err = e.dev.CreateSemaphore(); err != nil {
		e.destroySlot(s)
		return nil, err
	}
	if s.renderComplete, err = e.dev.CreateSemaphore(); err != nil {
		e.destroySlot(s)
		return nil, err
	}
	return s, nil
}

func (e *Executor) destroySlot(s *frameSlot) {
	if s.renderComplete != nil {
		e.dev.DestroySemaphore(s.renderComplete)
	}
	if s.imageAvailable != nil {
		e.dev.DestroySemaphore(s.imageAvailable)
	}
	if s.inFlight != nil {
		e.dev.DestroyFence(s.inFlight)
	}
	if s.commands != nil {
		e.dev.FreeCommandBuffer(s.commands)
	}
}

func (e *Executor) FrameCount() int             { return e.slots.Len() }
func (e *Executor) FrameNumber() uint64         { return e.frameNumber }
func (e *Executor) Metrics() *core.FrameMetrics { return e.metrics }
func (e *Executor) Tracker() *barrier.Tracker   { return e.tracker }
func (e *Executor) Surface() *resources.Surface { return e.surface }

// Execute records and submits list for the next frame.
//
// A slot fence that never signals is reported as core.ErrDeviceLost and is
// fatal. core.ErrSwapchainOutOfDate is recoverable: rebuild the surface
// dependent state and call Execute again.
func (e *Executor) Execute(list *tasks.List, hooks ...Hook) error {
	f := resources.Frame{
		Number: e.frameNumber,
		Slot:   int(e.frameNumber % uint64(e.slots.Len())),
	}
	s := e.slots.Resolve(f.Slot)

	if err := e.dev.WaitFence(s.inFlight, e.config.FenceTimeout); err != nil {
		err = fmt.Errorf("frame %d: waiting on slot %d: %w: %w", f.Number, f.Slot, core.ErrDeviceLost, err)
		core.LogError(err.Error())
		return err
	}

	if e.surface != nil {
		idx, err := e.surface.Swapchain().Acquire(e.config.FenceTimeout, s.imageAvailable)
		if err != nil {
			if errors.Is(err, gpu.ErrOutOfDate) {
				core.LogInfo("frame %d: surface out of date on acquire", f.Number)
				return fmt.Errorf("frame %d: %w", f.Number, core.ErrSwapchainOutOfDate)
			}
			err = fmt.Errorf("frame %d: acquire: %w", f.Number, err)
			core.LogError(err.Error())
			return err
		}
		f.SurfaceIndex = idx
	}

	for _, hook := range hooks {
		if err := hook(f); err != nil {
			return fmt.Errorf("frame %d: %w", f.Number, err)
		}
	}

	if err := Record(s.commands, list, f, e.tracker); err != nil {
		err = fmt.Errorf("frame %d: %w", f.Number, err)
		core.LogError(err.Error())
		return err
	}

	// Reset only once there is work that will signal it again.
	if err := e.dev.ResetFence(s.inFlight); err != nil {
		core.LogError(err.Error())
		return err
	}

	submit := gpu.SubmitInfo{Commands: s.commands, Fence: s.inFlight}
	if e.surface != nil {
		submit.Wait = []gpu.Semaphore{s.imageAvailable}
		submit.WaitStages = []gpu.Stage{gpu.StageColorAttachmentOutput}
		submit.Signal = []gpu.Semaphore{s.renderComplete}
	}
	if err := e.dev.Submit(submit); err != nil {
		err = fmt.Errorf("frame %d: submit: %w", f.Number, err)
		core.LogError(err.Error())
		return err
	}

	e.frameNumber++
	e.updateMetrics()

	if e.surface == nil {
		return nil
	}
	// The next wait on this slot resynchronizes whatever happens here.
	if err := e.surface.Swapchain().Present(f.SurfaceIndex, s.renderComplete); err != nil {
		if errors.Is(err, gpu.ErrOutOfDate) || errors.Is(err, gpu.ErrSuboptimal) {
			core.LogInfo("frame %d: surface out of date on present", f.Number)
			return fmt.Errorf("frame %d: %w", f.Number, core.ErrSwapchainOutOfDate)
		}
		err = fmt.Errorf("frame %d: present: %w", f.Number, err)
		core.LogError(err.Error())
		return err
	}
	return nil
}

func (e *Executor) updateMetrics() {
	e.clock.Update()
	if elapsed := e.clock.Elapsed(); elapsed > 0 {
		e.metrics.Update(elapsed / float64(time.Second))
	}
	e.clock.Start()
}

// Rebuild waits for the device to go idle and recreates the per slot state
// for a rebuilt surface. The frame counter keeps counting.
func (e *Executor) Rebuild(surface *resources.Surface) error {
	if err := e.dev.WaitIdle(); err != nil {
		err = fmt.Errorf("rebuild: %w: %w", core.ErrDeviceLost, err)
		core.LogError(err.Error())
		return err
	}
	e.slots.Each(func(_ int, s *frameSlot) { e.destroySlot(s) })
	e.surface = surface
	e.tracker.Reset()
	if err := e.createSlots(); err != nil {
		return err
	}
	core.LogInfo("frame executor rebuilt with %d frames in flight", e.FrameCount())
	return nil
}

// Destroy waits for outstanding frames and releases the slot objects.
func (e *Executor) Destroy() {
	if err := e.dev.WaitIdle(); err != nil {
		core.LogError("frame executor shutdown: %s", err)
	}
	e.slots.Each(func(_ int, s *frameSlot) { e.destroySlot(s) })
	e.slots = resources.PerFrame[*frameSlot]{}
}
