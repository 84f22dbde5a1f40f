package engine

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spaghettifunk/aurora/engine/assets"
	"github.com/spaghettifunk/aurora/engine/config"
	"github.com/spaghettifunk/aurora/engine/core"
	"github.com/spaghettifunk/aurora/engine/platform"
	"github.com/spaghettifunk/aurora/engine/renderer/deferred"
	"github.com/spaghettifunk/aurora/engine/renderer/frame"
	"github.com/spaghettifunk/aurora/engine/renderer/gpu"
	"github.com/spaghettifunk/aurora/engine/renderer/pipeline"
	"github.com/spaghettifunk/aurora/engine/renderer/resources"
	"github.com/spaghettifunk/aurora/engine/renderer/vulkan"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

const eventQueueCapacity = 256

type Engine struct {
	currentStage Stage
	gameInstance *Game
	config       *config.Config
	isRunning    bool
	isSuspended  bool
	// needsRebuild is set by resize events and out of date surfaces.
	needsRebuild bool
	traceNext    bool

	events       *core.EventQueue
	platform     *platform.Platform
	assetManager *assets.AssetManager

	context   *vulkan.Context
	swapchain *vulkan.Swapchain
	surface   *resources.Surface
	registry  *resources.Registry
	pipelines *pipeline.Library
	executor  *frame.Executor
	world     *deferred.World

	width    uint32
	height   uint32
	clock    *core.Clock
	lastTime float64
}

func New(g *Game) (*Engine, error) {
	cfg, err := g.ApplicationConfig.Settings()
	if err != nil {
		return nil, err
	}
	core.SetLogLevel(cfg.Log.Level)

	events := core.NewEventQueue(eventQueueCapacity)
	p, err := platform.New(events)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	am, err := assets.NewAssetManager()
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	return &Engine{
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		config:       cfg,
		events:       events,
		platform:     p,
		assetManager: am,
		clock:        core.NewClock(),
		isRunning:    true,
		width:        cfg.Window.Width,
		height:       cfg.Window.Height,
		traceNext:    cfg.Renderer.Trace,
	}, nil
}

func (e *Engine) Initialize() error {
	e.currentStage = EngineStageInitializing

	e.events.Register(core.EVENT_CODE_APPLICATION_QUIT, e.onEvent)
	e.events.Register(core.EVENT_CODE_KEY_PRESSED, e.onKey)
	e.events.Register(core.EVENT_CODE_KEY_RELEASED, e.onKey)
	e.events.Register(core.EVENT_CODE_RESIZED, e.onResized)
	e.events.Register(core.EVENT_CODE_SHADERS_CHANGED, e.onShadersChanged)

	win := e.config.Window
	if err := e.platform.Startup(win.Title, win.X, win.Y, win.Width, win.Height); err != nil {
		return err
	}

	if err := e.initRenderer(); err != nil {
		return err
	}

	if e.config.Renderer.HotReload {
		root := e.gameInstance.ApplicationConfig.AssetRoot
		if root == "" {
			root = e.config.Renderer.ShaderDir
		}
		if err := e.assetManager.Initialize(root, e.onAssetsChanged); err != nil {
			return err
		}
		core.LogInfo("watching %s for shader changes", root)
	}

	if e.gameInstance.FnInitialize != nil {
		scene := Scene{Device: e.context.Device, Registry: e.registry, World: e.world, Events: e.events}
		if err := e.gameInstance.FnInitialize(scene); err != nil {
			return err
		}
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(e.width, e.height); err != nil {
			return err
		}
	}

	e.currentStage = EngineStageInitialized
	return nil
}

// initRenderer brings up the device, the swapchain and the deferred world.
func (e *Engine) initRenderer() error {
	rc := e.config.Renderer
	ctx, err := vulkan.NewContext(e.platform, vulkan.ContextConfig{
		AppName:    e.config.Window.Title,
		Validation: rc.Validation,
	})
	if err != nil {
		return err
	}
	e.context = ctx
	dev := ctx.Device

	width, height := e.platform.FramebufferSize()
	sc, err := ctx.NewSwapchain(width, height, rc.FramesInFlight)
	if err != nil {
		return err
	}
	e.swapchain = sc
	e.surface = resources.NewSurface(sc)
	e.registry = resources.NewRegistry(dev)

	lib, err := pipeline.NewLibrary(dev, pipeline.LibraryConfig{ShaderDir: rc.ShaderDir, Workers: rc.Workers})
	if err != nil {
		return err
	}
	e.pipelines = lib
	if err := lib.Preload(deferred.Shaders()); err != nil {
		core.LogError(err.Error())
		return err
	}

	ex, err := frame.NewExecutor(dev, e.surface, frame.ExecutorConfig{
		FramesInFlight: rc.FramesInFlight,
		FenceTimeout:   rc.FenceTimeout(),
	})
	if err != nil {
		return err
	}
	e.executor = ex

	world, err := deferred.NewWorld(deferred.Context{
		Device:     dev,
		Registry:   e.registry,
		Pipelines:  lib,
		Surface:    e.surface,
		FrameCount: ex.FrameCount(),
		Extent:     sc.Extent(),
	})
	if err != nil {
		return err
	}
	e.world = world
	e.width, e.height = sc.Extent().Width, sc.Extent().Height
	return nil
}

func (e *Engine) Run() error {
	e.currentStage = EngineStageRunning
	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	for e.isRunning {
		e.platform.PumpMessages()
		e.events.Dispatch()
		if !e.isRunning {
			break
		}

		if e.needsRebuild {
			if err := e.rebuildSurface(); err != nil {
				return err
			}
			continue
		}
		if e.isSuspended {
			continue
		}

		e.clock.Update()
		currentTime := e.clock.Elapsed()
		// The clock counts nanoseconds.
		delta := (currentTime - e.lastTime) / 1e9

		if e.gameInstance.FnUpdate != nil {
			if err := e.gameInstance.FnUpdate(delta); err != nil {
				core.LogError("Game update failed, shutting down: %s", err)
				return err
			}
		}
		if e.gameInstance.FnRender != nil {
			if err := e.gameInstance.FnRender(e.world, delta); err != nil {
				core.LogError("Game render failed, shutting down: %s", err)
				return err
			}
		}

		if err := e.drawFrame(); err != nil {
			return err
		}
		e.lastTime = currentTime
	}
	return nil
}

func (e *Engine) drawFrame() error {
	list := e.world.TaskList()
	if e.traceNext {
		for _, line := range list.Describe() {
			core.LogDebug(line)
		}
		e.traceNext = false
	}

	err := e.executor.Execute(list, e.world.Prepare)
	switch {
	case err == nil:
	case errors.Is(err, core.ErrSwapchainOutOfDate):
		e.needsRebuild = true
		return nil
	case errors.Is(err, core.ErrDeviceLost):
		core.LogError("device lost, shutting down")
		return err
	default:
		return err
	}

	if m := e.executor.Metrics(); m.Total%600 == 0 {
		fps, ms := m.Frame()
		core.LogDebug("frame %d: %.0f fps, %.2f ms", e.executor.FrameNumber(), fps, ms)
	}
	return nil
}

// rebuildSurface recreates the swapchain and everything sized by it. While
// the window is minimized it blocks on window events instead.
func (e *Engine) rebuildSurface() error {
	width, height := e.platform.FramebufferSize()
	if width == 0 || height == 0 {
		e.isSuspended = true
		e.platform.WaitMessages()
		return nil
	}
	e.isSuspended = false

	if err := e.context.Device.WaitIdle(); err != nil {
		err = fmt.Errorf("%w: %w", core.ErrDeviceLost, err)
		core.LogError(err.Error())
		return err
	}
	sc, err := e.swapchain.Recreate(width, height)
	if err != nil {
		if errors.Is(err, gpu.ErrOutOfDate) {
			// The surface changed again while recreating; try next frame.
			return nil
		}
		return err
	}
	e.swapchain = sc
	e.surface.Rebind(sc)

	if err := e.executor.Rebuild(e.surface); err != nil {
		return err
	}
	if err := e.world.Resize(sc.Extent(), e.surface, e.executor.FrameCount()); err != nil {
		return err
	}
	e.width, e.height = sc.Extent().Width, sc.Extent().Height
	e.needsRebuild = false
	e.traceNext = e.config.Renderer.Trace

	if e.gameInstance.FnOnResize != nil {
		return e.gameInstance.FnOnResize(e.width, e.height)
	}
	return nil
}

func (e *Engine) Shutdown() error {
	e.currentStage = EngineStageShuttingDown
	var errs []error

	if e.assetManager != nil {
		errs = append(errs, e.assetManager.Shutdown())
	}
	if e.context != nil && e.context.Device != nil {
		errs = append(errs, e.context.Device.WaitIdle())
	}
	if e.gameInstance.FnShutdown != nil {
		errs = append(errs, e.gameInstance.FnShutdown())
	}
	if e.world != nil {
		e.world.Destroy()
	}
	if e.executor != nil {
		e.executor.Destroy()
	}
	if e.pipelines != nil {
		e.pipelines.Destroy()
	}
	if e.registry != nil {
		e.registry.ReleaseAll()
	}
	if e.swapchain != nil {
		e.swapchain.Destroy()
	}
	if e.context != nil {
		e.context.Destroy()
	}
	errs = append(errs, e.platform.Shutdown())
	return errors.Join(errs...)
}

// Quit stops the engine after the current frame. Safe to call from any goroutine.
func (e *Engine) Quit() {
	e.events.Fire(core.EventContext{Type: core.EVENT_CODE_APPLICATION_QUIT})
}

// GetFramebufferSize returns the width and height (in this order) of the
// rendered frame.
func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	return e.width, e.height
}

func (e *Engine) onEvent(context core.EventContext) {
	if context.Type == core.EVENT_CODE_APPLICATION_QUIT {
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
		e.isRunning = false
	}
}

func (e *Engine) onKey(context core.EventContext) {
	ke, ok := context.Data.(core.KeyEvent)
	if !ok {
		core.LogError("wrong event associated with the event type `%d`", context.Type)
		return
	}
	if context.Type != core.EVENT_CODE_KEY_PRESSED {
		return
	}
	switch ke.KeyCode {
	case core.KEY_ESCAPE:
		// NOTE: Technically firing an event to itself, but there may be other listeners.
		e.events.Fire(core.EventContext{Type: core.EVENT_CODE_APPLICATION_QUIT})
	case core.KEY_T:
		e.traceNext = true
	case core.KEY_R:
		e.events.Fire(core.EventContext{Type: core.EVENT_CODE_SHADERS_CHANGED, Data: core.ShaderEvent{}})
	}
}

func (e *Engine) onResized(context core.EventContext) {
	se, ok := context.Data.(core.SystemEvent)
	if !ok {
		core.LogError("wrong event associated with the event type `%d`", context.Type)
		return
	}
	// Check if different. If so, rebuild before the next frame.
	if se.WindowWidth != e.width || se.WindowHeight != e.height {
		e.needsRebuild = true
	}
}

// onAssetsChanged runs on the watcher goroutine and only forwards the paths.
func (e *Engine) onAssetsChanged(paths []string) {
	var shaders []string
	for _, p := range paths {
		if filepath.Ext(p) == ".spv" {
			shaders = append(shaders, p)
		}
	}
	if len(shaders) > 0 {
		e.events.Fire(core.EventContext{Type: core.EVENT_CODE_SHADERS_CHANGED, Data: core.ShaderEvent{Paths: shaders}})
	}
}

// onShadersChanged rebuilds the pipelines using the changed shaders. An
// empty path list reloads every shader the world uses.
func (e *Engine) onShadersChanged(context core.EventContext) {
	ev, ok := context.Data.(core.ShaderEvent)
	if !ok {
		core.LogError("wrong event associated with the event type `%d`", context.Type)
		return
	}
	paths := ev.Paths
	if len(paths) == 0 {
		for name := range deferred.Shaders() {
			paths = append(paths, name)
		}
	}
	if err := e.context.Device.WaitIdle(); err != nil {
		core.LogError("shader reload: %s", err)
		return
	}
	n, err := e.pipelines.Reload(paths)
	if err != nil {
		// Failed pipelines keep their previous version.
		core.LogWarn("shader reload: %s", err)
	}
	core.LogInfo("%d pipelines reloaded", n)
}
