package engine

import (
	"github.com/spaghettifunk/aurora/engine/core"
	"github.com/spaghettifunk/aurora/engine/renderer/deferred"
	"github.com/spaghettifunk/aurora/engine/renderer/gpu"
	"github.com/spaghettifunk/aurora/engine/renderer/resources"
)

type Game struct {
	ApplicationConfig *ApplicationConfig
	State             interface{}
	FnInitialize      Initialize
	FnUpdate          Update
	FnRender          Render
	FnOnResize        OnResize
	FnShutdown        Shutdown
}

// Scene is what a game gets to populate the world with.
type Scene struct {
	Device   gpu.Device
	Registry *resources.Registry
	World    *deferred.World
	// Events accepts listeners until the engine starts running.
	Events *core.EventQueue
}

type Initialize func(scene Scene) error
type Update func(deltaTime float64) error
type Render func(world *deferred.World, deltaTime float64) error
type OnResize func(width uint32, height uint32) error
type Shutdown func() error
