package testbed

import (
	"fmt"
	"unsafe"

	"github.com/spaghettifunk/aurora/engine"
	"github.com/spaghettifunk/aurora/engine/core"
	"github.com/spaghettifunk/aurora/engine/math"
	"github.com/spaghettifunk/aurora/engine/renderer/deferred"
	"github.com/spaghettifunk/aurora/engine/renderer/gpu"
	"github.com/spaghettifunk/aurora/engine/renderer/resources"
	"github.com/spaghettifunk/aurora/engine/renderer/tasks"
)

type TestGame struct {
	*engine.Game
}

type gameState struct {
	width  uint32
	height uint32

	angle    float32
	paused   bool
	distance float32
	exposure float32
}

func NewTestGame(configPath string) *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: &engine.ApplicationConfig{
				ConfigPath: configPath,
			},
			State: &gameState{
				distance: 6,
				exposure: 1,
			},
		},
	}

	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnRender = tg.Render
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown

	return tg
}

func (g *TestGame) state() *gameState {
	return g.State.(*gameState)
}

// Initialize uploads a ground plane and a cube into the world.
func (g *TestGame) Initialize(scene engine.Scene) error {
	core.LogInfo("initializing testbed...")

	vertices, indices := cubeMesh()
	ground := groundMesh(20)

	cube, err := uploadMesh(scene, "cube", vertices, indices)
	if err != nil {
		return err
	}
	plane, err := uploadMesh(scene, "ground", ground, []uint16{0, 1, 2, 2, 3, 0})
	if err != nil {
		return err
	}
	scene.World.AddDrawable(plane)
	scene.World.AddDrawable(cube)

	scene.Events.Register(core.EVENT_CODE_KEY_PRESSED, g.onKey)
	return nil
}

func uploadMesh(scene engine.Scene, name string, vertices []deferred.Vertex, indices []uint16) (tasks.DrawTask, error) {
	vb, err := resources.AllocateSharedBuffer(scene.Device, scene.Registry, name+"_vertices", gpu.BufferDesc{
		Size:        uint64(len(vertices)) * uint64(unsafe.Sizeof(deferred.Vertex{})),
		Usage:       gpu.BufferUsageVertex,
		HostVisible: true,
	})
	if err != nil {
		return tasks.DrawTask{}, err
	}
	if err := vb.Write(0, 0, unsafe.Slice((*byte)(unsafe.Pointer(&vertices[0])), vb.Size())); err != nil {
		return tasks.DrawTask{}, fmt.Errorf("mesh %s: %w", name, err)
	}

	ib, err := resources.AllocateSharedBuffer(scene.Device, scene.Registry, name+"_indices", gpu.BufferDesc{
		Size:        uint64(len(indices)) * 2,
		Usage:       gpu.BufferUsageIndex,
		HostVisible: true,
	})
	if err != nil {
		return tasks.DrawTask{}, err
	}
	if err := ib.Write(0, 0, unsafe.Slice((*byte)(unsafe.Pointer(&indices[0])), ib.Size())); err != nil {
		return tasks.DrawTask{}, fmt.Errorf("mesh %s: %w", name, err)
	}

	return tasks.DrawTask{
		VertexBuffers: []resources.BufferResource{vb},
		IndexBuffer:   ib,
		IndexType:     gpu.IndexUint16,
		Count:         uint32(len(indices)),
		InstanceCount: 1,
	}, nil
}

func (g *TestGame) Update(deltaTime float64) error {
	s := g.state()
	if !s.paused {
		s.angle += float32(0.4 * deltaTime)
	}
	return nil
}

// Render orbits the camera around the origin.
func (g *TestGame) Render(world *deferred.World, deltaTime float64) error {
	s := g.state()
	if s.width == 0 || s.height == 0 {
		return nil
	}

	eye := math.NewMat4EulerY(s.angle).TransformPoint(math.NewVec3(0, 2.5, s.distance))
	view := math.NewMat4LookAt(eye, math.NewVec3(0, 0.5, 0), math.NewVec3(0, 1, 0))
	projection := math.NewMat4Perspective(math.DegToRad(60), float32(s.width)/float32(s.height), 0.1, 100)
	sun := math.NewVec3(-0.4, -1, -0.3).Normalized()

	world.SetCamera(deferred.Camera{
		View:          view.Data,
		Projection:    projection.Data,
		Position:      eye.Array(1),
		SunDirection:  sun.Array(0),
		Exposure:      s.exposure,
		BloomStrength: 0.04,
	})
	return nil
}

func (g *TestGame) OnResize(width uint32, height uint32) error {
	s := g.state()
	s.width, s.height = width, height
	return nil
}

func (g *TestGame) Shutdown() error {
	core.LogInfo("shutting down testbed...")
	return nil
}

// onKey toggles the rotation with P.
func (g *TestGame) onKey(context core.EventContext) {
	ke, ok := context.Data.(core.KeyEvent)
	if !ok || context.Type != core.EVENT_CODE_KEY_PRESSED {
		return
	}
	if ke.KeyCode == core.KEY_P {
		g.state().paused = !g.state().paused
	}
}

func groundMesh(size float32) []deferred.Vertex {
	h := size / 2
	up := [3]float32{0, 1, 0}
	return []deferred.Vertex{
		{Position: [3]float32{-h, 0, -h}, Normal: up, UV: [2]float32{0, 0}},
		{Position: [3]float32{-h, 0, h}, Normal: up, UV: [2]float32{0, 1}},
		{Position: [3]float32{h, 0, h}, Normal: up, UV: [2]float32{1, 1}},
		{Position: [3]float32{h, 0, -h}, Normal: up, UV: [2]float32{1, 0}},
	}
}

// cubeMesh is a unit cube resting on the ground, four vertices per face.
func cubeMesh() ([]deferred.Vertex, []uint16) {
	faces := []struct {
		normal, u, v [3]float32
	}{
		{[3]float32{0, 0, 1}, [3]float32{1, 0, 0}, [3]float32{0, 1, 0}},
		{[3]float32{0, 0, -1}, [3]float32{-1, 0, 0}, [3]float32{0, 1, 0}},
		{[3]float32{1, 0, 0}, [3]float32{0, 0, -1}, [3]float32{0, 1, 0}},
		{[3]float32{-1, 0, 0}, [3]float32{0, 0, 1}, [3]float32{0, 1, 0}},
		{[3]float32{0, 1, 0}, [3]float32{1, 0, 0}, [3]float32{0, 0, -1}},
		{[3]float32{0, -1, 0}, [3]float32{1, 0, 0}, [3]float32{0, 0, 1}},
	}
	corners := [4][2]float32{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}}

	var vertices []deferred.Vertex
	var indices []uint16
	for _, f := range faces {
		base := uint16(len(vertices))
		for _, c := range corners {
			var p [3]float32
			for i := 0; i < 3; i++ {
				p[i] = 0.5 * (f.normal[i] + c[0]*f.u[i] + c[1]*f.v[i])
			}
			p[1] += 0.5
			vertices = append(vertices, deferred.Vertex{
				Position: p,
				Normal:   f.normal,
				UV:       [2]float32{(c[0] + 1) / 2, (c[1] + 1) / 2},
			})
		}
		indices = append(indices, base, base+1, base+2, base+2, base+3, base)
	}
	return vertices, indices
}
