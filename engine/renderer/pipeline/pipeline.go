// Package pipeline creates immutable graphics and compute pipelines from
// shader modules and binding set layouts.
package pipeline

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sync"

	"github.com/spaghettifunk/aurora/engine/core"
	"github.com/spaghettifunk/aurora/engine/renderer/binding"
	"github.com/spaghettifunk/aurora/engine/renderer/gpu"
	"github.com/spaghettifunk/aurora/engine/systems"
)

type GraphicsDesc struct {
	Name           string
	VertexShader   string
	FragmentShader string
	ColorFormats   []gpu.Format
	DepthFormat    gpu.Format
	Sets           []*binding.Set
	VertexLayout   *gpu.VertexLayout
	SampleCount    uint32
	DepthTest      bool
	DepthWrite     bool
}

type ComputeDesc struct {
	Name   string
	Shader string
	Sets   []*binding.Set
}

// Pipeline is frame independent. The handle only changes when the library
// rebuilds it between frames (resize or shader reload).
type Pipeline struct {
	name     string
	kind     gpu.PipelineKind
	handle   gpu.Pipeline
	graphics *GraphicsDesc
	compute  *ComputeDesc
}

func (p *Pipeline) Name() string           { return p.name }
func (p *Pipeline) Kind() gpu.PipelineKind { return p.kind }
func (p *Pipeline) Handle() gpu.Pipeline   { return p.handle }

func (p *Pipeline) Sets() []*binding.Set {
	if p.graphics != nil {
		return p.graphics.Sets
	}
	return p.compute.Sets
}

// ColorFormats returns the color target formats of a graphics pipeline.
func (p *Pipeline) ColorFormats() []gpu.Format {
	if p.graphics == nil {
		return nil
	}
	return p.graphics.ColorFormats
}

func (p *Pipeline) shaders() []string {
	if p.graphics != nil {
		return []string{p.graphics.VertexShader, p.graphics.FragmentShader}
	}
	return []string{p.compute.Shader}
}

type LibraryConfig struct {
	ShaderDir string
	// Workers loading shader modules in parallel. Defaults to 1.
	Workers int
}

type moduleKey struct {
	path  string
	stage gpu.ShaderStage
}

// Library loads shader modules and owns every pipeline built from them.
type Library struct {
	dev       gpu.Device
	dir       string
	jobs      *systems.JobSystem
	mu        sync.Mutex
	modules   map[moduleKey]gpu.ShaderModule
	pipelines []*Pipeline
}

func NewLibrary(dev gpu.Device, config LibraryConfig) (*Library, error) {
	workers := config.Workers
	if workers <= 0 {
		workers = 1
	}
	js, err := systems.NewJobSystem(workers, workers*2)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	return &Library{
		dev:     dev,
		dir:     config.ShaderDir,
		jobs:    js,
		modules: make(map[moduleKey]gpu.ShaderModule),
	}, nil
}

func (l *Library) path(name string) string {
	if l.dir == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(l.dir, name)
}

func (l *Library) module(name string, stage gpu.ShaderStage) (gpu.ShaderModule, error) {
	key := moduleKey{path: l.path(name), stage: stage}
	l.mu.Lock()
	m, ok := l.modules[key]
	l.mu.Unlock()
	if ok {
		return m, nil
	}
	m, err := l.dev.LoadShader(key.path, stage)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if existing, ok := l.modules[key]; ok {
		l.dev.DestroyShader(m)
		return existing, nil
	}
	l.modules[key] = m
	return m, nil
}

// Preload loads the given shader modules in parallel on the job system.
func (l *Library) Preload(shaders map[string]gpu.ShaderStage) error {
	jobs := make([]systems.JobTask, 0, len(shaders))
	for name, stage := range shaders {
		name, stage := name, stage
		jobs = append(jobs, systems.JobTask{
			Name: name,
			OnStart: func() error {
				_, err := l.module(name, stage)
				return err
			},
		})
	}
	if err := l.jobs.Run(jobs); err != nil {
		return fmt.Errorf("%w: %w", core.ErrPipelineCreation, err)
	}
	return nil
}

func (l *Library) buildGraphics(desc *GraphicsDesc) (gpu.Pipeline, error) {
	vs, err := l.module(desc.VertexShader, gpu.ShaderVertex)
	if err != nil {
		return nil, err
	}
	fs, err := l.module(desc.FragmentShader, gpu.ShaderFragment)
	if err != nil {
		return nil, err
	}
	samples := desc.SampleCount
	if samples == 0 {
		samples = 1
	}
	return l.dev.CreateGraphicsPipeline(gpu.GraphicsPipelineDesc{
		Label:        desc.Name,
		Vertex:       vs,
		Fragment:     fs,
		ColorFormats: desc.ColorFormats,
		DepthFormat:  desc.DepthFormat,
		Layouts:      binding.Layouts(desc.Sets...),
		VertexLayout: desc.VertexLayout,
		SampleCount:  samples,
		DepthTest:    desc.DepthTest,
		DepthWrite:   desc.DepthWrite,
	})
}

func (l *Library) buildCompute(desc *ComputeDesc) (gpu.Pipeline, error) {
	cs, err := l.module(desc.Shader, gpu.ShaderCompute)
	if err != nil {
		return nil, err
	}
	return l.dev.CreateComputePipeline(gpu.ComputePipelineDesc{
		Label:   desc.Name,
		Shader:  cs,
		Layouts: binding.Layouts(desc.Sets...),
	})
}

// CreateGraphics builds a graphics pipeline rendering into targets of the
// given formats.
func (l *Library) CreateGraphics(desc GraphicsDesc) (*Pipeline, error) {
	d := desc
	d.ColorFormats = slices.Clone(desc.ColorFormats)
	handle, err := l.buildGraphics(&d)
	if err != nil {
		err = fmt.Errorf("graphics pipeline %s: %w: %w", desc.Name, core.ErrPipelineCreation, err)
		core.LogError(err.Error())
		return nil, err
	}
	return l.add(&Pipeline{name: desc.Name, kind: gpu.PipelineGraphics, handle: handle, graphics: &d}), nil
}

func (l *Library) CreateCompute(desc ComputeDesc) (*Pipeline, error) {
	d := desc
	handle, err := l.buildCompute(&d)
	if err != nil {
		err = fmt.Errorf("compute pipeline %s: %w: %w", desc.Name, core.ErrPipelineCreation, err)
		core.LogError(err.Error())
		return nil, err
	}
	return l.add(&Pipeline{name: desc.Name, kind: gpu.PipelineCompute, handle: handle, compute: &d}), nil
}

func (l *Library) add(p *Pipeline) *Pipeline {
	l.mu.Lock()
	l.pipelines = append(l.pipelines, p)
	l.mu.Unlock()
	core.LogDebug("pipeline %s created", p.name)
	return p
}

func (l *Library) rebuild(p *Pipeline) error {
	var (
		handle gpu.Pipeline
		err    error
	)
	if p.graphics != nil {
		handle, err = l.buildGraphics(p.graphics)
	} else {
		handle, err = l.buildCompute(p.compute)
	}
	if err != nil {
		return fmt.Errorf("pipeline %s: %w: %w", p.name, core.ErrPipelineCreation, err)
	}
	l.dev.DestroyPipeline(p.handle)
	p.handle = handle
	return nil
}

// Retarget rebuilds the graphics pipeline p to render into targets of the
// given formats. It reports false when the formats did not change. The
// device must be idle.
func (l *Library) Retarget(p *Pipeline, formats ...gpu.Format) (bool, error) {
	if p.graphics == nil {
		return false, fmt.Errorf("pipeline %s: only graphics pipelines have color targets", p.name)
	}
	if slices.Equal(p.graphics.ColorFormats, formats) {
		return false, nil
	}
	previous := p.graphics.ColorFormats
	p.graphics.ColorFormats = slices.Clone(formats)
	if err := l.rebuild(p); err != nil {
		p.graphics.ColorFormats = previous
		core.LogError(err.Error())
		return false, err
	}
	core.LogDebug("pipeline %s retargeted to %v", p.name, formats)
	return true, nil
}

// Reload drops the cached modules of the changed shader files and rebuilds
// every pipeline using them. A pipeline that fails to rebuild keeps its
// previous handle. The device must be idle.
func (l *Library) Reload(changed []string) (int, error) {
	paths := make(map[string]bool, len(changed))
	for _, c := range changed {
		paths[l.path(c)] = true
	}
	l.mu.Lock()
	for key, m := range l.modules {
		if paths[key.path] {
			l.dev.DestroyShader(m)
			delete(l.modules, key)
		}
	}
	l.mu.Unlock()

	var errs []error
	rebuilt := 0
	for _, p := range l.Pipelines() {
		uses := false
		for _, s := range p.shaders() {
			uses = uses || paths[l.path(s)]
		}
		if !uses {
			continue
		}
		if err := l.rebuild(p); err != nil {
			core.LogError(err.Error())
			errs = append(errs, err)
			continue
		}
		core.LogInfo("pipeline %s reloaded", p.name)
		rebuilt++
	}
	return rebuilt, errors.Join(errs...)
}

func (l *Library) Pipelines() []*Pipeline {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.pipelines)
}

// Release destroys the given pipelines, e.g. the ones owned by a rebuilt world.
func (l *Library) Release(ps ...*Pipeline) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range ps {
		idx := slices.Index(l.pipelines, p)
		if idx < 0 {
			continue
		}
		l.dev.DestroyPipeline(p.handle)
		l.pipelines = slices.Delete(l.pipelines, idx, idx+1)
	}
}

// Destroy releases every pipeline and shader module and stops the loaders.
func (l *Library) Destroy() {
	l.mu.Lock()
	for _, p := range l.pipelines {
		l.dev.DestroyPipeline(p.handle)
	}
	for _, m := range l.modules {
		l.dev.DestroyShader(m)
	}
	l.pipelines = nil
	l.modules = make(map[moduleKey]gpu.ShaderModule)
	l.mu.Unlock()
	_ = l.jobs.Shutdown()
}
