// Package config loads the engine settings from a TOML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/aurora/engine/core"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type WindowConfig struct {
	Title string `toml:"title"`
	// Window starting position, if applicable.
	X      uint32 `toml:"x"`
	Y      uint32 `toml:"y"`
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
}

type RendererConfig struct {
	// FramesInFlight is only honored when rendering headless; with a
	// window the swapchain image count decides.
	FramesInFlight int `toml:"frames_in_flight"`
	// FenceTimeoutMS bounds the wait on a frame slot. Zero waits forever.
	FenceTimeoutMS uint32 `toml:"fence_timeout_ms"`
	Validation     bool   `toml:"validation"`
	ShaderDir      string `toml:"shader_dir"`
	HotReload      bool   `toml:"hot_reload"`
	// Workers loading shader modules in parallel.
	Workers int `toml:"workers"`
	// Trace logs the task list of the first frame after every rebuild.
	Trace bool `toml:"trace"`
}

// FenceTimeout is zero when the wait is unbounded.
func (r RendererConfig) FenceTimeout() time.Duration {
	return time.Duration(r.FenceTimeoutMS) * time.Millisecond
}

type LogConfig struct {
	Level core.LogLevel `toml:"level"`
}

type Config struct {
	Window   WindowConfig   `toml:"window"`
	Renderer RendererConfig `toml:"renderer"`
	Log      LogConfig      `toml:"log"`
}

func Default() *Config {
	return &Config{
		Window: WindowConfig{
			Title:  "Aurora",
			X:      100,
			Y:      100,
			Width:  1280,
			Height: 720,
		},
		Renderer: RendererConfig{
			FramesInFlight: 2,
			FenceTimeoutMS: 5000,
			Validation:     true,
			ShaderDir:      "shaders/bin",
			HotReload:      true,
			Workers:        4,
		},
		Log: LogConfig{
			Level: core.LogLevelInfo,
		},
	}
}

// Load reads path over the defaults. Keys missing from the file keep their
// default value; unknown keys are an error.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	defer f.Close()

	cfg := Default()
	if err := toml.NewDecoder(f).DisallowUnknownFields().Decode(cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			err = fmt.Errorf("%w: %s", ErrInvalidConfig, strict.String())
		} else {
			err = fmt.Errorf("config %s: %w", path, err)
		}
		core.LogError(err.Error())
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Window.Width == 0 || c.Window.Height == 0 {
		errs = append(errs, fmt.Errorf("window size %dx%d", c.Window.Width, c.Window.Height))
	}
	if c.Renderer.FramesInFlight < 1 {
		errs = append(errs, fmt.Errorf("frames_in_flight must be at least 1, got %d", c.Renderer.FramesInFlight))
	}
	if c.Renderer.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Renderer.Workers))
	}
	if c.Renderer.ShaderDir == "" {
		errs = append(errs, errors.New("shader_dir is empty"))
	}
	switch c.Log.Level {
	case core.LogLevelDebug, core.LogLevelInfo, core.LogLevelWarn, core.LogLevelError:
	default:
		errs = append(errs, fmt.Errorf("unknown log level %q", c.Log.Level))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Save writes c to path, creating or truncating it.
func (c *Config) Save(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
