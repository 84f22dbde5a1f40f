package engine

import (
	"errors"
	"io/fs"

	"github.com/spaghettifunk/aurora/engine/config"
	"github.com/spaghettifunk/aurora/engine/core"
)

type ApplicationConfig struct {
	// ConfigPath is the TOML settings file. The defaults are used when it
	// does not exist.
	ConfigPath string
	// AssetRoot is watched for shader changes when hot reload is on. It
	// defaults to the renderer shader directory.
	AssetRoot string

	settings *config.Config
}

// Settings loads the configuration once and returns it.
func (a *ApplicationConfig) Settings() (*config.Config, error) {
	if a.settings != nil {
		return a.settings, nil
	}
	cfg, err := config.Load(a.ConfigPath)
	if errors.Is(err, fs.ErrNotExist) {
		core.LogWarn("no configuration at %q, using defaults", a.ConfigPath)
		cfg, err = config.Default(), nil
	}
	if err != nil {
		return nil, err
	}
	a.settings = cfg
	return cfg, nil
}
