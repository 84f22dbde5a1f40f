//go:build mage

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

const (
	shaderSrcDir = "shaders"
	shaderOutDir = "shaders/bin"
)

// Compiles every GLSL shader in shaders/ to SPIR-V in shaders/bin.
func (Build) Shaders() error {
	return buildShaders()
}

// Runs go mod download and then builds the binary.
func (Build) Engine() error {
	mg.Deps(Build.Shaders)
	if _, err := executeCmd("go", withArgs("mod", "download"), withStream()); err != nil {
		return err
	}
	_, err := executeCmd("go", withArgs("build", "-o", "bin/aurora", "."), withStream())
	return err
}

// Runs the unit tests with the race detector.
func (Build) Test() error {
	_, err := executeCmd("go", withArgs("test", "-race", "./engine/...", "./testbed/..."), withStream())
	return err
}

func buildShaders() error {
	if err := os.MkdirAll(shaderOutDir, 0o755); err != nil {
		return err
	}
	sources, err := shaderSources()
	if err != nil {
		return err
	}
	for _, src := range sources {
		out := filepath.Join(shaderOutDir, filepath.Base(src)+".spv")
		if upToDate(src, out) {
			continue
		}
		if _, err := executeCmd("glslc", withArgs("--target-env=vulkan1.0", "-O", src, "-o", out), withStream()); err != nil {
			return err
		}
	}
	fmt.Printf("%d shaders in %s\n", len(sources), shaderOutDir)
	return nil
}

func shaderSources() ([]string, error) {
	entries, err := os.ReadDir(shaderSrcDir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.TrimPrefix(filepath.Ext(e.Name()), ".") {
		case "vert", "frag", "comp":
			out = append(out, filepath.Join(shaderSrcDir, e.Name()))
		}
	}
	return out, nil
}

// upToDate reports whether out exists and is newer than src.
func upToDate(src, out string) bool {
	si, err := os.Stat(src)
	if err != nil {
		return false
	}
	oi, err := os.Stat(out)
	if err != nil {
		return false
	}
	return oi.ModTime().After(si.ModTime())
}
