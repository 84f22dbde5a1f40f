// Package assets indexes the compiled shader binaries on disk and reports
// when they change so pipelines can be rebuilt.
package assets

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/aurora/engine/core"
)

type AssetType uint8

const (
	AssetTypeNone AssetType = iota
	AssetTypeShader
	AssetTypeConfig
)

type AssetInfo struct {
	// Path is relative to the watched root.
	Path       string
	Type       AssetType
	LastLoaded time.Time
}

// FnOnChange receives the relative paths of the assets changed in one burst.
type FnOnChange func(paths []string)

const defaultSettle = 100 * time.Millisecond

type AssetManager struct {
	root   string
	assets map[string]AssetInfo
	mutex  sync.RWMutex

	onChange FnOnChange
	// settle is how long a burst of writes must be quiet before it is reported.
	settle time.Duration

	done     chan struct{}
	stopped  chan struct{}
	fsnotify *fsnotify.Watcher
	started  bool
	isClosed bool
}

func NewAssetManager() (*AssetManager, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	return &AssetManager{
		assets:   make(map[string]AssetInfo),
		fsnotify: fsWatch,
		settle:   defaultSettle,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}, nil
}

// Initialize indexes root recursively and starts watching it. onChange may be
// nil; it is called from the watcher goroutine.
func (am *AssetManager) Initialize(root string, onChange FnOnChange) error {
	am.root = root
	am.onChange = onChange
	if err := am.watchRecursive(root, false); err != nil {
		core.LogError(err.Error())
		return err
	}
	am.started = true
	go am.start()
	return nil
}

func (am *AssetManager) relative(path string) string {
	rel, err := filepath.Rel(am.root, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

// Lookup returns the indexed asset at the path relative to the root.
func (am *AssetManager) Lookup(path string) (AssetInfo, bool) {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	a, ok := am.assets[path]
	return a, ok
}

// Assets returns the indexed assets of type t sorted by path.
func (am *AssetManager) Assets(t AssetType) []AssetInfo {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	var out []AssetInfo
	for _, a := range am.assets {
		if a.Type == t {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b AssetInfo) int {
		if a.Path < b.Path {
			return -1
		}
		if a.Path > b.Path {
			return 1
		}
		return 0
	})
	return out
}

func (am *AssetManager) Shutdown() error {
	if am.isClosed {
		return errors.New("asset manager already closed")
	}
	am.isClosed = true
	close(am.done)
	if am.started {
		<-am.stopped
		return nil
	}
	return am.fsnotify.Close()
}

func (am *AssetManager) start() {
	defer close(am.stopped)

	changed := map[string]bool{}
	timer := time.NewTimer(am.settle)
	timer.Stop()

	for {
		select {
		case e := <-am.fsnotify.Events:
			s, err := os.Stat(e.Name)
			if err == nil && s != nil && s.IsDir() {
				if e.Op&fsnotify.Create != 0 {
					am.watchRecursive(e.Name, false)
				}
				continue
			}
			// Handle create or modify events
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				if path, ok := am.handleFileEvent(e.Name); ok {
					changed[path] = true
					timer.Reset(am.settle)
				}
			}
			if e.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				am.removeAsset(e.Name)
				am.fsnotify.Remove(e.Name)
			}

		case <-timer.C:
			paths := make([]string, 0, len(changed))
			for p := range changed {
				paths = append(paths, p)
			}
			slices.Sort(paths)
			clear(changed)
			core.LogDebug("assets changed: %v", paths)
			if am.onChange != nil {
				am.onChange(paths)
			}

		case err := <-am.fsnotify.Errors:
			core.LogError(err.Error())

		case <-am.done:
			timer.Stop()
			am.fsnotify.Close()
			return
		}
	}
}

// watchRecursive adds all directories under the given one to the watch list
// and indexes the files found.
func (am *AssetManager) watchRecursive(path string, unWatch bool) error {
	return filepath.Walk(path, func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			if unWatch {
				return am.fsnotify.Remove(walkPath)
			}
			return am.fsnotify.Add(walkPath)
		}
		am.handleFileEvent(walkPath)
		return nil
	})
}

// Handle the creation or modification of a file
func (am *AssetManager) handleFileEvent(path string) (string, bool) {
	assetType := determineAssetType(path)
	if assetType == AssetTypeNone {
		return "", false
	}
	rel := am.relative(path)

	am.mutex.Lock()
	defer am.mutex.Unlock()
	am.assets[rel] = AssetInfo{
		Path:       rel,
		Type:       assetType,
		LastLoaded: time.Now(),
	}
	return rel, true
}

// Remove the asset from the index if it was deleted
func (am *AssetManager) removeAsset(path string) {
	am.mutex.Lock()
	defer am.mutex.Unlock()

	delete(am.assets, am.relative(path))
}

func determineAssetType(path string) AssetType {
	switch filepath.Ext(path) {
	case ".spv":
		return AssetTypeShader
	case ".toml":
		return AssetTypeConfig
	default:
		return AssetTypeNone
	}
}
