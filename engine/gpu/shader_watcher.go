package gpu

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/spaghettifunk/hut/engine/core"
)

// ShaderWatcher watches a shader's .toml/.spv pair and signals the
// caller to rebuild the owning Pipeline. This is ambient tooling, not
// a spec-mandated operation: it never calls into Vulkan itself, only
// notifies. Grounded on the teacher's engine/assets.AssetManager
// fsnotify usage.
type ShaderWatcher struct {
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// WatchShader starts watching tomlPath's directory (fsnotify watches
// directories, not files directly, to survive editor atomic-save
// rename patterns) and calls onChange whenever tomlPath or its sibling
// bytecode file (same stem, .spv extension) is written or created.
func WatchShader(tomlPath string, onChange func()) (*ShaderWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(tomlPath)
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}

	sw := &ShaderWatcher{watcher: w, done: make(chan struct{})}
	go sw.loop(tomlPath, onChange)
	return sw, nil
}

func (sw *ShaderWatcher) loop(tomlPath string, onChange func()) {
	base := filepath.Base(tomlPath)
	ext := filepath.Ext(base)
	stem := base[:len(base)-len(ext)]

	for {
		select {
		case ev, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if name := filepath.Base(ev.Name); name == base || name == stem+".spv" {
				core.LogDebug("gpu: shader source changed: %s", ev.Name)
				onChange()
			}
		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			core.LogWarn("gpu: shader watcher error: %v", err)
		case <-sw.done:
			return
		}
	}
}

// Close stops the watcher.
func (sw *ShaderWatcher) Close() {
	close(sw.done)
	sw.watcher.Close()
}
