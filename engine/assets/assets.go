package assets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/anima-gal/engine/config"
	"github.com/spaghettifunk/anima-gal/engine/core"
	"github.com/spaghettifunk/anima-gal/engine/renderer"
	"github.com/spaghettifunk/anima-gal/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-gal/engine/systems"
)

var ErrLibraryClosed = errors.New("shader library already closed")

/**
 * @brief Fired after a shader was rebuilt from its sources. The old handle
 * is already queued for destruction.
 */
type ShaderReloadEvent struct {
	Name string
	Old  renderer.ShaderHandle
	New  renderer.ShaderHandle
}

type shaderEntry struct {
	manifestPath string
	handle       renderer.ShaderHandle
	sources      []string
}

/**
 * @brief Loads shader programs described by manifests under one directory
 * and keeps them up to date when hot reload is enabled.
 */
type ShaderLibrary struct {
	device *renderer.Device
	dir    string

	mutex   sync.RWMutex
	shaders map[string]*shaderEntry
	/** @brief Absolute source path to the shaders built from it. */
	sources map[string]map[string]struct{}
	pending map[string]struct{}

	/** @brief Listeners run on the goroutine calling ApplyPendingReloads. */
	OnReload core.Event[ShaderReloadEvent]

	done     chan struct{}
	stopped  chan struct{}
	fsnotify *fsnotify.Watcher
	isClosed bool
}

func NewShaderLibrary(cfg config.ShaderConfig, device *renderer.Device) (*ShaderLibrary, error) {
	if device == nil {
		return nil, errors.New("shader library needs a device")
	}
	dir, err := filepath.Abs(cfg.Directory)
	if err != nil {
		return nil, err
	}
	l := &ShaderLibrary{
		device:  device,
		dir:     dir,
		shaders: make(map[string]*shaderEntry),
		sources: make(map[string]map[string]struct{}),
		pending: make(map[string]struct{}),
	}
	if !cfg.HotReload {
		return l, nil
	}

	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	l.fsnotify = fsWatch
	l.done = make(chan struct{})
	l.stopped = make(chan struct{})
	if err := l.watchRecursive(dir); err != nil {
		fsWatch.Close()
		return nil, fmt.Errorf("failed to watch `%s`: %w", dir, err)
	}
	go l.start()
	core.LogInfo("watching `%s` for shader changes", dir)
	return l, nil
}

func (l *ShaderLibrary) Directory() string {
	return l.dir
}

// Load builds the named shader once. Later calls return the live handle.
func (l *ShaderLibrary) Load(name string) (renderer.ShaderHandle, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.isClosed {
		return renderer.ShaderHandle{}, ErrLibraryClosed
	}
	if e, ok := l.shaders[name]; ok {
		return e.handle, nil
	}

	e := &shaderEntry{manifestPath: filepath.Join(l.dir, name+ManifestExtension)}
	if err := l.build(name, e); err != nil {
		core.LogError("%s", err)
		return renderer.ShaderHandle{}, err
	}
	l.shaders[name] = e
	l.indexSources(name, e)
	core.LogDebug("loaded shader `%s` as %s", name, e.handle)
	return e.handle, nil
}

// PreloadAll compiles every manifest of the directory on the job system and
// creates the shaders that are not loaded yet. Shaders that fail are skipped
// and reported in the joined error.
func (l *ShaderLibrary) PreloadAll(jobs *systems.JobSystem) (int, error) {
	manifests, err := filepath.Glob(filepath.Join(l.dir, "*"+ManifestExtension))
	if err != nil {
		return 0, err
	}

	type compiled struct {
		name    string
		path    string
		desc    *metadata.ShaderCreationDescription
		sources []string
	}
	results := make([]*compiled, len(manifests))
	tasks := make([]systems.JobTask, 0, len(manifests))
	for i, path := range manifests {
		i, path := i, path
		name := strings.TrimSuffix(filepath.Base(path), ManifestExtension)
		if _, loaded := l.Get(name); loaded {
			continue
		}
		tasks = append(tasks, systems.JobTask{
			Name: "compile " + name,
			Run: func() error {
				desc, sources, err := CompileManifest(path)
				if err != nil {
					return err
				}
				results[i] = &compiled{name: name, path: path, desc: desc, sources: sources}
				return nil
			},
		})
	}
	errs := []error{jobs.RunAll(tasks)}

	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.isClosed {
		return 0, ErrLibraryClosed
	}
	count := 0
	for _, r := range results {
		if r == nil {
			continue
		}
		if _, loaded := l.shaders[r.name]; loaded {
			continue
		}
		r.desc.Name = r.name
		h := l.device.CreateShader(r.desc)
		if h.IsInvalid() {
			errs = append(errs, fmt.Errorf("device rejected shader `%s`: %w", r.name, core.ErrValidation))
			continue
		}
		e := &shaderEntry{manifestPath: r.path, handle: h, sources: r.sources}
		l.shaders[r.name] = e
		l.indexSources(r.name, e)
		count++
	}
	core.LogInfo("preloaded %d of %d shaders from `%s`", count, len(manifests), l.dir)
	return count, errors.Join(errs...)
}

func (l *ShaderLibrary) Get(name string) (renderer.ShaderHandle, bool) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	e, ok := l.shaders[name]
	if !ok {
		return renderer.ShaderHandle{}, false
	}
	return e.handle, true
}

func (l *ShaderLibrary) Names() []string {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	names := make([]string, 0, len(l.shaders))
	for name := range l.shaders {
		names = append(names, name)
	}
	return names
}

// Reload queues a rebuild of a loaded shader for the next ApplyPendingReloads.
func (l *ShaderLibrary) Reload(name string) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if _, ok := l.shaders[name]; !ok {
		return fmt.Errorf("shader `%s` is not loaded", name)
	}
	l.pending[name] = struct{}{}
	return nil
}

// ApplyPendingReloads rebuilds every shader whose sources changed. Call it
// between frames. A shader that fails to rebuild keeps its old handle.
func (l *ShaderLibrary) ApplyPendingReloads() int {
	l.mutex.Lock()
	if len(l.pending) == 0 {
		l.mutex.Unlock()
		return 0
	}
	var fired []ShaderReloadEvent
	for name := range l.pending {
		delete(l.pending, name)
		old, ok := l.shaders[name]
		if !ok {
			continue
		}
		e := &shaderEntry{manifestPath: old.manifestPath}
		if err := l.build(name, e); err != nil {
			core.LogError("shader `%s` reload failed, keeping %s: %s", name, old.handle, err)
			continue
		}
		l.unindexSources(name, old)
		l.shaders[name] = e
		l.indexSources(name, e)
		l.device.DestroyShader(old.handle)
		core.LogInfo("reloaded shader `%s`: %s -> %s", name, old.handle, e.handle)
		fired = append(fired, ShaderReloadEvent{Name: name, Old: old.handle, New: e.handle})
	}
	l.mutex.Unlock()

	for _, ev := range fired {
		l.OnReload.Fire(ev)
	}
	return len(fired)
}

// Close stops the watcher and destroys every loaded shader.
func (l *ShaderLibrary) Close() error {
	l.mutex.Lock()
	if l.isClosed {
		l.mutex.Unlock()
		return ErrLibraryClosed
	}
	l.isClosed = true
	for name, e := range l.shaders {
		l.device.DestroyShader(e.handle)
		delete(l.shaders, name)
	}
	l.sources = make(map[string]map[string]struct{})
	l.pending = make(map[string]struct{})
	l.mutex.Unlock()

	if l.fsnotify != nil {
		close(l.done)
		<-l.stopped
	}
	l.OnReload.Clear()
	return nil
}

// build fills e from the manifest on disk. Caller holds the lock.
func (l *ShaderLibrary) build(name string, e *shaderEntry) error {
	desc, sources, err := CompileManifest(e.manifestPath)
	if err != nil {
		return err
	}
	desc.Name = name
	h := l.device.CreateShader(desc)
	if h.IsInvalid() {
		return fmt.Errorf("device rejected shader `%s`: %w", name, core.ErrValidation)
	}
	e.handle = h
	e.sources = sources
	return nil
}

func (l *ShaderLibrary) indexSources(name string, e *shaderEntry) {
	for _, src := range e.sources {
		key := cleanPath(src)
		users, ok := l.sources[key]
		if !ok {
			users = make(map[string]struct{})
			l.sources[key] = users
		}
		users[name] = struct{}{}
	}
}

func (l *ShaderLibrary) unindexSources(name string, e *shaderEntry) {
	for _, src := range e.sources {
		key := cleanPath(src)
		delete(l.sources[key], name)
		if len(l.sources[key]) == 0 {
			delete(l.sources, key)
		}
	}
}

func (l *ShaderLibrary) start() {
	defer close(l.stopped)
	for {
		select {
		case e, ok := <-l.fsnotify.Events:
			if !ok {
				return
			}
			s, err := os.Stat(e.Name)
			if err == nil && s.IsDir() {
				if e.Op&fsnotify.Create != 0 {
					if err := l.watchRecursive(e.Name); err != nil {
						core.LogWarn("failed to watch `%s`: %s", e.Name, err)
					}
				}
				continue
			}
			// Editors often replace files with a rename, which shows up as
			// a create on the new name.
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				l.handleFileEvent(e.Name)
			}

		case err, ok := <-l.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("shader watcher: %s", err)

		case <-l.done:
			l.fsnotify.Close()
			return
		}
	}
}

// watchRecursive adds all directories under the given one to the watch list.
func (l *ShaderLibrary) watchRecursive(path string) error {
	return filepath.WalkDir(path, func(walkPath string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		return l.fsnotify.Add(walkPath)
	})
}

func (l *ShaderLibrary) handleFileEvent(path string) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	for name := range l.sources[cleanPath(path)] {
		if _, queued := l.pending[name]; !queued {
			core.LogDebug("`%s` changed, queueing reload of shader `%s`", path, name)
		}
		l.pending[name] = struct{}{}
	}
}

func cleanPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}
