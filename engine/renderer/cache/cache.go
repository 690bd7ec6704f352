package cache

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/spaghettifunk/anima-gal/engine/core"
)

var ErrNilFactory = errors.New("cache: factory is nil")

/** @brief Kinds of objects owned by the cache. */
type ObjectKind uint8

const (
	ObjectKindPipelineLayout ObjectKind = iota
	ObjectKindPipeline
	ObjectKindRenderPass
	ObjectKindFramebuffer
)

func (k ObjectKind) String() string {
	switch k {
	case ObjectKindPipelineLayout:
		return "pipeline-layout"
	case ObjectKindPipeline:
		return "pipeline"
	case ObjectKindRenderPass:
		return "render-pass"
	case ObjectKindFramebuffer:
		return "framebuffer"
	default:
		return "unknown"
	}
}

/**
 * @brief Creates and destroys the backend objects stored in the cache.
 */
type Factory interface {
	CreatePipelineLayout(desc *PipelineLayoutDescription) (any, error)
	CreateRenderPass(desc *RenderPassDescription) (any, error)
	CreateGraphicsPipeline(desc *PipelineDescription, layout any, renderPass any) (any, error)
	CreateComputePipeline(desc *PipelineDescription, layout any) (any, error)
	CreateFramebuffer(desc *FramebufferDescription, renderPass any) (any, error)
	DestroyCachedObject(kind ObjectKind, native any)
}

type PipelineLayout struct {
	Hash        uint64
	Description PipelineLayoutDescription
	Native      any
}

type RenderPass struct {
	Hash        uint64
	Description RenderPassDescription
	Native      any
}

type Pipeline struct {
	Hash       uint64
	Compute    bool
	Shader     uint64
	Layout     *PipelineLayout
	RenderPass *RenderPass
	Native     any
}

type Framebuffer struct {
	Hash        uint64
	Attachments []uint64
	RenderPass  *RenderPass
	Native      any
}

type Stats struct {
	Layouts      int
	RenderPasses int
	Pipelines    int
	Framebuffers int
	Hits         uint64
	Misses       uint64
	Evictions    uint64
}

// HitRate returns the hit ratio in [0, 1].
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

/**
 * @brief Structural-hash keyed store of pipeline layouts, render passes,
 * pipelines and framebuffers. Safe for concurrent use.
 */
type Cache struct {
	mu sync.RWMutex

	factory Factory
	/** @brief Defers the teardown of evicted objects until the GPU is done with them. */
	deferDelete func(fn func())

	layouts      map[uint64]*PipelineLayout
	renderPasses map[uint64]*RenderPass
	pipelines    map[uint64]*Pipeline
	framebuffers map[uint64]*Framebuffer

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// New creates an empty cache. When deferDelete is nil evicted objects are
// destroyed immediately.
func New(factory Factory, deferDelete func(fn func())) (*Cache, error) {
	if factory == nil {
		return nil, ErrNilFactory
	}
	return &Cache{
		factory:      factory,
		deferDelete:  deferDelete,
		layouts:      make(map[uint64]*PipelineLayout),
		renderPasses: make(map[uint64]*RenderPass),
		pipelines:    make(map[uint64]*Pipeline),
		framebuffers: make(map[uint64]*Framebuffer),
	}, nil
}

func (c *Cache) GetOrCreatePipelineLayout(desc *PipelineLayoutDescription) (*PipelineLayout, error) {
	key := desc.Hash()

	c.mu.RLock()
	if layout, ok := c.layouts[key]; ok {
		c.mu.RUnlock()
		c.hits.Add(1)
		return layout, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pipelineLayoutLocked(key, desc)
}

func (c *Cache) pipelineLayoutLocked(key uint64, desc *PipelineLayoutDescription) (*PipelineLayout, error) {
	if layout, ok := c.layouts[key]; ok {
		c.hits.Add(1)
		return layout, nil
	}
	native, err := c.factory.CreatePipelineLayout(desc)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline layout: %w", err)
	}
	layout := &PipelineLayout{Hash: key, Description: *desc, Native: native}
	c.layouts[key] = layout
	c.misses.Add(1)
	return layout, nil
}

func (c *Cache) GetOrCreateRenderPass(desc *RenderPassDescription) (*RenderPass, error) {
	key := desc.Hash()

	c.mu.RLock()
	if rp, ok := c.renderPasses[key]; ok {
		c.mu.RUnlock()
		c.hits.Add(1)
		return rp, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.renderPassLocked(key, desc)
}

func (c *Cache) renderPassLocked(key uint64, desc *RenderPassDescription) (*RenderPass, error) {
	if rp, ok := c.renderPasses[key]; ok {
		c.hits.Add(1)
		return rp, nil
	}
	native, err := c.factory.CreateRenderPass(desc)
	if err != nil {
		return nil, fmt.Errorf("failed to create render pass: %w", err)
	}
	rp := &RenderPass{Hash: key, Description: *desc, Native: native}
	c.renderPasses[key] = rp
	c.misses.Add(1)
	return rp, nil
}

// GetOrCreatePipeline returns the pipeline matching the full structural
// description. Its layout and render pass are resolved through the cache too.
func (c *Cache) GetOrCreatePipeline(desc *PipelineDescription) (*Pipeline, error) {
	key := desc.Hash()

	c.mu.RLock()
	if p, ok := c.pipelines[key]; ok {
		c.mu.RUnlock()
		c.hits.Add(1)
		return p, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.pipelines[key]; ok {
		c.hits.Add(1)
		return p, nil
	}

	layout, err := c.pipelineLayoutLocked(desc.Layout.Hash(), &desc.Layout)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{Hash: key, Compute: desc.Compute, Shader: desc.Shader, Layout: layout}
	if desc.Compute {
		p.Native, err = c.factory.CreateComputePipeline(desc, layout.Native)
	} else {
		var rp *RenderPass
		rp, err = c.renderPassLocked(desc.RenderPass.Hash(), &desc.RenderPass)
		if err != nil {
			return nil, err
		}
		p.RenderPass = rp
		p.Native, err = c.factory.CreateGraphicsPipeline(desc, layout.Native, rp.Native)
	}
	if err != nil {
		err = fmt.Errorf("failed to create pipeline for shader %#x: %w", desc.Shader, err)
		core.LogError("%s", err)
		return nil, err
	}

	c.pipelines[key] = p
	c.misses.Add(1)
	return p, nil
}

func (c *Cache) GetOrCreateFramebuffer(desc *FramebufferDescription) (*Framebuffer, error) {
	key := desc.Hash()

	c.mu.RLock()
	if fb, ok := c.framebuffers[key]; ok {
		c.mu.RUnlock()
		c.hits.Add(1)
		return fb, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if fb, ok := c.framebuffers[key]; ok {
		c.hits.Add(1)
		return fb, nil
	}
	rp, err := c.renderPassLocked(desc.RenderPass.Hash(), &desc.RenderPass)
	if err != nil {
		return nil, err
	}
	native, err := c.factory.CreateFramebuffer(desc, rp.Native)
	if err != nil {
		return nil, fmt.Errorf("failed to create framebuffer: %w", err)
	}
	fb := &Framebuffer{
		Hash:        key,
		Attachments: append([]uint64(nil), desc.Attachments...),
		RenderPass:  rp,
		Native:      native,
	}
	c.framebuffers[key] = fb
	c.misses.Add(1)
	return fb, nil
}

// EvictShader drops every pipeline built from the shader. It returns the
// number of evicted pipelines.
func (c *Cache) EvictShader(shader uint64) int {
	c.mu.Lock()
	var evicted []any
	for key, p := range c.pipelines {
		if p.Shader != shader {
			continue
		}
		delete(c.pipelines, key)
		evicted = append(evicted, p.Native)
	}
	c.mu.Unlock()

	c.release(ObjectKindPipeline, evicted)
	return len(evicted)
}

// EvictAttachment drops every framebuffer that references the render target
// view.
func (c *Cache) EvictAttachment(view uint64) int {
	c.mu.Lock()
	var evicted []any
	for key, fb := range c.framebuffers {
		if slices.Contains(fb.Attachments, view) {
			delete(c.framebuffers, key)
			evicted = append(evicted, fb.Native)
		}
	}
	c.mu.Unlock()

	c.release(ObjectKindFramebuffer, evicted)
	return len(evicted)
}

// release hands evicted objects to deferDelete. It runs without c.mu held,
// so the cache lock is always taken last.
func (c *Cache) release(kind ObjectKind, natives []any) {
	for _, native := range natives {
		c.evictions.Add(1)
		if c.deferDelete == nil {
			c.factory.DestroyCachedObject(kind, native)
			continue
		}
		factory := c.factory
		c.deferDelete(func() { factory.DestroyCachedObject(kind, native) })
	}
}

// DestroyAll destroys every cached object immediately. The caller must make
// sure the GPU is idle.
func (c *Cache) DestroyAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, fb := range c.framebuffers {
		c.factory.DestroyCachedObject(ObjectKindFramebuffer, fb.Native)
		delete(c.framebuffers, key)
	}
	for key, p := range c.pipelines {
		c.factory.DestroyCachedObject(ObjectKindPipeline, p.Native)
		delete(c.pipelines, key)
	}
	for key, rp := range c.renderPasses {
		c.factory.DestroyCachedObject(ObjectKindRenderPass, rp.Native)
		delete(c.renderPasses, key)
	}
	for key, l := range c.layouts {
		c.factory.DestroyCachedObject(ObjectKindPipelineLayout, l.Native)
		delete(c.layouts, key)
	}
}

func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Layouts:      len(c.layouts),
		RenderPasses: len(c.renderPasses),
		Pipelines:    len(c.pipelines),
		Framebuffers: len(c.framebuffers),
		Hits:         c.hits.Load(),
		Misses:       c.misses.Load(),
		Evictions:    c.evictions.Load(),
	}
}
