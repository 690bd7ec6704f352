package renderer

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/anima-gal/engine/core"
	"github.com/spaghettifunk/anima-gal/engine/renderer/barrier"
	"github.com/spaghettifunk/anima-gal/engine/renderer/cache"
	"github.com/spaghettifunk/anima-gal/engine/renderer/metadata"
)

func (d *Device) CreateShader(desc *metadata.ShaderCreationDescription) ShaderHandle {
	if !desc.HasAnyByteCode() {
		validationError("CreateShader: shader `%s` has no bytecode", desc.Name)
		return ShaderHandle{}
	}
	stages := desc.Stages()
	if desc.IsCompute() && stages != metadata.ShaderStageBit(metadata.ShaderStageCompute) {
		validationError("CreateShader: compute shader `%s` has graphics stages", desc.Name)
		return ShaderHandle{}
	}
	if !desc.IsCompute() && !stages.Has(metadata.ShaderStageVertex) {
		validationError("CreateShader: shader `%s` has no vertex stage", desc.Name)
		return ShaderHandle{}
	}
	if size := desc.Reflection.PushConstant.Size; size > d.capabilities.MaxPushConstantsSize {
		validationError("CreateShader: shader `%s` uses %d bytes of push constants, the limit is %d",
			desc.Name, size, d.capabilities.MaxPushConstantsSize)
		return ShaderHandle{}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	native, err := d.backend.CreateShader(desc)
	if err != nil {
		core.LogError("CreateShader: backend failed to create shader `%s`: %s", desc.Name, err)
		return ShaderHandle{}
	}
	s := &Shader{Description: *desc, Native: native}
	s.Description.Reflection.Bindings = append([]metadata.ShaderResourceBinding(nil), desc.Reflection.Bindings...)
	s.Layout = cache.PipelineLayoutFromReflection(&s.Description.Reflection)
	return d.shaders.Insert(s)
}

// DestroyShader queues the shader. Pipelines built from it are evicted from
// the cache when the dead objects are flushed.
func (d *Device) DestroyShader(h ShaderHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.shaders.Contains(h) {
		core.LogWarn("DestroyShader: %s is not a live shader (double free?)", h)
		return
	}
	d.addDeadObjectLocked(metadata.ObjectTypeShader, h.Raw())
}

func (d *Device) GetShader(h ShaderHandle) (*Shader, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shaders.TryGet(h)
}

func (d *Device) CreateQuery(desc *metadata.QueryCreationDescription) QueryHandle {
	if desc.Type == metadata.QueryTypeTimestamp && d.capabilities.TimestampTicksPerSecond == 0 {
		d.contractViolation(core.ErrNotSupported, "timestamp queries on `%s`", d.capabilities.AdapterName)
		return QueryHandle{}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	native, err := d.backend.CreateQuery(desc)
	if err != nil {
		core.LogError("CreateQuery: backend failed: %s", err)
		return QueryHandle{}
	}
	return d.queries.Insert(&Query{Description: *desc, Native: native})
}

func (d *Device) DestroyQuery(h QueryHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.queries.Contains(h) {
		core.LogWarn("DestroyQuery: %s is not a live query (double free?)", h)
		return
	}
	d.addDeadObjectLocked(metadata.ObjectTypeQuery, h.Raw())
}

func (d *Device) GetQuery(h QueryHandle) (*Query, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.queries.TryGet(h)
}

// CreateSwapChain creates the platform swap chain through the device's
// factory and registers one texture per back buffer.
func (d *Device) CreateSwapChain(in *metadata.SwapChainCreationDescription) SwapChainHandle {
	if d.swapChainFactory == nil {
		validationError("CreateSwapChain: the device has no swap chain factory")
		return SwapChainHandle{}
	}
	if in.Width == 0 || in.Height == 0 {
		validationError("CreateSwapChain: size %dx%d is invalid", in.Width, in.Height)
		return SwapChainHandle{}
	}
	desc := *in
	if desc.Name == "" {
		desc.Name = core.IdentifierNew("swapchain")
	}

	platform, err := d.swapChainFactory(&desc)
	if err != nil {
		core.LogError("CreateSwapChain: failed to create swap chain `%s`: %s", desc.Name, err)
		return SwapChainHandle{}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	sc := &SwapChain{
		Description: desc,
		Platform:    platform,
		Current:     -1,
		PresentMode: desc.InitialPresentMode,
	}
	if err := d.registerBackBuffersLocked(sc); err != nil {
		platform.Destroy()
		return SwapChainHandle{}
	}
	h := d.swapChains.Insert(sc)
	core.LogDebug("swap chain `%s` created with %d back buffers (%s)", desc.Name, len(sc.BackBuffers), desc.InitialPresentMode)
	return h
}

// registerBackBuffersLocked replaces the back buffer textures with wrappers
// of the platform's current images.
func (d *Device) registerBackBuffersLocked(sc *SwapChain) error {
	for _, t := range sc.BackBuffers {
		d.flushTexture(t.Raw())
	}
	sc.BackBuffers = sc.BackBuffers[:0]
	sc.Current = -1

	desc := sc.Platform.BackBufferDescription()
	for i, image := range sc.Platform.BackBuffers() {
		desc.ExistingNativeObject = image
		h := d.createTextureLocked(&desc, nil, fmt.Sprintf("%s/backbuffer-%d", sc.Description.Name, i))
		if h.IsInvalid() {
			for _, t := range sc.BackBuffers {
				d.flushTexture(t.Raw())
			}
			sc.BackBuffers = nil
			err := fmt.Errorf("failed to register back buffer %d of swap chain `%s`: %w", i, sc.Description.Name, core.ErrUnknown)
			core.LogError("%s", err)
			return err
		}
		sc.BackBuffers = append(sc.BackBuffers, h)
	}
	return nil
}

// UpdateSwapChain applies a new present mode. Back buffers are registered
// again when the platform had to recreate them.
func (d *Device) UpdateSwapChain(h SwapChainHandle, mode metadata.PresentMode) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	sc, ok := d.swapChains.TryGet(h)
	if !ok {
		return validationError("UpdateSwapChain: %s is not a live swap chain", h)
	}
	recreated, err := sc.Platform.Update(mode)
	if err != nil {
		err = fmt.Errorf("failed to update swap chain `%s`: %w", sc.Description.Name, err)
		core.LogError("%s", err)
		return err
	}
	sc.PresentMode = mode
	if recreated {
		return d.registerBackBuffersLocked(sc)
	}
	return nil
}

func (d *Device) DestroySwapChain(h SwapChainHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.swapChains.Contains(h) {
		core.LogWarn("DestroySwapChain: %s is not a live swap chain (double free?)", h)
		return
	}
	d.addDeadObjectLocked(metadata.ObjectTypeSwapChain, h.Raw())
}

func (d *Device) GetSwapChain(h SwapChainHandle) (*SwapChain, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.swapChains.TryGet(h)
}

// GetBackBufferTexture returns the back buffer acquired by BeginPipeline, or
// the invalid handle outside of a pipeline.
func (d *Device) GetBackBufferTexture(h SwapChainHandle) TextureHandle {
	d.mu.Lock()
	defer d.mu.Unlock()
	sc, ok := d.swapChains.TryGet(h)
	if !ok || sc.Current < 0 || sc.Current >= len(sc.BackBuffers) {
		return TextureHandle{}
	}
	return sc.BackBuffers[sc.Current]
}

func (d *Device) acquireBackBuffer(h SwapChainHandle) error {
	d.mu.Lock()
	sc, ok := d.swapChains.TryGet(h)
	d.mu.Unlock()
	if !ok {
		return validationError("BeginPipeline: %s is not a live swap chain", h)
	}

	timeout := d.config.FenceTimeout()
	index, wait, err := sc.Platform.Acquire(timeout)
	if errors.Is(err, core.ErrSwapchainBooting) {
		core.LogDebug("swap chain `%s` is out of date, recreating its back buffers", sc.Description.Name)
		d.mu.Lock()
		err = d.registerBackBuffersLocked(sc)
		d.mu.Unlock()
		if err == nil {
			index, wait, err = sc.Platform.Acquire(timeout)
		}
	}
	if err != nil {
		err = fmt.Errorf("failed to acquire a back buffer of `%s`: %w", sc.Description.Name, err)
		core.LogError("%s", err)
		return err
	}
	if index < 0 || index >= len(sc.BackBuffers) {
		err := fmt.Errorf("swap chain `%s` returned back buffer %d of %d: %w", sc.Description.Name, index, len(sc.BackBuffers), core.ErrUnknown)
		core.LogError("%s", err)
		return err
	}
	sc.Current = index

	if wait != nil {
		d.ringMu.Lock()
		d.ring.AddWaitSemaphore(wait)
		d.ringMu.Unlock()
	}
	// the acquired image holds nothing worth keeping
	d.encoder.resetState(barrier.ResourceKey{Texture: true, Handle: sc.BackBuffers[index].Raw()})
	return nil
}

// presentBackBuffer moves the acquired back buffer to the present layout,
// submits the pipeline's work and queues the present.
func (d *Device) presentBackBuffer(h SwapChainHandle) error {
	d.mu.Lock()
	sc, ok := d.swapChains.TryGet(h)
	var tex *Texture
	if ok && sc.Current >= 0 && sc.Current < len(sc.BackBuffers) {
		tex, _ = d.textures.TryGet(sc.BackBuffers[sc.Current])
	}
	d.mu.Unlock()
	if !ok {
		return validationError("EndPipeline: %s is not a live swap chain", h)
	}
	if tex == nil {
		return d.contractViolation(core.ErrUnbalancedBracket, "EndPipeline: swap chain `%s` has no acquired back buffer", sc.Description.Name)
	}

	key := barrier.ResourceKey{Texture: true, Handle: sc.BackBuffers[sc.Current].Raw()}
	if err := d.encoder.transition(key, tex.Native, barrier.StatePresent); err != nil {
		return err
	}

	d.ringMu.Lock()
	if sem := sc.Platform.RenderFinished(); sem != nil {
		d.ring.AddSignalSemaphore(sem)
	}
	_, err := d.ring.Submit(true)
	d.ringMu.Unlock()
	d.encoder.detach()
	if err != nil {
		return err
	}

	err = sc.Platform.Present()
	sc.Current = -1
	if errors.Is(err, core.ErrSwapchainBooting) {
		d.mu.Lock()
		err = d.registerBackBuffersLocked(sc)
		d.mu.Unlock()
	}
	if err != nil {
		err = fmt.Errorf("failed to present swap chain `%s`: %w", sc.Description.Name, err)
		core.LogError("%s", err)
		return err
	}
	return nil
}
