package renderer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/spaghettifunk/anima-gal/engine/config"
	"github.com/spaghettifunk/anima-gal/engine/containers"
	"github.com/spaghettifunk/anima-gal/engine/core"
	"github.com/spaghettifunk/anima-gal/engine/renderer/cache"
	"github.com/spaghettifunk/anima-gal/engine/renderer/frame"
	"github.com/spaghettifunk/anima-gal/engine/renderer/metadata"
)

var ErrNilBackend = errors.New("renderer: backend is nil")

/**
 * @brief Payload of every device lifecycle notification.
 */
type DeviceEvent struct {
	Type   metadata.DeviceEventType
	Device *Device
	/** @brief Render frame passed to BeginFrame, when relevant. */
	Frame uint64
	/** @brief Pipeline name for pipeline events. */
	Name string
}

type DeviceOptions struct {
	Config  *config.DeviceConfig
	Backend Backend
	/** @brief Creates swap chains. Devices without one cannot create swap chains. */
	SwapChainFactory SwapChainFactory
}

/**
 * @brief Owns every GPU object of one backend, routes create and destroy calls
 * and drives the frame, pipeline and pass brackets.
 *
 * Lock order: mu (tables, dedup maps, dead list) before ringMu (frame ring).
 * The pipeline cache lock is a leaf, it is never held while taking either.
 */
type Device struct {
	mu     sync.Mutex
	ringMu sync.Mutex

	config           *config.DeviceConfig
	backend          Backend
	swapChainFactory SwapChainFactory
	capabilities     metadata.Capabilities
	events           core.Event[DeviceEvent]

	buffers       *containers.HandleTable[*Buffer]
	textures      *containers.HandleTable[*Texture]
	textureViews  *containers.HandleTable[*TextureResourceView]
	bufferViews   *containers.HandleTable[*BufferResourceView]
	renderTargets *containers.HandleTable[*RenderTargetView]
	textureUAVs   *containers.HandleTable[*TextureUnorderedAccessView]
	bufferUAVs    *containers.HandleTable[*BufferUnorderedAccessView]
	shaders       *containers.HandleTable[*Shader]
	queries       *containers.HandleTable[*Query]
	swapChains    *containers.HandleTable[*SwapChain]

	blendStates        *dedupTable[metadata.BlendStateCreationDescription]
	depthStencilStates *dedupTable[metadata.DepthStencilStateCreationDescription]
	rasterizerStates   *dedupTable[metadata.RasterizerStateCreationDescription]
	samplerStates      *dedupTable[metadata.SamplerStateCreationDescription]
	vertexDeclarations *dedupTable[VertexInput]

	deadObjects       []deadObject
	deadObjectFlushes uint64
	destroyedObjects  uint64

	ring     *frame.Ring
	cache    *cache.Cache
	encoder  *CommandEncoder
	fallback fallbackResources

	beginFrameCalled    bool
	beginPipelineCalled bool
	beginPassCalled     bool
	renderFrame         uint64
	shutdown            bool

	clock   *core.Clock
	metrics *core.FrameMetrics
}

// NewDevice creates the device, its frame ring and pipeline cache, then the
// fallback resources. AfterInit fires before it returns.
func NewDevice(options DeviceOptions) (*Device, error) {
	if options.Backend == nil {
		core.LogError("%s", ErrNilBackend)
		return nil, ErrNilBackend
	}
	cfg := options.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		err = fmt.Errorf("invalid device config: %w", err)
		core.LogError("%s", err)
		return nil, err
	}
	if err := core.SetLogLevel(cfg.LogLevel); err != nil {
		core.LogWarn("unknown log level `%s`, keeping the current one", cfg.LogLevel)
	}

	capacity := cfg.TableCapacity
	d := &Device{
		config:           cfg,
		backend:          options.Backend,
		swapChainFactory: options.SwapChainFactory,
		capabilities:     options.Backend.Capabilities(),

		buffers:       containers.NewHandleTable[*Buffer](capacity),
		textures:      containers.NewHandleTable[*Texture](capacity),
		textureViews:  containers.NewHandleTable[*TextureResourceView](capacity),
		bufferViews:   containers.NewHandleTable[*BufferResourceView](capacity),
		renderTargets: containers.NewHandleTable[*RenderTargetView](capacity),
		textureUAVs:   containers.NewHandleTable[*TextureUnorderedAccessView](capacity),
		bufferUAVs:    containers.NewHandleTable[*BufferUnorderedAccessView](capacity),
		shaders:       containers.NewHandleTable[*Shader](capacity),
		queries:       containers.NewHandleTable[*Query](capacity),
		swapChains:    containers.NewHandleTable[*SwapChain](capacity),

		blendStates:        newDedupTable[metadata.BlendStateCreationDescription](metadata.ObjectTypeBlendState, capacity),
		depthStencilStates: newDedupTable[metadata.DepthStencilStateCreationDescription](metadata.ObjectTypeDepthStencilState, capacity),
		rasterizerStates:   newDedupTable[metadata.RasterizerStateCreationDescription](metadata.ObjectTypeRasterizerState, capacity),
		samplerStates:      newDedupTable[metadata.SamplerStateCreationDescription](metadata.ObjectTypeSamplerState, capacity),
		vertexDeclarations: newDedupTable[VertexInput](metadata.ObjectTypeVertexDeclaration, capacity),

		clock:   core.NewClock(),
		metrics: core.NewFrameMetrics(),
	}

	ring, err := frame.NewRing(options.Backend, frame.Config{
		FramesInFlight: cfg.FramesInFlight,
		FenceTimeout:   cfg.FenceTimeout(),
	})
	if err != nil {
		err = fmt.Errorf("failed to create frame ring: %w", err)
		core.LogError("%s", err)
		return nil, err
	}
	d.ring = ring

	pipelineCache, err := cache.New(options.Backend, d.deferDelete)
	if err != nil {
		err = fmt.Errorf("failed to create pipeline cache: %w", err)
		core.LogError("%s", err)
		return nil, err
	}
	d.cache = pipelineCache
	d.encoder = newCommandEncoder(d)

	caps := d.capabilities
	core.LogInfo("device created on `%s` (%s backend): %d MiB dedicated, %d MiB shared, %d frames in flight",
		caps.AdapterName, options.Backend.Name(), caps.DedicatedMemory>>20, caps.SharedMemory>>20, cfg.FramesInFlight)

	if err := d.createFallbackResources(); err != nil {
		d.Shutdown()
		return nil, err
	}

	d.clock.Start()
	d.fireEvent(DeviceEvent{Type: metadata.DeviceEventAfterInit})
	return d, nil
}

// Shutdown destroys the fallback resources, flushes the dead objects, waits
// for the GPU and releases the cache and the frame ring. Anything the caller
// did not destroy is reported as a leak.
func (d *Device) Shutdown() error {
	if d.shutdown {
		return nil
	}
	d.fireEvent(DeviceEvent{Type: metadata.DeviceEventBeforeShutdown})

	d.destroyFallbackResources()

	d.mu.Lock()
	d.destroyDeadObjectsLocked()
	d.mu.Unlock()

	d.ringMu.Lock()
	err := d.ring.WaitIdle()
	d.cache.DestroyAll()
	if serr := d.ring.Shutdown(); err == nil {
		err = serr
	}
	d.ringMu.Unlock()

	d.mu.Lock()
	d.reportLeaksLocked()
	d.mu.Unlock()

	if berr := d.backend.Shutdown(); err == nil {
		err = berr
	}
	d.clock.Stop()
	d.shutdown = true
	if err != nil {
		err = fmt.Errorf("device shutdown: %w", err)
		core.LogError("%s", err)
	}
	return err
}

func (d *Device) reportLeaksLocked() {
	report := func(name string, count int) {
		if count > 0 {
			core.LogWarn("%d %s leaked at shutdown", count, name)
		}
	}
	report("swap chains", d.swapChains.Count())
	report("shaders", d.shaders.Count())
	report("blend states", d.blendStates.table.Count())
	report("depth stencil states", d.depthStencilStates.table.Count())
	report("rasterizer states", d.rasterizerStates.table.Count())
	report("sampler states", d.samplerStates.table.Count())
	report("buffers", d.buffers.Count())
	report("textures", d.textures.Count())
	report("texture resource views", d.textureViews.Count())
	report("buffer resource views", d.bufferViews.Count())
	report("render target views", d.renderTargets.Count())
	report("texture unordered access views", d.textureUAVs.Count())
	report("buffer unordered access views", d.bufferUAVs.Count())
	report("queries", d.queries.Count())
	report("vertex declarations", d.vertexDeclarations.table.Count())
}

func (d *Device) Events() *core.Event[DeviceEvent] {
	return &d.events
}

func (d *Device) fireEvent(e DeviceEvent) {
	e.Device = d
	d.events.Fire(e)
}

func (d *Device) Capabilities() metadata.Capabilities {
	return d.capabilities
}

func (d *Device) Config() *config.DeviceConfig {
	return d.config
}

func (d *Device) Backend() Backend {
	return d.backend
}

// contractViolation reports structural misuse of the brackets or the
// encoder. Debug devices panic, others log and return err.
func (d *Device) contractViolation(err error, format string, args ...interface{}) error {
	err = fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
	core.LogError("%s", err)
	if d.config.Debug {
		panic(err)
	}
	return err
}

// validationError logs a rejected creation description. The error is
// returned for the caller's convenience, creation calls only surface an
// invalid handle.
func validationError(format string, args ...interface{}) error {
	err := fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), core.ErrValidation)
	core.LogError("%s", err)
	return err
}

func (d *Device) deferDelete(fn func()) {
	d.ringMu.Lock()
	defer d.ringMu.Unlock()
	d.ring.DeleteLater(fn)
}

// BeginFrame waits until the frame slot is free again and releases what it
// still held. On a fence timeout the frame is not started.
func (d *Device) BeginFrame(renderFrame uint64) error {
	d.fireEvent(DeviceEvent{Type: metadata.DeviceEventBeforeBeginFrame, Frame: renderFrame})

	if d.beginFrameCalled {
		return d.contractViolation(core.ErrNestedBracket, "BeginFrame(%d)", renderFrame)
	}

	d.ringMu.Lock()
	err := d.ring.BeginFrame()
	d.ringMu.Unlock()
	if err != nil {
		err = fmt.Errorf("failed to begin frame %d: %w", renderFrame, err)
		core.LogError("%s", err)
		return err
	}
	d.beginFrameCalled = true
	d.renderFrame = renderFrame

	d.fireEvent(DeviceEvent{Type: metadata.DeviceEventAfterBeginFrame, Frame: renderFrame})
	return nil
}

// EndFrame flushes the dead objects, submits the frame's work and advances
// the frame ring.
func (d *Device) EndFrame() error {
	d.fireEvent(DeviceEvent{Type: metadata.DeviceEventBeforeEndFrame, Frame: d.renderFrame})

	if !d.beginFrameCalled {
		return d.contractViolation(core.ErrUnbalancedBracket, "EndFrame")
	}

	d.mu.Lock()
	d.destroyDeadObjectsLocked()
	d.mu.Unlock()

	d.ringMu.Lock()
	err := d.ring.EndFrame()
	d.ringMu.Unlock()
	d.encoder.detach()
	d.beginFrameCalled = false

	d.clock.Update()
	elapsed := d.clock.Elapsed()
	d.clock.Start()
	d.metrics.Update(elapsed)

	if err != nil {
		err = fmt.Errorf("failed to end frame %d: %w", d.renderFrame, err)
		core.LogError("%s", err)
		return err
	}
	d.fireEvent(DeviceEvent{Type: metadata.DeviceEventAfterEndFrame, Frame: d.renderFrame})
	return nil
}

// BeginPipeline opens the rendering of one view. With a valid swap chain the
// next back buffer is acquired and can be fetched with GetBackBufferTexture.
func (d *Device) BeginPipeline(name string, swapChain SwapChainHandle) error {
	d.fireEvent(DeviceEvent{Type: metadata.DeviceEventBeforeBeginPipeline, Name: name})

	if d.beginPipelineCalled {
		return d.contractViolation(core.ErrNestedBracket, "BeginPipeline(%s)", name)
	}
	d.beginPipelineCalled = true

	if !swapChain.IsInvalid() {
		if err := d.acquireBackBuffer(swapChain); err != nil {
			return err
		}
	}
	d.encoder.PushMarker(name)

	d.fireEvent(DeviceEvent{Type: metadata.DeviceEventAfterBeginPipeline, Name: name})
	return nil
}

// EndPipeline submits the pipeline's work. With a valid swap chain the back
// buffer is transitioned for presentation and presented.
func (d *Device) EndPipeline(swapChain SwapChainHandle) error {
	d.fireEvent(DeviceEvent{Type: metadata.DeviceEventBeforeEndPipeline})

	if !d.beginPipelineCalled {
		return d.contractViolation(core.ErrUnbalancedBracket, "EndPipeline")
	}
	d.beginPipelineCalled = false
	d.encoder.PopMarker()

	var err error
	if !swapChain.IsInvalid() {
		err = d.presentBackBuffer(swapChain)
	} else {
		err = d.Flush()
	}
	if err != nil {
		return err
	}

	d.fireEvent(DeviceEvent{Type: metadata.DeviceEventAfterEndPipeline})
	return nil
}

// BeginPass returns the device's command encoder, ready to record one pass.
func (d *Device) BeginPass(name string) (*CommandEncoder, error) {
	if d.beginPassCalled {
		return nil, d.contractViolation(core.ErrNestedBracket, "BeginPass(%s)", name)
	}
	d.beginPassCalled = true
	d.encoder.PushMarker(name)
	return d.encoder, nil
}

func (d *Device) EndPass(encoder *CommandEncoder) error {
	if !d.beginPassCalled {
		return d.contractViolation(core.ErrUnbalancedBracket, "EndPass")
	}
	if encoder != d.encoder {
		return d.contractViolation(core.ErrUnbalancedBracket, "EndPass with a foreign encoder")
	}
	d.beginPassCalled = false
	if encoder.mode != encoderIdle {
		core.LogWarn("EndPass: closing a pass that is still recording")
		encoder.endRecording()
	}
	encoder.PopMarker()
	return nil
}

// acquireCommandBuffer hands the encoder the frame's command buffer. The
// encoder re-emits its state when the buffer is new.
func (d *Device) acquireCommandBuffer() (any, bool, error) {
	d.ringMu.Lock()
	defer d.ringMu.Unlock()
	return d.ring.CommandBuffer()
}

// Flush submits everything recorded so far without ending the frame. An open
// render pass is closed and resumed on the next draw.
func (d *Device) Flush() error {
	d.encoder.suspendPass()
	if err := d.encoder.flushBarriers(); err != nil {
		return err
	}

	d.ringMu.Lock()
	var err error
	if d.ring.HasCommandBuffer() {
		_, err = d.ring.Submit(false)
	}
	d.ringMu.Unlock()
	d.encoder.detach()
	return err
}

// WaitIdle blocks until the GPU finished everything, then flushes the dead
// objects and runs every deferred deletion.
func (d *Device) WaitIdle() error {
	if err := d.Flush(); err != nil {
		return err
	}

	d.mu.Lock()
	d.destroyDeadObjectsLocked()
	d.mu.Unlock()

	d.ringMu.Lock()
	defer d.ringMu.Unlock()
	if err := d.ring.WaitIdle(); err != nil {
		err = fmt.Errorf("failed to wait for the device: %w", err)
		core.LogError("%s", err)
		return err
	}
	return nil
}

/**
 * @brief A snapshot of what the device currently owns.
 */
type DeviceStats struct {
	Buffers            int
	Textures           int
	Views              int
	Shaders            int
	States             int
	VertexDeclarations int
	Queries            int
	SwapChains         int

	/** @brief Estimated memory of live buffers and textures in bytes. */
	BufferMemory  uint64
	TextureMemory uint64

	PendingDeadObjects int
	DeadObjectFlushes  uint64
	DestroyedObjects   uint64

	BarrierFlushes uint64
	Barriers       uint64

	Frame frame.Stats
	Cache cache.Stats

	FPS       float64
	FrameTime float64
}

func (d *Device) Stats() DeviceStats {
	d.mu.Lock()
	s := DeviceStats{
		Buffers:  d.buffers.Count(),
		Textures: d.textures.Count(),
		Views: d.textureViews.Count() + d.bufferViews.Count() + d.renderTargets.Count() +
			d.textureUAVs.Count() + d.bufferUAVs.Count(),
		Shaders: d.shaders.Count(),
		States: d.blendStates.table.Count() + d.depthStencilStates.table.Count() +
			d.rasterizerStates.table.Count() + d.samplerStates.table.Count(),
		VertexDeclarations: d.vertexDeclarations.table.Count(),
		Queries:            d.queries.Count(),
		SwapChains:         d.swapChains.Count(),
		PendingDeadObjects: len(d.deadObjects),
		DeadObjectFlushes:  d.deadObjectFlushes,
		DestroyedObjects:   d.destroyedObjects,
	}
	d.buffers.Range(func(_ BufferHandle, b *Buffer) bool {
		s.BufferMemory += uint64(b.Description.TotalSize)
		return true
	})
	d.textures.Range(func(_ TextureHandle, t *Texture) bool {
		if t.ownsNative {
			s.TextureMemory += t.Description.MemorySize()
		}
		return true
	})
	d.mu.Unlock()

	d.ringMu.Lock()
	s.Frame = d.ring.Stats()
	d.ringMu.Unlock()

	s.Cache = d.cache.Stats()
	s.BarrierFlushes, s.Barriers = d.encoder.tracker.Stats()
	s.FPS = d.metrics.FPS()
	s.FrameTime = d.metrics.FrameTime()
	return s
}
