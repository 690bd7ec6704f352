package engine

import (
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/spaghettifunk/anima-gal/engine/assets"
	"github.com/spaghettifunk/anima-gal/engine/config"
	"github.com/spaghettifunk/anima-gal/engine/core"
	"github.com/spaghettifunk/anima-gal/engine/platform"
	"github.com/spaghettifunk/anima-gal/engine/renderer"
	"github.com/spaghettifunk/anima-gal/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-gal/engine/renderer/null"
	"github.com/spaghettifunk/anima-gal/engine/renderer/vulkan"
	"github.com/spaghettifunk/anima-gal/engine/systems"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
	// Engine released everything
	EngineStageShutdown
)

/**
 * @brief A snapshot for status displays. Safe to take from any goroutine.
 */
type Stats struct {
	Frame   uint64
	Reloads uint64
	Device  renderer.DeviceStats
}

/**
 * @brief Owns the window, the device and the shader library and drives one
 * frame per loop iteration.
 */
type Engine struct {
	currentStage Stage
	gameInstance *Game
	config       *config.DeviceConfig

	isRunning   atomic.Bool
	isSuspended bool

	platform  *platform.Platform
	device    *renderer.Device
	swapChain renderer.SwapChainHandle
	shaders   *assets.ShaderLibrary
	jobs      *systems.JobSystem

	width    uint32
	height   uint32
	clock    *core.Clock
	lastTime float64

	frame   atomic.Uint64
	reloads atomic.Uint64
	ready   atomic.Bool
}

func New(g *Game, cfg *config.DeviceConfig) (*Engine, error) {
	if g == nil || g.ApplicationConfig == nil {
		return nil, errors.New("engine needs a game with an application config")
	}
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		core.LogError("%s", err)
		return nil, err
	}
	if g.ApplicationConfig.Name == "" {
		g.ApplicationConfig.Name = cfg.ApplicationName
	}
	return &Engine{
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		config:       cfg,
		clock:        core.NewClock(),
		width:        cfg.Swapchain.Width,
		height:       cfg.Swapchain.Height,
	}, nil
}

func (e *Engine) Initialize() error {
	if e.currentStage != EngineStageUninitialized {
		return fmt.Errorf("engine already initialized: %w", core.ErrNestedBracket)
	}
	e.currentStage = EngineStageInitializing
	app := e.gameInstance.ApplicationConfig

	windowed := !app.Headless && e.config.Backend == config.BackendVulkan
	if windowed {
		e.platform = platform.New()
		if err := e.platform.Startup(app.Name, app.StartPosX, app.StartPosY, e.width, e.height); err != nil {
			return err
		}
		e.platform.OnResize.Register(e.onResized)
	}

	jobs, err := systems.NewJobSystem(runtime.NumCPU(), 0)
	if err != nil {
		return err
	}
	e.jobs = jobs

	options, err := e.deviceOptions()
	if err != nil {
		return err
	}
	if e.device, err = renderer.NewDevice(options); err != nil {
		return err
	}

	if !app.Headless {
		if err := e.createSwapChain(); err != nil {
			return err
		}
	}

	if e.shaders, err = assets.NewShaderLibrary(e.config.Shaders, e.device); err != nil {
		core.LogError("failed to create the shader library: %s", err)
		return err
	}
	e.shaders.OnReload.Register(func(ev assets.ShaderReloadEvent) {
		e.reloads.Add(1)
	})

	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(e); err != nil {
			return err
		}
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(e.width, e.height); err != nil {
			return err
		}
	}

	e.currentStage = EngineStageInitialized
	e.ready.Store(true)
	core.LogInfo("engine initialized with the %s backend", e.device.Backend().Name())
	return nil
}

func (e *Engine) deviceOptions() (renderer.DeviceOptions, error) {
	options := renderer.DeviceOptions{Config: e.config}
	switch e.config.Backend {
	case config.BackendNull:
		options.Backend = null.New(null.Options{})
		options.SwapChainFactory = func(desc *metadata.SwapChainCreationDescription) (renderer.SwapChainPlatform, error) {
			return null.NewSwapChain(desc)
		}
	case config.BackendVulkan:
		var extensions []string
		if e.platform != nil {
			extensions = e.platform.RequiredInstanceExtensions()
		}
		b, err := vulkan.New(vulkan.Options{
			ApplicationName:    e.gameInstance.ApplicationConfig.Name,
			Debug:              e.config.Debug,
			InstanceExtensions: extensions,
		})
		if err != nil {
			return options, err
		}
		options.Backend = b
		if e.platform != nil {
			options.SwapChainFactory = vulkan.NewSwapChainFactory(b)
		}
	default:
		return options, fmt.Errorf("unknown backend `%s`: %w", e.config.Backend, core.ErrNotSupported)
	}
	return options, nil
}

func (e *Engine) createSwapChain() error {
	desc := &metadata.SwapChainCreationDescription{
		Name:               "main",
		Width:              e.width,
		Height:             e.height,
		SampleCount:        metadata.MSAASampleCountNone,
		BackBufferFormat:   metadata.ResourceFormatBGRAUByteNormalized,
		InitialPresentMode: metadata.PresentModeImmediate,
	}
	if e.config.Swapchain.VSync {
		desc.InitialPresentMode = metadata.PresentModeVSync
	}
	if e.platform != nil {
		desc.Window = e.platform.Window
	}
	e.swapChain = e.device.CreateSwapChain(desc)
	if e.swapChain.IsInvalid() {
		return fmt.Errorf("failed to create the swap chain: %w", core.ErrValidation)
	}
	return nil
}

func (e *Engine) Device() *renderer.Device {
	return e.device
}

func (e *Engine) Shaders() *assets.ShaderLibrary {
	return e.shaders
}

// Jobs is the worker pool shared by loaders. It lives until Shutdown.
func (e *Engine) Jobs() *systems.JobSystem {
	return e.jobs
}

func (e *Engine) SwapChain() renderer.SwapChainHandle {
	return e.swapChain
}

func (e *Engine) Config() *config.DeviceConfig {
	return e.config
}

func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	return e.width, e.height
}

func (e *Engine) Stats() Stats {
	s := Stats{Frame: e.frame.Load(), Reloads: e.reloads.Load()}
	if e.ready.Load() {
		s.Device = e.device.Stats()
	}
	return s
}

// Stop asks the loop to exit after the current frame.
func (e *Engine) Stop() {
	e.isRunning.Store(false)
}

func (e *Engine) Run() error {
	if e.currentStage != EngineStageInitialized {
		return fmt.Errorf("engine is not initialized: %w", core.ErrUnbalancedBracket)
	}
	e.currentStage = EngineStageRunning
	e.isRunning.Store(true)

	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	maxFrames := e.gameInstance.ApplicationConfig.MaxFrames
	for e.isRunning.Load() {
		if e.platform != nil {
			e.platform.PumpMessages()
			if e.platform.ShouldClose() {
				break
			}
		}
		if e.isSuspended {
			e.platform.WaitMessages(0.1)
			continue
		}

		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - e.lastTime
		e.lastTime = currentTime

		if e.gameInstance.FnUpdate != nil {
			if err := e.gameInstance.FnUpdate(delta); err != nil {
				core.LogError("game update failed, shutting down: %s", err)
				return err
			}
		}
		if err := e.drawFrame(delta); err != nil {
			core.LogError("frame %d failed, shutting down: %s", e.frame.Load(), err)
			return err
		}

		if n := e.frame.Add(1); maxFrames > 0 && n >= maxFrames {
			break
		}
	}
	e.isRunning.Store(false)
	return nil
}

// drawFrame runs one BeginFrame/EndFrame bracket. A back buffer that cannot
// be acquired yet skips rendering without failing the loop.
func (e *Engine) drawFrame(delta float64) error {
	if n := e.shaders.ApplyPendingReloads(); n > 0 {
		core.LogDebug("%d shaders reloaded before frame %d", n, e.frame.Load())
	}

	if err := e.device.BeginFrame(e.frame.Load()); err != nil {
		if errors.Is(err, core.ErrFenceTimeout) {
			return nil
		}
		return err
	}

	renderErr := e.renderPipeline(delta)
	if err := e.device.EndFrame(); err != nil {
		return err
	}
	if renderErr != nil && !errors.Is(renderErr, core.ErrSwapchainBooting) && !errors.Is(renderErr, core.ErrFenceTimeout) {
		return renderErr
	}
	return nil
}

func (e *Engine) renderPipeline(delta float64) error {
	if err := e.device.BeginPipeline("main", e.swapChain); err != nil {
		// The bracket is open even when the acquire failed.
		_ = e.device.EndPipeline(renderer.SwapChainHandle{})
		return err
	}
	var backBuffer renderer.TextureHandle
	if !e.swapChain.IsInvalid() {
		backBuffer = e.device.GetBackBufferTexture(e.swapChain)
	}
	var renderErr error
	if e.gameInstance.FnRender != nil {
		renderErr = e.gameInstance.FnRender(e.device, backBuffer, delta)
	}
	if err := e.device.EndPipeline(e.swapChain); err != nil {
		return err
	}
	return renderErr
}

func (e *Engine) Shutdown() error {
	if e.currentStage == EngineStageShutdown || e.currentStage == EngineStageShuttingDown {
		return nil
	}
	e.currentStage = EngineStageShuttingDown
	e.isRunning.Store(false)

	var errs []error
	if e.device != nil {
		if err := e.device.WaitIdle(); err != nil {
			errs = append(errs, err)
		}
	}
	if e.gameInstance.FnShutdown != nil {
		if err := e.gameInstance.FnShutdown(); err != nil {
			errs = append(errs, err)
		}
	}
	if e.shaders != nil {
		if err := e.shaders.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	e.ready.Store(false)
	if e.device != nil {
		if !e.swapChain.IsInvalid() {
			e.device.DestroySwapChain(e.swapChain)
			e.swapChain = renderer.SwapChainHandle{}
		}
		if err := e.device.Shutdown(); err != nil {
			errs = append(errs, err)
		}
	}
	if e.jobs != nil {
		if err := e.jobs.Shutdown(); err != nil {
			errs = append(errs, err)
		}
	}
	if e.platform != nil {
		if err := e.platform.Shutdown(); err != nil {
			errs = append(errs, err)
		}
	}
	e.currentStage = EngineStageShutdown
	return errors.Join(errs...)
}

func (e *Engine) onResized(ev platform.ResizeEvent) {
	if ev.Width == e.width && ev.Height == e.height {
		return
	}
	e.width, e.height = ev.Width, ev.Height
	core.LogDebug("Window resize: %d, %d", ev.Width, ev.Height)

	if ev.Width == 0 || ev.Height == 0 {
		core.LogInfo("Window minimized, suspending application.")
		e.isSuspended = true
		return
	}
	if e.isSuspended {
		core.LogInfo("Window restored, resuming application.")
		e.isSuspended = false
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(ev.Width, ev.Height); err != nil {
			core.LogError("%s", err)
		}
	}
}
