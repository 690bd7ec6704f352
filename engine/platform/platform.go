package platform

import (
	"runtime"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/spaghettifunk/anima-gal/engine/core"
)

func init() {
	// GLFW event handling must run on the main OS thread
	runtime.LockOSThread()
}

type ResizeEvent struct {
	Width  uint32
	Height uint32
}

/**
 * @brief The window a swap chain presents to.
 */
type Platform struct {
	Window *glfw.Window

	/** @brief Fired from PumpMessages when the framebuffer changes size. */
	OnResize core.Event[ResizeEvent]

	startTime float64
	started   bool
}

func New() *Platform {
	return &Platform{}
}

func (p *Platform) Startup(applicationName string, x uint32, y uint32, width uint32, height uint32) error {
	if err := glfw.Init(); err != nil {
		core.LogError("failed to initialize glfw: %s", err)
		return err
	}
	p.started = true

	if !glfw.VulkanSupported() {
		core.LogWarn("glfw reports no Vulkan loader")
	}

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Required for Vulkan.

	window, err := glfw.CreateWindow(int(width), int(height), applicationName, nil, nil)
	if err != nil {
		core.LogError("failed to create window: %s", err)
		glfw.Terminate()
		p.started = false
		return err
	}
	p.Window = window

	p.Window.SetKeyCallback(p.keyCallback)
	p.Window.SetFramebufferSizeCallback(p.framebufferSizeCallback)
	p.Window.SetPos(int(x), int(y))
	p.Window.Show()

	p.startTime = glfw.GetTime()
	return nil
}

// RequiredInstanceExtensions lists the extensions a Vulkan instance needs to
// present to the window.
func (p *Platform) RequiredInstanceExtensions() []string {
	if p.Window == nil {
		return nil
	}
	return p.Window.GetRequiredInstanceExtensions()
}

func (p *Platform) FramebufferSize() (uint32, uint32) {
	if p.Window == nil {
		return 0, 0
	}
	w, h := p.Window.GetFramebufferSize()
	return uint32(w), uint32(h)
}

func (p *Platform) ShouldClose() bool {
	return p.Window == nil || p.Window.ShouldClose()
}

func (p *Platform) PumpMessages() {
	glfw.PollEvents()
}

// WaitMessages blocks until an event arrives or the timeout in seconds
// elapses.
func (p *Platform) WaitMessages(timeout float64) {
	glfw.WaitEventsTimeout(timeout)
}

// AbsoluteTime returns the seconds since Startup.
func (p *Platform) AbsoluteTime() float64 {
	return glfw.GetTime() - p.startTime
}

func (p *Platform) Shutdown() error {
	if p.Window != nil {
		p.Window.Destroy()
		p.Window = nil
	}
	if p.started {
		glfw.Terminate()
		p.started = false
	}
	p.OnResize.Clear()
	return nil
}

func (p *Platform) keyCallback(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
	if key == glfw.KeyEscape && action == glfw.Press {
		w.SetShouldClose(true)
	}
}

func (p *Platform) framebufferSizeCallback(w *glfw.Window, width, height int) {
	p.OnResize.Fire(ResizeEvent{Width: uint32(width), Height: uint32(height)})
}
