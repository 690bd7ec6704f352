package engine

import (
	"github.com/spaghettifunk/anima-gal/engine/renderer"
)

type Game struct {
	ApplicationConfig *ApplicationConfig
	State             interface{}
	FnInitialize      Initialize
	FnUpdate          Update
	FnRender          Render
	FnOnResize        OnResize
	FnShutdown        Shutdown
}

type Initialize func(e *Engine) error
type Update func(deltaTime float64) error

// Render records the frame. It runs between BeginPipeline and EndPipeline;
// backBuffer is invalid when the engine is headless.
type Render func(device *renderer.Device, backBuffer renderer.TextureHandle, deltaTime float64) error
type OnResize func(width uint32, height uint32) error
type Shutdown func() error
