package testbed

import (
	"encoding/binary"
	gomath "math"

	"github.com/spaghettifunk/anima-gal/engine"
	"github.com/spaghettifunk/anima-gal/engine/assets"
	"github.com/spaghettifunk/anima-gal/engine/core"
	"github.com/spaghettifunk/anima-gal/engine/math"
	"github.com/spaghettifunk/anima-gal/engine/renderer"
	"github.com/spaghettifunk/anima-gal/engine/renderer/metadata"
)

const (
	particleCount  = 1024
	particleStride = 16
	globalsSize    = 32
	vertexStride   = 24
)

type TestGame struct {
	*engine.Game
}

type gameState struct {
	engine *engine.Engine
	width  uint32
	height uint32
	time   float64

	triangleShader renderer.ShaderHandle
	particleShader renderer.ShaderHandle
	vertexDecl     renderer.VertexDeclarationHandle

	vertices    renderer.BufferHandle
	globals     renderer.BufferHandle
	particles   renderer.BufferHandle
	particleUAV renderer.BufferUnorderedAccessViewHandle

	reloadID core.EventID
}

func NewTestGame(app *engine.ApplicationConfig) *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: app,
			State:             &gameState{},
		},
	}
	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnRender = tg.Render
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown
	return tg
}

func (g *TestGame) state() *gameState {
	return g.State.(*gameState)
}

func (g *TestGame) Initialize(e *engine.Engine) error {
	core.LogInfo("initializing testbed...")
	s := g.state()
	s.engine = e
	d := e.Device()

	s.vertices = d.CreateVertexBuffer(vertexStride, 3, triangleVertices(), false)
	s.globals = d.CreateConstantBuffer(globalsSize)
	s.particles = d.CreateBuffer(&metadata.BufferCreationDescription{
		TotalSize:   particleCount * particleStride,
		StructSize:  particleStride,
		BufferFlags: metadata.BufferUsageStructuredBuffer | metadata.BufferUsageUnorderedAccess,
	}, nil)
	if !s.particles.IsInvalid() {
		s.particleUAV = d.CreateBufferUnorderedAccessView(s.particles, &metadata.BufferUnorderedAccessViewCreationDescription{
			NumElements: particleCount,
		})
	}

	if n, err := e.Shaders().PreloadAll(e.Jobs()); err != nil {
		core.LogWarn("preloaded %d shaders, some failed: %s", n, err)
	}

	// Missing shaders only disable the part of the frame that needs them.
	var err error
	if s.triangleShader, err = e.Shaders().Load("triangle"); err != nil {
		core.LogWarn("triangle shader unavailable, skipping the draw: %s", err)
	} else {
		s.vertexDecl = d.CreateVertexDeclaration(&metadata.VertexDeclarationCreationDescription{
			Attributes: []metadata.VertexAttribute{
				{Semantic: metadata.VertexAttributeSemanticPosition, Format: metadata.ResourceFormatRGFloat, Offset: 0},
				{Semantic: metadata.VertexAttributeSemanticColor0, Format: metadata.ResourceFormatRGBAFloat, Offset: 8},
			},
		}, s.triangleShader)
	}
	if s.particleShader, err = e.Shaders().Load("particles"); err != nil {
		core.LogWarn("particle shader unavailable, skipping the dispatch: %s", err)
	}

	s.reloadID = e.Shaders().OnReload.Register(func(ev assets.ShaderReloadEvent) {
		switch ev.Name {
		case "triangle":
			s.triangleShader = ev.New
		case "particles":
			s.particleShader = ev.New
		}
	})
	return nil
}

func (g *TestGame) Update(deltaTime float64) error {
	g.state().time += deltaTime
	return nil
}

func (g *TestGame) Render(d *renderer.Device, backBuffer renderer.TextureHandle, deltaTime float64) error {
	s := g.state()

	if !s.particleShader.IsInvalid() && !s.particleUAV.IsInvalid() {
		enc, err := d.BeginPass("particles")
		if err != nil {
			return err
		}
		if err := simulate(enc, s); err != nil {
			d.EndPass(enc)
			return err
		}
		if err := d.EndPass(enc); err != nil {
			return err
		}
	}

	if backBuffer.IsInvalid() {
		return nil
	}
	enc, err := d.BeginPass("scene")
	if err != nil {
		return err
	}
	if err := drawScene(d, enc, s, backBuffer); err != nil {
		d.EndPass(enc)
		return err
	}
	return d.EndPass(enc)
}

func simulate(enc *renderer.CommandEncoder, s *gameState) error {
	if err := enc.BeginCompute(); err != nil {
		return err
	}
	enc.SetShader(s.particleShader)
	enc.SetBufferUnorderedAccessView(0, s.particleUAV)
	if err := enc.Dispatch(math.AlignUp[uint32](particleCount, 64)/64, 1, 1); err != nil {
		return err
	}
	return enc.EndCompute()
}

func drawScene(d *renderer.Device, enc *renderer.CommandEncoder, s *gameState, backBuffer renderer.TextureHandle) error {
	pulse := float32(0.5 + 0.5*gomath.Sin(s.time))
	if err := enc.UpdateBuffer(s.globals, 0, globalsData(pulse, float32(s.time)), metadata.UpdateModeDiscard); err != nil {
		return err
	}

	setup := renderer.RenderingSetup{
		ColorTargets:   []renderer.RenderTargetViewHandle{d.GetDefaultRenderTargetView(backBuffer)},
		ClearColor:     [4]float32{0.05, 0.05, 0.08, 1},
		ColorClearMask: 1,
	}
	if err := enc.BeginRendering(&setup); err != nil {
		return err
	}
	if !s.triangleShader.IsInvalid() {
		enc.SetViewport(math.Viewport{Width: float32(s.width), Height: float32(s.height), MaxDepth: 1})
		enc.SetScissor(math.Rectangle{Width: s.width, Height: s.height})
		enc.SetShader(s.triangleShader)
		enc.SetVertexDeclaration(s.vertexDecl)
		enc.SetPrimitiveTopology(metadata.PrimitiveTopologyTriangles)
		enc.SetVertexBuffer(0, s.vertices, 0)
		enc.SetConstantBuffer(0, s.globals)
		if err := enc.Draw(3, 0); err != nil {
			return err
		}
	}
	return enc.EndRendering()
}

func (g *TestGame) OnResize(width uint32, height uint32) error {
	s := g.state()
	s.width, s.height = width, height
	return nil
}

func (g *TestGame) Shutdown() error {
	s := g.state()
	if s.engine == nil {
		return nil
	}
	d := s.engine.Device()
	s.engine.Shaders().OnReload.Unregister(s.reloadID)
	if !s.vertexDecl.IsInvalid() {
		d.DestroyVertexDeclaration(s.vertexDecl)
	}
	if !s.particleUAV.IsInvalid() {
		d.DestroyBufferUnorderedAccessView(s.particleUAV)
	}
	for _, b := range []renderer.BufferHandle{s.vertices, s.globals, s.particles} {
		if !b.IsInvalid() {
			d.DestroyBuffer(b)
		}
	}
	return nil
}

func putFloats(buf []byte, values ...float32) {
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*4:], gomath.Float32bits(v))
	}
}

func triangleVertices() []byte {
	data := make([]byte, vertexStride*3)
	putFloats(data[0:], 0, -0.5, 1, 0, 0, 1)
	putFloats(data[vertexStride:], 0.5, 0.5, 0, 1, 0, 1)
	putFloats(data[2*vertexStride:], -0.5, 0.5, 0, 0, 1, 1)
	return data
}

func globalsData(pulse, time float32) []byte {
	data := make([]byte, globalsSize)
	putFloats(data, pulse, pulse, pulse, 1, time)
	return data
}
