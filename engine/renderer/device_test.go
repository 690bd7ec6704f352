package renderer_test

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/spaghettifunk/anima-gal/engine/config"
	"github.com/spaghettifunk/anima-gal/engine/core"
	"github.com/spaghettifunk/anima-gal/engine/renderer"
	"github.com/spaghettifunk/anima-gal/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-gal/engine/renderer/null"
)

type testDevice struct {
	*renderer.Device
	backend    *null.Backend
	swapChains []*null.SwapChain
}

func newTestDevice(t *testing.T, options null.Options) *testDevice {
	t.Helper()
	cfg := config.Default()
	cfg.Backend = config.BackendNull
	cfg.LogLevel = "debug"
	cfg.FenceTimeoutMS = 20

	td := &testDevice{backend: null.New(options)}
	d, err := renderer.NewDevice(renderer.DeviceOptions{
		Config:  cfg,
		Backend: td.backend,
		SwapChainFactory: func(desc *metadata.SwapChainCreationDescription) (renderer.SwapChainPlatform, error) {
			sc, err := null.NewSwapChain(desc)
			if err != nil {
				return nil, err
			}
			td.swapChains = append(td.swapChains, sc)
			return sc, nil
		},
	})
	if err != nil {
		t.Fatalf("NewDevice() error = %v", err)
	}
	td.Device = d
	t.Cleanup(func() { d.Shutdown() })
	return td
}

// captureLogs redirects the logger into a buffer with one logfmt line per
// entry.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	core.SetLogOutput(&buf)
	core.SetLogFormatter(log.LogfmtFormatter)
	t.Cleanup(func() {
		core.SetLogOutput(os.Stderr)
		core.SetLogFormatter(log.TextFormatter)
	})
	return &buf
}

func countLevel(buf *bytes.Buffer, level string) int {
	return strings.Count(buf.String(), "level="+level)
}

func renderTargetDescription(width, height uint32) metadata.TextureCreationDescription {
	var desc metadata.TextureCreationDescription
	desc.SetAsRenderTarget(width, height, metadata.ResourceFormatRGBAUByteNormalized, metadata.MSAASampleCountNone)
	return desc
}

func TestBlendStateIsShared(t *testing.T) {
	d := newTestDevice(t, null.Options{})
	desc := metadata.DefaultBlendStateCreationDescription()
	desc.AlphaToCoverage = true

	h1 := d.CreateBlendState(&desc)
	h2 := d.CreateBlendState(&desc)
	if h1.IsInvalid() || h1 != h2 {
		t.Fatalf("CreateBlendState() = %s, %s; want the same valid handle", h1, h2)
	}
	if got := d.backend.Live(metadata.ObjectTypeBlendState); got != 1 {
		t.Fatalf("backend blend states = %d, want 1", got)
	}
	s, _ := d.GetBlendState(h1)
	if s.RefCount() != 2 {
		t.Fatalf("RefCount() = %d, want 2", s.RefCount())
	}

	d.DestroyBlendState(h1)
	if _, ok := d.GetBlendState(h1); !ok {
		t.Fatalf("blend state vanished while still referenced")
	}
	d.DestroyBlendState(h2)
	if _, ok := d.GetBlendState(h1); !ok {
		t.Fatalf("blend state vanished before the dead objects were flushed")
	}

	if err := d.WaitIdle(); err != nil {
		t.Fatalf("WaitIdle() error = %v", err)
	}
	if _, ok := d.GetBlendState(h1); ok {
		t.Fatalf("blend state still resolves after the flush")
	}
	if got := d.backend.Destroyed(metadata.ObjectTypeBlendState); got != 1 {
		t.Fatalf("backend blend state teardowns = %d, want 1", got)
	}
}

func TestDistinctDescriptionsAreNotShared(t *testing.T) {
	d := newTestDevice(t, null.Options{})
	a := metadata.DefaultRasterizerStateCreationDescription()
	b := a
	b.ScissorTest = !a.ScissorTest

	ha := d.CreateRasterizerState(&a)
	hb := d.CreateRasterizerState(&b)
	if ha == hb {
		t.Fatalf("different descriptions share %s", ha)
	}
	d.DestroyRasterizerState(ha)
	d.DestroyRasterizerState(hb)
}

func TestRevivedStateSurvivesTheFlush(t *testing.T) {
	d := newTestDevice(t, null.Options{})
	desc := metadata.DefaultDepthStencilStateCreationDescription()

	h := d.CreateDepthStencilState(&desc)
	d.DestroyDepthStencilState(h)
	revived := d.CreateDepthStencilState(&desc)
	if revived != h {
		t.Fatalf("CreateDepthStencilState() after destroy = %s, want revived %s", revived, h)
	}
	s, _ := d.GetDepthStencilState(h)
	if s.RefCount() != 1 {
		t.Fatalf("RefCount() = %d, want 1", s.RefCount())
	}

	if err := d.WaitIdle(); err != nil {
		t.Fatalf("WaitIdle() error = %v", err)
	}
	if _, ok := d.GetDepthStencilState(h); !ok {
		t.Fatalf("revived state was destroyed by the flush")
	}
	if got := d.backend.Destroyed(metadata.ObjectTypeDepthStencilState); got != 0 {
		t.Fatalf("backend depth stencil teardowns = %d, want 0", got)
	}
	d.DestroyDepthStencilState(h)
}

func TestDoubleFreeWarnsOnce(t *testing.T) {
	d := newTestDevice(t, null.Options{})
	logs := captureLogs(t)
	desc := metadata.DefaultSamplerStateCreationDescription()
	desc.MaxAnisotropy = 8

	h := d.CreateSamplerState(&desc)
	d.DestroySamplerState(h)
	d.DestroySamplerState(h)

	if got := countLevel(logs, "warn"); got != 1 {
		t.Fatalf("warnings = %d, want 1:\n%s", got, logs)
	}
	if !strings.Contains(logs.String(), "double free?") {
		t.Fatalf("warning does not mention the double free:\n%s", logs)
	}
	if err := d.WaitIdle(); err != nil {
		t.Fatalf("WaitIdle() error = %v", err)
	}
	if got := d.backend.Destroyed(metadata.ObjectTypeSamplerState); got != 1 {
		t.Fatalf("backend sampler teardowns = %d, want 1", got)
	}
}

func TestDeadObjectQueuedTwiceIsDestroyedOnce(t *testing.T) {
	d := newTestDevice(t, null.Options{})
	desc := metadata.DefaultBlendStateCreationDescription()
	desc.IndependentBlend = true

	h := d.CreateBlendState(&desc)
	d.DestroyBlendState(h)
	d.CreateBlendState(&desc)
	d.DestroyBlendState(h)

	if err := d.WaitIdle(); err != nil {
		t.Fatalf("WaitIdle() error = %v", err)
	}
	if got := d.backend.Destroyed(metadata.ObjectTypeBlendState); got != 1 {
		t.Fatalf("backend blend state teardowns = %d, want 1", got)
	}
}

func TestStaleHandleDoesNotResolve(t *testing.T) {
	d := newTestDevice(t, null.Options{})

	h := d.CreateConstantBuffer(64)
	b, ok := d.GetBuffer(h)
	if !ok {
		t.Fatalf("GetBuffer(%s) not found", h)
	}
	if b.Description.TotalSize != 256 {
		t.Fatalf("constant buffer size = %d, want it aligned to 256", b.Description.TotalSize)
	}

	d.DestroyBuffer(h)
	if err := d.WaitIdle(); err != nil {
		t.Fatalf("WaitIdle() error = %v", err)
	}
	if _, ok := d.GetBuffer(h); ok {
		t.Fatalf("GetBuffer() resolved a destroyed handle")
	}

	reused := d.CreateConstantBuffer(64)
	if reused == h {
		t.Fatalf("slot reuse produced the stale handle %s again", h)
	}
	if _, ok := d.GetBuffer(h); ok {
		t.Fatalf("stale handle resolves after its slot was reused")
	}
	d.DestroyBuffer(reused)
}

func TestTextureViewsAreDestroyedWithTheTexture(t *testing.T) {
	d := newTestDevice(t, null.Options{})
	desc := renderTargetDescription(64, 64)
	desc.MipLevelCount = 2
	desc.AllowUAV = true

	tex := d.CreateTexture(&desc, nil)
	if tex.IsInvalid() {
		t.Fatalf("CreateTexture() returned an invalid handle")
	}
	srv := metadata.DefaultTextureResourceViewCreationDescription()
	srv.MostDetailedMipLevel = 1
	extra := d.CreateTextureResourceView(tex, &srv)
	uavDesc := metadata.DefaultTextureUnorderedAccessViewCreationDescription()
	uav := d.CreateTextureUnorderedAccessView(tex, &uavDesc)
	defaultView := d.GetDefaultResourceView(tex)
	defaultTarget := d.GetDefaultRenderTargetView(tex)
	if extra.IsInvalid() || uav.IsInvalid() || defaultView.IsInvalid() || defaultTarget.IsInvalid() {
		t.Fatalf("view creation failed: %s %s %s %s", extra, uav, defaultView, defaultTarget)
	}

	before := d.backend.Destroyed(metadata.ObjectTypeTextureResourceView)
	d.DestroyTexture(tex)
	if err := d.WaitIdle(); err != nil {
		t.Fatalf("WaitIdle() error = %v", err)
	}

	tests := []struct {
		kind metadata.ObjectType
		want int
	}{
		{metadata.ObjectTypeTextureResourceView, before + 2},
		{metadata.ObjectTypeRenderTargetView, 1},
		{metadata.ObjectTypeTextureUnorderedAccessView, 1},
		{metadata.ObjectTypeTexture, 1},
	}
	for _, tt := range tests {
		if got := d.backend.Destroyed(tt.kind); got != tt.want {
			t.Fatalf("teardowns of %s = %d, want %d", tt.kind, got, tt.want)
		}
	}
	if _, ok := d.GetTextureResourceView(extra); ok {
		t.Fatalf("resource view outlived its texture")
	}
	if _, ok := d.GetRenderTargetView(defaultTarget); ok {
		t.Fatalf("render target view outlived its texture")
	}
	if _, ok := d.GetTextureUnorderedAccessView(uav); ok {
		t.Fatalf("unordered access view outlived its texture")
	}
}

func TestViewsAreDeduplicatedPerResource(t *testing.T) {
	d := newTestDevice(t, null.Options{})
	desc := renderTargetDescription(32, 32)
	a := d.CreateTexture(&desc, nil)
	b := d.CreateTexture(&desc, nil)

	view := metadata.DefaultTextureResourceViewCreationDescription()
	if d.CreateTextureResourceView(a, &view) != d.GetDefaultResourceView(a) {
		t.Fatalf("same description on the same texture created a second view")
	}
	if d.CreateTextureResourceView(b, &view) == d.GetDefaultResourceView(a) {
		t.Fatalf("views are shared across textures")
	}
	d.DestroyTexture(a)
	d.DestroyTexture(b)
}

func TestStructuredBufferHasDefaultView(t *testing.T) {
	d := newTestDevice(t, null.Options{})
	desc := metadata.BufferCreationDescription{
		TotalSize:      256,
		StructSize:     16,
		BufferFlags:    metadata.BufferUsageShaderResource | metadata.BufferUsageStructuredBuffer,
		ResourceAccess: metadata.DefaultResourceAccess(),
	}

	h := d.CreateBuffer(&desc, make([]byte, 256))
	if h.IsInvalid() {
		t.Fatalf("CreateBuffer() returned an invalid handle")
	}
	view := d.GetDefaultBufferResourceView(h)
	if view.IsInvalid() {
		t.Fatalf("structured buffer has no default view")
	}
	b, _ := d.GetBuffer(h)
	if b.DefaultView != view {
		t.Fatalf("DefaultView = %s, GetDefaultBufferResourceView() = %s", b.DefaultView, view)
	}
	v, _ := d.GetBufferResourceView(view)
	if v.Description.NumElements != 16 || v.Description.RawView {
		t.Fatalf("default view covers %d elements (raw %t), want 16 structured", v.Description.NumElements, v.Description.RawView)
	}
	d.DestroyBuffer(h)
}

func TestStructuredBufferWithoutStructSize(t *testing.T) {
	d := newTestDevice(t, null.Options{})
	desc := metadata.BufferCreationDescription{
		TotalSize:      256,
		BufferFlags:    metadata.BufferUsageShaderResource | metadata.BufferUsageStructuredBuffer,
		ResourceAccess: metadata.DefaultResourceAccess(),
	}

	h := d.CreateBuffer(&desc, make([]byte, 256))
	if h.IsInvalid() {
		t.Fatalf("CreateBuffer() returned an invalid handle")
	}
	view := d.GetDefaultBufferResourceView(h)
	if view.IsInvalid() {
		t.Fatalf("structured buffer has no default view")
	}
	v, _ := d.GetBufferResourceView(view)
	if v.Description.NumElements != 256 {
		t.Fatalf("default view covers %d elements, want 256", v.Description.NumElements)
	}
	d.DestroyBuffer(h)
}

func TestVertexBufferSizeOverflow(t *testing.T) {
	d := newTestDevice(t, null.Options{})
	logs := captureLogs(t)
	before := d.Stats()

	if h := d.CreateVertexBuffer(1<<16, 1<<16, nil, true); !h.IsInvalid() {
		t.Fatalf("CreateVertexBuffer() = %s, want the invalid handle", h)
	}
	if h := d.CreateIndexBuffer(metadata.IndexTypeUInt, 1<<31, nil, true); !h.IsInvalid() {
		t.Fatalf("CreateIndexBuffer() = %s, want the invalid handle", h)
	}
	if got := countLevel(logs, "error"); got != 2 {
		t.Fatalf("errors = %d, want 2:\n%s", got, logs)
	}
	if after := d.Stats(); after.Buffers != before.Buffers {
		t.Fatalf("registry changed: %d buffers, was %d", after.Buffers, before.Buffers)
	}
}

func TestZeroWidthTextureIsRejected(t *testing.T) {
	d := newTestDevice(t, null.Options{})
	logs := captureLogs(t)
	before := d.Stats()

	desc := renderTargetDescription(0, 64)
	h := d.CreateTexture(&desc, nil)

	if !h.IsInvalid() {
		t.Fatalf("CreateTexture() = %s, want the invalid handle", h)
	}
	if got := countLevel(logs, "error"); got != 1 {
		t.Fatalf("errors = %d, want 1:\n%s", got, logs)
	}
	after := d.Stats()
	if after.Textures != before.Textures || after.Views != before.Views {
		t.Fatalf("registry changed: %d textures / %d views, was %d / %d",
			after.Textures, after.Views, before.Textures, before.Views)
	}
}

func TestCreationValidation(t *testing.T) {
	d := newTestDevice(t, null.Options{})
	captureLogs(t)

	msaa := renderTargetDescription(64, 64)
	msaa.SampleCount = metadata.MSAASampleCount4x
	msaa.AllowUAV = true
	msaaTexture := d.CreateTexture(&msaa, nil)
	defer d.DestroyTexture(msaaTexture)

	structured := d.CreateBuffer(&metadata.BufferCreationDescription{
		TotalSize:   64,
		StructSize:  16,
		BufferFlags: metadata.BufferUsageShaderResource | metadata.BufferUsageStructuredBuffer,
	}, nil)
	defer d.DestroyBuffer(structured)

	immutable := metadata.DefaultTextureCreationDescription()
	immutable.Width, immutable.Height = 4, 4
	immutable.Format = metadata.ResourceFormatRGBAUByteNormalized

	tests := []struct {
		name  string
		valid func() bool
	}{
		{"zero size buffer", func() bool {
			return !d.CreateBuffer(&metadata.BufferCreationDescription{BufferFlags: metadata.BufferUsageVertexBuffer}, nil).IsInvalid()
		}},
		{"immutable buffer without data", func() bool {
			return !d.CreateBuffer(&metadata.BufferCreationDescription{TotalSize: 16, ResourceAccess: metadata.DefaultResourceAccess()}, nil).IsInvalid()
		}},
		{"immutable texture without data", func() bool {
			return !d.CreateTexture(&immutable, nil).IsInvalid()
		}},
		{"unordered access view on msaa", func() bool {
			uav := metadata.DefaultTextureUnorderedAccessViewCreationDescription()
			return !d.CreateTextureUnorderedAccessView(msaaTexture, &uav).IsInvalid()
		}},
		{"raw view without byte address usage", func() bool {
			return !d.CreateBufferResourceView(structured, &metadata.BufferResourceViewCreationDescription{RawView: true}).IsInvalid()
		}},
		{"view of an invalid texture", func() bool {
			view := metadata.DefaultTextureResourceViewCreationDescription()
			return !d.CreateTextureResourceView(renderer.TextureHandle{}, &view).IsInvalid()
		}},
		{"view of an invalid buffer", func() bool {
			return !d.CreateBufferResourceView(renderer.BufferHandle{}, &metadata.BufferResourceViewCreationDescription{}).IsInvalid()
		}},
	}
	if msaaTexture.IsInvalid() || structured.IsInvalid() {
		t.Fatalf("fixture creation failed")
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.valid() {
				t.Fatalf("creation succeeded, want the invalid handle")
			}
		})
	}
}

func TestBackendFailureLeavesRegistryUnchanged(t *testing.T) {
	d := newTestDevice(t, null.Options{})
	captureLogs(t)
	desc := metadata.DefaultBlendStateCreationDescription()
	desc.AlphaToCoverage = true

	d.backend.FailNext(metadata.ObjectTypeBlendState, 1)
	if h := d.CreateBlendState(&desc); !h.IsInvalid() {
		t.Fatalf("CreateBlendState() = %s with a failing backend", h)
	}
	h := d.CreateBlendState(&desc)
	s, ok := d.GetBlendState(h)
	if !ok || s.RefCount() != 1 {
		t.Fatalf("CreateBlendState() after a failure did not create a fresh state")
	}
	d.DestroyBlendState(h)
}

func TestDeletionWaitsForTheFrameFence(t *testing.T) {
	d := newTestDevice(t, null.Options{ManualFences: true})
	captureLogs(t)

	if err := d.BeginFrame(0); err != nil {
		t.Fatalf("BeginFrame(0) error = %v", err)
	}
	h := d.CreateVertexBuffer(16, 4, make([]byte, 64), false)
	d.DestroyBuffer(h)
	if err := d.EndFrame(); err != nil {
		t.Fatalf("EndFrame() error = %v", err)
	}
	if _, ok := d.GetBuffer(h); ok {
		t.Fatalf("buffer still resolves after EndFrame flushed the dead objects")
	}
	before := d.backend.Destroyed(metadata.ObjectTypeBuffer)

	if err := d.BeginFrame(1); err != nil {
		t.Fatalf("BeginFrame(1) error = %v", err)
	}
	if err := d.EndFrame(); err != nil {
		t.Fatalf("EndFrame() error = %v", err)
	}

	// back on the slot of frame 0, whose fence has not signaled
	if err := d.BeginFrame(2); !errors.Is(err, core.ErrFenceTimeout) {
		t.Fatalf("BeginFrame(2) error = %v, want ErrFenceTimeout", err)
	}
	if got := d.backend.Destroyed(metadata.ObjectTypeBuffer); got != before {
		t.Fatalf("buffer teardowns = %d before the fence signaled, want %d", got, before)
	}

	d.backend.SignalFences()
	if err := d.BeginFrame(2); err != nil {
		t.Fatalf("BeginFrame(2) error = %v", err)
	}
	// the buffer and its staging copy
	if got := d.backend.Destroyed(metadata.ObjectTypeBuffer); got != before+2 {
		t.Fatalf("buffer teardowns = %d, want %d", got, before+2)
	}
	if err := d.EndFrame(); err != nil {
		t.Fatalf("EndFrame() error = %v", err)
	}
}

func TestBracketsDoNotNest(t *testing.T) {
	d := newTestDevice(t, null.Options{})
	captureLogs(t)

	if err := d.BeginFrame(0); err != nil {
		t.Fatalf("BeginFrame() error = %v", err)
	}
	if err := d.BeginFrame(0); !errors.Is(err, core.ErrNestedBracket) {
		t.Fatalf("nested BeginFrame() error = %v, want ErrNestedBracket", err)
	}
	if err := d.BeginPipeline("main", renderer.SwapChainHandle{}); err != nil {
		t.Fatalf("BeginPipeline() error = %v", err)
	}
	if err := d.BeginPipeline("nested", renderer.SwapChainHandle{}); !errors.Is(err, core.ErrNestedBracket) {
		t.Fatalf("nested BeginPipeline() error = %v, want ErrNestedBracket", err)
	}
	enc, err := d.BeginPass("pass")
	if err != nil {
		t.Fatalf("BeginPass() error = %v", err)
	}
	if _, err := d.BeginPass("nested"); !errors.Is(err, core.ErrNestedBracket) {
		t.Fatalf("nested BeginPass() error = %v, want ErrNestedBracket", err)
	}
	if err := d.EndPass(enc); err != nil {
		t.Fatalf("EndPass() error = %v", err)
	}
	if err := d.EndPass(enc); !errors.Is(err, core.ErrUnbalancedBracket) {
		t.Fatalf("unbalanced EndPass() error = %v, want ErrUnbalancedBracket", err)
	}
	if err := d.EndPipeline(renderer.SwapChainHandle{}); err != nil {
		t.Fatalf("EndPipeline() error = %v", err)
	}
	if err := d.EndFrame(); err != nil {
		t.Fatalf("EndFrame() error = %v", err)
	}
	if err := d.EndFrame(); !errors.Is(err, core.ErrUnbalancedBracket) {
		t.Fatalf("unbalanced EndFrame() error = %v, want ErrUnbalancedBracket", err)
	}
}

func TestErrorLogsKeepNamesVerbatim(t *testing.T) {
	d := newTestDevice(t, null.Options{})
	logs := captureLogs(t)

	if err := d.BeginFrame(0); err != nil {
		t.Fatalf("BeginFrame() error = %v", err)
	}
	if err := d.BeginPipeline("main", renderer.SwapChainHandle{}); err != nil {
		t.Fatalf("BeginPipeline() error = %v", err)
	}
	if err := d.BeginPipeline("bloom 50%s", renderer.SwapChainHandle{}); !errors.Is(err, core.ErrNestedBracket) {
		t.Fatalf("nested BeginPipeline() error = %v, want ErrNestedBracket", err)
	}
	if !strings.Contains(logs.String(), "bloom 50%s") || strings.Contains(logs.String(), "MISSING") {
		t.Fatalf("pipeline name was reformatted:\n%s", logs)
	}
	if err := d.EndPipeline(renderer.SwapChainHandle{}); err != nil {
		t.Fatalf("EndPipeline() error = %v", err)
	}
	if err := d.EndFrame(); err != nil {
		t.Fatalf("EndFrame() error = %v", err)
	}
}

func TestLifecycleEvents(t *testing.T) {
	d := newTestDevice(t, null.Options{})

	var got []metadata.DeviceEventType
	d.Events().Register(func(e renderer.DeviceEvent) {
		got = append(got, e.Type)
	})

	d.BeginFrame(7)
	d.BeginPipeline("main", renderer.SwapChainHandle{})
	d.EndPipeline(renderer.SwapChainHandle{})
	d.EndFrame()

	want := []metadata.DeviceEventType{
		metadata.DeviceEventBeforeBeginFrame,
		metadata.DeviceEventAfterBeginFrame,
		metadata.DeviceEventBeforeBeginPipeline,
		metadata.DeviceEventAfterBeginPipeline,
		metadata.DeviceEventBeforeEndPipeline,
		metadata.DeviceEventAfterEndPipeline,
		metadata.DeviceEventBeforeEndFrame,
		metadata.DeviceEventAfterEndFrame,
	}
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestSwapChainPresentsAcquiredBackBuffer(t *testing.T) {
	d := newTestDevice(t, null.Options{})

	sc := d.CreateSwapChain(&metadata.SwapChainCreationDescription{Width: 320, Height: 240})
	if sc.IsInvalid() {
		t.Fatalf("CreateSwapChain() returned an invalid handle")
	}
	platform := d.swapChains[0]
	if tex := d.GetBackBufferTexture(sc); !tex.IsInvalid() {
		t.Fatalf("back buffer %s available outside of a pipeline", tex)
	}

	for frame := uint64(0); frame < 3; frame++ {
		if err := d.BeginFrame(frame); err != nil {
			t.Fatalf("BeginFrame() error = %v", err)
		}
		if err := d.BeginPipeline("main", sc); err != nil {
			t.Fatalf("BeginPipeline() error = %v", err)
		}
		tex := d.GetBackBufferTexture(sc)
		back, ok := d.GetTexture(tex)
		if !ok || back.Description.Width != 320 || back.Description.Height != 240 {
			t.Fatalf("GetBackBufferTexture() = %s, want a live 320x240 texture", tex)
		}
		if d.GetDefaultRenderTargetView(tex).IsInvalid() {
			t.Fatalf("back buffer has no render target view")
		}
		if err := d.EndPipeline(sc); err != nil {
			t.Fatalf("EndPipeline() error = %v", err)
		}
		if err := d.EndFrame(); err != nil {
			t.Fatalf("EndFrame() error = %v", err)
		}
	}
	if platform.Presented() != 3 {
		t.Fatalf("Presented() = %d, want 3", platform.Presented())
	}

	if err := d.UpdateSwapChain(sc, metadata.PresentModeImmediate); err != nil {
		t.Fatalf("UpdateSwapChain() error = %v", err)
	}
	if platform.PresentMode() != metadata.PresentModeImmediate {
		t.Fatalf("PresentMode() = %s, want immediate", platform.PresentMode())
	}

	d.DestroySwapChain(sc)
	if err := d.WaitIdle(); err != nil {
		t.Fatalf("WaitIdle() error = %v", err)
	}
	if !platform.IsDestroyed() {
		t.Fatalf("swap chain platform was not destroyed")
	}
	if _, ok := d.GetSwapChain(sc); ok {
		t.Fatalf("swap chain still resolves after destroy and flush")
	}
}

func TestProxyTextureSharesParentNative(t *testing.T) {
	d := newTestDevice(t, null.Options{})
	desc := renderTargetDescription(16, 16)
	desc.ArraySize = 4

	parent := d.CreateTexture(&desc, nil)
	proxy := d.CreateProxyTexture(parent, 2)
	if proxy.IsInvalid() {
		t.Fatalf("CreateProxyTexture() returned an invalid handle")
	}
	p, _ := d.GetTexture(parent)
	x, _ := d.GetTexture(proxy)
	if x.Native != p.Native || x.Slice != 2 || x.Parent != parent {
		t.Fatalf("proxy = slice %d of %s, want slice 2 of %s sharing its native", x.Slice, x.Parent, parent)
	}
	if !d.CreateProxyTexture(parent, 4).IsInvalid() {
		t.Fatalf("CreateProxyTexture() accepted an out of range slice")
	}

	d.DestroyTexture(parent)
	if err := d.WaitIdle(); err != nil {
		t.Fatalf("WaitIdle() error = %v", err)
	}
	if _, ok := d.GetTexture(proxy); ok {
		t.Fatalf("proxy outlived its parent")
	}
	if got := d.backend.Destroyed(metadata.ObjectTypeTexture); got != 1 {
		t.Fatalf("texture teardowns = %d, want 1 for the shared native", got)
	}
}

func TestSharedTextureRoundTrip(t *testing.T) {
	d := newTestDevice(t, null.Options{})
	desc := renderTargetDescription(16, 16)
	desc.Type = metadata.TextureType2DShared

	h, shared := d.CreateSharedTexture(&desc)
	if h.IsInvalid() || !shared.IsValid() {
		t.Fatalf("CreateSharedTexture() = %s, %+v", h, shared)
	}
	opened := d.OpenSharedTexture(&desc, shared)
	if opened.IsInvalid() {
		t.Fatalf("OpenSharedTexture() returned an invalid handle")
	}
	d.DestroySharedTexture(opened)
	d.DestroySharedTexture(h)
}

func TestShutdownReportsLeaks(t *testing.T) {
	d := newTestDevice(t, null.Options{})
	logs := captureLogs(t)

	d.CreateConstantBuffer(16)
	if err := d.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if !strings.Contains(logs.String(), "buffers leaked at shutdown") {
		t.Fatalf("leak report missing:\n%s", logs)
	}
}
