package renderer_test

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/spaghettifunk/anima-gal/engine/core"
	"github.com/spaghettifunk/anima-gal/engine/math"
	"github.com/spaghettifunk/anima-gal/engine/renderer"
	"github.com/spaghettifunk/anima-gal/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-gal/engine/renderer/null"
)

func graphicsShader(t *testing.T, d *testDevice, reflection metadata.ShaderReflection) renderer.ShaderHandle {
	t.Helper()
	desc := metadata.ShaderCreationDescription{Name: "test-graphics", Reflection: reflection}
	desc.ByteCodes[metadata.ShaderStageVertex] = []byte{0x03, 0x02, 0x23, 0x07}
	desc.ByteCodes[metadata.ShaderStagePixel] = []byte{0x03, 0x02, 0x23, 0x07}
	h := d.CreateShader(&desc)
	if h.IsInvalid() {
		t.Fatalf("CreateShader() returned an invalid handle")
	}
	return h
}

func computeShader(t *testing.T, d *testDevice, reflection metadata.ShaderReflection) renderer.ShaderHandle {
	t.Helper()
	desc := metadata.ShaderCreationDescription{Name: "test-compute", Reflection: reflection}
	desc.ByteCodes[metadata.ShaderStageCompute] = []byte{0x03, 0x02, 0x23, 0x07}
	h := d.CreateShader(&desc)
	if h.IsInvalid() {
		t.Fatalf("CreateShader() returned an invalid handle")
	}
	return h
}

// beginPass opens frame 0 and a pass. The frame is closed again on cleanup.
func beginPass(t *testing.T, d *testDevice) *renderer.CommandEncoder {
	t.Helper()
	if err := d.BeginFrame(0); err != nil {
		t.Fatalf("BeginFrame() error = %v", err)
	}
	enc, err := d.BeginPass("test")
	if err != nil {
		t.Fatalf("BeginPass() error = %v", err)
	}
	t.Cleanup(func() {
		d.EndPass(enc)
		d.EndFrame()
	})
	return enc
}

// beginRendering starts rendering into a fresh 64x64 color target and clears
// the recorded commands.
func beginRendering(t *testing.T, d *testDevice, setup renderer.RenderingSetup) *renderer.CommandEncoder {
	t.Helper()
	desc := renderTargetDescription(64, 64)
	target := d.CreateTexture(&desc, nil)
	if target.IsInvalid() {
		t.Fatalf("CreateTexture() returned an invalid handle")
	}
	setup.ColorTargets = []renderer.RenderTargetViewHandle{d.GetDefaultRenderTargetView(target)}

	enc := beginPass(t, d)
	if err := enc.BeginRendering(&setup); err != nil {
		t.Fatalf("BeginRendering() error = %v", err)
	}
	d.backend.ResetRecorded()
	return enc
}

func indexOf(kinds []null.CommandKind, kind null.CommandKind) int {
	for i, k := range kinds {
		if k == kind {
			return i
		}
	}
	return -1
}

func commandsOf(cmds []null.Command, kind null.CommandKind) []null.Command {
	var out []null.Command
	for _, c := range cmds {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

func TestFlushOrder(t *testing.T) {
	d := newTestDevice(t, null.Options{})
	shader := graphicsShader(t, d, metadata.ShaderReflection{
		Bindings: []metadata.ShaderResourceBinding{
			{Name: "globals", ResourceType: metadata.ShaderResourceTypeConstantBuffer},
		},
	})
	enc := beginRendering(t, d, renderer.RenderingSetup{})
	enc.SetShader(shader)

	if err := enc.Draw(3, 0); err != nil {
		t.Fatalf("Draw() error = %v", err)
	}

	kinds := d.backend.RecordedKinds()
	order := []null.CommandKind{
		null.CommandBindPipeline,
		null.CommandSetViewport,
		null.CommandSetScissor,
		null.CommandBindDescriptorSet,
		null.CommandBeginRenderPass,
		null.CommandDraw,
	}
	last := -1
	for _, kind := range order {
		i := indexOf(kinds, kind)
		if i < 0 {
			t.Fatalf("%s missing from %v", kind, kinds)
		}
		if i < last {
			t.Fatalf("%s recorded out of order in %v", kind, kinds)
		}
		last = i
	}
}

// permutations returns every ordering of n indices.
func permutations(n int) [][]int {
	if n == 0 {
		return [][]int{{}}
	}
	var out [][]int
	for _, p := range permutations(n - 1) {
		for i := 0; i <= len(p); i++ {
			q := make([]int, 0, n)
			q = append(q, p[:i]...)
			q = append(q, n-1)
			q = append(q, p[i:]...)
			out = append(out, q)
		}
	}
	return out
}

type drawInputs struct {
	shader    renderer.ShaderHandle
	viewport  math.Viewport
	vertices  renderer.BufferHandle
	indices   renderer.BufferHandle
	constants renderer.BufferHandle
}

func newDrawInputs(t *testing.T, d *testDevice, size float32) drawInputs {
	t.Helper()
	in := drawInputs{
		shader: graphicsShader(t, d, metadata.ShaderReflection{
			Bindings: []metadata.ShaderResourceBinding{
				{Name: "globals", ResourceType: metadata.ShaderResourceTypeConstantBuffer},
			},
		}),
		viewport:  math.Viewport{Width: size, Height: size, MaxDepth: 1},
		vertices:  d.CreateVertexBuffer(16, 4, nil, true),
		indices:   d.CreateIndexBuffer(metadata.IndexTypeUShort, 6, nil, true),
		constants: d.CreateConstantBuffer(64),
	}
	if in.vertices.IsInvalid() || in.indices.IsInvalid() || in.constants.IsInvalid() {
		t.Fatalf("draw input creation failed")
	}
	return in
}

func (in drawInputs) setters(enc *renderer.CommandEncoder) []func() {
	return []func(){
		func() { enc.SetShader(in.shader) },
		func() { enc.SetViewport(in.viewport) },
		func() { enc.SetVertexBuffer(0, in.vertices, 0) },
		func() { enc.SetIndexBuffer(in.indices, 0) },
		func() { enc.SetConstantBuffer(0, in.constants) },
	}
}

func assertBeforeDraw(t *testing.T, kinds []null.CommandKind) {
	t.Helper()
	draw := indexOf(kinds, null.CommandDrawIndexed)
	pipeline := indexOf(kinds, null.CommandBindPipeline)
	descriptors := indexOf(kinds, null.CommandBindDescriptorSet)
	if draw < 0 || pipeline < 0 || descriptors < 0 {
		t.Fatalf("pipeline, descriptor or draw missing from %v", kinds)
	}
	if !(pipeline < descriptors && descriptors < draw) {
		t.Fatalf("want pipeline < descriptors < draw in %v", kinds)
	}
	for _, kind := range []null.CommandKind{null.CommandSetViewport, null.CommandBindVertexBuffers, null.CommandBindIndexBuffer} {
		if i := indexOf(kinds, kind); i < 0 || i > draw {
			t.Fatalf("%s not recorded before the draw in %v", kind, kinds)
		}
	}
}

func TestFlushOrderForEverySetterOrder(t *testing.T) {
	for _, order := range permutations(5) {
		order := order
		t.Run(fmt.Sprint(order), func(t *testing.T) {
			d := newTestDevice(t, null.Options{})
			first := newDrawInputs(t, d, 64)
			second := newDrawInputs(t, d, 32)
			enc := beginRendering(t, d, renderer.RenderingSetup{})

			for round, in := range []drawInputs{first, second} {
				setters := in.setters(enc)
				for _, i := range order {
					setters[i]()
				}
				if err := enc.DrawIndexed(6, 0, 0); err != nil {
					t.Fatalf("round %d: DrawIndexed() error = %v", round, err)
				}
				assertBeforeDraw(t, d.backend.RecordedKinds())
				d.backend.ResetRecorded()
			}
		})
	}
}

func TestStateIsOnlyEmittedWhenChanged(t *testing.T) {
	d := newTestDevice(t, null.Options{})
	shader := graphicsShader(t, d, metadata.ShaderReflection{})
	enc := beginRendering(t, d, renderer.RenderingSetup{})
	enc.SetShader(shader)

	if err := enc.Draw(3, 0); err != nil {
		t.Fatalf("Draw() error = %v", err)
	}
	d.backend.ResetRecorded()

	enc.SetShader(shader)
	if err := enc.Draw(3, 0); err != nil {
		t.Fatalf("second Draw() error = %v", err)
	}
	kinds := d.backend.RecordedKinds()
	if len(kinds) != 1 || kinds[0] != null.CommandDraw {
		t.Fatalf("second draw recorded %v, want only the draw", kinds)
	}
}

func TestVertexBuffersBindInRuns(t *testing.T) {
	d := newTestDevice(t, null.Options{})
	shader := graphicsShader(t, d, metadata.ShaderReflection{})
	var buffers [4]renderer.BufferHandle
	for i := range buffers {
		buffers[i] = d.CreateVertexBuffer(16, 4, nil, true)
	}
	enc := beginRendering(t, d, renderer.RenderingSetup{})
	enc.SetShader(shader)
	enc.SetVertexBuffer(0, buffers[0], 0)
	enc.SetVertexBuffer(2, buffers[2], 0)
	enc.SetVertexBuffer(3, buffers[3], 16)

	if err := enc.Draw(4, 0); err != nil {
		t.Fatalf("Draw() error = %v", err)
	}

	binds := commandsOf(d.backend.Recorded(), null.CommandBindVertexBuffers)
	want := []struct{ first, count uint32 }{{0, 1}, {2, 2}}
	if len(binds) != len(want) {
		t.Fatalf("BindVertexBuffers recorded %d times, want %d", len(binds), len(want))
	}
	for i, w := range want {
		if binds[i].FirstSlot != w.first || binds[i].Count != w.count {
			t.Fatalf("bind %d covers slots [%d, +%d), want [%d, +%d)", i, binds[i].FirstSlot, binds[i].Count, w.first, w.count)
		}
	}
}

func TestIndexTypeFollowsStructSize(t *testing.T) {
	d := newTestDevice(t, null.Options{})
	shader := graphicsShader(t, d, metadata.ShaderReflection{})
	indices := d.CreateIndexBuffer(metadata.IndexTypeUShort, 6, nil, true)
	enc := beginRendering(t, d, renderer.RenderingSetup{})
	enc.SetShader(shader)

	if err := enc.DrawIndexed(6, 0, 0); err == nil {
		t.Fatalf("DrawIndexed() without an index buffer succeeded")
	}
	enc.SetIndexBuffer(indices, 0)
	if err := enc.DrawIndexed(6, 0, 0); err != nil {
		t.Fatalf("DrawIndexed() error = %v", err)
	}
	binds := commandsOf(d.backend.Recorded(), null.CommandBindIndexBuffer)
	if len(binds) != 1 || metadata.IndexType(binds[0].Args[1]) != metadata.IndexTypeUShort {
		t.Fatalf("BindIndexBuffer = %+v, want one 16 bit bind", binds)
	}
}

func TestUnboundSlotsGetFallbacks(t *testing.T) {
	d := newTestDevice(t, null.Options{})
	shader := graphicsShader(t, d, metadata.ShaderReflection{
		Bindings: []metadata.ShaderResourceBinding{
			{Name: "globals", Set: 0, Binding: 0, Slot: 0, ResourceType: metadata.ShaderResourceTypeConstantBuffer},
			{Name: "albedo", Set: 0, Binding: 1, Slot: 0, SamplerSlot: 0, ResourceType: metadata.ShaderResourceTypeCombinedTextureSampler, TextureType: metadata.TextureType2D},
			{Name: "instances", Set: 1, Binding: 0, Slot: 1, ResourceType: metadata.ShaderResourceTypeBuffer},
		},
	})
	enc := beginRendering(t, d, renderer.RenderingSetup{})
	enc.SetShader(shader)

	if err := enc.Draw(3, 0); err != nil {
		t.Fatalf("Draw() error = %v", err)
	}

	sets := commandsOf(d.backend.Recorded(), null.CommandBindDescriptorSet)
	if len(sets) != 2 {
		t.Fatalf("BindDescriptorSet recorded %d times, want 2", len(sets))
	}
	if len(sets[0].Entries) != 2 || len(sets[1].Entries) != 1 {
		t.Fatalf("descriptor sets hold %d and %d entries, want 2 and 1", len(sets[0].Entries), len(sets[1].Entries))
	}
	for _, set := range sets {
		for _, entry := range set.Entries {
			if entry.Resource == nil {
				t.Fatalf("set %d binding %d has no resource", set.Set, entry.Binding)
			}
			if entry.Type == metadata.ShaderResourceTypeCombinedTextureSampler && entry.Sampler == nil {
				t.Fatalf("combined binding %d has no sampler", entry.Binding)
			}
		}
	}
}

func TestStaleBindingFallsBackWithWarning(t *testing.T) {
	d := newTestDevice(t, null.Options{})
	shader := graphicsShader(t, d, metadata.ShaderReflection{
		Bindings: []metadata.ShaderResourceBinding{
			{Name: "globals", ResourceType: metadata.ShaderResourceTypeConstantBuffer},
		},
	})
	constants := d.CreateConstantBuffer(64)
	d.DestroyBuffer(constants)
	if err := d.WaitIdle(); err != nil {
		t.Fatalf("WaitIdle() error = %v", err)
	}
	logs := captureLogs(t)

	enc := beginRendering(t, d, renderer.RenderingSetup{})
	enc.SetShader(shader)
	enc.SetConstantBuffer(0, constants)
	if err := enc.Draw(3, 0); err != nil {
		t.Fatalf("Draw() error = %v", err)
	}
	if got := countLevel(logs, "warn"); got != 1 {
		t.Fatalf("warnings = %d, want 1:\n%s", got, logs)
	}
	sets := commandsOf(d.backend.Recorded(), null.CommandBindDescriptorSet)
	if len(sets) != 1 || sets[0].Entries[0].Resource == nil {
		t.Fatalf("stale constant buffer was not replaced by the fallback")
	}
}

func TestBarriersPrecedeTheRenderPass(t *testing.T) {
	d := newTestDevice(t, null.Options{})
	shader := graphicsShader(t, d, metadata.ShaderReflection{})
	enc := beginRendering(t, d, renderer.RenderingSetup{ColorClearMask: 1})
	enc.SetShader(shader)

	if err := enc.Draw(3, 0); err != nil {
		t.Fatalf("Draw() error = %v", err)
	}
	kinds := d.backend.RecordedKinds()
	b := indexOf(kinds, null.CommandPipelineBarrier)
	p := indexOf(kinds, null.CommandBeginRenderPass)
	draw := indexOf(kinds, null.CommandDraw)
	if b < 0 || p < 0 || draw < 0 || !(b < p && p < draw) {
		t.Fatalf("recorded %v, want a barrier, then the render pass, then the draw", kinds)
	}
}

func TestTransferSplitsTheRenderPass(t *testing.T) {
	d := newTestDevice(t, null.Options{})
	shader := graphicsShader(t, d, metadata.ShaderReflection{})
	src := d.CreateVertexBuffer(16, 4, nil, true)
	dst := d.CreateVertexBuffer(16, 4, nil, true)
	enc := beginRendering(t, d, renderer.RenderingSetup{ColorClearMask: 1})
	enc.SetShader(shader)

	if err := enc.Draw(3, 0); err != nil {
		t.Fatalf("Draw() error = %v", err)
	}
	if err := enc.CopyBuffer(src, dst); err != nil {
		t.Fatalf("CopyBuffer() error = %v", err)
	}
	if err := enc.Draw(3, 0); err != nil {
		t.Fatalf("second Draw() error = %v", err)
	}
	if err := enc.EndRendering(); err != nil {
		t.Fatalf("EndRendering() error = %v", err)
	}

	kinds := d.backend.RecordedKinds()
	if got := len(commandsOf(d.backend.Recorded(), null.CommandBeginRenderPass)); got != 2 {
		t.Fatalf("BeginRenderPass recorded %d times, want 2: %v", got, kinds)
	}
	if got := len(commandsOf(d.backend.Recorded(), null.CommandEndRenderPass)); got != 2 {
		t.Fatalf("EndRenderPass recorded %d times, want 2: %v", got, kinds)
	}
	copyAt := indexOf(kinds, null.CommandCopyBuffer)
	if copyAt < 0 || kinds[copyAt-1] == null.CommandDraw {
		t.Fatalf("copy recorded inside the render pass: %v", kinds)
	}
}

func TestClearOnlyRendering(t *testing.T) {
	d := newTestDevice(t, null.Options{})
	enc := beginRendering(t, d, renderer.RenderingSetup{ColorClearMask: 1, ClearColor: [4]float32{0, 0, 0, 1}})

	if err := enc.EndRendering(); err != nil {
		t.Fatalf("EndRendering() error = %v", err)
	}
	kinds := d.backend.RecordedKinds()
	begin := indexOf(kinds, null.CommandBeginRenderPass)
	end := indexOf(kinds, null.CommandEndRenderPass)
	if begin < 0 || end < begin {
		t.Fatalf("recorded %v, want a render pass that only clears", kinds)
	}
}

func TestEncoderContractViolations(t *testing.T) {
	d := newTestDevice(t, null.Options{})
	captureLogs(t)
	compute := computeShader(t, d, metadata.ShaderReflection{})
	enc := beginPass(t, d)

	if err := enc.Draw(3, 0); !errors.Is(err, core.ErrNotRecording) {
		t.Fatalf("Draw() outside rendering error = %v, want ErrNotRecording", err)
	}
	if err := enc.Dispatch(1, 1, 1); !errors.Is(err, core.ErrNotRecording) {
		t.Fatalf("Dispatch() outside compute error = %v, want ErrNotRecording", err)
	}
	if err := enc.EndRendering(); !errors.Is(err, core.ErrNotRecording) {
		t.Fatalf("EndRendering() error = %v, want ErrNotRecording", err)
	}

	if err := enc.BeginCompute(); err != nil {
		t.Fatalf("BeginCompute() error = %v", err)
	}
	if err := enc.BeginCompute(); !errors.Is(err, core.ErrNestedBracket) {
		t.Fatalf("nested BeginCompute() error = %v, want ErrNestedBracket", err)
	}
	if err := enc.Dispatch(1, 1, 1); !errors.Is(err, core.ErrNoShaderBound) {
		t.Fatalf("Dispatch() without a shader error = %v, want ErrNoShaderBound", err)
	}
	graphics := graphicsShader(t, d, metadata.ShaderReflection{})
	enc.SetShader(graphics)
	if err := enc.Dispatch(1, 1, 1); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("Dispatch() with a graphics shader error = %v, want ErrValidation", err)
	}
	enc.SetShader(compute)
	if err := enc.Dispatch(1, 1, 1); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if err := enc.EndCompute(); err != nil {
		t.Fatalf("EndCompute() error = %v", err)
	}
}

func TestDrawWithoutShader(t *testing.T) {
	d := newTestDevice(t, null.Options{})
	captureLogs(t)
	enc := beginRendering(t, d, renderer.RenderingSetup{})

	if err := enc.Draw(3, 0); !errors.Is(err, core.ErrNoShaderBound) {
		t.Fatalf("Draw() error = %v, want ErrNoShaderBound", err)
	}
	if i := indexOf(d.backend.RecordedKinds(), null.CommandDraw); i >= 0 {
		t.Fatalf("a draw was recorded without a shader")
	}
}

func TestComputeDispatch(t *testing.T) {
	d := newTestDevice(t, null.Options{})
	shader := computeShader(t, d, metadata.ShaderReflection{
		Bindings: []metadata.ShaderResourceBinding{
			{Name: "output", ResourceType: metadata.ShaderResourceTypeBufferUAV},
		},
	})
	enc := beginPass(t, d)
	if err := enc.BeginCompute(); err != nil {
		t.Fatalf("BeginCompute() error = %v", err)
	}
	d.backend.ResetRecorded()
	enc.SetShader(shader)

	if err := enc.Dispatch(8, 8, 1); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	cmds := d.backend.Recorded()
	sets := commandsOf(cmds, null.CommandBindDescriptorSet)
	if len(sets) != 1 || !sets[0].Compute {
		t.Fatalf("descriptor sets = %+v, want one compute set", sets)
	}
	if indexOf(d.backend.RecordedKinds(), null.CommandBeginRenderPass) >= 0 {
		t.Fatalf("a compute dispatch opened a render pass")
	}
	dispatch := commandsOf(cmds, null.CommandDispatch)
	if len(dispatch) != 1 || dispatch[0].Args != [4]uint32{8, 8, 1} {
		t.Fatalf("Dispatch = %+v, want 8x8x1", dispatch)
	}
	if err := enc.EndCompute(); err != nil {
		t.Fatalf("EndCompute() error = %v", err)
	}
}

func TestDescriptorBindIsRetriedAfterFailure(t *testing.T) {
	d := newTestDevice(t, null.Options{})
	captureLogs(t)
	shader := computeShader(t, d, metadata.ShaderReflection{
		Bindings: []metadata.ShaderResourceBinding{
			{Name: "output", ResourceType: metadata.ShaderResourceTypeBufferUAV},
		},
	})
	enc := beginPass(t, d)
	if err := enc.BeginCompute(); err != nil {
		t.Fatalf("BeginCompute() error = %v", err)
	}
	enc.SetShader(shader)

	d.backend.FailNextDescriptorBinds(1)
	if err := enc.Dispatch(1, 1, 1); !errors.Is(err, null.ErrInjectedFailure) {
		t.Fatalf("first Dispatch() error = %v, want the bind failure", err)
	}
	if n := len(commandsOf(d.backend.Recorded(), null.CommandDispatch)); n != 0 {
		t.Fatalf("failed Dispatch() recorded %d dispatches", n)
	}
	d.backend.ResetRecorded()

	if err := enc.Dispatch(1, 1, 1); err != nil {
		t.Fatalf("second Dispatch() error = %v", err)
	}
	kinds := d.backend.RecordedKinds()
	bind, dispatch := indexOf(kinds, null.CommandBindDescriptorSet), indexOf(kinds, null.CommandDispatch)
	if bind < 0 || dispatch < 0 || bind > dispatch {
		t.Fatalf("retry recorded %v, want the descriptor bind before the dispatch", kinds)
	}
	if err := enc.EndCompute(); err != nil {
		t.Fatalf("EndCompute() error = %v", err)
	}
}

func TestStatsWhileRecording(t *testing.T) {
	d := newTestDevice(t, null.Options{})
	shader := computeShader(t, d, metadata.ShaderReflection{
		Bindings: []metadata.ShaderResourceBinding{
			{Name: "output", ResourceType: metadata.ShaderResourceTypeBufferUAV},
		},
	})

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				d.Stats()
			}
		}
	}()

	for frame := uint64(0); frame < 8; frame++ {
		if err := d.BeginFrame(frame); err != nil {
			t.Fatalf("BeginFrame() error = %v", err)
		}
		enc, err := d.BeginPass("compute")
		if err != nil {
			t.Fatalf("BeginPass() error = %v", err)
		}
		if err := enc.BeginCompute(); err != nil {
			t.Fatalf("BeginCompute() error = %v", err)
		}
		enc.SetShader(shader)
		if err := enc.Dispatch(1, 1, 1); err != nil {
			t.Fatalf("Dispatch() error = %v", err)
		}
		if err := enc.EndCompute(); err != nil {
			t.Fatalf("EndCompute() error = %v", err)
		}
		if err := d.EndPass(enc); err != nil {
			t.Fatalf("EndPass() error = %v", err)
		}
		if err := d.EndFrame(); err != nil {
			t.Fatalf("EndFrame() error = %v", err)
		}
	}
	close(done)
	wg.Wait()

	if s := d.Stats(); s.BarrierFlushes == 0 || s.Barriers == 0 {
		t.Fatalf("no barriers counted: %d flushes, %d barriers", s.BarrierFlushes, s.Barriers)
	}
}

func TestPushConstantsAreClippedToTheDeclaredRange(t *testing.T) {
	d := newTestDevice(t, null.Options{})
	shader := graphicsShader(t, d, metadata.ShaderReflection{
		PushConstant: metadata.PushConstantRange{Size: 16, Stages: metadata.ShaderStageBit(metadata.ShaderStageVertex)},
	})
	enc := beginRendering(t, d, renderer.RenderingSetup{})
	enc.SetShader(shader)
	enc.SetPushConstants(make([]byte, 32))

	if err := enc.Draw(3, 0); err != nil {
		t.Fatalf("Draw() error = %v", err)
	}
	pushes := commandsOf(d.backend.Recorded(), null.CommandPushConstants)
	if len(pushes) != 1 || len(pushes[0].Data) != 16 {
		t.Fatalf("PushConstants = %+v, want one 16 byte upload", pushes)
	}
}

func TestIndirectDrawNeedsArgumentUsage(t *testing.T) {
	d := newTestDevice(t, null.Options{})
	captureLogs(t)
	shader := graphicsShader(t, d, metadata.ShaderReflection{})
	plain := d.CreateVertexBuffer(16, 4, nil, true)
	args := d.CreateBuffer(&metadata.BufferCreationDescription{
		TotalSize:   16,
		BufferFlags: metadata.BufferUsageDrawIndirect,
	}, nil)
	enc := beginRendering(t, d, renderer.RenderingSetup{})
	enc.SetShader(shader)

	if err := enc.DrawIndirect(plain, 0, 1, 16); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("DrawIndirect() on a vertex buffer error = %v, want ErrValidation", err)
	}
	if err := enc.DrawIndirect(args, 0, 1, 16); err != nil {
		t.Fatalf("DrawIndirect() error = %v", err)
	}
	if len(commandsOf(d.backend.Recorded(), null.CommandDrawIndirect)) != 1 {
		t.Fatalf("DrawIndirect was not recorded")
	}
}

func TestUpdateBuffer(t *testing.T) {
	d := newTestDevice(t, null.Options{})
	captureLogs(t)
	mutable := d.CreateVertexBuffer(16, 4, nil, true)
	immutable := d.CreateVertexBuffer(16, 4, make([]byte, 64), false)
	enc := beginPass(t, d)
	d.backend.ResetRecorded()

	tests := []struct {
		name    string
		buffer  renderer.BufferHandle
		offset  uint64
		size    int
		wantErr bool
	}{
		{"aligned", mutable, 4, 8, false},
		{"unaligned offset", mutable, 2, 8, true},
		{"overflow", mutable, 60, 8, true},
		{"immutable", immutable, 0, 8, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := enc.UpdateBuffer(tt.buffer, tt.offset, make([]byte, tt.size), metadata.UpdateModeDiscard)
			if (err != nil) != tt.wantErr {
				t.Fatalf("UpdateBuffer() error = %v, wantErr %t", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, core.ErrValidation) {
				t.Fatalf("UpdateBuffer() error = %v, want ErrValidation", err)
			}
		})
	}
	updates := commandsOf(d.backend.Recorded(), null.CommandUpdateBuffer)
	if len(updates) != 1 || len(updates[0].Data) != 8 {
		t.Fatalf("UpdateBuffer recorded %+v, want one 8 byte update", updates)
	}
}

func TestCopyBufferValidation(t *testing.T) {
	d := newTestDevice(t, null.Options{})
	captureLogs(t)
	a := d.CreateVertexBuffer(16, 4, nil, true)
	b := d.CreateVertexBuffer(16, 2, nil, true)
	enc := beginPass(t, d)

	if err := enc.CopyBuffer(a, a); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("CopyBuffer() onto itself error = %v, want ErrValidation", err)
	}
	if err := enc.CopyBuffer(a, b); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("CopyBuffer() into a smaller buffer error = %v, want ErrValidation", err)
	}
	if err := enc.CopyBufferRegion(a, b, []metadata.BufferCopyRegion{{SrcOffset: 32, Size: 32}}); err != nil {
		t.Fatalf("CopyBufferRegion() error = %v", err)
	}
}

func TestCopyTexture(t *testing.T) {
	d := newTestDevice(t, null.Options{})
	captureLogs(t)
	desc := renderTargetDescription(32, 32)
	src := d.CreateTexture(&desc, nil)
	dst := d.CreateTexture(&desc, nil)
	small := renderTargetDescription(16, 16)
	tiny := d.CreateTexture(&small, nil)
	enc := beginPass(t, d)

	if err := enc.CopyTexture(src, dst); err != nil {
		t.Fatalf("CopyTexture() error = %v", err)
	}
	if err := enc.CopyTexture(src, tiny); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("CopyTexture() into a smaller texture error = %v, want ErrValidation", err)
	}
	if len(commandsOf(d.backend.Recorded(), null.CommandCopyTexture)) != 1 {
		t.Fatalf("CopyTexture was not recorded exactly once")
	}
}

func TestQueries(t *testing.T) {
	d := newTestDevice(t, null.Options{})
	captureLogs(t)
	occlusion := metadata.DefaultQueryCreationDescription()
	q := d.CreateQuery(&occlusion)
	ts := d.CreateQuery(&metadata.QueryCreationDescription{Type: metadata.QueryTypeTimestamp})
	if q.IsInvalid() || ts.IsInvalid() {
		t.Fatalf("CreateQuery() returned an invalid handle")
	}
	enc := beginPass(t, d)

	if err := enc.BeginQuery(q); err != nil {
		t.Fatalf("BeginQuery() error = %v", err)
	}
	if err := enc.BeginQuery(q); !errors.Is(err, core.ErrNestedBracket) {
		t.Fatalf("nested BeginQuery() error = %v, want ErrNestedBracket", err)
	}
	if err := enc.EndQuery(q); err != nil {
		t.Fatalf("EndQuery() error = %v", err)
	}
	if err := enc.EndQuery(q); !errors.Is(err, core.ErrUnbalancedBracket) {
		t.Fatalf("unbalanced EndQuery() error = %v, want ErrUnbalancedBracket", err)
	}
	if err := enc.BeginQuery(ts); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("BeginQuery() on a timestamp error = %v, want ErrValidation", err)
	}
	if err := enc.EndQuery(ts); err != nil {
		t.Fatalf("EndQuery() on a timestamp error = %v", err)
	}
	if _, ready, err := enc.GetQueryResult(q); err != nil || !ready {
		t.Fatalf("GetQueryResult() = ready %t, error %v", ready, err)
	}
}

func TestDebugMarkersBalance(t *testing.T) {
	d := newTestDevice(t, null.Options{})
	enc := beginPass(t, d)
	d.backend.ResetRecorded()

	enc.PushMarker("shadows")
	enc.PopMarker()

	cmds := d.backend.Recorded()
	begins := commandsOf(cmds, null.CommandBeginDebugMarker)
	if len(begins) != 1 || begins[0].Name != "shadows" {
		t.Fatalf("BeginDebugMarker = %+v, want one named shadows", begins)
	}
	if got := len(commandsOf(cmds, null.CommandEndDebugMarker)); got != 1 {
		t.Fatalf("EndDebugMarker recorded %d times, want 1", got)
	}
}
