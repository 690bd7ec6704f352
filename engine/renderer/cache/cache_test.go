package cache

import (
	"errors"
	"sync"
	"testing"

	"github.com/spaghettifunk/anima-gal/engine/renderer/metadata"
)

type countingFactory struct {
	mu        sync.Mutex
	created   map[ObjectKind]int
	destroyed map[ObjectKind]int
	failNext  bool
}

func newCountingFactory() *countingFactory {
	return &countingFactory{created: map[ObjectKind]int{}, destroyed: map[ObjectKind]int{}}
}

func (f *countingFactory) create(kind ObjectKind) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return nil, errors.New("out of memory")
	}
	f.created[kind]++
	return f.created[kind], nil
}

func (f *countingFactory) CreatePipelineLayout(*PipelineLayoutDescription) (any, error) {
	return f.create(ObjectKindPipelineLayout)
}

func (f *countingFactory) CreateRenderPass(*RenderPassDescription) (any, error) {
	return f.create(ObjectKindRenderPass)
}

func (f *countingFactory) CreateGraphicsPipeline(*PipelineDescription, any, any) (any, error) {
	return f.create(ObjectKindPipeline)
}

func (f *countingFactory) CreateComputePipeline(*PipelineDescription, any) (any, error) {
	return f.create(ObjectKindPipeline)
}

func (f *countingFactory) CreateFramebuffer(*FramebufferDescription, any) (any, error) {
	return f.create(ObjectKindFramebuffer)
}

func (f *countingFactory) DestroyCachedObject(kind ObjectKind, _ any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyed[kind]++
}

func graphicsDescription(shader uint64) *PipelineDescription {
	desc := &PipelineDescription{
		Shader:       shader,
		Blend:        metadata.DefaultBlendStateCreationDescription(),
		DepthStencil: metadata.DefaultDepthStencilStateCreationDescription(),
		Rasterizer:   metadata.DefaultRasterizerStateCreationDescription(),
		Topology:     metadata.PrimitiveTopologyTriangles,
	}
	desc.RenderPass.ColorCount = 1
	desc.RenderPass.ColorFormats[0] = metadata.ResourceFormatBGRAUByteNormalized
	desc.RenderPass.SampleCount = metadata.MSAASampleCountNone
	return desc
}

func TestPipelineIsCreatedOnce(t *testing.T) {
	f := newCountingFactory()
	c, err := New(f, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	first, err := c.GetOrCreatePipeline(graphicsDescription(1))
	if err != nil {
		t.Fatalf("GetOrCreatePipeline() error = %v", err)
	}
	second, err := c.GetOrCreatePipeline(graphicsDescription(1))
	if err != nil {
		t.Fatalf("GetOrCreatePipeline() error = %v", err)
	}
	if first != second {
		t.Fatalf("structurally identical descriptions must share one pipeline")
	}
	if f.created[ObjectKindPipeline] != 1 || f.created[ObjectKindRenderPass] != 1 || f.created[ObjectKindPipelineLayout] != 1 {
		t.Fatalf("created = %v, want one of each", f.created)
	}

	other := graphicsDescription(1)
	other.Rasterizer.CullMode = metadata.CullModeNone
	if p, _ := c.GetOrCreatePipeline(other); p == first {
		t.Fatalf("different rasterizer state must produce a new pipeline")
	}

	s := c.Stats()
	if s.Pipelines != 2 || s.RenderPasses != 1 || s.Hits == 0 {
		t.Fatalf("Stats() = %+v", s)
	}
	if s.HitRate() <= 0 || s.HitRate() >= 1 {
		t.Fatalf("HitRate() = %v, want in (0, 1)", s.HitRate())
	}
}

func TestPipelineFactoryFailureIsNotCached(t *testing.T) {
	f := newCountingFactory()
	c, _ := New(f, nil)

	desc := &PipelineDescription{Compute: true, Shader: 9}
	if _, err := c.GetOrCreatePipelineLayout(&desc.Layout); err != nil {
		t.Fatalf("GetOrCreatePipelineLayout() error = %v", err)
	}
	f.failNext = true
	if _, err := c.GetOrCreatePipeline(desc); err == nil {
		t.Fatalf("GetOrCreatePipeline() error = nil, want failure")
	}
	if c.Stats().Pipelines != 0 {
		t.Fatalf("failed pipeline must not be cached")
	}
	if _, err := c.GetOrCreatePipeline(desc); err != nil {
		t.Fatalf("retry error = %v", err)
	}
}

func TestEvictShaderDefersDestruction(t *testing.T) {
	f := newCountingFactory()
	var deferred []func()
	c, _ := New(f, func(fn func()) { deferred = append(deferred, fn) })

	c.GetOrCreatePipeline(graphicsDescription(1))
	c.GetOrCreatePipeline(graphicsDescription(2))
	c.GetOrCreatePipeline(&PipelineDescription{Compute: true, Shader: 1})

	if got := c.EvictShader(1); got != 2 {
		t.Fatalf("EvictShader() = %d, want 2", got)
	}
	if f.destroyed[ObjectKindPipeline] != 0 {
		t.Fatalf("eviction must not destroy immediately")
	}
	for _, fn := range deferred {
		fn()
	}
	if f.destroyed[ObjectKindPipeline] != 2 {
		t.Fatalf("destroyed = %d, want 2", f.destroyed[ObjectKindPipeline])
	}
	if c.Stats().Pipelines != 1 {
		t.Fatalf("pipelines of other shaders must stay cached")
	}
}

func TestEvictionReleasesOutsideTheCacheLock(t *testing.T) {
	f := newCountingFactory()
	var c *Cache
	var seen []Stats
	// deferDelete stands in for the device frame ring, which may read the
	// cache while it holds its own lock.
	c, _ = New(f, func(fn func()) {
		seen = append(seen, c.Stats())
		fn()
	})

	c.GetOrCreatePipeline(graphicsDescription(1))
	rp := graphicsDescription(1).RenderPass
	c.GetOrCreateFramebuffer(&FramebufferDescription{RenderPass: rp, Attachments: []uint64{7}, Width: 4, Height: 4, Layers: 1})

	if got := c.EvictShader(1); got != 1 {
		t.Fatalf("EvictShader() = %d, want 1", got)
	}
	if got := c.EvictAttachment(7); got != 1 {
		t.Fatalf("EvictAttachment() = %d, want 1", got)
	}
	if len(seen) != 2 || seen[0].Pipelines != 0 || seen[1].Framebuffers != 0 {
		t.Fatalf("release saw %+v, want the entries already removed", seen)
	}
	if f.destroyed[ObjectKindPipeline] != 1 || f.destroyed[ObjectKindFramebuffer] != 1 {
		t.Fatalf("destroyed = %v", f.destroyed)
	}
}

func TestEvictAttachment(t *testing.T) {
	f := newCountingFactory()
	c, _ := New(f, nil)

	rp := graphicsDescription(1).RenderPass
	c.GetOrCreateFramebuffer(&FramebufferDescription{RenderPass: rp, Attachments: []uint64{10, 11}, Width: 4, Height: 4, Layers: 1})
	c.GetOrCreateFramebuffer(&FramebufferDescription{RenderPass: rp, Attachments: []uint64{12}, Width: 4, Height: 4, Layers: 1})

	if got := c.EvictAttachment(11); got != 1 {
		t.Fatalf("EvictAttachment() = %d, want 1", got)
	}
	if f.destroyed[ObjectKindFramebuffer] != 1 {
		t.Fatalf("destroyed = %d, want 1", f.destroyed[ObjectKindFramebuffer])
	}

	c.DestroyAll()
	s := c.Stats()
	if s.Framebuffers != 0 || s.RenderPasses != 0 || s.Layouts != 0 {
		t.Fatalf("Stats() after DestroyAll = %+v", s)
	}
}

func TestPipelineLayoutFromReflection(t *testing.T) {
	r := metadata.ShaderReflection{
		Bindings: []metadata.ShaderResourceBinding{
			{Set: 1, Binding: 0, ResourceType: metadata.ShaderResourceTypeTexture},
			{Set: 0, Binding: 2, ResourceType: metadata.ShaderResourceTypeConstantBuffer},
			{Set: 1, Binding: 1, ResourceType: metadata.ShaderResourceTypeSampler, ArraySize: 4},
		},
	}
	layout := PipelineLayoutFromReflection(&r)
	if len(layout.Sets) != 2 {
		t.Fatalf("sets = %d, want 2", len(layout.Sets))
	}
	if len(layout.Sets[1].Bindings) != 2 || layout.Sets[1].Bindings[1].Count != 4 {
		t.Fatalf("set 1 = %+v", layout.Sets[1])
	}
}

func TestNewRequiresFactory(t *testing.T) {
	if _, err := New(nil, nil); !errors.Is(err, ErrNilFactory) {
		t.Fatalf("New(nil) error = %v, want ErrNilFactory", err)
	}
}
