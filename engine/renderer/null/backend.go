package null

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/spaghettifunk/anima-gal/engine/core"
	"github.com/spaghettifunk/anima-gal/engine/renderer/cache"
	"github.com/spaghettifunk/anima-gal/engine/renderer/metadata"
)

var ErrInjectedFailure = errors.New("null: injected allocation failure")

/**
 * @brief A backend object. Descriptions are kept so tests can inspect what
 * the device asked for.
 */
type Object struct {
	ID   uint64
	Kind metadata.ObjectType
	Desc any
	Data []byte
	/** @brief The object wraps something the backend does not own. */
	Wrapped bool
	/** @brief Parent native for views and proxies. */
	Parent *Object
}

func (o *Object) String() string {
	return fmt.Sprintf("%s#%d", o.Kind, o.ID)
}

type Options struct {
	// ManualFences keeps fences unsignaled until SignalFences is called.
	ManualFences bool
	Capabilities metadata.Capabilities
}

/**
 * @brief A backend that allocates nothing on a GPU. It records every command
 * and every teardown so the device can run headless and be tested.
 */
type Backend struct {
	mu sync.Mutex

	options Options
	nextID  atomic.Uint64

	live        map[metadata.ObjectType]int
	destroyed   map[metadata.ObjectType]int
	cached      map[cache.ObjectKind]int
	failNext    map[metadata.ObjectType]int
	failBinds   int
	failSubmits int

	commands []Command
	queue    queueState
}

func New(options Options) *Backend {
	if options.Capabilities.AdapterName == "" {
		options.Capabilities = DefaultCapabilities()
	}
	return &Backend{
		options:   options,
		live:      make(map[metadata.ObjectType]int),
		destroyed: make(map[metadata.ObjectType]int),
		cached:    make(map[cache.ObjectKind]int),
		failNext:  make(map[metadata.ObjectType]int),
	}
}

func DefaultCapabilities() metadata.Capabilities {
	return metadata.Capabilities{
		AdapterName:                           "null adapter",
		SupportsMultithreadedResourceCreation: true,
		SupportsSharedTextures:                true,
		SupportsIndirectDraw:                  true,
		MaxTextureSize:                        16384,
		MaxPushConstantsSize:                  128,
		MinConstantAlignment:                  256,
		TimestampTicksPerSecond:               1_000_000_000,
	}
}

func (b *Backend) Name() string {
	return "null"
}

func (b *Backend) Capabilities() metadata.Capabilities {
	return b.options.Capabilities
}

func (b *Backend) Shutdown() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for kind, n := range b.live {
		if n != 0 {
			core.LogDebug("null backend: %d %s objects still alive at shutdown", n, kind)
		}
	}
	return nil
}

// FailNext makes the next n creations of the given kind fail.
func (b *Backend) FailNext(kind metadata.ObjectType, n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failNext[kind] += n
}

// FailNextDescriptorBinds makes the next n descriptor set binds fail.
func (b *Backend) FailNextDescriptorBinds(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failBinds += n
}

// FailNextSubmits makes the next n queue submissions fail.
func (b *Backend) FailNextSubmits(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failSubmits += n
}

// Live returns the number of objects of the kind that were created and not
// destroyed yet.
func (b *Backend) Live(kind metadata.ObjectType) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.live[kind]
}

// Destroyed returns the number of teardown calls for the kind.
func (b *Backend) Destroyed(kind metadata.ObjectType) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.destroyed[kind]
}

func (b *Backend) newObject(kind metadata.ObjectType, desc any, parent *Object) (*Object, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failNext[kind] > 0 {
		b.failNext[kind]--
		return nil, ErrInjectedFailure
	}
	b.live[kind]++
	return &Object{ID: b.nextID.Add(1), Kind: kind, Desc: desc, Parent: parent}, nil
}

func asObject(native any) (*Object, error) {
	o, ok := native.(*Object)
	if !ok || o == nil {
		return nil, fmt.Errorf("null: unexpected native %T", native)
	}
	return o, nil
}

func (b *Backend) CreateBuffer(desc *metadata.BufferCreationDescription) (any, error) {
	o, err := b.newObject(metadata.ObjectTypeBuffer, *desc, nil)
	if err != nil {
		return nil, err
	}
	o.Data = make([]byte, desc.TotalSize)
	return o, nil
}

func (b *Backend) WriteBuffer(buffer any, offset uint64, data []byte) error {
	o, err := asObject(buffer)
	if err != nil {
		return err
	}
	if offset+uint64(len(data)) > uint64(len(o.Data)) {
		return fmt.Errorf("null: write of %d bytes at %d overflows buffer of %d bytes", len(data), offset, len(o.Data))
	}
	copy(o.Data[offset:], data)
	return nil
}

func (b *Backend) CreateTexture(desc *metadata.TextureCreationDescription) (any, error) {
	o, err := b.newObject(metadata.ObjectTypeTexture, *desc, nil)
	if err != nil {
		return nil, err
	}
	if desc.ExistingNativeObject != nil {
		o.Wrapped = true
		if parent, ok := desc.ExistingNativeObject.(*Object); ok {
			o.Parent = parent
		}
	}
	return o, nil
}

func (b *Backend) CreateSharedTexture(desc *metadata.TextureCreationDescription, open *metadata.PlatformSharedHandle) (any, metadata.PlatformSharedHandle, error) {
	o, err := b.newObject(metadata.ObjectTypeTexture, *desc, nil)
	if err != nil {
		return nil, metadata.PlatformSharedHandle{}, err
	}
	if open != nil {
		o.Wrapped = true
		return o, *open, nil
	}
	return o, metadata.PlatformSharedHandle{
		SharedTexture: o.ID,
		Size:          desc.MemorySize(),
	}, nil
}

func (b *Backend) UploadBuffer(cb any, buffer any, offset uint64, data []byte) (any, error) {
	if err := b.WriteBuffer(buffer, offset, data); err != nil {
		return nil, err
	}
	staging, err := b.newObject(metadata.ObjectTypeBuffer, metadata.BufferCreationDescription{TotalSize: uint32(len(data))}, nil)
	if err != nil {
		return nil, err
	}
	b.record(cb, Command{Kind: CommandUpload, Resource: buffer})
	return staging, nil
}

func (b *Backend) UploadTexture(cb any, texture any, desc *metadata.TextureCreationDescription, data []metadata.SubResourceData) (any, error) {
	o, err := asObject(texture)
	if err != nil {
		return nil, err
	}
	var size int
	for _, d := range data {
		size += len(d.Data)
	}
	o.Data = make([]byte, 0, size)
	for _, d := range data {
		o.Data = append(o.Data, d.Data...)
	}
	staging, err := b.newObject(metadata.ObjectTypeBuffer, metadata.BufferCreationDescription{TotalSize: uint32(size)}, nil)
	if err != nil {
		return nil, err
	}
	b.record(cb, Command{Kind: CommandUpload, Resource: texture})
	return staging, nil
}

func (b *Backend) CreateBlendState(desc *metadata.BlendStateCreationDescription) (any, error) {
	return b.newObject(metadata.ObjectTypeBlendState, *desc, nil)
}

func (b *Backend) CreateDepthStencilState(desc *metadata.DepthStencilStateCreationDescription) (any, error) {
	return b.newObject(metadata.ObjectTypeDepthStencilState, *desc, nil)
}

func (b *Backend) CreateRasterizerState(desc *metadata.RasterizerStateCreationDescription) (any, error) {
	return b.newObject(metadata.ObjectTypeRasterizerState, *desc, nil)
}

func (b *Backend) CreateSamplerState(desc *metadata.SamplerStateCreationDescription) (any, error) {
	return b.newObject(metadata.ObjectTypeSamplerState, *desc, nil)
}

func (b *Backend) CreateShader(desc *metadata.ShaderCreationDescription) (any, error) {
	return b.newObject(metadata.ObjectTypeShader, desc.Name, nil)
}

func (b *Backend) CreateQuery(desc *metadata.QueryCreationDescription) (any, error) {
	return b.newObject(metadata.ObjectTypeQuery, *desc, nil)
}

// ReadQuery reports every query as finished with a zero result.
func (b *Backend) ReadQuery(query any) (uint64, bool, error) {
	if _, err := asObject(query); err != nil {
		return 0, false, err
	}
	return 0, true, nil
}

func (b *Backend) CreateVertexDeclaration(desc *metadata.VertexDeclarationCreationDescription, shader any) (any, error) {
	parent, _ := shader.(*Object)
	return b.newObject(metadata.ObjectTypeVertexDeclaration, *desc, parent)
}

func (b *Backend) CreateTextureResourceView(texture any, _ *metadata.TextureCreationDescription, desc *metadata.TextureResourceViewCreationDescription) (any, error) {
	parent, err := asObject(texture)
	if err != nil {
		return nil, err
	}
	return b.newObject(metadata.ObjectTypeTextureResourceView, *desc, parent)
}

func (b *Backend) CreateBufferResourceView(buffer any, _ *metadata.BufferCreationDescription, desc *metadata.BufferResourceViewCreationDescription) (any, error) {
	parent, err := asObject(buffer)
	if err != nil {
		return nil, err
	}
	return b.newObject(metadata.ObjectTypeBufferResourceView, *desc, parent)
}

func (b *Backend) CreateRenderTargetView(texture any, _ *metadata.TextureCreationDescription, desc *metadata.RenderTargetViewCreationDescription) (any, error) {
	parent, err := asObject(texture)
	if err != nil {
		return nil, err
	}
	return b.newObject(metadata.ObjectTypeRenderTargetView, *desc, parent)
}

func (b *Backend) CreateTextureUnorderedAccessView(texture any, _ *metadata.TextureCreationDescription, desc *metadata.TextureUnorderedAccessViewCreationDescription) (any, error) {
	parent, err := asObject(texture)
	if err != nil {
		return nil, err
	}
	return b.newObject(metadata.ObjectTypeTextureUnorderedAccessView, *desc, parent)
}

func (b *Backend) CreateBufferUnorderedAccessView(buffer any, _ *metadata.BufferCreationDescription, desc *metadata.BufferUnorderedAccessViewCreationDescription) (any, error) {
	parent, err := asObject(buffer)
	if err != nil {
		return nil, err
	}
	return b.newObject(metadata.ObjectTypeBufferUnorderedAccessView, *desc, parent)
}

func (b *Backend) Destroy(kind metadata.ObjectType, native any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.destroyed[kind]++
	b.live[kind]--
}

func (b *Backend) CreatePipelineLayout(*cache.PipelineLayoutDescription) (any, error) {
	return b.newCached(cache.ObjectKindPipelineLayout)
}

func (b *Backend) CreateRenderPass(*cache.RenderPassDescription) (any, error) {
	return b.newCached(cache.ObjectKindRenderPass)
}

func (b *Backend) CreateGraphicsPipeline(desc *cache.PipelineDescription, _ any, _ any) (any, error) {
	return b.newCached(cache.ObjectKindPipeline)
}

func (b *Backend) CreateComputePipeline(desc *cache.PipelineDescription, _ any) (any, error) {
	return b.newCached(cache.ObjectKindPipeline)
}

func (b *Backend) CreateFramebuffer(*cache.FramebufferDescription, any) (any, error) {
	return b.newCached(cache.ObjectKindFramebuffer)
}

func (b *Backend) DestroyCachedObject(kind cache.ObjectKind, _ any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cached[kind]--
}

func (b *Backend) newCached(kind cache.ObjectKind) (any, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cached[kind]++
	return &Object{ID: b.nextID.Add(1)}, nil
}

// LiveCached returns the number of live cache objects of the kind.
func (b *Backend) LiveCached(kind cache.ObjectKind) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cached[kind]
}
