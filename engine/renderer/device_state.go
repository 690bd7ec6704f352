package renderer

import (
	"github.com/spaghettifunk/anima-gal/engine/containers"
	"github.com/spaghettifunk/anima-gal/engine/core"
	"github.com/spaghettifunk/anima-gal/engine/renderer/metadata"
)

/**
 * @brief A handle table plus the description hash index of one shareable
 * state kind. Entries leave both only when the dead objects are flushed.
 */
type dedupTable[D any] struct {
	kind   metadata.ObjectType
	table  *containers.HandleTable[*SharedState[D]]
	byHash map[uint64]containers.Handle[*SharedState[D]]
}

func newDedupTable[D any](kind metadata.ObjectType, capacity int) *dedupTable[D] {
	return &dedupTable[D]{
		kind:   kind,
		table:  containers.NewHandleTable[*SharedState[D]](capacity),
		byHash: make(map[uint64]containers.Handle[*SharedState[D]], capacity),
	}
}

// createShared returns the existing state for hash, reviving it when it is
// waiting in the dead list, or creates a new one through create.
func createShared[D any](d *Device, t *dedupTable[D], desc D, hash uint64, create func() (any, error)) containers.Handle[*SharedState[D]] {
	d.mu.Lock()
	defer d.mu.Unlock()

	if h, ok := t.byHash[hash]; ok {
		if s, ok := t.table.TryGet(h); ok {
			if s.refCount == 0 {
				core.LogDebug("reviving %s %s before its teardown", t.kind, h)
			}
			s.refCount++
			return h
		}
		delete(t.byHash, hash)
	}

	native, err := create()
	if err != nil {
		core.LogError("failed to create %s: %s", t.kind, err)
		return containers.Handle[*SharedState[D]]{}
	}

	h := t.table.Insert(&SharedState[D]{
		Description: desc,
		Native:      native,
		refCount:    1,
		hash:        hash,
	})
	t.byHash[hash] = h
	return h
}

// destroyShared drops one reference. The last one queues the state for
// teardown at the next flush.
func destroyShared[D any](d *Device, t *dedupTable[D], h containers.Handle[*SharedState[D]]) {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, ok := t.table.TryGet(h)
	if !ok || s.refCount == 0 {
		core.LogWarn("Destroy%s: %s is not a live %s (double free?)", t.kind, h, t.kind)
		return
	}
	s.refCount--
	if s.refCount == 0 {
		d.addDeadObjectLocked(t.kind, h.Raw())
	}
}

func getShared[D any](d *Device, t *dedupTable[D], h containers.Handle[*SharedState[D]]) (*SharedState[D], bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return t.table.TryGet(h)
}

// flushShared tears down a state whose reference count is still zero. Revived
// states are skipped.
func flushShared[D any](d *Device, t *dedupTable[D], raw uint64) {
	h := containers.HandleFromRaw[*SharedState[D]](raw)
	s, ok := t.table.TryGet(h)
	if !ok || s.refCount > 0 {
		return
	}
	t.table.Remove(h)
	if current, ok := t.byHash[s.hash]; ok && current == h {
		delete(t.byHash, s.hash)
	}
	d.deleteLater(t.kind, s.Native)
}

func (d *Device) CreateBlendState(desc *metadata.BlendStateCreationDescription) BlendStateHandle {
	return createShared(d, d.blendStates, *desc, desc.CalculateHash(), func() (any, error) {
		return d.backend.CreateBlendState(desc)
	})
}

func (d *Device) DestroyBlendState(h BlendStateHandle) {
	destroyShared(d, d.blendStates, h)
}

func (d *Device) GetBlendState(h BlendStateHandle) (*BlendState, bool) {
	return getShared(d, d.blendStates, h)
}

func (d *Device) CreateDepthStencilState(desc *metadata.DepthStencilStateCreationDescription) DepthStencilStateHandle {
	return createShared(d, d.depthStencilStates, *desc, desc.CalculateHash(), func() (any, error) {
		return d.backend.CreateDepthStencilState(desc)
	})
}

func (d *Device) DestroyDepthStencilState(h DepthStencilStateHandle) {
	destroyShared(d, d.depthStencilStates, h)
}

func (d *Device) GetDepthStencilState(h DepthStencilStateHandle) (*DepthStencilState, bool) {
	return getShared(d, d.depthStencilStates, h)
}

func (d *Device) CreateRasterizerState(desc *metadata.RasterizerStateCreationDescription) RasterizerStateHandle {
	if desc.ConservativeRasterization && !d.capabilities.SupportsConservativeRasterization {
		validationError("CreateRasterizerState: conservative rasterization is not supported by `%s`", d.capabilities.AdapterName)
		return RasterizerStateHandle{}
	}
	return createShared(d, d.rasterizerStates, *desc, desc.CalculateHash(), func() (any, error) {
		return d.backend.CreateRasterizerState(desc)
	})
}

func (d *Device) DestroyRasterizerState(h RasterizerStateHandle) {
	destroyShared(d, d.rasterizerStates, h)
}

func (d *Device) GetRasterizerState(h RasterizerStateHandle) (*RasterizerState, bool) {
	return getShared(d, d.rasterizerStates, h)
}

func (d *Device) CreateSamplerState(desc *metadata.SamplerStateCreationDescription) SamplerStateHandle {
	if desc.MinLOD > desc.MaxLOD {
		validationError("CreateSamplerState: min lod %f is greater than max lod %f", desc.MinLOD, desc.MaxLOD)
		return SamplerStateHandle{}
	}
	return createShared(d, d.samplerStates, *desc, desc.CalculateHash(), func() (any, error) {
		return d.backend.CreateSamplerState(desc)
	})
}

func (d *Device) DestroySamplerState(h SamplerStateHandle) {
	destroyShared(d, d.samplerStates, h)
}

func (d *Device) GetSamplerState(h SamplerStateHandle) (*SamplerState, bool) {
	return getShared(d, d.samplerStates, h)
}

// CreateVertexDeclaration shares declarations per (description, shader) pair.
func (d *Device) CreateVertexDeclaration(desc *metadata.VertexDeclarationCreationDescription, shader ShaderHandle) VertexDeclarationHandle {
	if len(desc.Attributes) == 0 || len(desc.Attributes) > metadata.MAX_VERTEX_ATTRIBUTE_COUNT {
		validationError("CreateVertexDeclaration: %d attributes, expected 1 to %d", len(desc.Attributes), metadata.MAX_VERTEX_ATTRIBUTE_COUNT)
		return VertexDeclarationHandle{}
	}
	for _, a := range desc.Attributes {
		if a.Slot >= metadata.MAX_VERTEX_BUFFER_COUNT || !a.Format.IsValid() {
			validationError("CreateVertexDeclaration: attribute %d has slot %d and format %s", a.Semantic, a.Slot, a.Format)
			return VertexDeclarationHandle{}
		}
	}

	d.mu.Lock()
	s, ok := d.shaders.TryGet(shader)
	d.mu.Unlock()
	if !ok {
		validationError("CreateVertexDeclaration: %s is not a valid shader", shader)
		return VertexDeclarationHandle{}
	}

	input := VertexInput{Declaration: *desc, Shader: shader}
	input.Declaration.Attributes = append([]metadata.VertexAttribute(nil), desc.Attributes...)
	hash := metadata.CombineHash(desc.CalculateHash(), shader.Raw())
	return createShared(d, d.vertexDeclarations, input, hash, func() (any, error) {
		return d.backend.CreateVertexDeclaration(desc, s.Native)
	})
}

func (d *Device) DestroyVertexDeclaration(h VertexDeclarationHandle) {
	destroyShared(d, d.vertexDeclarations, h)
}

func (d *Device) GetVertexDeclaration(h VertexDeclarationHandle) (*VertexDeclaration, bool) {
	return getShared(d, d.vertexDeclarations, h)
}
