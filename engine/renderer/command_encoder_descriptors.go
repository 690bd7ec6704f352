package renderer

import (
	"github.com/spaghettifunk/anima-gal/engine/core"
	"github.com/spaghettifunk/anima-gal/engine/renderer/barrier"
	"github.com/spaghettifunk/anima-gal/engine/renderer/cache"
	"github.com/spaghettifunk/anima-gal/engine/renderer/metadata"
)

// applyDescriptors resolves every binding the shader declares against the
// encoder slots and binds one descriptor set per declared set. Bindings left
// empty get a fallback resource of the matching kind. The descriptors stay
// dirty until every set is bound.
func (e *CommandEncoder) applyDescriptors(cb any, compute bool) error {
	if e.pipeline == nil || e.pipeline.Layout == nil {
		e.dirty &^= dirtyDescriptors
		return nil
	}
	d := e.device

	d.mu.Lock()
	shader, ok := d.shaders.TryGet(e.shader)
	if !ok {
		d.mu.Unlock()
		e.accesses = e.accesses[:0]
		return d.contractViolation(core.ErrNoShaderBound, "binding resources of %s", e.shader)
	}
	reflection := &shader.Description.Reflection
	sets := make([][]cache.DescriptorEntry, reflection.SetCount())
	e.accesses = e.accesses[:0]
	for i := range reflection.Bindings {
		b := &reflection.Bindings[i]
		entry := cache.DescriptorEntry{Binding: b.Binding, Type: b.ResourceType}
		if !e.resolveBindingLocked(b, &entry) {
			d.mu.Unlock()
			e.accesses = e.accesses[:0]
			return validationError("shader `%s`: no resource for binding `%s` (%s)", shader.Description.Name, b.Name, b.ResourceType)
		}
		sets[b.Set] = append(sets[b.Set], entry)
	}
	d.mu.Unlock()

	for set, entries := range sets {
		if len(entries) == 0 {
			continue
		}
		if err := d.backend.CmdBindDescriptorSet(cb, e.pipeline.Layout, uint32(set), entries, compute); err != nil {
			core.LogError("failed to bind descriptor set %d: %s", set, err)
			e.accesses = e.accesses[:0]
			return err
		}
	}
	e.dirty &^= dirtyDescriptors
	return nil
}

func (e *CommandEncoder) resolveBindingLocked(b *metadata.ShaderResourceBinding, entry *cache.DescriptorEntry) bool {
	switch b.ResourceType {
	case metadata.ShaderResourceTypeConstantBuffer:
		return e.resolveConstantBufferLocked(b.Slot, entry)
	case metadata.ShaderResourceTypeTexture:
		return e.resolveTextureViewLocked(b, entry)
	case metadata.ShaderResourceTypeCombinedTextureSampler:
		return e.resolveTextureViewLocked(b, entry) && e.resolveSamplerLocked(b.SamplerSlot, entry)
	case metadata.ShaderResourceTypeSampler:
		return e.resolveSamplerLocked(b.Slot, entry)
	case metadata.ShaderResourceTypeBuffer:
		return e.resolveBufferViewLocked(b.Slot, entry)
	case metadata.ShaderResourceTypeTextureUAV:
		return e.resolveTextureUAVLocked(b.Slot, entry)
	case metadata.ShaderResourceTypeBufferUAV:
		return e.resolveBufferUAVLocked(b.Slot, entry)
	}
	return false
}

func (e *CommandEncoder) resolveConstantBufferLocked(slot uint32, entry *cache.DescriptorEntry) bool {
	d := e.device
	h := e.constantBuffers[slot]
	b, ok := d.buffers.TryGet(h)
	if !ok {
		if !h.IsInvalid() {
			core.LogWarn("constant buffer slot %d holds stale %s, binding the fallback", slot, h)
		}
		h = d.fallback.constantBuffer
		if b, ok = d.buffers.TryGet(h); !ok {
			return false
		}
	}
	entry.Resource = b.Native
	entry.Range = uint64(b.Description.TotalSize)
	e.accesses = append(e.accesses, resourceAccess{key: bufferKey(h), native: b.Native, state: barrier.StateConstantBuffer, initial: b.initialState})
	return true
}

func (e *CommandEncoder) resolveTextureViewLocked(b *metadata.ShaderResourceBinding, entry *cache.DescriptorEntry) bool {
	d := e.device
	h := e.textureViews[b.Slot]
	v, ok := d.textureViews.TryGet(h)
	if !ok {
		if !h.IsInvalid() {
			core.LogWarn("texture slot %d holds stale %s, binding the fallback", b.Slot, h)
		}
		if v, ok = d.textureViews.TryGet(d.fallbackTextureViewLocked(b.TextureType)); !ok {
			return false
		}
	}
	t, ok := d.textures.TryGet(v.Texture)
	if !ok {
		return false
	}
	entry.Resource = v.Native
	e.accesses = append(e.accesses, resourceAccess{key: textureKey(v.Texture, t), native: t.Native, state: barrier.StateShaderRead, initial: t.initialState})
	return true
}

func (e *CommandEncoder) resolveSamplerLocked(slot uint32, entry *cache.DescriptorEntry) bool {
	d := e.device
	s, ok := d.samplerStates.table.TryGet(e.samplers[slot])
	if !ok {
		if s, ok = d.samplerStates.table.TryGet(d.fallback.sampler); !ok {
			return false
		}
	}
	entry.Sampler = s.Native
	return true
}

func (e *CommandEncoder) resolveBufferViewLocked(slot uint32, entry *cache.DescriptorEntry) bool {
	d := e.device
	h := e.bufferViews[slot]
	v, ok := d.bufferViews.TryGet(h)
	if !ok {
		if !h.IsInvalid() {
			core.LogWarn("buffer slot %d holds stale %s, binding the fallback", slot, h)
		}
		fallback, found := d.buffers.TryGet(d.fallback.buffer)
		if !found {
			return false
		}
		if v, ok = d.bufferViews.TryGet(fallback.DefaultView); !ok {
			return false
		}
	}
	buf, ok := d.buffers.TryGet(v.Buffer)
	if !ok {
		return false
	}
	entry.Resource = v.Native
	e.accesses = append(e.accesses, resourceAccess{key: bufferKey(v.Buffer), native: buf.Native, state: barrier.StateBufferRead, initial: buf.initialState})
	return true
}

func (e *CommandEncoder) resolveTextureUAVLocked(slot uint32, entry *cache.DescriptorEntry) bool {
	d := e.device
	h := e.textureUAVs[slot]
	v, ok := d.textureUAVs.TryGet(h)
	if !ok {
		if !h.IsInvalid() {
			core.LogWarn("texture UAV slot %d holds stale %s, binding the fallback", slot, h)
		}
		if v, ok = d.textureUAVs.TryGet(d.fallback.texture2DUAV); !ok {
			return false
		}
	}
	t, ok := d.textures.TryGet(v.Texture)
	if !ok {
		return false
	}
	entry.Resource = v.Native
	e.accesses = append(e.accesses, resourceAccess{key: textureKey(v.Texture, t), native: t.Native, state: barrier.StateShaderWrite, initial: t.initialState})
	return true
}

func (e *CommandEncoder) resolveBufferUAVLocked(slot uint32, entry *cache.DescriptorEntry) bool {
	d := e.device
	h := e.bufferUAVs[slot]
	v, ok := d.bufferUAVs.TryGet(h)
	if !ok {
		if !h.IsInvalid() {
			core.LogWarn("buffer UAV slot %d holds stale %s, binding the fallback", slot, h)
		}
		if v, ok = d.bufferUAVs.TryGet(d.fallback.bufferUAV); !ok {
			return false
		}
	}
	buf, ok := d.buffers.TryGet(v.Buffer)
	if !ok {
		return false
	}
	entry.Resource = v.Native
	e.accesses = append(e.accesses, resourceAccess{key: bufferKey(v.Buffer), native: buf.Native, state: barrier.StateBufferWrite, initial: buf.initialState})
	return true
}
