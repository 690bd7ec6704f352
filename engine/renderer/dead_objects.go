package renderer

import (
	"github.com/spaghettifunk/anima-gal/engine/containers"
	"github.com/spaghettifunk/anima-gal/engine/core"
	"github.com/spaghettifunk/anima-gal/engine/renderer/barrier"
	"github.com/spaghettifunk/anima-gal/engine/renderer/metadata"
)

/**
 * @brief An object waiting for teardown. Resources with views come back as a
 * release entry once their views are queued, so views always go first.
 */
type deadObject struct {
	kind    metadata.ObjectType
	raw     uint64
	release bool
	native  any
}

type deadObjectKey struct {
	kind    metadata.ObjectType
	raw     uint64
	release bool
}

func (d *Device) addDeadObjectLocked(kind metadata.ObjectType, raw uint64) {
	d.deadObjects = append(d.deadObjects, deadObject{kind: kind, raw: raw})
}

// deleteLater hands the native to the frame ring. It is destroyed once every
// frame that could reference it has finished.
func (d *Device) deleteLater(kind metadata.ObjectType, native any) {
	d.destroyedObjects++
	if kind == metadata.ObjectTypeSwapChain {
		platform := native.(SwapChainPlatform)
		d.deferDelete(platform.Destroy)
		return
	}
	backend := d.backend
	d.deferDelete(func() { backend.Destroy(kind, native) })
}

// destroyDeadObjectsLocked walks the dead list by index: tearing down a
// resource appends its views to the list being walked. An object queued more
// than once is handled once.
func (d *Device) destroyDeadObjectsLocked() {
	if len(d.deadObjects) == 0 {
		return
	}
	seen := make(map[deadObjectKey]struct{}, len(d.deadObjects))

	for i := 0; i < len(d.deadObjects); i++ {
		dead := d.deadObjects[i]
		key := deadObjectKey{kind: dead.kind, raw: dead.raw, release: dead.release}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		if dead.release {
			d.deleteLater(dead.kind, dead.native)
			continue
		}

		switch dead.kind {
		case metadata.ObjectTypeBlendState:
			flushShared(d, d.blendStates, dead.raw)
		case metadata.ObjectTypeDepthStencilState:
			flushShared(d, d.depthStencilStates, dead.raw)
		case metadata.ObjectTypeRasterizerState:
			flushShared(d, d.rasterizerStates, dead.raw)
		case metadata.ObjectTypeSamplerState:
			flushShared(d, d.samplerStates, dead.raw)
		case metadata.ObjectTypeVertexDeclaration:
			flushShared(d, d.vertexDeclarations, dead.raw)
		case metadata.ObjectTypeShader:
			d.flushShader(dead.raw)
		case metadata.ObjectTypeQuery:
			h := containers.HandleFromRaw[*Query](dead.raw)
			if q, ok := d.queries.Remove(h); ok {
				d.deleteLater(dead.kind, q.Native)
			}
		case metadata.ObjectTypeBuffer:
			d.flushBuffer(dead.raw)
		case metadata.ObjectTypeTexture:
			d.flushTexture(dead.raw)
		case metadata.ObjectTypeTextureResourceView:
			d.flushTextureResourceView(dead.raw)
		case metadata.ObjectTypeBufferResourceView:
			d.flushBufferResourceView(dead.raw)
		case metadata.ObjectTypeRenderTargetView:
			d.flushRenderTargetView(dead.raw)
		case metadata.ObjectTypeTextureUnorderedAccessView:
			d.flushTextureUnorderedAccessView(dead.raw)
		case metadata.ObjectTypeBufferUnorderedAccessView:
			d.flushBufferUnorderedAccessView(dead.raw)
		case metadata.ObjectTypeSwapChain:
			d.flushSwapChain(dead.raw)
		default:
			core.LogWarn("dead object of unknown kind %s", dead.kind)
		}
	}

	d.deadObjects = d.deadObjects[:0]
	d.deadObjectFlushes++
}

func (d *Device) flushShader(raw uint64) {
	s, ok := d.shaders.Remove(containers.HandleFromRaw[*Shader](raw))
	if !ok {
		return
	}
	if n := d.cache.EvictShader(raw); n > 0 {
		core.LogDebug("evicted %d pipelines of shader `%s`", n, s.Description.Name)
	}
	d.deleteLater(metadata.ObjectTypeShader, s.Native)
}

func (d *Device) flushBuffer(raw uint64) {
	b, ok := d.buffers.Remove(containers.HandleFromRaw[*Buffer](raw))
	if !ok {
		return
	}
	for _, v := range b.resourceViews {
		d.addDeadObjectLocked(metadata.ObjectTypeBufferResourceView, v.Raw())
	}
	for _, v := range b.uavs {
		d.addDeadObjectLocked(metadata.ObjectTypeBufferUnorderedAccessView, v.Raw())
	}
	d.encoder.forget(barrier.ResourceKey{Handle: raw})
	d.deadObjects = append(d.deadObjects, deadObject{
		kind:    metadata.ObjectTypeBuffer,
		raw:     raw,
		release: true,
		native:  b.Native,
	})
}

func (d *Device) flushTexture(raw uint64) {
	h := containers.HandleFromRaw[*Texture](raw)
	t, ok := d.textures.Remove(h)
	if !ok {
		return
	}
	for _, v := range t.resourceViews {
		d.addDeadObjectLocked(metadata.ObjectTypeTextureResourceView, v.Raw())
	}
	for _, v := range t.renderTargets {
		d.addDeadObjectLocked(metadata.ObjectTypeRenderTargetView, v.Raw())
	}
	for _, v := range t.uavs {
		d.addDeadObjectLocked(metadata.ObjectTypeTextureUnorderedAccessView, v.Raw())
	}
	// proxy views reference this native too
	for p := range t.proxies {
		d.flushTexture(p.Raw())
	}

	if t.IsProxy() {
		if parent, ok := d.textures.TryGet(t.Parent); ok {
			delete(parent.proxies, h)
		}
		return
	}
	d.encoder.forget(barrier.ResourceKey{Texture: true, Handle: raw})
	if t.ownsNative {
		d.deadObjects = append(d.deadObjects, deadObject{
			kind:    metadata.ObjectTypeTexture,
			raw:     raw,
			release: true,
			native:  t.Native,
		})
	}
}

func (d *Device) flushTextureResourceView(raw uint64) {
	h := containers.HandleFromRaw[*TextureResourceView](raw)
	v, ok := d.textureViews.Remove(h)
	if !ok {
		return
	}
	if t, ok := d.textures.TryGet(v.Texture); ok {
		delete(t.resourceViews, v.Description.CalculateHash())
		if t.DefaultView == h {
			t.DefaultView = TextureResourceViewHandle{}
		}
	}
	d.deleteLater(metadata.ObjectTypeTextureResourceView, v.Native)
}

func (d *Device) flushBufferResourceView(raw uint64) {
	h := containers.HandleFromRaw[*BufferResourceView](raw)
	v, ok := d.bufferViews.Remove(h)
	if !ok {
		return
	}
	if b, ok := d.buffers.TryGet(v.Buffer); ok {
		delete(b.resourceViews, v.Description.CalculateHash())
		if b.DefaultView == h {
			b.DefaultView = BufferResourceViewHandle{}
		}
	}
	d.deleteLater(metadata.ObjectTypeBufferResourceView, v.Native)
}

func (d *Device) flushRenderTargetView(raw uint64) {
	h := containers.HandleFromRaw[*RenderTargetView](raw)
	v, ok := d.renderTargets.Remove(h)
	if !ok {
		return
	}
	if t, ok := d.textures.TryGet(v.Texture); ok {
		delete(t.renderTargets, v.Description.CalculateHash())
		if t.DefaultRenderTarget == h {
			t.DefaultRenderTarget = RenderTargetViewHandle{}
		}
	}
	d.cache.EvictAttachment(raw)
	d.deleteLater(metadata.ObjectTypeRenderTargetView, v.Native)
}

func (d *Device) flushTextureUnorderedAccessView(raw uint64) {
	v, ok := d.textureUAVs.Remove(containers.HandleFromRaw[*TextureUnorderedAccessView](raw))
	if !ok {
		return
	}
	if t, ok := d.textures.TryGet(v.Texture); ok {
		delete(t.uavs, v.Description.CalculateHash())
	}
	d.deleteLater(metadata.ObjectTypeTextureUnorderedAccessView, v.Native)
}

func (d *Device) flushBufferUnorderedAccessView(raw uint64) {
	v, ok := d.bufferUAVs.Remove(containers.HandleFromRaw[*BufferUnorderedAccessView](raw))
	if !ok {
		return
	}
	if b, ok := d.buffers.TryGet(v.Buffer); ok {
		delete(b.uavs, v.Description.CalculateHash())
	}
	d.deleteLater(metadata.ObjectTypeBufferUnorderedAccessView, v.Native)
}

func (d *Device) flushSwapChain(raw uint64) {
	sc, ok := d.swapChains.Remove(containers.HandleFromRaw[*SwapChain](raw))
	if !ok {
		return
	}
	for _, t := range sc.BackBuffers {
		d.flushTexture(t.Raw())
	}
	d.deadObjects = append(d.deadObjects, deadObject{
		kind:    metadata.ObjectTypeSwapChain,
		raw:     raw,
		release: true,
		native:  sc.Platform,
	})
}
