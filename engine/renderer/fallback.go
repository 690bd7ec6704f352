package renderer

import (
	"fmt"

	"github.com/spaghettifunk/anima-gal/engine/core"
	"github.com/spaghettifunk/anima-gal/engine/renderer/metadata"
)

const (
	fallbackBufferSize       = 256
	fallbackBufferStructSize = 16
	fallbackConstantSize     = 256
)

/**
 * @brief Resources bound in place of anything a shader declares but the
 * caller left unbound.
 */
type fallbackResources struct {
	texture2D    TextureHandle
	texture2DUAV TextureUnorderedAccessViewHandle
	textureCube  TextureHandle
	texture3D    TextureHandle

	buffer    BufferHandle
	bufferUAV BufferUnorderedAccessViewHandle

	constantBuffer BufferHandle
	sampler        SamplerStateHandle
}

func fallbackTexture(kind metadata.TextureType) metadata.TextureCreationDescription {
	desc := metadata.DefaultTextureCreationDescription()
	desc.Width, desc.Height = 1, 1
	desc.Format = metadata.ResourceFormatRGBAUByteNormalized
	desc.Type = kind
	desc.ResourceAccess.Immutable = false
	return desc
}

func (d *Device) createFallbackResources() error {
	f := &d.fallback

	desc := fallbackTexture(metadata.TextureType2D)
	desc.AllowUAV = true
	f.texture2D = d.CreateTexture(&desc, nil)
	if !f.texture2D.IsInvalid() {
		uav := metadata.DefaultTextureUnorderedAccessViewCreationDescription()
		f.texture2DUAV = d.CreateTextureUnorderedAccessView(f.texture2D, &uav)
	}

	desc = fallbackTexture(metadata.TextureTypeCube)
	f.textureCube = d.CreateTexture(&desc, nil)

	desc = fallbackTexture(metadata.TextureType3D)
	f.texture3D = d.CreateTexture(&desc, nil)

	f.buffer = d.CreateBuffer(&metadata.BufferCreationDescription{
		TotalSize:  fallbackBufferSize,
		StructSize: fallbackBufferStructSize,
		BufferFlags: metadata.BufferUsageShaderResource | metadata.BufferUsageUnorderedAccess |
			metadata.BufferUsageStructuredBuffer,
	}, nil)
	if !f.buffer.IsInvalid() {
		f.bufferUAV = d.CreateBufferUnorderedAccessView(f.buffer, &metadata.BufferUnorderedAccessViewCreationDescription{})
	}

	f.constantBuffer = d.CreateConstantBuffer(fallbackConstantSize)

	sampler := metadata.DefaultSamplerStateCreationDescription()
	f.sampler = d.CreateSamplerState(&sampler)

	if f.texture2D.IsInvalid() || f.texture2DUAV.IsInvalid() || f.textureCube.IsInvalid() || f.texture3D.IsInvalid() ||
		f.buffer.IsInvalid() || f.bufferUAV.IsInvalid() || f.constantBuffer.IsInvalid() || f.sampler.IsInvalid() {
		err := fmt.Errorf("failed to create fallback resources: %w", core.ErrUnknown)
		core.LogError("%s", err)
		return err
	}
	return nil
}

func (d *Device) destroyFallbackResources() {
	f := &d.fallback
	for _, h := range []TextureHandle{f.texture2D, f.textureCube, f.texture3D} {
		if !h.IsInvalid() {
			d.DestroyTexture(h)
		}
	}
	for _, h := range []BufferHandle{f.buffer, f.constantBuffer} {
		if !h.IsInvalid() {
			d.DestroyBuffer(h)
		}
	}
	if !f.sampler.IsInvalid() {
		d.DestroySamplerState(f.sampler)
	}
	*f = fallbackResources{}
}

// fallbackTextureViewLocked returns the default view of the dummy texture
// matching the dimension a binding expects.
func (d *Device) fallbackTextureViewLocked(kind metadata.TextureType) TextureResourceViewHandle {
	h := d.fallback.texture2D
	switch kind {
	case metadata.TextureTypeCube:
		h = d.fallback.textureCube
	case metadata.TextureType3D:
		h = d.fallback.texture3D
	}
	if t, ok := d.textures.TryGet(h); ok {
		return t.DefaultView
	}
	return TextureResourceViewHandle{}
}
