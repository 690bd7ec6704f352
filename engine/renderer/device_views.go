package renderer

import (
	"github.com/spaghettifunk/anima-gal/engine/core"
	"github.com/spaghettifunk/anima-gal/engine/renderer/metadata"
)

// sliceCount returns the number of 2d slices a texture exposes to views.
func sliceCount(desc *metadata.TextureCreationDescription, mip uint32) uint32 {
	switch desc.Type {
	case metadata.TextureTypeCube:
		return desc.ArraySize * 6
	case metadata.TextureType3D:
		return max(desc.Depth>>mip, 1)
	default:
		return desc.ArraySize
	}
}

func (d *Device) CreateTextureResourceView(texture TextureHandle, desc *metadata.TextureResourceViewCreationDescription) TextureResourceViewHandle {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.textures.TryGet(texture)
	if !ok {
		validationError("CreateTextureResourceView: %s is not a valid texture", texture)
		return TextureResourceViewHandle{}
	}
	return d.createTextureResourceViewLocked(texture, t, desc)
}

// createTextureResourceViewLocked returns the existing view for an identical
// description. Views of a proxy are created on the parent's native, narrowed
// to the proxy's slice.
func (d *Device) createTextureResourceViewLocked(texture TextureHandle, t *Texture, desc *metadata.TextureResourceViewCreationDescription) TextureResourceViewHandle {
	if !t.Description.AllowShaderResourceView {
		validationError("CreateTextureResourceView: texture %s does not allow shader resource views", texture)
		return TextureResourceViewHandle{}
	}
	if desc.MostDetailedMipLevel >= t.Description.MipLevelCount {
		validationError("CreateTextureResourceView: mip %d is out of range, %s has %d mips",
			desc.MostDetailedMipLevel, texture, t.Description.MipLevelCount)
		return TextureResourceViewHandle{}
	}
	if desc.OverrideViewFormat != metadata.ResourceFormatInvalid && !desc.OverrideViewFormat.IsValid() {
		validationError("CreateTextureResourceView: view format %s is invalid", desc.OverrideViewFormat)
		return TextureResourceViewHandle{}
	}

	hash := desc.CalculateHash()
	if existing, ok := t.resourceViews[hash]; ok && d.textureViews.Contains(existing) {
		return existing
	}

	backendDesc := *desc
	if t.IsProxy() {
		backendDesc.FirstArraySlice = t.Slice
		backendDesc.ArraySize = 1
	}
	native, err := d.backend.CreateTextureResourceView(t.Native, &t.Description, &backendDesc)
	if err != nil {
		core.LogError("CreateTextureResourceView: backend failed for texture %s: %s", texture, err)
		return TextureResourceViewHandle{}
	}
	h := d.textureViews.Insert(&TextureResourceView{Description: *desc, Native: native, Texture: texture})
	t.resourceViews[hash] = h
	return h
}

func (d *Device) DestroyTextureResourceView(h TextureResourceViewHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.textureViews.Contains(h) {
		core.LogWarn("DestroyTextureResourceView: %s is not a live view (double free?)", h)
		return
	}
	d.addDeadObjectLocked(metadata.ObjectTypeTextureResourceView, h.Raw())
}

func (d *Device) GetTextureResourceView(h TextureResourceViewHandle) (*TextureResourceView, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.textureViews.TryGet(h)
}

func (d *Device) CreateRenderTargetView(texture TextureHandle, desc *metadata.RenderTargetViewCreationDescription) RenderTargetViewHandle {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.textures.TryGet(texture)
	if !ok {
		validationError("CreateRenderTargetView: %s is not a valid texture", texture)
		return RenderTargetViewHandle{}
	}
	return d.createRenderTargetViewLocked(texture, t, desc)
}

func (d *Device) createRenderTargetViewLocked(texture TextureHandle, t *Texture, in *metadata.RenderTargetViewCreationDescription) RenderTargetViewHandle {
	if !t.Description.CreateRenderTarget {
		validationError("CreateRenderTargetView: texture %s was not created as a render target", texture)
		return RenderTargetViewHandle{}
	}
	desc := *in
	if desc.SliceCount == 0 {
		desc.SliceCount = 1
	}
	if desc.MipLevel >= t.Description.MipLevelCount {
		validationError("CreateRenderTargetView: mip %d is out of range, %s has %d mips",
			desc.MipLevel, texture, t.Description.MipLevelCount)
		return RenderTargetViewHandle{}
	}
	slices := sliceCount(&t.Description, desc.MipLevel)
	if desc.FirstSlice+desc.SliceCount > slices {
		validationError("CreateRenderTargetView: slices [%d, %d) are out of range, %s has %d slices",
			desc.FirstSlice, desc.FirstSlice+desc.SliceCount, texture, slices)
		return RenderTargetViewHandle{}
	}

	hash := desc.CalculateHash()
	if existing, ok := t.renderTargets[hash]; ok && d.renderTargets.Contains(existing) {
		return existing
	}

	backendDesc := desc
	if t.IsProxy() {
		backendDesc.FirstSlice += t.Slice
	}
	native, err := d.backend.CreateRenderTargetView(t.Native, &t.Description, &backendDesc)
	if err != nil {
		core.LogError("CreateRenderTargetView: backend failed for texture %s: %s", texture, err)
		return RenderTargetViewHandle{}
	}

	format := t.Description.Format
	if desc.OverrideViewFormat.IsValid() {
		format = desc.OverrideViewFormat
	}
	samples := t.Description.SampleCount
	if samples == 0 {
		samples = metadata.MSAASampleCountNone
	}
	h := d.renderTargets.Insert(&RenderTargetView{
		Description: desc,
		Native:      native,
		Texture:     texture,
		Format:      format,
		Width:       max(t.Description.Width>>desc.MipLevel, 1),
		Height:      max(t.Description.Height>>desc.MipLevel, 1),
		SampleCount: samples,
	})
	t.renderTargets[hash] = h
	return h
}

func (d *Device) DestroyRenderTargetView(h RenderTargetViewHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.renderTargets.Contains(h) {
		core.LogWarn("DestroyRenderTargetView: %s is not a live view (double free?)", h)
		return
	}
	d.addDeadObjectLocked(metadata.ObjectTypeRenderTargetView, h.Raw())
}

func (d *Device) GetRenderTargetView(h RenderTargetViewHandle) (*RenderTargetView, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.renderTargets.TryGet(h)
}

func (d *Device) CreateTextureUnorderedAccessView(texture TextureHandle, desc *metadata.TextureUnorderedAccessViewCreationDescription) TextureUnorderedAccessViewHandle {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.textures.TryGet(texture)
	if !ok {
		validationError("CreateTextureUnorderedAccessView: %s is not a valid texture", texture)
		return TextureUnorderedAccessViewHandle{}
	}
	return d.createTextureUnorderedAccessViewLocked(texture, t, desc)
}

func (d *Device) createTextureUnorderedAccessViewLocked(texture TextureHandle, t *Texture, in *metadata.TextureUnorderedAccessViewCreationDescription) TextureUnorderedAccessViewHandle {
	if !t.Description.AllowUAV {
		validationError("CreateTextureUnorderedAccessView: texture %s does not allow unordered access", texture)
		return TextureUnorderedAccessViewHandle{}
	}
	if t.Description.SampleCount.IsMultisampled() {
		validationError("CreateTextureUnorderedAccessView: texture %s is multisampled", texture)
		return TextureUnorderedAccessViewHandle{}
	}
	desc := *in
	if desc.ArraySize == 0 {
		desc.ArraySize = 1
	}
	if uint32(desc.MipLevelToUse) >= t.Description.MipLevelCount {
		validationError("CreateTextureUnorderedAccessView: mip %d is out of range, %s has %d mips",
			desc.MipLevelToUse, texture, t.Description.MipLevelCount)
		return TextureUnorderedAccessViewHandle{}
	}
	if slices := sliceCount(&t.Description, uint32(desc.MipLevelToUse)); desc.FirstArraySlice+desc.ArraySize > slices {
		validationError("CreateTextureUnorderedAccessView: slices [%d, %d) are out of range, %s has %d slices",
			desc.FirstArraySlice, desc.FirstArraySlice+desc.ArraySize, texture, slices)
		return TextureUnorderedAccessViewHandle{}
	}

	hash := desc.CalculateHash()
	if existing, ok := t.uavs[hash]; ok && d.textureUAVs.Contains(existing) {
		return existing
	}

	backendDesc := desc
	if t.IsProxy() {
		backendDesc.FirstArraySlice += t.Slice
	}
	native, err := d.backend.CreateTextureUnorderedAccessView(t.Native, &t.Description, &backendDesc)
	if err != nil {
		core.LogError("CreateTextureUnorderedAccessView: backend failed for texture %s: %s", texture, err)
		return TextureUnorderedAccessViewHandle{}
	}
	h := d.textureUAVs.Insert(&TextureUnorderedAccessView{Description: desc, Native: native, Texture: texture})
	t.uavs[hash] = h
	return h
}

func (d *Device) DestroyTextureUnorderedAccessView(h TextureUnorderedAccessViewHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.textureUAVs.Contains(h) {
		core.LogWarn("DestroyTextureUnorderedAccessView: %s is not a live view (double free?)", h)
		return
	}
	d.addDeadObjectLocked(metadata.ObjectTypeTextureUnorderedAccessView, h.Raw())
}

func (d *Device) GetTextureUnorderedAccessView(h TextureUnorderedAccessViewHandle) (*TextureUnorderedAccessView, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.textureUAVs.TryGet(h)
}
