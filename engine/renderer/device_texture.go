package renderer

import (
	"github.com/spaghettifunk/anima-gal/engine/core"
	"github.com/spaghettifunk/anima-gal/engine/renderer/barrier"
	"github.com/spaghettifunk/anima-gal/engine/renderer/metadata"
)

func (d *Device) validateTexture(desc *metadata.TextureCreationDescription, data []metadata.SubResourceData) error {
	if desc.Width == 0 || desc.Height == 0 {
		return validationError("CreateTexture: size %dx%d is invalid", desc.Width, desc.Height)
	}
	if desc.ExistingNativeObject == nil && desc.ResourceAccess.IsImmutable() && len(data) == 0 {
		return validationError("CreateTexture: immutable textures need initial data")
	}
	switch desc.Type {
	case metadata.TextureType2D, metadata.TextureTypeCube, metadata.TextureType3D:
	case metadata.TextureType2DProxy:
		return validationError("CreateTexture: proxies are created with CreateProxyTexture")
	case metadata.TextureType2DShared:
		return validationError("CreateTexture: shared textures are created with CreateSharedTexture")
	default:
		return validationError("CreateTexture: texture type %s is invalid", desc.Type)
	}
	if !desc.Format.IsValid() {
		return validationError("CreateTexture: format %s is invalid", desc.Format)
	}
	if desc.MipLevelCount == 0 || desc.ArraySize == 0 {
		return validationError("CreateTexture: %d mips and %d slices, both must be at least 1", desc.MipLevelCount, desc.ArraySize)
	}
	if desc.Type == metadata.TextureTypeCube && desc.Width != desc.Height {
		return validationError("CreateTexture: cube faces must be square, got %dx%d", desc.Width, desc.Height)
	}
	if limit := d.capabilities.MaxTextureSize; limit > 0 && max(desc.Width, desc.Height) > limit {
		return validationError("CreateTexture: size %dx%d exceeds the limit of %d", desc.Width, desc.Height, limit)
	}
	if len(data) > 0 {
		slices := desc.ArraySize
		if desc.Type == metadata.TextureTypeCube {
			slices *= 6
		}
		if want := desc.MipLevelCount * slices; uint32(len(data)) != want {
			return validationError("CreateTexture: %d sub resources of initial data, expected %d", len(data), want)
		}
	}
	return nil
}

// CreateTexture creates a texture and uploads one SubResourceData per mip of
// every slice. Default views are created as the description asks.
func (d *Device) CreateTexture(desc *metadata.TextureCreationDescription, data []metadata.SubResourceData) TextureHandle {
	if err := d.validateTexture(desc, data); err != nil {
		return TextureHandle{}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.createTextureLocked(desc, data, "")
}

func (d *Device) createTextureLocked(desc *metadata.TextureCreationDescription, data []metadata.SubResourceData, name string) TextureHandle {
	native, err := d.backend.CreateTexture(desc)
	if err != nil {
		core.LogError("CreateTexture: backend failed to create a %dx%d %s texture: %s", desc.Width, desc.Height, desc.Format, err)
		return TextureHandle{}
	}

	var initial barrier.State
	if len(data) > 0 {
		err := d.upload(func(cb any) (any, error) {
			return d.backend.UploadTexture(cb, native, desc, data)
		})
		if err != nil {
			core.LogError("CreateTexture: failed to upload initial data: %s", err)
			d.deleteLater(metadata.ObjectTypeTexture, native)
			return TextureHandle{}
		}
		initial = barrier.StateShaderRead
	}

	t := newTexture(desc, native, name)
	t.ownsNative = true
	t.initialState = initial
	return d.registerTextureLocked(t)
}

func newTexture(desc *metadata.TextureCreationDescription, native any, name string) *Texture {
	return &Texture{
		Description:   *desc,
		Native:        native,
		Name:          name,
		resourceViews: make(map[uint64]TextureResourceViewHandle),
		renderTargets: make(map[uint64]RenderTargetViewHandle),
		uavs:          make(map[uint64]TextureUnorderedAccessViewHandle),
		proxies:       make(map[TextureHandle]struct{}),
	}
}

// registerTextureLocked inserts the texture and creates its default views. On
// failure everything created so far is torn down again.
func (d *Device) registerTextureLocked(t *Texture) TextureHandle {
	h := d.textures.Insert(t)

	if t.Description.AllowShaderResourceView {
		view := metadata.DefaultTextureResourceViewCreationDescription()
		t.DefaultView = d.createTextureResourceViewLocked(h, t, &view)
		if t.DefaultView.IsInvalid() {
			d.unregisterTextureLocked(h)
			return TextureHandle{}
		}
	}
	if t.Description.CreateRenderTarget {
		view := metadata.DefaultRenderTargetViewCreationDescription()
		t.DefaultRenderTarget = d.createRenderTargetViewLocked(h, t, &view)
		if t.DefaultRenderTarget.IsInvalid() {
			d.unregisterTextureLocked(h)
			return TextureHandle{}
		}
	}
	return h
}

// unregisterTextureLocked removes the texture right away. The views it
// already had and its native go through the dead list.
func (d *Device) unregisterTextureLocked(h TextureHandle) {
	d.flushTexture(h.Raw())
}

// CreateProxyTexture exposes one slice of an array or cube texture as a plain
// 2d texture. The proxy shares the parent's native and dies with it.
func (d *Device) CreateProxyTexture(parent TextureHandle, slice uint32) TextureHandle {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.textures.TryGet(parent)
	if !ok {
		validationError("CreateProxyTexture: %s is not a valid texture", parent)
		return TextureHandle{}
	}
	if p.IsProxy() {
		validationError("CreateProxyTexture: %s is a proxy itself", parent)
		return TextureHandle{}
	}
	slices := p.Description.ArraySize
	if p.Description.Type == metadata.TextureTypeCube {
		slices *= 6
	} else if slices <= 1 {
		validationError("CreateProxyTexture: %s is neither a cube nor an array", parent)
		return TextureHandle{}
	}
	if slice >= slices {
		validationError("CreateProxyTexture: slice %d is out of range, %s has %d slices", slice, parent, slices)
		return TextureHandle{}
	}

	desc := p.Description
	desc.Type = metadata.TextureType2DProxy
	desc.ArraySize = 1
	desc.ExistingNativeObject = nil

	t := newTexture(&desc, p.Native, p.Name)
	t.Parent = parent
	t.Slice = slice
	t.initialState = p.initialState
	h := d.registerTextureLocked(t)
	if !h.IsInvalid() {
		p.proxies[h] = struct{}{}
	}
	return h
}

func (d *Device) DestroyProxyTexture(h TextureHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.textures.TryGet(h)
	if !ok || !t.IsProxy() {
		core.LogWarn("DestroyProxyTexture: %s is not a live proxy texture (double free?)", h)
		return
	}
	d.addDeadObjectLocked(metadata.ObjectTypeTexture, h.Raw())
}

// CreateSharedTexture creates a 2d texture that another device or process can
// open with the returned handle.
func (d *Device) CreateSharedTexture(desc *metadata.TextureCreationDescription) (TextureHandle, metadata.PlatformSharedHandle) {
	if err := d.validateShared(desc); err != nil {
		return TextureHandle{}, metadata.PlatformSharedHandle{}
	}
	return d.newSharedTexture(desc, nil)
}

// OpenSharedTexture wraps a texture exported by CreateSharedTexture.
func (d *Device) OpenSharedTexture(desc *metadata.TextureCreationDescription, shared metadata.PlatformSharedHandle) TextureHandle {
	if !shared.IsValid() {
		validationError("OpenSharedTexture: shared handle is invalid")
		return TextureHandle{}
	}
	if err := d.validateShared(desc); err != nil {
		return TextureHandle{}
	}
	h, _ := d.newSharedTexture(desc, &shared)
	return h
}

func (d *Device) validateShared(desc *metadata.TextureCreationDescription) error {
	if !d.capabilities.SupportsSharedTextures {
		return d.contractViolation(core.ErrNotSupported, "shared textures on `%s`", d.capabilities.AdapterName)
	}
	if desc.Type != metadata.TextureType2DShared {
		return validationError("CreateSharedTexture: texture type must be %s, got %s", metadata.TextureType2DShared, desc.Type)
	}
	if desc.ExistingNativeObject != nil {
		return validationError("CreateSharedTexture: shared textures cannot wrap an existing object")
	}
	if desc.Width == 0 || desc.Height == 0 || !desc.Format.IsValid() {
		return validationError("CreateSharedTexture: %dx%d %s is invalid", desc.Width, desc.Height, desc.Format)
	}
	return nil
}

func (d *Device) newSharedTexture(desc *metadata.TextureCreationDescription, open *metadata.PlatformSharedHandle) (TextureHandle, metadata.PlatformSharedHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()

	native, shared, err := d.backend.CreateSharedTexture(desc, open)
	if err != nil {
		core.LogError("CreateSharedTexture: backend failed: %s", err)
		return TextureHandle{}, metadata.PlatformSharedHandle{}
	}
	t := newTexture(desc, native, "")
	t.ownsNative = true
	t.Shared = shared
	h := d.registerTextureLocked(t)
	if h.IsInvalid() {
		return h, metadata.PlatformSharedHandle{}
	}
	return h, shared
}

func (d *Device) DestroySharedTexture(h TextureHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.textures.TryGet(h)
	if !ok || t.Description.Type != metadata.TextureType2DShared {
		core.LogWarn("DestroySharedTexture: %s is not a live shared texture (double free?)", h)
		return
	}
	d.addDeadObjectLocked(metadata.ObjectTypeTexture, h.Raw())
}

// DestroyTexture queues the texture, its views and its proxies for teardown.
func (d *Device) DestroyTexture(h TextureHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.textures.Contains(h) {
		core.LogWarn("DestroyTexture: %s is not a live texture (double free?)", h)
		return
	}
	d.addDeadObjectLocked(metadata.ObjectTypeTexture, h.Raw())
}

func (d *Device) GetTexture(h TextureHandle) (*Texture, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.textures.TryGet(h)
}

func (d *Device) GetDefaultResourceView(h TextureHandle) TextureResourceViewHandle {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.textures.TryGet(h); ok {
		return t.DefaultView
	}
	return TextureResourceViewHandle{}
}

func (d *Device) GetDefaultRenderTargetView(h TextureHandle) RenderTargetViewHandle {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.textures.TryGet(h); ok {
		return t.DefaultRenderTarget
	}
	return RenderTargetViewHandle{}
}

// textureKey returns the barrier tracking key of a texture. Proxies are
// tracked through their parent since they share its native.
func textureKey(h TextureHandle, t *Texture) barrier.ResourceKey {
	if t.IsProxy() {
		return barrier.ResourceKey{Texture: true, Handle: t.Parent.Raw()}
	}
	return barrier.ResourceKey{Texture: true, Handle: h.Raw()}
}

func bufferKey(h BufferHandle) barrier.ResourceKey {
	return barrier.ResourceKey{Handle: h.Raw()}
}
