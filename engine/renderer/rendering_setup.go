package renderer

import (
	"github.com/spaghettifunk/anima-gal/engine/core"
	"github.com/spaghettifunk/anima-gal/engine/renderer/barrier"
	"github.com/spaghettifunk/anima-gal/engine/renderer/cache"
	"github.com/spaghettifunk/anima-gal/engine/renderer/metadata"
)

/**
 * @brief Attachments and clear values of one BeginRendering call.
 */
type RenderingSetup struct {
	ColorTargets []RenderTargetViewHandle
	DepthStencil RenderTargetViewHandle

	ClearColor [4]float32
	/** @brief Bit i clears color target i. */
	ColorClearMask uint8
	ClearFlags     metadata.ClearFlags
	ClearDepth     float32
	ClearStencil   uint8
}

// ClearsAnything reports whether beginning the setup clears at least one
// attachment.
func (s *RenderingSetup) ClearsAnything() bool {
	mask := uint8(1)<<len(s.ColorTargets) - 1
	return s.ColorClearMask&mask != 0 || s.ClearFlags != metadata.ClearFlagsNone
}

type attachment struct {
	view    RenderTargetViewHandle
	native  any
	key     barrier.ResourceKey
	texture any
	state   barrier.State
	initial barrier.State
	cleared bool
}

/**
 * @brief A RenderingSetup resolved against the device tables.
 */
type resolvedSetup struct {
	attachments []attachment
	/** @brief Render pass with the requested load ops, used for the first begin. */
	clearPass cache.RenderPassDescription
	/** @brief Load-everything variant, used when a split pass resumes. It is also
	 * the compatibility key of pipelines and framebuffers. */
	loadPass    cache.RenderPassDescription
	framebuffer *cache.Framebuffer
	width       uint32
	height      uint32
	info        cache.RenderPassBeginInfo
}

// resolveRenderingSetup validates the attachments and builds the render pass
// and framebuffer descriptions.
func (d *Device) resolveRenderingSetup(setup *RenderingSetup) (*resolvedSetup, error) {
	if len(setup.ColorTargets) > metadata.MAX_RENDERTARGET_COUNT {
		return nil, validationError("BeginRendering: %d color targets, the limit is %d", len(setup.ColorTargets), metadata.MAX_RENDERTARGET_COUNT)
	}
	if len(setup.ColorTargets) == 0 && setup.DepthStencil.IsInvalid() {
		return nil, validationError("BeginRendering: no attachments")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	r := &resolvedSetup{}
	var samples metadata.MSAASampleCount

	add := func(h RenderTargetViewHandle, depth bool) (*RenderTargetView, error) {
		v, ok := d.renderTargets.TryGet(h)
		if !ok {
			return nil, validationError("BeginRendering: %s is not a live render target view", h)
		}
		t, ok := d.textures.TryGet(v.Texture)
		if !ok {
			return nil, validationError("BeginRendering: render target view %s outlived its texture", h)
		}
		if v.IsDepth() != depth {
			return nil, validationError("BeginRendering: %s format %s cannot be used there", h, v.Format)
		}
		if len(r.attachments) == 0 {
			r.width, r.height, samples = v.Width, v.Height, v.SampleCount
		} else if v.Width != r.width || v.Height != r.height || v.SampleCount != samples {
			return nil, validationError("BeginRendering: attachment %s is %dx%d x%d, expected %dx%d x%d",
				h, v.Width, v.Height, v.SampleCount, r.width, r.height, samples)
		}
		state := barrier.StateColorTarget
		if depth {
			state = barrier.StateDepthTarget
			if v.Description.ReadOnly {
				state = barrier.StateDepthRead
			}
		}
		r.attachments = append(r.attachments, attachment{
			view:    h,
			native:  v.Native,
			key:     textureKey(v.Texture, t),
			texture: t.Native,
			state:   state,
			initial: t.initialState,
		})
		return v, nil
	}

	for i, h := range setup.ColorTargets {
		v, err := add(h, false)
		if err != nil {
			return nil, err
		}
		load := cache.LoadOpLoad
		if setup.ColorClearMask&(1<<i) != 0 {
			load = cache.LoadOpClear
			r.attachments[i].cleared = true
		}
		r.clearPass.ColorFormats[i] = v.Format
		r.clearPass.ColorLoad[i] = load
		r.clearPass.ColorStore[i] = cache.StoreOpStore
		r.info.ClearColors[i] = setup.ClearColor
	}
	r.clearPass.ColorCount = uint32(len(setup.ColorTargets))

	if !setup.DepthStencil.IsInvalid() {
		v, err := add(setup.DepthStencil, true)
		if err != nil {
			return nil, err
		}
		r.clearPass.DepthFormat = v.Format
		r.clearPass.DepthLoad = cache.LoadOpLoad
		r.clearPass.StencilLoad = cache.LoadOpLoad
		if setup.ClearFlags&metadata.ClearFlagsDepth != 0 {
			r.clearPass.DepthLoad = cache.LoadOpClear
		}
		if setup.ClearFlags&metadata.ClearFlagsStencil != 0 {
			r.clearPass.StencilLoad = cache.LoadOpClear
		}
		r.clearPass.DepthStore = cache.StoreOpStore
		if v.Description.ReadOnly {
			r.clearPass.DepthStore = cache.StoreOpDontCare
		}
		last := &r.attachments[len(r.attachments)-1]
		last.cleared = setup.ClearFlags&metadata.ClearFlagsDepth != 0 &&
			(!v.Format.IsStencil() || setup.ClearFlags&metadata.ClearFlagsStencil != 0)
	}
	r.clearPass.SampleCount = samples

	r.loadPass = r.clearPass
	for i := range r.loadPass.ColorLoad {
		r.loadPass.ColorLoad[i] = cache.LoadOpLoad
	}
	r.loadPass.DepthLoad = cache.LoadOpLoad
	r.loadPass.StencilLoad = cache.LoadOpLoad

	fb := cache.FramebufferDescription{
		RenderPass: r.loadPass,
		Width:      r.width,
		Height:     r.height,
		Layers:     1,
	}
	for _, a := range r.attachments {
		fb.Attachments = append(fb.Attachments, a.view.Raw())
		fb.Natives = append(fb.Natives, a.native)
	}
	framebuffer, err := d.cache.GetOrCreateFramebuffer(&fb)
	if err != nil {
		core.LogError("BeginRendering: %s", err)
		return nil, err
	}
	r.framebuffer = framebuffer

	r.info.Framebuffer = framebuffer
	r.info.Width = r.width
	r.info.Height = r.height
	r.info.ClearDepth = setup.ClearDepth
	r.info.ClearStencil = setup.ClearStencil
	return r, nil
}
