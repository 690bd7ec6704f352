package vulkan

import (
	"fmt"
	gomath "math"
	"time"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-gal/engine/core"
	"github.com/spaghettifunk/anima-gal/engine/math"
	"github.com/spaghettifunk/anima-gal/engine/renderer"
	"github.com/spaghettifunk/anima-gal/engine/renderer/metadata"
)

var _ renderer.SwapChainPlatform = (*SwapChain)(nil)

type swapchainSupportInfo struct {
	Capabilities vk.SurfaceCapabilities
	Formats      []vk.SurfaceFormat
	PresentModes []vk.PresentMode
}

/**
 * @brief A window surface plus the swap chain presenting to it. Back buffers
 * are wrapped textures that the device registers like any other texture.
 */
type SwapChain struct {
	backend *Backend
	window  *glfw.Window
	desc    metadata.SwapChainCreationDescription
	mode    metadata.PresentMode

	surface     vk.Surface
	handle      vk.Swapchain
	imageFormat vk.SurfaceFormat
	extent      vk.Extent2D
	backBuffers []any

	/** @brief One more acquire semaphore than images, used round robin. */
	imageAvailable []vk.Semaphore
	nextAvailable  int
	/** @brief Indexed by image. */
	renderFinished []*Semaphore

	current  uint32
	acquired bool
	/** @brief Replaced swap chains, freed once their views are gone. */
	retired []vk.Swapchain
}

// NewSwapChainFactory returns the factory a device uses to create swap chains
// for glfw windows.
func NewSwapChainFactory(b *Backend) renderer.SwapChainFactory {
	return func(desc *metadata.SwapChainCreationDescription) (renderer.SwapChainPlatform, error) {
		return b.newSwapChain(desc)
	}
}

func (b *Backend) newSwapChain(desc *metadata.SwapChainCreationDescription) (*SwapChain, error) {
	if !b.presentable {
		err := fmt.Errorf("vulkan: device cannot present: %w", core.ErrNotSupported)
		core.LogError("%s", err)
		return nil, err
	}
	window, ok := desc.Window.(*glfw.Window)
	if !ok || window == nil {
		err := fmt.Errorf("vulkan: swap chain `%s` needs a *glfw.Window, got %T: %w", desc.Name, desc.Window, core.ErrValidation)
		core.LogError("%s", err)
		return nil, err
	}

	surfacePtr, err := window.CreateWindowSurface(b.instance, nil)
	if err != nil {
		core.LogError("failed to create window surface: %s", err)
		return nil, err
	}
	sc := &SwapChain{
		backend: b,
		window:  window,
		desc:    *desc,
		mode:    desc.InitialPresentMode,
		surface: vk.SurfaceFromPointer(surfacePtr),
	}

	var supported vk.Bool32
	if res := vk.GetPhysicalDeviceSurfaceSupport(b.physicalDevice, b.queueFamily, sc.surface, &supported); res != vk.Success || supported != vk.True {
		sc.Destroy()
		err := fmt.Errorf("vulkan: queue family %d cannot present to the window: %w", b.queueFamily, core.ErrNotSupported)
		core.LogError("%s", err)
		return nil, err
	}
	if err := sc.create(); err != nil {
		sc.Destroy()
		return nil, err
	}
	core.LogInfo("swap chain `%s` created: %dx%d, %d images", desc.Name, sc.extent.Width, sc.extent.Height, len(sc.backBuffers))
	return sc, nil
}

func (sc *SwapChain) querySupport() (*swapchainSupportInfo, error) {
	b := sc.backend
	info := &swapchainSupportInfo{}
	if res := vk.GetPhysicalDeviceSurfaceCapabilities(b.physicalDevice, sc.surface, &info.Capabilities); res != vk.Success {
		return nil, fmt.Errorf("failed to get surface capabilities: %s", VulkanResultString(res, false))
	}
	info.Capabilities.Deref()
	info.Capabilities.CurrentExtent.Deref()
	info.Capabilities.MinImageExtent.Deref()
	info.Capabilities.MaxImageExtent.Deref()

	var formatCount uint32
	if res := vk.GetPhysicalDeviceSurfaceFormats(b.physicalDevice, sc.surface, &formatCount, nil); res != vk.Success {
		return nil, fmt.Errorf("failed to get surface formats: %s", VulkanResultString(res, false))
	}
	info.Formats = make([]vk.SurfaceFormat, formatCount)
	if formatCount > 0 {
		if res := vk.GetPhysicalDeviceSurfaceFormats(b.physicalDevice, sc.surface, &formatCount, info.Formats); res != vk.Success {
			return nil, fmt.Errorf("failed to get surface formats: %s", VulkanResultString(res, false))
		}
	}
	for i := range info.Formats {
		info.Formats[i].Deref()
	}

	var modeCount uint32
	if res := vk.GetPhysicalDeviceSurfacePresentModes(b.physicalDevice, sc.surface, &modeCount, nil); res != vk.Success {
		return nil, fmt.Errorf("failed to get present modes: %s", VulkanResultString(res, false))
	}
	info.PresentModes = make([]vk.PresentMode, modeCount)
	if modeCount > 0 {
		if res := vk.GetPhysicalDeviceSurfacePresentModes(b.physicalDevice, sc.surface, &modeCount, info.PresentModes); res != vk.Success {
			return nil, fmt.Errorf("failed to get present modes: %s", VulkanResultString(res, false))
		}
	}
	if len(info.Formats) == 0 || len(info.PresentModes) == 0 {
		return nil, fmt.Errorf("surface reports no formats or present modes: %w", core.ErrNotSupported)
	}
	return info, nil
}

func chooseSurfaceFormat(formats []vk.SurfaceFormat, wanted vk.Format) vk.SurfaceFormat {
	for _, f := range formats {
		if wanted != vk.FormatUndefined && f.Format == wanted {
			return f
		}
	}
	for _, f := range formats {
		if f.Format == vk.FormatB8g8r8a8Unorm && f.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			return f
		}
	}
	return formats[0]
}

// choosePresentMode maps VSync to FIFO, which is always available. Immediate
// falls back to mailbox and then to FIFO.
func choosePresentMode(modes []vk.PresentMode, mode metadata.PresentMode) vk.PresentMode {
	if mode == metadata.PresentModeVSync {
		return vk.PresentModeFifo
	}
	for _, preferred := range []vk.PresentMode{vk.PresentModeImmediate, vk.PresentModeMailbox} {
		for _, m := range modes {
			if m == preferred {
				return m
			}
		}
	}
	return vk.PresentModeFifo
}

func (sc *SwapChain) create() error {
	b := sc.backend
	support, err := sc.querySupport()
	if err != nil {
		core.LogError("%s", err)
		return err
	}
	caps := support.Capabilities

	sc.imageFormat = chooseSurfaceFormat(support.Formats, toVkFormat(sc.desc.BackBufferFormat))
	presentMode := choosePresentMode(support.PresentModes, sc.mode)

	extent := vk.Extent2D{Width: sc.desc.Width, Height: sc.desc.Height}
	if caps.CurrentExtent.Width != gomath.MaxUint32 {
		extent = caps.CurrentExtent
	} else if w, h := sc.window.GetFramebufferSize(); w > 0 && h > 0 {
		extent = vk.Extent2D{Width: uint32(w), Height: uint32(h)}
	}
	extent = clampExtent(extent, caps.MinImageExtent, caps.MaxImageExtent)
	if extent.Width == 0 || extent.Height == 0 {
		// Minimized window.
		return core.ErrSwapchainBooting
	}

	imageCount := caps.MinImageCount + 1
	if sc.desc.DoubleBuffered {
		imageCount = max(caps.MinImageCount, 2)
	}
	if caps.MaxImageCount > 0 && imageCount > caps.MaxImageCount {
		imageCount = caps.MaxImageCount
	}

	createInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          sc.surface,
		MinImageCount:    imageCount,
		ImageFormat:      sc.imageFormat.Format,
		ImageColorSpace:  sc.imageFormat.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage: vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit) |
			vk.ImageUsageFlags(vk.ImageUsageTransferDstBit) |
			vk.ImageUsageFlags(vk.ImageUsageTransferSrcBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      presentMode,
		Clipped:          vk.True,
		OldSwapchain:     sc.handle,
	}

	var handle vk.Swapchain
	if res := vk.CreateSwapchain(b.device, &createInfo, b.allocator, &handle); res != vk.Success {
		err := fmt.Errorf("failed to create swap chain: %s", VulkanResultString(res, true))
		core.LogError("%s", err)
		return err
	}
	if sc.handle != nil {
		sc.retired = append(sc.retired, sc.handle)
	}
	sc.handle = handle
	sc.extent = extent

	var count uint32
	if res := vk.GetSwapchainImages(b.device, handle, &count, nil); res != vk.Success {
		return fmt.Errorf("failed to get swap chain images: %s", VulkanResultString(res, false))
	}
	images := make([]vk.Image, count)
	if res := vk.GetSwapchainImages(b.device, handle, &count, images); res != vk.Success {
		return fmt.Errorf("failed to get swap chain images: %s", VulkanResultString(res, false))
	}

	resourceFormat := fromVkFormat(sc.imageFormat.Format)
	sc.backBuffers = make([]any, 0, count)
	for _, image := range images {
		sc.backBuffers = append(sc.backBuffers, &Texture{
			Image:          image,
			Format:         sc.imageFormat.Format,
			ResourceFormat: resourceFormat,
			Aspect:         vk.ImageAspectFlags(vk.ImageAspectColorBit),
			Type:           metadata.TextureType2D,
			Width:          extent.Width,
			Height:         extent.Height,
			Depth:          1,
			MipLevels:      1,
			Layers:         1,
			Samples:        vk.SampleCount1Bit,
			wrapped:        true,
		})
	}
	return sc.createSemaphores(int(count))
}

func (sc *SwapChain) createSemaphores(images int) error {
	sc.destroySemaphores()
	b := sc.backend
	for i := 0; i <= images; i++ {
		s, err := b.CreateSemaphore()
		if err != nil {
			return err
		}
		sc.imageAvailable = append(sc.imageAvailable, s.(*Semaphore).Handle)
	}
	for i := 0; i < images; i++ {
		s, err := b.CreateSemaphore()
		if err != nil {
			return err
		}
		sc.renderFinished = append(sc.renderFinished, s.(*Semaphore))
	}
	sc.nextAvailable = 0
	return nil
}

func (sc *SwapChain) destroySemaphores() {
	b := sc.backend
	for _, s := range sc.imageAvailable {
		vk.DestroySemaphore(b.device, s, b.allocator)
	}
	for _, s := range sc.renderFinished {
		b.DestroySemaphore(s)
	}
	sc.imageAvailable = nil
	sc.renderFinished = nil
}

// recreate waits for the queue so no semaphore or image of the old chain is
// still in use.
func (sc *SwapChain) recreate() error {
	b := sc.backend
	vk.DeviceWaitIdle(b.device)
	b.destroyRetired(sc)
	sc.acquired = false
	return sc.create()
}

func (b *Backend) destroyRetired(sc *SwapChain) {
	for _, old := range sc.retired {
		vk.DestroySwapchain(b.device, old, b.allocator)
	}
	sc.retired = nil
}

func (sc *SwapChain) BackBufferDescription() metadata.TextureCreationDescription {
	desc := metadata.DefaultTextureCreationDescription()
	desc.SetAsRenderTarget(sc.extent.Width, sc.extent.Height, fromVkFormat(sc.imageFormat.Format), metadata.MSAASampleCountNone)
	desc.AllowShaderResourceView = false
	return desc
}

func (sc *SwapChain) BackBuffers() []any {
	return sc.backBuffers
}

// Acquire returns core.ErrSwapchainBooting after the chain was rebuilt. The
// caller registers the new back buffers and acquires again.
func (sc *SwapChain) Acquire(timeout time.Duration) (int, any, error) {
	b := sc.backend
	if sc.handle == nil {
		if err := sc.recreate(); err != nil {
			return 0, nil, err
		}
		return 0, nil, core.ErrSwapchainBooting
	}
	semaphore := sc.imageAvailable[sc.nextAvailable]

	var index uint32
	res := vk.AcquireNextImage(b.device, sc.handle, uint64(timeout.Nanoseconds()), semaphore, vk.NullFence, &index)
	switch res {
	case vk.Success, vk.Suboptimal:
	case vk.Timeout, vk.NotReady:
		return 0, nil, core.ErrFenceTimeout
	case vk.ErrorOutOfDate:
		if err := sc.recreate(); err != nil && err != core.ErrSwapchainBooting {
			return 0, nil, err
		}
		return 0, nil, core.ErrSwapchainBooting
	case vk.ErrorDeviceLost:
		return 0, nil, core.ErrDeviceLost
	default:
		err := fmt.Errorf("failed to acquire swap chain image: %s", VulkanResultString(res, true))
		core.LogError("%s", err)
		return 0, nil, err
	}
	sc.nextAvailable = (sc.nextAvailable + 1) % len(sc.imageAvailable)
	sc.current = index
	sc.acquired = true
	return int(index), &Semaphore{Handle: semaphore}, nil
}

func (sc *SwapChain) RenderFinished() any {
	if int(sc.current) >= len(sc.renderFinished) {
		return nil
	}
	return sc.renderFinished[sc.current]
}

func (sc *SwapChain) Present() error {
	if !sc.acquired {
		return fmt.Errorf("vulkan: present without an acquired image: %w", core.ErrValidation)
	}
	sc.acquired = false
	b := sc.backend
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{sc.renderFinished[sc.current].Handle},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{sc.handle},
		PImageIndices:      []uint32{sc.current},
	}
	var res vk.Result
	_ = b.locks.SafeQueueCall(b.queueFamily, func() error {
		res = vk.QueuePresent(b.queue, &presentInfo)
		return nil
	})
	switch res {
	case vk.Success:
		return nil
	case vk.ErrorOutOfDate, vk.Suboptimal:
		// Resized or moved to another output.
		if err := sc.recreate(); err != nil && err != core.ErrSwapchainBooting {
			return err
		}
		return core.ErrSwapchainBooting
	case vk.ErrorDeviceLost:
		return core.ErrDeviceLost
	default:
		err := fmt.Errorf("failed to present swap chain image: %s", VulkanResultString(res, true))
		core.LogError("%s", err)
		return err
	}
}

func (sc *SwapChain) Update(mode metadata.PresentMode) (bool, error) {
	if mode == sc.mode {
		return false, nil
	}
	sc.mode = mode
	var recreated bool
	err := sc.backend.locks.SafeCall(SwapchainManagement, func() error {
		if err := sc.recreate(); err != nil {
			return err
		}
		recreated = true
		return nil
	})
	if err != nil {
		core.LogError("failed to update present mode to %s: %s", mode, err)
		return false, err
	}
	return recreated, nil
}

func (sc *SwapChain) Destroy() {
	b := sc.backend
	if b.device != nil {
		vk.DeviceWaitIdle(b.device)
	}
	sc.destroySemaphores()
	b.destroyRetired(sc)
	if sc.handle != nil {
		vk.DestroySwapchain(b.device, sc.handle, b.allocator)
		sc.handle = nil
	}
	if sc.surface != vk.NullSurface {
		vk.DestroySurface(b.instance, sc.surface, nil)
		sc.surface = vk.NullSurface
	}
	sc.backBuffers = nil
}

// clampExtent fits the requested extent into the surface limits.
func clampExtent(extent, low, high vk.Extent2D) vk.Extent2D {
	return vk.Extent2D{
		Width:  math.Clamp(extent.Width, low.Width, high.Width),
		Height: math.Clamp(extent.Height, low.Height, high.Height),
	}
}
