package vulkan

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-gal/engine/core"
	"github.com/spaghettifunk/anima-gal/engine/renderer"
	"github.com/spaghettifunk/anima-gal/engine/renderer/metadata"
)

var _ renderer.Backend = (*Backend)(nil)

type Options struct {
	ApplicationName string
	// Debug enables the validation layer and routes its reports to the logger.
	Debug bool
	// InstanceExtensions are the window system extensions. Empty when the
	// device renders offscreen only.
	InstanceExtensions []string
}

/**
 * @brief The Vulkan implementation of renderer.Backend. One graphics queue
 * that also runs compute and transfer work.
 */
type Backend struct {
	options Options
	locks   *VulkanLockPool

	instance      vk.Instance
	allocator     *vk.AllocationCallbacks
	debugCallback vk.DebugReportCallback

	physicalDevice vk.PhysicalDevice
	properties     vk.PhysicalDeviceProperties
	features       vk.PhysicalDeviceFeatures
	memory         vk.PhysicalDeviceMemoryProperties

	device      vk.Device
	queue       vk.Queue
	queueFamily uint32
	commandPool vk.CommandPool

	/** @brief The swap chain extension was enabled on the device. */
	presentable  bool
	capabilities metadata.Capabilities

	/** @brief Queries reset by the next command buffer that begins recording. */
	pendingResets map[*Query]struct{}
}

func New(options Options) (*Backend, error) {
	b := &Backend{
		options:       options,
		locks:         NewVulkanLockPool(),
		pendingResets: make(map[*Query]struct{}),
	}
	if err := b.createInstance(); err != nil {
		return nil, err
	}
	if err := b.createDevice(); err != nil {
		b.destroyInstance()
		return nil, err
	}
	b.locks.SetQueueFamily(b.queueFamily)
	b.capabilities = b.queryCapabilities()
	core.LogInfo("Vulkan backend initialized on `%s`.", b.capabilities.AdapterName)
	return b, nil
}

func (b *Backend) createInstance() error {
	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		err := fmt.Errorf("GetInstanceProcAddress is nil: %w", core.ErrNotSupported)
		core.LogError("%s", err)
		return err
	}
	vk.SetGetInstanceProcAddr(procAddr)

	if err := vk.Init(); err != nil {
		core.LogError("failed to initialize vk: %s", err)
		return err
	}

	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 1, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(b.options.ApplicationName),
		PEngineName:        VulkanSafeString("Anima GAL"),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	extensions := uniqueStrings(b.options.InstanceExtensions)
	if runtime.GOOS == "darwin" {
		extensions = append(extensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
		createInfo.Flags |= 1
	}

	var layers []string
	if b.options.Debug {
		extensions = append(extensions, vk.ExtDebugReportExtensionName)
		layers = []string{"VK_LAYER_KHRONOS_validation"}
		if err := checkValidationLayers(layers); err != nil {
			core.LogWarn("validation disabled: %s", err)
			layers = nil
			extensions = extensions[:len(extensions)-1]
		}
	}
	for _, ext := range extensions {
		core.LogDebug("instance extension: %s", ext)
	}

	createInfo.EnabledExtensionCount = uint32(len(extensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(extensions)
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(layers)

	if res := vk.CreateInstance(&createInfo, b.allocator, &b.instance); res != vk.Success {
		err := fmt.Errorf("failed in creating the Vulkan Instance with error `%s`", VulkanResultString(res, true))
		core.LogError("%s", err)
		return err
	}
	if err := vk.InitInstance(b.instance); err != nil {
		core.LogError("%s", err)
		return err
	}
	core.LogInfo("Vulkan Instance created.")

	if len(layers) > 0 {
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: dbgCallbackFunc,
		}
		var dbg vk.DebugReportCallback
		if err := vk.Error(vk.CreateDebugReportCallback(b.instance, &debugCreateInfo, nil, &dbg)); err != nil {
			core.LogError("vk.CreateDebugReportCallback failed with %s", err)
			return err
		}
		b.debugCallback = dbg
		core.LogDebug("Vulkan debugger created.")
	}
	return nil
}

func checkValidationLayers(required []string) error {
	var count uint32
	if res := vk.EnumerateInstanceLayerProperties(&count, nil); res != vk.Success {
		return fmt.Errorf("EnumerateInstanceLayerProperties: %s", VulkanResultString(res, false))
	}
	available := make([]vk.LayerProperties, count)
	if res := vk.EnumerateInstanceLayerProperties(&count, available); res != vk.Success {
		return fmt.Errorf("EnumerateInstanceLayerProperties: %s", VulkanResultString(res, false))
	}
	for _, name := range required {
		found := false
		for i := range available {
			available[i].Deref()
			if vk.ToString(available[i].LayerName[:]) == name {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("required validation layer is missing: %s", name)
		}
	}
	return nil
}

func uniqueStrings(list []string) []string {
	seen := make(map[string]struct{}, len(list))
	out := make([]string, 0, len(list)+3)
	for _, s := range list {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func (b *Backend) queryCapabilities() metadata.Capabilities {
	limits := b.properties.Limits
	limits.Deref()

	caps := metadata.Capabilities{
		AdapterName:                           vk.ToString(b.properties.DeviceName[:]),
		SupportsMultithreadedResourceCreation: true,
		SupportsIndirectDraw:                  true,
		MaxTextureSize:                        limits.MaxImageDimension2D,
		MaxPushConstantsSize:                  limits.MaxPushConstantsSize,
		MinConstantAlignment:                  uint32(limits.MinUniformBufferOffsetAlignment),
	}
	if limits.TimestampPeriod > 0 {
		caps.TimestampTicksPerSecond = uint64(1e9 / float64(limits.TimestampPeriod))
	}
	for i := uint32(0); i < b.memory.MemoryHeapCount; i++ {
		heap := b.memory.MemoryHeaps[i]
		heap.Deref()
		if vk.MemoryHeapFlagBits(heap.Flags)&vk.MemoryHeapDeviceLocalBit != 0 {
			caps.DedicatedMemory += uint64(heap.Size)
		} else {
			caps.SharedMemory += uint64(heap.Size)
		}
	}
	return caps
}

func (b *Backend) Name() string {
	return "vulkan"
}

func (b *Backend) Capabilities() metadata.Capabilities {
	return b.capabilities
}

func (b *Backend) Shutdown() error {
	if b.device != nil {
		vk.DeviceWaitIdle(b.device)
		if b.commandPool != nil {
			vk.DestroyCommandPool(b.device, b.commandPool, b.allocator)
			b.commandPool = nil
		}
		vk.DestroyDevice(b.device, b.allocator)
		b.device = nil
	}
	b.destroyInstance()
	core.LogInfo("Vulkan backend shut down.")
	return nil
}

func (b *Backend) destroyInstance() {
	if b.debugCallback != nil {
		vk.DestroyDebugReportCallback(b.instance, b.debugCallback, nil)
		b.debugCallback = nil
	}
	if b.instance != nil {
		vk.DestroyInstance(b.instance, b.allocator)
		b.instance = nil
	}
}

// Destroy releases a native created by this backend. Objects that only carry
// a description own nothing on the GPU.
func (b *Backend) Destroy(kind metadata.ObjectType, native any) {
	switch kind {
	case metadata.ObjectTypeBuffer:
		if buf, ok := native.(*Buffer); ok {
			b.destroyBuffer(buf)
		}
	case metadata.ObjectTypeTexture:
		if tex, ok := native.(*Texture); ok {
			b.destroyTexture(tex)
		}
	case metadata.ObjectTypeTextureResourceView, metadata.ObjectTypeRenderTargetView, metadata.ObjectTypeTextureUnorderedAccessView:
		if view, ok := native.(*ImageView); ok && view.Handle != nil {
			vk.DestroyImageView(b.device, view.Handle, b.allocator)
			view.Handle = nil
		}
	case metadata.ObjectTypeSamplerState:
		if s, ok := native.(*Sampler); ok && s.Handle != nil {
			vk.DestroySampler(b.device, s.Handle, b.allocator)
			s.Handle = nil
		}
	case metadata.ObjectTypeShader:
		if s, ok := native.(*Shader); ok {
			b.destroyShader(s)
		}
	case metadata.ObjectTypeQuery:
		if q, ok := native.(*Query); ok && q.Pool != nil {
			_ = b.locks.SafeCall(QueryManagement, func() error {
				delete(b.pendingResets, q)
				return nil
			})
			vk.DestroyQueryPool(b.device, q.Pool, b.allocator)
			q.Pool = nil
		}
	case metadata.ObjectTypeBufferResourceView, metadata.ObjectTypeBufferUnorderedAccessView,
		metadata.ObjectTypeBlendState, metadata.ObjectTypeDepthStencilState,
		metadata.ObjectTypeRasterizerState, metadata.ObjectTypeVertexDeclaration:
	default:
		core.LogWarn("vulkan: Destroy called with unexpected kind %s (%T)", kind, native)
	}
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("ERROR: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogDebug("INFORMATION: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
