package vulkan

import (
	"fmt"
	"runtime"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-gal/engine/core"
)

type physicalDeviceCandidate struct {
	handle      vk.PhysicalDevice
	properties  vk.PhysicalDeviceProperties
	features    vk.PhysicalDeviceFeatures
	memory      vk.PhysicalDeviceMemoryProperties
	queueFamily uint32
	extensions  map[string]bool
	score       int
}

func (b *Backend) createDevice() error {
	candidate, err := b.selectPhysicalDevice()
	if err != nil {
		return err
	}
	b.physicalDevice = candidate.handle
	b.properties = candidate.properties
	b.features = candidate.features
	b.memory = candidate.memory
	b.queueFamily = candidate.queueFamily

	core.LogInfo("Creating logical device...")

	var extensionNames []string
	if candidate.extensions[vk.KhrSwapchainExtensionName] {
		extensionNames = append(extensionNames, vk.KhrSwapchainExtensionName)
		b.presentable = true
	} else if len(b.options.InstanceExtensions) > 0 {
		core.LogWarn("device does not support %s, presenting is disabled", vk.KhrSwapchainExtensionName)
	}
	if candidate.extensions["VK_KHR_portability_subset"] {
		core.LogInfo("Adding required extension 'VK_KHR_portability_subset'.")
		extensionNames = append(extensionNames, "VK_KHR_portability_subset")
	}

	// only request what the adapter offers
	supported := candidate.features
	enabled := vk.PhysicalDeviceFeatures{
		SamplerAnisotropy:                    supported.SamplerAnisotropy,
		FillModeNonSolid:                     supported.FillModeNonSolid,
		DepthBiasClamp:                       supported.DepthBiasClamp,
		DepthClamp:                           supported.DepthClamp,
		IndependentBlend:                     supported.IndependentBlend,
		MultiDrawIndirect:                    supported.MultiDrawIndirect,
		GeometryShader:                       supported.GeometryShader,
		TessellationShader:                   supported.TessellationShader,
		FragmentStoresAndAtomics:             supported.FragmentStoresAndAtomics,
		ShaderStorageImageWriteWithoutFormat: supported.ShaderStorageImageWriteWithoutFormat,
	}
	b.features = enabled

	queueCreateInfos := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: b.queueFamily,
		QueueCount:       1,
		PQueuePriorities: []float32{1.0},
	}}

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{enabled},
		EnabledExtensionCount:   uint32(len(extensionNames)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensionNames),
	}

	var device vk.Device
	if res := vk.CreateDevice(b.physicalDevice, &deviceCreateInfo, b.allocator, &device); res != vk.Success {
		err := fmt.Errorf("failed to create the logical device: %s", VulkanResultString(res, true))
		core.LogError("%s", err)
		return err
	}
	b.device = device
	core.LogInfo("Logical device created.")

	var queue vk.Queue
	vk.GetDeviceQueue(b.device, b.queueFamily, 0, &queue)
	b.queue = queue

	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: b.queueFamily,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	var pool vk.CommandPool
	if res := vk.CreateCommandPool(b.device, &poolCreateInfo, b.allocator, &pool); res != vk.Success {
		err := fmt.Errorf("failed to create the graphics command pool: %s", VulkanResultString(res, true))
		core.LogError("%s", err)
		vk.DestroyDevice(b.device, b.allocator)
		b.device = nil
		return err
	}
	b.commandPool = pool
	core.LogInfo("Graphics command pool created.")
	return nil
}

// selectPhysicalDevice picks the adapter with a queue family that runs
// graphics, compute and transfer work. Discrete GPUs win over the rest.
func (b *Backend) selectPhysicalDevice() (*physicalDeviceCandidate, error) {
	var count uint32
	if res := vk.EnumeratePhysicalDevices(b.instance, &count, nil); res != vk.Success {
		err := fmt.Errorf("EnumeratePhysicalDevices failed: %s", VulkanResultString(res, true))
		core.LogError("%s", err)
		return nil, err
	}
	if count == 0 {
		err := fmt.Errorf("no devices which support Vulkan were found: %w", core.ErrNotSupported)
		core.LogError("%s", err)
		return nil, err
	}
	devices := make([]vk.PhysicalDevice, count)
	if res := vk.EnumeratePhysicalDevices(b.instance, &count, devices); res != vk.Success {
		err := fmt.Errorf("EnumeratePhysicalDevices failed: %s", VulkanResultString(res, true))
		core.LogError("%s", err)
		return nil, err
	}

	var best *physicalDeviceCandidate
	for _, device := range devices {
		candidate, ok := inspectPhysicalDevice(device)
		if !ok {
			continue
		}
		if best == nil || candidate.score > best.score {
			best = candidate
		}
	}
	if best == nil {
		err := fmt.Errorf("no physical devices were found which meet the requirements: %w", core.ErrNotSupported)
		core.LogError("%s", err)
		return nil, err
	}

	props := best.properties
	core.LogInfo("Selected device: '%s'.", vk.ToString(props.DeviceName[:]))
	core.LogInfo(
		"GPU Driver version: %d.%d.%d",
		vk.Version(props.DriverVersion).Major(),
		vk.Version(props.DriverVersion).Minor(),
		vk.Version(props.DriverVersion).Patch(),
	)
	core.LogInfo(
		"Vulkan API version: %d.%d.%d",
		vk.Version(props.ApiVersion).Major(),
		vk.Version(props.ApiVersion).Minor(),
		vk.Version(props.ApiVersion).Patch(),
	)
	return best, nil
}

func inspectPhysicalDevice(device vk.PhysicalDevice) (*physicalDeviceCandidate, bool) {
	c := &physicalDeviceCandidate{handle: device, extensions: make(map[string]bool)}

	vk.GetPhysicalDeviceProperties(device, &c.properties)
	c.properties.Deref()
	vk.GetPhysicalDeviceFeatures(device, &c.features)
	c.features.Deref()
	vk.GetPhysicalDeviceMemoryProperties(device, &c.memory)
	c.memory.Deref()

	name := vk.ToString(c.properties.DeviceName[:])

	var familyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &familyCount, nil)
	families := make([]vk.QueueFamilyProperties, familyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &familyCount, families)

	want := vk.QueueFlags(vk.QueueGraphicsBit) | vk.QueueFlags(vk.QueueComputeBit)
	found := false
	for i := range families {
		families[i].Deref()
		// graphics queues implicitly support transfer
		if families[i].QueueFlags&want == want {
			c.queueFamily = uint32(i)
			found = true
			break
		}
	}
	if !found {
		core.LogInfo("Device '%s' has no graphics and compute queue, skipping.", name)
		return nil, false
	}

	var extCount uint32
	if res := vk.EnumerateDeviceExtensionProperties(device, "", &extCount, nil); res == vk.Success && extCount > 0 {
		available := make([]vk.ExtensionProperties, extCount)
		if res := vk.EnumerateDeviceExtensionProperties(device, "", &extCount, available); res == vk.Success {
			for i := range available {
				available[i].Deref()
				c.extensions[vk.ToString(available[i].ExtensionName[:])] = true
			}
		}
	}

	switch c.properties.DeviceType {
	case vk.PhysicalDeviceTypeDiscreteGpu:
		c.score = 3
	case vk.PhysicalDeviceTypeIntegratedGpu:
		c.score = 2
	case vk.PhysicalDeviceTypeVirtualGpu:
		c.score = 1
	}
	if runtime.GOOS == "darwin" && c.properties.DeviceType == vk.PhysicalDeviceTypeIntegratedGpu {
		c.score = 3
	}
	if c.extensions[vk.KhrSwapchainExtensionName] {
		c.score += 4
	}
	core.LogDebug("Device '%s' meets the queue requirements, family %d, score %d.", name, c.queueFamily, c.score)
	return c, true
}
