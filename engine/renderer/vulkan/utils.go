package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-gal/engine/core"
)

type resultInfo struct {
	name        string
	description string
}

// https://registry.khronos.org/vulkan/specs/1.3-extensions/man/html/VkResult.html
var resultInfos = map[vk.Result]resultInfo{
	vk.Success:                   {"VK_SUCCESS", "command successfully completed"},
	vk.NotReady:                  {"VK_NOT_READY", "a fence or query has not yet completed"},
	vk.Timeout:                   {"VK_TIMEOUT", "a wait operation has not completed in the specified time"},
	vk.Incomplete:                {"VK_INCOMPLETE", "a return array was too small for the result"},
	vk.Suboptimal:                {"VK_SUBOPTIMAL_KHR", "a swapchain no longer matches the surface properties exactly"},
	vk.ErrorOutOfHostMemory:      {"VK_ERROR_OUT_OF_HOST_MEMORY", "a host memory allocation has failed"},
	vk.ErrorOutOfDeviceMemory:    {"VK_ERROR_OUT_OF_DEVICE_MEMORY", "a device memory allocation has failed"},
	vk.ErrorInitializationFailed: {"VK_ERROR_INITIALIZATION_FAILED", "initialization of an object could not be completed"},
	vk.ErrorDeviceLost:           {"VK_ERROR_DEVICE_LOST", "the logical or physical device has been lost"},
	vk.ErrorMemoryMapFailed:      {"VK_ERROR_MEMORY_MAP_FAILED", "mapping of a memory object has failed"},
	vk.ErrorLayerNotPresent:      {"VK_ERROR_LAYER_NOT_PRESENT", "a requested layer is not present or could not be loaded"},
	vk.ErrorExtensionNotPresent:  {"VK_ERROR_EXTENSION_NOT_PRESENT", "a requested extension is not supported"},
	vk.ErrorFeatureNotPresent:    {"VK_ERROR_FEATURE_NOT_PRESENT", "a requested feature is not supported"},
	vk.ErrorIncompatibleDriver:   {"VK_ERROR_INCOMPATIBLE_DRIVER", "the requested version of Vulkan is not supported by the driver"},
	vk.ErrorTooManyObjects:       {"VK_ERROR_TOO_MANY_OBJECTS", "too many objects of the type have already been created"},
	vk.ErrorFormatNotSupported:   {"VK_ERROR_FORMAT_NOT_SUPPORTED", "a requested format is not supported on this device"},
	vk.ErrorFragmentedPool:       {"VK_ERROR_FRAGMENTED_POOL", "a pool allocation has failed due to fragmentation"},
	vk.ErrorOutOfPoolMemory:      {"VK_ERROR_OUT_OF_POOL_MEMORY", "a pool memory allocation has failed"},
	vk.ErrorSurfaceLost:          {"VK_ERROR_SURFACE_LOST_KHR", "a surface is no longer available"},
	vk.ErrorNativeWindowInUse:    {"VK_ERROR_NATIVE_WINDOW_IN_USE_KHR", "the window is already in use by Vulkan or another API"},
	vk.ErrorOutOfDate:            {"VK_ERROR_OUT_OF_DATE_KHR", "the surface changed and is no longer compatible with the swapchain"},
}

// VulkanResultString names a result, with its description when extended.
func VulkanResultString(result vk.Result, extended bool) string {
	info, ok := resultInfos[result]
	if !ok {
		info = resultInfo{"VK_ERROR_UNKNOWN", fmt.Sprintf("unknown result %d", int32(result))}
	}
	if !extended {
		return info.name
	}
	return info.name + ": " + info.description
}

// resultError wraps a failed result. A lost device is reported as
// core.ErrDeviceLost so the frame loop can stop.
func resultError(op string, result vk.Result) error {
	if result == vk.ErrorDeviceLost {
		return fmt.Errorf("%s: %s: %w", op, VulkanResultString(result, false), core.ErrDeviceLost)
	}
	return fmt.Errorf("%s: %s", op, VulkanResultString(result, true))
}

// VulkanSafeString null-terminates s for the C API.
func VulkanSafeString(s string) string {
	if len(s) == 0 || s[len(s)-1] != 0 {
		return s + "\x00"
	}
	return s
}

func VulkanSafeStrings(list []string) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = VulkanSafeString(s)
	}
	return out
}
