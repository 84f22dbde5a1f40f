package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/aurora/engine/renderer/gpu"
)

func VulkanResultString(result vk.Result) string {
	switch result {
	case vk.Success:
		return "VK_SUCCESS"
	case vk.NotReady:
		return "VK_NOT_READY"
	case vk.Timeout:
		return "VK_TIMEOUT"
	case vk.Incomplete:
		return "VK_INCOMPLETE"
	case vk.Suboptimal:
		return "VK_SUBOPTIMAL_KHR"
	case vk.ErrorOutOfHostMemory:
		return "VK_ERROR_OUT_OF_HOST_MEMORY"
	case vk.ErrorOutOfDeviceMemory:
		return "VK_ERROR_OUT_OF_DEVICE_MEMORY"
	case vk.ErrorInitializationFailed:
		return "VK_ERROR_INITIALIZATION_FAILED"
	case vk.ErrorDeviceLost:
		return "VK_ERROR_DEVICE_LOST"
	case vk.ErrorMemoryMapFailed:
		return "VK_ERROR_MEMORY_MAP_FAILED"
	case vk.ErrorLayerNotPresent:
		return "VK_ERROR_LAYER_NOT_PRESENT"
	case vk.ErrorExtensionNotPresent:
		return "VK_ERROR_EXTENSION_NOT_PRESENT"
	case vk.ErrorFeatureNotPresent:
		return "VK_ERROR_FEATURE_NOT_PRESENT"
	case vk.ErrorIncompatibleDriver:
		return "VK_ERROR_INCOMPATIBLE_DRIVER"
	case vk.ErrorFormatNotSupported:
		return "VK_ERROR_FORMAT_NOT_SUPPORTED"
	case vk.ErrorFragmentedPool:
		return "VK_ERROR_FRAGMENTED_POOL"
	case vk.ErrorOutOfPoolMemory:
		return "VK_ERROR_OUT_OF_POOL_MEMORY"
	case vk.ErrorSurfaceLost:
		return "VK_ERROR_SURFACE_LOST_KHR"
	case vk.ErrorOutOfDate:
		return "VK_ERROR_OUT_OF_DATE_KHR"
	case vk.ErrorInvalidShaderNv:
		return "VK_ERROR_INVALID_SHADER_NV"
	}
	return fmt.Sprintf("VkResult(%d)", int32(result))
}

// resultError maps a failed result onto the device errors callers can
// recover from. Success codes map to nil.
func resultError(op string, result vk.Result) error {
	switch result {
	case vk.Success:
		return nil
	case vk.Timeout:
		return fmt.Errorf("%s: %w", op, gpu.ErrTimeout)
	case vk.Suboptimal:
		return fmt.Errorf("%s: %w", op, gpu.ErrSuboptimal)
	case vk.ErrorOutOfDate:
		return fmt.Errorf("%s: %w", op, gpu.ErrOutOfDate)
	case vk.ErrorDeviceLost:
		return fmt.Errorf("%s: %w", op, gpu.ErrDeviceLost)
	case vk.ErrorOutOfHostMemory, vk.ErrorOutOfDeviceMemory:
		return fmt.Errorf("%s: %w", op, gpu.ErrOutOfMemory)
	case vk.ErrorOutOfPoolMemory, vk.ErrorFragmentedPool:
		return fmt.Errorf("%s: %w", op, gpu.ErrPoolExhausted)
	case vk.ErrorFormatNotSupported:
		return fmt.Errorf("%s: %w", op, gpu.ErrUnsupportedFormat)
	case vk.ErrorInvalidShaderNv:
		return fmt.Errorf("%s: %w", op, gpu.ErrShaderCompile)
	}
	return fmt.Errorf("%s failed with %s", op, VulkanResultString(result))
}

var end = "\x00"
var endChar byte = '\x00'

func VulkanSafeString(s string) string {
	if len(s) == 0 {
		return end
	}
	if s[len(s)-1] != endChar {
		return s + end
	}
	return s
}

func VulkanSafeStrings(list []string) []string {
	out := make([]string, len(list))
	for i := range list {
		out[i] = VulkanSafeString(list[i])
	}
	return out
}

func FindFirstZeroInByteArray(arr []byte) int {
	for i, b := range arr {
		if b == 0 {
			return i
		}
	}
	return len(arr)
}

var formats = map[gpu.Format]vk.Format{
	gpu.FormatUndefined:   vk.FormatUndefined,
	gpu.FormatRGBA8Unorm:  vk.FormatR8g8b8a8Unorm,
	gpu.FormatBGRA8Unorm:  vk.FormatB8g8r8a8Unorm,
	gpu.FormatBGRA8Srgb:   vk.FormatB8g8r8a8Srgb,
	gpu.FormatRGBA16Float: vk.FormatR16g16b16a16Sfloat,
	gpu.FormatRGBA32Float: vk.FormatR32g32b32a32Sfloat,
	gpu.FormatR32Float:    vk.FormatR32Sfloat,
	gpu.FormatRG32Float:   vk.FormatR32g32Sfloat,
	gpu.FormatRGB32Float:  vk.FormatR32g32b32Sfloat,
	gpu.FormatD32Float:    vk.FormatD32Sfloat,
}

func vkFormat(f gpu.Format) (vk.Format, error) {
	v, ok := formats[f]
	if !ok {
		return vk.FormatUndefined, fmt.Errorf("%w: %s", gpu.ErrUnsupportedFormat, f)
	}
	return v, nil
}

// gpuFormat is the reverse lookup used for surface formats.
func gpuFormat(f vk.Format) gpu.Format {
	for k, v := range formats {
		if v == f {
			return k
		}
	}
	return gpu.FormatUndefined
}

var stageBits = []vk.PipelineStageFlagBits{
	vk.PipelineStageTopOfPipeBit,
	vk.PipelineStageDrawIndirectBit,
	vk.PipelineStageVertexInputBit,
	vk.PipelineStageVertexShaderBit,
	vk.PipelineStageFragmentShaderBit,
	vk.PipelineStageEarlyFragmentTestsBit,
	vk.PipelineStageLateFragmentTestsBit,
	vk.PipelineStageColorAttachmentOutputBit,
	vk.PipelineStageComputeShaderBit,
	vk.PipelineStageTransferBit,
	vk.PipelineStageBottomOfPipeBit,
	vk.PipelineStageHostBit,
	vk.PipelineStageAllGraphicsBit,
	vk.PipelineStageAllCommandsBit,
}

func vkStages(s gpu.Stage) vk.PipelineStageFlags {
	var out vk.PipelineStageFlags
	for i, bit := range stageBits {
		if s&(1<<uint(i)) != 0 {
			out |= vk.PipelineStageFlags(bit)
		}
	}
	// A zero mask is invalid for barriers and waits.
	if out == 0 {
		out = vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
	}
	return out
}

var accessBits = []vk.AccessFlagBits{
	vk.AccessIndirectCommandReadBit,
	vk.AccessIndexReadBit,
	vk.AccessVertexAttributeReadBit,
	vk.AccessUniformReadBit,
	vk.AccessInputAttachmentReadBit,
	vk.AccessShaderReadBit,
	vk.AccessShaderWriteBit,
	vk.AccessColorAttachmentReadBit,
	vk.AccessColorAttachmentWriteBit,
	vk.AccessDepthStencilAttachmentReadBit,
	vk.AccessDepthStencilAttachmentWriteBit,
	vk.AccessTransferReadBit,
	vk.AccessTransferWriteBit,
	vk.AccessHostReadBit,
	vk.AccessHostWriteBit,
	vk.AccessMemoryReadBit,
	vk.AccessMemoryWriteBit,
}

func vkAccess(a gpu.Access) vk.AccessFlags {
	var out vk.AccessFlags
	for i, bit := range accessBits {
		if a&(1<<uint(i)) != 0 {
			out |= vk.AccessFlags(bit)
		}
	}
	return out
}

func vkLayout(l gpu.Layout) vk.ImageLayout {
	switch l {
	case gpu.LayoutGeneral:
		return vk.ImageLayoutGeneral
	case gpu.LayoutColorAttachment:
		return vk.ImageLayoutColorAttachmentOptimal
	case gpu.LayoutDepthAttachment:
		return vk.ImageLayoutDepthStencilAttachmentOptimal
	case gpu.LayoutDepthReadOnly:
		return vk.ImageLayoutDepthStencilReadOnlyOptimal
	case gpu.LayoutShaderReadOnly:
		return vk.ImageLayoutShaderReadOnlyOptimal
	case gpu.LayoutTransferSrc:
		return vk.ImageLayoutTransferSrcOptimal
	case gpu.LayoutTransferDst:
		return vk.ImageLayoutTransferDstOptimal
	case gpu.LayoutPresent:
		return vk.ImageLayoutPresentSrc
	}
	return vk.ImageLayoutUndefined
}

func vkAspect(a gpu.Aspect) vk.ImageAspectFlags {
	var out vk.ImageAspectFlags
	if a&gpu.AspectColor != 0 {
		out |= vk.ImageAspectFlags(vk.ImageAspectColorBit)
	}
	if a&gpu.AspectDepth != 0 {
		out |= vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}
	return out
}

func vkSubresourceRange(r gpu.SubresourceRange) vk.ImageSubresourceRange {
	return vk.ImageSubresourceRange{
		AspectMask:     vkAspect(r.Aspect),
		BaseMipLevel:   r.BaseMip,
		LevelCount:     r.MipCount,
		BaseArrayLayer: r.BaseLayer,
		LayerCount:     r.LayerCount,
	}
}

func vkShaderStages(s gpu.ShaderStage) vk.ShaderStageFlags {
	var out vk.ShaderStageFlags
	if s&gpu.ShaderVertex != 0 {
		out |= vk.ShaderStageFlags(vk.ShaderStageVertexBit)
	}
	if s&gpu.ShaderFragment != 0 {
		out |= vk.ShaderStageFlags(vk.ShaderStageFragmentBit)
	}
	if s&gpu.ShaderCompute != 0 {
		out |= vk.ShaderStageFlags(vk.ShaderStageComputeBit)
	}
	return out
}

func vkDescriptorType(k gpu.BindingKind) vk.DescriptorType {
	switch k {
	case gpu.BindingStorageBuffer:
		return vk.DescriptorTypeStorageBuffer
	case gpu.BindingSampledImage:
		return vk.DescriptorTypeCombinedImageSampler
	case gpu.BindingStorageImage:
		return vk.DescriptorTypeStorageImage
	}
	return vk.DescriptorTypeUniformBuffer
}

func vkLoadOp(op gpu.LoadOp) vk.AttachmentLoadOp {
	switch op {
	case gpu.LoadOpClear:
		return vk.AttachmentLoadOpClear
	case gpu.LoadOpLoad:
		return vk.AttachmentLoadOpLoad
	}
	return vk.AttachmentLoadOpDontCare
}

func vkImageUsage(u gpu.ImageUsage) vk.ImageUsageFlags {
	var out vk.ImageUsageFlags
	if u&gpu.UsageColorTarget != 0 {
		out |= vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit)
	}
	if u&gpu.UsageDepthTarget != 0 {
		out |= vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit)
	}
	if u&gpu.UsageSampled != 0 {
		out |= vk.ImageUsageFlags(vk.ImageUsageSampledBit)
	}
	if u&gpu.UsageStorage != 0 {
		out |= vk.ImageUsageFlags(vk.ImageUsageStorageBit)
	}
	if u&gpu.UsageTransferSrc != 0 {
		out |= vk.ImageUsageFlags(vk.ImageUsageTransferSrcBit)
	}
	if u&gpu.UsageTransferDst != 0 {
		out |= vk.ImageUsageFlags(vk.ImageUsageTransferDstBit)
	}
	return out
}

func vkBufferUsage(u gpu.BufferUsage) vk.BufferUsageFlags {
	var out vk.BufferUsageFlags
	if u&gpu.BufferUsageVertex != 0 {
		out |= vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit)
	}
	if u&gpu.BufferUsageIndex != 0 {
		out |= vk.BufferUsageFlags(vk.BufferUsageIndexBufferBit)
	}
	if u&gpu.BufferUsageUniform != 0 {
		out |= vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit)
	}
	if u&gpu.BufferUsageStorage != 0 {
		out |= vk.BufferUsageFlags(vk.BufferUsageStorageBufferBit)
	}
	if u&gpu.BufferUsageTransferSrc != 0 {
		out |= vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit)
	}
	if u&gpu.BufferUsageTransferDst != 0 {
		out |= vk.BufferUsageFlags(vk.BufferUsageTransferDstBit)
	}
	return out
}
