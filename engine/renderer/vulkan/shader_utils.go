package vulkan

import (
	"encoding/binary"
	"fmt"
	"os"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/aurora/engine/core"
	"github.com/spaghettifunk/aurora/engine/renderer/gpu"
)

const spirvMagic = 0x07230203

// VulkanShaderModule is a loaded SPIR-V binary with a single "main" entry point.
type VulkanShaderModule struct {
	Handle vk.ShaderModule
	path   string
	stage  gpu.ShaderStage
}

func (m *VulkanShaderModule) Path() string { return m.path }

func (m *VulkanShaderModule) stageInfo() vk.PipelineShaderStageCreateInfo {
	return vk.PipelineShaderStageCreateInfo{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  vk.ShaderStageFlagBits(vkShaderStages(m.stage)),
		Module: m.Handle,
		PName:  VulkanSafeString("main"),
	}
}

// decodeSPIRV checks the header and converts the little endian words.
func decodeSPIRV(data []byte) ([]uint32, error) {
	if len(data) < 20 || len(data)%4 != 0 {
		return nil, fmt.Errorf("%d bytes is not a SPIR-V binary: %w", len(data), gpu.ErrShaderCompile)
	}
	words := make([]uint32, len(data)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(data[i*4:])
	}
	if words[0] != spirvMagic {
		return nil, fmt.Errorf("bad SPIR-V magic %#x: %w", words[0], gpu.ErrShaderCompile)
	}
	return words, nil
}

func (d *Device) LoadShader(path string, stage gpu.ShaderStage) (gpu.ShaderModule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		err = fmt.Errorf("shader %s: %w: %w", path, gpu.ErrShaderCompile, err)
		core.LogError(err.Error())
		return nil, err
	}
	code, err := decodeSPIRV(data)
	if err != nil {
		err = fmt.Errorf("shader %s: %w", path, err)
		core.LogError(err.Error())
		return nil, err
	}

	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(data)),
		PCode:    code,
	}
	var handle vk.ShaderModule
	if err := d.locks.SafeCall(ShaderManagement, func() error {
		res := vk.CreateShaderModule(d.LogicalDevice, &createInfo, d.allocator, &handle)
		if res != vk.Success {
			return fmt.Errorf("shader %s: %w: %w", path, gpu.ErrShaderCompile, resultError("vkCreateShaderModule", res))
		}
		return nil
	}); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	core.LogDebug("shader module %s loaded", path)
	return &VulkanShaderModule{Handle: handle, path: path, stage: stage}, nil
}

func (d *Device) DestroyShader(m gpu.ShaderModule) {
	module, ok := m.(*VulkanShaderModule)
	if !ok || module == nil || module.Handle == vk.NullShaderModule {
		return
	}
	vk.DestroyShaderModule(d.LogicalDevice, module.Handle, d.allocator)
	module.Handle = vk.NullShaderModule
}
