package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/aurora/engine/core"
	"github.com/spaghettifunk/aurora/engine/renderer/gpu"
)

type VulkanBuffer struct {
	Handle vk.Buffer
	Memory vk.DeviceMemory
	label  string
	size   uint64
	// Host visible buffers stay mapped until destroyed.
	mapped unsafe.Pointer
}

func (b *VulkanBuffer) Label() string { return b.label }
func (b *VulkanBuffer) Size() uint64  { return b.size }

func (d *Device) CreateBuffer(desc gpu.BufferDesc) (gpu.Buffer, error) {
	if desc.Size == 0 {
		return nil, fmt.Errorf("buffer %s: zero size", desc.Label)
	}
	buf := &VulkanBuffer{label: desc.Label, size: desc.Size}
	createInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(desc.Size),
		Usage:       vkBufferUsage(desc.Usage),
		SharingMode: vk.SharingModeExclusive,
	}
	var handle vk.Buffer
	if res := vk.CreateBuffer(d.LogicalDevice, &createInfo, d.allocator, &handle); res != vk.Success {
		err := fmt.Errorf("buffer %s: %w", desc.Label, resultError("vkCreateBuffer", res))
		core.LogError(err.Error())
		return nil, err
	}
	buf.Handle = handle

	flags := vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
	if desc.HostVisible {
		flags = vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)
	}
	var reqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.LogicalDevice, handle, &reqs)
	reqs.Deref()
	memory, err := d.allocateMemory(reqs, flags)
	if err != nil {
		d.DestroyBuffer(buf)
		err = fmt.Errorf("buffer %s: %w", desc.Label, err)
		core.LogError(err.Error())
		return nil, err
	}
	buf.Memory = memory
	if res := vk.BindBufferMemory(d.LogicalDevice, handle, memory, 0); res != vk.Success {
		d.DestroyBuffer(buf)
		err := fmt.Errorf("buffer %s: %w", desc.Label, resultError("vkBindBufferMemory", res))
		core.LogError(err.Error())
		return nil, err
	}

	if desc.HostVisible {
		var ptr unsafe.Pointer
		if res := vk.MapMemory(d.LogicalDevice, memory, 0, vk.DeviceSize(desc.Size), 0, &ptr); res != vk.Success {
			d.DestroyBuffer(buf)
			err := fmt.Errorf("buffer %s: %w", desc.Label, resultError("vkMapMemory", res))
			core.LogError(err.Error())
			return nil, err
		}
		buf.mapped = ptr
	}
	return buf, nil
}

func (d *Device) DestroyBuffer(b gpu.Buffer) {
	buf, ok := b.(*VulkanBuffer)
	if !ok || buf == nil {
		return
	}
	if buf.mapped != nil {
		vk.UnmapMemory(d.LogicalDevice, buf.Memory)
		buf.mapped = nil
	}
	if buf.Handle != vk.NullBuffer {
		vk.DestroyBuffer(d.LogicalDevice, buf.Handle, d.allocator)
		buf.Handle = vk.NullBuffer
	}
	if buf.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(d.LogicalDevice, buf.Memory, d.allocator)
		buf.Memory = vk.NullDeviceMemory
	}
}

// WriteBuffer copies data into a host visible buffer. The memory is
// coherent, so no flush is needed.
func (d *Device) WriteBuffer(b gpu.Buffer, offset uint64, data []byte) error {
	buf := b.(*VulkanBuffer)
	if buf.mapped == nil {
		return fmt.Errorf("buffer %s is not host visible", buf.label)
	}
	if offset+uint64(len(data)) > buf.size {
		return fmt.Errorf("buffer %s: write of %d bytes at %d overflows %d", buf.label, len(data), offset, buf.size)
	}
	vk.Memcopy(unsafe.Add(buf.mapped, offset), data)
	return nil
}
