package vulkan

import (
	"fmt"
	"slices"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/aurora/engine/core"
	"github.com/spaghettifunk/aurora/engine/renderer/gpu"
)

type VulkanDescriptorSetLayout struct {
	Handle  vk.DescriptorSetLayout
	entries []gpu.BindingLayoutEntry
}

func (l *VulkanDescriptorSetLayout) Kinds() []gpu.BindingKind {
	kinds := make([]gpu.BindingKind, len(l.entries))
	for i, e := range l.entries {
		kinds[i] = e.Kind
	}
	return kinds
}

type VulkanDescriptorSet struct {
	Handle vk.DescriptorSet
	layout *VulkanDescriptorSetLayout
}

type VulkanDescriptorPool struct {
	Handle vk.DescriptorPool
	dev    *Device
}

func (d *Device) CreateBindingLayout(entries []gpu.BindingLayoutEntry) (gpu.BindingLayout, error) {
	bindings := make([]vk.DescriptorSetLayoutBinding, len(entries))
	for i, e := range entries {
		bindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:         e.Binding,
			DescriptorType:  vkDescriptorType(e.Kind),
			DescriptorCount: 1,
			StageFlags:      vkShaderStages(e.Visibility),
		}
	}
	createInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}
	var handle vk.DescriptorSetLayout
	if res := vk.CreateDescriptorSetLayout(d.LogicalDevice, &createInfo, d.allocator, &handle); res != vk.Success {
		err := resultError("vkCreateDescriptorSetLayout", res)
		core.LogError(err.Error())
		return nil, err
	}
	return &VulkanDescriptorSetLayout{Handle: handle, entries: slices.Clone(entries)}, nil
}

func (d *Device) DestroyBindingLayout(l gpu.BindingLayout) {
	layout, ok := l.(*VulkanDescriptorSetLayout)
	if !ok || layout == nil || layout.Handle == vk.NullDescriptorSetLayout {
		return
	}
	vk.DestroyDescriptorSetLayout(d.LogicalDevice, layout.Handle, d.allocator)
	layout.Handle = vk.NullDescriptorSetLayout
}

func (d *Device) CreateBindingPool(desc gpu.BindingPoolDesc) (gpu.BindingPool, error) {
	var sizes []vk.DescriptorPoolSize
	for kind, count := range desc.Capacities {
		if count <= 0 {
			continue
		}
		sizes = append(sizes, vk.DescriptorPoolSize{
			Type:            vkDescriptorType(kind),
			DescriptorCount: uint32(count),
		})
	}
	createInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       uint32(desc.MaxGroups),
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}
	var handle vk.DescriptorPool
	if res := vk.CreateDescriptorPool(d.LogicalDevice, &createInfo, d.allocator, &handle); res != vk.Success {
		err := resultError("vkCreateDescriptorPool", res)
		core.LogError(err.Error())
		return nil, err
	}
	return &VulkanDescriptorPool{Handle: handle, dev: d}, nil
}

func (d *Device) DestroyBindingPool(p gpu.BindingPool) {
	pool, ok := p.(*VulkanDescriptorPool)
	if !ok || pool == nil || pool.Handle == vk.NullDescriptorPool {
		return
	}
	vk.DestroyDescriptorPool(d.LogicalDevice, pool.Handle, d.allocator)
	pool.Handle = vk.NullDescriptorPool
}

// Allocate returns count sets of the given layout. Sets live until the pool
// is destroyed.
func (p *VulkanDescriptorPool) Allocate(l gpu.BindingLayout, count int) ([]gpu.BindingGroup, error) {
	layout := l.(*VulkanDescriptorSetLayout)
	groups := make([]gpu.BindingGroup, 0, count)
	err := p.dev.locks.SafeCall(DescriptorManagement, func() error {
		for i := 0; i < count; i++ {
			var set vk.DescriptorSet
			res := vk.AllocateDescriptorSets(p.dev.LogicalDevice, &vk.DescriptorSetAllocateInfo{
				SType:              vk.StructureTypeDescriptorSetAllocateInfo,
				DescriptorPool:     p.Handle,
				DescriptorSetCount: 1,
				PSetLayouts:        []vk.DescriptorSetLayout{layout.Handle},
			}, &set)
			if err := resultError("vkAllocateDescriptorSets", res); err != nil {
				return fmt.Errorf("set %d of %d: %w", i, count, err)
			}
			groups = append(groups, &VulkanDescriptorSet{Handle: set, layout: layout})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return groups, nil
}

func sampledLayout(view *VulkanImageView) vk.ImageLayout {
	if view.image.format.IsDepth() {
		return vk.ImageLayoutDepthStencilReadOnlyOptimal
	}
	return vk.ImageLayoutShaderReadOnlyOptimal
}

func (d *Device) WriteBindings(writes []gpu.BindingWrite) {
	if len(writes) == 0 {
		return
	}
	out := make([]vk.WriteDescriptorSet, 0, len(writes))
	for _, w := range writes {
		set := w.Group.(*VulkanDescriptorSet)
		write := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set.Handle,
			DstBinding:      w.Binding,
			DescriptorCount: 1,
			DescriptorType:  vkDescriptorType(w.Kind),
		}
		switch w.Kind {
		case gpu.BindingUniformBuffer, gpu.BindingStorageBuffer:
			buf := w.Resource.Buffer.(*VulkanBuffer)
			rng := w.Resource.Range
			if rng == 0 {
				rng = buf.size - w.Resource.Offset
			}
			write.PBufferInfo = []vk.DescriptorBufferInfo{{
				Buffer: buf.Handle,
				Offset: vk.DeviceSize(w.Resource.Offset),
				Range:  vk.DeviceSize(rng),
			}}
		case gpu.BindingSampledImage:
			view := w.Resource.View.(*VulkanImageView)
			write.PImageInfo = []vk.DescriptorImageInfo{{
				Sampler:     d.sampler,
				ImageView:   view.Handle,
				ImageLayout: sampledLayout(view),
			}}
		case gpu.BindingStorageImage:
			view := w.Resource.View.(*VulkanImageView)
			write.PImageInfo = []vk.DescriptorImageInfo{{
				ImageView:   view.Handle,
				ImageLayout: vk.ImageLayoutGeneral,
			}}
		}
		out = append(out, write)
	}
	_ = d.locks.SafeCall(DescriptorManagement, func() error {
		vk.UpdateDescriptorSets(d.LogicalDevice, uint32(len(out)), out, 0, nil)
		return nil
	})
}
