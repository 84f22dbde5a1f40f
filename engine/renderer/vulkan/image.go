package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/aurora/engine/core"
	"github.com/spaghettifunk/aurora/engine/renderer/gpu"
)

type VulkanImage struct {
	Handle vk.Image
	Memory vk.DeviceMemory
	label  string
	extent gpu.Extent
	format gpu.Format
	// Swapchain images are owned by the swapchain.
	owned bool
}

func (i *VulkanImage) Label() string      { return i.label }
func (i *VulkanImage) Extent() gpu.Extent { return i.extent }
func (i *VulkanImage) Format() gpu.Format { return i.format }

type VulkanImageView struct {
	Handle vk.ImageView
	image  *VulkanImage
}

func (v *VulkanImageView) Image() gpu.Image { return v.image }

func (d *Device) CreateImage(desc gpu.ImageDesc) (gpu.Image, error) {
	format, err := vkFormat(desc.Format)
	if err != nil {
		return nil, err
	}
	depth := desc.Extent.Depth
	if depth == 0 {
		depth = 1
	}
	imageType := vk.ImageType2d
	if depth > 1 {
		imageType = vk.ImageType3d
	}
	createInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: imageType,
		Format:    format,
		Extent: vk.Extent3D{
			Width:  desc.Extent.Width,
			Height: desc.Extent.Height,
			Depth:  depth,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         vkImageUsage(desc.Usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}

	img := &VulkanImage{label: desc.Label, extent: desc.Extent, format: desc.Format, owned: true}
	var handle vk.Image
	if res := vk.CreateImage(d.LogicalDevice, &createInfo, d.allocator, &handle); res != vk.Success {
		err := fmt.Errorf("image %s: %w", desc.Label, resultError("vkCreateImage", res))
		core.LogError(err.Error())
		return nil, err
	}
	img.Handle = handle

	var reqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.LogicalDevice, handle, &reqs)
	reqs.Deref()
	memory, err := d.allocateMemory(reqs, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		vk.DestroyImage(d.LogicalDevice, handle, d.allocator)
		err = fmt.Errorf("image %s: %w", desc.Label, err)
		core.LogError(err.Error())
		return nil, err
	}
	img.Memory = memory
	if res := vk.BindImageMemory(d.LogicalDevice, handle, memory, 0); res != vk.Success {
		d.DestroyImage(img)
		err := fmt.Errorf("image %s: %w", desc.Label, resultError("vkBindImageMemory", res))
		core.LogError(err.Error())
		return nil, err
	}
	return img, nil
}

func (d *Device) DestroyImage(i gpu.Image) {
	img, ok := i.(*VulkanImage)
	if !ok || img == nil || !img.owned {
		return
	}
	if img.Handle != vk.NullImage {
		vk.DestroyImage(d.LogicalDevice, img.Handle, d.allocator)
		img.Handle = vk.NullImage
	}
	if img.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(d.LogicalDevice, img.Memory, d.allocator)
		img.Memory = vk.NullDeviceMemory
	}
}

func (d *Device) CreateImageView(i gpu.Image, rng gpu.SubresourceRange) (gpu.ImageView, error) {
	img := i.(*VulkanImage)
	return d.createImageView(img, rng)
}

func (d *Device) createImageView(img *VulkanImage, rng gpu.SubresourceRange) (*VulkanImageView, error) {
	format, err := vkFormat(img.format)
	if err != nil {
		return nil, err
	}
	viewType := vk.ImageViewType2d
	if img.extent.Depth > 1 {
		viewType = vk.ImageViewType3d
	}
	viewInfo := vk.ImageViewCreateInfo{
		SType:            vk.StructureTypeImageViewCreateInfo,
		Image:            img.Handle,
		ViewType:         viewType,
		Format:           format,
		SubresourceRange: vkSubresourceRange(rng),
	}
	var view vk.ImageView
	if res := vk.CreateImageView(d.LogicalDevice, &viewInfo, d.allocator, &view); res != vk.Success {
		err := fmt.Errorf("image view %s: %w", img.label, resultError("vkCreateImageView", res))
		core.LogError(err.Error())
		return nil, err
	}
	return &VulkanImageView{Handle: view, image: img}, nil
}

// DestroyImageView also drops every cached framebuffer built on the view.
func (d *Device) DestroyImageView(v gpu.ImageView) {
	view, ok := v.(*VulkanImageView)
	if !ok || view == nil || view.Handle == vk.NullImageView {
		return
	}
	d.destroyFramebuffers(view.Handle)
	vk.DestroyImageView(d.LogicalDevice, view.Handle, d.allocator)
	view.Handle = vk.NullImageView
}
