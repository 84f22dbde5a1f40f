package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/aurora/engine/core"
)

type framebufferKey struct {
	pass   vk.RenderPass
	views  [maxColorAttachments + 1]vk.ImageView
	count  int
	width  uint32
	height uint32
}

func (k framebufferKey) uses(view vk.ImageView) bool {
	for i := 0; i < k.count; i++ {
		if k.views[i] == view {
			return true
		}
	}
	return false
}

// framebuffer returns the cached framebuffer for key, creating it on first use.
func (d *Device) framebuffer(key framebufferKey) (vk.Framebuffer, error) {
	var fb vk.Framebuffer
	err := d.locks.SafeCall(ResourceManagement, func() error {
		if cached, ok := d.framebuffers[key]; ok {
			fb = cached
			return nil
		}
		createInfo := vk.FramebufferCreateInfo{
			SType:           vk.StructureTypeFramebufferCreateInfo,
			RenderPass:      key.pass,
			AttachmentCount: uint32(key.count),
			PAttachments:    append([]vk.ImageView(nil), key.views[:key.count]...),
			Width:           key.width,
			Height:          key.height,
			Layers:          1,
		}
		var handle vk.Framebuffer
		if res := vk.CreateFramebuffer(d.LogicalDevice, &createInfo, d.allocator, &handle); res != vk.Success {
			err := resultError("vkCreateFramebuffer", res)
			core.LogError(err.Error())
			return err
		}
		d.framebuffers[key] = handle
		fb = handle
		return nil
	})
	return fb, err
}

// destroyFramebuffers drops every cached framebuffer using view, or all of
// them when view is nil.
func (d *Device) destroyFramebuffers(view vk.ImageView) {
	_ = d.locks.SafeCall(ResourceManagement, func() error {
		for key, fb := range d.framebuffers {
			if view != vk.NullImageView && !key.uses(view) {
				continue
			}
			vk.DestroyFramebuffer(d.LogicalDevice, fb, d.allocator)
			delete(d.framebuffers, key)
		}
		return nil
	})
}
