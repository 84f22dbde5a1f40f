package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/aurora/engine/core"
	"github.com/spaghettifunk/aurora/engine/renderer/gpu"
)

const maxColorAttachments = 8

// renderpassKey identifies a single subpass render pass. Images are always
// in their attachment layout when a pass begins and ends; the frame's
// barriers do every transition, so initial and final layouts match.
type renderpassKey struct {
	colorCount  int
	colors      [maxColorAttachments]vk.Format
	colorLoads  [maxColorAttachments]vk.AttachmentLoadOp
	colorStores [maxColorAttachments]vk.AttachmentStoreOp
	depth       vk.Format
	depthLoad   vk.AttachmentLoadOp
	depthStore  vk.AttachmentStoreOp
}

// compatibleKey is used to build pipelines. Render pass compatibility
// ignores load and store ops.
func compatibleKey(colors []gpu.Format, depth gpu.Format) (renderpassKey, error) {
	if len(colors) > maxColorAttachments {
		return renderpassKey{}, fmt.Errorf("%d color attachments, at most %d", len(colors), maxColorAttachments)
	}
	key := renderpassKey{colorCount: len(colors)}
	for i, c := range colors {
		f, err := vkFormat(c)
		if err != nil {
			return key, err
		}
		key.colors[i] = f
		key.colorLoads[i] = vk.AttachmentLoadOpLoad
		key.colorStores[i] = vk.AttachmentStoreOpStore
	}
	if depth != gpu.FormatUndefined {
		f, err := vkFormat(depth)
		if err != nil {
			return key, err
		}
		key.depth = f
		key.depthLoad = vk.AttachmentLoadOpLoad
		key.depthStore = vk.AttachmentStoreOpStore
	}
	return key, nil
}

func storeOp(store bool) vk.AttachmentStoreOp {
	if store {
		return vk.AttachmentStoreOpStore
	}
	return vk.AttachmentStoreOpDontCare
}

func attachmentFormat(a gpu.Attachment) (vk.Format, error) {
	view := a.View.(*VulkanImageView)
	return vkFormat(view.image.format)
}

func renderingKey(info gpu.RenderingInfo) (renderpassKey, error) {
	if len(info.Colors) > maxColorAttachments {
		return renderpassKey{}, fmt.Errorf("%s: %d color attachments, at most %d", info.Label, len(info.Colors), maxColorAttachments)
	}
	key := renderpassKey{colorCount: len(info.Colors)}
	for i, a := range info.Colors {
		f, err := attachmentFormat(a)
		if err != nil {
			return key, err
		}
		key.colors[i] = f
		key.colorLoads[i] = vkLoadOp(a.Load)
		key.colorStores[i] = storeOp(a.Store)
	}
	if info.Depth != nil {
		f, err := attachmentFormat(*info.Depth)
		if err != nil {
			return key, err
		}
		key.depth = f
		key.depthLoad = vkLoadOp(info.Depth.Load)
		key.depthStore = storeOp(info.Depth.Store)
	}
	return key, nil
}

// renderpass returns the cached render pass for key, creating it on first use.
func (d *Device) renderpass(key renderpassKey) (vk.RenderPass, error) {
	var pass vk.RenderPass
	err := d.locks.SafeCall(RenderpassManagement, func() error {
		if rp, ok := d.renderpasses[key]; ok {
			pass = rp
			return nil
		}
		rp, err := d.createRenderpass(key)
		if err != nil {
			return err
		}
		d.renderpasses[key] = rp
		pass = rp
		return nil
	})
	return pass, err
}

func (d *Device) createRenderpass(key renderpassKey) (vk.RenderPass, error) {
	attachments := make([]vk.AttachmentDescription, 0, key.colorCount+1)
	colorRefs := make([]vk.AttachmentReference, 0, key.colorCount)
	for i := 0; i < key.colorCount; i++ {
		attachments = append(attachments, vk.AttachmentDescription{
			Format:         key.colors[i],
			Samples:        vk.SampleCount1Bit,
			LoadOp:         key.colorLoads[i],
			StoreOp:        key.colorStores[i],
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutColorAttachmentOptimal,
			FinalLayout:    vk.ImageLayoutColorAttachmentOptimal,
		})
		colorRefs = append(colorRefs, vk.AttachmentReference{
			Attachment: uint32(i),
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		})
	}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: uint32(len(colorRefs)),
		PColorAttachments:    colorRefs,
	}
	if key.depth != vk.FormatUndefined {
		attachments = append(attachments, vk.AttachmentDescription{
			Format:         key.depth,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         key.depthLoad,
			StoreOp:        key.depthStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutDepthStencilAttachmentOptimal,
			FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
		})
		subpass.PDepthStencilAttachment = &vk.AttachmentReference{
			Attachment: uint32(key.colorCount),
			Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		}
	}

	createInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
	}
	var pass vk.RenderPass
	if res := vk.CreateRenderPass(d.LogicalDevice, &createInfo, d.allocator, &pass); res != vk.Success {
		err := resultError("vkCreateRenderPass", res)
		core.LogError(err.Error())
		return vk.NullRenderPass, err
	}
	core.LogDebug("render pass created with %d color attachments", key.colorCount)
	return pass, nil
}

func (d *Device) destroyRenderpasses() {
	_ = d.locks.SafeCall(RenderpassManagement, func() error {
		for key, rp := range d.renderpasses {
			vk.DestroyRenderPass(d.LogicalDevice, rp, d.allocator)
			delete(d.renderpasses, key)
		}
		return nil
	})
}

func clearValues(info gpu.RenderingInfo) []vk.ClearValue {
	values := make([]vk.ClearValue, 0, len(info.Colors)+1)
	for _, a := range info.Colors {
		var v vk.ClearValue
		v.SetColor([]float32{a.Clear[0], a.Clear[1], a.Clear[2], a.Clear[3]})
		values = append(values, v)
	}
	if info.Depth != nil {
		var v vk.ClearValue
		v.SetDepthStencil(info.Depth.ClearDepth, 0)
		values = append(values, v)
	}
	return values
}
