package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/aurora/engine/core"
	"github.com/spaghettifunk/aurora/engine/renderer/gpu"
)

type VulkanCommandBufferState int

const (
	COMMAND_BUFFER_STATE_READY VulkanCommandBufferState = iota
	COMMAND_BUFFER_STATE_RECORDING
	COMMAND_BUFFER_STATE_IN_RENDER_PASS
	COMMAND_BUFFER_STATE_RECORDING_ENDED
	COMMAND_BUFFER_STATE_SUBMITTED
	COMMAND_BUFFER_STATE_NOT_ALLOCATED
)

type VulkanCommandBuffer struct {
	Handle vk.CommandBuffer
	// Command buffer state.
	State VulkanCommandBufferState

	dev *Device
	// First recording error. Recording calls have no error return, so it
	// surfaces from End.
	err error
}

var _ gpu.CommandBuffer = (*VulkanCommandBuffer)(nil)

func (d *Device) CreateCommandBuffer() (gpu.CommandBuffer, error) {
	cb := &VulkanCommandBuffer{State: COMMAND_BUFFER_STATE_NOT_ALLOCATED, dev: d}
	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        d.GraphicsCommandPool,
		CommandBufferCount: 1,
		Level:              vk.CommandBufferLevelPrimary,
	}
	handles := make([]vk.CommandBuffer, 1)
	if err := d.locks.SafeCall(CommandPoolManagement, func() error {
		return resultError("vkAllocateCommandBuffers", vk.AllocateCommandBuffers(d.LogicalDevice, &allocateInfo, handles))
	}); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	cb.Handle = handles[0]
	cb.State = COMMAND_BUFFER_STATE_READY
	return cb, nil
}

func (d *Device) FreeCommandBuffer(c gpu.CommandBuffer) {
	cb, ok := c.(*VulkanCommandBuffer)
	if !ok || cb == nil || cb.Handle == nil {
		return
	}
	_ = d.locks.SafeCall(CommandPoolManagement, func() error {
		vk.FreeCommandBuffers(d.LogicalDevice, d.GraphicsCommandPool, 1, []vk.CommandBuffer{cb.Handle})
		return nil
	})
	cb.Handle = nil
	cb.State = COMMAND_BUFFER_STATE_NOT_ALLOCATED
}

// Begin resets the buffer and starts a one time submit recording.
func (v *VulkanCommandBuffer) Begin() error {
	if res := vk.ResetCommandBuffer(v.Handle, 0); res != vk.Success {
		err := resultError("vkResetCommandBuffer", res)
		core.LogError(err.Error())
		return err
	}
	beginInfo := &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if res := vk.BeginCommandBuffer(v.Handle, beginInfo); res != vk.Success {
		err := resultError("vkBeginCommandBuffer", res)
		core.LogError(err.Error())
		return err
	}
	v.err = nil
	v.State = COMMAND_BUFFER_STATE_RECORDING
	return nil
}

func (v *VulkanCommandBuffer) End() error {
	if v.State == COMMAND_BUFFER_STATE_IN_RENDER_PASS {
		v.fail(fmt.Errorf("command buffer ended inside a render pass"))
		vk.CmdEndRenderPass(v.Handle)
	}
	if res := vk.EndCommandBuffer(v.Handle); res != vk.Success {
		v.fail(resultError("vkEndCommandBuffer", res))
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING_ENDED
	if v.err != nil {
		core.LogError(v.err.Error())
		return v.err
	}
	return nil
}

func (v *VulkanCommandBuffer) fail(err error) {
	if v.err == nil {
		v.err = err
	}
}

func (v *VulkanCommandBuffer) Barrier(batch gpu.BarrierBatch) {
	if batch.Len() == 0 {
		return
	}
	src, dst := batch.Stages()

	buffers := make([]vk.BufferMemoryBarrier, len(batch.Buffers))
	for i, b := range batch.Buffers {
		size := vk.DeviceSize(b.Size)
		if b.Size == 0 {
			size = vk.DeviceSize(vk.WholeSize)
		}
		buffers[i] = vk.BufferMemoryBarrier{
			SType:               vk.StructureTypeBufferMemoryBarrier,
			SrcAccessMask:       vkAccess(b.SrcAccess),
			DstAccessMask:       vkAccess(b.DstAccess),
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Buffer:              b.Buffer.(*VulkanBuffer).Handle,
			Offset:              vk.DeviceSize(b.Offset),
			Size:                size,
		}
	}
	images := make([]vk.ImageMemoryBarrier, len(batch.Images))
	for i, b := range batch.Images {
		images[i] = vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       vkAccess(b.SrcAccess),
			DstAccessMask:       vkAccess(b.DstAccess),
			OldLayout:           vkLayout(b.OldLayout),
			NewLayout:           vkLayout(b.NewLayout),
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image:               b.Image.(*VulkanImage).Handle,
			SubresourceRange:    vkSubresourceRange(b.Range),
		}
	}
	vk.CmdPipelineBarrier(v.Handle, vkStages(src), vkStages(dst), 0,
		0, nil,
		uint32(len(buffers)), buffers,
		uint32(len(images)), images)
}

func (v *VulkanCommandBuffer) BeginRendering(info gpu.RenderingInfo) {
	key, err := renderingKey(info)
	if err != nil {
		v.fail(err)
		return
	}
	pass, err := v.dev.renderpass(key)
	if err != nil {
		v.fail(fmt.Errorf("%s: %w", info.Label, err))
		return
	}
	fbKey := framebufferKey{pass: pass, width: info.Extent.Width, height: info.Extent.Height}
	for _, a := range info.Colors {
		fbKey.views[fbKey.count] = a.View.(*VulkanImageView).Handle
		fbKey.count++
	}
	if info.Depth != nil {
		fbKey.views[fbKey.count] = info.Depth.View.(*VulkanImageView).Handle
		fbKey.count++
	}
	fb, err := v.dev.framebuffer(fbKey)
	if err != nil {
		v.fail(fmt.Errorf("%s: %w", info.Label, err))
		return
	}

	clear := clearValues(info)
	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  pass,
		Framebuffer: fb,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: vk.Extent2D{Width: info.Extent.Width, Height: info.Extent.Height},
		},
		ClearValueCount: uint32(len(clear)),
		PClearValues:    clear,
	}
	vk.CmdBeginRenderPass(v.Handle, &beginInfo, vk.SubpassContentsInline)
	v.State = COMMAND_BUFFER_STATE_IN_RENDER_PASS
}

func (v *VulkanCommandBuffer) EndRendering() {
	if v.State != COMMAND_BUFFER_STATE_IN_RENDER_PASS {
		return
	}
	vk.CmdEndRenderPass(v.Handle)
	v.State = COMMAND_BUFFER_STATE_RECORDING
}

// SetViewport also sets the scissor to the viewport rectangle.
func (v *VulkanCommandBuffer) SetViewport(vp gpu.Viewport) {
	vk.CmdSetViewport(v.Handle, 0, 1, []vk.Viewport{{
		X:        vp.X,
		Y:        vp.Y,
		Width:    vp.Width,
		Height:   vp.Height,
		MinDepth: vp.MinDepth,
		MaxDepth: vp.MaxDepth,
	}})
	vk.CmdSetScissor(v.Handle, 0, 1, []vk.Rect2D{{
		Offset: vk.Offset2D{X: int32(vp.X), Y: int32(vp.Y)},
		Extent: vk.Extent2D{Width: uint32(vp.Width), Height: uint32(vp.Height)},
	}})
}

func (v *VulkanCommandBuffer) BindPipeline(p gpu.Pipeline) {
	pipeline := p.(*VulkanPipeline)
	vk.CmdBindPipeline(v.Handle, pipeline.bindPoint(), pipeline.Handle)
}

func (v *VulkanCommandBuffer) BindGroups(p gpu.Pipeline, first uint32, groups []gpu.BindingGroup) {
	pipeline := p.(*VulkanPipeline)
	sets := make([]vk.DescriptorSet, len(groups))
	for i, g := range groups {
		sets[i] = g.(*VulkanDescriptorSet).Handle
	}
	vk.CmdBindDescriptorSets(v.Handle, pipeline.bindPoint(), pipeline.PipelineLayout, first, uint32(len(sets)), sets, 0, nil)
}

func (v *VulkanCommandBuffer) BindVertexBuffers(first uint32, buffers []gpu.Buffer, offsets []uint64) {
	handles := make([]vk.Buffer, len(buffers))
	offs := make([]vk.DeviceSize, len(buffers))
	for i, b := range buffers {
		handles[i] = b.(*VulkanBuffer).Handle
		if i < len(offsets) {
			offs[i] = vk.DeviceSize(offsets[i])
		}
	}
	vk.CmdBindVertexBuffers(v.Handle, first, uint32(len(handles)), handles, offs)
}

func (v *VulkanCommandBuffer) BindIndexBuffer(buffer gpu.Buffer, offset uint64, indexType gpu.IndexType) {
	t := vk.IndexTypeUint16
	if indexType == gpu.IndexUint32 {
		t = vk.IndexTypeUint32
	}
	vk.CmdBindIndexBuffer(v.Handle, buffer.(*VulkanBuffer).Handle, vk.DeviceSize(offset), t)
}

func (v *VulkanCommandBuffer) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	vk.CmdDraw(v.Handle, vertexCount, instanceCount, firstVertex, firstInstance)
}

func (v *VulkanCommandBuffer) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	vk.CmdDrawIndexed(v.Handle, indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
}

func (v *VulkanCommandBuffer) Dispatch(x, y, z uint32) {
	vk.CmdDispatch(v.Handle, x, y, z)
}
