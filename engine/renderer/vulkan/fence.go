package vulkan

import (
	"math"
	"time"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/aurora/engine/core"
	"github.com/spaghettifunk/aurora/engine/renderer/gpu"
)

type VulkanFence struct {
	Handle     vk.Fence
	IsSignaled bool
}

type VulkanSemaphore struct {
	Handle vk.Semaphore
}

func (d *Device) CreateFence(signaled bool) (gpu.Fence, error) {
	fence := &VulkanFence{
		// Make sure to signal the fence if required.
		IsSignaled: signaled,
	}
	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if signaled {
		fenceCreateInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var handle vk.Fence
	if res := vk.CreateFence(d.LogicalDevice, &fenceCreateInfo, d.allocator, &handle); res != vk.Success {
		err := resultError("vkCreateFence", res)
		core.LogError(err.Error())
		return nil, err
	}
	fence.Handle = handle
	return fence, nil
}

func (d *Device) DestroyFence(f gpu.Fence) {
	fence, ok := f.(*VulkanFence)
	if !ok || fence == nil || fence.Handle == vk.NullFence {
		return
	}
	vk.DestroyFence(d.LogicalDevice, fence.Handle, d.allocator)
	fence.Handle = vk.NullFence
	fence.IsSignaled = false
}

func (d *Device) WaitFence(f gpu.Fence, timeout time.Duration) error {
	fence := f.(*VulkanFence)
	// If already signaled, do not wait.
	if fence.IsSignaled {
		return nil
	}
	ns := uint64(math.MaxUint64)
	if timeout != gpu.WaitForever {
		ns = uint64(timeout.Nanoseconds())
	}
	result := vk.WaitForFences(d.LogicalDevice, 1, []vk.Fence{fence.Handle}, vk.True, ns)
	switch result {
	case vk.Success:
		fence.IsSignaled = true
		return nil
	case vk.Timeout:
		core.LogWarn("vk_fence_wait - Timed out")
	case vk.ErrorDeviceLost:
		core.LogError("vk_fence_wait - VK_ERROR_DEVICE_LOST.")
	default:
		core.LogError("vk_fence_wait - %s", VulkanResultString(result))
	}
	return resultError("vkWaitForFences", result)
}

func (d *Device) ResetFence(f gpu.Fence) error {
	fence := f.(*VulkanFence)
	if !fence.IsSignaled {
		return nil
	}
	if res := vk.ResetFences(d.LogicalDevice, 1, []vk.Fence{fence.Handle}); res != vk.Success {
		err := resultError("vkResetFences", res)
		core.LogError(err.Error())
		return err
	}
	fence.IsSignaled = false
	return nil
}

func (d *Device) CreateSemaphore() (gpu.Semaphore, error) {
	var handle vk.Semaphore
	createInfo := vk.SemaphoreCreateInfo{SType: vk.StructureTypeSemaphoreCreateInfo}
	if res := vk.CreateSemaphore(d.LogicalDevice, &createInfo, d.allocator, &handle); res != vk.Success {
		err := resultError("vkCreateSemaphore", res)
		core.LogError(err.Error())
		return nil, err
	}
	return &VulkanSemaphore{Handle: handle}, nil
}

func (d *Device) DestroySemaphore(s gpu.Semaphore) {
	sem, ok := s.(*VulkanSemaphore)
	if !ok || sem == nil || sem.Handle == vk.NullSemaphore {
		return
	}
	vk.DestroySemaphore(d.LogicalDevice, sem.Handle, d.allocator)
	sem.Handle = vk.NullSemaphore
}

func semaphoreHandles(sems []gpu.Semaphore) []vk.Semaphore {
	out := make([]vk.Semaphore, len(sems))
	for i, s := range sems {
		out[i] = s.(*VulkanSemaphore).Handle
	}
	return out
}

func (d *Device) Submit(info gpu.SubmitInfo) error {
	cb := info.Commands.(*VulkanCommandBuffer)
	waitStages := make([]vk.PipelineStageFlags, len(info.Wait))
	for i := range waitStages {
		stage := gpu.StageAllCommands
		if i < len(info.WaitStages) {
			stage = info.WaitStages[i]
		}
		waitStages[i] = vkStages(stage)
	}
	submitInfo := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   uint32(len(info.Wait)),
		PWaitSemaphores:      semaphoreHandles(info.Wait),
		PWaitDstStageMask:    waitStages,
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{cb.Handle},
		SignalSemaphoreCount: uint32(len(info.Signal)),
		PSignalSemaphores:    semaphoreHandles(info.Signal),
	}
	fence := vk.NullFence
	if info.Fence != nil {
		fence = info.Fence.(*VulkanFence).Handle
	}
	err := d.locks.SafeCall(QueueManagement, func() error {
		return resultError("vkQueueSubmit", vk.QueueSubmit(d.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, fence))
	})
	if err != nil {
		core.LogError(err.Error())
		return err
	}
	cb.State = COMMAND_BUFFER_STATE_SUBMITTED
	return nil
}
