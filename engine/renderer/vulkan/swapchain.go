package vulkan

import (
	"fmt"
	"math"
	"time"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/aurora/engine/core"
	amath "github.com/spaghettifunk/aurora/engine/math"
	"github.com/spaghettifunk/aurora/engine/renderer/gpu"
)

// Swapchain implements gpu.Swapchain for the window surface.
type Swapchain struct {
	Handle      vk.Swapchain
	ImageFormat vk.SurfaceFormat

	dev     *Device
	surface vk.Surface
	extent  gpu.Extent
	format  gpu.Format
	frames  int
	images  []gpu.Image
	views   []gpu.ImageView
}

var _ gpu.Swapchain = (*Swapchain)(nil)

type VulkanSwapchainSupportInfo struct {
	Capabilities     vk.SurfaceCapabilities
	FormatCount      uint32
	Formats          []vk.SurfaceFormat
	PresentModeCount uint32
	PresentModes     []vk.PresentMode
}

func (s *Swapchain) Images() []gpu.Image    { return s.images }
func (s *Swapchain) Views() []gpu.ImageView { return s.views }
func (s *Swapchain) Format() gpu.Format     { return s.format }
func (s *Swapchain) Extent() gpu.Extent     { return s.extent }
func (s *Swapchain) Len() int               { return len(s.images) }

// Recreate builds a new swapchain for the current surface size and retires
// this one. The device must be idle.
func (s *Swapchain) Recreate(width, height uint32) (*Swapchain, error) {
	next, err := createSwapchain(s.dev, s.surface, width, height, s.frames, s)
	if err != nil {
		return nil, err
	}
	s.Destroy()
	return next, nil
}

func (s *Swapchain) Acquire(timeout time.Duration, signal gpu.Semaphore) (uint32, error) {
	ns := uint64(math.MaxUint64)
	if timeout != gpu.WaitForever {
		ns = uint64(timeout.Nanoseconds())
	}
	sem := vk.NullSemaphore
	if signal != nil {
		sem = signal.(*VulkanSemaphore).Handle
	}
	var index uint32
	result := vk.AcquireNextImage(s.dev.LogicalDevice, s.Handle, ns, sem, vk.NullFence, &index)
	switch result {
	case vk.Success, vk.Suboptimal:
		// Suboptimal still acquired an image; present reports it.
		return index, nil
	}
	return 0, resultError("vkAcquireNextImage", result)
}

func (s *Swapchain) Present(index uint32, wait gpu.Semaphore) error {
	presentInfo := vk.PresentInfo{
		SType:          vk.StructureTypePresentInfo,
		SwapchainCount: 1,
		PSwapchains:    []vk.Swapchain{s.Handle},
		PImageIndices:  []uint32{index},
	}
	if wait != nil {
		presentInfo.WaitSemaphoreCount = 1
		presentInfo.PWaitSemaphores = []vk.Semaphore{wait.(*VulkanSemaphore).Handle}
	}
	var result vk.Result
	_ = s.dev.locks.SafeCall(QueueManagement, func() error {
		result = vk.QueuePresent(s.dev.PresentQueue, &presentInfo)
		return nil
	})
	return resultError("vkQueuePresent", result)
}

func chooseSurfaceFormat(support *VulkanSwapchainSupportInfo) vk.SurfaceFormat {
	for _, f := range support.Formats {
		if f.Format == vk.FormatB8g8r8a8Unorm && f.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			return f
		}
	}
	for _, f := range support.Formats {
		if gpuFormat(f.Format) != gpu.FormatUndefined {
			return f
		}
	}
	return support.Formats[0]
}

func createSwapchain(dev *Device, surface vk.Surface, width, height uint32, frames int, old *Swapchain) (*Swapchain, error) {
	// Capabilities change with the window, so query them again.
	if err := DeviceQuerySwapchainSupport(dev.PhysicalDevice, surface, &dev.SwapchainSupport); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	support := &dev.SwapchainSupport
	if len(support.Formats) == 0 {
		err := fmt.Errorf("surface has no pixel formats")
		core.LogError(err.Error())
		return nil, err
	}

	surfaceFormat := chooseSurfaceFormat(support)
	format := gpuFormat(surfaceFormat.Format)
	if format == gpu.FormatUndefined {
		err := fmt.Errorf("surface format %d: %w", surfaceFormat.Format, gpu.ErrUnsupportedFormat)
		core.LogError(err.Error())
		return nil, err
	}

	// FIFO is always available; mailbox is preferred.
	presentMode := vk.PresentModeFifo
	for _, mode := range support.PresentModes {
		if mode == vk.PresentModeMailbox {
			presentMode = mode
			break
		}
	}

	caps := support.Capabilities
	swapchainExtent := vk.Extent2D{Width: width, Height: height}
	if caps.CurrentExtent.Width != vk.MaxUint32 {
		swapchainExtent = caps.CurrentExtent
	}
	// Clamp to the value allowed by the GPU.
	swapchainExtent.Width = amath.Clamp(swapchainExtent.Width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width)
	swapchainExtent.Height = amath.Clamp(swapchainExtent.Height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height)
	if swapchainExtent.Width == 0 || swapchainExtent.Height == 0 {
		return nil, fmt.Errorf("surface is %dx%d: %w", swapchainExtent.Width, swapchainExtent.Height, gpu.ErrOutOfDate)
	}

	imageCount := uint32(frames)
	if imageCount < caps.MinImageCount {
		imageCount = caps.MinImageCount
	}
	if caps.MaxImageCount > 0 && imageCount > caps.MaxImageCount {
		imageCount = caps.MaxImageCount
	}

	createInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          surface,
		MinImageCount:    imageCount,
		ImageFormat:      surfaceFormat.Format,
		ImageColorSpace:  surfaceFormat.ColorSpace,
		ImageExtent:      swapchainExtent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      presentMode,
		Clipped:          vk.True,
		OldSwapchain:     vk.NullSwapchain,
	}
	if old != nil {
		createInfo.OldSwapchain = old.Handle
	}
	if dev.GraphicsQueueIndex != dev.PresentQueueIndex {
		createInfo.ImageSharingMode = vk.SharingModeConcurrent
		createInfo.QueueFamilyIndexCount = 2
		createInfo.PQueueFamilyIndices = []uint32{uint32(dev.GraphicsQueueIndex), uint32(dev.PresentQueueIndex)}
	} else {
		createInfo.ImageSharingMode = vk.SharingModeExclusive
	}

	var handle vk.Swapchain
	if res := vk.CreateSwapchain(dev.LogicalDevice, &createInfo, dev.allocator, &handle); res != vk.Success {
		err := resultError("vkCreateSwapchain", res)
		core.LogError(err.Error())
		return nil, err
	}

	sc := &Swapchain{
		Handle:      handle,
		ImageFormat: surfaceFormat,
		dev:         dev,
		surface:     surface,
		extent:      gpu.Extent2D(swapchainExtent.Width, swapchainExtent.Height),
		format:      format,
		frames:      frames,
	}

	var count uint32
	if res := vk.GetSwapchainImages(dev.LogicalDevice, handle, &count, nil); res != vk.Success {
		sc.Destroy()
		return nil, resultError("vkGetSwapchainImages", res)
	}
	handles := make([]vk.Image, count)
	if res := vk.GetSwapchainImages(dev.LogicalDevice, handle, &count, handles); res != vk.Success {
		sc.Destroy()
		return nil, resultError("vkGetSwapchainImages", res)
	}

	for i, h := range handles {
		img := &VulkanImage{
			Handle: h,
			label:  fmt.Sprintf("swapchain[%d]", i),
			extent: sc.extent,
			format: format,
		}
		view, err := dev.createImageView(img, gpu.WholeImage(format))
		if err != nil {
			sc.Destroy()
			return nil, err
		}
		sc.images = append(sc.images, img)
		sc.views = append(sc.views, view)
	}

	core.LogInfo("Swapchain created: %s %s with %d images.", sc.extent, format, len(sc.images))
	return sc, nil
}

// Destroy releases the views and the swapchain. The images belong to the
// swapchain and go with it.
func (s *Swapchain) Destroy() {
	for _, v := range s.views {
		s.dev.DestroyImageView(v)
	}
	s.views = nil
	s.images = nil
	if s.Handle != vk.NullSwapchain {
		vk.DestroySwapchain(s.dev.LogicalDevice, s.Handle, s.dev.allocator)
		s.Handle = vk.NullSwapchain
	}
}
