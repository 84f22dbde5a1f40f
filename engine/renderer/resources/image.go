package resources

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spaghettifunk/aurora/engine/core"
	"github.com/spaghettifunk/aurora/engine/renderer/gpu"
)

// PhysicalImage is one backing allocation of an image resource with its view.
type PhysicalImage struct {
	Image gpu.Image
	View  gpu.ImageView
}

// ImageResource is anything that resolves to a physical image for a frame:
// per slot render targets and the presentable surface.
type ImageResource interface {
	Resource
	Format() gpu.Format
	Extent() gpu.Extent
	Physical(f Frame) PhysicalImage
}

type Image struct {
	id    uuid.UUID
	name  string
	desc  gpu.ImageDesc
	slots PerFrame[PhysicalImage]
}

var _ ImageResource = (*Image)(nil)

func allocatePhysicalImage(dev gpu.Device, desc gpu.ImageDesc) (PhysicalImage, error) {
	img, err := dev.CreateImage(desc)
	if err != nil {
		return PhysicalImage{}, err
	}
	view, err := dev.CreateImageView(img, gpu.WholeImage(desc.Format))
	if err != nil {
		dev.DestroyImage(img)
		return PhysicalImage{}, err
	}
	return PhysicalImage{Image: img, View: view}, nil
}

func destroyPhysicalImage(dev gpu.Device, p PhysicalImage) {
	dev.DestroyImageView(p.View)
	dev.DestroyImage(p.Image)
}

// AllocateImage creates frameCount identical images. Nothing is leaked when
// one of the allocations fails.
func AllocateImage(dev gpu.Device, reg *Registry, name string, extent gpu.Extent, format gpu.Format, usage gpu.ImageUsage, frameCount int) (*Image, error) {
	desc := gpu.ImageDesc{Extent: extent, Format: format, Usage: usage}
	slots, err := BuildPerFrame(frameCount, func(slot int) (PhysicalImage, error) {
		d := desc
		d.Label = fmt.Sprintf("%s[%d]", name, slot)
		return allocatePhysicalImage(dev, d)
	}, func(p PhysicalImage) { destroyPhysicalImage(dev, p) })
	if err != nil {
		err = fmt.Errorf("image %s: %w: %w", name, core.ErrAllocationFailed, err)
		core.LogError(err.Error())
		return nil, err
	}
	return register(reg, &Image{id: uuid.New(), name: name, desc: desc, slots: slots}), nil
}

// AllocateSharedImage creates one image every slot resolves to.
func AllocateSharedImage(dev gpu.Device, reg *Registry, name string, extent gpu.Extent, format gpu.Format, usage gpu.ImageUsage) (*Image, error) {
	desc := gpu.ImageDesc{Label: name, Extent: extent, Format: format, Usage: usage}
	p, err := allocatePhysicalImage(dev, desc)
	if err != nil {
		err = fmt.Errorf("image %s: %w: %w", name, core.ErrAllocationFailed, err)
		core.LogError(err.Error())
		return nil, err
	}
	return register(reg, &Image{id: uuid.New(), name: name, desc: desc, slots: Shared(p)}), nil
}

func register[T releasable](reg *Registry, res T) T {
	if reg != nil {
		reg.add(res)
	}
	return res
}

func (i *Image) ID() uuid.UUID      { return i.id }
func (i *Image) Name() string       { return i.name }
func (i *Image) Format() gpu.Format { return i.desc.Format }
func (i *Image) Extent() gpu.Extent { return i.desc.Extent }
func (i *Image) Usage() gpu.ImageUsage {
	return i.desc.Usage
}

// Resolve returns the physical image of slot. Panics when slot is out of range.
func (i *Image) Resolve(slot int) PhysicalImage {
	return i.slots.Resolve(slot)
}

func (i *Image) Physical(f Frame) PhysicalImage {
	return i.slots.Resolve(f.Slot)
}

func (i *Image) BindingResource(slot int) gpu.BindingResource {
	return gpu.BindingResource{View: i.slots.Resolve(slot).View}
}

func (i *Image) Slots() int {
	return i.slots.Len()
}

func (i *Image) release(dev gpu.Device) {
	i.slots.Each(func(_ int, p PhysicalImage) { destroyPhysicalImage(dev, p) })
}

// Surface is the swapchain backed image. It resolves through the image
// acquired for the frame instead of the frame slot.
type Surface struct {
	id        uuid.UUID
	swapchain gpu.Swapchain
}

var _ ImageResource = (*Surface)(nil)

func NewSurface(sc gpu.Swapchain) *Surface {
	return &Surface{id: uuid.New(), swapchain: sc}
}

func (s *Surface) ID() uuid.UUID            { return s.id }
func (s *Surface) Name() string             { return "surface" }
func (s *Surface) Format() gpu.Format       { return s.swapchain.Format() }
func (s *Surface) Extent() gpu.Extent       { return s.swapchain.Extent() }
func (s *Surface) Swapchain() gpu.Swapchain { return s.swapchain }

func (s *Surface) Physical(f Frame) PhysicalImage {
	return PhysicalImage{
		Image: s.swapchain.Images()[f.SurfaceIndex],
		View:  s.swapchain.Views()[f.SurfaceIndex],
	}
}

// Rebind points the surface at a rebuilt swapchain.
func (s *Surface) Rebind(sc gpu.Swapchain) {
	s.swapchain = sc
}
