package soft

import (
	"fmt"
	"sync"
	"time"

	"github.com/spaghettifunk/aurora/engine/renderer/gpu"
)

// Swapchain is an in-memory presentable surface. Images are acquired round robin.
type Swapchain struct {
	dev       *Device
	mu        sync.Mutex
	images    []gpu.Image
	views     []gpu.ImageView
	format    gpu.Format
	extent    gpu.Extent
	next      uint32
	outOfDate bool
	presented []uint32
}

var _ gpu.Swapchain = (*Swapchain)(nil)

func (d *Device) NewSwapchain(extent gpu.Extent, format gpu.Format, count int) (*Swapchain, error) {
	sc := &Swapchain{dev: d, format: format, extent: extent}
	for i := 0; i < count; i++ {
		img, err := d.CreateImage(gpu.ImageDesc{
			Label:  fmt.Sprintf("surface[%d]", i),
			Extent: extent,
			Format: format,
			Usage:  gpu.UsageColorTarget,
		})
		if err != nil {
			sc.Destroy()
			return nil, err
		}
		v, _ := d.CreateImageView(img, gpu.WholeImage(format))
		sc.images = append(sc.images, img)
		sc.views = append(sc.views, v)
	}
	return sc, nil
}

func (s *Swapchain) Destroy() {
	for i := range s.images {
		s.dev.DestroyImageView(s.views[i])
		s.dev.DestroyImage(s.images[i])
	}
	s.images, s.views = nil, nil
}

// Invalidate makes the next Acquire or Present report ErrOutOfDate, as after a window resize.
func (s *Swapchain) Invalidate() {
	s.mu.Lock()
	s.outOfDate = true
	s.mu.Unlock()
}

// Presented returns the image indices presented so far.
func (s *Swapchain) Presented() []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint32(nil), s.presented...)
}

func (s *Swapchain) Acquire(timeout time.Duration, signal gpu.Semaphore) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outOfDate {
		return 0, gpu.ErrOutOfDate
	}
	idx := s.next
	s.next = (s.next + 1) % uint32(len(s.images))
	if signal != nil {
		signal.(*semaphore).signal()
	}
	return idx, nil
}

func (s *Swapchain) Present(index uint32, wait gpu.Semaphore) error {
	s.mu.Lock()
	outOfDate := s.outOfDate
	s.mu.Unlock()
	if outOfDate {
		return gpu.ErrOutOfDate
	}
	img := s.images[index].(*image)
	s.dev.queue.push(work{run: func() {
		if wait != nil && !wait.(*semaphore).consume() {
			s.dev.validate("present of %s waits on a semaphore nothing signaled", img.label)
		}
		if l := img.layoutNow(); l != gpu.LayoutPresent {
			s.dev.validate("present of %s in layout %s", img.label, l)
		}
		s.mu.Lock()
		s.presented = append(s.presented, index)
		s.mu.Unlock()
	}})
	return nil
}

func (s *Swapchain) Images() []gpu.Image    { return s.images }
func (s *Swapchain) Views() []gpu.ImageView { return s.views }
func (s *Swapchain) Format() gpu.Format     { return s.format }
func (s *Swapchain) Extent() gpu.Extent     { return s.extent }
func (s *Swapchain) Len() int               { return len(s.images) }
