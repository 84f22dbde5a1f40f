// Package soft is a CPU reference implementation of the gpu interfaces.
//
// Shaders are Go kernels registered by path. Commands run on a queue
// goroutine in submission order. Writes made by a command stay invisible to
// later commands until a barrier whose source access covers them, or the end
// of the submission, makes them available. Layout mismatches are reported as
// validation messages the way a validation layer would.
package soft

import (
	"fmt"
	"sync"
	"time"

	"github.com/spaghettifunk/aurora/engine/core"
	"github.com/spaghettifunk/aurora/engine/renderer/gpu"
	"golang.org/x/image/math/f32"
)

type Texel = f32.Vec4

const texelBytes = 16

type Options struct {
	// Latency is slept by the queue before executing each submission.
	Latency time.Duration
	// MemoryLimit caps the bytes of live images and buffers. Zero means unlimited.
	MemoryLimit uint64
}

type Device struct {
	opts Options

	mu         sync.Mutex
	kernels    map[string]kernelEntry
	images     map[*image]struct{}
	buffers    map[*buffer]struct{}
	memory     uint64
	validation []string
	trace      [][]string
	lost       bool
	objects    map[string]int

	queue *queue
}

var _ gpu.Device = (*Device)(nil)

func NewDevice(opts Options) *Device {
	d := &Device{
		opts:    opts,
		kernels: make(map[string]kernelEntry),
		images:  make(map[*image]struct{}),
		buffers: make(map[*buffer]struct{}),
		objects: make(map[string]int),
	}
	d.queue = newQueue(d)
	return d
}

// Close stops the queue goroutine after draining pending submissions.
func (d *Device) Close() {
	d.queue.close()
}

func (d *Device) validate(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	core.LogWarn("soft validation: %s", msg)
	d.mu.Lock()
	d.validation = append(d.validation, msg)
	d.mu.Unlock()
}

// Validation returns every validation message reported so far.
func (d *Device) Validation() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.validation...)
}

// Submissions returns the command trace of every executed submission, in order.
func (d *Device) Submissions() [][]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([][]string, len(d.trace))
	copy(out, d.trace)
	return out
}

// Lose marks the device lost. Pending and future fence waits fail.
func (d *Device) Lose() {
	d.mu.Lock()
	d.lost = true
	d.mu.Unlock()
}

func (d *Device) isLost() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lost
}

// Live returns the number of live objects of a kind ("image", "view", "buffer", ...).
func (d *Device) Live(kind string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.objects[kind]
}

func (d *Device) track(kind string, delta int) {
	d.mu.Lock()
	d.objects[kind] += delta
	d.mu.Unlock()
}

func (d *Device) reserve(bytes uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.opts.MemoryLimit > 0 && d.memory+bytes > d.opts.MemoryLimit {
		return gpu.ErrOutOfMemory
	}
	d.memory += bytes
	return nil
}

func (d *Device) release(bytes uint64) {
	d.mu.Lock()
	d.memory -= bytes
	d.mu.Unlock()
}

type image struct {
	mu      sync.Mutex
	label   string
	extent  gpu.Extent
	format  gpu.Format
	usage   gpu.ImageUsage
	layout  gpu.Layout
	data    []Texel
	pending []Texel
	access  gpu.Access
}

func (i *image) Label() string      { return i.label }
func (i *image) Extent() gpu.Extent { return i.extent }
func (i *image) Format() gpu.Format { return i.format }

func (i *image) write(access gpu.Access) []Texel {
	if i.pending == nil {
		i.pending = append([]Texel(nil), i.data...)
	}
	i.access |= access
	return i.pending
}

func (i *image) flush(src gpu.Access) {
	if i.pending != nil && i.access&src != 0 {
		i.data, i.pending, i.access = i.pending, nil, gpu.AccessNone
	}
}

func (i *image) layoutNow() gpu.Layout {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.layout
}

type view struct {
	img *image
	rng gpu.SubresourceRange
}

func (v *view) Image() gpu.Image { return v.img }

type buffer struct {
	mu          sync.Mutex
	label       string
	size        uint64
	usage       gpu.BufferUsage
	hostVisible bool
	data        []byte
	pending     []byte
	access      gpu.Access
}

func (b *buffer) Label() string { return b.label }
func (b *buffer) Size() uint64  { return b.size }

func (b *buffer) write(access gpu.Access) []byte {
	if b.pending == nil {
		b.pending = append([]byte(nil), b.data...)
	}
	b.access |= access
	return b.pending
}

func (b *buffer) flush(src gpu.Access) {
	if b.pending != nil && b.access&src != 0 {
		b.data, b.pending, b.access = b.pending, nil, gpu.AccessNone
	}
}

func (d *Device) CreateImage(desc gpu.ImageDesc) (gpu.Image, error) {
	switch desc.Format {
	case gpu.FormatUndefined:
		return nil, fmt.Errorf("image %s: %w", desc.Label, gpu.ErrUnsupportedFormat)
	}
	if desc.Extent.Depth == 0 {
		desc.Extent.Depth = 1
	}
	texels := desc.Extent.Texels()
	if err := d.reserve(uint64(texels) * texelBytes); err != nil {
		return nil, fmt.Errorf("image %s: %w", desc.Label, err)
	}
	img := &image{
		label:  desc.Label,
		extent: desc.Extent,
		format: desc.Format,
		usage:  desc.Usage,
		layout: gpu.LayoutUndefined,
		data:   make([]Texel, texels),
	}
	d.mu.Lock()
	d.images[img] = struct{}{}
	d.objects["image"]++
	d.mu.Unlock()
	return img, nil
}

func (d *Device) DestroyImage(i gpu.Image) {
	img := i.(*image)
	d.mu.Lock()
	if _, ok := d.images[img]; !ok {
		d.mu.Unlock()
		d.validate("destroy of unknown or already destroyed image %s", img.label)
		return
	}
	delete(d.images, img)
	d.objects["image"]--
	d.mu.Unlock()
	d.release(uint64(img.extent.Texels()) * texelBytes)
}

func (d *Device) CreateImageView(i gpu.Image, rng gpu.SubresourceRange) (gpu.ImageView, error) {
	img, ok := i.(*image)
	if !ok || img == nil {
		return nil, fmt.Errorf("image view: foreign image %v", i)
	}
	d.track("view", 1)
	return &view{img: img, rng: rng}, nil
}

func (d *Device) DestroyImageView(v gpu.ImageView) {
	if v != nil {
		d.track("view", -1)
	}
}

func (d *Device) CreateBuffer(desc gpu.BufferDesc) (gpu.Buffer, error) {
	if desc.Size == 0 {
		return nil, fmt.Errorf("buffer %s: zero size", desc.Label)
	}
	if err := d.reserve(desc.Size); err != nil {
		return nil, fmt.Errorf("buffer %s: %w", desc.Label, err)
	}
	buf := &buffer{
		label:       desc.Label,
		size:        desc.Size,
		usage:       desc.Usage,
		hostVisible: desc.HostVisible,
		data:        make([]byte, desc.Size),
	}
	d.mu.Lock()
	d.buffers[buf] = struct{}{}
	d.objects["buffer"]++
	d.mu.Unlock()
	return buf, nil
}

func (d *Device) DestroyBuffer(b gpu.Buffer) {
	buf := b.(*buffer)
	d.mu.Lock()
	if _, ok := d.buffers[buf]; !ok {
		d.mu.Unlock()
		d.validate("destroy of unknown or already destroyed buffer %s", buf.label)
		return
	}
	delete(d.buffers, buf)
	d.objects["buffer"]--
	d.mu.Unlock()
	d.release(buf.size)
}

// WriteBuffer writes host data. Host writes are visible to the next submission.
func (d *Device) WriteBuffer(b gpu.Buffer, offset uint64, data []byte) error {
	buf := b.(*buffer)
	if !buf.hostVisible {
		return fmt.Errorf("buffer %s is not host visible", buf.label)
	}
	if offset+uint64(len(data)) > buf.size {
		return fmt.Errorf("buffer %s: write of %d bytes at %d overflows %d", buf.label, len(data), offset, buf.size)
	}
	buf.mu.Lock()
	copy(buf.data[offset:], data)
	buf.mu.Unlock()
	return nil
}

// ReadImage returns a copy of the visible contents of an image. Call after WaitIdle.
func (d *Device) ReadImage(i gpu.Image) []Texel {
	img := i.(*image)
	img.mu.Lock()
	defer img.mu.Unlock()
	return append([]Texel(nil), img.data...)
}

// ReadBuffer returns a copy of the visible contents of a buffer. Call after WaitIdle.
func (d *Device) ReadBuffer(b gpu.Buffer) []byte {
	buf := b.(*buffer)
	buf.mu.Lock()
	defer buf.mu.Unlock()
	return append([]byte(nil), buf.data...)
}

// ImageLayout reports the current layout of an image as seen by the queue.
func (d *Device) ImageLayout(i gpu.Image) gpu.Layout {
	return i.(*image).layoutNow()
}

// flushAll makes every outstanding write available, as at the end of a submission.
func (d *Device) flushAll() {
	d.mu.Lock()
	imgs := make([]*image, 0, len(d.images))
	for img := range d.images {
		imgs = append(imgs, img)
	}
	bufs := make([]*buffer, 0, len(d.buffers))
	for buf := range d.buffers {
		bufs = append(bufs, buf)
	}
	d.mu.Unlock()

	for _, img := range imgs {
		img.mu.Lock()
		img.flush(^gpu.AccessNone)
		img.mu.Unlock()
	}
	for _, buf := range bufs {
		buf.mu.Lock()
		buf.flush(^gpu.AccessNone)
		buf.mu.Unlock()
	}
}
