package barrier

import (
	"testing"

	"github.com/spaghettifunk/aurora/engine/renderer/gpu"
	"github.com/spaghettifunk/aurora/engine/renderer/gpu/soft"
	"github.com/spaghettifunk/aurora/engine/renderer/resources"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*soft.Device, *resources.Image, *resources.Buffer) {
	t.Helper()
	dev := soft.NewDevice(soft.Options{})
	t.Cleanup(dev.Close)
	img, err := resources.AllocateImage(dev, nil, "hdr", gpu.Extent2D(4, 4), gpu.FormatRGBA16Float, gpu.UsageStorage|gpu.UsageSampled, 2)
	require.NoError(t, err)
	buf, err := resources.AllocateBuffer(dev, nil, "lights", gpu.BufferDesc{Size: 64, Usage: gpu.BufferUsageStorage}, 2)
	require.NoError(t, err)
	return dev, img, buf
}

func TestResolveBindsPerSlotResources(t *testing.T) {
	_, img, buf := setup(t)
	b := New([]ImageBarrier{Image(img, ComputeWrite, FragmentRead)}, Buffer(buf, ComputeWrite, ComputeRead))

	batch := b.Resolve(resources.Frame{Number: 3, Slot: 1})
	require.Len(t, batch.Images, 1)
	require.Len(t, batch.Buffers, 1)
	assert.Equal(t, img.Resolve(1).Image, batch.Images[0].Image)
	assert.Equal(t, gpu.LayoutGeneral, batch.Images[0].OldLayout)
	assert.Equal(t, gpu.LayoutShaderReadOnly, batch.Images[0].NewLayout)
	assert.Equal(t, gpu.StageComputeShader, batch.Images[0].SrcStage)
	assert.Equal(t, gpu.StageFragmentShader, batch.Images[0].DstStage)
	assert.Equal(t, buf.Resolve(1), batch.Buffers[0].Buffer)
	assert.Equal(t, uint64(64), batch.Buffers[0].Size)
	assert.Equal(t, []string{"hdr:general->shader_read_only", "lights:shader_write->shader_read"}, b.Targets())
}

func TestPhaseTransitions(t *testing.T) {
	assert.Equal(t, PhaseUninitialized, PhaseOf(Undefined))
	assert.Equal(t, PhaseWrite, PhaseOf(ColorTarget))
	assert.Equal(t, PhaseRead, PhaseOf(FragmentRead))
	assert.Equal(t, PhasePresent, PhaseOf(Present))

	assert.True(t, Legal(PhaseUninitialized, PhaseWrite))
	assert.False(t, Legal(PhaseUninitialized, PhaseRead))
	assert.True(t, Legal(PhaseWrite, PhaseWrite))
	assert.True(t, Legal(PhaseRead, PhaseWrite))
	assert.True(t, Legal(PhaseWrite, PhasePresent))
	assert.False(t, Legal(PhasePresent, PhaseRead))
	assert.True(t, Legal(PhasePresent, PhaseUninitialized))
}

func TestTrackerAcceptsConsistentChain(t *testing.T) {
	if !Enabled() {
		t.Skip("barrier tracking compiled out")
	}
	dev, img, _ := setup(t)
	cb, err := dev.CreateCommandBuffer()
	require.NoError(t, err)
	require.NoError(t, cb.Begin())

	tr := NewTracker()
	f := resources.Frame{Slot: 0}
	assert.NotPanics(t, func() {
		Images(Image(img, Undefined, ComputeWrite)).Execute(cb, f, tr)
		Images(Image(img, ComputeWrite, FragmentRead)).Execute(cb, f, tr)
		Images(Image(img, FragmentRead, ComputeWrite)).Execute(cb, f, tr)
	})
	s, ok := tr.State(img.Resolve(0).Image)
	assert.True(t, ok)
	assert.Equal(t, ComputeWrite, s)

	_, ok = tr.State(img.Resolve(1).Image)
	assert.False(t, ok)
}

func TestTrackerPanicsOnMismatch(t *testing.T) {
	if !Enabled() {
		t.Skip("barrier tracking compiled out")
	}
	dev, img, buf := setup(t)
	cb, _ := dev.CreateCommandBuffer()
	require.NoError(t, cb.Begin())
	f := resources.Frame{Slot: 1}

	tr := NewTracker()
	Images(Image(img, Undefined, ColorTarget)).Execute(cb, f, tr)
	assert.PanicsWithValue(t,
		"barrier on hdr[1]: declared prior layout general, last recorded color_attachment",
		func() { Images(Image(img, ComputeWrite, FragmentRead)).Execute(cb, f, tr) })

	tr.Reset()
	assert.Panics(t, func() { Images(Image(img, Undefined, FragmentRead)).Execute(cb, f, tr) })

	tr.Reset()
	Buffers(Buffer(buf, ComputeRead, ComputeWrite)).Execute(cb, f, tr)
	assert.PanicsWithValue(t,
		"barrier on lights[1]: declared prior access shader_read, last recorded write shader_write",
		func() { Buffers(Buffer(buf, ComputeRead, FragmentRead)).Execute(cb, f, tr) })

	tr.Reset()
	Images(Image(img, Undefined, ComputeWrite)).Execute(cb, f, tr)
	assert.Panics(t, func() {
		Images(Image(img, State{Stage: gpu.StageComputeShader, Access: gpu.AccessShaderRead, Layout: gpu.LayoutGeneral}, FragmentRead)).Execute(cb, f, tr)
	})
}

func TestNilTrackerIsANoop(t *testing.T) {
	dev, img, _ := setup(t)
	cb, _ := dev.CreateCommandBuffer()
	require.NoError(t, cb.Begin())
	var tr *Tracker
	assert.NotPanics(t, func() {
		Images(Image(img, ComputeWrite, FragmentRead)).Execute(cb, resources.Frame{}, tr)
	})
}
