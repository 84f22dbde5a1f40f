package tasks

import (
	"testing"

	"github.com/spaghettifunk/aurora/engine/renderer/barrier"
	"github.com/spaghettifunk/aurora/engine/renderer/gpu"
	"github.com/spaghettifunk/aurora/engine/renderer/gpu/soft"
	"github.com/spaghettifunk/aurora/engine/renderer/resources"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListKeepsOrderAndCounts(t *testing.T) {
	dev := soft.NewDevice(soft.Options{})
	defer dev.Close()
	albedo, err := resources.AllocateImage(dev, nil, "albedo", gpu.Extent2D(8, 4), gpu.FormatRGBA8Unorm, gpu.UsageColorTarget|gpu.UsageSampled, 2)
	require.NoError(t, err)
	hdr, err := resources.AllocateImage(dev, nil, "hdr", gpu.Extent2D(8, 4), gpu.FormatRGBA16Float, gpu.UsageStorage, 2)
	require.NoError(t, err)

	gbuffer := &GraphicsTask{Name: "gbuffer", Colors: []Attachment{Clear(albedo, gpu.ClearColor{})}}
	gbuffer.AddDraw(DrawTask{Count: 3, InstanceCount: 1}).AddDraw(DrawTask{Count: 6, InstanceCount: 1})

	l := NewList("frame").
		AddCallback("bake", func(gpu.CommandBuffer, resources.Frame) error { return nil }).
		AddGraphics(gbuffer).
		AddBarrier("", barrier.Images(
			barrier.Image(albedo, barrier.ColorTarget, barrier.ComputeRead),
			barrier.Image(hdr, barrier.Undefined, barrier.ComputeWrite),
		)).
		AddCompute(&ComputeTask{Name: "lighting", Groups: [3]uint32{2, 1, 1}})

	require.Equal(t, 4, l.Len())
	assert.IsType(t, &CallbackTask{}, l.Tasks()[0])
	assert.IsType(t, &GraphicsTask{}, l.Tasks()[1])
	assert.IsType(t, &BarrierTask{}, l.Tasks()[2])
	assert.IsType(t, &ComputeTask{}, l.Tasks()[3])

	s := l.Stats()
	assert.Equal(t, Stats{
		Graphics:       1,
		Draws:          2,
		Computes:       1,
		DispatchGroups: 2,
		Barriers:       1,
		BarrierTargets: []string{
			"albedo:color_attachment->shader_read_only",
			"hdr:undefined->general",
		},
		Callbacks: 1,
	}, s)

	assert.Equal(t, []string{
		"callback bake",
		"graphics gbuffer targets=1 draws=2 extent=8x4x1",
		"barrier barrier[albedo:color_attachment->shader_read_only, hdr:undefined->general]",
		"compute lighting groups=[2 1 1]",
	}, l.Describe())
}

func TestViewportExtent(t *testing.T) {
	dev := soft.NewDevice(soft.Options{})
	defer dev.Close()
	depth, err := resources.AllocateImage(dev, nil, "depth", gpu.Extent2D(16, 9), gpu.FormatD32Float, gpu.UsageDepthTarget, 1)
	require.NoError(t, err)

	g := &GraphicsTask{Name: "shadow", Depth: ClearDepth(depth, 1)}
	assert.Equal(t, gpu.Extent2D(16, 9), g.ViewportExtent())

	g.Extent = gpu.Extent2D(4, 4)
	assert.Equal(t, gpu.Extent2D(4, 4), g.ViewportExtent())
	assert.Equal(t, gpu.Extent{}, (&GraphicsTask{}).ViewportExtent())
}
