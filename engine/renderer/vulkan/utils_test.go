package vulkan

import (
	"encoding/binary"
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/aurora/engine/renderer/gpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageTranslation(t *testing.T) {
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit), vkStages(gpu.StageNone))
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit), vkStages(gpu.StageComputeShader))

	got := vkStages(gpu.StageFragmentShader | gpu.StageColorAttachmentOutput)
	want := vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit) | vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)
	assert.Equal(t, want, got)
}

func TestAccessTranslation(t *testing.T) {
	assert.Zero(t, vkAccess(gpu.AccessNone))
	got := vkAccess(gpu.AccessShaderRead | gpu.AccessDepthStencilWrite)
	want := vk.AccessFlags(vk.AccessShaderReadBit) | vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit)
	assert.Equal(t, want, got)
	assert.Equal(t, vk.AccessFlags(vk.AccessMemoryWriteBit), vkAccess(gpu.AccessMemoryWrite))
}

func TestLayoutTranslation(t *testing.T) {
	cases := map[gpu.Layout]vk.ImageLayout{
		gpu.LayoutUndefined:       vk.ImageLayoutUndefined,
		gpu.LayoutGeneral:         vk.ImageLayoutGeneral,
		gpu.LayoutColorAttachment: vk.ImageLayoutColorAttachmentOptimal,
		gpu.LayoutDepthAttachment: vk.ImageLayoutDepthStencilAttachmentOptimal,
		gpu.LayoutDepthReadOnly:   vk.ImageLayoutDepthStencilReadOnlyOptimal,
		gpu.LayoutShaderReadOnly:  vk.ImageLayoutShaderReadOnlyOptimal,
		gpu.LayoutPresent:         vk.ImageLayoutPresentSrc,
	}
	for in, want := range cases {
		assert.Equal(t, want, vkLayout(in), in.String())
	}
}

func TestFormatRoundTrip(t *testing.T) {
	for f := range formats {
		v, err := vkFormat(f)
		require.NoError(t, err)
		assert.Equal(t, f, gpuFormat(v))
	}
	_, err := vkFormat(gpu.Format(99))
	assert.ErrorIs(t, err, gpu.ErrUnsupportedFormat)
	assert.Equal(t, gpu.FormatUndefined, gpuFormat(vk.FormatR8Unorm))
}

func TestResultError(t *testing.T) {
	assert.NoError(t, resultError("op", vk.Success))
	assert.ErrorIs(t, resultError("op", vk.ErrorOutOfDate), gpu.ErrOutOfDate)
	assert.ErrorIs(t, resultError("op", vk.Suboptimal), gpu.ErrSuboptimal)
	assert.ErrorIs(t, resultError("op", vk.ErrorDeviceLost), gpu.ErrDeviceLost)
	assert.ErrorIs(t, resultError("op", vk.ErrorOutOfDeviceMemory), gpu.ErrOutOfMemory)
	assert.ErrorIs(t, resultError("op", vk.ErrorFragmentedPool), gpu.ErrPoolExhausted)

	err := resultError("vkCreateInstance", vk.ErrorIncompatibleDriver)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "VK_ERROR_INCOMPATIBLE_DRIVER")
}

func TestDecodeSPIRV(t *testing.T) {
	data := make([]byte, 20)
	binary.LittleEndian.PutUint32(data, spirvMagic)
	words, err := decodeSPIRV(data)
	require.NoError(t, err)
	assert.Len(t, words, 5)

	_, err = decodeSPIRV(data[:18])
	assert.ErrorIs(t, err, gpu.ErrShaderCompile)

	binary.LittleEndian.PutUint32(data, 0xdeadbeef)
	_, err = decodeSPIRV(data)
	assert.ErrorIs(t, err, gpu.ErrShaderCompile)
}

func TestCompatibleKeyIgnoresOps(t *testing.T) {
	key, err := compatibleKey([]gpu.Format{gpu.FormatRGBA16Float, gpu.FormatRGBA8Unorm}, gpu.FormatD32Float)
	require.NoError(t, err)
	assert.Equal(t, 2, key.colorCount)
	assert.Equal(t, vk.FormatD32Sfloat, key.depth)
	assert.Equal(t, vk.AttachmentLoadOpLoad, key.colorLoads[1])

	same, err := compatibleKey([]gpu.Format{gpu.FormatRGBA16Float, gpu.FormatRGBA8Unorm}, gpu.FormatD32Float)
	require.NoError(t, err)
	assert.Equal(t, key, same)

	_, err = compatibleKey(make([]gpu.Format, maxColorAttachments+1), gpu.FormatUndefined)
	assert.Error(t, err)
}

func TestSafeStrings(t *testing.T) {
	assert.Equal(t, "\x00", VulkanSafeString(""))
	assert.Equal(t, "main\x00", VulkanSafeString("main"))
	assert.Equal(t, "main\x00", VulkanSafeString("main\x00"))

	in := []string{"a", "b\x00"}
	out := VulkanSafeStrings(in)
	assert.Equal(t, []string{"a\x00", "b\x00"}, out)
	assert.Equal(t, "a", in[0])

	assert.Equal(t, 2, FindFirstZeroInByteArray([]byte{'h', 'i', 0, 'x'}))
	assert.Equal(t, 3, FindFirstZeroInByteArray([]byte("abc")))
}

func TestChooseSurfaceFormat(t *testing.T) {
	support := &VulkanSwapchainSupportInfo{Formats: []vk.SurfaceFormat{
		{Format: vk.FormatR8g8b8a8Unorm, ColorSpace: vk.ColorSpaceSrgbNonlinear},
		{Format: vk.FormatB8g8r8a8Unorm, ColorSpace: vk.ColorSpaceSrgbNonlinear},
	}}
	assert.Equal(t, vk.FormatB8g8r8a8Unorm, chooseSurfaceFormat(support).Format)

	support.Formats = support.Formats[:1]
	assert.Equal(t, vk.FormatR8g8b8a8Unorm, chooseSurfaceFormat(support).Format)
}
