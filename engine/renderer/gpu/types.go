package gpu

import (
	"fmt"
	"strings"

	"golang.org/x/image/math/f32"
)

// Extent is the size of an image in texels. Depth is 1 for 2D images.
type Extent struct {
	Width  uint32
	Height uint32
	Depth  uint32
}

func Extent2D(width, height uint32) Extent {
	return Extent{Width: width, Height: height, Depth: 1}
}

func (e Extent) Texels() int {
	d := e.Depth
	if d == 0 {
		d = 1
	}
	return int(e.Width) * int(e.Height) * int(d)
}

func (e Extent) String() string {
	return fmt.Sprintf("%dx%dx%d", e.Width, e.Height, e.Depth)
}

type Format int

const (
	FormatUndefined Format = iota
	FormatRGBA8Unorm
	FormatBGRA8Unorm
	FormatBGRA8Srgb
	FormatRGBA16Float
	FormatRGBA32Float
	FormatR32Float
	FormatRG32Float
	FormatRGB32Float
	FormatD32Float
)

var formatNames = map[Format]string{
	FormatUndefined:   "undefined",
	FormatRGBA8Unorm:  "rgba8_unorm",
	FormatBGRA8Unorm:  "bgra8_unorm",
	FormatBGRA8Srgb:   "bgra8_srgb",
	FormatRGBA16Float: "rgba16_float",
	FormatRGBA32Float: "rgba32_float",
	FormatR32Float:    "r32_float",
	FormatRG32Float:   "rg32_float",
	FormatRGB32Float:  "rgb32_float",
	FormatD32Float:    "d32_float",
}

func (f Format) String() string {
	if n, ok := formatNames[f]; ok {
		return n
	}
	return fmt.Sprintf("format(%d)", int(f))
}

func (f Format) IsDepth() bool {
	return f == FormatD32Float
}

// Aspect returns the aspect a whole-image subresource range of this format covers.
func (f Format) Aspect() Aspect {
	if f.IsDepth() {
		return AspectDepth
	}
	return AspectColor
}

type ImageUsage uint32

const (
	UsageColorTarget ImageUsage = 1 << iota
	UsageDepthTarget
	UsageSampled
	UsageStorage
	UsageTransferSrc
	UsageTransferDst
)

type BufferUsage uint32

const (
	BufferUsageVertex BufferUsage = 1 << iota
	BufferUsageIndex
	BufferUsageUniform
	BufferUsageStorage
	BufferUsageTransferSrc
	BufferUsageTransferDst
)

// Stage is a set of pipeline stages.
type Stage uint32

const StageNone Stage = 0

const (
	StageTopOfPipe Stage = 1 << iota
	StageDrawIndirect
	StageVertexInput
	StageVertexShader
	StageFragmentShader
	StageEarlyFragmentTests
	StageLateFragmentTests
	StageColorAttachmentOutput
	StageComputeShader
	StageTransfer
	StageBottomOfPipe
	StageHost
	StageAllGraphics
	StageAllCommands
)

var stageNames = []string{
	"top_of_pipe", "draw_indirect", "vertex_input", "vertex_shader",
	"fragment_shader", "early_fragment_tests", "late_fragment_tests",
	"color_attachment_output", "compute_shader", "transfer",
	"bottom_of_pipe", "host", "all_graphics", "all_commands",
}

func (s Stage) String() string {
	return flagString(uint32(s), stageNames)
}

// Access is a set of memory access kinds.
type Access uint32

const AccessNone Access = 0

const (
	AccessIndirectCommandRead Access = 1 << iota
	AccessIndexRead
	AccessVertexAttributeRead
	AccessUniformRead
	AccessInputAttachmentRead
	AccessShaderRead
	AccessShaderWrite
	AccessColorAttachmentRead
	AccessColorAttachmentWrite
	AccessDepthStencilRead
	AccessDepthStencilWrite
	AccessTransferRead
	AccessTransferWrite
	AccessHostRead
	AccessHostWrite
	AccessMemoryRead
	AccessMemoryWrite
)

const accessWriteMask = AccessShaderWrite | AccessColorAttachmentWrite |
	AccessDepthStencilWrite | AccessTransferWrite | AccessHostWrite | AccessMemoryWrite

var accessNames = []string{
	"indirect_command_read", "index_read", "vertex_attribute_read",
	"uniform_read", "input_attachment_read", "shader_read", "shader_write",
	"color_attachment_read", "color_attachment_write", "depth_stencil_read",
	"depth_stencil_write", "transfer_read", "transfer_write", "host_read",
	"host_write", "memory_read", "memory_write",
}

// HasWrite reports whether any write access is part of the set.
func (a Access) HasWrite() bool {
	return a&accessWriteMask != 0
}

func (a Access) String() string {
	return flagString(uint32(a), accessNames)
}

type Layout int

const (
	LayoutUndefined Layout = iota
	LayoutGeneral
	LayoutColorAttachment
	LayoutDepthAttachment
	LayoutDepthReadOnly
	LayoutShaderReadOnly
	LayoutTransferSrc
	LayoutTransferDst
	LayoutPresent
)

var layoutNames = []string{
	"undefined", "general", "color_attachment", "depth_attachment",
	"depth_read_only", "shader_read_only", "transfer_src", "transfer_dst",
	"present",
}

func (l Layout) String() string {
	if int(l) >= 0 && int(l) < len(layoutNames) {
		return layoutNames[l]
	}
	return fmt.Sprintf("layout(%d)", int(l))
}

type Aspect uint32

const (
	AspectColor Aspect = 1 << iota
	AspectDepth
)

// SubresourceRange selects mip levels and array layers of an image.
type SubresourceRange struct {
	Aspect     Aspect
	BaseMip    uint32
	MipCount   uint32
	BaseLayer  uint32
	LayerCount uint32
}

// WholeImage covers the first mip and layer of a single-level image of the given format.
func WholeImage(format Format) SubresourceRange {
	return SubresourceRange{Aspect: format.Aspect(), MipCount: 1, LayerCount: 1}
}

func (r SubresourceRange) String() string {
	return fmt.Sprintf("mip[%d+%d] layer[%d+%d]", r.BaseMip, r.MipCount, r.BaseLayer, r.LayerCount)
}

type BindingKind int

const (
	BindingUniformBuffer BindingKind = iota
	BindingStorageBuffer
	BindingSampledImage
	BindingStorageImage
)

func (k BindingKind) String() string {
	switch k {
	case BindingUniformBuffer:
		return "uniform_buffer"
	case BindingStorageBuffer:
		return "storage_buffer"
	case BindingSampledImage:
		return "sampled_image"
	case BindingStorageImage:
		return "storage_image"
	}
	return fmt.Sprintf("binding(%d)", int(k))
}

type ShaderStage uint32

const (
	ShaderVertex ShaderStage = 1 << iota
	ShaderFragment
	ShaderCompute

	ShaderAllGraphics = ShaderVertex | ShaderFragment
)

type LoadOp int

const (
	LoadOpClear LoadOp = iota
	LoadOpLoad
	LoadOpDontCare
)

type IndexType int

const (
	IndexUint16 IndexType = iota
	IndexUint32
)

type PipelineKind int

const (
	PipelineGraphics PipelineKind = iota
	PipelineCompute
)

type Viewport struct {
	X, Y          float32
	Width, Height float32
	MinDepth      float32
	MaxDepth      float32
}

// FullViewport covers the whole extent with the [0,1] depth range.
func FullViewport(e Extent) Viewport {
	return Viewport{Width: float32(e.Width), Height: float32(e.Height), MaxDepth: 1}
}

// ClearColor is an RGBA clear value.
type ClearColor = f32.Vec4

func flagString(v uint32, names []string) string {
	if v == 0 {
		return "none"
	}
	var parts []string
	for i, n := range names {
		if v&(1<<uint(i)) != 0 {
			parts = append(parts, n)
		}
	}
	return strings.Join(parts, "|")
}
