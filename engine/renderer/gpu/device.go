package gpu

import (
	"errors"
	"time"
)

// WaitForever is the fence timeout used when a frame may block indefinitely.
const WaitForever time.Duration = 1<<63 - 1

var (
	ErrOutOfDate         = errors.New("surface out of date")
	ErrSuboptimal        = errors.New("surface suboptimal")
	ErrTimeout           = errors.New("wait timed out")
	ErrDeviceLost        = errors.New("device lost")
	ErrOutOfMemory       = errors.New("out of device memory")
	ErrPoolExhausted     = errors.New("binding pool exhausted")
	ErrShaderCompile     = errors.New("shader module rejected")
	ErrUnsupportedFormat = errors.New("unsupported format")
)

// Physical handles. Their identity is the backend object they wrap.
type (
	Image interface {
		Label() string
		Extent() Extent
		Format() Format
	}
	ImageView interface {
		Image() Image
	}
	Buffer interface {
		Label() string
		Size() uint64
	}
	BindingLayout interface {
		Kinds() []BindingKind
	}
	BindingGroup  interface{}
	ShaderModule  interface{ Path() string }
	Pipeline      interface{ Kind() PipelineKind }
	Fence         interface{}
	Semaphore     interface{}
)

type ImageDesc struct {
	Label  string
	Extent Extent
	Format Format
	Usage  ImageUsage
}

type BufferDesc struct {
	Label string
	Size  uint64
	Usage BufferUsage
	// HostVisible buffers can be written with Device.WriteBuffer.
	HostVisible bool
}

type BindingLayoutEntry struct {
	Binding    uint32
	Kind       BindingKind
	Visibility ShaderStage
}

type BindingPool interface {
	// Allocate returns count groups with the given layout or ErrPoolExhausted.
	Allocate(layout BindingLayout, count int) ([]BindingGroup, error)
}

type BindingPoolDesc struct {
	MaxGroups  int
	Capacities map[BindingKind]int
}

// BindingResource is what gets written into one binding of a group.
// Buffers use Buffer/Offset/Range, images use View.
type BindingResource struct {
	Buffer Buffer
	Offset uint64
	Range  uint64
	View   ImageView
}

type BindingWrite struct {
	Group    BindingGroup
	Binding  uint32
	Kind     BindingKind
	Resource BindingResource
}

type VertexAttribute struct {
	Location uint32
	Format   Format
	Offset   uint32
}

type VertexLayout struct {
	Stride     uint32
	Attributes []VertexAttribute
}

type GraphicsPipelineDesc struct {
	Label        string
	Vertex       ShaderModule
	Fragment     ShaderModule
	ColorFormats []Format
	DepthFormat  Format
	Layouts      []BindingLayout
	VertexLayout *VertexLayout
	SampleCount  uint32
	DepthTest    bool
	DepthWrite   bool
}

type ComputePipelineDesc struct {
	Label   string
	Shader  ShaderModule
	Layouts []BindingLayout
}

type BufferBarrier struct {
	Buffer    Buffer
	SrcStage  Stage
	SrcAccess Access
	DstStage  Stage
	DstAccess Access
	Offset    uint64
	Size      uint64
}

type ImageBarrier struct {
	Image     Image
	SrcStage  Stage
	SrcAccess Access
	OldLayout Layout
	DstStage  Stage
	DstAccess Access
	NewLayout Layout
	Range     SubresourceRange
}

// BarrierBatch is recorded as one synchronization command.
type BarrierBatch struct {
	Buffers []BufferBarrier
	Images  []ImageBarrier
}

func (b BarrierBatch) Len() int {
	return len(b.Buffers) + len(b.Images)
}

// Stages returns the union of source and destination stages of the batch.
func (b BarrierBatch) Stages() (src, dst Stage) {
	for _, bb := range b.Buffers {
		src |= bb.SrcStage
		dst |= bb.DstStage
	}
	for _, ib := range b.Images {
		src |= ib.SrcStage
		dst |= ib.DstStage
	}
	return src, dst
}

type Attachment struct {
	View       ImageView
	Load       LoadOp
	Store      bool
	Clear      ClearColor
	ClearDepth float32
}

type RenderingInfo struct {
	Label  string
	Extent Extent
	Colors []Attachment
	Depth  *Attachment
}

type CommandBuffer interface {
	Begin() error
	End() error
	Barrier(batch BarrierBatch)
	BeginRendering(info RenderingInfo)
	EndRendering()
	SetViewport(vp Viewport)
	BindPipeline(p Pipeline)
	BindGroups(p Pipeline, first uint32, groups []BindingGroup)
	BindVertexBuffers(first uint32, buffers []Buffer, offsets []uint64)
	BindIndexBuffer(buffer Buffer, offset uint64, indexType IndexType)
	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32)
	DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32)
	Dispatch(x, y, z uint32)
}

type SubmitInfo struct {
	Commands   CommandBuffer
	Wait       []Semaphore
	WaitStages []Stage
	Signal     []Semaphore
	Fence      Fence
}

type Device interface {
	CreateImage(desc ImageDesc) (Image, error)
	DestroyImage(img Image)
	CreateImageView(img Image, rng SubresourceRange) (ImageView, error)
	DestroyImageView(view ImageView)

	CreateBuffer(desc BufferDesc) (Buffer, error)
	DestroyBuffer(buf Buffer)
	WriteBuffer(buf Buffer, offset uint64, data []byte) error

	CreateBindingLayout(entries []BindingLayoutEntry) (BindingLayout, error)
	DestroyBindingLayout(layout BindingLayout)
	CreateBindingPool(desc BindingPoolDesc) (BindingPool, error)
	DestroyBindingPool(pool BindingPool)
	WriteBindings(writes []BindingWrite)

	LoadShader(path string, stage ShaderStage) (ShaderModule, error)
	DestroyShader(module ShaderModule)
	CreateGraphicsPipeline(desc GraphicsPipelineDesc) (Pipeline, error)
	CreateComputePipeline(desc ComputePipelineDesc) (Pipeline, error)
	DestroyPipeline(p Pipeline)

	CreateFence(signaled bool) (Fence, error)
	// WaitFence returns ErrTimeout or ErrDeviceLost when the fence does not signal.
	WaitFence(f Fence, timeout time.Duration) error
	ResetFence(f Fence) error
	DestroyFence(f Fence)
	CreateSemaphore() (Semaphore, error)
	DestroySemaphore(s Semaphore)

	CreateCommandBuffer() (CommandBuffer, error)
	FreeCommandBuffer(cb CommandBuffer)
	Submit(info SubmitInfo) error
	WaitIdle() error
}

// Swapchain is the presentable surface the excluded windowing layer hands over.
type Swapchain interface {
	// Acquire returns the index of the next presentable image. ErrOutOfDate
	// means the surface must be rebuilt before rendering again.
	Acquire(timeout time.Duration, signal Semaphore) (uint32, error)
	Present(index uint32, wait Semaphore) error
	Images() []Image
	Views() []ImageView
	Format() Format
	Extent() Extent
	Len() int
}
