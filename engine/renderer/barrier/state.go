package barrier

import (
	"fmt"

	"github.com/spaghettifunk/aurora/engine/renderer/gpu"
)

// State is where a resource stands in the pipeline: the stage that last
// touched it, how, and for images the layout it is in.
type State struct {
	Stage  gpu.Stage
	Access gpu.Access
	Layout gpu.Layout
}

func (s State) String() string {
	return fmt.Sprintf("{%s %s %s}", s.Stage, s.Access, s.Layout)
}

var (
	// Undefined discards previous contents. Valid as a prior state only.
	Undefined = State{Stage: gpu.StageTopOfPipe, Access: gpu.AccessNone, Layout: gpu.LayoutUndefined}

	ColorTarget = State{
		Stage:  gpu.StageColorAttachmentOutput,
		Access: gpu.AccessColorAttachmentWrite,
		Layout: gpu.LayoutColorAttachment,
	}
	DepthTarget = State{
		Stage:  gpu.StageEarlyFragmentTests | gpu.StageLateFragmentTests,
		Access: gpu.AccessDepthStencilRead | gpu.AccessDepthStencilWrite,
		Layout: gpu.LayoutDepthAttachment,
	}
	FragmentRead = State{
		Stage:  gpu.StageFragmentShader,
		Access: gpu.AccessShaderRead,
		Layout: gpu.LayoutShaderReadOnly,
	}
	ComputeRead = State{
		Stage:  gpu.StageComputeShader,
		Access: gpu.AccessShaderRead,
		Layout: gpu.LayoutShaderReadOnly,
	}
	DepthComputeRead = State{
		Stage:  gpu.StageComputeShader,
		Access: gpu.AccessShaderRead,
		Layout: gpu.LayoutDepthReadOnly,
	}
	ComputeWrite = State{
		Stage:  gpu.StageComputeShader,
		Access: gpu.AccessShaderWrite,
		Layout: gpu.LayoutGeneral,
	}
	ComputeReadWrite = State{
		Stage:  gpu.StageComputeShader,
		Access: gpu.AccessShaderRead | gpu.AccessShaderWrite,
		Layout: gpu.LayoutGeneral,
	}
	TransferDst = State{
		Stage:  gpu.StageTransfer,
		Access: gpu.AccessTransferWrite,
		Layout: gpu.LayoutTransferDst,
	}
	Present = State{
		Stage:  gpu.StageBottomOfPipe,
		Access: gpu.AccessNone,
		Layout: gpu.LayoutPresent,
	}
)

// Phase is the coarse lifecycle position of an image within a frame.
type Phase int

const (
	PhaseUninitialized Phase = iota
	PhaseWrite
	PhaseRead
	PhasePresent
)

func (p Phase) String() string {
	return [...]string{"uninitialized", "write", "read", "present"}[p]
}

// PhaseOf classifies a state.
func PhaseOf(s State) Phase {
	switch {
	case s.Layout == gpu.LayoutPresent:
		return PhasePresent
	case s.Layout == gpu.LayoutUndefined:
		return PhaseUninitialized
	case s.Access.HasWrite():
		return PhaseWrite
	default:
		return PhaseRead
	}
}

// Legal reports whether an image may move from one phase to the next:
// uninitialized -> write -> read -> write ... -> present. Discarding back to
// uninitialized is always allowed, which is how a new frame starts.
func Legal(from, to Phase) bool {
	if to == PhaseUninitialized {
		return true
	}
	switch from {
	case PhaseUninitialized:
		return to == PhaseWrite
	case PhaseWrite:
		return to == PhaseWrite || to == PhaseRead || to == PhasePresent
	case PhaseRead:
		return to == PhaseWrite || to == PhaseRead || to == PhasePresent
	case PhasePresent:
		return false
	}
	return false
}
