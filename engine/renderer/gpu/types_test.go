package gpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAccessHasWrite(t *testing.T) {
	assert.True(t, AccessShaderWrite.HasWrite())
	assert.True(t, (AccessShaderRead | AccessColorAttachmentWrite).HasWrite())
	assert.False(t, (AccessShaderRead | AccessUniformRead).HasWrite())
	assert.False(t, AccessNone.HasWrite())
}

func TestFlagStrings(t *testing.T) {
	assert.Equal(t, "none", StageNone.String())
	assert.Equal(t, "fragment_shader|compute_shader", (StageFragmentShader | StageComputeShader).String())
	assert.Equal(t, "shader_read", AccessShaderRead.String())
	assert.Equal(t, "present", LayoutPresent.String())
	assert.Equal(t, "d32_float", FormatD32Float.String())
}

func TestWholeImage(t *testing.T) {
	assert.Equal(t, AspectDepth, WholeImage(FormatD32Float).Aspect)
	r := WholeImage(FormatRGBA16Float)
	assert.Equal(t, AspectColor, r.Aspect)
	assert.Equal(t, uint32(1), r.MipCount)
	assert.Equal(t, uint32(1), r.LayerCount)
}

func TestBarrierBatchStages(t *testing.T) {
	b := BarrierBatch{
		Images:  []ImageBarrier{{SrcStage: StageColorAttachmentOutput, DstStage: StageComputeShader}},
		Buffers: []BufferBarrier{{SrcStage: StageComputeShader, DstStage: StageFragmentShader}},
	}
	src, dst := b.Stages()
	assert.Equal(t, StageColorAttachmentOutput|StageComputeShader, src)
	assert.Equal(t, StageComputeShader|StageFragmentShader, dst)
	assert.Equal(t, 2, b.Len())
}
