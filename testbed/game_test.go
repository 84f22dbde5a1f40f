package testbed

import (
	"testing"

	"github.com/spaghettifunk/aurora/engine/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCubeMesh(t *testing.T) {
	vertices, indices := cubeMesh()
	require.Len(t, vertices, 24)
	require.Len(t, indices, 36)

	for _, idx := range indices {
		assert.Less(t, int(idx), len(vertices))
	}
	for _, v := range vertices {
		// Resting on the ground, one unit wide.
		assert.GreaterOrEqual(t, v.Position[1], float32(0))
		assert.LessOrEqual(t, v.Position[1], float32(1))
		assert.InDelta(t, 0.5, abs(v.Position[0]), 0.5001)
		n := v.Normal[0]*v.Normal[0] + v.Normal[1]*v.Normal[1] + v.Normal[2]*v.Normal[2]
		assert.InDelta(t, 1, n, 1e-6)
	}
}

func TestCubeFacesPointOutward(t *testing.T) {
	vertices, _ := cubeMesh()
	for _, v := range vertices {
		centered := [3]float32{v.Position[0], v.Position[1] - 0.5, v.Position[2]}
		dot := centered[0]*v.Normal[0] + centered[1]*v.Normal[1] + centered[2]*v.Normal[2]
		assert.InDelta(t, 0.5, dot, 1e-6)
	}
}

func TestPauseToggle(t *testing.T) {
	g := NewTestGame("")
	require.NoError(t, g.Update(1))
	moved := g.state().angle
	assert.Greater(t, moved, float32(0))

	g.onKey(core.EventContext{Type: core.EVENT_CODE_KEY_PRESSED, Data: core.KeyEvent{KeyCode: core.KEY_P}})
	require.NoError(t, g.Update(1))
	assert.Equal(t, moved, g.state().angle)

	// Releases are ignored.
	g.onKey(core.EventContext{Type: core.EVENT_CODE_KEY_RELEASED, Data: core.KeyEvent{KeyCode: core.KEY_P}})
	assert.True(t, g.state().paused)
}

func abs(f float32) float32 {
	if f < 0 {
		return -f
	}
	return f
}
