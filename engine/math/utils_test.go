package math

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClamp(t *testing.T) {
	assert.Equal(t, 3, Clamp(7, 0, 3))
	assert.Equal(t, 0.5, Clamp(0.5, 0.0, 1.0))
	assert.Equal(t, uint32(2), Clamp(uint32(1), 2, 8))
}

func TestDivCeil(t *testing.T) {
	assert.Equal(t, uint32(8), DivCeil(uint32(64), 8))
	assert.Equal(t, uint32(9), DivCeil(uint32(65), 8))
	assert.Equal(t, uint32(0), DivCeil(uint32(4), 0))
	assert.Equal(t, uint64(256), AlignUp(uint64(200), 256))
}
