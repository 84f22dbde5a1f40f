package math

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMat4IdentityMul(t *testing.T) {
	p := NewMat4Perspective(DegToRad(60), 16.0/9.0, 0.1, 100)
	assert.Equal(t, p, NewMat4Identity().Mul(p))
	assert.Equal(t, p, p.Mul(NewMat4Identity()))
}

func TestLookAtMovesEyeToOrigin(t *testing.T) {
	eye := NewVec3(3, 2, 5)
	view := NewMat4LookAt(eye, NewVec3(0, 0, 0), NewVec3(0, 1, 0))

	got := view.TransformPoint(eye)
	assert.InDelta(t, 0, got.X, 1e-5)
	assert.InDelta(t, 0, got.Y, 1e-5)
	assert.InDelta(t, 0, got.Z, 1e-5)

	// The target ends up straight ahead, down the negative z axis.
	target := view.TransformPoint(NewVec3(0, 0, 0))
	assert.InDelta(t, 0, target.X, 1e-5)
	assert.InDelta(t, 0, target.Y, 1e-5)
	assert.InDelta(t, -eye.Length(), target.Z, 1e-4)
}

func TestPerspectiveDepthRange(t *testing.T) {
	near, far := float32(0.5), float32(50)
	p := NewMat4Perspective(DegToRad(90), 1, near, far)

	depth := func(z float32) float32 {
		clip := p.TransformPoint(NewVec3(0, 0, z))
		w := -z
		return clip.Z / w
	}
	assert.InDelta(t, 0, depth(-near), 1e-5)
	assert.InDelta(t, 1, depth(-far), 1e-5)
	assert.Less(t, p.Data[5], float32(0))
}

func TestEulerYQuarterTurn(t *testing.T) {
	r := NewMat4EulerY(DegToRad(90)).TransformPoint(NewVec3(1, 0, 0))
	assert.InDelta(t, 0, r.X, 1e-5)
	assert.InDelta(t, -1, r.Z, 1e-5)
}

func TestNormalizedZero(t *testing.T) {
	assert.Equal(t, Vec3{}, Vec3{}.Normalized())
	assert.InDelta(t, 1, NewVec3(3, 4, 0).Normalized().Length(), 1e-6)
}
