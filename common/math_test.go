package common

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func TestBuildModelMatrixMatchesComposedTRS(t *testing.T) {
	pos := [3]float32{1, -2, 3}
	rot := [3]float32{0.3, 1.1, -0.7}
	scale := [3]float32{2, 0.5, 1.5}

	want := mgl32.Translate3D(pos[0], pos[1], pos[2]).
		Mul4(mgl32.HomogRotate3DY(rot[1])).
		Mul4(mgl32.HomogRotate3DX(rot[0])).
		Mul4(mgl32.HomogRotate3DZ(rot[2])).
		Mul4(mgl32.Scale3D(scale[0], scale[1], scale[2]))

	got := BuildModelMatrix(pos, rot, scale)
	assert.True(t, want.ApproxEqualThreshold(got, 1e-5), "got %v want %v", got, want)
}

func TestIdentityTransform(t *testing.T) {
	assert.Equal(t, mgl32.Ident4(), IdentityTransform().Matrix())
}

// A child translated along +X under a parent rotated 90 degrees about Y must
// end up on -Z: the child's local transform is applied before the parent's.
func TestComposeAppliesLocalBeforeParent(t *testing.T) {
	parent := mgl32.HomogRotate3DY(mgl32.DegToRad(90))
	local := mgl32.Translate3D(1, 0, 0)

	world := Compose(local, parent)
	origin := world.Mul4x1(mgl32.Vec4{0, 0, 0, 1})

	assert.InDelta(t, 0, origin.X(), 1e-5)
	assert.InDelta(t, -1, origin.Z(), 1e-5)
}

func TestMat4BytesOwnsMemory(t *testing.T) {
	mats := []mgl32.Mat4{mgl32.Ident4(), mgl32.Translate3D(1, 2, 3)}
	b := Mat4Bytes(mats)
	assert.Len(t, b, 128)

	mats[0][0] = 42
	assert.NotEqual(t, SliceToBytes(mats)[:4], b[:4])
	assert.Nil(t, Mat4Bytes(nil))
}

func TestCoalesce(t *testing.T) {
	assert.Equal(t, "b", Coalesce("", "b", "c"))
	assert.Equal(t, 0, Coalesce(0, 0))
}
