package common

import (
	"math"
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
)

// Transform is an authored position / Euler rotation / scale triple.
// It is the editor-facing form of a node's local matrix.
type Transform struct {
	// Position is the translation in parent space.
	Position [3]float32
	// Rotation holds Euler angles in radians, applied Y * X * Z.
	Rotation [3]float32
	// Scale holds per-axis scale factors.
	Scale [3]float32
}

// IdentityTransform returns a Transform with unit scale and no translation or rotation.
//
// Returns:
//   - Transform: the identity transform
func IdentityTransform() Transform {
	return Transform{Scale: [3]float32{1, 1, 1}}
}

// Matrix builds the column-major model matrix for the transform.
//
// Returns:
//   - mgl32.Mat4: the composed matrix
func (t Transform) Matrix() mgl32.Mat4 {
	return BuildModelMatrix(t.Position, t.Rotation, t.Scale)
}

// BuildModelMatrix constructs a 4x4 model matrix from position, Euler rotation, and scale.
// The rotation order is Y * X * Z (yaw-pitch-roll). The result is column-major, matching mgl32.
//
// Parameters:
//   - pos: translation in parent space
//   - rot: rotation angles in radians around each axis
//   - scale: scale factors along each axis
//
// Returns:
//   - mgl32.Mat4: the model matrix
func BuildModelMatrix(pos, rot, scale [3]float32) mgl32.Mat4 {
	cx := float32(math.Cos(float64(rot[0])))
	sx := float32(math.Sin(float64(rot[0])))
	cy := float32(math.Cos(float64(rot[1])))
	sy := float32(math.Sin(float64(rot[1])))
	cz := float32(math.Cos(float64(rot[2])))
	sz := float32(math.Sin(float64(rot[2])))

	var out mgl32.Mat4
	out[0] = (cy*cz + sy*sx*sz) * scale[0]
	out[1] = (cx * sz) * scale[0]
	out[2] = (-sy*cz + cy*sx*sz) * scale[0]

	out[4] = (cy*-sz + sy*sx*cz) * scale[1]
	out[5] = (cx * cz) * scale[1]
	out[6] = (sy*sz + cy*sx*cz) * scale[1]

	out[8] = (sy * cx) * scale[2]
	out[9] = (-sx) * scale[2]
	out[10] = (cy * cx) * scale[2]

	out[12] = pos[0]
	out[13] = pos[1]
	out[14] = pos[2]
	out[15] = 1
	return out
}

// Compose returns the world matrix of a node given its local matrix and the parent's world matrix.
// Matrices are column-vector (mgl32), so the local transform is applied first and the parent's second.
//
// Parameters:
//   - local: the node's local matrix
//   - parentWorld: the parent's world matrix
//
// Returns:
//   - mgl32.Mat4: parentWorld * local
func Compose(local, parentWorld mgl32.Mat4) mgl32.Mat4 {
	return parentWorld.Mul4(local)
}

// SliceToBytes converts any slice to a byte slice for GPU buffer uploads.
// The returned slice shares memory with the input and must not outlive it.
//
// Parameters:
//   - data: source slice of any type
//
// Returns:
//   - []byte: byte slice view of the input data, or nil if input is empty
func SliceToBytes[T any](data []T) []byte {
	if len(data) == 0 {
		return nil
	}
	var zero T
	size := unsafe.Sizeof(zero)
	return unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), int(size)*len(data))
}

// Mat4Bytes copies a list of matrices into a freshly allocated byte slice, 64 bytes per matrix.
// Unlike SliceToBytes the result owns its memory, so it can be handed to another goroutine.
//
// Parameters:
//   - mats: the matrices to pack
//
// Returns:
//   - []byte: packed column-major float32 data
func Mat4Bytes(mats []mgl32.Mat4) []byte {
	view := SliceToBytes(mats)
	if view == nil {
		return nil
	}
	out := make([]byte, len(view))
	copy(out, view)
	return out
}
