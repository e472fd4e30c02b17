package light

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// GPULightSize is the byte size of one marshaled GPULight.
const GPULightSize = 64

// GPULightSource is the WGSL definition matching GPULight.
const GPULightSource = `struct Light {
    position: vec3<f32>,
    light_type: u32,
    color: vec3<f32>,
    intensity: f32,
    direction: vec3<f32>,
    light_range: f32,
    inner_cone: f32,
    outer_cone: f32,
    casts_shadows: u32,
    _pad: u32,
};
`

// GPULight is the GPU-aligned representation of a placed light source.
// Size: 64 bytes (std430 / WGSL aligned).
type GPULight struct {
	Position     [3]float32 // offset  0: world-space position (point/spot) or unused (directional)
	LightType    uint32     // offset 12: 0 = directional, 1 = point, 2 = spot
	Color        [3]float32 // offset 16: RGB color
	Intensity    float32    // offset 28: scalar multiplier
	Direction    [3]float32 // offset 32: normalized direction (directional/spot) or unused (point)
	LightRange   float32    // offset 44: attenuation cutoff distance
	InnerCone    float32    // offset 48: cos(inner half-angle) for spot
	OuterCone    float32    // offset 52: cos(outer half-angle) for spot
	CastsShadows uint32     // offset 56: 1 = casts shadows, 0 = does not
}

// ToGPULight places a light at a node's world transform. The light shines along the node's
// local -Z axis, and a disabled light has zero intensity.
//
// Parameters:
//   - l: the light descriptor
//   - world: the world transform of the node carrying the light
//
// Returns:
//   - GPULight: the GPU-aligned representation
func ToGPULight(l Light, world mgl32.Mat4) GPULight {
	g := GPULight{
		Position:   [3]float32(world.Col(3).Vec3()),
		LightType:  uint32(l.Type),
		Color:      l.Color,
		Intensity:  l.Intensity,
		LightRange: l.Range,
		InnerCone:  l.InnerCone,
		OuterCone:  l.OuterCone,
	}
	if dir := world.Mul4x1(mgl32.Vec4{0, 0, -1, 0}).Vec3(); dir.Len() > 0 {
		g.Direction = [3]float32(dir.Normalize())
	}
	if l.CastsShadows {
		g.CastsShadows = 1
	}
	if !l.Enabled {
		g.Intensity = 0
	}
	return g
}

// Marshal serializes the GPULight into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 64-byte buffer ready for GPU upload
func (g *GPULight) Marshal() []byte {
	buf := make([]byte, GPULightSize)
	put := func(off int, v float32) {
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(v))
	}
	for i := 0; i < 3; i++ {
		put(i*4, g.Position[i])
		put(16+i*4, g.Color[i])
		put(32+i*4, g.Direction[i])
	}
	binary.LittleEndian.PutUint32(buf[12:], g.LightType)
	put(28, g.Intensity)
	put(44, g.LightRange)
	put(48, g.InnerCone)
	put(52, g.OuterCone)
	binary.LittleEndian.PutUint32(buf[56:], g.CastsShadows)
	return buf
}
