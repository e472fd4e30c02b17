// Package light holds the light descriptor an entity can carry.
//
// A Light has no transform of its own. Its position and direction come from the world
// transform of the scene node whose entity carries it, which is why the GPU record is built
// with ToGPULight(l, world) at synchronization time rather than stored on the light.
package light

import "fmt"

// LightType identifies the kind of light source.
type LightType uint32

const (
	// LightTypeDirectional represents a light with no position, only direction.
	// Used for large distant sources like the sun or moon.
	LightTypeDirectional LightType = iota

	// LightTypePoint represents a light that emits in all directions from a position.
	// Attenuates with distance up to Range.
	LightTypePoint

	// LightTypeSpot represents a light that emits in a cone along the node's forward axis.
	// Attenuates with both distance and angle from the cone axis.
	LightTypeSpot
)

func (t LightType) String() string {
	switch t {
	case LightTypeDirectional:
		return "directional"
	case LightTypePoint:
		return "point"
	case LightTypeSpot:
		return "spot"
	default:
		return fmt.Sprintf("LightType(%d)", uint32(t))
	}
}

// Light is the light descriptor attached to an entity. It is a value type: entities copy it
// on attach, so mutating a Light after attaching it has no effect until it is attached again.
type Light struct {
	Type      LightType
	Color     [3]float32
	Intensity float32

	// Range is the attenuation cutoff for point and spot lights.
	Range float32

	// InnerCone and OuterCone are cosines of the spot half-angles.
	InnerCone float32
	OuterCone float32

	CastsShadows bool
	Enabled      bool
}

// NewLight creates a Light of the specified type with sensible defaults and any provided
// options applied.
//
// Parameters:
//   - lightType: the kind of light to create (directional, point, or spot)
//   - opts: variadic list of LightBuilderOption functions to configure the light
//
// Returns:
//   - Light: the light descriptor
func NewLight(lightType LightType, opts ...LightBuilderOption) Light {
	l := Light{
		Type:      lightType,
		Color:     [3]float32{1, 1, 1},
		Intensity: 1.0,
		Range:     10.0,
		InnerCone: 0.9063, // cos(25°)
		OuterCone: 0.8192, // cos(35°)
		Enabled:   true,
	}
	for _, opt := range opts {
		opt(&l)
	}
	return l
}

// Validate reports descriptor values the shaders cannot use.
//
// Returns:
//   - error: nil if the light is usable
func (l Light) Validate() error {
	if l.Type > LightTypeSpot {
		return fmt.Errorf("light: unknown type %s", l.Type)
	}
	if l.Intensity < 0 {
		return fmt.Errorf("light: negative intensity %g", l.Intensity)
	}
	if l.Type != LightTypeDirectional && l.Range <= 0 {
		return fmt.Errorf("light: %s light needs a positive range, got %g", l.Type, l.Range)
	}
	if l.Type == LightTypeSpot && l.InnerCone < l.OuterCone {
		return fmt.Errorf("light: spot inner cone is wider than the outer cone")
	}
	return nil
}
