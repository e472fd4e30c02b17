package asset

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Carmen-Shannon/oxy-world/engine/event"
)

// Handle identifies an asset within one registry session. The low 24 bits are a dense index
// into the registry's asset table and the high 8 bits are the session tag, which is never zero,
// so the zero Handle is free to act as the null sentinel even for the asset at index 0.
type Handle uint32

// Nil is the null handle.
const Nil Handle = 0

const (
	indexBits = 24
	indexMask = 1<<indexBits - 1

	// MaxAssets is the number of assets one registry can hold.
	MaxAssets = indexMask + 1
)

func makeHandle(index uint32, tag uint8) Handle {
	return Handle(uint32(tag)<<indexBits | index&indexMask)
}

// Index returns the dense table index.
func (h Handle) Index() uint32 {
	return uint32(h) & indexMask
}

// Tag returns the session tag.
func (h Handle) Tag() uint8 {
	return uint8(uint32(h) >> indexBits)
}

// IsNil reports whether h is the null handle.
func (h Handle) IsNil() bool {
	return h == Nil
}

func (h Handle) String() string {
	if h.IsNil() {
		return "asset(nil)"
	}
	return fmt.Sprintf("asset(%d@%d)", h.Index(), h.Tag())
}

// Kind discriminates the asset variants.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindTexture
	KindShader
	KindMesh
	KindModel
	KindMaterial
)

var kindNames = [...]string{
	KindUnknown:  "unknown",
	KindTexture:  "texture",
	KindShader:   "shader",
	KindMesh:     "mesh",
	KindModel:    "model",
	KindMaterial: "material",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// KindFromExt infers an asset kind from a file extension, case-insensitively.
//
// Parameters:
//   - path: the file path
//
// Returns:
//   - Kind: the inferred kind, KindUnknown if the extension is not recognized
func KindFromExt(path string) Kind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".jpg", ".jpeg":
		return KindTexture
	case ".wgsl":
		return KindShader
	case ".gltf", ".glb":
		return KindModel
	case ".mat":
		return KindMaterial
	default:
		return KindUnknown
	}
}

// eventPayload packs a handle and kind the way every asset event carries them.
func eventPayload(h Handle, k Kind) event.Payload {
	return event.U32s([4]uint32{uint32(h), uint32(k), 0, 0})
}

// FromEvent extracts the handle and kind carried by an asset event.
//
// Parameters:
//   - ev: an event with one of the asset codes
//
// Returns:
//   - Handle: the asset handle
//   - Kind: the asset kind
//   - bool: false if the payload does not carry an asset
func FromEvent(ev event.Event) (Handle, Kind, bool) {
	v, ok := ev.Payload.U32s()
	if !ok {
		return Nil, KindUnknown, false
	}
	return Handle(v[0]), Kind(v[1]), true
}
