package loader

import "github.com/go-gl/mathgl/mgl32"

// TextureData is a decoded image in tightly packed RGBA8 rows.
type TextureData struct {
	Name   string
	Width  uint32
	Height uint32
	Pixels []byte
}

// ShaderStage is a bitmask of the pipeline stages a WGSL module provides entry points for.
type ShaderStage uint8

const (
	StageVertex ShaderStage = 1 << iota
	StageFragment
	StageCompute
)

// Has reports whether every stage in s2 is present in s.
func (s ShaderStage) Has(s2 ShaderStage) bool {
	return s&s2 == s2
}

// ShaderData is WGSL source with its detected entry points.
type ShaderData struct {
	Name          string
	Source        string
	Stages        ShaderStage
	VertexEntry   string
	FragmentEntry string
	ComputeEntry  string
}

// TextureRef points a material at a texture. Exactly one of Path or Data is set:
// Path is relative to the owning material's BaseDir, Data is an image embedded in a model file
// and Key names it uniquely within that file.
type TextureRef struct {
	Path string
	Key  string
	Data *TextureData
}

// MaterialData describes a surface. Shader paths are relative to BaseDir and may be empty,
// in which case the backend's built-in shader is used.
type MaterialData struct {
	Name           string
	BaseDir        string
	BaseColor      [4]float32
	Metallic       float32
	Roughness      float32
	Textures       []TextureRef
	VertexShader   string
	FragmentShader string

	// Ref, when set on a model material, names an external .mat file (relative to BaseDir)
	// that replaces the embedded description.
	Ref string
}

// Vertex is the interleaved vertex layout shared by the loaders and the GPU backend.
type Vertex struct {
	Position [3]float32
	Normal   [3]float32
	TexCoord [2]float32
	Color    [4]float32
}

// VertexSize is the byte size of one Vertex.
const VertexSize = 48

// MeshData is one triangle list.
type MeshData struct {
	Name      string
	Vertices  []Vertex
	Indices   []uint32
	BoundsMin [3]float32
	BoundsMax [3]float32
}

// ModelNode is one node of a model's authored hierarchy. Nodes are stored parents first;
// Parent is -1 only for the root at index 0. Material indexes ModelData.Materials or is -1.
type ModelNode struct {
	Name     string
	Parent   int
	Local    mgl32.Mat4
	Mesh     *MeshData
	Material int
}

// ModelData is a fully imported model file.
type ModelData struct {
	Name      string
	Nodes     []ModelNode
	Materials []MaterialData
}
