package asset

import (
	"github.com/Carmen-Shannon/oxy-world/engine/loader"
	"github.com/go-gl/mathgl/mgl32"
)

// Header is the data every asset carries.
type Header struct {
	Handle Handle
	Kind   Kind
	Name   string

	// Path is the normalized registry key. It is empty for assets made with Create.
	Path string

	// Revision counts reloads and in-memory edits.
	Revision uint32

	// embedded marks data stored inside another asset's file, which cannot be reloaded alone.
	embedded bool
}

// Asset is implemented only by *Texture, *Shader, *Mesh, *Model and *Material.
// Use a type switch or the registry's typed getters to reach the variant.
type Asset interface {
	Header() Header
	header() *Header
}

type base struct {
	hdr Header
}

// Header returns a copy of the asset header.
func (b *base) Header() Header {
	return b.hdr
}

func (b *base) header() *Header {
	return &b.hdr
}

// Texture is decoded RGBA8 image data.
type Texture struct {
	base
	Width  uint32
	Height uint32
	Pixels []byte
}

// Shader is a WGSL module.
type Shader struct {
	base
	Source        string
	Stages        loader.ShaderStage
	VertexEntry   string
	FragmentEntry string
}

// Mesh is one node of a model hierarchy. Meshes without geometry are pure grouping nodes.
type Mesh struct {
	base
	Model    Handle
	Parent   Handle
	Children []Handle
	Local    mgl32.Mat4
	Material Handle

	Vertices  []loader.Vertex
	Indices   []uint32
	BoundsMin [3]float32
	BoundsMax [3]float32
}

// Renderable reports whether the mesh has triangles to draw.
func (m *Mesh) Renderable() bool {
	return len(m.Vertices) > 0 && len(m.Indices) > 0
}

// Model is an imported hierarchy. Meshes lists every node, parents before children,
// starting with Root.
type Model struct {
	base
	Root   Handle
	Meshes []Handle
}

// Material references its textures and shaders by handle. Nil shader handles select the
// backend's built-in shader.
type Material struct {
	base
	BaseColor      [4]float32
	Metallic       float32
	Roughness      float32
	Textures       []Handle
	VertexShader   Handle
	FragmentShader Handle
}

var (
	_ Asset = &Texture{}
	_ Asset = &Shader{}
	_ Asset = &Mesh{}
	_ Asset = &Model{}
	_ Asset = &Material{}
)

func newTexture(td *loader.TextureData) *Texture {
	return &Texture{Width: td.Width, Height: td.Height, Pixels: td.Pixels}
}

func newShader(sd *loader.ShaderData) *Shader {
	return &Shader{
		Source:        sd.Source,
		Stages:        sd.Stages,
		VertexEntry:   sd.VertexEntry,
		FragmentEntry: sd.FragmentEntry,
	}
}

func (m *Mesh) setGeometry(md *loader.MeshData) {
	m.Vertices = md.Vertices
	m.Indices = md.Indices
	m.BoundsMin = md.BoundsMin
	m.BoundsMax = md.BoundsMax
}

func (m *Material) uses(h Handle) bool {
	if m.VertexShader == h || m.FragmentShader == h {
		return true
	}
	for _, t := range m.Textures {
		if t == h {
			return true
		}
	}
	return false
}

func identity() mgl32.Mat4 {
	return mgl32.Ident4()
}
