// Package loader holds the file-format readers used by the asset registry.
// Every loader is a pure function from a path to raw data; ownership passes to the caller.
package loader

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Set bundles one loader per file-backed asset kind.
type Set struct {
	Texture  func(path string) (*TextureData, error)
	Shader   func(path string) (*ShaderData, error)
	Material func(path string) (*MaterialData, error)
	Model    func(path string) (*ModelData, error)
}

// Default returns the loaders for PNG/JPEG textures, WGSL shaders, TOML materials and glTF models.
//
// Returns:
//   - Set: the default loader set
func Default() Set {
	return NewSet()
}

// NewSet creates a loader Set starting from the defaults and applying the given overrides.
//
// Parameters:
//   - options: functional options replacing individual loaders
//
// Returns:
//   - Set: the configured loader set
func NewSet(options ...SetBuilderOption) Set {
	s := Set{
		Texture:  Texture,
		Shader:   Shader,
		Material: Material,
		Model:    Model,
	}
	for _, option := range options {
		option(&s)
	}
	return s
}

// Texture decodes a PNG or JPEG file to RGBA8.
//
// Parameters:
//   - path: the image file
//
// Returns:
//   - *TextureData: the decoded pixels
//   - error: error if the file cannot be read or decoded
func Texture(path string) (*TextureData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open texture file %s: %w", path, err)
	}
	tex, err := DecodeTexture(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode texture file %s: %w", path, err)
	}
	tex.Name = baseName(path)
	return tex, nil
}

// DecodeTexture decodes an in-memory PNG or JPEG image to RGBA8.
func DecodeTexture(data []byte) (*TextureData, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)

	return &TextureData{
		Width:  uint32(bounds.Dx()),
		Height: uint32(bounds.Dy()),
		Pixels: rgba.Pix,
	}, nil
}

var (
	vertexEntryRegex   = regexp.MustCompile(`(?s)@vertex\b.*?\bfn\s+(\w+)`)
	fragmentEntryRegex = regexp.MustCompile(`(?s)@fragment\b.*?\bfn\s+(\w+)`)
	computeEntryRegex  = regexp.MustCompile(`(?s)@compute\b.*?\bfn\s+(\w+)`)
)

// Shader reads a WGSL file and detects its vertex, fragment and compute entry points.
// A module without any entry point is rejected.
//
// Parameters:
//   - path: the .wgsl file
//
// Returns:
//   - *ShaderData: the source and its entry points
//   - error: error if the file cannot be read or has no entry point
func Shader(path string) (*ShaderData, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read shader %s: %w", path, err)
	}

	sd, err := ParseShader(string(src))
	if err != nil {
		return nil, fmt.Errorf("shader %s: %w", path, err)
	}
	sd.Name = baseName(path)
	return sd, nil
}

// ParseShader detects entry points in WGSL source.
func ParseShader(source string) (*ShaderData, error) {
	sd := &ShaderData{Source: source}
	if m := vertexEntryRegex.FindStringSubmatch(source); m != nil {
		sd.Stages |= StageVertex
		sd.VertexEntry = m[1]
	}
	if m := fragmentEntryRegex.FindStringSubmatch(source); m != nil {
		sd.Stages |= StageFragment
		sd.FragmentEntry = m[1]
	}
	if m := computeEntryRegex.FindStringSubmatch(source); m != nil {
		sd.Stages |= StageCompute
		sd.ComputeEntry = m[1]
	}
	if sd.Stages == 0 {
		return nil, fmt.Errorf("no entry point found")
	}
	return sd, nil
}

// materialFile is the on-disk layout of a .mat file.
type materialFile struct {
	Name           string     `toml:"name"`
	BaseColor      [4]float32 `toml:"base_color"`
	Metallic       float32    `toml:"metallic"`
	Roughness      *float32   `toml:"roughness"`
	Textures       []string   `toml:"textures"`
	VertexShader   string     `toml:"vertex_shader"`
	FragmentShader string     `toml:"fragment_shader"`
}

// Material reads a TOML material description:
//
//	name = "brick"
//	base_color = [1.0, 1.0, 1.0, 1.0]
//	metallic = 0.0
//	roughness = 0.8
//	textures = ["brick_albedo.png"]
//	vertex_shader = "../shaders/lit.wgsl"
//	fragment_shader = "../shaders/lit.wgsl"
//
// Unknown keys are rejected. Referenced files are relative to the .mat file.
//
// Parameters:
//   - path: the .mat file
//
// Returns:
//   - *MaterialData: the decoded material
//   - error: error if the file cannot be read or decoded
func Material(path string) (*MaterialData, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open material %s: %w", path, err)
	}
	defer f.Close()

	mf := materialFile{BaseColor: [4]float32{1, 1, 1, 1}}
	if err := toml.NewDecoder(f).DisallowUnknownFields().Decode(&mf); err != nil {
		return nil, fmt.Errorf("failed to decode material %s: %w", path, err)
	}

	md := &MaterialData{
		Name:           mf.Name,
		BaseDir:        filepath.Dir(path),
		BaseColor:      mf.BaseColor,
		Metallic:       mf.Metallic,
		Roughness:      1,
		VertexShader:   mf.VertexShader,
		FragmentShader: mf.FragmentShader,
	}
	if mf.Roughness != nil {
		md.Roughness = *mf.Roughness
	}
	if md.Name == "" {
		md.Name = baseName(path)
	}
	for _, t := range mf.Textures {
		md.Textures = append(md.Textures, TextureRef{Path: t})
	}
	return md, nil
}

// Model imports a .gltf or .glb file into a node hierarchy.
//
// Parameters:
//   - path: the model file
//
// Returns:
//   - *ModelData: the imported hierarchy, meshes and materials
//   - error: error if parsing or extraction fails
func Model(path string) (*ModelData, error) {
	parser := newGLTFParser()
	if err := parser.Parse(path); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return newGLTFImporter(parser).Import(baseName(path))
}

func baseName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
