// Package loadertest writes small asset files for tests.
package loadertest

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// Node describes one glTF node of a generated model.
type Node struct {
	Name        string
	Translation [3]float32
	Children    []int
	Mesh        bool
}

// triangle returns a buffer with three VEC3 positions followed by three uint16 indices.
func triangle() []byte {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, [9]float32{0, 0, 0, 1, 0, 0, 0, 1, 0})
	_ = binary.Write(&buf, binary.LittleEndian, [3]uint16{0, 1, 2})
	return buf.Bytes()
}

// GLTF builds a .gltf document whose mesh nodes all share one triangle mesh and material 0.
// When materialRef is set, material 0 binds that external .mat file through its extras.
//
// Parameters:
//   - nodes: the node list; nodes not referenced as children become scene roots
//   - materialRef: optional .mat path relative to the model file
//
// Returns:
//   - []byte: the JSON document
func GLTF(nodes []Node, materialRef string) []byte {
	data := triangle()

	isChild := make([]bool, len(nodes))
	for _, n := range nodes {
		for _, c := range n.Children {
			isChild[c] = true
		}
	}

	roots := []int{}
	gnodes := make([]map[string]any, len(nodes))
	for i, n := range nodes {
		gn := map[string]any{
			"name":        n.Name,
			"translation": n.Translation,
		}
		if len(n.Children) > 0 {
			gn["children"] = n.Children
		}
		if n.Mesh {
			gn["mesh"] = 0
		}
		gnodes[i] = gn
		if !isChild[i] {
			roots = append(roots, i)
		}
	}

	material := map[string]any{
		"name": "shared",
		"pbrMetallicRoughness": map[string]any{
			"baseColorFactor": []float32{0.5, 0.5, 0.5, 1},
			"metallicFactor":  0.25,
		},
	}
	if materialRef != "" {
		material["extras"] = map[string]any{"material": materialRef}
	}

	doc := map[string]any{
		"asset":  map[string]any{"version": "2.0"},
		"scene":  0,
		"scenes": []any{map[string]any{"nodes": roots}},
		"nodes":  gnodes,
		"meshes": []any{map[string]any{
			"name": "tri",
			"primitives": []any{map[string]any{
				"attributes": map[string]int{"POSITION": 0},
				"indices":    1,
				"material":   0,
			}},
		}},
		"materials": []any{material},
		"accessors": []any{
			map[string]any{"bufferView": 0, "componentType": 5126, "count": 3, "type": "VEC3"},
			map[string]any{"bufferView": 1, "componentType": 5123, "count": 3, "type": "SCALAR"},
		},
		"bufferViews": []any{
			map[string]any{"buffer": 0, "byteOffset": 0, "byteLength": 36},
			map[string]any{"buffer": 0, "byteOffset": 36, "byteLength": 6},
		},
		"buffers": []any{map[string]any{
			"byteLength": len(data),
			"uri":        "data:application/octet-stream;base64," + base64.StdEncoding.EncodeToString(data),
		}},
	}

	out, err := json.Marshal(doc)
	if err != nil {
		panic(err)
	}
	return out
}

// PNG encodes a w*h image filled with c.
func PNG(w, h int, c color.RGBA) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// Shader is a minimal WGSL module with vertex and fragment entry points.
const Shader = `
@vertex
fn vs_main(@location(0) pos: vec3<f32>) -> @builtin(position) vec4<f32> {
	return vec4<f32>(pos, 1.0);
}

@fragment
fn fs_main() -> @location(0) vec4<f32> {
	return vec4<f32>(1.0, 1.0, 1.0, 1.0);
}
`

// WriteFile writes data to root/rel, creating parent directories.
//
// Parameters:
//   - t: the test
//   - root: the directory to write under
//   - rel: the slash-separated relative path
//   - data: the file contents
//
// Returns:
//   - string: the absolute path written
func WriteFile(t testing.TB, root, rel string, data []byte) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}
