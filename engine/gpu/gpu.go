// Package gpu is the contract between the draw synchronizer and the device.
//
// The synchronizer never touches wgpu objects directly. It asks a Backend to turn meshes into
// vertex and index buffers, materials into render pipelines, and raw bytes into buffer
// contents, and it calls WaitIdle once before rewriting buffers the previous frame may still
// be reading. Resources are addressed by small integer handles so a recording Backend can
// stand in for the device in tests.
package gpu

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Carmen-Shannon/oxy-world/engine/asset"
	"github.com/cogentcore/webgpu/wgpu"
)

var (
	// ErrNotRenderable is returned by BuildGeometry for meshes without triangles.
	ErrNotRenderable = errors.New("gpu: mesh has no geometry")
	// ErrUnknownBuffer is returned for buffer handles the backend did not issue or already released.
	ErrUnknownBuffer = errors.New("gpu: unknown buffer")
	// ErrBufferOverflow is returned when an update is larger than the buffer.
	ErrBufferOverflow = errors.New("gpu: data larger than buffer")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("gpu: backend closed")
)

// BufferHandle identifies a device buffer. Zero is never issued.
type BufferHandle uint32

// PipelineHandle identifies a render pipeline. Zero is never issued.
type PipelineHandle uint32

// BufferUsage mirrors wgpu buffer usage flags.
type BufferUsage = wgpu.BufferUsage

const (
	BufferUsageVertex  = wgpu.BufferUsageVertex
	BufferUsageIndex   = wgpu.BufferUsageIndex
	BufferUsageUniform = wgpu.BufferUsageUniform
	BufferUsageStorage = wgpu.BufferUsageStorage
	BufferUsageCopyDst = wgpu.BufferUsageCopyDst
)

// Geometry is the device-side copy of one mesh.
type Geometry struct {
	Vertex      BufferHandle
	Index       BufferHandle
	VertexCount uint32
	IndexCount  uint32
}

// Valid reports whether both buffers exist.
func (g Geometry) Valid() bool {
	return g.Vertex != 0 && g.Index != 0
}

// RenderTargetFormats describes the attachments a pipeline renders into.
// A Depth of wgpu.TextureFormatUndefined disables depth testing.
type RenderTargetFormats struct {
	Color       wgpu.TextureFormat
	Depth       wgpu.TextureFormat
	SampleCount uint32
}

// DefaultTargets is an sRGB color target with a 24-bit depth buffer and no multisampling.
func DefaultTargets() RenderTargetFormats {
	return RenderTargetFormats{
		Color:       wgpu.TextureFormatBGRA8UnormSrgb,
		Depth:       wgpu.TextureFormatDepth24Plus,
		SampleCount: 1,
	}
}

// ShaderSource is one WGSL stage. An empty Code selects the built-in shader.
type ShaderSource struct {
	Label string
	Code  string
	Entry string
}

// ShaderSources are the stages of a material pipeline.
type ShaderSources struct {
	Vertex   ShaderSource
	Fragment ShaderSource
}

// Backend builds and updates the device resources behind render objects.
type Backend interface {
	// BuildGeometry uploads a mesh's vertices and indices into new buffers.
	//
	// Parameters:
	//   - mesh: a renderable mesh
	//
	// Returns:
	//   - Geometry: the vertex and index buffers
	//   - error: ErrNotRenderable or a device error
	BuildGeometry(mesh *asset.Mesh) (Geometry, error)

	// BuildMaterialPipeline creates a render pipeline for a material.
	//
	// Parameters:
	//   - material: the material the pipeline draws
	//   - targets: the attachment formats
	//   - shaders: the vertex and fragment stages, empty Code selects the built-in shader
	//
	// Returns:
	//   - PipelineHandle: the pipeline
	//   - error: a shader compilation or device error
	BuildMaterialPipeline(material *asset.Material, targets RenderTargetFormats, shaders ShaderSources) (PipelineHandle, error)

	// CreateBuffer allocates a zeroed buffer.
	//
	// Parameters:
	//   - label: a debug label
	//   - size: the size in bytes
	//   - usage: the usage flags, CopyDst is always added
	//
	// Returns:
	//   - BufferHandle: the buffer
	//   - error: a device error
	CreateBuffer(label string, size uint64, usage BufferUsage) (BufferHandle, error)

	// UpdateBuffer writes data at offset zero.
	//
	// Parameters:
	//   - h: the buffer
	//   - data: the bytes to write
	//
	// Returns:
	//   - error: ErrUnknownBuffer or ErrBufferOverflow
	UpdateBuffer(h BufferHandle, data []byte) error

	// ReleaseBuffer frees a buffer. Unknown handles are ignored.
	ReleaseBuffer(h BufferHandle)

	// ReleaseGeometry frees both buffers of a geometry.
	ReleaseGeometry(g Geometry)

	// ReleasePipeline frees a pipeline. Unknown handles are ignored.
	ReleasePipeline(h PipelineHandle)

	// WaitIdle blocks until the device has finished all submitted work.
	WaitIdle()

	// Close releases every resource and the device.
	Close()
}

var textureFormats = map[string]wgpu.TextureFormat{
	"":                     wgpu.TextureFormatUndefined,
	"none":                 wgpu.TextureFormatUndefined,
	"bgra8unorm":           wgpu.TextureFormatBGRA8Unorm,
	"bgra8unorm-srgb":      wgpu.TextureFormatBGRA8UnormSrgb,
	"rgba8unorm":           wgpu.TextureFormatRGBA8Unorm,
	"rgba8unorm-srgb":      wgpu.TextureFormatRGBA8UnormSrgb,
	"rgba16float":          wgpu.TextureFormatRGBA16Float,
	"depth24plus":          wgpu.TextureFormatDepth24Plus,
	"depth32float":         wgpu.TextureFormatDepth32Float,
	"depth24plus-stencil8": wgpu.TextureFormatDepth24PlusStencil8,
}

// ParseTextureFormat maps a WebGPU format name such as "bgra8unorm-srgb" to its constant.
// "none" and the empty string map to wgpu.TextureFormatUndefined.
//
// Parameters:
//   - name: the format name, case-insensitive
//
// Returns:
//   - wgpu.TextureFormat: the format
//   - error: error if the name is not supported
func ParseTextureFormat(name string) (wgpu.TextureFormat, error) {
	f, ok := textureFormats[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return wgpu.TextureFormatUndefined, fmt.Errorf("gpu: unsupported texture format %q", name)
	}
	return f, nil
}
