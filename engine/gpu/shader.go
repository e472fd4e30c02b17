package gpu

import (
	"github.com/Carmen-Shannon/oxy-world/engine/loader"
	"github.com/cogentcore/webgpu/wgpu"
)

// InstanceStride is the byte size of one instance record: a column-major world matrix.
const InstanceStride = 64

// Vertex attribute locations shared by every material shader.
const (
	LocationPosition = 0
	LocationNormal   = 1
	LocationTexCoord = 2
	LocationColor    = 3
	// LocationInstance is the first of four consecutive vec4 columns of the world matrix.
	LocationInstance = 4
)

// DefaultShaderSource renders vertex colors with a fixed directional term. It is used for
// any stage a material leaves unset.
const DefaultShaderSource = `struct VertexIn {
    @location(0) position: vec3<f32>,
    @location(1) normal: vec3<f32>,
    @location(2) uv: vec2<f32>,
    @location(3) color: vec4<f32>,
    @location(4) m0: vec4<f32>,
    @location(5) m1: vec4<f32>,
    @location(6) m2: vec4<f32>,
    @location(7) m3: vec4<f32>,
};

struct VertexOut {
    @builtin(position) clip: vec4<f32>,
    @location(0) color: vec4<f32>,
    @location(1) normal: vec3<f32>,
};

@vertex
fn vs_main(in: VertexIn) -> VertexOut {
    let model = mat4x4<f32>(in.m0, in.m1, in.m2, in.m3);
    var out: VertexOut;
    out.clip = model * vec4<f32>(in.position, 1.0);
    out.color = in.color;
    out.normal = (model * vec4<f32>(in.normal, 0.0)).xyz;
    return out;
}

@fragment
fn fs_main(in: VertexOut) -> @location(0) vec4<f32> {
    let n = normalize(in.normal);
    let lit = max(dot(n, normalize(vec3<f32>(0.3, 1.0, 0.5))), 0.2);
    return vec4<f32>(in.color.rgb * lit, in.color.a);
}
`

// DefaultVertexEntry and DefaultFragmentEntry are the entry points of DefaultShaderSource.
const (
	DefaultVertexEntry   = "vs_main"
	DefaultFragmentEntry = "fs_main"
)

// VertexLayouts returns the two vertex buffer layouts every pipeline uses: per-vertex
// loader.Vertex data in slot 0 and per-instance world matrices in slot 1.
//
// Returns:
//   - []wgpu.VertexBufferLayout: the layouts for slots 0 and 1
func VertexLayouts() []wgpu.VertexBufferLayout {
	instance := make([]wgpu.VertexAttribute, 4)
	for i := range instance {
		instance[i] = wgpu.VertexAttribute{
			Format:         wgpu.VertexFormatFloat32x4,
			Offset:         uint64(i * 16),
			ShaderLocation: uint32(LocationInstance + i),
		}
	}
	return []wgpu.VertexBufferLayout{
		{
			ArrayStride: loader.VertexSize,
			StepMode:    wgpu.VertexStepModeVertex,
			Attributes: []wgpu.VertexAttribute{
				{Format: wgpu.VertexFormatFloat32x3, Offset: 0, ShaderLocation: LocationPosition},
				{Format: wgpu.VertexFormatFloat32x3, Offset: 12, ShaderLocation: LocationNormal},
				{Format: wgpu.VertexFormatFloat32x2, Offset: 24, ShaderLocation: LocationTexCoord},
				{Format: wgpu.VertexFormatFloat32x4, Offset: 32, ShaderLocation: LocationColor},
			},
		},
		{
			ArrayStride: InstanceStride,
			StepMode:    wgpu.VertexStepModeInstance,
			Attributes:  instance,
		},
	}
}

// withDefaults fills empty stages with the built-in shader.
func (s ShaderSources) withDefaults() ShaderSources {
	if s.Vertex.Code == "" {
		s.Vertex = ShaderSource{Label: "default vertex", Code: DefaultShaderSource, Entry: DefaultVertexEntry}
	}
	if s.Fragment.Code == "" {
		s.Fragment = ShaderSource{Label: "default fragment", Code: DefaultShaderSource, Entry: DefaultFragmentEntry}
	}
	return s
}
