package gpu

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-world/engine/loader"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTextureFormat(t *testing.T) {
	f, err := ParseTextureFormat("BGRA8Unorm-SRGB")
	require.NoError(t, err)
	assert.Equal(t, wgpu.TextureFormatBGRA8UnormSrgb, f)

	f, err = ParseTextureFormat("none")
	require.NoError(t, err)
	assert.Equal(t, wgpu.TextureFormatUndefined, f)

	_, err = ParseTextureFormat("r11g11b10")
	assert.Error(t, err)
}

func TestVertexLayoutsMatchVertexStruct(t *testing.T) {
	layouts := VertexLayouts()
	require.Len(t, layouts, 2)

	assert.Equal(t, uint64(loader.VertexSize), layouts[0].ArrayStride)
	assert.Equal(t, wgpu.VertexStepModeVertex, layouts[0].StepMode)
	require.Len(t, layouts[0].Attributes, 4)
	last := layouts[0].Attributes[3]
	assert.Equal(t, uint64(32), last.Offset)
	assert.Equal(t, uint32(LocationColor), last.ShaderLocation)

	assert.Equal(t, uint64(InstanceStride), layouts[1].ArrayStride)
	assert.Equal(t, wgpu.VertexStepModeInstance, layouts[1].StepMode)
	require.Len(t, layouts[1].Attributes, 4)
	assert.Equal(t, uint32(LocationInstance+3), layouts[1].Attributes[3].ShaderLocation)
	assert.Equal(t, uint64(48), layouts[1].Attributes[3].Offset)
}

func TestShaderSourcesWithDefaults(t *testing.T) {
	s := ShaderSources{Fragment: ShaderSource{Label: "custom", Code: "x", Entry: "main"}}.withDefaults()
	assert.Equal(t, DefaultShaderSource, s.Vertex.Code)
	assert.Equal(t, DefaultVertexEntry, s.Vertex.Entry)
	assert.Equal(t, "custom", s.Fragment.Label)
}

func TestDefaultTargets(t *testing.T) {
	d := DefaultTargets()
	assert.Equal(t, uint32(1), d.SampleCount)
	assert.Equal(t, wgpu.TextureFormatDepth24Plus, d.Depth)
	assert.False(t, Geometry{Vertex: 1}.Valid())
	assert.True(t, Geometry{Vertex: 1, Index: 2}.Valid())
}
