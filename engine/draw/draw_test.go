package draw_test

import (
	"errors"
	"testing"

	"github.com/Carmen-Shannon/oxy-world/common"
	"github.com/Carmen-Shannon/oxy-world/engine/asset"
	"github.com/Carmen-Shannon/oxy-world/engine/draw"
	"github.com/Carmen-Shannon/oxy-world/engine/event"
	"github.com/Carmen-Shannon/oxy-world/engine/gpu/gputest"
	"github.com/Carmen-Shannon/oxy-world/engine/light"
	"github.com/Carmen-Shannon/oxy-world/engine/loader"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	reg  asset.Registry
	rec  *gputest.Recorder
	ctx  draw.Context
	mesh asset.Handle
	mat  asset.Handle
}

func triangle() *loader.MeshData {
	return &loader.MeshData{
		Vertices: []loader.Vertex{
			{Position: [3]float32{0, 0, 0}, Color: [4]float32{1, 1, 1, 1}},
			{Position: [3]float32{1, 0, 0}, Color: [4]float32{1, 1, 1, 1}},
			{Position: [3]float32{0, 1, 0}, Color: [4]float32{1, 1, 1, 1}},
		},
		Indices: []uint32{0, 1, 2},
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	bus := event.NewBus()
	t.Cleanup(bus.Close)
	reg, err := asset.NewRegistry(asset.WithRoot(t.TempDir()), asset.WithBus(bus))
	require.NoError(t, err)
	t.Cleanup(reg.Close)

	mesh, err := reg.Create(asset.KindMesh, "tri", triangle())
	require.NoError(t, err)
	mat, err := reg.Create(asset.KindMaterial, "shared", &loader.MaterialData{BaseColor: [4]float32{1, 1, 1, 1}})
	require.NoError(t, err)

	rec := gputest.New()
	ctx := draw.NewContext(draw.WithRegistry(reg), draw.WithBackend(rec), draw.WithWorkers(2))
	t.Cleanup(ctx.Close)
	return &fixture{reg: reg, rec: rec, ctx: ctx, mesh: mesh, mat: mat}
}

func (f *fixture) item(slot draw.Slot, world mgl32.Mat4) draw.Item {
	return draw.Item{
		Slot:     slot,
		Node:     uint32(slot) + 1,
		World:    world,
		Mesh:     f.mesh,
		Material: f.mat,
		Changed:  draw.AspectAll,
	}
}

func TestNewContextRequiresCollaborators(t *testing.T) {
	assert.Panics(t, func() { draw.NewContext(draw.WithBackend(gputest.New())) })
}

func TestReserveIsAppendOnly(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, draw.Slot(0), f.ctx.Reserve(10))
	assert.Equal(t, draw.Slot(1), f.ctx.Reserve(11))
	assert.Equal(t, 2, f.ctx.Len())

	obj, ok := f.ctx.Object(1)
	require.True(t, ok)
	assert.Equal(t, uint32(11), obj.Node)
	_, ok = f.ctx.Object(2)
	assert.False(t, ok)
}

func TestSyncEmptyIsNoOp(t *testing.T) {
	f := newFixture(t)
	f.ctx.Reserve(1)

	stats, err := f.ctx.Sync(nil)
	require.NoError(t, err)
	assert.Zero(t, stats.Synced)
	assert.Empty(t, f.rec.Calls())
}

func TestSyncBuildsObjectAfterSingleBarrier(t *testing.T) {
	f := newFixture(t)
	slot := f.ctx.Reserve(1)
	world := mgl32.Translate3D(1, 2, 3)

	stats, err := f.ctx.Sync([]draw.Item{f.item(slot, world)})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Synced)
	assert.Equal(t, 1, stats.GeometryBuilds)
	assert.Equal(t, 1, stats.PipelineBuilds)

	ops := f.rec.Ops()
	require.NotEmpty(t, ops)
	assert.Equal(t, gputest.OpWaitIdle, ops[0])
	assert.Equal(t, 1, f.rec.Count(gputest.OpWaitIdle))

	obj, ok := f.ctx.Object(slot)
	require.True(t, ok)
	assert.True(t, obj.Geometry.Valid())
	assert.Equal(t, uint32(3), obj.Geometry.IndexCount)
	assert.NotZero(t, obj.Pipeline)
	assert.Equal(t, []mgl32.Mat4{world}, obj.Instances)
	assert.Equal(t, uint64(1), obj.Version)
	assert.Zero(t, obj.LightBuffer)

	data, ok := f.rec.Data(obj.InstanceBuffer)
	require.True(t, ok)
	assert.Equal(t, common.Mat4Bytes([]mgl32.Mat4{world}), data)
}

func TestSyncPreservesItemOrder(t *testing.T) {
	f := newFixture(t)
	other, err := f.reg.Create(asset.KindMesh, "other", triangle())
	require.NoError(t, err)
	a := f.ctx.Reserve(1)
	b := f.ctx.Reserve(2)

	itemB := f.item(b, mgl32.Ident4())
	itemB.Mesh = other
	_, err = f.ctx.Sync([]draw.Item{itemB, f.item(a, mgl32.Ident4())})
	require.NoError(t, err)

	var built []string
	for _, c := range f.rec.Calls() {
		if c.Op == gputest.OpBuildGeometry {
			built = append(built, c.Label)
		}
	}
	assert.Equal(t, []string{"other", "tri"}, built)
}

func TestSharedMaterialBuildsOnePipeline(t *testing.T) {
	f := newFixture(t)
	a := f.ctx.Reserve(1)
	b := f.ctx.Reserve(2)

	stats, err := f.ctx.Sync([]draw.Item{f.item(a, mgl32.Ident4()), f.item(b, mgl32.Ident4())})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.PipelineBuilds)

	objA, _ := f.ctx.Object(a)
	objB, _ := f.ctx.Object(b)
	assert.Equal(t, objA.Pipeline, objB.Pipeline)
	p, ok := f.rec.Pipeline(objA.Pipeline)
	require.True(t, ok)
	assert.Equal(t, f.mat, p.Material)

	// An edit to the shared material rebuilds it once and releases the old pipeline.
	require.NoError(t, f.reg.Touch(f.mat))
	stats, err = f.ctx.Sync([]draw.Item{
		{Slot: a, Node: 1, World: mgl32.Ident4(), Mesh: f.mesh, Material: f.mat, Changed: draw.AspectMaterial},
		{Slot: b, Node: 2, World: mgl32.Ident4(), Mesh: f.mesh, Material: f.mat, Changed: draw.AspectMaterial},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.PipelineBuilds)
	assert.Zero(t, stats.GeometryBuilds)

	newA, _ := f.ctx.Object(a)
	newB, _ := f.ctx.Object(b)
	assert.NotEqual(t, objA.Pipeline, newA.Pipeline)
	assert.Equal(t, newA.Pipeline, newB.Pipeline)
	_, ok = f.rec.Pipeline(objA.Pipeline)
	assert.False(t, ok)
	assert.Equal(t, 1, f.rec.LivePipelines())
}

func TestTransformOnlySyncRewritesInstances(t *testing.T) {
	f := newFixture(t)
	slot := f.ctx.Reserve(1)
	_, err := f.ctx.Sync([]draw.Item{f.item(slot, mgl32.Ident4())})
	require.NoError(t, err)
	before, _ := f.ctx.Object(slot)
	f.rec.Reset()

	moved := mgl32.Translate3D(0, 5, 0)
	it := f.item(slot, moved)
	it.Changed = 0
	_, err = f.ctx.Sync([]draw.Item{it})
	require.NoError(t, err)

	assert.Equal(t, []string{gputest.OpWaitIdle, gputest.OpUpdateBuffer}, f.rec.Ops())
	after, _ := f.ctx.Object(slot)
	assert.Equal(t, before.InstanceBuffer, after.InstanceBuffer)
	assert.Equal(t, uint64(2), after.Version)
	data, _ := f.rec.Data(after.InstanceBuffer)
	assert.Equal(t, common.Mat4Bytes([]mgl32.Mat4{moved}), data)
}

func TestLightBufferFollowsEntityLight(t *testing.T) {
	f := newFixture(t)
	slot := f.ctx.Reserve(1)

	l := light.NewLight(light.LightTypePoint, light.WithIntensity(2))
	it := f.item(slot, mgl32.Translate3D(4, 0, 0))
	it.Light = &l
	_, err := f.ctx.Sync([]draw.Item{it})
	require.NoError(t, err)

	obj, _ := f.ctx.Object(slot)
	lightBuf := obj.LightBuffer
	require.NotZero(t, lightBuf)
	data, ok := f.rec.Data(lightBuf)
	require.True(t, ok)
	g := light.ToGPULight(l, mgl32.Translate3D(4, 0, 0))
	assert.Equal(t, g.Marshal(), data)

	it.Light = nil
	it.Changed = draw.AspectLight
	_, err = f.ctx.Sync([]draw.Item{it})
	require.NoError(t, err)
	obj, _ = f.ctx.Object(slot)
	assert.Zero(t, obj.LightBuffer)
	_, ok = f.rec.Data(lightBuf)
	assert.False(t, ok)
}

func TestSyncReportsFailuresAndContinues(t *testing.T) {
	f := newFixture(t)
	good := f.ctx.Reserve(1)

	stats, err := f.ctx.Sync([]draw.Item{f.item(99, mgl32.Ident4()), f.item(good, mgl32.Ident4())})
	assert.ErrorIs(t, err, draw.ErrUnknownSlot)
	assert.Equal(t, []draw.Slot{99}, stats.Failed)
	assert.Equal(t, 1, stats.Synced)

	boom := errors.New("boom")
	f.rec.FailGeometry = boom
	second := f.ctx.Reserve(2)
	stats, err = f.ctx.Sync([]draw.Item{f.item(second, mgl32.Ident4())})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []draw.Slot{second}, stats.Failed)
	obj, _ := f.ctx.Object(second)
	assert.False(t, obj.Geometry.Valid())
	assert.Zero(t, obj.Version)
}

func TestSyncRejectsNonMeshHandle(t *testing.T) {
	f := newFixture(t)
	slot := f.ctx.Reserve(1)
	it := f.item(slot, mgl32.Ident4())
	it.Mesh = f.mat

	_, err := f.ctx.Sync([]draw.Item{it})
	assert.ErrorIs(t, err, asset.ErrKindMismatch)
}

func TestMaterialShadersReachPipeline(t *testing.T) {
	f := newFixture(t)
	_, err := f.reg.Load("lit.wgsl", asset.WithLoaderData(&loader.ShaderData{
		Source:        "custom source",
		Stages:        loader.StageVertex | loader.StageFragment,
		VertexEntry:   "vert",
		FragmentEntry: "frag",
	}))
	require.NoError(t, err)
	mat, err := f.reg.Create(asset.KindMaterial, "lit", &loader.MaterialData{
		VertexShader:   "lit.wgsl",
		FragmentShader: "lit.wgsl",
	})
	require.NoError(t, err)

	slot := f.ctx.Reserve(1)
	it := f.item(slot, mgl32.Ident4())
	it.Material = mat
	_, err = f.ctx.Sync([]draw.Item{it})
	require.NoError(t, err)

	obj, _ := f.ctx.Object(slot)
	p, ok := f.rec.Pipeline(obj.Pipeline)
	require.True(t, ok)
	assert.Equal(t, "vert", p.Shaders.Vertex.Entry)
	assert.Equal(t, "frag", p.Shaders.Fragment.Entry)
	assert.Equal(t, "custom source", p.Shaders.Fragment.Code)
	assert.Equal(t, f.ctx.Targets(), p.Targets)
}

func TestNilMaterialUsesBuiltInShader(t *testing.T) {
	f := newFixture(t)
	slot := f.ctx.Reserve(1)
	it := f.item(slot, mgl32.Ident4())
	it.Material = asset.Nil

	_, err := f.ctx.Sync([]draw.Item{it})
	require.NoError(t, err)
	obj, _ := f.ctx.Object(slot)
	p, ok := f.rec.Pipeline(obj.Pipeline)
	require.True(t, ok)
	assert.True(t, p.Material.IsNil())
	assert.Empty(t, p.Shaders.Vertex.Code)
}

func TestCloseReleasesEverything(t *testing.T) {
	f := newFixture(t)
	l := light.NewLight(light.LightTypeDirectional)
	it := f.item(f.ctx.Reserve(1), mgl32.Ident4())
	it.Light = &l
	_, err := f.ctx.Sync([]draw.Item{it})
	require.NoError(t, err)
	require.Equal(t, 4, f.rec.LiveBuffers())

	f.ctx.Close()
	assert.Zero(t, f.rec.LiveBuffers())
	assert.Zero(t, f.rec.LivePipelines())
}
