package scene_test

import (
	"math"
	"testing"

	"github.com/Carmen-Shannon/oxy-world/common"
	"github.com/Carmen-Shannon/oxy-world/engine/asset"
	"github.com/Carmen-Shannon/oxy-world/engine/draw"
	"github.com/Carmen-Shannon/oxy-world/engine/event"
	"github.com/Carmen-Shannon/oxy-world/engine/gpu/gputest"
	"github.com/Carmen-Shannon/oxy-world/engine/light"
	"github.com/Carmen-Shannon/oxy-world/engine/loader"
	"github.com/Carmen-Shannon/oxy-world/engine/loader/loadertest"
	"github.com/Carmen-Shannon/oxy-world/engine/scene"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	root  string
	bus   event.Bus
	reg   asset.Registry
	graph scene.Graph
	mesh  asset.Handle
	mat   asset.Handle
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	bus := event.NewBus()
	t.Cleanup(bus.Close)
	reg, err := asset.NewRegistry(asset.WithRoot(root), asset.WithBus(bus))
	require.NoError(t, err)
	t.Cleanup(reg.Close)

	mesh, err := reg.Create(asset.KindMesh, "tri", &loader.MeshData{
		Vertices: []loader.Vertex{
			{Position: [3]float32{0, 0, 0}},
			{Position: [3]float32{1, 0, 0}},
			{Position: [3]float32{0, 1, 0}},
		},
		Indices: []uint32{0, 1, 2},
	})
	require.NoError(t, err)
	mat, err := reg.Create(asset.KindMaterial, "shared", &loader.MaterialData{BaseColor: [4]float32{1, 1, 1, 1}})
	require.NoError(t, err)

	g := scene.NewGraph(scene.WithRegistry(reg), scene.WithBus(bus))
	t.Cleanup(g.Close)
	// Registration events are not under test.
	bus.Dispatch()
	return &fixture{root: root, bus: bus, reg: reg, graph: g, mesh: mesh, mat: mat}
}

func (f *fixture) object(t *testing.T, name string, parent scene.NodeID, local mgl32.Mat4) scene.NodeID {
	t.Helper()
	id, err := f.graph.AddNode(scene.NodeTemplate{
		Name:     name,
		Parent:   parent,
		Local:    local,
		Object:   true,
		Mesh:     f.mesh,
		Material: f.mat,
	})
	require.NoError(t, err)
	return id
}

func (f *fixture) group(t *testing.T, name string, parent scene.NodeID, local mgl32.Mat4) scene.NodeID {
	t.Helper()
	id, err := f.graph.AddNode(scene.NodeTemplate{Name: name, Parent: parent, Local: local})
	require.NoError(t, err)
	return id
}

func translation(t *testing.T, g scene.Graph, id scene.NodeID) mgl32.Vec3 {
	t.Helper()
	w, err := g.World(id)
	require.NoError(t, err)
	return w.Col(3).Vec3()
}

func assertVec3(t *testing.T, want, got mgl32.Vec3) {
	t.Helper()
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-5, "component %d of %v", i, got)
	}
}

func newDrawContext(t *testing.T, reg asset.Registry) (draw.Context, *gputest.Recorder) {
	t.Helper()
	rec := gputest.New()
	ctx := draw.NewContext(draw.WithRegistry(reg), draw.WithBackend(rec), draw.WithWorkers(2))
	t.Cleanup(ctx.Close)
	return ctx, rec
}

func TestNewGraphRequiresRegistry(t *testing.T) {
	assert.Panics(t, func() { scene.NewGraph() })
}

func TestNewGraphHasRoot(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, 1, f.graph.Len())

	info, err := f.graph.Node(scene.Root)
	require.NoError(t, err)
	assert.Equal(t, "root", info.Name)
	assert.Equal(t, scene.NoNode, info.Parent)
	assert.Equal(t, mgl32.Ident4(), info.World)
}

func TestAddNodeValidates(t *testing.T) {
	f := newFixture(t)

	_, err := f.graph.AddNode(scene.NodeTemplate{Name: "orphan", Parent: 42})
	assert.ErrorIs(t, err, scene.ErrInvalidNode)

	group, err := f.reg.Create(asset.KindMesh, "empty", &loader.MeshData{})
	require.NoError(t, err)
	_, err = f.graph.AddNode(scene.NodeTemplate{Name: "bad", Object: true, Mesh: group})
	assert.ErrorIs(t, err, scene.ErrNotRenderable)

	_, err = f.graph.AddNode(scene.NodeTemplate{Name: "bad", Object: true, Mesh: f.mat})
	assert.ErrorIs(t, err, asset.ErrKindMismatch)

	_, err = f.graph.AddNode(scene.NodeTemplate{Name: "bad", Object: true, Mesh: f.mesh, Material: f.mesh})
	assert.ErrorIs(t, err, asset.ErrKindMismatch)

	assert.Equal(t, 1, f.graph.Len())
	assert.Equal(t, 0, f.graph.ObjectCount())
}

func TestAddNodeAssignsSlotsAndPublishes(t *testing.T) {
	f := newFixture(t)
	var added [][2]scene.NodeID
	_, err := f.bus.Subscribe(event.CodeNodeAdded, 0, func(ev event.Event) {
		node, parent, ok := scene.NodeFromEvent(ev)
		require.True(t, ok)
		added = append(added, [2]scene.NodeID{node, parent})
	})
	require.NoError(t, err)

	grp := f.group(t, "group", scene.Root, mgl32.Ident4())
	a := f.object(t, "a", grp, mgl32.Ident4())
	b := f.object(t, "b", scene.Root, mgl32.Ident4())
	f.bus.Dispatch()

	assert.Equal(t, [][2]scene.NodeID{{grp, scene.Root}, {a, grp}, {b, scene.Root}}, added)
	assert.Equal(t, 2, f.graph.ObjectCount())

	ea, err := f.graph.Entity(a)
	require.NoError(t, err)
	eb, err := f.graph.Entity(b)
	require.NoError(t, err)
	assert.Equal(t, draw.Slot(0), ea.Slot())
	assert.Equal(t, draw.Slot(1), eb.Slot())
	assert.Equal(t, a, ea.Node())
	assert.Equal(t, scene.DirtyMesh|scene.DirtyMaterial|scene.DirtyLight, ea.Dirty())

	_, err = f.graph.Entity(grp)
	assert.ErrorIs(t, err, scene.ErrNotRenderable)
}

func TestZeroLocalIsIdentity(t *testing.T) {
	f := newFixture(t)
	id, err := f.graph.AddNode(scene.NodeTemplate{Name: "n"})
	require.NoError(t, err)

	local, err := f.graph.Local(id)
	require.NoError(t, err)
	assert.Equal(t, mgl32.Ident4(), local)
}

func TestUpdateComposesParentThenChild(t *testing.T) {
	f := newFixture(t)
	parent := f.group(t, "parent", scene.Root, mgl32.HomogRotate3DZ(math.Pi/2))
	child := f.object(t, "child", parent, mgl32.Translate3D(1, 0, 0))

	f.graph.Update()

	// The child's offset is expressed in the rotated parent frame.
	assertVec3(t, mgl32.Vec3{0, 1, 0}, translation(t, f.graph, child))
}

func TestUpdatePropagatesDirtyToDescendants(t *testing.T) {
	f := newFixture(t)
	a := f.group(t, "a", scene.Root, mgl32.Translate3D(1, 0, 0))
	b := f.object(t, "b", a, mgl32.Translate3D(0, 2, 0))
	c := f.object(t, "c", b, mgl32.Translate3D(0, 0, 3))
	sibling := f.object(t, "sibling", scene.Root, mgl32.Translate3D(5, 0, 0))

	assert.Equal(t, 4, f.graph.Update())
	assertVec3(t, mgl32.Vec3{1, 2, 3}, translation(t, f.graph, c))
	assertVec3(t, mgl32.Vec3{5, 0, 0}, translation(t, f.graph, sibling))

	ctx, _ := newDrawContext(t, f.reg)
	_, err := f.graph.UpdateDrawContext(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, f.graph.QueueLen())

	require.NoError(t, f.graph.SetLocal(a, mgl32.Translate3D(10, 0, 0)))
	assert.Equal(t, 3, f.graph.Update())
	assertVec3(t, mgl32.Vec3{10, 2, 0}, translation(t, f.graph, b))
	assertVec3(t, mgl32.Vec3{10, 2, 3}, translation(t, f.graph, c))
	assertVec3(t, mgl32.Vec3{5, 0, 0}, translation(t, f.graph, sibling))

	// Only the object nodes under a are queued.
	assert.Equal(t, 2, f.graph.QueueLen())
}

func TestUpdateIsIdempotent(t *testing.T) {
	f := newFixture(t)
	a := f.object(t, "a", scene.Root, mgl32.Translate3D(1, 1, 1))

	require.Equal(t, 1, f.graph.Update())
	before, err := f.graph.World(a)
	require.NoError(t, err)
	queued := f.graph.QueueLen()

	assert.Equal(t, 0, f.graph.Update())
	after, err := f.graph.World(a)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, queued, f.graph.QueueLen())
}

func TestRootDirtyQueuesWholeTree(t *testing.T) {
	f := newFixture(t)
	g1 := f.group(t, "g1", scene.Root, mgl32.Ident4())
	f.object(t, "a", g1, mgl32.Ident4())
	f.object(t, "b", g1, mgl32.Ident4())
	f.object(t, "c", scene.Root, mgl32.Ident4())
	f.graph.Update()

	ctx, _ := newDrawContext(t, f.reg)
	_, err := f.graph.UpdateDrawContext(ctx)
	require.NoError(t, err)

	require.NoError(t, f.graph.MarkDirty(scene.Root))
	assert.Equal(t, f.graph.Len(), f.graph.Update())
	assert.Equal(t, f.graph.ObjectCount(), f.graph.QueueLen())
}

func TestQueueIsDeduplicated(t *testing.T) {
	f := newFixture(t)
	a := f.object(t, "a", scene.Root, mgl32.Ident4())
	require.Equal(t, 1, f.graph.QueueLen())

	f.graph.Update()
	require.NoError(t, f.graph.SetLight(a, nil))
	assert.Equal(t, 1, f.graph.QueueLen())
}

func TestMoveReparents(t *testing.T) {
	f := newFixture(t)
	left := f.group(t, "left", scene.Root, mgl32.Translate3D(-1, 0, 0))
	right := f.group(t, "right", scene.Root, mgl32.Translate3D(1, 0, 0))
	child := f.object(t, "child", left, mgl32.Translate3D(0, 1, 0))
	f.graph.Update()
	f.bus.Dispatch()

	var moved []event.Event
	_, err := f.bus.Subscribe(event.CodeNodeMoved, 0, func(ev event.Event) { moved = append(moved, ev) })
	require.NoError(t, err)

	require.NoError(t, f.graph.Move(child, right))
	info, err := f.graph.Node(child)
	require.NoError(t, err)
	assert.True(t, info.Dirty)

	lc, err := f.graph.Children(left)
	require.NoError(t, err)
	rc, err := f.graph.Children(right)
	require.NoError(t, err)
	parent, err := f.graph.Parent(child)
	require.NoError(t, err)
	assert.Empty(t, lc)
	assert.Equal(t, []scene.NodeID{child}, rc)
	assert.Equal(t, right, parent)

	assert.Equal(t, 1, f.graph.Update())
	assertVec3(t, mgl32.Vec3{1, 1, 0}, translation(t, f.graph, child))

	f.bus.Dispatch()
	require.Len(t, moved, 1)
	v, ok := moved[0].Payload.I32s()
	require.True(t, ok)
	assert.Equal(t, [4]int32{int32(child), int32(left), int32(right), 0}, v)
}

func TestMoveRejectsCyclesAndRoot(t *testing.T) {
	f := newFixture(t)
	a := f.group(t, "a", scene.Root, mgl32.Ident4())
	b := f.group(t, "b", a, mgl32.Ident4())

	assert.ErrorIs(t, f.graph.Move(a, b), scene.ErrCycle)
	assert.ErrorIs(t, f.graph.Move(a, a), scene.ErrCycle)
	assert.ErrorIs(t, f.graph.Move(scene.Root, a), scene.ErrInvalidNode)
	assert.ErrorIs(t, f.graph.Move(a, 99), scene.ErrInvalidNode)

	// Failed moves leave the tree untouched.
	parent, err := f.graph.Parent(b)
	require.NoError(t, err)
	assert.Equal(t, a, parent)
	children, err := f.graph.Children(scene.Root)
	require.NoError(t, err)
	assert.Equal(t, []scene.NodeID{a}, children)
}

func TestResetToLoaded(t *testing.T) {
	f := newFixture(t)
	a := f.group(t, "a", scene.Root, mgl32.Translate3D(1, 0, 0))
	require.NoError(t, f.graph.SetLocal(a, mgl32.Translate3D(7, 0, 0)))
	f.graph.Update()
	assertVec3(t, mgl32.Vec3{7, 0, 0}, translation(t, f.graph, a))

	require.NoError(t, f.graph.ResetToLoaded(a))
	f.graph.Update()
	assertVec3(t, mgl32.Vec3{1, 0, 0}, translation(t, f.graph, a))

	loaded, err := f.graph.Loaded(a)
	require.NoError(t, err)
	assert.Equal(t, mgl32.Translate3D(1, 0, 0), loaded)
}

func TestAddModelSharedMaterial(t *testing.T) {
	f := newFixture(t)
	var materials int
	_, err := f.bus.Subscribe(event.CodeAssetLoaded, 0, func(ev event.Event) {
		if _, kind, ok := asset.FromEvent(ev); ok && kind == asset.KindMaterial {
			materials++
		}
	})
	require.NoError(t, err)

	loadertest.WriteFile(t, f.root, "models/pair.gltf", loadertest.GLTF([]loadertest.Node{
		{Name: "left", Translation: [3]float32{-1, 0, 0}, Mesh: true},
		{Name: "right", Translation: [3]float32{1, 0, 0}, Mesh: true},
	}, ""))
	model, err := f.reg.Load("models/pair.gltf")
	require.NoError(t, err)

	top, err := f.graph.AddModel(model, scene.Root, mgl32.Translate3D(0, 0, -5))
	require.NoError(t, err)
	f.graph.Update()
	f.bus.Dispatch()

	children, err := f.graph.Children(top)
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, 2, f.graph.ObjectCount())

	left, err := f.graph.Entity(children[0])
	require.NoError(t, err)
	right, err := f.graph.Entity(children[1])
	require.NoError(t, err)
	assert.NotEqual(t, left.Slot(), right.Slot())
	assert.NotEqual(t, left.Node(), right.Node())
	assert.False(t, left.Material().IsNil())
	assert.Equal(t, left.Material(), right.Material())

	assert.Equal(t, 1, materials)
	assert.Len(t, f.reg.List(asset.KindMaterial), 2)

	assertVec3(t, mgl32.Vec3{-1, 0, -5}, translation(t, f.graph, children[0]))
	assertVec3(t, mgl32.Vec3{1, 0, -5}, translation(t, f.graph, children[1]))

	info, err := f.graph.Node(top)
	require.NoError(t, err)
	assert.False(t, info.Object)
}

func TestAddModelRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	_, err := f.graph.AddModel(f.mesh, scene.Root, mgl32.Ident4())
	assert.ErrorIs(t, err, asset.ErrKindMismatch)

	model, err := f.reg.Create(asset.KindModel, "m", &loader.ModelData{
		Nodes: []loader.ModelNode{{Name: "only", Parent: -1, Local: mgl32.Ident4(), Material: -1}},
	})
	require.NoError(t, err)
	_, err = f.graph.AddModel(model, 77, mgl32.Ident4())
	assert.ErrorIs(t, err, scene.ErrInvalidNode)
}

func TestAddModelFailureAddsNothing(t *testing.T) {
	f := newFixture(t)
	before, queued, objects := f.graph.Len(), f.graph.QueueLen(), f.graph.ObjectCount()

	_, err := f.reg.Create(asset.KindModel, "twin", &loader.ModelData{
		Nodes: []loader.ModelNode{
			{Name: "a", Parent: -1, Material: -1},
			{Name: "b", Parent: -1, Material: -1},
		},
	})
	require.Error(t, err)

	model, err := f.reg.Create(asset.KindModel, "ok", &loader.ModelData{
		Nodes: []loader.ModelNode{{Name: "only", Parent: -1, Local: mgl32.Ident4(), Material: -1}},
	})
	require.NoError(t, err)
	_, err = f.graph.AddModel(model, 77, mgl32.Ident4())
	require.ErrorIs(t, err, scene.ErrInvalidNode)

	assert.Equal(t, before, f.graph.Len())
	assert.Equal(t, queued, f.graph.QueueLen())
	assert.Equal(t, objects, f.graph.ObjectCount())
	rc, err := f.graph.Children(scene.Root)
	require.NoError(t, err)
	assert.Empty(t, rc)
}

func TestUpdateDrawContextDrainsInOrder(t *testing.T) {
	f := newFixture(t)
	a := f.object(t, "a", scene.Root, mgl32.Translate3D(1, 0, 0))
	b := f.object(t, "b", scene.Root, mgl32.Translate3D(2, 0, 0))
	f.graph.Update()

	ctx, rec := newDrawContext(t, f.reg)
	stats, err := f.graph.UpdateDrawContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Synced)
	assert.Equal(t, 1, stats.PipelineBuilds)
	assert.Equal(t, 0, f.graph.QueueLen())
	assert.Equal(t, 1, rec.Count(gputest.OpWaitIdle))

	objects := ctx.Objects()
	require.Len(t, objects, 2)
	assert.Equal(t, uint32(a), objects[0].Node)
	assert.Equal(t, uint32(b), objects[1].Node)
	require.Len(t, objects[1].Instances, 1)
	assert.Equal(t, mgl32.Translate3D(2, 0, 0), objects[1].Instances[0])

	ea, err := f.graph.Entity(a)
	require.NoError(t, err)
	assert.Zero(t, ea.Dirty())
}

func TestUpdateDrawContextEmptyQueueIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx, rec := newDrawContext(t, f.reg)

	stats, err := f.graph.UpdateDrawContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, draw.Stats{}, stats)
	assert.Empty(t, rec.Calls())
	assert.Equal(t, 0, ctx.Len())
}

func TestMaterialChangeRequeuesSharingEntities(t *testing.T) {
	f := newFixture(t)
	a := f.object(t, "a", scene.Root, mgl32.Ident4())
	f.object(t, "b", scene.Root, mgl32.Ident4())
	f.graph.Update()

	ctx, rec := newDrawContext(t, f.reg)
	_, err := f.graph.UpdateDrawContext(ctx)
	require.NoError(t, err)

	require.NoError(t, f.reg.Touch(f.mat))
	assert.Equal(t, 0, f.graph.QueueLen())
	f.bus.Dispatch()
	assert.Equal(t, 2, f.graph.QueueLen())

	// The transforms did not change.
	assert.Equal(t, 0, f.graph.Update())

	ea, err := f.graph.Entity(a)
	require.NoError(t, err)
	assert.Equal(t, scene.DirtyMaterial, ea.Dirty())

	rec.Reset()
	stats, err := f.graph.UpdateDrawContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.PipelineBuilds)
	assert.Equal(t, 0, stats.GeometryBuilds)
}

func TestSetMaterialMovesCallback(t *testing.T) {
	f := newFixture(t)
	a := f.object(t, "a", scene.Root, mgl32.Ident4())
	other, err := f.reg.Create(asset.KindMaterial, "other", &loader.MaterialData{})
	require.NoError(t, err)
	f.graph.Update()

	ctx, _ := newDrawContext(t, f.reg)
	_, err = f.graph.UpdateDrawContext(ctx)
	require.NoError(t, err)

	require.NoError(t, f.graph.SetMaterial(a, other))
	_, err = f.graph.UpdateDrawContext(ctx)
	require.NoError(t, err)

	require.NoError(t, f.reg.Touch(f.mat))
	f.bus.Dispatch()
	assert.Equal(t, 0, f.graph.QueueLen())

	require.NoError(t, f.reg.Touch(other))
	f.bus.Dispatch()
	assert.Equal(t, 1, f.graph.QueueLen())

	assert.ErrorIs(t, f.graph.SetMaterial(a, f.mesh), asset.ErrKindMismatch)
}

func TestSetLightAndMesh(t *testing.T) {
	f := newFixture(t)
	a := f.object(t, "a", scene.Root, mgl32.Ident4())
	grp := f.group(t, "g", scene.Root, mgl32.Ident4())

	l := light.NewLight(light.LightTypePoint, light.WithRange(4))
	require.NoError(t, f.graph.SetLight(a, &l))
	l.Range = 100

	e, err := f.graph.Entity(a)
	require.NoError(t, err)
	got, ok := e.Light()
	require.True(t, ok)
	assert.Equal(t, float32(4), got.Range)

	assert.ErrorIs(t, f.graph.SetLight(grp, &l), scene.ErrNotRenderable)
	assert.ErrorIs(t, f.graph.SetMesh(a, f.mat), asset.ErrKindMismatch)
	require.NoError(t, f.graph.SetMesh(a, f.mesh))
}

func TestWalkIsDepthFirstInInsertionOrder(t *testing.T) {
	f := newFixture(t)
	a := f.group(t, "a", scene.Root, mgl32.Ident4())
	a1 := f.group(t, "a1", a, mgl32.Ident4())
	b := f.group(t, "b", scene.Root, mgl32.Ident4())
	a2 := f.group(t, "a2", a, mgl32.Ident4())

	var order []scene.NodeID
	f.graph.Walk(func(info scene.NodeInfo) bool {
		order = append(order, info.ID)
		return true
	})
	assert.Equal(t, []scene.NodeID{scene.Root, a, a1, a2, b}, order)

	order = order[:0]
	f.graph.Walk(func(info scene.NodeInfo) bool {
		order = append(order, info.ID)
		return len(order) < 2
	})
	assert.Len(t, order, 2)
}

func TestCloseDetachesMaterialCallbacks(t *testing.T) {
	f := newFixture(t)
	f.object(t, "a", scene.Root, mgl32.Ident4())
	f.graph.Close()

	require.NoError(t, f.reg.Touch(f.mat))
	f.bus.Dispatch()
	assert.Equal(t, 0, f.graph.QueueLen())
}

func TestNodeFromEventIgnoresOtherCodes(t *testing.T) {
	_, _, ok := scene.NodeFromEvent(event.Event{Code: event.CodeAssetLoaded, Payload: event.I32s([4]int32{1, 2, 3, 4})})
	assert.False(t, ok)

	node, parent, ok := scene.NodeFromEvent(event.Event{Code: event.CodeNodeAdded, Payload: event.I32s([4]int32{0, -1, 0, 0})})
	require.True(t, ok)
	assert.Equal(t, scene.Root, node)
	assert.Equal(t, scene.NoNode, parent)
}

func TestSetTransform(t *testing.T) {
	f := newFixture(t)
	a := f.group(t, "a", scene.Root, mgl32.Ident4())

	tr := common.IdentityTransform()
	tr.Position = [3]float32{4, 5, 6}
	require.NoError(t, f.graph.SetTransform(a, tr))
	assert.Equal(t, 1, f.graph.Update())
	assertVec3(t, mgl32.Vec3{4, 5, 6}, translation(t, f.graph, a))

	assert.ErrorIs(t, f.graph.SetTransform(99, tr), scene.ErrInvalidNode)
}
