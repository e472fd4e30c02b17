package engine_test

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-world/engine"
	"github.com/Carmen-Shannon/oxy-world/engine/config"
	"github.com/Carmen-Shannon/oxy-world/engine/event"
	"github.com/Carmen-Shannon/oxy-world/engine/gpu"
	"github.com/Carmen-Shannon/oxy-world/engine/gpu/gputest"
	"github.com/Carmen-Shannon/oxy-world/engine/loader/loadertest"
	"github.com/Carmen-Shannon/oxy-world/engine/scene"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWorld(t *testing.T) (engine.World, *gputest.Recorder, string) {
	t.Helper()
	cfg := config.Default()
	cfg.Assets.Root = t.TempDir()
	cfg.Render.SyncWorkers = 2

	rec := gputest.New()
	w, err := engine.NewWorld(engine.WithConfig(cfg), engine.WithBackend(rec))
	require.NoError(t, err)
	t.Cleanup(w.Close)
	return w, rec, cfg.Assets.Root
}

func writePair(t *testing.T, root string) {
	t.Helper()
	loadertest.WriteFile(t, root, "models/pair.gltf", loadertest.GLTF([]loadertest.Node{
		{Name: "left", Translation: [3]float32{-1, 0, 0}, Mesh: true},
		{Name: "right", Translation: [3]float32{1, 0, 0}, Mesh: true},
	}, ""))
}

func TestNewWorldRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Events.Capacity = 0
	_, err := engine.NewWorld(engine.WithConfig(cfg), engine.WithBackend(gputest.New()))
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestFrameRunsDispatchUpdateSync(t *testing.T) {
	w, rec, root := newWorld(t)
	writePair(t, root)

	var added int
	_, err := w.Bus().Subscribe(event.CodeNodeAdded, 0, func(event.Event) { added++ })
	require.NoError(t, err)

	top, err := w.LoadModel("models/pair.gltf", scene.Root, mgl32.Ident4())
	require.NoError(t, err)

	fs, err := w.Frame()
	require.NoError(t, err)
	assert.Equal(t, 3, added)
	assert.Positive(t, fs.Events)
	assert.Equal(t, 3, fs.Recomputed)
	assert.Equal(t, 2, fs.Draw.Synced)
	assert.Equal(t, 1, fs.Draw.PipelineBuilds)
	assert.Equal(t, 2, w.Draw().Len())

	// Nothing changed, so nothing is touched.
	rec.Reset()
	fs, err = w.Frame()
	require.NoError(t, err)
	assert.Zero(t, fs.Recomputed)
	assert.Zero(t, fs.Draw.Synced)
	assert.Empty(t, rec.Calls())

	require.NoError(t, w.Graph().SetLocal(top, mgl32.Translate3D(0, 3, 0)))
	fs, err = w.Frame()
	require.NoError(t, err)
	assert.Equal(t, 3, fs.Recomputed)
	assert.Equal(t, 2, fs.Draw.Synced)
	assert.Zero(t, fs.Draw.GeometryBuilds)
	assert.Equal(t, 1, rec.Count(gputest.OpWaitIdle))
}

func TestMaterialTouchResyncsOnNextFrames(t *testing.T) {
	w, _, root := newWorld(t)
	writePair(t, root)
	top, err := w.LoadModel("models/pair.gltf", scene.Root, mgl32.Ident4())
	require.NoError(t, err)
	_, err = w.Frame()
	require.NoError(t, err)

	children, err := w.Graph().Children(top)
	require.NoError(t, err)
	ent, err := w.Graph().Entity(children[0])
	require.NoError(t, err)

	require.NoError(t, w.Registry().Touch(ent.Material()))
	fs, err := w.Frame()
	require.NoError(t, err)
	assert.Equal(t, 2, fs.Draw.Synced)
	assert.Equal(t, 1, fs.Draw.PipelineBuilds)
}

func TestCloseIsOrderedAndIdempotent(t *testing.T) {
	w, rec, root := newWorld(t)
	writePair(t, root)
	_, err := w.LoadModel("models/pair.gltf", scene.Root, mgl32.Ident4())
	require.NoError(t, err)
	_, err = w.Frame()
	require.NoError(t, err)
	require.Positive(t, rec.LiveBuffers())

	w.Close()
	w.Close()
	assert.Zero(t, rec.LiveBuffers())
	assert.Zero(t, rec.LivePipelines())

	_, err = w.Frame()
	assert.ErrorIs(t, err, gpu.ErrClosed)
}
