package engine

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/Carmen-Shannon/oxy-world/engine/asset"
	"github.com/Carmen-Shannon/oxy-world/engine/config"
	"github.com/Carmen-Shannon/oxy-world/engine/draw"
	"github.com/Carmen-Shannon/oxy-world/engine/event"
	"github.com/Carmen-Shannon/oxy-world/engine/gpu"
	"github.com/Carmen-Shannon/oxy-world/engine/loader"
	"github.com/Carmen-Shannon/oxy-world/engine/scene"
	"github.com/Carmen-Shannon/oxy-world/engine/watch"
	"github.com/go-gl/mathgl/mgl32"
)

// FrameStats reports what one Frame did.
type FrameStats struct {
	// Events is the number of events dispatched.
	Events int
	// Recomputed is the number of nodes whose world transform was recomputed.
	Recomputed int
	// Draw is what the draw context synchronized.
	Draw draw.Stats
}

// world is the implementation of the World interface.
type world struct {
	cfg     config.Config
	loaders *loader.Set
	logger  *slog.Logger

	bus      event.Bus
	watcher  watch.Service
	registry asset.Registry
	graph    scene.Graph
	backend  gpu.Backend
	draw     draw.Context

	// ownsBackend is false when the backend was supplied with WithBackend.
	ownsBackend bool
	closed      bool
}

// World owns one event bus, asset registry, scene graph and draw context, wired together in
// that order. All of its methods run on the frame thread.
type World interface {
	// Bus returns the event bus.
	Bus() event.Bus

	// Registry returns the asset registry.
	Registry() asset.Registry

	// Graph returns the scene graph.
	Graph() scene.Graph

	// Draw returns the draw context.
	Draw() draw.Context

	// LoadModel loads a model file and expands it under parent.
	//
	// Parameters:
	//   - path: the model path, relative to the asset root
	//   - parent: the node to attach the model to
	//   - transform: applied on top of the model's own root transform
	//
	// Returns:
	//   - scene.NodeID: the node of the model root
	//   - error: a registry or scene error
	LoadModel(path string, parent scene.NodeID, transform mgl32.Mat4) (scene.NodeID, error)

	// Frame dispatches pending events, recomputes dirty transforms and synchronizes the
	// queued render objects, in that order.
	//
	// Returns:
	//   - FrameStats: what the frame did
	//   - error: the draw context's error, or gpu.ErrClosed after Close
	Frame() (FrameStats, error)

	// Close tears everything down in reverse construction order. Safe to call twice.
	Close()
}

var _ World = &world{}

// NewWorld builds a World from a configuration. Without WithConfig, config.Default is used.
// Without WithBackend, a wgpu backend is created and owned by the world.
//
// Parameters:
//   - options: functional options to configure the world
//
// Returns:
//   - World: the world
//   - error: error if the configuration is invalid or a component fails to start
func NewWorld(options ...WorldBuilderOption) (World, error) {
	w := &world{
		cfg:    config.Default(),
		logger: slog.Default(),
	}
	for _, opt := range options {
		opt(w)
	}
	if err := w.cfg.Validate(); err != nil {
		return nil, err
	}
	targets, err := w.cfg.Render.Targets()
	if err != nil {
		return nil, err
	}

	w.bus = event.NewBus(event.WithCapacity(w.cfg.Events.Capacity), event.WithLogger(w.logger))

	if w.cfg.Assets.Watch {
		if w.watcher, err = watch.NewService(watch.WithLogger(w.logger)); err != nil {
			w.Close()
			return nil, fmt.Errorf("engine: file watcher: %w", err)
		}
	}

	regOptions := []asset.RegistryBuilderOption{
		asset.WithRoot(w.cfg.Assets.Root),
		asset.WithBus(w.bus),
		asset.WithStrictPaths(w.cfg.Assets.StrictPaths),
		asset.WithLogger(w.logger),
	}
	if w.watcher != nil {
		regOptions = append(regOptions, asset.WithWatcher(w.watcher))
	}
	if w.loaders != nil {
		regOptions = append(regOptions, asset.WithLoaders(*w.loaders))
	}
	if w.registry, err = asset.NewRegistry(regOptions...); err != nil {
		w.Close()
		return nil, err
	}

	w.graph = scene.NewGraph(scene.WithRegistry(w.registry), scene.WithBus(w.bus), scene.WithLogger(w.logger))

	if w.backend == nil {
		w.backend, err = gpu.NewWGPUBackend(
			gpu.WithForceFallbackAdapter(w.cfg.Render.FallbackGPU),
			gpu.WithLogger(w.logger),
		)
		if err != nil {
			w.Close()
			return nil, err
		}
		w.ownsBackend = true
	}

	w.draw = draw.NewContext(
		draw.WithRegistry(w.registry),
		draw.WithBackend(w.backend),
		draw.WithTargets(targets),
		draw.WithWorkers(w.cfg.Render.SyncWorkers),
		draw.WithLogger(w.logger),
	)

	w.logger.Info("world ready", "assets", w.registry.Root(), "watch", w.watcher != nil)
	return w, nil
}

func (w *world) Bus() event.Bus {
	return w.bus
}

func (w *world) Registry() asset.Registry {
	return w.registry
}

func (w *world) Graph() scene.Graph {
	return w.graph
}

func (w *world) Draw() draw.Context {
	return w.draw
}

func (w *world) LoadModel(path string, parent scene.NodeID, transform mgl32.Mat4) (scene.NodeID, error) {
	h, err := w.registry.Load(path, asset.WithKind(asset.KindModel))
	if err != nil {
		return scene.NoNode, err
	}
	return w.graph.AddModel(h, parent, transform)
}

func (w *world) Frame() (FrameStats, error) {
	if w.closed {
		return FrameStats{}, gpu.ErrClosed
	}
	var fs FrameStats
	fs.Events = w.bus.Dispatch()
	fs.Recomputed = w.graph.Update()

	stats, err := w.graph.UpdateDrawContext(w.draw)
	fs.Draw = stats
	if err != nil {
		w.logger.Error("draw sync failed", "failed", len(stats.Failed), "error", err)
	}
	return fs, err
}

func (w *world) Close() {
	if w.closed {
		return
	}
	w.closed = true

	if w.draw != nil {
		w.draw.Close()
	}
	if w.backend != nil && w.ownsBackend {
		w.backend.Close()
	}
	if w.graph != nil {
		w.graph.Close()
	}
	if w.registry != nil {
		w.registry.Close()
	}
	if w.watcher != nil {
		if err := w.watcher.Close(); err != nil && !errors.Is(err, watch.ErrClosed) {
			w.logger.Warn("file watcher close failed", "error", err)
		}
	}
	if w.bus != nil {
		w.bus.Close()
	}
}
