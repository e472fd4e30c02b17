// Package draw reconciles render objects with the GPU backend.
//
// A Context owns a flat, append-only array of RenderObjects. Slots are reserved when a
// renderable scene node is created and never reused. Once per frame the scene hands Sync the
// nodes that changed, in the order they were marked dirty; Sync waits for the device once,
// prepares instance data on a worker pool, then performs all backend calls sequentially in
// that same order.
package draw

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-world/common"
	"github.com/Carmen-Shannon/oxy-world/engine/asset"
	"github.com/Carmen-Shannon/oxy-world/engine/gpu"
	"github.com/Carmen-Shannon/oxy-world/engine/light"
	"github.com/go-gl/mathgl/mgl32"
)

// ErrUnknownSlot is returned for items whose slot was never reserved.
var ErrUnknownSlot = errors.New("draw: unknown slot")

// Slot is the stable index of a render object.
type Slot uint32

// Aspect is a bitset of the entity bindings that changed since the last sync.
type Aspect uint8

const (
	AspectMesh Aspect = 1 << iota
	AspectMaterial
	AspectLight

	AspectAll = AspectMesh | AspectMaterial | AspectLight
)

// Has reports whether every bit of a is set.
func (s Aspect) Has(a Aspect) bool {
	return s&a == a
}

// RenderObject is the GPU-facing state of one renderable node.
type RenderObject struct {
	Slot Slot
	Node uint32

	Mesh     asset.Handle
	Material asset.Handle

	Geometry gpu.Geometry
	Pipeline gpu.PipelineHandle

	// Instances are world transforms, one per drawn instance.
	Instances      []mgl32.Mat4
	InstanceBuffer gpu.BufferHandle
	LightBuffer    gpu.BufferHandle

	// Version counts successful syncs.
	Version uint64

	instanceCap int
}

// Item is one dirty renderable node handed to Sync.
type Item struct {
	Slot     Slot
	Node     uint32
	World    mgl32.Mat4
	Mesh     asset.Handle
	Material asset.Handle
	Light    *light.Light
	Changed  Aspect
}

// Stats summarizes one Sync call.
type Stats struct {
	Synced         int
	GeometryBuilds int
	PipelineBuilds int
	// Failed lists the slots whose sync failed. Their objects keep their previous state.
	Failed []Slot
}

type pipelineEntry struct {
	handle  gpu.PipelineHandle
	version uint64
}

type prepared struct {
	instances []byte
	light     []byte
}

// contextImpl is the implementation of the Context interface.
type contextImpl struct {
	mu sync.RWMutex

	objects   []RenderObject
	pipelines map[asset.Handle]pipelineEntry

	registry asset.Registry
	backend  gpu.Backend
	targets  gpu.RenderTargetFormats

	pool    worker.DynamicWorkerPool
	workers int
	closed  bool

	logger *slog.Logger
}

// Context is the draw context: the render objects of a world and their synchronizer.
type Context interface {
	// Reserve appends a render object for a node and returns its slot.
	//
	// Parameters:
	//   - node: the scene node that owns the object
	//
	// Returns:
	//   - Slot: the stable slot
	Reserve(node uint32) Slot

	// Object returns a copy of the render object in a slot.
	//
	// Parameters:
	//   - slot: the slot
	//
	// Returns:
	//   - RenderObject: the object
	//   - bool: false if the slot was never reserved
	Object(slot Slot) (RenderObject, bool)

	// Objects returns a copy of every render object in slot order.
	Objects() []RenderObject

	// Len returns the number of reserved slots.
	Len() int

	// Sync reconciles the render objects of items with the backend. An empty items slice
	// is a no-op that does not touch the backend. Otherwise the backend's WaitIdle is called
	// exactly once before any buffer is written, and backend work happens in item order.
	//
	// Parameters:
	//   - items: the dirty renderable nodes in FIFO order
	//
	// Returns:
	//   - Stats: what was rebuilt and which slots failed
	//   - error: the joined per-item errors
	Sync(items []Item) (Stats, error)

	// Targets returns the render target formats pipelines are built for.
	Targets() gpu.RenderTargetFormats

	// Close releases every backend resource the context created and stops the worker pool.
	Close()
}

var _ Context = &contextImpl{}

// NewContext creates a draw Context. WithRegistry and WithBackend are required.
//
// Parameters:
//   - options: functional options to configure the context
//
// Returns:
//   - Context: the draw context
func NewContext(options ...ContextBuilderOption) Context {
	c := &contextImpl{
		pipelines: make(map[asset.Handle]pipelineEntry),
		targets:   gpu.DefaultTargets(),
		workers:   4,
		logger:    slog.Default(),
	}
	for _, option := range options {
		option(c)
	}
	if c.registry == nil {
		panic("draw: NewContext requires an asset registry")
	}
	if c.backend == nil {
		panic("draw: NewContext requires a gpu backend")
	}

	// Initialize the pool after options so WithWorkers can override the default.
	c.pool = worker.NewDynamicWorkerPool(c.workers, 256, 1*time.Second)
	return c
}

func (c *contextImpl) Reserve(node uint32) Slot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Slot(len(c.objects))
	c.objects = append(c.objects, RenderObject{Slot: s, Node: node})
	return s
}

func (c *contextImpl) Object(slot Slot) (RenderObject, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if int(slot) >= len(c.objects) {
		return RenderObject{}, false
	}
	return cloneObject(c.objects[slot]), true
}

func (c *contextImpl) Objects() []RenderObject {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]RenderObject, len(c.objects))
	for i, o := range c.objects {
		out[i] = cloneObject(o)
	}
	return out
}

func cloneObject(o RenderObject) RenderObject {
	o.Instances = append([]mgl32.Mat4(nil), o.Instances...)
	return o
}

func (c *contextImpl) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.objects)
}

func (c *contextImpl) Targets() gpu.RenderTargetFormats {
	return c.targets
}

func (c *contextImpl) Sync(items []Item) (Stats, error) {
	var stats Stats
	if len(items) == 0 {
		return stats, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return stats, gpu.ErrClosed
	}

	// Existing buffers are rewritten in place, so the previous frame must be done with them.
	c.backend.WaitIdle()

	prep := c.prepare(items)

	var errs []error
	for i := range items {
		if err := c.syncItem(&items[i], &prep[i], &stats); err != nil {
			stats.Failed = append(stats.Failed, items[i].Slot)
			errs = append(errs, fmt.Errorf("slot %d (node %d): %w", items[i].Slot, items[i].Node, err))
			c.logger.Error("render object sync failed", "slot", items[i].Slot, "node", items[i].Node, "error", err)
			continue
		}
		stats.Synced++
	}
	return stats, errors.Join(errs...)
}

// prepare packs instance and light data on the worker pool. The pool's own Wait blocks until
// workers idle out, so a WaitGroup is the per-frame barrier.
func (c *contextImpl) prepare(items []Item) []prepared {
	prep := make([]prepared, len(items))
	var wg sync.WaitGroup
	for i := range items {
		wg.Add(1)
		idx := i
		c.pool.SubmitTask(worker.Task{
			ID: idx,
			Do: func() (any, error) {
				defer wg.Done()
				it := &items[idx]
				prep[idx].instances = common.Mat4Bytes([]mgl32.Mat4{it.World})
				if it.Light != nil {
					g := light.ToGPULight(*it.Light, it.World)
					prep[idx].light = g.Marshal()
				}
				return nil, nil
			},
		})
	}
	wg.Wait()
	return prep
}

// syncItem performs the backend work for one item. Caller holds mu.
func (c *contextImpl) syncItem(it *Item, p *prepared, stats *Stats) error {
	if int(it.Slot) >= len(c.objects) {
		return fmt.Errorf("%w: %d", ErrUnknownSlot, it.Slot)
	}
	obj := &c.objects[it.Slot]

	if it.Changed.Has(AspectMesh) || !obj.Geometry.Valid() || obj.Mesh != it.Mesh {
		mesh, err := c.registry.Mesh(it.Mesh)
		if err != nil {
			return err
		}
		geom, err := c.backend.BuildGeometry(mesh)
		if err != nil {
			return err
		}
		if obj.Geometry.Valid() {
			c.backend.ReleaseGeometry(obj.Geometry)
		}
		obj.Geometry = geom
		obj.Mesh = it.Mesh
		stats.GeometryBuilds++
	}

	if it.Changed.Has(AspectMaterial) || obj.Pipeline == 0 || obj.Material != it.Material {
		h, built, err := c.pipeline(it.Material)
		if err != nil {
			return err
		}
		obj.Pipeline = h
		obj.Material = it.Material
		if built {
			stats.PipelineBuilds++
		}
	}

	obj.Instances = append(obj.Instances[:0], it.World)
	if obj.InstanceBuffer == 0 || obj.instanceCap < len(obj.Instances) {
		if obj.InstanceBuffer != 0 {
			c.backend.ReleaseBuffer(obj.InstanceBuffer)
			obj.InstanceBuffer = 0
		}
		buf, err := c.backend.CreateBuffer(fmt.Sprintf("object %d instances", obj.Slot), uint64(len(obj.Instances)*gpu.InstanceStride), gpu.BufferUsageVertex)
		if err != nil {
			return err
		}
		obj.InstanceBuffer = buf
		obj.instanceCap = len(obj.Instances)
	}
	if err := c.backend.UpdateBuffer(obj.InstanceBuffer, p.instances); err != nil {
		return err
	}

	switch {
	case p.light != nil:
		if obj.LightBuffer == 0 {
			buf, err := c.backend.CreateBuffer(fmt.Sprintf("object %d light", obj.Slot), light.GPULightSize, gpu.BufferUsageStorage)
			if err != nil {
				return err
			}
			obj.LightBuffer = buf
		}
		if err := c.backend.UpdateBuffer(obj.LightBuffer, p.light); err != nil {
			return err
		}
	case obj.LightBuffer != 0:
		c.backend.ReleaseBuffer(obj.LightBuffer)
		obj.LightBuffer = 0
	}

	obj.Node = it.Node
	obj.Version++
	return nil
}

// pipeline returns the pipeline for a material, building it when the material or any of its
// shaders and textures changed since the cached build. Entities sharing a material share one
// pipeline, so a change rebuilds it once per sync rather than once per entity.
func (c *contextImpl) pipeline(h asset.Handle) (gpu.PipelineHandle, bool, error) {
	var mat *asset.Material
	var shaders gpu.ShaderSources
	var version uint64
	if !h.IsNil() {
		var err error
		if mat, err = c.registry.Material(h); err != nil {
			return 0, false, err
		}
		if shaders, version, err = c.materialSources(mat); err != nil {
			return 0, false, err
		}
	}

	entry, ok := c.pipelines[h]
	if ok && entry.version == version {
		return entry.handle, false, nil
	}

	p, err := c.backend.BuildMaterialPipeline(mat, c.targets, shaders)
	if err != nil {
		return 0, false, err
	}
	if ok {
		c.backend.ReleasePipeline(entry.handle)
	}
	c.pipelines[h] = pipelineEntry{handle: p, version: version}
	return p, true, nil
}

// materialSources resolves a material's shader stages and sums the revisions the pipeline
// depends on. Revisions only grow, so the sum changes whenever any of them does.
func (c *contextImpl) materialSources(mat *asset.Material) (gpu.ShaderSources, uint64, error) {
	var sources gpu.ShaderSources
	version := uint64(mat.Header().Revision) + 1

	for _, tex := range mat.Textures {
		t, err := c.registry.Texture(tex)
		if err != nil {
			return sources, 0, err
		}
		version += uint64(t.Header().Revision)
	}

	for _, s := range []struct {
		h     asset.Handle
		dst   *gpu.ShaderSource
		entry func(*asset.Shader) string
	}{
		{mat.VertexShader, &sources.Vertex, func(sh *asset.Shader) string { return sh.VertexEntry }},
		{mat.FragmentShader, &sources.Fragment, func(sh *asset.Shader) string { return sh.FragmentEntry }},
	} {
		if s.h.IsNil() {
			continue
		}
		sh, err := c.registry.Shader(s.h)
		if err != nil {
			return sources, 0, err
		}
		entry := s.entry(sh)
		if entry == "" {
			return sources, 0, fmt.Errorf("draw: shader %s has no entry point for its stage", sh.Header().Name)
		}
		*s.dst = gpu.ShaderSource{Label: sh.Header().Name, Code: sh.Source, Entry: entry}
		version += uint64(sh.Header().Revision)
	}
	return sources, version, nil
}

func (c *contextImpl) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true

	for i := range c.objects {
		obj := &c.objects[i]
		if obj.Geometry.Valid() {
			c.backend.ReleaseGeometry(obj.Geometry)
		}
		if obj.InstanceBuffer != 0 {
			c.backend.ReleaseBuffer(obj.InstanceBuffer)
		}
		if obj.LightBuffer != 0 {
			c.backend.ReleaseBuffer(obj.LightBuffer)
		}
		*obj = RenderObject{Slot: obj.Slot, Node: obj.Node}
	}
	for h, e := range c.pipelines {
		c.backend.ReleasePipeline(e.handle)
		delete(c.pipelines, h)
	}
	c.pool.Stop()
}
