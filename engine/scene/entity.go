package scene

import (
	"github.com/Carmen-Shannon/oxy-world/engine/asset"
	"github.com/Carmen-Shannon/oxy-world/engine/draw"
	"github.com/Carmen-Shannon/oxy-world/engine/light"
)

// Dirty bits of an entity, one per attachable binding.
const (
	DirtyMesh     = draw.AspectMesh
	DirtyMaterial = draw.AspectMaterial
	DirtyLight    = draw.AspectLight
)

// Entity is the renderable payload of an object node: its mesh, material and light bindings.
// Each object node owns exactly one Entity. Materials may be shared between entities by handle.
type Entity struct {
	node     NodeID
	slot     draw.Slot
	mesh     asset.Handle
	material asset.Handle
	light    *light.Light
	dirty    draw.Aspect

	// materialCallback is the registry callback watching the bound material.
	materialCallback asset.CallbackID
}

// Node returns the owning node.
func (e Entity) Node() NodeID {
	return e.node
}

// Slot returns the stable render object slot assigned when the node was created.
func (e Entity) Slot() draw.Slot {
	return e.slot
}

// Mesh returns the bound mesh handle.
func (e Entity) Mesh() asset.Handle {
	return e.mesh
}

// Material returns the bound material handle. It may be asset.Nil for the built-in material.
func (e Entity) Material() asset.Handle {
	return e.material
}

// Light returns the attached light, if any.
//
// Returns:
//   - light.Light: a copy of the light descriptor
//   - bool: false if no light is attached
func (e Entity) Light() (light.Light, bool) {
	if e.light == nil {
		return light.Light{}, false
	}
	return *e.light, true
}

// Dirty returns the bindings that changed since the entity was last synchronized.
func (e Entity) Dirty() draw.Aspect {
	return e.dirty
}

// setMesh binds a mesh and flips its dirty bit.
func (e *Entity) setMesh(h asset.Handle) {
	e.mesh = h
	e.dirty |= DirtyMesh
}

// setLight copies l, or detaches the light when l is nil.
func (e *Entity) setLight(l *light.Light) {
	if l == nil {
		e.light = nil
	} else {
		cp := *l
		e.light = &cp
	}
	e.dirty |= DirtyLight
}

// setMaterial rebinds the material and moves the handle-scoped change callback to it.
// Caller holds the graph lock.
func (g *graph) setMaterial(e *Entity, h asset.Handle) error {
	if e.materialCallback != 0 {
		if err := g.registry.DetachCallback(e.material, e.materialCallback); err != nil {
			g.logger.Warn("material callback already detached", "node", e.node, "material", e.material, "error", err)
		}
		e.materialCallback = 0
	}

	e.material = h
	e.dirty |= DirtyMaterial
	if h.IsNil() {
		return nil
	}

	node := e.node
	id, err := g.registry.AttachCallback(h, func(asset.Handle) {
		g.materialChanged(node)
	})
	if err != nil {
		return err
	}
	e.materialCallback = id
	return nil
}

// materialChanged runs from the registry's change callback at bus dispatch.
func (g *graph) materialChanged(id NodeID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if int(id) >= len(g.nodes) || g.nodes[id].entity == nil {
		return
	}
	g.nodes[id].entity.dirty |= DirtyMaterial
	g.enqueue(id)
}
