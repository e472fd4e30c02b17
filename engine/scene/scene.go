// Package scene owns the world hierarchy.
//
// Nodes live in an arena and are addressed by NodeID; parent and child links are indices, so
// re-parenting never leaves a dangling reference. Every node has a local transform, a world
// transform derived from its ancestors and a loaded transform kept for reset. Object nodes
// additionally own an Entity binding a mesh, a material and optionally a light.
//
// Transform changes are edge triggered. SetLocal, Move and MarkDirty flag a node; the next
// Update walks the tree once, depth first with children in insertion order, recomputes every
// flagged node and everything below it, and queues the recomputed object nodes. UpdateDrawContext
// drains that queue in FIFO order into the draw context.
package scene

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/Carmen-Shannon/oxy-world/common"
	"github.com/Carmen-Shannon/oxy-world/engine/asset"
	"github.com/Carmen-Shannon/oxy-world/engine/draw"
	"github.com/Carmen-Shannon/oxy-world/engine/event"
	"github.com/Carmen-Shannon/oxy-world/engine/light"
	"github.com/go-gl/mathgl/mgl32"
)

var (
	// ErrInvalidNode is returned for node ids the graph never issued, and for operations the root
	// does not support.
	ErrInvalidNode = errors.New("scene: invalid node")
	// ErrCycle is returned when a move would place a node under itself.
	ErrCycle = errors.New("scene: move would create a cycle")
	// ErrNotRenderable is returned when an object node is given no drawable mesh, or an entity
	// operation targets a grouping node.
	ErrNotRenderable = errors.New("scene: node is not renderable")
)

// NodeID is the dense index of a node, unique for the lifetime of the graph.
type NodeID uint32

const (
	// Root is the id of the root node, which every graph has.
	Root NodeID = 0
	// NoNode is the parent of the root.
	NoNode NodeID = math.MaxUint32
)

// NodeTemplate describes a node to add.
type NodeTemplate struct {
	Name string

	// Parent defaults to Root.
	Parent NodeID

	// Local is the authored transform. The zero matrix is read as identity.
	Local mgl32.Mat4

	// Object marks a renderable node. Object nodes need a renderable Mesh.
	Object   bool
	Mesh     asset.Handle
	Material asset.Handle
	Light    *light.Light
}

// NodeInfo is a read-only snapshot of a node.
type NodeInfo struct {
	ID       NodeID
	Name     string
	Parent   NodeID
	Children []NodeID
	Local    mgl32.Mat4
	World    mgl32.Mat4
	Loaded   mgl32.Mat4
	Object   bool
	Dirty    bool
}

type node struct {
	name     string
	parent   NodeID
	children []NodeID

	local  mgl32.Mat4
	world  mgl32.Mat4
	loaded mgl32.Mat4

	dirty  bool
	queued bool
	entity *Entity
}

// graph is the implementation of the Graph interface.
type graph struct {
	mu *sync.Mutex

	nodes     []node
	queue     []NodeID
	slotNodes []NodeID

	registry asset.Registry
	bus      event.Bus
	listener event.ListenerID
	rootName string

	logger *slog.Logger
}

// Graph is the scene graph of one world.
type Graph interface {
	// AddNode appends a node under tmpl.Parent and marks it dirty. Object nodes get an Entity
	// and a render object slot, and are queued for synchronization.
	//
	// Parameters:
	//   - tmpl: the node description
	//
	// Returns:
	//   - NodeID: the new node
	//   - error: ErrInvalidNode for an unknown parent, ErrNotRenderable for an object without
	//     a drawable mesh, or a registry error for the material
	AddNode(tmpl NodeTemplate) (NodeID, error)

	// AddModel expands a Model asset into a node subtree, one node per model mesh, under parent.
	// Meshes with geometry become object nodes bound to the mesh and its material.
	//
	// Parameters:
	//   - model: the Model asset
	//   - parent: the node to attach the subtree to
	//   - transform: applied on top of the model root's own transform
	//
	// Returns:
	//   - NodeID: the node of the model root
	//   - error: ErrInvalidNode for an unknown parent, or a registry error
	AddModel(model asset.Handle, parent NodeID, transform mgl32.Mat4) (NodeID, error)

	// Update recomputes world transforms in one depth-first pass and queues every recomputed
	// object node. A node is recomputed if it is dirty or an ancestor was recomputed this pass.
	//
	// Returns:
	//   - int: the number of nodes recomputed
	Update() int

	// UpdateDrawContext drains the queue in FIFO order into ctx. Render object slots are
	// reserved in ctx on first use. An empty queue is a no-op.
	//
	// Parameters:
	//   - ctx: the draw context
	//
	// Returns:
	//   - draw.Stats: what the synchronizer rebuilt
	//   - error: the synchronizer's error; failed entities keep their dirty bits
	UpdateDrawContext(ctx draw.Context) (draw.Stats, error)

	// Move re-parents a node, appending it to newParent's children, and marks it dirty.
	//
	// Parameters:
	//   - id: the node to move, not the root
	//   - newParent: the new parent
	//
	// Returns:
	//   - error: ErrInvalidNode or ErrCycle
	Move(id, newParent NodeID) error

	// SetLocal replaces a node's local transform and marks it dirty.
	SetLocal(id NodeID, local mgl32.Mat4) error

	// SetTransform replaces a node's local transform with the matrix of a translation,
	// rotation and scale, and marks it dirty.
	SetTransform(id NodeID, t common.Transform) error

	// Local returns a node's local transform.
	Local(id NodeID) (mgl32.Mat4, error)

	// World returns a node's world transform as of the last Update.
	World(id NodeID) (mgl32.Mat4, error)

	// Loaded returns the transform a node was created with.
	Loaded(id NodeID) (mgl32.Mat4, error)

	// ResetToLoaded restores a node's local transform to its loaded transform.
	ResetToLoaded(id NodeID) error

	// MarkDirty forces a node and its subtree to be recomputed on the next Update.
	MarkDirty(id NodeID) error

	// SetMesh rebinds an object node's mesh.
	SetMesh(id NodeID, mesh asset.Handle) error

	// SetMaterial rebinds an object node's material.
	SetMaterial(id NodeID, material asset.Handle) error

	// SetLight attaches a copy of l to an object node, or detaches its light when l is nil.
	SetLight(id NodeID, l *light.Light) error

	// Parent returns a node's parent, NoNode for the root.
	Parent(id NodeID) (NodeID, error)

	// Children returns a copy of a node's children in insertion order.
	Children(id NodeID) ([]NodeID, error)

	// Node returns a snapshot of a node.
	Node(id NodeID) (NodeInfo, error)

	// Entity returns a copy of an object node's entity.
	Entity(id NodeID) (Entity, error)

	// Walk visits nodes depth first from the root, children in insertion order, until fn
	// returns false.
	Walk(fn func(NodeInfo) bool)

	// Len returns the number of nodes, including the root.
	Len() int

	// ObjectCount returns the number of object nodes.
	ObjectCount() int

	// QueueLen returns the number of object nodes waiting for UpdateDrawContext.
	QueueLen() int

	// Close detaches every material callback.
	Close()
}

var _ Graph = &graph{}

// NewGraph creates a Graph with a root node. WithRegistry is required.
//
// Parameters:
//   - options: functional options to configure the graph
//
// Returns:
//   - Graph: the graph
func NewGraph(options ...GraphBuilderOption) Graph {
	g := &graph{
		mu:       &sync.Mutex{},
		listener: event.NewListenerID(),
		rootName: "root",
		logger:   slog.Default(),
	}
	for _, option := range options {
		option(g)
	}
	if g.registry == nil {
		panic("scene: NewGraph requires an asset registry")
	}

	ident := mgl32.Ident4()
	g.nodes = append(g.nodes, node{
		name:   g.rootName,
		parent: NoNode,
		local:  ident,
		world:  ident,
		loaded: ident,
	})
	return g
}

// get validates an id. Caller holds mu.
func (g *graph) get(id NodeID) (*node, error) {
	if int(id) >= len(g.nodes) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidNode, id)
	}
	return &g.nodes[id], nil
}

// enqueue appends an object node to the dirty queue once. Caller holds mu.
func (g *graph) enqueue(id NodeID) {
	n := &g.nodes[id]
	if n.entity == nil || n.queued {
		return
	}
	n.queued = true
	g.queue = append(g.queue, id)
}

func (g *graph) publish(code event.Code, payload event.Payload) {
	if g.bus == nil {
		return
	}
	if err := g.bus.Publish(code, g.listener, payload); err != nil {
		g.logger.Warn("scene event dropped", "code", code, "error", err)
	}
}

func parentI32(id NodeID) int32 {
	if id == NoNode {
		return -1
	}
	return int32(id)
}

func (g *graph) AddNode(tmpl NodeTemplate) (NodeID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.addNode(tmpl)
}

// addNode appends a node. Caller holds mu.
func (g *graph) addNode(tmpl NodeTemplate) (NodeID, error) {
	parent, err := g.get(tmpl.Parent)
	if err != nil {
		return 0, err
	}

	if err := g.check(tmpl); err != nil {
		return 0, err
	}

	local := tmpl.Local
	if local == (mgl32.Mat4{}) {
		local = mgl32.Ident4()
	}

	var entity *Entity
	if tmpl.Object {
		entity = &Entity{}
	}

	id := NodeID(len(g.nodes))
	g.nodes = append(g.nodes, node{
		name:   tmpl.Name,
		parent: tmpl.Parent,
		local:  local,
		world:  common.Compose(local, parent.world),
		loaded: local,
		dirty:  true,
	})
	// The append may have moved the parent.
	g.nodes[tmpl.Parent].children = append(g.nodes[tmpl.Parent].children, id)

	if entity != nil {
		entity.node = id
		entity.slot = draw.Slot(len(g.slotNodes))
		entity.setMesh(tmpl.Mesh)
		entity.setLight(tmpl.Light)
		if err := g.setMaterial(entity, tmpl.Material); err != nil {
			// The node stays behind as a grouping node since ids are never reused.
			g.logger.Error("material binding failed", "node", id, "material", tmpl.Material, "error", err)
			return id, fmt.Errorf("scene: node %q material: %w", tmpl.Name, err)
		}
		g.slotNodes = append(g.slotNodes, id)
		g.nodes[id].entity = entity
		g.enqueue(id)
	}

	g.publish(event.CodeNodeAdded, event.I32s([4]int32{int32(id), parentI32(tmpl.Parent), 0, 0}))
	return id, nil
}

// check validates the bindings of an object template against the registry.
func (g *graph) check(tmpl NodeTemplate) error {
	if !tmpl.Object {
		return nil
	}
	mesh, err := g.registry.Mesh(tmpl.Mesh)
	if err != nil {
		return fmt.Errorf("scene: node %q: %w", tmpl.Name, err)
	}
	if !mesh.Renderable() {
		return fmt.Errorf("%w: mesh %s of node %q has no geometry", ErrNotRenderable, tmpl.Mesh, tmpl.Name)
	}
	if !tmpl.Material.IsNil() {
		if _, err := g.registry.Material(tmpl.Material); err != nil {
			return fmt.Errorf("scene: node %q material: %w", tmpl.Name, err)
		}
	}
	if tmpl.Light != nil {
		if err := tmpl.Light.Validate(); err != nil {
			return fmt.Errorf("scene: node %q: %w", tmpl.Name, err)
		}
	}
	return nil
}

// planned is one model node waiting to be added. parent indexes the plan, or is -1 for the
// node attached under the caller's parent.
type planned struct {
	tmpl   NodeTemplate
	parent int
}

func (g *graph) AddModel(model asset.Handle, parent NodeID, transform mgl32.Mat4) (NodeID, error) {
	m, err := g.registry.Model(model)
	if err != nil {
		return NoNode, err
	}
	if transform == (mgl32.Mat4{}) {
		transform = mgl32.Ident4()
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, err := g.get(parent); err != nil {
		return NoNode, err
	}

	if len(m.Meshes) == 0 {
		return NoNode, fmt.Errorf("scene: model %s has no meshes", model)
	}

	// Every mesh is resolved and checked first so a bad model adds nothing.
	index := make(map[asset.Handle]int, len(m.Meshes))
	plan := make([]planned, 0, len(m.Meshes))
	for i, mh := range m.Meshes {
		mesh, err := g.registry.Mesh(mh)
		if err != nil {
			return NoNode, err
		}

		p := planned{
			tmpl: NodeTemplate{
				Name:     common.Coalesce(mesh.Header().Name, fmt.Sprintf("node %d", i)),
				Parent:   parent,
				Local:    mesh.Local,
				Object:   mesh.Renderable(),
				Mesh:     mh,
				Material: mesh.Material,
			},
			parent: -1,
		}
		switch pi, ok := index[mesh.Parent]; {
		case i == 0 && mh == m.Root:
			p.tmpl.Local = transform.Mul4(mesh.Local)
		case i > 0 && ok:
			p.parent = pi
		default:
			return NoNode, fmt.Errorf("scene: model %s mesh %s: parent %s not expanded before it", model, mh, mesh.Parent)
		}
		if !p.tmpl.Object {
			p.tmpl.Mesh, p.tmpl.Material = asset.Nil, asset.Nil
		}
		if err := g.check(p.tmpl); err != nil {
			return NoNode, err
		}
		index[mh] = i
		plan = append(plan, p)
	}

	ids := make([]NodeID, len(plan))
	for i, p := range plan {
		if p.parent >= 0 {
			p.tmpl.Parent = ids[p.parent]
		}
		id, err := g.addNode(p.tmpl)
		if err != nil {
			return NoNode, err
		}
		ids[i] = id
	}
	root := ids[0]

	g.logger.Debug("model added", "model", model, "root", root, "nodes", len(m.Meshes))
	return root, nil
}

type visit struct {
	id               NodeID
	parentRecomputed bool
}

func (g *graph) Update() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	recomputed := 0
	stack := []visit{{id: Root}}
	for len(stack) > 0 {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := &g.nodes[v.id]

		recompute := n.dirty || v.parentRecomputed
		if recompute {
			if n.parent == NoNode {
				n.world = n.local
			} else {
				n.world = common.Compose(n.local, g.nodes[n.parent].world)
			}
			n.dirty = false
			recomputed++
			g.enqueue(v.id)
		}

		// Push in reverse so children pop in insertion order.
		for i := len(n.children) - 1; i >= 0; i-- {
			stack = append(stack, visit{id: n.children[i], parentRecomputed: recompute})
		}
	}
	return recomputed
}

func (g *graph) UpdateDrawContext(ctx draw.Context) (draw.Stats, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.queue) == 0 {
		return draw.Stats{}, nil
	}

	for ctx.Len() < len(g.slotNodes) {
		ctx.Reserve(uint32(g.slotNodes[ctx.Len()]))
	}

	items := make([]draw.Item, 0, len(g.queue))
	for _, id := range g.queue {
		n := &g.nodes[id]
		n.queued = false
		e := n.entity
		items = append(items, draw.Item{
			Slot:     e.slot,
			Node:     uint32(id),
			World:    n.world,
			Mesh:     e.mesh,
			Material: e.material,
			Light:    e.light,
			Changed:  e.dirty,
		})
	}
	g.queue = g.queue[:0]

	stats, err := ctx.Sync(items)

	failed := make(map[draw.Slot]bool, len(stats.Failed))
	for _, s := range stats.Failed {
		failed[s] = true
	}
	for _, it := range items {
		if !failed[it.Slot] {
			g.nodes[it.Node].entity.dirty = 0
		}
	}
	return stats, err
}

// isAncestor reports whether a is b or an ancestor of b. Caller holds mu.
func (g *graph) isAncestor(a, b NodeID) bool {
	for cur := b; cur != NoNode; cur = g.nodes[cur].parent {
		if cur == a {
			return true
		}
	}
	return false
}

func (g *graph) Move(id, newParent NodeID) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if id == Root {
		return fmt.Errorf("%w: the root cannot be moved", ErrInvalidNode)
	}
	n, err := g.get(id)
	if err != nil {
		return err
	}
	if _, err := g.get(newParent); err != nil {
		return err
	}
	if g.isAncestor(id, newParent) {
		return fmt.Errorf("%w: %d under %d", ErrCycle, id, newParent)
	}

	old := n.parent
	siblings := g.nodes[old].children
	for i, c := range siblings {
		if c == id {
			g.nodes[old].children = append(siblings[:i:i], siblings[i+1:]...)
			break
		}
	}
	g.nodes[newParent].children = append(g.nodes[newParent].children, id)
	n.parent = newParent
	n.dirty = true

	g.publish(event.CodeNodeMoved, event.I32s([4]int32{int32(id), parentI32(old), int32(newParent), 0}))
	return nil
}

func (g *graph) SetLocal(id NodeID, local mgl32.Mat4) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, err := g.get(id)
	if err != nil {
		return err
	}
	n.local = local
	n.dirty = true
	return nil
}

func (g *graph) SetTransform(id NodeID, t common.Transform) error {
	return g.SetLocal(id, t.Matrix())
}

// transform reads one of a node's matrices.
func (g *graph) transform(id NodeID, pick func(*node) mgl32.Mat4) (mgl32.Mat4, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, err := g.get(id)
	if err != nil {
		return mgl32.Mat4{}, err
	}
	return pick(n), nil
}

func (g *graph) Local(id NodeID) (mgl32.Mat4, error) {
	return g.transform(id, func(n *node) mgl32.Mat4 { return n.local })
}

func (g *graph) World(id NodeID) (mgl32.Mat4, error) {
	return g.transform(id, func(n *node) mgl32.Mat4 { return n.world })
}

func (g *graph) Loaded(id NodeID) (mgl32.Mat4, error) {
	return g.transform(id, func(n *node) mgl32.Mat4 { return n.loaded })
}

func (g *graph) ResetToLoaded(id NodeID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, err := g.get(id)
	if err != nil {
		return err
	}
	n.local = n.loaded
	n.dirty = true
	return nil
}

func (g *graph) MarkDirty(id NodeID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, err := g.get(id)
	if err != nil {
		return err
	}
	n.dirty = true
	return nil
}

// entity validates an object node. Caller holds mu.
func (g *graph) entity(id NodeID) (*Entity, error) {
	n, err := g.get(id)
	if err != nil {
		return nil, err
	}
	if n.entity == nil {
		return nil, fmt.Errorf("%w: %d", ErrNotRenderable, id)
	}
	return n.entity, nil
}

func (g *graph) SetMesh(id NodeID, mesh asset.Handle) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, err := g.entity(id)
	if err != nil {
		return err
	}
	m, err := g.registry.Mesh(mesh)
	if err != nil {
		return err
	}
	if !m.Renderable() {
		return fmt.Errorf("%w: mesh %s has no geometry", ErrNotRenderable, mesh)
	}
	e.setMesh(mesh)
	g.enqueue(id)
	return nil
}

func (g *graph) SetMaterial(id NodeID, material asset.Handle) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, err := g.entity(id)
	if err != nil {
		return err
	}
	if !material.IsNil() {
		if _, err := g.registry.Material(material); err != nil {
			return err
		}
	}
	if err := g.setMaterial(e, material); err != nil {
		return err
	}
	g.enqueue(id)
	return nil
}

func (g *graph) SetLight(id NodeID, l *light.Light) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, err := g.entity(id)
	if err != nil {
		return err
	}
	if l != nil {
		if err := l.Validate(); err != nil {
			return err
		}
	}
	e.setLight(l)
	g.enqueue(id)
	return nil
}

func (g *graph) Parent(id NodeID) (NodeID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, err := g.get(id)
	if err != nil {
		return NoNode, err
	}
	return n.parent, nil
}

func (g *graph) Children(id NodeID) ([]NodeID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, err := g.get(id)
	if err != nil {
		return nil, err
	}
	return append([]NodeID(nil), n.children...), nil
}

// info snapshots a node. Caller holds mu.
func (g *graph) info(id NodeID) NodeInfo {
	n := &g.nodes[id]
	return NodeInfo{
		ID:       id,
		Name:     n.name,
		Parent:   n.parent,
		Children: append([]NodeID(nil), n.children...),
		Local:    n.local,
		World:    n.world,
		Loaded:   n.loaded,
		Object:   n.entity != nil,
		Dirty:    n.dirty,
	}
}

func (g *graph) Node(id NodeID) (NodeInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, err := g.get(id); err != nil {
		return NodeInfo{}, err
	}
	return g.info(id), nil
}

func (g *graph) Entity(id NodeID) (Entity, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, err := g.entity(id)
	if err != nil {
		return Entity{}, err
	}
	cp := *e
	if e.light != nil {
		l := *e.light
		cp.light = &l
	}
	return cp, nil
}

func (g *graph) Walk(fn func(NodeInfo) bool) {
	g.mu.Lock()
	infos := make([]NodeInfo, 0, len(g.nodes))
	stack := []NodeID{Root}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		infos = append(infos, g.info(id))
		children := g.nodes[id].children
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, children[i])
		}
	}
	g.mu.Unlock()

	// fn runs unlocked so it may call back into the graph.
	for _, info := range infos {
		if !fn(info) {
			return
		}
	}
}

func (g *graph) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.nodes)
}

func (g *graph) ObjectCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.slotNodes)
}

func (g *graph) QueueLen() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.queue)
}

func (g *graph) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, id := range g.slotNodes {
		e := g.nodes[id].entity
		if e.materialCallback != 0 {
			_ = g.registry.DetachCallback(e.material, e.materialCallback)
			e.materialCallback = 0
		}
	}
	g.queue = nil
}

// NodeFromEvent extracts the node ids carried by CodeNodeAdded and CodeNodeMoved.
//
// Parameters:
//   - ev: the event
//
// Returns:
//   - NodeID: the node
//   - NodeID: the parent for CodeNodeAdded, the new parent for CodeNodeMoved
//   - bool: false for other events
func NodeFromEvent(ev event.Event) (NodeID, NodeID, bool) {
	v, ok := ev.Payload.I32s()
	if !ok {
		return NoNode, NoNode, false
	}
	switch ev.Code {
	case event.CodeNodeAdded:
		return NodeID(v[0]), toNodeID(v[1]), true
	case event.CodeNodeMoved:
		return NodeID(v[0]), toNodeID(v[2]), true
	default:
		return NoNode, NoNode, false
	}
}

func toNodeID(v int32) NodeID {
	if v < 0 {
		return NoNode
	}
	return NodeID(v)
}
