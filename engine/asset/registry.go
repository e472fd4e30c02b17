// Package asset is the handle-indexed store of loaded resources.
//
// Assets are registered once per normalized path and live until the registry is closed.
// Lifecycle notifications go through the event bus: CodeAssetLoaded when an asset is first
// registered, CodeAssetReloaded and CodeAssetChanged after a reload, and CodeAssetChanged after
// Touch. Handle-scoped callbacks attached with AttachCallback run when CodeAssetChanged for that
// handle is dispatched, so every reaction happens at the bus's dispatch point in the frame.
package asset

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-world/engine/event"
	"github.com/Carmen-Shannon/oxy-world/engine/loader"
	"github.com/Carmen-Shannon/oxy-world/engine/watch"
	"github.com/kamstrup/intmap"
)

// Callback is invoked with the handle of an asset whose contents changed.
type Callback func(h Handle)

// CallbackID identifies an attached callback.
type CallbackID uint64

type callback struct {
	id CallbackID
	fn Callback
}

// LoadOption adjusts a single Load call.
type LoadOption func(*loadOptions)

type loadOptions struct {
	kind Kind
	data any
}

// WithKind overrides the kind inferred from the file extension.
func WithKind(k Kind) LoadOption {
	return func(o *loadOptions) {
		o.kind = k
	}
}

// WithLoaderData registers raw loader output under the path instead of reading the file.
// The value must be the loader type of the asset kind, e.g. *loader.TextureData.
func WithLoaderData(data any) LoadOption {
	return func(o *loadOptions) {
		o.data = data
	}
}

var sessions atomic.Uint32

// registry is the implementation of the Registry interface.
type registry struct {
	mu sync.RWMutex

	root   string
	tag    uint8
	assets []Asset
	paths  map[string]Handle

	callbacks    *intmap.Map[Handle, []callback]
	nextCallback CallbackID

	bus      event.Bus
	listener event.ListenerID
	subs     []event.Subscription

	loaders loader.Set
	watcher watch.Service
	strict  bool
	closed  bool

	logger *slog.Logger
}

// Registry maps asset paths to stable handles, owns the loaded data and announces changes.
type Registry interface {
	// Load returns the handle for path, loading and registering it on first use.
	// The path is resolved against the root: exact match first, then a case-insensitive
	// search by base name. Loading a model also registers its materials, textures, shaders and
	// one Mesh per node.
	//
	// Parameters:
	//   - path: a path relative to the root, or an absolute path
	//   - options: WithKind and WithLoaderData
	//
	// Returns:
	//   - Handle: the asset handle, identical for repeated loads of the same normalized path
	//   - error: ErrNotFound, ErrUnsupportedKind or a loader error
	Load(path string, options ...LoadOption) (Handle, error)

	// Create registers an asset built in memory. It is not path-addressable.
	//
	// Parameters:
	//   - kind: the asset kind
	//   - name: a display name
	//   - raw: the loader data for kind, e.g. *loader.MaterialData for KindMaterial
	//
	// Returns:
	//   - Handle: the new handle
	//   - error: ErrKindMismatch if raw does not match kind
	Create(kind Kind, name string, raw any) (Handle, error)

	// Get returns the asset for a handle.
	//
	// Parameters:
	//   - h: the handle
	//
	// Returns:
	//   - Asset: the asset variant
	//   - error: ErrInvalidHandle for handles this registry did not issue
	Get(h Handle) (Asset, error)

	// Texture returns a texture asset or ErrKindMismatch.
	Texture(h Handle) (*Texture, error)

	// Shader returns a shader asset or ErrKindMismatch.
	Shader(h Handle) (*Shader, error)

	// Mesh returns a mesh asset or ErrKindMismatch.
	Mesh(h Handle) (*Mesh, error)

	// Model returns a model asset or ErrKindMismatch.
	Model(h Handle) (*Model, error)

	// Material returns a material asset or ErrKindMismatch.
	Material(h Handle) (*Material, error)

	// Lookup returns the handle registered for a path without loading anything.
	Lookup(path string) (Handle, bool)

	// List returns every handle of a kind in registration order.
	List(kind Kind) []Handle

	// Reload re-reads a texture or shader from disk and publishes CodeAssetReloaded and
	// CodeAssetChanged.
	//
	// Parameters:
	//   - h: the asset to reload
	//
	// Returns:
	//   - error: ErrReloadUnsupported for other kinds, or the loader error
	Reload(h Handle) error

	// Touch records an in-memory edit and publishes CodeAssetChanged.
	Touch(h Handle) error

	// AttachCallback registers fn to run whenever CodeAssetChanged for h is dispatched.
	// Callbacks on a material also run when one of its textures or shaders changes.
	//
	// Parameters:
	//   - h: the asset to observe
	//   - fn: the callback
	//
	// Returns:
	//   - CallbackID: id used to detach
	//   - error: ErrInvalidHandle
	AttachCallback(h Handle, fn Callback) (CallbackID, error)

	// DetachCallback removes a callback.
	DetachCallback(h Handle, id CallbackID) error

	// Root returns the absolute asset root.
	Root() string

	// Len returns the number of registered assets.
	Len() int

	// Close unsubscribes from the bus and drops every asset and callback.
	Close()
}

var _ Registry = &registry{}

// NewRegistry creates a Registry. WithBus is required.
// When a watcher is configured the root is registered with it immediately.
//
// Parameters:
//   - options: functional options to configure the registry
//
// Returns:
//   - Registry: the registry
//   - error: error if the root cannot be watched
func NewRegistry(options ...RegistryBuilderOption) (Registry, error) {
	r := &registry{
		root:      ".",
		tag:       uint8(sessions.Add(1)%255) + 1,
		paths:     make(map[string]Handle),
		callbacks: intmap.New[Handle, []callback](64),
		listener:  event.NewListenerID(),
		loaders:   loader.Default(),
		logger:    slog.Default(),
	}
	for _, option := range options {
		option(r)
	}
	if r.bus == nil {
		panic("asset: NewRegistry requires an event bus")
	}

	abs, err := filepath.Abs(r.root)
	if err != nil {
		return nil, fmt.Errorf("asset: invalid root %q: %w", r.root, err)
	}
	r.root = abs

	for _, s := range []struct {
		code    event.Code
		handler event.Handler
	}{
		{event.CodeAssetFileModified, r.onFileModified},
		{event.CodeAssetChanged, r.onChanged},
	} {
		sub, err := r.bus.Subscribe(s.code, r.listener, s.handler)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("asset: failed to subscribe to %s: %w", s.code, err)
		}
		r.subs = append(r.subs, sub)
	}

	if r.watcher != nil {
		if err := r.watcher.Watch(r.root, r.onFileChange); err != nil {
			r.Close()
			return nil, fmt.Errorf("asset: failed to watch %s: %w", r.root, err)
		}
	}
	return r, nil
}

func (r *registry) Root() string {
	return r.root
}

func (r *registry) Load(path string, options ...LoadOption) (Handle, error) {
	var lo loadOptions
	for _, option := range options {
		option(&lo)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return Nil, ErrClosed
	}
	return r.load(path, lo)
}

// load resolves, dedups and loads a path. Caller holds mu.
func (r *registry) load(path string, lo loadOptions) (Handle, error) {
	key := r.normalize(path)
	if h, ok := r.paths[key]; ok {
		return h, nil
	}

	resolved := filepath.FromSlash(key)
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(r.root, resolved)
	}
	if lo.data == nil {
		var err error
		if resolved, err = r.resolve(path); err != nil {
			if r.strict {
				panic(err.Error())
			}
			r.logger.Error("asset not found", "path", path, "root", r.root)
			return Nil, err
		}
		key = r.normalize(resolved)
		if h, ok := r.paths[key]; ok {
			return h, nil
		}
	}

	kind := lo.kind
	if kind == KindUnknown {
		kind = KindFromExt(resolved)
	}

	raw := lo.data
	if raw == nil {
		var err error
		if raw, err = r.read(kind, resolved); err != nil {
			return Nil, fmt.Errorf("asset: failed to load %s: %w", key, err)
		}
	}

	h, err := r.build(kind, key, baseName(resolved), raw)
	if err != nil {
		return Nil, fmt.Errorf("asset: failed to register %s: %w", key, err)
	}
	return h, nil
}

// read runs the loader for a kind.
func (r *registry) read(kind Kind, path string) (any, error) {
	switch kind {
	case KindTexture:
		return r.loaders.Texture(path)
	case KindShader:
		return r.loaders.Shader(path)
	case KindMaterial:
		return r.loaders.Material(path)
	case KindModel:
		return r.loaders.Model(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedKind, kind)
	}
}

// build turns loader output into registered assets. key may be empty for created assets.
// Caller holds mu.
func (r *registry) build(kind Kind, key, name string, raw any) (Handle, error) {
	switch kind {
	case KindTexture:
		td, ok := raw.(*loader.TextureData)
		if !ok || td == nil {
			return Nil, mismatch(kind, raw)
		}
		return r.register(newTexture(td), kind, key, name)

	case KindShader:
		sd, ok := raw.(*loader.ShaderData)
		if !ok || sd == nil {
			return Nil, mismatch(kind, raw)
		}
		return r.register(newShader(sd), kind, key, name)

	case KindMaterial:
		md, ok := raw.(*loader.MaterialData)
		if !ok || md == nil {
			return Nil, mismatch(kind, raw)
		}
		if md.Name != "" {
			name = md.Name
		}
		return r.buildMaterial(key, name, md)

	case KindMesh:
		md, ok := raw.(*loader.MeshData)
		if !ok || md == nil {
			return Nil, mismatch(kind, raw)
		}
		m := &Mesh{Local: identity()}
		m.setGeometry(md)
		return r.register(m, kind, key, name)

	case KindModel:
		md, ok := raw.(*loader.ModelData)
		if !ok || md == nil {
			return Nil, mismatch(kind, raw)
		}
		if md.Name != "" {
			name = md.Name
		}
		return r.buildModel(key, name, md)

	default:
		return Nil, fmt.Errorf("%w: %s", ErrUnsupportedKind, kind)
	}
}

func mismatch(kind Kind, raw any) error {
	return fmt.Errorf("%w: %T is not %s data", ErrKindMismatch, raw, kind)
}

// register assigns the next handle and announces the asset. Caller holds mu.
func (r *registry) register(a Asset, kind Kind, key, name string) (Handle, error) {
	if len(r.assets) >= MaxAssets {
		return Nil, ErrFull
	}

	h := makeHandle(uint32(len(r.assets)), r.tag)
	hdr := a.header()
	hdr.Handle = h
	hdr.Kind = kind
	hdr.Name = name
	hdr.Path = key

	r.assets = append(r.assets, a)
	if key != "" {
		r.paths[key] = h
	}

	r.publish(event.CodeAssetLoaded, h, kind)
	r.logger.Debug("asset registered", "handle", h, "kind", kind, "path", key)
	return h, nil
}

func (r *registry) publish(code event.Code, h Handle, kind Kind) {
	if err := r.bus.Publish(code, r.listener, eventPayload(h, kind)); err != nil {
		r.logger.Warn("asset event dropped", "code", code, "handle", h, "error", err)
	}
}

// buildMaterial registers a material after its textures and shaders. Caller holds mu.
func (r *registry) buildMaterial(key, name string, md *loader.MaterialData) (Handle, error) {
	m := &Material{
		BaseColor: md.BaseColor,
		Metallic:  md.Metallic,
		Roughness: md.Roughness,
	}

	for _, ref := range md.Textures {
		var h Handle
		var err error
		switch {
		case ref.Data != nil && key == "":
			h, err = r.build(KindTexture, "", ref.Data.Name, ref.Data)
		case ref.Data != nil:
			// Images belong to the model file, so materials of one file share them.
			owner, _, _ := strings.Cut(key, "#")
			h, err = r.embedded(KindTexture, owner+"#"+ref.Key, ref.Data.Name, ref.Data)
		case ref.Path != "":
			h, err = r.load(joinRef(md.BaseDir, ref.Path), loadOptions{kind: KindTexture})
		default:
			continue
		}
		if err != nil {
			return Nil, fmt.Errorf("material %q texture: %w", name, err)
		}
		m.Textures = append(m.Textures, h)
	}

	for _, s := range []struct {
		path string
		dst  *Handle
	}{
		{md.VertexShader, &m.VertexShader},
		{md.FragmentShader, &m.FragmentShader},
	} {
		if s.path == "" {
			continue
		}
		h, err := r.load(joinRef(md.BaseDir, s.path), loadOptions{kind: KindShader})
		if err != nil {
			return Nil, fmt.Errorf("material %q shader: %w", name, err)
		}
		*s.dst = h
	}

	return r.register(m, KindMaterial, key, name)
}

// buildModel registers a model's materials, then one Mesh per node, then the Model itself.
// Caller holds mu.
func (r *registry) buildModel(key, name string, md *loader.ModelData) (Handle, error) {
	if len(md.Nodes) == 0 {
		return Nil, fmt.Errorf("model %q has no nodes", name)
	}

	// The hierarchy is checked before anything is registered.
	for i, n := range md.Nodes {
		if n.Parent >= i {
			return Nil, fmt.Errorf("model %q node %d: parent %d is not stored before it", name, i, n.Parent)
		}
		if n.Parent < 0 && i > 0 {
			return Nil, fmt.Errorf("model %q node %d: only node 0 may be the root", name, i)
		}
	}

	materials := make([]Handle, len(md.Materials))
	for i := range md.Materials {
		mat := &md.Materials[i]
		var h Handle
		var err error
		switch {
		case mat.Ref != "":
			h, err = r.load(joinRef(mat.BaseDir, mat.Ref), loadOptions{kind: KindMaterial})
		case key == "":
			// In-memory models own their materials outright.
			h, err = r.build(KindMaterial, "", mat.Name, mat)
		default:
			h, err = r.embedded(KindMaterial, fmt.Sprintf("%s#material/%d", key, i), mat.Name, mat)
		}
		if err != nil {
			return Nil, err
		}
		materials[i] = h
	}

	meshes := make([]*Mesh, len(md.Nodes))
	handles := make([]Handle, len(md.Nodes))
	for i, n := range md.Nodes {
		m := &Mesh{Local: n.Local, Material: Nil}
		if n.Material >= 0 && n.Material < len(materials) {
			m.Material = materials[n.Material]
		}
		if n.Mesh != nil {
			m.setGeometry(n.Mesh)
		}
		if n.Parent >= 0 {
			m.Parent = handles[n.Parent]
		}

		meshKey := ""
		if key != "" {
			meshKey = fmt.Sprintf("%s#mesh/%d", key, i)
		}
		h, err := r.register(m, KindMesh, meshKey, n.Name)
		if err != nil {
			return Nil, err
		}
		if n.Parent >= 0 {
			meshes[n.Parent].Children = append(meshes[n.Parent].Children, h)
		}
		meshes[i], handles[i] = m, h
	}

	model := &Model{Root: handles[0], Meshes: handles}
	h, err := r.register(model, KindModel, key, name)
	if err != nil {
		return Nil, err
	}
	for _, m := range meshes {
		m.Model = h
	}
	return h, nil
}

// embedded registers data that lives inside another asset's file under a derived key.
// Caller holds mu.
func (r *registry) embedded(kind Kind, key, name string, raw any) (Handle, error) {
	if h, ok := r.paths[key]; ok {
		return h, nil
	}
	h, err := r.build(kind, key, name, raw)
	if err != nil {
		return Nil, err
	}
	r.assets[h.Index()].header().embedded = true
	return h, nil
}

func joinRef(baseDir, ref string) string {
	ref = filepath.FromSlash(ref)
	if filepath.IsAbs(ref) || baseDir == "" {
		return ref
	}
	return filepath.Join(baseDir, ref)
}

func (r *registry) Create(kind Kind, name string, raw any) (Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return Nil, ErrClosed
	}
	return r.build(kind, "", name, raw)
}

// get validates a handle. Caller holds mu.
func (r *registry) get(h Handle) (Asset, error) {
	if h.IsNil() || h.Tag() != r.tag || int(h.Index()) >= len(r.assets) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidHandle, h)
	}
	return r.assets[h.Index()], nil
}

func (r *registry) Get(h Handle) (Asset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.get(h)
}

func getAs[T Asset](r *registry, h Handle, kind Kind) (T, error) {
	var zero T
	a, err := r.Get(h)
	if err != nil {
		return zero, err
	}
	t, ok := a.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s is a %s, not a %s", ErrKindMismatch, h, a.Header().Kind, kind)
	}
	return t, nil
}

func (r *registry) Texture(h Handle) (*Texture, error) {
	return getAs[*Texture](r, h, KindTexture)
}

func (r *registry) Shader(h Handle) (*Shader, error) {
	return getAs[*Shader](r, h, KindShader)
}

func (r *registry) Mesh(h Handle) (*Mesh, error) {
	return getAs[*Mesh](r, h, KindMesh)
}

func (r *registry) Model(h Handle) (*Model, error) {
	return getAs[*Model](r, h, KindModel)
}

func (r *registry) Material(h Handle) (*Material, error) {
	return getAs[*Material](r, h, KindMaterial)
}

func (r *registry) Lookup(path string) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.paths[r.normalize(path)]
	return h, ok
}

func (r *registry) List(kind Kind) []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Handle
	for _, a := range r.assets {
		if hdr := a.header(); hdr.Kind == kind {
			out = append(out, hdr.Handle)
		}
	}
	return out
}

func (r *registry) Reload(h Handle) error {
	r.mu.Lock()
	a, err := r.get(h)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	hdr := a.header()

	if hdr.Path == "" || hdr.embedded || (hdr.Kind != KindTexture && hdr.Kind != KindShader) {
		r.mu.Unlock()
		r.logger.Error("asset reload not supported", "handle", h, "kind", hdr.Kind, "path", hdr.Path)
		return fmt.Errorf("%w: %s %s", ErrReloadUnsupported, hdr.Kind, h)
	}

	err = r.reload(a)
	if err == nil {
		hdr.Revision++
		r.publish(event.CodeAssetReloaded, h, hdr.Kind)
		r.publish(event.CodeAssetChanged, h, hdr.Kind)
	}
	r.mu.Unlock()

	if err != nil {
		r.logger.Error("asset reload failed", "handle", h, "path", hdr.Path, "error", err)
		return fmt.Errorf("asset: failed to reload %s: %w", hdr.Path, err)
	}
	r.logger.Info("asset reloaded", "handle", h, "path", hdr.Path)
	return nil
}

// reload replaces a file-backed asset's contents in place. Caller holds mu.
func (r *registry) reload(a Asset) error {
	path, err := r.resolve(a.Header().Path)
	if err != nil {
		return err
	}

	switch a := a.(type) {
	case *Texture:
		td, err := r.loaders.Texture(path)
		if err != nil {
			return err
		}
		hdr := a.hdr
		*a = *newTexture(td)
		a.hdr = hdr
	case *Shader:
		sd, err := r.loaders.Shader(path)
		if err != nil {
			return err
		}
		hdr := a.hdr
		*a = *newShader(sd)
		a.hdr = hdr
	}
	return nil
}

func (r *registry) Touch(h Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, err := r.get(h)
	if err != nil {
		return err
	}
	hdr := a.header()
	hdr.Revision++
	r.publish(event.CodeAssetChanged, h, hdr.Kind)
	return nil
}

func (r *registry) AttachCallback(h Handle, fn Callback) (CallbackID, error) {
	if fn == nil {
		return 0, fmt.Errorf("asset: nil callback")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.get(h); err != nil {
		return 0, err
	}

	r.nextCallback++
	list, _ := r.callbacks.Get(h)
	next := make([]callback, len(list), len(list)+1)
	copy(next, list)
	r.callbacks.Put(h, append(next, callback{id: r.nextCallback, fn: fn}))
	return r.nextCallback, nil
}

func (r *registry) DetachCallback(h Handle, id CallbackID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	list, _ := r.callbacks.Get(h)
	for i, c := range list {
		if c.id != id {
			continue
		}
		if len(list) == 1 {
			r.callbacks.Del(h)
			return nil
		}
		next := make([]callback, 0, len(list)-1)
		next = append(next, list[:i]...)
		r.callbacks.Put(h, append(next, list[i+1:]...))
		return nil
	}
	return ErrUnknownCallback
}

// onFileChange runs on the watcher goroutine and only forwards to the bus.
func (r *registry) onFileChange(path string, kind watch.ChangeKind) {
	if kind != watch.ChangeModified {
		return
	}

	r.mu.RLock()
	h, ok := r.paths[r.normalize(path)]
	var k Kind
	if ok && !r.closed {
		k = r.assets[h.Index()].header().Kind
	} else {
		ok = false
	}
	r.mu.RUnlock()

	if ok {
		r.publish(event.CodeAssetFileModified, h, k)
	}
}

func (r *registry) onFileModified(ev event.Event) {
	h, _, ok := FromEvent(ev)
	if !ok || h.Tag() != r.tag {
		return
	}
	// Reload logs its own failures.
	_ = r.Reload(h)
}

type pendingCall struct {
	h  Handle
	fn Callback
}

// onChanged runs the callbacks of the changed asset and, for textures and shaders, those of
// every material that references it.
func (r *registry) onChanged(ev event.Event) {
	h, kind, ok := FromEvent(ev)
	if !ok || h.Tag() != r.tag {
		return
	}

	r.mu.RLock()
	var calls []pendingCall
	list, _ := r.callbacks.Get(h)
	for _, c := range list {
		calls = append(calls, pendingCall{h, c.fn})
	}
	if kind == KindTexture || kind == KindShader {
		for _, a := range r.assets {
			m, isMat := a.(*Material)
			if !isMat || !m.uses(h) {
				continue
			}
			list, _ := r.callbacks.Get(m.hdr.Handle)
			for _, c := range list {
				calls = append(calls, pendingCall{m.hdr.Handle, c.fn})
			}
		}
	}
	r.mu.RUnlock()

	for _, c := range calls {
		c.fn(c.h)
	}
}

func (r *registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.assets)
}

func (r *registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true

	for _, sub := range r.subs {
		_ = r.bus.Unsubscribe(sub)
	}
	r.subs = nil
	r.callbacks.Clear()
	r.logger.Debug("asset registry closed", "assets", len(r.assets))
	r.assets = nil
	r.paths = make(map[string]Handle)
}
