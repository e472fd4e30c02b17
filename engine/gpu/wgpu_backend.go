package gpu

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/Carmen-Shannon/oxy-world/common"
	"github.com/Carmen-Shannon/oxy-world/engine/asset"
	"github.com/Carmen-Shannon/oxy-world/engine/loader"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/kamstrup/intmap"
)

type wgpuBuffer struct {
	buf  *wgpu.Buffer
	size uint64
}

// wgpuBackend is the headless wgpu implementation of the Backend interface.
type wgpuBackend struct {
	mu *sync.Mutex

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	buffers   *intmap.Map[BufferHandle, wgpuBuffer]
	pipelines *intmap.Map[PipelineHandle, *wgpu.RenderPipeline]
	modules   map[string]*wgpu.ShaderModule
	next      uint32
	closed    bool

	forceFallbackAdapter bool
	powerPreference      wgpu.PowerPreference
	logger               *slog.Logger
}

var _ Backend = &wgpuBackend{}

// NewWGPUBackend requests an adapter and device without a surface. Presentation belongs to
// the window layer; this backend only owns the resources render objects point at.
//
// Parameters:
//   - options: functional options to configure the backend
//
// Returns:
//   - Backend: the backend
//   - error: error if no adapter or device is available
func NewWGPUBackend(options ...BackendBuilderOption) (Backend, error) {
	b := &wgpuBackend{
		mu:              &sync.Mutex{},
		buffers:         intmap.New[BufferHandle, wgpuBuffer](256),
		pipelines:       intmap.New[PipelineHandle, *wgpu.RenderPipeline](64),
		modules:         make(map[string]*wgpu.ShaderModule),
		powerPreference: wgpu.PowerPreferenceHighPerformance,
		logger:          slog.Default(),
	}
	for _, option := range options {
		option(b)
	}

	b.instance = wgpu.CreateInstance(nil)
	a, err := b.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: b.forceFallbackAdapter,
		PowerPreference:      b.powerPreference,
	})
	if err != nil {
		b.instance.Release()
		return nil, fmt.Errorf("gpu: failed to request adapter: %w", err)
	}
	b.adapter = a

	d, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "World Device",
	})
	if err != nil {
		a.Release()
		b.instance.Release()
		return nil, fmt.Errorf("gpu: failed to request device: %w", err)
	}
	b.device = d
	b.queue = d.GetQueue()

	b.logger.Info("gpu backend ready", "fallback", b.forceFallbackAdapter)
	return b, nil
}

func (b *wgpuBackend) nextID() uint32 {
	b.next++
	return b.next
}

// createBuffer allocates and optionally fills a buffer. Caller holds mu.
func (b *wgpuBackend) createBuffer(label string, size uint64, usage BufferUsage, data []byte) (BufferHandle, error) {
	if b.closed {
		return 0, ErrClosed
	}
	// Queue writes must be 4-byte aligned.
	size = (size + 3) &^ 3
	if size == 0 {
		size = 4
	}
	buf, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label:            label,
		Size:             size,
		Usage:            usage | wgpu.BufferUsageCopyDst,
		MappedAtCreation: false,
	})
	if err != nil {
		return 0, fmt.Errorf("gpu: failed to create buffer %q: %w", label, err)
	}
	if len(data) > 0 {
		if err := b.queue.WriteBuffer(buf, 0, data); err != nil {
			buf.Release()
			return 0, fmt.Errorf("gpu: failed to write buffer %q: %w", label, err)
		}
	}

	h := BufferHandle(b.nextID())
	b.buffers.Put(h, wgpuBuffer{buf: buf, size: size})
	return h, nil
}

func (b *wgpuBackend) BuildGeometry(mesh *asset.Mesh) (Geometry, error) {
	if mesh == nil || !mesh.Renderable() {
		return Geometry{}, ErrNotRenderable
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	label := mesh.Header().Name
	vb, err := b.createBuffer(label+" Vertex Buffer", uint64(len(mesh.Vertices))*loader.VertexSize, wgpu.BufferUsageVertex, common.SliceToBytes(mesh.Vertices))
	if err != nil {
		return Geometry{}, err
	}
	ib, err := b.createBuffer(label+" Index Buffer", uint64(len(mesh.Indices))*4, wgpu.BufferUsageIndex, common.SliceToBytes(mesh.Indices))
	if err != nil {
		b.release(vb)
		return Geometry{}, err
	}

	return Geometry{
		Vertex:      vb,
		Index:       ib,
		VertexCount: uint32(len(mesh.Vertices)),
		IndexCount:  uint32(len(mesh.Indices)),
	}, nil
}

// module compiles WGSL once per distinct source. Caller holds mu.
func (b *wgpuBackend) module(src ShaderSource) (*wgpu.ShaderModule, error) {
	if m, ok := b.modules[src.Code]; ok {
		return m, nil
	}
	m, err := b.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: src.Label,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: src.Code,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: failed to compile shader %q: %w", src.Label, err)
	}
	b.modules[src.Code] = m
	return m, nil
}

func (b *wgpuBackend) BuildMaterialPipeline(material *asset.Material, targets RenderTargetFormats, shaders ShaderSources) (PipelineHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, ErrClosed
	}

	shaders = shaders.withDefaults()
	vs, err := b.module(shaders.Vertex)
	if err != nil {
		return 0, err
	}
	fs, err := b.module(shaders.Fragment)
	if err != nil {
		return 0, err
	}

	label := "material"
	blend := &wgpu.BlendStateReplace
	if material != nil {
		label = material.Header().Name
		if material.BaseColor[3] < 1 {
			blend = &wgpu.BlendStateAlphaBlending
		}
	}

	samples := targets.SampleCount
	if samples == 0 {
		samples = 1
	}

	var depth *wgpu.DepthStencilState
	if targets.Depth != wgpu.TextureFormatUndefined {
		depth = &wgpu.DepthStencilState{
			Format:            targets.Depth,
			DepthWriteEnabled: true,
			DepthCompare:      wgpu.CompareFunctionLess,
			StencilFront: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
			StencilBack: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
		}
	}

	created, err := b.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label: label + " Render Pipeline",
		Vertex: wgpu.VertexState{
			Module:     vs,
			EntryPoint: shaders.Vertex.Entry,
			Buffers:    VertexLayouts(),
		},
		Fragment: &wgpu.FragmentState{
			Module:     fs,
			EntryPoint: shaders.Fragment.Entry,
			Targets: []wgpu.ColorTargetState{{
				Format:    targets.Color,
				Blend:     blend,
				WriteMask: wgpu.ColorWriteMaskAll,
			}},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  wgpu.PrimitiveTopologyTriangleList,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  wgpu.CullModeBack,
		},
		Multisample: wgpu.MultisampleState{
			Count: samples,
			Mask:  0xFFFFFFFF,
		},
		DepthStencil: depth,
	})
	if err != nil {
		return 0, fmt.Errorf("gpu: failed to create pipeline for %s: %w", label, err)
	}

	h := PipelineHandle(b.nextID())
	b.pipelines.Put(h, created)
	return h, nil
}

func (b *wgpuBackend) CreateBuffer(label string, size uint64, usage BufferUsage) (BufferHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.createBuffer(label, size, usage, nil)
}

func (b *wgpuBackend) UpdateBuffer(h BufferHandle, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}

	wb, ok := b.buffers.Get(h)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownBuffer, h)
	}
	if uint64(len(data)) > wb.size {
		return fmt.Errorf("%w: %d > %d", ErrBufferOverflow, len(data), wb.size)
	}
	if len(data)%4 != 0 {
		padded := make([]byte, (len(data)+3)&^3)
		copy(padded, data)
		data = padded
	}
	return b.queue.WriteBuffer(wb.buf, 0, data)
}

// release frees one buffer. Caller holds mu.
func (b *wgpuBackend) release(h BufferHandle) {
	if wb, ok := b.buffers.Get(h); ok {
		wb.buf.Release()
		b.buffers.Del(h)
	}
}

func (b *wgpuBackend) ReleaseBuffer(h BufferHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.release(h)
}

func (b *wgpuBackend) ReleaseGeometry(g Geometry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.release(g.Vertex)
	b.release(g.Index)
}

func (b *wgpuBackend) ReleasePipeline(h PipelineHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok := b.pipelines.Get(h); ok {
		p.Release()
		b.pipelines.Del(h)
	}
}

func (b *wgpuBackend) WaitIdle() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.device.Poll(true, nil)
}

func (b *wgpuBackend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.device.Poll(true, nil)

	b.buffers.ForEach(func(_ BufferHandle, wb wgpuBuffer) bool {
		wb.buf.Release()
		return true
	})
	b.buffers.Clear()
	b.pipelines.ForEach(func(_ PipelineHandle, p *wgpu.RenderPipeline) bool {
		p.Release()
		return true
	})
	b.pipelines.Clear()
	for _, m := range b.modules {
		m.Release()
	}
	b.modules = nil

	b.queue.Release()
	b.device.Release()
	b.adapter.Release()
	b.instance.Release()
	b.logger.Debug("gpu backend closed")
}
