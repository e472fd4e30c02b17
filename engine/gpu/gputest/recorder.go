// Package gputest provides an in-memory gpu.Backend that records every call.
package gputest

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-world/common"
	"github.com/Carmen-Shannon/oxy-world/engine/asset"
	"github.com/Carmen-Shannon/oxy-world/engine/gpu"
)

// Operation names recorded in Call.Op.
const (
	OpBuildGeometry   = "BuildGeometry"
	OpBuildPipeline   = "BuildMaterialPipeline"
	OpCreateBuffer    = "CreateBuffer"
	OpUpdateBuffer    = "UpdateBuffer"
	OpReleaseBuffer   = "ReleaseBuffer"
	OpReleasePipeline = "ReleasePipeline"
	OpWaitIdle        = "WaitIdle"
)

// Call is one recorded backend call.
type Call struct {
	Op     string
	Label  string
	Handle uint32
	Size   int
}

// Pipeline is what a recorded pipeline was built from.
type Pipeline struct {
	Material asset.Handle
	Targets  gpu.RenderTargetFormats
	Shaders  gpu.ShaderSources
}

// Recorder implements gpu.Backend in memory. Buffers keep their last written bytes.
// Set FailGeometry or FailPipeline to make the corresponding build return that error.
type Recorder struct {
	mu sync.Mutex

	calls     []Call
	buffers   map[gpu.BufferHandle][]byte
	pipelines map[gpu.PipelineHandle]Pipeline
	next      uint32
	closed    bool

	FailGeometry error
	FailPipeline error
}

var _ gpu.Backend = &Recorder{}

// New returns an empty Recorder.
func New() *Recorder {
	return &Recorder{
		buffers:   make(map[gpu.BufferHandle][]byte),
		pipelines: make(map[gpu.PipelineHandle]Pipeline),
	}
}

func (r *Recorder) record(c Call) {
	r.calls = append(r.calls, c)
}

func (r *Recorder) newBuffer(label string, data []byte) gpu.BufferHandle {
	r.next++
	h := gpu.BufferHandle(r.next)
	buf := make([]byte, len(data))
	copy(buf, data)
	r.buffers[h] = buf
	r.record(Call{Op: OpCreateBuffer, Label: label, Handle: uint32(h), Size: len(data)})
	return h
}

func (r *Recorder) BuildGeometry(mesh *asset.Mesh) (gpu.Geometry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return gpu.Geometry{}, gpu.ErrClosed
	}
	if mesh == nil || !mesh.Renderable() {
		return gpu.Geometry{}, gpu.ErrNotRenderable
	}
	if r.FailGeometry != nil {
		return gpu.Geometry{}, r.FailGeometry
	}

	name := mesh.Header().Name
	r.record(Call{Op: OpBuildGeometry, Label: name, Handle: uint32(mesh.Header().Handle)})
	return gpu.Geometry{
		Vertex:      r.newBuffer(name+" Vertex Buffer", common.SliceToBytes(mesh.Vertices)),
		Index:       r.newBuffer(name+" Index Buffer", common.SliceToBytes(mesh.Indices)),
		VertexCount: uint32(len(mesh.Vertices)),
		IndexCount:  uint32(len(mesh.Indices)),
	}, nil
}

func (r *Recorder) BuildMaterialPipeline(material *asset.Material, targets gpu.RenderTargetFormats, shaders gpu.ShaderSources) (gpu.PipelineHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, gpu.ErrClosed
	}
	if r.FailPipeline != nil {
		return 0, r.FailPipeline
	}

	var mh asset.Handle
	label := "material"
	if material != nil {
		mh = material.Header().Handle
		label = material.Header().Name
	}
	r.next++
	h := gpu.PipelineHandle(r.next)
	r.pipelines[h] = Pipeline{Material: mh, Targets: targets, Shaders: shaders}
	r.record(Call{Op: OpBuildPipeline, Label: label, Handle: uint32(h)})
	return h, nil
}

func (r *Recorder) CreateBuffer(label string, size uint64, _ gpu.BufferUsage) (gpu.BufferHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, gpu.ErrClosed
	}
	return r.newBuffer(label, make([]byte, size)), nil
}

func (r *Recorder) UpdateBuffer(h gpu.BufferHandle, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return gpu.ErrClosed
	}

	buf, ok := r.buffers[h]
	if !ok {
		return gpu.ErrUnknownBuffer
	}
	if len(data) > len(buf) {
		return gpu.ErrBufferOverflow
	}
	copy(buf, data)
	r.record(Call{Op: OpUpdateBuffer, Handle: uint32(h), Size: len(data)})
	return nil
}

func (r *Recorder) ReleaseBuffer(h gpu.BufferHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.buffers[h]; ok {
		delete(r.buffers, h)
		r.record(Call{Op: OpReleaseBuffer, Handle: uint32(h)})
	}
}

func (r *Recorder) ReleaseGeometry(g gpu.Geometry) {
	r.ReleaseBuffer(g.Vertex)
	r.ReleaseBuffer(g.Index)
}

func (r *Recorder) ReleasePipeline(h gpu.PipelineHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pipelines[h]; ok {
		delete(r.pipelines, h)
		r.record(Call{Op: OpReleasePipeline, Handle: uint32(h)})
	}
}

func (r *Recorder) WaitIdle() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(Call{Op: OpWaitIdle})
}

func (r *Recorder) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.buffers = make(map[gpu.BufferHandle][]byte)
	r.pipelines = make(map[gpu.PipelineHandle]Pipeline)
}

// Calls returns a copy of the recorded calls.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Ops returns the recorded operation names in call order.
func (r *Recorder) Ops() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ops := make([]string, len(r.calls))
	for i, c := range r.calls {
		ops[i] = c.Op
	}
	return ops
}

// Count returns how many times op was called.
func (r *Recorder) Count(op string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Reset forgets the recorded calls but keeps live resources.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

// Data returns a copy of a live buffer's contents.
func (r *Recorder) Data(h gpu.BufferHandle) ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	buf, ok := r.buffers[h]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), buf...), true
}

// Pipeline returns what a live pipeline was built from.
func (r *Recorder) Pipeline(h gpu.PipelineHandle) (Pipeline, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pipelines[h]
	return p, ok
}

// LiveBuffers returns the number of buffers not yet released.
func (r *Recorder) LiveBuffers() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buffers)
}

// LivePipelines returns the number of pipelines not yet released.
func (r *Recorder) LivePipelines() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pipelines)
}
