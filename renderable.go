package lumenvk

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	lin "github.com/xlab/linmath"

	"github.com/andewx/lumenvk/hal"
)

// Vertex is the interleaved vertex layout every pipeline consumes.
type Vertex struct {
	Position [3]float32
	Normal   [3]float32
	UV       [2]float32
	Color    [3]float32
}

// VertexStride is the packed size of a Vertex.
const VertexStride = 44

func vertexAttributes() []hal.VertexAttribute {
	return []hal.VertexAttribute{
		{Location: 0, Format: hal.FormatR32G32B32Sfloat, Offset: 0},
		{Location: 1, Format: hal.FormatR32G32B32Sfloat, Offset: 12},
		{Location: 2, Format: hal.FormatR32G32Sfloat, Offset: 24},
		{Location: 3, Format: hal.FormatR32G32B32Sfloat, Offset: 32},
	}
}

// Mesh is decoded indexed triangle geometry.
type Mesh struct {
	Vertices []Vertex
	Indices  []uint32
}

func (m *Mesh) TriangleCount() uint32 { return uint32(len(m.Indices) / 3) }

func (m *Mesh) vertexBytes() []byte {
	out := make([]byte, len(m.Vertices)*VertexStride)
	for i, v := range m.Vertices {
		o := out[i*VertexStride:]
		fs := [11]float32{
			v.Position[0], v.Position[1], v.Position[2],
			v.Normal[0], v.Normal[1], v.Normal[2],
			v.UV[0], v.UV[1],
			v.Color[0], v.Color[1], v.Color[2],
		}
		for j, f := range fs {
			binary.LittleEndian.PutUint32(o[j*4:], math.Float32bits(f))
		}
	}
	return out
}

func (m *Mesh) indexBytes() []byte {
	out := make([]byte, len(m.Indices)*4)
	for i, idx := range m.Indices {
		binary.LittleEndian.PutUint32(out[i*4:], idx)
	}
	return out
}

func (m *Mesh) validate() error {
	if len(m.Vertices) == 0 || len(m.Indices) == 0 {
		return errors.New("empty mesh")
	}
	if len(m.Indices)%3 != 0 {
		return fmt.Errorf("%d indices is not a triangle list", len(m.Indices))
	}
	for _, idx := range m.Indices {
		if int(idx) >= len(m.Vertices) {
			return fmt.Errorf("index %d out of range of %d vertices", idx, len(m.Vertices))
		}
	}
	return nil
}

type meshBuffers struct {
	vertices *Buffer
	indices  *Buffer
	count    uint32
	verts    uint32
}

// Renderable is a drawable object: meshes, textures, a shader program and a
// model matrix. The engine uploads it with LoadRenderable and owns its GPU
// objects until it is removed or the engine shuts down.
type Renderable struct {
	ID       uuid.UUID
	Name     string
	Meshes   []Mesh
	Textures []TextureData
	Program  ShaderProgram
	Model    lin.Mat4x4

	dirty  bool
	loaded bool

	// gpu holds buffers, textures and acceleration structures; pipelines
	// holds the descriptor set and pipeline, which a full recreation
	// replaces.
	gpu       DeletionQueue
	pipelines DeletionQueue

	meshes    []meshBuffers
	uniform   *Buffer
	transform *Buffer
	textures  []*Texture
	blas      []*AccelerationStructure
	set       *DescriptorSet
	pipeline  *Pipeline
}

func NewRenderable(name string, program ShaderProgram, meshes ...Mesh) *Renderable {
	return &Renderable{
		ID:      uuid.New(),
		Name:    name,
		Meshes:  meshes,
		Program: program,
		Model:   identity(),
		dirty:   true,
	}
}

// SetModel replaces the model matrix and marks the renderable dirty.
func (r *Renderable) SetModel(m lin.Mat4x4) {
	r.Model = m
	r.MarkDirty()
}

// MarkDirty schedules a rebuild of the bottom-level structures under the
// on-change policy.
func (r *Renderable) MarkDirty()  { r.dirty = true }
func (r *Renderable) Dirty() bool { return r.dirty }

func (r *Renderable) Loaded() bool                  { return r.loaded }
func (r *Renderable) DescriptorSet() *DescriptorSet { return r.set }
func (r *Renderable) Pipeline() *Pipeline           { return r.pipeline }

// GPUTextures are the uploaded textures, in the order of Textures.
func (r *Renderable) GPUTextures() []*Texture                { return r.textures }
func (r *Renderable) BottomLevels() []*AccelerationStructure { return r.blas }

// TriangleCount sums the triangles of every mesh.
func (r *Renderable) TriangleCount() uint32 {
	var n uint32
	for i := range r.Meshes {
		n += r.Meshes[i].TriangleCount()
	}
	return n
}

func (r *Renderable) label(part string) string {
	return fmt.Sprintf("%s/%s", r.Name, part)
}

// upload creates the geometry, uniform and texture objects. With ray
// tracing the geometry buffers carry device addresses and a transform
// buffer is added for the bottom-level builds.
func (r *Renderable) upload(ctx *GraphicsContext, opts TextureOptions, rayTracing bool) error {
	geomUsage := hal.BufferUsage(0)
	if rayTracing {
		geomUsage = hal.BufferUsageShaderDeviceAddress | hal.BufferUsageAccelerationStructureInput
	}
	for i := range r.Meshes {
		m := &r.Meshes[i]
		if err := m.validate(); err != nil {
			return fmt.Errorf("renderable %q mesh %d: %w", r.Name, i, err)
		}
		vb := NewBuffer(ctx, r.label(fmt.Sprintf("mesh%d/vertices", i)), hal.BufferUsageVertex|geomUsage, false)
		r.gpu.PushResource(vb)
		vb.SetData(m.vertexBytes())
		if err := vb.Upload(); err != nil {
			return err
		}
		ib := NewBuffer(ctx, r.label(fmt.Sprintf("mesh%d/indices", i)), hal.BufferUsageIndex|geomUsage, false)
		r.gpu.PushResource(ib)
		ib.SetData(m.indexBytes())
		if err := ib.Upload(); err != nil {
			return err
		}
		r.meshes = append(r.meshes, meshBuffers{vertices: vb, indices: ib, count: uint32(len(m.Indices)), verts: uint32(len(m.Vertices))})
	}

	r.uniform = NewBuffer(ctx, r.label("uniform"), hal.BufferUsageUniform, true)
	r.gpu.PushResource(r.uniform)
	r.uniform.SetData(make([]byte, UniformBlockSize))
	if err := r.uniform.Upload(); err != nil {
		return err
	}

	for i, td := range r.Textures {
		tex := NewTexture(ctx, r.label(fmt.Sprintf("texture%d", i)), opts)
		r.gpu.PushResource(tex)
		if err := tex.SetPixels(td); err != nil {
			return err
		}
		if err := tex.Upload(); err != nil {
			return err
		}
		r.textures = append(r.textures, tex)
	}

	if rayTracing {
		r.transform = NewBuffer(ctx, r.label("transform"), geomUsage, true)
		r.gpu.PushResource(r.transform)
		r.transform.SetData(r.transformBytes())
		if err := r.transform.Upload(); err != nil {
			return err
		}
		for i := range r.meshes {
			as := NewAccelerationStructure(r.label(fmt.Sprintf("mesh%d/blas", i)), hal.AccelerationStructureBottomLevel)
			r.gpu.PushResource(as)
			r.blas = append(r.blas, as)
		}
		r.dirty = true
	}
	return nil
}

func (r *Renderable) transformBytes() []byte {
	t := rowMajor3x4(&r.Model)
	out := make([]byte, transformSize)
	for i, f := range t {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(f))
	}
	return out
}

// bindings lists the descriptor slots: the uniform block, one sampler per
// texture and, with ray tracing, the top-level structure last.
func (r *Renderable) bindings(tlas *AccelerationStructure) []Binding {
	bs := []Binding{{Slot: 0, Type: hal.DescriptorTypeUniformBuffer, Stages: hal.ShaderStageVertex | hal.ShaderStageFragment, Resource: r.uniform}}
	for _, t := range r.textures {
		bs = append(bs, Binding{Slot: uint32(len(bs)), Type: hal.DescriptorTypeCombinedImageSampler, Stages: hal.ShaderStageFragment, Resource: t})
	}
	if tlas != nil {
		bs = append(bs, Binding{Slot: uint32(len(bs)), Type: hal.DescriptorTypeAccelerationStructure, Stages: hal.ShaderStageFragment, Resource: tlas})
	}
	return bs
}

// accelSlot is the descriptor slot of the top-level structure.
func (r *Renderable) accelSlot() uint32 { return uint32(1 + len(r.textures)) }

// buildPipeline creates the descriptor set and pipeline against pass. The
// previous ones, if any, are released first.
func (r *Renderable) buildPipeline(ctx *GraphicsContext, pass *RenderPass, tlas *AccelerationStructure) (err error) {
	r.pipelines.Flush()
	r.set, err = NewDescriptorSet(ctx, r.label("descriptors"), r.bindings(tlas))
	if err != nil {
		return err
	}
	set := r.set
	r.pipelines.Push(func() {
		set.Destroy()
		r.set = nil
	})
	r.pipeline, err = NewPipeline(ctx, r.label("pipeline"), pass, r.set, r.Program)
	if err != nil {
		return err
	}
	p := r.pipeline
	r.pipelines.Push(func() {
		p.Destroy()
		r.pipeline = nil
	})
	return nil
}

// geometry returns the bottom-level build requests, one per mesh.
func (r *Renderable) geometry() []BottomLevel {
	out := make([]BottomLevel, len(r.blas))
	for i, as := range r.blas {
		m := r.meshes[i]
		out[i] = BottomLevel{Target: as, Geometry: TriangleGeometry{
			Vertices:    m.vertices,
			Indices:     m.indices,
			Transform:   r.transform,
			Stride:      VertexStride,
			VertexCount: m.verts,
		}}
	}
	return out
}

// refreshTransform writes the model matrix to the transform buffer.
func (r *Renderable) refreshTransform() error {
	if r.transform == nil {
		return nil
	}
	return r.transform.Update(r.transformBytes())
}

func (r *Renderable) writeUniform(cam *Camera) error {
	return r.uniform.Update(cam.UniformBlock(&r.Model))
}

func (r *Renderable) record(cb hal.CommandBuffer) {
	if r.pipeline == nil || r.set == nil {
		return
	}
	cb.BindPipeline(r.pipeline.Handle())
	cb.BindDescriptorSets(r.pipeline.Layout(), 0, []hal.DescriptorSet{r.set.Handle()})
	for _, m := range r.meshes {
		cb.BindVertexBuffers(0, []hal.Buffer{m.vertices.Handle()}, []uint64{0})
		cb.BindIndexBuffer(m.indices.Handle(), 0, hal.IndexTypeUint32)
		cb.DrawIndexed(m.count, 1, 0, 0, 0)
	}
}

// Destroy releases every GPU object of the renderable, pipeline first. The
// renderable can be loaded again afterwards.
func (r *Renderable) Destroy() {
	r.pipelines.Flush()
	r.gpu.Flush()
	r.meshes, r.textures, r.blas = nil, nil, nil
	r.uniform, r.transform = nil, nil
	r.loaded = false
}
