package lumenvk

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"

	"github.com/andewx/lumenvk/hal"
)

const (
	accelBuildFlags = hal.BuildPreferFastTrace | hal.BuildAllowUpdate
	instanceMask    = 0xFF
	// transformSize is a row-major 3x4 float matrix.
	transformSize = 48
)

// AccelerationStructure is a structure handle with the buffer backing it.
// The buffer is kept across rebuilds while the queried size fits.
type AccelerationStructure struct {
	resource
	kind       hal.AccelerationStructureType
	buffer     hal.Buffer
	handle     hal.AccelerationStructure
	capacity   uint64
	sizes      hal.AccelerationStructureSizes
	primitives uint32
}

func NewAccelerationStructure(name string, kind hal.AccelerationStructureType) *AccelerationStructure {
	return &AccelerationStructure{resource: resource{name: name}, kind: kind}
}

func (a *AccelerationStructure) Handle() hal.AccelerationStructure     { return a.handle }
func (a *AccelerationStructure) Type() hal.AccelerationStructureType   { return a.kind }
func (a *AccelerationStructure) Sizes() hal.AccelerationStructureSizes { return a.sizes }

// PrimitiveCount is the triangle or instance count of the last build.
func (a *AccelerationStructure) PrimitiveCount() uint32 { return a.primitives }

func (a *AccelerationStructure) DeviceAddress() uint64 {
	if a.handle == nil {
		return 0
	}
	return a.handle.DeviceAddress()
}

// TriangleGeometry is the input of a bottom-level build: uint32 indexed
// triangles over vertices whose first 12 bytes are an R32G32B32 position.
type TriangleGeometry struct {
	Vertices    *Buffer
	Indices     *Buffer
	Transform   *Buffer // optional 3x4 row-major matrix
	Stride      uint64
	VertexCount uint32
}

func (g TriangleGeometry) describe() (hal.AccelerationStructureGeometry, error) {
	geom := hal.AccelerationStructureGeometry{
		Type:         hal.AccelerationStructureBottomLevel,
		Flags:        accelBuildFlags,
		VertexFormat: hal.FormatR32G32B32Sfloat,
		VertexStride: g.Stride,
	}
	if g.Vertices == nil || g.Indices == nil {
		return geom, errors.New("triangle geometry needs vertex and index buffers")
	}
	geom.VertexAddress = g.Vertices.DeviceAddress()
	geom.IndexAddress = g.Indices.DeviceAddress()
	if geom.VertexAddress == 0 || geom.IndexAddress == 0 {
		return geom, fmt.Errorf("geometry buffers %q and %q have no device address", g.Vertices.Name(), g.Indices.Name())
	}
	if g.Transform != nil {
		geom.TransformAddress = g.Transform.DeviceAddress()
	}
	if g.VertexCount > 0 {
		geom.MaxVertex = g.VertexCount - 1
	}
	geom.PrimitiveCount = uint32(g.Indices.Size() / 12)
	return geom, nil
}

// BuildQuery is the result of the size query for one geometry.
type BuildQuery struct {
	Geometry hal.AccelerationStructureGeometry
	Sizes    hal.AccelerationStructureSizes
}

func (q BuildQuery) PrimitiveCount() uint32 { return q.Geometry.PrimitiveCount }

// BottomLevel is one bottom-level build request.
type BottomLevel struct {
	Target   *AccelerationStructure
	Geometry TriangleGeometry
}

type pendingBuild struct {
	as      *AccelerationStructure
	query   BuildQuery
	scratch hal.Buffer
	build   hal.AccelerationStructureBuild
}

// AccelerationStructureBuilder runs the query then build protocol. Builds go
// through the host when the device allows it, spread over a worker pool, and
// through a single-time command buffer otherwise.
type AccelerationStructureBuilder struct {
	ctx    *GraphicsContext
	policy RebuildPolicy
	host   bool
	pool   worker.DynamicWorkerPool
	tlas   *AccelerationStructure
}

// NewAccelerationStructureBuilder fails with ErrFeatureUnsupported when the
// ray tracing group was not negotiated.
func NewAccelerationStructureBuilder(ctx *GraphicsContext, policy RebuildPolicy) (*AccelerationStructureBuilder, error) {
	if !ctx.Enabled(GroupRayTracing) {
		return nil, fmt.Errorf("%w: %s", ErrFeatureUnsupported, GroupRayTracing)
	}
	b := &AccelerationStructureBuilder{
		ctx:    ctx,
		policy: policy,
		host:   ctx.Features.Enabled(hal.FeatureAccelerationStructureHostCommands),
		tlas:   NewAccelerationStructure("tlas", hal.AccelerationStructureTopLevel),
	}
	if b.host {
		b.pool = worker.NewDynamicWorkerPool(runtime.NumCPU(), 256, 1*time.Second)
	}
	Logger().Info("acceleration structure builder ready", "host-builds", b.host, "policy", policy)
	return b, nil
}

func (b *AccelerationStructureBuilder) Policy() RebuildPolicy { return b.policy }

// HostBuilds reports whether builds run on the CPU.
func (b *AccelerationStructureBuilder) HostBuilds() bool { return b.host }

// TopLevel is the top-level structure, unbuilt until the first BuildTopLevel.
func (b *AccelerationStructureBuilder) TopLevel() *AccelerationStructure { return b.tlas }

// Query asks the device for the structure and scratch sizes of geom.
func (b *AccelerationStructureBuilder) Query(geom hal.AccelerationStructureGeometry) (BuildQuery, error) {
	sizes, err := b.ctx.Device.AccelerationStructureBuildSizes(&geom)
	if err != nil {
		return BuildQuery{}, fmt.Errorf("query %s build sizes: %w", geom.Type, err)
	}
	return BuildQuery{Geometry: geom, Sizes: sizes}, nil
}

// BuildBottomLevel builds one bottom-level structure.
func (b *AccelerationStructureBuilder) BuildBottomLevel(as *AccelerationStructure, geom TriangleGeometry) error {
	return b.BuildBottomLevels([]BottomLevel{{Target: as, Geometry: geom}})
}

// BuildBottomLevels queries and allocates every target in order, then
// builds them all. Allocation stays on the calling goroutine; only host
// builds run on the pool.
func (b *AccelerationStructureBuilder) BuildBottomLevels(levels []BottomLevel) error {
	if len(levels) == 0 {
		return nil
	}
	pending := make([]*pendingBuild, 0, len(levels))
	defer func() {
		for _, p := range pending {
			p.scratch.Destroy()
		}
	}()
	for _, l := range levels {
		geom, err := l.Geometry.describe()
		if err != nil {
			return fmt.Errorf("bottom level %q: %w", l.Target.Name(), err)
		}
		q, err := b.Query(geom)
		if err != nil {
			return err
		}
		p, err := b.prepare(l.Target, q)
		if err != nil {
			return err
		}
		pending = append(pending, p)
	}
	if err := b.run(pending); err != nil {
		return err
	}
	for _, p := range pending {
		p.finish()
	}
	return nil
}

// BuildTopLevel rebuilds the top-level structure over blas. It reports
// replaced when the structure handle changed, in which case descriptor sets
// referencing the old one must be rebound.
func (b *AccelerationStructureBuilder) BuildTopLevel(blas []*AccelerationStructure) (replaced bool, err error) {
	n := len(blas)
	records := make([]byte, max(n, 1)*hal.InstanceRecordSize)
	for i, bl := range blas {
		in := hal.AccelerationStructureInstance{
			Transform:   hal.IdentityTransform,
			CustomIndex: uint32(i),
			Mask:        instanceMask,
			Flags:       hal.GeometryInstanceTriangleCullDisable,
			Reference:   bl.DeviceAddress(),
		}
		in.Encode(records[i*hal.InstanceRecordSize:])
	}
	instances, err := b.ctx.Device.CreateBuffer(&hal.BufferDescriptor{
		Label:  "tlas/instances",
		Size:   uint64(len(records)),
		Usage:  hal.BufferUsageShaderDeviceAddress | hal.BufferUsageAccelerationStructureInput,
		Memory: hal.MemoryHostVisible | hal.MemoryHostCoherent,
	})
	if err != nil {
		return false, fmt.Errorf("create instance buffer: %w", err)
	}
	defer instances.Destroy()
	if err := instances.Write(0, records); err != nil {
		return false, err
	}

	q, err := b.Query(hal.AccelerationStructureGeometry{
		Type:            hal.AccelerationStructureTopLevel,
		Flags:           accelBuildFlags,
		InstanceAddress: instances.DeviceAddress(),
		PrimitiveCount:  uint32(n),
	})
	if err != nil {
		return false, err
	}
	old := b.tlas.Handle()
	p, err := b.prepare(b.tlas, q)
	if err != nil {
		return false, err
	}
	defer p.scratch.Destroy()
	if err := b.run([]*pendingBuild{p}); err != nil {
		return false, err
	}
	p.finish()
	return old != b.tlas.Handle(), nil
}

// prepare makes sure as has room for q and allocates its scratch buffer.
func (b *AccelerationStructureBuilder) prepare(as *AccelerationStructure, q BuildQuery) (*pendingBuild, error) {
	if as.destroyed() {
		return nil, fmt.Errorf("build %q: %w", as.name, ErrDestroyed)
	}
	dev := b.ctx.Device
	if as.handle == nil || as.capacity < q.Sizes.StructureSize {
		as.release(false)
		buf, err := dev.CreateBuffer(&hal.BufferDescriptor{
			Label:  as.name,
			Size:   q.Sizes.StructureSize,
			Usage:  hal.BufferUsageAccelerationStructureStorage | hal.BufferUsageShaderDeviceAddress,
			Memory: hal.MemoryDeviceLocal,
		})
		if err != nil {
			return nil, fmt.Errorf("create %q storage: %w", as.name, err)
		}
		as.buffer = buf
		as.deletion.Push(func() {
			buf.Destroy()
			as.buffer = nil
		})
		h, err := dev.CreateAccelerationStructure(&hal.AccelerationStructureDescriptor{
			Type:   as.kind,
			Buffer: buf,
			Size:   q.Sizes.StructureSize,
		})
		if err != nil {
			return nil, fmt.Errorf("create %q: %w", as.name, err)
		}
		as.handle = h
		as.deletion.Push(func() {
			h.Destroy()
			as.handle = nil
			as.capacity = 0
		})
		as.capacity = q.Sizes.StructureSize
		as.set(StatusCreated)
		Logger().Debug("acceleration structure allocated", "name", as.name, "type", as.kind, "size", as.capacity)
	}

	scratch, err := dev.CreateBuffer(&hal.BufferDescriptor{
		Label:  as.name + "/scratch",
		Size:   max(q.Sizes.BuildScratchSize, 1),
		Usage:  hal.BufferUsageStorage | hal.BufferUsageShaderDeviceAddress,
		Memory: hal.MemoryDeviceLocal,
	})
	if err != nil {
		return nil, fmt.Errorf("create %q scratch: %w", as.name, err)
	}
	p := &pendingBuild{as: as, query: q, scratch: scratch}
	p.build = hal.AccelerationStructureBuild{
		Mode:           hal.BuildModeBuild,
		Geometry:       &p.query.Geometry,
		Dst:            as.handle,
		ScratchAddress: scratch.DeviceAddress(),
	}
	return p, nil
}

func (p *pendingBuild) finish() {
	p.as.sizes = p.query.Sizes
	p.as.primitives = p.query.PrimitiveCount()
	p.as.set(StatusInVRAM)
}

// run executes the builds. A host build refused with ErrUnsupported falls
// back to recording on a command buffer.
func (b *AccelerationStructureBuilder) run(pending []*pendingBuild) error {
	if b.host {
		err := b.runHost(pending)
		if !errors.Is(err, hal.ErrUnsupported) {
			return err
		}
		Logger().Info("host acceleration structure builds refused, using command buffers")
		b.host = false
		b.stopPool()
	}
	return b.ctx.SingleTimeCommands(func(cb hal.CommandBuffer) {
		for _, p := range pending {
			cb.BuildAccelerationStructure(&p.build)
		}
	})
}

func (b *AccelerationStructureBuilder) runHost(pending []*pendingBuild) error {
	if len(pending) == 1 || b.pool == nil {
		for _, p := range pending {
			if err := b.ctx.Device.BuildAccelerationStructureHost(&p.build); err != nil {
				return err
			}
		}
		return nil
	}
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for i, p := range pending {
		wg.Add(1)
		build := &p.build
		b.pool.SubmitTask(worker.Task{
			ID: i,
			Do: func() (any, error) {
				defer wg.Done()
				if err := b.ctx.Device.BuildAccelerationStructureHost(build); err != nil {
					mu.Lock()
					errs = append(errs, err)
					mu.Unlock()
					return nil, err
				}
				return nil, nil
			},
		})
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Destroy releases the top-level structure. Bottom-level structures belong
// to their renderables.
func (b *AccelerationStructureBuilder) Destroy() {
	b.stopPool()
	b.tlas.Destroy()
}

func (b *AccelerationStructureBuilder) stopPool() {
	if b.pool != nil {
		b.pool.Stop()
		b.pool = nil
	}
}
