package noop

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/andewx/lumenvk/hal"
)

// Per-primitive footprints used for the size query. Real drivers report
// vendor specific sizes; these only need to be deterministic.
const (
	asHeaderSize       = 256
	asBottomPerPrim    = 64
	asTopPerInstance   = 128
	asScratchPerPrim   = 32
	asScratchBase      = 128
	bvhLeafSize        = 4
	vertexComponentLen = 4
)

func (d *Device) AccelerationStructureBuildSizes(geom *hal.AccelerationStructureGeometry) (hal.AccelerationStructureSizes, error) {
	if !d.features.Enabled(hal.FeatureAccelerationStructure) {
		return hal.AccelerationStructureSizes{}, hal.ErrUnsupported
	}
	n := uint64(geom.PrimitiveCount)
	per := uint64(asBottomPerPrim)
	if geom.Type == hal.AccelerationStructureTopLevel {
		per = asTopPerInstance
	}
	scratch := asScratchBase + n*asScratchPerPrim
	return hal.AccelerationStructureSizes{
		StructureSize:     asHeaderSize + n*per,
		BuildScratchSize:  scratch,
		UpdateScratchSize: scratch / 2,
	}, nil
}

// Bounds is an axis aligned box.
type Bounds struct {
	Min, Max [3]float32
}

func emptyBounds() Bounds {
	inf := float32(math.Inf(1))
	return Bounds{Min: [3]float32{inf, inf, inf}, Max: [3]float32{-inf, -inf, -inf}}
}

func (b *Bounds) grow(p [3]float32) {
	for i := 0; i < 3; i++ {
		b.Min[i] = min(b.Min[i], p[i])
		b.Max[i] = max(b.Max[i], p[i])
	}
}

func (b *Bounds) union(o Bounds) {
	b.grow(o.Min)
	b.grow(o.Max)
}

func (b Bounds) centroid() [3]float32 {
	return [3]float32{(b.Min[0] + b.Max[0]) / 2, (b.Min[1] + b.Max[1]) / 2, (b.Min[2] + b.Max[2]) / 2}
}

type bvhNode struct {
	bounds      Bounds
	left, right int32
	first, n    int32
}

// AccelerationStructure is a bounding volume hierarchy over triangles
// (bottom level) or over instances of bottom-level structures (top level).
type AccelerationStructure struct {
	*object
	desc hal.AccelerationStructureDescriptor
	addr uint64

	primitives uint32
	bounds     Bounds
	nodes      []bvhNode
	builds     int
}

func (d *Device) CreateAccelerationStructure(desc *hal.AccelerationStructureDescriptor) (hal.AccelerationStructure, error) {
	if !d.features.Enabled(hal.FeatureAccelerationStructure) {
		return nil, hal.ErrUnsupported
	}
	buf, ok := desc.Buffer.(*Buffer)
	if !ok {
		return nil, fmt.Errorf("noop: acceleration structure on foreign buffer %T", desc.Buffer)
	}
	if buf.desc.Usage&hal.BufferUsageAccelerationStructureStorage == 0 {
		return nil, fmt.Errorf("noop: buffer %q lacks acceleration structure storage usage", buf.desc.Label)
	}
	if desc.Offset+desc.Size > buf.desc.Size {
		return nil, fmt.Errorf("noop: acceleration structure of %d bytes does not fit buffer %q", desc.Size, buf.desc.Label)
	}
	as := &AccelerationStructure{object: d.track("acceleration-structure"), desc: *desc, bounds: emptyBounds()}
	d.mu.Lock()
	as.addr = d.nextAddr
	d.nextAddr += 256
	d.structs[as.addr] = as
	d.mu.Unlock()
	return as, nil
}

func (a *AccelerationStructure) Destroy() {
	if !a.release() {
		return
	}
	a.dev.mu.Lock()
	delete(a.dev.structs, a.addr)
	a.dev.mu.Unlock()
}

func (a *AccelerationStructure) Type() hal.AccelerationStructureType { return a.desc.Type }
func (a *AccelerationStructure) DeviceAddress() uint64               { return a.addr }

// PrimitiveCount is the number of triangles or instances in the last build.
func (a *AccelerationStructure) PrimitiveCount() uint32 { return a.primitives }

// Bounds returns the root bounds of the last build.
func (a *AccelerationStructure) Bounds() Bounds { return a.bounds }

// Nodes returns the node count of the hierarchy.
func (a *AccelerationStructure) Nodes() int { return len(a.nodes) }

// Builds counts how many times the structure was built or updated.
func (a *AccelerationStructure) Builds() int { return a.builds }

func (d *Device) BuildAccelerationStructureHost(build *hal.AccelerationStructureBuild) error {
	if !d.features.Enabled(hal.FeatureAccelerationStructureHostCommands) {
		return hal.ErrUnsupported
	}
	d.count(func(s *Stats) { s.HostBuilds++ })
	return d.buildAccelerationStructure(build)
}

func (d *Device) buildAccelerationStructure(build *hal.AccelerationStructureBuild) error {
	dst, ok := build.Dst.(*AccelerationStructure)
	if !ok || dst == nil {
		return fmt.Errorf("noop: build into foreign structure %T", build.Dst)
	}
	if build.ScratchAddress == 0 {
		return fmt.Errorf("noop: build without scratch memory")
	}
	if _, err := d.resolve(build.ScratchAddress); err != nil {
		return err
	}
	geom := build.Geometry
	if geom.Type != dst.desc.Type {
		return fmt.Errorf("noop: %s geometry built into %s structure", geom.Type, dst.desc.Type)
	}

	var prims []Bounds
	var err error
	if geom.Type == hal.AccelerationStructureBottomLevel {
		prims, err = d.triangleBounds(geom)
	} else {
		prims, err = d.instanceBounds(geom)
	}
	if err != nil {
		return err
	}

	dst.primitives = uint32(len(prims))
	dst.nodes = buildBVH(prims)
	dst.bounds = emptyBounds()
	if len(dst.nodes) > 0 {
		dst.bounds = dst.nodes[0].bounds
	}
	dst.builds++
	return nil
}

func (d *Device) triangleBounds(geom *hal.AccelerationStructureGeometry) ([]Bounds, error) {
	if geom.VertexFormat != hal.FormatR32G32B32Sfloat {
		return nil, fmt.Errorf("noop: unsupported vertex format %d", geom.VertexFormat)
	}
	vb, err := d.resolve(geom.VertexAddress)
	if err != nil {
		return nil, err
	}
	ib, err := d.resolve(geom.IndexAddress)
	if err != nil {
		return nil, err
	}
	if uint64(len(ib)) < uint64(geom.PrimitiveCount)*12 {
		return nil, fmt.Errorf("noop: index buffer holds fewer than %d triangles", geom.PrimitiveCount)
	}
	xf := hal.IdentityTransform
	if geom.TransformAddress != 0 {
		tb, err := d.resolve(geom.TransformAddress)
		if err != nil {
			return nil, err
		}
		for i := range xf {
			xf[i] = readFloat(tb, i*4)
		}
	}

	out := make([]Bounds, geom.PrimitiveCount)
	for t := range out {
		b := emptyBounds()
		for k := 0; k < 3; k++ {
			idx := binary.LittleEndian.Uint32(ib[(t*3+k)*4:])
			if idx > geom.MaxVertex {
				return nil, fmt.Errorf("noop: index %d above max vertex %d", idx, geom.MaxVertex)
			}
			off := uint64(idx) * geom.VertexStride
			if off+3*vertexComponentLen > uint64(len(vb)) {
				return nil, fmt.Errorf("noop: vertex %d outside the vertex buffer", idx)
			}
			p := [3]float32{readFloat(vb, int(off)), readFloat(vb, int(off)+4), readFloat(vb, int(off)+8)}
			b.grow(transformPoint(xf, p))
		}
		out[t] = b
	}
	return out, nil
}

func (d *Device) instanceBounds(geom *hal.AccelerationStructureGeometry) ([]Bounds, error) {
	if geom.PrimitiveCount == 0 {
		return nil, nil
	}
	buf, err := d.resolve(geom.InstanceAddress)
	if err != nil {
		return nil, err
	}
	if uint64(len(buf)) < uint64(geom.PrimitiveCount)*hal.InstanceRecordSize {
		return nil, fmt.Errorf("noop: instance buffer holds fewer than %d records", geom.PrimitiveCount)
	}
	out := make([]Bounds, geom.PrimitiveCount)
	for i := range out {
		in := hal.DecodeInstance(buf[i*hal.InstanceRecordSize:])
		d.mu.Lock()
		blas, ok := d.structs[in.Reference]
		d.mu.Unlock()
		if !ok {
			return nil, fmt.Errorf("noop: instance %d references unknown structure %#x", i, in.Reference)
		}
		if blas.desc.Type != hal.AccelerationStructureBottomLevel {
			return nil, fmt.Errorf("noop: instance %d references a top-level structure", i)
		}
		b := emptyBounds()
		lo, hi := blas.bounds.Min, blas.bounds.Max
		for c := 0; c < 8; c++ {
			p := [3]float32{lo[0], lo[1], lo[2]}
			if c&1 != 0 {
				p[0] = hi[0]
			}
			if c&2 != 0 {
				p[1] = hi[1]
			}
			if c&4 != 0 {
				p[2] = hi[2]
			}
			b.grow(transformPoint(in.Transform, p))
		}
		out[i] = b
	}
	return out, nil
}

func readFloat(b []byte, off int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b[off:]))
}

func transformPoint(m [12]float32, p [3]float32) [3]float32 {
	return [3]float32{
		m[0]*p[0] + m[1]*p[1] + m[2]*p[2] + m[3],
		m[4]*p[0] + m[5]*p[1] + m[6]*p[2] + m[7],
		m[8]*p[0] + m[9]*p[1] + m[10]*p[2] + m[11],
	}
}

// buildBVH builds a median-split hierarchy; node 0 is the root.
func buildBVH(prims []Bounds) []bvhNode {
	if len(prims) == 0 {
		return nil
	}
	order := make([]int, len(prims))
	for i := range order {
		order[i] = i
	}
	nodes := make([]bvhNode, 0, 2*len(prims)/bvhLeafSize+1)
	var split func(first, n int) int32
	split = func(first, n int) int32 {
		b := emptyBounds()
		for _, p := range order[first : first+n] {
			b.union(prims[p])
		}
		idx := int32(len(nodes))
		nodes = append(nodes, bvhNode{bounds: b, left: -1, right: -1, first: int32(first), n: int32(n)})
		if n <= bvhLeafSize {
			return idx
		}
		axis := 0
		ext := [3]float32{b.Max[0] - b.Min[0], b.Max[1] - b.Min[1], b.Max[2] - b.Min[2]}
		if ext[1] > ext[axis] {
			axis = 1
		}
		if ext[2] > ext[axis] {
			axis = 2
		}
		sub := order[first : first+n]
		sort.Slice(sub, func(i, j int) bool {
			return prims[sub[i]].centroid()[axis] < prims[sub[j]].centroid()[axis]
		})
		half := n / 2
		l := split(first, half)
		r := split(first+half, n-half)
		nodes[idx].left, nodes[idx].right, nodes[idx].n = l, r, 0
		return idx
	}
	split(0, len(prims))
	return nodes
}
