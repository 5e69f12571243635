package hal

import (
	"encoding/binary"
	"math"
)

type AccelerationStructureType uint32

const (
	AccelerationStructureTopLevel    AccelerationStructureType = 0
	AccelerationStructureBottomLevel AccelerationStructureType = 1
)

func (t AccelerationStructureType) String() string {
	if t == AccelerationStructureTopLevel {
		return "top-level"
	}
	return "bottom-level"
}

type BuildFlags uint32

const (
	BuildAllowUpdate     BuildFlags = 0x00000001
	BuildPreferFastTrace BuildFlags = 0x00000004
	BuildPreferFastBuild BuildFlags = 0x00000008
)

type BuildMode uint32

const (
	BuildModeBuild  BuildMode = 0
	BuildModeUpdate BuildMode = 1
)

// AccelerationStructureGeometry describes the input of a build. Bottom-level
// geometry is an indexed triangle list with uint32 indices; top-level
// geometry is InstanceCount packed instance records at InstanceAddress.
type AccelerationStructureGeometry struct {
	Type  AccelerationStructureType
	Flags BuildFlags

	VertexFormat     Format
	VertexStride     uint64
	MaxVertex        uint32
	VertexAddress    uint64
	IndexAddress     uint64
	TransformAddress uint64

	InstanceAddress uint64

	// PrimitiveCount is the triangle count (bottom level) or the instance
	// count (top level).
	PrimitiveCount uint32
}

type AccelerationStructureSizes struct {
	StructureSize     uint64
	BuildScratchSize  uint64
	UpdateScratchSize uint64
}

type AccelerationStructureDescriptor struct {
	Type   AccelerationStructureType
	Buffer Buffer
	Offset uint64
	Size   uint64
}

type AccelerationStructure interface {
	Resource
	Type() AccelerationStructureType
	DeviceAddress() uint64
}

type AccelerationStructureBuild struct {
	Mode           BuildMode
	Geometry       *AccelerationStructureGeometry
	Src            AccelerationStructure
	Dst            AccelerationStructure
	ScratchAddress uint64
}

// GeometryInstanceTriangleCullDisable disables face culling for an instance.
const GeometryInstanceTriangleCullDisable uint8 = 0x01

// InstanceRecordSize is the packed size of one top-level instance record.
const InstanceRecordSize = 64

// AccelerationStructureInstance is one top-level instance.
type AccelerationStructureInstance struct {
	// Transform is a row-major 3x4 matrix.
	Transform   [12]float32
	CustomIndex uint32
	Mask        uint8
	SBTOffset   uint32
	Flags       uint8
	// Reference is the device address of a bottom-level structure.
	Reference uint64
}

// IdentityTransform is the 3x4 identity.
var IdentityTransform = [12]float32{
	1, 0, 0, 0,
	0, 1, 0, 0,
	0, 0, 1, 0,
}

// Encode packs the instance into its 64-byte device layout.
func (in *AccelerationStructureInstance) Encode(dst []byte) {
	_ = dst[InstanceRecordSize-1]
	for i, v := range in.Transform {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(v))
	}
	binary.LittleEndian.PutUint32(dst[48:], in.CustomIndex&0xFFFFFF|uint32(in.Mask)<<24)
	binary.LittleEndian.PutUint32(dst[52:], in.SBTOffset&0xFFFFFF|uint32(in.Flags)<<24)
	binary.LittleEndian.PutUint64(dst[56:], in.Reference)
}

// DecodeInstance unpacks a 64-byte instance record.
func DecodeInstance(src []byte) AccelerationStructureInstance {
	var in AccelerationStructureInstance
	for i := range in.Transform {
		in.Transform[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
	}
	w := binary.LittleEndian.Uint32(src[48:])
	in.CustomIndex, in.Mask = w&0xFFFFFF, uint8(w>>24)
	w = binary.LittleEndian.Uint32(src[52:])
	in.SBTOffset, in.Flags = w&0xFFFFFF, uint8(w>>24)
	in.Reference = binary.LittleEndian.Uint64(src[56:])
	return in
}
