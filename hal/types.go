package hal

// Enumerations below use the numeric values of their Vulkan counterparts so a
// Vulkan backend can convert them with a plain cast.

// Format is a texel or vertex attribute format.
type Format uint32

const (
	FormatUndefined          Format = 0
	FormatR8G8B8A8Unorm      Format = 37
	FormatR8G8B8A8Srgb       Format = 43
	FormatB8G8R8A8Unorm      Format = 44
	FormatB8G8R8A8Srgb       Format = 50
	FormatR32G32Sfloat       Format = 103
	FormatR32G32B32Sfloat    Format = 106
	FormatR32G32B32A32Sfloat Format = 109
	FormatD32Sfloat          Format = 126
	FormatD24UnormS8Uint     Format = 129
	FormatD32SfloatS8Uint    Format = 130
)

// BytesPerTexel returns the texel size of color formats, 0 for unknown ones.
func (f Format) BytesPerTexel() uint32 {
	switch f {
	case FormatR8G8B8A8Unorm, FormatR8G8B8A8Srgb, FormatB8G8R8A8Unorm, FormatB8G8R8A8Srgb, FormatD32Sfloat, FormatD24UnormS8Uint:
		return 4
	case FormatD32SfloatS8Uint, FormatR32G32Sfloat:
		return 8
	case FormatR32G32B32Sfloat:
		return 12
	case FormatR32G32B32A32Sfloat:
		return 16
	}
	return 0
}

// HasDepth reports whether the format carries a depth component.
func (f Format) HasDepth() bool {
	return f == FormatD32Sfloat || f == FormatD24UnormS8Uint || f == FormatD32SfloatS8Uint
}

// HasStencil reports whether the format carries a stencil component.
func (f Format) HasStencil() bool {
	return f == FormatD24UnormS8Uint || f == FormatD32SfloatS8Uint
}

type ColorSpace uint32

const ColorSpaceSrgbNonlinear ColorSpace = 0

// ImageLayout is the access layout an image subresource is currently in.
type ImageLayout uint32

const (
	ImageLayoutUndefined              ImageLayout = 0
	ImageLayoutGeneral                ImageLayout = 1
	ImageLayoutColorAttachment        ImageLayout = 2
	ImageLayoutDepthStencilAttachment ImageLayout = 3
	ImageLayoutDepthStencilReadOnly   ImageLayout = 4
	ImageLayoutShaderReadOnly         ImageLayout = 5
	ImageLayoutTransferSrc            ImageLayout = 6
	ImageLayoutTransferDst            ImageLayout = 7
	ImageLayoutPresentSrc             ImageLayout = 1000001002
)

func (l ImageLayout) String() string {
	switch l {
	case ImageLayoutUndefined:
		return "undefined"
	case ImageLayoutGeneral:
		return "general"
	case ImageLayoutColorAttachment:
		return "color-attachment"
	case ImageLayoutDepthStencilAttachment:
		return "depth-stencil-attachment"
	case ImageLayoutDepthStencilReadOnly:
		return "depth-stencil-read-only"
	case ImageLayoutShaderReadOnly:
		return "shader-read-only"
	case ImageLayoutTransferSrc:
		return "transfer-src"
	case ImageLayoutTransferDst:
		return "transfer-dst"
	case ImageLayoutPresentSrc:
		return "present-src"
	}
	return "unknown"
}

// Access is a memory access mask used in barriers.
type Access uint32

const (
	AccessNone                        Access = 0
	AccessIndexRead                   Access = 0x00000002
	AccessVertexAttributeRead         Access = 0x00000004
	AccessUniformRead                 Access = 0x00000008
	AccessShaderRead                  Access = 0x00000020
	AccessShaderWrite                 Access = 0x00000040
	AccessColorAttachmentRead         Access = 0x00000080
	AccessColorAttachmentWrite        Access = 0x00000100
	AccessDepthStencilAttachmentRead  Access = 0x00000200
	AccessDepthStencilAttachmentWrite Access = 0x00000400
	AccessTransferRead                Access = 0x00000800
	AccessTransferWrite               Access = 0x00001000
	AccessHostWrite                   Access = 0x00004000
	AccessMemoryRead                  Access = 0x00008000
	AccessAccelerationStructureRead   Access = 0x00200000
	AccessAccelerationStructureWrite  Access = 0x00400000
)

// PipelineStage is a pipeline stage mask used in barriers and submits.
type PipelineStage uint32

const (
	PipelineStageTopOfPipe                  PipelineStage = 0x00000001
	PipelineStageVertexInput                PipelineStage = 0x00000004
	PipelineStageVertexShader               PipelineStage = 0x00000008
	PipelineStageFragmentShader             PipelineStage = 0x00000080
	PipelineStageEarlyFragmentTests         PipelineStage = 0x00000100
	PipelineStageLateFragmentTests          PipelineStage = 0x00000200
	PipelineStageColorAttachmentOutput      PipelineStage = 0x00000400
	PipelineStageTransfer                   PipelineStage = 0x00001000
	PipelineStageBottomOfPipe               PipelineStage = 0x00002000
	PipelineStageHost                       PipelineStage = 0x00004000
	PipelineStageAllCommands                PipelineStage = 0x00010000
	PipelineStageAccelerationStructureBuild PipelineStage = 0x02000000
)

// SampleCount doubles as a single count (1, 2, 4 ...) and as a mask of
// supported counts.
type SampleCount uint32

const (
	SampleCount1  SampleCount = 1
	SampleCount2  SampleCount = 2
	SampleCount4  SampleCount = 4
	SampleCount8  SampleCount = 8
	SampleCount16 SampleCount = 16
	SampleCount32 SampleCount = 32
	SampleCount64 SampleCount = 64
)

// Highest returns the largest single count present in the mask, 1 if none.
func (s SampleCount) Highest() SampleCount {
	for c := SampleCount64; c > SampleCount1; c >>= 1 {
		if s&c != 0 {
			return c
		}
	}
	return SampleCount1
}

type BufferUsage uint32

const (
	BufferUsageTransferSrc                  BufferUsage = 0x00000001
	BufferUsageTransferDst                  BufferUsage = 0x00000002
	BufferUsageUniform                      BufferUsage = 0x00000010
	BufferUsageStorage                      BufferUsage = 0x00000020
	BufferUsageIndex                        BufferUsage = 0x00000040
	BufferUsageVertex                       BufferUsage = 0x00000080
	BufferUsageShaderDeviceAddress          BufferUsage = 0x00020000
	BufferUsageAccelerationStructureInput   BufferUsage = 0x00080000
	BufferUsageAccelerationStructureStorage BufferUsage = 0x00100000
)

type ImageUsage uint32

const (
	ImageUsageTransferSrc            ImageUsage = 0x00000001
	ImageUsageTransferDst            ImageUsage = 0x00000002
	ImageUsageSampled                ImageUsage = 0x00000004
	ImageUsageStorage                ImageUsage = 0x00000008
	ImageUsageColorAttachment        ImageUsage = 0x00000010
	ImageUsageDepthStencilAttachment ImageUsage = 0x00000020
	ImageUsageTransientAttachment    ImageUsage = 0x00000040
)

type MemoryProperty uint32

const (
	MemoryDeviceLocal  MemoryProperty = 0x00000001
	MemoryHostVisible  MemoryProperty = 0x00000002
	MemoryHostCoherent MemoryProperty = 0x00000004
)

type ImageAspect uint32

const (
	ImageAspectColor   ImageAspect = 0x00000001
	ImageAspectDepth   ImageAspect = 0x00000002
	ImageAspectStencil ImageAspect = 0x00000004
)

type ShaderStage uint32

const (
	ShaderStageVertex     ShaderStage = 0x00000001
	ShaderStageFragment   ShaderStage = 0x00000010
	ShaderStageCompute    ShaderStage = 0x00000020
	ShaderStageRaygen     ShaderStage = 0x00000100
	ShaderStageClosestHit ShaderStage = 0x00000400
	ShaderStageMiss       ShaderStage = 0x00000800

	ShaderStageAllGraphics ShaderStage = 0x0000001F
)

type DescriptorType uint32

const (
	DescriptorTypeSampler               DescriptorType = 0
	DescriptorTypeCombinedImageSampler  DescriptorType = 1
	DescriptorTypeSampledImage          DescriptorType = 2
	DescriptorTypeStorageImage          DescriptorType = 3
	DescriptorTypeUniformBuffer         DescriptorType = 6
	DescriptorTypeStorageBuffer         DescriptorType = 7
	DescriptorTypeAccelerationStructure DescriptorType = 1000150000
)

func (t DescriptorType) String() string {
	switch t {
	case DescriptorTypeSampler:
		return "sampler"
	case DescriptorTypeCombinedImageSampler:
		return "combined-image-sampler"
	case DescriptorTypeSampledImage:
		return "sampled-image"
	case DescriptorTypeStorageImage:
		return "storage-image"
	case DescriptorTypeUniformBuffer:
		return "uniform-buffer"
	case DescriptorTypeStorageBuffer:
		return "storage-buffer"
	case DescriptorTypeAccelerationStructure:
		return "acceleration-structure"
	}
	return "unknown"
}

type Filter uint32

const (
	FilterNearest Filter = 0
	FilterLinear  Filter = 1
)

type AddressMode uint32

const (
	AddressModeRepeat         AddressMode = 0
	AddressModeMirroredRepeat AddressMode = 1
	AddressModeClampToEdge    AddressMode = 2
)

type PresentMode uint32

const (
	PresentModeImmediate PresentMode = 0
	PresentModeMailbox   PresentMode = 1
	PresentModeFifo      PresentMode = 2
)

type IndexType uint32

const (
	IndexTypeUint16 IndexType = 0
	IndexTypeUint32 IndexType = 1
)

type CullMode uint32

const (
	CullModeNone  CullMode = 0
	CullModeFront CullMode = 1
	CullModeBack  CullMode = 2
)

type LoadOp uint32

const (
	LoadOpLoad     LoadOp = 0
	LoadOpClear    LoadOp = 1
	LoadOpDontCare LoadOp = 2
)

type StoreOp uint32

const (
	StoreOpStore    StoreOp = 0
	StoreOpDontCare StoreOp = 1
)

// Status is the non-error outcome of acquire and present.
type Status int

const (
	StatusSuccess Status = iota
	StatusSuboptimal
	StatusOutOfDate
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusSuboptimal:
		return "suboptimal"
	case StatusOutOfDate:
		return "out-of-date"
	}
	return "unknown"
}

type Extent2D struct {
	Width, Height uint32
}

type Extent3D struct {
	Width, Height, Depth uint32
}

type Offset3D struct {
	X, Y, Z int32
}

type Rect2D struct {
	X, Y          int32
	Width, Height uint32
}

type Viewport struct {
	X, Y, Width, Height, MinDepth, MaxDepth float32
}

// Version is a packed major.minor.patch API version.
type Version uint32

func MakeVersion(major, minor, patch uint32) Version {
	return Version(major<<22 | minor<<12 | patch)
}

func (v Version) Major() uint32 { return uint32(v) >> 22 }
func (v Version) Minor() uint32 { return (uint32(v) >> 12) & 0x3ff }

// WaitForever is the timeout value for unbounded fence and acquire waits.
const WaitForever = ^uint64(0)
