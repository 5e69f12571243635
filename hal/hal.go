// Package hal is the driver layer under the engine: a small, Vulkan-shaped
// set of interfaces implemented by the vulkan backend (hal/vulkan) and by a
// software backend used for tests and headless runs (hal/noop).
//
// Objects are owned by whoever created them and released with Destroy.
// Nothing in this package is safe for concurrent use unless a backend says so.
package hal

import "errors"

var (
	// ErrUnsupported is returned for operations the backend or device cannot perform.
	ErrUnsupported = errors.New("hal: unsupported operation")
	// ErrNotHostVisible is returned when writing a buffer that is not mapped host memory.
	ErrNotHostVisible = errors.New("hal: buffer memory is not host visible")
	// ErrTimeout is returned when a bounded wait expires.
	ErrTimeout = errors.New("hal: wait timed out")
	// ErrDeviceLost is returned once the device is no longer usable.
	ErrDeviceLost = errors.New("hal: device lost")
)

// Resource is implemented by every object that owns driver memory or handles.
type Resource interface {
	Destroy()
}

// API is a backend entry point.
type API interface {
	CreateInstance(desc *InstanceDescriptor) (Instance, error)
}

type InstanceDescriptor struct {
	AppName    string
	EngineName string
	APIVersion Version
	// Extensions are instance extensions required by the window system.
	Extensions []string
	Layers     []string
	Debug      bool
}

// Window is the windowing collaborator a surface is created from.
type Window interface {
	// FramebufferSize returns the drawable size in pixels.
	FramebufferSize() (width, height int)
	RequiredInstanceExtensions() []string
	// CreateWindowSurface creates a native surface for a backend instance
	// handle and returns it as a raw pointer.
	CreateWindowSurface(instance any) (uintptr, error)
}

type Instance interface {
	Resource
	CreateSurface(w Window) (Surface, error)
	// EnumerateAdapters lists physical devices able to present to surface.
	EnumerateAdapters(surface Surface) ([]Adapter, error)
}

type Surface interface {
	Resource
}

type AdapterInfo struct {
	Name     string
	VendorID uint32
	DeviceID uint32
	Discrete bool
}

// Adapter is a physical device.
type Adapter interface {
	Info() AdapterInfo
	Limits() Limits
	// Open creates a logical device with the listed features enabled. Features
	// that are not supported make Open fail.
	Open(desc *DeviceDescriptor) (Device, error)
}

type DeviceDescriptor struct {
	Label    string
	Features []Feature
}

// Device is a logical device and the factory for every other object.
type Device interface {
	Resource
	// SupportedFeatures returns the full feature table with Supported filled
	// in and Enabled set for what this device was opened with.
	SupportedFeatures() FeatureSet
	Limits() Limits
	Queue() Queue
	WaitIdle() error

	CreateBuffer(desc *BufferDescriptor) (Buffer, error)
	CreateImage(desc *ImageDescriptor) (Image, error)
	CreateImageView(image Image, desc *ImageViewDescriptor) (ImageView, error)
	CreateSampler(desc *SamplerDescriptor) (Sampler, error)
	CreateShaderModule(code []byte) (ShaderModule, error)
	CreateRenderPass(desc *RenderPassDescriptor) (RenderPass, error)
	CreateFramebuffer(desc *FramebufferDescriptor) (Framebuffer, error)
	CreateDescriptorSetLayout(bindings []DescriptorSetLayoutBinding) (DescriptorSetLayout, error)
	CreateDescriptorPool(desc *DescriptorPoolDescriptor) (DescriptorPool, error)
	CreatePipelineLayout(layouts []DescriptorSetLayout) (PipelineLayout, error)
	CreateGraphicsPipeline(desc *GraphicsPipelineDescriptor) (Pipeline, error)
	CreateCommandPool() (CommandPool, error)
	CreateFence(signaled bool) (Fence, error)
	CreateSemaphore() (Semaphore, error)

	SurfaceCapabilities(surface Surface) (SurfaceCapabilities, error)
	CreateSwapchain(surface Surface, desc *SwapchainDescriptor) (Swapchain, error)

	AccelerationStructureBuildSizes(geom *AccelerationStructureGeometry) (AccelerationStructureSizes, error)
	CreateAccelerationStructure(desc *AccelerationStructureDescriptor) (AccelerationStructure, error)
	// BuildAccelerationStructureHost builds on the CPU. Only valid when
	// FeatureAccelerationStructureHostCommands is enabled.
	BuildAccelerationStructureHost(build *AccelerationStructureBuild) error
}

type Queue interface {
	Submit(submits []SubmitInfo, fence Fence) error
	Present(info *PresentInfo) (Status, error)
	WaitIdle() error
}

type SubmitInfo struct {
	WaitSemaphores   []Semaphore
	WaitStages       []PipelineStage
	CommandBuffers   []CommandBuffer
	SignalSemaphores []Semaphore
}

type PresentInfo struct {
	Swapchain      Swapchain
	ImageIndex     uint32
	WaitSemaphores []Semaphore
}

type BufferDescriptor struct {
	Label  string
	Size   uint64
	Usage  BufferUsage
	Memory MemoryProperty
}

type Buffer interface {
	Resource
	Size() uint64
	// Write copies data into host-visible memory at offset.
	Write(offset uint64, data []byte) error
	// DeviceAddress is zero unless the buffer was created with
	// BufferUsageShaderDeviceAddress.
	DeviceAddress() uint64
}

type ImageDescriptor struct {
	Label     string
	Format    Format
	Width     uint32
	Height    uint32
	MipLevels uint32
	Samples   SampleCount
	Usage     ImageUsage
	Memory    MemoryProperty
}

type Image interface {
	Resource
	Format() Format
	Extent() Extent3D
	MipLevels() uint32
	Samples() SampleCount
}

type ImageViewDescriptor struct {
	Format       Format
	Aspect       ImageAspect
	BaseMipLevel uint32
	LevelCount   uint32
}

type ImageView interface {
	Resource
}

type SamplerDescriptor struct {
	MagFilter        Filter
	MinFilter        Filter
	MipmapFilter     Filter
	AddressMode      AddressMode
	AnisotropyEnable bool
	MaxAnisotropy    float32
	MipLodBias       float32
	MinLod           float32
	MaxLod           float32
}

type Sampler interface {
	Resource
}

type ShaderModule interface {
	Resource
}

type AttachmentDescription struct {
	Format        Format
	Samples       SampleCount
	LoadOp        LoadOp
	StoreOp       StoreOp
	InitialLayout ImageLayout
	FinalLayout   ImageLayout
}

type AttachmentReference struct {
	Attachment uint32
	Layout     ImageLayout
}

// SubpassDescription describes the single graphics subpass of a render pass.
type SubpassDescription struct {
	ColorAttachments   []AttachmentReference
	DepthAttachment    *AttachmentReference
	ResolveAttachments []AttachmentReference
}

type RenderPassDescriptor struct {
	Attachments []AttachmentDescription
	Subpass     SubpassDescription
}

type RenderPass interface {
	Resource
}

type FramebufferDescriptor struct {
	RenderPass  RenderPass
	Attachments []ImageView
	Width       uint32
	Height      uint32
}

type Framebuffer interface {
	Resource
}

type DescriptorSetLayoutBinding struct {
	Binding uint32
	Type    DescriptorType
	Count   uint32
	Stages  ShaderStage
}

type DescriptorSetLayout interface {
	Resource
}

type DescriptorPoolSize struct {
	Type  DescriptorType
	Count uint32
}

type DescriptorPoolDescriptor struct {
	MaxSets uint32
	Sizes   []DescriptorPoolSize
}

// DescriptorPool owns the sets allocated from it; destroying the pool frees them.
type DescriptorPool interface {
	Resource
	Allocate(layout DescriptorSetLayout) (DescriptorSet, error)
}

// DescriptorWrite points one binding at a resource. Exactly one of the
// resource fields is set, matching Type.
type DescriptorWrite struct {
	Binding               uint32
	Type                  DescriptorType
	Buffer                Buffer
	Range                 uint64
	View                  ImageView
	Sampler               Sampler
	AccelerationStructure AccelerationStructure
}

type DescriptorSet interface {
	Update(writes []DescriptorWrite) error
}

type PipelineLayout interface {
	Resource
}

type ShaderStageDescriptor struct {
	Stage      ShaderStage
	Module     ShaderModule
	EntryPoint string
}

type VertexBinding struct {
	Binding uint32
	Stride  uint32
}

type VertexAttribute struct {
	Location uint32
	Binding  uint32
	Format   Format
	Offset   uint32
}

// GraphicsPipelineDescriptor describes a pipeline with dynamic viewport and
// scissor state.
type GraphicsPipelineDescriptor struct {
	Layout           PipelineLayout
	RenderPass       RenderPass
	Stages           []ShaderStageDescriptor
	VertexBindings   []VertexBinding
	VertexAttributes []VertexAttribute
	Samples          SampleCount
	SampleShading    bool
	MinSampleShading float32
	CullMode         CullMode
	DepthTest        bool
}

type Pipeline interface {
	Resource
}

type CommandPool interface {
	Resource
	Allocate() (CommandBuffer, error)
	Free(cb CommandBuffer)
}

type ClearValue struct {
	Color   [4]float32
	Depth   float32
	Stencil uint32
}

type RenderPassBeginInfo struct {
	RenderPass  RenderPass
	Framebuffer Framebuffer
	Area        Rect2D
	ClearValues []ClearValue
}

type ImageBarrier struct {
	Image        Image
	OldLayout    ImageLayout
	NewLayout    ImageLayout
	SrcAccess    Access
	DstAccess    Access
	Aspect       ImageAspect
	BaseMipLevel uint32
	LevelCount   uint32
}

type BufferCopy struct {
	SrcOffset uint64
	DstOffset uint64
	Size      uint64
}

type BufferImageCopy struct {
	BufferOffset uint64
	Aspect       ImageAspect
	MipLevel     uint32
	Width        uint32
	Height       uint32
}

type ImageBlit struct {
	Aspect     ImageAspect
	SrcLevel   uint32
	SrcOffsets [2]Offset3D
	DstLevel   uint32
	DstOffsets [2]Offset3D
}

// CommandBuffer records work for later submission.
type CommandBuffer interface {
	Begin(oneTimeSubmit bool) error
	End() error
	Reset() error

	BeginRenderPass(info *RenderPassBeginInfo)
	EndRenderPass()
	SetViewport(vp Viewport)
	SetScissor(r Rect2D)
	BindPipeline(p Pipeline)
	BindVertexBuffers(first uint32, buffers []Buffer, offsets []uint64)
	BindIndexBuffer(buf Buffer, offset uint64, t IndexType)
	BindDescriptorSets(layout PipelineLayout, first uint32, sets []DescriptorSet)
	DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32)

	PipelineBarrier(src, dst PipelineStage, barriers []ImageBarrier)
	CopyBuffer(src, dst Buffer, regions []BufferCopy)
	CopyBufferToImage(src Buffer, dst Image, layout ImageLayout, region BufferImageCopy)
	BlitImage(src Image, srcLayout ImageLayout, dst Image, dstLayout ImageLayout, region ImageBlit, filter Filter)
	BuildAccelerationStructure(build *AccelerationStructureBuild)
}

type Fence interface {
	Resource
	Wait(timeout uint64) error
	Reset() error
}

type Semaphore interface {
	Resource
}

type SurfaceFormat struct {
	Format     Format
	ColorSpace ColorSpace
}

type SurfaceCapabilities struct {
	MinImageCount uint32
	// MaxImageCount of zero means no upper bound.
	MaxImageCount uint32
	CurrentExtent Extent2D
	MinExtent     Extent2D
	MaxExtent     Extent2D
	Formats       []SurfaceFormat
	PresentModes  []PresentMode
}

type SwapchainDescriptor struct {
	MinImageCount uint32
	Format        SurfaceFormat
	Extent        Extent2D
	PresentMode   PresentMode
	Usage         ImageUsage
	// OldSwapchain is retired by the new one but must still be destroyed by
	// the caller.
	OldSwapchain Swapchain
}

// Swapchain owns its images; destroying them individually is a no-op.
type Swapchain interface {
	Resource
	Images() []Image
	Format() Format
	Extent() Extent2D
	AcquireNextImage(timeout uint64, signal Semaphore) (uint32, Status, error)
}
