package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"

	"github.com/andewx/lumenvk/hal"
)

func (d *Device) allocate(reqs vk.MemoryRequirements, props hal.MemoryProperty) (vk.DeviceMemory, error) {
	var memory vk.DeviceMemory
	memType, ok := FindRequiredMemoryType(d.adapter.memoryProperties,
		vk.MemoryPropertyFlagBits(reqs.MemoryTypeBits), vk.MemoryPropertyFlagBits(props))
	if !ok {
		return memory, fmt.Errorf("vulkan: no memory type with properties %#x", uint32(props))
	}
	ret := vk.AllocateMemory(d.device, &vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  reqs.Size,
		MemoryTypeIndex: memType,
	}, nil, &memory)
	return memory, NewError(ret)
}

type Buffer struct {
	device vk.Device
	buffer vk.Buffer
	memory vk.DeviceMemory
	desc   hal.BufferDescriptor
}

func (d *Device) CreateBuffer(desc *hal.BufferDescriptor) (hal.Buffer, error) {
	if desc.Usage&hal.BufferUsageShaderDeviceAddress != 0 {
		return nil, fmt.Errorf("vulkan: buffer device address: %w", hal.ErrUnsupported)
	}
	var buffer vk.Buffer
	ret := vk.CreateBuffer(d.device, &vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Usage:       vk.BufferUsageFlags(desc.Usage),
		Size:        vk.DeviceSize(desc.Size),
		SharingMode: vk.SharingModeExclusive,
	}, nil, &buffer)
	if err := NewError(ret); err != nil {
		return nil, err
	}

	var memReqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.device, buffer, &memReqs)
	memReqs.Deref()
	memory, err := d.allocate(memReqs, desc.Memory)
	if err != nil {
		vk.DestroyBuffer(d.device, buffer, nil)
		return nil, err
	}
	vk.BindBufferMemory(d.device, buffer, memory, 0)
	return &Buffer{device: d.device, buffer: buffer, memory: memory, desc: *desc}, nil
}

func (b *Buffer) Destroy() {
	if b.device == nil {
		return
	}
	vk.FreeMemory(b.device, b.memory, nil)
	vk.DestroyBuffer(b.device, b.buffer, nil)
	b.device = nil
}

func (b *Buffer) Size() uint64          { return b.desc.Size }
func (b *Buffer) DeviceAddress() uint64 { return 0 }

func (b *Buffer) Write(offset uint64, data []byte) error {
	if b.desc.Memory&hal.MemoryHostVisible == 0 {
		return hal.ErrNotHostVisible
	}
	if offset+uint64(len(data)) > b.desc.Size {
		return fmt.Errorf("vulkan: write of %d bytes at %d overflows buffer %q", len(data), offset, b.desc.Label)
	}
	if len(data) == 0 {
		return nil
	}
	var pData unsafe.Pointer
	ret := vk.MapMemory(b.device, b.memory, vk.DeviceSize(offset), vk.DeviceSize(len(data)), 0, &pData)
	if err := NewError(ret); err != nil {
		return err
	}
	n := vk.Memcopy(pData, data)
	vk.UnmapMemory(b.device, b.memory)
	if n != len(data) {
		return fmt.Errorf("vulkan: copied %d of %d bytes", n, len(data))
	}
	return nil
}

type Image struct {
	device vk.Device
	image  vk.Image
	memory vk.DeviceMemory
	desc   hal.ImageDescriptor
	// owned is false for swapchain images.
	owned bool
}

func (d *Device) CreateImage(desc *hal.ImageDescriptor) (hal.Image, error) {
	var image vk.Image
	ret := vk.CreateImage(d.device, &vk.ImageCreateInfo{
		SType:         vk.StructureTypeImageCreateInfo,
		ImageType:     vk.ImageType2d,
		Format:        vk.Format(desc.Format),
		Extent:        vk.Extent3D{Width: desc.Width, Height: desc.Height, Depth: 1},
		MipLevels:     max(desc.MipLevels, 1),
		ArrayLayers:   1,
		Samples:       vk.SampleCountFlagBits(desc.Samples),
		Tiling:        vk.ImageTilingOptimal,
		Usage:         vk.ImageUsageFlags(desc.Usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}, nil, &image)
	if err := NewError(ret); err != nil {
		return nil, err
	}

	var memReqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.device, image, &memReqs)
	memReqs.Deref()
	memory, err := d.allocate(memReqs, desc.Memory|hal.MemoryDeviceLocal)
	if err != nil {
		vk.DestroyImage(d.device, image, nil)
		return nil, err
	}
	vk.BindImageMemory(d.device, image, memory, 0)
	return &Image{device: d.device, image: image, memory: memory, desc: *desc, owned: true}, nil
}

func (i *Image) Destroy() {
	if !i.owned || i.device == nil {
		return
	}
	vk.DestroyImage(i.device, i.image, nil)
	vk.FreeMemory(i.device, i.memory, nil)
	i.device = nil
}

func (i *Image) Format() hal.Format { return i.desc.Format }
func (i *Image) Extent() hal.Extent3D {
	return hal.Extent3D{Width: i.desc.Width, Height: i.desc.Height, Depth: 1}
}
func (i *Image) MipLevels() uint32        { return i.desc.MipLevels }
func (i *Image) Samples() hal.SampleCount { return i.desc.Samples }

type ImageView struct {
	device vk.Device
	view   vk.ImageView
}

func (d *Device) CreateImageView(image hal.Image, desc *hal.ImageViewDescriptor) (hal.ImageView, error) {
	img, ok := image.(*Image)
	if !ok {
		return nil, errForeign
	}
	var view vk.ImageView
	ret := vk.CreateImageView(d.device, &vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    img.image,
		ViewType: vk.ImageViewType2d,
		Format:   vk.Format(desc.Format),
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleR,
			G: vk.ComponentSwizzleG,
			B: vk.ComponentSwizzleB,
			A: vk.ComponentSwizzleA,
		},
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:   vk.ImageAspectFlags(desc.Aspect),
			BaseMipLevel: desc.BaseMipLevel,
			LevelCount:   max(desc.LevelCount, 1),
			LayerCount:   1,
		},
	}, nil, &view)
	if err := NewError(ret); err != nil {
		return nil, err
	}
	return &ImageView{device: d.device, view: view}, nil
}

func (v *ImageView) Destroy() {
	if v.device == nil {
		return
	}
	vk.DestroyImageView(v.device, v.view, nil)
	v.device = nil
}
