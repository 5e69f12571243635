package noop

import (
	"encoding/binary"
	"fmt"
	"image"

	"github.com/andewx/lumenvk/hal"
)

const spirvMagic = 0x07230203

type Buffer struct {
	*object
	desc hal.BufferDescriptor
	data []byte
	addr uint64
}

func (d *Device) CreateBuffer(desc *hal.BufferDescriptor) (hal.Buffer, error) {
	if desc.Size == 0 {
		return nil, fmt.Errorf("noop: buffer %q has zero size", desc.Label)
	}
	b := &Buffer{desc: *desc, data: make([]byte, desc.Size)}
	if desc.Usage&hal.BufferUsageShaderDeviceAddress != 0 {
		if !d.features.Enabled(hal.FeatureBufferDeviceAddress) {
			return nil, fmt.Errorf("noop: buffer %q requests a device address without %s", desc.Label, hal.FeatureBufferDeviceAddress)
		}
		d.mu.Lock()
		b.addr = d.nextAddr
		d.nextAddr += (desc.Size+255)&^255 + 256
		d.addrs[b.addr] = b
		d.mu.Unlock()
	}
	b.object = d.track("buffer")
	return b, nil
}

func (b *Buffer) Destroy() {
	if !b.release() {
		return
	}
	if b.addr != 0 {
		b.dev.mu.Lock()
		delete(b.dev.addrs, b.addr)
		b.dev.mu.Unlock()
	}
}

func (b *Buffer) Size() uint64           { return b.desc.Size }
func (b *Buffer) DeviceAddress() uint64  { return b.addr }
func (b *Buffer) Usage() hal.BufferUsage { return b.desc.Usage }

// Bytes exposes the buffer contents.
func (b *Buffer) Bytes() []byte { return b.data }

func (b *Buffer) Write(offset uint64, data []byte) error {
	if b.desc.Memory&hal.MemoryHostVisible == 0 {
		return hal.ErrNotHostVisible
	}
	if offset+uint64(len(data)) > b.desc.Size {
		return fmt.Errorf("noop: write of %d bytes at %d overflows buffer %q (%d bytes)", len(data), offset, b.desc.Label, b.desc.Size)
	}
	copy(b.data[offset:], data)
	b.dev.count(func(s *Stats) { s.BufferWrites++ })
	return nil
}

// resolve maps a device address to the bytes behind it.
func (d *Device) resolve(addr uint64) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for base, b := range d.addrs {
		if addr >= base && addr < base+b.desc.Size {
			return b.data[addr-base:], nil
		}
	}
	return nil, fmt.Errorf("noop: device address %#x does not belong to a live buffer", addr)
}

type Image struct {
	*object
	desc    hal.ImageDescriptor
	levels  []*image.RGBA
	layouts []hal.ImageLayout
	owned   bool
}

func (d *Device) CreateImage(desc *hal.ImageDescriptor) (hal.Image, error) {
	limits := d.Limits()
	if desc.Width == 0 || desc.Height == 0 || desc.Width > limits.MaxImageDimension2D || desc.Height > limits.MaxImageDimension2D {
		return nil, fmt.Errorf("noop: image %q has invalid extent %dx%d", desc.Label, desc.Width, desc.Height)
	}
	counts := limits.ColorSampleCounts
	if desc.Format.HasDepth() {
		counts = limits.DepthSampleCounts
	}
	if desc.Samples == 0 || counts&desc.Samples == 0 {
		return nil, fmt.Errorf("noop: image %q requests unsupported sample count %d", desc.Label, desc.Samples)
	}
	if desc.MipLevels == 0 {
		return nil, fmt.Errorf("noop: image %q has no mip levels", desc.Label)
	}
	img := newImage(*desc)
	img.owned = true
	img.object = d.track("image")
	return img, nil
}

func newImage(desc hal.ImageDescriptor) *Image {
	img := &Image{desc: desc, layouts: make([]hal.ImageLayout, desc.MipLevels)}
	if desc.Format.BytesPerTexel() == 4 && !desc.Format.HasDepth() && desc.Samples == hal.SampleCount1 {
		img.levels = make([]*image.RGBA, desc.MipLevels)
		for i := range img.levels {
			w, h := levelExtent(desc.Width, desc.Height, uint32(i))
			img.levels[i] = image.NewRGBA(image.Rect(0, 0, int(w), int(h)))
		}
	}
	return img
}

func levelExtent(w, h, level uint32) (uint32, uint32) {
	return max(w>>level, 1), max(h>>level, 1)
}

func (i *Image) Destroy() {
	if i.owned {
		i.release()
	}
}

func (i *Image) Format() hal.Format                  { return i.desc.Format }
func (i *Image) MipLevels() uint32                   { return i.desc.MipLevels }
func (i *Image) Samples() hal.SampleCount            { return i.desc.Samples }
func (i *Image) Usage() hal.ImageUsage               { return i.desc.Usage }
func (i *Image) Layout(level uint32) hal.ImageLayout { return i.layouts[level] }

func (i *Image) Extent() hal.Extent3D {
	return hal.Extent3D{Width: i.desc.Width, Height: i.desc.Height, Depth: 1}
}

// Level returns the CPU pixels of a mip level, nil for depth or
// multisampled images.
func (i *Image) Level(level uint32) *image.RGBA {
	if i.levels == nil {
		return nil
	}
	return i.levels[level]
}

type ImageView struct {
	*object
	image *Image
	desc  hal.ImageViewDescriptor
}

func (d *Device) CreateImageView(img hal.Image, desc *hal.ImageViewDescriptor) (hal.ImageView, error) {
	im, ok := img.(*Image)
	if !ok {
		return nil, fmt.Errorf("noop: foreign image %T", img)
	}
	if desc.BaseMipLevel+desc.LevelCount > im.desc.MipLevels {
		return nil, fmt.Errorf("noop: view levels [%d,+%d) exceed image levels %d", desc.BaseMipLevel, desc.LevelCount, im.desc.MipLevels)
	}
	return &ImageView{object: d.track("image-view"), image: im, desc: *desc}, nil
}

// Image returns the viewed image.
func (v *ImageView) Image() *Image { return v.image }

type Sampler struct {
	*object
	Desc hal.SamplerDescriptor
}

func (d *Device) CreateSampler(desc *hal.SamplerDescriptor) (hal.Sampler, error) {
	if desc.AnisotropyEnable && !d.features.Enabled(hal.FeatureSamplerAnisotropy) {
		return nil, fmt.Errorf("noop: sampler anisotropy used without %s", hal.FeatureSamplerAnisotropy)
	}
	if desc.MaxAnisotropy > d.Limits().MaxSamplerAnisotropy {
		return nil, fmt.Errorf("noop: max anisotropy %.1f above device limit", desc.MaxAnisotropy)
	}
	return &Sampler{object: d.track("sampler"), Desc: *desc}, nil
}

type ShaderModule struct {
	*object
	size int
}

func (d *Device) CreateShaderModule(code []byte) (hal.ShaderModule, error) {
	if len(code) < 4 || len(code)%4 != 0 || binary.LittleEndian.Uint32(code) != spirvMagic {
		return nil, fmt.Errorf("noop: shader bytecode is not SPIR-V (%d bytes)", len(code))
	}
	return &ShaderModule{object: d.track("shader-module"), size: len(code)}, nil
}

type RenderPass struct {
	*object
	desc hal.RenderPassDescriptor
}

func (d *Device) CreateRenderPass(desc *hal.RenderPassDescriptor) (hal.RenderPass, error) {
	n := uint32(len(desc.Attachments))
	sub := desc.Subpass
	refs := append([]hal.AttachmentReference{}, sub.ColorAttachments...)
	refs = append(refs, sub.ResolveAttachments...)
	if sub.DepthAttachment != nil {
		refs = append(refs, *sub.DepthAttachment)
	}
	for _, r := range refs {
		if r.Attachment >= n {
			return nil, fmt.Errorf("noop: attachment reference %d out of range (%d attachments)", r.Attachment, n)
		}
	}
	if len(sub.ResolveAttachments) > 0 {
		if len(sub.ResolveAttachments) != len(sub.ColorAttachments) {
			return nil, fmt.Errorf("noop: %d resolve attachments for %d color attachments", len(sub.ResolveAttachments), len(sub.ColorAttachments))
		}
		for _, r := range sub.ResolveAttachments {
			if desc.Attachments[r.Attachment].Samples != hal.SampleCount1 {
				return nil, fmt.Errorf("noop: resolve attachment %d is multisampled", r.Attachment)
			}
		}
	}
	return &RenderPass{object: d.track("render-pass"), desc: *desc}, nil
}

// Descriptor returns the description the pass was created from.
func (r *RenderPass) Descriptor() hal.RenderPassDescriptor { return r.desc }

type Framebuffer struct {
	*object
	desc hal.FramebufferDescriptor
}

func (d *Device) CreateFramebuffer(desc *hal.FramebufferDescriptor) (hal.Framebuffer, error) {
	rp, ok := desc.RenderPass.(*RenderPass)
	if !ok {
		return nil, fmt.Errorf("noop: foreign render pass %T", desc.RenderPass)
	}
	if len(desc.Attachments) != len(rp.desc.Attachments) {
		return nil, fmt.Errorf("noop: framebuffer has %d attachments, render pass expects %d", len(desc.Attachments), len(rp.desc.Attachments))
	}
	for i, a := range desc.Attachments {
		v, ok := a.(*ImageView)
		if !ok {
			return nil, fmt.Errorf("noop: attachment %d is a foreign view %T", i, a)
		}
		ext := v.image.Extent()
		if ext.Width < desc.Width || ext.Height < desc.Height {
			return nil, fmt.Errorf("noop: attachment %d (%dx%d) smaller than framebuffer %dx%d", i, ext.Width, ext.Height, desc.Width, desc.Height)
		}
		if v.image.desc.Samples != rp.desc.Attachments[i].Samples {
			return nil, fmt.Errorf("noop: attachment %d sample count %d does not match render pass (%d)", i, v.image.desc.Samples, rp.desc.Attachments[i].Samples)
		}
	}
	return &Framebuffer{object: d.track("framebuffer"), desc: *desc}, nil
}

// Attachments returns the views bound to the framebuffer.
func (f *Framebuffer) Attachments() []hal.ImageView { return f.desc.Attachments }

type DescriptorSetLayout struct {
	*object
	bindings map[uint32]hal.DescriptorSetLayoutBinding
}

func (d *Device) CreateDescriptorSetLayout(bindings []hal.DescriptorSetLayoutBinding) (hal.DescriptorSetLayout, error) {
	m := make(map[uint32]hal.DescriptorSetLayoutBinding, len(bindings))
	for _, b := range bindings {
		if _, dup := m[b.Binding]; dup {
			return nil, fmt.Errorf("noop: duplicate binding %d", b.Binding)
		}
		if b.Type == hal.DescriptorTypeAccelerationStructure && !d.features.Enabled(hal.FeatureAccelerationStructure) {
			return nil, fmt.Errorf("noop: acceleration structure binding without %s", hal.FeatureAccelerationStructure)
		}
		m[b.Binding] = b
	}
	return &DescriptorSetLayout{object: d.track("descriptor-set-layout"), bindings: m}, nil
}

type DescriptorPool struct {
	*object
	desc      hal.DescriptorPoolDescriptor
	allocated uint32
}

func (d *Device) CreateDescriptorPool(desc *hal.DescriptorPoolDescriptor) (hal.DescriptorPool, error) {
	if desc.MaxSets == 0 {
		return nil, fmt.Errorf("noop: descriptor pool with zero sets")
	}
	return &DescriptorPool{object: d.track("descriptor-pool"), desc: *desc}, nil
}

func (p *DescriptorPool) Allocate(layout hal.DescriptorSetLayout) (hal.DescriptorSet, error) {
	l, ok := layout.(*DescriptorSetLayout)
	if !ok {
		return nil, fmt.Errorf("noop: foreign descriptor set layout %T", layout)
	}
	if p.allocated == p.desc.MaxSets {
		return nil, fmt.Errorf("noop: descriptor pool exhausted (%d sets)", p.desc.MaxSets)
	}
	p.allocated++
	return &DescriptorSet{layout: l, writes: make(map[uint32]hal.DescriptorWrite)}, nil
}

type DescriptorSet struct {
	layout *DescriptorSetLayout
	writes map[uint32]hal.DescriptorWrite
}

func (s *DescriptorSet) Update(writes []hal.DescriptorWrite) error {
	for _, w := range writes {
		b, ok := s.layout.bindings[w.Binding]
		if !ok {
			return fmt.Errorf("noop: binding %d not in layout", w.Binding)
		}
		if b.Type != w.Type {
			return fmt.Errorf("noop: binding %d is %s, write is %s", w.Binding, b.Type, w.Type)
		}
		s.writes[w.Binding] = w
	}
	return nil
}

// Write returns the last write made to binding.
func (s *DescriptorSet) Write(binding uint32) (hal.DescriptorWrite, bool) {
	w, ok := s.writes[binding]
	return w, ok
}

type PipelineLayout struct {
	*object
	layouts []hal.DescriptorSetLayout
}

func (d *Device) CreatePipelineLayout(layouts []hal.DescriptorSetLayout) (hal.PipelineLayout, error) {
	return &PipelineLayout{object: d.track("pipeline-layout"), layouts: layouts}, nil
}

type Pipeline struct {
	*object
	Desc hal.GraphicsPipelineDescriptor
}

func (d *Device) CreateGraphicsPipeline(desc *hal.GraphicsPipelineDescriptor) (hal.Pipeline, error) {
	if len(desc.Stages) == 0 {
		return nil, fmt.Errorf("noop: pipeline without shader stages")
	}
	if desc.Layout == nil || desc.RenderPass == nil {
		return nil, fmt.Errorf("noop: pipeline needs a layout and a render pass")
	}
	if desc.SampleShading && !d.features.Enabled(hal.FeatureSampleRateShading) {
		return nil, fmt.Errorf("noop: sample shading used without %s", hal.FeatureSampleRateShading)
	}
	if d.Limits().ColorSampleCounts&desc.Samples == 0 {
		return nil, fmt.Errorf("noop: pipeline sample count %d unsupported", desc.Samples)
	}
	return &Pipeline{object: d.track("pipeline"), Desc: *desc}, nil
}

type Fence struct {
	*object
	signaled bool
	waits    int
}

func (d *Device) CreateFence(signaled bool) (hal.Fence, error) {
	return &Fence{object: d.track("fence"), signaled: signaled}, nil
}

// Wait returns immediately: work is executed during submit, so a fence that
// is still unsignaled here was never submitted and reports a timeout.
func (f *Fence) Wait(timeout uint64) error {
	f.dev.count(func(s *Stats) { s.FenceWaits++ })
	f.waits++
	if !f.signaled {
		return hal.ErrTimeout
	}
	return nil
}

func (f *Fence) Reset() error {
	f.signaled = false
	return nil
}

// Signaled reports the fence state.
func (f *Fence) Signaled() bool { return f.signaled }

// Waits is the number of Wait calls on this fence.
func (f *Fence) Waits() int { return f.waits }

type Semaphore struct {
	*object
	signaled bool
}

func (d *Device) CreateSemaphore() (hal.Semaphore, error) {
	return &Semaphore{object: d.track("semaphore")}, nil
}

func (s *Semaphore) wait() {
	if !s.signaled {
		s.dev.count(func(st *Stats) { st.SemaphoreErrors++ })
	}
	s.signaled = false
}

// signal counts signaling a semaphore nobody waited on as an error.
func (s *Semaphore) signal() {
	if s.signaled {
		s.dev.count(func(st *Stats) { st.SemaphoreErrors++ })
	}
	s.signaled = true
}

// Signaled reports the semaphore state.
func (s *Semaphore) Signaled() bool { return s.signaled }
