package vulkan

import (
	"errors"
	"fmt"

	vk "github.com/vulkan-go/vulkan"

	"github.com/andewx/lumenvk/hal"
)

type Sampler struct {
	device  vk.Device
	sampler vk.Sampler
}

func (d *Device) CreateSampler(desc *hal.SamplerDescriptor) (hal.Sampler, error) {
	if desc.AnisotropyEnable && !d.features.Enabled(hal.FeatureSamplerAnisotropy) {
		return nil, fmt.Errorf("vulkan: sampler anisotropy: %w", hal.ErrUnsupported)
	}
	address := vk.SamplerAddressMode(desc.AddressMode)
	var sampler vk.Sampler
	ret := vk.CreateSampler(d.device, &vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               vk.Filter(desc.MagFilter),
		MinFilter:               vk.Filter(desc.MinFilter),
		MipmapMode:              vk.SamplerMipmapMode(desc.MipmapFilter),
		AddressModeU:            address,
		AddressModeV:            address,
		AddressModeW:            address,
		MipLodBias:              desc.MipLodBias,
		AnisotropyEnable:        bool32(desc.AnisotropyEnable),
		MaxAnisotropy:           desc.MaxAnisotropy,
		CompareEnable:           vk.False,
		CompareOp:               vk.CompareOpAlways,
		MinLod:                  desc.MinLod,
		MaxLod:                  desc.MaxLod,
		BorderColor:             vk.BorderColorIntOpaqueBlack,
		UnnormalizedCoordinates: vk.False,
	}, nil, &sampler)
	if err := NewError(ret); err != nil {
		return nil, err
	}
	return &Sampler{device: d.device, sampler: sampler}, nil
}

func (s *Sampler) Destroy() {
	if s.device == nil {
		return
	}
	vk.DestroySampler(s.device, s.sampler, nil)
	s.device = nil
}

type ShaderModule struct {
	device vk.Device
	module vk.ShaderModule
}

func (d *Device) CreateShaderModule(code []byte) (hal.ShaderModule, error) {
	if len(code) == 0 || len(code)%4 != 0 {
		return nil, errors.New("vulkan: shader bytecode length is not a multiple of 4")
	}
	var module vk.ShaderModule
	ret := vk.CreateShaderModule(d.device, &vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code)),
		PCode:    sliceUint32(code),
	}, nil, &module)
	if err := NewError(ret); err != nil {
		return nil, err
	}
	return &ShaderModule{device: d.device, module: module}, nil
}

func (m *ShaderModule) Destroy() {
	if m.device == nil {
		return
	}
	vk.DestroyShaderModule(m.device, m.module, nil)
	m.device = nil
}

type RenderPass struct {
	device vk.Device
	pass   vk.RenderPass
}

func attachmentRefs(refs []hal.AttachmentReference) []vk.AttachmentReference {
	if len(refs) == 0 {
		return nil
	}
	out := make([]vk.AttachmentReference, len(refs))
	for i, r := range refs {
		out[i] = vk.AttachmentReference{Attachment: r.Attachment, Layout: vk.ImageLayout(r.Layout)}
	}
	return out
}

func (d *Device) CreateRenderPass(desc *hal.RenderPassDescriptor) (hal.RenderPass, error) {
	attachments := make([]vk.AttachmentDescription, len(desc.Attachments))
	for i, a := range desc.Attachments {
		attachments[i] = vk.AttachmentDescription{
			Format:         vk.Format(a.Format),
			Samples:        vk.SampleCountFlagBits(a.Samples),
			LoadOp:         vk.AttachmentLoadOp(a.LoadOp),
			StoreOp:        vk.AttachmentStoreOp(a.StoreOp),
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayout(a.InitialLayout),
			FinalLayout:    vk.ImageLayout(a.FinalLayout),
		}
	}

	sp := desc.Subpass
	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: uint32(len(sp.ColorAttachments)),
		PColorAttachments:    attachmentRefs(sp.ColorAttachments),
		PResolveAttachments:  attachmentRefs(sp.ResolveAttachments),
	}
	if sp.DepthAttachment != nil {
		subpass.PDepthStencilAttachment = &vk.AttachmentReference{
			Attachment: sp.DepthAttachment.Attachment,
			Layout:     vk.ImageLayout(sp.DepthAttachment.Layout),
		}
	}

	stages := vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit | vk.PipelineStageEarlyFragmentTestsBit)
	dependencies := []vk.SubpassDependency{{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  stages,
		DstStageMask:  stages,
		SrcAccessMask: 0,
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentWriteBit | vk.AccessDepthStencilAttachmentWriteBit),
	}}

	var pass vk.RenderPass
	ret := vk.CreateRenderPass(d.device, &vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: uint32(len(dependencies)),
		PDependencies:   dependencies,
	}, nil, &pass)
	if err := NewError(ret); err != nil {
		return nil, err
	}
	return &RenderPass{device: d.device, pass: pass}, nil
}

func (r *RenderPass) Destroy() {
	if r.device == nil {
		return
	}
	vk.DestroyRenderPass(r.device, r.pass, nil)
	r.device = nil
}

type Framebuffer struct {
	device      vk.Device
	framebuffer vk.Framebuffer
}

func (d *Device) CreateFramebuffer(desc *hal.FramebufferDescriptor) (hal.Framebuffer, error) {
	pass, ok := desc.RenderPass.(*RenderPass)
	if !ok {
		return nil, errForeign
	}
	views := make([]vk.ImageView, len(desc.Attachments))
	for i, a := range desc.Attachments {
		v, ok := a.(*ImageView)
		if !ok {
			return nil, errForeign
		}
		views[i] = v.view
	}
	var fb vk.Framebuffer
	ret := vk.CreateFramebuffer(d.device, &vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      pass.pass,
		AttachmentCount: uint32(len(views)),
		PAttachments:    views,
		Width:           desc.Width,
		Height:          desc.Height,
		Layers:          1,
	}, nil, &fb)
	if err := NewError(ret); err != nil {
		return nil, err
	}
	return &Framebuffer{device: d.device, framebuffer: fb}, nil
}

func (f *Framebuffer) Destroy() {
	if f.device == nil {
		return
	}
	vk.DestroyFramebuffer(f.device, f.framebuffer, nil)
	f.device = nil
}

type DescriptorSetLayout struct {
	device vk.Device
	layout vk.DescriptorSetLayout
}

func (d *Device) CreateDescriptorSetLayout(bindings []hal.DescriptorSetLayoutBinding) (hal.DescriptorSetLayout, error) {
	vkBindings := make([]vk.DescriptorSetLayoutBinding, len(bindings))
	for i, b := range bindings {
		if b.Type == hal.DescriptorTypeAccelerationStructure {
			return nil, fmt.Errorf("vulkan: acceleration structure binding: %w", hal.ErrUnsupported)
		}
		vkBindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:         b.Binding,
			DescriptorType:  vk.DescriptorType(b.Type),
			DescriptorCount: max(b.Count, 1),
			StageFlags:      vk.ShaderStageFlags(b.Stages),
		}
	}
	var layout vk.DescriptorSetLayout
	ret := vk.CreateDescriptorSetLayout(d.device, &vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(vkBindings)),
		PBindings:    vkBindings,
	}, nil, &layout)
	if err := NewError(ret); err != nil {
		return nil, err
	}
	return &DescriptorSetLayout{device: d.device, layout: layout}, nil
}

func (l *DescriptorSetLayout) Destroy() {
	if l.device == nil {
		return
	}
	vk.DestroyDescriptorSetLayout(l.device, l.layout, nil)
	l.device = nil
}

type DescriptorPool struct {
	device vk.Device
	pool   vk.DescriptorPool
}

func (d *Device) CreateDescriptorPool(desc *hal.DescriptorPoolDescriptor) (hal.DescriptorPool, error) {
	sizes := make([]vk.DescriptorPoolSize, len(desc.Sizes))
	for i, s := range desc.Sizes {
		sizes[i] = vk.DescriptorPoolSize{Type: vk.DescriptorType(s.Type), DescriptorCount: s.Count}
	}
	var pool vk.DescriptorPool
	ret := vk.CreateDescriptorPool(d.device, &vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       desc.MaxSets,
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}, nil, &pool)
	if err := NewError(ret); err != nil {
		return nil, err
	}
	return &DescriptorPool{device: d.device, pool: pool}, nil
}

func (p *DescriptorPool) Allocate(layout hal.DescriptorSetLayout) (hal.DescriptorSet, error) {
	l, ok := layout.(*DescriptorSetLayout)
	if !ok {
		return nil, errForeign
	}
	var set vk.DescriptorSet
	ret := vk.AllocateDescriptorSets(p.device, &vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     p.pool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{l.layout},
	}, &set)
	if err := NewError(ret); err != nil {
		return nil, err
	}
	return &DescriptorSet{device: p.device, set: set}, nil
}

func (p *DescriptorPool) Destroy() {
	if p.device == nil {
		return
	}
	vk.DestroyDescriptorPool(p.device, p.pool, nil)
	p.device = nil
}

type DescriptorSet struct {
	device vk.Device
	set    vk.DescriptorSet
}

func (s *DescriptorSet) Update(writes []hal.DescriptorWrite) error {
	vkWrites := make([]vk.WriteDescriptorSet, 0, len(writes))
	for _, w := range writes {
		write := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          s.set,
			DstBinding:      w.Binding,
			DescriptorCount: 1,
			DescriptorType:  vk.DescriptorType(w.Type),
		}
		switch w.Type {
		case hal.DescriptorTypeUniformBuffer, hal.DescriptorTypeStorageBuffer:
			b, ok := w.Buffer.(*Buffer)
			if !ok {
				return errForeign
			}
			size := w.Range
			if size == 0 {
				size = b.desc.Size
			}
			write.PBufferInfo = []vk.DescriptorBufferInfo{{Buffer: b.buffer, Range: vk.DeviceSize(size)}}
		case hal.DescriptorTypeCombinedImageSampler, hal.DescriptorTypeSampledImage, hal.DescriptorTypeSampler:
			info := vk.DescriptorImageInfo{ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal}
			if v, ok := w.View.(*ImageView); ok {
				info.ImageView = v.view
			}
			if sm, ok := w.Sampler.(*Sampler); ok {
				info.Sampler = sm.sampler
			}
			write.PImageInfo = []vk.DescriptorImageInfo{info}
		default:
			return fmt.Errorf("vulkan: descriptor type %s: %w", w.Type, hal.ErrUnsupported)
		}
		vkWrites = append(vkWrites, write)
	}
	vk.UpdateDescriptorSets(s.device, uint32(len(vkWrites)), vkWrites, 0, nil)
	return nil
}

type PipelineLayout struct {
	device vk.Device
	layout vk.PipelineLayout
}

func (d *Device) CreatePipelineLayout(layouts []hal.DescriptorSetLayout) (hal.PipelineLayout, error) {
	sets := make([]vk.DescriptorSetLayout, len(layouts))
	for i, l := range layouts {
		dl, ok := l.(*DescriptorSetLayout)
		if !ok {
			return nil, errForeign
		}
		sets[i] = dl.layout
	}
	var layout vk.PipelineLayout
	ret := vk.CreatePipelineLayout(d.device, &vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: uint32(len(sets)),
		PSetLayouts:    sets,
	}, nil, &layout)
	if err := NewError(ret); err != nil {
		return nil, err
	}
	return &PipelineLayout{device: d.device, layout: layout}, nil
}

func (l *PipelineLayout) Destroy() {
	if l.device == nil {
		return
	}
	vk.DestroyPipelineLayout(l.device, l.layout, nil)
	l.device = nil
}

type Pipeline struct {
	device   vk.Device
	pipeline vk.Pipeline
}

func (d *Device) CreateGraphicsPipeline(desc *hal.GraphicsPipelineDescriptor) (hal.Pipeline, error) {
	layout, ok := desc.Layout.(*PipelineLayout)
	if !ok {
		return nil, errForeign
	}
	pass, ok := desc.RenderPass.(*RenderPass)
	if !ok {
		return nil, errForeign
	}
	if desc.SampleShading && !d.features.Enabled(hal.FeatureSampleRateShading) {
		return nil, fmt.Errorf("vulkan: sample rate shading: %w", hal.ErrUnsupported)
	}

	stages := make([]vk.PipelineShaderStageCreateInfo, len(desc.Stages))
	for i, s := range desc.Stages {
		m, ok := s.Module.(*ShaderModule)
		if !ok {
			return nil, errForeign
		}
		entry := s.EntryPoint
		if entry == "" {
			entry = "main"
		}
		stages[i] = vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageFlagBits(s.Stage),
			Module: m.module,
			PName:  safeString(entry),
		}
	}

	bindings := make([]vk.VertexInputBindingDescription, len(desc.VertexBindings))
	for i, b := range desc.VertexBindings {
		bindings[i] = vk.VertexInputBindingDescription{
			Binding:   b.Binding,
			Stride:    b.Stride,
			InputRate: vk.VertexInputRateVertex,
		}
	}
	attributes := make([]vk.VertexInputAttributeDescription, len(desc.VertexAttributes))
	for i, a := range desc.VertexAttributes {
		attributes[i] = vk.VertexInputAttributeDescription{
			Location: a.Location,
			Binding:  a.Binding,
			Format:   vk.Format(a.Format),
			Offset:   a.Offset,
		}
	}

	stencil := vk.StencilOpState{
		FailOp:      vk.StencilOpKeep,
		PassOp:      vk.StencilOpKeep,
		DepthFailOp: vk.StencilOpKeep,
		CompareOp:   vk.CompareOpAlways,
	}
	dynamicStates := []vk.DynamicState{vk.DynamicStateViewport, vk.DynamicStateScissor}

	info := vk.GraphicsPipelineCreateInfo{
		SType:      vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount: uint32(len(stages)),
		PStages:    stages,
		PVertexInputState: &vk.PipelineVertexInputStateCreateInfo{
			SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
			VertexBindingDescriptionCount:   uint32(len(bindings)),
			PVertexBindingDescriptions:      bindings,
			VertexAttributeDescriptionCount: uint32(len(attributes)),
			PVertexAttributeDescriptions:    attributes,
		},
		PInputAssemblyState: &vk.PipelineInputAssemblyStateCreateInfo{
			SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
			Topology: vk.PrimitiveTopologyTriangleList,
		},
		PViewportState: &vk.PipelineViewportStateCreateInfo{
			SType:         vk.StructureTypePipelineViewportStateCreateInfo,
			ViewportCount: 1,
			ScissorCount:  1,
		},
		PRasterizationState: &vk.PipelineRasterizationStateCreateInfo{
			SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
			PolygonMode: vk.PolygonModeFill,
			CullMode:    vk.CullModeFlags(desc.CullMode),
			FrontFace:   vk.FrontFaceCounterClockwise,
			LineWidth:   1.0,
		},
		PMultisampleState: &vk.PipelineMultisampleStateCreateInfo{
			SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
			RasterizationSamples: vk.SampleCountFlagBits(max(desc.Samples, hal.SampleCount1)),
			SampleShadingEnable:  bool32(desc.SampleShading),
			MinSampleShading:     desc.MinSampleShading,
		},
		PDepthStencilState: &vk.PipelineDepthStencilStateCreateInfo{
			SType:            vk.StructureTypePipelineDepthStencilStateCreateInfo,
			DepthTestEnable:  bool32(desc.DepthTest),
			DepthWriteEnable: bool32(desc.DepthTest),
			DepthCompareOp:   vk.CompareOpLessOrEqual,
			Front:            stencil,
			Back:             stencil,
		},
		PColorBlendState: &vk.PipelineColorBlendStateCreateInfo{
			SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
			AttachmentCount: 1,
			PAttachments: []vk.PipelineColorBlendAttachmentState{{
				ColorWriteMask: 0xF,
				BlendEnable:    vk.False,
			}},
		},
		PDynamicState: &vk.PipelineDynamicStateCreateInfo{
			SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
			DynamicStateCount: uint32(len(dynamicStates)),
			PDynamicStates:    dynamicStates,
		},
		Layout:     layout.layout,
		RenderPass: pass.pass,
	}

	pipelines := make([]vk.Pipeline, 1)
	ret := vk.CreateGraphicsPipelines(d.device, vk.PipelineCache(vk.NullHandle), 1,
		[]vk.GraphicsPipelineCreateInfo{info}, nil, pipelines)
	if err := NewError(ret); err != nil {
		return nil, err
	}
	return &Pipeline{device: d.device, pipeline: pipelines[0]}, nil
}

func (p *Pipeline) Destroy() {
	if p.device == nil {
		return
	}
	vk.DestroyPipeline(p.device, p.pipeline, nil)
	p.device = nil
}
