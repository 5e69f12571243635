package vulkan

import (
	vk "github.com/vulkan-go/vulkan"

	"github.com/andewx/lumenvk/hal"
)

type CommandPool struct {
	device vk.Device
	pool   vk.CommandPool
}

func (d *Device) CreateCommandPool() (hal.CommandPool, error) {
	var pool vk.CommandPool
	ret := vk.CreateCommandPool(d.device, &vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
		QueueFamilyIndex: d.adapter.graphicsQueueIndex,
	}, nil, &pool)
	if err := NewError(ret); err != nil {
		return nil, err
	}
	return &CommandPool{device: d.device, pool: pool}, nil
}

func (p *CommandPool) Allocate() (hal.CommandBuffer, error) {
	buffers := make([]vk.CommandBuffer, 1)
	ret := vk.AllocateCommandBuffers(p.device, &vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        p.pool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}, buffers)
	if err := NewError(ret); err != nil {
		return nil, err
	}
	return &CommandBuffer{cmd: buffers[0]}, nil
}

func (p *CommandPool) Free(cb hal.CommandBuffer) {
	c, ok := cb.(*CommandBuffer)
	if !ok || c.cmd == nil {
		return
	}
	vk.FreeCommandBuffers(p.device, p.pool, 1, []vk.CommandBuffer{c.cmd})
	c.cmd = nil
}

// Destroy frees every buffer still allocated from the pool.
func (p *CommandPool) Destroy() {
	if p.device == nil {
		return
	}
	vk.DestroyCommandPool(p.device, p.pool, nil)
	p.device = nil
}

type CommandBuffer struct {
	cmd vk.CommandBuffer
}

func (c *CommandBuffer) Begin(oneTimeSubmit bool) error {
	var flags vk.CommandBufferUsageFlags
	if oneTimeSubmit {
		flags = vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}
	return NewError(vk.BeginCommandBuffer(c.cmd, &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: flags,
	}))
}

func (c *CommandBuffer) End() error   { return NewError(vk.EndCommandBuffer(c.cmd)) }
func (c *CommandBuffer) Reset() error { return NewError(vk.ResetCommandBuffer(c.cmd, 0)) }

func (c *CommandBuffer) BeginRenderPass(info *hal.RenderPassBeginInfo) {
	clearValues := make([]vk.ClearValue, len(info.ClearValues))
	for i, cv := range info.ClearValues {
		if i == 1 {
			clearValues[i] = vk.NewClearDepthStencil(cv.Depth, cv.Stencil)
			continue
		}
		clearValues[i] = vk.NewClearValue(cv.Color[:])
	}
	vk.CmdBeginRenderPass(c.cmd, &vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  info.RenderPass.(*RenderPass).pass,
		Framebuffer: info.Framebuffer.(*Framebuffer).framebuffer,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: info.Area.X, Y: info.Area.Y},
			Extent: vk.Extent2D{Width: info.Area.Width, Height: info.Area.Height},
		},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}, vk.SubpassContentsInline)
}

func (c *CommandBuffer) EndRenderPass() { vk.CmdEndRenderPass(c.cmd) }

func (c *CommandBuffer) SetViewport(vp hal.Viewport) {
	vk.CmdSetViewport(c.cmd, 0, 1, []vk.Viewport{{
		X: vp.X, Y: vp.Y, Width: vp.Width, Height: vp.Height,
		MinDepth: vp.MinDepth, MaxDepth: vp.MaxDepth,
	}})
}

func (c *CommandBuffer) SetScissor(r hal.Rect2D) {
	vk.CmdSetScissor(c.cmd, 0, 1, []vk.Rect2D{{
		Offset: vk.Offset2D{X: r.X, Y: r.Y},
		Extent: vk.Extent2D{Width: r.Width, Height: r.Height},
	}})
}

func (c *CommandBuffer) BindPipeline(p hal.Pipeline) {
	vk.CmdBindPipeline(c.cmd, vk.PipelineBindPointGraphics, p.(*Pipeline).pipeline)
}

func (c *CommandBuffer) BindVertexBuffers(first uint32, buffers []hal.Buffer, offsets []uint64) {
	bufs := make([]vk.Buffer, len(buffers))
	offs := make([]vk.DeviceSize, len(buffers))
	for i, b := range buffers {
		bufs[i] = b.(*Buffer).buffer
		if i < len(offsets) {
			offs[i] = vk.DeviceSize(offsets[i])
		}
	}
	vk.CmdBindVertexBuffers(c.cmd, first, uint32(len(bufs)), bufs, offs)
}

func (c *CommandBuffer) BindIndexBuffer(buf hal.Buffer, offset uint64, t hal.IndexType) {
	vk.CmdBindIndexBuffer(c.cmd, buf.(*Buffer).buffer, vk.DeviceSize(offset), vk.IndexType(t))
}

func (c *CommandBuffer) BindDescriptorSets(layout hal.PipelineLayout, first uint32, sets []hal.DescriptorSet) {
	vkSets := make([]vk.DescriptorSet, len(sets))
	for i, s := range sets {
		vkSets[i] = s.(*DescriptorSet).set
	}
	vk.CmdBindDescriptorSets(c.cmd, vk.PipelineBindPointGraphics, layout.(*PipelineLayout).layout,
		first, uint32(len(vkSets)), vkSets, 0, nil)
}

func (c *CommandBuffer) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	vk.CmdDrawIndexed(c.cmd, indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
}

func (c *CommandBuffer) PipelineBarrier(src, dst hal.PipelineStage, barriers []hal.ImageBarrier) {
	vkBarriers := make([]vk.ImageMemoryBarrier, len(barriers))
	for i, b := range barriers {
		vkBarriers[i] = vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       vk.AccessFlags(b.SrcAccess),
			DstAccessMask:       vk.AccessFlags(b.DstAccess),
			OldLayout:           vk.ImageLayout(b.OldLayout),
			NewLayout:           vk.ImageLayout(b.NewLayout),
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image:               b.Image.(*Image).image,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask:   vk.ImageAspectFlags(b.Aspect),
				BaseMipLevel: b.BaseMipLevel,
				LevelCount:   b.LevelCount,
				LayerCount:   1,
			},
		}
	}
	vk.CmdPipelineBarrier(c.cmd, vk.PipelineStageFlags(src), vk.PipelineStageFlags(dst), 0,
		0, nil, 0, nil, uint32(len(vkBarriers)), vkBarriers)
}

func (c *CommandBuffer) CopyBuffer(src, dst hal.Buffer, regions []hal.BufferCopy) {
	vkRegions := make([]vk.BufferCopy, len(regions))
	for i, r := range regions {
		vkRegions[i] = vk.BufferCopy{
			SrcOffset: vk.DeviceSize(r.SrcOffset),
			DstOffset: vk.DeviceSize(r.DstOffset),
			Size:      vk.DeviceSize(r.Size),
		}
	}
	vk.CmdCopyBuffer(c.cmd, src.(*Buffer).buffer, dst.(*Buffer).buffer, uint32(len(vkRegions)), vkRegions)
}

func (c *CommandBuffer) CopyBufferToImage(src hal.Buffer, dst hal.Image, layout hal.ImageLayout, region hal.BufferImageCopy) {
	vk.CmdCopyBufferToImage(c.cmd, src.(*Buffer).buffer, dst.(*Image).image, vk.ImageLayout(layout), 1,
		[]vk.BufferImageCopy{{
			BufferOffset: vk.DeviceSize(region.BufferOffset),
			ImageSubresource: vk.ImageSubresourceLayers{
				AspectMask: vk.ImageAspectFlags(region.Aspect),
				MipLevel:   region.MipLevel,
				LayerCount: 1,
			},
			ImageExtent: vk.Extent3D{Width: region.Width, Height: region.Height, Depth: 1},
		}})
}

func offsets(o [2]hal.Offset3D) [2]vk.Offset3D {
	return [2]vk.Offset3D{
		{X: o[0].X, Y: o[0].Y, Z: o[0].Z},
		{X: o[1].X, Y: o[1].Y, Z: o[1].Z},
	}
}

func (c *CommandBuffer) BlitImage(src hal.Image, srcLayout hal.ImageLayout, dst hal.Image, dstLayout hal.ImageLayout, region hal.ImageBlit, filter hal.Filter) {
	vk.CmdBlitImage(c.cmd,
		src.(*Image).image, vk.ImageLayout(srcLayout),
		dst.(*Image).image, vk.ImageLayout(dstLayout),
		1, []vk.ImageBlit{{
			SrcSubresource: vk.ImageSubresourceLayers{
				AspectMask: vk.ImageAspectFlags(region.Aspect),
				MipLevel:   region.SrcLevel,
				LayerCount: 1,
			},
			SrcOffsets: offsets(region.SrcOffsets),
			DstSubresource: vk.ImageSubresourceLayers{
				AspectMask: vk.ImageAspectFlags(region.Aspect),
				MipLevel:   region.DstLevel,
				LayerCount: 1,
			},
			DstOffsets: offsets(region.DstOffsets),
		}}, vk.Filter(filter))
}

// BuildAccelerationStructure records nothing; the device never enables the
// acceleration structure feature.
func (c *CommandBuffer) BuildAccelerationStructure(build *hal.AccelerationStructureBuild) {}
