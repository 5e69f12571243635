package noop

import (
	"errors"
	"fmt"
	"image"

	xdraw "golang.org/x/image/draw"

	"github.com/andewx/lumenvk/hal"
)

type CommandPool struct {
	*object
	buffers map[*CommandBuffer]struct{}
}

func (d *Device) CreateCommandPool() (hal.CommandPool, error) {
	return &CommandPool{object: d.track("command-pool"), buffers: make(map[*CommandBuffer]struct{})}, nil
}

func (p *CommandPool) Allocate() (hal.CommandBuffer, error) {
	if p.destroyed {
		return nil, fmt.Errorf("noop: allocate from destroyed command pool")
	}
	cb := &CommandBuffer{object: p.dev.track("command-buffer"), pool: p}
	p.buffers[cb] = struct{}{}
	return cb, nil
}

func (p *CommandPool) Free(cb hal.CommandBuffer) {
	c, ok := cb.(*CommandBuffer)
	if !ok {
		return
	}
	if _, ok := p.buffers[c]; !ok {
		p.dev.count(func(s *Stats) { s.DoubleFrees++ })
		return
	}
	delete(p.buffers, c)
	c.release()
}

// Destroy frees the buffers still allocated from the pool.
func (p *CommandPool) Destroy() {
	if !p.release() {
		return
	}
	for c := range p.buffers {
		c.release()
	}
	p.buffers = nil
}

type cbState int

const (
	cbInitial cbState = iota
	cbRecording
	cbExecutable
)

// CommandBuffer records closures that run when the buffer is submitted.
type CommandBuffer struct {
	*object
	pool    *CommandPool
	state   cbState
	oneTime bool
	ops     []func() error
	inPass  bool
}

var errNotRecording = errors.New("noop: command buffer is not recording")

func (c *CommandBuffer) Begin(oneTimeSubmit bool) error {
	if c.state == cbRecording {
		return fmt.Errorf("noop: command buffer already recording")
	}
	c.state = cbRecording
	c.oneTime = oneTimeSubmit
	c.ops = c.ops[:0]
	return nil
}

func (c *CommandBuffer) End() error {
	if c.state != cbRecording {
		return errNotRecording
	}
	if c.inPass {
		return fmt.Errorf("noop: command buffer ended inside a render pass")
	}
	c.state = cbExecutable
	return nil
}

func (c *CommandBuffer) Reset() error {
	c.state = cbInitial
	c.ops = c.ops[:0]
	c.inPass = false
	return nil
}

func (c *CommandBuffer) record(op func() error) {
	if c.state != cbRecording {
		op = func() error { return errNotRecording }
	}
	c.ops = append(c.ops, op)
}

func (c *CommandBuffer) execute() error {
	if c.state != cbExecutable {
		return fmt.Errorf("noop: submitted command buffer is not executable")
	}
	for _, op := range c.ops {
		if err := op(); err != nil {
			return err
		}
	}
	if c.oneTime {
		c.state = cbInitial
	}
	return nil
}

func (c *CommandBuffer) BeginRenderPass(info *hal.RenderPassBeginInfo) {
	c.inPass = true
	fb, _ := info.Framebuffer.(*Framebuffer)
	c.record(func() error {
		if fb == nil || fb.Destroyed() {
			return fmt.Errorf("noop: render pass begun on a destroyed framebuffer")
		}
		return nil
	})
}

func (c *CommandBuffer) EndRenderPass() {
	c.inPass = false
	c.record(func() error { return nil })
}

func (c *CommandBuffer) SetViewport(vp hal.Viewport) { c.record(func() error { return nil }) }
func (c *CommandBuffer) SetScissor(r hal.Rect2D)     { c.record(func() error { return nil }) }

func (c *CommandBuffer) BindPipeline(p hal.Pipeline) {
	pl, _ := p.(*Pipeline)
	c.record(func() error {
		if pl == nil || pl.Destroyed() {
			return fmt.Errorf("noop: bound pipeline is destroyed")
		}
		return nil
	})
}

func (c *CommandBuffer) BindVertexBuffers(first uint32, buffers []hal.Buffer, offsets []uint64) {
	bufs := append([]hal.Buffer(nil), buffers...)
	c.record(func() error {
		for _, b := range bufs {
			if nb, ok := b.(*Buffer); !ok || nb.Destroyed() {
				return fmt.Errorf("noop: bound vertex buffer is destroyed")
			}
		}
		return nil
	})
}

func (c *CommandBuffer) BindIndexBuffer(buf hal.Buffer, offset uint64, t hal.IndexType) {
	b, _ := buf.(*Buffer)
	c.record(func() error {
		if b == nil || b.Destroyed() {
			return fmt.Errorf("noop: bound index buffer is destroyed")
		}
		return nil
	})
}

func (c *CommandBuffer) BindDescriptorSets(layout hal.PipelineLayout, first uint32, sets []hal.DescriptorSet) {
	c.record(func() error { return nil })
}

func (c *CommandBuffer) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	inPass := c.inPass
	c.record(func() error {
		if !inPass {
			return fmt.Errorf("noop: draw outside a render pass")
		}
		c.dev.count(func(s *Stats) { s.DrawCalls++ })
		return nil
	})
}

func (c *CommandBuffer) PipelineBarrier(src, dst hal.PipelineStage, barriers []hal.ImageBarrier) {
	bs := append([]hal.ImageBarrier(nil), barriers...)
	c.record(func() error {
		for _, b := range bs {
			img, ok := b.Image.(*Image)
			if !ok {
				return fmt.Errorf("noop: barrier on foreign image %T", b.Image)
			}
			for l := b.BaseMipLevel; l < b.BaseMipLevel+b.LevelCount; l++ {
				if b.OldLayout != hal.ImageLayoutUndefined && img.layouts[l] != b.OldLayout {
					c.dev.count(func(s *Stats) { s.LayoutErrors++ })
				}
				img.layouts[l] = b.NewLayout
			}
		}
		return nil
	})
}

func (c *CommandBuffer) CopyBuffer(src, dst hal.Buffer, regions []hal.BufferCopy) {
	s, _ := src.(*Buffer)
	d, _ := dst.(*Buffer)
	rs := append([]hal.BufferCopy(nil), regions...)
	c.record(func() error {
		if s == nil || d == nil {
			return fmt.Errorf("noop: copy between foreign buffers")
		}
		for _, r := range rs {
			if r.SrcOffset+r.Size > s.desc.Size || r.DstOffset+r.Size > d.desc.Size {
				return fmt.Errorf("noop: buffer copy region out of range")
			}
			copy(d.data[r.DstOffset:r.DstOffset+r.Size], s.data[r.SrcOffset:r.SrcOffset+r.Size])
		}
		return nil
	})
}

func (c *CommandBuffer) CopyBufferToImage(src hal.Buffer, dst hal.Image, layout hal.ImageLayout, region hal.BufferImageCopy) {
	s, _ := src.(*Buffer)
	img, _ := dst.(*Image)
	c.record(func() error {
		if s == nil || img == nil {
			return fmt.Errorf("noop: copy with foreign objects")
		}
		if img.layouts[region.MipLevel] != hal.ImageLayoutTransferDst || layout != hal.ImageLayoutTransferDst {
			c.dev.count(func(st *Stats) { st.LayoutErrors++ })
		}
		px := img.Level(region.MipLevel)
		if px == nil {
			return nil
		}
		n := int(region.Width) * int(region.Height) * 4
		if region.BufferOffset+uint64(n) > s.desc.Size {
			return fmt.Errorf("noop: image copy reads past the end of the buffer")
		}
		copy(px.Pix, s.data[region.BufferOffset:region.BufferOffset+uint64(n)])
		return nil
	})
}

func (c *CommandBuffer) BlitImage(src hal.Image, srcLayout hal.ImageLayout, dst hal.Image, dstLayout hal.ImageLayout, region hal.ImageBlit, filter hal.Filter) {
	si, _ := src.(*Image)
	di, _ := dst.(*Image)
	c.record(func() error {
		if si == nil || di == nil {
			return fmt.Errorf("noop: blit with foreign images")
		}
		if si.layouts[region.SrcLevel] != srcLayout || di.layouts[region.DstLevel] != dstLayout {
			c.dev.count(func(s *Stats) { s.LayoutErrors++ })
		}
		c.dev.count(func(s *Stats) { s.Blits++ })
		sp, dp := si.Level(region.SrcLevel), di.Level(region.DstLevel)
		if sp == nil || dp == nil {
			return nil
		}
		scale(dp, rect(region.DstOffsets), sp, rect(region.SrcOffsets), filter)
		return nil
	})
}

func rect(o [2]hal.Offset3D) image.Rectangle {
	return image.Rect(int(o[0].X), int(o[0].Y), int(o[1].X), int(o[1].Y))
}

// scale resamples src into dst with the interpolator matching filter.
func scale(dst *image.RGBA, dr image.Rectangle, src *image.RGBA, sr image.Rectangle, filter hal.Filter) {
	var s xdraw.Scaler = xdraw.NearestNeighbor
	if filter == hal.FilterLinear {
		s = xdraw.BiLinear
	}
	s.Scale(dst, dr, src, sr, xdraw.Src, nil)
}

func (c *CommandBuffer) BuildAccelerationStructure(build *hal.AccelerationStructureBuild) {
	b := *build
	c.record(func() error {
		c.dev.count(func(s *Stats) { s.DeviceBuilds++ })
		return c.dev.buildAccelerationStructure(&b)
	})
}
