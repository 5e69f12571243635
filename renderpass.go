package lumenvk

import (
	"fmt"

	"github.com/andewx/lumenvk/hal"
)

const depthFormat = hal.FormatD32Sfloat

// RenderPass is the single-subpass forward pass. With one sample it has a
// color and a depth attachment and the color attachment is the swapchain
// image. With more samples the color and depth attachments are
// multisampled and a third, single-sample attachment resolves into the
// swapchain image.
type RenderPass struct {
	resource
	pass    hal.RenderPass
	format  hal.Format
	samples hal.SampleCount
}

// NewRenderPass describes the attachments for the swapchain format and the
// sample count.
func NewRenderPass(ctx *GraphicsContext, format hal.Format, samples hal.SampleCount) (*RenderPass, error) {
	desc := renderPassDescriptor(format, samples)
	pass, err := ctx.Device.CreateRenderPass(&desc)
	if err != nil {
		return nil, fatal("create render pass", err)
	}
	rp := &RenderPass{resource: resource{name: "render-pass"}, pass: pass, format: format, samples: samples}
	rp.deletion.PushResource(pass)
	rp.set(StatusCreated)
	Logger().Debug("render pass created", "format", format, "samples", samples, "attachments", len(desc.Attachments))
	return rp, nil
}

func renderPassDescriptor(format hal.Format, samples hal.SampleCount) hal.RenderPassDescriptor {
	color := hal.AttachmentDescription{
		Format:        format,
		Samples:       samples,
		LoadOp:        hal.LoadOpClear,
		StoreOp:       hal.StoreOpStore,
		InitialLayout: hal.ImageLayoutUndefined,
		FinalLayout:   hal.ImageLayoutPresentSrc,
	}
	depth := hal.AttachmentDescription{
		Format:        depthFormat,
		Samples:       samples,
		LoadOp:        hal.LoadOpClear,
		StoreOp:       hal.StoreOpDontCare,
		InitialLayout: hal.ImageLayoutUndefined,
		FinalLayout:   hal.ImageLayoutDepthStencilAttachment,
	}
	sub := hal.SubpassDescription{
		ColorAttachments: []hal.AttachmentReference{{Attachment: 0, Layout: hal.ImageLayoutColorAttachment}},
		DepthAttachment:  &hal.AttachmentReference{Attachment: 1, Layout: hal.ImageLayoutDepthStencilAttachment},
	}
	if samples == hal.SampleCount1 {
		return hal.RenderPassDescriptor{Attachments: []hal.AttachmentDescription{color, depth}, Subpass: sub}
	}

	color.StoreOp = hal.StoreOpDontCare
	color.FinalLayout = hal.ImageLayoutColorAttachment
	resolve := hal.AttachmentDescription{
		Format:        format,
		Samples:       hal.SampleCount1,
		LoadOp:        hal.LoadOpDontCare,
		StoreOp:       hal.StoreOpStore,
		InitialLayout: hal.ImageLayoutUndefined,
		FinalLayout:   hal.ImageLayoutPresentSrc,
	}
	sub.ResolveAttachments = []hal.AttachmentReference{{Attachment: 2, Layout: hal.ImageLayoutColorAttachment}}
	return hal.RenderPassDescriptor{Attachments: []hal.AttachmentDescription{color, depth, resolve}, Subpass: sub}
}

func (r *RenderPass) Handle() hal.RenderPass        { return r.pass }
func (r *RenderPass) Format() hal.Format            { return r.format }
func (r *RenderPass) Samples() hal.SampleCount      { return r.samples }
func (r *RenderPass) HasResolve() bool              { return r.samples > hal.SampleCount1 }
func (r *RenderPass) AttachmentCount() int          { return 2 + boolToInt(r.HasResolve()) }
func (r *RenderPass) ClearValues() []hal.ClearValue { return clearValues(r.samples) }

// clearValues returns one value per attachment: color, depth and, when
// multisampled, the resolve target.
func clearValues(samples hal.SampleCount) []hal.ClearValue {
	values := []hal.ClearValue{
		{Color: [4]float32{0, 0, 0, 1}},
		{Depth: 1},
	}
	if samples > hal.SampleCount1 {
		values = append(values, hal.ClearValue{Color: [4]float32{0, 0, 0, 1}})
	}
	return values
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Framebuffer binds the attachments of one swapchain image. It owns the
// depth image and, when multisampled, the color image.
type Framebuffer struct {
	resource
	framebuffer hal.Framebuffer
	color       *Image
	depth       *Image
	// target is the swapchain view written to, as color or resolve
	// attachment.
	target hal.ImageView
}

// NewFramebuffer builds the framebuffer of swapchain image view for pass.
func NewFramebuffer(ctx *GraphicsContext, pass *RenderPass, view hal.ImageView, extent hal.Extent2D, index int) (fb *Framebuffer, err error) {
	fb = &Framebuffer{resource: resource{name: fmt.Sprintf("framebuffer[%d]", index)}, target: view}
	defer func() {
		if err != nil {
			fb.Destroy()
			fb = nil
		}
	}()

	fb.depth, err = NewImage(ctx, hal.ImageDescriptor{
		Label:     fmt.Sprintf("depth[%d]", index),
		Format:    depthFormat,
		Width:     extent.Width,
		Height:    extent.Height,
		MipLevels: 1,
		Samples:   pass.samples,
		Usage:     hal.ImageUsageDepthStencilAttachment,
		Memory:    hal.MemoryDeviceLocal,
	})
	if err != nil {
		return fb, err
	}
	fb.deletion.PushResource(fb.depth)
	if err = fb.depth.TransitionLayout(hal.ImageLayoutDepthStencilAttachment); err != nil {
		return fb, err
	}

	attachments := []hal.ImageView{view, fb.depth.View()}
	if pass.HasResolve() {
		fb.color, err = NewImage(ctx, hal.ImageDescriptor{
			Label:     fmt.Sprintf("msaa-color[%d]", index),
			Format:    pass.format,
			Width:     extent.Width,
			Height:    extent.Height,
			MipLevels: 1,
			Samples:   pass.samples,
			Usage:     hal.ImageUsageColorAttachment | hal.ImageUsageTransientAttachment,
			Memory:    hal.MemoryDeviceLocal,
		})
		if err != nil {
			return fb, err
		}
		fb.deletion.PushResource(fb.color)
		if err = fb.color.TransitionLayout(hal.ImageLayoutColorAttachment); err != nil {
			return fb, err
		}
		attachments = []hal.ImageView{fb.color.View(), fb.depth.View(), view}
	}

	fb.framebuffer, err = ctx.Device.CreateFramebuffer(&hal.FramebufferDescriptor{
		RenderPass:  pass.pass,
		Attachments: attachments,
		Width:       extent.Width,
		Height:      extent.Height,
	})
	if err != nil {
		return fb, fmt.Errorf("create %s: %w", fb.name, err)
	}
	fb.deletion.PushResource(fb.framebuffer)
	fb.set(StatusCreated)
	return fb, nil
}

func (f *Framebuffer) Handle() hal.Framebuffer { return f.framebuffer }

// ColorImage is the multisampled color image, nil with one sample.
func (f *Framebuffer) ColorImage() *Image { return f.color }

func (f *Framebuffer) DepthImage() *Image { return f.depth }

// Target is the swapchain view the pass presents from.
func (f *Framebuffer) Target() hal.ImageView { return f.target }
