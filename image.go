package lumenvk

import (
	"fmt"

	"github.com/andewx/lumenvk/hal"
)

type layoutTransition struct {
	from, to hal.ImageLayout
}

type barrierMasks struct {
	srcAccess, dstAccess hal.Access
	srcStage, dstStage   hal.PipelineStage
}

// transitions lists the layout changes the engine performs. Anything else
// is a programming error.
var transitions = map[layoutTransition]barrierMasks{
	{hal.ImageLayoutUndefined, hal.ImageLayoutTransferDst}: {
		hal.AccessNone, hal.AccessTransferWrite,
		hal.PipelineStageTopOfPipe, hal.PipelineStageTransfer,
	},
	{hal.ImageLayoutTransferDst, hal.ImageLayoutShaderReadOnly}: {
		hal.AccessTransferWrite, hal.AccessShaderRead,
		hal.PipelineStageTransfer, hal.PipelineStageFragmentShader,
	},
	{hal.ImageLayoutUndefined, hal.ImageLayoutDepthStencilAttachment}: {
		hal.AccessNone, hal.AccessDepthStencilAttachmentRead | hal.AccessDepthStencilAttachmentWrite,
		hal.PipelineStageTopOfPipe, hal.PipelineStageEarlyFragmentTests,
	},
	{hal.ImageLayoutUndefined, hal.ImageLayoutColorAttachment}: {
		hal.AccessNone, hal.AccessColorAttachmentRead | hal.AccessColorAttachmentWrite,
		hal.PipelineStageTopOfPipe, hal.PipelineStageColorAttachmentOutput,
	},
	{hal.ImageLayoutTransferDst, hal.ImageLayoutTransferSrc}: {
		hal.AccessTransferWrite, hal.AccessTransferRead,
		hal.PipelineStageTransfer, hal.PipelineStageTransfer,
	},
	{hal.ImageLayoutTransferSrc, hal.ImageLayoutShaderReadOnly}: {
		hal.AccessTransferRead, hal.AccessShaderRead,
		hal.PipelineStageTransfer, hal.PipelineStageFragmentShader,
	},
	{hal.ImageLayoutShaderReadOnly, hal.ImageLayoutTransferDst}: {
		hal.AccessShaderRead, hal.AccessTransferWrite,
		hal.PipelineStageFragmentShader, hal.PipelineStageTransfer,
	},
}

func transitionMasks(from, to hal.ImageLayout) barrierMasks {
	m, ok := transitions[layoutTransition{from, to}]
	if !ok {
		panic(fmt.Errorf("%w: %s -> %s", ErrUnknownTransition, from, to))
	}
	return m
}

func aspectOf(f hal.Format) hal.ImageAspect {
	if !f.HasDepth() {
		return hal.ImageAspectColor
	}
	if f.HasStencil() {
		return hal.ImageAspectDepth | hal.ImageAspectStencil
	}
	return hal.ImageAspectDepth
}

// Image is a device image with a view and the layout of every mip level as
// last recorded by the engine.
type Image struct {
	resource
	ctx     *GraphicsContext
	desc    hal.ImageDescriptor
	aspect  hal.ImageAspect
	image   hal.Image
	view    hal.ImageView
	layouts []hal.ImageLayout
}

// NewImage creates the image and a view over all of its levels.
func NewImage(ctx *GraphicsContext, desc hal.ImageDescriptor) (*Image, error) {
	desc.MipLevels = max(desc.MipLevels, 1)
	if desc.Samples == 0 {
		desc.Samples = hal.SampleCount1
	}
	img := &Image{
		resource: resource{name: desc.Label},
		ctx:      ctx,
		desc:     desc,
		aspect:   aspectOf(desc.Format),
		layouts:  make([]hal.ImageLayout, desc.MipLevels),
	}
	h, err := ctx.Device.CreateImage(&img.desc)
	if err != nil {
		return nil, fmt.Errorf("create image %q: %w", desc.Label, err)
	}
	img.image = h
	img.deletion.PushResource(h)
	img.set(StatusCreated)

	view, err := ctx.Device.CreateImageView(h, &hal.ImageViewDescriptor{
		Format:     desc.Format,
		Aspect:     img.aspect,
		LevelCount: desc.MipLevels,
	})
	if err != nil {
		img.Destroy()
		return nil, fmt.Errorf("create view of %q: %w", desc.Label, err)
	}
	img.view = view
	img.deletion.PushResource(view)
	Logger().Debug("image created", "image", desc.Label, "width", desc.Width, "height", desc.Height,
		"levels", desc.MipLevels, "samples", desc.Samples)
	return img, nil
}

func (i *Image) Handle() hal.Image        { return i.image }
func (i *Image) View() hal.ImageView      { return i.view }
func (i *Image) Format() hal.Format       { return i.desc.Format }
func (i *Image) MipLevels() uint32        { return i.desc.MipLevels }
func (i *Image) Samples() hal.SampleCount { return i.desc.Samples }
func (i *Image) Extent() (uint32, uint32) { return i.desc.Width, i.desc.Height }
func (i *Image) Aspect() hal.ImageAspect  { return i.aspect }
func (i *Image) Layout(level uint32) hal.ImageLayout {
	return i.layouts[level]
}

// recordTransition records barriers moving levels [base, base+count) to
// layout. Levels already in layout are skipped. It panics with
// ErrUnknownTransition for a pair missing from the table.
func (i *Image) recordTransition(cb hal.CommandBuffer, base, count uint32, layout hal.ImageLayout) {
	end := base + count
	for l := base; l < end; {
		from := i.layouts[l]
		run := l + 1
		for run < end && i.layouts[run] == from {
			run++
		}
		if from != layout {
			m := transitionMasks(from, layout)
			cb.PipelineBarrier(m.srcStage, m.dstStage, []hal.ImageBarrier{{
				Image:        i.image,
				OldLayout:    from,
				NewLayout:    layout,
				SrcAccess:    m.srcAccess,
				DstAccess:    m.dstAccess,
				Aspect:       i.aspect,
				BaseMipLevel: l,
				LevelCount:   run - l,
			}})
			for k := l; k < run; k++ {
				i.layouts[k] = layout
			}
		}
		l = run
	}
}

// TransitionLayout moves every level to layout with a single-time command.
// It does nothing when all levels are already there. An unsupported
// transition returns a FatalError wrapping ErrUnknownTransition.
func (i *Image) TransitionLayout(layout hal.ImageLayout) error {
	if i.destroyed() {
		return fmt.Errorf("transition %q: %w", i.name, ErrDestroyed)
	}
	same := true
	for _, l := range i.layouts {
		if l != layout {
			same = false
			break
		}
	}
	if same {
		return nil
	}
	return i.ctx.SingleTimeCommands(func(cb hal.CommandBuffer) {
		i.recordTransition(cb, 0, i.desc.MipLevels, layout)
	})
}
