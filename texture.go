package lumenvk

import (
	"fmt"
	"math/bits"

	"github.com/andewx/lumenvk/hal"
)

// TextureData is decoded pixel data, row-major with Channels bytes per
// pixel.
type TextureData struct {
	Pixels   []byte
	Width    int
	Height   int
	Channels int
}

type TextureOptions struct {
	MipMapping  bool
	MipMapLevel int
	Anisotropy  float32
}

// MipLevelCount is floor(log2(max(width, height))) + 1.
func MipLevelCount(width, height uint32) uint32 {
	return uint32(bits.Len32(max(width, height, 1)))
}

// Texture is a sampled RGBA image, optionally with a generated mip chain.
type Texture struct {
	resource
	ctx     *GraphicsContext
	opts    TextureOptions
	pixels  []byte
	width   uint32
	height  uint32
	image   *Image
	sampler hal.Sampler
}

func NewTexture(ctx *GraphicsContext, name string, opts TextureOptions) *Texture {
	return &Texture{resource: resource{name: name}, ctx: ctx, opts: opts}
}

// SetPixels stores d as RGBA and moves the texture to IN_RAM. Gray and RGB
// data are expanded with an opaque alpha.
func (t *Texture) SetPixels(d TextureData) error {
	if t.destroyed() {
		return fmt.Errorf("set pixels %q: %w", t.name, ErrDestroyed)
	}
	if d.Width <= 0 || d.Height <= 0 {
		return fmt.Errorf("texture %q: invalid size %dx%d", t.name, d.Width, d.Height)
	}
	n := d.Width * d.Height
	if len(d.Pixels) != n*d.Channels {
		return fmt.Errorf("texture %q: %d bytes for %dx%dx%d pixels", t.name, len(d.Pixels), d.Width, d.Height, d.Channels)
	}
	var rgba []byte
	switch d.Channels {
	case 4:
		rgba = d.Pixels
	case 3, 1:
		rgba = make([]byte, n*4)
		for i := 0; i < n; i++ {
			if d.Channels == 3 {
				copy(rgba[i*4:i*4+3], d.Pixels[i*3:i*3+3])
			} else {
				g := d.Pixels[i]
				rgba[i*4], rgba[i*4+1], rgba[i*4+2] = g, g, g
			}
			rgba[i*4+3] = 0xFF
		}
	default:
		return fmt.Errorf("texture %q: unsupported channel count %d", t.name, d.Channels)
	}
	t.pixels = rgba
	t.width, t.height = uint32(d.Width), uint32(d.Height)
	t.set(StatusInRAM)
	return nil
}

func (t *Texture) Image() *Image        { return t.image }
func (t *Texture) Sampler() hal.Sampler { return t.sampler }

func (t *Texture) View() hal.ImageView {
	if t.image == nil {
		return nil
	}
	return t.image.View()
}

// Upload creates the image, copies the pixels through a staging buffer,
// generates the mip chain and creates the sampler. A texture without pixels
// only logs ErrNotInRAM.
func (t *Texture) Upload() error {
	if t.destroyed() {
		return fmt.Errorf("upload %q: %w", t.name, ErrDestroyed)
	}
	if !t.Has(StatusInRAM) {
		Logger().Warn("upload skipped", "texture", t.name, "err", ErrNotInRAM)
		return nil
	}
	t.release(true)

	levels := uint32(1)
	if t.opts.MipMapping {
		levels = MipLevelCount(t.width, t.height)
	}
	img, err := NewImage(t.ctx, hal.ImageDescriptor{
		Label:     t.name,
		Format:    hal.FormatR8G8B8A8Srgb,
		Width:     t.width,
		Height:    t.height,
		MipLevels: levels,
		Samples:   hal.SampleCount1,
		Usage:     hal.ImageUsageTransferSrc | hal.ImageUsageTransferDst | hal.ImageUsageSampled,
		Memory:    hal.MemoryDeviceLocal,
	})
	if err != nil {
		return err
	}
	t.image = img
	t.deletion.Push(func() {
		img.Destroy()
		t.image = nil
	})
	t.set(StatusCreated)

	err = t.ctx.stage(t.name, t.pixels, func(cb hal.CommandBuffer, staging hal.Buffer) {
		img.recordTransition(cb, 0, levels, hal.ImageLayoutTransferDst)
		cb.CopyBufferToImage(staging, img.image, hal.ImageLayoutTransferDst, hal.BufferImageCopy{
			Aspect: hal.ImageAspectColor,
			Width:  t.width,
			Height: t.height,
		})
		img.recordMipChain(cb)
	})
	if err != nil {
		return err
	}

	anisotropy := t.opts.Anisotropy > 0 && t.ctx.Features.Enabled(hal.FeatureSamplerAnisotropy)
	sampler, err := t.ctx.Device.CreateSampler(&hal.SamplerDescriptor{
		MagFilter:        hal.FilterLinear,
		MinFilter:        hal.FilterLinear,
		MipmapFilter:     hal.FilterLinear,
		AddressMode:      hal.AddressModeRepeat,
		AnisotropyEnable: anisotropy,
		MaxAnisotropy:    max(t.opts.Anisotropy, 1),
		MipLodBias:       -float32(t.opts.MipMapLevel) * 10,
		MaxLod:           float32(levels),
	})
	if err != nil {
		return fmt.Errorf("create sampler for %q: %w", t.name, err)
	}
	t.sampler = sampler
	t.deletion.Push(func() {
		sampler.Destroy()
		t.sampler = nil
	})
	t.set(StatusInVRAM)
	Logger().Debug("texture uploaded", "texture", t.name, "levels", levels, "anisotropy", anisotropy)
	return nil
}

// recordMipChain fills levels 1..n-1 by halving blits. Every level starts in
// TransferDst; each source level goes to TransferSrc for its blit and then
// to ShaderReadOnly, and the last level is transitioned on its own.
func (i *Image) recordMipChain(cb hal.CommandBuffer) {
	levels := i.desc.MipLevels
	w, h := int32(i.desc.Width), int32(i.desc.Height)
	for l := uint32(1); l < levels; l++ {
		i.recordTransition(cb, l-1, 1, hal.ImageLayoutTransferSrc)
		nw, nh := max(w/2, 1), max(h/2, 1)
		cb.BlitImage(i.image, hal.ImageLayoutTransferSrc, i.image, hal.ImageLayoutTransferDst, hal.ImageBlit{
			Aspect:     i.aspect,
			SrcLevel:   l - 1,
			SrcOffsets: [2]hal.Offset3D{{}, {X: w, Y: h, Z: 1}},
			DstLevel:   l,
			DstOffsets: [2]hal.Offset3D{{}, {X: nw, Y: nh, Z: 1}},
		}, hal.FilterLinear)
		i.recordTransition(cb, l-1, 1, hal.ImageLayoutShaderReadOnly)
		w, h = nw, nh
	}
	i.recordTransition(cb, levels-1, 1, hal.ImageLayoutShaderReadOnly)
}

// Unload frees the image and sampler and drops the pixels.
func (t *Texture) Unload() {
	t.release(false)
	t.pixels = nil
}
