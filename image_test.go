package lumenvk

import (
	"errors"
	"testing"

	"github.com/andewx/lumenvk/hal"
	"github.com/andewx/lumenvk/hal/noop"
)

func TestTransitionMasks(t *testing.T) {
	tests := []struct {
		from, to hal.ImageLayout
		src, dst hal.PipelineStage
	}{
		{hal.ImageLayoutUndefined, hal.ImageLayoutTransferDst, hal.PipelineStageTopOfPipe, hal.PipelineStageTransfer},
		{hal.ImageLayoutTransferDst, hal.ImageLayoutShaderReadOnly, hal.PipelineStageTransfer, hal.PipelineStageFragmentShader},
		{hal.ImageLayoutUndefined, hal.ImageLayoutDepthStencilAttachment, hal.PipelineStageTopOfPipe, hal.PipelineStageEarlyFragmentTests},
		{hal.ImageLayoutUndefined, hal.ImageLayoutColorAttachment, hal.PipelineStageTopOfPipe, hal.PipelineStageColorAttachmentOutput},
	}
	for _, tt := range tests {
		m := transitionMasks(tt.from, tt.to)
		if m.srcStage != tt.src || m.dstStage != tt.dst {
			t.Errorf("%s -> %s: expected stages %v -> %v, got %v -> %v", tt.from, tt.to, tt.src, tt.dst, m.srcStage, m.dstStage)
		}
	}
}

func newSampledImage(t *testing.T, ctx *GraphicsContext, levels uint32) *Image {
	t.Helper()
	img, err := NewImage(ctx, hal.ImageDescriptor{
		Label:     "img",
		Format:    hal.FormatR8G8B8A8Srgb,
		Width:     8,
		Height:    8,
		MipLevels: levels,
		Usage:     hal.ImageUsageTransferDst | hal.ImageUsageSampled,
		Memory:    hal.MemoryDeviceLocal,
	})
	if err != nil {
		t.Fatalf("NewImage failed: %v", err)
	}
	t.Cleanup(img.Destroy)
	return img
}

func TestTransitionLayout(t *testing.T) {
	ctx, dev := newTestContext(t, noop.API{})
	img := newSampledImage(t, ctx, 2)

	if err := img.TransitionLayout(hal.ImageLayoutTransferDst); err != nil {
		t.Fatal(err)
	}
	for l := uint32(0); l < 2; l++ {
		if img.Layout(l) != hal.ImageLayoutTransferDst {
			t.Errorf("level %d: expected transfer-dst, got %s", l, img.Layout(l))
		}
		if got := img.Handle().(*noop.Image).Layout(l); got != hal.ImageLayoutTransferDst {
			t.Errorf("level %d: device layout %s", l, got)
		}
	}

	submits := dev.Stats().Submits
	if err := img.TransitionLayout(hal.ImageLayoutTransferDst); err != nil {
		t.Fatal(err)
	}
	if dev.Stats().Submits != submits {
		t.Error("transition to the current layout submitted work")
	}
	checkClean(t, dev)
}

func TestTransitionLayoutUnknown(t *testing.T) {
	ctx, _ := newTestContext(t, noop.API{})
	img := newSampledImage(t, ctx, 1)
	err := img.TransitionLayout(hal.ImageLayoutPresentSrc)
	if !IsFatal(err) || !errors.Is(err, ErrUnknownTransition) {
		t.Fatalf("expected a fatal unknown transition, got %v", err)
	}
	if img.Layout(0) != hal.ImageLayoutUndefined {
		t.Errorf("layout changed to %s", img.Layout(0))
	}
}

func TestMipLevelCount(t *testing.T) {
	tests := []struct {
		w, h, want uint32
	}{
		{1, 1, 1},
		{2, 1, 2},
		{64, 32, 7},
		{100, 30, 7},
		{1024, 1024, 11},
		{0, 0, 1},
	}
	for _, tt := range tests {
		if got := MipLevelCount(tt.w, tt.h); got != tt.want {
			t.Errorf("MipLevelCount(%d, %d) = %d, expected %d", tt.w, tt.h, got, tt.want)
		}
	}
}

func TestTextureMipChain(t *testing.T) {
	ctx, dev := newTestContext(t, noop.API{})
	tex := NewTexture(ctx, "checker", TextureOptions{MipMapping: true})
	defer tex.Destroy()
	if err := tex.SetPixels(checkerTexture(64, 32)); err != nil {
		t.Fatal(err)
	}
	if err := tex.Upload(); err != nil {
		t.Fatal(err)
	}

	img := tex.Image()
	if img.MipLevels() != 7 {
		t.Fatalf("expected 7 levels, got %d", img.MipLevels())
	}
	for l := uint32(0); l < 7; l++ {
		if img.Layout(l) != hal.ImageLayoutShaderReadOnly {
			t.Errorf("level %d: expected shader-read-only, got %s", l, img.Layout(l))
		}
	}
	s := dev.Stats()
	if s.Blits != 6 {
		t.Errorf("expected 6 blits, got %d", s.Blits)
	}
	checkClean(t, dev)

	last := img.Handle().(*noop.Image).Level(6)
	if b := last.Bounds(); b.Dx() != 1 || b.Dy() != 1 {
		t.Errorf("expected a 1x1 last level, got %v", b)
	}
	if p := last.RGBAAt(0, 0); p.A != 0xFF {
		t.Errorf("expected an opaque last level, got %v", p)
	}
}

func TestTextureSampler(t *testing.T) {
	tests := []struct {
		name       string
		features   []hal.Feature
		opts       TextureOptions
		anisotropy bool
		maxLod     float32
		bias       float32
	}{
		{"anisotropic", noop.DefaultFeatures(), TextureOptions{MipMapping: true, Anisotropy: 16}, true, 5, 0},
		{"no feature", []hal.Feature{}, TextureOptions{MipMapping: true, Anisotropy: 16}, false, 5, 0},
		{"no mips", noop.DefaultFeatures(), TextureOptions{}, false, 1, 0},
		{"bias", noop.DefaultFeatures(), TextureOptions{MipMapping: true, MipMapLevel: 1}, false, 5, -10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, _ := newTestContext(t, noop.API{Features: tt.features})
			tex := NewTexture(ctx, "t", tt.opts)
			defer tex.Destroy()
			if err := tex.SetPixels(checkerTexture(16, 16)); err != nil {
				t.Fatal(err)
			}
			if err := tex.Upload(); err != nil {
				t.Fatal(err)
			}
			desc := tex.Sampler().(*noop.Sampler).Desc
			if desc.AnisotropyEnable != tt.anisotropy {
				t.Errorf("expected anisotropy %v, got %v", tt.anisotropy, desc.AnisotropyEnable)
			}
			if desc.MaxLod != tt.maxLod || desc.MipLodBias != tt.bias {
				t.Errorf("expected lod %.0f bias %.0f, got %.0f and %.0f", tt.maxLod, tt.bias, desc.MaxLod, desc.MipLodBias)
			}
		})
	}
}

func TestTextureSetPixels(t *testing.T) {
	ctx, _ := newTestContext(t, noop.API{})
	tex := NewTexture(ctx, "t", TextureOptions{})
	defer tex.Destroy()

	if err := tex.SetPixels(TextureData{Pixels: []byte{10, 20, 30}, Width: 1, Height: 1, Channels: 3}); err != nil {
		t.Fatal(err)
	}
	if want := []byte{10, 20, 30, 0xFF}; string(tex.pixels) != string(want) {
		t.Errorf("expected %v, got %v", want, tex.pixels)
	}
	if err := tex.SetPixels(TextureData{Pixels: []byte{1, 2}, Width: 1, Height: 1, Channels: 4}); err == nil {
		t.Error("expected a size mismatch error")
	}
	if err := tex.SetPixels(TextureData{Pixels: []byte{1, 2}, Width: 1, Height: 1, Channels: 2}); err == nil {
		t.Error("expected an unsupported channel count error")
	}

	empty := NewTexture(ctx, "empty", TextureOptions{})
	if err := empty.Upload(); err != nil || empty.Image() != nil {
		t.Errorf("upload of an empty texture: err=%v image=%v", err, empty.Image())
	}
}

func TestTextureUnloadAndReupload(t *testing.T) {
	ctx, dev := newTestContext(t, noop.API{})
	tex := NewTexture(ctx, "t", TextureOptions{MipMapping: true})
	if err := tex.SetPixels(checkerTexture(8, 8)); err != nil {
		t.Fatal(err)
	}
	if err := tex.Upload(); err != nil {
		t.Fatal(err)
	}
	if err := tex.Upload(); err != nil {
		t.Fatal(err)
	}
	if n := dev.Live("image"); n != 1 {
		t.Errorf("expected one image after reupload, got %d", n)
	}
	tex.Unload()
	if tex.Status() != StatusUnloaded || tex.View() != nil {
		t.Errorf("expected unloaded, got %s", tex.Status())
	}
	tex.Destroy()
	for _, kind := range []string{"image", "image-view", "sampler", "buffer"} {
		if n := dev.Live(kind); n != 0 {
			t.Errorf("expected no live %s, got %d", kind, n)
		}
	}
}
