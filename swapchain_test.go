package lumenvk

import (
	"testing"

	"github.com/andewx/lumenvk/hal"
	"github.com/andewx/lumenvk/hal/noop"
)

type swapchainFixture struct {
	ctx       *GraphicsContext
	dev       *noop.Device
	display   *fakeDisplay
	settings  *Settings
	swapchain *SwapchainCoordinator
	scheduler *FrameScheduler
}

func newSwapchainFixture(t *testing.T, api noop.API, mutate func(*Settings)) *swapchainFixture {
	t.Helper()
	s := DefaultSettings()
	if mutate != nil {
		mutate(&s)
	}
	display := newFakeDisplay(s.Resolution.Width, s.Resolution.Height)
	ctx, err := NewGraphicsContext(api, display, ContextOptions{AppName: "test", Groups: allGroups()})
	if err != nil {
		t.Fatalf("NewGraphicsContext failed: %v", err)
	}
	f := &swapchainFixture{ctx: ctx, dev: ctx.Device.(*noop.Device), display: display, settings: &s}
	f.swapchain = NewSwapchainCoordinator(ctx, display, f.settings)
	f.scheduler = NewFrameScheduler(ctx, f.swapchain, nil)
	t.Cleanup(func() {
		f.swapchain.Destroy()
		ctx.Destroy()
		checkNoLeaks(t, f.dev)
	})
	if err := f.swapchain.Recreate(true); err != nil {
		t.Fatalf("initial recreation failed: %v", err)
	}
	return f
}

func (f *swapchainFixture) frame(t *testing.T) {
	t.Helper()
	if err := f.scheduler.Frame(); err != nil {
		t.Fatalf("Frame failed: %v", err)
	}
}

func TestChooseSurfaceFormat(t *testing.T) {
	srgb := hal.SurfaceFormat{Format: hal.FormatB8G8R8A8Srgb, ColorSpace: hal.ColorSpaceSrgbNonlinear}
	unorm := hal.SurfaceFormat{Format: hal.FormatB8G8R8A8Unorm, ColorSpace: hal.ColorSpaceSrgbNonlinear}
	if got := chooseSurfaceFormat([]hal.SurfaceFormat{unorm, srgb}); got != srgb {
		t.Errorf("expected the sRGB format, got %+v", got)
	}
	if got := chooseSurfaceFormat([]hal.SurfaceFormat{unorm}); got != unorm {
		t.Errorf("expected the first format, got %+v", got)
	}
	if got := chooseSurfaceFormat(nil); got.Format != hal.FormatB8G8R8A8Unorm {
		t.Errorf("expected the fallback format, got %+v", got)
	}
}

func TestChoosePresentMode(t *testing.T) {
	all := []hal.PresentMode{hal.PresentModeFifo, hal.PresentModeImmediate, hal.PresentModeMailbox}
	tests := []struct {
		name  string
		modes []hal.PresentMode
		vsync bool
		want  hal.PresentMode
	}{
		{"vsync", all, true, hal.PresentModeFifo},
		{"mailbox first", all, false, hal.PresentModeMailbox},
		{"immediate", []hal.PresentMode{hal.PresentModeFifo, hal.PresentModeImmediate}, false, hal.PresentModeImmediate},
		{"fifo only", []hal.PresentMode{hal.PresentModeFifo}, false, hal.PresentModeFifo},
	}
	for _, tt := range tests {
		if got := choosePresentMode(tt.modes, tt.vsync); got != tt.want {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, got)
		}
	}
}

func TestChooseExtentAndImageCount(t *testing.T) {
	caps := hal.SurfaceCapabilities{
		CurrentExtent: hal.Extent2D{Width: ^uint32(0), Height: ^uint32(0)},
		MinExtent:     hal.Extent2D{Width: 16, Height: 16},
		MaxExtent:     hal.Extent2D{Width: 1024, Height: 1024},
		MinImageCount: 2,
		MaxImageCount: 4,
	}
	if got := chooseExtent(caps, newFakeDisplay(4000, 8)); got != (hal.Extent2D{Width: 1024, Height: 16}) {
		t.Errorf("expected the window size clamped, got %+v", got)
	}
	caps.CurrentExtent = hal.Extent2D{Width: 640, Height: 480}
	if got := chooseExtent(caps, newFakeDisplay(1, 1)); got != caps.CurrentExtent {
		t.Errorf("expected the current extent, got %+v", got)
	}

	for _, tt := range []struct {
		want int
		max  uint32
		got  uint32
	}{
		{1, 4, 2},
		{3, 4, 3},
		{9, 4, 4},
		{9, 0, 9},
	} {
		caps.MaxImageCount = tt.max
		if n := chooseImageCount(caps, tt.want); n != tt.got {
			t.Errorf("chooseImageCount(%d, max %d) = %d, expected %d", tt.want, tt.max, n, tt.got)
		}
	}
}

func TestSlotsMatchImageCount(t *testing.T) {
	f := newSwapchainFixture(t, noop.API{MinImageCount: 2, MaxImageCount: 4}, func(s *Settings) { s.SwapchainImages = 2 })
	if n := f.swapchain.State().ImageCount(); n != 2 || len(f.scheduler.Slots()) != 2 {
		t.Fatalf("expected 2 images and slots, got %d and %d", n, len(f.scheduler.Slots()))
	}
	f.frame(t)

	f.settings.SwapchainImages = 4
	f.swapchain.NotifyResize()
	f.frame(t)
	if n := f.swapchain.State().ImageCount(); n != 4 || len(f.scheduler.Slots()) != 4 {
		t.Fatalf("expected 4 images and slots, got %d and %d", n, len(f.scheduler.Slots()))
	}
	if f.swapchain.SoftCount() != 1 {
		t.Errorf("expected one soft recreation, got %d", f.swapchain.SoftCount())
	}
	for i := 0; i < 8; i++ {
		f.frame(t)
	}
	checkClean(t, f.dev)
}

func TestResizeNotificationsCoalesce(t *testing.T) {
	f := newSwapchainFixture(t, noop.API{}, nil)
	f.frame(t)

	for i := 0; i < 5; i++ {
		f.swapchain.NotifyResize()
	}
	f.frame(t)
	if f.swapchain.SoftCount() != 1 || f.swapchain.FullCount() != 1 {
		t.Fatalf("expected 1 soft and 1 full recreation, got %d and %d", f.swapchain.SoftCount(), f.swapchain.FullCount())
	}
	f.frame(t)
	if f.swapchain.SoftCount() != 1 {
		t.Errorf("a quiet frame recreated again: %d soft recreations", f.swapchain.SoftCount())
	}
	checkClean(t, f.dev)
}

func TestResizeWithNewSizeRecreatesOnce(t *testing.T) {
	f := newSwapchainFixture(t, noop.API{}, nil)
	f.frame(t)
	presents := f.dev.Stats().Presents

	for _, sz := range [][2]int{{900, 700}, {1000, 700}, {1024, 768}} {
		f.display.resize(sz[0], sz[1])
		f.swapchain.NotifyResize()
	}
	// acquire reports out of date, the frame is skipped
	f.frame(t)
	if got := f.dev.Stats().Presents; got != presents {
		t.Errorf("expected the stale frame skipped, %d presents", got-presents)
	}
	if f.swapchain.SoftCount() != 1 {
		t.Fatalf("expected one soft recreation, got %d", f.swapchain.SoftCount())
	}
	if e := f.swapchain.State().Extent; e != (hal.Extent2D{Width: 1024, Height: 768}) {
		t.Errorf("expected 1024x768, got %+v", e)
	}
	f.frame(t)
	f.frame(t)
	if f.swapchain.SoftCount() != 1 || f.dev.Stats().Presents != presents+2 {
		t.Errorf("expected two clean frames, soft=%d presents=%d", f.swapchain.SoftCount(), f.dev.Stats().Presents-presents)
	}
	checkClean(t, f.dev)
}

func TestRequestFullRebuildsRenderPass(t *testing.T) {
	f := newSwapchainFixture(t, noop.API{}, nil)
	pass := f.swapchain.RenderPass()
	slots := f.scheduler.Slots()

	f.settings.MSAA = 4
	f.swapchain.RequestFull()
	f.swapchain.NotifyResize()
	f.frame(t)
	if f.swapchain.FullCount() != 2 || f.swapchain.SoftCount() != 0 {
		t.Fatalf("expected one more full recreation only, got full=%d soft=%d", f.swapchain.FullCount(), f.swapchain.SoftCount())
	}
	if f.swapchain.RenderPass() == pass {
		t.Error("render pass was not rebuilt")
	}
	if f.swapchain.RenderPass().Samples() != hal.SampleCount4 {
		t.Errorf("expected 4 samples, got %d", f.swapchain.RenderPass().Samples())
	}
	if f.scheduler.Slots()[0] == slots[0] {
		t.Error("frame slots survived a full recreation")
	}
	f.frame(t)
	checkClean(t, f.dev)
}

func TestZeroExtentDefersRecreation(t *testing.T) {
	f := newSwapchainFixture(t, noop.API{}, nil)
	gen := f.swapchain.State().Generation

	f.display.resize(0, 0)
	f.swapchain.NotifyResize()
	if err := f.scheduler.Frame(); err != nil {
		t.Fatalf("Frame failed: %v", err)
	}
	if f.swapchain.State().Generation != gen {
		t.Error("recreated against a minimized window")
	}
	f.display.resize(320, 240)
	f.frame(t)
	if e := f.swapchain.State().Extent; e.Width != 320 || e.Height != 240 {
		t.Errorf("expected 320x240 after restore, got %+v", e)
	}
}
