package lumenvk

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/andewx/lumenvk/hal"
	"github.com/andewx/lumenvk/hal/noop"
)

func update(t *testing.T, e *Engine) {
	t.Helper()
	ok, err := e.Update()
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if !ok {
		t.Fatal("Update reported the display closed")
	}
}

func TestEngineStartup(t *testing.T) {
	e, dev, display := newTestEngine(t, noop.API{}, nil)
	st := e.Swapchain().State()
	if st.ImageCount() < 2 {
		t.Fatalf("expected at least 2 swapchain images, got %d", st.ImageCount())
	}
	if len(e.FrameSlots()) != st.ImageCount() {
		t.Errorf("expected %d frame slots, got %d", st.ImageCount(), len(e.FrameSlots()))
	}
	if e.Swapchain().FullCount() != 1 || e.Swapchain().SoftCount() != 0 {
		t.Errorf("expected a single full recreation, got full=%d soft=%d", e.Swapchain().FullCount(), e.Swapchain().SoftCount())
	}
	update(t, e)
	if display.polls != 1 {
		t.Errorf("expected one poll, got %d", display.polls)
	}
	if s := dev.Stats(); s.Presents != 1 || s.Submits == 0 {
		t.Errorf("expected one presented frame, got presents=%d submits=%d", s.Presents, s.Submits)
	}
	checkClean(t, dev)
}

func TestEngineFullscreenSwitch(t *testing.T) {
	e, dev, display := newTestEngine(t, noop.API{}, nil)
	r := texturedQuad("quad")
	if err := e.LoadRenderable(r, true); err != nil {
		t.Fatal(err)
	}
	update(t, e)
	full := e.Swapchain().FullCount()
	pipeline := r.Pipeline()

	err := e.UpdateSettings(func(s *Settings) {
		s.Fullscreen = true
		s.Resolution = Resolution{Width: 1920, Height: 1080}
	}, false)
	if err != nil {
		t.Fatal(err)
	}
	if !display.fullscreen || display.w != 1920 || display.h != 1080 || display.refresh != 144 {
		t.Fatalf("display not switched: %+v", display)
	}
	update(t, e)
	if got := e.Swapchain().FullCount(); got != full+1 {
		t.Errorf("expected exactly one full recreation, got %d", got-full)
	}
	if e.Swapchain().SoftCount() != 0 {
		t.Errorf("expected no soft recreation, got %d", e.Swapchain().SoftCount())
	}
	if ext := e.Swapchain().State().Extent; ext != (hal.Extent2D{Width: 1920, Height: 1080}) {
		t.Errorf("expected a 1920x1080 swapchain, got %+v", ext)
	}
	if !near(e.Camera().Aspect, 16.0/9.0) {
		t.Errorf("expected aspect 16/9, got %f", e.Camera().Aspect)
	}
	if r.Pipeline() == nil || r.Pipeline() == pipeline {
		t.Error("pipeline was not rebuilt against the new render pass")
	}
	presents := dev.Stats().Presents
	update(t, e)
	if dev.Stats().Presents != presents+1 {
		t.Error("frame after the switch was not presented")
	}
	checkClean(t, dev)
}

func TestEngineSingleSample(t *testing.T) {
	e, dev, _ := newTestEngine(t, noop.API{}, func(s *Settings) { s.MSAA = 1 })
	pass := e.Swapchain().RenderPass()
	if pass.HasResolve() || pass.AttachmentCount() != 2 {
		t.Fatalf("expected two attachments without resolve, got %d", pass.AttachmentCount())
	}
	st := e.Swapchain().State()
	for i, fb := range st.Framebuffers {
		if fb.ColorImage() != nil {
			t.Errorf("framebuffer %d has a multisampled color image", i)
		}
		attachments := fb.Handle().(*noop.Framebuffer).Attachments()
		if attachments[0] != st.Views[i] {
			t.Errorf("framebuffer %d: color attachment is not the swapchain view", i)
		}
	}
	if n := dev.Live("image"); n != st.ImageCount() {
		t.Errorf("expected one depth image per swapchain image, got %d images", n)
	}
	update(t, e)
	checkClean(t, dev)
}

func TestEngineMultisampleAttachments(t *testing.T) {
	e, _, _ := newTestEngine(t, noop.API{}, func(s *Settings) { s.MSAA = 4 })
	st := e.Swapchain().State()
	for i, fb := range st.Framebuffers {
		attachments := fb.Handle().(*noop.Framebuffer).Attachments()
		if len(attachments) != 3 || attachments[2] != st.Views[i] || fb.ColorImage() == nil {
			t.Errorf("framebuffer %d: expected color, depth and the swapchain view as resolve", i)
		}
		if fb.ColorImage().Samples() != hal.SampleCount4 {
			t.Errorf("framebuffer %d: expected 4 samples, got %d", i, fb.ColorImage().Samples())
		}
	}
}

func TestEngineReloadDoesNotLeak(t *testing.T) {
	e, dev, _ := newTestEngine(t, noop.API{}, nil)
	r := texturedQuad("quad")
	if err := e.LoadRenderable(r, true); err != nil {
		t.Fatal(err)
	}
	update(t, e)
	kinds := map[string]int{}
	for _, k := range []string{"buffer", "image", "image-view", "sampler", "pipeline", "descriptor-pool", "shader-module"} {
		kinds[k] = dev.Live(k)
	}
	total := dev.LiveTotal()

	if err := e.LoadRenderable(r, true); err != nil {
		t.Fatal(err)
	}
	if len(e.Renderables()) != 1 {
		t.Errorf("renderable registered twice: %d", len(e.Renderables()))
	}
	for k, n := range kinds {
		if got := dev.Live(k); got != n {
			t.Errorf("%s: expected %d live after reload, got %d", k, n, got)
		}
	}
	if dev.LiveTotal() != total {
		t.Errorf("expected %d live objects after reload, got %d", total, dev.LiveTotal())
	}
	update(t, e)
	checkClean(t, dev)
}

func TestEngineDestroyReleasesEverything(t *testing.T) {
	s := DefaultSettings()
	s.RayTracing = true
	display := newFakeDisplay(s.Resolution.Width, s.Resolution.Height)
	e, err := Create(noop.API{}, display, s)
	if err != nil {
		t.Fatal(err)
	}
	dev := e.Context().Device.(*noop.Device)
	for _, name := range []string{"a", "b"} {
		if err := e.LoadRenderable(texturedQuad(name), true); err != nil {
			t.Fatal(err)
		}
	}
	update(t, e)

	e.Destroy()
	e.Destroy()
	checkNoLeaks(t, dev)
	if _, err := e.Update(); !errors.Is(err, ErrDestroyed) {
		t.Errorf("expected ErrDestroyed from Update, got %v", err)
	}
	if err := e.LoadRenderable(texturedQuad("late"), true); !errors.Is(err, ErrDestroyed) {
		t.Errorf("expected ErrDestroyed from LoadRenderable, got %v", err)
	}
}

func TestEngineRenderableLookup(t *testing.T) {
	e, dev, _ := newTestEngine(t, noop.API{}, nil)
	r := texturedQuad("quad")
	if err := e.LoadRenderable(r, true); err != nil {
		t.Fatal(err)
	}
	if e.Renderable(r.ID) != r {
		t.Error("lookup by ID failed")
	}
	if e.Renderable(uuid.New()) != nil {
		t.Error("expected nil for an unknown ID")
	}
	if e.RemoveRenderable(uuid.New()) {
		t.Error("removed an unknown renderable")
	}
	buffers := dev.Live("buffer")
	if !e.RemoveRenderable(r.ID) {
		t.Fatal("remove failed")
	}
	if len(e.Renderables()) != 0 || r.Loaded() {
		t.Error("renderable still registered or loaded")
	}
	if dev.Live("buffer") >= buffers || dev.Live("pipeline") != 0 {
		t.Error("remove did not release the renderable")
	}
	update(t, e)
}

func TestEngineUnregisteredRenderableIsNotDrawn(t *testing.T) {
	e, dev, _ := newTestEngine(t, noop.API{}, nil)
	r := texturedQuad("offscreen")
	if err := e.LoadRenderable(r, false); err != nil {
		t.Fatal(err)
	}
	if !r.Loaded() || len(e.Renderables()) != 0 {
		t.Fatal("expected a loaded but unregistered renderable")
	}
	update(t, e)
	if s := dev.Stats(); s.DrawCalls != 0 {
		t.Errorf("expected no draws, got %d", s.DrawCalls)
	}
	r.Destroy()
}

func TestEngineDrawsRegisteredRenderables(t *testing.T) {
	e, dev, _ := newTestEngine(t, noop.API{}, nil)
	r := NewRenderable("two meshes", testProgram(), quadMesh(), gridMesh(3))
	if err := e.LoadRenderable(r, true); err != nil {
		t.Fatal(err)
	}
	update(t, e)
	update(t, e)
	if s := dev.Stats(); s.DrawCalls != 4 {
		t.Errorf("expected 2 draws per frame, got %d over 2 frames", s.DrawCalls)
	}
	if r.TriangleCount() != 2+18 {
		t.Errorf("expected 20 triangles, got %d", r.TriangleCount())
	}
}

func TestEngineCloseStopsLoop(t *testing.T) {
	e, dev, display := newTestEngine(t, noop.API{}, nil)
	display.closed = true
	ok, err := e.Update()
	if err != nil || ok {
		t.Errorf("expected false without error, got %v and %v", ok, err)
	}
	if dev.Stats().Presents != 0 {
		t.Error("rendered a frame after close")
	}
}

func TestEngineRayTracingEveryFrame(t *testing.T) {
	e, dev, _ := newTestEngine(t, noop.API{}, func(s *Settings) {
		s.RayTracing = true
		s.Rebuild = RebuildEveryFrame
	})
	if e.Builder() == nil || !e.Builder().HostBuilds() {
		t.Fatal("expected a host builder")
	}
	a, b := texturedQuad("a"), NewRenderable("grid", testProgram(), gridMesh(4))
	for _, r := range []*Renderable{a, b} {
		if err := e.LoadRenderable(r, true); err != nil {
			t.Fatal(err)
		}
	}
	tlas := e.Builder().TopLevel()
	if tlas.PrimitiveCount() != 2 {
		t.Fatalf("expected 2 instances, got %d", tlas.PrimitiveCount())
	}
	// the first set was written before the top level grew
	w, ok := a.DescriptorSet().Handle().(*noop.DescriptorSet).Write(a.accelSlot())
	if !ok || w.AccelerationStructure != tlas.Handle() {
		t.Error("descriptor set not rebound to the current top level")
	}

	before := dev.Stats().HostBuilds
	update(t, e)
	update(t, e)
	// 2 bottom levels and the top level per frame
	if got := dev.Stats().HostBuilds - before; got != 6 {
		t.Errorf("expected 6 host builds over 2 frames, got %d", got)
	}
	if b.BottomLevels()[0].PrimitiveCount() != 32 {
		t.Errorf("expected 32 primitives, got %d", b.BottomLevels()[0].PrimitiveCount())
	}
	checkClean(t, dev)
}

func TestEngineRayTracingOnChange(t *testing.T) {
	e, dev, _ := newTestEngine(t, noop.API{}, func(s *Settings) { s.RayTracing = true })
	r := texturedQuad("quad")
	if err := e.LoadRenderable(r, true); err != nil {
		t.Fatal(err)
	}
	before := dev.Stats().HostBuilds
	update(t, e)
	if got := dev.Stats().HostBuilds; got != before {
		t.Errorf("clean renderable rebuilt %d times", got-before)
	}

	m := identity()
	m[3][1] = 2
	r.SetModel(m)
	if !r.Dirty() {
		t.Fatal("SetModel did not mark the renderable dirty")
	}
	update(t, e)
	if got := dev.Stats().HostBuilds - before; got != 2 {
		t.Errorf("expected a bottom and a top level build, got %d", got)
	}
	if r.Dirty() {
		t.Error("renderable still dirty after the rebuild")
	}
	bounds := r.BottomLevels()[0].Handle().(*noop.AccelerationStructure).Bounds()
	if !near(bounds.Min[1], 1) || !near(bounds.Max[1], 3) {
		t.Errorf("transform not applied to the bottom level: %+v", bounds)
	}
}

func TestEngineRayTracingUnsupported(t *testing.T) {
	e, _, _ := newTestEngine(t, noop.API{Features: []hal.Feature{hal.FeatureSamplerAnisotropy}}, func(s *Settings) {
		s.RayTracing = true
	})
	if e.Settings().RayTracing || e.Builder() != nil {
		t.Error("expected ray tracing turned off")
	}
}

func TestEngineUpdateSettings(t *testing.T) {
	e, dev, _ := newTestEngine(t, noop.API{}, nil)
	r := texturedQuad("quad")
	if err := e.LoadRenderable(r, true); err != nil {
		t.Fatal(err)
	}
	update(t, e)

	t.Run("msaa", func(t *testing.T) {
		full := e.Swapchain().FullCount()
		if err := e.UpdateSettings(func(s *Settings) { s.MSAA = 2 }, false); err != nil {
			t.Fatal(err)
		}
		update(t, e)
		if e.Swapchain().FullCount() != full+1 {
			t.Errorf("expected one full recreation")
		}
		if r.Pipeline().Samples() != hal.SampleCount2 {
			t.Errorf("expected the pipeline at 2 samples, got %d", r.Pipeline().Samples())
		}
	})

	t.Run("vsync", func(t *testing.T) {
		soft := e.Swapchain().SoftCount()
		if err := e.UpdateSettings(func(s *Settings) { s.VSync = false }, false); err != nil {
			t.Fatal(err)
		}
		update(t, e)
		if e.Swapchain().SoftCount() != soft+1 {
			t.Error("expected one soft recreation")
		}
		if m := e.Swapchain().State().PresentMode; m != hal.PresentModeMailbox {
			t.Errorf("expected mailbox, got %v", m)
		}
	})

	t.Run("anisotropy", func(t *testing.T) {
		sampler := r.GPUTextures()[0].Sampler()
		if err := e.UpdateSettings(func(s *Settings) { s.Anisotropy = 64 }, false); err != nil {
			t.Fatal(err)
		}
		if e.Settings().Anisotropy != 16 {
			t.Errorf("expected anisotropy clamped to 16, got %.0f", e.Settings().Anisotropy)
		}
		got := r.GPUTextures()[0].Sampler()
		if got == sampler || !got.(*noop.Sampler).Desc.AnisotropyEnable {
			t.Error("textures not reloaded with anisotropy")
		}
		update(t, e)
	})

	t.Run("invalid", func(t *testing.T) {
		prev := e.Settings()
		if err := e.UpdateSettings(func(s *Settings) { s.MSAA = 3 }, false); err == nil {
			t.Fatal("expected msaa 3 rejected")
		}
		if e.Settings() != prev {
			t.Error("rejected settings were applied")
		}
	})

	t.Run("ray tracing toggle", func(t *testing.T) {
		if err := e.UpdateSettings(func(s *Settings) { s.RayTracing = true }, false); err != nil {
			t.Fatal(err)
		}
		if e.Builder() == nil || len(r.BottomLevels()) != 1 || r.BottomLevels()[0].Handle() == nil {
			t.Fatal("expected built bottom levels after enabling ray tracing")
		}
		update(t, e)
		if err := e.UpdateSettings(func(s *Settings) { s.RayTracing = false }, false); err != nil {
			t.Fatal(err)
		}
		if e.Builder() != nil || dev.Live("acceleration-structure") != 0 {
			t.Error("acceleration structures survived disabling ray tracing")
		}
		update(t, e)
	})
	checkClean(t, dev)
}

func TestEnableRayTracingWithSeveralRenderables(t *testing.T) {
	e, dev, _ := newTestEngine(t, noop.API{}, nil)
	rs := []*Renderable{texturedQuad("a"), texturedQuad("b"), texturedQuad("c")}
	for _, r := range rs {
		if err := e.LoadRenderable(r, true); err != nil {
			t.Fatal(err)
		}
	}
	update(t, e)

	if err := e.UpdateSettings(func(s *Settings) { s.RayTracing = true }, false); err != nil {
		t.Fatalf("enabling ray tracing failed: %v", err)
	}
	tlas := e.Builder().TopLevel()
	if tlas.PrimitiveCount() != 3 {
		t.Fatalf("expected a top level over 3 instances, got %d", tlas.PrimitiveCount())
	}
	for _, r := range rs {
		if !r.Loaded() || r.Pipeline() == nil || len(r.BottomLevels()) != 1 {
			t.Fatalf("%s not reloaded for ray tracing", r.Name)
		}
		w, ok := r.DescriptorSet().Handle().(*noop.DescriptorSet).Write(r.accelSlot())
		if !ok || w.AccelerationStructure != tlas.Handle() {
			t.Errorf("%s not bound to the current top level", r.Name)
		}
	}
	update(t, e)

	if err := e.UpdateSettings(func(s *Settings) { s.RayTracing = false }, false); err != nil {
		t.Fatalf("disabling ray tracing failed: %v", err)
	}
	if dev.Live("acceleration-structure") != 0 {
		t.Error("acceleration structures survived disabling ray tracing")
	}
	update(t, e)
	checkClean(t, dev)
}

func TestLoadWaitsBeforeTopLevelRebuild(t *testing.T) {
	e, dev, _ := newTestEngine(t, noop.API{}, func(s *Settings) { s.RayTracing = true })
	if err := e.LoadRenderable(texturedQuad("a"), true); err != nil {
		t.Fatal(err)
	}
	update(t, e)
	handle := e.Builder().TopLevel().Handle()

	waits := dev.Stats().WaitIdles
	if err := e.LoadRenderable(texturedQuad("b"), true); err != nil {
		t.Fatal(err)
	}
	if dev.Stats().WaitIdles != waits+1 {
		t.Errorf("expected the device idle before the top level was replaced, %d waits", dev.Stats().WaitIdles-waits)
	}
	if e.Builder().TopLevel().Handle() == handle {
		t.Error("expected the top level to grow")
	}
	update(t, e)
	checkClean(t, dev)
}

func TestReloadKeepsOptionalQueueBounded(t *testing.T) {
	e, dev, _ := newTestEngine(t, noop.API{}, nil)
	r := texturedQuad("quad")
	if err := e.LoadRenderable(r, true); err != nil {
		t.Fatal(err)
	}
	queued := e.Swapchain().Optional().Len()
	for i := 0; i < 4; i++ {
		if err := e.LoadRenderable(r, true); err != nil {
			t.Fatal(err)
		}
	}
	other := texturedQuad("other")
	if err := e.LoadRenderable(other, true); err != nil {
		t.Fatal(err)
	}
	e.RemoveRenderable(other.ID)
	if n := e.Swapchain().Optional().Len(); n != queued {
		t.Errorf("optional queue grew from %d to %d", queued, n)
	}

	if err := e.UpdateSettings(func(s *Settings) { s.MSAA = 4 }, false); err != nil {
		t.Fatal(err)
	}
	update(t, e)
	if n := e.Swapchain().Optional().Len(); n != queued {
		t.Errorf("expected %d queued after a full recreation, got %d", queued, n)
	}
	if r.Pipeline() == nil || r.Pipeline().Samples() != hal.SampleCount4 {
		t.Error("pipeline not rebuilt by the full recreation")
	}
	if n := dev.Live("pipeline"); n != 1 {
		t.Errorf("expected one live pipeline, got %d", n)
	}
}

func TestEngineCreateFailureIsFatal(t *testing.T) {
	s := DefaultSettings()
	s.MSAA = 5
	if _, err := Create(noop.API{}, newFakeDisplay(64, 64), s); !IsFatal(err) {
		t.Errorf("expected a fatal error for invalid settings, got %v", err)
	}
	cause := errors.New("no driver")
	if _, err := Create(failingAPI{cause}, newFakeDisplay(64, 64), DefaultSettings()); !IsFatal(err) || !errors.Is(err, cause) {
		t.Errorf("expected a fatal error wrapping the cause, got %v", err)
	}
}
