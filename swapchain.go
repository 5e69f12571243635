package lumenvk

import (
	"fmt"
	"sync/atomic"

	"github.com/andewx/lumenvk/hal"
)

// SwapchainState is one generation of the swapchain and everything sized
// from it. A recreation builds a new state; states are never patched.
type SwapchainState struct {
	Swapchain    hal.Swapchain
	Views        []hal.ImageView
	Framebuffers []*Framebuffer
	Extent       hal.Extent2D
	Format       hal.SurfaceFormat
	PresentMode  hal.PresentMode
	Generation   int
}

// ImageCount is N, the number of swapchain images.
func (s *SwapchainState) ImageCount() int { return len(s.Views) }

// RecreateHook runs after every recreation, with full set for a full one.
type RecreateHook func(full bool, st *SwapchainState) error

// SwapchainCoordinator owns the swapchain, its views and framebuffers, and
// the render pass. A soft recreation rebuilds the swapchain, views and
// framebuffers. A full recreation also flushes the optional queue, which
// holds the render pass and whatever hooks push there (frame slots,
// renderable pipelines), and rebuilds the render pass before the hooks run.
type SwapchainCoordinator struct {
	ctx      *GraphicsContext
	window   hal.Window
	settings *Settings

	state *SwapchainState
	pass  *RenderPass
	hooks []RecreateHook

	// recreation holds the swapchain generation; optional holds objects
	// that only a full recreation replaces.
	recreation DeletionQueue
	optional   DeletionQueue

	resized     atomic.Bool
	pendingFull atomic.Bool

	soft, full int
}

func NewSwapchainCoordinator(ctx *GraphicsContext, window hal.Window, settings *Settings) *SwapchainCoordinator {
	return &SwapchainCoordinator{ctx: ctx, window: window, settings: settings}
}

// OnRecreate registers a hook. Hooks run in registration order.
func (c *SwapchainCoordinator) OnRecreate(h RecreateHook) { c.hooks = append(c.hooks, h) }

// Optional is the queue flushed at the start of every full recreation.
func (c *SwapchainCoordinator) Optional() *DeletionQueue { return &c.optional }

func (c *SwapchainCoordinator) State() *SwapchainState  { return c.state }
func (c *SwapchainCoordinator) RenderPass() *RenderPass { return c.pass }

// SoftCount and FullCount count the recreations performed.
func (c *SwapchainCoordinator) SoftCount() int { return c.soft }
func (c *SwapchainCoordinator) FullCount() int { return c.full }

// NotifyResize records a framebuffer resize. Any number of notifications
// before the end of a frame yield one recreation.
func (c *SwapchainCoordinator) NotifyResize() { c.resized.Store(true) }

// RequestFull schedules a full recreation at the end of the current frame.
func (c *SwapchainCoordinator) RequestFull() { c.pendingFull.Store(true) }

// Pending reports whether a recreation is scheduled.
func (c *SwapchainCoordinator) Pending() bool {
	return c.resized.Load() || c.pendingFull.Load()
}

// RecreatePending runs at most one recreation: full when one was requested,
// otherwise soft when force is set or a resize was observed.
func (c *SwapchainCoordinator) RecreatePending(force bool) error {
	switch {
	case c.pendingFull.Load():
		return c.Recreate(true)
	case force || c.resized.Load():
		return c.Recreate(false)
	}
	return nil
}

// Recreate rebuilds the swapchain generation, and with full the render pass
// and the optional queue. It waits for the device to go idle first. A zero
// sized surface (minimized window) defers the recreation.
func (c *SwapchainCoordinator) Recreate(full bool) (err error) {
	if err := c.ctx.Device.WaitIdle(); err != nil {
		return err
	}
	caps, err := c.ctx.Device.SurfaceCapabilities(c.ctx.Surface)
	if err != nil {
		return fatal("query surface capabilities", err)
	}
	extent := chooseExtent(caps, c.window)
	if extent.Width == 0 || extent.Height == 0 {
		Logger().Debug("swapchain recreation deferred", "reason", "zero extent")
		return nil
	}
	full = full || c.pass == nil
	s := *c.settings

	next := &SwapchainState{
		Extent:      extent,
		Format:      chooseSurfaceFormat(caps.Formats),
		PresentMode: choosePresentMode(caps.PresentModes, s.VSync),
		Generation:  c.soft + c.full + 1,
	}
	var old hal.Swapchain
	if c.state != nil {
		old = c.state.Swapchain
	}
	next.Swapchain, err = c.ctx.Device.CreateSwapchain(c.ctx.Surface, &hal.SwapchainDescriptor{
		MinImageCount: chooseImageCount(caps, s.SwapchainImages),
		Format:        next.Format,
		Extent:        extent,
		PresentMode:   next.PresentMode,
		Usage:         hal.ImageUsageColorAttachment,
		OldSwapchain:  old,
	})
	if err != nil {
		return fatal("create swapchain", err)
	}

	// The old generation goes only after its replacement exists.
	c.recreation.Flush()
	c.recreation.PushResource(next.Swapchain)

	if full {
		c.optional.Flush()
		c.pass, err = NewRenderPass(c.ctx, next.Format.Format, s.sampleCount())
		if err != nil {
			return err
		}
		pass := c.pass
		c.optional.Push(func() {
			pass.Destroy()
			if c.pass == pass {
				c.pass = nil
			}
		})
	}

	for i, img := range next.Swapchain.Images() {
		view, err := c.ctx.Device.CreateImageView(img, &hal.ImageViewDescriptor{
			Format:     next.Format.Format,
			Aspect:     hal.ImageAspectColor,
			LevelCount: 1,
		})
		if err != nil {
			return fatal("create swapchain image view", err)
		}
		c.recreation.PushResource(view)
		next.Views = append(next.Views, view)

		fb, err := NewFramebuffer(c.ctx, c.pass, view, extent, i)
		if err != nil {
			return fatal("create framebuffer", err)
		}
		c.recreation.PushResource(fb)
		next.Framebuffers = append(next.Framebuffers, fb)
	}
	c.state = next

	for _, h := range c.hooks {
		if err := h(full, next); err != nil {
			return err
		}
	}

	c.resized.Store(false)
	if full {
		c.pendingFull.Store(false)
		c.full++
	} else {
		c.soft++
	}
	Logger().Info("swapchain recreated", "full", full, "images", next.ImageCount(),
		"width", extent.Width, "height", extent.Height, "present-mode", next.PresentMode)
	return nil
}

// Destroy releases the swapchain generation and the optional queue.
func (c *SwapchainCoordinator) Destroy() {
	c.recreation.Flush()
	c.optional.Flush()
	c.state = nil
}

func chooseExtent(caps hal.SurfaceCapabilities, window hal.Window) hal.Extent2D {
	if caps.CurrentExtent.Width != ^uint32(0) {
		return caps.CurrentExtent
	}
	w, h := window.FramebufferSize()
	return hal.Extent2D{
		Width:  clampU32(uint32(max(w, 0)), caps.MinExtent.Width, caps.MaxExtent.Width),
		Height: clampU32(uint32(max(h, 0)), caps.MinExtent.Height, caps.MaxExtent.Height),
	}
}

func clampU32(v, lo, hi uint32) uint32 {
	return min(max(v, lo), hi)
}

func chooseImageCount(caps hal.SurfaceCapabilities, want int) uint32 {
	n := max(uint32(max(want, 0)), caps.MinImageCount)
	if caps.MaxImageCount > 0 {
		n = min(n, caps.MaxImageCount)
	}
	return n
}

// chooseSurfaceFormat prefers 8-bit BGRA sRGB.
func chooseSurfaceFormat(formats []hal.SurfaceFormat) hal.SurfaceFormat {
	for _, f := range formats {
		if f.Format == hal.FormatB8G8R8A8Srgb && f.ColorSpace == hal.ColorSpaceSrgbNonlinear {
			return f
		}
	}
	if len(formats) > 0 {
		return formats[0]
	}
	return hal.SurfaceFormat{Format: hal.FormatB8G8R8A8Unorm, ColorSpace: hal.ColorSpaceSrgbNonlinear}
}

// choosePresentMode returns FIFO with vsync, otherwise the first available
// of mailbox and immediate. FIFO is always supported.
func choosePresentMode(modes []hal.PresentMode, vsync bool) hal.PresentMode {
	if vsync {
		return hal.PresentModeFifo
	}
	for _, want := range []hal.PresentMode{hal.PresentModeMailbox, hal.PresentModeImmediate} {
		for _, m := range modes {
			if m == want {
				return m
			}
		}
	}
	return hal.PresentModeFifo
}

func (s *SwapchainState) String() string {
	return fmt.Sprintf("swapchain gen %d: %d images %dx%d", s.Generation, s.ImageCount(), s.Extent.Width, s.Extent.Height)
}
