// Package display is the GLFW window the engine renders into. It creates
// the native surface, reports framebuffer resizes and switches the window
// between windowed and fullscreen mode.
//
// GLFW must be driven from the main OS thread; call runtime.LockOSThread in
// an init function of the main package.
package display

import (
	"fmt"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/vulkan-go/vulkan"
)

// Window wraps a GLFW window created without a client API.
type Window struct {
	win *glfw.Window

	// windowed geometry restored when leaving fullscreen
	windowedX, windowedY int
}

// Init initializes GLFW and the Vulkan loader. It must run once before New.
func Init() error {
	if err := glfw.Init(); err != nil {
		return fmt.Errorf("display: glfw init: %w", err)
	}
	vk.SetGetInstanceProcAddr(glfw.GetVulkanGetInstanceProcAddress())
	if err := vk.Init(); err != nil {
		glfw.Terminate()
		return fmt.Errorf("display: vulkan loader: %w", err)
	}
	return nil
}

// Terminate releases GLFW. Windows must be destroyed first.
func Terminate() { glfw.Terminate() }

// New opens a window of width x height pixels.
func New(title string, width, height int) (*Window, error) {
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	win, err := glfw.CreateWindow(width, height, title, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("display: create window: %w", err)
	}
	w := &Window{win: win}
	w.windowedX, w.windowedY = win.GetPos()
	return w, nil
}

func (w *Window) FramebufferSize() (int, int) { return w.win.GetFramebufferSize() }

func (w *Window) RequiredInstanceExtensions() []string {
	return w.win.GetRequiredInstanceExtensions()
}

func (w *Window) CreateWindowSurface(instance any) (uintptr, error) {
	return w.win.CreateWindowSurface(instance, nil)
}

func (w *Window) ShouldClose() bool { return w.win.ShouldClose() }

func (w *Window) PollEvents() { glfw.PollEvents() }

// SetResizeCallback registers fn for framebuffer size changes. GLFW calls it
// from PollEvents, on the polling goroutine.
func (w *Window) SetResizeCallback(fn func(width, height int)) {
	w.win.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		fn(width, height)
	})
}

// SetFullscreen moves the window onto the monitor it overlaps most and
// switches it to width x height, or the monitor's video mode when either is
// zero. Leaving fullscreen restores the
// previous position with the given size.
func (w *Window) SetFullscreen(fullscreen bool, width, height, refresh int) error {
	if !fullscreen {
		w.win.SetMonitor(nil, w.windowedX, w.windowedY, width, height, glfw.DontCare)
		return nil
	}
	w.windowedX, w.windowedY = w.win.GetPos()

	monitors := glfw.GetMonitors()
	if len(monitors) == 0 {
		return fmt.Errorf("display: no monitors connected")
	}
	wx, wy := w.win.GetPos()
	ww, wh := w.win.GetSize()
	areas := make([]Rect, len(monitors))
	for i, m := range monitors {
		mx, my := m.GetPos()
		mode := m.GetVideoMode()
		areas[i] = Rect{X: mx, Y: my, W: mode.Width, H: mode.Height}
	}
	best := monitors[BestMonitor(Rect{X: wx, Y: wy, W: ww, H: wh}, areas)]
	mode := best.GetVideoMode()
	if width <= 0 || height <= 0 {
		width, height = mode.Width, mode.Height
	}
	if refresh <= 0 {
		refresh = mode.RefreshRate
	}
	w.win.SetMonitor(best, 0, 0, width, height, refresh)
	return nil
}

// Destroy closes the window.
func (w *Window) Destroy() {
	if w.win == nil {
		return
	}
	w.win.Destroy()
	w.win = nil
}
