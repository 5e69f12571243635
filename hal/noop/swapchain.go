package noop

import (
	"fmt"

	"github.com/andewx/lumenvk/hal"
)

type Queue struct {
	dev *Device
}

func (q *Queue) Submit(submits []hal.SubmitInfo, fence hal.Fence) error {
	for _, s := range submits {
		for _, w := range s.WaitSemaphores {
			w.(*Semaphore).wait()
		}
		for _, cb := range s.CommandBuffers {
			c, ok := cb.(*CommandBuffer)
			if !ok {
				return fmt.Errorf("noop: foreign command buffer %T", cb)
			}
			if err := c.execute(); err != nil {
				return err
			}
		}
		for _, sig := range s.SignalSemaphores {
			sig.(*Semaphore).signal()
		}
	}
	if fence != nil {
		f := fence.(*Fence)
		if f.signaled {
			return fmt.Errorf("noop: submit with a fence that is already signaled")
		}
		f.signaled = true
	}
	q.dev.count(func(s *Stats) { s.Submits++ })
	return nil
}

func (q *Queue) Present(info *hal.PresentInfo) (hal.Status, error) {
	for _, w := range info.WaitSemaphores {
		w.(*Semaphore).wait()
	}
	sc, ok := info.Swapchain.(*Swapchain)
	if !ok {
		return hal.StatusSuccess, fmt.Errorf("noop: foreign swapchain %T", info.Swapchain)
	}
	if info.ImageIndex >= uint32(len(sc.images)) {
		return hal.StatusSuccess, fmt.Errorf("noop: present of image %d out of %d", info.ImageIndex, len(sc.images))
	}
	q.dev.count(func(s *Stats) { s.Presents++ })
	if sc.stale() {
		return hal.StatusOutOfDate, nil
	}
	return hal.StatusSuccess, nil
}

func (q *Queue) WaitIdle() error { return nil }

func (d *Device) SurfaceCapabilities(surface hal.Surface) (hal.SurfaceCapabilities, error) {
	s, ok := surface.(*Surface)
	if !ok {
		return hal.SurfaceCapabilities{}, fmt.Errorf("noop: foreign surface %T", surface)
	}
	api := d.adapter.inst.api
	max2d := api.Limits.MaxImageDimension2D
	return hal.SurfaceCapabilities{
		MinImageCount: api.MinImageCount,
		MaxImageCount: api.MaxImageCount,
		CurrentExtent: s.extent(),
		MinExtent:     hal.Extent2D{Width: 1, Height: 1},
		MaxExtent:     hal.Extent2D{Width: max2d, Height: max2d},
		Formats: []hal.SurfaceFormat{
			{Format: hal.FormatB8G8R8A8Srgb, ColorSpace: hal.ColorSpaceSrgbNonlinear},
			{Format: hal.FormatB8G8R8A8Unorm, ColorSpace: hal.ColorSpaceSrgbNonlinear},
		},
		PresentModes: []hal.PresentMode{hal.PresentModeFifo, hal.PresentModeMailbox, hal.PresentModeImmediate},
	}, nil
}

// Swapchain cycles its images round-robin, or in API.AcquireOrder.
type Swapchain struct {
	*object
	surface  *Surface
	desc     hal.SwapchainDescriptor
	images   []*Image
	order    []uint32
	next     uint32
	acquired int
	retired  bool
}

func (d *Device) CreateSwapchain(surface hal.Surface, desc *hal.SwapchainDescriptor) (hal.Swapchain, error) {
	s, ok := surface.(*Surface)
	if !ok {
		return nil, fmt.Errorf("noop: foreign surface %T", surface)
	}
	if desc.Extent.Width == 0 || desc.Extent.Height == 0 {
		return nil, fmt.Errorf("noop: swapchain with empty extent")
	}
	api := d.adapter.inst.api
	count := max(desc.MinImageCount, api.MinImageCount)
	if api.MaxImageCount > 0 {
		count = min(count, api.MaxImageCount)
	}
	if old, ok := desc.OldSwapchain.(*Swapchain); ok && old != nil {
		old.retired = true
	}
	sc := &Swapchain{object: d.track("swapchain"), surface: s, desc: *desc, order: api.AcquireOrder}
	sc.images = make([]*Image, count)
	for i := range sc.images {
		sc.images[i] = newImage(hal.ImageDescriptor{
			Label:     fmt.Sprintf("swapchain[%d]", i),
			Format:    desc.Format.Format,
			Width:     desc.Extent.Width,
			Height:    desc.Extent.Height,
			MipLevels: 1,
			Samples:   hal.SampleCount1,
			Usage:     desc.Usage,
		})
	}
	return sc, nil
}

func (s *Swapchain) stale() bool {
	return s.retired || s.surface.extent() != s.desc.Extent
}

func (s *Swapchain) Images() []hal.Image {
	out := make([]hal.Image, len(s.images))
	for i, img := range s.images {
		out[i] = img
	}
	return out
}

func (s *Swapchain) Format() hal.Format           { return s.desc.Format.Format }
func (s *Swapchain) Extent() hal.Extent2D         { return s.desc.Extent }
func (s *Swapchain) PresentMode() hal.PresentMode { return s.desc.PresentMode }

func (s *Swapchain) AcquireNextImage(timeout uint64, signal hal.Semaphore) (uint32, hal.Status, error) {
	if s.Destroyed() {
		return 0, hal.StatusSuccess, fmt.Errorf("noop: acquire on destroyed swapchain")
	}
	if s.stale() {
		return 0, hal.StatusOutOfDate, nil
	}
	idx := s.next
	s.next = (s.next + 1) % uint32(len(s.images))
	if len(s.order) > 0 {
		idx = s.order[s.acquired%len(s.order)] % uint32(len(s.images))
	}
	s.acquired++
	if signal != nil {
		signal.(*Semaphore).signal()
	}
	return idx, hal.StatusSuccess, nil
}
