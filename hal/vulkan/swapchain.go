package vulkan

import (
	"errors"

	vk "github.com/vulkan-go/vulkan"

	"github.com/andewx/lumenvk/hal"
)

type Queue struct {
	dev      *Device
	graphics vk.Queue
	present  vk.Queue
}

func semaphores(list []hal.Semaphore) []vk.Semaphore {
	out := make([]vk.Semaphore, len(list))
	for i, s := range list {
		out[i] = s.(*Semaphore).semaphore
	}
	return out
}

func (q *Queue) Submit(submits []hal.SubmitInfo, fence hal.Fence) error {
	infos := make([]vk.SubmitInfo, len(submits))
	for i, s := range submits {
		stages := make([]vk.PipelineStageFlags, len(s.WaitStages))
		for j, st := range s.WaitStages {
			stages[j] = vk.PipelineStageFlags(st)
		}
		cmds := make([]vk.CommandBuffer, len(s.CommandBuffers))
		for j, cb := range s.CommandBuffers {
			cmds[j] = cb.(*CommandBuffer).cmd
		}
		infos[i] = vk.SubmitInfo{
			SType:                vk.StructureTypeSubmitInfo,
			WaitSemaphoreCount:   uint32(len(s.WaitSemaphores)),
			PWaitSemaphores:      semaphores(s.WaitSemaphores),
			PWaitDstStageMask:    stages,
			CommandBufferCount:   uint32(len(cmds)),
			PCommandBuffers:      cmds,
			SignalSemaphoreCount: uint32(len(s.SignalSemaphores)),
			PSignalSemaphores:    semaphores(s.SignalSemaphores),
		}
	}
	var f vk.Fence
	if fence != nil {
		f = fence.(*Fence).fence
	}
	return NewError(vk.QueueSubmit(q.graphics, uint32(len(infos)), infos, f))
}

func status(ret vk.Result) (hal.Status, error) {
	switch ret {
	case vk.Success:
		return hal.StatusSuccess, nil
	case vk.Suboptimal:
		return hal.StatusSuboptimal, nil
	case vk.ErrorOutOfDate:
		return hal.StatusOutOfDate, nil
	case vk.Timeout, vk.NotReady:
		return hal.StatusSuccess, hal.ErrTimeout
	}
	return hal.StatusSuccess, NewError(ret)
}

func (q *Queue) Present(info *hal.PresentInfo) (hal.Status, error) {
	sc, ok := info.Swapchain.(*Swapchain)
	if !ok {
		return hal.StatusSuccess, errForeign
	}
	wait := semaphores(info.WaitSemaphores)
	ret := vk.QueuePresent(q.present, &vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: uint32(len(wait)),
		PWaitSemaphores:    wait,
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{sc.swapchain},
		PImageIndices:      []uint32{info.ImageIndex},
	})
	return status(ret)
}

func (q *Queue) WaitIdle() error {
	return NewError(vk.QueueWaitIdle(q.graphics))
}

type Fence struct {
	device vk.Device
	fence  vk.Fence
}

func (d *Device) CreateFence(signaled bool) (hal.Fence, error) {
	var flags vk.FenceCreateFlags
	if signaled {
		flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var fence vk.Fence
	ret := vk.CreateFence(d.device, &vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
		Flags: flags,
	}, nil, &fence)
	if err := NewError(ret); err != nil {
		return nil, err
	}
	return &Fence{device: d.device, fence: fence}, nil
}

func (f *Fence) Wait(timeout uint64) error {
	ret := vk.WaitForFences(f.device, 1, []vk.Fence{f.fence}, vk.True, timeout)
	if ret == vk.Timeout {
		return hal.ErrTimeout
	}
	return NewError(ret)
}

func (f *Fence) Reset() error {
	return NewError(vk.ResetFences(f.device, 1, []vk.Fence{f.fence}))
}

func (f *Fence) Destroy() {
	if f.device == nil {
		return
	}
	vk.DestroyFence(f.device, f.fence, nil)
	f.device = nil
}

type Semaphore struct {
	device    vk.Device
	semaphore vk.Semaphore
}

func (d *Device) CreateSemaphore() (hal.Semaphore, error) {
	var sem vk.Semaphore
	ret := vk.CreateSemaphore(d.device, &vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}, nil, &sem)
	if err := NewError(ret); err != nil {
		return nil, err
	}
	return &Semaphore{device: d.device, semaphore: sem}, nil
}

func (s *Semaphore) Destroy() {
	if s.device == nil {
		return
	}
	vk.DestroySemaphore(s.device, s.semaphore, nil)
	s.device = nil
}

func (d *Device) SurfaceCapabilities(surface hal.Surface) (caps hal.SurfaceCapabilities, err error) {
	defer checkErr(&err)
	s, ok := surface.(*Surface)
	if !ok {
		return caps, errForeign
	}
	gpu := d.adapter.gpu

	var sc vk.SurfaceCapabilities
	ret := vk.GetPhysicalDeviceSurfaceCapabilities(gpu, s.surface, &sc)
	orPanic(NewError(ret))
	sc.Deref()
	sc.CurrentExtent.Deref()
	sc.MinImageExtent.Deref()
	sc.MaxImageExtent.Deref()
	caps.MinImageCount = sc.MinImageCount
	caps.MaxImageCount = sc.MaxImageCount
	caps.CurrentExtent = hal.Extent2D{Width: sc.CurrentExtent.Width, Height: sc.CurrentExtent.Height}
	caps.MinExtent = hal.Extent2D{Width: sc.MinImageExtent.Width, Height: sc.MinImageExtent.Height}
	caps.MaxExtent = hal.Extent2D{Width: sc.MaxImageExtent.Width, Height: sc.MaxImageExtent.Height}

	var formatCount uint32
	vk.GetPhysicalDeviceSurfaceFormats(gpu, s.surface, &formatCount, nil)
	formats := make([]vk.SurfaceFormat, formatCount)
	vk.GetPhysicalDeviceSurfaceFormats(gpu, s.surface, &formatCount, formats)
	for _, f := range formats {
		f.Deref()
		format := hal.Format(f.Format)
		if f.Format == vk.FormatUndefined {
			format = hal.FormatB8G8R8A8Unorm
		}
		caps.Formats = append(caps.Formats, hal.SurfaceFormat{Format: format, ColorSpace: hal.ColorSpace(f.ColorSpace)})
	}

	var modeCount uint32
	vk.GetPhysicalDeviceSurfacePresentModes(gpu, s.surface, &modeCount, nil)
	modes := make([]vk.PresentMode, modeCount)
	vk.GetPhysicalDeviceSurfacePresentModes(gpu, s.surface, &modeCount, modes)
	for _, m := range modes {
		caps.PresentModes = append(caps.PresentModes, hal.PresentMode(m))
	}
	return caps, nil
}

type Swapchain struct {
	device    vk.Device
	swapchain vk.Swapchain
	images    []hal.Image
	desc      hal.SwapchainDescriptor
}

func (d *Device) CreateSwapchain(surface hal.Surface, desc *hal.SwapchainDescriptor) (hal.Swapchain, error) {
	s, ok := surface.(*Surface)
	if !ok {
		return nil, errForeign
	}
	var sc vk.SurfaceCapabilities
	if err := NewError(vk.GetPhysicalDeviceSurfaceCapabilities(d.adapter.gpu, s.surface, &sc)); err != nil {
		return nil, err
	}
	sc.Deref()

	preTransform := vk.SurfaceTransformIdentityBit
	if vk.SurfaceTransformFlagBits(sc.SupportedTransforms)&preTransform == 0 {
		preTransform = sc.CurrentTransform
	}
	compositeAlpha := vk.CompositeAlphaOpaqueBit
	for _, flag := range []vk.CompositeAlphaFlagBits{
		vk.CompositeAlphaOpaqueBit,
		vk.CompositeAlphaPreMultipliedBit,
		vk.CompositeAlphaPostMultipliedBit,
		vk.CompositeAlphaInheritBit,
	} {
		if sc.SupportedCompositeAlpha&vk.CompositeAlphaFlags(flag) != 0 {
			compositeAlpha = flag
			break
		}
	}

	old := vk.NullSwapchain
	if o, ok := desc.OldSwapchain.(*Swapchain); ok && o != nil {
		old = o.swapchain
	}

	var swapchain vk.Swapchain
	ret := vk.CreateSwapchain(d.device, &vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          s.surface,
		MinImageCount:    desc.MinImageCount,
		ImageFormat:      vk.Format(desc.Format.Format),
		ImageColorSpace:  vk.ColorSpace(desc.Format.ColorSpace),
		ImageExtent:      vk.Extent2D{Width: desc.Extent.Width, Height: desc.Extent.Height},
		ImageUsage:       vk.ImageUsageFlags(desc.Usage),
		PreTransform:     preTransform,
		CompositeAlpha:   compositeAlpha,
		ImageArrayLayers: 1,
		ImageSharingMode: vk.SharingModeExclusive,
		PresentMode:      vk.PresentMode(desc.PresentMode),
		OldSwapchain:     old,
		Clipped:          vk.True,
	}, nil, &swapchain)
	if err := NewError(ret); err != nil {
		return nil, err
	}

	var imageCount uint32
	vk.GetSwapchainImages(d.device, swapchain, &imageCount, nil)
	images := make([]vk.Image, imageCount)
	ret = vk.GetSwapchainImages(d.device, swapchain, &imageCount, images)
	if err := NewError(ret); err != nil {
		vk.DestroySwapchain(d.device, swapchain, nil)
		return nil, err
	}
	if imageCount == 0 {
		vk.DestroySwapchain(d.device, swapchain, nil)
		return nil, errors.New("vulkan: swapchain has no images")
	}

	out := &Swapchain{device: d.device, swapchain: swapchain, desc: *desc}
	for _, img := range images {
		out.images = append(out.images, &Image{
			device: d.device,
			image:  img,
			desc: hal.ImageDescriptor{
				Format:    desc.Format.Format,
				Width:     desc.Extent.Width,
				Height:    desc.Extent.Height,
				MipLevels: 1,
				Samples:   hal.SampleCount1,
				Usage:     desc.Usage,
			},
		})
	}
	return out, nil
}

func (s *Swapchain) Images() []hal.Image  { return s.images }
func (s *Swapchain) Format() hal.Format   { return s.desc.Format.Format }
func (s *Swapchain) Extent() hal.Extent2D { return s.desc.Extent }

func (s *Swapchain) AcquireNextImage(timeout uint64, signal hal.Semaphore) (uint32, hal.Status, error) {
	var sem vk.Semaphore
	if signal != nil {
		sem = signal.(*Semaphore).semaphore
	}
	var idx uint32
	ret := vk.AcquireNextImage(s.device, s.swapchain, timeout, sem, vk.NullFence, &idx)
	st, err := status(ret)
	return idx, st, err
}

func (s *Swapchain) Destroy() {
	if s.device == nil {
		return
	}
	vk.DestroySwapchain(s.device, s.swapchain, nil)
	s.device = nil
}
