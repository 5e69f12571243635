package lumenvk

import (
	"errors"
	"fmt"

	"github.com/andewx/lumenvk/hal"
)

// RecordFunc records the draw commands of one frame into cb, between
// BeginRenderPass and EndRenderPass, for swapchain image index.
type RecordFunc func(cb hal.CommandBuffer, st *SwapchainState, pass *RenderPass, index uint32) error

// FrameScheduler runs the acquire, record, submit and present loop. It
// keeps exactly one FrameSlot per swapchain image.
type FrameScheduler struct {
	ctx       *GraphicsContext
	swapchain *SwapchainCoordinator
	record    RecordFunc

	slots *frameSlots
	// imagesInFlight[k] is the fence of the last submission that rendered
	// to swapchain image k.
	imagesInFlight []hal.Fence
	frame          uint64
}

// NewFrameScheduler registers the scheduler with sc so its slots follow
// every recreation.
func NewFrameScheduler(ctx *GraphicsContext, sc *SwapchainCoordinator, record RecordFunc) *FrameScheduler {
	f := &FrameScheduler{ctx: ctx, swapchain: sc, record: record}
	sc.OnRecreate(f.onRecreate)
	return f
}

func (f *FrameScheduler) onRecreate(full bool, st *SwapchainState) error {
	n := st.ImageCount()
	if full || f.slots == nil || f.slots.Len() != n {
		if f.slots != nil {
			f.slots.Destroy()
		}
		slots, err := newFrameSlots(f.ctx, n)
		if err != nil {
			return fatal("create frame slots", err)
		}
		f.slots = slots
		f.swapchain.Optional().PushResource(slots)
	}
	f.imagesInFlight = make([]hal.Fence, n)
	return nil
}

// Slots returns the current frame slots.
func (f *FrameScheduler) Slots() []*FrameSlot {
	if f.slots == nil {
		return nil
	}
	return f.slots.slots
}

// FrameCount is the number of frames presented.
func (f *FrameScheduler) FrameCount() uint64 { return f.frame }

// Frame renders and presents one frame. An out-of-date swapchain at acquire
// triggers a recreation and skips the frame; an out-of-date or suboptimal
// present, or a pending resize, triggers one recreation after present.
func (f *FrameScheduler) Frame() error {
	st := f.swapchain.State()
	if st == nil || f.slots == nil || f.slots.Len() == 0 {
		return f.swapchain.RecreatePending(true)
	}
	i := f.frame % uint64(f.slots.Len())
	slot := f.slots.slots[i]

	// 1. the slot's previous submission must be finished before its
	// command buffer is reused
	if err := slot.Fence.Wait(hal.WaitForever); err != nil {
		return fmt.Errorf("wait frame fence: %w", err)
	}

	// 2.
	k, status, err := st.Swapchain.AcquireNextImage(hal.WaitForever, slot.ImageAvailable)
	if err != nil {
		return fmt.Errorf("acquire swapchain image: %w", err)
	}
	if status == hal.StatusOutOfDate {
		return f.swapchain.RecreatePending(true)
	}

	// 3. another slot may still be rendering to image k
	if fence := f.imagesInFlight[k]; fence != nil && fence != slot.Fence {
		if err := fence.Wait(hal.WaitForever); err != nil {
			return fmt.Errorf("wait image fence: %w", err)
		}
	}
	f.imagesInFlight[k] = slot.Fence

	// 4.
	cb := slot.Commands
	if err := cb.Reset(); err != nil {
		return err
	}
	if err := cb.Begin(false); err != nil {
		return err
	}
	pass := f.swapchain.RenderPass()
	extent := st.Extent
	cb.BeginRenderPass(&hal.RenderPassBeginInfo{
		RenderPass:  pass.Handle(),
		Framebuffer: st.Framebuffers[k].Handle(),
		Area:        hal.Rect2D{Width: extent.Width, Height: extent.Height},
		ClearValues: pass.ClearValues(),
	})
	cb.SetViewport(hal.Viewport{Width: float32(extent.Width), Height: float32(extent.Height), MaxDepth: 1})
	cb.SetScissor(hal.Rect2D{Width: extent.Width, Height: extent.Height})
	if f.record != nil {
		if err := f.record(cb, st, pass, k); err != nil {
			cb.EndRenderPass()
			_ = cb.End()
			return f.abandon(slot, err)
		}
	}
	cb.EndRenderPass()
	if err := cb.End(); err != nil {
		return err
	}

	// 5.
	if err := slot.Fence.Reset(); err != nil {
		return err
	}
	err = f.ctx.Queue.Submit([]hal.SubmitInfo{{
		WaitSemaphores:   []hal.Semaphore{slot.ImageAvailable},
		WaitStages:       []hal.PipelineStage{hal.PipelineStageColorAttachmentOutput},
		CommandBuffers:   []hal.CommandBuffer{cb},
		SignalSemaphores: []hal.Semaphore{slot.RenderFinished},
	}}, slot.Fence)
	if err != nil {
		return fatal("submit frame", err)
	}

	// 6.
	status, err = f.ctx.Queue.Present(&hal.PresentInfo{
		Swapchain:      st.Swapchain,
		ImageIndex:     k,
		WaitSemaphores: []hal.Semaphore{slot.RenderFinished},
	})
	if err != nil {
		return fmt.Errorf("present: %w", err)
	}

	// 7.
	f.frame++
	if status != hal.StatusSuccess || f.swapchain.Pending() {
		return f.swapchain.RecreatePending(status != hal.StatusSuccess)
	}
	return nil
}

// abandon gives up on a frame whose recording failed. An empty submit
// consumes the acquire semaphore and signals the slot fence, so the slot can
// be waited on and destroyed. The failure is fatal.
func (f *FrameScheduler) abandon(slot *FrameSlot, cause error) error {
	if err := slot.Fence.Reset(); err != nil {
		return fatal("record frame", errors.Join(cause, err))
	}
	err := f.ctx.Queue.Submit([]hal.SubmitInfo{{
		WaitSemaphores: []hal.Semaphore{slot.ImageAvailable},
		WaitStages:     []hal.PipelineStage{hal.PipelineStageColorAttachmentOutput},
	}}, slot.Fence)
	if err != nil {
		return fatal("record frame", errors.Join(cause, err))
	}
	return fatal("record frame", cause)
}
