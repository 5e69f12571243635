package lumenvk

import (
	"fmt"

	"github.com/andewx/lumenvk/hal"
)

// FrameSlot is the per-frame-in-flight state: the fence guarding its
// command buffer and the two semaphores ordering acquire, render and
// present.
type FrameSlot struct {
	Fence          hal.Fence
	ImageAvailable hal.Semaphore
	RenderFinished hal.Semaphore
	Commands       hal.CommandBuffer
}

// frameSlots owns N slots. Fences start signaled so the first wait on each
// slot returns at once.
type frameSlots struct {
	slots    []*FrameSlot
	deletion DeletionQueue
}

func newFrameSlots(ctx *GraphicsContext, n int) (fs *frameSlots, err error) {
	fs = &frameSlots{slots: make([]*FrameSlot, 0, n)}
	defer func() {
		if err != nil {
			fs.Destroy()
			fs = nil
		}
	}()
	defer checkErr(&err)

	dev, pool := ctx.Device, ctx.CommandPool()
	for i := 0; i < n; i++ {
		s := &FrameSlot{}
		s.Fence, err = dev.CreateFence(true)
		orPanic(err)
		fs.deletion.PushResource(s.Fence)

		s.ImageAvailable, err = dev.CreateSemaphore()
		orPanic(err)
		fs.deletion.PushResource(s.ImageAvailable)

		s.RenderFinished, err = dev.CreateSemaphore()
		orPanic(err)
		fs.deletion.PushResource(s.RenderFinished)

		s.Commands, err = pool.Allocate()
		orPanic(err)
		cb := s.Commands
		fs.deletion.Push(func() { pool.Free(cb) })

		fs.slots = append(fs.slots, s)
	}
	Logger().Debug("frame slots created", "count", n)
	return fs, nil
}

func (f *frameSlots) Len() int { return len(f.slots) }

func (f *frameSlots) String() string { return fmt.Sprintf("%d frame slots", len(f.slots)) }

// Destroy releases every slot. Calling it again does nothing.
func (f *frameSlots) Destroy() {
	f.deletion.Flush()
	f.slots = nil
}
