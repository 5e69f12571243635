package lumenvk

import (
	"fmt"

	"github.com/andewx/lumenvk/hal"
)

// Buffer is a GPU buffer with host-side data. Host-visible buffers are
// written through a mapping; the others are filled from a staging buffer
// with a single-time copy.
type Buffer struct {
	resource
	ctx         *GraphicsContext
	usage       hal.BufferUsage
	hostVisible bool
	data        []byte
	buffer      hal.Buffer
}

// NewBuffer returns an UNLOADED buffer. Nothing is allocated until Upload.
func NewBuffer(ctx *GraphicsContext, name string, usage hal.BufferUsage, hostVisible bool) *Buffer {
	return &Buffer{resource: resource{name: name}, ctx: ctx, usage: usage, hostVisible: hostVisible}
}

// SetData keeps data as the buffer contents and moves it to IN_RAM. The
// slice is retained, not copied.
func (b *Buffer) SetData(data []byte) {
	if b.destroyed() {
		Logger().Warn("set data on destroyed buffer", "buffer", b.name)
		return
	}
	b.data = data
	if len(data) > 0 {
		b.set(StatusInRAM)
	}
}

// Data returns the host copy.
func (b *Buffer) Data() []byte { return b.data }

// Handle is the device buffer, nil until uploaded.
func (b *Buffer) Handle() hal.Buffer { return b.buffer }

func (b *Buffer) Size() uint64 {
	if b.buffer == nil {
		return uint64(len(b.data))
	}
	return b.buffer.Size()
}

func (b *Buffer) DeviceAddress() uint64 {
	if b.buffer == nil {
		return 0
	}
	return b.buffer.DeviceAddress()
}

// Upload creates the device buffer and copies the host data into it. A
// buffer without host data is left untouched and only logs ErrNotInRAM.
// Uploading again replaces the device buffer.
func (b *Buffer) Upload() error {
	if b.destroyed() {
		return fmt.Errorf("upload %q: %w", b.name, ErrDestroyed)
	}
	if !b.Has(StatusInRAM) {
		Logger().Warn("upload skipped", "buffer", b.name, "err", ErrNotInRAM)
		return nil
	}
	b.release(true)

	desc := &hal.BufferDescriptor{
		Label: b.name,
		Size:  uint64(len(b.data)),
		Usage: b.usage,
	}
	if b.hostVisible {
		desc.Memory = hal.MemoryHostVisible | hal.MemoryHostCoherent
	} else {
		desc.Usage |= hal.BufferUsageTransferDst
		desc.Memory = hal.MemoryDeviceLocal
	}
	buf, err := b.ctx.Device.CreateBuffer(desc)
	if err != nil {
		return fmt.Errorf("create buffer %q: %w", b.name, err)
	}
	b.buffer = buf
	b.deletion.Push(func() {
		buf.Destroy()
		b.buffer = nil
	})
	b.set(StatusCreated)

	if err := b.write(b.data); err != nil {
		return err
	}
	b.set(StatusInVRAM)
	Logger().Debug("buffer uploaded", "buffer", b.name, "size", desc.Size, "host", b.hostVisible)
	return nil
}

// Update replaces the contents of an uploaded buffer of the same size.
// Updating a buffer that was never created logs ErrNotCreated and does
// nothing.
func (b *Buffer) Update(data []byte) error {
	if b.destroyed() {
		return fmt.Errorf("update %q: %w", b.name, ErrDestroyed)
	}
	if !b.Has(StatusCreated) {
		Logger().Warn("update skipped", "buffer", b.name, "err", ErrNotCreated)
		return nil
	}
	if uint64(len(data)) != b.buffer.Size() {
		b.SetData(data)
		return b.Upload()
	}
	b.data = data
	return b.write(data)
}

func (b *Buffer) write(data []byte) error {
	if b.hostVisible {
		return b.buffer.Write(0, data)
	}
	dst := b.buffer
	return b.ctx.stage(b.name, data, func(cb hal.CommandBuffer, staging hal.Buffer) {
		cb.CopyBuffer(staging, dst, []hal.BufferCopy{{Size: uint64(len(data))}})
	})
}

// Unload frees the device buffer and drops the host data.
func (b *Buffer) Unload() {
	b.release(false)
	b.data = nil
}

// stage copies data into a transient host-visible buffer and runs record
// with it as a single-time command. The staging buffer is freed afterwards.
func (c *GraphicsContext) stage(name string, data []byte, record func(cb hal.CommandBuffer, staging hal.Buffer)) error {
	staging, err := c.Device.CreateBuffer(&hal.BufferDescriptor{
		Label:  name + "/staging",
		Size:   uint64(len(data)),
		Usage:  hal.BufferUsageTransferSrc,
		Memory: hal.MemoryHostVisible | hal.MemoryHostCoherent,
	})
	if err != nil {
		return fmt.Errorf("create staging buffer for %q: %w", name, err)
	}
	defer staging.Destroy()
	if err := staging.Write(0, data); err != nil {
		return err
	}
	return c.SingleTimeCommands(func(cb hal.CommandBuffer) {
		record(cb, staging)
	})
}
