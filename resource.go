package lumenvk

import "strings"

// ResourceStatus is the lifecycle bitmask of a GPU resource.
type ResourceStatus uint8

const (
	StatusUnloaded ResourceStatus = 0
	StatusCreated  ResourceStatus = 1 << iota
	StatusInRAM
	StatusInVRAM
	StatusDestroyed
)

func (s ResourceStatus) String() string {
	if s == StatusUnloaded {
		return "unloaded"
	}
	var parts []string
	for _, f := range []struct {
		bit  ResourceStatus
		name string
	}{
		{StatusCreated, "created"},
		{StatusInRAM, "in-ram"},
		{StatusInVRAM, "in-vram"},
		{StatusDestroyed, "destroyed"},
	} {
		if s&f.bit != 0 {
			parts = append(parts, f.name)
		}
	}
	return strings.Join(parts, "|")
}

// resource is embedded by every GPU-memory object. Handles created for the
// object push their release onto deletion; destroy flushes it once and marks
// the object terminal.
type resource struct {
	name     string
	status   ResourceStatus
	deletion DeletionQueue
}

func (r *resource) Name() string           { return r.name }
func (r *resource) Status() ResourceStatus { return r.status }
func (r *resource) Has(s ResourceStatus) bool {
	return r.status&s != 0
}

func (r *resource) destroyed() bool { return r.status&StatusDestroyed != 0 }

func (r *resource) set(s ResourceStatus) {
	if r.destroyed() {
		return
	}
	r.status |= s
}

// release frees the device objects and drops back to UNLOADED or, with
// host data kept, IN_RAM.
func (r *resource) release(keepRAM bool) {
	if r.destroyed() {
		return
	}
	r.deletion.Flush()
	r.status &^= StatusCreated | StatusInVRAM
	if !keepRAM {
		r.status &^= StatusInRAM
	}
}

// Destroy frees every device object. It is terminal and idempotent.
func (r *resource) Destroy() {
	if r.destroyed() {
		return
	}
	r.deletion.Flush()
	r.status = StatusDestroyed
	Logger().Debug("resource destroyed", "name", r.name)
}
