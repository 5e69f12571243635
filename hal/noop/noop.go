// Package noop is a software hal backend. Commands recorded into a command
// buffer run on the CPU when the buffer is submitted, fences signal at the
// end of the submit, and the swapchain reports out-of-date as soon as the
// window's framebuffer size stops matching its extent.
//
// The device counts live objects per kind so callers can check teardown.
package noop

import (
	"fmt"
	"sort"
	"sync"

	"github.com/andewx/lumenvk/hal"
)

// API creates software instances.
type API struct {
	// Features reported as supported. Nil means DefaultFeatures.
	Features []hal.Feature
	// Limits replaces DefaultLimits when its MaxImageDimension2D is non-zero.
	Limits hal.Limits
	// MinImageCount and MaxImageCount bound the simulated surface. Zero
	// values pick 2 and 3.
	MinImageCount uint32
	MaxImageCount uint32
	// AcquireOrder, when set, is the cycle of image indices handed out by
	// AcquireNextImage instead of round-robin.
	AcquireOrder []uint32
}

// DefaultFeatures is every feature the backend can emulate.
func DefaultFeatures() []hal.Feature {
	return []hal.Feature{
		hal.FeatureSamplerAnisotropy,
		hal.FeatureSampleRateShading,
		hal.FeatureBufferDeviceAddress,
		hal.FeatureDescriptorIndexing,
		hal.FeatureAccelerationStructure,
		hal.FeatureRayQuery,
		hal.FeatureAccelerationStructureHostCommands,
	}
}

func DefaultLimits() hal.Limits {
	counts := hal.SampleCount1 | hal.SampleCount2 | hal.SampleCount4 | hal.SampleCount8
	return hal.Limits{
		MaxSamplerAnisotropy: 16,
		ColorSampleCounts:    counts,
		DepthSampleCounts:    counts,
		MaxImageDimension2D:  16384,
	}
}

func (a API) CreateInstance(desc *hal.InstanceDescriptor) (hal.Instance, error) {
	inst := &Instance{api: a}
	if desc != nil {
		inst.desc = *desc
	}
	if inst.api.Features == nil {
		inst.api.Features = DefaultFeatures()
	}
	if inst.api.Limits.MaxImageDimension2D == 0 {
		inst.api.Limits = DefaultLimits()
	}
	if inst.api.MinImageCount == 0 {
		inst.api.MinImageCount = 2
	}
	if inst.api.MaxImageCount == 0 {
		inst.api.MaxImageCount = 3
	}
	return inst, nil
}

type Instance struct {
	api       API
	desc      hal.InstanceDescriptor
	destroyed bool
}

func (i *Instance) CreateSurface(w hal.Window) (hal.Surface, error) {
	if w == nil {
		return nil, fmt.Errorf("noop: surface requires a window")
	}
	return &Surface{window: w}, nil
}

func (i *Instance) EnumerateAdapters(surface hal.Surface) ([]hal.Adapter, error) {
	return []hal.Adapter{&Adapter{inst: i}}, nil
}

func (i *Instance) Destroy() { i.destroyed = true }

// Desc returns the descriptor the instance was created with.
func (i *Instance) Desc() hal.InstanceDescriptor { return i.desc }

type Surface struct {
	window hal.Window
}

func (s *Surface) Destroy() {}

func (s *Surface) extent() hal.Extent2D {
	w, h := s.window.FramebufferSize()
	return hal.Extent2D{Width: uint32(max(w, 0)), Height: uint32(max(h, 0))}
}

type Adapter struct {
	inst *Instance
}

func (a *Adapter) Info() hal.AdapterInfo {
	return hal.AdapterInfo{Name: "noop software adapter", VendorID: 0x10005}
}

func (a *Adapter) Limits() hal.Limits { return a.inst.api.Limits }

func (a *Adapter) Open(desc *hal.DeviceDescriptor) (hal.Device, error) {
	features := hal.NewFeatureSet(a.inst.api.Features...)
	label := "device"
	if desc != nil {
		label = desc.Label
		for _, f := range desc.Features {
			if !features.Enable(f) {
				return nil, fmt.Errorf("noop: feature %s not supported", f)
			}
		}
	}
	d := &Device{
		adapter:  a,
		label:    label,
		features: features,
		live:     make(map[string]int),
		addrs:    make(map[uint64]*Buffer),
		structs:  make(map[uint64]*AccelerationStructure),
		nextAddr: 0x10000,
	}
	d.queue = &Queue{dev: d}
	return d, nil
}

// Stats counts device activity since the device was opened.
type Stats struct {
	Submits         int
	Presents        int
	FenceWaits      int
	WaitIdles       int
	DrawCalls       int
	BufferWrites    int
	HostBuilds      int
	DeviceBuilds    int
	Blits           int
	DoubleFrees     int
	LayoutErrors    int
	SemaphoreErrors int
}

// Device is a software logical device.
type Device struct {
	adapter  *Adapter
	label    string
	features hal.FeatureSet
	queue    *Queue

	mu       sync.Mutex
	live     map[string]int
	stats    Stats
	addrs    map[uint64]*Buffer
	structs  map[uint64]*AccelerationStructure
	nextAddr uint64
	lost     bool
}

func (d *Device) SupportedFeatures() hal.FeatureSet { return d.features.Clone() }
func (d *Device) Limits() hal.Limits                { return d.adapter.inst.api.Limits }
func (d *Device) Queue() hal.Queue                  { return d.queue }

func (d *Device) WaitIdle() error {
	d.count(func(s *Stats) { s.WaitIdles++ })
	return nil
}

func (d *Device) Destroy() {
	d.mu.Lock()
	d.lost = true
	d.mu.Unlock()
}

// Label is the name the device was opened with.
func (d *Device) Label() string { return d.label }

// Stats returns a snapshot of the activity counters.
func (d *Device) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// Live returns the number of live objects of kind ("buffer", "image",
// "fence" ...).
func (d *Device) Live(kind string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.live[kind]
}

// LiveTotal returns the number of live objects of every kind.
func (d *Device) LiveTotal() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.live {
		n += c
	}
	return n
}

// LiveKinds lists the kinds with live objects, for failure messages.
func (d *Device) LiveKinds() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []string
	for k, c := range d.live {
		if c > 0 {
			out = append(out, fmt.Sprintf("%s=%d", k, c))
		}
	}
	sort.Strings(out)
	return out
}

func (d *Device) count(fn func(*Stats)) {
	d.mu.Lock()
	fn(&d.stats)
	d.mu.Unlock()
}

func (d *Device) track(kind string) *object {
	d.mu.Lock()
	d.live[kind]++
	d.mu.Unlock()
	return &object{dev: d, kind: kind}
}

// object is embedded by every tracked resource.
type object struct {
	dev       *Device
	kind      string
	destroyed bool
}

func (o *object) release() bool {
	o.dev.mu.Lock()
	defer o.dev.mu.Unlock()
	if o.destroyed {
		o.dev.stats.DoubleFrees++
		return false
	}
	o.destroyed = true
	o.dev.live[o.kind]--
	return true
}

func (o *object) Destroy() { o.release() }

// Destroyed reports whether Destroy has been called.
func (o *object) Destroyed() bool {
	o.dev.mu.Lock()
	defer o.dev.mu.Unlock()
	return o.destroyed
}
