package lumenvk

import (
	"errors"
	"fmt"

	"github.com/andewx/lumenvk/hal"
)

// FeatureGroup is a set of device features that is enabled as a whole or
// not at all.
type FeatureGroup int

const (
	GroupAnisotropy FeatureGroup = iota
	GroupSampleShading
	GroupRayTracing
)

func (g FeatureGroup) String() string {
	switch g {
	case GroupAnisotropy:
		return "anisotropy"
	case GroupSampleShading:
		return "sample-shading"
	case GroupRayTracing:
		return "ray-tracing"
	}
	return "unknown"
}

var groupFeatures = map[FeatureGroup][]hal.Feature{
	GroupAnisotropy:    {hal.FeatureSamplerAnisotropy},
	GroupSampleShading: {hal.FeatureSampleRateShading},
	GroupRayTracing: {
		hal.FeatureBufferDeviceAddress,
		hal.FeatureDescriptorIndexing,
		hal.FeatureAccelerationStructure,
		hal.FeatureRayQuery,
	},
}

// Features enabled alongside a group when available; their absence does not
// disable the group.
var groupOptional = map[FeatureGroup][]hal.Feature{
	GroupRayTracing: {hal.FeatureAccelerationStructureHostCommands},
}

// negotiate returns a copy of supported with the features of every desired
// group enabled, skipping groups with any unsupported member.
func negotiate(supported hal.FeatureSet, desired []FeatureGroup) (hal.FeatureSet, map[FeatureGroup]bool) {
	out := supported.Clone()
	for f := range out {
		out.Disable(f)
	}
	groups := make(map[FeatureGroup]bool, len(desired))
	for _, g := range desired {
		ok := true
		for _, f := range groupFeatures[g] {
			if !out.Supported(f) {
				ok = false
				break
			}
		}
		groups[g] = ok
		if !ok {
			continue
		}
		for _, f := range groupFeatures[g] {
			out.Enable(f)
		}
		for _, f := range groupOptional[g] {
			out.Enable(f)
		}
	}
	return out, groups
}

// ValidationLayer is enabled, together with the debug report callback, when
// ContextOptions.Validation is set.
const ValidationLayer = "VK_LAYER_KHRONOS_validation"

type ContextOptions struct {
	AppName    string
	APIVersion hal.Version
	Validation bool
	// Groups are the feature groups to enable when the device supports them.
	Groups []FeatureGroup
}

// GraphicsContext owns the instance, surface and logical device, and the
// command pool used for one-off uploads. It is created once and destroyed
// after everything built from it.
type GraphicsContext struct {
	Instance hal.Instance
	Surface  hal.Surface
	Adapter  hal.Adapter
	Device   hal.Device
	Queue    hal.Queue
	// Features is the device feature table with the negotiated set enabled.
	Features hal.FeatureSet
	Limits   hal.Limits

	groups    map[FeatureGroup]bool
	pool      hal.CommandPool
	deletion  DeletionQueue
	destroyed bool
}

// NewGraphicsContext creates the instance, the window surface and the
// device. The device is opened twice: a probe device reports the supported
// features, then the final device is opened with the negotiated subset.
// Every failure is fatal.
func NewGraphicsContext(api hal.API, window hal.Window, opts ContextOptions) (ctx *GraphicsContext, err error) {
	c := &GraphicsContext{}
	defer func() {
		if err != nil {
			c.deletion.Flush()
			err = fatal("create graphics context", err)
			ctx = nil
		}
	}()
	defer checkErr(&err)

	log := Logger()
	var layers []string
	if opts.Validation {
		layers = []string{ValidationLayer}
	}
	c.Instance, err = api.CreateInstance(&hal.InstanceDescriptor{
		AppName:    opts.AppName,
		EngineName: "lumenvk",
		APIVersion: opts.APIVersion,
		Extensions: window.RequiredInstanceExtensions(),
		Layers:     layers,
		Debug:      opts.Validation,
	})
	orPanic(err)
	c.deletion.PushResource(c.Instance)

	c.Surface, err = c.Instance.CreateSurface(window)
	orPanic(err)
	c.deletion.PushResource(c.Surface)

	adapters, err := c.Instance.EnumerateAdapters(c.Surface)
	orPanic(err)
	if len(adapters) == 0 {
		orPanic(errors.New("no adapter can present to the surface"))
	}
	c.Adapter = adapters[0]
	info := c.Adapter.Info()

	probe, err := c.Adapter.Open(&hal.DeviceDescriptor{Label: "probe"})
	orPanic(err)
	supported := probe.SupportedFeatures()
	probe.Destroy()

	features, groups := negotiate(supported, opts.Groups)
	for g, ok := range groups {
		if ok {
			log.Info("feature group enabled", "group", g)
		} else {
			log.Warn("feature group disabled", "group", g, "reason", "unsupported")
		}
	}
	c.groups = groups

	c.Device, err = c.Adapter.Open(&hal.DeviceDescriptor{
		Label:    opts.AppName,
		Features: features.EnabledList(),
	})
	orPanic(err)
	c.deletion.PushResource(c.Device)
	c.Features = c.Device.SupportedFeatures()
	c.Limits = c.Device.Limits()
	c.Queue = c.Device.Queue()

	c.pool, err = c.Device.CreateCommandPool()
	orPanic(err)
	c.deletion.PushResource(c.pool)

	log.Info("device selected", "name", info.Name, "discrete", info.Discrete,
		"features", len(c.Features.EnabledList()))
	return c, nil
}

// Enabled reports whether every feature of g was enabled.
func (c *GraphicsContext) Enabled(g FeatureGroup) bool { return c.groups[g] }

// CommandPool is the pool frame command buffers are allocated from.
func (c *GraphicsContext) CommandPool() hal.CommandPool { return c.pool }

// BeginSingleTimeCommands allocates a command buffer and starts recording.
func (c *GraphicsContext) BeginSingleTimeCommands() (hal.CommandBuffer, error) {
	cb, err := c.pool.Allocate()
	if err != nil {
		return nil, fmt.Errorf("allocate single-time command buffer: %w", err)
	}
	if err := cb.Begin(true); err != nil {
		c.pool.Free(cb)
		return nil, err
	}
	return cb, nil
}

// EndSingleTimeCommands submits cb, blocks until the device has executed it
// and frees it.
func (c *GraphicsContext) EndSingleTimeCommands(cb hal.CommandBuffer) error {
	defer c.pool.Free(cb)
	if err := cb.End(); err != nil {
		return err
	}
	fence, err := c.Device.CreateFence(false)
	if err != nil {
		return err
	}
	defer fence.Destroy()
	if err := c.Queue.Submit([]hal.SubmitInfo{{CommandBuffers: []hal.CommandBuffer{cb}}}, fence); err != nil {
		return err
	}
	return fence.Wait(hal.WaitForever)
}

// SingleTimeCommands records with fn and runs the result synchronously. A
// panic inside fn, such as an unknown layout transition, is returned as a
// FatalError.
func (c *GraphicsContext) SingleTimeCommands(fn func(cb hal.CommandBuffer)) (err error) {
	cb, err := c.BeginSingleTimeCommands()
	if err != nil {
		return err
	}
	defer func() {
		if v := recover(); v != nil {
			c.pool.Free(cb)
			err = fatal("record single-time commands", recovered(v))
		}
	}()
	fn(cb)
	return c.EndSingleTimeCommands(cb)
}

// Destroy waits for the device to go idle and releases everything the
// context created. Calling it again does nothing.
func (c *GraphicsContext) Destroy() {
	if c.destroyed {
		return
	}
	c.destroyed = true
	if c.Device != nil {
		if err := c.Device.WaitIdle(); err != nil {
			Logger().Warn("wait idle before teardown", "err", err)
		}
	}
	c.deletion.Flush()
}
