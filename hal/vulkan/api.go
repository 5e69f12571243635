// Package vulkan implements hal on top of github.com/vulkan-go/vulkan.
//
// The binding exposes core Vulkan and the surface/swapchain extensions but no
// ray tracing entry points, so the acceleration structure features are always
// reported unsupported and the related calls return hal.ErrUnsupported.
package vulkan

import (
	"errors"
	"fmt"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"

	"github.com/andewx/lumenvk/hal"
)

// API is the Vulkan entry point. vk.Init (or vk.SetGetInstanceProcAddr
// followed by vk.Init) must have been called before CreateInstance.
type API struct{}

type Instance struct {
	instance      vk.Instance
	debugCallback vk.DebugReportCallback
}

func (API) CreateInstance(desc *hal.InstanceDescriptor) (inst hal.Instance, err error) {
	defer checkErr(&err)
	log := hal.Logger()

	actualExtensions, err := InstanceExtensions()
	orPanic(err)
	wanted := append([]string(nil), desc.Extensions...)
	if desc.Debug {
		wanted = append(wanted, "VK_EXT_debug_report")
	}
	extensions, missing := checkExisting(actualExtensions, wanted)
	if missing > 0 {
		log.Warn("vulkan: missing required instance extensions", "missing", missing)
	}
	log.Info("vulkan: enabling instance extensions", "count", len(extensions))

	var layers []string
	if len(desc.Layers) > 0 {
		actualLayers, err := ValidationLayers()
		orPanic(err)
		layers, missing = checkExisting(actualLayers, desc.Layers)
		if missing > 0 {
			log.Warn("vulkan: missing validation layers", "missing", missing)
		}
	}

	var instance vk.Instance
	ret := vk.CreateInstance(&vk.InstanceCreateInfo{
		SType: vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: &vk.ApplicationInfo{
			SType:              vk.StructureTypeApplicationInfo,
			ApiVersion:         uint32(desc.APIVersion),
			ApplicationVersion: vk.MakeVersion(1, 0, 0),
			PApplicationName:   safeString(desc.AppName),
			PEngineName:        safeString(desc.EngineName),
		},
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     layers,
	}, nil, &instance)
	orPanic(NewError(ret))
	vk.InitInstance(instance)

	i := &Instance{instance: instance}
	if desc.Debug {
		ret := vk.CreateDebugReportCallback(instance, &vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit),
			PfnCallback: dbgCallbackFunc,
		}, nil, &i.debugCallback)
		orPanic(NewError(ret), func() { vk.DestroyInstance(instance, nil) })
		log.Info("vulkan: debug report callback enabled")
	}
	return i, nil
}

func (i *Instance) Destroy() {
	if i.instance == nil {
		return
	}
	if i.debugCallback != vk.NullDebugReportCallback {
		vk.DestroyDebugReportCallback(i.instance, i.debugCallback, nil)
	}
	vk.DestroyInstance(i.instance, nil)
	i.instance = nil
}

type Surface struct {
	inst    *Instance
	surface vk.Surface
}

func (i *Instance) CreateSurface(w hal.Window) (hal.Surface, error) {
	ptr, err := w.CreateWindowSurface(i.instance)
	if err != nil {
		return nil, fmt.Errorf("vulkan: create window surface: %w", err)
	}
	surface := vk.SurfaceFromPointer(ptr)
	if surface == vk.NullSurface {
		return nil, errors.New("vulkan: window returned a null surface")
	}
	return &Surface{inst: i, surface: surface}, nil
}

func (s *Surface) Destroy() {
	if s.surface == vk.NullSurface {
		return
	}
	vk.DestroySurface(s.inst.instance, s.surface, nil)
	s.surface = vk.NullSurface
}

// EnumerateAdapters returns every GPU with a graphics queue that can present
// to surface, discrete devices first.
func (i *Instance) EnumerateAdapters(surface hal.Surface) (adapters []hal.Adapter, err error) {
	defer checkErr(&err)
	s, ok := surface.(*Surface)
	if !ok {
		return nil, errForeign
	}

	var gpuCount uint32
	ret := vk.EnumeratePhysicalDevices(i.instance, &gpuCount, nil)
	orPanic(NewError(ret))
	if gpuCount == 0 {
		return nil, errors.New("vulkan error: no GPU devices found")
	}
	gpus := make([]vk.PhysicalDevice, gpuCount)
	ret = vk.EnumeratePhysicalDevices(i.instance, &gpuCount, gpus)
	orPanic(NewError(ret))

	var integrated []hal.Adapter
	for _, gpu := range gpus {
		a := newAdapter(i, s, gpu)
		if !a.findQueues() {
			continue
		}
		if a.Info().Discrete {
			adapters = append(adapters, a)
		} else {
			integrated = append(integrated, a)
		}
	}
	adapters = append(adapters, integrated...)
	if len(adapters) == 0 {
		return nil, errors.New("vulkan error: no GPU can present to the surface")
	}
	return adapters, nil
}

type Adapter struct {
	inst    *Instance
	surface *Surface
	gpu     vk.PhysicalDevice

	properties       vk.PhysicalDeviceProperties
	memoryProperties vk.PhysicalDeviceMemoryProperties
	features         vk.PhysicalDeviceFeatures

	graphicsQueueIndex uint32
	presentQueueIndex  uint32
}

func newAdapter(inst *Instance, surface *Surface, gpu vk.PhysicalDevice) *Adapter {
	a := &Adapter{inst: inst, surface: surface, gpu: gpu}
	vk.GetPhysicalDeviceProperties(gpu, &a.properties)
	a.properties.Deref()
	a.properties.Limits.Deref()
	vk.GetPhysicalDeviceMemoryProperties(gpu, &a.memoryProperties)
	a.memoryProperties.Deref()
	vk.GetPhysicalDeviceFeatures(gpu, &a.features)
	a.features.Deref()
	return a
}

// findQueues picks a graphics queue family, preferring one that can also
// present, and a present family otherwise.
func (a *Adapter) findQueues() bool {
	var queueCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(a.gpu, &queueCount, nil)
	if queueCount == 0 {
		return false
	}
	queueProperties := make([]vk.QueueFamilyProperties, queueCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(a.gpu, &queueCount, queueProperties)

	graphicsFound, presentFound := false, false
	for i := uint32(0); i < queueCount; i++ {
		queueProperties[i].Deref()
		var supportsPresent vk.Bool32
		vk.GetPhysicalDeviceSurfaceSupport(a.gpu, i, a.surface.surface, &supportsPresent)
		graphics := queueProperties[i].QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) != 0
		if graphics && supportsPresent.B() {
			a.graphicsQueueIndex, a.presentQueueIndex = i, i
			return true
		}
		if graphics && !graphicsFound {
			a.graphicsQueueIndex = i
			graphicsFound = true
		}
		if supportsPresent.B() && !presentFound {
			a.presentQueueIndex = i
			presentFound = true
		}
	}
	return graphicsFound && presentFound
}

func (a *Adapter) Info() hal.AdapterInfo {
	return hal.AdapterInfo{
		Name:     vk.ToString(a.properties.DeviceName[:]),
		VendorID: a.properties.VendorID,
		DeviceID: a.properties.DeviceID,
		Discrete: a.properties.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu,
	}
}

func (a *Adapter) Limits() hal.Limits {
	l := a.properties.Limits
	return hal.Limits{
		MaxSamplerAnisotropy: l.MaxSamplerAnisotropy,
		ColorSampleCounts:    hal.SampleCount(l.FramebufferColorSampleCounts),
		DepthSampleCounts:    hal.SampleCount(l.FramebufferDepthSampleCounts),
		MaxImageDimension2D:  l.MaxImageDimension2D,
	}
}

// supported is the feature table as reported by the physical device.
func (a *Adapter) supported() hal.FeatureSet {
	var list []hal.Feature
	if a.features.SamplerAnisotropy.B() {
		list = append(list, hal.FeatureSamplerAnisotropy)
	}
	if a.features.SampleRateShading.B() {
		list = append(list, hal.FeatureSampleRateShading)
	}
	return hal.NewFeatureSet(list...)
}

func (a *Adapter) Open(desc *hal.DeviceDescriptor) (dev hal.Device, err error) {
	defer checkErr(&err)

	features := a.supported()
	var enabled vk.PhysicalDeviceFeatures
	for _, f := range desc.Features {
		if !features.Enable(f) {
			return nil, fmt.Errorf("vulkan: %s: %w", f, hal.ErrUnsupported)
		}
		switch f {
		case hal.FeatureSamplerAnisotropy:
			enabled.SamplerAnisotropy = vk.True
		case hal.FeatureSampleRateShading:
			enabled.SampleRateShading = vk.True
		}
	}

	actualExtensions, err := DeviceExtensions(a.gpu)
	orPanic(err)
	extensions, missing := checkExisting(actualExtensions, []string{"VK_KHR_swapchain"})
	if missing > 0 {
		return nil, errors.New("vulkan error: device cannot create swapchains")
	}

	queueInfos := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: a.graphicsQueueIndex,
		QueueCount:       1,
		PQueuePriorities: []float32{1.0},
	}}
	if a.presentQueueIndex != a.graphicsQueueIndex {
		queueInfos = append(queueInfos, vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: a.presentQueueIndex,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		})
	}

	var device vk.Device
	ret := vk.CreateDevice(a.gpu, &vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{enabled},
	}, nil, &device)
	orPanic(NewError(ret))

	d := &Device{adapter: a, device: device, features: features, label: desc.Label}
	d.queue = &Queue{dev: d}
	vk.GetDeviceQueue(device, a.graphicsQueueIndex, 0, &d.queue.graphics)
	d.queue.present = d.queue.graphics
	if a.presentQueueIndex != a.graphicsQueueIndex {
		vk.GetDeviceQueue(device, a.presentQueueIndex, 0, &d.queue.present)
	}
	hal.Logger().Debug("vulkan: device opened", "label", desc.Label, "gpu", a.Info().Name, "features", features.EnabledList())
	return d, nil
}

// Device is a vk.Device with its graphics and present queues.
type Device struct {
	adapter  *Adapter
	device   vk.Device
	queue    *Queue
	features hal.FeatureSet
	label    string
}

func (d *Device) Destroy() {
	if d.device == nil {
		return
	}
	vk.DeviceWaitIdle(d.device)
	vk.DestroyDevice(d.device, nil)
	d.device = nil
}

func (d *Device) SupportedFeatures() hal.FeatureSet { return d.features.Clone() }
func (d *Device) Limits() hal.Limits                { return d.adapter.Limits() }
func (d *Device) Queue() hal.Queue                  { return d.queue }

func (d *Device) WaitIdle() error {
	return NewError(vk.DeviceWaitIdle(d.device))
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType,
	object uint64, location uint, messageCode int32, pLayerPrefix string,
	pMessage string, pUserData unsafe.Pointer) vk.Bool32 {

	log := hal.Logger()
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		log.Error("vulkan: validation", "layer", pLayerPrefix, "code", messageCode, "msg", pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0,
		flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		log.Warn("vulkan: validation", "layer", pLayerPrefix, "code", messageCode, "msg", pMessage)
	default:
		log.Debug("vulkan: validation", "layer", pLayerPrefix, "code", messageCode, "msg", pMessage)
	}
	return vk.Bool32(vk.False)
}
