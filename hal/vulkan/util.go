package vulkan

import (
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

// InstanceExtensions gets a list of instance extensions available on the platform.
func InstanceExtensions() (names []string, err error) {
	defer checkErr(&err)

	var count uint32
	ret := vk.EnumerateInstanceExtensionProperties("", &count, nil)
	orPanic(NewError(ret))
	list := make([]vk.ExtensionProperties, count)
	ret = vk.EnumerateInstanceExtensionProperties("", &count, list)
	orPanic(NewError(ret))
	for _, ext := range list {
		ext.Deref()
		names = append(names, vk.ToString(ext.ExtensionName[:]))
	}
	return names, err
}

// DeviceExtensions gets a list of extensions available on the provided physical device.
func DeviceExtensions(gpu vk.PhysicalDevice) (names []string, err error) {
	defer checkErr(&err)

	var count uint32
	ret := vk.EnumerateDeviceExtensionProperties(gpu, "", &count, nil)
	orPanic(NewError(ret))
	list := make([]vk.ExtensionProperties, count)
	ret = vk.EnumerateDeviceExtensionProperties(gpu, "", &count, list)
	orPanic(NewError(ret))
	for _, ext := range list {
		ext.Deref()
		names = append(names, vk.ToString(ext.ExtensionName[:]))
	}
	return names, err
}

// ValidationLayers gets a list of validation layers available on the platform.
func ValidationLayers() (names []string, err error) {
	defer checkErr(&err)

	var count uint32
	ret := vk.EnumerateInstanceLayerProperties(&count, nil)
	orPanic(NewError(ret))
	list := make([]vk.LayerProperties, count)
	ret = vk.EnumerateInstanceLayerProperties(&count, list)
	orPanic(NewError(ret))
	for _, layer := range list {
		layer.Deref()
		names = append(names, vk.ToString(layer.LayerName[:]))
	}
	return names, err
}

// checkExisting returns the wanted names present in actual, null terminated,
// and how many were missing.
func checkExisting(actual, wanted []string) (existing []string, missing int) {
	have := make(map[string]struct{}, len(actual))
	for _, a := range actual {
		have[safeString(a)] = struct{}{}
	}
	for _, w := range wanted {
		w = safeString(w)
		if _, ok := have[w]; ok {
			existing = append(existing, w)
		} else {
			missing++
		}
	}
	return existing, missing
}

func safeString(s string) string {
	if len(s) == 0 || s[len(s)-1] != 0 {
		return s + "\x00"
	}
	return s
}

func safeStrings(list []string) []string {
	out := make([]string, len(list))
	for i := range list {
		out[i] = safeString(list[i])
	}
	return out
}

// sliceUint32 reinterprets SPIR-V bytecode as words.
func sliceUint32(data []byte) []uint32 {
	if len(data) < 4 {
		return nil
	}
	return unsafe.Slice((*uint32)(unsafe.Pointer(&data[0])), len(data)/4)
}

func bool32(b bool) vk.Bool32 {
	if b {
		return vk.True
	}
	return vk.False
}

// FindRequiredMemoryType returns the first memory type allowed by
// deviceRequirements that has all hostRequirements flags.
func FindRequiredMemoryType(props vk.PhysicalDeviceMemoryProperties,
	deviceRequirements, hostRequirements vk.MemoryPropertyFlagBits) (uint32, bool) {

	for i := uint32(0); i < props.MemoryTypeCount && i < vk.MaxMemoryTypes; i++ {
		if deviceRequirements&(vk.MemoryPropertyFlagBits(1)<<i) != 0 {
			props.MemoryTypes[i].Deref()
			flags := props.MemoryTypes[i].PropertyFlags
			if flags&vk.MemoryPropertyFlags(hostRequirements) == vk.MemoryPropertyFlags(hostRequirements) {
				return i, true
			}
		}
	}
	return 0, false
}
