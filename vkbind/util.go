package vkbind

import (
	"strings"

	vk "github.com/vulkan-go/vulkan"
)

// InstanceExtensions gets a list of instance extensions available on the platform.
func InstanceExtensions() (names []string, err error) {
	var count uint32
	if err := newError(vk.EnumerateInstanceExtensionProperties("", &count, nil)); err != nil {
		return nil, err
	}
	list := make([]vk.ExtensionProperties, count)
	if err := newError(vk.EnumerateInstanceExtensionProperties("", &count, list)); err != nil {
		return nil, err
	}
	for _, ext := range list {
		ext.Deref()
		names = append(names, vk.ToString(ext.ExtensionName[:]))
	}
	return names, nil
}

// DeviceExtensions gets a list of extensions available on the provided physical device.
func DeviceExtensions(gpu vk.PhysicalDevice) (names []string, err error) {
	var count uint32
	if err := newError(vk.EnumerateDeviceExtensionProperties(gpu, "", &count, nil)); err != nil {
		return nil, err
	}
	list := make([]vk.ExtensionProperties, count)
	if err := newError(vk.EnumerateDeviceExtensionProperties(gpu, "", &count, list)); err != nil {
		return nil, err
	}
	for _, ext := range list {
		ext.Deref()
		names = append(names, vk.ToString(ext.ExtensionName[:]))
	}
	return names, nil
}

// ValidationLayers gets a list of validation layers available on the platform.
func ValidationLayers() (names []string, err error) {
	var count uint32
	if err := newError(vk.EnumerateInstanceLayerProperties(&count, nil)); err != nil {
		return nil, err
	}
	list := make([]vk.LayerProperties, count)
	if err := newError(vk.EnumerateInstanceLayerProperties(&count, list)); err != nil {
		return nil, err
	}
	for _, layer := range list {
		layer.Deref()
		names = append(names, vk.ToString(layer.LayerName[:]))
	}
	return names, nil
}

// checkExisting returns the wanted names present in actual, null-terminated
// for the C side, and how many were missing.
func checkExisting(actual, wanted []string) (existing []string, missing int) {
	have := make(map[string]struct{}, len(actual))
	for _, name := range actual {
		have[name] = struct{}{}
	}
	for _, name := range wanted {
		if _, ok := have[strings.TrimSuffix(name, "\x00")]; ok {
			existing = append(existing, safeString(name))
		} else {
			missing++
		}
	}
	return existing, missing
}

func safeString(s string) string {
	if len(s) == 0 || s[len(s)-1] != '\x00' {
		return s + "\x00"
	}
	return s
}
