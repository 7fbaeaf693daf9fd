package vkbind

import (
	"io"
	"log"

	"github.com/andewx/dieselcmd/native"
	"github.com/cockroachdb/errors"
	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/vulkan-go/vulkan"
)

// InitLoader resolves the Vulkan loader. The proc address is taken from GLFW
// when it initialises; otherwise the system loader library is used. Call it
// once from the main goroutine before Open.
func InitLoader() error {
	if err := glfw.Init(); err == nil {
		vk.SetGetInstanceProcAddr(glfw.GetVulkanGetInstanceProcAddress())
	} else if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
		return errors.Wrap(err, "vulkan loader not found")
	}
	return errors.Wrap(vk.Init(), "initialising vulkan")
}

// Options selects what Open enables and which device it picks.
type Options struct {
	AppName    string
	APIVersion uint32
	// Layers and extensions are enabled when available; missing ones are
	// logged and skipped.
	Layers             []string
	InstanceExtensions []string
	DeviceExtensions   []string
	// Required is the capability set a device must offer in at least one
	// queue family. Zero selects graphics.
	Required native.QueueFlags
	// QueuesPerFamily caps the queues created in every family. Zero means one.
	QueuesPerFamily uint32
	Log             *log.Logger
}

// Session is a headless Vulkan instance with one logical device.
type Session struct {
	instance vk.Instance
	gpu      vk.PhysicalDevice
	props    vk.PhysicalDeviceProperties
	device   vk.Device
	dev      *Device
	families []native.QueueFamilyProperties
	log      *log.Logger
}

func newError(ret vk.Result) error {
	if ret == vk.Success {
		return nil
	}
	return errors.Newf("vulkan error: %s (%d)", vk.Error(ret).Error(), ret)
}

// Open creates an instance, picks the first GPU with a queue family
// supporting opts.Required and creates a device with queues in every family.
func Open(opts Options) (s *Session, err error) {
	if opts.Log == nil {
		opts.Log = log.New(io.Discard, "INFO: ", log.Ldate|log.Ltime|log.Lshortfile)
	}
	if opts.Required == 0 {
		opts.Required = native.QueueGraphics
	}
	if opts.QueuesPerFamily == 0 {
		opts.QueuesPerFamily = 1
	}
	if opts.APIVersion == 0 {
		opts.APIVersion = uint32(vk.MakeVersion(1, 1, 0))
	}
	sess := &Session{log: opts.Log}
	defer func() {
		if err != nil {
			sess.Close()
		}
	}()
	s = sess

	actualLayers, err := ValidationLayers()
	if err != nil {
		return nil, err
	}
	layers, missing := checkExisting(actualLayers, opts.Layers)
	if missing > 0 {
		s.log.Println("vulkan warning: missing", missing, "validation layers during init")
	}
	actualExtensions, err := InstanceExtensions()
	if err != nil {
		return nil, err
	}
	instanceExtensions, missing := checkExisting(actualExtensions, opts.InstanceExtensions)
	if missing > 0 {
		s.log.Println("vulkan warning: missing", missing, "instance extensions during init")
	}

	var instance vk.Instance
	ret := vk.CreateInstance(&vk.InstanceCreateInfo{
		SType: vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: &vk.ApplicationInfo{
			SType:              vk.StructureTypeApplicationInfo,
			ApiVersion:         opts.APIVersion,
			ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
			PApplicationName:   safeString(opts.AppName),
			PEngineName:        "dieselcmd\x00",
		},
		EnabledExtensionCount:   uint32(len(instanceExtensions)),
		PpEnabledExtensionNames: instanceExtensions,
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     layers,
	}, nil, &instance)
	if err := newError(ret); err != nil {
		return nil, errors.Wrap(err, "creating instance")
	}
	s.instance = instance
	if err := vk.InitInstance(instance); err != nil {
		return nil, errors.Wrap(err, "loading instance functions")
	}

	var gpuCount uint32
	if err := newError(vk.EnumeratePhysicalDevices(instance, &gpuCount, nil)); err != nil {
		return nil, err
	}
	if gpuCount == 0 {
		return nil, errors.New("vulkan error: no GPU devices found")
	}
	gpus := make([]vk.PhysicalDevice, gpuCount)
	if err := newError(vk.EnumeratePhysicalDevices(instance, &gpuCount, gpus)); err != nil {
		return nil, err
	}
	var props []vk.QueueFamilyProperties
	found := false
	for _, gpu := range gpus {
		props = queueFamilies(gpu)
		for i := range props {
			if native.QueueFlags(props[i].QueueFlags)&opts.Required == opts.Required {
				found = true
				break
			}
		}
		if found {
			s.gpu = gpu
			break
		}
	}
	if !found {
		return nil, errors.Newf("vulkan error: no GPU with a %s queue family", opts.Required)
	}
	vk.GetPhysicalDeviceProperties(s.gpu, &s.props)
	s.props.Deref()

	actualDeviceExtensions, err := DeviceExtensions(s.gpu)
	if err != nil {
		return nil, err
	}
	deviceExtensions, missing := checkExisting(actualDeviceExtensions, opts.DeviceExtensions)
	if missing > 0 {
		s.log.Println("vulkan warning: missing", missing, "device extensions during init")
	}

	queueInfos := make([]vk.DeviceQueueCreateInfo, len(props))
	s.families = make([]native.QueueFamilyProperties, len(props))
	for i := range props {
		count := props[i].QueueCount
		if count > opts.QueuesPerFamily {
			count = opts.QueuesPerFamily
		}
		priorities := make([]float32, count)
		for j := range priorities {
			priorities[j] = 1.0
		}
		queueInfos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: uint32(i),
			QueueCount:       count,
			PQueuePriorities: priorities,
		}
		s.families[i] = native.QueueFamilyProperties{
			QueueFlags:         native.QueueFlags(props[i].QueueFlags),
			QueueCount:         count,
			TimestampValidBits: props[i].TimestampValidBits,
		}
	}

	var device vk.Device
	ret = vk.CreateDevice(s.gpu, &vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		EnabledExtensionCount:   uint32(len(deviceExtensions)),
		PpEnabledExtensionNames: deviceExtensions,
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     layers,
	}, nil, &device)
	if err := newError(ret); err != nil {
		return nil, errors.Wrap(err, "creating device")
	}
	s.device = device
	s.dev = NewDevice(device)
	s.log.Printf("vulkan: opened %s with %d queue families", s.DeviceName(), len(s.families))
	return s, nil
}

func queueFamilies(gpu vk.PhysicalDevice) []vk.QueueFamilyProperties {
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(gpu, &count, nil)
	props := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(gpu, &count, props)
	for i := range props {
		props[i].Deref()
	}
	return props
}

// Device returns the native device of the session.
func (s *Session) Device() *Device {
	return s.dev
}

// Families returns the properties of every queue family, with QueueCount set
// to the number of queues actually created.
func (s *Session) Families() []native.QueueFamilyProperties {
	return append([]native.QueueFamilyProperties(nil), s.families...)
}

func (s *Session) DeviceName() string {
	return vk.ToString(s.props.DeviceName[:])
}

// Close waits for the device to idle and destroys the device and instance.
// Every object created through Device must have been destroyed already.
func (s *Session) Close() {
	if s.device != nil {
		vk.DeviceWaitIdle(s.device)
		vk.DestroyDevice(s.device, nil)
		s.device = nil
	}
	if s.instance != nil {
		vk.DestroyInstance(s.instance, nil)
		s.instance = nil
	}
}
