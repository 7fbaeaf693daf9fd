// Package native declares the boundary between the submission core and the
// graphics API that executes work. Flag and result values mirror their Vulkan
// counterparts so that a binding can convert them with a plain cast.
package native

import "fmt"

// Handle is an opaque reference to a native object.
type Handle uint64

// NullHandle is only valid where a handle is optional (e.g. no fence).
const NullHandle Handle = 0

// Result is the status code returned by native calls.
type Result int32

const (
	Success                   Result = 0
	NotReady                  Result = 1
	Timeout                   Result = 2
	EventSet                  Result = 3
	EventReset                Result = 4
	Incomplete                Result = 5
	ErrorOutOfHostMemory      Result = -1
	ErrorOutOfDeviceMemory    Result = -2
	ErrorInitializationFailed Result = -3
	ErrorDeviceLost           Result = -4
	ErrorMemoryMapFailed      Result = -5
	ErrorLayerNotPresent      Result = -6
	ErrorExtensionNotPresent  Result = -7
	ErrorFeatureNotPresent    Result = -8
	ErrorIncompatibleDriver   Result = -9
	ErrorTooManyObjects       Result = -10
	ErrorFormatNotSupported   Result = -11
	ErrorFragmentedPool       Result = -12
	ErrorUnknown              Result = -13
)

var resultNames = map[Result]string{
	Success:                   "VK_SUCCESS",
	NotReady:                  "VK_NOT_READY",
	Timeout:                   "VK_TIMEOUT",
	EventSet:                  "VK_EVENT_SET",
	EventReset:                "VK_EVENT_RESET",
	Incomplete:                "VK_INCOMPLETE",
	ErrorOutOfHostMemory:      "VK_ERROR_OUT_OF_HOST_MEMORY",
	ErrorOutOfDeviceMemory:    "VK_ERROR_OUT_OF_DEVICE_MEMORY",
	ErrorInitializationFailed: "VK_ERROR_INITIALIZATION_FAILED",
	ErrorDeviceLost:           "VK_ERROR_DEVICE_LOST",
	ErrorMemoryMapFailed:      "VK_ERROR_MEMORY_MAP_FAILED",
	ErrorLayerNotPresent:      "VK_ERROR_LAYER_NOT_PRESENT",
	ErrorExtensionNotPresent:  "VK_ERROR_EXTENSION_NOT_PRESENT",
	ErrorFeatureNotPresent:    "VK_ERROR_FEATURE_NOT_PRESENT",
	ErrorIncompatibleDriver:   "VK_ERROR_INCOMPATIBLE_DRIVER",
	ErrorTooManyObjects:       "VK_ERROR_TOO_MANY_OBJECTS",
	ErrorFormatNotSupported:   "VK_ERROR_FORMAT_NOT_SUPPORTED",
	ErrorFragmentedPool:       "VK_ERROR_FRAGMENTED_POOL",
	ErrorUnknown:              "VK_ERROR_UNKNOWN",
}

func (r Result) String() string {
	if name, ok := resultNames[r]; ok {
		return name
	}
	return fmt.Sprintf("VkResult(%d)", int32(r))
}

// Level selects primary or secondary command buffers.
type Level int32

const (
	LevelPrimary   Level = 0
	LevelSecondary Level = 1
)

func (l Level) String() string {
	if l == LevelSecondary {
		return "secondary"
	}
	return "primary"
}

// PoolCreateFlags mirror VkCommandPoolCreateFlagBits.
type PoolCreateFlags uint32

const (
	PoolTransient          PoolCreateFlags = 0x1
	PoolResetCommandBuffer PoolCreateFlags = 0x2
)

// PoolResetFlags mirror VkCommandPoolResetFlagBits.
type PoolResetFlags uint32

const PoolResetReleaseResources PoolResetFlags = 0x1

// BufferResetFlags mirror VkCommandBufferResetFlagBits.
type BufferResetFlags uint32

const BufferResetReleaseResources BufferResetFlags = 0x1

// UsageFlags mirror VkCommandBufferUsageFlagBits.
type UsageFlags uint32

const (
	UsageOneTimeSubmit      UsageFlags = 0x1
	UsageRenderPassContinue UsageFlags = 0x2
	UsageSimultaneousUse    UsageFlags = 0x4
)

// FenceCreateFlags mirror VkFenceCreateFlagBits.
type FenceCreateFlags uint32

const FenceCreateSignaled FenceCreateFlags = 0x1

// PipelineStages mirror VkPipelineStageFlagBits.
type PipelineStages uint32

const (
	StageTopOfPipe              PipelineStages = 0x00000001
	StageDrawIndirect           PipelineStages = 0x00000002
	StageVertexInput            PipelineStages = 0x00000004
	StageVertexShader           PipelineStages = 0x00000008
	StageTessellationControl    PipelineStages = 0x00000010
	StageTessellationEvaluation PipelineStages = 0x00000020
	StageGeometryShader         PipelineStages = 0x00000040
	StageFragmentShader         PipelineStages = 0x00000080
	StageEarlyFragmentTests     PipelineStages = 0x00000100
	StageLateFragmentTests      PipelineStages = 0x00000200
	StageColorAttachmentOutput  PipelineStages = 0x00000400
	StageComputeShader          PipelineStages = 0x00000800
	StageTransfer               PipelineStages = 0x00001000
	StageBottomOfPipe           PipelineStages = 0x00002000
	StageHost                   PipelineStages = 0x00004000
	StageAllGraphics            PipelineStages = 0x00008000
	StageAllCommands            PipelineStages = 0x00010000
)

// AccessFlags mirror VkAccessFlagBits.
type AccessFlags uint32

const (
	AccessIndirectCommandRead  AccessFlags = 0x00000001
	AccessIndexRead            AccessFlags = 0x00000002
	AccessVertexAttributeRead  AccessFlags = 0x00000004
	AccessUniformRead          AccessFlags = 0x00000008
	AccessShaderRead           AccessFlags = 0x00000020
	AccessShaderWrite          AccessFlags = 0x00000040
	AccessColorAttachmentRead  AccessFlags = 0x00000080
	AccessColorAttachmentWrite AccessFlags = 0x00000100
	AccessTransferRead         AccessFlags = 0x00000800
	AccessTransferWrite        AccessFlags = 0x00001000
	AccessHostRead             AccessFlags = 0x00002000
	AccessHostWrite            AccessFlags = 0x00004000
	AccessMemoryRead           AccessFlags = 0x00008000
	AccessMemoryWrite          AccessFlags = 0x00010000
)

// QueueFlags mirror VkQueueFlagBits. QueuePresent is not a Vulkan bit; it is set
// from the surface support query when the family can present.
type QueueFlags uint32

const (
	QueueGraphics      QueueFlags = 0x1
	QueueCompute       QueueFlags = 0x2
	QueueTransfer      QueueFlags = 0x4
	QueueSparseBinding QueueFlags = 0x8
	QueuePresent       QueueFlags = 0x80000000
)

func (f QueueFlags) String() string {
	s := ""
	add := func(bit QueueFlags, name string) {
		if f&bit == 0 {
			return
		}
		if s != "" {
			s += "|"
		}
		s += name
	}
	add(QueueGraphics, "graphics")
	add(QueueCompute, "compute")
	add(QueueTransfer, "transfer")
	add(QueueSparseBinding, "sparse")
	add(QueuePresent, "present")
	if s == "" {
		return "none"
	}
	return s
}

// QueueFamilyProperties is what device enumeration reports for a family.
type QueueFamilyProperties struct {
	QueueFlags         QueueFlags
	QueueCount         uint32
	TimestampValidBits uint32
	Present            bool
}

// Inheritance is the render target context a secondary buffer continues.
type Inheritance struct {
	RenderPass  Handle
	Subpass     uint32
	Framebuffer Handle
}

// MemoryBarrier is a global memory dependency between two access scopes.
type MemoryBarrier struct {
	SrcAccess AccessFlags
	DstAccess AccessFlags
}

// SubmitInfo is the per-submission descriptor handed to QueueSubmit.
// WaitSemaphores and WaitStages are paired positionally.
type SubmitInfo struct {
	WaitSemaphores   []Handle
	WaitStages       []PipelineStages
	CommandBuffers   []Handle
	SignalSemaphores []Handle
}
