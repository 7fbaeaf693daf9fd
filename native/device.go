package native

// PoolAPI creates command pools and allocates buffers out of them.
type PoolAPI interface {
	CreateCommandPool(family uint32, flags PoolCreateFlags) (Handle, Result)
	DestroyCommandPool(pool Handle)
	ResetCommandPool(pool Handle, flags PoolResetFlags) Result
	// AllocateCommandBuffers allocates count buffers in a single call.
	AllocateCommandBuffers(pool Handle, level Level, count uint32) ([]Handle, Result)
	FreeCommandBuffers(pool Handle, buffers []Handle)
}

// BufferAPI drives recording on a single command buffer.
type BufferAPI interface {
	// BeginCommandBuffer starts recording. inheritance is nil for primary buffers.
	BeginCommandBuffer(buffer Handle, flags UsageFlags, inheritance *Inheritance) Result
	EndCommandBuffer(buffer Handle) Result
	ResetCommandBuffer(buffer Handle, flags BufferResetFlags) Result
	CmdExecuteCommands(buffer Handle, secondaries []Handle)
	CmdPipelineBarrier(buffer Handle, src, dst PipelineStages, barriers []MemoryBarrier)
}

// SubmitAPI deposits work to queues.
type SubmitAPI interface {
	GetDeviceQueue(family, index uint32) Handle
	QueueSubmit(queue Handle, submits []SubmitInfo, fence Handle) Result
	QueueWaitIdle(queue Handle) Result
}

// FenceAPI manages host-observable completion signals.
type FenceAPI interface {
	CreateFence(flags FenceCreateFlags) (Handle, Result)
	DestroyFence(fence Handle)
	ResetFences(fences []Handle) Result
	// GetFenceStatus returns Success when signalled and NotReady when not.
	GetFenceStatus(fence Handle) Result
	// WaitForFences returns Success or Timeout unless the device failed.
	WaitForFences(fences []Handle, waitAll bool, timeout uint64) Result
}

// SemaphoreAPI manages binary semaphores.
type SemaphoreAPI interface {
	CreateSemaphore() (Handle, Result)
	DestroySemaphore(semaphore Handle)
}

// Device is the logical device as seen by the submission core.
type Device interface {
	PoolAPI
	BufferAPI
	SubmitAPI
	FenceAPI
	SemaphoreAPI
}
