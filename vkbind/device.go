// Package vkbind implements native.Device on top of github.com/vulkan-go/vulkan.
//
// Vulkan handles never cross the native boundary. Each object created through
// the Device is kept in a registry and represented by an opaque
// native.Handle; the registry hands out the output parameters of the
// create, allocate and get calls.
package vkbind

import (
	"sync"

	"github.com/andewx/dieselcmd/native"
	vk "github.com/vulkan-go/vulkan"
)

// Device is a native.Device backed by a Vulkan logical device. It is safe for
// concurrent use as far as the Vulkan external synchronization rules allow.
type Device struct {
	dev vk.Device

	pools        registry[vk.CommandPool]
	buffers      registry[vk.CommandBuffer]
	fences       registry[vk.Fence]
	semaphores   registry[vk.Semaphore]
	queues       registry[vk.Queue]
	renderPasses registry[vk.RenderPass]
	framebuffers registry[vk.Framebuffer]

	mu          sync.Mutex
	poolBuffers map[native.Handle]map[native.Handle]struct{}
}

var _ native.Device = (*Device)(nil)

// NewDevice wraps an existing logical device. The caller keeps ownership of
// dev and destroys it after every object created through the Device.
func NewDevice(dev vk.Device) *Device {
	return &Device{
		dev:         dev,
		poolBuffers: make(map[native.Handle]map[native.Handle]struct{}),
	}
}

func (d *Device) Handle() vk.Device {
	return d.dev
}

// CommandBuffer resolves a native buffer handle, for commands that record
// Vulkan calls directly.
func (d *Device) CommandBuffer(h native.Handle) (vk.CommandBuffer, bool) {
	return d.buffers.get(h)
}

// RegisterRenderPass makes a render pass usable in native.Inheritance.
func (d *Device) RegisterRenderPass(rp vk.RenderPass) native.Handle {
	return d.renderPasses.put(rp)
}

// RegisterFramebuffer makes a framebuffer usable in native.Inheritance.
func (d *Device) RegisterFramebuffer(fb vk.Framebuffer) native.Handle {
	return d.framebuffers.put(fb)
}

func (d *Device) CreateCommandPool(family uint32, flags native.PoolCreateFlags) (native.Handle, native.Result) {
	var pool vk.CommandPool
	ret := vk.CreateCommandPool(d.dev, &vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: family,
		Flags:            vk.CommandPoolCreateFlags(flags),
	}, nil, &pool)
	if ret != vk.Success {
		return native.NullHandle, native.Result(ret)
	}
	h := d.pools.put(pool)
	d.mu.Lock()
	d.poolBuffers[h] = make(map[native.Handle]struct{})
	d.mu.Unlock()
	return h, native.Success
}

func (d *Device) DestroyCommandPool(pool native.Handle) {
	p, ok := d.pools.drop(pool)
	if !ok {
		return
	}
	// Destroying the pool frees its buffers implicitly.
	d.mu.Lock()
	for h := range d.poolBuffers[pool] {
		d.buffers.drop(h)
	}
	delete(d.poolBuffers, pool)
	d.mu.Unlock()
	vk.DestroyCommandPool(d.dev, p, nil)
}

func (d *Device) ResetCommandPool(pool native.Handle, flags native.PoolResetFlags) native.Result {
	p, ok := d.pools.get(pool)
	if !ok {
		return native.ErrorUnknown
	}
	return native.Result(vk.ResetCommandPool(d.dev, p, vk.CommandPoolResetFlags(flags)))
}

func (d *Device) AllocateCommandBuffers(pool native.Handle, level native.Level, count uint32) ([]native.Handle, native.Result) {
	p, ok := d.pools.get(pool)
	if !ok {
		return nil, native.ErrorUnknown
	}
	bufs := make([]vk.CommandBuffer, count)
	ret := vk.AllocateCommandBuffers(d.dev, &vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        p,
		Level:              vk.CommandBufferLevel(level),
		CommandBufferCount: count,
	}, bufs)
	if ret != vk.Success {
		return nil, native.Result(ret)
	}
	hs := make([]native.Handle, count)
	d.mu.Lock()
	owned := d.poolBuffers[pool]
	for i, b := range bufs {
		hs[i] = d.buffers.put(b)
		owned[hs[i]] = struct{}{}
	}
	d.mu.Unlock()
	return hs, native.Success
}

func (d *Device) FreeCommandBuffers(pool native.Handle, buffers []native.Handle) {
	p, ok := d.pools.get(pool)
	if !ok || len(buffers) == 0 {
		return
	}
	bufs := make([]vk.CommandBuffer, 0, len(buffers))
	d.mu.Lock()
	owned := d.poolBuffers[pool]
	for _, h := range buffers {
		if _, mine := owned[h]; !mine {
			continue
		}
		if b, ok := d.buffers.drop(h); ok {
			bufs = append(bufs, b)
		}
		delete(owned, h)
	}
	d.mu.Unlock()
	if len(bufs) > 0 {
		vk.FreeCommandBuffers(d.dev, p, uint32(len(bufs)), bufs)
	}
}

func (d *Device) BeginCommandBuffer(buffer native.Handle, flags native.UsageFlags, inheritance *native.Inheritance) native.Result {
	b, ok := d.buffers.get(buffer)
	if !ok {
		return native.ErrorUnknown
	}
	info := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(flags),
	}
	if inheritance != nil {
		inh := vk.CommandBufferInheritanceInfo{
			SType:   vk.StructureTypeCommandBufferInheritanceInfo,
			Subpass: inheritance.Subpass,
		}
		if inheritance.RenderPass != native.NullHandle {
			rp, ok := d.renderPasses.get(inheritance.RenderPass)
			if !ok {
				return native.ErrorUnknown
			}
			inh.RenderPass = rp
		}
		if inheritance.Framebuffer != native.NullHandle {
			fb, ok := d.framebuffers.get(inheritance.Framebuffer)
			if !ok {
				return native.ErrorUnknown
			}
			inh.Framebuffer = fb
		}
		info.PInheritanceInfo = []vk.CommandBufferInheritanceInfo{inh}
	}
	return native.Result(vk.BeginCommandBuffer(b, &info))
}

func (d *Device) EndCommandBuffer(buffer native.Handle) native.Result {
	b, ok := d.buffers.get(buffer)
	if !ok {
		return native.ErrorUnknown
	}
	return native.Result(vk.EndCommandBuffer(b))
}

func (d *Device) ResetCommandBuffer(buffer native.Handle, flags native.BufferResetFlags) native.Result {
	b, ok := d.buffers.get(buffer)
	if !ok {
		return native.ErrorUnknown
	}
	return native.Result(vk.ResetCommandBuffer(b, vk.CommandBufferResetFlags(flags)))
}

func (d *Device) CmdExecuteCommands(buffer native.Handle, secondaries []native.Handle) {
	b, ok := d.buffers.get(buffer)
	if !ok {
		return
	}
	subs, ok := d.buffers.getAll(secondaries)
	if !ok || len(subs) == 0 {
		return
	}
	vk.CmdExecuteCommands(b, uint32(len(subs)), subs)
}

func (d *Device) CmdPipelineBarrier(buffer native.Handle, src, dst native.PipelineStages, barriers []native.MemoryBarrier) {
	b, ok := d.buffers.get(buffer)
	if !ok {
		return
	}
	var memory []vk.MemoryBarrier
	for _, mb := range barriers {
		memory = append(memory, vk.MemoryBarrier{
			SType:         vk.StructureTypeMemoryBarrier,
			SrcAccessMask: vk.AccessFlags(mb.SrcAccess),
			DstAccessMask: vk.AccessFlags(mb.DstAccess),
		})
	}
	vk.CmdPipelineBarrier(b,
		vk.PipelineStageFlags(src),
		vk.PipelineStageFlags(dst),
		0, uint32(len(memory)), memory, 0, nil, 0, nil)
}

func (d *Device) GetDeviceQueue(family, index uint32) native.Handle {
	var queue vk.Queue
	vk.GetDeviceQueue(d.dev, family, index, &queue)
	if queue == nil {
		return native.NullHandle
	}
	return d.queues.put(queue)
}

func (d *Device) QueueSubmit(queue native.Handle, submits []native.SubmitInfo, fence native.Handle) native.Result {
	q, ok := d.queues.get(queue)
	if !ok {
		return native.ErrorUnknown
	}
	var f vk.Fence
	if fence != native.NullHandle {
		if f, ok = d.fences.get(fence); !ok {
			return native.ErrorUnknown
		}
	}
	infos := make([]vk.SubmitInfo, len(submits))
	for i, s := range submits {
		waits, ok := d.semaphores.getAll(s.WaitSemaphores)
		if !ok {
			return native.ErrorUnknown
		}
		signals, ok := d.semaphores.getAll(s.SignalSemaphores)
		if !ok {
			return native.ErrorUnknown
		}
		bufs, ok := d.buffers.getAll(s.CommandBuffers)
		if !ok {
			return native.ErrorUnknown
		}
		// PWaitDstStageMask is paired with PWaitSemaphores.
		stages := make([]vk.PipelineStageFlags, len(s.WaitStages))
		for j, st := range s.WaitStages {
			stages[j] = vk.PipelineStageFlags(st)
		}
		infos[i] = vk.SubmitInfo{
			SType:                vk.StructureTypeSubmitInfo,
			WaitSemaphoreCount:   uint32(len(waits)),
			PWaitSemaphores:      waits,
			PWaitDstStageMask:    stages,
			CommandBufferCount:   uint32(len(bufs)),
			PCommandBuffers:      bufs,
			SignalSemaphoreCount: uint32(len(signals)),
			PSignalSemaphores:    signals,
		}
	}
	return native.Result(vk.QueueSubmit(q, uint32(len(infos)), infos, f))
}

func (d *Device) QueueWaitIdle(queue native.Handle) native.Result {
	q, ok := d.queues.get(queue)
	if !ok {
		return native.ErrorUnknown
	}
	return native.Result(vk.QueueWaitIdle(q))
}

func (d *Device) CreateFence(flags native.FenceCreateFlags) (native.Handle, native.Result) {
	var fence vk.Fence
	ret := vk.CreateFence(d.dev, &vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
		Flags: vk.FenceCreateFlags(flags),
	}, nil, &fence)
	if ret != vk.Success {
		return native.NullHandle, native.Result(ret)
	}
	return d.fences.put(fence), native.Success
}

func (d *Device) DestroyFence(fence native.Handle) {
	if f, ok := d.fences.drop(fence); ok {
		vk.DestroyFence(d.dev, f, nil)
	}
}

func (d *Device) ResetFences(fences []native.Handle) native.Result {
	fs, ok := d.fences.getAll(fences)
	if !ok {
		return native.ErrorUnknown
	}
	return native.Result(vk.ResetFences(d.dev, uint32(len(fs)), fs))
}

func (d *Device) GetFenceStatus(fence native.Handle) native.Result {
	f, ok := d.fences.get(fence)
	if !ok {
		return native.ErrorUnknown
	}
	return native.Result(vk.GetFenceStatus(d.dev, f))
}

func (d *Device) WaitForFences(fences []native.Handle, waitAll bool, timeout uint64) native.Result {
	fs, ok := d.fences.getAll(fences)
	if !ok {
		return native.ErrorUnknown
	}
	all := vk.Bool32(vk.False)
	if waitAll {
		all = vk.Bool32(vk.True)
	}
	return native.Result(vk.WaitForFences(d.dev, uint32(len(fs)), fs, all, timeout))
}

func (d *Device) CreateSemaphore() (native.Handle, native.Result) {
	var sem vk.Semaphore
	ret := vk.CreateSemaphore(d.dev, &vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}, nil, &sem)
	if ret != vk.Success {
		return native.NullHandle, native.Result(ret)
	}
	return d.semaphores.put(sem), native.Success
}

func (d *Device) DestroySemaphore(semaphore native.Handle) {
	if s, ok := d.semaphores.drop(semaphore); ok {
		vk.DestroySemaphore(d.dev, s, nil)
	}
}

// Live returns the number of registered pools, buffers, fences and
// semaphores.
func (d *Device) Live() (pools, buffers, fences, semaphores int) {
	return d.pools.len(), d.buffers.len(), d.fences.len(), d.semaphores.len()
}
