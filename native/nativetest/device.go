// Package nativetest provides an in-memory native.Device for tests.
//
// Device hands out deterministic handles, counts every call, lets a test
// inject a failure for the next call of a given operation and can hold
// submissions back until Complete is called. Calls that a real driver would
// reject (recording into a buffer that is not recording, freeing a buffer
// through the wrong pool, ...) are logged and can be inspected with Misuse.
// Device is safe for concurrent use.
package nativetest

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/andewx/dieselcmd/native"
)

// Operation names accepted by Fail and Calls.
const (
	OpCreateCommandPool      = "CreateCommandPool"
	OpDestroyCommandPool     = "DestroyCommandPool"
	OpResetCommandPool       = "ResetCommandPool"
	OpAllocateCommandBuffers = "AllocateCommandBuffers"
	OpFreeCommandBuffers     = "FreeCommandBuffers"
	OpBeginCommandBuffer     = "BeginCommandBuffer"
	OpEndCommandBuffer       = "EndCommandBuffer"
	OpResetCommandBuffer     = "ResetCommandBuffer"
	OpCmdExecuteCommands     = "CmdExecuteCommands"
	OpCmdPipelineBarrier     = "CmdPipelineBarrier"
	OpGetDeviceQueue         = "GetDeviceQueue"
	OpQueueSubmit            = "QueueSubmit"
	OpQueueWaitIdle          = "QueueWaitIdle"
	OpCreateFence            = "CreateFence"
	OpDestroyFence           = "DestroyFence"
	OpResetFences            = "ResetFences"
	OpGetFenceStatus         = "GetFenceStatus"
	OpWaitForFences          = "WaitForFences"
	OpCreateSemaphore        = "CreateSemaphore"
	OpDestroySemaphore       = "DestroySemaphore"
)

// Submission is one recorded QueueSubmit call.
type Submission struct {
	Queue native.Handle
	Infos []native.SubmitInfo
	Fence native.Handle
}

type pool struct {
	family  uint32
	flags   native.PoolCreateFlags
	buffers map[native.Handle]struct{}
}

type buffer struct {
	pool      native.Handle
	level     native.Level
	recording bool
	flags     native.UsageFlags
	commands  []string
}

// Device implements native.Device.
type Device struct {
	mu         sync.Mutex
	next       native.Handle
	families   []native.QueueFamilyProperties
	queues     map[[2]uint32]native.Handle
	pools      map[native.Handle]*pool
	buffers    map[native.Handle]*buffer
	fences     map[native.Handle]bool
	semaphores map[native.Handle]struct{}
	calls      map[string]int
	failures   map[string]native.Result
	submits    []Submission
	pending    []native.Handle
	deferred   bool
	misuse     []string
	changed    chan struct{}
}

var _ native.Device = (*Device)(nil)

// New creates a device exposing the given queue families. Without arguments
// the device has a single family with graphics, compute and transfer
// capabilities and two queues.
func New(families ...native.QueueFamilyProperties) *Device {
	if len(families) == 0 {
		families = []native.QueueFamilyProperties{{
			QueueFlags:         native.QueueGraphics | native.QueueCompute | native.QueueTransfer,
			QueueCount:         2,
			TimestampValidBits: 64,
			Present:            true,
		}}
	}
	return &Device{
		next:       0x1000,
		families:   families,
		queues:     make(map[[2]uint32]native.Handle),
		pools:      make(map[native.Handle]*pool),
		buffers:    make(map[native.Handle]*buffer),
		fences:     make(map[native.Handle]bool),
		semaphores: make(map[native.Handle]struct{}),
		calls:      make(map[string]int),
		failures:   make(map[string]native.Result),
		changed:    make(chan struct{}),
	}
}

// Families returns the queue family properties the device was created with.
func (d *Device) Families() []native.QueueFamilyProperties {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]native.QueueFamilyProperties(nil), d.families...)
}

// Fail makes the next call of op return res.
func (d *Device) Fail(op string, res native.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures[op] = res
}

// Calls returns how many times op was called.
func (d *Device) Calls(op string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[op]
}

// SetDeferred controls whether submitted fences signal immediately (false,
// the default) or only when Complete is called.
func (d *Device) SetDeferred(deferred bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deferred = deferred
}

// Complete finishes every held-back submission.
func (d *Device) Complete() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, f := range d.pending {
		if _, ok := d.fences[f]; ok {
			d.fences[f] = true
		}
	}
	d.pending = nil
	d.notify()
}

// Submissions returns every successful QueueSubmit call in order.
func (d *Device) Submissions() []Submission {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Submission(nil), d.submits...)
}

// Commands returns the names of the commands recorded into buffer.
func (d *Device) Commands(buf native.Handle) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if b, ok := d.buffers[buf]; ok {
		return append([]string(nil), b.commands...)
	}
	return nil
}

// Mark records a named command into buf, for commands defined by tests.
func (d *Device) Mark(buf native.Handle, name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(buf, name)
}

// UsageFlags returns the flags buf was last begun with.
func (d *Device) UsageFlags(buf native.Handle) native.UsageFlags {
	d.mu.Lock()
	defer d.mu.Unlock()
	if b, ok := d.buffers[buf]; ok {
		return b.flags
	}
	return 0
}

// Misuse returns the invalid calls observed so far.
func (d *Device) Misuse() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.misuse...)
}

// Live returns the number of live objects of each kind.
func (d *Device) Live() (pools, buffers, fences, semaphores int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pools), len(d.buffers), len(d.fences), len(d.semaphores)
}

// PoolBuffers returns the live buffers allocated from pool, sorted.
func (d *Device) PoolBuffers(p native.Handle) []native.Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	pl, ok := d.pools[p]
	if !ok {
		return nil
	}
	var hs []native.Handle
	for h := range pl.buffers {
		hs = append(hs, h)
	}
	sort.Slice(hs, func(i, j int) bool { return hs[i] < hs[j] })
	return hs
}

// Signal sets a fence to the signalled state as if the device had finished
// the work it guards.
func (d *Device) Signal(fence native.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.fences[fence]; ok {
		d.fences[fence] = true
		d.notify()
	}
}

func (d *Device) handle() native.Handle {
	d.next++
	return d.next
}

// begin counts the call and returns an injected failure, if any.
// d.mu must be held.
func (d *Device) begin(op string) (native.Result, bool) {
	d.calls[op]++
	if res, ok := d.failures[op]; ok {
		delete(d.failures, op)
		return res, true
	}
	return native.Success, false
}

func (d *Device) misused(format string, args ...interface{}) {
	d.misuse = append(d.misuse, fmt.Sprintf(format, args...))
}

func (d *Device) notify() {
	close(d.changed)
	d.changed = make(chan struct{})
}

func (d *Device) record(buf native.Handle, name string) {
	b, ok := d.buffers[buf]
	if !ok {
		d.misused("%s: unknown command buffer %#x", name, buf)
		return
	}
	if !b.recording {
		d.misused("%s: command buffer %#x is not recording", name, buf)
		return
	}
	b.commands = append(b.commands, name)
}

func (d *Device) CreateCommandPool(family uint32, flags native.PoolCreateFlags) (native.Handle, native.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if res, failed := d.begin(OpCreateCommandPool); failed {
		return native.NullHandle, res
	}
	if int(family) >= len(d.families) {
		d.misused("CreateCommandPool: unknown queue family %d", family)
		return native.NullHandle, native.ErrorInitializationFailed
	}
	h := d.handle()
	d.pools[h] = &pool{family: family, flags: flags, buffers: make(map[native.Handle]struct{})}
	return h, native.Success
}

func (d *Device) DestroyCommandPool(p native.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.begin(OpDestroyCommandPool)
	pl, ok := d.pools[p]
	if !ok {
		d.misused("DestroyCommandPool: unknown pool %#x", p)
		return
	}
	for h := range pl.buffers {
		delete(d.buffers, h)
	}
	delete(d.pools, p)
}

func (d *Device) ResetCommandPool(p native.Handle, flags native.PoolResetFlags) native.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	if res, failed := d.begin(OpResetCommandPool); failed {
		return res
	}
	pl, ok := d.pools[p]
	if !ok {
		d.misused("ResetCommandPool: unknown pool %#x", p)
		return native.ErrorUnknown
	}
	for h := range pl.buffers {
		b := d.buffers[h]
		b.recording = false
		b.commands = nil
	}
	return native.Success
}

func (d *Device) AllocateCommandBuffers(p native.Handle, level native.Level, count uint32) ([]native.Handle, native.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if res, failed := d.begin(OpAllocateCommandBuffers); failed {
		return nil, res
	}
	pl, ok := d.pools[p]
	if !ok {
		d.misused("AllocateCommandBuffers: unknown pool %#x", p)
		return nil, native.ErrorUnknown
	}
	hs := make([]native.Handle, count)
	for i := range hs {
		h := d.handle()
		d.buffers[h] = &buffer{pool: p, level: level}
		pl.buffers[h] = struct{}{}
		hs[i] = h
	}
	return hs, native.Success
}

func (d *Device) FreeCommandBuffers(p native.Handle, bufs []native.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.begin(OpFreeCommandBuffers)
	pl, ok := d.pools[p]
	if !ok {
		d.misused("FreeCommandBuffers: unknown pool %#x", p)
		return
	}
	for _, h := range bufs {
		if _, ok := pl.buffers[h]; !ok {
			d.misused("FreeCommandBuffers: buffer %#x not allocated from pool %#x", h, p)
			continue
		}
		delete(pl.buffers, h)
		delete(d.buffers, h)
	}
}

func (d *Device) BeginCommandBuffer(buf native.Handle, flags native.UsageFlags, inh *native.Inheritance) native.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	if res, failed := d.begin(OpBeginCommandBuffer); failed {
		return res
	}
	b, ok := d.buffers[buf]
	if !ok {
		d.misused("BeginCommandBuffer: unknown command buffer %#x", buf)
		return native.ErrorUnknown
	}
	if b.recording {
		d.misused("BeginCommandBuffer: command buffer %#x already recording", buf)
		return native.ErrorUnknown
	}
	if b.level == native.LevelSecondary && inh == nil {
		d.misused("BeginCommandBuffer: secondary buffer %#x without inheritance", buf)
	}
	b.recording = true
	b.flags = flags
	b.commands = nil
	return native.Success
}

func (d *Device) EndCommandBuffer(buf native.Handle) native.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	if res, failed := d.begin(OpEndCommandBuffer); failed {
		return res
	}
	b, ok := d.buffers[buf]
	if !ok || !b.recording {
		d.misused("EndCommandBuffer: command buffer %#x is not recording", buf)
		return native.ErrorUnknown
	}
	b.recording = false
	return native.Success
}

func (d *Device) ResetCommandBuffer(buf native.Handle, flags native.BufferResetFlags) native.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	if res, failed := d.begin(OpResetCommandBuffer); failed {
		return res
	}
	b, ok := d.buffers[buf]
	if !ok {
		d.misused("ResetCommandBuffer: unknown command buffer %#x", buf)
		return native.ErrorUnknown
	}
	if d.pools[b.pool].flags&native.PoolResetCommandBuffer == 0 {
		d.misused("ResetCommandBuffer: pool %#x does not allow individual resets", b.pool)
	}
	b.recording = false
	b.commands = nil
	return native.Success
}

func (d *Device) CmdExecuteCommands(buf native.Handle, secondaries []native.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.begin(OpCmdExecuteCommands)
	for _, h := range secondaries {
		s, ok := d.buffers[h]
		switch {
		case !ok:
			d.misused("CmdExecuteCommands: unknown secondary %#x", h)
		case s.level != native.LevelSecondary:
			d.misused("CmdExecuteCommands: %#x is not a secondary buffer", h)
		case s.recording:
			d.misused("CmdExecuteCommands: secondary %#x still recording", h)
		}
	}
	d.record(buf, fmt.Sprintf("execute:%d", len(secondaries)))
}

func (d *Device) CmdPipelineBarrier(buf native.Handle, src, dst native.PipelineStages, barriers []native.MemoryBarrier) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.begin(OpCmdPipelineBarrier)
	d.record(buf, fmt.Sprintf("barrier:%#x->%#x", uint32(src), uint32(dst)))
}

func (d *Device) GetDeviceQueue(family, index uint32) native.Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.begin(OpGetDeviceQueue)
	if int(family) >= len(d.families) || index >= d.families[family].QueueCount {
		d.misused("GetDeviceQueue: no queue (%d, %d)", family, index)
		return native.NullHandle
	}
	key := [2]uint32{family, index}
	if h, ok := d.queues[key]; ok {
		return h
	}
	h := d.handle()
	d.queues[key] = h
	return h
}

func (d *Device) queueKnown(q native.Handle) bool {
	for _, h := range d.queues {
		if h == q {
			return true
		}
	}
	return false
}

func (d *Device) QueueSubmit(q native.Handle, submits []native.SubmitInfo, fence native.Handle) native.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	if res, failed := d.begin(OpQueueSubmit); failed {
		return res
	}
	if !d.queueKnown(q) {
		d.misused("QueueSubmit: unknown queue %#x", q)
		return native.ErrorUnknown
	}
	for _, s := range submits {
		if len(s.WaitSemaphores) != len(s.WaitStages) {
			d.misused("QueueSubmit: %d wait semaphores but %d stage masks", len(s.WaitSemaphores), len(s.WaitStages))
		}
		for _, h := range s.CommandBuffers {
			b, ok := d.buffers[h]
			switch {
			case !ok:
				d.misused("QueueSubmit: unknown command buffer %#x", h)
				return native.ErrorUnknown
			case b.recording:
				d.misused("QueueSubmit: command buffer %#x still recording", h)
				return native.ErrorUnknown
			case b.level != native.LevelPrimary:
				d.misused("QueueSubmit: command buffer %#x is not primary", h)
			}
		}
		for _, h := range append(append([]native.Handle(nil), s.WaitSemaphores...), s.SignalSemaphores...) {
			if _, ok := d.semaphores[h]; !ok {
				d.misused("QueueSubmit: unknown semaphore %#x", h)
			}
		}
	}
	if fence != native.NullHandle {
		if _, ok := d.fences[fence]; !ok {
			d.misused("QueueSubmit: unknown fence %#x", fence)
			return native.ErrorUnknown
		}
	}
	infos := make([]native.SubmitInfo, len(submits))
	copy(infos, submits)
	d.submits = append(d.submits, Submission{Queue: q, Infos: infos, Fence: fence})
	if fence != native.NullHandle {
		if d.deferred {
			d.pending = append(d.pending, fence)
		} else {
			d.fences[fence] = true
			d.notify()
		}
	}
	return native.Success
}

func (d *Device) QueueWaitIdle(q native.Handle) native.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	if res, failed := d.begin(OpQueueWaitIdle); failed {
		return res
	}
	if !d.queueKnown(q) {
		d.misused("QueueWaitIdle: unknown queue %#x", q)
		return native.ErrorUnknown
	}
	return native.Success
}

func (d *Device) CreateFence(flags native.FenceCreateFlags) (native.Handle, native.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if res, failed := d.begin(OpCreateFence); failed {
		return native.NullHandle, res
	}
	h := d.handle()
	d.fences[h] = flags&native.FenceCreateSignaled != 0
	return h, native.Success
}

func (d *Device) DestroyFence(f native.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.begin(OpDestroyFence)
	if _, ok := d.fences[f]; !ok {
		d.misused("DestroyFence: unknown fence %#x", f)
		return
	}
	delete(d.fences, f)
}

func (d *Device) ResetFences(fences []native.Handle) native.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	if res, failed := d.begin(OpResetFences); failed {
		return res
	}
	for _, f := range fences {
		if _, ok := d.fences[f]; !ok {
			d.misused("ResetFences: unknown fence %#x", f)
			return native.ErrorUnknown
		}
	}
	for _, f := range fences {
		d.fences[f] = false
	}
	return native.Success
}

func (d *Device) GetFenceStatus(f native.Handle) native.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	if res, failed := d.begin(OpGetFenceStatus); failed {
		return res
	}
	signalled, ok := d.fences[f]
	switch {
	case !ok:
		d.misused("GetFenceStatus: unknown fence %#x", f)
		return native.ErrorUnknown
	case signalled:
		return native.Success
	default:
		return native.NotReady
	}
}

// satisfied reports whether the wait condition holds. d.mu must be held.
func (d *Device) satisfied(fences []native.Handle, all bool) bool {
	for _, f := range fences {
		if d.fences[f] {
			if !all {
				return true
			}
		} else if all {
			return false
		}
	}
	return all
}

func (d *Device) WaitForFences(fences []native.Handle, waitAll bool, timeout uint64) native.Result {
	d.mu.Lock()
	if res, failed := d.begin(OpWaitForFences); failed {
		d.mu.Unlock()
		return res
	}
	for _, f := range fences {
		if _, ok := d.fences[f]; !ok {
			d.misused("WaitForFences: unknown fence %#x", f)
			d.mu.Unlock()
			return native.ErrorUnknown
		}
	}
	var deadline <-chan time.Time
	if timeout < math.MaxInt64 {
		timer := time.NewTimer(time.Duration(timeout))
		defer timer.Stop()
		deadline = timer.C
	}
	for {
		if d.satisfied(fences, waitAll) {
			d.mu.Unlock()
			return native.Success
		}
		if timeout == 0 {
			d.mu.Unlock()
			return native.Timeout
		}
		changed := d.changed
		d.mu.Unlock()
		select {
		case <-changed:
		case <-deadline:
			return native.Timeout
		}
		d.mu.Lock()
	}
}

func (d *Device) CreateSemaphore() (native.Handle, native.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if res, failed := d.begin(OpCreateSemaphore); failed {
		return native.NullHandle, res
	}
	h := d.handle()
	d.semaphores[h] = struct{}{}
	return h, native.Success
}

func (d *Device) DestroySemaphore(s native.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.begin(OpDestroySemaphore)
	if _, ok := d.semaphores[s]; !ok {
		d.misused("DestroySemaphore: unknown semaphore %#x", s)
		return
	}
	delete(d.semaphores, s)
}
