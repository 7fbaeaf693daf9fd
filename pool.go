package dieselcmd

import (
	"fmt"
	"math"

	"github.com/andewx/dieselcmd/internal/slot"
	"github.com/andewx/dieselcmd/native"
	"github.com/google/uuid"
)

type bufferEntry struct {
	handle native.Handle
	level  native.Level
	state  State
}

// CommandPool allocates command buffers for a single queue family and owns
// every buffer it hands out. A pool and its buffers must not be used from
// more than one goroutine at a time.
type CommandPool struct {
	ctx       *DeviceContext
	id        uuid.UUID
	handle    native.Handle
	family    QueueFamily
	flags     native.PoolCreateFlags
	buffers   slot.Table[bufferEntry]
	destroyed bool
}

// NewCommandPool creates a pool for the family of queue. Zero flags select
// Config.PoolFlags.
func NewCommandPool(ctx *DeviceContext, queue *Queue, flags native.PoolCreateFlags) (*CommandPool, error) {
	if ctx == nil || queue == nil {
		return nil, validationf("command pool: nil context or queue")
	}
	if queue.ctx != ctx {
		return nil, validationf("command pool: %s belongs to another device context", queue)
	}
	if flags == 0 {
		flags = ctx.cfg.PoolFlags
	}
	h, ret := ctx.dev.CreateCommandPool(queue.family.Index, flags)
	if isError(ret) {
		return nil, newError("CreateCommandPool", ret)
	}
	p := &CommandPool{
		ctx:    ctx,
		id:     uuid.New(),
		handle: h,
		family: queue.family,
		flags:  flags,
	}
	ctx.cfg.InfoLog.Printf("pool %s: created for queue family %d", p.id, p.family.Index)
	return p, nil
}

func (p *CommandPool) ID() uuid.UUID {
	return p.id
}

func (p *CommandPool) Handle() native.Handle {
	return p.handle
}

func (p *CommandPool) Family() QueueFamily {
	return p.family
}

func (p *CommandPool) Flags() native.PoolCreateFlags {
	return p.flags
}

// Len returns the number of buffers currently allocated from the pool.
func (p *CommandPool) Len() int {
	return p.buffers.Len()
}

// Owns reports whether b was allocated from p and has not been freed.
func (p *CommandPool) Owns(b CommandBuffer) bool {
	return b.pool == p && p.buffers.Contains(b.ref)
}

// Buffers returns every buffer currently allocated from the pool.
func (p *CommandPool) Buffers() []CommandBuffer {
	refs := p.buffers.Refs()
	bufs := make([]CommandBuffer, len(refs))
	for i, r := range refs {
		bufs[i] = CommandBuffer{pool: p, ref: r}
	}
	return bufs
}

func (p *CommandPool) String() string {
	return fmt.Sprintf("pool %s", p.id)
}

func (p *CommandPool) check(op string) error {
	if p == nil {
		return validationf("%s: nil command pool", op)
	}
	if p.destroyed {
		return validationf("%s: %s has been destroyed", op, p)
	}
	return nil
}

// Allocate returns count new buffers in the Initial state, allocated with a
// single native call.
func (p *CommandPool) Allocate(count int, primary bool) ([]CommandBuffer, error) {
	if err := p.check("Allocate"); err != nil {
		return nil, err
	}
	if count < 1 {
		return nil, validationf("Allocate: count must be at least 1, have %d", count)
	}
	if uint64(count) > math.MaxUint32 {
		return nil, validationf("Allocate: count %d exceeds %d", count, uint32(math.MaxUint32))
	}
	level := native.LevelSecondary
	if primary {
		level = native.LevelPrimary
	}
	handles, ret := p.ctx.dev.AllocateCommandBuffers(p.handle, level, uint32(count))
	if isError(ret) {
		return nil, newError("AllocateCommandBuffers", ret)
	}
	if len(handles) != count {
		if len(handles) > 0 {
			p.ctx.dev.FreeCommandBuffers(p.handle, handles)
		}
		p.ctx.cfg.ErrorLog.Printf("%s: asked for %d buffers, device returned %d", p, count, len(handles))
		return nil, newError("AllocateCommandBuffers", native.ErrorUnknown)
	}
	bufs := make([]CommandBuffer, len(handles))
	for i, h := range handles {
		ref := p.buffers.Insert(bufferEntry{handle: h, level: level, state: Initial})
		bufs[i] = CommandBuffer{pool: p, ref: ref}
	}
	return bufs, nil
}

// Reset returns every buffer of the pool to the Initial state. Recorded
// content is discarded; the buffers stay allocated.
func (p *CommandPool) Reset(flags native.PoolResetFlags) error {
	if err := p.check("Reset"); err != nil {
		return err
	}
	ret := p.ctx.dev.ResetCommandPool(p.handle, flags)
	if isError(ret) {
		return newError("ResetCommandPool", ret)
	}
	p.buffers.Each(func(_ slot.Ref, e *bufferEntry) {
		e.state = Initial
	})
	return nil
}

// Free releases buffers back to the pool in a single native call. Every
// buffer must have been allocated from p, still be live and not be
// recording; otherwise nothing is freed.
func (p *CommandPool) Free(buffers ...CommandBuffer) error {
	if err := p.check("Free"); err != nil {
		return err
	}
	if len(buffers) == 0 {
		return nil
	}
	handles := make([]native.Handle, 0, len(buffers))
	seen := make(map[slot.Ref]struct{}, len(buffers))
	for _, b := range buffers {
		if b.pool != p {
			return validationf("Free: %s was not allocated from %s", b, p)
		}
		e, ok := p.buffers.Get(b.ref)
		if !ok {
			return validationf("Free: %s has already been freed", b)
		}
		if _, dup := seen[b.ref]; dup {
			return validationf("Free: %s passed twice", b)
		}
		if e.state == Recording {
			return stateError("Free", e.state, Initial, Executable)
		}
		seen[b.ref] = struct{}{}
		handles = append(handles, e.handle)
	}
	p.ctx.dev.FreeCommandBuffers(p.handle, handles)
	for _, b := range buffers {
		p.buffers.Remove(b.ref)
	}
	return nil
}

// Destroy frees every buffer still allocated and destroys the pool. All
// buffer values from the pool become invalid. The pool must not be destroyed
// while a submission using its buffers is pending.
func (p *CommandPool) Destroy() error {
	if err := p.check("Destroy"); err != nil {
		return err
	}
	if n := p.buffers.Len(); n > 0 {
		handles := make([]native.Handle, 0, n)
		p.buffers.Each(func(_ slot.Ref, e *bufferEntry) {
			handles = append(handles, e.handle)
		})
		p.ctx.dev.FreeCommandBuffers(p.handle, handles)
	}
	p.buffers.Clear()
	p.ctx.dev.DestroyCommandPool(p.handle)
	p.destroyed = true
	p.ctx.cfg.InfoLog.Printf("pool %s: destroyed", p.id)
	return nil
}
