package dieselcmd

import (
	"github.com/andewx/dieselcmd/native"
	"github.com/cockroachdb/errors"
)

// FenceManager keeps track of fences which in turn are used to keep track of GPU progress.
// The manager is not thread-safe and for rendering in multiple threads, multiple per-thread managers
// should be used.
type FenceManager struct {
	ctx    *DeviceContext
	fences []*Fence
	count  int
}

func NewFenceManager(ctx *DeviceContext) *FenceManager {
	return &FenceManager{
		ctx: ctx,
	}
}

// Reset resets the state of fence manager. Waits for GPU to trigger all outstanding fences.
// After Reset returns, it is safe to reuse or delete resources which were used previously.
func (f *FenceManager) Reset() error {
	if f.count > 0 {
		active := f.Active()
		if _, err := WaitFences(f.ctx, active, true, NoTimeout); err != nil {
			return err
		}
		if err := ResetFences(f.ctx, active...); err != nil {
			return err
		}
	}
	f.count = 0
	return nil
}

// NewFence returns an unsignalled fence, recycled if one is available.
// Reset waits without a timeout for every fence handed out, so a fence that
// will not be submitted must be handed back with Return.
func (f *FenceManager) NewFence() (*Fence, error) {
	if f.count < len(f.fences) {
		fence := f.fences[f.count]
		f.count++
		return fence, nil
	}
	fence, err := NewFence(f.ctx, 0)
	if err != nil {
		return nil, err
	}
	f.fences = append(f.fences, fence)
	f.count++
	return fence, nil
}

// Return hands back fence, which must be the last one returned by NewFence
// and must not have been submitted.
func (f *FenceManager) Return(fence *Fence) error {
	if f.count == 0 || f.fences[f.count-1] != fence {
		return validationf("FenceManager.Return: %s is not the last fence handed out", fence)
	}
	f.count--
	return nil
}

// Active returns the fences handed out since the last Reset.
func (f *FenceManager) Active() []*Fence {
	return f.fences[:f.count]
}

func (f *FenceManager) Destroy() error {
	err := f.Reset()
	for i := range f.fences {
		err = errors.CombineErrors(err, f.fences[i].Destroy())
	}
	f.fences = nil
	return err
}

// BufferManager allocates command buffers and recycles them for us.
// This gives us a convenient interface where we can request command buffers for use when rendering.
// The manager is not thread-safe and for rendering in multiple threads, multiple per-thread managers
// should be used.
type BufferManager struct {
	pool    *CommandPool
	primary bool
	buffers []CommandBuffer
	count   int
}

// NewBufferManager creates a manager with its own pool for the family of
// queue. The pool always allows buffers to be reset individually.
func NewBufferManager(ctx *DeviceContext, queue *Queue, primary bool) (*BufferManager, error) {
	if ctx == nil {
		return nil, validationf("NewBufferManager: nil context")
	}
	pool, err := NewCommandPool(ctx, queue, ctx.cfg.PoolFlags|native.PoolResetCommandBuffer)
	if err != nil {
		return nil, err
	}
	return &BufferManager{
		pool:    pool,
		primary: primary,
	}, nil
}

func (c *BufferManager) Pool() *CommandPool {
	return c.pool
}

// Len returns the number of buffers handed out since the last Reset.
func (c *BufferManager) Len() int {
	return c.count
}

// Reset resets the state of command buffer manager.
// When called, all managed command buffers are assumed to be recycleable.
func (c *BufferManager) Reset() {
	c.count = 0
}

func (c *BufferManager) Destroy() error {
	c.buffers = nil
	c.count = 0
	return c.pool.Destroy()
}

// Next returns a fresh or recycled command buffer which is in the Initial state.
func (c *BufferManager) Next() (CommandBuffer, error) {
	if c.count < len(c.buffers) {
		buf := c.buffers[c.count]
		if buf.State() == Freed {
			bufs, err := c.pool.Allocate(1, c.primary)
			if err != nil {
				return CommandBuffer{}, err
			}
			buf = bufs[0]
			c.buffers[c.count] = buf
		}
		if buf.State() == Recording {
			if err := buf.End(); err != nil {
				return buf, err
			}
		}
		if buf.State() == Executable {
			if err := buf.Reset(native.BufferResetReleaseResources); err != nil {
				return buf, err
			}
		}
		c.count++
		return buf, nil
	}
	bufs, err := c.pool.Allocate(1, c.primary)
	if err != nil {
		return CommandBuffer{}, err
	}
	c.buffers = append(c.buffers, bufs[0])
	c.count++
	return bufs[0], nil
}
