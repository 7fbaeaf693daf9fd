package dieselcmd

import (
	"fmt"
	"math"
	"time"

	"github.com/andewx/dieselcmd/native"
	"github.com/loov/hrtime"
)

// NoTimeout makes a fence wait block until the condition holds.
const NoTimeout uint64 = math.MaxUint64

// Fence is a host-observable completion signal. Its state is always queried
// from the device, never cached.
type Fence struct {
	ctx       *DeviceContext
	handle    native.Handle
	destroyed bool
}

// NewFence creates an unsignalled fence, or a signalled one when flags holds
// native.FenceCreateSignaled.
func NewFence(ctx *DeviceContext, flags native.FenceCreateFlags) (*Fence, error) {
	if ctx == nil {
		return nil, validationf("NewFence: nil context")
	}
	h, ret := ctx.dev.CreateFence(flags)
	if isError(ret) {
		return nil, newError("CreateFence", ret)
	}
	return &Fence{ctx: ctx, handle: h}, nil
}

func (f *Fence) Handle() native.Handle {
	return f.handle
}

func (f *Fence) String() string {
	return fmt.Sprintf("fence %#x", uint64(f.handle))
}

func (f *Fence) check(op string) error {
	if f == nil {
		return validationf("%s: nil fence", op)
	}
	if f.destroyed {
		return validationf("%s: %s has been destroyed", op, f)
	}
	return nil
}

// Signalled queries whether the fence is signalled.
func (f *Fence) Signalled() (bool, error) {
	if err := f.check("Signalled"); err != nil {
		return false, err
	}
	switch ret := f.ctx.dev.GetFenceStatus(f.handle); ret {
	case native.Success:
		return true, nil
	case native.NotReady:
		return false, nil
	default:
		return false, newError("GetFenceStatus", ret)
	}
}

// Reset sets the fence back to unsignalled.
func (f *Fence) Reset() error {
	if err := f.check("Reset"); err != nil {
		return err
	}
	return ResetFences(f.ctx, f)
}

// Wait blocks until the fence is signalled or timeout nanoseconds have
// passed, and reports which happened first.
func (f *Fence) Wait(timeout uint64) (bool, error) {
	if err := f.check("Wait"); err != nil {
		return false, err
	}
	return WaitFences(f.ctx, []*Fence{f}, true, timeout)
}

// Destroy releases the fence. It must not be referenced by a pending
// submission.
func (f *Fence) Destroy() error {
	if err := f.check("Destroy"); err != nil {
		return err
	}
	f.ctx.dev.DestroyFence(f.handle)
	f.destroyed = true
	return nil
}

func fenceHandles(op string, ctx *DeviceContext, fences []*Fence) ([]native.Handle, error) {
	if ctx == nil {
		return nil, validationf("%s: nil context", op)
	}
	handles := make([]native.Handle, len(fences))
	for i, f := range fences {
		if err := f.check(op); err != nil {
			return nil, err
		}
		if f.ctx != ctx {
			return nil, validationf("%s: %s belongs to another device context", op, f)
		}
		handles[i] = f.handle
	}
	return handles, nil
}

// ResetFences resets fences with a single native call.
func ResetFences(ctx *DeviceContext, fences ...*Fence) error {
	if len(fences) == 0 {
		return nil
	}
	handles, err := fenceHandles("ResetFences", ctx, fences)
	if err != nil {
		return err
	}
	return newError("ResetFences", ctx.dev.ResetFences(handles))
}

// WaitFences waits for all (or, if all is false, any) of fences to become
// signalled. It returns false without error when timeout nanoseconds pass
// first; NoTimeout waits indefinitely. Waiting on no fences returns true.
func WaitFences(ctx *DeviceContext, fences []*Fence, all bool, timeout uint64) (bool, error) {
	if len(fences) == 0 {
		return true, nil
	}
	handles, err := fenceHandles("WaitFences", ctx, fences)
	if err != nil {
		return false, err
	}
	start := hrtime.Now()
	ret := ctx.dev.WaitForFences(handles, all, timeout)
	ctx.observeWait(fmt.Sprintf("wait on %d fences", len(handles)), hrtime.Since(start))
	switch ret {
	case native.Success:
		return true, nil
	case native.Timeout:
		return false, nil
	default:
		return false, newError("WaitForFences", ret)
	}
}

// timeoutOf converts d to a wait timeout, treating non-positive durations as
// a poll.
func timeoutOf(d time.Duration) uint64 {
	if d <= 0 {
		return 0
	}
	return uint64(d.Nanoseconds())
}
