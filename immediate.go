package dieselcmd

import (
	"github.com/andewx/dieselcmd/native"
	"github.com/cockroachdb/errors"
)

// Immediate records cmd into a new one-time-submit primary buffer and
// submits it to queue as a single Work, signalling fence (which may be nil)
// on completion. The buffer is returned to the caller, who frees it once the
// submission has completed. If anything fails before the submission reaches
// the device the buffer is freed again.
func (p *CommandPool) Immediate(queue *Queue, cmd Command, fence *Fence) (CommandBuffer, error) {
	if err := p.check("Immediate"); err != nil {
		return CommandBuffer{}, err
	}
	if queue == nil {
		return CommandBuffer{}, validationf("Immediate: nil queue")
	}
	if queue.ctx != p.ctx {
		return CommandBuffer{}, validationf("Immediate: %s belongs to another device context", queue)
	}
	if queue.family.Index != p.family.Index {
		return CommandBuffer{}, validationf("Immediate: %s is not in queue family %d of %s", queue, p.family.Index, p)
	}
	if cmd == nil {
		return CommandBuffer{}, validationf("Immediate: nil command")
	}
	bufs, err := p.Allocate(1, true)
	if err != nil {
		return CommandBuffer{}, err
	}
	b := bufs[0]
	if err := p.submitOnce(queue, b, cmd, fence); err != nil {
		if ferr := p.releaseUnsubmitted(b); ferr != nil {
			p.ctx.cfg.WarnLog.Printf("%s: releasing %s: %v", p, b, ferr)
		}
		return CommandBuffer{}, err
	}
	return b, nil
}

func (p *CommandPool) submitOnce(queue *Queue, b CommandBuffer, cmd Command, fence *Fence) error {
	if err := b.Begin(native.UsageOneTimeSubmit); err != nil {
		return err
	}
	if err := b.Add(cmd); err != nil {
		return err
	}
	if err := b.End(); err != nil {
		return err
	}
	wb := NewWorkBuilder(p)
	if err := wb.Add(b); err != nil {
		return err
	}
	work, err := wb.Build()
	if err != nil {
		return err
	}
	return queue.Submit(NewWorkBatch(work), fence)
}

// releaseUnsubmitted frees b, ending it first if a failure left it recording.
func (p *CommandPool) releaseUnsubmitted(b CommandBuffer) error {
	if b.State() == Recording {
		if err := b.End(); err != nil {
			return err
		}
	}
	return p.Free(b)
}

// RunImmediate is Immediate with a private fence, waiting up to
// Config.ImmediateTimeout for the work to complete before releasing the
// buffer and the fence. If the wait times out the error matches ErrTimeout
// and both stay allocated, since the device may still be using them; the
// buffer is reclaimed when the pool is reset or destroyed.
func (p *CommandPool) RunImmediate(queue *Queue, cmd Command) error {
	if err := p.check("RunImmediate"); err != nil {
		return err
	}
	fence, err := NewFence(p.ctx, 0)
	if err != nil {
		return err
	}
	b, err := p.Immediate(queue, cmd, fence)
	if err != nil {
		if ferr := fence.Destroy(); ferr != nil {
			p.ctx.cfg.WarnLog.Printf("%s: destroying %s: %v", p, fence, ferr)
		}
		return err
	}
	timeout := p.ctx.cfg.ImmediateTimeout
	done, err := fence.Wait(timeoutOf(timeout))
	if err != nil {
		return err
	}
	if !done {
		p.ctx.cfg.WarnLog.Printf("%s: immediate submission not complete after %v", p, timeout)
		return errors.Mark(errors.Newf("RunImmediate: %s not complete after %v", b, timeout), ErrTimeout)
	}
	return errors.CombineErrors(p.Free(b), fence.Destroy())
}
