package dieselcmd

import (
	"fmt"

	"github.com/andewx/dieselcmd/internal/slot"
	"github.com/andewx/dieselcmd/native"
)

// State is the lifecycle state of a command buffer.
type State int

const (
	Initial State = iota
	Recording
	Executable
	// Freed is reported for buffer values whose buffer has been freed or
	// whose pool has been destroyed. It is terminal.
	Freed
)

func (s State) String() string {
	switch s {
	case Initial:
		return "initial"
	case Recording:
		return "recording"
	case Executable:
		return "executable"
	case Freed:
		return "freed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// CommandBuffer is a handle to a buffer owned by a CommandPool. It is a small
// value; copies refer to the same buffer. Once the buffer has been freed
// every copy reports Freed and all operations fail with ErrValidation.
//
//	Initial --Begin--> Recording --End--> Executable --Reset--> Initial
type CommandBuffer struct {
	pool *CommandPool
	ref  slot.Ref
}

func (b CommandBuffer) entry() (*bufferEntry, bool) {
	if b.pool == nil {
		return nil, false
	}
	return b.pool.buffers.Get(b.ref)
}

func (b CommandBuffer) live(op string) (*bufferEntry, error) {
	e, ok := b.entry()
	if !ok {
		return nil, validationf("%s: %s is not a live command buffer", op, b)
	}
	return e, nil
}

func (b CommandBuffer) String() string {
	return fmt.Sprintf("command buffer %d.%d", b.ref.Index, b.ref.Gen)
}

// Pool returns the pool the buffer was allocated from.
func (b CommandBuffer) Pool() *CommandPool {
	return b.pool
}

// Handle returns the native handle, or NullHandle once the buffer is freed.
func (b CommandBuffer) Handle() native.Handle {
	if e, ok := b.entry(); ok {
		return e.handle
	}
	return native.NullHandle
}

func (b CommandBuffer) State() State {
	if e, ok := b.entry(); ok {
		return e.state
	}
	return Freed
}

// IsReady reports whether the buffer can be submitted or executed.
func (b CommandBuffer) IsReady() bool {
	return b.State() == Executable
}

func (b CommandBuffer) IsPrimary() bool {
	e, ok := b.entry()
	return ok && e.level == native.LevelPrimary
}

// Begin starts recording a primary buffer.
func (b CommandBuffer) Begin(flags native.UsageFlags) error {
	e, err := b.live("Begin")
	if err != nil {
		return err
	}
	if e.level != native.LevelPrimary {
		return validationf("Begin: %s is secondary, use BeginSecondary", b)
	}
	if e.state != Initial {
		return stateError("Begin", e.state, Initial)
	}
	if err := newError("BeginCommandBuffer", b.pool.ctx.dev.BeginCommandBuffer(e.handle, flags, nil)); err != nil {
		return err
	}
	e.state = Recording
	return nil
}

// BeginSecondary starts recording a secondary buffer that continues the
// render pass described by inh.
func (b CommandBuffer) BeginSecondary(flags native.UsageFlags, inh native.Inheritance) error {
	e, err := b.live("BeginSecondary")
	if err != nil {
		return err
	}
	if e.level != native.LevelSecondary {
		return validationf("BeginSecondary: %s is primary, use Begin", b)
	}
	if e.state != Initial {
		return stateError("BeginSecondary", e.state, Initial)
	}
	flags |= native.UsageRenderPassContinue
	if err := newError("BeginCommandBuffer", b.pool.ctx.dev.BeginCommandBuffer(e.handle, flags, &inh)); err != nil {
		return err
	}
	e.state = Recording
	return nil
}

// Add records cmds in order.
func (b CommandBuffer) Add(cmds ...Command) error {
	e, err := b.live("Add")
	if err != nil {
		return err
	}
	if e.state != Recording {
		return stateError("Add", e.state, Recording)
	}
	for i, cmd := range cmds {
		if cmd == nil {
			return validationf("Add: command %d is nil", i)
		}
	}
	dev, h := b.pool.ctx.dev, e.handle
	for _, cmd := range cmds {
		cmd.Record(dev, h)
	}
	return nil
}

// Record records the commands seq yields for frame.
func (b CommandBuffer) Record(seq Sequence, frame int) error {
	e, err := b.live("Record")
	if err != nil {
		return err
	}
	if e.state != Recording {
		return stateError("Record", e.state, Recording)
	}
	if seq == nil {
		return validationf("Record: nil sequence")
	}
	return b.Add(seq.Commands(frame)...)
}

// Execute records the execution of secondaries into a primary buffer. Every
// secondary must be live, Executable and of the same queue family; this is
// checked before anything is recorded.
func (b CommandBuffer) Execute(secondaries ...CommandBuffer) error {
	e, err := b.live("Execute")
	if err != nil {
		return err
	}
	if e.level != native.LevelPrimary {
		return validationf("Execute: %s is not a primary buffer", b)
	}
	if e.state != Recording {
		return stateError("Execute", e.state, Recording)
	}
	if len(secondaries) == 0 {
		return validationf("Execute: no secondary buffers")
	}
	handles := make([]native.Handle, len(secondaries))
	for i, s := range secondaries {
		se, ok := s.entry()
		switch {
		case !ok:
			return validationf("Execute: secondary %d (%s) is not a live command buffer", i, s)
		case se.level != native.LevelSecondary:
			return validationf("Execute: %s is not a secondary buffer", s)
		case s.pool.ctx != b.pool.ctx:
			return validationf("Execute: %s belongs to another device context", s)
		case s.pool.family.Index != b.pool.family.Index:
			return validationf("Execute: %s belongs to queue family %d, want %d", s, s.pool.family.Index, b.pool.family.Index)
		case se.state != Executable:
			return validationf("Execute: secondary %s is %s, want %s", s, se.state, Executable)
		}
		handles[i] = se.handle
	}
	b.pool.ctx.dev.CmdExecuteCommands(e.handle, handles)
	return nil
}

// End finishes recording.
func (b CommandBuffer) End() error {
	e, err := b.live("End")
	if err != nil {
		return err
	}
	if e.state != Recording {
		return stateError("End", e.state, Recording)
	}
	if err := newError("EndCommandBuffer", b.pool.ctx.dev.EndCommandBuffer(e.handle)); err != nil {
		return err
	}
	e.state = Executable
	return nil
}

// Reset returns an Executable buffer to Initial. The owning pool must have
// been created with native.PoolResetCommandBuffer.
func (b CommandBuffer) Reset(flags native.BufferResetFlags) error {
	e, err := b.live("Reset")
	if err != nil {
		return err
	}
	if e.state != Executable {
		return stateError("Reset", e.state, Executable)
	}
	if b.pool.flags&native.PoolResetCommandBuffer == 0 {
		return validationf("Reset: %s does not allow resetting individual buffers", b.pool)
	}
	if err := newError("ResetCommandBuffer", b.pool.ctx.dev.ResetCommandBuffer(e.handle, flags)); err != nil {
		return err
	}
	e.state = Initial
	return nil
}

// Free releases the buffer to its pool.
func (b CommandBuffer) Free() error {
	if b.pool == nil {
		return validationf("Free: %s has no pool", b)
	}
	return b.pool.Free(b)
}
