package dieselcmd

import "github.com/andewx/dieselcmd/native"

// Command records a single operation into target. Commands hold only their
// parameters and may be recorded any number of times.
type Command interface {
	Record(dev native.Device, target native.Handle)
}

// CommandFunc adapts a function to the Command interface.
type CommandFunc func(dev native.Device, target native.Handle)

func (f CommandFunc) Record(dev native.Device, target native.Handle) {
	f(dev, target)
}

// NoOp records nothing.
var NoOp Command = CommandFunc(func(native.Device, native.Handle) {})

type barrier struct {
	src, dst native.PipelineStages
	memory   []native.MemoryBarrier
}

func (c barrier) Record(dev native.Device, target native.Handle) {
	dev.CmdPipelineBarrier(target, c.src, c.dst, c.memory)
}

// Barrier returns a pipeline barrier from the src to the dst stages with an
// optional set of global memory barriers.
func Barrier(src, dst native.PipelineStages, memory ...native.MemoryBarrier) Command {
	return barrier{src: src, dst: dst, memory: append([]native.MemoryBarrier(nil), memory...)}
}

// Sequence yields the commands to record for a frame. It is evaluated every
// time it is recorded, so one Sequence can be replayed across frames.
type Sequence interface {
	Commands(frame int) []Command
}

// SequenceFunc adapts a function to the Sequence interface.
type SequenceFunc func(frame int) []Command

func (f SequenceFunc) Commands(frame int) []Command {
	return f(frame)
}

type fixed []Command

func (s fixed) Commands(int) []Command {
	return append([]Command(nil), s...)
}

// Of returns a Sequence that yields cmds for every frame.
func Of(cmds ...Command) Sequence {
	return fixed(append([]Command(nil), cmds...))
}

type wrapped struct {
	seq           Sequence
	before, after Command
}

func (w wrapped) Commands(frame int) []Command {
	var inner []Command
	if w.seq != nil {
		inner = w.seq.Commands(frame)
	}
	cmds := make([]Command, 0, len(inner)+2)
	if w.before != nil {
		cmds = append(cmds, w.before)
	}
	cmds = append(cmds, inner...)
	if w.after != nil {
		cmds = append(cmds, w.after)
	}
	return cmds
}

// Wrap brackets seq with before and after. Any of the three may be nil.
func Wrap(seq Sequence, before, after Command) Sequence {
	return wrapped{seq: seq, before: before, after: after}
}

type concat []Sequence

func (c concat) Commands(frame int) []Command {
	var cmds []Command
	for _, s := range c {
		if s != nil {
			cmds = append(cmds, s.Commands(frame)...)
		}
	}
	return cmds
}

// Concat returns a Sequence yielding the commands of seqs in order.
func Concat(seqs ...Sequence) Sequence {
	return concat(append([]Sequence(nil), seqs...))
}
