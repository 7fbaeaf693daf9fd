package dieselcmd

import (
	"fmt"
	"testing"

	"github.com/andewx/dieselcmd/native"
)

type named string

func (n named) Record(native.Device, native.Handle) {}

func names(cmds []Command) []string {
	s := make([]string, len(cmds))
	for i, c := range cmds {
		s[i] = fmt.Sprint(c)
	}
	return s
}

func TestSequences(t *testing.T) {
	a, b, c := named("a"), named("b"), named("c")
	perFrame := SequenceFunc(func(frame int) []Command {
		return []Command{named(fmt.Sprint(frame))}
	})

	for _, tt := range []struct {
		name string
		seq  Sequence
		want []string
	}{
		{"Of", Of(a, b), []string{"a", "b"}},
		{"Of empty", Of(), []string{}},
		{"Wrap", Wrap(Of(b), a, c), []string{"a", "b", "c"}},
		{"Wrap nil before", Wrap(Of(b), nil, c), []string{"b", "c"}},
		{"Wrap nil seq", Wrap(nil, a, c), []string{"a", "c"}},
		{"Concat", Concat(Of(a), nil, perFrame, Of(c)), []string{"a", "7", "c"}},
		{"nested", Wrap(Concat(perFrame, perFrame), a, nil), []string{"a", "7", "7"}},
	} {
		if have := names(tt.seq.Commands(7)); !equalStrings(have, tt.want) {
			t.Errorf("%s:\nhave %v\nwant %v", tt.name, have, tt.want)
		}
	}
}

// Of copies its arguments and its result.
func TestOfCopies(t *testing.T) {
	cmds := []Command{named("a"), named("b")}
	seq := Of(cmds...)
	cmds[0] = named("x")
	out := seq.Commands(0)
	out[1] = named("y")
	if have := names(seq.Commands(0)); !equalStrings(have, []string{"a", "b"}) {
		t.Errorf("Commands\nhave %v\nwant [a b]", have)
	}
}

func TestBarrierRecords(t *testing.T) {
	ctx, dev := newTestContext(t)
	p, _ := newTestPool(t, ctx, 0, 0)
	b := executable(t, p,
		Barrier(native.StageTransfer, native.StageFragmentShader,
			native.MemoryBarrier{SrcAccess: native.AccessTransferWrite, DstAccess: native.AccessShaderRead}),
		Barrier(native.StageTopOfPipe, native.StageBottomOfPipe),
	)
	want := []string{"barrier:0x1000->0x80", "barrier:0x1->0x2000"}
	if have := dev.Commands(b.Handle()); !equalStrings(have, want) {
		t.Errorf("commands\nhave %v\nwant %v", have, want)
	}
	checkMisuse(t, dev)
}
