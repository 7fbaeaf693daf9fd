package dieselcmd

import (
	"testing"

	"github.com/andewx/dieselcmd/native"
	"github.com/andewx/dieselcmd/native/nativetest"
	"github.com/cockroachdb/errors"
)

// newTestContext returns a context over a fake device exposing families, or
// the fake's default family when none are given.
func newTestContext(t *testing.T, families ...native.QueueFamilyProperties) (*DeviceContext, *nativetest.Device) {
	t.Helper()
	dev := nativetest.New(families...)
	props := dev.Families()
	fams := make([]QueueFamily, len(props))
	for i, p := range props {
		fams[i] = QueueFamilyOf(uint32(i), p)
	}
	ctx, err := NewDeviceContext(dev, DefaultConfig(), fams...)
	if err != nil {
		t.Fatalf("NewDeviceContext: %v", err)
	}
	return ctx, dev
}

func newTestPool(t *testing.T, ctx *DeviceContext, family uint32, flags native.PoolCreateFlags) (*CommandPool, *Queue) {
	t.Helper()
	q, err := ctx.Queue(family, 0)
	if err != nil {
		t.Fatalf("Queue(%d, 0): %v", family, err)
	}
	p, err := NewCommandPool(ctx, q, flags)
	if err != nil {
		t.Fatalf("NewCommandPool: %v", err)
	}
	return p, q
}

// executable returns a primary buffer from p holding cmds.
func executable(t *testing.T, p *CommandPool, cmds ...Command) CommandBuffer {
	t.Helper()
	bufs, err := p.Allocate(1, true)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	b := bufs[0]
	if err := b.Begin(0); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := b.Add(cmds...); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := b.End(); err != nil {
		t.Fatalf("End: %v", err)
	}
	return b
}

func checkMisuse(t *testing.T, dev *nativetest.Device) {
	t.Helper()
	if m := dev.Misuse(); len(m) != 0 {
		t.Errorf("device misuse:\n%v", m)
	}
}

func checkIs(t *testing.T, what string, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Errorf("%s:\nhave %v\nwant %v", what, err, target)
	}
}

// mark returns a command that records name into the fake device.
func mark(dev *nativetest.Device, name string) Command {
	return CommandFunc(func(_ native.Device, target native.Handle) {
		dev.Mark(target, name)
	})
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
