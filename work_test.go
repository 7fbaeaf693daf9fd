package dieselcmd

import (
	"testing"

	"github.com/andewx/dieselcmd/native"
	"github.com/andewx/dieselcmd/native/nativetest"
)

func TestWorkBuilderRejectsUnready(t *testing.T) {
	ctx, dev := newTestContext(t)
	p, _ := newTestPool(t, ctx, 0, 0)
	bufs, err := p.Allocate(1, true)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	secs, err := p.Allocate(1, false)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	ready := executable(t, p, NoOp)

	wb := NewWorkBuilder(p)
	checkIs(t, "Add initial", wb.Add(bufs[0]), ErrValidation)
	checkIs(t, "Add secondary", wb.Add(secs[0]), ErrValidation)
	checkIs(t, "Add duplicate", wb.Add(ready, ready), ErrValidation)
	checkIs(t, "Add ready then initial", wb.Add(ready, bufs[0]), ErrValidation)
	// A failed Add leaves the builder unchanged.
	_, err = wb.Build()
	checkIs(t, "Build empty", err, ErrValidation)

	if err := wb.Add(ready); err != nil {
		t.Fatalf("Add: %v", err)
	}
	checkIs(t, "Add again", wb.Add(ready), ErrValidation)
	w, err := wb.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if have := w.Buffers(); len(have) != 1 || have[0] != ready {
		t.Errorf("Buffers\nhave %v\nwant [%s]", have, ready)
	}
	if w.Pool() != p || w.Family() != 0 {
		t.Errorf("Work pool %v family %d", w.Pool(), w.Family())
	}
	checkMisuse(t, dev)
}

func TestWorkDependencies(t *testing.T) {
	ctx, dev := newTestContext(t)
	p, _ := newTestPool(t, ctx, 0, 0)
	a, err := NewSemaphore(ctx)
	if err != nil {
		t.Fatalf("NewSemaphore: %v", err)
	}
	b, err := NewSemaphore(ctx)
	if err != nil {
		t.Fatalf("NewSemaphore: %v", err)
	}
	gone, err := NewSemaphore(ctx)
	if err != nil {
		t.Fatalf("NewSemaphore: %v", err)
	}
	if err := gone.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	checkIs(t, "Destroy twice", gone.Destroy(), ErrValidation)

	wb := NewWorkBuilder(p)
	if err := wb.Add(executable(t, p, NoOp)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	checkIs(t, "Wait without stages", wb.Wait(a, 0), ErrValidation)
	checkIs(t, "Wait on nil", wb.Wait(nil, native.StageTransfer), ErrValidation)
	checkIs(t, "Wait on destroyed", wb.Wait(gone, native.StageTransfer), ErrValidation)
	checkIs(t, "Signal destroyed", wb.Signal(b, gone), ErrValidation)
	if err := wb.Wait(a, native.StageColorAttachmentOutput); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	checkIs(t, "Wait twice", wb.Wait(a, native.StageTransfer), ErrValidation)
	if err := wb.Signal(b, b); err != nil {
		t.Fatalf("Signal: %v", err)
	}
	if err := wb.Signal(b); err != nil {
		t.Fatalf("Signal again: %v", err)
	}
	w, err := wb.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if have := w.Signals(); len(have) != 1 || have[0] != b {
		t.Errorf("Signals\nhave %v\nwant [%s]", have, b)
	}
	if have := w.Waits(); len(have) != 1 || have[0] != (Dependency{a, native.StageColorAttachmentOutput}) {
		t.Errorf("Waits\nhave %v", have)
	}

	// Waiting on and signalling one semaphore in the same Work is rejected.
	if err := wb.Signal(a); err != nil {
		t.Fatalf("Signal: %v", err)
	}
	_, err = wb.Build()
	checkIs(t, "Build with overlap", err, ErrValidation)
	checkMisuse(t, dev)
}

// The descriptor carries every buffer, wait and signal in order.
func TestWorkDescriptor(t *testing.T) {
	ctx, dev := newTestContext(t)
	p, _ := newTestPool(t, ctx, 0, 0)
	const n, m, k = 3, 2, 2
	wb := NewWorkBuilder(p)
	var bufs []native.Handle
	for i := 0; i < n; i++ {
		b := executable(t, p, NoOp)
		bufs = append(bufs, b.Handle())
		if err := wb.Add(b); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	stages := []native.PipelineStages{native.StageTransfer, native.StageFragmentShader}
	var waits, signals []native.Handle
	for i := 0; i < m; i++ {
		s, err := NewSemaphore(ctx)
		if err != nil {
			t.Fatalf("NewSemaphore: %v", err)
		}
		waits = append(waits, s.Handle())
		if err := wb.Wait(s, stages[i]); err != nil {
			t.Fatalf("Wait: %v", err)
		}
	}
	for i := 0; i < k; i++ {
		s, err := NewSemaphore(ctx)
		if err != nil {
			t.Fatalf("NewSemaphore: %v", err)
		}
		signals = append(signals, s.Handle())
		if err := wb.Signal(s); err != nil {
			t.Fatalf("Signal: %v", err)
		}
	}
	w, err := wb.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	info, err := w.Descriptor()
	if err != nil {
		t.Fatalf("Descriptor: %v", err)
	}
	equal := func(a, b []native.Handle) bool {
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
	if !equal(info.CommandBuffers, bufs) {
		t.Errorf("CommandBuffers\nhave %v\nwant %v", info.CommandBuffers, bufs)
	}
	if !equal(info.WaitSemaphores, waits) {
		t.Errorf("WaitSemaphores\nhave %v\nwant %v", info.WaitSemaphores, waits)
	}
	if len(info.WaitStages) != m || info.WaitStages[0] != stages[0] || info.WaitStages[1] != stages[1] {
		t.Errorf("WaitStages\nhave %v\nwant %v", info.WaitStages, stages)
	}
	if !equal(info.SignalSemaphores, signals) {
		t.Errorf("SignalSemaphores\nhave %v\nwant %v", info.SignalSemaphores, signals)
	}

	// A buffer reset after Build no longer yields a descriptor.
	if err := w.Buffers()[1].Reset(0); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	_, err = w.Descriptor()
	checkIs(t, "Descriptor after Reset", err, ErrValidation)
	checkMisuse(t, dev)
}

func TestWorkBatchFamilies(t *testing.T) {
	ctx, dev := newTestContext(t,
		native.QueueFamilyProperties{QueueFlags: native.QueueGraphics, QueueCount: 1},
		native.QueueFamilyProperties{QueueFlags: native.QueueTransfer, QueueCount: 1},
	)
	gfx, q := newTestPool(t, ctx, 0, 0)
	xfer, _ := newTestPool(t, ctx, 1, 0)
	build := func(p *CommandPool) *Work {
		wb := NewWorkBuilder(p)
		if err := wb.Add(executable(t, p, NoOp)); err != nil {
			t.Fatalf("Add: %v", err)
		}
		w, err := wb.Build()
		if err != nil {
			t.Fatalf("Build: %v", err)
		}
		return w
	}

	// A buffer from another family cannot join the Work.
	checkIs(t, "Add other family", NewWorkBuilder(gfx).Add(executable(t, xfer, NoOp)), ErrValidation)

	batch := NewWorkBatch(build(gfx), build(xfer))
	_, err := batch.Family()
	checkIs(t, "Family", err, ErrValidation)
	checkIs(t, "Submit", q.Submit(batch, nil), ErrValidation)
	if n := dev.Calls(nativetest.OpQueueSubmit); n != 0 {
		t.Errorf("QueueSubmit calls\nhave %d\nwant 0", n)
	}

	_, err = NewWorkBatch().Family()
	checkIs(t, "Family of empty batch", err, ErrValidation)
	checkIs(t, "Submit empty batch", q.Submit(NewWorkBatch(), nil), ErrValidation)
	checkIs(t, "Submit nil batch", q.Submit(nil, nil), ErrValidation)

	good := NewWorkBatch(build(gfx))
	good.Add(build(gfx))
	if good.Len() != 2 {
		t.Fatalf("Len\nhave %d\nwant 2", good.Len())
	}
	if f, err := good.Family(); err != nil || f != 0 {
		t.Fatalf("Family\nhave %d %v\nwant 0", f, err)
	}
	// Submitting to a queue of another family is rejected.
	xq, _ := ctx.Queue(1, 0)
	checkIs(t, "Submit to other family", xq.Submit(good, nil), ErrValidation)
	if err := q.Submit(good, nil); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	subs := dev.Submissions()
	if len(subs) != 1 || len(subs[0].Infos) != 2 || subs[0].Queue != q.Handle() || subs[0].Fence != native.NullHandle {
		t.Errorf("submissions\nhave %+v\nwant one call with 2 infos and no fence", subs)
	}
	checkMisuse(t, dev)
}

func TestSubmitNativeFailure(t *testing.T) {
	ctx, dev := newTestContext(t)
	p, q := newTestPool(t, ctx, 0, 0)
	wb := NewWorkBuilder(p)
	if err := wb.Add(executable(t, p, NoOp)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	w, err := wb.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	dev.Fail(nativetest.OpQueueSubmit, native.ErrorDeviceLost)
	checkIs(t, "Submit", q.Submit(NewWorkBatch(w), nil), ErrNativeCall)

	fence, err := NewFence(ctx, 0)
	if err != nil {
		t.Fatalf("NewFence: %v", err)
	}
	if err := fence.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	checkIs(t, "Submit with destroyed fence", q.Submit(NewWorkBatch(w), fence), ErrValidation)
	checkMisuse(t, dev)
}

// Objects of one device context are rejected by another before any native
// call.
func TestRejectsOtherContext(t *testing.T) {
	ctx, dev := newTestContext(t)
	other, otherDev := newTestContext(t)
	p, q := newTestPool(t, ctx, 0, 0)
	op, oq := newTestPool(t, other, 0, 0)
	b := executable(t, p, NoOp)
	ob := executable(t, op, NoOp)

	sem, err := NewSemaphore(other)
	if err != nil {
		t.Fatalf("NewSemaphore: %v", err)
	}
	wb := NewWorkBuilder(p)
	checkIs(t, "Wait on other semaphore", wb.Wait(sem, native.StageTransfer), ErrValidation)
	checkIs(t, "Signal other semaphore", wb.Signal(sem), ErrValidation)
	checkIs(t, "Add other buffer", wb.Add(ob), ErrValidation)
	if err := wb.Add(b); err != nil {
		t.Fatalf("Add: %v", err)
	}
	w, err := wb.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(w.Waits()) != 0 || len(w.Signals()) != 0 || len(w.Buffers()) != 1 {
		t.Errorf("rejected parts kept: %d waits %d signals %d buffers", len(w.Waits()), len(w.Signals()), len(w.Buffers()))
	}

	owb := NewWorkBuilder(op)
	if err := owb.Add(ob); err != nil {
		t.Fatalf("Add: %v", err)
	}
	ow, err := owb.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	fence, err := NewFence(other, 0)
	if err != nil {
		t.Fatalf("NewFence: %v", err)
	}
	checkIs(t, "Submit with other fence", q.Submit(NewWorkBatch(w), fence), ErrValidation)
	checkIs(t, "Submit to other queue", oq.Submit(NewWorkBatch(w), nil), ErrValidation)
	checkIs(t, "Submit mixed batch", q.Submit(NewWorkBatch(w, ow), nil), ErrValidation)

	secs, err := op.Allocate(1, false)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if err := secs[0].BeginSecondary(0, native.Inheritance{}); err != nil {
		t.Fatalf("BeginSecondary: %v", err)
	}
	if err := secs[0].End(); err != nil {
		t.Fatalf("End: %v", err)
	}
	bufs, err := p.Allocate(1, true)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if err := bufs[0].Begin(0); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	checkIs(t, "Execute other secondary", bufs[0].Execute(secs...), ErrValidation)
	if err := bufs[0].End(); err != nil {
		t.Fatalf("End: %v", err)
	}

	_, err = p.Immediate(oq, NoOp, nil)
	checkIs(t, "Immediate on other queue", err, ErrValidation)

	for _, d := range []*nativetest.Device{dev, otherDev} {
		if n := d.Calls(nativetest.OpQueueSubmit); n != 0 {
			t.Errorf("QueueSubmit calls\nhave %d\nwant 0", n)
		}
		if n := d.Calls(nativetest.OpCmdExecuteCommands); n != 0 {
			t.Errorf("CmdExecuteCommands calls\nhave %d\nwant 0", n)
		}
		checkMisuse(t, d)
	}
}
