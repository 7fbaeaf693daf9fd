package nativetest

import (
	"testing"
	"time"

	"github.com/andewx/dieselcmd/native"
)

func TestFail(t *testing.T) {
	d := New()
	d.Fail(OpCreateFence, native.ErrorOutOfHostMemory)
	if _, res := d.CreateFence(0); res != native.ErrorOutOfHostMemory {
		t.Fatalf("CreateFence with failure\nhave %s\nwant %s", res, native.ErrorOutOfHostMemory)
	}
	if _, res := d.CreateFence(0); res != native.Success {
		t.Fatalf("CreateFence after failure\nhave %s\nwant %s", res, native.Success)
	}
	if n := d.Calls(OpCreateFence); n != 2 {
		t.Errorf("Calls\nhave %d\nwant 2", n)
	}
}

func TestRecording(t *testing.T) {
	d := New()
	pool, _ := d.CreateCommandPool(0, native.PoolResetCommandBuffer)
	bufs, res := d.AllocateCommandBuffers(pool, native.LevelPrimary, 2)
	if res != native.Success || len(bufs) != 2 {
		t.Fatalf("AllocateCommandBuffers\nhave %v %s", bufs, res)
	}
	d.CmdPipelineBarrier(bufs[0], native.StageTopOfPipe, native.StageTransfer, nil)
	if len(d.Misuse()) != 1 {
		t.Fatalf("recording outside Begin not flagged: %v", d.Misuse())
	}
	d.BeginCommandBuffer(bufs[0], native.UsageOneTimeSubmit, nil)
	d.CmdPipelineBarrier(bufs[0], native.StageTopOfPipe, native.StageTransfer, nil)
	d.Mark(bufs[0], "draw")
	if res := d.QueueSubmit(d.GetDeviceQueue(0, 0), []native.SubmitInfo{{CommandBuffers: bufs[:1]}}, native.NullHandle); res == native.Success {
		t.Error("submitting a recording buffer succeeded")
	}
	d.EndCommandBuffer(bufs[0])
	want := []string{"barrier:0x1->0x1000", "draw"}
	have := d.Commands(bufs[0])
	if len(have) != len(want) || have[0] != want[0] || have[1] != want[1] {
		t.Errorf("Commands\nhave %v\nwant %v", have, want)
	}
	if f := d.UsageFlags(bufs[0]); f != native.UsageOneTimeSubmit {
		t.Errorf("UsageFlags\nhave %#x\nwant %#x", f, native.UsageOneTimeSubmit)
	}

	other, _ := d.CreateCommandPool(0, 0)
	d.FreeCommandBuffers(other, bufs[1:])
	if len(d.PoolBuffers(pool)) != 2 {
		t.Error("freeing through the wrong pool released the buffer")
	}
	d.DestroyCommandPool(pool)
	d.DestroyCommandPool(other)
	if pools, buffers, _, _ := d.Live(); pools != 0 || buffers != 0 {
		t.Errorf("Live\nhave %d pools %d buffers\nwant none", pools, buffers)
	}
	if n := len(d.Misuse()); n != 3 {
		t.Errorf("Misuse\nhave %d entries %v\nwant 3", n, d.Misuse())
	}
}

func TestQueues(t *testing.T) {
	d := New(native.QueueFamilyProperties{QueueFlags: native.QueueCompute, QueueCount: 1})
	q := d.GetDeviceQueue(0, 0)
	if q == native.NullHandle || d.GetDeviceQueue(0, 0) != q {
		t.Fatalf("GetDeviceQueue not stable: %#x", q)
	}
	if h := d.GetDeviceQueue(0, 1); h != native.NullHandle {
		t.Errorf("GetDeviceQueue(0, 1)\nhave %#x\nwant NullHandle", h)
	}
	if h := d.GetDeviceQueue(1, 0); h != native.NullHandle {
		t.Errorf("GetDeviceQueue(1, 0)\nhave %#x\nwant NullHandle", h)
	}
	if res := d.QueueWaitIdle(q); res != native.Success {
		t.Errorf("QueueWaitIdle\nhave %s", res)
	}
	if res := d.QueueWaitIdle(0xdead); res == native.Success {
		t.Error("QueueWaitIdle on an unknown queue succeeded")
	}
}

func TestDeferredSubmission(t *testing.T) {
	d := New()
	q := d.GetDeviceQueue(0, 0)
	fence, _ := d.CreateFence(0)
	d.SetDeferred(true)
	if res := d.QueueSubmit(q, nil, fence); res != native.Success {
		t.Fatalf("QueueSubmit\nhave %s", res)
	}
	if res := d.GetFenceStatus(fence); res != native.NotReady {
		t.Fatalf("GetFenceStatus before Complete\nhave %s\nwant %s", res, native.NotReady)
	}
	if res := d.WaitForFences([]native.Handle{fence}, true, uint64(5*time.Millisecond)); res != native.Timeout {
		t.Fatalf("WaitForFences\nhave %s\nwant %s", res, native.Timeout)
	}
	done := make(chan native.Result)
	go func() {
		done <- d.WaitForFences([]native.Handle{fence}, true, ^uint64(0))
	}()
	d.Complete()
	if res := <-done; res != native.Success {
		t.Fatalf("WaitForFences after Complete\nhave %s\nwant %s", res, native.Success)
	}
	if subs := d.Submissions(); len(subs) != 1 || subs[0].Fence != fence {
		t.Errorf("Submissions\nhave %+v", subs)
	}
	if res := d.ResetFences([]native.Handle{fence}); res != native.Success {
		t.Fatalf("ResetFences\nhave %s", res)
	}
	if res := d.GetFenceStatus(fence); res != native.NotReady {
		t.Errorf("GetFenceStatus after reset\nhave %s\nwant %s", res, native.NotReady)
	}
}

func TestWaitAny(t *testing.T) {
	d := New()
	a, _ := d.CreateFence(0)
	b, _ := d.CreateFence(native.FenceCreateSignaled)
	fences := []native.Handle{a, b}
	if res := d.WaitForFences(fences, false, 0); res != native.Success {
		t.Errorf("wait any\nhave %s\nwant %s", res, native.Success)
	}
	if res := d.WaitForFences(fences, true, 0); res != native.Timeout {
		t.Errorf("wait all\nhave %s\nwant %s", res, native.Timeout)
	}
	d.Signal(a)
	if res := d.WaitForFences(fences, true, 0); res != native.Success {
		t.Errorf("wait all after Signal\nhave %s\nwant %s", res, native.Success)
	}
	d.DestroyFence(a)
	if res := d.WaitForFences(fences, true, 0); res != native.ErrorUnknown {
		t.Errorf("wait on destroyed fence\nhave %s\nwant %s", res, native.ErrorUnknown)
	}
}
