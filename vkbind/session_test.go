package vkbind

import (
	"os"
	"runtime"
	"testing"

	"github.com/andewx/dieselcmd/native"
)

var loaderErr error

func init() {
	// GLFW must be initialised from the main thread.
	runtime.LockOSThread()
}

func TestMain(m *testing.M) {
	loaderErr = InitLoader()
	os.Exit(m.Run())
}

func openOrSkip(t *testing.T) *Session {
	t.Helper()
	if loaderErr != nil {
		t.Skipf("no Vulkan loader: %v", loaderErr)
	}
	s, err := Open(Options{AppName: "vkbind test"})
	if err != nil {
		t.Skipf("no Vulkan device: %v", err)
	}
	return s
}

func TestSubmitOnDevice(t *testing.T) {
	s := openOrSkip(t)
	defer s.Close()
	dev := s.Device()

	family := -1
	for i, f := range s.Families() {
		if f.QueueFlags&native.QueueGraphics != 0 {
			family = i
			break
		}
	}
	if family < 0 {
		t.Fatal("Open returned a device without a graphics family")
	}
	queue := dev.GetDeviceQueue(uint32(family), 0)
	if queue == native.NullHandle {
		t.Fatal("GetDeviceQueue returned NullHandle")
	}

	pool, ret := dev.CreateCommandPool(uint32(family), native.PoolResetCommandBuffer)
	if ret != native.Success {
		t.Fatalf("CreateCommandPool: %s", ret)
	}
	defer dev.DestroyCommandPool(pool)
	bufs, ret := dev.AllocateCommandBuffers(pool, native.LevelPrimary, 1)
	if ret != native.Success {
		t.Fatalf("AllocateCommandBuffers: %s", ret)
	}
	if ret := dev.BeginCommandBuffer(bufs[0], native.UsageOneTimeSubmit, nil); ret != native.Success {
		t.Fatalf("BeginCommandBuffer: %s", ret)
	}
	dev.CmdPipelineBarrier(bufs[0], native.StageTopOfPipe, native.StageBottomOfPipe, nil)
	if ret := dev.EndCommandBuffer(bufs[0]); ret != native.Success {
		t.Fatalf("EndCommandBuffer: %s", ret)
	}

	fence, ret := dev.CreateFence(0)
	if ret != native.Success {
		t.Fatalf("CreateFence: %s", ret)
	}
	defer dev.DestroyFence(fence)
	if ret := dev.GetFenceStatus(fence); ret != native.NotReady {
		t.Errorf("GetFenceStatus before submit\nhave %s\nwant %s", ret, native.NotReady)
	}
	ret = dev.QueueSubmit(queue, []native.SubmitInfo{{CommandBuffers: bufs}}, fence)
	if ret != native.Success {
		t.Fatalf("QueueSubmit: %s", ret)
	}
	if ret := dev.WaitForFences([]native.Handle{fence}, true, ^uint64(0)); ret != native.Success {
		t.Fatalf("WaitForFences: %s", ret)
	}
	if ret := dev.GetFenceStatus(fence); ret != native.Success {
		t.Errorf("GetFenceStatus after wait\nhave %s\nwant %s", ret, native.Success)
	}
	dev.FreeCommandBuffers(pool, bufs)
	if _, ok := dev.CommandBuffer(bufs[0]); ok {
		t.Error("freed buffer still registered")
	}
}
