// Command dieselsmoke opens the first Vulkan device it finds and pushes an
// immediate submission through every queue family, reporting each fence.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"runtime"
	"time"

	"github.com/andewx/dieselcmd"
	"github.com/andewx/dieselcmd/native"
	"github.com/andewx/dieselcmd/vkbind"
	"github.com/cockroachdb/errors"
)

var (
	validate = flag.Bool("validate", false, "Enable VK_LAYER_KHRONOS_validation when available")
	config   = flag.String("config", "", "Optional JSON usage file with submission settings")
	timeout  = flag.Duration("timeout", dieselcmd.DefaultImmediateTimeout, "How long to wait on each fence")
	rounds   = flag.Int("rounds", 3, "Frames to push through the frame ring")
)

func init() {
	runtime.LockOSThread()
}

func main() {
	flag.Parse()
	if err := run(); err != nil {
		log.Fatalf("dieselsmoke: %+v", err)
	}
}

func loadConfig() (dieselcmd.Config, error) {
	if *config == "" {
		return dieselcmd.DefaultConfig().WithLogOutput(os.Stderr), nil
	}
	f, err := os.Open(*config)
	if err != nil {
		return dieselcmd.Config{}, errors.Wrap(err, "opening config")
	}
	defer f.Close()
	usage, err := dieselcmd.LoadUsage("dieselsmoke", f)
	if err != nil {
		return dieselcmd.Config{}, err
	}
	return dieselcmd.ConfigFromUsage(usage)
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.ImmediateTimeout = *timeout

	if err := vkbind.InitLoader(); err != nil {
		return err
	}
	opts := vkbind.Options{AppName: "dieselsmoke", Log: cfg.InfoLog}
	if *validate {
		opts.Layers = []string{"VK_LAYER_KHRONOS_validation"}
	}
	session, err := vkbind.Open(opts)
	if err != nil {
		return err
	}
	defer session.Close()
	fmt.Println("device:", session.DeviceName())

	props := session.Families()
	families := make([]dieselcmd.QueueFamily, len(props))
	for i, p := range props {
		families[i] = dieselcmd.QueueFamilyOf(uint32(i), p)
	}
	ctx, err := dieselcmd.NewDeviceContext(session.Device(), cfg, families...)
	if err != nil {
		return err
	}
	defer ctx.WaitIdle()

	for _, family := range ctx.Families() {
		if err := smokeFamily(ctx, family); err != nil {
			return errors.Wrapf(err, "%s", family)
		}
	}
	if q, err := ctx.FindQueue(native.QueueGraphics); err == nil {
		return smokeFrames(ctx, q)
	}
	return nil
}

// smokeFamily records a single barrier into a pool on the family's first
// queue, submits it with a fence and waits for the fence.
func smokeFamily(ctx *dieselcmd.DeviceContext, family dieselcmd.QueueFamily) error {
	queue, err := ctx.Queue(family.Index, 0)
	if err != nil {
		return err
	}
	pool, err := dieselcmd.NewCommandPool(ctx, queue, 0)
	if err != nil {
		return err
	}
	defer pool.Destroy()
	fence, err := dieselcmd.NewFence(ctx, 0)
	if err != nil {
		return err
	}
	defer fence.Destroy()

	start := time.Now()
	b, err := pool.Immediate(queue, dieselcmd.Barrier(native.StageTopOfPipe, native.StageBottomOfPipe), fence)
	if err != nil {
		return err
	}
	done, err := fence.Wait(uint64(ctx.Config().ImmediateTimeout.Nanoseconds()))
	if err != nil {
		return err
	}
	if !done {
		return errors.Newf("fence not signalled after %v", ctx.Config().ImmediateTimeout)
	}
	signalled, err := fence.Signalled()
	if err != nil {
		return err
	}
	fmt.Printf("%s: immediate submission on %s complete in %v (signalled=%t)\n", family, queue, time.Since(start), signalled)
	return b.Free()
}

// smokeFrames cycles the frame ring, recording and submitting one primary
// buffer per frame.
func smokeFrames(ctx *dieselcmd.DeviceContext, queue *dieselcmd.Queue) error {
	ring, err := dieselcmd.NewFrameRing(ctx, queue, 2)
	if err != nil {
		return err
	}
	defer ring.Destroy()
	seq := dieselcmd.Wrap(dieselcmd.SequenceFunc(func(frame int) []dieselcmd.Command {
		cmds := make([]dieselcmd.Command, frame%3+1)
		for i := range cmds {
			cmds[i] = dieselcmd.Barrier(native.StageTransfer, native.StageTransfer)
		}
		return cmds
	}), dieselcmd.Barrier(native.StageTopOfPipe, native.StageTransfer), dieselcmd.Barrier(native.StageTransfer, native.StageBottomOfPipe))

	for i := 0; i < *rounds; i++ {
		frame, err := ring.Begin()
		if err != nil {
			return err
		}
		b, err := frame.Record(seq)
		if err != nil {
			return err
		}
		wb := dieselcmd.NewWorkBuilder(b.Pool())
		if err := wb.Add(b); err != nil {
			return err
		}
		work, err := wb.Build()
		if err != nil {
			return err
		}
		if err := ring.Submit(dieselcmd.NewWorkBatch(work)); err != nil {
			return err
		}
		fmt.Printf("frame %d submitted on slot %d\n", ring.Number()-1, frame.Index())
	}
	return queue.WaitIdle()
}
