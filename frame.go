package dieselcmd

import (
	"github.com/andewx/dieselcmd/native"
	"github.com/cockroachdb/errors"
)

// Frame holds the per-frame resources of a FrameRing. Every frame in flight
// has its own fence manager and command pools, which makes it easy to know
// when its buffers can be recycled.
type Frame struct {
	ring        *FrameRing
	index       int
	fences      *FenceManager
	primary     *BufferManager
	secondaries []*BufferManager
}

func newFrame(r *FrameRing, index int) (*Frame, error) {
	m, err := NewBufferManager(r.ctx, r.queue, true)
	if err != nil {
		return nil, err
	}
	return &Frame{
		ring:    r,
		index:   index,
		fences:  NewFenceManager(r.ctx),
		primary: m,
	}, nil
}

// Index returns the position of the frame in its ring.
func (f *Frame) Index() int {
	return f.index
}

// Fences returns the fences attached to submissions made during this frame.
func (f *Frame) Fences() *FenceManager {
	return f.fences
}

// Primary returns a new or recycled primary command buffer in the Initial
// state. It is only valid for the current frame.
func (f *Frame) Primary() (CommandBuffer, error) {
	return f.primary.Next()
}

// Secondary returns a new or recycled secondary command buffer for worker,
// in range [0, FrameRing.Workers()). Two goroutines must not use the same
// worker index.
func (f *Frame) Secondary(worker int) (CommandBuffer, error) {
	if worker < 0 || worker >= len(f.secondaries) {
		return CommandBuffer{}, validationf("Secondary: worker %d out of range [0, %d)", worker, len(f.secondaries))
	}
	return f.secondaries[worker].Next()
}

// Record returns a primary buffer with seq recorded for the ring's current
// frame number, ready to be submitted.
func (f *Frame) Record(seq Sequence) (CommandBuffer, error) {
	b, err := f.Primary()
	if err != nil {
		return b, err
	}
	if err := b.Begin(native.UsageOneTimeSubmit); err != nil {
		return b, err
	}
	if err := b.Record(seq, f.ring.number-1); err != nil {
		return b, err
	}
	return b, b.End()
}

func (f *Frame) reset() error {
	if err := f.fences.Reset(); err != nil {
		return err
	}
	f.primary.Reset()
	for i := range f.secondaries {
		f.secondaries[i].Reset()
	}
	return nil
}

func (f *Frame) setWorkers(count int) error {
	var err error
	for i := range f.secondaries {
		err = errors.CombineErrors(err, f.secondaries[i].Destroy())
	}
	f.secondaries = f.secondaries[:0]
	if err != nil {
		return err
	}
	for i := 0; i < count; i++ {
		m, err := NewBufferManager(f.ring.ctx, f.ring.queue, false)
		if err != nil {
			return err
		}
		f.secondaries = append(f.secondaries, m)
	}
	return nil
}

func (f *Frame) destroy() error {
	err := f.fences.Destroy()
	err = errors.CombineErrors(err, f.primary.Destroy())
	for i := range f.secondaries {
		err = errors.CombineErrors(err, f.secondaries[i].Destroy())
	}
	f.secondaries = nil
	return err
}

// FrameRing cycles through a fixed number of frames in flight, all
// submitting to one queue. Beginning a frame blocks until the submissions
// made the last time that frame was current have completed.
type FrameRing struct {
	ctx     *DeviceContext
	queue   *Queue
	frames  []*Frame
	current *Frame
	number  int
	workers int
}

// NewFrameRing creates count frames for queue.
func NewFrameRing(ctx *DeviceContext, queue *Queue, count int) (*FrameRing, error) {
	if ctx == nil || queue == nil {
		return nil, validationf("NewFrameRing: nil context or queue")
	}
	if count < 1 {
		return nil, validationf("NewFrameRing: frame count must be at least 1, have %d", count)
	}
	r := &FrameRing{ctx: ctx, queue: queue}
	for i := 0; i < count; i++ {
		f, err := newFrame(r, i)
		if err != nil {
			r.Destroy()
			return nil, err
		}
		r.frames = append(r.frames, f)
	}
	return r, nil
}

// Len returns the number of frames in the ring.
func (r *FrameRing) Len() int {
	return len(r.frames)
}

// Workers returns the number of secondary buffer workers per frame.
func (r *FrameRing) Workers() int {
	return r.workers
}

// Number returns how many frames have been begun. The frame returned by the
// last Begin has frame number Number()-1.
func (r *FrameRing) Number() int {
	return r.number
}

// Current returns the frame returned by the last Begin, or nil.
func (r *FrameRing) Current() *Frame {
	return r.current
}

// Begin advances to the next frame and recycles its resources. It waits for
// every fence attached to that frame's previous submissions.
func (r *FrameRing) Begin() (*Frame, error) {
	if len(r.frames) == 0 {
		return nil, validationf("FrameRing.Begin: ring has been destroyed")
	}
	next := r.frames[r.number%len(r.frames)]
	if err := next.reset(); err != nil {
		return nil, err
	}
	r.current = next
	r.number++
	return next, nil
}

// Submit submits batch to the ring's queue with a fence managed by the
// current frame.
func (r *FrameRing) Submit(batch *WorkBatch) error {
	if r.current == nil {
		return validationf("FrameRing.Submit: no frame begun")
	}
	fences := r.current.fences
	fence, err := fences.NewFence()
	if err != nil {
		return err
	}
	if err := r.queue.Submit(batch, fence); err != nil {
		return errors.CombineErrors(err, fences.Return(fence))
	}
	return nil
}

// SetWorkers sets the number of worker goroutines which can use secondary
// command buffers. It waits for the queue to become idle before resizing.
// On error every frame is set back to the previous worker count.
func (r *FrameRing) SetWorkers(count int) error {
	if count < 0 {
		return validationf("SetWorkers: negative worker count %d", count)
	}
	if err := r.queue.WaitIdle(); err != nil {
		return err
	}
	for i := range r.frames {
		if err := r.frames[i].setWorkers(count); err != nil {
			for _, f := range r.frames[:i+1] {
				err = errors.CombineErrors(err, f.setWorkers(r.workers))
			}
			return err
		}
	}
	r.workers = count
	return nil
}

// Destroy waits for the queue to become idle and releases every frame.
func (r *FrameRing) Destroy() error {
	err := r.queue.WaitIdle()
	for i := range r.frames {
		err = errors.CombineErrors(err, r.frames[i].destroy())
	}
	r.frames = nil
	r.current = nil
	return err
}
