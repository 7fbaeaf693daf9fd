package dieselcmd

import (
	"fmt"

	"github.com/andewx/dieselcmd/native"
	"github.com/loov/hrtime"
)

// QueueFamily is a group of queues sharing one capability set.
type QueueFamily struct {
	Index        uint32
	QueueCount   uint32
	Capabilities native.QueueFlags
}

// QueueFamilyOf derives a family from the properties reported at device
// enumeration time. Present support is folded into the capabilities.
func QueueFamilyOf(index uint32, props native.QueueFamilyProperties) QueueFamily {
	caps := props.QueueFlags
	if props.Present {
		caps |= native.QueuePresent
	}
	return QueueFamily{Index: index, QueueCount: props.QueueCount, Capabilities: caps}
}

// Has reports whether the family supports every capability in caps.
func (f QueueFamily) Has(caps native.QueueFlags) bool {
	return f.Capabilities&caps == caps
}

func (f QueueFamily) String() string {
	return fmt.Sprintf("family %d (%s, %d queues)", f.Index, f.Capabilities, f.QueueCount)
}

// Queue is one hardware queue, retrieved once when the device context is
// created.
type Queue struct {
	ctx    *DeviceContext
	family QueueFamily
	slot   uint32
	handle native.Handle
}

func (q *Queue) Family() QueueFamily {
	return q.family
}

func (q *Queue) Slot() uint32 {
	return q.slot
}

func (q *Queue) Handle() native.Handle {
	return q.handle
}

func (q *Queue) String() string {
	return fmt.Sprintf("queue (%d, %d)", q.family.Index, q.slot)
}

// Submit deposits every Work of batch to the queue in a single native call.
// fence may be nil; otherwise it is signalled once all of the batch has
// completed. Nothing reaches the device unless the whole batch validates.
func (q *Queue) Submit(batch *WorkBatch, fence *Fence) error {
	if batch == nil {
		return validationf("%s: nil batch", q)
	}
	family, err := batch.Family()
	if err != nil {
		return err
	}
	if batch.works[0].pool.ctx != q.ctx {
		return validationf("%s: batch belongs to another device context", q)
	}
	if family != q.family.Index {
		return validationf("%s: batch targets queue family %d", q, family)
	}
	infos, err := batch.Descriptors()
	if err != nil {
		return err
	}
	fh := native.NullHandle
	if fence != nil {
		if err := fence.check("Submit"); err != nil {
			return err
		}
		if fence.ctx != q.ctx {
			return validationf("%s: %s belongs to another device context", q, fence)
		}
		fh = fence.handle
	}
	ret := q.ctx.dev.QueueSubmit(q.handle, infos, fh)
	if isError(ret) {
		q.ctx.cfg.ErrorLog.Printf("%s: submitting %d work units: %s", q, len(infos), ret)
		return newError("QueueSubmit", ret)
	}
	return nil
}

// WaitIdle blocks until all work previously submitted to this queue has
// completed.
func (q *Queue) WaitIdle() error {
	start := hrtime.Now()
	ret := q.ctx.dev.QueueWaitIdle(q.handle)
	q.ctx.observeWait(q.String()+" idle", hrtime.Since(start))
	return newError("QueueWaitIdle", ret)
}
