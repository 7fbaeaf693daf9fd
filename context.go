package dieselcmd

import (
	"sort"
	"time"

	"github.com/andewx/dieselcmd/native"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// DeviceContext binds a native device to the queues retrieved from it and
// the configuration shared by pools, fences and semaphores created on it.
type DeviceContext struct {
	id       uuid.UUID
	dev      native.Device
	cfg      Config
	families []QueueFamily
	queues   map[uint32][]*Queue
}

// NewDeviceContext retrieves every queue of the given families from dev. Each
// family must have a positive queue count and a unique index.
func NewDeviceContext(dev native.Device, cfg Config, families ...QueueFamily) (*DeviceContext, error) {
	if dev == nil {
		return nil, validationf("device context: nil device")
	}
	if len(families) == 0 {
		return nil, validationf("device context: no queue families")
	}
	ctx := &DeviceContext{
		id:       uuid.New(),
		dev:      dev,
		cfg:      cfg.withDefaults(),
		families: append([]QueueFamily(nil), families...),
		queues:   make(map[uint32][]*Queue, len(families)),
	}
	sort.Slice(ctx.families, func(i, j int) bool { return ctx.families[i].Index < ctx.families[j].Index })

	count := 0
	for _, f := range ctx.families {
		if f.QueueCount == 0 {
			return nil, validationf("device context: %s has no queues", f)
		}
		if _, dup := ctx.queues[f.Index]; dup {
			return nil, validationf("device context: queue family %d listed twice", f.Index)
		}
		queues := make([]*Queue, f.QueueCount)
		for slot := range queues {
			h := dev.GetDeviceQueue(f.Index, uint32(slot))
			if h == native.NullHandle {
				return nil, resourcef("device context: queue (%d, %d) not present on device", f.Index, slot)
			}
			queues[slot] = &Queue{ctx: ctx, family: f, slot: uint32(slot), handle: h}
		}
		ctx.queues[f.Index] = queues
		count += len(queues)
	}
	ctx.cfg.InfoLog.Printf("context %s: %d queue families, %d queues", ctx.id, len(ctx.families), count)
	return ctx, nil
}

func (c *DeviceContext) ID() uuid.UUID {
	return c.id
}

func (c *DeviceContext) Device() native.Device {
	return c.dev
}

func (c *DeviceContext) Config() Config {
	return c.cfg
}

// Families returns the queue families in index order.
func (c *DeviceContext) Families() []QueueFamily {
	return append([]QueueFamily(nil), c.families...)
}

// Family returns the family with the given index.
func (c *DeviceContext) Family(index uint32) (QueueFamily, error) {
	for _, f := range c.families {
		if f.Index == index {
			return f, nil
		}
	}
	return QueueFamily{}, resourcef("queue family %d not present", index)
}

// Queue returns the queue at slot within family.
func (c *DeviceContext) Queue(family, slot uint32) (*Queue, error) {
	queues, ok := c.queues[family]
	if !ok {
		return nil, resourcef("queue family %d not present", family)
	}
	if int(slot) >= len(queues) {
		return nil, resourcef("queue family %d has %d queues, no slot %d", family, len(queues), slot)
	}
	return queues[slot], nil
}

// FindQueue returns the first queue of the lowest-indexed family supporting
// every capability in caps.
func (c *DeviceContext) FindQueue(caps native.QueueFlags) (*Queue, error) {
	for _, f := range c.families {
		if f.Has(caps) {
			return c.queues[f.Index][0], nil
		}
	}
	return nil, resourcef("no queue family supports %s", caps)
}

// WaitIdle waits for every queue of the context to become idle.
func (c *DeviceContext) WaitIdle() error {
	var errs error
	for _, f := range c.families {
		for _, q := range c.queues[f.Index] {
			errs = errors.CombineErrors(errs, q.WaitIdle())
		}
	}
	return errs
}

func (c *DeviceContext) observeWait(what string, d time.Duration) {
	if d > c.cfg.SlowWait {
		c.cfg.WarnLog.Printf("context %s: %s took %v", c.id, what, d)
	}
}
