package dieselcmd

import "github.com/andewx/dieselcmd/native"

// Dependency makes a submission wait on Semaphore before executing Stages.
type Dependency struct {
	Semaphore *Semaphore
	Stages    native.PipelineStages
}

// WorkBuilder accumulates the parts of a Work. Each method validates its
// arguments immediately and leaves the builder unchanged on error.
type WorkBuilder struct {
	pool    *CommandPool
	buffers []CommandBuffer
	waits   []Dependency
	signals []*Semaphore
}

// NewWorkBuilder starts a Work whose buffers all belong to the queue family
// of pool.
func NewWorkBuilder(pool *CommandPool) *WorkBuilder {
	return &WorkBuilder{pool: pool}
}

// Add appends buffers in submission order. Each must be Executable, live and
// of the pool's queue family.
func (w *WorkBuilder) Add(buffers ...CommandBuffer) error {
	if err := w.pool.check("WorkBuilder.Add"); err != nil {
		return err
	}
	for i, b := range buffers {
		if err := checkSubmittable("WorkBuilder.Add", b, w.pool); err != nil {
			return err
		}
		for _, prev := range w.buffers {
			if prev == b {
				return validationf("WorkBuilder.Add: %s added twice", b)
			}
		}
		for _, prev := range buffers[:i] {
			if prev == b {
				return validationf("WorkBuilder.Add: %s added twice", b)
			}
		}
	}
	w.buffers = append(w.buffers, buffers...)
	return nil
}

// Wait adds a dependency on sem at stages. A semaphore can be waited on once
// per Work.
func (w *WorkBuilder) Wait(sem *Semaphore, stages native.PipelineStages) error {
	if err := w.checkSemaphore("WorkBuilder.Wait", sem); err != nil {
		return err
	}
	if stages == 0 {
		return validationf("WorkBuilder.Wait: empty stage mask for %s", sem)
	}
	for _, d := range w.waits {
		if d.Semaphore == sem {
			return validationf("WorkBuilder.Wait: %s is already waited on", sem)
		}
	}
	w.waits = append(w.waits, Dependency{Semaphore: sem, Stages: stages})
	return nil
}

// Signal adds semaphores to signal on completion. Adding a semaphore that is
// already signalled by this Work has no effect.
func (w *WorkBuilder) Signal(sems ...*Semaphore) error {
	for _, s := range sems {
		if err := w.checkSemaphore("WorkBuilder.Signal", s); err != nil {
			return err
		}
	}
	for _, s := range sems {
		if !containsSemaphore(w.signals, s) {
			w.signals = append(w.signals, s)
		}
	}
	return nil
}

// Build returns the immutable Work. It fails if no buffers were added or a
// semaphore is both waited on and signalled.
func (w *WorkBuilder) Build() (*Work, error) {
	if err := w.pool.check("WorkBuilder.Build"); err != nil {
		return nil, err
	}
	if len(w.buffers) == 0 {
		return nil, validationf("WorkBuilder.Build: no command buffers")
	}
	for _, d := range w.waits {
		if containsSemaphore(w.signals, d.Semaphore) {
			return nil, validationf("WorkBuilder.Build: %s is both waited on and signalled", d.Semaphore)
		}
	}
	return &Work{
		pool:    w.pool,
		buffers: append([]CommandBuffer(nil), w.buffers...),
		waits:   append([]Dependency(nil), w.waits...),
		signals: append([]*Semaphore(nil), w.signals...),
	}, nil
}

func (w *WorkBuilder) checkSemaphore(op string, sem *Semaphore) error {
	if err := w.pool.check(op); err != nil {
		return err
	}
	if err := sem.check(op); err != nil {
		return err
	}
	if sem.ctx != w.pool.ctx {
		return validationf("%s: %s belongs to another device context", op, sem)
	}
	return nil
}

func containsSemaphore(sems []*Semaphore, s *Semaphore) bool {
	for _, x := range sems {
		if x == s {
			return true
		}
	}
	return false
}

// checkSubmittable reports whether b can be submitted with buffers of pool.
func checkSubmittable(op string, b CommandBuffer, pool *CommandPool) error {
	e, err := b.live(op)
	if err != nil {
		return err
	}
	if e.level != native.LevelPrimary {
		return validationf("%s: %s is a secondary buffer", op, b)
	}
	if b.pool.ctx != pool.ctx {
		return validationf("%s: %s belongs to another device context", op, b)
	}
	if b.pool.family.Index != pool.family.Index {
		return validationf("%s: %s belongs to queue family %d, want %d", op, b, b.pool.family.Index, pool.family.Index)
	}
	if e.state != Executable {
		return validationf("%s: %s is %s, want %s", op, b, e.state, Executable)
	}
	return nil
}

// Work is one submission unit: buffers executed in order after the wait
// dependencies are met, signalling the signal semaphores on completion.
type Work struct {
	pool    *CommandPool
	buffers []CommandBuffer
	waits   []Dependency
	signals []*Semaphore
}

func (w *Work) Pool() *CommandPool {
	return w.pool
}

// Family returns the queue family index the Work must be submitted to.
func (w *Work) Family() uint32 {
	return w.pool.family.Index
}

func (w *Work) Buffers() []CommandBuffer {
	return append([]CommandBuffer(nil), w.buffers...)
}

func (w *Work) Waits() []Dependency {
	return append([]Dependency(nil), w.waits...)
}

func (w *Work) Signals() []*Semaphore {
	return append([]*Semaphore(nil), w.signals...)
}

// Descriptor returns the native submit descriptor. The buffers must still be
// live and Executable and the semaphores not destroyed.
func (w *Work) Descriptor() (native.SubmitInfo, error) {
	info := native.SubmitInfo{
		CommandBuffers:   make([]native.Handle, len(w.buffers)),
		WaitSemaphores:   make([]native.Handle, len(w.waits)),
		WaitStages:       make([]native.PipelineStages, len(w.waits)),
		SignalSemaphores: make([]native.Handle, len(w.signals)),
	}
	for i, b := range w.buffers {
		if err := checkSubmittable("Work.Descriptor", b, w.pool); err != nil {
			return native.SubmitInfo{}, err
		}
		info.CommandBuffers[i] = b.Handle()
	}
	for i, d := range w.waits {
		if err := d.Semaphore.check("Work.Descriptor"); err != nil {
			return native.SubmitInfo{}, err
		}
		info.WaitSemaphores[i] = d.Semaphore.handle
		info.WaitStages[i] = d.Stages
	}
	for i, s := range w.signals {
		if err := s.check("Work.Descriptor"); err != nil {
			return native.SubmitInfo{}, err
		}
		info.SignalSemaphores[i] = s.handle
	}
	return info, nil
}

// WorkBatch is an ordered list of Work submitted with one native call. All
// of it must target the same queue family.
type WorkBatch struct {
	works []*Work
}

func NewWorkBatch(works ...*Work) *WorkBatch {
	return &WorkBatch{works: append([]*Work(nil), works...)}
}

func (b *WorkBatch) Add(works ...*Work) {
	b.works = append(b.works, works...)
}

func (b *WorkBatch) Len() int {
	return len(b.works)
}

func (b *WorkBatch) Works() []*Work {
	return append([]*Work(nil), b.works...)
}

// Family returns the queue family shared by every Work of the batch. All of
// the batch must also come from one device context.
func (b *WorkBatch) Family() (uint32, error) {
	if len(b.works) == 0 {
		return 0, validationf("WorkBatch: empty batch")
	}
	for i, w := range b.works {
		if w == nil {
			return 0, validationf("WorkBatch: work %d is nil", i)
		}
		first := b.works[0]
		if w.pool.ctx != first.pool.ctx {
			return 0, validationf("WorkBatch: work %d belongs to another device context", i)
		}
		if w.Family() != first.Family() {
			return 0, validationf("WorkBatch: work %d targets queue family %d, want %d", i, w.Family(), first.Family())
		}
	}
	return b.works[0].Family(), nil
}

// Descriptors validates the batch and returns one submit descriptor per Work.
func (b *WorkBatch) Descriptors() ([]native.SubmitInfo, error) {
	if _, err := b.Family(); err != nil {
		return nil, err
	}
	infos := make([]native.SubmitInfo, len(b.works))
	for i, w := range b.works {
		info, err := w.Descriptor()
		if err != nil {
			return nil, err
		}
		infos[i] = info
	}
	return infos, nil
}
