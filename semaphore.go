package dieselcmd

import (
	"fmt"

	"github.com/andewx/dieselcmd/native"
)

// Semaphore is a binary semaphore ordering work on the device. It has no
// host-visible state. Pairing every signal with exactly one wait is up to the
// caller.
type Semaphore struct {
	ctx       *DeviceContext
	handle    native.Handle
	destroyed bool
}

func NewSemaphore(ctx *DeviceContext) (*Semaphore, error) {
	if ctx == nil {
		return nil, validationf("NewSemaphore: nil context")
	}
	h, ret := ctx.dev.CreateSemaphore()
	if isError(ret) {
		return nil, newError("CreateSemaphore", ret)
	}
	return &Semaphore{ctx: ctx, handle: h}, nil
}

func (s *Semaphore) Handle() native.Handle {
	return s.handle
}

func (s *Semaphore) String() string {
	return fmt.Sprintf("semaphore %#x", uint64(s.handle))
}

func (s *Semaphore) check(op string) error {
	if s == nil {
		return validationf("%s: nil semaphore", op)
	}
	if s.destroyed {
		return validationf("%s: %s has been destroyed", op, s)
	}
	return nil
}

// Destroy releases the semaphore. It must not be referenced by a pending
// submission.
func (s *Semaphore) Destroy() error {
	if err := s.check("Destroy"); err != nil {
		return err
	}
	s.ctx.dev.DestroySemaphore(s.handle)
	s.destroyed = true
	return nil
}
