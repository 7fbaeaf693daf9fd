package dieselcmd

import (
	"fmt"
	"strings"

	"github.com/andewx/dieselcmd/native"
	"github.com/cockroachdb/errors"
)

// Error kinds. Every error returned by this package matches exactly one of
// them with errors.Is.
var (
	// ErrValidation marks a precondition violated before any native call.
	ErrValidation = errors.New("validation error")
	// ErrState marks a lifecycle operation attempted in the wrong state.
	ErrState = errors.New("state error")
	// ErrNativeCall marks a non-success result from the native device.
	ErrNativeCall = errors.New("native call error")
	// ErrResource marks a queue or queue family the device does not have.
	ErrResource = errors.New("resource error")
	// ErrTimeout marks a blocking helper whose wait expired.
	ErrTimeout = errors.New("wait timed out")
)

// StateError is returned when a command buffer operation is attempted while
// the buffer is not in one of the Expected states.
type StateError struct {
	Op       string
	Expected []State
	Actual   State
}

func (e *StateError) Error() string {
	want := make([]string, len(e.Expected))
	for i, s := range e.Expected {
		want[i] = s.String()
	}
	return fmt.Sprintf("%s: command buffer is %s, want %s", e.Op, e.Actual, strings.Join(want, " or "))
}

func (e *StateError) Is(target error) bool {
	return target == ErrState
}

// NativeCallError carries the result code of a failed native call.
type NativeCallError struct {
	Op     string
	Result native.Result
}

func (e *NativeCallError) Error() string {
	return fmt.Sprintf("%s: vulkan error: %s (%d)", e.Op, e.Result, int32(e.Result))
}

func (e *NativeCallError) Is(target error) bool {
	return target == ErrNativeCall
}

func isError(ret native.Result) bool {
	return ret != native.Success
}

// newError returns nil on success and a NativeCallError annotated with the
// caller's stack otherwise.
func newError(op string, ret native.Result) error {
	if !isError(ret) {
		return nil
	}
	return errors.Mark(errors.WithStackDepth(&NativeCallError{Op: op, Result: ret}, 1), ErrNativeCall)
}

func stateError(op string, actual State, expected ...State) error {
	return errors.Mark(errors.WithStackDepth(&StateError{Op: op, Expected: expected, Actual: actual}, 1), ErrState)
}

func validationf(format string, args ...interface{}) error {
	return errors.Mark(errors.NewWithDepthf(1, format, args...), ErrValidation)
}

func resourcef(format string, args ...interface{}) error {
	return errors.Mark(errors.NewWithDepthf(1, format, args...), ErrResource)
}
