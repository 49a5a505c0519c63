package isoalloc

import (
	"fmt"
	"runtime"

	"github.com/prataprc/isoalloc/lib"
	alloclog "github.com/prataprc/isoalloc/log"
)

// AbortError is the payload of a panic raised for any detected
// memory-safety violation, VM failure, or fixed-capacity exhaustion.
// The allocator has no recoverable path for these: a security
// allocator that tried to keep running after finding a corrupted
// bitmap would defeat its own purpose. Stack carries the goroutine's
// call path at the moment the corruption was detected, so a report
// can be traced back to the request that triggered it.
type AbortError struct {
	Reason string
	Stack  string
}

func (e *AbortError) Error() string {
	return "isoalloc: abort: " + e.Reason
}

// abort logs a structured diagnostic and panics with an *AbortError.
// Call sites name whichever of the zone index, chunk address, and
// observed-vs-expected values apply to the fault they detected. The
// logged trace drops the first four lines of runtime.Stack's output -
// the goroutine header, abort's own frame, and the function-name line
// of abort's caller - so the first line a reader sees is the source
// position of the call that detected the fault.
func abort(format string, args ...interface{}) {
	reason := fmt.Sprintf(format, args...)

	buf := make([]byte, 8192)
	n := runtime.Stack(buf, false)
	stack := lib.GetStacktrace(2, buf[:n])

	alloclog.Abortf("isoalloc: %s\n%s", reason, stack)
	panic(&AbortError{Reason: reason, Stack: stack})
}
