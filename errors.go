package dbg

import "fmt"

// InvalidStateError is returned when an operation is attempted in a
// process state that does not permit it (e.g. writing memory while the
// private state is "running").
type InvalidStateError struct {
	Op    string
	State State
}

func (e InvalidStateError) Error() string {
	return fmt.Sprintf("%s: not valid in state %v", e.Op, e.State)
}

// BackendError wraps a platform-specific failure reported by a
// NativeBackend, along with the raw platform error code if one is
// available.
type BackendError struct {
	Op       string
	Code     int
	Underlying error
}

func (e BackendError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("%s: backend error (code %d): %v", e.Op, e.Code, e.Underlying)
	}
	return fmt.Sprintf("%s: backend error (code %d)", e.Op, e.Code)
}

func (e BackendError) Unwrap() error { return e.Underlying }

// MemoryError is returned when a memory read or write fails at or after
// a partial transfer. Offset is the number of bytes of the request that
// were successfully transferred before the failure.
type MemoryError struct {
	Op     string
	Addr   Address
	Offset int
	Err    error
}

func (e MemoryError) Error() string {
	return fmt.Sprintf("%s at %v: failed after %d bytes: %v", e.Op, e.Addr, e.Offset, e.Err)
}

func (e MemoryError) Unwrap() error { return e.Err }

// NotSupportedError is returned when the active NativeBackend lacks the
// requested capability.
type NotSupportedError struct {
	Op string
}

func (e NotSupportedError) Error() string {
	return fmt.Sprintf("%s: not supported by this backend", e.Op)
}

// TimeoutError is returned when a bounded wait elapses before its
// condition is satisfied.
type TimeoutError struct {
	Op string
}

func (e TimeoutError) Error() string {
	return fmt.Sprintf("%s: timed out", e.Op)
}

// UnknownThreadError is returned when a thread ID does not resolve to any
// thread currently known to the process.
type UnknownThreadError struct {
	Tid int
}

func (e UnknownThreadError) Error() string {
	return fmt.Sprintf("unknown thread id %d", e.Tid)
}

// UnknownBreakpointError is returned when a breakpoint site ID does not
// resolve.
type UnknownBreakpointError struct {
	ID BreakpointSiteID
}

func (e UnknownBreakpointError) Error() string {
	return fmt.Sprintf("unknown breakpoint site %d", e.ID)
}

// UnknownAddressError is returned when an address does not resolve to
// anything the caller expected (e.g. no breakpoint site there).
type UnknownAddressError struct {
	Addr Address
}

func (e UnknownAddressError) Error() string {
	return fmt.Sprintf("unknown address %v", e.Addr)
}

// BreakpointConflictError is returned by BreakpointSiteList.Enable when
// writing a software site's trap opcode fails; the site stays disabled.
// Want is the trap opcode and Got the original bytes read before the
// write. No tamper check is made: Enable does not compare the original
// bytes with what the user wrote, and Disable writes SavedOpcode back
// without reading the bytes it replaces.
type BreakpointConflictError struct {
	ID   BreakpointSiteID
	Addr Address
	Want []byte
	Got  []byte
}

func (e BreakpointConflictError) Error() string {
	return fmt.Sprintf(
		"breakpoint conflict at site %d (%v): expected %x, found %x",
		e.ID, e.Addr, e.Want, e.Got)
}
