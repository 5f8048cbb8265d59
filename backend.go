package dbg

import "context"

// LaunchArgs describes a fresh inferior to start, per spec §4.5's
// do_launch(args, env, flags, stdin, stdout, stderr, cwd).
type LaunchArgs struct {
	Path string
	Args []string
	Env  []string
	Cwd  string

	// StdinPath/StdoutPath/StderrPath redirect the inferior's standard
	// streams to files; empty means "capture through the backend's
	// stdout/stderr Available calls instead".
	StdinPath  string
	StdoutPath string
	StderrPath string

	// DisableASLR requests the backend suppress address-space layout
	// randomization for reproducible breakpoint addresses, when the
	// platform supports it.
	DisableASLR bool
}

// Target supplies the static facts about the executable a NativeBackend
// is driving, per spec §6's consumed Target contract.
type Target struct {
	Architecture  string
	ByteOrder     ByteOrder
	AddressByteSize int
	ImageSearchPath []string
}

// ByteOrder mirrors the two orders a NativeBackend may report; it
// exists as a core-owned type so Target does not need to import
// encoding/binary's ByteOrder interface for a property this small.
type ByteOrder int

const (
	LittleEndian ByteOrder = iota
	BigEndian
)

// DynamicLoader reports the live image set given the image-info
// address the backend returns from GetImageInfoAddress, per spec §6.
type DynamicLoader interface {
	RefreshLoadedImages(imageInfoAddr Address) ([]LoadedImage, error)
}

// LoadedImage is one module the dynamic loader reports as mapped into
// the inferior, used to resolve Section.LoadBase for Address
// translation.
type LoadedImage struct {
	Path     string
	LoadBase uint64
	Token    uintptr
}

// Unwinder produces an unwind plan for stepping across stack frames,
// per spec §6's consumed Unwinder contract.
type Unwinder interface {
	UnwindPlan(ctx context.Context, r AddressRange, thread *Thread) (UnwindPlan, error)
}

// UnwindPlan describes, per code-address offset within the range it
// was computed for, where the canonical frame address and each
// callee-saved register live.
type UnwindPlan struct {
	CFARule      func(offset uint64) (reg string, delta int64)
	RegisterRule func(offset uint64, reg string) (savedReg string, cfaDelta int64, ok bool)
}

// BreakpointOutcome is returned by a backend's breakpoint hooks so the
// core can fall back to its own software implementation.
type BreakpointOutcome int

const (
	// OutcomeHandled means the backend fully handled the request.
	OutcomeHandled BreakpointOutcome = iota
	// OutcomeUnsupported means the backend has no native support and the
	// core should fall back to its own software-breakpoint path, per
	// spec §4.5: "may fall back to the core's software-breakpoint
	// implementation by returning a distinguished unsupported status."
	OutcomeUnsupported
)

// NativeBackend is the OS-specific plugin contract described in spec
// §4.5. Exactly one backend is selected per Process.
type NativeBackend interface {
	// CanDebug reports whether this backend can drive target at all
	// (architecture/OS match).
	CanDebug(target Target) bool

	WillLaunch(args LaunchArgs) error
	DoLaunch(args LaunchArgs) (pid int, err error)
	DidLaunch(pid int)

	WillAttachPID(pid int) error
	DoAttachPID(pid int) error
	DidAttach(pid int)

	WillAttachName(name string, waitForNew bool) error
	DoAttachName(name string, waitForNew bool) (pid int, err error)

	// WillConnectRemote/DoConnectRemote/DidConnectRemote implement
	// connect_remote: handing a remote transport (e.g. a GDB-remote
	// stub URL) to the backend, per spec §4.5/§6. Backends with no
	// remote-transport support return NotSupportedError.
	WillConnectRemote(url string) error
	DoConnectRemote(url string) error
	DidConnectRemote()

	WillResume() error
	// DoResume applies each thread's RunAction (as consumed by
	// Process.Resume's arbitration) and continues the inferior.
	DoResume(actions map[int]RunAction) error
	DidResume()

	WillHalt() error
	// DoHalt requests the inferior stop and reports whether the halt
	// itself caused a stop (false if the inferior was already stopped),
	// per spec §4.6 Halt's "exactly one additional stopped event ...
	// or, if already stopped, none".
	DoHalt() (causedStop bool, err error)

	WillDetach() error
	DoDetach() error

	WillDestroy() error
	DoDestroy() error

	DoSignal(signo int) error

	ReadMemory(addr Address, n int) ([]byte, error)
	WriteMemory(addr Address, data []byte) error
	MaxChunk() int

	EnableBreakpoint(site *BreakpointSite) (BreakpointOutcome, error)
	DisableBreakpoint(site *BreakpointSite) (BreakpointOutcome, error)
	EnableWatchpoint(loc *WatchpointLocation) error
	DisableWatchpoint(loc *WatchpointLocation) error

	AllocateMemory(size int, perms MemoryPerms) (Address, error)
	DeallocateMemory(addr Address) error

	UpdateThreadList() (tids []int, expeditedPC map[int]uint64, newRegisters func(tid int) RegisterContext, err error)
	// RefreshStateAfterStop computes and records each thread's StopInfo
	// (via Thread.SetStopInfo) after a raw stop event, now that threads
	// reflects the just-refreshed tid set. The backend is the only
	// collaborator that knows why the wait/exception primitive actually
	// woke up, so it is responsible for translating that into StopInfo
	// rather than the core guessing from thread state alone.
	RefreshStateAfterStop(threads *ThreadList) error

	GetImageInfoAddress() (Address, error)

	StdoutAvailable() ([]byte, error)
	StderrAvailable() ([]byte, error)
	StdinPut(data []byte) error

	// EventBroadcaster returns the broadcaster the backend's own
	// listener thread (if any) publishes raw exception events on, per
	// spec §4.5's threading note. Nil if the backend has no listener
	// thread of its own.
	EventBroadcaster() *Broadcaster
}

// MemoryPerms is a bitmask of permissions requested for
// NativeBackend.AllocateMemory.
type MemoryPerms int

const (
	PermRead MemoryPerms = 1 << iota
	PermWrite
	PermExec
)
