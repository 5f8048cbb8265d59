// Package dbg implements the inferior-control engine at the core of a
// native-code debugger: it attaches to or launches a target process,
// mediates every stop/resume transition, manages software breakpoints,
// reads and writes memory and registers, and exposes a thread-safe event
// stream to clients.
//
// The primary elements of interest are:
//
//   - Process, the orchestrator: launch/attach, resume/halt/detach/
//     destroy, and the private-state listener goroutine that turns
//     backend exceptions into public state-changed events.
//
//   - NativeBackend, the platform plugin contract. backendutil.
//     NotImplementedBackend may be embedded to obtain default
//     NotSupported implementations for methods a given backend doesn't
//     implement.
//
//   - Broadcaster / Listener / Event, the client-facing notification
//     mechanism.
//
// Symbol resolution, DWARF/unwind parsing, source display, script
// interpreters, command grammar, and remote wire-protocol framing are
// the responsibility of collaborators outside this package; only the
// contracts they consume (DynamicLoader, Unwinder, SignalTable) are
// declared here.
package dbg
