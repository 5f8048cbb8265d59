// Package ptrace provides the Linux NativeBackend implementation
// (backend_linux.go) and a non-Linux stub (backend_other.go) that
// reports CanDebug false for everything, mirroring the teacher's
// mount_darwin.go / mount_linux.go platform-suffix split.
package ptrace

// TrapOpcode is the x86 INT3 instruction, the software breakpoint
// trap opcode on amd64 and 386, grounded on DNBArchImplI386.cpp's
// g_breakpoint_opcode.
var TrapOpcode = []byte{0xCC}

// MaxMemoryChunk bounds a single /proc/<pid>/mem transfer made by
// ReadMemory; reads larger than this are split by the core's MemoryIO
// per spec §4.3.
const MaxMemoryChunk = 4096

// debugRegisterUserOffset is offsetof(struct user, u_debugreg) on
// linux/amd64, used to address DR0-DR7 via PTRACE_PEEKUSER/POKEUSER
// for hardware watchpoints.
const debugRegisterUserOffset = 848

const wordSize = 8
