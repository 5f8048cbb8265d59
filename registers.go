package dbg

import "fmt"

// RegisterEncoding describes how a register's raw bytes should be
// interpreted, per spec §4.4.
type RegisterEncoding int

const (
	EncodingUint RegisterEncoding = iota
	EncodingSint
	EncodingIEEE754
	EncodingVector
)

// GenericRegister is the architecture-independent alias set every
// RegisterContext must be able to resolve, grounded on the
// GetPCRegisterNumber/GetSPRegisterNumber family in
// DNBArchImplX86_64.h/DNBArchImplI386.h.
type GenericRegister int

const (
	RegPC GenericRegister = iota
	RegSP
	RegFP
	RegRA
	RegFlags
)

func (g GenericRegister) String() string {
	switch g {
	case RegPC:
		return "pc"
	case RegSP:
		return "sp"
	case RegFP:
		return "fp"
	case RegRA:
		return "ra"
	case RegFlags:
		return "flags"
	default:
		return fmt.Sprintf("generic(%d)", int(g))
	}
}

// RegisterNumberingKind distinguishes the numbering schemes a debug-info
// producer, a DWARF CFI table, a GDB remote-protocol stub, and the
// native OS ptrace struct disagree on, per spec §4.4's map operation.
type RegisterNumberingKind int

const (
	NumberingCompiler RegisterNumberingKind = iota
	NumberingDWARF
	NumberingGDB
	NumberingGeneric
	NumberingNative
)

// RegisterValue is a fixed-size register value tagged with its encoding.
type RegisterValue struct {
	Bytes    []byte
	Encoding RegisterEncoding
}

// Uint64 interprets v as an unsigned little-endian integer, zero-padded
// or truncated to 8 bytes.
func (v RegisterValue) Uint64() uint64 {
	var out uint64
	for i := 0; i < len(v.Bytes) && i < 8; i++ {
		out |= uint64(v.Bytes[i]) << (8 * uint(i))
	}
	return out
}

// RegisterInfo is static metadata about one addressable register.
type RegisterInfo struct {
	Name     string
	ByteSize int
	Encoding RegisterEncoding
	// Numbers maps each numbering scheme this register is known under to
	// its native number in that scheme, when applicable.
	Numbers map[RegisterNumberingKind]int
}

// RegisterContext is the per-thread register-file abstraction described
// in spec §4.4. Implementations are provided by a NativeBackend; the
// core never interprets register bytes itself beyond the generic
// aliases.
type RegisterContext interface {
	// Registers lists every addressable register's static metadata.
	Registers() []RegisterInfo

	// Read returns the current value of reg (by name). Writes made via
	// Write are visible to a subsequent Read even before Flush.
	Read(reg string) (RegisterValue, error)
	// Write buffers a new value for reg; it takes effect in the OS on
	// the next Flush (or automatically on thread resume, per spec
	// §4.4's invariant).
	Write(reg string, v RegisterValue) error
	// Flush pushes any buffered writes to the OS.
	Flush() error

	// ReadAll saves the full register file as an opaque blob, suitable
	// for WriteAll to restore later (used by expression evaluation to
	// save/restore state around a call).
	ReadAll() ([]byte, error)
	// WriteAll restores a blob previously produced by ReadAll.
	WriteAll(blob []byte) error

	// Alias resolves one of the architecture-independent generic
	// registers (PC, SP, FP, RA, FLAGS) to its register name.
	Alias(g GenericRegister) (string, error)

	// Map translates a register number in the given numbering scheme to
	// the native backend's own numbering.
	Map(kind RegisterNumberingKind, n int) (native int, err error)
}

// PC is a convenience wrapper reading the generic PC alias.
func PC(rc RegisterContext) (uint64, error) {
	name, err := rc.Alias(RegPC)
	if err != nil {
		return 0, err
	}
	v, err := rc.Read(name)
	if err != nil {
		return 0, err
	}
	return v.Uint64(), nil
}

// SetPC is a convenience wrapper writing the generic PC alias and
// flushing immediately, since callers setting PC almost always need it
// to take effect before the next resume decision is made (e.g.
// undoing the trap-opcode PC advance after a breakpoint hit).
func SetPC(rc RegisterContext, addr uint64) error {
	name, err := rc.Alias(RegPC)
	if err != nil {
		return err
	}
	buf := make([]byte, 8)
	for i := range buf {
		buf[i] = byte(addr >> (8 * uint(i)))
	}
	if err := rc.Write(name, RegisterValue{Bytes: buf, Encoding: EncodingUint}); err != nil {
		return err
	}
	return rc.Flush()
}
