//go:build linux

package ptrace

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/nativedbg/core"
	"github.com/nativedbg/core/internal/regblob"
)

// amd64Registers is the spec §4.4 RegisterContext backed directly by
// unix.PtraceRegs, grounded on DNBArchImplX86_64.cpp's GPR table.
type amd64Registers struct {
	tid     int
	cur     unix.PtraceRegs
	dirty   bool
	fetched bool
}

func newAMD64Registers(tid int) *amd64Registers {
	return &amd64Registers{tid: tid}
}

var _ dbg.RegisterContext = &amd64Registers{}

type regField struct {
	name     string
	byteSize int
	get      func(*unix.PtraceRegs) uint64
	set      func(*unix.PtraceRegs, uint64)
	dwarf    int
	gdb      int
}

var amd64Fields = []regField{
	{"rax", 8, func(r *unix.PtraceRegs) uint64 { return r.Rax }, func(r *unix.PtraceRegs, v uint64) { r.Rax = v }, 0, 0},
	{"rdx", 8, func(r *unix.PtraceRegs) uint64 { return r.Rdx }, func(r *unix.PtraceRegs, v uint64) { r.Rdx = v }, 1, 3},
	{"rcx", 8, func(r *unix.PtraceRegs) uint64 { return r.Rcx }, func(r *unix.PtraceRegs, v uint64) { r.Rcx = v }, 2, 2},
	{"rbx", 8, func(r *unix.PtraceRegs) uint64 { return r.Rbx }, func(r *unix.PtraceRegs, v uint64) { r.Rbx = v }, 3, 1},
	{"rsi", 8, func(r *unix.PtraceRegs) uint64 { return r.Rsi }, func(r *unix.PtraceRegs, v uint64) { r.Rsi = v }, 4, 4},
	{"rdi", 8, func(r *unix.PtraceRegs) uint64 { return r.Rdi }, func(r *unix.PtraceRegs, v uint64) { r.Rdi = v }, 5, 5},
	{"rbp", 8, func(r *unix.PtraceRegs) uint64 { return r.Rbp }, func(r *unix.PtraceRegs, v uint64) { r.Rbp = v }, 6, 6},
	{"rsp", 8, func(r *unix.PtraceRegs) uint64 { return r.Rsp }, func(r *unix.PtraceRegs, v uint64) { r.Rsp = v }, 7, 7},
	{"r8", 8, func(r *unix.PtraceRegs) uint64 { return r.R8 }, func(r *unix.PtraceRegs, v uint64) { r.R8 = v }, 8, 8},
	{"r9", 8, func(r *unix.PtraceRegs) uint64 { return r.R9 }, func(r *unix.PtraceRegs, v uint64) { r.R9 = v }, 9, 9},
	{"r10", 8, func(r *unix.PtraceRegs) uint64 { return r.R10 }, func(r *unix.PtraceRegs, v uint64) { r.R10 = v }, 10, 10},
	{"r11", 8, func(r *unix.PtraceRegs) uint64 { return r.R11 }, func(r *unix.PtraceRegs, v uint64) { r.R11 = v }, 11, 11},
	{"r12", 8, func(r *unix.PtraceRegs) uint64 { return r.R12 }, func(r *unix.PtraceRegs, v uint64) { r.R12 = v }, 12, 12},
	{"r13", 8, func(r *unix.PtraceRegs) uint64 { return r.R13 }, func(r *unix.PtraceRegs, v uint64) { r.R13 = v }, 13, 13},
	{"r14", 8, func(r *unix.PtraceRegs) uint64 { return r.R14 }, func(r *unix.PtraceRegs, v uint64) { r.R14 = v }, 14, 14},
	{"r15", 8, func(r *unix.PtraceRegs) uint64 { return r.R15 }, func(r *unix.PtraceRegs, v uint64) { r.R15 = v }, 15, 15},
	{"rip", 8, func(r *unix.PtraceRegs) uint64 { return r.Rip }, func(r *unix.PtraceRegs, v uint64) { r.Rip = v }, 16, 16},
	{"eflags", 8, func(r *unix.PtraceRegs) uint64 { return r.Eflags }, func(r *unix.PtraceRegs, v uint64) { r.Eflags = v }, 49, 17},
}

func (c *amd64Registers) field(name string) (regField, bool) {
	for _, f := range amd64Fields {
		if f.name == name {
			return f, true
		}
	}
	return regField{}, false
}

func (c *amd64Registers) ensureFetched() error {
	if c.fetched {
		return nil
	}
	if err := unix.PtraceGetRegs(c.tid, &c.cur); err != nil {
		return fmt.Errorf("PTRACE_GETREGS tid %d: %w", c.tid, err)
	}
	c.fetched = true
	return nil
}

func (c *amd64Registers) Registers() []dbg.RegisterInfo {
	out := make([]dbg.RegisterInfo, 0, len(amd64Fields))
	for _, f := range amd64Fields {
		out = append(out, dbg.RegisterInfo{
			Name:     f.name,
			ByteSize: f.byteSize,
			Encoding: dbg.EncodingUint,
			Numbers: map[dbg.RegisterNumberingKind]int{
				dbg.NumberingDWARF: f.dwarf,
				dbg.NumberingGDB:   f.gdb,
			},
		})
	}
	return out
}

func (c *amd64Registers) Read(name string) (dbg.RegisterValue, error) {
	f, ok := c.field(name)
	if !ok {
		return dbg.RegisterValue{}, fmt.Errorf("unknown register %q", name)
	}
	if err := c.ensureFetched(); err != nil {
		return dbg.RegisterValue{}, err
	}
	v := f.get(&c.cur)
	buf := make([]byte, 8)
	for i := range buf {
		buf[i] = byte(v >> (8 * uint(i)))
	}
	return dbg.RegisterValue{Bytes: buf, Encoding: dbg.EncodingUint}, nil
}

func (c *amd64Registers) Write(name string, v dbg.RegisterValue) error {
	f, ok := c.field(name)
	if !ok {
		return fmt.Errorf("unknown register %q", name)
	}
	if err := c.ensureFetched(); err != nil {
		return err
	}
	var u uint64
	for i := 0; i < len(v.Bytes) && i < 8; i++ {
		u |= uint64(v.Bytes[i]) << (8 * uint(i))
	}
	f.set(&c.cur, u)
	c.dirty = true
	return nil
}

func (c *amd64Registers) Flush() error {
	if !c.dirty {
		return nil
	}
	if err := unix.PtraceSetRegs(c.tid, &c.cur); err != nil {
		return fmt.Errorf("PTRACE_SETREGS tid %d: %w", c.tid, err)
	}
	c.dirty = false
	return nil
}

func (c *amd64Registers) ReadAll() ([]byte, error) {
	if err := c.ensureFetched(); err != nil {
		return nil, err
	}
	size := 0
	for _, f := range amd64Fields {
		size += 4 + len(f.name) + 4 + 8
	}
	b := regblob.NewBuilder(size)
	for _, f := range amd64Fields {
		v := f.get(&c.cur)
		buf := make([]byte, 8)
		for i := range buf {
			buf[i] = byte(v >> (8 * uint(i)))
		}
		b.Put(f.name, buf)
	}
	return b.Bytes(), nil
}

func (c *amd64Registers) WriteAll(blob []byte) error {
	entries, err := regblob.Parse(blob)
	if err != nil {
		return err
	}
	if err := c.ensureFetched(); err != nil {
		return err
	}
	for _, e := range entries {
		f, ok := c.field(e.Name)
		if !ok {
			continue
		}
		var u uint64
		for i := 0; i < len(e.Value) && i < 8; i++ {
			u |= uint64(e.Value[i]) << (8 * uint(i))
		}
		f.set(&c.cur, u)
	}
	c.dirty = true
	return c.Flush()
}

func (c *amd64Registers) Alias(g dbg.GenericRegister) (string, error) {
	switch g {
	case dbg.RegPC:
		return "rip", nil
	case dbg.RegSP:
		return "rsp", nil
	case dbg.RegFP:
		return "rbp", nil
	case dbg.RegFlags:
		return "eflags", nil
	default:
		return "", fmt.Errorf("no amd64 alias for generic register %v", g)
	}
}

func (c *amd64Registers) Map(kind dbg.RegisterNumberingKind, n int) (int, error) {
	for i, f := range amd64Fields {
		switch kind {
		case dbg.NumberingDWARF:
			if f.dwarf == n {
				return i, nil
			}
		case dbg.NumberingGDB:
			if f.gdb == n {
				return i, nil
			}
		}
	}
	return 0, fmt.Errorf("no amd64 register for numbering %v/%d", kind, n)
}
