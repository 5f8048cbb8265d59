package dbg

import "fmt"

// InvalidOffset is the sentinel offset marking an invalid Address.
const InvalidOffset uint64 = ^uint64(0)

// Section is the minimal contract Address needs from a module's section
// table: a file-relative base and, once the dynamic loader has resolved
// it, a load-time base for a given target. Resolving sections against a
// running target is a dynamic-loader-plugin responsibility (spec §6);
// this core only consumes the result.
type Section interface {
	// FileBase is this section's base address as stored on disk.
	FileBase() uint64
	// LoadBase returns the section's runtime base address and true once
	// the dynamic loader has resolved it for the given target, or
	// (0, false) if it is not currently mapped.
	LoadBase() (uint64, bool)
	// Module identifies the owning module, used for Address's total
	// order across modules.
	Module() uintptr
}

// Address is a section-qualified address: either (section, offset) or,
// when Section is nil, an absolute offset. Per spec §3, an Address is
// valid iff Offset != InvalidOffset.
type Address struct {
	Section Section
	Offset  uint64
}

// AbsoluteAddress builds a valid Address with no section.
func AbsoluteAddress(offset uint64) Address {
	return Address{Offset: offset}
}

// Invalid returns the sentinel invalid Address.
func Invalid() Address {
	return Address{Offset: InvalidOffset}
}

// IsValid reports whether a carries a real offset.
func (a Address) IsValid() bool {
	return a.Offset != InvalidOffset
}

// FileAddress returns the address as stored in the on-disk image:
// section.FileBase()+Offset, or just Offset when there is no section.
func (a Address) FileAddress() uint64 {
	if !a.IsValid() {
		return InvalidOffset
	}
	if a.Section == nil {
		return a.Offset
	}
	return a.Section.FileBase() + a.Offset
}

// LoadAddress returns the runtime virtual address of a, or InvalidOffset
// if a is invalid or its section is not currently mapped into the target.
func (a Address) LoadAddress() uint64 {
	if !a.IsValid() {
		return InvalidOffset
	}
	if a.Section == nil {
		return a.Offset
	}
	base, ok := a.Section.LoadBase()
	if !ok {
		return InvalidOffset
	}
	return base + a.Offset
}

// Compare implements the total order described in spec §3: addresses
// within the same module compare by file offset; addresses from
// different modules compare by module identity first. The result is a
// total order suitable for use as a map/sort key, not a semantically
// meaningful "less than" across modules.
func (a Address) Compare(b Address) int {
	am, bm := a.moduleKey(), b.moduleKey()
	if am != bm {
		if am < bm {
			return -1
		}
		return 1
	}
	af, bf := a.FileAddress(), b.FileAddress()
	switch {
	case af < bf:
		return -1
	case af > bf:
		return 1
	default:
		return 0
	}
}

func (a Address) moduleKey() uintptr {
	if a.Section == nil {
		return 0
	}
	return a.Section.Module()
}

func (a Address) String() string {
	if !a.IsValid() {
		return "<invalid address>"
	}
	if a.Section == nil {
		return fmt.Sprintf("0x%x", a.Offset)
	}
	return fmt.Sprintf("0x%x+0x%x", a.Section.Module(), a.Offset)
}

// AddressRange is a half-open [Base, Base+ByteSize) range sharing Base's
// section.
type AddressRange struct {
	Base     Address
	ByteSize uint64
}

// Contains reports whether addr falls within r, comparing load
// addresses.
func (r AddressRange) Contains(addr Address) bool {
	lo := r.Base.LoadAddress()
	if lo == InvalidOffset {
		return false
	}
	a := addr.LoadAddress()
	if a == InvalidOffset {
		return false
	}
	return a >= lo && a < lo+r.ByteSize
}

// Overlaps reports whether r and o's load-address ranges intersect.
func (r AddressRange) Overlaps(o AddressRange) bool {
	rlo := r.Base.LoadAddress()
	olo := o.Base.LoadAddress()
	if rlo == InvalidOffset || olo == InvalidOffset {
		return false
	}
	rhi := rlo + r.ByteSize
	ohi := olo + o.ByteSize
	return rlo < ohi && olo < rhi
}

func (r AddressRange) String() string {
	return fmt.Sprintf("[%v, +0x%x)", r.Base, r.ByteSize)
}
