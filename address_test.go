package dbg_test

import (
	"testing"

	. "github.com/jacobsa/ogletest"

	"github.com/nativedbg/core"
)

func TestAddress(t *testing.T) { RunTests(t) }

type AddressTest struct{}

func init() { RegisterTestSuite(&AddressTest{}) }

func (t *AddressTest) InvalidAddress() {
	a := dbg.Invalid()
	ExpectFalse(a.IsValid())
	ExpectEq(dbg.InvalidOffset, a.FileAddress())
}

func (t *AddressTest) AbsoluteAddressRoundTrips() {
	a := dbg.AbsoluteAddress(0x1000)
	ExpectTrue(a.IsValid())
	ExpectEq(uint64(0x1000), a.FileAddress())
	ExpectEq(uint64(0x1000), a.LoadAddress())
}

type fakeSection struct {
	fileBase uint64
	loadBase uint64
	mapped   bool
	module   uintptr
}

func (s *fakeSection) FileBase() uint64 { return s.fileBase }
func (s *fakeSection) LoadBase() (uint64, bool) {
	return s.loadBase, s.mapped
}
func (s *fakeSection) Module() uintptr { return s.module }

func (t *AddressTest) SectionRelativeAddressTranslation() {
	sec := &fakeSection{fileBase: 0x400000, loadBase: 0x555000000000, mapped: true, module: 1}
	a := dbg.Address{Section: sec, Offset: 0x20}

	ExpectEq(uint64(0x400020), a.FileAddress())
	ExpectEq(uint64(0x555000000020), a.LoadAddress())
}

func (t *AddressTest) UnmappedSectionHasInvalidLoadAddress() {
	sec := &fakeSection{fileBase: 0x400000, mapped: false}
	a := dbg.Address{Section: sec, Offset: 0x20}

	ExpectEq(dbg.InvalidOffset, a.LoadAddress())
	ExpectEq(uint64(0x400020), a.FileAddress())
}

func (t *AddressTest) RangeContainsAndOverlaps() {
	base := dbg.AbsoluteAddress(0x1000)
	r := dbg.AddressRange{Base: base, ByteSize: 0x10}

	ExpectTrue(r.Contains(dbg.AbsoluteAddress(0x1000)))
	ExpectTrue(r.Contains(dbg.AbsoluteAddress(0x100f)))
	ExpectFalse(r.Contains(dbg.AbsoluteAddress(0x1010)))

	other := dbg.AddressRange{Base: dbg.AbsoluteAddress(0x1008), ByteSize: 0x10}
	ExpectTrue(r.Overlaps(other))

	disjoint := dbg.AddressRange{Base: dbg.AbsoluteAddress(0x2000), ByteSize: 0x10}
	ExpectFalse(r.Overlaps(disjoint))
}
