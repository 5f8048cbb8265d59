package dbg_test

import (
	"testing"
	"time"

	. "github.com/jacobsa/ogletest"

	"github.com/nativedbg/core"
)

func TestMemory(t *testing.T) { RunTests(t) }

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

type fakeRawBackend struct {
	data     map[uint64]byte
	maxChunk int
	reads    int
}

func newFakeRawBackend() *fakeRawBackend {
	return &fakeRawBackend{data: make(map[uint64]byte), maxChunk: 4}
}

func (b *fakeRawBackend) ReadMemory(addr dbg.Address, n int) ([]byte, error) {
	b.reads++
	base := addr.LoadAddress()
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[i] = b.data[base+uint64(i)]
	}
	return out, nil
}

func (b *fakeRawBackend) WriteMemory(addr dbg.Address, data []byte) error {
	base := addr.LoadAddress()
	for i, v := range data {
		b.data[base+uint64(i)] = v
	}
	return nil
}

func (b *fakeRawBackend) MaxChunk() int { return b.maxChunk }

type fakeMasker struct {
	sites []*dbg.BreakpointSite
}

func (m *fakeMasker) All() []*dbg.BreakpointSite { return m.sites }

type MemoryIOTest struct {
	backend *fakeRawBackend
	masker  *fakeMasker
	mem     *dbg.MemoryIO
}

func init() { RegisterTestSuite(&MemoryIOTest{}) }

func (t *MemoryIOTest) SetUp(ti *TestInfo) {
	t.backend = newFakeRawBackend()
	t.masker = &fakeMasker{}
	t.mem = dbg.NewMemoryIO(t.backend, t.masker, &fakeClock{}, 16)
}

func (t *MemoryIOTest) ReadReturnsWrittenBytes() {
	t.backend.data[0x1000] = 0xAB
	t.backend.data[0x1001] = 0xCD

	out, err := t.mem.Read(dbg.AbsoluteAddress(0x1000), 2)
	AssertEq(nil, err)
	ExpectEq(byte(0xAB), out[0])
	ExpectEq(byte(0xCD), out[1])
}

func (t *MemoryIOTest) ReadUsesCacheOnSecondCall() {
	t.backend.data[0x1000] = 0x01
	_, err := t.mem.Read(dbg.AbsoluteAddress(0x1000), 1)
	AssertEq(nil, err)
	first := t.backend.reads

	_, err = t.mem.Read(dbg.AbsoluteAddress(0x1000), 1)
	AssertEq(nil, err)
	ExpectEq(first, t.backend.reads)
}

func (t *MemoryIOTest) WriteInvalidatesCache() {
	t.backend.data[0x1000] = 0x01
	_, err := t.mem.Read(dbg.AbsoluteAddress(0x1000), 1)
	AssertEq(nil, err)

	AssertEq(nil, t.mem.Write(dbg.AbsoluteAddress(0x1000), []byte{0x02}))

	out, err := t.mem.Read(dbg.AbsoluteAddress(0x1000), 1)
	AssertEq(nil, err)
	ExpectEq(byte(0x02), out[0])
}

func (t *MemoryIOTest) ReadMasksEnabledSoftwareSite() {
	t.backend.data[0x2000] = 0xCC // trap opcode resident in "inferior" memory
	t.masker.sites = []*dbg.BreakpointSite{
		{
			LoadAddr:    dbg.AbsoluteAddress(0x2000),
			ByteSize:    1,
			TrapOpcode:  []byte{0xCC},
			SavedOpcode: []byte{0x90},
			Type:        dbg.SiteSoftware,
			IsEnabled:   true,
		},
	}

	out, err := t.mem.Read(dbg.AbsoluteAddress(0x2000), 1)
	AssertEq(nil, err)
	ExpectEq(byte(0x90), out[0])
}

func (t *MemoryIOTest) WriteRedirectsIntoSavedOpcode() {
	t.backend.data[0x3000] = 0xCC
	site := &dbg.BreakpointSite{
		LoadAddr:    dbg.AbsoluteAddress(0x3000),
		ByteSize:    1,
		TrapOpcode:  []byte{0xCC},
		SavedOpcode: []byte{0x90},
		Type:        dbg.SiteSoftware,
		IsEnabled:   true,
	}
	t.masker.sites = []*dbg.BreakpointSite{site}

	AssertEq(nil, t.mem.Write(dbg.AbsoluteAddress(0x3000), []byte{0x42}))

	ExpectEq(byte(0xCC), t.backend.data[0x3000]) // trap opcode stays resident
	ExpectEq(byte(0x42), site.SavedOpcode[0])     // caller's byte lands in saved opcode
}

func (t *MemoryIOTest) ChunkedReadSpansMultipleBackendChunks() {
	for i := 0; i < 10; i++ {
		t.backend.data[0x1000+uint64(i)] = byte(i)
	}

	out, err := t.mem.Read(dbg.AbsoluteAddress(0x1000), 10)
	AssertEq(nil, err)
	AssertEq(10, len(out))
	for i := 0; i < 10; i++ {
		ExpectEq(byte(i), out[i])
	}
}

func (t *MemoryIOTest) FlushForcesRefetch() {
	t.backend.data[0x1000] = 0x01
	_, err := t.mem.Read(dbg.AbsoluteAddress(0x1000), 1)
	AssertEq(nil, err)

	t.backend.data[0x1000] = 0x02
	t.mem.Flush(dbg.AbsoluteAddress(0x1000), 1)

	out, err := t.mem.Read(dbg.AbsoluteAddress(0x1000), 1)
	AssertEq(nil, err)
	ExpectEq(byte(0x02), out[0])
}
