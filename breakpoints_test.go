package dbg

import (
	"sync"
	"testing"

	. "github.com/jacobsa/ogletest"
)

func TestBreakpoints(t *testing.T) { RunTests(t) }

// fakeMemory is a minimal memoryBackend used to unit-test
// BreakpointSiteList without a real inferior.
type fakeMemory struct {
	mu        sync.Mutex
	data      map[uint64]byte
	allowWrites bool
	failNextWrite bool
}

func newFakeMemory() *fakeMemory {
	return &fakeMemory{data: make(map[uint64]byte), allowWrites: true}
}

func (m *fakeMemory) rawRead(addr Address, n int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	base := addr.LoadAddress()
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[i] = m.data[base+uint64(i)]
	}
	return out, nil
}

func (m *fakeMemory) rawWrite(addr Address, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNextWrite {
		m.failNextWrite = false
		return UnknownAddressError{Addr: addr}
	}
	base := addr.LoadAddress()
	for i, b := range data {
		m.data[base+uint64(i)] = b
	}
	return nil
}

func (m *fakeMemory) privateStateAllowsMutation() bool {
	return m.allowWrites
}

type BreakpointSiteListTest struct {
	mem *fakeMemory
	l   *BreakpointSiteList
}

func init() { RegisterTestSuite(&BreakpointSiteListTest{}) }

func (t *BreakpointSiteListTest) SetUp(ti *TestInfo) {
	t.mem = newFakeMemory()
	t.l = NewBreakpointSiteList(t.mem, []byte{0xCC})
}

func (t *BreakpointSiteListTest) CreateSiteIsIdempotentPerAddress() {
	addr := AbsoluteAddress(0x1000)
	owner1 := OwnerID{BreakpointID: 1, LocationID: 1}
	owner2 := OwnerID{BreakpointID: 2, LocationID: 1}

	id1, err := t.l.CreateSite(owner1, addr, 1, []byte{0xCC}, false)
	AssertEq(nil, err)

	id2, err := t.l.CreateSite(owner2, addr, 1, []byte{0xCC}, false)
	AssertEq(nil, err)

	ExpectEq(id1, id2)

	s, ok := t.l.Get(id1)
	AssertTrue(ok)
	ExpectEq(2, len(s.Owners()))
}

func (t *BreakpointSiteListTest) EnableSavesOriginalAndWritesTrap() {
	addr := AbsoluteAddress(0x2000)
	t.mem.data[0x2000] = 0x90

	id, err := t.l.CreateSite(OwnerID{1, 1}, addr, 1, []byte{0xCC}, false)
	AssertEq(nil, err)

	AssertEq(nil, t.l.Enable(id))

	s, ok := t.l.Get(id)
	AssertTrue(ok)
	ExpectTrue(s.IsEnabled)
	ExpectEq(byte(0x90), s.SavedOpcode[0])
	ExpectEq(byte(0xCC), t.mem.data[0x2000])
}

func (t *BreakpointSiteListTest) DisableRestoresOriginal() {
	addr := AbsoluteAddress(0x3000)
	t.mem.data[0x3000] = 0x55

	id, _ := t.l.CreateSite(OwnerID{1, 1}, addr, 1, []byte{0xCC}, false)
	AssertEq(nil, t.l.Enable(id))
	AssertEq(nil, t.l.Disable(id))

	s, _ := t.l.Get(id)
	ExpectFalse(s.IsEnabled)
	ExpectEq(byte(0x55), t.mem.data[0x3000])
}

func (t *BreakpointSiteListTest) EnableRevertsOnWriteFailure() {
	addr := AbsoluteAddress(0x4000)
	t.mem.data[0x4000] = 0x11
	t.mem.failNextWrite = true

	id, _ := t.l.CreateSite(OwnerID{1, 1}, addr, 1, []byte{0xCC}, false)
	err := t.l.Enable(id)
	AssertNe(nil, err)

	s, _ := t.l.Get(id)
	ExpectFalse(s.IsEnabled)
}

func (t *BreakpointSiteListTest) RemoveOwnerDestroysSiteWhenEmpty() {
	addr := AbsoluteAddress(0x5000)
	owner := OwnerID{1, 1}

	id, _ := t.l.CreateSite(owner, addr, 1, []byte{0xCC}, false)
	AssertEq(nil, t.l.RemoveOwner(owner, id))

	_, ok := t.l.Get(id)
	ExpectFalse(ok)

	_, ok = t.l.FindByAddress(addr)
	ExpectFalse(ok)
}

func (t *BreakpointSiteListTest) RemoveOwnerKeepsSiteWhileOthersRemain() {
	addr := AbsoluteAddress(0x6000)
	owner1 := OwnerID{1, 1}
	owner2 := OwnerID{2, 1}

	id, _ := t.l.CreateSite(owner1, addr, 1, []byte{0xCC}, false)
	_, _ = t.l.CreateSite(owner2, addr, 1, []byte{0xCC}, false)

	AssertEq(nil, t.l.RemoveOwner(owner1, id))

	s, ok := t.l.Get(id)
	AssertTrue(ok)
	ExpectEq(1, len(s.Owners()))
}

func (t *BreakpointSiteListTest) EnableRejectedWhenMutationNotAllowed() {
	t.mem.allowWrites = false
	addr := AbsoluteAddress(0x7000)

	id, _ := t.l.CreateSite(OwnerID{1, 1}, addr, 1, []byte{0xCC}, false)
	err := t.l.Enable(id)
	AssertNe(nil, err)

	s, _ := t.l.Get(id)
	ExpectFalse(s.IsEnabled)
}
