package dbg_test

import (
	"context"
	"sync"
	"testing"
	"time"

	. "github.com/jacobsa/ogletest"

	"github.com/nativedbg/core"
	"github.com/nativedbg/core/backendutil"
)

func TestProcess(t *testing.T) { RunTests(t) }

// fakeRegs is a minimal single-register RegisterContext: it only knows
// about "pc", which is all Process's internal arbitration ever touches
// directly (via dbg.PC/dbg.SetPC).
type fakeRegs struct {
	mu sync.Mutex
	pc uint64
}

var _ dbg.RegisterContext = &fakeRegs{}

func newFakeRegs(pc uint64) *fakeRegs { return &fakeRegs{pc: pc} }

func encodeUint64(v uint64) dbg.RegisterValue {
	buf := make([]byte, 8)
	for i := range buf {
		buf[i] = byte(v >> (8 * uint(i)))
	}
	return dbg.RegisterValue{Bytes: buf, Encoding: dbg.EncodingUint}
}

func (r *fakeRegs) Registers() []dbg.RegisterInfo {
	return []dbg.RegisterInfo{{Name: "pc", ByteSize: 8, Encoding: dbg.EncodingUint}}
}

func (r *fakeRegs) Read(reg string) (dbg.RegisterValue, error) {
	if reg != "pc" {
		return dbg.RegisterValue{}, dbg.NotSupportedError{Op: "Read"}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return encodeUint64(r.pc), nil
}

func (r *fakeRegs) Write(reg string, v dbg.RegisterValue) error {
	if reg != "pc" {
		return dbg.NotSupportedError{Op: "Write"}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pc = v.Uint64()
	return nil
}

func (r *fakeRegs) Flush() error { return nil }

func (r *fakeRegs) ReadAll() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return encodeUint64(r.pc).Bytes, nil
}

func (r *fakeRegs) WriteAll(blob []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pc = dbg.RegisterValue{Bytes: blob}.Uint64()
	return nil
}

func (r *fakeRegs) Alias(g dbg.GenericRegister) (string, error) {
	if g == dbg.RegPC {
		return "pc", nil
	}
	return "", dbg.NotSupportedError{Op: "Alias"}
}

func (r *fakeRegs) Map(kind dbg.RegisterNumberingKind, n int) (int, error) { return n, nil }

func (r *fakeRegs) advance(delta uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pc += delta
}

func (r *fakeRegs) PC() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pc
}

// fakeBackend is a single-threaded NativeBackend driven entirely by the
// test: it never spawns a real inferior, only records what Process asks
// of it and lets the test inject stop conditions via setStopInfo +
// notifyStop.
type fakeBackend struct {
	backendutil.NotImplementedBackend

	mu        sync.Mutex
	pid       int
	tids      []int
	regs      map[int]*fakeRegs
	mem       map[uint64]byte
	stopInfo  map[int]*dbg.StopInfo
	events    *dbg.Broadcaster
	resumeLog []map[int]dbg.RunAction
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		tids:     []int{1},
		regs:     map[int]*fakeRegs{1: newFakeRegs(0x1000)},
		mem:      make(map[uint64]byte),
		stopInfo: make(map[int]*dbg.StopInfo),
		events:   dbg.NewBroadcaster("fake-backend"),
	}
}

func (b *fakeBackend) CanDebug(target dbg.Target) bool { return true }

func (b *fakeBackend) WillLaunch(args dbg.LaunchArgs) error { return nil }

func (b *fakeBackend) DoLaunch(args dbg.LaunchArgs) (int, error) {
	b.pid = 100
	return b.pid, nil
}

func (b *fakeBackend) DidLaunch(pid int) {}

func (b *fakeBackend) WillResume() error { return nil }

func (b *fakeBackend) DoResume(actions map[int]dbg.RunAction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resumeLog = append(b.resumeLog, actions)
	for tid, a := range actions {
		if a.Kind == dbg.RunActionStep {
			if r, ok := b.regs[tid]; ok {
				r.advance(1)
			}
		}
	}
	return nil
}

func (b *fakeBackend) DidResume() {}

func (b *fakeBackend) WillHalt() error { return nil }

func (b *fakeBackend) DoHalt() (bool, error) { return true, nil }

func (b *fakeBackend) WillDetach() error { return nil }
func (b *fakeBackend) DoDetach() error   { return nil }

func (b *fakeBackend) WillDestroy() error { return nil }
func (b *fakeBackend) DoDestroy() error   { return nil }

func (b *fakeBackend) DoSignal(signo int) error { return nil }

func (b *fakeBackend) ReadMemory(addr dbg.Address, n int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	base := addr.LoadAddress()
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[i] = b.mem[base+uint64(i)]
	}
	return out, nil
}

func (b *fakeBackend) WriteMemory(addr dbg.Address, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	base := addr.LoadAddress()
	for i, v := range data {
		b.mem[base+uint64(i)] = v
	}
	return nil
}

func (b *fakeBackend) MaxChunk() int { return 4096 }

func (b *fakeBackend) EnableWatchpoint(loc *dbg.WatchpointLocation) error  { return nil }
func (b *fakeBackend) DisableWatchpoint(loc *dbg.WatchpointLocation) error { return nil }

func (b *fakeBackend) UpdateThreadList() ([]int, map[int]uint64, func(int) dbg.RegisterContext, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	tids := append([]int(nil), b.tids...)
	expedited := make(map[int]uint64, len(tids))
	for _, tid := range tids {
		expedited[tid] = b.regs[tid].PC()
	}
	newRegisters := func(tid int) dbg.RegisterContext { return b.regs[tid] }
	return tids, expedited, newRegisters, nil
}

func (b *fakeBackend) RefreshStateAfterStop(threads *dbg.ThreadList) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range threads.All() {
		if info, ok := b.stopInfo[t.Tid]; ok {
			t.SetStopInfo(info)
		}
	}
	return nil
}

func (b *fakeBackend) EventBroadcaster() *dbg.Broadcaster { return b.events }

func (b *fakeBackend) setStopInfo(tid int, info *dbg.StopInfo) {
	b.mu.Lock()
	b.stopInfo[tid] = info
	b.mu.Unlock()
}

// notifyStop wakes Process's private-state listener; what it finds once
// woken comes entirely from RefreshStateAfterStop/setStopInfo, matching
// the real backend's division of labor (the waiter only knows *that*
// something happened, never *why*).
func (b *fakeBackend) notifyStop() {
	b.events.Broadcast(dbg.Event{Type: dbg.EventStateChanged}, false)
}

type ProcessTest struct {
	backend *fakeBackend
	clock   *fakeClock
	p       *dbg.Process
}

func init() { RegisterTestSuite(&ProcessTest{}) }

func (t *ProcessTest) SetUp(ti *TestInfo) {
	t.backend = newFakeBackend()
	t.clock = &fakeClock{}
	t.p = dbg.NewProcess(t.backend, dbg.Target{Architecture: "amd64"}, []byte{0xCC}, t.clock)
	AssertEq(nil, t.p.Launch(context.Background(), dbg.LaunchArgs{Path: "/bin/fake"}))
}

// SetAndHitBreakpointReportsStop covers scenario 1: a software
// breakpoint site is created and enabled, the inferior is resumed, and
// a simulated trap at that site surfaces exactly one public stopped
// event naming the site.
func (t *ProcessTest) SetAndHitBreakpointReportsStop() {
	owner := dbg.OwnerID{BreakpointID: 1, LocationID: 1}
	addr := dbg.AbsoluteAddress(0x1000)
	id, err := t.p.Breakpoints.CreateSite(owner, addr, 1, []byte{0xCC}, false)
	AssertEq(nil, err)
	AssertEq(nil, t.p.Breakpoints.Enable(id))

	listener := t.p.PublicListener(dbg.EventStateChanged)

	AssertEq(nil, t.p.Resume(context.Background()))

	t.backend.setStopInfo(1, &dbg.StopInfo{Kind: dbg.StopReasonBreakpoint, BreakpointID: id})
	t.backend.notifyStop()

	ev, ok := listener.Wait(time.Second)
	AssertTrue(ok)
	ExpectEq(dbg.StateStopped, ev.StateChanged.NewState)

	thread, ok := t.p.Threads.Get(1)
	AssertTrue(ok)
	info := thread.StopInfo()
	AssertTrue(info != nil)
	ExpectEq(dbg.StopReasonBreakpoint, info.Kind)
	ExpectEq(id, info.BreakpointID)
}

// ReadMemoryMasksEnabledBreakpoint covers scenario 2: reading across an
// enabled software site returns the original instruction byte, even
// though the inferior's own memory still holds the trap opcode.
func (t *ProcessTest) ReadMemoryMasksEnabledBreakpoint() {
	addr := dbg.AbsoluteAddress(0x2000)
	t.backend.mem[0x2000] = 0x90

	owner := dbg.OwnerID{BreakpointID: 2, LocationID: 1}
	id, err := t.p.Breakpoints.CreateSite(owner, addr, 1, []byte{0xCC}, false)
	AssertEq(nil, err)
	AssertEq(nil, t.p.Breakpoints.Enable(id))

	out, err := t.p.Memory.Read(addr, 1)
	AssertEq(nil, err)
	ExpectEq(byte(0x90), out[0])
	ExpectEq(byte(0xCC), t.backend.mem[0x2000])
}

// StepOverEnabledBreakpointAdvancesPastIt covers scenario 3: a thread
// parked on an enabled site that is asked to single-step is dodged past
// the trap opcode invisibly, then continues with its own requested
// step, leaving the site enabled again afterward.
func (t *ProcessTest) StepOverEnabledBreakpointAdvancesPastIt() {
	startPC := uint64(0x1000)

	owner := dbg.OwnerID{BreakpointID: 3, LocationID: 1}
	id, err := t.p.Breakpoints.CreateSite(owner, dbg.AbsoluteAddress(startPC), 1, []byte{0xCC}, false)
	AssertEq(nil, err)
	AssertEq(nil, t.p.Breakpoints.Enable(id))

	thread, ok := t.p.Threads.Get(1)
	AssertTrue(ok)
	thread.SetRunAction(dbg.RunAction{Kind: dbg.RunActionStep})

	AssertEq(nil, t.p.Resume(context.Background()))

	ExpectEq(startPC+2, t.backend.regs[1].PC())

	site, ok := t.p.Breakpoints.Get(id)
	AssertTrue(ok)
	ExpectTrue(site.IsEnabled)
}

// SignalSuppressedThenHaltReportsRestarted covers scenarios 4 and 5
// together: a signal configured ShouldStop=false never produces a
// public event and the process silently auto-resumes, but a subsequent
// explicit Halt reports exactly one stopped event whose Restarted flag
// preserves that history and whose Interrupted flag reflects the Halt
// itself.
func (t *ProcessTest) SignalSuppressedThenHaltReportsRestarted() {
	const sigUSR1 = 10
	t.p.Signals().Set(sigUSR1, dbg.SignalAction{Name: "SIGUSR1", ShouldStop: false, ShouldSuppress: true})

	listener := t.p.PublicListener(dbg.EventStateChanged | dbg.EventInterrupt)

	AssertEq(nil, t.p.Resume(context.Background()))

	t.backend.setStopInfo(1, &dbg.StopInfo{Kind: dbg.StopReasonSignal, Signal: sigUSR1})
	t.backend.notifyStop()

	_, ok := listener.Wait(100 * time.Millisecond)
	ExpectFalse(ok)

	AssertEq(nil, t.p.Halt(context.Background()))

	ev, ok := listener.Wait(time.Second)
	AssertTrue(ok)
	AssertTrue(ev.StateChanged != nil)
	ExpectTrue(ev.StateChanged.Interrupted)
	ExpectTrue(ev.StateChanged.Restarted)
}

// WatchpointOnWriteReportsStop covers scenario 6: a hardware watchpoint
// armed for writes reports a stop naming the watchpoint once the
// inferior's write is observed.
func (t *ProcessTest) WatchpointOnWriteReportsStop() {
	addr := dbg.AbsoluteAddress(0x4000)
	wid, err := t.p.Watchpoints.Create(addr, 4, dbg.WatchWrite)
	AssertEq(nil, err)

	listener := t.p.PublicListener(dbg.EventStateChanged)

	AssertEq(nil, t.p.Resume(context.Background()))

	t.backend.setStopInfo(1, &dbg.StopInfo{Kind: dbg.StopReasonWatchpoint, WatchpointID: wid})
	t.backend.notifyStop()

	ev, ok := listener.Wait(time.Second)
	AssertTrue(ok)
	ExpectEq(dbg.StateStopped, ev.StateChanged.NewState)

	thread, ok := t.p.Threads.Get(1)
	AssertTrue(ok)
	info := thread.StopInfo()
	AssertTrue(info != nil)
	ExpectEq(dbg.StopReasonWatchpoint, info.Kind)
	ExpectEq(wid, info.WatchpointID)
}
