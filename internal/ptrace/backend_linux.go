//go:build linux

package ptrace

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/nativedbg/core"
	"github.com/nativedbg/core/backendutil"
)

// Backend is the linux/amd64 NativeBackend, grounded on ptrace(2) and
// the x86_64 debug-register ABI. It embeds backendutil.
// NotImplementedBackend so EnableBreakpoint/DisableBreakpoint default
// to dbg.OutcomeUnsupported: software breakpoints are inserted by the
// core's BreakpointSiteList directly through ReadMemory/WriteMemory,
// per spec §4.5's fallback contract.
type Backend struct {
	backendutil.NotImplementedBackend

	mu      sync.Mutex
	pid     int
	tids    map[int]bool
	stdoutR *os.File
	stderrR *os.File
	stdinW  *os.File

	// lastStatus records each tid's most recent wait4 status, consulted
	// by RefreshStateAfterStop to compute StopInfo now that the wait
	// itself has already returned.
	lastStatus map[int]unix.WaitStatus

	events *dbg.Broadcaster
	waitWG sync.WaitGroup
	stop   chan struct{}
}

// New constructs an unattached Backend.
func New() *Backend {
	return &Backend{
		tids:       make(map[int]bool),
		lastStatus: make(map[int]unix.WaitStatus),
		events:     dbg.NewBroadcaster("ptrace-backend"),
		stop:       make(chan struct{}),
	}
}

func (b *Backend) CanDebug(target dbg.Target) bool {
	return target.Architecture == "amd64" || target.Architecture == "x86_64"
}

func (b *Backend) WillLaunch(args dbg.LaunchArgs) error { return nil }

// DoLaunch starts args.Path under ptrace. Each standard stream whose
// path is empty is connected to a pipe read by StdoutAvailable/
// StderrAvailable or written by StdinPut. A non-empty StdinPath,
// StdoutPath or StderrPath is not opened: that stream is connected to
// the null device instead. DisableASLR is not acted on.
func (b *Backend) DoLaunch(args dbg.LaunchArgs) (int, error) {
	cmd := exec.Command(args.Path, args.Args...)
	cmd.Env = args.Env
	cmd.Dir = args.Cwd
	cmd.SysProcAttr = &syscall.SysProcAttr{Ptrace: true}

	if args.StdoutPath == "" {
		r, w, err := os.Pipe()
		if err != nil {
			return 0, err
		}
		cmd.Stdout = w
		b.stdoutR = r
	}
	if args.StderrPath == "" {
		r, w, err := os.Pipe()
		if err != nil {
			return 0, err
		}
		cmd.Stderr = w
		b.stderrR = r
	}
	if args.StdinPath == "" {
		r, w, err := os.Pipe()
		if err != nil {
			return 0, err
		}
		cmd.Stdin = r
		b.stdinW = w
	}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start: %w", err)
	}

	// The Ptrace SysProcAttr stops the child immediately after exec
	// with SIGTRAP pending; reap that first stop before returning.
	var ws unix.WaitStatus
	if _, err := unix.Wait4(cmd.Process.Pid, &ws, 0, nil); err != nil {
		return 0, fmt.Errorf("wait4 initial stop: %w", err)
	}

	b.mu.Lock()
	b.pid = cmd.Process.Pid
	b.tids[b.pid] = true
	b.mu.Unlock()

	b.waitWG.Add(1)
	go b.waitLoop()

	return b.pid, nil
}

func (b *Backend) DidLaunch(pid int) {}

func (b *Backend) WillAttachPID(pid int) error { return nil }

func (b *Backend) DoAttachPID(pid int) error {
	if err := unix.PtraceAttach(pid); err != nil {
		return fmt.Errorf("PTRACE_ATTACH %d: %w", pid, err)
	}
	var ws unix.WaitStatus
	if _, err := unix.Wait4(pid, &ws, 0, nil); err != nil {
		return fmt.Errorf("wait4 after attach: %w", err)
	}

	b.mu.Lock()
	b.pid = pid
	b.tids[pid] = true
	b.mu.Unlock()

	b.waitWG.Add(1)
	go b.waitLoop()
	return nil
}

func (b *Backend) DidAttach(pid int) {}

// WillAttachName and DoAttachName implement attach-by-name, matched
// against a process's exact /proc/<pid>/comm basename — never a
// substring match, per the decision recorded in spec §9.
func (b *Backend) WillAttachName(name string, waitForNew bool) error { return nil }

func (b *Backend) DoAttachName(name string, waitForNew bool) (int, error) {
	pid, err := findProcessByExactName(name)
	if err != nil {
		return 0, err
	}
	if err := b.DoAttachPID(pid); err != nil {
		return 0, err
	}
	return pid, nil
}

func findProcessByExactName(name string) (int, error) {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return 0, err
	}
	for _, e := range entries {
		pid, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		comm, err := os.ReadFile(fmt.Sprintf("/proc/%d/comm", pid))
		if err != nil {
			continue
		}
		if strings.TrimSpace(string(comm)) == name {
			return pid, nil
		}
	}
	return 0, fmt.Errorf("no process named %q found", name)
}

func (b *Backend) WillResume() error { return nil }

func (b *Backend) DoResume(actions map[int]dbg.RunAction) error {
	for tid, action := range actions {
		switch action.Kind {
		case dbg.RunActionSuspend:
			continue
		case dbg.RunActionStep:
			if err := unix.PtraceSingleStep(tid); err != nil {
				return fmt.Errorf("PTRACE_SINGLESTEP tid %d: %w", tid, err)
			}
		default:
			if err := unix.PtraceCont(tid, action.InjectSignal); err != nil {
				return fmt.Errorf("PTRACE_CONT tid %d: %w", tid, err)
			}
		}
	}
	return nil
}

func (b *Backend) DidResume() {}

func (b *Backend) WillHalt() error { return nil }

func (b *Backend) DoHalt() (bool, error) {
	b.mu.Lock()
	pid := b.pid
	b.mu.Unlock()
	if err := unix.Kill(pid, unix.SIGSTOP); err != nil {
		return false, fmt.Errorf("kill(SIGSTOP) %d: %w", pid, err)
	}
	return true, nil
}

func (b *Backend) WillDetach() error { return nil }

func (b *Backend) DoDetach() error {
	b.mu.Lock()
	pid := b.pid
	b.mu.Unlock()
	return unix.PtraceDetach(pid)
}

func (b *Backend) WillDestroy() error { return nil }

func (b *Backend) DoDestroy() error {
	close(b.stop)
	b.mu.Lock()
	pid := b.pid
	b.mu.Unlock()
	unix.Kill(pid, unix.SIGKILL)
	b.waitWG.Wait()
	return nil
}

func (b *Backend) DoSignal(signo int) error {
	b.mu.Lock()
	pid := b.pid
	b.mu.Unlock()
	return unix.Kill(pid, unix.Signal(signo))
}

func (b *Backend) ReadMemory(addr dbg.Address, n int) ([]byte, error) {
	b.mu.Lock()
	pid := b.pid
	b.mu.Unlock()
	f, err := os.OpenFile(fmt.Sprintf("/proc/%d/mem", pid), os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	buf := make([]byte, n)
	got, err := f.ReadAt(buf, int64(addr.LoadAddress()))
	return buf[:got], err
}

func (b *Backend) WriteMemory(addr dbg.Address, data []byte) error {
	b.mu.Lock()
	pid := b.pid
	b.mu.Unlock()
	f, err := os.OpenFile(fmt.Sprintf("/proc/%d/mem", pid), os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteAt(data, int64(addr.LoadAddress()))
	return err
}

func (b *Backend) MaxChunk() int { return MaxMemoryChunk }

func (b *Backend) EnableWatchpoint(loc *dbg.WatchpointLocation) error {
	b.mu.Lock()
	pid := b.pid
	b.mu.Unlock()
	if loc.Slot < 0 || loc.Slot > 3 {
		return fmt.Errorf("watchpoint slot %d out of range", loc.Slot)
	}
	if err := pokeUser(pid, loc.Slot*wordSize, loc.LoadAddr.LoadAddress()); err != nil {
		return err
	}
	dr7, err := peekUser(pid, 7*wordSize)
	if err != nil {
		return err
	}
	dr7 = armSlot(dr7, loc.Slot, loc.Kind, loc.ByteSize)
	return pokeUser(pid, 7*wordSize, dr7)
}

func (b *Backend) DisableWatchpoint(loc *dbg.WatchpointLocation) error {
	b.mu.Lock()
	pid := b.pid
	b.mu.Unlock()
	dr7, err := peekUser(pid, 7*wordSize)
	if err != nil {
		return err
	}
	dr7 &^= uint64(0x3) << uint(loc.Slot*2)
	return pokeUser(pid, 7*wordSize, dr7)
}

// armSlot sets the local-enable bit and the rw/len control nibble for
// slot in DR7, per the x86_64 debug-register layout documented in
// DNBArchImplX86_64.cpp's SetHardwareWatchpoint.
func armSlot(dr7 uint64, slot int, kind dbg.WatchKind, byteSize int) uint64 {
	dr7 |= uint64(1) << uint(slot*2) // local enable

	var rw uint64
	switch {
	case kind&dbg.WatchWrite != 0 && kind&dbg.WatchRead != 0:
		rw = 0x3
	case kind&dbg.WatchWrite != 0:
		rw = 0x1
	default:
		rw = 0x3 // x86 has no read-only watch; approximate with read/write
	}

	var ln uint64
	switch byteSize {
	case 1:
		ln = 0x0
	case 2:
		ln = 0x1
	case 8:
		ln = 0x2
	default:
		ln = 0x3 // 4 bytes
	}

	shift := uint(16 + slot*4)
	dr7 &^= uint64(0xF) << shift
	dr7 |= (rw | ln<<2) << shift
	return dr7
}

func (b *Backend) AllocateMemory(size int, perms dbg.MemoryPerms) (dbg.Address, error) {
	return dbg.Address{}, dbg.NotSupportedError{Op: "AllocateMemory"}
}

func (b *Backend) DeallocateMemory(addr dbg.Address) error {
	return dbg.NotSupportedError{Op: "DeallocateMemory"}
}

func (b *Backend) UpdateThreadList() ([]int, map[int]uint64, func(int) dbg.RegisterContext, error) {
	b.mu.Lock()
	pid := b.pid
	b.mu.Unlock()

	entries, err := os.ReadDir(fmt.Sprintf("/proc/%d/task", pid))
	if err != nil {
		return nil, nil, nil, err
	}

	var tids []int
	pcs := make(map[int]uint64)
	for _, e := range entries {
		tid, err := strconv.Atoi(filepath.Base(e.Name()))
		if err != nil {
			continue
		}
		tids = append(tids, tid)
		var regs unix.PtraceRegs
		if err := unix.PtraceGetRegs(tid, &regs); err == nil {
			pcs[tid] = regs.Rip
		}
	}

	return tids, pcs, func(tid int) dbg.RegisterContext { return newAMD64Registers(tid) }, nil
}

// RefreshStateAfterStop translates each thread's most recent wait4
// status into a StopInfo, consulted by Process's should_broadcast_event
// logic. It does not distinguish a breakpoint trap from a plain
// single-step trap (both arrive as SIGTRAP); that refinement belongs to
// a higher layer that can compare the stopped PC against the
// breakpoint table.
func (b *Backend) RefreshStateAfterStop(threads *dbg.ThreadList) error {
	b.mu.Lock()
	statuses := make(map[int]unix.WaitStatus, len(b.lastStatus))
	for tid, ws := range b.lastStatus {
		statuses[tid] = ws
	}
	b.mu.Unlock()

	for _, t := range threads.All() {
		ws, ok := statuses[t.Tid]
		if !ok {
			continue
		}
		switch {
		case ws.Exited():
			t.SetStopInfo(&dbg.StopInfo{Kind: dbg.StopReasonThreadExiting, ExitCode: ws.ExitStatus()})
		case ws.Stopped():
			sig := int(ws.StopSignal())
			if sig == int(unix.SIGTRAP) {
				t.SetStopInfo(&dbg.StopInfo{Kind: dbg.StopReasonTrace, Signal: sig})
			} else {
				t.SetStopInfo(&dbg.StopInfo{Kind: dbg.StopReasonSignal, Signal: sig})
			}
		}
	}
	return nil
}

func (b *Backend) GetImageInfoAddress() (dbg.Address, error) {
	return dbg.Address{}, dbg.NotSupportedError{Op: "GetImageInfoAddress"}
}

func (b *Backend) StdoutAvailable() ([]byte, error) {
	return drainNonBlocking(b.stdoutR)
}

func (b *Backend) StderrAvailable() ([]byte, error) {
	return drainNonBlocking(b.stderrR)
}

func (b *Backend) StdinPut(data []byte) error {
	if b.stdinW == nil {
		return dbg.NotSupportedError{Op: "StdinPut"}
	}
	_, err := b.stdinW.Write(data)
	return err
}

func (b *Backend) EventBroadcaster() *dbg.Broadcaster { return b.events }

// waitLoop is the backend's own listener thread, per spec §4.5's
// threading note: it blocks in wait4 and republishes every stop as an
// event on b.events for the Process's private-state listener to
// consume.
func (b *Backend) waitLoop() {
	defer b.waitWG.Done()
	for {
		select {
		case <-b.stop:
			return
		default:
		}

		var ws unix.WaitStatus
		b.mu.Lock()
		pid := b.pid
		b.mu.Unlock()

		tid, err := unix.Wait4(-pid, &ws, 0, nil)
		if err != nil {
			return
		}

		b.mu.Lock()
		b.lastStatus[tid] = ws
		b.mu.Unlock()

		b.events.Broadcast(dbg.Event{
			Type: dbg.EventStateChanged,
			StateChanged: &dbg.StateChangedPayload{
				NewState: dbg.StateStopped,
			},
		}, false)
	}
}

func drainNonBlocking(f *os.File) ([]byte, error) {
	if f == nil {
		return nil, nil
	}
	buf := make([]byte, 4096)
	n, err := f.Read(buf)
	if err != nil {
		return nil, nil
	}
	return buf[:n], nil
}

func peekUser(pid, offset int) (uint64, error) {
	var data [8]byte
	_, err := unix.PtracePeekUser(pid, uintptr(debugRegisterUserOffset+offset), data[:])
	if err != nil {
		return 0, fmt.Errorf("PTRACE_PEEKUSER pid %d off %d: %w", pid, offset, err)
	}
	var v uint64
	for i, b := range data {
		v |= uint64(b) << (8 * uint(i))
	}
	return v, nil
}

func pokeUser(pid, offset int, v uint64) error {
	var data [8]byte
	for i := range data {
		data[i] = byte(v >> (8 * uint(i)))
	}
	if err := unix.PtracePokeUser(pid, uintptr(debugRegisterUserOffset+offset), data[:]); err != nil {
		return fmt.Errorf("PTRACE_POKEUSER pid %d off %d: %w", pid, offset, err)
	}
	return nil
}
