package dbg

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jacobsa/reqtrace"
	"github.com/jacobsa/syncutil"
	"github.com/jacobsa/timeutil"
)

// State is one of the process lifecycle states from spec §4.6's state
// machine.
type State int

const (
	StateUnloaded State = iota
	StateConnected
	StateAttaching
	StateLaunching
	StateStopped
	StateRunning
	StateStepping
	StateCrashed
	StateDetached
	StateExited
	StateSuspended
	StateInvalid
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateConnected:
		return "connected"
	case StateAttaching:
		return "attaching"
	case StateLaunching:
		return "launching"
	case StateStopped:
		return "stopped"
	case StateRunning:
		return "running"
	case StateStepping:
		return "stepping"
	case StateCrashed:
		return "crashed"
	case StateDetached:
		return "detached"
	case StateExited:
		return "exited"
	case StateSuspended:
		return "suspended"
	default:
		return "invalid"
	}
}

// haltWatchdogTimeout bounds how long Halt waits for the inferior to
// actually stop before returning TimeoutError, per spec §5: "halt: 5
// seconds before returning timed_out."
const haltWatchdogTimeout = 5 * time.Second

// Process is the orchestrator described in spec §3/§4.6: it owns the
// backend, the breakpoint and watchpoint tables, the thread list, the
// memory cache, and the private-state listener goroutine that turns
// low-level exceptions into public events.
type Process struct {
	backend NativeBackend
	target  Target
	signals *SignalTable

	mu          sync.Mutex
	privateState State // GUARDED_BY(mu)
	publicState  State // GUARDED_BY(mu)
	stopID       int64 // GUARDED_BY(mu); incremented on every stop transition
	pid          int   // GUARDED_BY(mu)
	exitStatus   *int  // GUARDED_BY(mu); the inferior's exit code; nil until exited
	exitErr      error // GUARDED_BY(mu); set when invalid was reached via a failed launch/attach/connect, not a clean exit
	restarted    bool  // GUARDED_BY(mu); set when an auto-resume occurred since the last public stop

	// haltActive gates handleLowLevelStop while a Halt's own goroutine is
	// driving the inferior to a stop, so the private-state listener
	// doesn't also observe that same stop and double-report it, per spec
	// §4.6's "the private-state thread is paused for the duration of a
	// halt" and the Halt-atomicity property in spec §8.
	haltActive bool // GUARDED_BY(mu)

	// haltMu serializes concurrent Halt calls so a second caller waits
	// on the first's in-flight watchdog and result rather than racing
	// it, per the decided policy in spec §9.
	haltMu      sync.Mutex
	haltInFlight *haltResult

	imagesMu sync.Mutex
	images   []LoadedImage // GUARDED_BY(imagesMu); image-load token list, per spec §3

	Breakpoints *BreakpointSiteList
	Watchpoints *WatchpointList
	Threads     *ThreadList
	Memory      *MemoryIO

	public  *Broadcaster
	private *Broadcaster

	clock timeutil.Clock

	privateListener *Listener
	done            chan struct{}
	wg              sync.WaitGroup

	destroyOnce syncutil.InvariantMutex // guards the exactly-once Destroy semantics
	destroyed   bool

	planStack *planStack
}

// NewProcess wires a Process around the given backend and target. The
// caller must then call Launch or AttachPID/AttachName before issuing
// any other operation.
func NewProcess(backend NativeBackend, target Target, trapOpcode []byte, clock timeutil.Clock) *Process {
	p := &Process{
		backend:      backend,
		target:       target,
		signals:      NewUnixSignalTable(),
		privateState: StateUnloaded,
		publicState:  StateUnloaded,
		public:       NewBroadcaster("process-public"),
		private:      NewBroadcaster("process-private"),
		clock:        clock,
		done:         make(chan struct{}),
		planStack:    newPlanStack(),
	}
	p.destroyOnce = syncutil.NewInvariantMutex(func() {})

	p.Breakpoints = NewBreakpointSiteList(p, trapOpcode)
	p.Watchpoints = NewWatchpointList(backend)
	p.Threads = NewThreadList(backend)
	p.Memory = NewMemoryIO(backend, p.Breakpoints, clock, 1024)

	if b := backend.EventBroadcaster(); b != nil {
		p.privateListener = b.NewListener(^EventType(0))
		p.wg.Add(1)
		go p.privateStateLoop()
	}

	return p
}

// rawRead/rawWrite/privateStateAllowsMutation implement the
// memoryBackend interface BreakpointSiteList needs.
func (p *Process) rawRead(addr Address, n int) ([]byte, error) {
	return p.backend.ReadMemory(addr, n)
}

func (p *Process) rawWrite(addr Address, data []byte) error {
	return p.backend.WriteMemory(addr, data)
}

func (p *Process) privateStateAllowsMutation() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.privateState == StateStopped || p.privateState == StateCrashed
}

// Launch starts a fresh inferior per spec §4.5's launch lifecycle
// hooks, transitioning unloaded -> launching -> stopped.
func (p *Process) Launch(ctx context.Context, args LaunchArgs) error {
	ctx, report := reqtrace.StartSpan(ctx, "Process.Launch")
	defer report(nil)

	p.setPrivateState(StateLaunching)
	if err := p.backend.WillLaunch(args); err != nil {
		wrapped := BackendError{Op: "WillLaunch", Underlying: err}
		p.failInvalid(wrapped)
		return wrapped
	}
	pid, err := p.backend.DoLaunch(args)
	if err != nil {
		wrapped := BackendError{Op: "DoLaunch", Underlying: err}
		p.failInvalid(wrapped)
		return wrapped
	}
	p.backend.DidLaunch(pid)

	p.mu.Lock()
	p.pid = pid
	p.mu.Unlock()

	p.Threads.invalidate()
	p.transitionToStopped(false, false)
	return p.Threads.UpdateIfNeeded(p.StopID())
}

// AttachPID attaches to a running process by pid, per spec §4.5's
// attach lifecycle hooks.
func (p *Process) AttachPID(ctx context.Context, pid int) error {
	ctx, report := reqtrace.StartSpan(ctx, "Process.AttachPID")
	defer report(nil)

	p.setPrivateState(StateAttaching)
	if err := p.backend.WillAttachPID(pid); err != nil {
		wrapped := BackendError{Op: "WillAttachPID", Underlying: err}
		p.failInvalid(wrapped)
		return wrapped
	}
	if err := p.backend.DoAttachPID(pid); err != nil {
		wrapped := BackendError{Op: "DoAttachPID", Underlying: err}
		p.failInvalid(wrapped)
		return wrapped
	}
	p.backend.DidAttach(pid)

	p.mu.Lock()
	p.pid = pid
	p.mu.Unlock()

	p.Threads.invalidate()
	p.transitionToStopped(false, false)
	return p.Threads.UpdateIfNeeded(p.StopID())
}

// AttachName attaches to a process by executable basename, matched
// exactly (never a substring match), per the decision recorded in
// spec §9.
func (p *Process) AttachName(ctx context.Context, name string, waitForNew bool) error {
	ctx, report := reqtrace.StartSpan(ctx, "Process.AttachName")
	defer report(nil)

	p.setPrivateState(StateAttaching)
	if err := p.backend.WillAttachName(name, waitForNew); err != nil {
		wrapped := BackendError{Op: "WillAttachName", Underlying: err}
		p.failInvalid(wrapped)
		return wrapped
	}
	pid, err := p.backend.DoAttachName(name, waitForNew)
	if err != nil {
		wrapped := BackendError{Op: "DoAttachName", Underlying: err}
		p.failInvalid(wrapped)
		return wrapped
	}
	p.backend.DidAttach(pid)

	p.mu.Lock()
	p.pid = pid
	p.mu.Unlock()

	p.Threads.invalidate()
	p.transitionToStopped(false, false)
	return p.Threads.UpdateIfNeeded(p.StopID())
}

// ConnectRemote implements spec §4.5/§6's connect_remote: unloaded ->
// connected, handing url to the backend as a remote transport (e.g. a
// GDB-remote stub address) rather than launching or attaching locally.
// Grounded on lldb's ProcessGDBRemote::DoConnectRemote, which likewise
// moves straight to a connected private state with no intervening
// attaching/launching state.
func (p *Process) ConnectRemote(ctx context.Context, url string) error {
	ctx, report := reqtrace.StartSpan(ctx, "Process.ConnectRemote")
	defer report(nil)

	if err := p.backend.WillConnectRemote(url); err != nil {
		wrapped := BackendError{Op: "WillConnectRemote", Underlying: err}
		p.failInvalid(wrapped)
		return wrapped
	}
	if err := p.backend.DoConnectRemote(url); err != nil {
		wrapped := BackendError{Op: "DoConnectRemote", Underlying: err}
		p.failInvalid(wrapped)
		return wrapped
	}
	p.backend.DidConnectRemote()

	p.mu.Lock()
	p.privateState = StateConnected
	p.publicState = StateConnected
	p.mu.Unlock()

	p.public.Broadcast(Event{Type: EventStateChanged, StateChanged: &StateChangedPayload{Process: p, NewState: StateConnected}}, false)
	return nil
}

// PrivateState returns the authoritative, internally-tracked state.
func (p *Process) PrivateState() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.privateState
}

// PublicState returns the last state surfaced to clients; it may lag
// PrivateState but never describes a state the process has not
// actually been in, per spec §3's invariant.
func (p *Process) PublicState() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.publicState
}

func (p *Process) setPrivateState(s State) {
	p.mu.Lock()
	p.privateState = s
	p.mu.Unlock()
}

// failInvalid transitions both states to invalid and stores err as the
// exit status, per spec §7: "a launch that fails transitions the
// process to invalid with the error stored as exit status."
func (p *Process) failInvalid(err error) {
	p.mu.Lock()
	p.privateState = StateInvalid
	p.publicState = StateInvalid
	p.exitErr = err
	p.mu.Unlock()

	p.public.Broadcast(Event{Type: EventStateChanged, StateChanged: &StateChangedPayload{Process: p, NewState: StateInvalid}}, false)
}

// ExitStatus returns the inferior's exit code once the process has
// reached exited, or the stored error once it has reached invalid via a
// failed launch/attach, per spec §7.
func (p *Process) ExitStatus() (code int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.exitStatus != nil {
		code = *p.exitStatus
	}
	return code, p.exitErr
}

// transitionToStopped moves both private and public state to stopped
// (or crashed) and bumps stop_id, publishing a single public
// state_changed event. restarted reflects whether prior auto-resumes
// happened since the last public stop; interrupted marks a stop caused
// by an explicit Halt, per spec §4.6's Halt atomicity contract ("exactly
// one additional stopped event ... with interrupted=true").
func (p *Process) transitionToStopped(crashed, interrupted bool) {
	p.mu.Lock()
	s := StateStopped
	if crashed {
		s = StateCrashed
	}
	p.privateState = s
	p.publicState = s
	p.stopID++
	restarted := p.restarted
	p.restarted = false
	p.mu.Unlock()

	p.Memory.InvalidateAll()

	evType := EventStateChanged
	if interrupted {
		evType |= EventInterrupt
	}
	p.public.Broadcast(Event{
		Type: evType,
		StateChanged: &StateChangedPayload{
			Process:     p,
			NewState:    s,
			Restarted:   restarted,
			Interrupted: interrupted,
		},
	}, false)
}

// transitionToExited moves both private and public state to exited,
// records code as the exit status, and publishes a single public
// state_changed event, per spec §4.6's "running -> exited" and "any ->
// exited (target death)" transitions.
func (p *Process) transitionToExited(code int) {
	p.mu.Lock()
	p.privateState = StateExited
	p.publicState = StateExited
	p.stopID++
	p.exitStatus = &code
	restarted := p.restarted
	p.restarted = false
	p.mu.Unlock()

	p.Memory.InvalidateAll()

	p.public.Broadcast(Event{
		Type: EventStateChanged,
		StateChanged: &StateChangedPayload{
			Process:   p,
			NewState:  StateExited,
			Restarted: restarted,
		},
	}, false)
}

// Resume implements spec §4.6's resume() arbitration.
func (p *Process) Resume(ctx context.Context) error {
	ctx, report := reqtrace.StartSpan(ctx, "Process.Resume")
	defer report(nil)

	p.mu.Lock()
	if p.publicState != StateStopped && p.publicState != StateCrashed {
		p.mu.Unlock()
		return InvalidStateError{Op: "Resume", State: p.publicState}
	}
	p.mu.Unlock()

	if err := p.backend.WillResume(); err != nil {
		return BackendError{Op: "WillResume", Underlying: err}
	}

	// Step 3: step-over-breakpoint dance for any thread whose pending
	// action is step and whose PC sits on an enabled software site.
	actions := make(map[int]RunAction)
	for _, t := range p.Threads.All() {
		// Buffered register writes take effect before the thread runs,
		// per RegisterContext.Write's contract.
		if rc := t.Registers(); rc != nil {
			if err := rc.Flush(); err != nil {
				return BackendError{Op: "Flush", Underlying: err}
			}
		}
		action := t.ConsumeRunAction()
		if action.Kind == RunActionStep {
			if err := p.stepOverBreakpointIfNeeded(t); err != nil {
				return err
			}
		}
		actions[t.Tid] = action
		// The PC cached while this thread was last stopped is about to go
		// stale once it runs again; stepOverBreakpointIfNeeded has already
		// consulted it for this resume.
		t.clearExpeditedPC()
	}

	debugLogf("Resume: dispatching actions for %d thread(s)", len(actions))
	if err := p.backend.DoResume(actions); err != nil {
		return BackendError{Op: "DoResume", Underlying: err}
	}

	stepping := false
	for _, a := range actions {
		if a.Kind == RunActionStep {
			stepping = true
		}
	}
	next := StateRunning
	if stepping && len(actions) == 1 {
		next = StateStepping
	}

	p.mu.Lock()
	p.privateState = next
	p.mu.Unlock()
	p.private.Broadcast(Event{Type: EventStateChanged, StateChanged: &StateChangedPayload{Process: p, NewState: next}}, false)

	return nil
}

// stepOverBreakpointIfNeeded implements the invisible-to-clients
// single-step-past-a-trap-opcode dance from spec §4.6 step 3.
func (p *Process) stepOverBreakpointIfNeeded(t *Thread) error {
	pc, ok := t.ExpeditedPC()
	if !ok {
		v, err := PC(t.Registers())
		if err != nil {
			return err
		}
		pc = v
	}

	id, found := p.Breakpoints.FindByAddress(AbsoluteAddress(pc))
	if !found {
		return nil
	}
	site, ok := p.Breakpoints.Get(id)
	if !ok || !site.IsEnabled || site.Type != SiteSoftware {
		return nil
	}

	if err := p.Breakpoints.Disable(id); err != nil {
		return err
	}
	if err := p.backend.DoResume(map[int]RunAction{t.Tid: {Kind: RunActionStep}}); err != nil {
		return BackendError{Op: "DoResume(step-over)", Underlying: err}
	}
	if err := p.Breakpoints.Enable(id); err != nil {
		return err
	}
	return nil
}

// Halt implements spec §4.6's Halt: either exactly one additional
// stopped event is posted with interrupted=true, or, if the inferior
// was already stopped, none. Concurrent Halt calls serialize onto the
// first caller's in-flight watchdog and share its result, per the
// decision recorded in spec §9.
func (p *Process) Halt(ctx context.Context) error {
	ctx, report := reqtrace.StartSpan(ctx, "Process.Halt")

	p.haltMu.Lock()
	if p.haltInFlight != nil {
		hr := p.haltInFlight
		p.haltMu.Unlock()
		<-hr.ready
		report(hr.err)
		return hr.err
	}
	hr := &haltResult{ready: make(chan struct{})}
	p.haltInFlight = hr
	p.haltMu.Unlock()

	err := p.doHaltOnce(ctx)

	hr.err = err
	close(hr.ready)

	p.haltMu.Lock()
	p.haltInFlight = nil
	p.haltMu.Unlock()

	report(err)
	return err
}

// haltResult is the shared outcome of one in-flight Halt call, read by
// every concurrent caller that arrived while it was running.
type haltResult struct {
	ready chan struct{}
	err   error
}

func (p *Process) doHaltOnce(ctx context.Context) error {
	p.mu.Lock()
	if p.privateState == StateStopped || p.privateState == StateCrashed {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	if err := p.backend.WillHalt(); err != nil {
		return BackendError{Op: "WillHalt", Underlying: err}
	}

	p.mu.Lock()
	p.haltActive = true
	p.mu.Unlock()

	result := make(chan error, 1)
	go func() {
		defer func() {
			p.mu.Lock()
			p.haltActive = false
			p.mu.Unlock()
		}()

		caused, err := p.backend.DoHalt()
		if err != nil {
			result <- BackendError{Op: "DoHalt", Underlying: err}
			return
		}
		if caused {
			// handleLowLevelStop is gated by haltActive for the duration of
			// this goroutine, so this halt's own stop must be refreshed and
			// reported here instead of by the private-state listener, per
			// spec §4.6's "private-state thread is paused for the duration
			// of a halt" and the Halt-atomicity property in spec §8.
			stopID := p.StopID() + 1
			if err := p.Threads.UpdateIfNeeded(stopID); err != nil {
				result <- err
				return
			}
			if err := p.backend.RefreshStateAfterStop(p.Threads); err != nil {
				result <- err
				return
			}
			debugLogf("Halt: caused a stop, reporting interrupted")
			p.transitionToStopped(false, true)
		}
		result <- nil
	}()

	timer := time.NewTimer(haltWatchdogTimeout)
	defer timer.Stop()

	select {
	case err := <-result:
		return err
	case <-timer.C:
		return TimeoutError{Op: "Halt"}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Detach implements spec §4.6's detach transition, disabling every
// breakpoint site first so the inferior's memory is left exactly as
// the user last wrote it.
func (p *Process) Detach(ctx context.Context) error {
	ctx, report := reqtrace.StartSpan(ctx, "Process.Detach")
	defer report(nil)

	if err := p.Breakpoints.DisableAll(); err != nil {
		return err
	}
	if err := p.backend.WillDetach(); err != nil {
		return BackendError{Op: "WillDetach", Underlying: err}
	}
	if err := p.backend.DoDetach(); err != nil {
		return BackendError{Op: "DoDetach", Underlying: err}
	}

	p.mu.Lock()
	p.privateState = StateDetached
	p.publicState = StateDetached
	p.mu.Unlock()

	p.public.Broadcast(Event{Type: EventStateChanged, StateChanged: &StateChangedPayload{Process: p, NewState: StateDetached}}, false)
	return nil
}

// Destroy implements spec §5's cancellation contract: backend resources
// are released, every broadcaster (including the backend's, which the
// private-state listener waits on) is shut down, and the listener
// goroutine is joined. Afterwards both states are invalid, so Resume and
// breakpoint Enable/Disable return InvalidStateError; the other methods
// do not check whether the Process has been destroyed.
func (p *Process) Destroy(ctx context.Context) error {
	ctx, report := reqtrace.StartSpan(ctx, "Process.Destroy")
	defer report(nil)

	p.destroyOnce.Lock()
	if p.destroyed {
		p.destroyOnce.Unlock()
		return nil
	}
	p.destroyed = true
	p.destroyOnce.Unlock()

	if err := p.backend.WillDestroy(); err != nil {
		return BackendError{Op: "WillDestroy", Underlying: err}
	}
	err := p.backend.DoDestroy()

	close(p.done)
	if b := p.backend.EventBroadcaster(); b != nil {
		b.shutdown()
	}
	p.private.shutdown()
	p.public.shutdown()
	p.wg.Wait()

	p.mu.Lock()
	p.privateState = StateInvalid
	p.publicState = StateInvalid
	p.mu.Unlock()

	if err != nil {
		return BackendError{Op: "DoDestroy", Underlying: err}
	}
	return nil
}

// PublicListener creates a Listener on the public broadcaster, per
// spec §6's client-facing Events contract.
func (p *Process) PublicListener(mask EventType) *Listener {
	return p.public.NewListener(mask)
}

// Signals returns the process's mutable signal disposition table, per
// spec §6's "mutable mapping ... consumed by Process" contract.
func (p *Process) Signals() *SignalTable {
	return p.signals
}

// Signal sends signo directly to the inferior via the backend, per
// spec §4.5's do_signal.
func (p *Process) Signal(signo int) error {
	if err := p.backend.DoSignal(signo); err != nil {
		return BackendError{Op: "Signal", Underlying: err}
	}
	return nil
}

// AllocateMemory and DeallocateMemory implement spec §4.3's allocate/
// deallocate, tracking the (addr, size) pair so DeallocateMemory needs
// only an address.
func (p *Process) AllocateMemory(size int, perms MemoryPerms) (Address, error) {
	addr, err := p.backend.AllocateMemory(size, perms)
	if err != nil {
		return Address{}, BackendError{Op: "AllocateMemory", Underlying: err}
	}
	return addr, nil
}

func (p *Process) DeallocateMemory(addr Address) error {
	if err := p.backend.DeallocateMemory(addr); err != nil {
		return BackendError{Op: "DeallocateMemory", Underlying: err}
	}
	return nil
}

// ImageLoadTokens returns the Process's record of images the dynamic
// loader has reported mapped into the inferior.
func (p *Process) ImageLoadTokens() []LoadedImage {
	p.imagesMu.Lock()
	defer p.imagesMu.Unlock()
	out := make([]LoadedImage, len(p.images))
	copy(out, p.images)
	return out
}

// NotifyImagesChanged is called by a DynamicLoader collaborator once
// it has resolved the live image set for the address the backend
// returned from GetImageInfoAddress, per spec §6.
func (p *Process) NotifyImagesChanged(images []LoadedImage) {
	p.imagesMu.Lock()
	p.images = images
	p.imagesMu.Unlock()
}

// StopID returns the process's current stop generation counter,
// consulted by ThreadList.UpdateIfNeeded per spec §4.7.
func (p *Process) StopID() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopID
}

// privateStateLoop is the private-state listener goroutine described
// in spec §2/§4.6: it consumes raw exception events from the backend's
// own broadcaster (when it has one) and runs should_broadcast_event.
func (p *Process) privateStateLoop() {
	defer p.wg.Done()
	for {
		ev, ok := p.privateListener.Wait(0)
		if !ok {
			return
		}
		select {
		case <-p.done:
			return
		default:
		}
		p.handleLowLevelStop(ev)
	}
}

// handleLowLevelStop implements spec §4.6's should_broadcast_event.
func (p *Process) handleLowLevelStop(ev Event) {
	p.mu.Lock()
	halting := p.haltActive
	p.mu.Unlock()
	if halting {
		// A Halt is already in flight and will refresh and report this
		// very stop itself once its own DoHalt call returns; reporting it
		// again here would double-broadcast, per spec §8's Halt-atomicity
		// property.
		debugLogf("handleLowLevelStop: dropped, halt in flight")
		return
	}

	stopID := p.StopID() + 1
	if err := p.Threads.UpdateIfNeeded(stopID); err != nil {
		return
	}
	if err := p.backend.RefreshStateAfterStop(p.Threads); err != nil {
		return
	}

	report := false
	exited := false
	exitCode := 0
	for _, t := range p.Threads.All() {
		info := t.StopInfo()
		if info == nil {
			continue
		}
		switch info.Kind {
		case StopReasonThreadExiting:
			exited = true
			exitCode = info.ExitCode
		case StopReasonBreakpoint, StopReasonWatchpoint:
			report = true
		case StopReasonSignal:
			action := p.signals.Get(info.Signal)
			if action.ShouldStop {
				report = true
			} else {
				if !action.ShouldSuppress {
					p.backend.DoSignal(info.Signal)
				}
			}
		case StopReasonTrace:
			if !info.InternalStep {
				report = true
			}
		case StopReasonException, StopReasonExec:
			report = true
		}
	}

	if exited {
		debugLogf("handleLowLevelStop: inferior exited with code %d", exitCode)
		p.transitionToExited(exitCode)
		return
	}

	if report {
		debugLogf("handleLowLevelStop: reporting stop")
		p.transitionToStopped(false, false)
		return
	}

	// Auto-resume: remember that a restart happened so the next halt's
	// event carries restarted=true.
	debugLogf("handleLowLevelStop: auto-resuming")
	p.mu.Lock()
	p.restarted = true
	p.stopID++ // the thread list was refreshed at this stop_id above
	p.mu.Unlock()
	p.Resume(context.Background())
}

// ThreadPlan is a unit of controlled execution pushed onto a per-thread
// plan stack by RunThreadPlan, per spec §4.6.
type ThreadPlan interface {
	// Run drives the plan to completion (or error) on thread t.
	Run(ctx context.Context, p *Process, t *Thread) error
}

// RunThreadPlan implements spec §4.6's run_thread_plan: runs plan on
// thread, optionally suspending the others, under a timeout that halts
// and reports failure. If discardOnError and plan errors, the process
// is halted and the plan is popped from the stack; registers and the
// run actions set on other threads are not restored.
func (p *Process) RunThreadPlan(ctx context.Context, thread *Thread, plan ThreadPlan, suspendOthers, discardOnError bool, timeout time.Duration) error {
	ctx, report := reqtrace.StartSpan(ctx, "Process.RunThreadPlan")
	defer func() { report(nil) }()

	if suspendOthers {
		for _, t := range p.Threads.All() {
			if t != thread {
				t.SetRunAction(RunAction{Kind: RunActionSuspend})
			}
		}
	}

	p.pushPlan(thread, plan)
	defer p.popPlan(thread)

	done := make(chan error, 1)
	go func() { done <- plan.Run(ctx, p, thread) }()

	var after <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		after = timer.C
	}

	select {
	case err := <-done:
		if err != nil && discardOnError {
			p.Halt(ctx)
			return fmt.Errorf("thread plan discarded after error: %w", err)
		}
		return err
	case <-after:
		p.Halt(ctx)
		return TimeoutError{Op: "RunThreadPlan"}
	}
}
