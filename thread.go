package dbg

import "sync"

// ThreadState is one inferior thread's lifecycle state, per spec §3.
type ThreadState int

const (
	ThreadStopped ThreadState = iota
	ThreadRunning
	ThreadStepping
	ThreadCrashed
	ThreadExited
	ThreadSuspended
	ThreadDetached
	ThreadUnloaded
)

func (s ThreadState) String() string {
	switch s {
	case ThreadStopped:
		return "stopped"
	case ThreadRunning:
		return "running"
	case ThreadStepping:
		return "stepping"
	case ThreadCrashed:
		return "crashed"
	case ThreadExited:
		return "exited"
	case ThreadSuspended:
		return "suspended"
	case ThreadDetached:
		return "detached"
	case ThreadUnloaded:
		return "unloaded"
	default:
		return "unknown"
	}
}

// StopReasonKind classifies why a thread last stopped.
type StopReasonKind int

const (
	StopReasonNone StopReasonKind = iota
	StopReasonBreakpoint
	StopReasonWatchpoint
	StopReasonSignal
	StopReasonTrace // single-step completion
	StopReasonException
	StopReasonExec
	StopReasonThreadExiting
)

// StopInfo describes a thread's most recent stop, per spec §3's
// stop_info_or_none.
type StopInfo struct {
	Kind          StopReasonKind
	BreakpointID  BreakpointSiteID
	WatchpointID  WatchpointID
	Signal        int
	InternalStep  bool // true iff a step-over-breakpoint step, not user-initiated
	ExitCode      int  // valid iff Kind == StopReasonThreadExiting
}

// RunActionKind is one of the three run actions a thread may carry
// into its next resume, per spec §3.
type RunActionKind int

const (
	RunActionResume RunActionKind = iota
	RunActionStep
	RunActionSuspend
)

// RunAction is a thread's pending_run_action: consumed on each resume
// and reset to RunActionResume for the following cycle, per spec §3.
type RunAction struct {
	Kind         RunActionKind
	InjectSignal int  // 0 if no signal should be injected
	OverridePC   uint64
	HasOverridePC bool
}

// Thread is one inferior thread, per spec §3's Thread data model.
type Thread struct {
	Tid     int
	IndexID int

	mu                sync.Mutex
	state             ThreadState // GUARDED_BY(mu)
	stopInfo          *StopInfo   // GUARDED_BY(mu)
	pendingRunAction  RunAction   // GUARDED_BY(mu)
	dispatchQueueName string      // GUARDED_BY(mu)
	name              string      // GUARDED_BY(mu)
	expeditedPC       uint64      // GUARDED_BY(mu)
	hasExpeditedPC    bool        // GUARDED_BY(mu)

	registers RegisterContext
}

// NewThread creates a Thread observed for the first time in a
// stop-event thread list, per spec §3's Thread lifecycle.
func NewThread(tid, indexID int, registers RegisterContext) *Thread {
	return &Thread{
		Tid:              tid,
		IndexID:          indexID,
		state:            ThreadRunning,
		pendingRunAction: RunAction{Kind: RunActionResume},
		registers:        registers,
	}
}

// State returns the thread's current state.
func (t *Thread) State() ThreadState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// SetState updates the thread's state. Process does not call it; a
// thread's state stays as set by NewThread or its last SetState caller.
func (t *Thread) SetState(s ThreadState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = s
}

// StopInfo returns the thread's most recent stop reason, or nil if it
// has never stopped.
func (t *Thread) StopInfo() *StopInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopInfo
}

// SetStopInfo records why the thread stopped, computed by
// refresh_state_after_stop (spec §4.6).
func (t *Thread) SetStopInfo(info *StopInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopInfo = info
}

// RunAction returns the thread's pending run action.
func (t *Thread) RunAction() RunAction {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pendingRunAction
}

// SetRunAction sets the thread's pending run action, consulted by the
// next Process.Resume.
func (t *Thread) SetRunAction(a RunAction) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pendingRunAction = a
}

// ConsumeRunAction returns the current pending run action and resets
// it to RunActionResume, per spec §3: "it is consumed on each resume
// and reset to resume for the next cycle."
func (t *Thread) ConsumeRunAction() RunAction {
	t.mu.Lock()
	defer t.mu.Unlock()
	a := t.pendingRunAction
	t.pendingRunAction = RunAction{Kind: RunActionResume}
	return a
}

// Name returns the thread's OS-reported name, if any.
func (t *Thread) Name() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.name
}

// SetName records the thread's OS-reported name.
func (t *Thread) SetName(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.name = name
}

// DispatchQueueName returns the thread's dispatch-queue label, if the
// backend supplies one (queueing-runtime threads only).
func (t *Thread) DispatchQueueName() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dispatchQueueName
}

// SetDispatchQueueName records the thread's dispatch-queue label.
func (t *Thread) SetDispatchQueueName(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dispatchQueueName = name
}

// Registers returns the thread's register-context handle.
func (t *Thread) Registers() RegisterContext {
	return t.registers
}

// ExpeditedPC returns the PC value the backend supplied inline with
// the thread's last stop notification, avoiding a register round trip
// per spec §4.7.
func (t *Thread) ExpeditedPC() (uint64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.expeditedPC, t.hasExpeditedPC
}

// SetExpeditedPC records the PC value supplied inline with a stop.
func (t *Thread) SetExpeditedPC(pc uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.expeditedPC = pc
	t.hasExpeditedPC = true
}

// clearExpeditedPC forces the next PC read through Registers again;
// called once a resume invalidates the cached value.
func (t *Thread) clearExpeditedPC() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hasExpeditedPC = false
}
