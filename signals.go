package dbg

import "golang.org/x/sys/unix"

// SignalAction describes how the core should treat delivery of a given
// Unix signal to the inferior, per spec §4.6's should_broadcast_event
// step 3.
type SignalAction struct {
	Name          string
	ShouldStop    bool
	ShouldNotify  bool
	ShouldSuppress bool
}

// SignalTable is a mutable mapping from signal number to SignalAction.
// It is consumed by Process when deciding whether a delivered signal
// should surface a public stop event (spec §6 "Signal table").
type SignalTable struct {
	actions map[int]SignalAction
}

// NewUnixSignalTable returns the default POSIX signal table: signals
// that by convention terminate or stop a process (SIGSEGV, SIGTRAP,
// SIGBUS, SIGABRT, SIGILL, SIGFPE, SIGINT, SIGQUIT) stop and notify;
// housekeeping signals that Go programs and shells routinely ignore
// (SIGCHLD, SIGWINCH, SIGURG, SIGCONT, SIGALRM, SIGPIPE) neither stop
// nor notify and are suppressed from
// reaching the inferior's own handler only when explicitly configured
// to be (ShouldSuppress defaults false for all built-ins: the inferior
// still sees them by default).
func NewUnixSignalTable() *SignalTable {
	t := &SignalTable{actions: make(map[int]SignalAction)}
	stop := func(sig unix.Signal, name string) {
		t.actions[int(sig)] = SignalAction{Name: name, ShouldStop: true, ShouldNotify: true}
	}
	pass := func(sig unix.Signal, name string) {
		t.actions[int(sig)] = SignalAction{Name: name, ShouldStop: false, ShouldNotify: false}
	}

	stop(unix.SIGSEGV, "SIGSEGV")
	stop(unix.SIGTRAP, "SIGTRAP")
	stop(unix.SIGBUS, "SIGBUS")
	stop(unix.SIGABRT, "SIGABRT")
	stop(unix.SIGILL, "SIGILL")
	stop(unix.SIGFPE, "SIGFPE")
	stop(unix.SIGINT, "SIGINT")
	stop(unix.SIGQUIT, "SIGQUIT")

	pass(unix.SIGCHLD, "SIGCHLD")
	pass(unix.SIGWINCH, "SIGWINCH")
	pass(unix.SIGURG, "SIGURG")
	pass(unix.SIGCONT, "SIGCONT")
	pass(unix.SIGALRM, "SIGALRM")
	pass(unix.SIGPIPE, "SIGPIPE")

	return t
}

// Get returns the configured action for signo, defaulting to
// stop+notify for any signal not explicitly configured (an unknown
// signal is treated conservatively, the same way LLDB's UnixSignals
// table defaults unrecognized signals to stopping).
func (t *SignalTable) Get(signo int) SignalAction {
	if a, ok := t.actions[signo]; ok {
		return a
	}
	return SignalAction{Name: "UNKNOWN", ShouldStop: true, ShouldNotify: true}
}

// Set overrides the action taken for signo.
func (t *SignalTable) Set(signo int, a SignalAction) {
	t.actions[signo] = a
}
