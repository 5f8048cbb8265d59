// Package backendutil provides helpers for implementing dbg.NativeBackend.
package backendutil

import "github.com/nativedbg/core"

// NotImplementedBackend answers every error-returning dbg.NativeBackend
// method with dbg.NotSupportedError, except EnableBreakpoint and
// DisableBreakpoint, which report dbg.OutcomeUnsupported with no error.
// CanDebug reports false, MaxChunk 0, EventBroadcaster nil, and the
// Did* hooks do nothing. Embed it in a real backend to inherit default
// implementations for the methods that backend doesn't implement,
// ensuring the struct keeps satisfying dbg.NativeBackend even as new
// methods are added to the interface.
type NotImplementedBackend struct{}

var _ dbg.NativeBackend = &NotImplementedBackend{}

func (b *NotImplementedBackend) CanDebug(target dbg.Target) bool { return false }

func (b *NotImplementedBackend) WillLaunch(args dbg.LaunchArgs) error {
	return dbg.NotSupportedError{Op: "WillLaunch"}
}

func (b *NotImplementedBackend) DoLaunch(args dbg.LaunchArgs) (int, error) {
	return 0, dbg.NotSupportedError{Op: "DoLaunch"}
}

func (b *NotImplementedBackend) DidLaunch(pid int) {}

func (b *NotImplementedBackend) WillAttachPID(pid int) error {
	return dbg.NotSupportedError{Op: "WillAttachPID"}
}

func (b *NotImplementedBackend) DoAttachPID(pid int) error {
	return dbg.NotSupportedError{Op: "DoAttachPID"}
}

func (b *NotImplementedBackend) DidAttach(pid int) {}

func (b *NotImplementedBackend) WillAttachName(name string, waitForNew bool) error {
	return dbg.NotSupportedError{Op: "WillAttachName"}
}

func (b *NotImplementedBackend) DoAttachName(name string, waitForNew bool) (int, error) {
	return 0, dbg.NotSupportedError{Op: "DoAttachName"}
}

func (b *NotImplementedBackend) WillConnectRemote(url string) error {
	return dbg.NotSupportedError{Op: "WillConnectRemote"}
}

func (b *NotImplementedBackend) DoConnectRemote(url string) error {
	return dbg.NotSupportedError{Op: "DoConnectRemote"}
}

func (b *NotImplementedBackend) DidConnectRemote() {}

func (b *NotImplementedBackend) WillResume() error {
	return dbg.NotSupportedError{Op: "WillResume"}
}

func (b *NotImplementedBackend) DoResume(actions map[int]dbg.RunAction) error {
	return dbg.NotSupportedError{Op: "DoResume"}
}

func (b *NotImplementedBackend) DidResume() {}

func (b *NotImplementedBackend) WillHalt() error {
	return dbg.NotSupportedError{Op: "WillHalt"}
}

func (b *NotImplementedBackend) DoHalt() (bool, error) {
	return false, dbg.NotSupportedError{Op: "DoHalt"}
}

func (b *NotImplementedBackend) WillDetach() error {
	return dbg.NotSupportedError{Op: "WillDetach"}
}

func (b *NotImplementedBackend) DoDetach() error {
	return dbg.NotSupportedError{Op: "DoDetach"}
}

func (b *NotImplementedBackend) WillDestroy() error {
	return dbg.NotSupportedError{Op: "WillDestroy"}
}

func (b *NotImplementedBackend) DoDestroy() error {
	return dbg.NotSupportedError{Op: "DoDestroy"}
}

func (b *NotImplementedBackend) DoSignal(signo int) error {
	return dbg.NotSupportedError{Op: "DoSignal"}
}

func (b *NotImplementedBackend) ReadMemory(addr dbg.Address, n int) ([]byte, error) {
	return nil, dbg.NotSupportedError{Op: "ReadMemory"}
}

func (b *NotImplementedBackend) WriteMemory(addr dbg.Address, data []byte) error {
	return dbg.NotSupportedError{Op: "WriteMemory"}
}

func (b *NotImplementedBackend) MaxChunk() int { return 0 }

func (b *NotImplementedBackend) EnableBreakpoint(site *dbg.BreakpointSite) (dbg.BreakpointOutcome, error) {
	return dbg.OutcomeUnsupported, nil
}

func (b *NotImplementedBackend) DisableBreakpoint(site *dbg.BreakpointSite) (dbg.BreakpointOutcome, error) {
	return dbg.OutcomeUnsupported, nil
}

func (b *NotImplementedBackend) EnableWatchpoint(loc *dbg.WatchpointLocation) error {
	return dbg.NotSupportedError{Op: "EnableWatchpoint"}
}

func (b *NotImplementedBackend) DisableWatchpoint(loc *dbg.WatchpointLocation) error {
	return dbg.NotSupportedError{Op: "DisableWatchpoint"}
}

func (b *NotImplementedBackend) AllocateMemory(size int, perms dbg.MemoryPerms) (dbg.Address, error) {
	return dbg.Address{}, dbg.NotSupportedError{Op: "AllocateMemory"}
}

func (b *NotImplementedBackend) DeallocateMemory(addr dbg.Address) error {
	return dbg.NotSupportedError{Op: "DeallocateMemory"}
}

func (b *NotImplementedBackend) UpdateThreadList() ([]int, map[int]uint64, func(int) dbg.RegisterContext, error) {
	return nil, nil, nil, dbg.NotSupportedError{Op: "UpdateThreadList"}
}

func (b *NotImplementedBackend) RefreshStateAfterStop(threads *dbg.ThreadList) error {
	return dbg.NotSupportedError{Op: "RefreshStateAfterStop"}
}

func (b *NotImplementedBackend) GetImageInfoAddress() (dbg.Address, error) {
	return dbg.Address{}, dbg.NotSupportedError{Op: "GetImageInfoAddress"}
}

func (b *NotImplementedBackend) StdoutAvailable() ([]byte, error) {
	return nil, dbg.NotSupportedError{Op: "StdoutAvailable"}
}

func (b *NotImplementedBackend) StderrAvailable() ([]byte, error) {
	return nil, dbg.NotSupportedError{Op: "StderrAvailable"}
}

func (b *NotImplementedBackend) StdinPut(data []byte) error {
	return dbg.NotSupportedError{Op: "StdinPut"}
}

func (b *NotImplementedBackend) EventBroadcaster() *dbg.Broadcaster { return nil }
