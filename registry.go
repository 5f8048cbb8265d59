package dbg

import "sync"

// Registry is the process-wide list of live Processes and plugin
// backends, per spec §8's REDESIGN FLAGS: "model as a single
// process-wide registry object whose lifecycle is explicit: init()
// before any Process is created, shutdown() after all are destroyed.
// No implicit construction; the registry holds strong references to
// live Debuggers."
//
// Destroying a Process may itself enumerate the registry (e.g. a
// backend's DoDestroy notifying other live processes of image
// unload); Each takes its snapshot under the lock and releases it
// before invoking callbacks so such re-entrant enumeration never
// deadlocks, per spec §5's recursive-lock requirement.
type Registry struct {
	mu        sync.Mutex
	processes map[*Process]struct{}
	backends  []NativeBackend
	initDone  bool
}

// NewRegistry constructs an uninitialized Registry; callers must call
// Init before creating any Process against it.
func NewRegistry() *Registry {
	return &Registry{processes: make(map[*Process]struct{})}
}

// Init marks the registry ready for use. Calling any other method
// before Init, or calling Init twice, is a programmer error.
func (r *Registry) Init() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.initDone {
		panic("Registry.Init called twice")
	}
	r.initDone = true
}

// Shutdown tears the registry down. It must be called only after
// every Process registered with it has been destroyed and removed.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.processes) != 0 {
		panic("Registry.Shutdown called with live processes still registered")
	}
	r.initDone = false
}

// Register adds p to the live-process set.
func (r *Registry) Register(p *Process) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processes[p] = struct{}{}
}

// Unregister removes p from the live-process set; Process.Destroy does
// not call it, so callers unregister a Process themselves. It is safe
// to call re-entrantly from within an Each callback.
func (r *Registry) Unregister(p *Process) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.processes, p)
}

// Each calls f once for every currently registered Process. f may
// itself call back into the registry (including Unregister) without
// deadlocking, since the snapshot is taken before f is invoked.
func (r *Registry) Each(f func(*Process)) {
	r.mu.Lock()
	snapshot := make([]*Process, 0, len(r.processes))
	for p := range r.processes {
		snapshot = append(snapshot, p)
	}
	r.mu.Unlock()

	for _, p := range snapshot {
		f(p)
	}
}

// RegisterBackend adds a NativeBackend factory to the plugin list
// consulted by SelectBackend, per spec §8's "each plug-in exposes
// can_handle(target) -> bool and the registry picks the first match."
func (r *Registry) RegisterBackend(b NativeBackend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends = append(r.backends, b)
}

// SelectBackend returns the first registered backend willing to debug
// target, or (nil, false) if none match.
func (r *Registry) SelectBackend(target Target) (NativeBackend, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.backends {
		if b.CanDebug(target) {
			return b, true
		}
	}
	return nil, false
}
