package dbg

import "github.com/jacobsa/syncutil"

// threadListBackend is the subset of NativeBackend ThreadList needs to
// refresh its tid set, per spec §4.5's update_thread_list.
type threadListBackend interface {
	// UpdateThreadList returns the full current set of live tids along
	// with an expedited PC for each, and the native register context
	// to use for any tid not already known.
	UpdateThreadList() (tids []int, expeditedPC map[int]uint64, newRegisters func(tid int) RegisterContext, err error)
}

// ThreadList is the stop-synchronised thread snapshot described in
// spec §4.7: it is only refreshed on stop transitions, gated by
// comparing its own stop_id against the owning Process's.
type ThreadList struct {
	mu      syncutil.InvariantMutex
	byTid   map[int]*Thread // GUARDED_BY(mu)
	order   []int           // GUARDED_BY(mu); insertion order, for stable IndexID assignment
	stopID  int64           // GUARDED_BY(mu); last process stop_id this list was refreshed at
	nextIdx int             // GUARDED_BY(mu)

	backend threadListBackend
}

// NewThreadList creates an empty list backed by backend.
func NewThreadList(backend threadListBackend) *ThreadList {
	l := &ThreadList{
		byTid:   make(map[int]*Thread),
		backend: backend,
		stopID:  -1,
	}
	l.mu = syncutil.NewInvariantMutex(l.checkInvariants)
	return l
}

func (l *ThreadList) checkInvariants() {
	if len(l.byTid) != len(l.order) {
		panic("ThreadList.byTid and order out of sync")
	}
}

// UpdateIfNeeded implements spec §4.7's update_if_needed: if the
// process's current stop_id differs from the one this list was last
// refreshed at, it queries the backend for the live tid set, reuses
// Thread objects whose tid is still present, creates new ones, and
// drops the rest.
func (l *ThreadList) UpdateIfNeeded(processStopID int64) error {
	l.mu.Lock()
	if l.stopID == processStopID {
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()

	tids, expeditedPC, newRegisters, err := l.backend.UpdateThreadList()
	if err != nil {
		return BackendError{Op: "UpdateThreadList", Underlying: err}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	live := make(map[int]bool, len(tids))
	for _, tid := range tids {
		live[tid] = true
		if _, ok := l.byTid[tid]; !ok {
			l.nextIdx++
			t := NewThread(tid, l.nextIdx, newRegisters(tid))
			l.byTid[tid] = t
			l.order = append(l.order, tid)
		}
		if pc, ok := expeditedPC[tid]; ok {
			l.byTid[tid].SetExpeditedPC(pc)
		}
	}

	newOrder := l.order[:0]
	for _, tid := range l.order {
		if live[tid] {
			newOrder = append(newOrder, tid)
		} else {
			delete(l.byTid, tid)
		}
	}
	l.order = newOrder
	l.stopID = processStopID
	return nil
}

// Get returns the thread for tid, if currently known.
func (l *ThreadList) Get(tid int) (*Thread, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.byTid[tid]
	return t, ok
}

// GetByIndex returns the thread assigned indexID, if any (IndexID is
// stable for the life of the Thread, unlike tid which an OS may
// recycle).
func (l *ThreadList) GetByIndex(indexID int) (*Thread, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, t := range l.byTid {
		if t.IndexID == indexID {
			return t, true
		}
	}
	return nil, false
}

// All returns a stable-ordered snapshot of every known thread.
func (l *ThreadList) All() []*Thread {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Thread, 0, len(l.order))
	for _, tid := range l.order {
		out = append(out, l.byTid[tid])
	}
	return out
}

// Len returns the number of currently known threads.
func (l *ThreadList) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.byTid)
}

// invalidate forces the next UpdateIfNeeded call to refresh
// regardless of stop_id, used when a launch/attach replaces the
// entire thread set.
func (l *ThreadList) invalidate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopID = -1
}
