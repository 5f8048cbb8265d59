package dbg

import (
	"fmt"

	"github.com/jacobsa/syncutil"
)

// WatchpointID identifies a WatchpointLocation within a Process.
type WatchpointID int

// WatchKind is a bitmask of the access types a hardware watchpoint
// should trigger on.
type WatchKind int

const (
	WatchRead WatchKind = 1 << iota
	WatchWrite
)

// MaxHardwareSlots is the number of hardware watchpoint slots assumed
// available, grounded on the x86_64 debug-register slot count described
// in DNBArchImplX86_64.cpp (original_source): four slots (DR0-DR3).
// Backends for architectures with a different slot count should reduce
// this via WatchpointList.SetSlotCount.
const MaxHardwareSlots = 4

// WatchpointLocation is a hardware-watchpoint slot assignment, per
// spec §3.
type WatchpointLocation struct {
	ID       WatchpointID
	LoadAddr Address
	ByteSize int
	Kind     WatchKind
	Slot     int
	IsEnabled bool
}

// ErrNoFreeSlots is returned by WatchpointList.Create when every
// hardware watchpoint slot is already assigned.
var ErrNoFreeSlots = fmt.Errorf("no free hardware watchpoint slots")

// hwBackend is the subset of NativeBackend a WatchpointList needs to
// actually arm/disarm a hardware slot.
type hwBackend interface {
	EnableWatchpoint(loc *WatchpointLocation) error
	DisableWatchpoint(loc *WatchpointLocation) error
}

// WatchpointList is the hardware-watchpoint slot allocator described in
// spec §4 (Watchpoint List component).
type WatchpointList struct {
	mu        syncutil.InvariantMutex
	byID      map[WatchpointID]*WatchpointLocation // GUARDED_BY(mu)
	nextID    WatchpointID                          // GUARDED_BY(mu)
	slotCount int
	backend   hwBackend
}

// NewWatchpointList creates an empty list backed by backend, with the
// default MaxHardwareSlots slot count.
func NewWatchpointList(backend hwBackend) *WatchpointList {
	l := &WatchpointList{
		byID:      make(map[WatchpointID]*WatchpointLocation),
		slotCount: MaxHardwareSlots,
		backend:   backend,
	}
	l.mu = syncutil.NewInvariantMutex(l.checkInvariants)
	return l
}

// SetSlotCount overrides the number of hardware slots available (e.g.
// for an architecture backend with fewer than MaxHardwareSlots debug
// registers).
func (l *WatchpointList) SetSlotCount(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.slotCount = n
}

func (l *WatchpointList) checkInvariants() {
	seen := make(map[int]bool)
	for _, w := range l.byID {
		if !w.IsEnabled {
			continue
		}
		if seen[w.Slot] {
			panic(fmt.Sprintf("hardware watchpoint slot %d double-assigned", w.Slot))
		}
		seen[w.Slot] = true
	}
}

// Create allocates a free hardware slot for a watchpoint covering
// [loadAddr, loadAddr+byteSize) and arms it. Returns ErrNoFreeSlots if
// every slot is already assigned to an enabled watchpoint.
func (l *WatchpointList) Create(loadAddr Address, byteSize int, kind WatchKind) (WatchpointID, error) {
	l.mu.Lock()
	used := make([]bool, l.slotCount)
	for _, w := range l.byID {
		if w.IsEnabled && w.Slot < l.slotCount {
			used[w.Slot] = true
		}
	}
	slot := -1
	for i, u := range used {
		if !u {
			slot = i
			break
		}
	}
	if slot == -1 {
		l.mu.Unlock()
		return 0, ErrNoFreeSlots
	}

	l.nextID++
	id := l.nextID
	loc := &WatchpointLocation{
		ID:       id,
		LoadAddr: loadAddr,
		ByteSize: byteSize,
		Kind:     kind,
		Slot:     slot,
	}
	l.byID[id] = loc
	l.mu.Unlock()

	if err := l.backend.EnableWatchpoint(loc); err != nil {
		l.mu.Lock()
		delete(l.byID, id)
		l.mu.Unlock()
		return 0, err
	}

	l.mu.Lock()
	loc.IsEnabled = true
	l.mu.Unlock()
	return id, nil
}

// Remove disarms and forgets the watchpoint identified by id.
func (l *WatchpointList) Remove(id WatchpointID) error {
	l.mu.Lock()
	loc, ok := l.byID[id]
	l.mu.Unlock()
	if !ok {
		return UnknownAddressError{}
	}

	if loc.IsEnabled {
		if err := l.backend.DisableWatchpoint(loc); err != nil {
			return err
		}
	}

	l.mu.Lock()
	loc.IsEnabled = false
	delete(l.byID, id)
	l.mu.Unlock()
	return nil
}

// FindByAddress returns the watchpoint covering addr, if any.
func (l *WatchpointList) FindByAddress(addr Address) (*WatchpointLocation, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a := addr.LoadAddress()
	for _, w := range l.byID {
		lo := w.LoadAddr.LoadAddress()
		if a >= lo && a < lo+uint64(w.ByteSize) {
			return w, true
		}
	}
	return nil, false
}

// All returns a snapshot of every watchpoint.
func (l *WatchpointList) All() []*WatchpointLocation {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*WatchpointLocation, 0, len(l.byID))
	for _, w := range l.byID {
		out = append(out, w)
	}
	return out
}
