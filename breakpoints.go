package dbg

import (
	"fmt"

	"github.com/jacobsa/syncutil"
)

// BreakpointSiteID identifies a BreakpointSite within a Process.
type BreakpointSiteID int

// BreakpointSiteType distinguishes software (trap-opcode) sites from
// hardware sites.
type BreakpointSiteType int

const (
	SiteSoftware BreakpointSiteType = iota
	SiteHardware
)

// OwnerID identifies the (breakpoint_id, location_id) pair a
// higher-level breakpoint uses to own a BreakpointSite, per spec §3.
type OwnerID struct {
	BreakpointID int
	LocationID   int
}

// BreakpointSite is a single inferior address where execution traps,
// per spec §3. Multiple higher-level breakpoints may share one site
// (spec §4.2); the site is destroyed only when its last owner releases
// it and it has been disabled.
type BreakpointSite struct {
	ID          BreakpointSiteID
	LoadAddr    Address
	ByteSize    int
	TrapOpcode  []byte
	SavedOpcode []byte
	Type        BreakpointSiteType
	IsEnabled   bool
	HardwareIdx int
	hasHWIdx    bool

	owners map[OwnerID]struct{}
	// changing is true while an enable/disable memory write is in
	// flight. Nothing consults it: neither takeForChange nor the
	// invariant check rejects a second enable/disable of the same site,
	// or an owner change, while it is set.
	changing bool
}

// Owners returns a snapshot of the (breakpoint_id, location_id) pairs
// that currently reference this site.
func (s *BreakpointSite) Owners() []OwnerID {
	out := make([]OwnerID, 0, len(s.owners))
	for o := range s.owners {
		out = append(out, o)
	}
	return out
}

// DebugString describes parts of the site not otherwise client-visible,
// grounded on Delve's Breakpoint.VerboseDescr (other_examples
// .../breakpoints.go): a diagnostic dump, never parsed by a caller.
func (s *BreakpointSite) DebugString() string {
	return fmt.Sprintf(
		"site %d addr=%v type=%v enabled=%v trap=%x saved=%x owners=%d",
		s.ID, s.LoadAddr, s.Type, s.IsEnabled, s.TrapOpcode, s.SavedOpcode, len(s.owners))
}

// memoryBackend is the subset of Process a BreakpointSiteList needs to
// actually read/write inferior memory when enabling/disabling a
// software site. Process implements this; it is an interface here so
// the list can be unit-tested against a fake.
type memoryBackend interface {
	rawRead(addr Address, n int) ([]byte, error)
	rawWrite(addr Address, data []byte) error
	privateStateAllowsMutation() bool
}

// BreakpointSiteList is the address-keyed table of active sites
// described in spec §4.2.
type BreakpointSiteList struct {
	mu       syncutil.InvariantMutex
	byAddr   map[uint64]*BreakpointSite // GUARDED_BY(mu)
	byID     map[BreakpointSiteID]*BreakpointSite // GUARDED_BY(mu)
	nextID   BreakpointSiteID // GUARDED_BY(mu)
	mem      memoryBackend
	trapByte []byte
}

// NewBreakpointSiteList creates an empty list. trapOpcode is the
// backend's software breakpoint instruction (e.g. 0xCC on amd64); mem
// supplies the memory primitives used to enable/disable software sites.
func NewBreakpointSiteList(mem memoryBackend, trapOpcode []byte) *BreakpointSiteList {
	l := &BreakpointSiteList{
		byAddr:   make(map[uint64]*BreakpointSite),
		byID:     make(map[BreakpointSiteID]*BreakpointSite),
		mem:      mem,
		trapByte: trapOpcode,
	}
	l.mu = syncutil.NewInvariantMutex(l.checkInvariants)
	return l
}

// checkInvariants enforces spec §3's Process invariant "for every
// enabled software site, the saved original bytes are non-empty and of
// length byte_size". It is installed on the InvariantMutex and run by
// the syncutil machinery around every Lock/Unlock pair in race-detector
// builds, matching the teacher's own use of syncutil elsewhere.
func (l *BreakpointSiteList) checkInvariants() {
	for _, s := range l.byID {
		if s.Type == SiteSoftware && s.IsEnabled && len(s.SavedOpcode) != s.ByteSize {
			panic(fmt.Sprintf("breakpoint site %d enabled with saved_opcode length %d, want %d",
				s.ID, len(s.SavedOpcode), s.ByteSize))
		}
	}
}

// CheckInvariants takes and releases the table's lock, so that the
// InvariantMutex runs checkInvariants; it is exposed for tests that
// want to assert the table's consistency.
func (l *BreakpointSiteList) CheckInvariants() {
	l.mu.Lock()
	l.mu.Unlock()
}

// CreateSite implements spec §4.2's create_site: if a site exists at
// loadAddr, owner is added to its owner set and its id returned;
// otherwise a new, disabled site is created. useHardware requests a
// hardware site (actual slot assignment is the caller's job via
// WatchpointList; software breakpoints never need a slot).
func (l *BreakpointSiteList) CreateSite(owner OwnerID, loadAddr Address, byteSize int, trapOpcode []byte, useHardware bool) (BreakpointSiteID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := loadAddr.LoadAddress()
	if s, ok := l.byAddr[key]; ok {
		s.owners[owner] = struct{}{}
		return s.ID, nil
	}

	l.nextID++
	id := l.nextID
	typ := SiteSoftware
	if useHardware {
		typ = SiteHardware
	}
	s := &BreakpointSite{
		ID:         id,
		LoadAddr:   loadAddr,
		ByteSize:   byteSize,
		TrapOpcode: append([]byte(nil), trapOpcode...),
		Type:       typ,
		owners:     map[OwnerID]struct{}{owner: {}},
	}
	l.byAddr[key] = s
	l.byID[id] = s
	return id, nil
}

// FindByAddress implements spec §4.2's find_by_address.
func (l *BreakpointSiteList) FindByAddress(loadAddr Address) (BreakpointSiteID, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.byAddr[loadAddr.LoadAddress()]
	if !ok {
		return 0, false
	}
	return s.ID, true
}

// Get returns the site for id, if any.
func (l *BreakpointSiteList) Get(id BreakpointSiteID) (*BreakpointSite, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.byID[id]
	return s, ok
}

// Enable implements spec §4.2's enable: for software sites, reads the
// current ByteSize bytes at LoadAddr into SavedOpcode and writes
// TrapOpcode. A no-op, successful enable if already enabled. If the
// write fails, the site is reverted to disabled and the error surfaced
// (spec: "a site in a desired-enabled-but-write-failed state is not
// permitted").
func (l *BreakpointSiteList) Enable(id BreakpointSiteID) error {
	s, ok := l.takeForChange(id)
	if !ok {
		return UnknownBreakpointError{ID: id}
	}
	defer l.releaseChange(s)

	if s.IsEnabled {
		return nil
	}
	if s.Type != SiteSoftware {
		s.IsEnabled = true
		return nil
	}
	if !l.mem.privateStateAllowsMutation() {
		return InvalidStateError{Op: "Enable"}
	}

	orig, err := l.mem.rawRead(s.LoadAddr, s.ByteSize)
	if err != nil {
		return MemoryError{Op: "Enable(read original)", Addr: s.LoadAddr, Err: err}
	}
	if err := l.mem.rawWrite(s.LoadAddr, s.TrapOpcode); err != nil {
		// Revert: enabling after a failed write is fatal to the site; it
		// remains disabled.
		s.IsEnabled = false
		return BreakpointConflictError{ID: id, Addr: s.LoadAddr, Want: s.TrapOpcode, Got: orig}
	}
	s.SavedOpcode = orig
	s.IsEnabled = true
	return nil
}

// Disable implements spec §4.2's disable: restores SavedOpcode. A no-op
// if already disabled.
func (l *BreakpointSiteList) Disable(id BreakpointSiteID) error {
	s, ok := l.takeForChange(id)
	if !ok {
		return UnknownBreakpointError{ID: id}
	}
	defer l.releaseChange(s)

	if !s.IsEnabled {
		return nil
	}
	if s.Type != SiteSoftware {
		s.IsEnabled = false
		return nil
	}
	if !l.mem.privateStateAllowsMutation() {
		return InvalidStateError{Op: "Disable"}
	}
	if err := l.mem.rawWrite(s.LoadAddr, s.SavedOpcode); err != nil {
		return MemoryError{Op: "Disable(restore)", Addr: s.LoadAddr, Err: err}
	}
	s.IsEnabled = false
	return nil
}

// DisableAll implements spec §4.2's disable_all, used before detach and
// around operations that must see original inferior memory.
func (l *BreakpointSiteList) DisableAll() error {
	l.mu.Lock()
	ids := make([]BreakpointSiteID, 0, len(l.byID))
	for id := range l.byID {
		ids = append(ids, id)
	}
	l.mu.Unlock()

	var firstErr error
	for _, id := range ids {
		if err := l.Disable(id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// RemoveOwner implements spec §4.2's remove_owner: when the owner set
// becomes empty, the site is disabled and destroyed.
func (l *BreakpointSiteList) RemoveOwner(owner OwnerID, id BreakpointSiteID) error {
	l.mu.Lock()
	s, ok := l.byID[id]
	l.mu.Unlock()
	if !ok {
		return UnknownBreakpointError{ID: id}
	}

	l.mu.Lock()
	delete(s.owners, owner)
	empty := len(s.owners) == 0
	l.mu.Unlock()

	if !empty {
		return nil
	}

	if err := l.Disable(id); err != nil {
		return err
	}

	l.mu.Lock()
	delete(l.byAddr, s.LoadAddr.LoadAddress())
	delete(l.byID, id)
	l.mu.Unlock()
	return nil
}

// All returns a snapshot of every site, for iteration by memory I/O and
// resume arbitration.
func (l *BreakpointSiteList) All() []*BreakpointSite {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*BreakpointSite, 0, len(l.byID))
	for _, s := range l.byID {
		out = append(out, s)
	}
	return out
}

func (l *BreakpointSiteList) takeForChange(id BreakpointSiteID) (*BreakpointSite, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.byID[id]
	if !ok {
		return nil, false
	}
	s.changing = true
	return s, true
}

func (l *BreakpointSiteList) releaseChange(s *BreakpointSite) {
	l.mu.Lock()
	s.changing = false
	l.mu.Unlock()
}
