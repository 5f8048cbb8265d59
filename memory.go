package dbg

import (
	"sync"

	"github.com/jacobsa/timeutil"
)

// rawMemoryBackend is the subset of NativeBackend MemoryIO drives
// directly: chunked reads/writes and the chunk size the backend
// declares, per spec §4.5.
type rawMemoryBackend interface {
	ReadMemory(addr Address, n int) ([]byte, error)
	WriteMemory(addr Address, data []byte) error
	MaxChunk() int
}

// breakpointMasker is the subset of BreakpointSiteList MemoryIO needs
// to mask enabled software sites out of reads and redirect writes that
// overlap one into SavedOpcode instead of inferior memory.
type breakpointMasker interface {
	All() []*BreakpointSite
}

// cacheLine is one fixed-size cached line of inferior memory.
type cacheLine struct {
	base uint64
	data []byte
	at   int64 // unix nanos at which the line was fetched
}

// MemoryIO implements spec §4.3: chunked read/write against a
// NativeBackend with software-breakpoint masking and a small,
// resume-invalidated line cache. Grounded on the teacher's
// internal/buffer for the idea of a single growable backing allocation
// per read, and on jacobsa/timeutil.Clock (already used elsewhere in
// the teacher's stack for injectable time) for cache staleness instead
// of calling time.Now directly.
type MemoryIO struct {
	backend rawMemoryBackend
	bp      breakpointMasker
	clock   timeutil.Clock

	lineSize int

	mu    sync.Mutex
	lines map[uint64]*cacheLine
}

// NewMemoryIO creates a MemoryIO. lineSize is the cache's line size in
// bytes (backend-declared, per spec §4.3); clock is consulted only for
// diagnostics about line age, never to decide staleness — staleness is
// purely invalidation-driven, per the spec's "must never return stale
// data across a resume".
func NewMemoryIO(backend rawMemoryBackend, bp breakpointMasker, clock timeutil.Clock, lineSize int) *MemoryIO {
	if lineSize <= 0 {
		lineSize = 1024
	}
	return &MemoryIO{
		backend:  backend,
		bp:       bp,
		clock:    clock,
		lineSize: lineSize,
		lines:    make(map[uint64]*cacheLine),
	}
}

// Read implements spec §4.3's read: chunked retrieval through the
// cache, with enabled software-breakpoint trap opcodes masked back to
// their saved original bytes before the result is returned to the
// caller.
func (m *MemoryIO) Read(addr Address, n int) ([]byte, error) {
	base := addr.LoadAddress()
	if base == InvalidOffset {
		return nil, UnknownAddressError{Addr: addr}
	}

	out := make([]byte, 0, n)
	remaining := n
	cur := base
	for remaining > 0 {
		line, err := m.fetchLine(cur)
		if err != nil {
			m.maskReadResult(base, out)
			return out, MemoryError{Op: "Read", Addr: addr, Offset: len(out), Err: err}
		}
		lineOff := int(cur - line.base)
		avail := len(line.data) - lineOff
		take := remaining
		if take > avail {
			take = avail
		}
		out = append(out, line.data[lineOff:lineOff+take]...)
		cur += uint64(take)
		remaining -= take
	}

	m.maskReadResult(base, out)
	return out, nil
}

// Write implements spec §4.3's write: where the target range overlaps
// an enabled software breakpoint site, the trap opcode stays resident
// in inferior memory and the caller's bytes are redirected into the
// site's SavedOpcode instead, so a later Disable restores what the
// caller actually wrote.
func (m *MemoryIO) Write(addr Address, data []byte) error {
	base := addr.LoadAddress()
	if base == InvalidOffset {
		return UnknownAddressError{Addr: addr}
	}

	redirected := append([]byte(nil), data...)
	for _, s := range m.bp.All() {
		if s.Type != SiteSoftware || !s.IsEnabled {
			continue
		}
		siteLo := s.LoadAddr.LoadAddress()
		siteHi := siteLo + uint64(s.ByteSize)
		lo := base
		hi := base + uint64(len(data))
		if lo >= siteHi || hi <= siteLo {
			continue
		}
		ovLo := lo
		if siteLo > ovLo {
			ovLo = siteLo
		}
		ovHi := hi
		if siteHi < ovHi {
			ovHi = siteHi
		}
		for a := ovLo; a < ovHi; a++ {
			dataIdx := a - base
			siteIdx := a - siteLo
			s.SavedOpcode[siteIdx] = data[dataIdx]
			redirected[dataIdx] = s.TrapOpcode[siteIdx]
		}
	}

	if err := m.backend.WriteMemory(addr, redirected); err != nil {
		return MemoryError{Op: "Write", Addr: addr, Err: err}
	}
	m.invalidateRange(base, uint64(len(data)))
	return nil
}

// Flush evicts every cached line overlapping [addr, addr+size), per
// spec §4.3's explicit flush(addr, size).
func (m *MemoryIO) Flush(addr Address, size uint64) {
	m.invalidateRange(addr.LoadAddress(), size)
}

// InvalidateAll evicts the entire cache, called by Process on every
// resume per spec §4.3's "any resume" invalidation trigger.
func (m *MemoryIO) InvalidateAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lines = make(map[uint64]*cacheLine)
}

func (m *MemoryIO) fetchLine(addr uint64) (*cacheLine, error) {
	lineBase := addr - addr%uint64(m.lineSize)

	m.mu.Lock()
	if l, ok := m.lines[lineBase]; ok {
		m.mu.Unlock()
		return l, nil
	}
	m.mu.Unlock()

	data, err := m.chunkedRead(AbsoluteAddress(lineBase), m.lineSize)
	if err != nil {
		return nil, err
	}

	l := &cacheLine{base: lineBase, data: data, at: m.clock.Now().UnixNano()}
	m.mu.Lock()
	m.lines[lineBase] = l
	m.mu.Unlock()
	return l, nil
}

// chunkedRead retries over the backend's declared MaxChunk until n
// bytes are collected or an error occurs, per spec §4.3: "Underlying
// reads may be chunked by a backend-declared maximum; the public read
// retries over chunks until complete or an error occurs."
func (m *MemoryIO) chunkedRead(addr Address, n int) ([]byte, error) {
	max := m.backend.MaxChunk()
	if max <= 0 || max > n {
		max = n
	}

	out := make([]byte, 0, n)
	cur := addr.LoadAddress()
	remaining := n
	for remaining > 0 {
		want := remaining
		if want > max {
			want = max
		}
		chunk, err := m.backend.ReadMemory(AbsoluteAddress(cur), want)
		if err != nil {
			return out, err
		}
		out = append(out, chunk...)
		cur += uint64(len(chunk))
		remaining -= len(chunk)
		if len(chunk) == 0 {
			break
		}
	}
	return out, nil
}

func (m *MemoryIO) maskReadResult(base uint64, out []byte) {
	hi := base + uint64(len(out))
	for _, s := range m.bp.All() {
		if s.Type != SiteSoftware || !s.IsEnabled {
			continue
		}
		siteLo := s.LoadAddr.LoadAddress()
		siteHi := siteLo + uint64(s.ByteSize)
		if base >= siteHi || hi <= siteLo {
			continue
		}
		ovLo := base
		if siteLo > ovLo {
			ovLo = siteLo
		}
		ovHi := hi
		if siteHi < ovHi {
			ovHi = siteHi
		}
		for a := ovLo; a < ovHi; a++ {
			out[a-base] = s.SavedOpcode[a-siteLo]
		}
	}
}

func (m *MemoryIO) invalidateRange(base uint64, size uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lo := base - base%uint64(m.lineSize)
	hi := base + size
	for l := lo; l < hi; l += uint64(m.lineSize) {
		delete(m.lines, l)
	}
}
