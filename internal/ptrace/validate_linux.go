//go:build linux

package ptrace

import (
	"fmt"

	"golang.org/x/arch/x86/x86asm"

	"github.com/nativedbg/core"
)

// EnableBreakpoint sanity-checks that site.ByteSize does not exceed
// the length of the instruction currently at site.LoadAddr, returning
// an error if it does. It always returns OutcomeUnsupported: actual
// trap-opcode insertion is the core BreakpointSiteList's job, per spec
// §4.5's fallback contract. BreakpointSiteList.Enable does not call
// this method, so the check runs only for callers that invoke it
// directly.
func (b *Backend) EnableBreakpoint(site *dbg.BreakpointSite) (dbg.BreakpointOutcome, error) {
	if site.Type != dbg.SiteSoftware {
		return dbg.OutcomeUnsupported, nil
	}

	code, err := b.ReadMemory(site.LoadAddr, 16)
	if err != nil {
		return dbg.OutcomeUnsupported, nil
	}

	inst, err := x86asm.Decode(code, 64)
	if err != nil {
		// Undecodable bytes aren't fatal to the fallback path; the core
		// still knows its own trap-opcode length regardless of what
		// instruction it is overwriting.
		return dbg.OutcomeUnsupported, nil
	}
	if inst.Len < site.ByteSize {
		return dbg.OutcomeUnsupported, fmt.Errorf(
			"site %d byte_size %d exceeds the %d-byte instruction at %v",
			site.ID, site.ByteSize, inst.Len, site.LoadAddr)
	}

	return dbg.OutcomeUnsupported, nil
}

func (b *Backend) DisableBreakpoint(site *dbg.BreakpointSite) (dbg.BreakpointOutcome, error) {
	return dbg.OutcomeUnsupported, nil
}
