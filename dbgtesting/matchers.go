// Package dbgtesting provides oglematchers for asserting against
// process, thread, and breakpoint state in tests.
package dbgtesting

import (
	"fmt"
	"reflect"

	"github.com/jacobsa/oglematchers"
	"github.com/nativedbg/core"
)

// StateIs matches a dbg.Process whose PublicState() equals expected.
func StateIs(expected dbg.State) oglematchers.Matcher {
	return oglematchers.NewMatcher(
		func(c interface{}) error { return stateIs(c, expected) },
		fmt.Sprintf("public state is %v", expected))
}

func stateIs(c interface{}, expected dbg.State) error {
	p, ok := c.(*dbg.Process)
	if !ok {
		return fmt.Errorf("which is of type %v", reflect.TypeOf(c))
	}
	if got := p.PublicState(); got != expected {
		return fmt.Errorf("which has public state %v", got)
	}
	return nil
}

// ThreadStateIs matches a *dbg.Thread whose State() equals expected.
func ThreadStateIs(expected dbg.ThreadState) oglematchers.Matcher {
	return oglematchers.NewMatcher(
		func(c interface{}) error { return threadStateIs(c, expected) },
		fmt.Sprintf("thread state is %v", expected))
}

func threadStateIs(c interface{}, expected dbg.ThreadState) error {
	t, ok := c.(*dbg.Thread)
	if !ok {
		return fmt.Errorf("which is of type %v", reflect.TypeOf(c))
	}
	if got := t.State(); got != expected {
		return fmt.Errorf("which has thread state %v", got)
	}
	return nil
}

// StoppedAtBreakpoint matches a *dbg.Thread whose StopInfo names a
// breakpoint hit with the given site ID.
func StoppedAtBreakpoint(id dbg.BreakpointSiteID) oglematchers.Matcher {
	return oglematchers.NewMatcher(
		func(c interface{}) error { return stoppedAtBreakpoint(c, id) },
		fmt.Sprintf("stopped at breakpoint site %v", id))
}

func stoppedAtBreakpoint(c interface{}, id dbg.BreakpointSiteID) error {
	t, ok := c.(*dbg.Thread)
	if !ok {
		return fmt.Errorf("which is of type %v", reflect.TypeOf(c))
	}
	info := t.StopInfo()
	if info == nil {
		return fmt.Errorf("which has no stop info")
	}
	if info.Kind != dbg.StopReasonBreakpoint {
		return fmt.Errorf("which stopped for reason %v, not a breakpoint", info.Kind)
	}
	if info.BreakpointID != id {
		return fmt.Errorf("which stopped at site %v, not %v", info.BreakpointID, id)
	}
	return nil
}

// SiteEnabled matches a *dbg.BreakpointSite that is currently enabled.
func SiteEnabled() oglematchers.Matcher {
	return oglematchers.NewMatcher(
		func(c interface{}) error { return siteEnabled(c) },
		"breakpoint site is enabled")
}

func siteEnabled(c interface{}) error {
	s, ok := c.(*dbg.BreakpointSite)
	if !ok {
		return fmt.Errorf("which is of type %v", reflect.TypeOf(c))
	}
	if !s.IsEnabled {
		return fmt.Errorf("which is disabled")
	}
	return nil
}
