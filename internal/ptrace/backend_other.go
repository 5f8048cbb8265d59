//go:build !linux

package ptrace

import (
	"github.com/nativedbg/core"
	"github.com/nativedbg/core/backendutil"
)

// Backend is a stub on non-Linux platforms: every capability reports
// unsupported, mirroring the teacher's darwin/linux file-suffix split
// for platform-specific code (mount_darwin.go vs mount_linux.go).
type Backend struct {
	backendutil.NotImplementedBackend
}

// New constructs a Backend that declines to debug anything on this
// platform.
func New() *Backend {
	return &Backend{}
}

func (b *Backend) CanDebug(target dbg.Target) bool { return false }
