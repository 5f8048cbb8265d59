package dbg

// AttachConfig configures Process.AttachPID/AttachName. It is a plain
// struct with no on-disk state, matching the core's contract that
// persistence is an external collaborator's concern.
type AttachConfig struct {
	Pid        int
	Name       string
	WaitForNew bool
}

// LaunchConfig configures Process.Launch; it is kept distinct from
// LaunchArgs (backend.go) because LaunchArgs is the narrower shape the
// NativeBackend contract itself needs, while LaunchConfig is what a
// client assembles (e.g. adding a working directory resolved relative
// to the client's own cwd) before it is narrowed down to LaunchArgs.
type LaunchConfig struct {
	Path string
	Args []string
	Env  []string
	Cwd  string

	StdinPath  string
	StdoutPath string
	StderrPath string

	DisableASLR bool
	StopAtEntry bool
}

// ToLaunchArgs narrows a LaunchConfig down to the LaunchArgs a
// NativeBackend consumes.
func (c LaunchConfig) ToLaunchArgs() LaunchArgs {
	return LaunchArgs{
		Path:        c.Path,
		Args:        c.Args,
		Env:         c.Env,
		Cwd:         c.Cwd,
		StdinPath:   c.StdinPath,
		StdoutPath:  c.StdoutPath,
		StderrPath:  c.StderrPath,
		DisableASLR: c.DisableASLR,
	}
}
