// Package discovery locates the target application's debugging endpoint on
// the local machine. It enumerates candidate processes by executable name
// and command-line flags, scans their listening ports, and probes each
// (port, token) pair until one verifies.
package discovery

import (
	"errors"
	"runtime"
)

// ErrNoEndpoint is returned when every scan round is exhausted without a
// verified endpoint. It is non-fatal; callers retry on their own schedule.
var ErrNoEndpoint = errors.New("no verified debugging endpoint found")

// Process is one running process as seen by the ProcessLister.
type Process struct {
	PID     int32
	Name    string
	Cmdline string
}

// Candidate is a process whose command line carries the flags the target
// application exposes. Candidates are ephemeral and recreated on every scan.
type Candidate struct {
	PID           int32
	AuxiliaryPort int
	Token         string
}

// Descriptor is a verified connection descriptor. It is produced once by the
// Hunter and held by the control channel for the channel's lifetime; any
// channel error discards it, forcing a full rediscovery.
type Descriptor struct {
	AuxiliaryPort int
	ControlPort   int
	Token         string
}

// TargetSpec describes how the target application identifies itself: the
// platform executable names and the command-line flags that carry the
// auxiliary port and session token. The marker flag distinguishes instances
// started with remote automation enabled.
type TargetSpec struct {
	Names      []string
	PortFlag   string
	TokenFlag  string
	MarkerFlag string
}

// DefaultTargetSpec returns the target description for the detected OS.
// Selected once at startup; the rest of the pipeline is platform-agnostic.
func DefaultTargetSpec() TargetSpec {
	spec := TargetSpec{
		Names:      []string{"assistant_server"},
		PortFlag:   "--auxiliary-port",
		TokenFlag:  "--session-token",
		MarkerFlag: "--remote-automation",
	}
	if runtime.GOOS == "windows" {
		spec.Names = []string{"assistant_server.exe"}
	}
	return spec
}
