package discovery

import (
	"context"
	"fmt"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
)

// ProcessLister enumerates running processes with their full command lines.
type ProcessLister interface {
	List(ctx context.Context) ([]Process, error)
}

// SystemLister lists processes through gopsutil, which carries the
// platform-specific enumeration for linux, darwin and windows.
type SystemLister struct{}

// NewSystemLister creates the process lister for the host platform.
func NewSystemLister() *SystemLister {
	return &SystemLister{}
}

// List returns every process whose name and command line could be read.
// Processes that disappear mid-enumeration are skipped silently.
func (l *SystemLister) List(ctx context.Context) ([]Process, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate processes: %w", err)
	}

	out := make([]Process, 0, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		cmdline, err := p.CmdlineWithContext(ctx)
		if err != nil {
			continue
		}
		out = append(out, Process{PID: p.Pid, Name: name, Cmdline: cmdline})
	}
	return out, nil
}

// FindCandidates filters a process list down to automation candidates: the
// executable name must match one of the target names (case-insensitive) and
// the command line must carry the marker, port and token flags.
func FindCandidates(procs []Process, spec TargetSpec) []Candidate {
	var candidates []Candidate
	for _, p := range procs {
		if !matchesTargetName(p.Name, spec.Names) {
			continue
		}
		if c, ok := ParseCandidate(p.PID, p.Cmdline, spec); ok {
			candidates = append(candidates, c)
		}
	}
	return candidates
}

func matchesTargetName(name string, targets []string) bool {
	for _, t := range targets {
		if strings.EqualFold(name, t) {
			return true
		}
	}
	return false
}
