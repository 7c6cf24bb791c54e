package discovery

import (
	"context"
	"fmt"
	"sort"

	gnet "github.com/shirou/gopsutil/v3/net"
)

// Listening ports outside this range are never probed: the well-known range
// is reserved for other services and anything above 65535 is not a port.
const (
	minProbePort = 1024 // exclusive
	maxProbePort = 65535
)

// PortScanner enumerates the TCP ports a process is listening on.
type PortScanner interface {
	ListeningPorts(ctx context.Context, pid int32) ([]int, error)
}

// SystemScanner scans per-pid TCP sockets through gopsutil.
type SystemScanner struct{}

// NewSystemScanner creates the port scanner for the host platform.
func NewSystemScanner() *SystemScanner {
	return &SystemScanner{}
}

// ListeningPorts returns the LISTEN-state TCP ports of the given pid,
// restricted to (1024, 65535], deduplicated and sorted ascending.
func (s *SystemScanner) ListeningPorts(ctx context.Context, pid int32) ([]int, error) {
	conns, err := gnet.ConnectionsPidWithContext(ctx, "tcp", pid)
	if err != nil {
		return nil, fmt.Errorf("failed to scan sockets of pid %d: %w", pid, err)
	}

	ports := make([]int, 0, len(conns))
	for _, conn := range conns {
		if conn.Status != "LISTEN" {
			continue
		}
		ports = append(ports, int(conn.Laddr.Port))
	}
	return FilterProbePorts(ports), nil
}

// FilterProbePorts restricts raw port numbers to the probeable range,
// deduplicates them and sorts ascending. Verification always walks ports in
// this order, so the lowest verifying port wins.
func FilterProbePorts(ports []int) []int {
	seen := make(map[int]struct{}, len(ports))
	out := make([]int, 0, len(ports))
	for _, port := range ports {
		if port <= minProbePort || port > maxProbePort {
			continue
		}
		if _, dup := seen[port]; dup {
			continue
		}
		seen[port] = struct{}{}
		out = append(out, port)
	}
	sort.Ints(out)
	return out
}
