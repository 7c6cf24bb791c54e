package discovery

import (
	"context"
	"time"

	"github.com/entrhq/autopilot/pkg/logging"
)

const defaultRetryBackoff = 2 * time.Second

// Hunter orchestrates process listing, port scanning and probing into a
// bounded-retry search for a verified connection descriptor.
type Hunter struct {
	spec    TargetSpec
	lister  ProcessLister
	scanner PortScanner
	probe   ConnectionProbe
	backoff time.Duration
	logger  *logging.Logger
}

// NewHunter wires a hunter from its capability interfaces. The platform
// implementations are chosen once at startup (see NewSystemHunter).
func NewHunter(spec TargetSpec, lister ProcessLister, scanner PortScanner, probe ConnectionProbe, logger *logging.Logger) *Hunter {
	return &Hunter{
		spec:    spec,
		lister:  lister,
		scanner: scanner,
		probe:   probe,
		backoff: defaultRetryBackoff,
		logger:  logger,
	}
}

// NewSystemHunter creates a hunter backed by the host platform's process
// lister, port scanner and HTTP probe.
func NewSystemHunter(logger *logging.Logger) *Hunter {
	return NewHunter(DefaultTargetSpec(), NewSystemLister(), NewSystemScanner(), NewHTTPProbe(), logger)
}

// SetBackoff overrides the wait between failed scan rounds.
func (h *Hunter) SetBackoff(d time.Duration) {
	h.backoff = d
}

// ScanEnvironment runs up to maxAttempts scan rounds and returns the first
// verified descriptor. A failed sub-step (no candidates, no ports, probe
// refusal) never aborts a round; only exhausting every round yields
// ErrNoEndpoint, which callers treat as non-fatal and retry later.
func (h *Hunter) ScanEnvironment(ctx context.Context, maxAttempts int) (Descriptor, error) {
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(h.backoff):
			case <-ctx.Done():
				return Descriptor{}, ctx.Err()
			}
		}

		if desc, ok := h.scanOnce(ctx); ok {
			h.logger.Infof("verified endpoint: control port %d (auxiliary %d) on attempt %d/%d",
				desc.ControlPort, desc.AuxiliaryPort, attempt, maxAttempts)
			return desc, nil
		}
		if ctx.Err() != nil {
			return Descriptor{}, ctx.Err()
		}
		h.logger.Debugf("scan attempt %d/%d found no verified endpoint", attempt, maxAttempts)
	}
	return Descriptor{}, ErrNoEndpoint
}

// scanOnce performs a single round: list, filter, scan ports, probe each in
// ascending order. The first verifying (candidate, port) pair wins.
func (h *Hunter) scanOnce(ctx context.Context) (Descriptor, bool) {
	procs, err := h.lister.List(ctx)
	if err != nil {
		h.logger.Warnf("process listing failed: %v", err)
		return Descriptor{}, false
	}

	candidates := FindCandidates(procs, h.spec)
	if len(candidates) == 0 {
		return Descriptor{}, false
	}

	for _, candidate := range candidates {
		ports, err := h.scanner.ListeningPorts(ctx, candidate.PID)
		if err != nil {
			h.logger.Warnf("port scan failed for pid %d: %v", candidate.PID, err)
			continue
		}
		for _, port := range ports {
			if err := h.probe.Verify(ctx, port, candidate.Token); err != nil {
				h.logger.Debugf("probe failed for pid %d port %d: %v", candidate.PID, port, err)
				continue
			}
			return Descriptor{
				AuxiliaryPort: candidate.AuxiliaryPort,
				ControlPort:   port,
				Token:         candidate.Token,
			}, true
		}
	}
	return Descriptor{}, false
}
