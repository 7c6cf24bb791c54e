package automation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/entrhq/autopilot/pkg/channel"
	"github.com/entrhq/autopilot/pkg/config"
	"github.com/entrhq/autopilot/pkg/discovery"
	"github.com/entrhq/autopilot/pkg/logging"
	"github.com/entrhq/autopilot/pkg/safety"
)

const (
	// maxScanAttempts bounds one discovery pass; an exhausted pass is
	// non-fatal and rescheduled after rediscoveryDelay.
	maxScanAttempts  = 5
	rediscoveryDelay = 10 * time.Second
)

// connectFunc opens a control channel from a verified descriptor.
// Injectable so the supervisor state machine is testable without a live
// endpoint.
type connectFunc func(ctx context.Context, desc discovery.Descriptor, logger *logging.Logger) (*channel.Channel, error)

// Supervisor is the top-level orchestrator: it owns the discovery → channel
// → loop lifecycle and transitions disconnected → discovering → connected.
// At most one channel and one loop exist at a time; a dead channel discards
// its descriptor and forces full rediscovery.
type Supervisor struct {
	hunter  *discovery.Hunter
	filter  *safety.Filter
	section *config.AutomationSection
	events  *Broadcaster
	logger  *logging.Logger
	connect connectFunc

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSupervisor constructs the orchestrator. Components are passed in
// explicitly; nothing here is a global.
func NewSupervisor(hunter *discovery.Hunter, filter *safety.Filter, section *config.AutomationSection, events *Broadcaster, logger *logging.Logger) *Supervisor {
	return &Supervisor{
		hunter:  hunter,
		filter:  filter,
		section: section,
		events:  events,
		logger:  logger,
		connect: channel.Connect,
	}
}

// Start launches the supervision goroutine. A second Start is a no-op.
func (s *Supervisor) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.run(ctx, s.done)
}

// Stop tears the subsystem down: the loop stops, the transport closes, and
// every pending call is rejected before Stop returns.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
}

func (s *Supervisor) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		desc, err := s.hunter.ScanEnvironment(ctx, maxScanAttempts)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, discovery.ErrNoEndpoint) {
				s.logger.Infof("discovery exhausted, retrying in %s", rediscoveryDelay)
			} else {
				s.logger.Warnf("discovery failed: %v", err)
			}
			if !sleepCtx(ctx, rediscoveryDelay) {
				return
			}
			continue
		}

		ch, err := s.connect(ctx, desc, s.logger)
		if err != nil {
			// The descriptor is invalidated; a fresh one is rediscovered.
			s.logger.Warnf("connect failed, rediscovering: %v", err)
			if !sleepCtx(ctx, rediscoveryDelay) {
				return
			}
			continue
		}

		s.events.Publish(Event{Type: EventConnectionVerified, Descriptor: &desc})

		loop := NewLoop(ch, s.filter, s.section, s.events, s.logger)
		loop.Start()

		select {
		case <-ch.Done():
			loop.Stop()
			s.events.Publish(Event{Type: EventChannelClosed, Err: ch.Err()})
			s.logger.Infof("control channel lost, rediscovering")
		case <-ctx.Done():
			loop.Stop()
			ch.Close()
			return
		}
	}
}

// sleepCtx waits d or until ctx is done; reports whether the wait completed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
