package discovery

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/autopilot/pkg/logging"
)

type fakeLister struct {
	rounds [][]Process
	calls  int
}

func (l *fakeLister) List(ctx context.Context) ([]Process, error) {
	round := l.calls
	l.calls++
	if round >= len(l.rounds) {
		return nil, nil
	}
	return l.rounds[round], nil
}

type fakeScanner struct {
	ports map[int32][]int
	err   error
}

func (s *fakeScanner) ListeningPorts(ctx context.Context, pid int32) ([]int, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.ports[pid], nil
}

type fakeProbe struct {
	verified map[int]bool
	attempts []int
}

func (p *fakeProbe) Verify(ctx context.Context, port int, token string) error {
	p.attempts = append(p.attempts, port)
	if p.verified[port] {
		return nil
	}
	return errors.New("probe rejected")
}

func newTestHunter(lister ProcessLister, scanner PortScanner, probe ConnectionProbe) *Hunter {
	h := NewHunter(testSpec(), lister, scanner, probe, logging.NewNopLogger())
	h.SetBackoff(0)
	return h
}

func TestHunter_ScanEnvironment_VerifiesOnLaterAttempt(t *testing.T) {
	target := Process{
		PID:     7,
		Name:    "assistant_server",
		Cmdline: "server --remote-automation --auxiliary-port=9100 --session-token=tok",
	}
	// Round one sees no target; round two finds it.
	lister := &fakeLister{rounds: [][]Process{{}, {target}}}
	scanner := &fakeScanner{ports: map[int32][]int{7: {9200, 9300}}}
	probe := &fakeProbe{verified: map[int]bool{9300: true}}
	hunter := newTestHunter(lister, scanner, probe)

	desc, err := hunter.ScanEnvironment(context.Background(), 3)
	require.NoError(t, err)

	assert.Equal(t, Descriptor{AuxiliaryPort: 9100, ControlPort: 9300, Token: "tok"}, desc)
	assert.Equal(t, 2, lister.calls)
	// Ports are probed in ascending order.
	assert.Equal(t, []int{9200, 9300}, probe.attempts)
}

// roundScanner returns a different port set on each call.
type roundScanner struct {
	rounds [][]int
	calls  int
}

func (s *roundScanner) ListeningPorts(ctx context.Context, pid int32) ([]int, error) {
	round := s.calls
	s.calls++
	if round >= len(s.rounds) {
		return nil, nil
	}
	return s.rounds[round], nil
}

func TestHunter_ScanEnvironment_CandidateWithNoPortsRetries(t *testing.T) {
	target := Process{
		PID:     7,
		Name:    "assistant_server",
		Cmdline: "server --remote-automation --auxiliary-port=9100 --session-token=tok",
	}
	// Round one finds the candidate but it has no open ports yet; round two
	// finds a verifying port.
	lister := &fakeLister{rounds: [][]Process{{target}, {target}}}
	scanner := &roundScanner{rounds: [][]int{{}, {9300}}}
	probe := &fakeProbe{verified: map[int]bool{9300: true}}
	hunter := newTestHunter(lister, scanner, probe)

	desc, err := hunter.ScanEnvironment(context.Background(), 2)
	require.NoError(t, err)

	assert.Equal(t, 9300, desc.ControlPort)
	assert.Equal(t, 2, lister.calls)
	assert.Equal(t, 2, scanner.calls)
}

func TestHunter_ScanEnvironment_FirstVerifyingPortWins(t *testing.T) {
	target := Process{
		PID:     7,
		Name:    "assistant_server",
		Cmdline: "server --remote-automation --auxiliary-port=9100 --session-token=tok",
	}
	lister := &fakeLister{rounds: [][]Process{{target}}}
	scanner := &fakeScanner{ports: map[int32][]int{7: {9200, 9300}}}
	probe := &fakeProbe{verified: map[int]bool{9200: true, 9300: true}}
	hunter := newTestHunter(lister, scanner, probe)

	desc, err := hunter.ScanEnvironment(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, 9200, desc.ControlPort)
	assert.Equal(t, []int{9200}, probe.attempts)
}

func TestHunter_ScanEnvironment_ExhaustionReturnsErrNoEndpoint(t *testing.T) {
	lister := &fakeLister{}
	hunter := newTestHunter(lister, &fakeScanner{}, &fakeProbe{})

	_, err := hunter.ScanEnvironment(context.Background(), 3)

	require.ErrorIs(t, err, ErrNoEndpoint)
	assert.Equal(t, 3, lister.calls)
}

func TestHunter_ScanEnvironment_PortScanFailureDoesNotAbortRound(t *testing.T) {
	target := Process{
		PID:     7,
		Name:    "assistant_server",
		Cmdline: "server --remote-automation --auxiliary-port=9100 --session-token=tok",
	}
	lister := &fakeLister{rounds: [][]Process{{target}, {target}}}
	scanner := &fakeScanner{err: errors.New("access denied")}
	hunter := newTestHunter(lister, scanner, &fakeProbe{})

	_, err := hunter.ScanEnvironment(context.Background(), 2)

	require.ErrorIs(t, err, ErrNoEndpoint)
	assert.Equal(t, 2, lister.calls)
}

func TestHunter_ScanEnvironment_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	hunter := newTestHunter(&fakeLister{}, &fakeScanner{}, &fakeProbe{})
	hunter.SetBackoff(0)

	_, err := hunter.ScanEnvironment(ctx, 5)
	require.ErrorIs(t, err, context.Canceled)
}
