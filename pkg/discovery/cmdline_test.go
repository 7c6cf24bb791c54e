package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSpec() TargetSpec {
	return TargetSpec{
		Names:      []string{"assistant_server"},
		PortFlag:   "--auxiliary-port",
		TokenFlag:  "--session-token",
		MarkerFlag: "--remote-automation",
	}
}

func TestParseCandidate(t *testing.T) {
	tests := []struct {
		name    string
		cmdline string
		want    Candidate
		ok      bool
	}{
		{
			name:    "equals form",
			cmdline: "/usr/bin/assistant_server --remote-automation --auxiliary-port=9222 --session-token=abc123",
			want:    Candidate{PID: 42, AuxiliaryPort: 9222, Token: "abc123"},
			ok:      true,
		},
		{
			name:    "space form",
			cmdline: "/usr/bin/assistant_server --remote-automation --auxiliary-port 9222 --session-token abc123",
			want:    Candidate{PID: 42, AuxiliaryPort: 9222, Token: "abc123"},
			ok:      true,
		},
		{
			name:    "case-insensitive flag names",
			cmdline: "server --Remote-Automation --AUXILIARY-PORT=9222 --Session-Token=abc",
			want:    Candidate{PID: 42, AuxiliaryPort: 9222, Token: "abc"},
			ok:      true,
		},
		{
			name:    "quoted token",
			cmdline: `server --remote-automation --auxiliary-port=9222 --session-token="tok with space"`,
			want:    Candidate{PID: 42, AuxiliaryPort: 9222, Token: "tok with space"},
			ok:      true,
		},
		{
			name:    "missing marker",
			cmdline: "server --auxiliary-port=9222 --session-token=abc",
			ok:      false,
		},
		{
			name:    "marker present but port missing",
			cmdline: "server --remote-automation --session-token=abc",
			ok:      false,
		},
		{
			name:    "marker present but token missing",
			cmdline: "server --remote-automation --auxiliary-port=9222",
			ok:      false,
		},
		{
			name:    "port value is another flag",
			cmdline: "server --remote-automation --auxiliary-port --session-token=abc",
			ok:      false,
		},
		{
			name:    "non-numeric port",
			cmdline: "server --remote-automation --auxiliary-port=none --session-token=abc",
			ok:      false,
		},
		{
			name:    "zero port",
			cmdline: "server --remote-automation --auxiliary-port=0 --session-token=abc",
			ok:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseCandidate(42, tt.cmdline, testSpec())
			require.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestSplitCommandLine(t *testing.T) {
	args := splitCommandLine(`/opt/app "a b" 'c d'  e`)
	assert.Equal(t, []string{"/opt/app", "a b", "c d", "e"}, args)
}

func TestFindCandidates(t *testing.T) {
	procs := []Process{
		{PID: 1, Name: "init", Cmdline: "/sbin/init"},
		{PID: 2, Name: "Assistant_Server", Cmdline: "server --remote-automation --auxiliary-port=9300 --session-token=t1"},
		{PID: 3, Name: "assistant_server", Cmdline: "server --auxiliary-port=9400 --session-token=t2"},
		{PID: 4, Name: "other_server", Cmdline: "server --remote-automation --auxiliary-port=9500 --session-token=t3"},
	}

	candidates := FindCandidates(procs, testSpec())

	// Name matching is case-insensitive; pid 3 lacks the marker and pid 4
	// has the wrong executable name.
	require.Len(t, candidates, 1)
	assert.Equal(t, Candidate{PID: 2, AuxiliaryPort: 9300, Token: "t1"}, candidates[0])
}
